package renewal

import (
	"fmt"
	"strings"
	"time"

	"github.com/exceva/property-ledger/internal/shared"
)

var validTransitions = map[Status][]Status{
	StatusPending:  {StatusApproved, StatusRejected},
	StatusApproved: {StatusCompleted},
}

// CanTransition reports whether from → to is allowed.
func CanTransition(from, to Status) bool {
	for _, next := range validTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// ParseStatus normalises an inbound status name.
func ParseStatus(raw string) (Status, error) {
	s := Status(strings.ToUpper(strings.TrimSpace(raw)))
	switch s {
	case StatusPending, StatusApproved, StatusRejected, StatusCompleted:
		return s, nil
	}
	return "", shared.NewValidationError([]string{fmt.Sprintf("unsupported renewal status %q", raw)})
}

// Transition moves the renewal to the next status. With requireAcceptance
// set, approval and completion need both parties to have accepted.
func (r *LeaseRenewal) Transition(to Status, requireAcceptance bool, now time.Time) error {
	if !CanTransition(r.Status, to) {
		return &shared.StateError{
			Op:     "update renewal status",
			State:  string(r.Status),
			Reason: fmt.Sprintf("cannot move a %s renewal to %s", strings.ToLower(string(r.Status)), strings.ToLower(string(to))),
		}
	}
	if requireAcceptance && (to == StatusApproved || to == StatusCompleted) && !r.FullyAccepted() {
		return &shared.StateError{
			Op:     "update renewal status",
			State:  string(r.Status),
			Reason: "both tenant and landlord must accept the renewal first",
		}
	}
	r.Status = to
	r.UpdatedAt = now
	return nil
}

// FullyAccepted reports whether both parties accepted.
func (r LeaseRenewal) FullyAccepted() bool {
	return r.TenantAcceptance && r.LandlordAcceptance
}

// SetAcceptance records one party's answer. Flags are independent and may
// be set in either order while the renewal is open.
func (r *LeaseRenewal) SetAcceptance(party Party, accepted bool, now time.Time) error {
	if r.Status.Terminal() {
		return &shared.StateError{Op: "record acceptance", State: string(r.Status), Reason: "renewal is closed"}
	}
	switch party {
	case PartyTenant:
		r.TenantAcceptance = accepted
	case PartyLandlord:
		r.LandlordAcceptance = accepted
	default:
		return shared.NewValidationError([]string{fmt.Sprintf("unsupported party %q", party)})
	}
	r.UpdatedAt = now
	return nil
}
