package renewal

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/exceva/property-ledger/internal/money"
	"github.com/exceva/property-ledger/internal/shared"
)

// EscalatedRent returns current × (1 + pct/100) at minor-unit precision.
func EscalatedRent(current, pct decimal.Decimal) decimal.Decimal {
	return money.Round(current.Mul(money.Hundred().Add(pct)).Div(money.Hundred()))
}

// NewRenewal validates a proposal against the current lease and returns a
// PENDING renewal. Every problem is reported together.
func NewRenewal(lease LeaseTerms, p Proposal, now time.Time) (LeaseRenewal, error) {
	var problems shared.Problems
	if !lease.Active {
		problems.Addf("lease is not active")
	}
	if p.EscalationPercentage.IsNegative() {
		problems.Addf("escalation percentage cannot be negative")
	}
	if p.EscalationPercentage.GreaterThan(money.Hundred()) {
		problems.Addf("escalation percentage cannot exceed 100")
	}
	if !money.FitsPlaces(p.EscalationPercentage, money.FinePlaces) {
		problems.Addf("escalation percentage cannot have more than %d decimal places", money.FinePlaces)
	}
	if p.NewStartDate.IsZero() {
		problems.Addf("new start date is required")
	} else if !lease.EndDate.IsZero() && p.NewStartDate.Before(lease.EndDate) {
		problems.Addf("new start date must not be before the current lease ends")
	}
	if p.NewEndDate.IsZero() {
		problems.Addf("new end date is required")
	} else if !p.NewStartDate.IsZero() && !p.NewEndDate.After(p.NewStartDate) {
		problems.Addf("new end date must be after the new start date")
	}
	rent := EscalatedRent(lease.MonthlyRent, p.EscalationPercentage)
	if p.NewMonthlyRent != nil {
		rent = money.Round(*p.NewMonthlyRent)
		if !rent.IsPositive() {
			problems.Addf("new monthly rent must be greater than zero")
		}
	}
	if err := problems.Err(); err != nil {
		return LeaseRenewal{}, err
	}
	return LeaseRenewal{
		LeaseID:              lease.LeaseID,
		TenantID:             lease.TenantID,
		CurrentRent:          lease.MonthlyRent,
		NewStartDate:         p.NewStartDate,
		NewEndDate:           p.NewEndDate,
		NewMonthlyRent:       rent,
		EscalationPercentage: p.EscalationPercentage,
		Status:               StatusPending,
		Notes:                strings.TrimSpace(p.Notes),
		CreatedAt:            now,
		UpdatedAt:            now,
	}, nil
}
