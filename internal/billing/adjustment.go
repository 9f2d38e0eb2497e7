package billing

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/exceva/property-ledger/internal/money"
	"github.com/exceva/property-ledger/internal/shared"
)

// Adjustment validation messages shown verbatim to operators.
const (
	MsgAmountNotPositive   = "amount must be greater than zero"
	MsgPercentageAbove100  = "percentage cannot exceed 100"
	MsgNegativeTotal       = "would result in negative invoice total"
	MsgNegativeBalance     = "would result in negative balance due"
	MsgReasonRequired      = "reason is required"
	MsgEffectiveDateNeeded = "effective date is required"
	MsgReviewRequired      = "reviewed previous total and delta are required"
)

// ProposeAdjustment validates req against the invoice's current total and
// returns the proposal a confirmation step presents. Every problem is
// reported together. The invoice is never modified.
func ProposeAdjustment(inv *Invoice, req AdjustmentRequest) (Proposal, error) {
	if inv == nil {
		return Proposal{}, &shared.StateError{Op: "propose adjustment", Reason: "no invoice selected"}
	}
	if inv.Status.Terminal() {
		return Proposal{}, &shared.StateError{
			Op:     "propose adjustment",
			State:  string(inv.Status),
			Reason: "a " + strings.ToLower(string(inv.Status)) + " invoice cannot be adjusted",
		}
	}

	var problems shared.Problems
	sign, knownType := req.Type.sign()
	if !knownType {
		problems.Addf("unsupported adjustment type %q", req.Type)
	}
	knownAmount := req.AmountType == AmountFixed || req.AmountType == AmountPercentage
	if !knownAmount {
		problems.Addf("unsupported amount type %q", req.AmountType)
	}
	if !req.Value.IsPositive() {
		problems.Addf(MsgAmountNotPositive)
	}
	if req.AmountType == AmountPercentage && req.Value.GreaterThan(money.Hundred()) {
		problems.Addf(MsgPercentageAbove100)
	}
	switch {
	case req.AmountType == AmountFixed && !money.FitsPlaces(req.Value, money.MinorUnits):
		problems.Addf("amount cannot have more than %d decimal places", money.MinorUnits)
	case req.AmountType == AmountPercentage && !money.FitsPlaces(req.Value, money.FinePlaces):
		problems.Addf("percentage cannot have more than %d decimal places", money.FinePlaces)
	}

	previous := inv.TotalAmount()
	proposal := Proposal{Request: req, PreviousTotal: previous, NewTotal: previous, NewBalanceDue: inv.BalanceDue()}
	if knownType && knownAmount {
		raw := req.Value
		if req.AmountType == AmountPercentage {
			raw = money.Percent(previous, req.Value)
		}
		proposal.Delta = money.Round(raw.Mul(sign))
		proposal.NewTotal = previous.Add(proposal.Delta)
		proposal.NewBalanceDue = proposal.NewTotal.Sub(inv.PaidAmount)
		if proposal.NewTotal.IsNegative() {
			problems.Addf(MsgNegativeTotal)
		} else if proposal.NewBalanceDue.IsNegative() {
			problems.Addf(MsgNegativeBalance)
		}
	}

	if strings.TrimSpace(req.Reason) == "" {
		problems.Addf(MsgReasonRequired)
	}
	if req.EffectiveDate.IsZero() {
		problems.Addf(MsgEffectiveDateNeeded)
	}
	if err := problems.Err(); err != nil {
		return Proposal{}, err
	}
	return proposal, nil
}

// ApplyAdjustment commits a proposal. The proposal is re-validated against
// the invoice as it is now; a proposal computed against another total is
// rejected and the invoice is left untouched.
func (inv *Invoice) ApplyAdjustment(p Proposal, actor int64, now time.Time) (Adjustment, error) {
	if p.Request.InvoiceID != 0 && inv.ID != 0 && p.Request.InvoiceID != inv.ID {
		return Adjustment{}, &shared.StateError{Op: "apply adjustment", Reason: "proposal belongs to another invoice"}
	}
	fresh, err := ProposeAdjustment(inv, p.Request)
	if err != nil {
		return Adjustment{}, err
	}
	if !fresh.PreviousTotal.Equal(p.PreviousTotal) || !fresh.Delta.Equal(p.Delta) {
		return Adjustment{}, &shared.StateError{
			Op:     "apply adjustment",
			State:  string(inv.Status),
			Reason: "invoice total changed since the adjustment was reviewed; review it again",
		}
	}

	inv.AdjustmentNet = inv.AdjustmentNet.Add(fresh.Delta)
	inv.settle()
	inv.UpdatedAt = now

	return Adjustment{
		ID:            uuid.New(),
		InvoiceID:     inv.ID,
		Type:          fresh.Request.Type,
		AmountType:    fresh.Request.AmountType,
		InputValue:    fresh.Request.Value,
		Delta:         fresh.Delta,
		PreviousTotal: fresh.PreviousTotal,
		NewTotal:      fresh.NewTotal,
		Reason:        strings.TrimSpace(fresh.Request.Reason),
		Notes:         fresh.Request.Notes,
		EffectiveDate: fresh.Request.EffectiveDate,
		CreatedBy:     actor,
		CreatedAt:     now,
	}, nil
}

// NetAdjustments sums committed deltas.
func NetAdjustments(adjustments []Adjustment) decimal.Decimal {
	net := decimal.Zero
	for _, adj := range adjustments {
		net = net.Add(adj.Delta)
	}
	return net
}
