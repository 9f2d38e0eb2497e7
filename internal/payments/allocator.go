package payments

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/exceva/property-ledger/internal/billing"
	"github.com/exceva/property-ledger/internal/money"
	"github.com/exceva/property-ledger/internal/shared"
)

// PlanAllocation applies amount to open invoices oldest first, the same
// order statements use. Each allocation is capped at the invoice balance and
// whatever is left becomes credit. open is not modified.
func PlanAllocation(amount decimal.Decimal, open []OpenInvoice) (Plan, error) {
	amount = money.Round(amount)
	if !amount.IsPositive() {
		return Plan{}, shared.NewValidationError([]string{"payment amount must be greater than zero"})
	}
	ordered := append([]OpenInvoice(nil), open...)
	sort.SliceStable(ordered, func(i, j int) bool {
		a, b := ordered[i], ordered[j]
		if !a.PeriodStart.Equal(b.PeriodStart) {
			return a.PeriodStart.Before(b.PeriodStart)
		}
		if !a.DueAt.Equal(b.DueAt) {
			return a.DueAt.Before(b.DueAt)
		}
		return a.InvoiceID < b.InvoiceID
	})

	plan := Plan{Allocations: []Allocation{}, Applied: decimal.Zero}
	remaining := amount
	for _, inv := range ordered {
		if !remaining.IsPositive() {
			break
		}
		if !inv.Balance.IsPositive() {
			continue
		}
		applied := decimal.Min(remaining, inv.Balance)
		plan.Allocations = append(plan.Allocations, Allocation{
			InvoiceID:     inv.InvoiceID,
			InvoiceNumber: inv.Number,
			Source:        SourcePayment,
			Amount:        applied,
			BalanceBefore: inv.Balance,
			BalanceAfter:  inv.Balance.Sub(applied),
		})
		plan.Applied = plan.Applied.Add(applied)
		remaining = remaining.Sub(applied)
	}
	plan.ToCredit = remaining
	return plan, nil
}

// OpenInvoicesOf converts receivable invoices into allocator input.
func OpenInvoicesOf(invoices []billing.Invoice) []OpenInvoice {
	out := make([]OpenInvoice, 0, len(invoices))
	for i := range invoices {
		inv := &invoices[i]
		if !inv.Status.Receivable() {
			continue
		}
		out = append(out, OpenInvoice{
			InvoiceID:   inv.ID,
			Number:      inv.Number,
			PeriodStart: inv.PeriodStart,
			DueAt:       inv.DueAt,
			Balance:     inv.BalanceDue(),
		})
	}
	return out
}

// Validate checks a payment before any allocation.
func (in PaymentInput) Validate() error {
	var p shared.Problems
	if in.TenantID <= 0 {
		p.Addf("tenant is required")
	}
	if !in.Amount.IsPositive() {
		p.Addf("payment amount must be greater than zero")
	} else if !in.Amount.Equal(money.Round(in.Amount)) {
		p.Addf("payment amount cannot have more than %d decimal places", money.MinorUnits)
	}
	if !in.Method.Valid() {
		p.Addf("unsupported payment method %q", in.Method)
	}
	if in.Date.IsZero() {
		p.Addf("payment date is required")
	}
	if len(in.Reference) > 120 {
		p.Addf("reference is too long")
	}
	return p.Err()
}
