package billing

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/exceva/property-ledger/internal/shared"
)

var validTransitions = map[InvoiceStatus][]InvoiceStatus{
	StatusDraft:         {StatusCreated, StatusCancelled},
	StatusCreated:       {StatusSent, StatusCancelled},
	StatusSent:          {StatusPartiallyPaid, StatusPaid, StatusOverdue, StatusCancelled},
	StatusPartiallyPaid: {StatusPaid, StatusOverdue, StatusCancelled},
	StatusOverdue:       {StatusPartiallyPaid, StatusPaid, StatusCancelled},
}

// CanTransition reports whether from → to is allowed.
func CanTransition(from, to InvoiceStatus) bool {
	for _, next := range validTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

func (inv *Invoice) transition(op string, to InvoiceStatus) error {
	if inv.Status == to {
		return nil
	}
	if !CanTransition(inv.Status, to) {
		return &shared.StateError{
			Op:     op,
			State:  string(inv.Status),
			Reason: fmt.Sprintf("cannot move a %s invoice to %s", strings.ToLower(string(inv.Status)), strings.ToLower(string(to))),
		}
	}
	inv.Status = to
	return nil
}

// NewDraftInvoice builds a DRAFT invoice for a lease month.
func NewDraftInvoice(lease LeaseContext, month string, lines []LineItem, taxRate decimal.Decimal, currency string, dueDays int) (Invoice, error) {
	start, end, err := ParseMonth(month)
	if err != nil {
		return Invoice{}, shared.NewValidationError([]string{err.Error()})
	}
	if err := ValidateLines(lines); err != nil {
		return Invoice{}, err
	}
	if dueDays < 0 {
		dueDays = 0
	}
	return HydrateInvoice(Invoice{
		LeaseID:     lease.LeaseID,
		TenantID:    lease.TenantID,
		PropertyID:  lease.PropertyID,
		Commercial:  lease.Commercial,
		TaxRate:     taxRate,
		Currency:    currency,
		PeriodStart: start,
		PeriodEnd:   end,
		DueAt:       start.AddDate(0, 0, dueDays),
		Status:      StatusDraft,
	}, lines), nil
}

func (inv *Invoice) ensureEditable(op string) error {
	if inv.Status.Locked() {
		return &shared.StateError{
			Op:     op,
			State:  string(inv.Status),
			Reason: "invoice is locked; line items cannot change after it is sent, use an adjustment instead",
		}
	}
	return nil
}

// AddLine appends a line item.
func (inv *Invoice) AddLine(item LineItem) error {
	if err := inv.ensureEditable("add line item"); err != nil {
		return err
	}
	if err := item.Validate(); err != nil {
		return err
	}
	inv.lines = append(inv.lines, item)
	return nil
}

// UpdateLine replaces the line at index.
func (inv *Invoice) UpdateLine(index int, item LineItem) error {
	if err := inv.ensureEditable("update line item"); err != nil {
		return err
	}
	if index < 0 || index >= len(inv.lines) {
		return shared.NewValidationError([]string{fmt.Sprintf("line %d does not exist", index+1)})
	}
	if err := item.Validate(); err != nil {
		return err
	}
	inv.lines[index] = item
	return nil
}

// RemoveLine deletes the line at index, keeping the order of the rest.
func (inv *Invoice) RemoveLine(index int) error {
	if err := inv.ensureEditable("remove line item"); err != nil {
		return err
	}
	if index < 0 || index >= len(inv.lines) {
		return shared.NewValidationError([]string{fmt.Sprintf("line %d does not exist", index+1)})
	}
	inv.lines = append(inv.lines[:index:index], inv.lines[index+1:]...)
	return nil
}

// ReplaceLines swaps the whole line set.
func (inv *Invoice) ReplaceLines(items []LineItem) error {
	if err := inv.ensureEditable("replace line items"); err != nil {
		return err
	}
	if err := ValidateLines(items); err != nil {
		return err
	}
	inv.lines = append([]LineItem(nil), items...)
	return nil
}

// Promote turns a draft into a numbered invoice. It stays editable.
func (inv *Invoice) Promote(number string) error {
	if strings.TrimSpace(number) == "" {
		return shared.NewValidationError([]string{"invoice number is required"})
	}
	if len(inv.lines) == 0 {
		return shared.NewValidationError([]string{"an invoice needs at least one line item"})
	}
	if err := inv.transition("create invoice", StatusCreated); err != nil {
		return err
	}
	inv.Number = number
	return nil
}

// Send locks the invoice. The transition is one-way.
func (inv *Invoice) Send(now time.Time) error {
	if inv.Status != StatusCreated {
		return &shared.StateError{Op: "send invoice", State: string(inv.Status), Reason: "only a created, unsent invoice can be sent"}
	}
	if err := inv.transition("send invoice", StatusSent); err != nil {
		return err
	}
	inv.SentAt = &now
	inv.settle()
	return nil
}

// Cancel voids the invoice. Paid invoices and invoices with allocated
// payments cannot be cancelled.
func (inv *Invoice) Cancel(reason string, now time.Time) error {
	if strings.TrimSpace(reason) == "" {
		return shared.NewValidationError([]string{"cancellation reason is required"})
	}
	if inv.PaidAmount.IsPositive() && !inv.Status.Terminal() {
		return &shared.StateError{Op: "cancel invoice", State: string(inv.Status), Reason: "invoice has allocated payments"}
	}
	if err := inv.transition("cancel invoice", StatusCancelled); err != nil {
		return err
	}
	inv.CancelledAt = &now
	inv.CancelReason = reason
	return nil
}

// RecordPayment allocates amount against the balance due.
func (inv *Invoice) RecordPayment(amount decimal.Decimal) error {
	if !inv.Status.Receivable() {
		return &shared.StateError{Op: "allocate payment", State: string(inv.Status), Reason: "invoice is not open for payment"}
	}
	if !amount.IsPositive() {
		return shared.NewValidationError([]string{"payment amount must be greater than zero"})
	}
	if amount.GreaterThan(inv.BalanceDue()) {
		return shared.NewValidationError([]string{"payment exceeds the invoice balance due"})
	}
	inv.PaidAmount = inv.PaidAmount.Add(amount)
	inv.settle()
	return nil
}

// settle moves a sent invoice to PAID or PARTIALLY_PAID to match its balance.
func (inv *Invoice) settle() {
	if !inv.Status.Receivable() {
		return
	}
	switch {
	case !inv.BalanceDue().IsPositive():
		inv.Status = StatusPaid
	case inv.PaidAmount.IsPositive() && inv.Status == StatusSent:
		inv.Status = StatusPartiallyPaid
	case !inv.PaidAmount.IsPositive() && inv.Status == StatusPartiallyPaid:
		inv.Status = StatusSent
	}
}

// EffectiveStatus derives OVERDUE: past the due date with a balance left.
func (inv *Invoice) EffectiveStatus(now time.Time) InvoiceStatus {
	if inv.Status.Receivable() && inv.BalanceDue().IsPositive() && now.After(endOfDay(inv.DueAt)) {
		return StatusOverdue
	}
	return inv.Status
}

func endOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 23, 59, 59, 0, t.Location())
}
