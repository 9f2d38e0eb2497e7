package billing

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/exceva/property-ledger/internal/money"
)

// InvoiceStatus enumerates invoice lifecycle statuses.
type InvoiceStatus string

const (
	StatusDraft         InvoiceStatus = "DRAFT"
	StatusCreated       InvoiceStatus = "CREATED"
	StatusSent          InvoiceStatus = "SENT"
	StatusPartiallyPaid InvoiceStatus = "PARTIALLY_PAID"
	StatusOverdue       InvoiceStatus = "OVERDUE"
	StatusPaid          InvoiceStatus = "PAID"
	StatusCancelled     InvoiceStatus = "CANCELLED"
)

// Locked reports whether line items are frozen.
func (s InvoiceStatus) Locked() bool {
	return s != StatusDraft && s != StatusCreated
}

// Terminal reports whether no further transition is possible.
func (s InvoiceStatus) Terminal() bool {
	return s == StatusPaid || s == StatusCancelled
}

// Receivable reports whether payments may be allocated against the invoice.
func (s InvoiceStatus) Receivable() bool {
	return s == StatusSent || s == StatusPartiallyPaid || s == StatusOverdue
}

// LineItem is one billable entry. Its total is always derived.
type LineItem struct {
	Description string          `json:"description"`
	Category    string          `json:"category"`
	Quantity    decimal.Decimal `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
}

// LineTotal returns quantity × unit price at minor-unit precision.
func (l LineItem) LineTotal() decimal.Decimal {
	return money.Round(l.Quantity.Mul(l.UnitPrice))
}

// MarshalJSON adds the derived line_total.
func (l LineItem) MarshalJSON() ([]byte, error) {
	type plain LineItem
	return json.Marshal(struct {
		plain
		LineTotal decimal.Decimal `json:"line_total"`
	}{plain(l), l.LineTotal()})
}

// Invoice is a tenant bill for one lease and billing month. Line items are
// only reachable through methods so the lock rule cannot be bypassed.
type Invoice struct {
	ID            int64
	Number        string
	LeaseID       int64
	TenantID      int64
	PropertyID    int64
	Commercial    bool
	TaxRate       decimal.Decimal
	Currency      string
	PeriodStart   time.Time
	PeriodEnd     time.Time
	DueAt         time.Time
	Status        InvoiceStatus
	AdjustmentNet decimal.Decimal
	PaidAmount    decimal.Decimal
	SentAt        *time.Time
	CancelledAt   *time.Time
	CancelReason  string
	CreatedBy     int64
	CreatedAt     time.Time
	UpdatedAt     time.Time

	lines []LineItem
}

// HydrateInvoice attaches persisted line items to an invoice loaded from
// storage.
func HydrateInvoice(base Invoice, lines []LineItem) Invoice {
	base.lines = append([]LineItem(nil), lines...)
	return base
}

// Lines returns a copy of the line items in printed order.
func (inv *Invoice) Lines() []LineItem {
	return append([]LineItem(nil), inv.lines...)
}

// Totals recomputes subtotal, tax and total from the line items. Residential
// invoices are never taxed.
func (inv *Invoice) Totals() Totals {
	rate := decimal.Zero
	if inv.Commercial {
		rate = inv.TaxRate
	}
	return ComputeTotals(inv.lines, rate)
}

// TotalAmount is the line-item total plus committed adjustments.
func (inv *Invoice) TotalAmount() decimal.Decimal {
	return inv.Totals().Total.Add(inv.AdjustmentNet)
}

// BalanceDue is the total amount less allocated payments.
func (inv *Invoice) BalanceDue() decimal.Decimal {
	return inv.TotalAmount().Sub(inv.PaidAmount)
}

// Month returns the billing month key (YYYY-MM).
func (inv *Invoice) Month() string {
	return inv.PeriodStart.Format(MonthLayout)
}

type invoiceJSON struct {
	ID            int64           `json:"id"`
	Number        string          `json:"number,omitempty"`
	LeaseID       int64           `json:"lease_id"`
	TenantID      int64           `json:"tenant_id"`
	PropertyID    int64           `json:"property_id"`
	Commercial    bool            `json:"commercial"`
	TaxRate       decimal.Decimal `json:"tax_rate"`
	Currency      string          `json:"currency"`
	PeriodStart   time.Time       `json:"period_start"`
	PeriodEnd     time.Time       `json:"period_end"`
	DueAt         time.Time       `json:"due_at"`
	Status        InvoiceStatus   `json:"status"`
	Lines         []LineItem      `json:"line_items"`
	Subtotal      decimal.Decimal `json:"subtotal"`
	TaxAmount     decimal.Decimal `json:"tax_amount"`
	AdjustmentNet decimal.Decimal `json:"adjustment_net"`
	TotalAmount   decimal.Decimal `json:"total_amount"`
	PaidAmount    decimal.Decimal `json:"paid_amount"`
	BalanceDue    decimal.Decimal `json:"balance_due"`
	SentAt        *time.Time      `json:"sent_at,omitempty"`
	CancelledAt   *time.Time      `json:"cancelled_at,omitempty"`
	CancelReason  string          `json:"cancel_reason,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// MarshalJSON emits stored fields together with the derived totals.
func (inv Invoice) MarshalJSON() ([]byte, error) {
	totals := inv.Totals()
	lines := inv.Lines()
	if lines == nil {
		lines = []LineItem{}
	}
	return json.Marshal(invoiceJSON{
		ID: inv.ID, Number: inv.Number, LeaseID: inv.LeaseID, TenantID: inv.TenantID,
		PropertyID: inv.PropertyID, Commercial: inv.Commercial, TaxRate: inv.TaxRate,
		Currency: inv.Currency, PeriodStart: inv.PeriodStart, PeriodEnd: inv.PeriodEnd,
		DueAt: inv.DueAt, Status: inv.Status, Lines: lines,
		Subtotal: totals.Subtotal, TaxAmount: totals.TaxAmount, AdjustmentNet: inv.AdjustmentNet,
		TotalAmount: inv.TotalAmount(), PaidAmount: inv.PaidAmount, BalanceDue: inv.BalanceDue(),
		SentAt: inv.SentAt, CancelledAt: inv.CancelledAt, CancelReason: inv.CancelReason,
		CreatedAt: inv.CreatedAt, UpdatedAt: inv.UpdatedAt,
	})
}

// UnmarshalJSON restores stored fields; the derived totals in the payload are
// ignored and recomputed on demand.
func (inv *Invoice) UnmarshalJSON(data []byte) error {
	var raw invoiceJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*inv = HydrateInvoice(Invoice{
		ID: raw.ID, Number: raw.Number, LeaseID: raw.LeaseID, TenantID: raw.TenantID,
		PropertyID: raw.PropertyID, Commercial: raw.Commercial, TaxRate: raw.TaxRate,
		Currency: raw.Currency, PeriodStart: raw.PeriodStart, PeriodEnd: raw.PeriodEnd,
		DueAt: raw.DueAt, Status: raw.Status, AdjustmentNet: raw.AdjustmentNet,
		PaidAmount: raw.PaidAmount, SentAt: raw.SentAt, CancelledAt: raw.CancelledAt,
		CancelReason: raw.CancelReason, CreatedAt: raw.CreatedAt, UpdatedAt: raw.UpdatedAt,
	}, raw.Lines)
	return nil
}

// MonthLayout is the billing month key format.
const MonthLayout = "2006-01"

// ParseMonth returns the first and last day of a YYYY-MM billing month.
func ParseMonth(month string) (time.Time, time.Time, error) {
	start, err := time.Parse(MonthLayout, month)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("billing: month %q must be formatted YYYY-MM", month)
	}
	end := start.AddDate(0, 1, -1)
	return start, end, nil
}

// LeaseContext carries the lease facts an invoice is built from.
type LeaseContext struct {
	LeaseID     int64
	TenantID    int64
	PropertyID  int64
	Commercial  bool
	MonthlyRent decimal.Decimal
	Active      bool
}

// RecurringCharge is a standing monthly charge on a lease.
type RecurringCharge struct {
	ID          int64           `json:"id"`
	LeaseID     int64           `json:"lease_id"`
	Description string          `json:"description"`
	Category    string          `json:"category"`
	Amount      decimal.Decimal `json:"amount"`
}

// Draft is an unnumbered, editable invoice body for a lease month.
type Draft struct {
	LeaseID int64      `json:"lease_id"`
	Month   string     `json:"month"`
	Lines   []LineItem `json:"line_items"`
	SavedAt time.Time  `json:"saved_at,omitempty"`
}

// Totals computes the draft's live totals.
func (d Draft) Totals(taxRate decimal.Decimal) Totals {
	return ComputeTotals(d.Lines, taxRate)
}

// MonthView answers navigateToMonth: either the month's invoice or the data
// to prefill a draft with.
type MonthView struct {
	HasInvoice  bool     `json:"has_invoice"`
	Invoice     *Invoice `json:"invoice,omitempty"`
	InvoiceData *Draft   `json:"invoice_data,omitempty"`
}

// AdjustmentType enumerates adjustment kinds.
type AdjustmentType string

const (
	AdjustmentWaiver   AdjustmentType = "waiver"
	AdjustmentDiscount AdjustmentType = "discount"
	AdjustmentCredit   AdjustmentType = "credit"
	AdjustmentCharge   AdjustmentType = "charge"
	AdjustmentLateFee  AdjustmentType = "late_fee"
)

// sign returns -1 for reducing types and +1 for increasing ones.
func (t AdjustmentType) sign() (decimal.Decimal, bool) {
	switch t {
	case AdjustmentWaiver, AdjustmentDiscount, AdjustmentCredit:
		return decimal.NewFromInt(-1), true
	case AdjustmentCharge, AdjustmentLateFee:
		return decimal.NewFromInt(1), true
	default:
		return decimal.Zero, false
	}
}

// Reduces reports whether the adjustment lowers the invoice total.
func (t AdjustmentType) Reduces() bool {
	s, ok := t.sign()
	return ok && s.IsNegative()
}

// AmountType says how the input value is interpreted.
type AmountType string

const (
	AmountFixed      AmountType = "fixed"
	AmountPercentage AmountType = "percentage"
)

// AdjustmentRequest is the operator's adjustment input before validation.
type AdjustmentRequest struct {
	InvoiceID     int64           `json:"invoice_id"`
	Type          AdjustmentType  `json:"type"`
	AmountType    AmountType      `json:"amount_type"`
	Value         decimal.Decimal `json:"amount"`
	Reason        string          `json:"reason"`
	Notes         string          `json:"notes,omitempty"`
	EffectiveDate time.Time       `json:"effective_date"`
}

// Proposal is a validated adjustment awaiting explicit confirmation. It
// carries everything the confirmation step presents.
type Proposal struct {
	Request       AdjustmentRequest `json:"request"`
	Delta         decimal.Decimal   `json:"delta"`
	PreviousTotal decimal.Decimal   `json:"previous_total"`
	NewTotal      decimal.Decimal   `json:"new_total"`
	NewBalanceDue decimal.Decimal   `json:"new_balance_due"`
}

// Adjustment is a committed, immutable change to an invoice total.
type Adjustment struct {
	ID            uuid.UUID       `json:"id"`
	InvoiceID     int64           `json:"invoice_id"`
	Type          AdjustmentType  `json:"type"`
	AmountType    AmountType      `json:"amount_type"`
	InputValue    decimal.Decimal `json:"input_value"`
	Delta         decimal.Decimal `json:"delta"`
	PreviousTotal decimal.Decimal `json:"previous_total"`
	NewTotal      decimal.Decimal `json:"new_total"`
	Reason        string          `json:"reason"`
	Notes         string          `json:"notes,omitempty"`
	EffectiveDate time.Time       `json:"effective_date"`
	CreatedBy     int64           `json:"created_by"`
	CreatedAt     time.Time       `json:"created_at"`
}

// AdjustmentResult is returned by a committed createAdjustment call.
type AdjustmentResult struct {
	Adjustment Adjustment `json:"adjustment"`
	Invoice    Invoice    `json:"adjusted_invoice"`
}

// FinancialSummary aggregates portfolio figures for the dashboard.
type FinancialSummary struct {
	Currency         string          `json:"currency"`
	AsOf             time.Time       `json:"as_of"`
	TotalInvoiced    decimal.Decimal `json:"total_invoiced"`
	TotalCollected   decimal.Decimal `json:"total_collected"`
	TotalOutstanding decimal.Decimal `json:"total_outstanding"`
	OverdueCount     int             `json:"overdue_count"`
	OverdueAmount    decimal.Decimal `json:"overdue_amount"`
	CreditHeld       decimal.Decimal `json:"credit_held"`
	TotalAdjusted    decimal.Decimal `json:"total_adjusted"`
}
