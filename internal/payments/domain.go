package payments

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/exceva/property-ledger/internal/billing"
)

// Method enumerates accepted payment methods.
type Method string

const (
	MethodCash         Method = "cash"
	MethodBankTransfer Method = "bank_transfer"
	MethodCard         Method = "card"
	MethodMobileMoney  Method = "mobile_money"
	MethodCheque       Method = "cheque"
)

// Valid reports whether m is a known method.
func (m Method) Valid() bool {
	switch m {
	case MethodCash, MethodBankTransfer, MethodCard, MethodMobileMoney, MethodCheque:
		return true
	}
	return false
}

// Source tells whether an allocation came from a payment or from held credit.
type Source string

const (
	SourcePayment Source = "payment"
	SourceCredit  Source = "credit"
)

// PaymentInput is a tenant-level payment before allocation.
type PaymentInput struct {
	TenantID  int64           `json:"tenant_id"`
	Amount    decimal.Decimal `json:"amount"`
	Method    Method          `json:"method"`
	Date      time.Time       `json:"date"`
	Reference string          `json:"reference"`
	Notes     string          `json:"notes,omitempty"`
}

// Payment is a recorded tenant payment.
type Payment struct {
	ID        int64           `json:"id"`
	Number    string          `json:"number"`
	TenantID  int64           `json:"tenant_id"`
	Amount    decimal.Decimal `json:"amount"`
	Method    Method          `json:"method"`
	PaidAt    time.Time       `json:"paid_at"`
	Reference string          `json:"reference"`
	Notes     string          `json:"notes,omitempty"`
	CreatedBy int64           `json:"created_by,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// OpenInvoice is the allocator's view of an invoice with a balance due.
type OpenInvoice struct {
	InvoiceID   int64
	Number      string
	PeriodStart time.Time
	DueAt       time.Time
	Balance     decimal.Decimal
}

// Allocation is the part of a payment or credit applied to one invoice.
type Allocation struct {
	PaymentID     int64           `json:"payment_id,omitempty"`
	InvoiceID     int64           `json:"invoice_id"`
	InvoiceNumber string          `json:"invoice_number"`
	Source        Source          `json:"source"`
	Amount        decimal.Decimal `json:"amount"`
	BalanceBefore decimal.Decimal `json:"balance_before"`
	BalanceAfter  decimal.Decimal `json:"balance_after"`
	AppliedAt     time.Time       `json:"applied_at"`
}

// Plan is the computed split of a payment.
type Plan struct {
	Allocations []Allocation    `json:"allocations"`
	Applied     decimal.Decimal `json:"applied"`
	ToCredit    decimal.Decimal `json:"to_credit"`
}

// CreditBalance is a tenant's unapplied surplus.
type CreditBalance struct {
	TenantID  int64           `json:"tenant_id"`
	Amount    decimal.Decimal `json:"credit_balance"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// AllocationResult is returned after a committed allocation. Invoices and
// credit are read back after commit.
type AllocationResult struct {
	Success       bool              `json:"success"`
	Message       string            `json:"message"`
	Payment       Payment           `json:"payment"`
	Allocations   []Allocation      `json:"allocations"`
	Invoices      []billing.Invoice `json:"updated_invoices"`
	CreditBalance CreditBalance     `json:"updated_credit_balance"`
}
