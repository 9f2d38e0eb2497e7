package statement

import (
	"time"

	"github.com/shopspring/decimal"
)

// Transaction is one statement row. Adjustments are signed: reductions are
// negative. Balance is filled in by Reconcile.
type Transaction struct {
	Date          time.Time       `json:"date"`
	Reference     string          `json:"reference"`
	Description   string          `json:"description"`
	PaymentMethod string          `json:"payment_method,omitempty"`
	Charges       decimal.Decimal `json:"charges"`
	Adjustments   decimal.Decimal `json:"adjustments"`
	Payments      decimal.Decimal `json:"payments"`
	Balance       decimal.Decimal `json:"balance"`
}

// Delta is the row's effect on the running balance.
func (t Transaction) Delta() decimal.Decimal {
	return t.Charges.Add(t.Adjustments).Sub(t.Payments)
}

// Summary carries the opening and closing balances of a statement.
type Summary struct {
	OpeningBalance   decimal.Decimal `json:"opening_balance"`
	ClosingBalance   decimal.Decimal `json:"closing_balance"`
	TotalCharges     decimal.Decimal `json:"total_charges"`
	TotalAdjustments decimal.Decimal `json:"total_adjustments"`
	TotalPayments    decimal.Decimal `json:"total_payments"`
}

// Party is a tenant or company block printed on the statement.
type Party struct {
	ID      int64  `json:"id,omitempty"`
	Name    string `json:"name"`
	Email   string `json:"email,omitempty"`
	Phone   string `json:"phone,omitempty"`
	Address string `json:"address,omitempty"`
}

// Property identifies the let premises.
type Property struct {
	ID      int64  `json:"id"`
	Name    string `json:"name"`
	Unit    string `json:"unit,omitempty"`
	Address string `json:"address,omitempty"`
}

// Header is everything a statement prints besides the ledger rows.
type Header struct {
	LeaseID     int64           `json:"lease_id"`
	LeaseStart  time.Time       `json:"lease_start"`
	LeaseEnd    time.Time       `json:"lease_end"`
	MonthlyRent decimal.Decimal `json:"monthly_rent"`
	Tenant      Party           `json:"tenant"`
	Property    Property        `json:"property"`
	Company     Party           `json:"company"`
	Deposit     decimal.Decimal `json:"deposit"`
}

// Statement is the reconciled lease statement for a period.
type Statement struct {
	Header
	Currency     string        `json:"currency"`
	PeriodStart  time.Time     `json:"period_start"`
	PeriodEnd    time.Time     `json:"period_end"`
	Summary      Summary       `json:"summary"`
	Transactions []Transaction `json:"transactions"`
	GeneratedAt  time.Time     `json:"generated_at"`
}
