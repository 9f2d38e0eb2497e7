package billing

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/exceva/property-ledger/internal/money"
	"github.com/exceva/property-ledger/internal/shared"
)

// Totals holds the derived invoice amounts.
type Totals struct {
	Subtotal  decimal.Decimal `json:"subtotal"`
	TaxAmount decimal.Decimal `json:"tax_amount"`
	Total     decimal.Decimal `json:"total"`
}

// ComputeTotals folds line items into subtotal, tax and total. It has no
// side effects and is safe to call on every edit.
func ComputeTotals(lines []LineItem, taxRatePercent decimal.Decimal) Totals {
	subtotal := decimal.Zero
	for _, line := range lines {
		subtotal = subtotal.Add(line.Quantity.Mul(line.UnitPrice))
	}
	subtotal = money.Round(subtotal)
	tax := money.Percent(subtotal, taxRatePercent)
	return Totals{
		Subtotal:  subtotal,
		TaxAmount: tax,
		Total:     subtotal.Add(tax),
	}
}

// Validate rejects line items that cannot be billed.
func (l LineItem) Validate() error {
	var p shared.Problems
	l.collectProblems(&p, "")
	return p.Err()
}

func (l LineItem) collectProblems(p *shared.Problems, prefix string) {
	if l.Description == "" {
		p.Addf("%sdescription is required", prefix)
	}
	if l.Quantity.IsNegative() {
		p.Addf("%squantity cannot be negative", prefix)
	} else if !money.FitsPlaces(l.Quantity, money.FinePlaces) {
		p.Addf("%squantity cannot have more than %d decimal places", prefix, money.FinePlaces)
	}
	if l.UnitPrice.IsNegative() {
		p.Addf("%sunit price cannot be negative", prefix)
	} else if !money.FitsPlaces(l.UnitPrice, money.MinorUnits) {
		p.Addf("%sunit price cannot have more than %d decimal places", prefix, money.MinorUnits)
	}
}

// ValidateLines validates every line and reports all problems at once.
func ValidateLines(lines []LineItem) error {
	var p shared.Problems
	for i, line := range lines {
		line.collectProblems(&p, lineLabel(i))
	}
	return p.Err()
}

func lineLabel(index int) string {
	return fmt.Sprintf("line %d: ", index+1)
}
