package statement

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/exceva/property-ledger/internal/billing"
)

// AllocationRecord is a stored payment or credit application on an invoice.
type AllocationRecord struct {
	InvoiceID        int64
	InvoiceNumber    string
	Source           string
	Amount           decimal.Decimal
	AppliedAt        time.Time
	Method           string
	PaymentNumber    string
	PaymentReference string
}

// BuildActivity turns a lease's ledger records into statement rows: invoice
// charges on the send date, adjustments on their effective date and
// allocations on the date they were applied. Rows are returned in date
// order with charges ahead of adjustments ahead of payments on the same day.
func BuildActivity(invoices []billing.Invoice, adjustments []billing.Adjustment, allocations []AllocationRecord) []Transaction {
	numbers := make(map[int64]string, len(invoices))
	var charges []Transaction
	for i := range invoices {
		inv := &invoices[i]
		if inv.SentAt == nil || inv.Status == billing.StatusCancelled {
			continue
		}
		numbers[inv.ID] = inv.Number
		charges = append(charges, Transaction{
			Date:        day(*inv.SentAt),
			Reference:   inv.Number,
			Description: "Invoice for " + inv.PeriodStart.Format("January 2006"),
			Charges:     inv.Totals().Total,
			Adjustments: decimal.Zero,
			Payments:    decimal.Zero,
		})
	}

	var adjusted []Transaction
	for _, adj := range adjustments {
		number, ok := numbers[adj.InvoiceID]
		if !ok {
			continue
		}
		adjusted = append(adjusted, Transaction{
			Date:        day(adj.EffectiveDate),
			Reference:   number,
			Description: fmt.Sprintf("%s: %s", adjustmentLabel(adj.Type), adj.Reason),
			Charges:     decimal.Zero,
			Adjustments: adj.Delta,
			Payments:    decimal.Zero,
		})
	}

	var paid []Transaction
	for _, a := range allocations {
		if _, ok := numbers[a.InvoiceID]; !ok {
			continue
		}
		row := Transaction{
			Date:        day(a.AppliedAt),
			Reference:   a.PaymentNumber,
			Description: "Payment against " + a.InvoiceNumber,
			Charges:     decimal.Zero,
			Adjustments: decimal.Zero,
			Payments:    a.Amount,
		}
		if a.PaymentReference != "" {
			row.Description += " (" + a.PaymentReference + ")"
		}
		row.PaymentMethod = a.Method
		if a.Source == "credit" {
			row.Reference = a.InvoiceNumber
			row.Description = "Credit applied to " + a.InvoiceNumber
			row.PaymentMethod = "credit"
		}
		paid = append(paid, row)
	}

	out := make([]Transaction, 0, len(charges)+len(adjusted)+len(paid))
	out = append(out, charges...)
	out = append(out, adjusted...)
	out = append(out, paid...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out
}

// SplitAt separates rows dated before start from rows within [start, end].
// Rows after end are dropped.
func SplitAt(rows []Transaction, start, end time.Time) (prior, period []Transaction) {
	for _, r := range rows {
		switch {
		case r.Date.Before(start):
			prior = append(prior, r)
		case !r.Date.After(end):
			period = append(period, r)
		}
	}
	return prior, period
}

func adjustmentLabel(t billing.AdjustmentType) string {
	label := strings.ReplaceAll(string(t), "_", " ")
	if label == "" {
		return "Adjustment"
	}
	return strings.ToUpper(label[:1]) + label[1:]
}

func day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
