package billing

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

// FinancialSummary aggregates receivables, collections and credit. The
// three loads run concurrently.
func (s *Service) FinancialSummary(ctx context.Context) (FinancialSummary, error) {
	now := s.now()
	var (
		invoices []Invoice
		adjusted decimal.Decimal
		credit   = decimal.Zero
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		invoices, err = s.repo.ListInvoicesByStatus(gctx, StatusSent, StatusPartiallyPaid, StatusOverdue, StatusPaid)
		return err
	})
	g.Go(func() error {
		var err error
		adjusted, err = s.repo.SumAdjustments(gctx)
		return err
	})
	if s.deps.CreditTotal != nil {
		g.Go(func() error {
			var err error
			credit, err = s.deps.CreditTotal.TotalCreditHeld(gctx)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return FinancialSummary{}, err
	}

	summary := SummarizeInvoices(invoices, now)
	summary.Currency = s.cfg.Currency
	summary.TotalAdjusted = adjusted
	summary.CreditHeld = credit
	return summary, nil
}

// SummarizeInvoices folds issued invoices into portfolio totals.
func SummarizeInvoices(invoices []Invoice, now time.Time) FinancialSummary {
	summary := FinancialSummary{
		AsOf:             now,
		TotalInvoiced:    decimal.Zero,
		TotalCollected:   decimal.Zero,
		TotalOutstanding: decimal.Zero,
		OverdueAmount:    decimal.Zero,
		TotalAdjusted:    decimal.Zero,
		CreditHeld:       decimal.Zero,
	}
	for i := range invoices {
		inv := &invoices[i]
		if !inv.Status.Receivable() && inv.Status != StatusPaid {
			continue
		}
		summary.TotalInvoiced = summary.TotalInvoiced.Add(inv.TotalAmount())
		summary.TotalCollected = summary.TotalCollected.Add(inv.PaidAmount)
		balance := inv.BalanceDue()
		if !balance.IsPositive() {
			continue
		}
		summary.TotalOutstanding = summary.TotalOutstanding.Add(balance)
		if inv.EffectiveStatus(now) == StatusOverdue {
			summary.OverdueCount++
			summary.OverdueAmount = summary.OverdueAmount.Add(balance)
		}
	}
	return summary
}
