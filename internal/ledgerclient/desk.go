package ledgerclient

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/exceva/property-ledger/internal/billing"
	"github.com/exceva/property-ledger/internal/payments"
	"github.com/exceva/property-ledger/internal/statement"
)

// PaymentOutcome is an allocation together with the credit balance read
// back after it committed.
type PaymentOutcome struct {
	Allocation payments.AllocationResult
	Credit     Result[payments.CreditBalance]
}

// Desk is the console-side coordinator: it serialises submissions per
// tenant and invoice, re-reads balances after a write and tags every read
// with its source.
type Desk struct {
	client *Client
	latch  *Latch
	logger *slog.Logger
	now    func() time.Time

	mu      sync.Mutex
	summary lastGood[billing.FinancialSummary]
	credit  map[int64]*lastGood[payments.CreditBalance]
}

// NewDesk wires a desk over client.
func NewDesk(client *Client, latch *Latch, logger *slog.Logger) *Desk {
	if latch == nil {
		latch = NewLatch()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Desk{client: client, latch: latch, logger: logger, now: time.Now, credit: map[int64]*lastGood[payments.CreditBalance]{}}
}

// Latch exposes the shared latch so adjustment flows honour it too.
func (d *Desk) Latch() *Latch {
	return d.latch
}

// NewAdjustmentFlow starts an adjustment flow on invoice.
func (d *Desk) NewAdjustmentFlow(invoice billing.Invoice) *AdjustmentFlow {
	return NewAdjustmentFlow(d.client, d.latch, invoice)
}

// AllocatePayment submits a payment and then fetches the tenant's credit
// balance again so the console never shows a pre-payment figure.
func (d *Desk) AllocatePayment(ctx context.Context, in payments.PaymentInput, idempotencyKey string) (PaymentOutcome, error) {
	var out PaymentOutcome
	err := d.latch.Do(TenantKey(in.TenantID), func() error {
		res, err := d.client.AllocatePayment(ctx, in, idempotencyKey)
		if err != nil {
			return err
		}
		out.Allocation = res
		return nil
	})
	if err != nil {
		return PaymentOutcome{}, err
	}
	out.Credit = d.CreditBalance(ctx, in.TenantID)
	if !out.Credit.Live() {
		d.logger.Warn("credit balance stale after payment", slog.Int64("tenant_id", in.TenantID), slog.Any("error", out.Credit.Err))
	}
	return out, nil
}

// CreditBalance reads a tenant's credit, falling back to the last live
// value when the service is unreachable.
func (d *Desk) CreditBalance(ctx context.Context, tenantID int64) Result[payments.CreditBalance] {
	value, err := d.client.GetTenantCreditBalance(ctx, tenantID)
	d.mu.Lock()
	defer d.mu.Unlock()
	g, ok := d.credit[tenantID]
	if !ok {
		g = &lastGood[payments.CreditBalance]{}
		d.credit[tenantID] = g
	}
	return g.wrap(value, err, d.now())
}

// Summary reads the financial summary, falling back to the last live value
// when the service is unreachable.
func (d *Desk) Summary(ctx context.Context) Result[billing.FinancialSummary] {
	value, err := d.client.FinancialSummary(ctx)
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.summary.wrap(value, err, d.now())
}

// Statement fetches a lease statement and re-folds its rows locally. A
// statement whose rows do not reproduce its running and closing balances is
// rejected.
func (d *Desk) Statement(ctx context.Context, leaseID int64, start, end time.Time) (statement.Statement, error) {
	st, err := d.client.GetLeaseStatement(ctx, leaseID, start, end)
	if err != nil {
		return statement.Statement{}, err
	}
	rec := statement.Reconcile(st.Summary.OpeningBalance, st.Transactions)
	for i := range rec.Rows {
		if i < len(st.Transactions) && !rec.Rows[i].Balance.Equal(st.Transactions[i].Balance) {
			return statement.Statement{}, &statement.MismatchError{Computed: rec.Rows[i].Balance, Reported: st.Transactions[i].Balance}
		}
	}
	if err := rec.Verify(st.Summary.ClosingBalance); err != nil {
		return statement.Statement{}, err
	}
	return st, nil
}
