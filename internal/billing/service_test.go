package billing

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/exceva/property-ledger/internal/shared"
)

type memoryBillingRepo struct {
	leases      map[int64]LeaseContext
	invoices    map[int64]Invoice
	drafts      map[string]Draft
	charges     map[int64][]RecurringCharge
	adjustments []Adjustment
	seq         int64
	nextID      int64
	failUpdate  bool
}

func newMemoryBillingRepo() *memoryBillingRepo {
	return &memoryBillingRepo{
		leases:   map[int64]LeaseContext{},
		invoices: map[int64]Invoice{},
		drafts:   map[string]Draft{},
		charges:  map[int64][]RecurringCharge{},
	}
}

func draftKey(leaseID int64, month string) string {
	return fmt.Sprintf("%d/%s", leaseID, month)
}

func (r *memoryBillingRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	invoices := make(map[int64]Invoice, len(r.invoices))
	for id, inv := range r.invoices {
		invoices[id] = HydrateInvoice(inv, inv.Lines())
	}
	drafts := make(map[string]Draft, len(r.drafts))
	for k, v := range r.drafts {
		drafts[k] = v
	}
	adjustments := append([]Adjustment(nil), r.adjustments...)
	if err := fn(ctx, r); err != nil {
		r.invoices = invoices
		r.drafts = drafts
		r.adjustments = adjustments
		return err
	}
	return nil
}

func (r *memoryBillingRepo) GetLeaseContext(_ context.Context, leaseID int64) (LeaseContext, error) {
	lease, ok := r.leases[leaseID]
	if !ok {
		return LeaseContext{}, shared.ErrNotFound
	}
	return lease, nil
}

func (r *memoryBillingRepo) GetInvoice(_ context.Context, id int64) (Invoice, error) {
	inv, ok := r.invoices[id]
	if !ok {
		return Invoice{}, shared.ErrNotFound
	}
	return HydrateInvoice(inv, inv.Lines()), nil
}

func (r *memoryBillingRepo) GetInvoiceForUpdate(ctx context.Context, id int64) (Invoice, error) {
	return r.GetInvoice(ctx, id)
}

func (r *memoryBillingRepo) FindInvoiceForMonth(_ context.Context, leaseID int64, periodStart time.Time) (Invoice, bool, error) {
	for _, inv := range r.invoices {
		if inv.LeaseID == leaseID && inv.PeriodStart.Equal(periodStart) && inv.Status != StatusCancelled {
			return inv, true, nil
		}
	}
	return Invoice{}, false, nil
}

func (r *memoryBillingRepo) GetDraft(_ context.Context, leaseID int64, month string) (Draft, bool, error) {
	draft, ok := r.drafts[draftKey(leaseID, month)]
	return draft, ok, nil
}

func (r *memoryBillingRepo) SaveDraft(_ context.Context, draft Draft) error {
	r.drafts[draftKey(draft.LeaseID, draft.Month)] = draft
	return nil
}

func (r *memoryBillingRepo) ListRecurringCharges(_ context.Context, leaseID int64) ([]RecurringCharge, error) {
	return r.charges[leaseID], nil
}

func (r *memoryBillingRepo) ListAdjustments(_ context.Context, invoiceID int64) ([]Adjustment, error) {
	var out []Adjustment
	for _, adj := range r.adjustments {
		if adj.InvoiceID == invoiceID {
			out = append(out, adj)
		}
	}
	return out, nil
}

func (r *memoryBillingRepo) ListInvoicesByStatus(_ context.Context, statuses ...InvoiceStatus) ([]Invoice, error) {
	var out []Invoice
	for _, inv := range r.invoices {
		for _, s := range statuses {
			if inv.Status == s {
				out = append(out, inv)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *memoryBillingRepo) SumAdjustments(context.Context) (decimal.Decimal, error) {
	return NetAdjustments(r.adjustments), nil
}

func (r *memoryBillingRepo) NextInvoiceSequence(context.Context) (int64, error) {
	r.seq++
	return r.seq, nil
}

func (r *memoryBillingRepo) InsertInvoice(_ context.Context, inv Invoice) (int64, error) {
	r.nextID++
	inv.ID = r.nextID
	r.invoices[inv.ID] = inv
	return inv.ID, nil
}

func (r *memoryBillingRepo) ReplaceInvoiceLines(_ context.Context, invoiceID int64, lines []LineItem) error {
	inv := r.invoices[invoiceID]
	r.invoices[invoiceID] = HydrateInvoice(inv, lines)
	return nil
}

func (r *memoryBillingRepo) UpdateInvoice(_ context.Context, inv Invoice) error {
	if r.failUpdate {
		return errors.New("update failed")
	}
	if _, ok := r.invoices[inv.ID]; !ok {
		return shared.ErrNotFound
	}
	r.invoices[inv.ID] = inv
	return nil
}

func (r *memoryBillingRepo) InsertAdjustment(_ context.Context, adj Adjustment) error {
	r.adjustments = append(r.adjustments, adj)
	return nil
}

func (r *memoryBillingRepo) DeleteDraft(_ context.Context, leaseID int64, month string) error {
	delete(r.drafts, draftKey(leaseID, month))
	return nil
}

func (r *memoryBillingRepo) ListReceivableDueBefore(_ context.Context, cutoff time.Time) ([]Invoice, error) {
	var out []Invoice
	for _, inv := range r.invoices {
		if (inv.Status == StatusSent || inv.Status == StatusPartiallyPaid) && inv.DueAt.Before(cutoff) {
			out = append(out, inv)
		}
	}
	return out, nil
}

type recordingAudit struct {
	actions []string
}

func (a *recordingAudit) Record(_ context.Context, log shared.AuditLog) error {
	a.actions = append(a.actions, log.Action)
	return nil
}

type fixedCredit struct {
	repo   *memoryBillingRepo
	amount decimal.Decimal
}

func (c *fixedCredit) DrawCredit(_ context.Context, _ int64, invoiceID int64) (decimal.Decimal, error) {
	inv := c.repo.invoices[invoiceID]
	if err := inv.RecordPayment(c.amount); err != nil {
		return decimal.Zero, err
	}
	c.repo.invoices[invoiceID] = inv
	return c.amount, nil
}

var clock = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

func newTestService(t *testing.T) (*Service, *memoryBillingRepo, *recordingAudit) {
	t.Helper()
	repo := newMemoryBillingRepo()
	repo.leases[1] = LeaseContext{LeaseID: 1, TenantID: 10, PropertyID: 100, MonthlyRent: d("2500"), Active: true}
	repo.leases[2] = LeaseContext{LeaseID: 2, TenantID: 20, PropertyID: 200, Commercial: true, MonthlyRent: d("10000"), Active: true}
	audit := &recordingAudit{}
	svc := NewService(repo, Config{Currency: "KES", CommercialTaxRate: d("16"), DueDays: 5}, Deps{Audit: audit})
	svc.WithNow(func() time.Time { return clock })
	return svc, repo, audit
}

func createSent(t *testing.T, svc *Service, leaseID int64, month string, lines ...LineItem) Invoice {
	t.Helper()
	ctx := context.Background()
	inv, err := svc.CreateInvoiceFromDraft(ctx, Draft{LeaseID: leaseID, Month: month, Lines: lines})
	require.NoError(t, err)
	sent, err := svc.SendInvoice(ctx, inv.ID)
	require.NoError(t, err)
	return sent
}

func TestNavigateToMonthSeedsDraft(t *testing.T) {
	svc, repo, _ := newTestService(t)
	ctx := context.Background()

	view, err := svc.NavigateToMonth(ctx, 1, "2024-03")
	require.NoError(t, err)
	require.False(t, view.HasInvoice)
	require.Len(t, view.InvoiceData.Lines, 1)
	require.Equal(t, "Monthly rent", view.InvoiceData.Lines[0].Description)

	repo.charges[1] = []RecurringCharge{{LeaseID: 1, Description: "Rent", Category: "rent", Amount: d("2500")}, {LeaseID: 1, Description: "Service charge", Category: "service", Amount: d("300")}}
	view, err = svc.NavigateToMonth(ctx, 1, "2024-03")
	require.NoError(t, err)
	require.Len(t, view.InvoiceData.Lines, 2)

	saved, err := svc.SaveDraft(ctx, Draft{LeaseID: 1, Month: "2024-03", Lines: []LineItem{line("Rent", "1", "2400")}})
	require.NoError(t, err)
	require.Equal(t, clock, saved.SavedAt)
	view, err = svc.NavigateToMonth(ctx, 1, "2024-03")
	require.NoError(t, err)
	require.Equal(t, "2400", view.InvoiceData.Lines[0].UnitPrice.String())

	_, err = svc.NavigateToMonth(ctx, 1, "March")
	require.ErrorIs(t, err, shared.ErrValidation)
	_, err = svc.NavigateToMonth(ctx, 99, "2024-03")
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestCreateInvoiceFromDraftNumbersAndClearsDraft(t *testing.T) {
	svc, repo, audit := newTestService(t)
	ctx := context.Background()
	_, err := svc.SaveDraft(ctx, Draft{LeaseID: 2, Month: "2024-03", Lines: []LineItem{line("Office rent", "1", "10000")}})
	require.NoError(t, err)

	inv, err := svc.CreateInvoiceFromDraft(ctx, Draft{LeaseID: 2, Month: "2024-03", Lines: []LineItem{line("Office rent", "1", "10000")}})
	require.NoError(t, err)
	require.Equal(t, StatusCreated, inv.Status)
	require.Equal(t, "INV-202403-000001", inv.Number)
	require.Equal(t, "11600.00", inv.TotalAmount().StringFixed(2))
	require.Empty(t, repo.drafts)
	require.Equal(t, []string{"invoice.create"}, audit.actions)

	view, err := svc.NavigateToMonth(ctx, 2, "2024-03")
	require.NoError(t, err)
	require.True(t, view.HasInvoice)
	require.Equal(t, inv.ID, view.Invoice.ID)

	_, err = svc.CreateInvoiceFromDraft(ctx, Draft{LeaseID: 2, Month: "2024-03", Lines: []LineItem{line("Office rent", "1", "10000")}})
	require.ErrorIs(t, err, shared.ErrInvalidState)
	_, err = svc.SaveDraft(ctx, Draft{LeaseID: 2, Month: "2024-03"})
	require.ErrorIs(t, err, shared.ErrInvalidState)
}

func TestInactiveLeaseCannotBeInvoiced(t *testing.T) {
	svc, repo, _ := newTestService(t)
	repo.leases[3] = LeaseContext{LeaseID: 3, TenantID: 30, Active: false}
	_, err := svc.CreateInvoiceFromDraft(context.Background(), Draft{LeaseID: 3, Month: "2024-03", Lines: []LineItem{line("Rent", "1", "10")}})
	require.ErrorIs(t, err, shared.ErrInvalidState)
}

func TestUpdateLinesOnlyBeforeSend(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	inv, err := svc.CreateInvoiceFromDraft(ctx, Draft{LeaseID: 1, Month: "2024-03", Lines: []LineItem{line("Rent", "1", "2500")}})
	require.NoError(t, err)

	updated, err := svc.UpdateLines(ctx, inv.ID, []LineItem{line("Rent", "1", "2500"), line("Water", "1", "120")})
	require.NoError(t, err)
	require.Equal(t, "2620", updated.TotalAmount().String())

	_, err = svc.SendInvoice(ctx, inv.ID)
	require.NoError(t, err)
	_, err = svc.UpdateLines(ctx, inv.ID, []LineItem{line("Rent", "1", "1")})
	require.ErrorIs(t, err, shared.ErrInvalidState)

	stored, err := svc.GetInvoice(ctx, inv.ID)
	require.NoError(t, err)
	require.Len(t, stored.Lines(), 2)
}

func TestSendInvoiceDrawsCredit(t *testing.T) {
	svc, repo, _ := newTestService(t)
	credit := &fixedCredit{repo: repo, amount: d("500")}
	svc.deps.Credit = credit

	sent := createSent(t, svc, 1, "2024-03", line("Rent", "1", "2500"))
	require.Equal(t, StatusPartiallyPaid, sent.Status)
	require.Equal(t, "2000", sent.BalanceDue().String())
	require.NotNil(t, sent.SentAt)
}

type busyCredit struct{ calls int }

func (c *busyCredit) DrawCredit(context.Context, int64, int64) (decimal.Decimal, error) {
	c.calls++
	return decimal.Zero, shared.ErrLockHeld
}

func TestSendInvoiceSucceedsWhenCreditDrawIsBusy(t *testing.T) {
	svc, _, audit := newTestService(t)
	credit := &busyCredit{}
	svc.deps.Credit = credit

	sent := createSent(t, svc, 1, "2024-03", line("Rent", "1", "2500"))
	require.Equal(t, 1, credit.calls)
	require.Equal(t, StatusSent, sent.Status)
	require.Equal(t, "2500", sent.BalanceDue().String())
	require.Contains(t, audit.actions, "invoice.send")
}

func TestCreateAdjustmentCommitsAndAudits(t *testing.T) {
	svc, repo, audit := newTestService(t)
	ctx := shared.ContextWithActor(context.Background(), 77)
	sent := createSent(t, svc, 1, "2024-03", line("Rent", "1", "2500"))

	req := request(AdjustmentDiscount, AmountFixed, "500")
	req.InvoiceID = sent.ID
	preview, err := svc.PreviewAdjustment(ctx, req)
	require.NoError(t, err)
	require.Equal(t, "2000", preview.NewTotal.String())
	require.Empty(t, repo.adjustments)

	result, err := svc.CreateAdjustment(ctx, preview, "")
	require.NoError(t, err)
	require.Equal(t, "2000", result.Invoice.TotalAmount().String())
	require.Equal(t, int64(77), result.Adjustment.CreatedBy)
	require.Len(t, repo.adjustments, 1)
	require.Contains(t, audit.actions, "adjustment.create")

	listed, err := svc.ListAdjustments(ctx, sent.ID)
	require.NoError(t, err)
	require.Len(t, listed, 1)
}

func TestCreateAdjustmentRejectsNegativeTotalWithoutWrites(t *testing.T) {
	svc, repo, _ := newTestService(t)
	ctx := context.Background()
	sent := createSent(t, svc, 1, "2024-03", line("Rent", "1", "300"))

	req := request(AdjustmentWaiver, AmountFixed, "500")
	req.InvoiceID = sent.ID
	_, err := svc.CreateAdjustment(ctx, Proposal{Request: req, PreviousTotal: d("300"), Delta: d("-500")}, "")
	var verr *shared.ValidationError
	require.ErrorAs(t, err, &verr)
	require.Equal(t, []string{MsgNegativeTotal}, verr.Problems)
	require.Empty(t, repo.adjustments)

	stored, err := svc.GetInvoice(ctx, sent.ID)
	require.NoError(t, err)
	require.Equal(t, "300", stored.TotalAmount().String())
}

func TestCreateAdjustmentRollsBackOnStorageFailure(t *testing.T) {
	svc, repo, _ := newTestService(t)
	ctx := context.Background()
	sent := createSent(t, svc, 1, "2024-03", line("Rent", "1", "2500"))

	repo.failUpdate = true
	req := request(AdjustmentCharge, AmountFixed, "100")
	req.InvoiceID = sent.ID
	reviewed, err := svc.PreviewAdjustment(ctx, req)
	require.NoError(t, err)
	_, err = svc.CreateAdjustment(ctx, reviewed, "")
	require.Error(t, err)
	require.Empty(t, repo.adjustments)

	_, err = svc.CreateAdjustment(ctx, Proposal{}, "")
	require.ErrorIs(t, err, shared.ErrInvalidState)
}

func TestCreateAdjustmentRejectsStaleReview(t *testing.T) {
	svc, repo, _ := newTestService(t)
	ctx := context.Background()
	sent := createSent(t, svc, 1, "2024-03", line("Rent", "1", "1000"))

	discount := request(AdjustmentDiscount, AmountPercentage, "10")
	discount.InvoiceID = sent.ID
	reviewed, err := svc.PreviewAdjustment(ctx, discount)
	require.NoError(t, err)
	require.Equal(t, "-100", reviewed.Delta.String())
	require.Equal(t, "900", reviewed.NewTotal.String())

	charge := request(AdjustmentCharge, AmountFixed, "1000")
	charge.InvoiceID = sent.ID
	chargeReview, err := svc.PreviewAdjustment(ctx, charge)
	require.NoError(t, err)
	_, err = svc.CreateAdjustment(ctx, chargeReview, "")
	require.NoError(t, err)

	_, err = svc.CreateAdjustment(ctx, reviewed, "")
	var serr *shared.StateError
	require.ErrorAs(t, err, &serr)
	require.Contains(t, serr.Reason, "review it again")
	require.Len(t, repo.adjustments, 1)

	stored, err := svc.GetInvoice(ctx, sent.ID)
	require.NoError(t, err)
	require.Equal(t, "2000", stored.TotalAmount().String())

	fresh, err := svc.PreviewAdjustment(ctx, discount)
	require.NoError(t, err)
	require.Equal(t, "-200", fresh.Delta.String())
	result, err := svc.CreateAdjustment(ctx, fresh, "")
	require.NoError(t, err)
	require.Equal(t, "1800", result.Invoice.TotalAmount().String())
}

func TestCancelInvoice(t *testing.T) {
	svc, _, audit := newTestService(t)
	ctx := context.Background()
	inv, err := svc.CreateInvoiceFromDraft(ctx, Draft{LeaseID: 1, Month: "2024-04", Lines: []LineItem{line("Rent", "1", "2500")}})
	require.NoError(t, err)

	cancelled, err := svc.CancelInvoice(ctx, inv.ID, "  raised twice ")
	require.NoError(t, err)
	require.Equal(t, StatusCancelled, cancelled.Status)
	require.Equal(t, "raised twice", cancelled.CancelReason)
	require.Contains(t, audit.actions, "invoice.cancel")

	again, err := svc.CreateInvoiceFromDraft(ctx, Draft{LeaseID: 1, Month: "2024-04", Lines: []LineItem{line("Rent", "1", "2500")}})
	require.NoError(t, err)
	require.NotEqual(t, inv.ID, again.ID)
}

func TestSweepOverdueAndSummary(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	first := createSent(t, svc, 1, "2024-03", line("Rent", "1", "2500"))
	createSent(t, svc, 2, "2024-03", line("Office rent", "1", "10000"))

	svc.WithNow(func() time.Time { return clock.AddDate(0, 0, 10) })
	marked, err := svc.SweepOverdue(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, marked)

	stored, err := svc.GetInvoice(ctx, first.ID)
	require.NoError(t, err)
	require.Equal(t, StatusOverdue, stored.Status)

	summary, err := svc.FinancialSummary(ctx)
	require.NoError(t, err)
	require.Equal(t, "KES", summary.Currency)
	require.Equal(t, 2, summary.OverdueCount)
	require.Equal(t, "14100.00", summary.TotalInvoiced.StringFixed(2))
	require.Equal(t, "14100.00", summary.TotalOutstanding.StringFixed(2))
	require.True(t, summary.TotalCollected.IsZero())

	marked, err = svc.SweepOverdue(ctx)
	require.NoError(t, err)
	require.Zero(t, marked)
}

func TestGetRecurringCharges(t *testing.T) {
	svc, repo, _ := newTestService(t)
	ctx := context.Background()
	repo.charges[1] = []RecurringCharge{{LeaseID: 1, Description: "Rent", Category: "rent", Amount: d("2500")}}

	charges, err := svc.GetRecurringCharges(ctx, 1)
	require.NoError(t, err)
	require.Len(t, charges, 1)
	require.Equal(t, "Rent", charges[0].Description)

	_, err = svc.GetRecurringCharges(ctx, 99)
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestCreateInvoiceRejectsUnstorablePrecision(t *testing.T) {
	svc, repo, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.CreateInvoiceFromDraft(ctx, Draft{LeaseID: 1, Month: "2024-05", Lines: []LineItem{line("Water", "3", "33.333")}})
	require.ErrorIs(t, err, shared.ErrValidation)
	require.Empty(t, repo.invoices)

	inv, err := svc.CreateInvoiceFromDraft(ctx, Draft{LeaseID: 1, Month: "2024-05", Lines: []LineItem{line("Water", "3", "33.33")}})
	require.NoError(t, err)
	stored, err := svc.GetInvoice(ctx, inv.ID)
	require.NoError(t, err)
	require.True(t, inv.TotalAmount().Equal(stored.TotalAmount()))
	require.Equal(t, "99.99", stored.TotalAmount().StringFixed(2))
}
