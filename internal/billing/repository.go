package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/exceva/property-ledger/internal/platform/db"
	"github.com/exceva/property-ledger/internal/shared"
)

// Repository provides PostgreSQL backed persistence for invoices.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type txRepository struct {
	tx pgx.Tx
}

// WithTx executes fn within a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil || r.pool == nil {
		return errors.New("billing repository not initialised")
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

const invoiceColumns = `i.id, i.number, i.lease_id, i.tenant_id, i.property_id, i.commercial, i.tax_rate, i.currency,
	i.period_start, i.period_end, i.due_at, i.status, i.adjustment_net, i.paid_amount, i.sent_at, i.cancelled_at,
	i.cancel_reason, i.created_by, i.created_at, i.updated_at`

func scanInvoice(row pgx.Row) (Invoice, error) {
	var (
		inv       Invoice
		number    pgtype.Text
		reason    pgtype.Text
		createdBy pgtype.Int8
		status    string
	)
	err := row.Scan(&inv.ID, &number, &inv.LeaseID, &inv.TenantID, &inv.PropertyID, &inv.Commercial, &inv.TaxRate,
		&inv.Currency, &inv.PeriodStart, &inv.PeriodEnd, &inv.DueAt, &status, &inv.AdjustmentNet, &inv.PaidAmount,
		&inv.SentAt, &inv.CancelledAt, &reason, &createdBy, &inv.CreatedAt, &inv.UpdatedAt)
	if err != nil {
		return Invoice{}, err
	}
	inv.Number = number.String
	inv.CancelReason = reason.String
	inv.CreatedBy = createdBy.Int64
	inv.Status = InvoiceStatus(status)
	return inv, nil
}

func loadInvoice(ctx context.Context, q db.Querier, query string, args ...any) (Invoice, error) {
	inv, err := scanInvoice(q.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Invoice{}, shared.ErrNotFound
		}
		return Invoice{}, fmt.Errorf("billing: load invoice: %w", err)
	}
	lines, err := loadLines(ctx, q, []int64{inv.ID})
	if err != nil {
		return Invoice{}, err
	}
	return HydrateInvoice(inv, lines[inv.ID]), nil
}

func loadLines(ctx context.Context, q db.Querier, invoiceIDs []int64) (map[int64][]LineItem, error) {
	out := make(map[int64][]LineItem, len(invoiceIDs))
	if len(invoiceIDs) == 0 {
		return out, nil
	}
	rows, err := q.Query(ctx, `SELECT invoice_id, description, category, quantity, unit_price
FROM invoice_lines WHERE invoice_id = ANY($1) ORDER BY invoice_id, position`, invoiceIDs)
	if err != nil {
		return nil, fmt.Errorf("billing: load lines: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			invoiceID int64
			line      LineItem
		)
		if err := rows.Scan(&invoiceID, &line.Description, &line.Category, &line.Quantity, &line.UnitPrice); err != nil {
			return nil, err
		}
		out[invoiceID] = append(out[invoiceID], line)
	}
	return out, rows.Err()
}

func listInvoices(ctx context.Context, q db.Querier, query string, args ...any) ([]Invoice, error) {
	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("billing: list invoices: %w", err)
	}
	var invoices []Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		invoices = append(invoices, inv)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	ids := make([]int64, len(invoices))
	for i, inv := range invoices {
		ids[i] = inv.ID
	}
	lines, err := loadLines(ctx, q, ids)
	if err != nil {
		return nil, err
	}
	for i := range invoices {
		invoices[i] = HydrateInvoice(invoices[i], lines[invoices[i].ID])
	}
	return invoices, nil
}

func findInvoiceForMonth(ctx context.Context, q db.Querier, leaseID int64, periodStart time.Time) (Invoice, bool, error) {
	inv, err := loadInvoice(ctx, q, `SELECT `+invoiceColumns+` FROM invoices i
WHERE i.lease_id=$1 AND i.period_start=$2 AND i.status <> 'CANCELLED'`, leaseID, periodStart)
	if errors.Is(err, shared.ErrNotFound) {
		return Invoice{}, false, nil
	}
	if err != nil {
		return Invoice{}, false, err
	}
	return inv, true, nil
}

// GetLeaseContext loads the lease facts invoices are built from.
func (r *Repository) GetLeaseContext(ctx context.Context, leaseID int64) (LeaseContext, error) {
	var lease LeaseContext
	var status string
	err := r.pool.QueryRow(ctx, `SELECT l.id, l.tenant_id, l.property_id, p.commercial, l.monthly_rent, l.status
FROM leases l JOIN properties p ON p.id = l.property_id WHERE l.id=$1`, leaseID).
		Scan(&lease.LeaseID, &lease.TenantID, &lease.PropertyID, &lease.Commercial, &lease.MonthlyRent, &status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return LeaseContext{}, shared.ErrNotFound
		}
		return LeaseContext{}, fmt.Errorf("billing: load lease: %w", err)
	}
	lease.Active = status == "active"
	return lease, nil
}

// GetInvoice loads an invoice with its line items.
func (r *Repository) GetInvoice(ctx context.Context, id int64) (Invoice, error) {
	return loadInvoice(ctx, r.pool, `SELECT `+invoiceColumns+` FROM invoices i WHERE i.id=$1`, id)
}

// FindInvoiceForMonth returns the live invoice of a lease month, if any.
func (r *Repository) FindInvoiceForMonth(ctx context.Context, leaseID int64, periodStart time.Time) (Invoice, bool, error) {
	return findInvoiceForMonth(ctx, r.pool, leaseID, periodStart)
}

// GetDraft loads the saved draft of a lease month.
func (r *Repository) GetDraft(ctx context.Context, leaseID int64, month string) (Draft, bool, error) {
	var (
		draft Draft
		raw   []byte
	)
	err := r.pool.QueryRow(ctx, `SELECT lease_id, month, lines, saved_at FROM invoice_drafts WHERE lease_id=$1 AND month=$2`, leaseID, month).
		Scan(&draft.LeaseID, &draft.Month, &raw, &draft.SavedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Draft{}, false, nil
		}
		return Draft{}, false, fmt.Errorf("billing: load draft: %w", err)
	}
	if err := json.Unmarshal(raw, &draft.Lines); err != nil {
		return Draft{}, false, fmt.Errorf("billing: decode draft lines: %w", err)
	}
	return draft, true, nil
}

// SaveDraft upserts a draft.
func (r *Repository) SaveDraft(ctx context.Context, draft Draft) error {
	raw, err := json.Marshal(draft.Lines)
	if err != nil {
		return err
	}
	_, err = r.pool.Exec(ctx, `INSERT INTO invoice_drafts (lease_id, month, lines, saved_at) VALUES ($1,$2,$3,$4)
ON CONFLICT (lease_id, month) DO UPDATE SET lines=EXCLUDED.lines, saved_at=EXCLUDED.saved_at`, draft.LeaseID, draft.Month, raw, draft.SavedAt)
	if err != nil {
		return fmt.Errorf("billing: save draft: %w", err)
	}
	return nil
}

// ListRecurringCharges returns the active recurring charges of a lease.
func (r *Repository) ListRecurringCharges(ctx context.Context, leaseID int64) ([]RecurringCharge, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, lease_id, description, category, amount FROM recurring_charges
WHERE lease_id=$1 AND active ORDER BY id`, leaseID)
	if err != nil {
		return nil, fmt.Errorf("billing: list recurring charges: %w", err)
	}
	defer rows.Close()
	charges := []RecurringCharge{}
	for rows.Next() {
		var c RecurringCharge
		if err := rows.Scan(&c.ID, &c.LeaseID, &c.Description, &c.Category, &c.Amount); err != nil {
			return nil, err
		}
		charges = append(charges, c)
	}
	return charges, rows.Err()
}

// ListAdjustments returns committed adjustments oldest first.
func (r *Repository) ListAdjustments(ctx context.Context, invoiceID int64) ([]Adjustment, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, invoice_id, type, amount_type, input_value, delta, previous_total, new_total,
reason, COALESCE(notes, ''), effective_date, COALESCE(created_by, 0), created_at
FROM invoice_adjustments WHERE invoice_id=$1 ORDER BY created_at, id`, invoiceID)
	if err != nil {
		return nil, fmt.Errorf("billing: list adjustments: %w", err)
	}
	defer rows.Close()
	adjustments := []Adjustment{}
	for rows.Next() {
		var (
			a          Adjustment
			kind       string
			amountType string
		)
		if err := rows.Scan(&a.ID, &a.InvoiceID, &kind, &amountType, &a.InputValue, &a.Delta, &a.PreviousTotal,
			&a.NewTotal, &a.Reason, &a.Notes, &a.EffectiveDate, &a.CreatedBy, &a.CreatedAt); err != nil {
			return nil, err
		}
		a.Type = AdjustmentType(kind)
		a.AmountType = AmountType(amountType)
		adjustments = append(adjustments, a)
	}
	return adjustments, rows.Err()
}

// ListInvoicesByStatus returns invoices in any of the given statuses.
func (r *Repository) ListInvoicesByStatus(ctx context.Context, statuses ...InvoiceStatus) ([]Invoice, error) {
	names := make([]string, len(statuses))
	for i, s := range statuses {
		names[i] = string(s)
	}
	return listInvoices(ctx, r.pool, `SELECT `+invoiceColumns+` FROM invoices i WHERE i.status = ANY($1) ORDER BY i.id`, names)
}

// SumAdjustments returns the net of all committed adjustments.
func (r *Repository) SumAdjustments(ctx context.Context) (decimal.Decimal, error) {
	var total decimal.Decimal
	if err := r.pool.QueryRow(ctx, `SELECT COALESCE(SUM(delta), 0) FROM invoice_adjustments`).Scan(&total); err != nil {
		return decimal.Zero, fmt.Errorf("billing: sum adjustments: %w", err)
	}
	return total, nil
}

func (r *txRepository) GetInvoiceForUpdate(ctx context.Context, id int64) (Invoice, error) {
	return loadInvoice(ctx, r.tx, `SELECT `+invoiceColumns+` FROM invoices i WHERE i.id=$1 FOR UPDATE`, id)
}

func (r *txRepository) FindInvoiceForMonth(ctx context.Context, leaseID int64, periodStart time.Time) (Invoice, bool, error) {
	return findInvoiceForMonth(ctx, r.tx, leaseID, periodStart)
}

func (r *txRepository) NextInvoiceSequence(ctx context.Context) (int64, error) {
	var seq int64
	if err := r.tx.QueryRow(ctx, `SELECT nextval('invoice_number_seq')`).Scan(&seq); err != nil {
		return 0, fmt.Errorf("billing: next invoice number: %w", err)
	}
	return seq, nil
}

func (r *txRepository) InsertInvoice(ctx context.Context, inv Invoice) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO invoices (number, lease_id, tenant_id, property_id, commercial, tax_rate, currency,
period_start, period_end, due_at, status, adjustment_net, paid_amount, created_by, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16) RETURNING id`,
		inv.Number, inv.LeaseID, inv.TenantID, inv.PropertyID, inv.Commercial, inv.TaxRate, inv.Currency,
		inv.PeriodStart, inv.PeriodEnd, inv.DueAt, string(inv.Status), inv.AdjustmentNet, inv.PaidAmount,
		nullInt(inv.CreatedBy), inv.CreatedAt, inv.UpdatedAt).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("billing: insert invoice: %w", err)
	}
	if err := r.ReplaceInvoiceLines(ctx, id, inv.Lines()); err != nil {
		return 0, err
	}
	return id, nil
}

func (r *txRepository) ReplaceInvoiceLines(ctx context.Context, invoiceID int64, lines []LineItem) error {
	if _, err := r.tx.Exec(ctx, `DELETE FROM invoice_lines WHERE invoice_id=$1`, invoiceID); err != nil {
		return fmt.Errorf("billing: clear lines: %w", err)
	}
	for i, line := range lines {
		if _, err := r.tx.Exec(ctx, `INSERT INTO invoice_lines (invoice_id, position, description, category, quantity, unit_price)
VALUES ($1,$2,$3,$4,$5,$6)`, invoiceID, i, line.Description, line.Category, line.Quantity, line.UnitPrice); err != nil {
			return fmt.Errorf("billing: insert line: %w", err)
		}
	}
	return nil
}

func (r *txRepository) UpdateInvoice(ctx context.Context, inv Invoice) error {
	tag, err := r.tx.Exec(ctx, `UPDATE invoices SET number=$2, status=$3, adjustment_net=$4, paid_amount=$5, sent_at=$6,
cancelled_at=$7, cancel_reason=$8, updated_at=$9 WHERE id=$1`,
		inv.ID, inv.Number, string(inv.Status), inv.AdjustmentNet, inv.PaidAmount, inv.SentAt, inv.CancelledAt,
		nullText(inv.CancelReason), inv.UpdatedAt)
	if err != nil {
		return fmt.Errorf("billing: update invoice: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (r *txRepository) InsertAdjustment(ctx context.Context, adj Adjustment) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO invoice_adjustments (id, invoice_id, type, amount_type, input_value, delta,
previous_total, new_total, reason, notes, effective_date, created_by, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`,
		adj.ID, adj.InvoiceID, string(adj.Type), string(adj.AmountType), adj.InputValue, adj.Delta, adj.PreviousTotal,
		adj.NewTotal, adj.Reason, nullText(adj.Notes), adj.EffectiveDate, nullInt(adj.CreatedBy), adj.CreatedAt)
	if err != nil {
		return fmt.Errorf("billing: insert adjustment: %w", err)
	}
	return nil
}

func (r *txRepository) DeleteDraft(ctx context.Context, leaseID int64, month string) error {
	_, err := r.tx.Exec(ctx, `DELETE FROM invoice_drafts WHERE lease_id=$1 AND month=$2`, leaseID, month)
	return err
}

func (r *txRepository) ListReceivableDueBefore(ctx context.Context, cutoff time.Time) ([]Invoice, error) {
	return listInvoices(ctx, r.tx, `SELECT `+invoiceColumns+` FROM invoices i
WHERE i.status IN ('SENT','PARTIALLY_PAID') AND i.due_at < $1 ORDER BY i.id FOR UPDATE`, cutoff)
}

func nullInt(v int64) pgtype.Int8 {
	return pgtype.Int8{Int64: v, Valid: v != 0}
}

func nullText(v string) pgtype.Text {
	return pgtype.Text{String: v, Valid: v != ""}
}

// SelectInvoices loads invoices matching clause, which continues
// "SELECT ... FROM invoices i". Other ledger repositories use it so invoices
// are always hydrated the same way.
func SelectInvoices(ctx context.Context, q db.Querier, clause string, args ...any) ([]Invoice, error) {
	return listInvoices(ctx, q, `SELECT `+invoiceColumns+` FROM invoices i `+clause, args...)
}
