package payments

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/exceva/property-ledger/internal/billing"
	"github.com/exceva/property-ledger/internal/platform/db"
	"github.com/exceva/property-ledger/internal/shared"
)

// Repository provides PostgreSQL backed persistence for payments and credit.
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
		return errors.New("payments repository not initialised")
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

// TenantExists reports whether the tenant is known.
func (r *Repository) TenantExists(ctx context.Context, tenantID int64) (bool, error) {
	var exists bool
	if err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM tenants WHERE id=$1)`, tenantID).Scan(&exists); err != nil {
		return false, fmt.Errorf("payments: tenant lookup: %w", err)
	}
	return exists, nil
}

func getCredit(ctx context.Context, q db.Querier, tenantID int64, forUpdate bool) (CreditBalance, error) {
	query := `SELECT tenant_id, amount, updated_at FROM tenant_credit_balances WHERE tenant_id=$1`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	credit := CreditBalance{TenantID: tenantID, Amount: decimal.Zero}
	err := q.QueryRow(ctx, query, tenantID).Scan(&credit.TenantID, &credit.Amount, &credit.UpdatedAt)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return CreditBalance{}, fmt.Errorf("payments: load credit: %w", err)
	}
	return credit, nil
}

// GetCreditBalance returns the tenant's credit, zero when none was ever held.
func (r *Repository) GetCreditBalance(ctx context.Context, tenantID int64) (CreditBalance, error) {
	return getCredit(ctx, r.pool, tenantID, false)
}

// TotalCreditHeld sums credit across tenants.
func (r *Repository) TotalCreditHeld(ctx context.Context) (decimal.Decimal, error) {
	var total decimal.Decimal
	if err := r.pool.QueryRow(ctx, `SELECT COALESCE(SUM(amount), 0) FROM tenant_credit_balances`).Scan(&total); err != nil {
		return decimal.Zero, fmt.Errorf("payments: sum credit: %w", err)
	}
	return total, nil
}

// ListTenantsWithCredit returns the tenants holding a positive credit balance.
func (r *Repository) ListTenantsWithCredit(ctx context.Context) ([]int64, error) {
	rows, err := r.pool.Query(ctx, `SELECT tenant_id FROM tenant_credit_balances WHERE amount > 0 ORDER BY tenant_id`)
	if err != nil {
		return nil, fmt.Errorf("payments: list credit holders: %w", err)
	}
	tenants, err := pgx.CollectRows(rows, pgx.RowTo[int64])
	if err != nil {
		return nil, fmt.Errorf("payments: list credit holders: %w", err)
	}
	return tenants, nil
}

// ListPayments returns a tenant's payments newest first.
func (r *Repository) ListPayments(ctx context.Context, tenantID int64) ([]Payment, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, number, tenant_id, amount, method, paid_at, reference, COALESCE(notes, ''),
COALESCE(created_by, 0), created_at FROM payments WHERE tenant_id=$1 ORDER BY paid_at DESC, id DESC`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("payments: list: %w", err)
	}
	defer rows.Close()
	out := []Payment{}
	for rows.Next() {
		var (
			p      Payment
			method string
		)
		if err := rows.Scan(&p.ID, &p.Number, &p.TenantID, &p.Amount, &method, &p.PaidAt, &p.Reference, &p.Notes, &p.CreatedBy, &p.CreatedAt); err != nil {
			return nil, err
		}
		p.Method = Method(method)
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *txRepository) ListOpenInvoicesForUpdate(ctx context.Context, tenantID int64) ([]billing.Invoice, error) {
	return billing.SelectInvoices(ctx, r.tx, `WHERE i.tenant_id=$1 AND i.status IN ('SENT','PARTIALLY_PAID','OVERDUE')
ORDER BY i.period_start, i.due_at, i.id FOR UPDATE`, tenantID)
}

func (r *txRepository) GetInvoiceForUpdate(ctx context.Context, invoiceID int64) (billing.Invoice, error) {
	invoices, err := billing.SelectInvoices(ctx, r.tx, `WHERE i.id=$1 FOR UPDATE`, invoiceID)
	if err != nil {
		return billing.Invoice{}, err
	}
	if len(invoices) == 0 {
		return billing.Invoice{}, shared.ErrNotFound
	}
	return invoices[0], nil
}

func (r *txRepository) UpdateInvoicePayment(ctx context.Context, inv billing.Invoice) error {
	tag, err := r.tx.Exec(ctx, `UPDATE invoices SET paid_amount=$2, status=$3, updated_at=$4 WHERE id=$1`,
		inv.ID, inv.PaidAmount, string(inv.Status), inv.UpdatedAt)
	if err != nil {
		return fmt.Errorf("payments: update invoice: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (r *txRepository) InsertPayment(ctx context.Context, p Payment) (Payment, error) {
	var createdBy pgtype.Int8
	if p.CreatedBy > 0 {
		createdBy = pgtype.Int8{Int64: p.CreatedBy, Valid: true}
	}
	err := r.tx.QueryRow(ctx, `INSERT INTO payments (number, tenant_id, amount, method, paid_at, reference, notes, created_by, created_at)
VALUES ('PAY-' || LPAD(nextval('payment_number_seq')::text, 6, '0'), $1, $2, $3, $4, $5, NULLIF($6, ''), $7, $8)
RETURNING id, number`, p.TenantID, p.Amount, string(p.Method), p.PaidAt, p.Reference, p.Notes, createdBy, p.CreatedAt).
		Scan(&p.ID, &p.Number)
	if err != nil {
		return Payment{}, fmt.Errorf("payments: insert payment: %w", err)
	}
	return p, nil
}

func (r *txRepository) InsertAllocation(ctx context.Context, a Allocation) error {
	var paymentID pgtype.Int8
	if a.PaymentID > 0 {
		paymentID = pgtype.Int8{Int64: a.PaymentID, Valid: true}
	}
	_, err := r.tx.Exec(ctx, `INSERT INTO payment_allocations (payment_id, invoice_id, source, amount, balance_before, balance_after, applied_at)
VALUES ($1,$2,$3,$4,$5,$6,$7)`, paymentID, a.InvoiceID, string(a.Source), a.Amount, a.BalanceBefore, a.BalanceAfter, a.AppliedAt)
	if err != nil {
		return fmt.Errorf("payments: insert allocation: %w", err)
	}
	return nil
}

func (r *txRepository) GetCreditForUpdate(ctx context.Context, tenantID int64) (CreditBalance, error) {
	return getCredit(ctx, r.tx, tenantID, true)
}

func (r *txRepository) SaveCredit(ctx context.Context, c CreditBalance) error {
	if c.Amount.IsNegative() {
		return &shared.StateError{Op: "save credit", Reason: "credit balance cannot be negative"}
	}
	_, err := r.tx.Exec(ctx, `INSERT INTO tenant_credit_balances (tenant_id, amount, updated_at) VALUES ($1,$2,$3)
ON CONFLICT (tenant_id) DO UPDATE SET amount=EXCLUDED.amount, updated_at=EXCLUDED.updated_at`, c.TenantID, c.Amount, c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("payments: save credit: %w", err)
	}
	return nil
}
