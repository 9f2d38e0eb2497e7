package statement

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/exceva/property-ledger/internal/billing"
	"github.com/exceva/property-ledger/internal/shared"
)

// Repository reads statement history from PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// GetHeader loads the lease, tenant, property and company blocks.
func (r *Repository) GetHeader(ctx context.Context, leaseID int64) (Header, error) {
	var (
		h                       Header
		tenantEmail, tenantTel  pgtype.Text
		unit, propertyAddress   pgtype.Text
		companyName, companyAdr pgtype.Text
		companyEmail, companyTl pgtype.Text
	)
	err := r.pool.QueryRow(ctx, `SELECT l.id, l.start_date, l.end_date, l.monthly_rent, l.deposit,
	t.id, t.name, t.email, t.phone,
	p.id, p.name, l.unit, p.address,
	c.name, c.address, c.email, c.phone
FROM leases l
JOIN tenants t ON t.id = l.tenant_id
JOIN properties p ON p.id = l.property_id
LEFT JOIN companies c ON c.id = p.company_id
WHERE l.id=$1`, leaseID).Scan(
		&h.LeaseID, &h.LeaseStart, &h.LeaseEnd, &h.MonthlyRent, &h.Deposit,
		&h.Tenant.ID, &h.Tenant.Name, &tenantEmail, &tenantTel,
		&h.Property.ID, &h.Property.Name, &unit, &propertyAddress,
		&companyName, &companyAdr, &companyEmail, &companyTl,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Header{}, shared.ErrNotFound
		}
		return Header{}, fmt.Errorf("statement: load header: %w", err)
	}
	h.Tenant.Email, h.Tenant.Phone = tenantEmail.String, tenantTel.String
	h.Property.Unit, h.Property.Address = unit.String, propertyAddress.String
	h.Company = Party{Name: companyName.String, Address: companyAdr.String, Email: companyEmail.String, Phone: companyTl.String}
	return h, nil
}

// ListInvoices returns the lease's sent invoices.
func (r *Repository) ListInvoices(ctx context.Context, leaseID int64) ([]billing.Invoice, error) {
	return billing.SelectInvoices(ctx, r.pool, `WHERE i.lease_id=$1 AND i.sent_at IS NOT NULL AND i.status <> 'CANCELLED'
ORDER BY i.sent_at, i.id`, leaseID)
}

// ListAdjustments returns committed adjustments on the lease's invoices.
func (r *Repository) ListAdjustments(ctx context.Context, leaseID int64) ([]billing.Adjustment, error) {
	rows, err := r.pool.Query(ctx, `SELECT a.id, a.invoice_id, a.type, a.amount_type, a.input_value, a.delta, a.previous_total,
	a.new_total, a.reason, a.effective_date, a.created_at
FROM invoice_adjustments a JOIN invoices i ON i.id = a.invoice_id
WHERE i.lease_id=$1 ORDER BY a.effective_date, a.created_at`, leaseID)
	if err != nil {
		return nil, fmt.Errorf("statement: list adjustments: %w", err)
	}
	defer rows.Close()
	var out []billing.Adjustment
	for rows.Next() {
		var (
			a                billing.Adjustment
			kind, amountType string
		)
		if err := rows.Scan(&a.ID, &a.InvoiceID, &kind, &amountType, &a.InputValue, &a.Delta, &a.PreviousTotal,
			&a.NewTotal, &a.Reason, &a.EffectiveDate, &a.CreatedAt); err != nil {
			return nil, err
		}
		a.Type = billing.AdjustmentType(kind)
		a.AmountType = billing.AmountType(amountType)
		out = append(out, a)
	}
	return out, rows.Err()
}

// ListAllocations returns payment and credit applications on the lease's
// invoices.
func (r *Repository) ListAllocations(ctx context.Context, leaseID int64) ([]AllocationRecord, error) {
	rows, err := r.pool.Query(ctx, `SELECT pa.invoice_id, i.number, pa.source, pa.amount, pa.applied_at,
	COALESCE(p.method, ''), COALESCE(p.number, ''), COALESCE(p.reference, '')
FROM payment_allocations pa
JOIN invoices i ON i.id = pa.invoice_id
LEFT JOIN payments p ON p.id = pa.payment_id
WHERE i.lease_id=$1 ORDER BY pa.applied_at, pa.id`, leaseID)
	if err != nil {
		return nil, fmt.Errorf("statement: list allocations: %w", err)
	}
	defer rows.Close()
	var out []AllocationRecord
	for rows.Next() {
		var a AllocationRecord
		if err := rows.Scan(&a.InvoiceID, &a.InvoiceNumber, &a.Source, &a.Amount, &a.AppliedAt, &a.Method, &a.PaymentNumber, &a.PaymentReference); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
