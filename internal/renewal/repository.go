package renewal

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/exceva/property-ledger/internal/platform/db"
	"github.com/exceva/property-ledger/internal/shared"
)

// Repository provides PostgreSQL backed persistence for renewals.
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
		return errors.New("renewal repository not initialised")
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

const renewalColumns = `id, lease_id, tenant_id, current_rent, new_start_date, new_end_date, new_monthly_rent,
	escalation_percentage, status, tenant_acceptance, landlord_acceptance, notes, last_notified_at,
	last_notified_via, created_by, created_at, updated_at`

func scanRenewal(row pgx.Row) (LeaseRenewal, error) {
	var (
		r         LeaseRenewal
		status    string
		notes     pgtype.Text
		via       pgtype.Text
		createdBy pgtype.Int8
	)
	err := row.Scan(&r.ID, &r.LeaseID, &r.TenantID, &r.CurrentRent, &r.NewStartDate, &r.NewEndDate, &r.NewMonthlyRent,
		&r.EscalationPercentage, &status, &r.TenantAcceptance, &r.LandlordAcceptance, &notes, &r.LastNotifiedAt,
		&via, &createdBy, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return LeaseRenewal{}, err
	}
	r.Status = Status(status)
	r.Notes = notes.String
	r.LastNotifiedVia = Method(via.String)
	r.CreatedBy = createdBy.Int64
	return r, nil
}

func loadRenewal(ctx context.Context, q db.Querier, query string, args ...any) (LeaseRenewal, error) {
	r, err := scanRenewal(q.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return LeaseRenewal{}, shared.ErrNotFound
		}
		return LeaseRenewal{}, fmt.Errorf("renewal: load renewal: %w", err)
	}
	return r, nil
}

// GetLeaseTerms loads the lease a renewal extends, with tenant contacts.
func (r *Repository) GetLeaseTerms(ctx context.Context, leaseID int64) (LeaseTerms, error) {
	var (
		lease        LeaseTerms
		status       string
		email, phone pgtype.Text
	)
	err := r.pool.QueryRow(ctx, `SELECT l.id, l.tenant_id, l.monthly_rent, l.start_date, l.end_date, l.status,
	t.name, t.email, t.phone
FROM leases l JOIN tenants t ON t.id = l.tenant_id WHERE l.id=$1`, leaseID).
		Scan(&lease.LeaseID, &lease.TenantID, &lease.MonthlyRent, &lease.StartDate, &lease.EndDate, &status,
			&lease.TenantName, &email, &phone)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return LeaseTerms{}, shared.ErrNotFound
		}
		return LeaseTerms{}, fmt.Errorf("renewal: load lease: %w", err)
	}
	lease.Active = status == "active"
	lease.TenantEmail, lease.TenantPhone = email.String, phone.String
	return lease, nil
}

// GetRenewal loads one renewal.
func (r *Repository) GetRenewal(ctx context.Context, id int64) (LeaseRenewal, error) {
	return loadRenewal(ctx, r.pool, `SELECT `+renewalColumns+` FROM lease_renewals WHERE id=$1`, id)
}

// ListRenewals returns a lease's renewals, newest first.
func (r *Repository) ListRenewals(ctx context.Context, leaseID int64) ([]LeaseRenewal, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+renewalColumns+` FROM lease_renewals WHERE lease_id=$1 ORDER BY created_at DESC, id DESC`, leaseID)
	if err != nil {
		return nil, fmt.Errorf("renewal: list renewals: %w", err)
	}
	defer rows.Close()
	var out []LeaseRenewal
	for rows.Next() {
		item, err := scanRenewal(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	return out, rows.Err()
}

func (r *txRepository) FindActiveRenewal(ctx context.Context, leaseID int64) (LeaseRenewal, bool, error) {
	item, err := loadRenewal(ctx, r.tx, `SELECT `+renewalColumns+` FROM lease_renewals
WHERE lease_id=$1 AND status IN ('PENDING','APPROVED') ORDER BY id LIMIT 1 FOR UPDATE`, leaseID)
	if errors.Is(err, shared.ErrNotFound) {
		return LeaseRenewal{}, false, nil
	}
	if err != nil {
		return LeaseRenewal{}, false, err
	}
	return item, true, nil
}

func (r *txRepository) InsertRenewal(ctx context.Context, item LeaseRenewal) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO lease_renewals (lease_id, tenant_id, current_rent, new_start_date, new_end_date,
	new_monthly_rent, escalation_percentage, status, tenant_acceptance, landlord_acceptance, notes, created_by, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$13) RETURNING id`,
		item.LeaseID, item.TenantID, item.CurrentRent, item.NewStartDate, item.NewEndDate, item.NewMonthlyRent,
		item.EscalationPercentage, string(item.Status), item.TenantAcceptance, item.LandlordAcceptance,
		pgtype.Text{String: item.Notes, Valid: item.Notes != ""},
		pgtype.Int8{Int64: item.CreatedBy, Valid: item.CreatedBy != 0}, item.CreatedAt).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("renewal: insert renewal: %w", err)
	}
	return id, nil
}

func (r *txRepository) GetRenewalForUpdate(ctx context.Context, id int64) (LeaseRenewal, error) {
	return loadRenewal(ctx, r.tx, `SELECT `+renewalColumns+` FROM lease_renewals WHERE id=$1 FOR UPDATE`, id)
}

func (r *txRepository) UpdateRenewal(ctx context.Context, item LeaseRenewal) error {
	tag, err := r.tx.Exec(ctx, `UPDATE lease_renewals SET status=$2, tenant_acceptance=$3, landlord_acceptance=$4,
	last_notified_at=$5, last_notified_via=$6, updated_at=$7 WHERE id=$1`,
		item.ID, string(item.Status), item.TenantAcceptance, item.LandlordAcceptance, item.LastNotifiedAt,
		pgtype.Text{String: string(item.LastNotifiedVia), Valid: item.LastNotifiedVia != ""}, item.UpdatedAt)
	if err != nil {
		return fmt.Errorf("renewal: update renewal: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}
