package renewal

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/exceva/property-ledger/internal/shared"
)

func d(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func date(y int, m time.Month, day int) time.Time {
	return time.Date(y, m, day, 0, 0, 0, 0, time.UTC)
}

func activeLease() LeaseTerms {
	return LeaseTerms{
		LeaseID: 1, TenantID: 4, MonthlyRent: d("10000"),
		StartDate: date(2023, 4, 1), EndDate: date(2024, 3, 31), Active: true,
		TenantName: "Amina Njeri", TenantEmail: "amina@example.com",
	}
}

func TestEscalatedRent(t *testing.T) {
	require.Equal(t, "10800", EscalatedRent(d("10000"), d("8")).String())
	require.Equal(t, "2500", EscalatedRent(d("2500"), d("0")).String())
	require.Equal(t, "1289.62", EscalatedRent(d("1234.56"), d("4.46")).String())
}

func TestNewRenewalUsesSuggestionOrOverride(t *testing.T) {
	p := Proposal{LeaseID: 1, NewStartDate: date(2024, 4, 1), NewEndDate: date(2025, 3, 31), EscalationPercentage: d("8")}
	r, err := NewRenewal(activeLease(), p, date(2024, 3, 1))
	require.NoError(t, err)
	require.Equal(t, StatusPending, r.Status)
	require.Equal(t, "10800", r.NewMonthlyRent.String())
	require.Equal(t, "10000", r.CurrentRent.String())

	override := d("10500")
	p.NewMonthlyRent = &override
	r, err = NewRenewal(activeLease(), p, date(2024, 3, 1))
	require.NoError(t, err)
	require.Equal(t, "10500", r.NewMonthlyRent.String())
}

func TestNewRenewalReportsAllProblems(t *testing.T) {
	lease := activeLease()
	lease.Active = false
	zero := decimal.Zero
	_, err := NewRenewal(lease, Proposal{
		LeaseID:              1,
		NewStartDate:         date(2024, 3, 1),
		NewEndDate:           date(2024, 2, 1),
		EscalationPercentage: d("120"),
		NewMonthlyRent:       &zero,
	}, date(2024, 3, 1))

	var verr *shared.ValidationError
	require.ErrorAs(t, err, &verr)
	require.Equal(t, []string{
		"lease is not active",
		"escalation percentage cannot exceed 100",
		"new start date must not be before the current lease ends",
		"new end date must be after the new start date",
		"new monthly rent must be greater than zero",
	}, verr.Problems)

	_, err = NewRenewal(activeLease(), Proposal{LeaseID: 1, EscalationPercentage: d("-1")}, date(2024, 3, 1))
	require.ErrorAs(t, err, &verr)
	require.Equal(t, []string{
		"escalation percentage cannot be negative",
		"new start date is required",
		"new end date is required",
	}, verr.Problems)
}

func TestNewRenewalRejectsUnstorablePercentage(t *testing.T) {
	_, err := NewRenewal(activeLease(), Proposal{
		LeaseID:              1,
		NewStartDate:         date(2025, 1, 1),
		NewEndDate:           date(2026, 1, 1),
		EscalationPercentage: d("7.1234"),
	}, date(2024, 3, 1))
	var verr *shared.ValidationError
	require.ErrorAs(t, err, &verr)
	require.Equal(t, []string{"escalation percentage cannot have more than 3 decimal places"}, verr.Problems)
}
