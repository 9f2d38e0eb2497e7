package statement

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func d(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func on(dayOfMonth int) time.Time {
	return time.Date(2024, 3, dayOfMonth, 0, 0, 0, 0, time.UTC)
}

func txn(day int, ref, charges, adjustments, payments string) Transaction {
	return Transaction{Date: on(day), Reference: ref, Charges: d(charges), Adjustments: d(adjustments), Payments: d(payments)}
}

func TestReconcileRunningBalance(t *testing.T) {
	rec := Reconcile(d("1000"), []Transaction{
		txn(1, "INV-1", "2500", "0", "0"),
		txn(5, "PAY-1", "0", "0", "2500"),
	})
	require.Len(t, rec.Rows, 2)
	require.Equal(t, "3500", rec.Rows[0].Balance.String())
	require.Equal(t, "1000", rec.Rows[1].Balance.String())
	require.Equal(t, "1000", rec.Summary.ClosingBalance.String())
	require.NoError(t, rec.Verify(d("1000.00")))
}

func TestReconcileEmptyClosesAtOpening(t *testing.T) {
	rec := Reconcile(d("250.50"), nil)
	require.Empty(t, rec.Rows)
	require.NotNil(t, rec.Rows)
	require.Equal(t, "250.5", rec.Summary.ClosingBalance.String())
}

func TestReconcileSortsByDateAndKeepsTieOrder(t *testing.T) {
	input := []Transaction{
		txn(9, "late", "100", "0", "0"),
		txn(2, "tie-a", "0", "0", "40"),
		txn(2, "tie-b", "300", "0", "0"),
		txn(2, "tie-c", "0", "-10", "0"),
	}
	rec := Reconcile(decimal.Zero, input)
	refs := make([]string, len(rec.Rows))
	for i, r := range rec.Rows {
		refs[i] = r.Reference
	}
	require.Equal(t, []string{"tie-a", "tie-b", "tie-c", "late"}, refs)
	require.Equal(t, "-40", rec.Rows[0].Balance.String())

	require.Equal(t, "late", input[0].Reference)
	require.True(t, input[0].Balance.IsZero())
}

func TestReconcileClosingIndependentOfTieOrder(t *testing.T) {
	a := []Transaction{txn(3, "x", "500", "0", "0"), txn(3, "y", "0", "-25", "0"), txn(3, "z", "0", "0", "200")}
	b := []Transaction{a[2], a[0], a[1]}
	opening := d("75")

	first := Reconcile(opening, a)
	second := Reconcile(opening, b)
	require.True(t, first.Summary.ClosingBalance.Equal(second.Summary.ClosingBalance))

	expected := opening
	for _, t := range a {
		expected = expected.Add(t.Charges).Add(t.Adjustments).Sub(t.Payments)
	}
	require.True(t, expected.Equal(first.Summary.ClosingBalance))
	require.Equal(t, "500", first.Summary.TotalCharges.String())
	require.Equal(t, "-25", first.Summary.TotalAdjustments.String())
	require.Equal(t, "200", first.Summary.TotalPayments.String())
}

func TestReconcileIsReproducible(t *testing.T) {
	input := []Transaction{txn(1, "a", "10.10", "0", "0"), txn(1, "b", "0", "0", "3.03")}
	require.Equal(t, Reconcile(d("1"), input), Reconcile(d("1"), input))
}

func TestVerifyReportsMismatch(t *testing.T) {
	rec := Reconcile(d("0"), []Transaction{txn(1, "INV", "100", "0", "0")})
	err := rec.Verify(d("90"))
	require.True(t, errors.Is(err, ErrOutOfBalance))
	var mismatch *MismatchError
	require.ErrorAs(t, err, &mismatch)
	require.Equal(t, "100", mismatch.Computed.String())
}

func TestOpeningFoldsPriorActivity(t *testing.T) {
	prior := []Transaction{txn(1, "a", "2500", "0", "0"), txn(2, "b", "0", "-500", "1000")}
	require.Equal(t, "1000", Opening(prior).String())
	require.True(t, Opening(nil).IsZero())
}
