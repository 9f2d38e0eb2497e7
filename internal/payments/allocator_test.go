package payments

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

func month(m time.Month) time.Time {
	return time.Date(2024, m, 1, 0, 0, 0, 0, time.UTC)
}

func TestPlanAllocationOldestFirstWithSurplus(t *testing.T) {
	open := []OpenInvoice{
		{InvoiceID: 3, Number: "INV-3", PeriodStart: month(time.March), DueAt: month(time.March), Balance: d("2500")},
		{InvoiceID: 1, Number: "INV-1", PeriodStart: month(time.January), DueAt: month(time.January), Balance: d("1000")},
		{InvoiceID: 2, Number: "INV-2", PeriodStart: month(time.February), DueAt: month(time.February), Balance: d("500")},
	}
	plan, err := PlanAllocation(d("4500"), open)
	require.NoError(t, err)
	require.Len(t, plan.Allocations, 3)
	require.Equal(t, []int64{1, 2, 3}, []int64{plan.Allocations[0].InvoiceID, plan.Allocations[1].InvoiceID, plan.Allocations[2].InvoiceID})
	require.Equal(t, "4000", plan.Applied.String())
	require.Equal(t, "500", plan.ToCredit.String())
	require.True(t, plan.Allocations[2].BalanceAfter.IsZero())

	require.Equal(t, int64(3), open[0].InvoiceID)
}

func TestPlanAllocationPartial(t *testing.T) {
	open := []OpenInvoice{
		{InvoiceID: 1, PeriodStart: month(time.January), Balance: d("1000")},
		{InvoiceID: 2, PeriodStart: month(time.February), Balance: d("1000")},
	}
	plan, err := PlanAllocation(d("1200"), open)
	require.NoError(t, err)
	require.Len(t, plan.Allocations, 2)
	require.Equal(t, "200", plan.Allocations[1].Amount.String())
	require.Equal(t, "800", plan.Allocations[1].BalanceAfter.String())
	require.True(t, plan.ToCredit.IsZero())
}

func TestPlanAllocationTiesKeepIDOrder(t *testing.T) {
	open := []OpenInvoice{
		{InvoiceID: 9, PeriodStart: month(time.May), DueAt: month(time.May), Balance: d("100")},
		{InvoiceID: 4, PeriodStart: month(time.May), DueAt: month(time.May), Balance: d("100")},
	}
	plan, err := PlanAllocation(d("150"), open)
	require.NoError(t, err)
	require.Equal(t, int64(4), plan.Allocations[0].InvoiceID)
	require.Equal(t, "50", plan.Allocations[1].Amount.String())
}

func TestPlanAllocationNothingOpenGoesToCredit(t *testing.T) {
	plan, err := PlanAllocation(d("300"), []OpenInvoice{{InvoiceID: 1, Balance: decimal.Zero}})
	require.NoError(t, err)
	require.Empty(t, plan.Allocations)
	require.Equal(t, "300", plan.ToCredit.String())

	_, err = PlanAllocation(d("0"), nil)
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestPaymentInputValidate(t *testing.T) {
	err := PaymentInput{Amount: d("10.005"), Method: "barter"}.Validate()
	var verr *shared.ValidationError
	require.ErrorAs(t, err, &verr)
	require.Len(t, verr.Problems, 4)

	ok := PaymentInput{TenantID: 1, Amount: d("10.50"), Method: MethodMobileMoney, Date: month(time.June)}
	require.NoError(t, ok.Validate())
}
