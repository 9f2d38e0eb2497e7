package billing

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/exceva/property-ledger/internal/shared"
)

var effective = time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)

func sentInvoice(total string) Invoice {
	inv := HydrateInvoice(Invoice{ID: 42, Status: StatusSent, Currency: "KES"}, []LineItem{line("Rent", "1", total)})
	return inv
}

func request(kind AdjustmentType, amountType AmountType, value string) AdjustmentRequest {
	return AdjustmentRequest{
		InvoiceID:     42,
		Type:          kind,
		AmountType:    amountType,
		Value:         d(value),
		Reason:        "goodwill",
		EffectiveDate: effective,
	}
}

func problemsOf(t *testing.T, err error) []string {
	t.Helper()
	var verr *shared.ValidationError
	require.True(t, errors.As(err, &verr), "expected validation error, got %v", err)
	return verr.Problems
}

func TestFixedDiscountCommits(t *testing.T) {
	inv := sentInvoice("2500")
	proposal, err := ProposeAdjustment(&inv, request(AdjustmentDiscount, AmountFixed, "500"))
	require.NoError(t, err)
	require.Equal(t, "-500", proposal.Delta.String())
	require.Equal(t, "2000", proposal.NewTotal.String())

	adj, err := inv.ApplyAdjustment(proposal, 9, effective)
	require.NoError(t, err)
	require.Equal(t, "2000", inv.TotalAmount().String())
	require.Equal(t, "2000", inv.BalanceDue().String())
	require.Equal(t, "2500", adj.PreviousTotal.String())
	require.Equal(t, int64(9), adj.CreatedBy)
}

func TestPercentageAboveHundredRejected(t *testing.T) {
	inv := sentInvoice("400")
	for _, kind := range []AdjustmentType{AdjustmentWaiver, AdjustmentCharge, AdjustmentLateFee} {
		_, err := ProposeAdjustment(&inv, request(kind, AmountPercentage, "150"))
		require.Contains(t, problemsOf(t, err), MsgPercentageAbove100, string(kind))
	}
}

func TestNegativeTotalRejectedWithoutMutation(t *testing.T) {
	inv := sentInvoice("300")
	_, err := ProposeAdjustment(&inv, request(AdjustmentWaiver, AmountFixed, "500"))
	require.Equal(t, []string{MsgNegativeTotal}, problemsOf(t, err))

	forged := Proposal{Request: request(AdjustmentWaiver, AmountFixed, "500"), Delta: d("-500"), PreviousTotal: d("300"), NewTotal: d("-200")}
	_, err = inv.ApplyAdjustment(forged, 1, effective)
	require.Error(t, err)
	require.Equal(t, "300", inv.TotalAmount().String())
	require.True(t, inv.AdjustmentNet.IsZero())
}

func TestValidationCollectsAllProblems(t *testing.T) {
	inv := sentInvoice("100")
	req := AdjustmentRequest{Type: AdjustmentDiscount, AmountType: AmountPercentage, Value: d("0"), Reason: "   "}
	problems := problemsOf(t, func() error { _, err := ProposeAdjustment(&inv, req); return err }())
	require.ElementsMatch(t, []string{MsgAmountNotPositive, MsgReasonRequired, MsgEffectiveDateNeeded}, problems)
}

func TestUnknownTypesReported(t *testing.T) {
	inv := sentInvoice("100")
	_, err := ProposeAdjustment(&inv, request("bonus", "ratio", "10"))
	problems := problemsOf(t, err)
	require.Len(t, problems, 2)
}

func TestPercentageChargeUsesCurrentTotal(t *testing.T) {
	inv := sentInvoice("1234.50")
	proposal, err := ProposeAdjustment(&inv, request(AdjustmentLateFee, AmountPercentage, "5"))
	require.NoError(t, err)
	require.Equal(t, "61.73", proposal.Delta.StringFixed(2))
	require.Equal(t, "1296.23", proposal.NewTotal.StringFixed(2))
}

func TestNegativeBalanceDueRejected(t *testing.T) {
	inv := sentInvoice("1000")
	inv.PaidAmount = d("800")
	inv.Status = StatusPartiallyPaid
	_, err := ProposeAdjustment(&inv, request(AdjustmentCredit, AmountFixed, "300"))
	require.Equal(t, []string{MsgNegativeBalance}, problemsOf(t, err))

	proposal, err := ProposeAdjustment(&inv, request(AdjustmentCredit, AmountFixed, "200"))
	require.NoError(t, err)
	_, err = inv.ApplyAdjustment(proposal, 1, effective)
	require.NoError(t, err)
	require.Equal(t, StatusPaid, inv.Status)
}

func TestStaleProposalRejected(t *testing.T) {
	inv := sentInvoice("1000")
	first, err := ProposeAdjustment(&inv, request(AdjustmentDiscount, AmountPercentage, "10"))
	require.NoError(t, err)
	second, err := ProposeAdjustment(&inv, request(AdjustmentCharge, AmountFixed, "50"))
	require.NoError(t, err)

	_, err = inv.ApplyAdjustment(second, 1, effective)
	require.NoError(t, err)
	_, err = inv.ApplyAdjustment(first, 1, effective)
	require.ErrorIs(t, err, shared.ErrInvalidState)
	require.Equal(t, "1050", inv.TotalAmount().String())
}

func TestAdjustingTerminalInvoiceIsStateError(t *testing.T) {
	inv := sentInvoice("100")
	inv.Status = StatusCancelled
	_, err := ProposeAdjustment(&inv, request(AdjustmentCharge, AmountFixed, "10"))
	require.ErrorIs(t, err, shared.ErrInvalidState)

	_, err = ProposeAdjustment(nil, request(AdjustmentCharge, AmountFixed, "10"))
	require.ErrorIs(t, err, shared.ErrInvalidState)
}

func TestNetAdjustments(t *testing.T) {
	net := NetAdjustments([]Adjustment{{Delta: d("-500")}, {Delta: d("75.50")}})
	require.Equal(t, "-424.5", net.String())
}

func TestAdjustmentInputPrecisionMatchesStorage(t *testing.T) {
	inv := sentInvoice("1000")
	_, err := ProposeAdjustment(&inv, request(AdjustmentDiscount, AmountFixed, "10.005"))
	require.Equal(t, []string{"amount cannot have more than 2 decimal places"}, problemsOf(t, err))

	_, err = ProposeAdjustment(&inv, request(AdjustmentDiscount, AmountPercentage, "12.3456"))
	require.Equal(t, []string{"percentage cannot have more than 3 decimal places"}, problemsOf(t, err))

	proposal, err := ProposeAdjustment(&inv, request(AdjustmentDiscount, AmountPercentage, "12.345"))
	require.NoError(t, err)
	require.Equal(t, "-123.45", proposal.Delta.StringFixed(2))
}
