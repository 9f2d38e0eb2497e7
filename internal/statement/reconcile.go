package statement

import (
	"errors"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/exceva/property-ledger/internal/money"
)

// ErrOutOfBalance marks a reported closing balance that the rows do not
// reproduce.
var ErrOutOfBalance = errors.New("statement out of balance")

// MismatchError reports the computed and reported closing balances.
type MismatchError struct {
	Computed decimal.Decimal
	Reported decimal.Decimal
}

func (e *MismatchError) Error() string {
	return fmt.Sprintf("statement closing balance %s does not match reported %s", e.Computed.StringFixed(2), e.Reported.StringFixed(2))
}

// Is lets errors.Is match ErrOutOfBalance.
func (e *MismatchError) Is(target error) bool {
	return target == ErrOutOfBalance
}

// Reconciliation is the folded projection of a transaction stream.
type Reconciliation struct {
	Rows    []Transaction
	Summary Summary
}

// Reconcile orders transactions by date, keeping input order on ties, and
// folds them into running balances. The input slice is not modified.
func Reconcile(opening decimal.Decimal, txns []Transaction) Reconciliation {
	rows := append([]Transaction(nil), txns...)
	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].Date.Before(rows[j].Date)
	})

	summary := Summary{
		OpeningBalance:   opening,
		TotalCharges:     decimal.Zero,
		TotalAdjustments: decimal.Zero,
		TotalPayments:    decimal.Zero,
	}
	balance := opening
	for i := range rows {
		balance = money.Round(balance.Add(rows[i].Delta()))
		rows[i].Balance = balance
		summary.TotalCharges = summary.TotalCharges.Add(rows[i].Charges)
		summary.TotalAdjustments = summary.TotalAdjustments.Add(rows[i].Adjustments)
		summary.TotalPayments = summary.TotalPayments.Add(rows[i].Payments)
	}
	summary.ClosingBalance = balance
	if rows == nil {
		rows = []Transaction{}
	}
	return Reconciliation{Rows: rows, Summary: summary}
}

// Verify checks the folded closing balance against a reported one.
func (r Reconciliation) Verify(reported decimal.Decimal) error {
	if money.Round(reported).Equal(money.Round(r.Summary.ClosingBalance)) {
		return nil
	}
	return &MismatchError{Computed: r.Summary.ClosingBalance, Reported: reported}
}

// Opening folds activity dated before the statement period into a single
// opening balance.
func Opening(prior []Transaction) decimal.Decimal {
	total := decimal.Zero
	for _, t := range prior {
		total = total.Add(t.Delta())
	}
	return money.Round(total)
}
