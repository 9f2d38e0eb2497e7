package statement

import (
	"fmt"
	"io"
	"time"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
)

// SheetName is the worksheet holding the statement.
const SheetName = "Statement"

// TableHeader is the column row of the exported ledger table.
var TableHeader = []any{"Date", "Reference", "Description", "Method", "Charges", "Adjustments", "Payments", "Balance"}

// headerRows is the number of rows above the ledger table.
const headerRows = 6

// WriteXLSX renders an already reconciled statement as a spreadsheet. It
// copies figures and computes nothing.
func WriteXLSX(w io.Writer, st Statement) error {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName("Sheet1", SheetName); err != nil {
		return err
	}
	preamble := [][]any{
		{st.Company.Name, st.Company.Address},
		{"Tenant", st.Tenant.Name, st.Tenant.Email},
		{"Property", st.Property.Name, st.Property.Unit},
		{"Period", st.PeriodStart.Format(time.DateOnly), st.PeriodEnd.Format(time.DateOnly)},
		{"Currency", st.Currency, "Deposit", amount(st.Deposit)},
		TableHeader,
	}
	for i, row := range preamble {
		if err := setRow(f, i+1, row); err != nil {
			return err
		}
	}

	rowNum := headerRows + 1
	if err := setRow(f, rowNum, []any{st.PeriodStart.Format(time.DateOnly), "", "Opening balance", "", "", "", "", amount(st.Summary.OpeningBalance)}); err != nil {
		return err
	}
	for _, t := range st.Transactions {
		rowNum++
		if err := setRow(f, rowNum, []any{
			t.Date.Format(time.DateOnly), t.Reference, t.Description, t.PaymentMethod,
			amount(t.Charges), amount(t.Adjustments), amount(t.Payments), amount(t.Balance),
		}); err != nil {
			return err
		}
	}
	rowNum++
	if err := setRow(f, rowNum, []any{
		st.PeriodEnd.Format(time.DateOnly), "", "Closing balance", "",
		amount(st.Summary.TotalCharges), amount(st.Summary.TotalAdjustments), amount(st.Summary.TotalPayments),
		amount(st.Summary.ClosingBalance),
	}); err != nil {
		return err
	}

	style, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err == nil {
		_ = f.SetRowStyle(SheetName, headerRows, headerRows, style)
	}
	_ = f.SetColWidth(SheetName, "C", "C", 40)

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("statement: write xlsx: %w", err)
	}
	return nil
}

func setRow(f *excelize.File, row int, values []any) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	return f.SetSheetRow(SheetName, cell, &values)
}

// amount keeps two decimals exactly as displayed on screen.
func amount(d decimal.Decimal) string {
	return d.StringFixed(2)
}
