package cli

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/exceva/property-ledger/internal/money"
	"github.com/exceva/property-ledger/internal/shared"
	"github.com/exceva/property-ledger/internal/statement"
)

// statementFile is the YAML shape accepted by the reconcile command.
type statementFile struct {
	Currency        string    `yaml:"currency"`
	Tenant          string    `yaml:"tenant"`
	Property        string    `yaml:"property"`
	PeriodStart     string    `yaml:"period_start"`
	PeriodEnd       string    `yaml:"period_end"`
	OpeningBalance  string    `yaml:"opening_balance"`
	ReportedClosing string    `yaml:"reported_closing"`
	Transactions    []txnFile `yaml:"transactions"`
}

type txnFile struct {
	Date        string `yaml:"date"`
	Reference   string `yaml:"reference"`
	Description string `yaml:"description"`
	Method      string `yaml:"method"`
	Charges     string `yaml:"charges"`
	Adjustments string `yaml:"adjustments"`
	Payments    string `yaml:"payments"`
}

func newReconcileCommand() *cobra.Command {
	var (
		file     string
		xlsxPath string
	)
	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Fold a statement file into running balances",
		Long: `reconcile orders the transactions of a statement file by date, folds
them into running balances from the opening balance and prints the result.
When the file carries reported_closing the command fails if the folded
closing balance differs.`,
		Example: `  ledgerctl reconcile --file statement.yaml
  ledgerctl reconcile --file statement.yaml --xlsx statement.xlsx`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			in, err := readYAML[statementFile](file)
			if err != nil {
				return err
			}
			st, reported, err := in.build()
			if err != nil {
				return err
			}
			rec := statement.Reconcile(st.Summary.OpeningBalance, st.Transactions)
			st.Transactions = rec.Rows
			st.Summary = rec.Summary
			printStatement(cmd.OutOrStdout(), st)

			if xlsxPath != "" {
				if err := writeXLSXFile(xlsxPath, st); err != nil {
					return err
				}
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", xlsxPath)
			}
			if reported != nil {
				return rec.Verify(*reported)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "statement YAML file")
	cmd.Flags().StringVar(&xlsxPath, "xlsx", "", "also write the reconciled statement as a spreadsheet")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func (f statementFile) build() (statement.Statement, *decimal.Decimal, error) {
	var problems shared.Problems
	st := statement.Statement{
		Header:   statement.Header{Tenant: statement.Party{Name: f.Tenant}, Property: statement.Property{Name: f.Property}},
		Currency: currencyOr(f.Currency),
	}
	parseDate := func(field, raw string) time.Time {
		if raw == "" {
			return time.Time{}
		}
		t, err := time.Parse(time.DateOnly, raw)
		if err != nil {
			problems.Addf("%s must be formatted YYYY-MM-DD", field)
		}
		return t
	}
	parseAmount := func(field, raw string) decimal.Decimal {
		d, err := money.Parse(raw)
		if err != nil {
			problems.Addf("%s: %v", field, err)
		}
		return d
	}

	st.PeriodStart = parseDate("period_start", f.PeriodStart)
	st.PeriodEnd = parseDate("period_end", f.PeriodEnd)
	st.Summary.OpeningBalance = parseAmount("opening_balance", f.OpeningBalance)
	var reported *decimal.Decimal
	if f.ReportedClosing != "" {
		d := parseAmount("reported_closing", f.ReportedClosing)
		reported = &d
	}
	for i, t := range f.Transactions {
		field := fmt.Sprintf("transactions[%d]", i)
		date := parseDate(field+".date", t.Date)
		if t.Date == "" {
			problems.Addf("%s.date is required", field)
		}
		st.Transactions = append(st.Transactions, statement.Transaction{
			Date:          date,
			Reference:     t.Reference,
			Description:   t.Description,
			PaymentMethod: t.Method,
			Charges:       parseAmount(field+".charges", t.Charges),
			Adjustments:   parseAmount(field+".adjustments", t.Adjustments),
			Payments:      parseAmount(field+".payments", t.Payments),
		})
	}
	if len(st.Transactions) > 0 {
		if st.PeriodStart.IsZero() {
			st.PeriodStart = st.Transactions[0].Date
		}
		if st.PeriodEnd.IsZero() {
			st.PeriodEnd = st.Transactions[len(st.Transactions)-1].Date
		}
	}
	return st, reported, problems.Err()
}

func printStatement(w io.Writer, st statement.Statement) {
	_, _ = fmt.Fprintf(w, "%-10s  %-20s  %14s  %14s  %14s  %14s\n", "Date", "Reference", "Charges", "Adjustments", "Payments", "Balance")
	_, _ = fmt.Fprintf(w, "%-10s  %-20s  %14s  %14s  %14s  %14s\n", "", "Opening balance", "", "", "", money.Format("", st.Summary.OpeningBalance))
	for _, t := range st.Transactions {
		_, _ = fmt.Fprintf(w, "%-10s  %-20s  %14s  %14s  %14s  %14s\n",
			t.Date.Format(time.DateOnly), t.Reference,
			money.Format("", t.Charges), money.Format("", t.Adjustments), money.Format("", t.Payments), money.Format("", t.Balance))
	}
	_, _ = fmt.Fprintf(w, "Closing balance: %s\n", money.Format(st.Currency, st.Summary.ClosingBalance))
}

func writeXLSXFile(path string, st statement.Statement) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer func() {
		if closeErr := f.Close(); err == nil {
			err = closeErr
		}
	}()
	return statement.WriteXLSX(f, st)
}
