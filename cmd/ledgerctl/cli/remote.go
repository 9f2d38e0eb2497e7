package cli

import (
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/exceva/property-ledger/internal/app"
	"github.com/exceva/property-ledger/internal/billing"
	"github.com/exceva/property-ledger/internal/ledgerclient"
	"github.com/exceva/property-ledger/internal/money"
	"github.com/exceva/property-ledger/internal/payments"
	"github.com/exceva/property-ledger/internal/shared"
)

// apiFlags are shared by the commands that talk to a running ledger.
type apiFlags struct {
	url     string
	timeout time.Duration
	actor   int64
}

func (f *apiFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.url, "api-url", "", "ledger API base URL (defaults to LEDGER_API_URL)")
	cmd.Flags().DurationVar(&f.timeout, "timeout", 0, "per-call timeout (defaults to LEDGER_API_TIMEOUT)")
	cmd.Flags().Int64Var(&f.actor, "actor", 0, "operator id stamped on writes")
}

// desk builds a client desk from the flags, falling back to configuration.
func (f *apiFlags) desk(cmd *cobra.Command) (*ledgerclient.Desk, *ledgerclient.Client, error) {
	cfg, err := app.LoadConfig()
	if err != nil {
		return nil, nil, err
	}
	url, timeout := f.url, f.timeout
	if url == "" {
		url = cfg.LedgerAPIURL
	}
	if timeout <= 0 {
		timeout = cfg.LedgerAPITimeout
	}
	logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: slog.LevelWarn}))
	client := ledgerclient.NewClient(url,
		ledgerclient.WithTimeout(timeout),
		ledgerclient.WithActor(f.actor),
		ledgerclient.WithLogger(logger),
	)
	return ledgerclient.NewDesk(client, nil, logger), client, nil
}

func parseDateFlag(problems *shared.Problems, name, raw string) time.Time {
	if raw == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.DateOnly, raw)
	if err != nil {
		problems.Addf("--%s must be formatted YYYY-MM-DD", name)
	}
	return t
}

func parseAmountFlag(problems *shared.Problems, name, raw string) decimal.Decimal {
	d, err := money.Parse(raw)
	if err != nil {
		problems.Addf("--%s: %v", name, err)
	}
	return d
}

func newStatementCommand() *cobra.Command {
	var (
		api      apiFlags
		leaseID  int64
		start    string
		end      string
		xlsxPath string
	)
	cmd := &cobra.Command{
		Use:   "statement",
		Short: "Fetch and verify a lease statement from the ledger",
		Long: `statement fetches a lease statement from the running ledger, folds its
rows again locally and refuses to print a statement whose balances do not
reproduce.`,
		Example: `  ledgerctl statement --lease 12 --start 2024-01-01 --end 2024-03-31
  ledgerctl statement --lease 12 --xlsx lease-12.xlsx`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var problems shared.Problems
			from := parseDateFlag(&problems, "start", start)
			to := parseDateFlag(&problems, "end", end)
			if err := problems.Err(); err != nil {
				return err
			}
			desk, _, err := api.desk(cmd)
			if err != nil {
				return err
			}
			st, err := desk.Statement(cmd.Context(), leaseID, from, to)
			if err != nil {
				return err
			}
			printStatement(cmd.OutOrStdout(), st)
			if xlsxPath != "" {
				if err := writeXLSXFile(xlsxPath, st); err != nil {
					return err
				}
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", xlsxPath)
			}
			return nil
		},
	}
	api.register(cmd)
	cmd.Flags().Int64Var(&leaseID, "lease", 0, "lease id")
	cmd.Flags().StringVar(&start, "start", "", "first day, YYYY-MM-DD (defaults to the lease start)")
	cmd.Flags().StringVar(&end, "end", "", "last day, YYYY-MM-DD (defaults to today)")
	cmd.Flags().StringVar(&xlsxPath, "xlsx", "", "also write the statement as a spreadsheet")
	_ = cmd.MarkFlagRequired("lease")
	return cmd
}

func newPayCommand() *cobra.Command {
	var (
		api       apiFlags
		tenantID  int64
		amount    string
		method    string
		date      string
		reference string
		notes     string
		key       string
	)
	cmd := &cobra.Command{
		Use:   "pay",
		Short: "Record a tenant payment against the ledger",
		Long: `pay records a payment, applies it to the tenant's open invoices oldest
first and prints the allocations with the credit balance read back after
the commit. Re-run with the printed --key to retry without paying twice.`,
		Example: `  ledgerctl pay --tenant 4 --amount 25000 --method bank_transfer --date 2024-03-12 --reference TRX-881`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var problems shared.Problems
			in := payments.PaymentInput{
				TenantID:  tenantID,
				Amount:    parseAmountFlag(&problems, "amount", amount),
				Method:    payments.Method(method),
				Date:      parseDateFlag(&problems, "date", date),
				Reference: reference,
				Notes:     notes,
			}
			if err := problems.Err(); err != nil {
				return err
			}
			if key == "" {
				key = uuid.NewString()
			}
			desk, _, err := api.desk(cmd)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "idempotency key %s\n", key)
			out, err := desk.AllocatePayment(cmd.Context(), in, key)
			if err != nil {
				return err
			}
			printPayment(cmd.OutOrStdout(), out)
			return nil
		},
	}
	api.register(cmd)
	cmd.Flags().Int64Var(&tenantID, "tenant", 0, "tenant id")
	cmd.Flags().StringVar(&amount, "amount", "", "amount received")
	cmd.Flags().StringVar(&method, "method", string(payments.MethodBankTransfer), "cash, bank_transfer, card, mobile_money or cheque")
	cmd.Flags().StringVar(&date, "date", "", "payment date, YYYY-MM-DD")
	cmd.Flags().StringVar(&reference, "reference", "", "bank or receipt reference")
	cmd.Flags().StringVar(&notes, "notes", "", "free-text notes")
	cmd.Flags().StringVar(&key, "key", "", "idempotency key of an earlier attempt")
	_ = cmd.MarkFlagRequired("tenant")
	_ = cmd.MarkFlagRequired("amount")
	return cmd
}

func printPayment(w io.Writer, out ledgerclient.PaymentOutcome) {
	res := out.Allocation
	_, _ = fmt.Fprintf(w, "%s %s: %s\n", res.Payment.Number, money.Format("", res.Payment.Amount), res.Message)
	for _, a := range res.Allocations {
		_, _ = fmt.Fprintf(w, "  %-20s  %-8s  %14s  balance %s\n", a.InvoiceNumber, a.Source, money.Format("", a.Amount), money.Format("", a.BalanceAfter))
	}
	printCredit(w, out.Credit)
}

func printCredit(w io.Writer, credit ledgerclient.Result[payments.CreditBalance]) {
	if credit.Live() {
		_, _ = fmt.Fprintf(w, "Credit balance: %s\n", money.Format("", credit.Value.Amount))
		return
	}
	_, _ = fmt.Fprintf(w, "Credit balance: unavailable (%v)\n", credit.Err)
}

func newCreditCommand() *cobra.Command {
	var (
		api      apiFlags
		tenantID int64
	)
	cmd := &cobra.Command{
		Use:     "credit",
		Short:   "Show a tenant's unapplied credit",
		Example: `  ledgerctl credit --tenant 4`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			desk, _, err := api.desk(cmd)
			if err != nil {
				return err
			}
			res := desk.CreditBalance(cmd.Context(), tenantID)
			printCredit(cmd.OutOrStdout(), res)
			return res.Err
		},
	}
	api.register(cmd)
	cmd.Flags().Int64Var(&tenantID, "tenant", 0, "tenant id")
	_ = cmd.MarkFlagRequired("tenant")
	return cmd
}

func newAdjustCommand() *cobra.Command {
	var (
		api        apiFlags
		invoiceID  int64
		kind       string
		amountType string
		value      string
		reason     string
		notes      string
		date       string
		confirm    bool
	)
	cmd := &cobra.Command{
		Use:   "adjust",
		Short: "Review and commit an invoice adjustment",
		Long: `adjust fetches the invoice, computes the adjustment locally and prints the
previous total, the change and the new total. Nothing is written unless
--yes is given; the commit is refused when the invoice changed since it
was read.`,
		Example: `  ledgerctl adjust --invoice 31 --type discount --amount-type percentage --value 10 --reason "Loyalty"
  ledgerctl adjust --invoice 31 --type waiver --value 500 --reason "Goodwill" --yes`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var problems shared.Problems
			req := billing.AdjustmentRequest{
				InvoiceID:     invoiceID,
				Type:          billing.AdjustmentType(kind),
				AmountType:    billing.AmountType(amountType),
				Value:         parseAmountFlag(&problems, "value", value),
				Reason:        reason,
				Notes:         notes,
				EffectiveDate: parseDateFlag(&problems, "date", date),
			}
			if err := problems.Err(); err != nil {
				return err
			}
			if req.EffectiveDate.IsZero() {
				now := time.Now().UTC()
				req.EffectiveDate = time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
			}
			desk, client, err := api.desk(cmd)
			if err != nil {
				return err
			}
			inv, err := client.GetInvoice(cmd.Context(), invoiceID)
			if err != nil {
				return err
			}
			flow := desk.NewAdjustmentFlow(inv)
			proposal, err := flow.Propose(req)
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			_, _ = fmt.Fprintf(w, "%s %s\n", inv.Number, proposal.Request.Type)
			_, _ = fmt.Fprintf(w, "  Previous total: %s\n", money.Format(inv.Currency, proposal.PreviousTotal))
			_, _ = fmt.Fprintf(w, "  Change:         %s\n", money.Format(inv.Currency, proposal.Delta))
			_, _ = fmt.Fprintf(w, "  New total:      %s\n", money.Format(inv.Currency, proposal.NewTotal))
			if !confirm {
				_, _ = fmt.Fprintln(w, "not committed; re-run with --yes to apply")
				return nil
			}
			res, err := flow.Confirm(cmd.Context())
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(w, "committed; %s now totals %s\n", res.Invoice.Number, money.Format(res.Invoice.Currency, res.Invoice.TotalAmount()))
			return nil
		},
	}
	api.register(cmd)
	cmd.Flags().Int64Var(&invoiceID, "invoice", 0, "invoice id")
	cmd.Flags().StringVar(&kind, "type", "", "waiver, discount, credit, charge or late_fee")
	cmd.Flags().StringVar(&amountType, "amount-type", string(billing.AmountFixed), "fixed or percentage")
	cmd.Flags().StringVar(&value, "value", "", "amount, or percentage of the current total")
	cmd.Flags().StringVar(&reason, "reason", "", "reason shown on the invoice")
	cmd.Flags().StringVar(&notes, "notes", "", "internal notes")
	cmd.Flags().StringVar(&date, "date", "", "effective date, YYYY-MM-DD (defaults to today)")
	cmd.Flags().BoolVar(&confirm, "yes", false, "commit the adjustment")
	_ = cmd.MarkFlagRequired("invoice")
	_ = cmd.MarkFlagRequired("type")
	_ = cmd.MarkFlagRequired("value")
	return cmd
}
