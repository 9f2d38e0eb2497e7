package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/exceva/property-ledger/internal/money"
	"github.com/exceva/property-ledger/internal/renewal"
	"github.com/exceva/property-ledger/internal/shared"
)

func newEscalateCommand() *cobra.Command {
	var (
		rent     string
		percent  string
		currency string
	)
	cmd := &cobra.Command{
		Use:     "escalate",
		Short:   "Preview the escalated rent of a renewal",
		Example: `  ledgerctl escalate --rent 10000 --percent 5`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var problems shared.Problems
			current, err := money.Parse(rent)
			if err != nil || !current.IsPositive() {
				problems.Addf("rent must be a positive amount")
			}
			pct, err := money.Parse(percent)
			if err != nil {
				problems.Addf("percent must be a number")
			} else if pct.IsNegative() {
				problems.Addf("escalation percentage cannot be negative")
			} else if pct.GreaterThan(money.Hundred()) {
				problems.Addf("escalation percentage cannot exceed 100")
			}
			if err := problems.Err(); err != nil {
				return err
			}
			next := renewal.EscalatedRent(current, pct)
			currency = currencyOr(currency)
			out := cmd.OutOrStdout()
			_, _ = fmt.Fprintf(out, "Current rent:  %s\n", money.Format(currency, current))
			_, _ = fmt.Fprintf(out, "Escalation:    %s%%\n", pct.String())
			_, _ = fmt.Fprintf(out, "New rent:      %s\n", money.Format(currency, next))
			_, _ = fmt.Fprintf(out, "Increase:      %s\n", money.Format(currency, next.Sub(current)))
			return nil
		},
	}
	cmd.Flags().StringVar(&rent, "rent", "", "current monthly rent")
	cmd.Flags().StringVar(&percent, "percent", "0", "escalation percentage")
	cmd.Flags().StringVar(&currency, "currency", "", "currency code for display")
	_ = cmd.MarkFlagRequired("rent")
	return cmd
}
