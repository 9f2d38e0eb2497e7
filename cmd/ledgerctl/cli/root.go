// Package cli implements ledgerctl, the operator's offline companion to the
// ledger service.
package cli

import (
	"io"
	"os"

	"github.com/spf13/cobra"
)

// Options redirects command output, mostly for tests.
type Options struct {
	Stdout io.Writer
	Stderr io.Writer
}

// NewRootCommand assembles the ledgerctl command tree.
func NewRootCommand(opts Options) *cobra.Command {
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	root := &cobra.Command{
		Use:   "ledgerctl",
		Short: "Property ledger operations",
		Long: `ledgerctl checks invoice totals, reconciles statement files,
previews rent escalations and triggers ledger background jobs. The
statement, pay, credit and adjust commands talk to a running ledger at
LEDGER_API_URL.

Amounts are read as decimal strings and printed in the ledger currency.`,
		SilenceUsage: true,
	}
	root.SetOut(opts.Stdout)
	root.SetErr(opts.Stderr)
	root.AddCommand(
		newTotalsCommand(),
		newReconcileCommand(),
		newEscalateCommand(),
		newJobsCommand(),
		newStatementCommand(),
		newPayCommand(),
		newCreditCommand(),
		newAdjustCommand(),
	)
	return root
}
