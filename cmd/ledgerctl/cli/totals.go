package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/exceva/property-ledger/internal/billing"
	"github.com/exceva/property-ledger/internal/money"
	"github.com/exceva/property-ledger/internal/shared"
)

// invoiceFile is the YAML shape accepted by the totals command.
type invoiceFile struct {
	Currency   string     `yaml:"currency"`
	Commercial bool       `yaml:"commercial"`
	TaxRate    string     `yaml:"tax_rate"`
	Lines      []lineFile `yaml:"line_items"`
}

type lineFile struct {
	Description string `yaml:"description"`
	Category    string `yaml:"category"`
	Quantity    string `yaml:"quantity"`
	UnitPrice   string `yaml:"unit_price"`
}

func newTotalsCommand() *cobra.Command {
	var (
		file    string
		asJSON  bool
		taxRate string
	)
	cmd := &cobra.Command{
		Use:   "totals",
		Short: "Compute subtotal, tax and total for an invoice file",
		Example: `  ledgerctl totals --file invoice.yaml
  ledgerctl totals --file invoice.yaml --tax-rate 16 --json`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			inv, err := readYAML[invoiceFile](file)
			if err != nil {
				return err
			}
			if taxRate != "" {
				inv.TaxRate = taxRate
			}
			lines, rate, err := inv.parse()
			if err != nil {
				return err
			}
			if !inv.Commercial {
				rate = decimal.Zero
			}
			totals := billing.ComputeTotals(lines, rate)
			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(totals)
			}
			currency := currencyOr(inv.Currency)
			_, _ = fmt.Fprintf(out, "%-16s %s\n", "Subtotal", money.Format(currency, totals.Subtotal))
			_, _ = fmt.Fprintf(out, "%-16s %s\n", fmt.Sprintf("Tax (%s%%)", rate.String()), money.Format(currency, totals.TaxAmount))
			_, _ = fmt.Fprintf(out, "%-16s %s\n", "Total", money.Format(currency, totals.Total))
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "invoice YAML file")
	cmd.Flags().StringVar(&taxRate, "tax-rate", "", "override the commercial tax rate percentage")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print totals as JSON")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func (f invoiceFile) parse() ([]billing.LineItem, decimal.Decimal, error) {
	var problems shared.Problems
	rate := decimal.Zero
	if f.TaxRate != "" {
		parsed, err := money.Parse(f.TaxRate)
		if err != nil {
			problems.Addf("tax_rate: %v", err)
		} else {
			rate = parsed
		}
	}
	lines := make([]billing.LineItem, 0, len(f.Lines))
	for i, l := range f.Lines {
		qty, err := decimal.NewFromString(l.Quantity)
		if err != nil {
			problems.Addf("line %d: quantity %q is not a number", i+1, l.Quantity)
		}
		price, err := money.Parse(l.UnitPrice)
		if err != nil {
			problems.Addf("line %d: unit_price: %v", i+1, err)
		}
		lines = append(lines, billing.LineItem{Description: l.Description, Category: l.Category, Quantity: qty, UnitPrice: price})
	}
	return lines, rate, problems.Err()
}

func readYAML[T any](path string) (T, error) {
	var out T
	raw, err := os.ReadFile(path)
	if err != nil {
		return out, fmt.Errorf("read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, &out); err != nil {
		return out, fmt.Errorf("parse %s: %w", path, err)
	}
	return out, nil
}

func currencyOr(currency string) string {
	if currency == "" {
		if env := os.Getenv("LEDGER_CURRENCY"); env != "" {
			return env
		}
		return "KES"
	}
	return currency
}
