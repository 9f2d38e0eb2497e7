package main

import (
	"fmt"
	"os"

	"github.com/exceva/property-ledger/cmd/ledgerctl/cli"
	"github.com/exceva/property-ledger/internal/app"
)

func main() {
	if err := app.LoadDotEnv(); err != nil {
		fmt.Fprintf(os.Stderr, "warning: %v\n", err)
	}
	if err := cli.NewRootCommand(cli.Options{}).Execute(); err != nil {
		os.Exit(1)
	}
}
