package main

import (
	"testing"

	"github.com/exceva/property-ledger/internal/app"
	_ "github.com/exceva/property-ledger/testing"
)

func TestMainSkipsStartupInTestMode(t *testing.T) {
	app.RefreshTestMode()
	if !app.InTestMode() {
		t.Fatal("expected test mode to be set")
	}
	main()
}
