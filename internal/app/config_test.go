package app

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.Equal(t, "KES", cfg.Currency)
	require.Equal(t, "16", cfg.CommercialTaxRate.String())
	require.Equal(t, 7, cfg.InvoiceDueDays)
	require.False(t, cfg.RequireAcceptance)
	require.Equal(t, 30*time.Second, cfg.LockTTL)
	require.False(t, cfg.IsProduction())
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("LEDGER_CURRENCY", "USD")
	t.Setenv("LEDGER_COMMERCIAL_TAX_RATE", "7.5")
	t.Setenv("RENEWAL_REQUIRE_ACCEPTANCE", "true")
	t.Setenv("APP_ENV", "production")
	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.Equal(t, "USD", cfg.Currency)
	require.Equal(t, "7.5", cfg.CommercialTaxRate.String())
	require.True(t, cfg.RequireAcceptance)
	require.True(t, cfg.IsProduction())
}

func TestLoadConfigRejectsBadPolicy(t *testing.T) {
	t.Setenv("LEDGER_COMMERCIAL_TAX_RATE", "120")
	_, err := LoadConfig()
	require.ErrorContains(t, err, "LEDGER_COMMERCIAL_TAX_RATE")

	t.Setenv("LEDGER_COMMERCIAL_TAX_RATE", "16.1234")
	_, err = LoadConfig()
	require.ErrorContains(t, err, "decimal places")

	t.Setenv("LEDGER_COMMERCIAL_TAX_RATE", "16")
	t.Setenv("INVOICE_DUE_DAYS", "0")
	_, err = LoadConfig()
	require.ErrorContains(t, err, "INVOICE_DUE_DAYS")
}

func TestLoadDotEnvDoesNotOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.env")
	require.NoError(t, os.WriteFile(path, []byte("LEDGER_CURRENCY=TZS\nINVOICE_DUE_DAYS=14\n"), 0o600))
	t.Setenv("LEDGER_CURRENCY", "UGX")
	t.Setenv("INVOICE_DUE_DAYS", "")
	require.NoError(t, os.Unsetenv("INVOICE_DUE_DAYS"))

	require.NoError(t, LoadDotEnv(path))
	require.Equal(t, "UGX", os.Getenv("LEDGER_CURRENCY"))
	require.Equal(t, "14", os.Getenv("INVOICE_DUE_DAYS"))

	require.NoError(t, LoadDotEnv(filepath.Join(t.TempDir(), "missing.env")))
}
