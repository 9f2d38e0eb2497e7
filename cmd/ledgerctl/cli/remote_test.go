package cli

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/exceva/property-ledger/internal/billing"
	"github.com/exceva/property-ledger/internal/payments"
	"github.com/exceva/property-ledger/internal/platform/httpx"
	"github.com/exceva/property-ledger/internal/statement"
)

func d(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

type ledgerServer struct {
	mu          sync.Mutex
	adjustments []map[string]any
	payments    int
	tamper      bool
}

func invoiceTotalling(total string) billing.Invoice {
	sent := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	return billing.HydrateInvoice(billing.Invoice{
		ID: 31, Number: "INV-202403-000031", LeaseID: 12, TenantID: 4, Status: billing.StatusSent, Currency: "KES",
		PeriodStart: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), DueAt: time.Date(2024, 3, 8, 0, 0, 0, 0, time.UTC), SentAt: &sent,
	}, []billing.LineItem{{Description: "Rent", Category: "rent", Quantity: d("1"), UnitPrice: d(total)}})
}

func (l *ledgerServer) start(t *testing.T) string {
	t.Helper()
	r := chi.NewRouter()
	r.Route("/api", func(r chi.Router) {
		r.Get("/leases/{leaseID}/statement", func(w http.ResponseWriter, _ *http.Request) {
			txns := []statement.Transaction{
				{Date: time.Date(2024, 3, 3, 0, 0, 0, 0, time.UTC), Reference: "INV-202403-000031", Charges: d("2500"), Balance: d("3500")},
				{Date: time.Date(2024, 3, 12, 0, 0, 0, 0, time.UTC), Reference: "PAY-000001", Payments: d("2500"), Balance: d("1000")},
			}
			if l.tamper {
				txns[1].Balance = d("900")
			}
			httpx.JSON(w, http.StatusOK, statement.Statement{
				Header:       statement.Header{LeaseID: 12},
				Currency:     "KES",
				Summary:      statement.Summary{OpeningBalance: d("1000"), ClosingBalance: txns[1].Balance},
				Transactions: txns,
			})
		})
		r.Post("/payments", func(w http.ResponseWriter, _ *http.Request) {
			l.mu.Lock()
			l.payments++
			l.mu.Unlock()
			httpx.JSON(w, http.StatusCreated, payments.AllocationResult{
				Success: true, Message: "Payment allocated.",
				Payment: payments.Payment{ID: 1, Number: "PAY-000001", TenantID: 4, Amount: d("1250")},
				Allocations: []payments.Allocation{
					{InvoiceID: 31, InvoiceNumber: "INV-202403-000031", Source: payments.SourcePayment, Amount: d("1000"), BalanceAfter: d("0")},
				},
				CreditBalance: payments.CreditBalance{TenantID: 4, Amount: d("250")},
			})
		})
		r.Get("/tenants/{tenantID}/credit-balance", func(w http.ResponseWriter, _ *http.Request) {
			httpx.JSON(w, http.StatusOK, payments.CreditBalance{TenantID: 4, Amount: d("250")})
		})
		r.Get("/invoices/{invoiceID}", func(w http.ResponseWriter, _ *http.Request) {
			httpx.JSON(w, http.StatusOK, invoiceTotalling("1000"))
		})
		r.Post("/adjustments", func(w http.ResponseWriter, req *http.Request) {
			var body map[string]any
			if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
				httpx.Problem(w, http.StatusBadRequest, "Bad request", err.Error())
				return
			}
			l.mu.Lock()
			l.adjustments = append(l.adjustments, body)
			l.mu.Unlock()
			adjusted := invoiceTotalling("1000")
			adjusted.AdjustmentNet = d("-100")
			httpx.JSON(w, http.StatusCreated, map[string]any{
				"success":          true,
				"adjusted_invoice": adjusted,
			})
		})
	})
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv.URL + "/api"
}

func TestStatementCommandUsesConfiguredAPI(t *testing.T) {
	ledger := &ledgerServer{}
	t.Setenv("LEDGER_API_URL", ledger.start(t))
	t.Setenv("LEDGER_API_TIMEOUT", "2s")

	out, err := run(t, "statement", "--lease", "12")
	require.NoError(t, err)
	require.Contains(t, out, "INV-202403-000031")
	require.Contains(t, out, "Closing balance: KES 1,000.00")
}

func TestStatementCommandRefusesUnbalancedStatement(t *testing.T) {
	ledger := &ledgerServer{tamper: true}
	url := ledger.start(t)

	out, err := run(t, "statement", "--lease", "12", "--api-url", url)
	require.ErrorIs(t, err, statement.ErrOutOfBalance)
	require.NotContains(t, out, "Closing balance")
}

func TestPayCommandPrintsAllocationsAndCredit(t *testing.T) {
	ledger := &ledgerServer{}
	url := ledger.start(t)

	out, err := run(t, "pay", "--api-url", url, "--tenant", "4", "--amount", "1,250", "--date", "2024-03-12", "--reference", "TRX-881", "--key", "retry-1")
	require.NoError(t, err)
	require.Contains(t, out, "PAY-000001 1,250.00: Payment allocated.")
	require.Contains(t, out, "INV-202403-000031")
	require.Contains(t, out, "Credit balance: 250.00")
	require.Equal(t, 1, ledger.payments)

	_, err = run(t, "pay", "--api-url", url, "--tenant", "4", "--amount", "1250", "--date", "12/03/2024")
	require.Error(t, err)
	require.Equal(t, 1, ledger.payments)
}

func TestCreditCommand(t *testing.T) {
	ledger := &ledgerServer{}
	url := ledger.start(t)

	out, err := run(t, "credit", "--api-url", url, "--tenant", "4")
	require.NoError(t, err)
	require.Contains(t, out, "Credit balance: 250.00")
}

func TestAdjustCommandCommitsOnlyWhenConfirmed(t *testing.T) {
	ledger := &ledgerServer{}
	url := ledger.start(t)
	args := []string{"adjust", "--api-url", url, "--invoice", "31", "--type", "discount", "--amount-type", "percentage", "--value", "10", "--reason", "Loyalty", "--date", "2024-03-05"}

	out, err := run(t, args...)
	require.NoError(t, err)
	require.Contains(t, out, "Previous total: KES 1,000.00")
	require.Contains(t, out, "Change:         KES -100.00")
	require.Contains(t, out, "New total:      KES 900.00")
	require.Contains(t, out, "re-run with --yes")
	require.Empty(t, ledger.adjustments)

	out, err = run(t, append(args, "--yes")...)
	require.NoError(t, err)
	require.Contains(t, out, "committed; INV-202403-000031 now totals KES 900.00")
	require.Len(t, ledger.adjustments, 1)
	sent := ledger.adjustments[0]
	require.Equal(t, "1000", sent["expected_previous_total"])
	require.Equal(t, "-100", sent["expected_delta"])
	require.Equal(t, "discount", sent["type"])
}

func TestAdjustCommandRejectsInvalidProposalLocally(t *testing.T) {
	ledger := &ledgerServer{}
	url := ledger.start(t)

	_, err := run(t, "adjust", "--api-url", url, "--invoice", "31", "--type", "waiver", "--value", "1500", "--reason", "Goodwill", "--yes")
	require.Error(t, err)
	require.Contains(t, err.Error(), billing.MsgNegativeTotal)
	require.Empty(t, ledger.adjustments)
}
