package ledgerclient

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/exceva/property-ledger/internal/billing"
	"github.com/exceva/property-ledger/internal/payments"
	"github.com/exceva/property-ledger/internal/platform/httpx"
	"github.com/exceva/property-ledger/internal/shared"
)

func d(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func sentInvoice(id int64, total string) billing.Invoice {
	sent := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	return billing.HydrateInvoice(billing.Invoice{
		ID: id, Number: "INV-202403-000001", LeaseID: 1, TenantID: 1, Status: billing.StatusSent,
		PeriodStart: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), DueAt: time.Date(2024, 3, 8, 0, 0, 0, 0, time.UTC), SentAt: &sent,
	}, []billing.LineItem{{Description: "Rent", Category: "rent", Quantity: d("1"), UnitPrice: d(total)}})
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newClient(t *testing.T, h http.Handler, opts ...Option) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL+"/api", append([]Option{WithLogger(quietLogger())}, opts...)...)
}

func TestClientTimeoutIsRemoteFailureWithoutRetry(t *testing.T) {
	var hits atomic.Int32
	release := make(chan struct{})
	c := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}), WithTimeout(50*time.Millisecond))
	// Registered after newClient so it runs before srv.Close (cleanups are LIFO).
	t.Cleanup(func() { close(release) })

	_, err := c.AllocatePayment(t.Context(), paymentFor(1, "100"), "key-1")
	var remote *shared.RemoteFailure
	require.ErrorAs(t, err, &remote)
	require.True(t, remote.Timeout)
	require.ErrorIs(t, err, shared.ErrRemote)
	require.Equal(t, int32(1), hits.Load())
}

func TestClientMapsProblemResponses(t *testing.T) {
	cases := []struct {
		name   string
		status int
		body   httpx.ProblemDetail
		check  func(t *testing.T, err error)
	}{
		{
			name:   "validation",
			status: http.StatusUnprocessableEntity,
			body:   httpx.ProblemDetail{Type: httpx.ProblemValidation, Problems: []string{"amount must be greater than zero", "reason is required"}},
			check: func(t *testing.T, err error) {
				var verr *shared.ValidationError
				require.ErrorAs(t, err, &verr)
				require.Equal(t, []string{"amount must be greater than zero", "reason is required"}, verr.Problems)
			},
		},
		{
			name:   "state",
			status: http.StatusConflict,
			body:   httpx.ProblemDetail{Type: httpx.ProblemState, Detail: "invoice is locked", State: "SENT"},
			check: func(t *testing.T, err error) {
				var serr *shared.StateError
				require.ErrorAs(t, err, &serr)
				require.Equal(t, "invoice is locked", serr.Reason)
				require.Equal(t, "SENT", serr.State)
			},
		},
		{
			name:   "duplicate",
			status: http.StatusConflict,
			body:   httpx.ProblemDetail{Type: httpx.ProblemDuplicate},
			check: func(t *testing.T, err error) {
				require.ErrorIs(t, err, shared.ErrIdempotencyConflict)
			},
		},
		{
			name:   "not found",
			status: http.StatusNotFound,
			body:   httpx.ProblemDetail{Title: "Not Found"},
			check: func(t *testing.T, err error) {
				require.ErrorIs(t, err, shared.ErrNotFound)
			},
		},
		{
			name:   "server error",
			status: http.StatusInternalServerError,
			body:   httpx.ProblemDetail{Title: "Internal Error"},
			check: func(t *testing.T, err error) {
				var remote *shared.RemoteFailure
				require.ErrorAs(t, err, &remote)
				require.Equal(t, http.StatusInternalServerError, remote.Status)
				require.False(t, remote.Timeout)
			},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				httpx.JSON(w, tc.status, tc.body)
			}))
			_, err := c.GetInvoice(t.Context(), 1)
			require.Error(t, err)
			tc.check(t, err)
		})
	}
}

func TestClientCreateAdjustmentWire(t *testing.T) {
	adjusted := sentInvoice(7, "1000")
	adjusted.AdjustmentNet = d("-100")
	c := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/adjustments", r.URL.Path)
		require.Equal(t, "adj-key", r.Header.Get(httpx.IdempotencyHeader))
		require.Equal(t, "12", r.Header.Get(httpx.ActorHeader))
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Equal(t, "2024-03-15", body["effective_date"])
		require.Equal(t, "waiver", body["type"])
		require.Equal(t, "100", body["amount"])
		require.Equal(t, "1000", body["expected_previous_total"])
		require.Equal(t, "-100", body["expected_delta"])
		httpx.JSON(w, http.StatusCreated, map[string]any{
			"success":          true,
			"adjustment":       billing.Adjustment{InvoiceID: 7, Delta: d("-100"), NewTotal: d("900")},
			"adjusted_invoice": adjusted,
		})
	}), WithActor(12))

	res, err := c.CreateAdjustment(t.Context(), billing.Proposal{
		Request: billing.AdjustmentRequest{
			InvoiceID: 7, Type: billing.AdjustmentWaiver, AmountType: billing.AmountFixed, Value: d("100"),
			Reason: "goodwill", EffectiveDate: time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC),
		},
		PreviousTotal: d("1000"), Delta: d("-100"), NewTotal: d("900"),
	}, "adj-key")
	require.NoError(t, err)
	require.Equal(t, "900", res.Adjustment.NewTotal.String())
	require.Equal(t, "900", res.Invoice.TotalAmount().String())
	require.Len(t, res.Invoice.Lines(), 1)
}

func TestClientTransportErrorIsRemoteFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()
	c := NewClient(url, WithLogger(quietLogger()))

	_, err := c.FinancialSummary(t.Context())
	var remote *shared.RemoteFailure
	require.ErrorAs(t, err, &remote)
	require.False(t, remote.Timeout)
	require.True(t, errors.Is(err, shared.ErrRemote))
}

func paymentFor(tenantID int64, amount string) payments.PaymentInput {
	return payments.PaymentInput{
		TenantID: tenantID, Amount: d(amount), Method: payments.MethodBankTransfer,
		Date: time.Date(2024, 3, 12, 0, 0, 0, 0, time.UTC), Reference: "TRX-1",
	}
}
