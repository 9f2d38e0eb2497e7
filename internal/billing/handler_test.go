package billing

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/exceva/property-ledger/internal/platform/httpx"
)

func newTestRouter(t *testing.T) (http.Handler, *Service) {
	t.Helper()
	svc, _, _ := newTestService(t)
	h := NewHandler(slog.New(slog.NewTextHandler(io.Discard, nil)), svc)
	r := chi.NewRouter()
	r.Route("/api", h.MountRoutes)
	return r, svc
}

func do(t *testing.T, router http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func TestHandlerInvoiceFlow(t *testing.T) {
	router, _ := newTestRouter(t)

	rr := do(t, router, http.MethodGet, "/api/leases/1/months/2024-03", "")
	require.Equal(t, http.StatusOK, rr.Code)
	var view struct {
		HasInvoice  bool `json:"has_invoice"`
		InvoiceData struct {
			Lines []map[string]any `json:"line_items"`
		} `json:"invoice_data"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &view))
	require.False(t, view.HasInvoice)
	require.Len(t, view.InvoiceData.Lines, 1)
	require.Equal(t, "2500", view.InvoiceData.Lines[0]["line_total"])

	rr = do(t, router, http.MethodPost, "/api/invoices", `{"lease_id":1,"month":"2024-03","line_items":[{"description":"Rent","category":"rent","quantity":"1","unit_price":"2500"}]}`)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	var created Invoice
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &created))
	require.Equal(t, StatusCreated, created.Status)

	rr = do(t, router, http.MethodPost, "/api/invoices/1/send", "")
	require.Equal(t, http.StatusOK, rr.Code)

	rr = do(t, router, http.MethodPut, "/api/invoices/1/lines", `{"line_items":[{"description":"Rent","quantity":"1","unit_price":"1"}]}`)
	require.Equal(t, http.StatusConflict, rr.Code)
	var problem httpx.ProblemDetail
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &problem))
	require.Equal(t, httpx.ProblemState, problem.Type)
	require.Equal(t, "SENT", problem.State)
	require.Contains(t, problem.Detail, "use an adjustment")
}

func TestHandlerAdjustmentProblemsListed(t *testing.T) {
	router, svc := newTestRouter(t)
	createSent(t, svc, 1, "2024-03", line("Rent", "1", "300"))

	rr := do(t, router, http.MethodPost, "/api/adjustments", `{"invoice_id":1,"type":"waiver","amount_type":"fixed","amount":"500","reason":" ","expected_previous_total":"300","expected_delta":"-500"}`)
	require.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	var problem httpx.ProblemDetail
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &problem))
	require.ElementsMatch(t, []string{MsgNegativeTotal, MsgReasonRequired, MsgEffectiveDateNeeded}, problem.Problems)

	rr = do(t, router, http.MethodPost, "/api/adjustments", `{"invoice_id":1,"type":"discount","amount_type":"fixed","amount":"100","reason":"goodwill","effective_date":"2024-03-05"}`)
	require.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	require.Contains(t, rr.Body.String(), MsgReviewRequired)

	rr = do(t, router, http.MethodPost, "/api/adjustments", `{"invoice_id":1,"type":"discount","amount_type":"fixed","amount":"100","reason":"goodwill","effective_date":"2024-03-05","expected_previous_total":"250","expected_delta":"-100"}`)
	require.Equal(t, http.StatusConflict, rr.Code)
	var stale httpx.ProblemDetail
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &stale))
	require.Equal(t, httpx.ProblemState, stale.Type)

	rr = do(t, router, http.MethodPost, "/api/adjustments", `{"invoice_id":1,"type":"discount","amount_type":"fixed","amount":"100","reason":"goodwill","effective_date":"2024-03-05","expected_previous_total":"300","expected_delta":"-100"}`)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	var body struct {
		Success  bool    `json:"success"`
		Adjusted Invoice `json:"adjusted_invoice"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.True(t, body.Success)
	require.Equal(t, "200", body.Adjusted.TotalAmount().String())
}

func TestHandlerRejectsBadInput(t *testing.T) {
	router, _ := newTestRouter(t)

	rr := do(t, router, http.MethodGet, "/api/invoices/abc", "")
	require.Equal(t, http.StatusUnprocessableEntity, rr.Code)

	rr = do(t, router, http.MethodGet, "/api/invoices/404", "")
	require.Equal(t, http.StatusNotFound, rr.Code)

	rr = do(t, router, http.MethodPost, "/api/invoices", `{"lease_id":1,"month":"2024-03","line_items":[],"extra":true}`)
	require.Equal(t, http.StatusUnprocessableEntity, rr.Code)

	rr = do(t, router, http.MethodPost, "/api/invoices/1/cancel", `{}`)
	require.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	require.Contains(t, rr.Body.String(), "reason is required")
}
