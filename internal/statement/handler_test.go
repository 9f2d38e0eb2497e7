package statement

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func newStatementRouter(t *testing.T) http.Handler {
	t.Helper()
	svc := NewService(newStatementRepo(), "KES", nil)
	h := NewHandler(slog.New(slog.NewTextHandler(io.Discard, nil)), svc)
	r := chi.NewRouter()
	r.Route("/api", h.MountRoutes)
	return r
}

func get(router http.Handler, path string) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
	return rr
}

func TestHandlerStatementJSON(t *testing.T) {
	router := newStatementRouter(t)

	rr := get(router, "/api/leases/1/statement?start=2024-03-02&end=2024-03-31")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var body struct {
		Tenant  Party `json:"tenant"`
		Summary struct {
			Opening string `json:"opening_balance"`
			Closing string `json:"closing_balance"`
		} `json:"summary"`
		Transactions []map[string]any `json:"transactions"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Equal(t, "Amina Njeri", body.Tenant.Name)
	require.Equal(t, "1000", body.Summary.Opening)
	require.Equal(t, "1000", body.Summary.Closing)
	require.Len(t, body.Transactions, 2)
}

func TestHandlerStatementErrors(t *testing.T) {
	router := newStatementRouter(t)

	require.Equal(t, http.StatusNotFound, get(router, "/api/leases/7/statement").Code)
	require.Equal(t, http.StatusUnprocessableEntity, get(router, "/api/leases/1/statement?start=2024-03-10&end=2024-03-01").Code)
	require.Equal(t, http.StatusUnprocessableEntity, get(router, "/api/leases/1/statement?start=03/10/2024").Code)
}

func TestHandlerStatementXLSX(t *testing.T) {
	router := newStatementRouter(t)

	rr := get(router, "/api/leases/1/statement.xlsx?start=2024-03-01&end=2024-03-31")
	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Header().Get("Content-Disposition"), "statement-lease-1-20240331.xlsx")

	f, err := excelize.OpenReader(rr.Body)
	require.NoError(t, err)
	defer func() { _ = f.Close() }()
	rows, err := f.GetRows(SheetName)
	require.NoError(t, err)
	require.Len(t, rows, headerRows+1+3+1)
}
