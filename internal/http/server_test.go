package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"bilancio/internal/core"
	"bilancio/internal/services"
	"bilancio/internal/storage"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()

	repo, err := storage.NewSQLiteRepository(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewSQLiteRepository() error = %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	tracker, err := services.NewTracker(context.Background(), repo, nil)
	if err != nil {
		t.Fatalf("NewTracker() error = %v", err)
	}

	srv := NewServer(":0", tracker)
	t.Cleanup(func() { srv.Shutdown(context.Background()) })
	return srv
}

func doJSON(t *testing.T, srv *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rec, req)
	return rec
}

func TestHealthEndpoints(t *testing.T) {
	srv := newTestServer(t)

	for _, path := range []string{"/healthz", "/readyz"} {
		rec := doJSON(t, srv, http.MethodGet, path, nil)
		if rec.Code != http.StatusOK {
			t.Errorf("GET %s status = %d, want %d", path, rec.Code, http.StatusOK)
		}
	}
}

func TestCreateAndListExpenses(t *testing.T) {
	srv := newTestServer(t)

	rec := doJSON(t, srv, http.MethodPost, "/api/expenses", map[string]any{
		"title":        "Spesa",
		"type":         core.ExpenseOneTime,
		"billingMonth": "2025-03",
		"installmentValue": 4550,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("POST /api/expenses status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var created []core.Expense
	if err := json.NewDecoder(rec.Body).Decode(&created); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(created) != 1 || created[0].ID == "" {
		t.Fatalf("created = %+v, want one expense with an ID", created)
	}

	rec = doJSON(t, srv, http.MethodGet, "/api/expenses", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /api/expenses status = %d", rec.Code)
	}
	var listed []core.Expense
	if err := json.NewDecoder(rec.Body).Decode(&listed); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(listed) != 1 {
		t.Errorf("listed %d expenses, want 1", len(listed))
	}
}

func TestCreateInstallmentSeries(t *testing.T) {
	srv := newTestServer(t)

	rec := doJSON(t, srv, http.MethodPost, "/api/expenses", map[string]any{
		"title":            "Lavatrice",
		"type":             core.ExpenseInstallment,
		"billingMonth":     "2025-01",
		"totalValue":       60000,
		"installmentCount": 6,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("POST /api/expenses status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var created []core.Expense
	if err := json.NewDecoder(rec.Body).Decode(&created); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(created) != 6 {
		t.Fatalf("created %d parcels, want 6", len(created))
	}
	for i, e := range created {
		if e.InstallmentValue.Cents != 10000 {
			t.Errorf("parcel %d value = %d cents, want 10000", i+1, e.InstallmentValue.Cents)
		}
	}
}

func TestUpdateExpenseScopeValidation(t *testing.T) {
	srv := newTestServer(t)

	rec := doJSON(t, srv, http.MethodPut, "/api/expenses/whatever?scope=bogus", map[string]any{})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bogus scope status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestDeleteExpenseNotFound(t *testing.T) {
	srv := newTestServer(t)

	rec := doJSON(t, srv, http.MethodDelete, "/api/expenses/missing", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("delete missing expense status = %d, want %d", rec.Code, http.StatusNotFound)
	}
}

func TestInvalidExpenseRejected(t *testing.T) {
	srv := newTestServer(t)

	rec := doJSON(t, srv, http.MethodPost, "/api/expenses", map[string]any{
		"title":        "",
		"type":         core.ExpenseOneTime,
		"billingMonth": "2025-03",
		"installmentValue": 100,
	})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("empty title status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestIncomeLifecycle(t *testing.T) {
	srv := newTestServer(t)

	rec := doJSON(t, srv, http.MethodPost, "/api/incomes", map[string]any{
		"title": "Stipendio",
		"type":  core.IncomeFixed,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("POST /api/incomes status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var created core.Income
	if err := json.NewDecoder(rec.Body).Decode(&created); err != nil {
		t.Fatalf("decode response: %v", err)
	}

	rec = doJSON(t, srv, http.MethodPost, "/api/incomes/"+created.ID+"/values", map[string]any{
		"monthYear": "2025-01",
		"value":     200000,
	})
	if rec.Code != http.StatusNoContent {
		t.Fatalf("push value status = %d, body = %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, srv, http.MethodGet, "/api/summary?month=2025-04", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /api/summary status = %d", rec.Code)
	}
	var summary core.MonthSummary
	if err := json.NewDecoder(rec.Body).Decode(&summary); err != nil {
		t.Fatalf("decode summary: %v", err)
	}
	if summary.TotalIncome.Cents != 200000 {
		t.Errorf("TotalIncome = %d cents, want 200000", summary.TotalIncome.Cents)
	}

	rec = doJSON(t, srv, http.MethodDelete, "/api/incomes/"+created.ID, nil)
	if rec.Code != http.StatusNoContent {
		t.Errorf("delete income status = %d, want %d", rec.Code, http.StatusNoContent)
	}
}

func TestSummaryCacheInvalidatedOnMutation(t *testing.T) {
	srv := newTestServer(t)

	// Prime the cache with an empty month.
	rec := doJSON(t, srv, http.MethodGet, "/api/summary?month=2025-05", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /api/summary status = %d", rec.Code)
	}

	rec = doJSON(t, srv, http.MethodPost, "/api/expenses", map[string]any{
		"title":        "Bolletta",
		"type":         core.ExpenseOneTime,
		"billingMonth": "2025-05",
		"installmentValue": 7500,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("POST /api/expenses status = %d", rec.Code)
	}

	rec = doJSON(t, srv, http.MethodGet, "/api/summary?month=2025-05", nil)
	var summary core.MonthSummary
	if err := json.NewDecoder(rec.Body).Decode(&summary); err != nil {
		t.Fatalf("decode summary: %v", err)
	}
	if summary.TotalExpense.Cents != 7500 {
		t.Errorf("TotalExpense = %d cents, want 7500 after invalidation", summary.TotalExpense.Cents)
	}
}

func TestCardPaymentToggle(t *testing.T) {
	srv := newTestServer(t)

	rec := doJSON(t, srv, http.MethodPost, "/api/cards", map[string]any{
		"name":       "Visa",
		"closingDay": 25,
		"dueDay":     10,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("POST /api/cards status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var card core.CreditCard
	if err := json.NewDecoder(rec.Body).Decode(&card); err != nil {
		t.Fatalf("decode card: %v", err)
	}

	rec = doJSON(t, srv, http.MethodPost, "/api/cards/"+card.ID+"/payments/toggle", map[string]any{
		"monthYear": "2025-02",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("toggle payment status = %d", rec.Code)
	}
	var result map[string]bool
	if err := json.NewDecoder(rec.Body).Decode(&result); err != nil {
		t.Fatalf("decode toggle result: %v", err)
	}
	if !result["isPaid"] {
		t.Error("first toggle should mark the statement paid")
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	srv := newTestServer(t)

	rec := doJSON(t, srv, http.MethodPost, "/api/incomes", map[string]any{
		"title": "Stipendio",
		"type":  core.IncomeFixed,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("POST /api/incomes status = %d", rec.Code)
	}

	rec = doJSON(t, srv, http.MethodGet, "/api/snapshot", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /api/snapshot status = %d", rec.Code)
	}
	exported := rec.Body.Bytes()

	req := httptest.NewRequest(http.MethodPost, "/api/snapshot", bytes.NewReader(exported))
	req.Header.Set("Content-Type", "application/json")
	imp := httptest.NewRecorder()
	srv.Handler.ServeHTTP(imp, req)
	if imp.Code != http.StatusNoContent {
		t.Fatalf("POST /api/snapshot status = %d, body = %s", imp.Code, imp.Body.String())
	}

	rec = doJSON(t, srv, http.MethodGet, "/api/incomes", nil)
	var incomes []core.Income
	if err := json.NewDecoder(rec.Body).Decode(&incomes); err != nil {
		t.Fatalf("decode incomes: %v", err)
	}
	if len(incomes) != 1 {
		t.Errorf("got %d incomes after restore, want 1", len(incomes))
	}
}

func TestCashFlowValidation(t *testing.T) {
	srv := newTestServer(t)

	tests := []struct {
		path string
		want int
	}{
		{"/api/cashflow?start=2025-01&months=6", http.StatusOK},
		{"/api/cashflow?start=not-a-month", http.StatusBadRequest},
		{"/api/cashflow?months=0", http.StatusBadRequest},
		{"/api/cashflow?months=120", http.StatusBadRequest},
	}
	for _, tt := range tests {
		rec := doJSON(t, srv, http.MethodGet, tt.path, nil)
		if rec.Code != tt.want {
			t.Errorf("GET %s status = %d, want %d", tt.path, rec.Code, tt.want)
		}
	}
}

func TestRateLimitOnMutations(t *testing.T) {
	srv := newTestServer(t)

	limited := false
	for i := 0; i < 70; i++ {
		rec := doJSON(t, srv, http.MethodPost, "/api/categories", map[string]any{
			"name": fmt.Sprintf("Cat %d", i),
			"type": core.CategoryExpense,
		})
		if rec.Code == http.StatusTooManyRequests {
			limited = true
			break
		}
	}
	if !limited {
		t.Error("expected rate limiting to kick in on repeated mutations")
	}
}

func TestExtractClientIP(t *testing.T) {
	tests := []struct {
		name       string
		remoteAddr string
		headers    map[string]string
		want       string
	}{
		{
			name:       "direct connection",
			remoteAddr: "203.0.113.7:1234",
			want:       "203.0.113.7",
		},
		{
			name:       "forwarded via trusted proxy",
			remoteAddr: "127.0.0.1:1234",
			headers:    map[string]string{"X-Forwarded-For": "203.0.113.7"},
			want:       "203.0.113.7",
		},
		{
			name:       "forwarded header from untrusted peer ignored",
			remoteAddr: "203.0.113.50:1234",
			headers:    map[string]string{"X-Forwarded-For": "10.0.0.1"},
			want:       "203.0.113.50",
		},
		{
			name:       "real ip via trusted proxy",
			remoteAddr: "192.168.1.1:1234",
			headers:    map[string]string{"X-Real-IP": "203.0.113.9"},
			want:       "203.0.113.9",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remoteAddr
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			if got := extractClientIP(req); got != tt.want {
				t.Errorf("extractClientIP() = %q, want %q", got, tt.want)
			}
		})
	}
}
