package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"bilancio/internal/charts"
	"bilancio/internal/core"
	"bilancio/internal/snapshot"
)

const (
	maxBodyBytes      = 1 << 20 // 1 MB
	defaultFlowMonths = 12
	maxFlowMonths     = 60
)

// writeJSON encodes v as the response body with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// writeDomainError maps domain errors to HTTP status codes. Missing
// records are 404, validation failures 400, everything else 500.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, core.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, core.ErrInvalidMonth),
		errors.Is(err, core.ErrInvalidAmount),
		errors.Is(err, core.ErrInvalidDuration),
		errors.Is(err, core.ErrInvalidInstallments),
		errors.Is(err, core.ErrInvalidDay),
		errors.Is(err, core.ErrEmptyTitle),
		errors.Is(err, core.ErrUnknownIncomeType),
		errors.Is(err, core.ErrUnknownExpenseType):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		slog.Error("Request failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return false
	}
	return true
}

// monthParam reads a month query parameter, defaulting to the current
// month when absent.
func monthParam(r *http.Request, name string) (core.Month, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return core.MonthOf(time.Now()), nil
	}
	return core.ParseMonth(raw)
}

func scopeParam(r *http.Request) (core.EditScope, error) {
	raw := r.URL.Query().Get("scope")
	if raw == "" {
		return core.ScopeOnly, nil
	}
	scope := core.EditScope(raw)
	if err := scope.Validate(); err != nil {
		return "", err
	}
	return scope, nil
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	month, err := monthParam(r, "month")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	cacheKey := string(month)
	if summary, found := s.summaryCache.Get(cacheKey); found {
		writeJSON(w, http.StatusOK, summary)
		return
	}

	summary := s.tracker.Summary(month)
	s.summaryCache.Set(cacheKey, summary)
	writeJSON(w, http.StatusOK, summary)
}

func (s *Server) handleCashFlow(w http.ResponseWriter, r *http.Request) {
	start, months, err := cashFlowParams(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	cacheKey := fmt.Sprintf("%s:%d", start, months)
	if series, found := s.cashFlowCache.Get(cacheKey); found {
		writeJSON(w, http.StatusOK, series)
		return
	}

	series := s.tracker.CashFlow(start, months)
	s.cashFlowCache.Set(cacheKey, series)
	writeJSON(w, http.StatusOK, series)
}

func cashFlowParams(r *http.Request) (core.Month, int, error) {
	start, err := monthParam(r, "start")
	if err != nil {
		return "", 0, err
	}

	months := defaultFlowMonths
	if raw := r.URL.Query().Get("months"); raw != "" {
		months, err = strconv.Atoi(raw)
		if err != nil || months < 1 || months > maxFlowMonths {
			return "", 0, fmt.Errorf("months must be between 1 and %d", maxFlowMonths)
		}
	}
	return start, months, nil
}

func (s *Server) handleListIncomes(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.tracker.Incomes())
}

func (s *Server) handleCreateIncome(w http.ResponseWriter, r *http.Request) {
	var inc core.Income
	if !decodeBody(w, r, &inc) {
		return
	}

	created, err := s.tracker.AddIncome(r.Context(), inc)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	s.invalidateCaches()
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) handleUpdateIncome(w http.ResponseWriter, r *http.Request) {
	var inc core.Income
	if !decodeBody(w, r, &inc) {
		return
	}
	inc.ID = r.PathValue("id")

	if err := s.tracker.UpdateIncome(r.Context(), inc); err != nil {
		writeDomainError(w, err)
		return
	}
	s.invalidateCaches()
	writeJSON(w, http.StatusOK, inc)
}

func (s *Server) handleDeleteIncome(w http.ResponseWriter, r *http.Request) {
	if err := s.tracker.DeleteIncome(r.Context(), r.PathValue("id")); err != nil {
		writeDomainError(w, err)
		return
	}
	s.invalidateCaches()
	w.WriteHeader(http.StatusNoContent)
}

// pushValueRequest carries one value ledger entry.
type pushValueRequest struct {
	Month         core.Month `json:"monthYear"`
	Value         core.Money `json:"value"`
	PaymentMethod string     `json:"paymentMethod,omitempty"`
}

func (s *Server) handlePushIncomeValue(w http.ResponseWriter, r *http.Request) {
	var req pushValueRequest
	if !decodeBody(w, r, &req) {
		return
	}

	err := s.tracker.PushIncomeValue(r.Context(), r.PathValue("id"), req.Month, req.Value, req.PaymentMethod)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	s.invalidateCaches()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListExpenses(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.tracker.Expenses())
}

// createExpenseRequest wraps an expense with the number of parcels to
// expand it into. A count above one generates the whole series.
type createExpenseRequest struct {
	core.Expense
	InstallmentCount int `json:"installmentCount,omitempty"`
}

func (s *Server) handleCreateExpense(w http.ResponseWriter, r *http.Request) {
	var req createExpenseRequest
	if !decodeBody(w, r, &req) {
		return
	}

	created, err := s.tracker.AddExpense(r.Context(), req.Expense, req.InstallmentCount)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	s.invalidateCaches()
	writeJSON(w, http.StatusCreated, created)
}

// updateExpenseRequest mirrors core.ExpenseUpdate over JSON. Absent
// fields stay untouched.
type updateExpenseRequest struct {
	Title            *string     `json:"title,omitempty"`
	CategoryID       *string     `json:"categoryId,omitempty"`
	PaymentMethod    *string     `json:"paymentMethod,omitempty"`
	BillingMonth     *core.Month `json:"billingMonth,omitempty"`
	TotalValue       *core.Money `json:"totalValue,omitempty"`
	InstallmentCount *int        `json:"installmentCount,omitempty"`
	IsPaid           *bool       `json:"isPaid,omitempty"`
}

func (s *Server) handleUpdateExpense(w http.ResponseWriter, r *http.Request) {
	scope, err := scopeParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req updateExpenseRequest
	if !decodeBody(w, r, &req) {
		return
	}

	upd := core.ExpenseUpdate{
		Title:            req.Title,
		CategoryID:       req.CategoryID,
		PaymentMethod:    req.PaymentMethod,
		BillingMonth:     req.BillingMonth,
		TotalValue:       req.TotalValue,
		InstallmentCount: req.InstallmentCount,
		IsPaid:           req.IsPaid,
	}
	if err := s.tracker.UpdateExpense(r.Context(), r.PathValue("id"), upd, scope); err != nil {
		writeDomainError(w, err)
		return
	}
	s.invalidateCaches()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDeleteExpense(w http.ResponseWriter, r *http.Request) {
	scope, err := scopeParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := s.tracker.DeleteExpense(r.Context(), r.PathValue("id"), scope); err != nil {
		writeDomainError(w, err)
		return
	}
	s.invalidateCaches()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleToggleExpensePaid(w http.ResponseWriter, r *http.Request) {
	paid, err := s.tracker.ToggleExpensePaid(r.Context(), r.PathValue("id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	s.invalidateCaches()
	writeJSON(w, http.StatusOK, map[string]bool{"isPaid": paid})
}

func (s *Server) handlePushExpenseValue(w http.ResponseWriter, r *http.Request) {
	var req pushValueRequest
	if !decodeBody(w, r, &req) {
		return
	}

	err := s.tracker.PushExpenseValue(r.Context(), r.PathValue("id"), req.Month, req.Value, req.PaymentMethod)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	s.invalidateCaches()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListCategories(w http.ResponseWriter, _ *http.Request) {
	income, expense := s.tracker.Categories()
	writeJSON(w, http.StatusOK, map[string][]core.Category{
		"income":  income,
		"expense": expense,
	})
}

func (s *Server) handleCreateCategory(w http.ResponseWriter, r *http.Request) {
	var cat core.Category
	if !decodeBody(w, r, &cat) {
		return
	}

	created, err := s.tracker.AddCategory(r.Context(), cat)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) handleDeleteCategory(w http.ResponseWriter, r *http.Request) {
	if err := s.tracker.DeleteCategory(r.Context(), r.PathValue("id")); err != nil {
		writeDomainError(w, err)
		return
	}
	// Records that referenced the category now fold into the Other
	// bucket, so cached summaries are stale.
	s.invalidateCaches()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListCards(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.tracker.Cards())
}

func (s *Server) handleCreateCard(w http.ResponseWriter, r *http.Request) {
	var card core.CreditCard
	if !decodeBody(w, r, &card) {
		return
	}

	created, err := s.tracker.AddCard(r.Context(), card)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) handleUpdateCard(w http.ResponseWriter, r *http.Request) {
	var card core.CreditCard
	if !decodeBody(w, r, &card) {
		return
	}
	card.ID = r.PathValue("id")

	if err := s.tracker.UpdateCard(r.Context(), card); err != nil {
		writeDomainError(w, err)
		return
	}
	s.invalidateCaches()
	writeJSON(w, http.StatusOK, card)
}

func (s *Server) handleDeleteCard(w http.ResponseWriter, r *http.Request) {
	if err := s.tracker.DeleteCard(r.Context(), r.PathValue("id")); err != nil {
		writeDomainError(w, err)
		return
	}
	s.invalidateCaches()
	w.WriteHeader(http.StatusNoContent)
}

type togglePaymentRequest struct {
	Month core.Month `json:"monthYear"`
}

func (s *Server) handleToggleCardPayment(w http.ResponseWriter, r *http.Request) {
	var req togglePaymentRequest
	if !decodeBody(w, r, &req) {
		return
	}

	paid, err := s.tracker.ToggleCardPayment(r.Context(), r.PathValue("id"), req.Month)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	s.invalidateCaches()
	writeJSON(w, http.StatusOK, map[string]bool{"isPaid": paid})
}

func (s *Server) handleExportSnapshot(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.tracker.Snapshot())
}

func (s *Server) handleImportSnapshot(w http.ResponseWriter, r *http.Request) {
	var doc snapshot.Document
	if !decodeBody(w, r, &doc) {
		return
	}

	if err := s.tracker.Restore(r.Context(), doc); err != nil {
		writeDomainError(w, err)
		return
	}
	s.invalidateCaches()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleCashFlowChart(w http.ResponseWriter, r *http.Request) {
	start, months, err := cashFlowParams(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	png, err := s.renderer.CashFlowPNG(s.tracker.CashFlow(start, months))
	if err != nil {
		if errors.Is(err, charts.ErrNoData) {
			writeError(w, http.StatusNotFound, "no data to chart")
			return
		}
		writeDomainError(w, err)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	_, _ = w.Write(png)
}

func (s *Server) handleCategoryChart(w http.ResponseWriter, r *http.Request) {
	month, err := monthParam(r, "month")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	png, err := s.renderer.CategoryPiePNG(s.tracker.Summary(month))
	if err != nil {
		if errors.Is(err, charts.ErrNoData) {
			writeError(w, http.StatusNotFound, "no data to chart")
			return
		}
		writeDomainError(w, err)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	_, _ = w.Write(png)
}
