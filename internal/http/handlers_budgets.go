package http

import (
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"fintrack/internal/core"
)

type budgetJSON struct {
	ID         int64           `json:"id"`
	Month      string          `json:"month"`
	CategoryID int64           `json:"category_id"`
	Amount     decimal.Decimal `json:"amount"`
	CreatedAt  time.Time       `json:"created_at"`
}

func toBudgetJSON(b *core.Budget) budgetJSON {
	return budgetJSON{
		ID:         b.ID,
		Month:      b.Month,
		CategoryID: b.CategoryID,
		Amount:     b.Amount,
		CreatedAt:  b.CreatedAt,
	}
}

type budgetRequest struct {
	Month      string           `json:"month"`
	CategoryID int64            `json:"category_id"`
	Amount     *decimal.Decimal `json:"amount"`
}

func (s *Server) budgetFromRequest(r *http.Request, userID int64) (*core.Budget, error) {
	var req budgetRequest
	if err := decodeJSON(r, &req); err != nil {
		return nil, err
	}
	if req.Amount == nil {
		return nil, core.Validationf("amount is required")
	}
	amount, err := core.ParseAmount(req.Amount.String())
	if err != nil {
		return nil, err
	}

	b := &core.Budget{
		UserID:     userID,
		Month:      req.Month,
		CategoryID: req.CategoryID,
		Amount:     amount,
	}
	if err := b.Validate(); err != nil {
		return nil, err
	}
	// The category must be the user's own.
	if _, err := s.store.CategoryByID(r.Context(), userID, b.CategoryID); err != nil {
		return nil, err
	}
	return b, nil
}

func (s *Server) handleCreateBudget(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserID(r.Context())

	b, err := s.budgetFromRequest(r, userID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.store.CreateBudget(r.Context(), b); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toBudgetJSON(b))
}

func (s *Server) handleListBudgets(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserID(r.Context())

	month := r.URL.Query().Get("month")
	if month != "" {
		if _, err := core.ParseMonth(month); err != nil {
			writeError(w, r, err)
			return
		}
	}
	categoryID, err := queryInt64Ptr(r, "category_id")
	if err != nil {
		writeError(w, r, err)
		return
	}

	budgets, err := s.store.ListBudgets(r.Context(), userID, month, categoryID,
		queryInt(r, "limit", 100), queryInt(r, "offset", 0))
	if err != nil {
		writeError(w, r, err)
		return
	}

	out := make([]budgetJSON, 0, len(budgets))
	for i := range budgets {
		out = append(out, toBudgetJSON(&budgets[i]))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetBudget(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserID(r.Context())
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	b, err := s.store.BudgetByID(r.Context(), userID, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toBudgetJSON(b))
}

type updateBudgetRequest struct {
	Amount *decimal.Decimal `json:"amount"`
}

// handleUpdateBudget changes the planned amount. Month and category
// identify the budget and stay fixed; replanning a category means
// deleting and recreating.
func (s *Server) handleUpdateBudget(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserID(r.Context())
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	var req updateBudgetRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if req.Amount == nil {
		writeError(w, r, core.Validationf("amount is required"))
		return
	}
	amount, err := core.ParseAmount(req.Amount.String())
	if err != nil {
		writeError(w, r, err)
		return
	}

	b, err := s.store.BudgetByID(r.Context(), userID, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	b.Amount = amount
	if err := s.store.UpdateBudget(r.Context(), b); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toBudgetJSON(b))
}

func (s *Server) handleDeleteBudget(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserID(r.Context())
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	if err := s.store.DeleteBudget(r.Context(), userID, id); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
