package http

import (
	"net/http"

	"fintrack/internal/core"
)

func (s *Server) handleMonthlySummary(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserID(r.Context())

	month := r.URL.Query().Get("month")
	if month == "" {
		writeError(w, r, core.Validationf("month query parameter is required"))
		return
	}
	accountID, err := queryInt64Ptr(r, "account_id")
	if err != nil {
		writeError(w, r, err)
		return
	}

	summary, err := s.report.MonthlySummary(r.Context(), userID, month, accountID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (s *Server) handleCompareBudgets(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserID(r.Context())

	month := r.URL.Query().Get("month")
	if month == "" {
		writeError(w, r, core.Validationf("month query parameter is required"))
		return
	}
	accountID, err := queryInt64Ptr(r, "account_id")
	if err != nil {
		writeError(w, r, err)
		return
	}

	cmp, err := s.report.CompareBudgets(r.Context(), userID, month, accountID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cmp)
}
