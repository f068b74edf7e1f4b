package http

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"fintrack/internal/core"
	"fintrack/internal/services"
	"fintrack/internal/storage"
	"fintrack/internal/tabular"
)

type transactionJSON struct {
	ID          int64           `json:"id"`
	AccountID   *int64          `json:"account_id,omitempty"`
	Date        core.Date       `json:"date"`
	Amount      decimal.Decimal `json:"amount"`
	TxnType     string          `json:"txn_type"`
	CategoryID  *int64          `json:"category_id,omitempty"`
	Vendor      *string         `json:"vendor,omitempty"`
	Note        *string         `json:"note,omitempty"`
	IsRecurring bool            `json:"is_recurring"`
	Source      string          `json:"source"`
	CreatedAt   time.Time       `json:"created_at"`
}

func toTransactionJSON(tx *core.Transaction) transactionJSON {
	return transactionJSON{
		ID:          tx.ID,
		AccountID:   tx.AccountID,
		Date:        tx.Date,
		Amount:      tx.Amount,
		TxnType:     string(tx.TxnType),
		CategoryID:  tx.CategoryID,
		Vendor:      tx.Vendor,
		Note:        tx.Note,
		IsRecurring: tx.IsRecurring,
		Source:      tx.Source,
		CreatedAt:   tx.CreatedAt,
	}
}

type createTransactionRequest struct {
	Date        string           `json:"date"`
	Amount      *decimal.Decimal `json:"amount"`
	TxnType     string           `json:"txn_type"`
	AccountID   *int64           `json:"account_id"`
	CategoryID  *int64           `json:"category_id"`
	Vendor      *string          `json:"vendor"`
	Note        *string          `json:"note"`
	IsRecurring bool             `json:"is_recurring"`
	Source      string           `json:"source"`
}

func (s *Server) handleCreateTransaction(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserID(r.Context())

	var req createTransactionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if req.Amount == nil {
		writeError(w, r, core.Validationf("amount is required"))
		return
	}

	tx, err := s.ingest.Create(r.Context(), userID, services.CreateTransactionInput{
		Date:        req.Date,
		Amount:      req.Amount.String(),
		TxnType:     req.TxnType,
		AccountID:   req.AccountID,
		CategoryID:  req.CategoryID,
		Vendor:      req.Vendor,
		Note:        req.Note,
		IsRecurring: req.IsRecurring,
		Source:      req.Source,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toTransactionJSON(tx))
}

func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserID(r.Context())

	filter := storage.TxnFilter{
		Limit:  queryInt(r, "limit", 100),
		Offset: queryInt(r, "offset", 0),
	}
	accountID, err := queryInt64Ptr(r, "account_id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	filter.AccountID = accountID

	txs, err := s.store.ListTransactions(r.Context(), userID, filter)
	if err != nil {
		writeError(w, r, err)
		return
	}

	out := make([]transactionJSON, 0, len(txs))
	for i := range txs {
		out = append(out, toTransactionJSON(&txs[i]))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetTransaction(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserID(r.Context())
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	tx, err := s.store.TransactionByID(r.Context(), userID, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toTransactionJSON(tx))
}

func (s *Server) handleDeleteTransaction(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserID(r.Context())
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	if err := s.store.DeleteTransaction(r.Context(), userID, id); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// importResponse reports only the inserted count; skipped duplicates are
// a normal outcome, not surfaced per row.
type importResponse struct {
	Imported int `json:"imported"`
}

func (s *Server) handleImportTransactions(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserID(r.Context())

	r.Body = http.MaxBytesReader(w, r.Body, s.maxImportBytes)
	if err := r.ParseMultipartForm(s.maxImportBytes); err != nil {
		writeError(w, r, core.Validationf("invalid multipart request: %v", err))
		return
	}

	file, _, err := r.FormFile("file")
	if err != nil {
		writeError(w, r, core.Validationf("request is missing the 'file' field"))
		return
	}
	defer file.Close()

	rows, err := tabular.ParseCSV(file)
	if err != nil {
		writeError(w, r, err)
		return
	}

	imported, err := s.ingest.Import(r.Context(), userID, rows)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, importResponse{Imported: imported})
}

func pathID(r *http.Request) (int64, error) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id < 1 {
		return 0, core.Validationf("invalid id %q", raw)
	}
	return id, nil
}

func queryInt(r *http.Request, key string, fallback int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return fallback
	}
	return n
}

func queryInt64Ptr(r *http.Request, key string) (*int64, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return nil, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return nil, core.Validationf("%s %q is not an integer", key, v)
	}
	return &n, nil
}
