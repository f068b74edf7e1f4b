package http

import (
	"net/http"
	"strings"
	"time"

	"fintrack/internal/core"
)

type accountJSON struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	AcctType  string    `json:"type"`
	CreatedAt time.Time `json:"created_at"`
}

func toAccountJSON(a *core.Account) accountJSON {
	return accountJSON{
		ID:        a.ID,
		Name:      a.Name,
		AcctType:  a.AcctType,
		CreatedAt: a.CreatedAt,
	}
}

type accountRequest struct {
	Name     string `json:"name"`
	AcctType string `json:"type"`
}

func (s *Server) handleCreateAccount(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserID(r.Context())

	var req accountRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		writeError(w, r, core.Validationf("account name cannot be empty"))
		return
	}

	a := &core.Account{UserID: userID, Name: req.Name, AcctType: req.AcctType}
	if err := s.store.CreateAccount(r.Context(), a); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toAccountJSON(a))
}

func (s *Server) handleListAccounts(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserID(r.Context())

	accounts, err := s.store.ListAccounts(r.Context(), userID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	out := make([]accountJSON, 0, len(accounts))
	for i := range accounts {
		out = append(out, toAccountJSON(&accounts[i]))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetAccount(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserID(r.Context())
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	a, err := s.store.AccountByID(r.Context(), userID, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toAccountJSON(a))
}

func (s *Server) handleDeleteAccount(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserID(r.Context())
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	if err := s.store.DeleteAccount(r.Context(), userID, id); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
