// Package http exposes the ledger over a JSON API.
package http

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"fintrack/internal/auth"
	"fintrack/internal/services"
	"fintrack/internal/storage"
)

type Server struct {
	store  storage.Store
	ingest *services.IngestService
	report *services.ReportService
	auth   *auth.Manager

	maxImportBytes int64

	httpServer *http.Server
}

type Options struct {
	Store          storage.Store
	Ingest         *services.IngestService
	Report         *services.ReportService
	Auth           *auth.Manager
	MaxImportBytes int64
}

func NewServer(opts Options) *Server {
	return &Server{
		store:          opts.Store,
		ingest:         opts.Ingest,
		report:         opts.Report,
		auth:           opts.Auth,
		maxImportBytes: opts.MaxImportBytes,
	}
}

func (s *Server) Router() *chi.Mux {
	r := chi.NewRouter()
	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware)

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)

	r.Route("/api", func(r chi.Router) {
		r.Post("/auth/register", s.handleRegister)
		r.Post("/auth/login", s.handleLogin)

		// Everything below requires a token.
		r.With(AuthMiddleware(s.auth)).Group(func(r chi.Router) {
			r.Post("/transactions", s.handleCreateTransaction)
			r.Get("/transactions", s.handleListTransactions)
			r.Get("/transactions/{id}", s.handleGetTransaction)
			r.Delete("/transactions/{id}", s.handleDeleteTransaction)
			r.Post("/transactions/import", s.handleImportTransactions)

			r.Get("/aggregations/monthly", s.handleMonthlySummary)

			r.Post("/budgets", s.handleCreateBudget)
			r.Get("/budgets", s.handleListBudgets)
			r.Get("/budgets/compare", s.handleCompareBudgets)
			r.Get("/budgets/{id}", s.handleGetBudget)
			r.Put("/budgets/{id}", s.handleUpdateBudget)
			r.Delete("/budgets/{id}", s.handleDeleteBudget)

			r.Post("/categories", s.handleCreateCategory)
			r.Get("/categories", s.handleListCategories)
			r.Get("/categories/{id}", s.handleGetCategory)
			r.Put("/categories/{id}", s.handleUpdateCategory)
			r.Delete("/categories/{id}", s.handleDeleteCategory)

			r.Post("/accounts", s.handleCreateAccount)
			r.Get("/accounts", s.handleListAccounts)
			r.Get("/accounts/{id}", s.handleGetAccount)
			r.Delete("/accounts/{id}", s.handleDeleteAccount)
		})
	})

	return r
}

// Start blocks until the context is cancelled, then shuts down with a
// grace period.
func (s *Server) Start(ctx context.Context, port string) error {
	s.httpServer = &http.Server{
		Addr:              ":" + port,
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("listen on :%s: %w", port, err)
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	// Ready means the store answers; a cheap query stands in for a ping.
	if _, err := s.store.ListAccounts(r.Context(), 0); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
