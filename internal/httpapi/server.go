// Package httpapi exposes the ledger over a JSON HTTP API.
package httpapi

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"tally/internal/budget"
	"tally/internal/core"
	"tally/internal/importer"
	"tally/internal/ledger"
	"tally/internal/report"
	"tally/internal/rules"
	"tally/internal/store"
)

type Server struct {
	http.Server

	ledger   *ledger.Service
	reports  *report.Engine
	budgets  *budget.Registry
	rules    *rules.Service
	importer *importer.Importer
	accounts store.AccountStore
}

// NewServer configures routes and returns a ready-to-run http.Server.
func NewServer(addr string, led *ledger.Service, rep *report.Engine, bud *budget.Registry, rul *rules.Service, imp *importer.Importer, accounts store.AccountStore) *Server {
	mux := http.NewServeMux()

	s := &Server{
		Server: http.Server{
			Addr:    addr,
			Handler: mux,
		},
		ledger:   led,
		reports:  rep,
		budgets:  bud,
		rules:    rul,
		importer: imp,
		accounts: accounts,
	}

	mux.HandleFunc("GET /healthz", handleHealth)

	mux.HandleFunc("GET /accounts", s.withLogging(s.handleListAccounts))
	mux.HandleFunc("POST /accounts", s.withLogging(s.handleCreateAccount))
	mux.HandleFunc("GET /accounts/overview", s.withLogging(s.handleOverview))

	mux.HandleFunc("GET /transactions", s.withLogging(s.handleListTransactions))
	mux.HandleFunc("POST /transactions", s.withLogging(s.handleCreateTransaction))
	mux.HandleFunc("PATCH /transactions/{id}", s.withLogging(s.handleUpdateTransaction))
	mux.HandleFunc("DELETE /transactions/{id}", s.withLogging(s.handleDeleteTransaction))
	mux.HandleFunc("GET /transactions/{id}/children", s.withLogging(s.handleListChildren))
	mux.HandleFunc("POST /transactions/{id}/split", s.withLogging(s.handleSplit))
	mux.HandleFunc("POST /transactions/{id}/unsplit", s.withLogging(s.handleUnsplit))
	mux.HandleFunc("DELETE /transactions/{id}/family", s.withLogging(s.handleDeleteFamily))
	mux.HandleFunc("GET /families", s.withLogging(s.handleListFamilies))

	mux.HandleFunc("GET /reports/monthly", s.withLogging(s.handleMonthlyActuals))
	mux.HandleFunc("GET /reports/budget-vs-actual", s.withLogging(s.handleBudgetVsActual))

	mux.HandleFunc("GET /budgets", s.withLogging(s.handleListBudgets))
	mux.HandleFunc("PUT /budgets", s.withLogging(s.handleUpsertBudget))

	mux.HandleFunc("GET /rules", s.withLogging(s.handleListRules))
	mux.HandleFunc("POST /rules", s.withLogging(s.handleAddRule))
	mux.HandleFunc("DELETE /rules/{id}", s.withLogging(s.handleDeleteRule))

	mux.HandleFunc("POST /import", s.withLogging(s.handleImport))

	return s
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status":    "ok",
		"timestamp": time.Now().Format(time.RFC3339),
	})
}

// withLogging attaches a request ID and logs request start/finish.
func (s *Server) withLogging(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := generateRequestID()

		ctx := context.WithValue(r.Context(), requestIDKey{}, requestID)
		r = r.WithContext(ctx)

		slog.InfoContext(ctx, "Request started",
			"request_id", requestID,
			"method", r.Method,
			"url", r.URL.Path)

		next(w, r)

		slog.InfoContext(ctx, "Request completed",
			"request_id", requestID,
			"method", r.Method,
			"url", r.URL.Path,
			"duration", time.Since(start).String())
	}
}

type requestIDKey struct{}

func generateRequestID() string {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		return "unknown"
	}
	return hex.EncodeToString(b)
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		if err := json.NewEncoder(w).Encode(v); err != nil {
			slog.Error("Failed to encode response", "error", err)
		}
	}
}

// respondError maps domain error kinds to HTTP status codes.
func respondError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, core.ErrValidation):
		status = http.StatusBadRequest
	case errors.Is(err, core.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, core.ErrReference):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, core.ErrInvariant):
		status = http.StatusConflict
	}

	if status == http.StatusInternalServerError {
		slog.ErrorContext(r.Context(), "Request failed", "method", r.Method, "url", r.URL.Path, "error", err)
	}
	respondJSON(w, status, map[string]string{"error": err.Error()})
}
