package httpapi

import (
	"net/http"
	"strconv"

	"github.com/shopspring/decimal"

	"tally/internal/core"
	"tally/internal/importer"
)

type budgetJSON struct {
	ID       string `json:"id"`
	Category string `json:"category"`
	Year     int    `json:"year"`
	Month    int    `json:"month"`
	Amount   string `json:"amount"`
	Type     string `json:"type"`
}

func toBudgetJSON(b core.Budget) budgetJSON {
	return budgetJSON{
		ID:       b.ID,
		Category: b.Category,
		Year:     b.Year,
		Month:    b.Month,
		Amount:   b.Amount.String(),
		Type:     string(b.Type),
	}
}

func (s *Server) handleListBudgets(w http.ResponseWriter, r *http.Request) {
	year, month, err := yearMonth(r)
	if err != nil {
		respondError(w, r, err)
		return
	}

	budgets, err := s.budgets.ListForMonth(r.Context(), year, month)
	if err != nil {
		respondError(w, r, err)
		return
	}

	out := make([]budgetJSON, 0, len(budgets))
	for _, b := range budgets {
		out = append(out, toBudgetJSON(b))
	}
	respondJSON(w, http.StatusOK, out)
}

type upsertBudgetRequest struct {
	Category string          `json:"category"`
	Year     int             `json:"year"`
	Month    int             `json:"month"`
	Amount   decimal.Decimal `json:"amount"`
	Type     string          `json:"type"`
}

func (s *Server) handleUpsertBudget(w http.ResponseWriter, r *http.Request) {
	var req upsertBudgetRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, err)
		return
	}

	b, err := s.budgets.Upsert(r.Context(), req.Category, req.Year, req.Month, req.Amount, core.BudgetType(req.Type))
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, toBudgetJSON(b))
}

func (s *Server) handleListRules(w http.ResponseWriter, r *http.Request) {
	list, err := s.rules.List(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}

	type ruleJSON struct {
		ID        string `json:"id"`
		MatchText string `json:"match_text"`
		Category  string `json:"category"`
		Priority  int    `json:"priority"`
	}
	out := make([]ruleJSON, 0, len(list))
	for _, rule := range list {
		out = append(out, ruleJSON{ID: rule.ID, MatchText: rule.MatchText, Category: rule.Category, Priority: rule.Priority})
	}
	respondJSON(w, http.StatusOK, out)
}

type addRuleRequest struct {
	MatchText string `json:"match_text"`
	Category  string `json:"category"`
	Priority  int    `json:"priority"`
}

func (s *Server) handleAddRule(w http.ResponseWriter, r *http.Request) {
	var req addRuleRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, err)
		return
	}

	rule, err := s.rules.Add(r.Context(), req.MatchText, req.Category, req.Priority)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, map[string]any{
		"id":         rule.ID,
		"match_text": rule.MatchText,
		"category":   rule.Category,
		"priority":   rule.Priority,
	})
}

func (s *Server) handleDeleteRule(w http.ResponseWriter, r *http.Request) {
	if err := s.rules.Delete(r.Context(), r.PathValue("id")); err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// handleImport ingests a CSV body. Column mapping comes from query
// parameters so the body stays raw CSV.
func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	q := r.URL.Query()
	m := importer.Mapping{
		Date:           q.Get("date_col"),
		Amount:         q.Get("amount_col"),
		Description:    q.Get("description_col"),
		Category:       q.Get("category_col"),
		Account:        q.Get("account_col"),
		DateFormat:     q.Get("date_format"),
		DefaultAccount: q.Get("default_account"),
	}

	result, err := s.importer.Import(r.Context(), r.Body, m)
	if err != nil {
		respondError(w, r, err)
		return
	}

	status := http.StatusOK
	if result.Imported == 0 && len(result.Errors) > 0 {
		status = http.StatusUnprocessableEntity
	}
	w.Header().Set("X-Imported-Count", strconv.Itoa(result.Imported))
	respondJSON(w, status, map[string]any{
		"imported": result.Imported,
		"skipped":  result.Skipped,
		"errors":   result.Errors,
	})
}
