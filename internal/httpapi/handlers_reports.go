package httpapi

import (
	"net/http"
	"sort"
)

func (s *Server) handleMonthlyActuals(w http.ResponseWriter, r *http.Request) {
	year, month, err := yearMonth(r)
	if err != nil {
		respondError(w, r, err)
		return
	}

	actuals, err := s.reports.MonthlyActuals(r.Context(), year, month)
	if err != nil {
		respondError(w, r, err)
		return
	}
	summary, err := s.reports.MonthlySummary(r.Context(), year, month)
	if err != nil {
		respondError(w, r, err)
		return
	}

	type actualJSON struct {
		Category string `json:"category"`
		Amount   string `json:"amount"`
	}
	categories := make([]string, 0, len(actuals))
	for cat := range actuals {
		categories = append(categories, cat)
	}
	sort.Strings(categories)

	out := make([]actualJSON, 0, len(categories))
	for _, cat := range categories {
		out = append(out, actualJSON{Category: cat, Amount: actuals[cat].String()})
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"year":     year,
		"month":    month,
		"actuals":  out,
		"income":   summary.Income.String(),
		"expenses": summary.Expenses.String(),
		"net":      summary.Net.String(),
	})
}

func (s *Server) handleBudgetVsActual(w http.ResponseWriter, r *http.Request) {
	year, month, err := yearMonth(r)
	if err != nil {
		respondError(w, r, err)
		return
	}

	lines, err := s.reports.BudgetVsActual(r.Context(), year, month)
	if err != nil {
		respondError(w, r, err)
		return
	}

	type lineJSON struct {
		Category   string `json:"category"`
		Budgeted   string `json:"budgeted"`
		Actual     string `json:"actual"`
		Difference string `json:"difference"`
	}
	out := make([]lineJSON, 0, len(lines))
	for _, l := range lines {
		out = append(out, lineJSON{
			Category:   l.Category,
			Budgeted:   l.Budgeted.String(),
			Actual:     l.Actual.String(),
			Difference: l.Difference.String(),
		})
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"year":  year,
		"month": month,
		"lines": out,
	})
}
