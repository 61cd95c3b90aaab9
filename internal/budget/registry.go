// Package budget manages planned amounts per (category, year, month).
package budget

import (
	"context"
	"log/slog"

	"github.com/shopspring/decimal"

	"tally/internal/core"
	"tally/internal/store"
)

type Registry struct {
	store store.BudgetStore
}

func New(st store.BudgetStore) *Registry {
	return &Registry{store: st}
}

// Upsert writes or replaces the budget row keyed by (category, year, month).
// The category is normalized before keying; a category that is blank after
// normalization is rejected.
func (r *Registry) Upsert(ctx context.Context, category string, year, month int, amount decimal.Decimal, btype core.BudgetType) (core.Budget, error) {
	normalized := core.NormalizeCategory(category)
	if normalized == "" {
		return core.Budget{}, core.Validationf("category cannot be blank")
	}
	if month < 1 || month > 12 {
		return core.Budget{}, core.Validationf("month %d out of range", month)
	}
	if !btype.IsValid() {
		return core.Budget{}, core.Validationf("unknown budget type %q", btype)
	}

	b, err := r.store.UpsertBudget(ctx, core.Budget{
		Category: normalized,
		Year:     year,
		Month:    month,
		Amount:   amount.Abs(),
		Type:     btype,
	})
	if err != nil {
		return core.Budget{}, core.StoreErr("upsert budget", err)
	}

	slog.InfoContext(ctx, "Budget upserted",
		"category", b.Category,
		"year", b.Year,
		"month", b.Month,
		"amount", b.Amount.String(),
		"type", b.Type)
	return b, nil
}

// ListForMonth returns the month's budget rows ordered by category ascending.
func (r *Registry) ListForMonth(ctx context.Context, year, month int) ([]core.Budget, error) {
	budgets, err := r.store.ListBudgets(ctx, year, month)
	if err != nil {
		return nil, core.StoreErr("list budgets", err)
	}
	return budgets, nil
}
