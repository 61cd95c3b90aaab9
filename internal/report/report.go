// Package report derives balances and category rollups from the current
// ledger state. Nothing here writes; every call re-queries the store.
//
// The no-double-count rule: split parents are excluded from every sum, split
// children are included with their own category and amount. Deleted rows are
// already filtered out by the store.
package report

import (
	"context"
	"sort"

	"github.com/shopspring/decimal"

	"tally/internal/core"
	"tally/internal/store"
)

type Engine struct {
	store store.Store
}

func New(st store.Store) *Engine {
	return &Engine{store: st}
}

// AccountBalance sums the signed amounts of all live, non-split-parent
// transactions of one account: income adds, expense subtracts.
func (e *Engine) AccountBalance(ctx context.Context, accountID string) (decimal.Decimal, error) {
	txs, err := e.store.ListTransactions(ctx, store.TransactionFilter{
		AccountID:           accountID,
		ExcludeSplitParents: true,
	})
	if err != nil {
		return decimal.Zero, core.StoreErr("list transactions", err)
	}

	balance := decimal.Zero
	for _, tx := range txs {
		balance = balance.Add(tx.SignedAmount())
	}
	return balance, nil
}

// Balance pairs an account with its derived balance.
type Balance struct {
	Account core.Account
	Balance decimal.Decimal
}

// Overview lists every account with its balance plus the grand total.
func (e *Engine) Overview(ctx context.Context) ([]Balance, decimal.Decimal, error) {
	accounts, err := e.store.ListAccounts(ctx)
	if err != nil {
		return nil, decimal.Zero, core.StoreErr("list accounts", err)
	}

	out := make([]Balance, 0, len(accounts))
	total := decimal.Zero
	for _, acc := range accounts {
		balance, err := e.AccountBalance(ctx, acc.ID)
		if err != nil {
			return nil, decimal.Zero, err
		}
		out = append(out, Balance{Account: acc, Balance: balance})
		total = total.Add(balance)
	}
	return out, total, nil
}

// MonthlyActuals groups the month's live, non-split-parent transactions by
// normalized category and sums their signed amounts: income categories come
// out positive, expense categories negative.
func (e *Engine) MonthlyActuals(ctx context.Context, year, month int) (map[string]decimal.Decimal, error) {
	from, to := core.MonthRange(year, month)
	txs, err := e.store.ListTransactions(ctx, store.TransactionFilter{
		From:                from,
		To:                  to,
		ExcludeSplitParents: true,
		Ascending:           true,
	})
	if err != nil {
		return nil, core.StoreErr("list transactions", err)
	}

	totals := make(map[string]decimal.Decimal)
	for _, tx := range txs {
		cat := tx.Category
		if cat == "" {
			cat = "uncategorized"
		}
		totals[cat] = totals[cat].Add(tx.SignedAmount())
	}
	return totals, nil
}

// MonthlyBudgetTotals sums budget rows for the month by normalized category.
// The (category, year, month) key should make one row per category, but a
// bypassed upsert can leave more; those are summed, not rejected.
func (e *Engine) MonthlyBudgetTotals(ctx context.Context, year, month int) (map[string]decimal.Decimal, error) {
	budgets, err := e.store.ListBudgets(ctx, year, month)
	if err != nil {
		return nil, core.StoreErr("list budgets", err)
	}

	totals := make(map[string]decimal.Decimal)
	for _, b := range budgets {
		cat := core.NormalizeCategory(b.Category)
		totals[cat] = totals[cat].Add(b.Amount)
	}
	return totals, nil
}

// BudgetLine is one category row of the budget-vs-actual comparison. Actual
// is the magnitude of the category's monthly total, Budgeted the planned
// amount; Difference = Actual − Budgeted, so overspending a budget shows as
// positive.
type BudgetLine struct {
	Category   string
	Budgeted   decimal.Decimal
	Actual     decimal.Decimal
	Difference decimal.Decimal
}

// BudgetVsActual outer-joins the categories of MonthlyActuals and
// MonthlyBudgetTotals: a category missing from one side contributes zero
// there. Output is sorted by category ascending.
func (e *Engine) BudgetVsActual(ctx context.Context, year, month int) ([]BudgetLine, error) {
	actuals, err := e.MonthlyActuals(ctx, year, month)
	if err != nil {
		return nil, err
	}
	budgets, err := e.MonthlyBudgetTotals(ctx, year, month)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{}, len(actuals)+len(budgets))
	categories := make([]string, 0, len(actuals)+len(budgets))
	for cat := range actuals {
		if _, ok := seen[cat]; !ok {
			seen[cat] = struct{}{}
			categories = append(categories, cat)
		}
	}
	for cat := range budgets {
		if _, ok := seen[cat]; !ok {
			seen[cat] = struct{}{}
			categories = append(categories, cat)
		}
	}
	sort.Strings(categories)

	lines := make([]BudgetLine, 0, len(categories))
	for _, cat := range categories {
		actual := actuals[cat].Abs()
		budgeted := budgets[cat]
		lines = append(lines, BudgetLine{
			Category:   cat,
			Budgeted:   budgeted,
			Actual:     actual,
			Difference: actual.Sub(budgeted),
		})
	}
	return lines, nil
}

// MonthlySummary totals the month's income and expenses.
func (e *Engine) MonthlySummary(ctx context.Context, year, month int) (Summary, error) {
	from, to := core.MonthRange(year, month)
	txs, err := e.store.ListTransactions(ctx, store.TransactionFilter{
		From: from,
		To:   to,
	})
	if err != nil {
		return Summary{}, core.StoreErr("list transactions", err)
	}
	return IncomeExpenseSummary(txs), nil
}

// Summary partitions a transaction slice into income and expense totals.
// Totals are magnitudes; Net = Income - Expenses.
type Summary struct {
	Income   decimal.Decimal
	Expenses decimal.Decimal
	Net      decimal.Decimal
}

// IncomeExpenseSummary tolerates amounts stored with either sign by summing
// magnitudes per type; the sign convention is applied once, here.
func IncomeExpenseSummary(txs []core.Transaction) Summary {
	income := decimal.Zero
	expenses := decimal.Zero
	for _, tx := range txs {
		if tx.IsSplitParent {
			continue
		}
		if tx.Type == core.Income {
			income = income.Add(tx.Amount.Abs())
		} else {
			expenses = expenses.Add(tx.Amount.Abs())
		}
	}
	return Summary{
		Income:   income,
		Expenses: expenses,
		Net:      income.Sub(expenses),
	}
}
