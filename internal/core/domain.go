package core

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	Income  TransactionType = "income"
	Expense TransactionType = "expense"
)

const (
	BudgetIncome  BudgetType = "income"
	BudgetBill    BudgetType = "bill"
	BudgetPlanned BudgetType = "budget"
	BudgetSavings BudgetType = "savings"
)

type (
	TransactionType string

	BudgetType string

	// Account identifies where transactions are booked. Identity is
	// immutable once created; transactions reference it by ID.
	Account struct {
		ID   string
		Name string
	}

	// Transaction is a single ledger entry.
	//
	// Money convention: Amount is always stored positive; Type carries the
	// direction. Income adds to an account balance, expense subtracts.
	// Category is always stored normalized (trimmed, lower-cased).
	//
	// Split mechanics: a transaction with IsSplitParent set delegates its
	// whole monetary effect to its children and contributes nothing to
	// balances or actuals itself. A child has ParentID set, never nests,
	// and carries its own category and amount.
	Transaction struct {
		ID            string
		Date          time.Time
		Amount        decimal.Decimal
		Description   string
		Category      string
		Type          TransactionType
		AccountID     string
		Notes         string
		Deleted       bool
		IsSplitParent bool
		ParentID      string // empty unless this is a split child
	}

	// Budget is a planned amount for (Category, Year, Month). The triple is
	// the upsert key; writing it again replaces Amount and Type.
	Budget struct {
		ID       string
		Category string
		Year     int
		Month    int // 1-12
		Amount   decimal.Decimal
		Type     BudgetType
	}

	// CategoryRule maps a description substring to a category. Lower
	// priority numbers win.
	CategoryRule struct {
		ID        string
		MatchText string
		Category  string
		Priority  int
	}
)

// SplitTolerance is the maximum allowed difference between a split parent's
// amount and the sum of its children's amounts.
var SplitTolerance = decimal.RequireFromString("0.01")

// incomeCategories drives type classification. Membership is decided on the
// normalized category; everything else is an expense.
var incomeCategories = map[string]struct{}{
	"income":       {},
	"paycheck":     {},
	"deposit":      {},
	"net paycheck": {},
}

// NormalizeCategory trims and lower-cases a category name. Every write and
// every compare goes through this so that "Food" and " food " land in the
// same bucket.
func NormalizeCategory(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// ClassifyType derives the transaction type from an already-normalized
// category. It is recomputed on every insert and update; user input never
// sets it directly.
func ClassifyType(normalizedCategory string) TransactionType {
	if _, ok := incomeCategories[normalizedCategory]; ok {
		return Income
	}
	return Expense
}

// SignedAmount applies the money convention: income positive, expense
// negative.
func (t Transaction) SignedAmount() decimal.Decimal {
	if t.Type == Income {
		return t.Amount
	}
	return t.Amount.Neg()
}

// IsSplitChild reports whether the transaction is a child in a split family.
func (t Transaction) IsSplitChild() bool {
	return t.ParentID != ""
}

// IsValid reports whether bt is one of the four budget section types.
func (bt BudgetType) IsValid() bool {
	switch bt {
	case BudgetIncome, BudgetBill, BudgetPlanned, BudgetSavings:
		return true
	}
	return false
}

// MonthRange returns the half-open interval [first of month, first of next
// month). The rollover from December to January of the following year is
// handled by time.Date normalization.
func MonthRange(year, month int) (time.Time, time.Time) {
	start := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(year, time.Month(month)+1, 1, 0, 0, 0, 0, time.UTC)
	return start, end
}

// Day truncates t to UTC midnight. Ledger dates carry no time component.
func Day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
