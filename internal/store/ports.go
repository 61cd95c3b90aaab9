// Package store defines the narrow persistence boundary of the ledger.
// Everything above it (ledger, report engine, budget registry) talks to
// these interfaces only; the sqlite and memory packages supply them.
package store

import (
	"context"
	"time"

	"tally/internal/core"
)

// TransactionFilter narrows ListTransactions. Zero values mean "no
// constraint". Deleted rows are never returned, by any implementation.
type TransactionFilter struct {
	AccountID string // exact
	ParentID  string // exact; selects the children of one split parent

	DescriptionContains string // case-insensitive substring
	CategoryContains    string // substring on the normalized category
	AccountNameContains string // case-insensitive substring on the account name

	// Half-open date range [From, To). Zero times disable the bound.
	From time.Time
	To   time.Time

	ExcludeSplitParents bool
	OnlySplitParents    bool

	// Default ordering is date descending; Ascending flips it.
	Ascending bool
}

// TransactionStore is the store's transaction surface. Multi-row operations
// (DeleteFamily, ReplaceChildren) must be atomic: either all rows change or
// the error leaves state untouched.
type TransactionStore interface {
	ListTransactions(ctx context.Context, f TransactionFilter) ([]core.Transaction, error)

	// GetTransaction returns the row regardless of its deleted flag, or
	// core.ErrNotFound if the id does not exist at all. Liveness checks
	// belong to the caller.
	GetTransaction(ctx context.Context, id string) (core.Transaction, error)

	InsertTransaction(ctx context.Context, tx core.Transaction) error

	// UpdateTransaction replaces the stored row matching tx.ID.
	UpdateTransaction(ctx context.Context, tx core.Transaction) error

	// MarkDeleted soft-deletes the given rows. Missing ids are an error.
	MarkDeleted(ctx context.Context, ids ...string) error

	// DeleteFamily soft-deletes the parent and all its non-deleted children
	// in one atomic step, returning the ids it tombstoned.
	DeleteFamily(ctx context.Context, parentID string) ([]string, error)

	// ReplaceChildren atomically updates the parent row, soft-deletes any
	// current children, and inserts the given new ones. An empty children
	// slice clears the family (used when converting back to single).
	ReplaceChildren(ctx context.Context, parent core.Transaction, children []core.Transaction) error
}

type AccountStore interface {
	ListAccounts(ctx context.Context) ([]core.Account, error)
	GetAccount(ctx context.Context, id string) (core.Account, error)
	CreateAccount(ctx context.Context, name string) (core.Account, error)
}

type BudgetStore interface {
	// ListBudgets returns the rows for (year, month) ordered by category
	// ascending.
	ListBudgets(ctx context.Context, year, month int) ([]core.Budget, error)

	// UpsertBudget writes b keyed by (category, year, month): an existing
	// key gets its amount and type replaced, never duplicated.
	UpsertBudget(ctx context.Context, b core.Budget) (core.Budget, error)
}

type RuleStore interface {
	// ListRules returns all rules ordered by priority ascending.
	ListRules(ctx context.Context) ([]core.CategoryRule, error)
	AddRule(ctx context.Context, r core.CategoryRule) (core.CategoryRule, error)
	DeleteRule(ctx context.Context, id string) error
}

// Store is the complete persistence contract.
type Store interface {
	AccountStore
	TransactionStore
	BudgetStore
	RuleStore
}
