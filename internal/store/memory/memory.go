// Package memory implements store.Store in process memory. It backs the
// tests and the default backend when no SQLite path is configured.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"tally/internal/core"
	"tally/internal/store"
)

type Store struct {
	mu           sync.Mutex
	accounts     map[string]core.Account
	transactions map[string]core.Transaction
	budgets      map[string]core.Budget
	rules        map[string]core.CategoryRule
}

var _ store.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		accounts:     make(map[string]core.Account),
		transactions: make(map[string]core.Transaction),
		budgets:      make(map[string]core.Budget),
		rules:        make(map[string]core.CategoryRule),
	}
}

func (s *Store) ListAccounts(_ context.Context) ([]core.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.Account, 0, len(s.accounts))
	for _, a := range s.accounts {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *Store) GetAccount(_ context.Context, id string) (core.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[id]
	if !ok {
		return core.Account{}, core.NotFoundf("account %q", id)
	}
	return a, nil
}

func (s *Store) CreateAccount(_ context.Context, name string) (core.Account, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return core.Account{}, core.Validationf("account name cannot be empty")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	a := core.Account{ID: uuid.NewString(), Name: name}
	s.accounts[a.ID] = a
	return a, nil
}

func (s *Store) ListTransactions(_ context.Context, f store.TransactionFilter) ([]core.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []core.Transaction
	for _, tx := range s.transactions {
		if tx.Deleted {
			continue
		}
		if !s.matches(tx, f) {
			continue
		}
		out = append(out, tx)
	}

	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if !a.Date.Equal(b.Date) {
			if f.Ascending {
				return a.Date.Before(b.Date)
			}
			return a.Date.After(b.Date)
		}
		// Stable tie-break so listings do not jitter between calls.
		return a.ID < b.ID
	})
	return out, nil
}

// matches is called with s.mu held (account lookups).
func (s *Store) matches(tx core.Transaction, f store.TransactionFilter) bool {
	if f.AccountID != "" && tx.AccountID != f.AccountID {
		return false
	}
	if f.ParentID != "" && tx.ParentID != f.ParentID {
		return false
	}
	if f.ExcludeSplitParents && tx.IsSplitParent {
		return false
	}
	if f.OnlySplitParents && !tx.IsSplitParent {
		return false
	}
	if f.DescriptionContains != "" &&
		!strings.Contains(strings.ToLower(tx.Description), strings.ToLower(f.DescriptionContains)) {
		return false
	}
	if f.CategoryContains != "" &&
		!strings.Contains(tx.Category, core.NormalizeCategory(f.CategoryContains)) {
		return false
	}
	if f.AccountNameContains != "" {
		acc, ok := s.accounts[tx.AccountID]
		if !ok || !strings.Contains(strings.ToLower(acc.Name), strings.ToLower(f.AccountNameContains)) {
			return false
		}
	}
	if !f.From.IsZero() && tx.Date.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && !tx.Date.Before(f.To) {
		return false
	}
	return true
}

func (s *Store) GetTransaction(_ context.Context, id string) (core.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx, ok := s.transactions[id]
	if !ok {
		return core.Transaction{}, core.NotFoundf("transaction %q", id)
	}
	return tx, nil
}

func (s *Store) InsertTransaction(_ context.Context, tx core.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transactions[tx.ID] = tx
	return nil
}

func (s *Store) UpdateTransaction(_ context.Context, tx core.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.transactions[tx.ID]; !ok {
		return core.NotFoundf("transaction %q", tx.ID)
	}
	s.transactions[tx.ID] = tx
	return nil
}

func (s *Store) MarkDeleted(_ context.Context, ids ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	// Validate first so a partial batch never commits.
	for _, id := range ids {
		if _, ok := s.transactions[id]; !ok {
			return core.NotFoundf("transaction %q", id)
		}
	}
	for _, id := range ids {
		tx := s.transactions[id]
		tx.Deleted = true
		s.transactions[id] = tx
	}
	return nil
}

func (s *Store) DeleteFamily(_ context.Context, parentID string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	parent, ok := s.transactions[parentID]
	if !ok {
		return nil, core.NotFoundf("transaction %q", parentID)
	}

	deleted := []string{parentID}
	parent.Deleted = true
	s.transactions[parentID] = parent

	for id, tx := range s.transactions {
		if tx.ParentID == parentID && !tx.Deleted {
			tx.Deleted = true
			s.transactions[id] = tx
			deleted = append(deleted, id)
		}
	}
	sort.Strings(deleted)
	return deleted, nil
}

func (s *Store) ReplaceChildren(_ context.Context, parent core.Transaction, children []core.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.transactions[parent.ID]; !ok {
		return core.NotFoundf("transaction %q", parent.ID)
	}

	s.transactions[parent.ID] = parent
	for id, tx := range s.transactions {
		if tx.ParentID == parent.ID && !tx.Deleted {
			tx.Deleted = true
			s.transactions[id] = tx
		}
	}
	for _, c := range children {
		s.transactions[c.ID] = c
	}
	return nil
}

func budgetKey(category string, year, month int) string {
	return fmt.Sprintf("%s|%d|%d", core.NormalizeCategory(category), year, month)
}

func (s *Store) ListBudgets(_ context.Context, year, month int) ([]core.Budget, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.Budget
	for _, b := range s.budgets {
		if b.Year == year && b.Month == month {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Category < out[j].Category })
	return out, nil
}

func (s *Store) UpsertBudget(_ context.Context, b core.Budget) (core.Budget, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := budgetKey(b.Category, b.Year, b.Month)
	if existing, ok := s.budgets[key]; ok {
		existing.Amount = b.Amount
		existing.Type = b.Type
		s.budgets[key] = existing
		return existing, nil
	}
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	s.budgets[key] = b
	return b, nil
}

func (s *Store) ListRules(_ context.Context) ([]core.CategoryRule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.CategoryRule, 0, len(s.rules))
	for _, r := range s.rules {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority < out[j].Priority
		}
		return out[i].MatchText < out[j].MatchText
	})
	return out, nil
}

func (s *Store) AddRule(_ context.Context, r core.CategoryRule) (core.CategoryRule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	s.rules[r.ID] = r
	return r, nil
}

func (s *Store) DeleteRule(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rules[id]; !ok {
		return core.NotFoundf("rule %q", id)
	}
	delete(s.rules, id)
	return nil
}
