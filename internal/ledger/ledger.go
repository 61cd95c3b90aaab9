// Package ledger owns the transaction lifecycle: inserts, updates, soft
// deletes, and the split/parent-child mechanics. Every invariant is checked
// here before anything is written to the store.
package ledger

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"tally/internal/core"
	"tally/internal/events"
	"tally/internal/store"
)

// Publisher emits change events after successful writes. A nil Publisher is
// tolerated; publish failures are logged, never surfaced, because the local
// write already succeeded.
type Publisher interface {
	PublishChange(ctx context.Context, msg *events.ChangeMessage) error
}

type Service struct {
	store     store.Store
	publisher Publisher
}

func New(st store.Store, pub Publisher) *Service {
	return &Service{store: st, publisher: pub}
}

// Draft carries the caller-supplied fields for a new transaction. Category
// may be blank; the stored type is derived from it either way.
type Draft struct {
	Date        time.Time
	Amount      decimal.Decimal
	Description string
	Category    string
	AccountID   string
	Notes       string
}

// Patch updates a transaction; nil fields are left untouched. When Category
// is patched the type is re-derived, otherwise the stored type stays.
type Patch struct {
	Date        *time.Time
	Amount      *decimal.Decimal
	Description *string
	Category    *string
	AccountID   *string
	Notes       *string
}

// SplitLine is one child entry of a split. Amounts are taken as magnitudes;
// each child's type is derived from its own category.
type SplitLine struct {
	Category string
	Amount   decimal.Decimal
	Notes    string
}

// Insert validates the draft, normalizes it, and persists a new live
// transaction. The stored amount is always positive; callers may pass a
// negative amount and the sign is folded into the derived type convention.
func (s *Service) Insert(ctx context.Context, d Draft) (core.Transaction, error) {
	if strings.TrimSpace(d.Description) == "" {
		return core.Transaction{}, core.Validationf("description cannot be empty")
	}
	if d.Amount.IsZero() {
		return core.Transaction{}, core.Validationf("amount cannot be zero")
	}
	if err := s.accountExists(ctx, d.AccountID); err != nil {
		return core.Transaction{}, err
	}

	category := core.NormalizeCategory(d.Category)
	tx := core.Transaction{
		ID:          uuid.NewString(),
		Date:        core.Day(d.Date),
		Amount:      d.Amount.Abs(),
		Description: strings.TrimSpace(d.Description),
		Category:    category,
		Type:        core.ClassifyType(category),
		AccountID:   d.AccountID,
		Notes:       d.Notes,
	}

	if err := s.store.InsertTransaction(ctx, tx); err != nil {
		return core.Transaction{}, core.StoreErr("insert transaction", err)
	}

	slog.InfoContext(ctx, "Transaction inserted",
		"id", tx.ID,
		"description", tx.Description,
		"amount", tx.Amount.String(),
		"category", tx.Category,
		"type", tx.Type)

	s.publish(ctx, events.NewChangeMessage(tx.ID, events.OpCreated))
	return tx, nil
}

// Update applies the patch to a live transaction and returns the updated
// record so callers can refresh their view without a re-query.
func (s *Service) Update(ctx context.Context, id string, p Patch) (core.Transaction, error) {
	tx, err := s.live(ctx, id)
	if err != nil {
		return core.Transaction{}, err
	}

	if p.Description != nil {
		if strings.TrimSpace(*p.Description) == "" {
			return core.Transaction{}, core.Validationf("description cannot be empty")
		}
		tx.Description = strings.TrimSpace(*p.Description)
	}
	if p.Amount != nil {
		if p.Amount.IsZero() {
			return core.Transaction{}, core.Validationf("amount cannot be zero")
		}
		tx.Amount = p.Amount.Abs()
	}
	if p.Date != nil {
		tx.Date = core.Day(*p.Date)
	}
	if p.AccountID != nil {
		if err := s.accountExists(ctx, *p.AccountID); err != nil {
			return core.Transaction{}, err
		}
		tx.AccountID = *p.AccountID
	}
	if p.Category != nil {
		tx.Category = core.NormalizeCategory(*p.Category)
		tx.Type = core.ClassifyType(tx.Category)
	}
	if p.Notes != nil {
		tx.Notes = *p.Notes
	}

	if err := s.store.UpdateTransaction(ctx, tx); err != nil {
		return core.Transaction{}, core.StoreErr("update transaction", err)
	}

	slog.InfoContext(ctx, "Transaction updated", "id", tx.ID, "category", tx.Category)
	s.publish(ctx, events.NewChangeMessage(tx.ID, events.OpUpdated))
	return tx, nil
}

// Delete soft-deletes a single transaction. Split parents are refused: their
// children would survive and keep counting, so the caller must use
// DeleteFamily instead.
func (s *Service) Delete(ctx context.Context, id string) (core.Transaction, error) {
	tx, err := s.live(ctx, id)
	if err != nil {
		return core.Transaction{}, err
	}
	if tx.IsSplitParent {
		return core.Transaction{}, core.Invariantf("transaction %q is a split parent; use DeleteFamily", id)
	}

	if err := s.store.MarkDeleted(ctx, id); err != nil {
		return core.Transaction{}, core.StoreErr("delete transaction", err)
	}
	tx.Deleted = true

	slog.InfoContext(ctx, "Transaction deleted", "id", id)
	s.publish(ctx, events.NewChangeMessage(id, events.OpDeleted))
	return tx, nil
}

// DeleteFamily tombstones a split parent together with all its current
// children in one atomic store operation.
func (s *Service) DeleteFamily(ctx context.Context, parentID string) ([]string, error) {
	if _, err := s.live(ctx, parentID); err != nil {
		return nil, err
	}

	ids, err := s.store.DeleteFamily(ctx, parentID)
	if err != nil {
		return nil, core.StoreErr("delete family", err)
	}

	slog.InfoContext(ctx, "Transaction family deleted", "parent_id", parentID, "count", len(ids))
	for _, id := range ids {
		s.publish(ctx, events.NewChangeMessage(id, events.OpDeleted))
	}
	return ids, nil
}

// ConvertToSplit turns a live transaction into a split parent whose effect is
// carried entirely by the given children. The children's sum must match the
// parent's amount within core.SplitTolerance; violating input is rejected
// before any write. The clear-then-recreate runs as one atomic store
// operation and is idempotent: re-running with the same lines converges on
// the same family.
func (s *Service) ConvertToSplit(ctx context.Context, parentID string, splits []SplitLine) (core.Transaction, []core.Transaction, error) {
	parent, err := s.live(ctx, parentID)
	if err != nil {
		return core.Transaction{}, nil, err
	}
	if parent.IsSplitChild() {
		return core.Transaction{}, nil, core.Invariantf("transaction %q is itself a split child", parentID)
	}
	if len(splits) < 2 {
		return core.Transaction{}, nil, core.Validationf("a split needs at least two lines")
	}

	sum := decimal.Zero
	for i, line := range splits {
		if core.NormalizeCategory(line.Category) == "" {
			return core.Transaction{}, nil, core.Validationf("split line %d: category cannot be blank", i+1)
		}
		if line.Amount.IsZero() {
			return core.Transaction{}, nil, core.Validationf("split line %d: amount cannot be zero", i+1)
		}
		sum = sum.Add(line.Amount.Abs())
	}
	if sum.Sub(parent.Amount).Abs().GreaterThan(core.SplitTolerance) {
		return core.Transaction{}, nil, core.Invariantf(
			"split total %s does not match parent amount %s", sum, parent.Amount)
	}

	parent.IsSplitParent = true
	children := make([]core.Transaction, len(splits))
	for i, line := range splits {
		category := core.NormalizeCategory(line.Category)
		notes := line.Notes
		if notes == "" {
			notes = parent.Notes
		}
		children[i] = core.Transaction{
			ID:          uuid.NewString(),
			Date:        parent.Date,
			Amount:      line.Amount.Abs(),
			Description: parent.Description,
			Category:    category,
			Type:        core.ClassifyType(category),
			AccountID:   parent.AccountID,
			Notes:       notes,
			ParentID:    parent.ID,
		}
	}

	if err := s.store.ReplaceChildren(ctx, parent, children); err != nil {
		return core.Transaction{}, nil, core.StoreErr("convert to split", err)
	}

	slog.InfoContext(ctx, "Transaction converted to split",
		"parent_id", parent.ID, "children", len(children))
	s.publish(ctx, events.NewChangeMessage(parent.ID, events.OpSplit))
	return parent, children, nil
}

// ConvertToSingle collapses a split family back into a plain transaction
// with the given explicit category, soft-deleting any children.
func (s *Service) ConvertToSingle(ctx context.Context, id, category string) (core.Transaction, error) {
	tx, err := s.live(ctx, id)
	if err != nil {
		return core.Transaction{}, err
	}

	normalized := core.NormalizeCategory(category)
	if normalized == "" {
		return core.Transaction{}, core.Validationf("category cannot be blank")
	}

	tx.IsSplitParent = false
	tx.Category = normalized
	tx.Type = core.ClassifyType(normalized)

	if err := s.store.ReplaceChildren(ctx, tx, nil); err != nil {
		return core.Transaction{}, core.StoreErr("convert to single", err)
	}

	slog.InfoContext(ctx, "Transaction converted to single", "id", tx.ID, "category", normalized)
	s.publish(ctx, events.NewChangeMessage(tx.ID, events.OpUnsplit))
	return tx, nil
}

// ListChildren returns the live children of a split parent, date ascending.
func (s *Service) ListChildren(ctx context.Context, parentID string) ([]core.Transaction, error) {
	children, err := s.store.ListTransactions(ctx, store.TransactionFilter{
		ParentID:  parentID,
		Ascending: true,
	})
	if err != nil {
		return nil, core.StoreErr("list children", err)
	}
	return children, nil
}

// List returns live transactions matching the filter, date descending unless
// the filter asks for ascending.
func (s *Service) List(ctx context.Context, f store.TransactionFilter) ([]core.Transaction, error) {
	txs, err := s.store.ListTransactions(ctx, f)
	if err != nil {
		return nil, core.StoreErr("list transactions", err)
	}
	return txs, nil
}

// Family pairs a split parent with its live children.
type Family struct {
	Parent   core.Transaction
	Children []core.Transaction
}

// ListFamilies returns every live split parent with its children.
func (s *Service) ListFamilies(ctx context.Context) ([]Family, error) {
	parents, err := s.store.ListTransactions(ctx, store.TransactionFilter{
		OnlySplitParents: true,
		Ascending:        true,
	})
	if err != nil {
		return nil, core.StoreErr("list split parents", err)
	}

	families := make([]Family, 0, len(parents))
	for _, p := range parents {
		children, err := s.ListChildren(ctx, p.ID)
		if err != nil {
			return nil, err
		}
		families = append(families, Family{Parent: p, Children: children})
	}
	return families, nil
}

// live loads a transaction and fails with ErrNotFound when it is missing or
// already tombstoned.
func (s *Service) live(ctx context.Context, id string) (core.Transaction, error) {
	tx, err := s.store.GetTransaction(ctx, id)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return core.Transaction{}, err
		}
		return core.Transaction{}, core.StoreErr("get transaction", err)
	}
	if tx.Deleted {
		return core.Transaction{}, core.NotFoundf("transaction %q is deleted", id)
	}
	return tx, nil
}

func (s *Service) accountExists(ctx context.Context, id string) error {
	if _, err := s.store.GetAccount(ctx, id); err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return core.Referencef("account %q does not exist", id)
		}
		return core.StoreErr("get account", err)
	}
	return nil
}

func (s *Service) publish(ctx context.Context, msg *events.ChangeMessage) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishChange(ctx, msg); err != nil {
		slog.ErrorContext(ctx, "Failed to publish change event",
			"id", msg.ID, "op", msg.Op, "error", err)
	}
}
