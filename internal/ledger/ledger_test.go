package ledger

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"tally/internal/core"
	"tally/internal/events"
	"tally/internal/store"
	"tally/internal/store/memory"
)

// recordingPublisher captures published change events for assertions.
type recordingPublisher struct {
	messages []*events.ChangeMessage
	fail     bool
}

func (p *recordingPublisher) PublishChange(_ context.Context, msg *events.ChangeMessage) error {
	if p.fail {
		return fmt.Errorf("broker unavailable")
	}
	p.messages = append(p.messages, msg)
	return nil
}

func newTestService(t *testing.T) (*Service, *memory.Store, core.Account, *recordingPublisher) {
	t.Helper()
	st := memory.New()
	account, err := st.CreateAccount(context.Background(), "Checking")
	if err != nil {
		t.Fatalf("create account: %v", err)
	}
	pub := &recordingPublisher{}
	return New(st, pub), st, account, pub
}

func amount(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestInsertValidation(t *testing.T) {
	svc, _, account, _ := newTestService(t)
	ctx := context.Background()

	tests := []struct {
		name    string
		draft   Draft
		wantErr error
	}{
		{
			name:    "empty description",
			draft:   Draft{Date: time.Now(), Amount: amount("10"), Description: "   ", AccountID: account.ID},
			wantErr: core.ErrValidation,
		},
		{
			name:    "zero amount",
			draft:   Draft{Date: time.Now(), Amount: decimal.Zero, Description: "coffee", AccountID: account.ID},
			wantErr: core.ErrValidation,
		},
		{
			name:    "unknown account",
			draft:   Draft{Date: time.Now(), Amount: amount("10"), Description: "coffee", AccountID: "nope"},
			wantErr: core.ErrReference,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Insert(ctx, tt.draft)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Insert() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestInsertNormalizes(t *testing.T) {
	svc, _, account, pub := newTestService(t)
	ctx := context.Background()

	tx, err := svc.Insert(ctx, Draft{
		Date:        time.Date(2025, 3, 15, 14, 30, 0, 0, time.UTC),
		Amount:      amount("-42.50"),
		Description: "  Grocery run  ",
		Category:    " Groceries ",
		AccountID:   account.ID,
	})
	if err != nil {
		t.Fatalf("Insert() error = %v", err)
	}

	if tx.Category != "groceries" {
		t.Errorf("Category = %q, want %q", tx.Category, "groceries")
	}
	if tx.Type != core.Expense {
		t.Errorf("Type = %q, want %q", tx.Type, core.Expense)
	}
	if !tx.Amount.Equal(amount("42.50")) {
		t.Errorf("Amount = %s, want 42.50 (stored positive)", tx.Amount)
	}
	if tx.Description != "Grocery run" {
		t.Errorf("Description = %q, want trimmed", tx.Description)
	}
	want := time.Date(2025, 3, 15, 0, 0, 0, 0, time.UTC)
	if !tx.Date.Equal(want) {
		t.Errorf("Date = %v, want truncated %v", tx.Date, want)
	}

	if len(pub.messages) != 1 || pub.messages[0].Op != events.OpCreated {
		t.Errorf("expected one created event, got %+v", pub.messages)
	}
}

func TestInsertIncomeClassification(t *testing.T) {
	svc, _, account, _ := newTestService(t)
	ctx := context.Background()

	tx, err := svc.Insert(ctx, Draft{
		Date:        time.Now(),
		Amount:      amount("2000"),
		Description: "march salary",
		Category:    "Paycheck",
		AccountID:   account.ID,
	})
	if err != nil {
		t.Fatalf("Insert() error = %v", err)
	}
	if tx.Type != core.Income {
		t.Errorf("Type = %q, want income", tx.Type)
	}
	if !tx.SignedAmount().Equal(amount("2000")) {
		t.Errorf("SignedAmount = %s, want 2000", tx.SignedAmount())
	}
}

func TestUpdateReclassifiesOnCategoryChange(t *testing.T) {
	svc, _, account, _ := newTestService(t)
	ctx := context.Background()

	tx, err := svc.Insert(ctx, Draft{
		Date: time.Now(), Amount: amount("100"), Description: "misc", Category: "shopping", AccountID: account.ID,
	})
	if err != nil {
		t.Fatalf("Insert() error = %v", err)
	}

	cat := " Income "
	updated, err := svc.Update(ctx, tx.ID, Patch{Category: &cat})
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if updated.Category != "income" {
		t.Errorf("Category = %q, want income", updated.Category)
	}
	if updated.Type != core.Income {
		t.Errorf("Type = %q, want income after reclassification", updated.Type)
	}

	// Patching another field leaves category and type alone.
	notes := "checked"
	updated, err = svc.Update(ctx, tx.ID, Patch{Notes: &notes})
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if updated.Type != core.Income || updated.Notes != "checked" {
		t.Errorf("got type %q notes %q, want income/checked", updated.Type, updated.Notes)
	}
}

func TestUpdateValidation(t *testing.T) {
	svc, _, account, _ := newTestService(t)
	ctx := context.Background()

	tx, _ := svc.Insert(ctx, Draft{
		Date: time.Now(), Amount: amount("10"), Description: "x", AccountID: account.ID,
	})

	empty := " "
	if _, err := svc.Update(ctx, tx.ID, Patch{Description: &empty}); !errors.Is(err, core.ErrValidation) {
		t.Errorf("empty description: error = %v, want validation", err)
	}
	zero := decimal.Zero
	if _, err := svc.Update(ctx, tx.ID, Patch{Amount: &zero}); !errors.Is(err, core.ErrValidation) {
		t.Errorf("zero amount: error = %v, want validation", err)
	}
	bad := "missing-account"
	if _, err := svc.Update(ctx, tx.ID, Patch{AccountID: &bad}); !errors.Is(err, core.ErrReference) {
		t.Errorf("unknown account: error = %v, want reference", err)
	}
	if _, err := svc.Update(ctx, "missing", Patch{}); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("missing id: error = %v, want not found", err)
	}
}

func TestDeleteHidesFromListings(t *testing.T) {
	svc, _, account, pub := newTestService(t)
	ctx := context.Background()

	tx, _ := svc.Insert(ctx, Draft{
		Date: time.Now(), Amount: amount("10"), Description: "gone soon", AccountID: account.ID,
	})

	deleted, err := svc.Delete(ctx, tx.ID)
	if err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if !deleted.Deleted {
		t.Error("returned transaction should carry the deleted flag")
	}

	txs, err := svc.List(ctx, store.TransactionFilter{})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(txs) != 0 {
		t.Errorf("List() returned %d transactions, want 0 after delete", len(txs))
	}

	// Double delete is not found: the tombstone hides the row.
	if _, err := svc.Delete(ctx, tx.ID); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("second Delete() error = %v, want not found", err)
	}

	last := pub.messages[len(pub.messages)-1]
	if last.Op != events.OpDeleted {
		t.Errorf("last event op = %q, want deleted", last.Op)
	}
}

func TestDeleteSplitParentRefused(t *testing.T) {
	svc, _, account, _ := newTestService(t)
	ctx := context.Background()

	parent, _ := svc.Insert(ctx, Draft{
		Date: time.Now(), Amount: amount("100"), Description: "costco", AccountID: account.ID,
	})
	_, _, err := svc.ConvertToSplit(ctx, parent.ID, []SplitLine{
		{Category: "groceries", Amount: amount("60")},
		{Category: "household", Amount: amount("40")},
	})
	if err != nil {
		t.Fatalf("ConvertToSplit() error = %v", err)
	}

	if _, err := svc.Delete(ctx, parent.ID); !errors.Is(err, core.ErrInvariant) {
		t.Errorf("Delete(split parent) error = %v, want invariant", err)
	}
}

func TestDeleteFamily(t *testing.T) {
	svc, _, account, _ := newTestService(t)
	ctx := context.Background()

	parent, _ := svc.Insert(ctx, Draft{
		Date: time.Now(), Amount: amount("100"), Description: "costco", AccountID: account.ID,
	})
	_, children, err := svc.ConvertToSplit(ctx, parent.ID, []SplitLine{
		{Category: "groceries", Amount: amount("60")},
		{Category: "household", Amount: amount("40")},
	})
	if err != nil {
		t.Fatalf("ConvertToSplit() error = %v", err)
	}

	ids, err := svc.DeleteFamily(ctx, parent.ID)
	if err != nil {
		t.Fatalf("DeleteFamily() error = %v", err)
	}
	if len(ids) != 1+len(children) {
		t.Errorf("DeleteFamily() tombstoned %d rows, want %d", len(ids), 1+len(children))
	}

	txs, _ := svc.List(ctx, store.TransactionFilter{})
	if len(txs) != 0 {
		t.Errorf("List() returned %d transactions, want 0 after family delete", len(txs))
	}
}

func TestConvertToSplitValidation(t *testing.T) {
	svc, _, account, _ := newTestService(t)
	ctx := context.Background()

	parent, _ := svc.Insert(ctx, Draft{
		Date: time.Now(), Amount: amount("100"), Description: "costco", AccountID: account.ID,
	})

	tests := []struct {
		name    string
		splits  []SplitLine
		wantErr error
	}{
		{
			name:    "single line",
			splits:  []SplitLine{{Category: "a", Amount: amount("100")}},
			wantErr: core.ErrValidation,
		},
		{
			name: "blank category",
			splits: []SplitLine{
				{Category: "  ", Amount: amount("60")},
				{Category: "b", Amount: amount("40")},
			},
			wantErr: core.ErrValidation,
		},
		{
			name: "zero amount line",
			splits: []SplitLine{
				{Category: "a", Amount: decimal.Zero},
				{Category: "b", Amount: amount("100")},
			},
			wantErr: core.ErrValidation,
		},
		{
			name: "sum off beyond tolerance",
			splits: []SplitLine{
				{Category: "a", Amount: amount("60")},
				{Category: "b", Amount: amount("39.90")},
			},
			wantErr: core.ErrInvariant,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := svc.ConvertToSplit(ctx, parent.ID, tt.splits)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("ConvertToSplit() error = %v, want %v", err, tt.wantErr)
			}
		})
	}

	// Nothing was written by the rejected attempts.
	children, _ := svc.ListChildren(ctx, parent.ID)
	if len(children) != 0 {
		t.Errorf("rejected splits left %d children behind", len(children))
	}
}

func TestConvertToSplitWithinTolerance(t *testing.T) {
	svc, _, account, _ := newTestService(t)
	ctx := context.Background()

	parent, _ := svc.Insert(ctx, Draft{
		Date: time.Now(), Amount: amount("100"), Description: "costco", AccountID: account.ID,
	})

	// Off by exactly one cent: allowed.
	_, children, err := svc.ConvertToSplit(ctx, parent.ID, []SplitLine{
		{Category: "a", Amount: amount("60")},
		{Category: "b", Amount: amount("39.99")},
	})
	if err != nil {
		t.Fatalf("ConvertToSplit() within tolerance error = %v", err)
	}
	if len(children) != 2 {
		t.Fatalf("got %d children, want 2", len(children))
	}
}

func TestConvertToSplitInheritance(t *testing.T) {
	svc, _, account, _ := newTestService(t)
	ctx := context.Background()

	parent, _ := svc.Insert(ctx, Draft{
		Date:        time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
		Amount:      amount("100"),
		Description: "costco",
		Category:    "shopping",
		AccountID:   account.ID,
		Notes:       "warehouse run",
	})

	_, children, err := svc.ConvertToSplit(ctx, parent.ID, []SplitLine{
		{Category: " Groceries ", Amount: amount("-60")},
		{Category: "household", Amount: amount("40"), Notes: "bulbs"},
	})
	if err != nil {
		t.Fatalf("ConvertToSplit() error = %v", err)
	}

	for _, c := range children {
		if !c.Date.Equal(parent.Date) {
			t.Errorf("child date = %v, want parent's %v", c.Date, parent.Date)
		}
		if c.AccountID != parent.AccountID {
			t.Errorf("child account = %q, want parent's %q", c.AccountID, parent.AccountID)
		}
		if c.Description != parent.Description {
			t.Errorf("child description = %q, want parent's", c.Description)
		}
		if c.ParentID != parent.ID {
			t.Errorf("child parent_id = %q, want %q", c.ParentID, parent.ID)
		}
		if c.Amount.IsNegative() {
			t.Errorf("child amount = %s, want positive magnitude", c.Amount)
		}
	}
	if children[0].Category != "groceries" {
		t.Errorf("child category = %q, want normalized groceries", children[0].Category)
	}
	if children[0].Notes != "warehouse run" {
		t.Errorf("child notes = %q, want inherited from parent", children[0].Notes)
	}
	if children[1].Notes != "bulbs" {
		t.Errorf("child notes = %q, want own notes kept", children[1].Notes)
	}
}

func TestConvertToSplitIdempotent(t *testing.T) {
	svc, _, account, _ := newTestService(t)
	ctx := context.Background()

	parent, _ := svc.Insert(ctx, Draft{
		Date: time.Now(), Amount: amount("100"), Description: "costco", AccountID: account.ID,
	})

	lines := []SplitLine{
		{Category: "groceries", Amount: amount("60")},
		{Category: "household", Amount: amount("40")},
	}
	if _, _, err := svc.ConvertToSplit(ctx, parent.ID, lines); err != nil {
		t.Fatalf("first ConvertToSplit() error = %v", err)
	}
	if _, _, err := svc.ConvertToSplit(ctx, parent.ID, lines); err != nil {
		t.Fatalf("second ConvertToSplit() error = %v", err)
	}

	children, err := svc.ListChildren(ctx, parent.ID)
	if err != nil {
		t.Fatalf("ListChildren() error = %v", err)
	}
	if len(children) != 2 {
		t.Errorf("got %d live children after re-split, want 2", len(children))
	}
}

func TestConvertToSplitRefusesChild(t *testing.T) {
	svc, _, account, _ := newTestService(t)
	ctx := context.Background()

	parent, _ := svc.Insert(ctx, Draft{
		Date: time.Now(), Amount: amount("100"), Description: "costco", AccountID: account.ID,
	})
	_, children, err := svc.ConvertToSplit(ctx, parent.ID, []SplitLine{
		{Category: "a", Amount: amount("60")},
		{Category: "b", Amount: amount("40")},
	})
	if err != nil {
		t.Fatalf("ConvertToSplit() error = %v", err)
	}

	// A split never nests.
	_, _, err = svc.ConvertToSplit(ctx, children[0].ID, []SplitLine{
		{Category: "x", Amount: amount("30")},
		{Category: "y", Amount: amount("30")},
	})
	if !errors.Is(err, core.ErrInvariant) {
		t.Errorf("ConvertToSplit(child) error = %v, want invariant", err)
	}
}

func TestConvertToSingle(t *testing.T) {
	svc, _, account, pub := newTestService(t)
	ctx := context.Background()

	parent, _ := svc.Insert(ctx, Draft{
		Date: time.Now(), Amount: amount("100"), Description: "costco", AccountID: account.ID,
	})
	if _, _, err := svc.ConvertToSplit(ctx, parent.ID, []SplitLine{
		{Category: "a", Amount: amount("60")},
		{Category: "b", Amount: amount("40")},
	}); err != nil {
		t.Fatalf("ConvertToSplit() error = %v", err)
	}

	tx, err := svc.ConvertToSingle(ctx, parent.ID, " Shopping ")
	if err != nil {
		t.Fatalf("ConvertToSingle() error = %v", err)
	}
	if tx.IsSplitParent {
		t.Error("transaction still flagged as split parent")
	}
	if tx.Category != "shopping" {
		t.Errorf("Category = %q, want shopping", tx.Category)
	}

	children, _ := svc.ListChildren(ctx, parent.ID)
	if len(children) != 0 {
		t.Errorf("got %d live children after unsplit, want 0", len(children))
	}

	if _, err := svc.ConvertToSingle(ctx, parent.ID, "  "); !errors.Is(err, core.ErrValidation) {
		t.Errorf("blank category error = %v, want validation", err)
	}

	last := pub.messages[len(pub.messages)-1]
	if last.Op != events.OpUnsplit {
		t.Errorf("last event op = %q, want unsplit", last.Op)
	}
}

func TestListFamilies(t *testing.T) {
	svc, _, account, _ := newTestService(t)
	ctx := context.Background()

	if _, err := svc.Insert(ctx, Draft{
		Date: time.Now(), Amount: amount("5"), Description: "coffee", AccountID: account.ID,
	}); err != nil {
		t.Fatalf("Insert() error = %v", err)
	}
	parent, _ := svc.Insert(ctx, Draft{
		Date: time.Now(), Amount: amount("100"), Description: "costco", AccountID: account.ID,
	})
	if _, _, err := svc.ConvertToSplit(ctx, parent.ID, []SplitLine{
		{Category: "a", Amount: amount("60")},
		{Category: "b", Amount: amount("40")},
	}); err != nil {
		t.Fatalf("ConvertToSplit() error = %v", err)
	}

	families, err := svc.ListFamilies(ctx)
	if err != nil {
		t.Fatalf("ListFamilies() error = %v", err)
	}
	if len(families) != 1 {
		t.Fatalf("got %d families, want 1", len(families))
	}
	if families[0].Parent.ID != parent.ID {
		t.Errorf("family parent = %q, want %q", families[0].Parent.ID, parent.ID)
	}
	if len(families[0].Children) != 2 {
		t.Errorf("family has %d children, want 2", len(families[0].Children))
	}
}

func TestPublishFailureDoesNotSurface(t *testing.T) {
	st := memory.New()
	account, _ := st.CreateAccount(context.Background(), "Checking")
	svc := New(st, &recordingPublisher{fail: true})

	_, err := svc.Insert(context.Background(), Draft{
		Date: time.Now(), Amount: amount("10"), Description: "coffee", AccountID: account.ID,
	})
	if err != nil {
		t.Errorf("Insert() error = %v, want nil despite publish failure", err)
	}
}
