package importer

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"tally/internal/core"
	"tally/internal/ledger"
	"tally/internal/rules"
	"tally/internal/store"
	"tally/internal/store/memory"
)

func newImporter(t *testing.T) (*Importer, *ledger.Service, *memory.Store) {
	t.Helper()
	st := memory.New()
	if _, err := st.CreateAccount(context.Background(), "Checking"); err != nil {
		t.Fatalf("create account: %v", err)
	}
	led := ledger.New(st, nil)
	return New(led, rules.New(st), st), led, st
}

func defaultMapping() Mapping {
	return Mapping{
		Date:           "Date",
		Amount:         "Amount",
		Description:    "Description",
		Category:       "Category",
		DefaultAccount: "Checking",
	}
}

func TestImportBasic(t *testing.T) {
	imp, led, _ := newImporter(t)
	ctx := context.Background()

	csv := strings.Join([]string{
		"Date,Amount,Description,Category",
		"2025-03-01,2000,march salary,paycheck",
		"2025-03-05,-42.50,grocery run,Groceries",
		"2025-03-08,\"1,200.00\",rent,Rent",
	}, "\n")

	result, err := imp.Import(ctx, strings.NewReader(csv), defaultMapping())
	if err != nil {
		t.Fatalf("Import() error = %v", err)
	}
	if result.Imported != 3 || result.Skipped != 0 {
		t.Fatalf("result = %+v, want 3 imported, 0 skipped", result)
	}

	txs, err := led.List(ctx, store.TransactionFilter{Ascending: true})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(txs) != 3 {
		t.Fatalf("got %d transactions, want 3", len(txs))
	}

	if txs[0].Type != core.Income {
		t.Errorf("salary type = %q, want income", txs[0].Type)
	}
	if txs[1].Category != "groceries" {
		t.Errorf("category = %q, want normalized groceries", txs[1].Category)
	}
	if !txs[1].Amount.Equal(decimal.RequireFromString("42.50")) {
		t.Errorf("amount = %s, want 42.50", txs[1].Amount)
	}
	// Thousands separator stripped.
	if !txs[2].Amount.Equal(decimal.RequireFromString("1200.00")) {
		t.Errorf("amount = %s, want 1200.00", txs[2].Amount)
	}
}

func TestImportRuleBeatsMappedCategory(t *testing.T) {
	imp, led, st := newImporter(t)
	ctx := context.Background()

	ruleSvc := rules.New(st)
	if _, err := ruleSvc.Add(ctx, "lidl", "groceries", 1); err != nil {
		t.Fatalf("add rule: %v", err)
	}

	csv := strings.Join([]string{
		"Date,Amount,Description,Category",
		"2025-03-05,30,LIDL FILIALE 99,misc",
		"2025-03-06,15,no rule here,",
	}, "\n")

	result, err := imp.Import(ctx, strings.NewReader(csv), defaultMapping())
	if err != nil {
		t.Fatalf("Import() error = %v", err)
	}
	if result.Imported != 2 {
		t.Fatalf("imported %d, want 2", result.Imported)
	}

	txs, _ := led.List(ctx, store.TransactionFilter{Ascending: true})
	if txs[0].Category != "groceries" {
		t.Errorf("rule-matched category = %q, want groceries", txs[0].Category)
	}
	if txs[1].Category != "uncategorized" {
		t.Errorf("fallback category = %q, want uncategorized", txs[1].Category)
	}
}

func TestImportSkipsBadRows(t *testing.T) {
	imp, led, _ := newImporter(t)
	ctx := context.Background()

	csv := strings.Join([]string{
		"Date,Amount,Description,Category",
		"not-a-date,10,bad date,misc",
		"2025-03-05,not-a-number,bad amount,misc",
		"2025-03-06,10,good row,misc",
		"2025-03-07,10,,misc", // empty description rejected by the ledger
	}, "\n")

	result, err := imp.Import(ctx, strings.NewReader(csv), defaultMapping())
	if err != nil {
		t.Fatalf("Import() error = %v", err)
	}
	if result.Imported != 1 {
		t.Errorf("imported %d, want 1", result.Imported)
	}
	if result.Skipped != 3 {
		t.Errorf("skipped %d, want 3", result.Skipped)
	}
	if len(result.Errors) != 3 {
		t.Errorf("got %d errors, want 3: %v", len(result.Errors), result.Errors)
	}

	txs, _ := led.List(ctx, store.TransactionFilter{})
	if len(txs) != 1 {
		t.Errorf("got %d transactions, want 1", len(txs))
	}
}

func TestImportHeaderValidation(t *testing.T) {
	imp, _, _ := newImporter(t)
	ctx := context.Background()

	// Mapped column missing from the header.
	csv := "Datum,Amount,Description\n2025-03-05,10,x"
	if _, err := imp.Import(ctx, strings.NewReader(csv), defaultMapping()); !errors.Is(err, core.ErrValidation) {
		t.Errorf("missing column error = %v, want validation", err)
	}

	// Required mapping left empty.
	m := defaultMapping()
	m.Amount = ""
	if _, err := imp.Import(ctx, strings.NewReader("Date,Description\n"), m); !errors.Is(err, core.ErrValidation) {
		t.Errorf("unmapped amount error = %v, want validation", err)
	}
}

func TestImportAccountColumn(t *testing.T) {
	imp, led, st := newImporter(t)
	ctx := context.Background()

	savings, err := st.CreateAccount(ctx, "Savings")
	if err != nil {
		t.Fatalf("create account: %v", err)
	}

	m := defaultMapping()
	m.Account = "Account"

	csv := strings.Join([]string{
		"Date,Amount,Description,Category,Account",
		"2025-03-05,100,transfer in,deposit,savings", // name matched case-insensitively
		"2025-03-06,10,coffee,misc,",                 // empty cell falls back to the default
		"2025-03-07,10,weird,misc,offshore",          // unknown account: skipped
	}, "\n")

	result, err := imp.Import(ctx, strings.NewReader(csv), m)
	if err != nil {
		t.Fatalf("Import() error = %v", err)
	}
	if result.Imported != 2 || result.Skipped != 1 {
		t.Fatalf("result = %+v, want 2 imported, 1 skipped", result)
	}

	txs, _ := led.List(ctx, store.TransactionFilter{AccountID: savings.ID})
	if len(txs) != 1 {
		t.Errorf("savings account has %d transactions, want 1", len(txs))
	}
}
