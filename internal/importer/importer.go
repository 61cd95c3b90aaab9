// Package importer loads transactions from CSV files. The caller maps file
// columns onto ledger fields; rows are inserted one by one through the
// ledger so every invariant and validation applies to imported data too.
package importer

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"tally/internal/core"
	"tally/internal/ledger"
	"tally/internal/rules"
	"tally/internal/store"
)

// Mapping names the CSV header columns to read each field from. Category and
// Account are optional; DateFormat defaults to 2006-01-02.
type Mapping struct {
	Date        string
	Amount      string
	Description string
	Category    string // optional
	Account     string // optional; falls back to DefaultAccount

	DateFormat     string
	DefaultAccount string // account name used when Account is unmapped
}

// Result reports what a single import run did.
type Result struct {
	Imported int
	Skipped  int
	Errors   []string
}

type Importer struct {
	ledger   *ledger.Service
	rules    *rules.Service
	accounts store.AccountStore
}

func New(l *ledger.Service, r *rules.Service, accounts store.AccountStore) *Importer {
	return &Importer{ledger: l, rules: r, accounts: accounts}
}

// Import reads CSV rows from r and inserts them through the ledger. Rows
// that fail to parse or validate are skipped and reported in the result;
// a store failure aborts the run.
func (im *Importer) Import(ctx context.Context, r io.Reader, m Mapping) (Result, error) {
	if m.DateFormat == "" {
		m.DateFormat = "2006-01-02"
	}

	reader := csv.NewReader(r)
	header, err := reader.Read()
	if err != nil {
		return Result{}, core.Validationf("read CSV header: %v", err)
	}

	cols := make(map[string]int, len(header))
	for i, name := range header {
		cols[strings.TrimSpace(name)] = i
	}
	for _, required := range []string{m.Date, m.Amount, m.Description} {
		if required == "" {
			return Result{}, core.Validationf("date, amount and description columns must be mapped")
		}
		if _, ok := cols[required]; !ok {
			return Result{}, core.Validationf("column %q not found in CSV header", required)
		}
	}

	accountIDs, err := im.accountIDsByName(ctx)
	if err != nil {
		return Result{}, err
	}

	var result Result
	for line := 2; ; line++ {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			result.Skipped++
			result.Errors = append(result.Errors, fmt.Sprintf("line %d: %v", line, err))
			continue
		}

		draft, err := im.draftFromRecord(ctx, record, cols, m, accountIDs)
		if err != nil {
			result.Skipped++
			result.Errors = append(result.Errors, fmt.Sprintf("line %d: %v", line, err))
			continue
		}

		if _, err := im.ledger.Insert(ctx, draft); err != nil {
			if isStoreFailure(err) {
				return result, err
			}
			result.Skipped++
			result.Errors = append(result.Errors, fmt.Sprintf("line %d: %v", line, err))
			continue
		}
		result.Imported++
	}

	slog.InfoContext(ctx, "CSV import finished",
		"imported", result.Imported,
		"skipped", result.Skipped)
	return result, nil
}

func (im *Importer) draftFromRecord(ctx context.Context, record []string, cols map[string]int, m Mapping, accountIDs map[string]string) (ledger.Draft, error) {
	get := func(col string) string {
		idx, ok := cols[col]
		if !ok || idx >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[idx])
	}

	date, err := time.Parse(m.DateFormat, get(m.Date))
	if err != nil {
		return ledger.Draft{}, fmt.Errorf("parse date: %w", err)
	}

	amount, err := decimal.NewFromString(strings.ReplaceAll(get(m.Amount), ",", ""))
	if err != nil {
		return ledger.Draft{}, fmt.Errorf("parse amount: %w", err)
	}

	description := get(m.Description)

	// Rule matches beat the mapped category column; unmatched, uncategorized
	// rows fall back to "uncategorized".
	category := ""
	if m.Category != "" {
		category = get(m.Category)
	}
	if matched, ok, err := im.rules.Apply(ctx, description); err != nil {
		return ledger.Draft{}, err
	} else if ok {
		category = matched
	}
	if core.NormalizeCategory(category) == "" {
		category = "uncategorized"
	}

	accountName := m.DefaultAccount
	if m.Account != "" {
		if v := get(m.Account); v != "" {
			accountName = v
		}
	}
	accountID, ok := accountIDs[strings.ToLower(accountName)]
	if !ok {
		return ledger.Draft{}, fmt.Errorf("unknown account %q", accountName)
	}

	return ledger.Draft{
		Date:        date,
		Amount:      amount,
		Description: description,
		Category:    category,
		AccountID:   accountID,
	}, nil
}

func (im *Importer) accountIDsByName(ctx context.Context) (map[string]string, error) {
	accounts, err := im.accounts.ListAccounts(ctx)
	if err != nil {
		return nil, core.StoreErr("list accounts", err)
	}
	out := make(map[string]string, len(accounts))
	for _, a := range accounts {
		out[strings.ToLower(a.Name)] = a.ID
	}
	return out, nil
}

func isStoreFailure(err error) bool {
	return errors.Is(err, core.ErrStore)
}
