// Package sqlite implements store.Store on a local SQLite database. The
// multi-row operations (DeleteFamily, ReplaceChildren) run inside SQL
// transactions so a crash mid-operation cannot leave a split family half
// written.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"

	"tally/internal/core"
	"tally/internal/store"
)

const dateLayout = "2006-01-02"

type Repository struct {
	db *sql.DB
}

var _ store.Store = (*Repository)(nil)

func New(dbPath string) (*Repository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &Repository{db: db}, nil
}

func (r *Repository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

func (r *Repository) ListAccounts(ctx context.Context) ([]core.Account, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, name FROM accounts ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("query accounts: %w", err)
	}
	defer rows.Close()

	var out []core.Account
	for rows.Next() {
		var a core.Account
		if err := rows.Scan(&a.ID, &a.Name); err != nil {
			return nil, fmt.Errorf("scan account: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (r *Repository) GetAccount(ctx context.Context, id string) (core.Account, error) {
	var a core.Account
	err := r.db.QueryRowContext(ctx,
		`SELECT id, name FROM accounts WHERE id = ?`, id).Scan(&a.ID, &a.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Account{}, core.NotFoundf("account %q", id)
	}
	if err != nil {
		return core.Account{}, fmt.Errorf("query account: %w", err)
	}
	return a, nil
}

func (r *Repository) CreateAccount(ctx context.Context, name string) (core.Account, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return core.Account{}, core.Validationf("account name cannot be empty")
	}
	a := core.Account{ID: uuid.NewString(), Name: name}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO accounts (id, name) VALUES (?, ?)`, a.ID, a.Name)
	if err != nil {
		return core.Account{}, fmt.Errorf("insert account: %w", err)
	}
	return a, nil
}

const transactionColumns = `t.id, t.date, t.amount, t.description, t.category, t.type,
	t.account_id, t.notes, t.deleted, t.is_split_parent, t.parent_id`

func (r *Repository) ListTransactions(ctx context.Context, f store.TransactionFilter) ([]core.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions t`
	where := []string{"t.deleted = 0"}
	var args []any

	if f.AccountNameContains != "" {
		query += ` JOIN accounts a ON a.id = t.account_id`
		where = append(where, `instr(lower(a.name), lower(?)) > 0`)
		args = append(args, f.AccountNameContains)
	}
	if f.AccountID != "" {
		where = append(where, `t.account_id = ?`)
		args = append(args, f.AccountID)
	}
	if f.ParentID != "" {
		where = append(where, `t.parent_id = ?`)
		args = append(args, f.ParentID)
	}
	if f.ExcludeSplitParents {
		where = append(where, `t.is_split_parent = 0`)
	}
	if f.OnlySplitParents {
		where = append(where, `t.is_split_parent = 1`)
	}
	if f.DescriptionContains != "" {
		where = append(where, `instr(lower(t.description), lower(?)) > 0`)
		args = append(args, f.DescriptionContains)
	}
	if f.CategoryContains != "" {
		where = append(where, `instr(t.category, ?) > 0`)
		args = append(args, core.NormalizeCategory(f.CategoryContains))
	}
	if !f.From.IsZero() {
		where = append(where, `t.date >= ?`)
		args = append(args, f.From.Format(dateLayout))
	}
	if !f.To.IsZero() {
		where = append(where, `t.date < ?`)
		args = append(args, f.To.Format(dateLayout))
	}

	query += ` WHERE ` + strings.Join(where, " AND ")
	if f.Ascending {
		query += ` ORDER BY t.date ASC, t.id ASC`
	} else {
		query += ` ORDER BY t.date DESC, t.id ASC`
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query transactions: %w", err)
	}
	defer rows.Close()

	var out []core.Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, tx)
	}
	return out, rows.Err()
}

func (r *Repository) GetTransaction(ctx context.Context, id string) (core.Transaction, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+transactionColumns+` FROM transactions t WHERE t.id = ?`, id)
	tx, err := scanTransaction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Transaction{}, core.NotFoundf("transaction %q", id)
	}
	if err != nil {
		return core.Transaction{}, err
	}
	return tx, nil
}

func (r *Repository) InsertTransaction(ctx context.Context, tx core.Transaction) error {
	return insertTransaction(ctx, r.db, tx)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertTransaction(ctx context.Context, db execer, tx core.Transaction) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO transactions
			(id, date, amount, description, category, type, account_id, notes,
			 deleted, is_split_parent, parent_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		tx.ID, tx.Date.Format(dateLayout), tx.Amount.String(), tx.Description,
		tx.Category, string(tx.Type), tx.AccountID, tx.Notes,
		boolToInt(tx.Deleted), boolToInt(tx.IsSplitParent), tx.ParentID)
	if err != nil {
		return fmt.Errorf("insert transaction: %w", err)
	}
	return nil
}

func (r *Repository) UpdateTransaction(ctx context.Context, tx core.Transaction) error {
	return updateTransaction(ctx, r.db, tx)
}

func updateTransaction(ctx context.Context, db execer, tx core.Transaction) error {
	res, err := db.ExecContext(ctx, `
		UPDATE transactions SET
			date = ?, amount = ?, description = ?, category = ?, type = ?,
			account_id = ?, notes = ?, deleted = ?, is_split_parent = ?, parent_id = ?
		WHERE id = ?`,
		tx.Date.Format(dateLayout), tx.Amount.String(), tx.Description,
		tx.Category, string(tx.Type), tx.AccountID, tx.Notes,
		boolToInt(tx.Deleted), boolToInt(tx.IsSplitParent), tx.ParentID, tx.ID)
	if err != nil {
		return fmt.Errorf("update transaction: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return core.NotFoundf("transaction %q", tx.ID)
	}
	return nil
}

func (r *Repository) MarkDeleted(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	return r.withTx(ctx, func(tx *sql.Tx) error {
		for _, id := range ids {
			res, err := tx.ExecContext(ctx,
				`UPDATE transactions SET deleted = 1 WHERE id = ?`, id)
			if err != nil {
				return fmt.Errorf("mark deleted: %w", err)
			}
			n, err := res.RowsAffected()
			if err != nil {
				return fmt.Errorf("rows affected: %w", err)
			}
			if n == 0 {
				return core.NotFoundf("transaction %q", id)
			}
		}
		return nil
	})
}

func (r *Repository) DeleteFamily(ctx context.Context, parentID string) ([]string, error) {
	var deleted []string
	err := r.withTx(ctx, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, `
			SELECT id FROM transactions
			WHERE deleted = 0 AND (id = ? OR parent_id = ?)
			ORDER BY id`, parentID, parentID)
		if err != nil {
			return fmt.Errorf("query family: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var id string
			if err := rows.Scan(&id); err != nil {
				return fmt.Errorf("scan family id: %w", err)
			}
			deleted = append(deleted, id)
		}
		if err := rows.Err(); err != nil {
			return err
		}
		if len(deleted) == 0 {
			return core.NotFoundf("transaction %q", parentID)
		}

		_, err = tx.ExecContext(ctx, `
			UPDATE transactions SET deleted = 1
			WHERE id = ? OR parent_id = ?`, parentID, parentID)
		if err != nil {
			return fmt.Errorf("tombstone family: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return deleted, nil
}

func (r *Repository) ReplaceChildren(ctx context.Context, parent core.Transaction, children []core.Transaction) error {
	return r.withTx(ctx, func(tx *sql.Tx) error {
		if err := updateTransaction(ctx, tx, parent); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `
			UPDATE transactions SET deleted = 1
			WHERE parent_id = ? AND deleted = 0`, parent.ID)
		if err != nil {
			return fmt.Errorf("clear children: %w", err)
		}
		for _, c := range children {
			if err := insertTransaction(ctx, tx, c); err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *Repository) ListBudgets(ctx context.Context, year, month int) ([]core.Budget, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, category, year, month, amount, type FROM budgets
		WHERE year = ? AND month = ?
		ORDER BY category`, year, month)
	if err != nil {
		return nil, fmt.Errorf("query budgets: %w", err)
	}
	defer rows.Close()

	var out []core.Budget
	for rows.Next() {
		var b core.Budget
		var amount, btype string
		if err := rows.Scan(&b.ID, &b.Category, &b.Year, &b.Month, &amount, &btype); err != nil {
			return nil, fmt.Errorf("scan budget: %w", err)
		}
		b.Amount, err = decimal.NewFromString(amount)
		if err != nil {
			return nil, fmt.Errorf("parse budget amount %q: %w", amount, err)
		}
		b.Type = core.BudgetType(btype)
		out = append(out, b)
	}
	return out, rows.Err()
}

func (r *Repository) UpsertBudget(ctx context.Context, b core.Budget) (core.Budget, error) {
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	// The (category, year, month) conflict keeps the original row id so the
	// key never duplicates.
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO budgets (id, category, year, month, amount, type)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (category, year, month)
		DO UPDATE SET amount = excluded.amount, type = excluded.type`,
		b.ID, b.Category, b.Year, b.Month, b.Amount.String(), string(b.Type))
	if err != nil {
		return core.Budget{}, fmt.Errorf("upsert budget: %w", err)
	}

	var stored core.Budget
	var amount, btype string
	err = r.db.QueryRowContext(ctx, `
		SELECT id, category, year, month, amount, type FROM budgets
		WHERE category = ? AND year = ? AND month = ?`,
		b.Category, b.Year, b.Month).
		Scan(&stored.ID, &stored.Category, &stored.Year, &stored.Month, &amount, &btype)
	if err != nil {
		return core.Budget{}, fmt.Errorf("read back budget: %w", err)
	}
	stored.Amount, err = decimal.NewFromString(amount)
	if err != nil {
		return core.Budget{}, fmt.Errorf("parse budget amount %q: %w", amount, err)
	}
	stored.Type = core.BudgetType(btype)
	return stored, nil
}

func (r *Repository) ListRules(ctx context.Context) ([]core.CategoryRule, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, match_text, category, priority FROM category_rules
		ORDER BY priority, match_text`)
	if err != nil {
		return nil, fmt.Errorf("query rules: %w", err)
	}
	defer rows.Close()

	var out []core.CategoryRule
	for rows.Next() {
		var rule core.CategoryRule
		if err := rows.Scan(&rule.ID, &rule.MatchText, &rule.Category, &rule.Priority); err != nil {
			return nil, fmt.Errorf("scan rule: %w", err)
		}
		out = append(out, rule)
	}
	return out, rows.Err()
}

func (r *Repository) AddRule(ctx context.Context, rule core.CategoryRule) (core.CategoryRule, error) {
	if rule.ID == "" {
		rule.ID = uuid.NewString()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO category_rules (id, match_text, category, priority)
		VALUES (?, ?, ?, ?)`,
		rule.ID, rule.MatchText, rule.Category, rule.Priority)
	if err != nil {
		return core.CategoryRule{}, fmt.Errorf("insert rule: %w", err)
	}
	return rule, nil
}

func (r *Repository) DeleteRule(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM category_rules WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete rule: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return core.NotFoundf("rule %q", id)
	}
	return nil
}

// withTx runs fn inside a transaction, rolling back on error.
func (r *Repository) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTransaction(row rowScanner) (core.Transaction, error) {
	var tx core.Transaction
	var date, amount, txType string
	var deleted, isSplitParent int
	err := row.Scan(&tx.ID, &date, &amount, &tx.Description, &tx.Category, &txType,
		&tx.AccountID, &tx.Notes, &deleted, &isSplitParent, &tx.ParentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.Transaction{}, err
		}
		return core.Transaction{}, fmt.Errorf("scan transaction: %w", err)
	}

	tx.Date, err = time.Parse(dateLayout, date)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("parse date %q: %w", date, err)
	}
	tx.Amount, err = decimal.NewFromString(amount)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("parse amount %q: %w", amount, err)
	}
	tx.Type = core.TransactionType(txType)
	tx.Deleted = deleted != 0
	tx.IsSplitParent = isSplitParent != 0
	return tx, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
