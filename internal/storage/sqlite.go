package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"finbot/internal/core"
	"finbot/internal/period"

	_ "modernc.org/sqlite"
)

// sqliteTimeLayout is fixed-width so stored timestamps sort
// lexicographically in chronological order.
const sqliteTimeLayout = "2006-01-02 15:04:05.000000000"

// SQLiteLedger implements Ledger over a local sqlite database.
type SQLiteLedger struct {
	db *sql.DB
}

// NewSQLiteLedger opens (creating if needed) the database at dbPath and
// applies pending migrations.
func NewSQLiteLedger(dbPath string) (*SQLiteLedger, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", "file:"+dbPath+"?_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunSQLiteMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteLedger{db: db}, nil
}

func (l *SQLiteLedger) Close() error {
	if l.db != nil {
		return l.db.Close()
	}
	return nil
}

func sqliteTime(t time.Time) string {
	return t.UTC().Format(sqliteTimeLayout)
}

func parseSQLiteTime(s string) (time.Time, error) {
	for _, layout := range []string{sqliteTimeLayout, "2006-01-02 15:04:05.000", "2006-01-02 15:04:05", time.RFC3339Nano} {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unparsable timestamp %q", s)
}

// EnsureUser creates the user row on first contact.
func (l *SQLiteLedger) EnsureUser(ctx context.Context, telegramID int64, username, firstName, lastName string) error {
	_, err := l.db.ExecContext(ctx, `
		INSERT INTO users (telegram_id, username, first_name, last_name, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(telegram_id) DO NOTHING`,
		telegramID, username, firstName, lastName, sqliteTime(time.Now()))
	if err != nil {
		return storageErr("ensure user", err)
	}
	return nil
}

func (l *SQLiteLedger) userRowID(ctx context.Context, q interface {
	QueryRowContext(context.Context, string, ...any) *sql.Row
}, telegramID int64) (int64, error) {
	var id int64
	err := q.QueryRowContext(ctx, `SELECT id FROM users WHERE telegram_id = ?`, telegramID).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, core.ErrUserNotFound
	}
	if err != nil {
		return 0, storageErr("resolve user", err)
	}
	return id, nil
}

// AddTransaction inserts a new entry, creating the category on first use.
func (l *SQLiteLedger) AddTransaction(ctx context.Context, p AddTransactionParams) (int64, error) {
	if !p.Kind.Valid() {
		return 0, core.ErrInvalidKind
	}
	if err := core.ValidateAmount(p.Amount); err != nil {
		return 0, err
	}
	category := strings.TrimSpace(p.Category)
	if category == "" {
		return 0, core.ErrEmptyCategory
	}
	note := core.TruncateNote(p.Note)
	occurredAt := p.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = time.Now()
	}

	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, storageErr("begin add transaction", err)
	}
	defer tx.Rollback()

	userID, err := l.userRowID(ctx, tx, p.UserID)
	if err != nil {
		return 0, err
	}

	categoryID, err := ensureCategoryTx(ctx, tx, category, p.Kind, userID)
	if err != nil {
		return 0, err
	}

	now := sqliteTime(time.Now())
	res, err := tx.ExecContext(ctx, `
		INSERT INTO transactions (user_id, kind, amount, category_id, note, occurred_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		userID, p.Kind.String(), p.Amount.String(), categoryID, note, sqliteTime(occurredAt), now, now)
	if err != nil {
		return 0, storageErr("insert transaction", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, storageErr("insert transaction", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, storageErr("commit add transaction", err)
	}

	slog.InfoContext(ctx, "Transaction saved",
		"id", id,
		"user", p.UserID,
		"kind", p.Kind.String(),
		"amount", p.Amount.String(),
		"category", category)

	return id, nil
}

func ensureCategoryTx(ctx context.Context, tx *sql.Tx, name string, kind core.Kind, ownerID int64) (int64, error) {
	var owner any
	if ownerID != 0 {
		owner = ownerID
	}
	_, err := tx.ExecContext(ctx, `
		INSERT INTO categories (name, kind, is_default, owner_id, created_at)
		VALUES (?, ?, 0, ?, ?)
		ON CONFLICT(name, kind) DO NOTHING`,
		name, kind.String(), owner, sqliteTime(time.Now()))
	if err != nil {
		return 0, storageErr("upsert category", err)
	}

	var id int64
	err = tx.QueryRowContext(ctx,
		`SELECT id FROM categories WHERE name = ? AND kind = ?`,
		name, kind.String()).Scan(&id)
	if err != nil {
		return 0, storageErr("resolve category", err)
	}
	return id, nil
}

// UpdateTransaction applies the supplied fields and bumps updated_at.
// Category changes resolve by name for the transaction's kind and never
// auto-create.
func (l *SQLiteLedger) UpdateTransaction(ctx context.Context, id int64, p UpdateTransactionParams) (core.Transaction, error) {
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return core.Transaction{}, storageErr("begin update transaction", err)
	}
	defer tx.Rollback()

	var kind string
	err = tx.QueryRowContext(ctx, `SELECT kind FROM transactions WHERE id = ?`, id).Scan(&kind)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Transaction{}, core.ErrTransactionNotFound
	}
	if err != nil {
		return core.Transaction{}, storageErr("load transaction", err)
	}

	sets := []string{}
	args := []any{}
	if p.Amount != nil {
		if err := core.ValidateAmount(*p.Amount); err != nil {
			return core.Transaction{}, err
		}
		sets = append(sets, "amount = ?")
		args = append(args, p.Amount.String())
	}
	if p.Category != nil {
		var categoryID int64
		err = tx.QueryRowContext(ctx,
			`SELECT id FROM categories WHERE name = ? AND kind = ?`,
			strings.TrimSpace(*p.Category), kind).Scan(&categoryID)
		if errors.Is(err, sql.ErrNoRows) {
			return core.Transaction{}, core.ErrCategoryNotFound
		}
		if err != nil {
			return core.Transaction{}, storageErr("resolve category", err)
		}
		sets = append(sets, "category_id = ?")
		args = append(args, categoryID)
	}
	if p.Note != nil {
		sets = append(sets, "note = ?")
		args = append(args, core.TruncateNote(*p.Note))
	}
	if p.OccurredAt != nil {
		sets = append(sets, "occurred_at = ?")
		args = append(args, sqliteTime(*p.OccurredAt))
	}

	if len(sets) > 0 {
		sets = append(sets, "updated_at = ?")
		args = append(args, sqliteTime(time.Now()))
		args = append(args, id)
		_, err = tx.ExecContext(ctx,
			"UPDATE transactions SET "+strings.Join(sets, ", ")+" WHERE id = ?", args...)
		if err != nil {
			return core.Transaction{}, storageErr("update transaction", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return core.Transaction{}, storageErr("commit update transaction", err)
	}

	return l.GetTransaction(ctx, id)
}

// DeleteTransaction removes the row permanently.
func (l *SQLiteLedger) DeleteTransaction(ctx context.Context, id int64) (int64, error) {
	var ownerID int64
	err := l.db.QueryRowContext(ctx, `
		SELECT u.telegram_id FROM transactions t
		JOIN users u ON t.user_id = u.id
		WHERE t.id = ?`, id).Scan(&ownerID)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, core.ErrTransactionNotFound
	}
	if err != nil {
		return 0, storageErr("load transaction owner", err)
	}

	if _, err := l.db.ExecContext(ctx, `DELETE FROM transactions WHERE id = ?`, id); err != nil {
		return 0, storageErr("delete transaction", err)
	}

	slog.InfoContext(ctx, "Transaction deleted", "id", id, "user", ownerID)
	return ownerID, nil
}

const transactionColumns = `
	t.id, u.telegram_id, t.kind, t.amount, c.name, t.category_id,
	t.note, t.occurred_at, t.created_at, t.updated_at
`

func scanTransaction(scan func(...any) error) (core.Transaction, error) {
	var (
		t                               core.Transaction
		kind, amount, occurred, created string
		updated                         string
	)
	if err := scan(&t.ID, &t.UserID, &kind, &amount, &t.Category, &t.CategoryID,
		&t.Note, &occurred, &created, &updated); err != nil {
		return core.Transaction{}, err
	}
	t.Kind = core.Kind(kind)

	var err error
	if t.Amount, err = decimal.NewFromString(amount); err != nil {
		return core.Transaction{}, fmt.Errorf("parse amount %q: %w", amount, err)
	}
	if t.OccurredAt, err = parseSQLiteTime(occurred); err != nil {
		return core.Transaction{}, err
	}
	if t.CreatedAt, err = parseSQLiteTime(created); err != nil {
		return core.Transaction{}, err
	}
	if t.UpdatedAt, err = parseSQLiteTime(updated); err != nil {
		return core.Transaction{}, err
	}
	return t, nil
}

// GetTransaction fetches a single entry by id.
func (l *SQLiteLedger) GetTransaction(ctx context.Context, id int64) (core.Transaction, error) {
	row := l.db.QueryRowContext(ctx, `
		SELECT `+transactionColumns+`
		FROM transactions t
		JOIN users u ON t.user_id = u.id
		JOIN categories c ON t.category_id = c.id
		WHERE t.id = ?`, id)

	t, err := scanTransaction(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Transaction{}, core.ErrTransactionNotFound
	}
	if err != nil {
		return core.Transaction{}, storageErr("get transaction", err)
	}
	return t, nil
}

// GetTransactions lists a user's entries newest first, optionally bounded
// and capped.
func (l *SQLiteLedger) GetTransactions(ctx context.Context, userID int64, f TransactionFilter) ([]core.Transaction, error) {
	internalID, err := l.userRowID(ctx, l.db, userID)
	if err != nil {
		return nil, err
	}

	query := `
		SELECT ` + transactionColumns + `
		FROM transactions t
		JOIN users u ON t.user_id = u.id
		JOIN categories c ON t.category_id = c.id
		WHERE t.user_id = ?`
	args := []any{internalID}

	if f.Start != nil {
		query += " AND t.occurred_at >= ?"
		args = append(args, sqliteTime(*f.Start))
	}
	if f.End != nil {
		query += " AND t.occurred_at <= ?"
		args = append(args, sqliteTime(*f.End))
	}
	query += " ORDER BY t.occurred_at DESC"
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storageErr("list transactions", err)
	}
	defer rows.Close()

	var out []core.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows.Scan)
		if err != nil {
			return nil, storageErr("scan transaction", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("list transactions", err)
	}
	return out, nil
}

// GetTotalBalance sums income minus expense across the user's whole ledger.
func (l *SQLiteLedger) GetTotalBalance(ctx context.Context, userID int64) (decimal.Decimal, error) {
	internalID, err := l.userRowID(ctx, l.db, userID)
	if err != nil {
		return decimal.Zero, err
	}

	rows, err := l.db.QueryContext(ctx,
		`SELECT kind, amount FROM transactions WHERE user_id = ?`, internalID)
	if err != nil {
		return decimal.Zero, storageErr("total balance", err)
	}
	defer rows.Close()

	// Summed in Go on decimals: sqlite would fall back to float arithmetic
	// on the text amounts.
	balance := decimal.Zero
	for rows.Next() {
		var kind, amount string
		if err := rows.Scan(&kind, &amount); err != nil {
			return decimal.Zero, storageErr("total balance", err)
		}
		d, err := decimal.NewFromString(amount)
		if err != nil {
			return decimal.Zero, storageErr("total balance", err)
		}
		if core.Kind(kind) == core.Income {
			balance = balance.Add(d)
		} else {
			balance = balance.Sub(d)
		}
	}
	if err := rows.Err(); err != nil {
		return decimal.Zero, storageErr("total balance", err)
	}
	return balance, nil
}

// EnsureCategory resolves or creates a (name, kind) category.
func (l *SQLiteLedger) EnsureCategory(ctx context.Context, name string, kind core.Kind, ownerID int64) (core.Category, error) {
	if !kind.Valid() {
		return core.Category{}, core.ErrInvalidKind
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return core.Category{}, core.ErrEmptyCategory
	}

	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return core.Category{}, storageErr("begin ensure category", err)
	}
	defer tx.Rollback()

	var owner int64
	if ownerID != 0 {
		if owner, err = l.userRowID(ctx, tx, ownerID); err != nil {
			return core.Category{}, err
		}
	}
	if _, err := ensureCategoryTx(ctx, tx, name, kind, owner); err != nil {
		return core.Category{}, err
	}
	if err := tx.Commit(); err != nil {
		return core.Category{}, storageErr("commit ensure category", err)
	}

	return l.getCategory(ctx, name, kind)
}

func (l *SQLiteLedger) getCategory(ctx context.Context, name string, kind core.Kind) (core.Category, error) {
	var (
		c         core.Category
		isDefault int
		owner     sql.NullInt64
		created   string
	)
	err := l.db.QueryRowContext(ctx, `
		SELECT c.id, c.name, c.kind, c.is_default, u.telegram_id, c.created_at
		FROM categories c
		LEFT JOIN users u ON c.owner_id = u.id
		WHERE c.name = ? AND c.kind = ?`,
		name, kind.String()).Scan(&c.ID, &c.Name, (*string)(&c.Kind), &isDefault, &owner, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Category{}, core.ErrCategoryNotFound
	}
	if err != nil {
		return core.Category{}, storageErr("get category", err)
	}
	c.IsDefault = isDefault != 0
	c.OwnerID = owner.Int64
	if c.CreatedAt, err = parseSQLiteTime(created); err != nil {
		return core.Category{}, storageErr("get category", err)
	}
	return c, nil
}

// ListCategories returns defaults plus the user's custom categories.
func (l *SQLiteLedger) ListCategories(ctx context.Context, userID int64) ([]core.Category, error) {
	internalID, err := l.userRowID(ctx, l.db, userID)
	if err != nil {
		return nil, err
	}

	rows, err := l.db.QueryContext(ctx, `
		SELECT c.id, c.name, c.kind, c.is_default, u.telegram_id, c.created_at
		FROM categories c
		LEFT JOIN users u ON c.owner_id = u.id
		WHERE c.is_default = 1 OR c.owner_id = ?
		ORDER BY c.kind, c.name`, internalID)
	if err != nil {
		return nil, storageErr("list categories", err)
	}
	defer rows.Close()

	var out []core.Category
	for rows.Next() {
		var (
			c         core.Category
			isDefault int
			owner     sql.NullInt64
			created   string
		)
		if err := rows.Scan(&c.ID, &c.Name, (*string)(&c.Kind), &isDefault, &owner, &created); err != nil {
			return nil, storageErr("scan category", err)
		}
		c.IsDefault = isDefault != 0
		c.OwnerID = owner.Int64
		if c.CreatedAt, err = parseSQLiteTime(created); err != nil {
			return nil, storageErr("scan category", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("list categories", err)
	}
	return out, nil
}

// DeleteCategory removes the category unless transactions reference it.
// The boolean result, not an error, reports a refused delete: a referenced
// category is the common case callers handle inline.
func (l *SQLiteLedger) DeleteCategory(ctx context.Context, name string, kind core.Kind) (bool, error) {
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return false, storageErr("begin delete category", err)
	}
	defer tx.Rollback()

	var id int64
	err = tx.QueryRowContext(ctx,
		`SELECT id FROM categories WHERE name = ? AND kind = ?`,
		name, kind.String()).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return false, core.ErrCategoryNotFound
	}
	if err != nil {
		return false, storageErr("resolve category", err)
	}

	var refs int64
	err = tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM transactions WHERE category_id = ?`, id).Scan(&refs)
	if err != nil {
		return false, storageErr("count category references", err)
	}
	if refs > 0 {
		return false, nil
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM categories WHERE id = ?`, id); err != nil {
		return false, storageErr("delete category", err)
	}
	if err := tx.Commit(); err != nil {
		return false, storageErr("commit delete category", err)
	}
	return true, nil
}

// GetReportSettings loads the user's reporting period configuration.
func (l *SQLiteLedger) GetReportSettings(ctx context.Context, userID int64) (period.Config, error) {
	internalID, err := l.userRowID(ctx, l.db, userID)
	if err != nil {
		return period.Config{}, err
	}

	var cfg period.Config
	err = l.db.QueryRowContext(ctx,
		`SELECT period_type, start_day FROM report_settings WHERE user_id = ?`,
		internalID).Scan((*string)(&cfg.Type), &cfg.StartDay)
	if errors.Is(err, sql.ErrNoRows) {
		return period.Config{}, ErrNoReportSettings
	}
	if err != nil {
		return period.Config{}, storageErr("get report settings", err)
	}
	return cfg, nil
}

// SetReportSettings stores the user's reporting period configuration.
func (l *SQLiteLedger) SetReportSettings(ctx context.Context, userID int64, cfg period.Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	internalID, err := l.userRowID(ctx, l.db, userID)
	if err != nil {
		return err
	}

	_, err = l.db.ExecContext(ctx, `
		INSERT INTO report_settings (user_id, period_type, start_day, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			period_type = excluded.period_type,
			start_day = excluded.start_day,
			updated_at = excluded.updated_at`,
		internalID, string(cfg.Type), cfg.StartDay, sqliteTime(time.Now()))
	if err != nil {
		return storageErr("set report settings", err)
	}
	return nil
}

// ListReportSettings returns every configured user keyed by chat-platform id.
func (l *SQLiteLedger) ListReportSettings(ctx context.Context) (map[int64]period.Config, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT u.telegram_id, r.period_type, r.start_day
		FROM report_settings r
		JOIN users u ON r.user_id = u.id`)
	if err != nil {
		return nil, storageErr("list report settings", err)
	}
	defer rows.Close()

	out := make(map[int64]period.Config)
	for rows.Next() {
		var (
			id  int64
			cfg period.Config
		)
		if err := rows.Scan(&id, (*string)(&cfg.Type), &cfg.StartDay); err != nil {
			return nil, storageErr("scan report settings", err)
		}
		out[id] = cfg
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("list report settings", err)
	}
	return out, nil
}
