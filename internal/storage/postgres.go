package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"finbot/internal/core"
	"finbot/internal/period"
)

// PostgresLedger implements Ledger over a pgx connection pool.
type PostgresLedger struct {
	pool *pgxpool.Pool
}

// NewPostgresLedger applies pending migrations and opens a pool against
// databaseURL.
func NewPostgresLedger(ctx context.Context, databaseURL string) (*PostgresLedger, error) {
	if err := RunPostgresMigrations(databaseURL); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &PostgresLedger{pool: pool}, nil
}

func (l *PostgresLedger) Close() error {
	if l.pool != nil {
		l.pool.Close()
	}
	return nil
}

type pgQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func (l *PostgresLedger) pgUserRowID(ctx context.Context, q pgQuerier, telegramID int64) (int64, error) {
	var id int64
	err := q.QueryRow(ctx, `SELECT id FROM users WHERE telegram_id = $1`, telegramID).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, core.ErrUserNotFound
	}
	if err != nil {
		return 0, storageErr("resolve user", err)
	}
	return id, nil
}

func (l *PostgresLedger) EnsureUser(ctx context.Context, telegramID int64, username, firstName, lastName string) error {
	_, err := l.pool.Exec(ctx, `
		INSERT INTO users (telegram_id, username, first_name, last_name)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (telegram_id) DO NOTHING`,
		telegramID, username, firstName, lastName)
	if err != nil {
		return storageErr("ensure user", err)
	}
	return nil
}

func (l *PostgresLedger) AddTransaction(ctx context.Context, p AddTransactionParams) (int64, error) {
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

	tx, err := l.pool.Begin(ctx)
	if err != nil {
		return 0, storageErr("begin add transaction", err)
	}
	defer tx.Rollback(ctx)

	userID, err := l.pgUserRowID(ctx, tx, p.UserID)
	if err != nil {
		return 0, err
	}

	categoryID, err := pgEnsureCategory(ctx, tx, category, p.Kind, userID)
	if err != nil {
		return 0, err
	}

	var id int64
	err = tx.QueryRow(ctx, `
		INSERT INTO transactions (user_id, kind, amount, category_id, note, occurred_at)
		VALUES ($1, $2, $3::numeric, $4, $5, $6)
		RETURNING id`,
		userID, p.Kind.String(), p.Amount.String(), categoryID, note, occurredAt.UTC()).Scan(&id)
	if err != nil {
		return 0, storageErr("insert transaction", err)
	}

	if err := tx.Commit(ctx); err != nil {
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

func pgEnsureCategory(ctx context.Context, tx pgx.Tx, name string, kind core.Kind, ownerID int64) (int64, error) {
	var owner any
	if ownerID != 0 {
		owner = ownerID
	}
	_, err := tx.Exec(ctx, `
		INSERT INTO categories (name, kind, is_default, owner_id)
		VALUES ($1, $2, FALSE, $3)
		ON CONFLICT (name, kind) DO NOTHING`,
		name, kind.String(), owner)
	if err != nil {
		return 0, storageErr("upsert category", err)
	}

	var id int64
	err = tx.QueryRow(ctx,
		`SELECT id FROM categories WHERE name = $1 AND kind = $2`,
		name, kind.String()).Scan(&id)
	if err != nil {
		return 0, storageErr("resolve category", err)
	}
	return id, nil
}

func (l *PostgresLedger) UpdateTransaction(ctx context.Context, id int64, p UpdateTransactionParams) (core.Transaction, error) {
	tx, err := l.pool.Begin(ctx)
	if err != nil {
		return core.Transaction{}, storageErr("begin update transaction", err)
	}
	defer tx.Rollback(ctx)

	var kind string
	err = tx.QueryRow(ctx, `SELECT kind FROM transactions WHERE id = $1`, id).Scan(&kind)
	if errors.Is(err, pgx.ErrNoRows) {
		return core.Transaction{}, core.ErrTransactionNotFound
	}
	if err != nil {
		return core.Transaction{}, storageErr("load transaction", err)
	}

	sets := []string{}
	args := []any{}
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if p.Amount != nil {
		if err := core.ValidateAmount(*p.Amount); err != nil {
			return core.Transaction{}, err
		}
		sets = append(sets, "amount = "+arg(p.Amount.String())+"::numeric")
	}
	if p.Category != nil {
		var categoryID int64
		err = tx.QueryRow(ctx,
			`SELECT id FROM categories WHERE name = $1 AND kind = $2`,
			strings.TrimSpace(*p.Category), kind).Scan(&categoryID)
		if errors.Is(err, pgx.ErrNoRows) {
			return core.Transaction{}, core.ErrCategoryNotFound
		}
		if err != nil {
			return core.Transaction{}, storageErr("resolve category", err)
		}
		sets = append(sets, "category_id = "+arg(categoryID))
	}
	if p.Note != nil {
		sets = append(sets, "note = "+arg(core.TruncateNote(*p.Note)))
	}
	if p.OccurredAt != nil {
		sets = append(sets, "occurred_at = "+arg(p.OccurredAt.UTC()))
	}

	if len(sets) > 0 {
		sets = append(sets, "updated_at = now()")
		query := "UPDATE transactions SET " + strings.Join(sets, ", ") +
			" WHERE id = " + arg(id)
		if _, err := tx.Exec(ctx, query, args...); err != nil {
			return core.Transaction{}, storageErr("update transaction", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return core.Transaction{}, storageErr("commit update transaction", err)
	}

	return l.GetTransaction(ctx, id)
}

func (l *PostgresLedger) DeleteTransaction(ctx context.Context, id int64) (int64, error) {
	var ownerID int64
	err := l.pool.QueryRow(ctx, `
		SELECT u.telegram_id FROM transactions t
		JOIN users u ON t.user_id = u.id
		WHERE t.id = $1`, id).Scan(&ownerID)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, core.ErrTransactionNotFound
	}
	if err != nil {
		return 0, storageErr("load transaction owner", err)
	}

	if _, err := l.pool.Exec(ctx, `DELETE FROM transactions WHERE id = $1`, id); err != nil {
		return 0, storageErr("delete transaction", err)
	}

	slog.InfoContext(ctx, "Transaction deleted", "id", id, "user", ownerID)
	return ownerID, nil
}

// NUMERIC comes back as text so decimals never pass through a float.
const pgTransactionColumns = `
	t.id, u.telegram_id, t.kind, t.amount::text, c.name, t.category_id,
	t.note, t.occurred_at, t.created_at, t.updated_at
`

func scanPgTransaction(row pgx.Row) (core.Transaction, error) {
	var (
		t      core.Transaction
		kind   string
		amount string
	)
	if err := row.Scan(&t.ID, &t.UserID, &kind, &amount, &t.Category, &t.CategoryID,
		&t.Note, &t.OccurredAt, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return core.Transaction{}, err
	}
	t.Kind = core.Kind(kind)

	var err error
	if t.Amount, err = decimal.NewFromString(amount); err != nil {
		return core.Transaction{}, fmt.Errorf("parse amount %q: %w", amount, err)
	}
	return t, nil
}

func (l *PostgresLedger) GetTransaction(ctx context.Context, id int64) (core.Transaction, error) {
	row := l.pool.QueryRow(ctx, `
		SELECT `+pgTransactionColumns+`
		FROM transactions t
		JOIN users u ON t.user_id = u.id
		JOIN categories c ON t.category_id = c.id
		WHERE t.id = $1`, id)

	t, err := scanPgTransaction(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return core.Transaction{}, core.ErrTransactionNotFound
	}
	if err != nil {
		return core.Transaction{}, storageErr("get transaction", err)
	}
	return t, nil
}

func (l *PostgresLedger) GetTransactions(ctx context.Context, userID int64, f TransactionFilter) ([]core.Transaction, error) {
	internalID, err := l.pgUserRowID(ctx, l.pool, userID)
	if err != nil {
		return nil, err
	}

	query := `
		SELECT ` + pgTransactionColumns + `
		FROM transactions t
		JOIN users u ON t.user_id = u.id
		JOIN categories c ON t.category_id = c.id
		WHERE t.user_id = $1`
	args := []any{internalID}

	if f.Start != nil {
		args = append(args, f.Start.UTC())
		query += fmt.Sprintf(" AND t.occurred_at >= $%d", len(args))
	}
	if f.End != nil {
		args = append(args, f.End.UTC())
		query += fmt.Sprintf(" AND t.occurred_at <= $%d", len(args))
	}
	query += " ORDER BY t.occurred_at DESC"
	if f.Limit > 0 {
		args = append(args, f.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := l.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, storageErr("list transactions", err)
	}
	defer rows.Close()

	var out []core.Transaction
	for rows.Next() {
		t, err := scanPgTransaction(rows)
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

func (l *PostgresLedger) GetTotalBalance(ctx context.Context, userID int64) (decimal.Decimal, error) {
	internalID, err := l.pgUserRowID(ctx, l.pool, userID)
	if err != nil {
		return decimal.Zero, err
	}

	var total string
	err = l.pool.QueryRow(ctx, `
		SELECT COALESCE(SUM(CASE WHEN kind = 'income' THEN amount ELSE -amount END), 0)::text
		FROM transactions WHERE user_id = $1`, internalID).Scan(&total)
	if err != nil {
		return decimal.Zero, storageErr("total balance", err)
	}

	balance, err := decimal.NewFromString(total)
	if err != nil {
		return decimal.Zero, storageErr("total balance", err)
	}
	return balance, nil
}

func (l *PostgresLedger) EnsureCategory(ctx context.Context, name string, kind core.Kind, ownerID int64) (core.Category, error) {
	if !kind.Valid() {
		return core.Category{}, core.ErrInvalidKind
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return core.Category{}, core.ErrEmptyCategory
	}

	tx, err := l.pool.Begin(ctx)
	if err != nil {
		return core.Category{}, storageErr("begin ensure category", err)
	}
	defer tx.Rollback(ctx)

	var owner int64
	if ownerID != 0 {
		if owner, err = l.pgUserRowID(ctx, tx, ownerID); err != nil {
			return core.Category{}, err
		}
	}
	if _, err := pgEnsureCategory(ctx, tx, name, kind, owner); err != nil {
		return core.Category{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return core.Category{}, storageErr("commit ensure category", err)
	}

	var (
		c        core.Category
		ownerRef *int64
	)
	err = l.pool.QueryRow(ctx, `
		SELECT c.id, c.name, c.kind, c.is_default, u.telegram_id, c.created_at
		FROM categories c
		LEFT JOIN users u ON c.owner_id = u.id
		WHERE c.name = $1 AND c.kind = $2`,
		name, kind.String()).Scan(&c.ID, &c.Name, (*string)(&c.Kind), &c.IsDefault, &ownerRef, &c.CreatedAt)
	if err != nil {
		return core.Category{}, storageErr("get category", err)
	}
	if ownerRef != nil {
		c.OwnerID = *ownerRef
	}
	return c, nil
}

func (l *PostgresLedger) ListCategories(ctx context.Context, userID int64) ([]core.Category, error) {
	internalID, err := l.pgUserRowID(ctx, l.pool, userID)
	if err != nil {
		return nil, err
	}

	rows, err := l.pool.Query(ctx, `
		SELECT c.id, c.name, c.kind, c.is_default, u.telegram_id, c.created_at
		FROM categories c
		LEFT JOIN users u ON c.owner_id = u.id
		WHERE c.is_default OR c.owner_id = $1
		ORDER BY c.kind, c.name`, internalID)
	if err != nil {
		return nil, storageErr("list categories", err)
	}
	defer rows.Close()

	var out []core.Category
	for rows.Next() {
		var (
			c     core.Category
			owner *int64
		)
		if err := rows.Scan(&c.ID, &c.Name, (*string)(&c.Kind), &c.IsDefault, &owner, &c.CreatedAt); err != nil {
			return nil, storageErr("scan category", err)
		}
		if owner != nil {
			c.OwnerID = *owner
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("list categories", err)
	}
	return out, nil
}

func (l *PostgresLedger) DeleteCategory(ctx context.Context, name string, kind core.Kind) (bool, error) {
	tx, err := l.pool.Begin(ctx)
	if err != nil {
		return false, storageErr("begin delete category", err)
	}
	defer tx.Rollback(ctx)

	var id int64
	err = tx.QueryRow(ctx,
		`SELECT id FROM categories WHERE name = $1 AND kind = $2`,
		name, kind.String()).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, core.ErrCategoryNotFound
	}
	if err != nil {
		return false, storageErr("resolve category", err)
	}

	var refs int64
	err = tx.QueryRow(ctx,
		`SELECT COUNT(*) FROM transactions WHERE category_id = $1`, id).Scan(&refs)
	if err != nil {
		return false, storageErr("count category references", err)
	}
	if refs > 0 {
		return false, nil
	}

	if _, err := tx.Exec(ctx, `DELETE FROM categories WHERE id = $1`, id); err != nil {
		return false, storageErr("delete category", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return false, storageErr("commit delete category", err)
	}
	return true, nil
}

func (l *PostgresLedger) GetReportSettings(ctx context.Context, userID int64) (period.Config, error) {
	internalID, err := l.pgUserRowID(ctx, l.pool, userID)
	if err != nil {
		return period.Config{}, err
	}

	var cfg period.Config
	err = l.pool.QueryRow(ctx,
		`SELECT period_type, start_day FROM report_settings WHERE user_id = $1`,
		internalID).Scan((*string)(&cfg.Type), &cfg.StartDay)
	if errors.Is(err, pgx.ErrNoRows) {
		return period.Config{}, ErrNoReportSettings
	}
	if err != nil {
		return period.Config{}, storageErr("get report settings", err)
	}
	return cfg, nil
}

func (l *PostgresLedger) SetReportSettings(ctx context.Context, userID int64, cfg period.Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	internalID, err := l.pgUserRowID(ctx, l.pool, userID)
	if err != nil {
		return err
	}

	_, err = l.pool.Exec(ctx, `
		INSERT INTO report_settings (user_id, period_type, start_day)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id) DO UPDATE SET
			period_type = excluded.period_type,
			start_day = excluded.start_day,
			updated_at = now()`,
		internalID, string(cfg.Type), cfg.StartDay)
	if err != nil {
		return storageErr("set report settings", err)
	}
	return nil
}

func (l *PostgresLedger) ListReportSettings(ctx context.Context) (map[int64]period.Config, error) {
	rows, err := l.pool.Query(ctx, `
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
