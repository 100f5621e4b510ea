// Package storage provides the durable ledger: users, categories and
// transactions behind the Ledger interface, with interchangeable sqlite,
// postgres and in-memory backends.
package storage

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"finbot/internal/core"
	"finbot/internal/period"
)

// AddTransactionParams describes a new ledger entry. UserID is the
// chat-platform identity; a zero OccurredAt defaults to now.
type AddTransactionParams struct {
	UserID     int64
	Kind       core.Kind
	Amount     decimal.Decimal
	Category   string
	Note       string
	OccurredAt time.Time
}

// UpdateTransactionParams carries the fields to change; nil means keep.
// Unlike creation, a category change never auto-creates the category.
type UpdateTransactionParams struct {
	Amount     *decimal.Decimal
	Category   *string
	Note       *string
	OccurredAt *time.Time
}

// TransactionFilter bounds a transaction listing. Either date bound may be
// nil; each is applied independently and both are inclusive. Limit <= 0
// means no cap.
type TransactionFilter struct {
	Start *time.Time
	End   *time.Time
	Limit int
}

// Ledger is the durable record of users, categories and transactions.
// Implementations enforce the referential and value constraints a second
// time at the schema level (CHECK amount > 0, closed kind set, unique
// (name, kind) categories).
type Ledger interface {
	// EnsureUser creates the user on first interaction; it is a no-op when
	// the user already exists.
	EnsureUser(ctx context.Context, telegramID int64, username, firstName, lastName string) error

	// AddTransaction validates, resolves or creates the category, inserts
	// the row and returns its id. Fails with core.ErrUserNotFound when the
	// owner is unknown.
	AddTransaction(ctx context.Context, p AddTransactionParams) (int64, error)
	// UpdateTransaction applies the supplied fields and returns the
	// refreshed record. Fails with core.ErrTransactionNotFound for an
	// unknown id and core.ErrCategoryNotFound for an absent category.
	UpdateTransaction(ctx context.Context, id int64, p UpdateTransactionParams) (core.Transaction, error)
	// DeleteTransaction removes the row permanently and returns the
	// owner's chat-platform id so callers can invalidate caches.
	DeleteTransaction(ctx context.Context, id int64) (int64, error)
	// GetTransaction fetches a single entry by id.
	GetTransaction(ctx context.Context, id int64) (core.Transaction, error)
	// GetTransactions lists a user's entries ordered by occurred-at
	// descending. Fails with core.ErrUserNotFound for an unknown user.
	GetTransactions(ctx context.Context, userID int64, f TransactionFilter) ([]core.Transaction, error)
	// GetTotalBalance is sum(income) - sum(expense) over the whole ledger
	// for the user, zero when they have no transactions.
	GetTotalBalance(ctx context.Context, userID int64) (decimal.Decimal, error)

	// EnsureCategory resolves the (name, kind) category, creating it as a
	// custom category of ownerID when absent.
	EnsureCategory(ctx context.Context, name string, kind core.Kind, ownerID int64) (core.Category, error)
	// ListCategories returns the defaults plus the user's custom categories.
	ListCategories(ctx context.Context, userID int64) ([]core.Category, error)
	// DeleteCategory removes the category unless a transaction references
	// it. The boolean reports whether the delete happened; a referenced
	// category is an expected outcome, not an error.
	DeleteCategory(ctx context.Context, name string, kind core.Kind) (bool, error)

	// Report settings: per-user reporting period configuration.
	// GetReportSettings fails with ErrNoReportSettings when the user has
	// never configured one.
	GetReportSettings(ctx context.Context, userID int64) (period.Config, error)
	SetReportSettings(ctx context.Context, userID int64, cfg period.Config) error
	ListReportSettings(ctx context.Context) (map[int64]period.Config, error)

	Close() error
}
