package core

import (
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	Income  Kind = "income"
	Expense Kind = "expense"
)

// MaxNoteLength caps the free-text note on a transaction. Longer notes are
// truncated on write, not rejected.
const MaxNoteLength = 1000

type (
	// Kind is the closed two-value transaction kind.
	Kind string

	// User is a chat-platform identity with an internal surrogate id.
	// Created lazily on first interaction, never deleted.
	User struct {
		ID         int64
		TelegramID int64
		Username   string
		FirstName  string
		LastName   string
		CreatedAt  time.Time
	}

	// Category is a (name, kind) pair, unique across the ledger. Defaults are
	// seeded at initialization; custom categories remember who created them.
	Category struct {
		ID        int64
		Name      string
		Kind      Kind
		IsDefault bool
		OwnerID   int64 // 0 for default/shared categories
		CreatedAt time.Time
	}

	// Transaction is one ledger entry. Amount is always strictly positive;
	// the kind decides whether it counts as income or expense.
	Transaction struct {
		ID         int64
		UserID     int64 // chat-platform identity of the owner
		Kind       Kind
		Amount     decimal.Decimal
		Category   string
		CategoryID int64
		Note       string
		OccurredAt time.Time
		CreatedAt  time.Time
		UpdatedAt  time.Time
	}
)

var (
	ErrInvalidAmount       = errors.New("amount must be positive")
	ErrInvalidKind         = errors.New("invalid transaction kind")
	ErrEmptyCategory       = errors.New("empty category name")
	ErrUserNotFound        = errors.New("user not found")
	ErrTransactionNotFound = errors.New("transaction not found")
	ErrCategoryNotFound    = errors.New("category not found")
)

// Valid reports whether k is one of the two supported kinds.
func (k Kind) Valid() bool {
	return k == Income || k == Expense
}

func (k Kind) String() string {
	return string(k)
}

// ValidateAmount rejects zero and negative amounts.
func ValidateAmount(amount decimal.Decimal) error {
	if amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	return nil
}

// TruncateNote trims whitespace and enforces the note length cap.
func TruncateNote(note string) string {
	note = strings.TrimSpace(note)
	if len(note) > MaxNoteLength {
		note = note[:MaxNoteLength]
	}
	return note
}

func (t Transaction) Validate() error {
	if !t.Kind.Valid() {
		return ErrInvalidKind
	}
	if err := ValidateAmount(t.Amount); err != nil {
		return err
	}
	if strings.TrimSpace(t.Category) == "" {
		return ErrEmptyCategory
	}
	return nil
}
