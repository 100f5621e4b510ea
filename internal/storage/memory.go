package storage

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"finbot/internal/core"
	"finbot/internal/period"
)

// MemoryLedger is an in-memory Ledger used for the memory backend and in
// tests. It mirrors the relational backends' semantics, including the
// seeded default categories.
type MemoryLedger struct {
	mu sync.RWMutex

	nextUserID        int64
	nextCategoryID    int64
	nextTransactionID int64

	users        map[int64]*core.User // keyed by telegram id
	categories   map[int64]*core.Category
	transactions map[int64]*core.Transaction
	settings     map[int64]period.Config // keyed by telegram id
}

func NewMemoryLedger() *MemoryLedger {
	l := &MemoryLedger{
		users:        make(map[int64]*core.User),
		categories:   make(map[int64]*core.Category),
		transactions: make(map[int64]*core.Transaction),
		settings:     make(map[int64]period.Config),
	}
	for _, dc := range DefaultCategories {
		l.nextCategoryID++
		l.categories[l.nextCategoryID] = &core.Category{
			ID:        l.nextCategoryID,
			Name:      dc.Name,
			Kind:      dc.Kind,
			IsDefault: true,
			CreatedAt: time.Now(),
		}
	}
	return l
}

func (l *MemoryLedger) Close() error { return nil }

func (l *MemoryLedger) EnsureUser(_ context.Context, telegramID int64, username, firstName, lastName string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.users[telegramID]; ok {
		return nil
	}
	l.nextUserID++
	l.users[telegramID] = &core.User{
		ID:         l.nextUserID,
		TelegramID: telegramID,
		Username:   username,
		FirstName:  firstName,
		LastName:   lastName,
		CreatedAt:  time.Now(),
	}
	return nil
}

// findCategory returns the category matching (name, kind), or nil.
// Callers must hold l.mu.
func (l *MemoryLedger) findCategory(name string, kind core.Kind) *core.Category {
	for _, c := range l.categories {
		if c.Name == name && c.Kind == kind {
			return c
		}
	}
	return nil
}

func (l *MemoryLedger) ensureCategoryLocked(name string, kind core.Kind, ownerID int64) *core.Category {
	if c := l.findCategory(name, kind); c != nil {
		return c
	}
	l.nextCategoryID++
	c := &core.Category{
		ID:        l.nextCategoryID,
		Name:      name,
		Kind:      kind,
		OwnerID:   ownerID,
		CreatedAt: time.Now(),
	}
	l.categories[c.ID] = c
	return c
}

func (l *MemoryLedger) AddTransaction(_ context.Context, p AddTransactionParams) (int64, error) {
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

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.users[p.UserID]; !ok {
		return 0, core.ErrUserNotFound
	}

	occurredAt := p.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = time.Now()
	}

	c := l.ensureCategoryLocked(category, p.Kind, p.UserID)

	l.nextTransactionID++
	now := time.Now()
	l.transactions[l.nextTransactionID] = &core.Transaction{
		ID:         l.nextTransactionID,
		UserID:     p.UserID,
		Kind:       p.Kind,
		Amount:     p.Amount,
		Category:   c.Name,
		CategoryID: c.ID,
		Note:       core.TruncateNote(p.Note),
		OccurredAt: occurredAt,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	return l.nextTransactionID, nil
}

func (l *MemoryLedger) UpdateTransaction(_ context.Context, id int64, p UpdateTransactionParams) (core.Transaction, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	t, ok := l.transactions[id]
	if !ok {
		return core.Transaction{}, core.ErrTransactionNotFound
	}

	if p.Amount != nil {
		if err := core.ValidateAmount(*p.Amount); err != nil {
			return core.Transaction{}, err
		}
	}
	if p.Category != nil {
		c := l.findCategory(strings.TrimSpace(*p.Category), t.Kind)
		if c == nil {
			return core.Transaction{}, core.ErrCategoryNotFound
		}
		t.Category = c.Name
		t.CategoryID = c.ID
	}
	if p.Amount != nil {
		t.Amount = *p.Amount
	}
	if p.Note != nil {
		t.Note = core.TruncateNote(*p.Note)
	}
	if p.OccurredAt != nil {
		t.OccurredAt = *p.OccurredAt
	}
	t.UpdatedAt = time.Now()
	return *t, nil
}

func (l *MemoryLedger) DeleteTransaction(_ context.Context, id int64) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	t, ok := l.transactions[id]
	if !ok {
		return 0, core.ErrTransactionNotFound
	}
	delete(l.transactions, id)
	return t.UserID, nil
}

func (l *MemoryLedger) GetTransaction(_ context.Context, id int64) (core.Transaction, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	t, ok := l.transactions[id]
	if !ok {
		return core.Transaction{}, core.ErrTransactionNotFound
	}
	return *t, nil
}

func (l *MemoryLedger) GetTransactions(_ context.Context, userID int64, f TransactionFilter) ([]core.Transaction, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if _, ok := l.users[userID]; !ok {
		return nil, core.ErrUserNotFound
	}

	var out []core.Transaction
	for _, t := range l.transactions {
		if t.UserID != userID {
			continue
		}
		if f.Start != nil && t.OccurredAt.Before(*f.Start) {
			continue
		}
		if f.End != nil && t.OccurredAt.After(*f.End) {
			continue
		}
		out = append(out, *t)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].OccurredAt.After(out[j].OccurredAt)
	})
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (l *MemoryLedger) GetTotalBalance(_ context.Context, userID int64) (decimal.Decimal, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if _, ok := l.users[userID]; !ok {
		return decimal.Zero, core.ErrUserNotFound
	}

	balance := decimal.Zero
	for _, t := range l.transactions {
		if t.UserID != userID {
			continue
		}
		if t.Kind == core.Income {
			balance = balance.Add(t.Amount)
		} else {
			balance = balance.Sub(t.Amount)
		}
	}
	return balance, nil
}

func (l *MemoryLedger) EnsureCategory(_ context.Context, name string, kind core.Kind, ownerID int64) (core.Category, error) {
	if !kind.Valid() {
		return core.Category{}, core.ErrInvalidKind
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return core.Category{}, core.ErrEmptyCategory
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if ownerID != 0 {
		if _, ok := l.users[ownerID]; !ok {
			return core.Category{}, core.ErrUserNotFound
		}
	}
	return *l.ensureCategoryLocked(name, kind, ownerID), nil
}

func (l *MemoryLedger) ListCategories(_ context.Context, userID int64) ([]core.Category, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if _, ok := l.users[userID]; !ok {
		return nil, core.ErrUserNotFound
	}

	var out []core.Category
	for _, c := range l.categories {
		if c.IsDefault || c.OwnerID == userID {
			out = append(out, *c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Kind != out[j].Kind {
			return out[i].Kind < out[j].Kind
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

func (l *MemoryLedger) DeleteCategory(_ context.Context, name string, kind core.Kind) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	c := l.findCategory(name, kind)
	if c == nil {
		return false, core.ErrCategoryNotFound
	}
	for _, t := range l.transactions {
		if t.CategoryID == c.ID {
			return false, nil
		}
	}
	delete(l.categories, c.ID)
	return true, nil
}

func (l *MemoryLedger) GetReportSettings(_ context.Context, userID int64) (period.Config, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if _, ok := l.users[userID]; !ok {
		return period.Config{}, core.ErrUserNotFound
	}
	cfg, ok := l.settings[userID]
	if !ok {
		return period.Config{}, ErrNoReportSettings
	}
	return cfg, nil
}

func (l *MemoryLedger) SetReportSettings(_ context.Context, userID int64, cfg period.Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.users[userID]; !ok {
		return core.ErrUserNotFound
	}
	l.settings[userID] = cfg
	return nil
}

func (l *MemoryLedger) ListReportSettings(_ context.Context) (map[int64]period.Config, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make(map[int64]period.Config, len(l.settings))
	for id, cfg := range l.settings {
		out[id] = cfg
	}
	return out, nil
}
