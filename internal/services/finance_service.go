package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"

	"finbot/internal/cache"
	"finbot/internal/core"
	"finbot/internal/period"
	"finbot/internal/stats"
	"finbot/internal/storage"
)

// FinanceService orchestrates ledger access and the statistics cache.
// Reads go through the cache; mutations invalidate the owning user's
// entries before returning, so a follow-up read never sees stale totals.
type FinanceService struct {
	ledger           storage.Ledger
	cache            *cache.StatsCache
	group            singleflight.Group
	defaultRangeDays int
}

// DefaultRangeDays is the trailing window for recent-activity reads when no
// explicit range is given.
const DefaultRangeDays = 30

func NewFinanceService(ledger storage.Ledger, statsCache *cache.StatsCache) *FinanceService {
	return &FinanceService{
		ledger:           ledger,
		cache:            statsCache,
		defaultRangeDays: DefaultRangeDays,
	}
}

// WithDefaultRange overrides the trailing window used by the Recent* reads.
// Non-positive values keep the default.
func (s *FinanceService) WithDefaultRange(days int) *FinanceService {
	if days > 0 {
		s.defaultRangeDays = days
	}
	return s
}

// EnsureUser registers the user on first contact; repeated calls are no-ops.
func (s *FinanceService) EnsureUser(ctx context.Context, telegramID int64, username, firstName, lastName string) error {
	if err := s.ledger.EnsureUser(ctx, telegramID, username, firstName, lastName); err != nil {
		return fmt.Errorf("ensure user: %w", err)
	}
	return nil
}

// AddTransaction records a new entry and drops the user's cached statistics.
func (s *FinanceService) AddTransaction(ctx context.Context, p storage.AddTransactionParams) (int64, error) {
	id, err := s.ledger.AddTransaction(ctx, p)
	if err != nil {
		return 0, err
	}
	s.invalidate(ctx, p.UserID)
	return id, nil
}

// UpdateTransaction applies the given fields and drops the owner's cached
// statistics.
func (s *FinanceService) UpdateTransaction(ctx context.Context, id int64, p storage.UpdateTransactionParams) (core.Transaction, error) {
	t, err := s.ledger.UpdateTransaction(ctx, id, p)
	if err != nil {
		return core.Transaction{}, err
	}
	s.invalidate(ctx, t.UserID)
	return t, nil
}

// DeleteTransaction removes an entry and drops the owner's cached statistics.
func (s *FinanceService) DeleteTransaction(ctx context.Context, id int64) error {
	ownerID, err := s.ledger.DeleteTransaction(ctx, id)
	if err != nil {
		return err
	}
	s.invalidate(ctx, ownerID)
	return nil
}

func (s *FinanceService) GetTransaction(ctx context.Context, id int64) (core.Transaction, error) {
	return s.ledger.GetTransaction(ctx, id)
}

func (s *FinanceService) GetTransactions(ctx context.Context, userID int64, f storage.TransactionFilter) ([]core.Transaction, error) {
	return s.ledger.GetTransactions(ctx, userID, f)
}

func (s *FinanceService) GetTotalBalance(ctx context.Context, userID int64) (decimal.Decimal, error) {
	return s.ledger.GetTotalBalance(ctx, userID)
}

// GetStatistics returns income/expense totals for the user over [start, end].
// A nil bound leaves that side open. Results are cached per (user, range);
// concurrent misses for the same key run the aggregation once.
func (s *FinanceService) GetStatistics(ctx context.Context, userID int64, start, end *time.Time) (stats.Statistics, error) {
	if cached, ok := s.cache.GetStatistics(userID, start, end); ok {
		return cached, nil
	}

	// Flight keys carry the invalidation generation: a read issued after
	// a mutation can never join a flight whose ledger snapshot predates it.
	gen := s.cache.Generation(userID)
	key := fmt.Sprintf("stats:%d:%v", gen, cache.NewKey(userID, start, end))
	v, err, _ := s.group.Do(key, func() (any, error) {
		transactions, err := s.ledger.GetTransactions(ctx, userID, storage.TransactionFilter{Start: start, End: end})
		if err != nil {
			return nil, err
		}
		result := stats.Summarize(transactions)
		// An invalidation during the read means the snapshot may predate
		// a mutation; serve it to the callers already waiting, but do not
		// re-commit it to the cache.
		if s.cache.Generation(userID) == gen {
			s.cache.SetStatistics(userID, start, end, result)
		}
		return result, nil
	})
	if err != nil {
		return stats.Statistics{}, err
	}
	return v.(stats.Statistics), nil
}

// GetCategoryStatistics returns per-category totals for the user over
// [start, end], sorted by total descending.
func (s *FinanceService) GetCategoryStatistics(ctx context.Context, userID int64, start, end *time.Time) ([]stats.CategoryStatistics, error) {
	if cached, ok := s.cache.GetCategoryStatistics(userID, start, end); ok {
		return cached, nil
	}

	gen := s.cache.Generation(userID)
	key := fmt.Sprintf("categories:%d:%v", gen, cache.NewKey(userID, start, end))
	v, err, _ := s.group.Do(key, func() (any, error) {
		transactions, err := s.ledger.GetTransactions(ctx, userID, storage.TransactionFilter{Start: start, End: end})
		if err != nil {
			return nil, err
		}
		result := stats.SummarizeByCategory(transactions)
		if s.cache.Generation(userID) == gen {
			s.cache.SetCategoryStatistics(userID, start, end, result)
		}
		return result, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]stats.CategoryStatistics), nil
}

// GetRecentStatistics returns totals over the trailing default window,
// typically the last 30 days.
func (s *FinanceService) GetRecentStatistics(ctx context.Context, userID int64) (stats.Statistics, error) {
	start := time.Now().AddDate(0, 0, -s.defaultRangeDays)
	return s.GetStatistics(ctx, userID, &start, nil)
}

// GetRecentCategoryStatistics returns per-category totals over the trailing
// default window.
func (s *FinanceService) GetRecentCategoryStatistics(ctx context.Context, userID int64) ([]stats.CategoryStatistics, error) {
	start := time.Now().AddDate(0, 0, -s.defaultRangeDays)
	return s.GetCategoryStatistics(ctx, userID, &start, nil)
}

// GetDetailedBreakdown returns per-kind category shares derived from the
// same (cached) statistics the summary views use.
func (s *FinanceService) GetDetailedBreakdown(ctx context.Context, userID int64, start, end *time.Time) (stats.Breakdown, error) {
	statistics, err := s.GetStatistics(ctx, userID, start, end)
	if err != nil {
		return stats.Breakdown{}, err
	}
	return stats.DetailedBreakdown(statistics.Transactions), nil
}

// EnsureCategory creates a custom category owned by the user if it does not
// already exist.
func (s *FinanceService) EnsureCategory(ctx context.Context, name string, kind core.Kind, ownerID int64) (core.Category, error) {
	return s.ledger.EnsureCategory(ctx, name, kind, ownerID)
}

func (s *FinanceService) ListCategories(ctx context.Context, userID int64) ([]core.Category, error) {
	return s.ledger.ListCategories(ctx, userID)
}

// DeleteCategory removes a category; the boolean reports whether the delete
// happened (false means transactions still reference it).
func (s *FinanceService) DeleteCategory(ctx context.Context, name string, kind core.Kind) (bool, error) {
	return s.ledger.DeleteCategory(ctx, name, kind)
}

func (s *FinanceService) GetReportSettings(ctx context.Context, userID int64) (period.Config, error) {
	return s.ledger.GetReportSettings(ctx, userID)
}

func (s *FinanceService) SetReportSettings(ctx context.Context, userID int64, cfg period.Config) error {
	return s.ledger.SetReportSettings(ctx, userID, cfg)
}

func (s *FinanceService) invalidate(ctx context.Context, userID int64) {
	if n := s.cache.InvalidateUser(userID); n > 0 {
		slog.DebugContext(ctx, "Invalidated cached statistics", "user", userID, "entries", n)
	}
}
