// Package report builds and schedules recurring period reports.
//
// A report covers the reporting window that just closed: when a user's new
// period opens, the previous window's totals and category breakdown are
// assembled and handed to a publisher.
package report

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"finbot/internal/period"
	"finbot/internal/services"
	"finbot/internal/stats"
)

// PeriodReport is one user's summary of a closed reporting window,
// compared against the window before it.
type PeriodReport struct {
	UserID     int64
	PeriodType period.Type
	Period     period.Period
	Statistics stats.Statistics
	Categories []stats.CategoryStatistics
	Breakdown  stats.Breakdown

	// Previous holds the equal-length window immediately before Period;
	// BalanceDelta is this period's balance minus the previous one's.
	Previous      period.Period
	PreviousStats stats.Statistics
	BalanceDelta  decimal.Decimal

	GeneratedAt time.Time
}

// Publisher delivers a generated report. Implementations must be safe for
// concurrent use.
type Publisher interface {
	PublishPeriodReport(ctx context.Context, r PeriodReport) error
}

// Builder assembles period reports from the statistics service.
type Builder struct {
	service *services.FinanceService
}

func NewBuilder(service *services.FinanceService) *Builder {
	return &Builder{service: service}
}

// Build produces the report for the window that closed immediately before
// the reference date. The reference is expected to be the first day of the
// user's new period; the report then covers the cycle that just ended.
func (b *Builder) Build(ctx context.Context, userID int64, cfg period.Config, reference time.Time) (PeriodReport, error) {
	// The day before the reference still belongs to the cycle being
	// reported on.
	lastDay := reference.AddDate(0, 0, -1)
	closed, err := period.CurrentPeriod(cfg, lastDay)
	if err != nil {
		return PeriodReport{}, err
	}
	// Quarterly windows close on the start day of the quarter's third
	// month, so lastDay can bucket into a window that has not opened yet.
	// The cycle being reported on is then the window before it.
	if closed.Start.After(lastDay) {
		closed = closed.Previous()
	}
	previous := closed.Previous()

	statistics, err := b.rangeStatistics(ctx, userID, closed)
	if err != nil {
		return PeriodReport{}, fmt.Errorf("period statistics: %w", err)
	}
	categories, err := b.rangeCategories(ctx, userID, closed)
	if err != nil {
		return PeriodReport{}, fmt.Errorf("category statistics: %w", err)
	}
	previousStats, err := b.rangeStatistics(ctx, userID, previous)
	if err != nil {
		return PeriodReport{}, fmt.Errorf("previous period statistics: %w", err)
	}

	return PeriodReport{
		UserID:        userID,
		PeriodType:    cfg.Type,
		Period:        closed,
		Statistics:    statistics,
		Categories:    categories,
		Breakdown:     stats.DetailedBreakdown(statistics.Transactions),
		Previous:      previous,
		PreviousStats: previousStats,
		BalanceDelta:  statistics.Balance.Sub(previousStats.Balance),
		GeneratedAt:   time.Now(),
	}, nil
}

func (b *Builder) rangeStatistics(ctx context.Context, userID int64, p period.Period) (stats.Statistics, error) {
	start, end := rangeBounds(p)
	return b.service.GetStatistics(ctx, userID, &start, &end)
}

func (b *Builder) rangeCategories(ctx context.Context, userID int64, p period.Period) ([]stats.CategoryStatistics, error) {
	start, end := rangeBounds(p)
	return b.service.GetCategoryStatistics(ctx, userID, &start, &end)
}

// rangeBounds widens the inclusive date period to cover the closing day's
// full 24 hours.
func rangeBounds(p period.Period) (time.Time, time.Time) {
	return p.Start, p.End.AddDate(0, 0, 1).Add(-time.Nanosecond)
}
