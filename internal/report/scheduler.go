package report

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"finbot/internal/period"
	"finbot/internal/storage"
)

// DefaultSchedule runs the daily sweep shortly after midnight boundaries
// have settled.
const DefaultSchedule = "0 7 * * *"

// Scheduler runs a daily sweep over every user's report settings and
// publishes a report for each user whose new period opened today.
type Scheduler struct {
	cron      *cron.Cron
	ledger    storage.Ledger
	builder   *Builder
	publisher Publisher
	schedule  string

	// now is swappable in tests.
	now func() time.Time
}

func NewScheduler(ledger storage.Ledger, builder *Builder, publisher Publisher, schedule string) *Scheduler {
	if schedule == "" {
		schedule = DefaultSchedule
	}
	return &Scheduler{
		cron:      cron.New(),
		ledger:    ledger,
		builder:   builder,
		publisher: publisher,
		schedule:  schedule,
		now:       time.Now,
	}
}

// Start registers the sweep and launches the cron loop.
func (s *Scheduler) Start(ctx context.Context) error {
	_, err := s.cron.AddFunc(s.schedule, func() {
		if err := s.Sweep(ctx); err != nil {
			slog.ErrorContext(ctx, "Report sweep failed", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("register report sweep: %w", err)
	}

	s.cron.Start()
	slog.InfoContext(ctx, "Report scheduler started", "schedule", s.schedule)
	return nil
}

// Stop halts the cron loop and waits for a running sweep to finish, or
// gives up when ctx is done.
func (s *Scheduler) Stop(ctx context.Context) error {
	stopped := s.cron.Stop()
	select {
	case <-stopped.Done():
		slog.Info("Report scheduler stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Sweep walks all configured users once and publishes reports for those
// whose reporting period rolled over today. One user's failure does not
// stop the sweep.
func (s *Scheduler) Sweep(ctx context.Context) error {
	settings, err := s.ledger.ListReportSettings(ctx)
	if err != nil {
		return fmt.Errorf("list report settings: %w", err)
	}

	today := s.now()
	published := 0
	for userID, cfg := range settings {
		due, err := DueToday(cfg, today)
		if err != nil {
			slog.ErrorContext(ctx, "Invalid report settings",
				"user", userID, "error", err)
			continue
		}
		if !due {
			continue
		}

		r, err := s.builder.Build(ctx, userID, cfg, today)
		if err != nil {
			slog.ErrorContext(ctx, "Failed to build period report",
				"user", userID, "error", err)
			continue
		}

		if s.publisher == nil {
			slog.InfoContext(ctx, "Period report generated (no publisher configured)",
				"user", userID,
				"period_start", r.Period.Start.Format("2006-01-02"),
				"period_end", r.Period.End.Format("2006-01-02"),
				"balance", r.Statistics.Balance.StringFixed(2))
			continue
		}

		if err := s.publisher.PublishPeriodReport(ctx, r); err != nil {
			slog.ErrorContext(ctx, "Failed to publish period report",
				"user", userID, "error", err)
			continue
		}
		published++
	}

	slog.InfoContext(ctx, "Report sweep finished",
		"users", len(settings), "published", published)
	return nil
}

// DueToday reports whether the user's reporting period opens on the given
// day, which is the moment the previous period's report becomes available.
func DueToday(cfg period.Config, day time.Time) (bool, error) {
	current, err := period.CurrentPeriod(cfg, day)
	if err != nil {
		return false, err
	}
	y1, m1, d1 := current.Start.Date()
	y2, m2, d2 := day.Date()
	return y1 == y2 && m1 == m2 && d1 == d2, nil
}
