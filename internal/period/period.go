// Package period derives calendar-aligned reporting windows.
//
// A user configures a period type (monthly or quarterly) and a start day of
// the month. Start days are limited to 1-28 so every month has the boundary
// day and no month-length special cases leak into the arithmetic.
package period

import (
	"errors"
	"fmt"
	"time"
)

const (
	Monthly   Type = "monthly"
	Quarterly Type = "quarterly"
)

const (
	MinStartDay = 1
	MaxStartDay = 28
)

type (
	// Type is the reporting period kind.
	Type string

	// Config is the per-user reporting configuration.
	Config struct {
		Type     Type
		StartDay int
	}

	// Period is one reporting window; both bounds are inclusive dates.
	Period struct {
		Start time.Time
		End   time.Time
	}
)

var (
	ErrInvalidStartDay   = errors.New("start day must be between 1 and 28")
	ErrInvalidPeriodType = errors.New("invalid period type")
)

// Valid reports whether t is a supported period type.
func (t Type) Valid() bool {
	return t == Monthly || t == Quarterly
}

func (c Config) Validate() error {
	if !c.Type.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidPeriodType, c.Type)
	}
	if c.StartDay < MinStartDay || c.StartDay > MaxStartDay {
		return fmt.Errorf("%w: got %d", ErrInvalidStartDay, c.StartDay)
	}
	return nil
}

// Days returns the inclusive length of the period in days.
func (p Period) Days() int {
	return int(p.End.Sub(p.Start).Hours()/24) + 1
}

// Contains reports whether the date falls inside the period.
func (p Period) Contains(t time.Time) bool {
	d := midnight(t)
	return !d.Before(p.Start) && !d.After(p.End)
}

// Previous returns the window of equal length ending the day before p
// starts. Equal-sized windows keep period-over-period comparisons fair
// even where calendar months differ.
func (p Period) Previous() Period {
	end := p.Start.AddDate(0, 0, -1)
	return Period{Start: end.AddDate(0, 0, -(p.Days() - 1)), End: end}
}

// CurrentPeriod computes the reporting window the reference date falls in.
//
// Monthly: the window runs from the start day to the day before the next
// month's start day. A reference date before this month's start day is
// still inside the previous cycle, so the start steps back one month.
//
// Quarterly: the reference month picks the quarter (Jan-Mar, Apr-Jun,
// Jul-Sep, Oct-Dec); the window opens on the start day of the quarter's
// first month and closes the day before the start day of its third month.
func CurrentPeriod(cfg Config, reference time.Time) (Period, error) {
	if err := cfg.Validate(); err != nil {
		return Period{}, err
	}

	ref := midnight(reference)
	switch cfg.Type {
	case Monthly:
		start := time.Date(ref.Year(), ref.Month(), cfg.StartDay, 0, 0, 0, 0, ref.Location())
		if ref.Day() < cfg.StartDay {
			// Still inside the previous cycle: step back one full period.
			start = start.AddDate(0, -1, 0)
		}
		end := start.AddDate(0, 1, 0).AddDate(0, 0, -1)
		return Period{Start: start, End: end}, nil

	case Quarterly:
		firstMonth := time.Month((int(ref.Month())-1)/3*3 + 1)
		start := time.Date(ref.Year(), firstMonth, cfg.StartDay, 0, 0, 0, 0, ref.Location())
		end := time.Date(ref.Year(), firstMonth+2, cfg.StartDay, 0, 0, 0, 0, ref.Location()).AddDate(0, 0, -1)
		return Period{Start: start, End: end}, nil

	default:
		return Period{}, fmt.Errorf("%w: %q", ErrInvalidPeriodType, cfg.Type)
	}
}

// PreviousPeriod shifts the current period back by its own length.
func PreviousPeriod(cfg Config, reference time.Time) (Period, error) {
	current, err := CurrentPeriod(cfg, reference)
	if err != nil {
		return Period{}, err
	}
	return current.Previous(), nil
}

func midnight(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
