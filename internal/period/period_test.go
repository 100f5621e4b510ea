package period

import (
	"errors"
	"testing"
	"time"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr error
	}{
		{name: "valid monthly", cfg: Config{Type: Monthly, StartDay: 1}},
		{name: "valid quarterly", cfg: Config{Type: Quarterly, StartDay: 28}},
		{name: "unknown type", cfg: Config{Type: "weekly", StartDay: 1}, wantErr: ErrInvalidPeriodType},
		{name: "start day zero", cfg: Config{Type: Monthly, StartDay: 0}, wantErr: ErrInvalidStartDay},
		{name: "start day 29", cfg: Config{Type: Monthly, StartDay: 29}, wantErr: ErrInvalidStartDay},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("Validate() = %v, want nil", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate() = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestCurrentPeriod_Monthly(t *testing.T) {
	tests := []struct {
		name      string
		startDay  int
		reference time.Time
		wantStart time.Time
		wantEnd   time.Time
	}{
		{
			name:      "reference on start day",
			startDay:  5,
			reference: date(2024, time.January, 5),
			wantStart: date(2024, time.January, 5),
			wantEnd:   date(2024, time.February, 4),
		},
		{
			name:      "reference after start day",
			startDay:  5,
			reference: date(2024, time.January, 20),
			wantStart: date(2024, time.January, 5),
			wantEnd:   date(2024, time.February, 4),
		},
		{
			name:      "reference before start day falls in previous cycle",
			startDay:  5,
			reference: date(2024, time.January, 3),
			wantStart: date(2023, time.December, 5),
			wantEnd:   date(2024, time.January, 4),
		},
		{
			name:      "start day 1 spans the calendar month",
			startDay:  1,
			reference: date(2024, time.February, 15),
			wantStart: date(2024, time.February, 1),
			wantEnd:   date(2024, time.February, 29),
		},
		{
			name:      "start day 28 in february",
			startDay:  28,
			reference: date(2023, time.February, 28),
			wantStart: date(2023, time.February, 28),
			wantEnd:   date(2023, time.March, 27),
		},
		{
			name:      "year boundary",
			startDay:  10,
			reference: date(2024, time.January, 2),
			wantStart: date(2023, time.December, 10),
			wantEnd:   date(2024, time.January, 9),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := CurrentPeriod(Config{Type: Monthly, StartDay: tt.startDay}, tt.reference)
			if err != nil {
				t.Fatalf("CurrentPeriod() error = %v", err)
			}
			if !p.Start.Equal(tt.wantStart) || !p.End.Equal(tt.wantEnd) {
				t.Errorf("CurrentPeriod() = %s..%s, want %s..%s",
					p.Start.Format("2006-01-02"), p.End.Format("2006-01-02"),
					tt.wantStart.Format("2006-01-02"), tt.wantEnd.Format("2006-01-02"))
			}
			if !p.Contains(tt.reference) {
				t.Error("reference date must fall inside its own period")
			}
		})
	}
}

func TestCurrentPeriod_Quarterly(t *testing.T) {
	tests := []struct {
		name      string
		startDay  int
		reference time.Time
		wantStart time.Time
		wantEnd   time.Time
	}{
		{
			name:      "first quarter",
			startDay:  1,
			reference: date(2024, time.February, 10),
			wantStart: date(2024, time.January, 1),
			wantEnd:   date(2024, time.February, 29),
		},
		{
			name:      "second quarter with offset start day",
			startDay:  15,
			reference: date(2024, time.May, 1),
			wantStart: date(2024, time.April, 15),
			wantEnd:   date(2024, time.June, 14),
		},
		{
			name:      "fourth quarter",
			startDay:  1,
			reference: date(2024, time.December, 31),
			wantStart: date(2024, time.October, 1),
			wantEnd:   date(2024, time.November, 30),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := CurrentPeriod(Config{Type: Quarterly, StartDay: tt.startDay}, tt.reference)
			if err != nil {
				t.Fatalf("CurrentPeriod() error = %v", err)
			}
			if !p.Start.Equal(tt.wantStart) || !p.End.Equal(tt.wantEnd) {
				t.Errorf("CurrentPeriod() = %s..%s, want %s..%s",
					p.Start.Format("2006-01-02"), p.End.Format("2006-01-02"),
					tt.wantStart.Format("2006-01-02"), tt.wantEnd.Format("2006-01-02"))
			}
		})
	}
}

func TestCurrentPeriod_InvalidConfig(t *testing.T) {
	_, err := CurrentPeriod(Config{Type: "weekly", StartDay: 1}, date(2024, time.January, 1))
	if !errors.Is(err, ErrInvalidPeriodType) {
		t.Errorf("CurrentPeriod() error = %v, want ErrInvalidPeriodType", err)
	}
}

func TestPreviousPeriod(t *testing.T) {
	t.Run("same length as current", func(t *testing.T) {
		cfg := Config{Type: Monthly, StartDay: 5}
		ref := date(2024, time.March, 10)

		current, err := CurrentPeriod(cfg, ref)
		if err != nil {
			t.Fatal(err)
		}
		previous, err := PreviousPeriod(cfg, ref)
		if err != nil {
			t.Fatal(err)
		}

		if previous.Days() != current.Days() {
			t.Errorf("previous length %d days, current %d days", previous.Days(), current.Days())
		}
		if !previous.End.AddDate(0, 0, 1).Equal(current.Start) {
			t.Errorf("previous period must end the day before the current one starts: %s vs %s",
				previous.End.Format("2006-01-02"), current.Start.Format("2006-01-02"))
		}
	})

	t.Run("invalid config rejected", func(t *testing.T) {
		_, err := PreviousPeriod(Config{Type: Monthly, StartDay: 40}, date(2024, time.March, 10))
		if !errors.Is(err, ErrInvalidStartDay) {
			t.Errorf("PreviousPeriod() error = %v, want ErrInvalidStartDay", err)
		}
	})
}

func TestPeriod_Days(t *testing.T) {
	p := Period{Start: date(2024, time.January, 1), End: date(2024, time.January, 31)}
	if got := p.Days(); got != 31 {
		t.Errorf("Days() = %d, want 31", got)
	}

	single := Period{Start: date(2024, time.January, 1), End: date(2024, time.January, 1)}
	if got := single.Days(); got != 1 {
		t.Errorf("single-day Days() = %d, want 1", got)
	}
}

func TestPeriod_Contains(t *testing.T) {
	p := Period{Start: date(2024, time.January, 5), End: date(2024, time.February, 4)}

	if !p.Contains(date(2024, time.January, 5)) {
		t.Error("start bound is inclusive")
	}
	if !p.Contains(date(2024, time.February, 4)) {
		t.Error("end bound is inclusive")
	}
	if !p.Contains(time.Date(2024, time.February, 4, 23, 59, 0, 0, time.UTC)) {
		t.Error("any time of the closing day is inside the period")
	}
	if p.Contains(date(2024, time.January, 4)) || p.Contains(date(2024, time.February, 5)) {
		t.Error("dates outside the window must be excluded")
	}
}
