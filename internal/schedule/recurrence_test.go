package schedule

import (
	"testing"
	"time"

	"github.com/dvloznov/savings-autopilot/internal/domain"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestNextExecutionDate(t *testing.T) {
	tests := []struct {
		name string
		base time.Time
		freq domain.Frequency
		want time.Time
	}{
		{"daily", date(2024, 1, 1), domain.FrequencyDaily, date(2024, 1, 2)},
		{"weekly", date(2024, 1, 1), domain.FrequencyWeekly, date(2024, 1, 8)},
		{"biweekly", date(2024, 1, 1), domain.FrequencyBiWeekly, date(2024, 1, 15)},
		{"monthly simple", date(2024, 1, 1), domain.FrequencyMonthly, date(2024, 2, 1)},
		{"monthly mid-month", date(2024, 3, 15), domain.FrequencyMonthly, date(2024, 4, 15)},
		{"monthly year rollover", date(2024, 12, 10), domain.FrequencyMonthly, date(2025, 1, 10)},
		{"monthly jan 31 clamps to leap feb 29", date(2024, 1, 31), domain.FrequencyMonthly, date(2024, 2, 29)},
		{"monthly jan 31 clamps to feb 28", date(2023, 1, 31), domain.FrequencyMonthly, date(2023, 2, 28)},
		{"monthly may 31 clamps to jun 30", date(2024, 5, 31), domain.FrequencyMonthly, date(2024, 6, 30)},
		{"quarterly", date(2024, 1, 15), domain.FrequencyQuarterly, date(2024, 4, 15)},
		{"quarterly year rollover", date(2024, 11, 5), domain.FrequencyQuarterly, date(2025, 2, 5)},
		{"quarterly nov 30 clamps to leap feb 29", date(2023, 11, 30), domain.FrequencyQuarterly, date(2024, 2, 29)},
		{"quarterly nov 30 clamps to feb 28", date(2022, 11, 30), domain.FrequencyQuarterly, date(2023, 2, 28)},
		{"unknown frequency falls back to 30 days", date(2024, 1, 1), domain.Frequency("YEARLY"), date(2024, 1, 31)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NextExecutionDate(tt.base, tt.freq)
			if !got.Equal(tt.want) {
				t.Errorf("NextExecutionDate(%v, %s) = %v, want %v", tt.base, tt.freq, got, tt.want)
			}
		})
	}
}

func TestNextExecutionDateStrictlyIncreases(t *testing.T) {
	freqs := []domain.Frequency{
		domain.FrequencyDaily,
		domain.FrequencyWeekly,
		domain.FrequencyBiWeekly,
		domain.FrequencyMonthly,
		domain.FrequencyQuarterly,
	}

	// Walk two years of dates, including month ends and leap February.
	base := date(2023, 1, 1)
	for day := 0; day < 730; day++ {
		cur := base.AddDate(0, 0, day)
		for _, f := range freqs {
			next := NextExecutionDate(cur, f)
			if !next.After(cur) {
				t.Fatalf("NextExecutionDate(%v, %s) = %v, not after base", cur, f, next)
			}
		}
	}
}

func TestBaseDate(t *testing.T) {
	start := date(2024, 1, 1)
	rule := &domain.TransferRule{StartDate: start}

	if got := BaseDate(rule); !got.Equal(start) {
		t.Errorf("BaseDate without last execution = %v, want start date %v", got, start)
	}

	last := date(2024, 3, 1)
	rule.LastExecutionDate = &last
	if got := BaseDate(rule); !got.Equal(last) {
		t.Errorf("BaseDate with last execution = %v, want %v", got, last)
	}
}
