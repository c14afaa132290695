package pricing

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"sportsreg_app/internal/apperrors"
	"sportsreg_app/internal/models"
)

func TestGenerateSchedule(t *testing.T) {
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	t.Run("remainder lands on the final installment", func(t *testing.T) {
		items, err := GenerateSchedule(dec("100"), 3, models.FrequencyMonthly, start)
		if err != nil {
			t.Fatalf("GenerateSchedule() error = %v", err)
		}

		wantAmounts := []string{"33.33", "33.33", "33.34"}
		wantDates := []time.Time{
			time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
			time.Date(2025, 1, 31, 0, 0, 0, 0, time.UTC),
			time.Date(2025, 3, 2, 0, 0, 0, 0, time.UTC),
		}
		for i, item := range items {
			if item.Number != i+1 {
				t.Errorf("item %d Number = %d; want %d", i, item.Number, i+1)
			}
			if !item.Amount.Equal(dec(wantAmounts[i])) {
				t.Errorf("item %d Amount = %s; want %s", i, item.Amount, wantAmounts[i])
			}
			if !item.DueDate.Equal(wantDates[i]) {
				t.Errorf("item %d DueDate = %s; want %s", i, item.DueDate, wantDates[i])
			}
		}
	})

	t.Run("amounts always sum to the total", func(t *testing.T) {
		totals := []string{"100", "99.99", "250.01", "777.77"}
		for _, total := range totals {
			for n := 2; n <= 5; n++ {
				items, err := GenerateSchedule(dec(total), n, models.FrequencyWeekly, start)
				if err != nil {
					t.Fatalf("GenerateSchedule(%s, %d) error = %v", total, n, err)
				}
				sum := decimal.Zero
				for _, item := range items {
					sum = sum.Add(item.Amount)
				}
				if !sum.Equal(dec(total)) {
					t.Errorf("GenerateSchedule(%s, %d): sum = %s", total, n, sum)
				}
			}
		}
	})

	t.Run("frequency sets the day spacing", func(t *testing.T) {
		tests := []struct {
			freq models.InstallmentFrequency
			days int
		}{
			{models.FrequencyWeekly, 7},
			{models.FrequencyBiweekly, 14},
			{models.FrequencyMonthly, 30},
		}
		for _, tt := range tests {
			items, err := GenerateSchedule(dec("100"), 2, tt.freq, start)
			if err != nil {
				t.Fatalf("GenerateSchedule(%s) error = %v", tt.freq, err)
			}
			gap := items[1].DueDate.Sub(items[0].DueDate)
			if gap != time.Duration(tt.days)*24*time.Hour {
				t.Errorf("%s spacing = %s; want %d days", tt.freq, gap, tt.days)
			}
		}
	})
}

func TestGenerateScheduleRejections(t *testing.T) {
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name  string
		total string
		n     int
		freq  models.InstallmentFrequency
	}{
		{"too few installments", "100", 1, models.FrequencyMonthly},
		{"too many installments", "1000", 13, models.FrequencyMonthly},
		{"unknown frequency", "100", 3, models.InstallmentFrequency("daily")},
		{"zero total", "0", 3, models.FrequencyMonthly},
		{"negative total", "-10", 3, models.FrequencyMonthly},
		{"per-installment below minimum", "15", 2, models.FrequencyMonthly},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := GenerateSchedule(dec(tt.total), tt.n, tt.freq, start)
			if err == nil {
				t.Fatal("GenerateSchedule() error = nil; want InvalidScheduleError")
			}
			var ise *apperrors.InvalidScheduleError
			if !errors.As(err, &ise) {
				t.Errorf("error = %v; want InvalidScheduleError", err)
			}
		})
	}
}
