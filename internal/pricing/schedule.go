package pricing

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"sportsreg_app/internal/apperrors"
	"sportsreg_app/internal/models"
)

// Installment policy bounds. MinInstallmentAmount keeps plans from
// degenerating into micro-charges the gateway fees would eat.
const (
	MinInstallments = 2
	MaxInstallments = 12
)

var MinInstallmentAmount = decimal.NewFromInt(10)

// ScheduleItem is one entry of a generated installment schedule.
type ScheduleItem struct {
	Number  int
	DueDate time.Time
	Amount  decimal.Decimal
}

// GenerateSchedule splits total into n equal installments truncated to cent
// precision, with the rounding remainder on the final installment so the sum
// equals total exactly. Due dates advance by the frequency's calendar-day
// interval from start.
func GenerateSchedule(total decimal.Decimal, n int, freq models.InstallmentFrequency, start time.Time) ([]ScheduleItem, error) {
	if n < MinInstallments || n > MaxInstallments {
		return nil, &apperrors.InvalidScheduleError{
			Constraint: fmt.Sprintf("num_installments must be between %d and %d, got %d", MinInstallments, MaxInstallments, n),
		}
	}
	if freq.IntervalDays() == 0 {
		return nil, &apperrors.InvalidScheduleError{
			Constraint: fmt.Sprintf("unknown frequency %q", freq),
		}
	}
	if !total.IsPositive() {
		return nil, &apperrors.InvalidScheduleError{
			Constraint: "total must be positive",
		}
	}

	per := total.Div(decimal.NewFromInt(int64(n))).RoundDown(2)
	if per.LessThan(MinInstallmentAmount) {
		return nil, &apperrors.InvalidScheduleError{
			Constraint: fmt.Sprintf("per-installment amount %s is below the %s minimum", per.StringFixed(2), MinInstallmentAmount.StringFixed(2)),
		}
	}

	items := make([]ScheduleItem, n)
	interval := freq.IntervalDays()
	for k := 0; k < n; k++ {
		items[k] = ScheduleItem{
			Number:  k + 1,
			DueDate: start.AddDate(0, 0, k*interval),
			Amount:  per,
		}
	}
	// Last installment absorbs the remainder; never drops or gains a cent.
	items[n-1].Amount = total.Sub(per.Mul(decimal.NewFromInt(int64(n - 1))))
	return items, nil
}
