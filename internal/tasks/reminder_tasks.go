package tasks

import (
	"context"
	"fmt"
	"time"

	"sportsreg_app/internal/models"
)

// InstallmentReminderTaskDef emails families about installments coming due.
type InstallmentReminderTaskDef struct{}

// TaskID returns the unique identifier for this task
func (t *InstallmentReminderTaskDef) TaskID() string {
	return "installment_reminders"
}

// HandleExecution finds pending installments due within the window and sends
// one reminder per installment. Window defaults to 3 days; override with a
// "window_days" argument.
func (t *InstallmentReminderTaskDef) HandleExecution(ctx context.Context, deps Deps, task models.ScheduledTask) (map[string]interface{}, error) {
	windowDays := 3
	if v, ok := task.Arguments["window_days"].(float64); ok && v > 0 {
		windowDays = int(v)
	}

	now := time.Now()
	due, err := deps.Store.Plans().InstallmentsDueBetween(ctx, now, now.AddDate(0, 0, windowDays))
	if err != nil {
		return nil, fmt.Errorf("listing due installments: %w", err)
	}

	sent := 0
	skipped := 0
	for _, inst := range due {
		if inst.Status != models.InstallmentStatusPending || inst.Plan.Status != models.PlanStatusActive {
			skipped++
			continue
		}
		order, err := deps.Store.Orders().Get(ctx, inst.Plan.OrderID)
		if err != nil {
			deps.Log.WithError(err).WithField("plan", inst.PlanID).Warn("reminder: order lookup failed")
			skipped++
			continue
		}
		user, err := deps.Store.Users().Get(ctx, order.UserID)
		if err != nil {
			deps.Log.WithError(err).WithField("order", order.ID).Warn("reminder: user lookup failed")
			skipped++
			continue
		}

		body := fmt.Sprintf(
			"Hi %s,\n\nInstallment %d of %d for order %s (%s) is due on %s. No action is needed if your card on file is current.\n",
			user.Name, inst.InstallmentNumber, inst.Plan.NumInstallments,
			order.UUID, inst.Amount.StringFixed(2), inst.DueDate.Format("January 2, 2006"))
		if err := deps.Notifier.Send(user.Email, "Upcoming installment payment", body); err != nil {
			deps.Log.WithError(err).WithField("user", user.ID).Warn("reminder send failed")
			skipped++
			continue
		}
		sent++
	}

	return map[string]interface{}{
		"status":  "success",
		"sent":    sent,
		"skipped": skipped,
		"window":  windowDays,
	}, nil
}

// InstallmentReminderTask is the singleton instance of InstallmentReminderTaskDef
var InstallmentReminderTask = &InstallmentReminderTaskDef{}
