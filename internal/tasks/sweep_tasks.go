package tasks

import (
	"context"
	"fmt"
	"time"

	"sportsreg_app/internal/gateway"
	"sportsreg_app/internal/models"
	"sportsreg_app/internal/repository"
)

// StalePaymentSweepDef closes out pending payments the customer abandoned.
// A payment stuck in pending past the cutoff is re-checked at the provider
// first: settled or still-pending charges are left for the webhook, anything
// the provider declined or never saw is marked failed so the order becomes
// payable again.
type StalePaymentSweepDef struct{}

// TaskID returns the unique identifier for this task
func (t *StalePaymentSweepDef) TaskID() string {
	return "stale_payment_sweep"
}

// HandleExecution reaps pending payments older than the cutoff.
// Cutoff defaults to 24 hours; override with a "cutoff_hours" argument.
func (t *StalePaymentSweepDef) HandleExecution(ctx context.Context, deps Deps, task models.ScheduledTask) (map[string]interface{}, error) {
	cutoffHours := 24
	if v, ok := task.Arguments["cutoff_hours"].(float64); ok && v > 0 {
		cutoffHours = int(v)
	}
	cutoff := time.Now().Add(-time.Duration(cutoffHours) * time.Hour)

	stale, err := deps.Store.Payments().ListStalePending(ctx, cutoff)
	if err != nil {
		return nil, fmt.Errorf("listing stale payments: %w", err)
	}

	swept, skipped := 0, 0
	for _, p := range stale {
		payment := p

		reason := "abandoned: no gateway confirmation before cutoff"
		if deps.Gateway != nil && payment.ExternalRef != "" {
			state, err := deps.Gateway.ChargeStatus(ctx, payment.ExternalRef)
			if err != nil {
				deps.Log.WithError(err).WithField("payment", payment.ID).Warn("status check failed, leaving payment for next sweep")
				skipped++
				continue
			}
			switch state {
			case gateway.ChargeStateSettled:
				// Webhook in flight or lost; reconciliation owns settlement.
				deps.Log.WithField("payment", payment.ID).Warn("stale payment settled at provider, leaving for webhook")
				skipped++
				continue
			case gateway.ChargeStatePending:
				skipped++
				continue
			case gateway.ChargeStateFailed:
				reason = "gateway reported charge terminal during sweep"
			}
		}

		err := deps.Store.Atomically(ctx, func(tx repository.Store) error {
			locked, err := tx.Payments().GetForUpdate(ctx, payment.ID)
			if err != nil {
				return err
			}
			// A webhook may have landed between the list and the lock.
			if locked.Status != models.PaymentStatusPending && locked.Status != models.PaymentStatusProcessing {
				return nil
			}
			locked.Status = models.PaymentStatusFailed
			locked.FailureReason = reason
			return tx.Payments().Update(ctx, locked)
		})
		if err != nil {
			deps.Log.WithError(err).WithField("payment", payment.ID).Warn("sweep failed for payment")
			continue
		}
		swept++
	}

	return map[string]interface{}{
		"status":       "success",
		"swept":        swept,
		"skipped":      skipped,
		"cutoff_hours": cutoffHours,
	}, nil
}

// StalePaymentSweep is the singleton instance of StalePaymentSweepDef
var StalePaymentSweep = &StalePaymentSweepDef{}
