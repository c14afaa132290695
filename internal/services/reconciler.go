package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"sportsreg_app/internal/apperrors"
	"sportsreg_app/internal/gateway"
	"sportsreg_app/internal/metrics"
	"sportsreg_app/internal/models"
	"sportsreg_app/internal/notify"
	"sportsreg_app/internal/repository"
)

// Reconciler is the only writer of payment outcomes. It consumes normalized
// gateway events and advances orders, payments, plans and enrollments under
// three guards: a Redis SETNX fast path for hot duplicates, a per-aggregate
// lock so concurrent deliveries serialize, and a unique processed-event row
// inserted in the same transaction as the state change. Every handler is a
// no-op when the aggregate already sits in or past the target state, so
// duplicate and out-of-order deliveries land safely.
type Reconciler struct {
	store          repository.Store
	cache          *RedisCache
	notifier       notify.Notifier
	metrics        *metrics.Metrics
	log            *logrus.Logger
	now            func() time.Time
	reminderWindow time.Duration
}

// NewReconciler wires the event processor. reminderWindow bounds how far
// ahead of the due date an upcoming-invoice reminder is sent; zero falls back
// to the default.
func NewReconciler(store repository.Store, cache *RedisCache, notifier notify.Notifier, m *metrics.Metrics, log *logrus.Logger, reminderWindow time.Duration) *Reconciler {
	if reminderWindow <= 0 {
		reminderWindow = defaultReminderWindow
	}
	return &Reconciler{
		store: store, cache: cache, notifier: notifier, metrics: m, log: log,
		now: time.Now, reminderWindow: reminderWindow,
	}
}

const (
	dedupWindow           = 10 * time.Minute
	lockExpiry            = 30 * time.Second
	maxInvoiceFail        = 3
	defaultReminderWindow = 3 * 24 * time.Hour
)

// Process applies one gateway event. A nil return means the event is fully
// handled or safely ignorable and the provider should get a 2xx; errors mean
// the provider should redeliver.
func (r *Reconciler) Process(ctx context.Context, ev gateway.Event) error {
	log := r.log.WithFields(logrus.Fields{"event": ev.ID, "type": string(ev.Type)})

	if ev.Type == gateway.EventUnknown {
		log.Info("ignoring unrecognized gateway event")
		r.observe(ev.Type, "ignored")
		return nil
	}

	if r.cache != nil {
		seen, err := r.cache.SeenRecently(ctx, "gwevent:"+ev.ID, dedupWindow)
		if err != nil {
			// Redis down degrades to the database barrier.
			log.WithError(err).Warn("dedup cache unavailable")
		} else if seen {
			r.observe(ev.Type, "duplicate")
			return nil
		}

		if name := r.lockName(ev); name != "" {
			mu := r.cache.NewMutex(name, lockExpiry)
			if err := mu.LockContext(ctx); err != nil {
				return &apperrors.GatewayError{Op: "lock", Retryable: true, Err: err}
			}
			defer mu.UnlockContext(ctx)
		}
	}

	err := r.store.Atomically(ctx, func(tx repository.Store) error {
		fresh, err := tx.Events().MarkProcessed(ctx, ev.ID, r.now())
		if err != nil {
			return err
		}
		if !fresh {
			r.observe(ev.Type, "duplicate")
			return nil
		}

		switch ev.Type {
		case gateway.EventChargeSucceeded:
			return r.applyChargeSucceeded(ctx, tx, ev, log)
		case gateway.EventChargeFailed:
			return r.applyChargeFailed(ctx, tx, ev, log)
		case gateway.EventInvoicePaid:
			return r.applyInvoicePaid(ctx, tx, ev, log)
		case gateway.EventInvoiceFailed:
			return r.applyInvoiceFailed(ctx, tx, ev, log)
		case gateway.EventSubscriptionCancelled:
			return r.applyPlanTerminal(ctx, tx, ev, models.PlanStatusCancelled, log)
		case gateway.EventSubscriptionUnpaid:
			return r.applyPlanTerminal(ctx, tx, ev, models.PlanStatusDefaulted, log)
		case gateway.EventChargeRefunded:
			return r.applyChargeRefunded(ctx, tx, ev, log)
		case gateway.EventInvoiceUpcoming:
			return r.applyInvoiceUpcoming(ctx, tx, ev, log)
		}
		log.Info("no handler for event type")
		return nil
	})
	if err != nil {
		var nf *apperrors.NotFoundError
		if errors.As(err, &nf) {
			// Events for aggregates we do not know (e.g. created in another
			// environment sharing the gateway account) are acked, not retried.
			log.WithError(err).Warn("event references unknown aggregate")
			r.observe(ev.Type, "unmatched")
			return nil
		}
		r.observe(ev.Type, "error")
		return err
	}
	r.observe(ev.Type, "applied")
	return nil
}

func (r *Reconciler) applyChargeSucceeded(ctx context.Context, tx repository.Store, ev gateway.Event, log *logrus.Entry) error {
	order, err := tx.Orders().GetByUUIDForUpdate(ctx, ev.OrderRef)
	if err != nil {
		return err
	}
	switch order.Status {
	case models.OrderStatusPaid:
		return nil
	case models.OrderStatusRefunded, models.OrderStatusCancelled:
		log.WithField("order", order.UUID).Warn("charge succeeded for terminal order, not reapplying")
		return nil
	}

	now := r.now()
	payment, err := tx.Payments().GetByExternalRefForUpdate(ctx, ev.ChargeRef)
	if err != nil {
		return err
	}
	if payment.Status != models.PaymentStatusSucceeded {
		payment.Status = models.PaymentStatusSucceeded
		payment.PaidAt = &now
		if err := tx.Payments().Update(ctx, payment); err != nil {
			return err
		}
	}

	order.Status = models.OrderStatusPaid
	order.PaidAt = &now
	if order.ExternalChargeRef == nil {
		order.ExternalChargeRef = &ev.ChargeRef
	}
	if err := tx.Orders().Update(ctx, order); err != nil {
		return err
	}

	if err := r.activateEnrollments(ctx, tx, order, now); err != nil {
		return err
	}

	r.notifyUser(ctx, order.UserID,
		"Registration confirmed",
		fmt.Sprintf("Your payment of %s for order %s was received. See you on the field!", payment.Amount.StringFixed(2), order.UUID))
	log.WithField("order", order.UUID).Info("order paid")
	return nil
}

func (r *Reconciler) applyChargeFailed(ctx context.Context, tx repository.Store, ev gateway.Event, log *logrus.Entry) error {
	payment, err := tx.Payments().GetByExternalRefForUpdate(ctx, ev.ChargeRef)
	if err != nil {
		return err
	}
	// A failure notification arriving after success is out-of-order noise.
	if payment.Status == models.PaymentStatusSucceeded ||
		payment.Status == models.PaymentStatusRefunded ||
		payment.Status == models.PaymentStatusPartiallyRefunded {
		log.WithField("payment", payment.ID).Info("ignoring failure after success")
		return nil
	}
	payment.Status = models.PaymentStatusFailed
	payment.FailureReason = ev.FailureReason
	if err := tx.Payments().Update(ctx, payment); err != nil {
		return err
	}
	log.WithField("payment", payment.ID).Info("payment failed")
	return nil
}

func (r *Reconciler) applyInvoicePaid(ctx context.Context, tx repository.Store, ev gateway.Event, log *logrus.Entry) error {
	plan, err := r.lockPlan(ctx, tx, ev)
	if err != nil {
		return err
	}
	if plan.Status == models.PlanStatusCancelled {
		log.WithField("plan", plan.ID).Warn("invoice paid on cancelled plan")
		return nil
	}

	var inst *models.InstallmentPayment
	if ev.Cycle > 0 {
		inst, err = tx.Plans().GetInstallment(ctx, plan.ID, ev.Cycle)
	} else {
		inst, err = tx.Plans().NextPendingInstallment(ctx, plan.ID)
	}
	if err != nil {
		return err
	}
	if inst.Status == models.InstallmentStatusPaid {
		return nil
	}

	now := r.now()
	inst.Status = models.InstallmentStatusPaid
	inst.PaidAt = &now
	if err := tx.Plans().UpdateInstallment(ctx, inst); err != nil {
		return err
	}

	payment := &models.Payment{
		OrderID:     plan.OrderID,
		Type:        models.PaymentTypeInstallment,
		Status:      models.PaymentStatusSucceeded,
		Amount:      inst.Amount,
		ExternalRef: ev.ChargeRef,
		PaidAt:      &now,
	}
	if err := tx.Payments().Create(ctx, payment); err != nil {
		return err
	}

	order, err := tx.Orders().Get(ctx, plan.OrderID)
	if err != nil {
		return err
	}

	remaining, err := tx.Plans().CountPendingInstallments(ctx, plan.ID)
	if err != nil {
		return err
	}
	if remaining == 0 {
		plan.Status = models.PlanStatusCompleted
		if err := tx.Plans().Update(ctx, plan); err != nil {
			return err
		}
		order.Status = models.OrderStatusPaid
		order.PaidAt = &now
	} else if order.Status == models.OrderStatusPendingPayment || order.Status == models.OrderStatusDraft {
		order.Status = models.OrderStatusPartiallyPaid
	}
	if err := tx.Orders().Update(ctx, order); err != nil {
		return err
	}

	// The first settled installment commits the family: seats are taken now,
	// not when the last installment clears.
	if err := r.activateEnrollments(ctx, tx, order, now); err != nil {
		return err
	}

	log.WithFields(logrus.Fields{
		"plan": plan.ID, "installment": inst.InstallmentNumber, "remaining": remaining,
	}).Info("installment paid")
	return nil
}

func (r *Reconciler) applyInvoiceFailed(ctx context.Context, tx repository.Store, ev gateway.Event, log *logrus.Entry) error {
	plan, err := r.lockPlan(ctx, tx, ev)
	if err != nil {
		return err
	}
	if plan.Status.Terminal() {
		return nil
	}

	var inst *models.InstallmentPayment
	if ev.Cycle > 0 {
		inst, err = tx.Plans().GetInstallment(ctx, plan.ID, ev.Cycle)
	} else {
		inst, err = tx.Plans().NextPendingInstallment(ctx, plan.ID)
	}
	if err != nil {
		return err
	}
	if inst.Status == models.InstallmentStatusPaid {
		return nil
	}

	inst.AttemptCount++
	if inst.AttemptCount >= maxInvoiceFail {
		inst.Status = models.InstallmentStatusFailed
	}
	if err := tx.Plans().UpdateInstallment(ctx, inst); err != nil {
		return err
	}

	if inst.AttemptCount >= maxInvoiceFail {
		plan.Status = models.PlanStatusDefaulted
		if err := tx.Plans().Update(ctx, plan); err != nil {
			return err
		}
		if err := tx.Plans().SkipPendingInstallments(ctx, plan.ID); err != nil {
			return err
		}
		if r.metrics != nil {
			r.metrics.PlansDefaulted.Inc()
		}
		order, err := tx.Orders().Get(ctx, plan.OrderID)
		if err != nil {
			return err
		}
		r.notifyUser(ctx, order.UserID,
			"Payment plan suspended",
			fmt.Sprintf("Installment %d for order %s failed %d times and the plan is paused. Please contact us to settle the balance.", inst.InstallmentNumber, order.UUID, inst.AttemptCount))
		log.WithField("plan", plan.ID).Warn("plan defaulted")
		return nil
	}

	log.WithFields(logrus.Fields{
		"plan": plan.ID, "installment": inst.InstallmentNumber, "attempts": inst.AttemptCount,
	}).Info("installment charge failed")
	return nil
}

func (r *Reconciler) applyPlanTerminal(ctx context.Context, tx repository.Store, ev gateway.Event, target models.InstallmentPlanStatus, log *logrus.Entry) error {
	plan, err := r.lockPlan(ctx, tx, ev)
	if err != nil {
		return err
	}
	if plan.Status.Terminal() {
		return nil
	}
	if err := tx.Plans().SkipPendingInstallments(ctx, plan.ID); err != nil {
		return err
	}
	plan.Status = target
	if err := tx.Plans().Update(ctx, plan); err != nil {
		return err
	}
	if target == models.PlanStatusDefaulted && r.metrics != nil {
		r.metrics.PlansDefaulted.Inc()
	}
	log.WithFields(logrus.Fields{"plan": plan.ID, "status": string(target)}).Info("plan closed by gateway")
	return nil
}

func (r *Reconciler) applyChargeRefunded(ctx context.Context, tx repository.Store, ev gateway.Event, log *logrus.Entry) error {
	payment, err := tx.Payments().GetByExternalRefForUpdate(ctx, ev.ChargeRef)
	if err != nil {
		return err
	}

	amount := ev.RefundAmount
	if amount.IsZero() {
		amount = payment.Amount
	}
	payment.RefundAmount = payment.RefundAmount.Add(amount)
	if payment.RefundAmount.GreaterThanOrEqual(payment.Amount) {
		payment.RefundAmount = payment.Amount
		payment.Status = models.PaymentStatusRefunded
	} else {
		payment.Status = models.PaymentStatusPartiallyRefunded
	}
	if err := tx.Payments().Update(ctx, payment); err != nil {
		return err
	}

	if payment.Status != models.PaymentStatusRefunded {
		log.WithField("payment", payment.ID).Info("partial refund recorded")
		return nil
	}

	order, err := tx.Orders().Get(ctx, payment.OrderID)
	if err != nil {
		return err
	}
	order.Status = models.OrderStatusRefunded
	if err := tx.Orders().Update(ctx, order); err != nil {
		return err
	}

	now := r.now()
	enrollments, err := tx.Enrollments().ListByOrder(ctx, order.ID)
	if err != nil {
		return err
	}
	for i := range enrollments {
		e := enrollments[i]
		if e.Status == models.EnrollmentStatusCancelled || e.Status == models.EnrollmentStatusCompleted {
			continue
		}
		wasActive := e.Status == models.EnrollmentStatusActive
		e.Status = models.EnrollmentStatusCancelled
		e.CancelledAt = &now
		if err := tx.Enrollments().Update(ctx, &e); err != nil {
			return err
		}
		if wasActive {
			if err := tx.Catalog().ReleaseSeats(ctx, e.ClassID, 1); err != nil {
				return err
			}
		}
	}

	r.notifyUser(ctx, order.UserID,
		"Refund processed",
		fmt.Sprintf("Your refund of %s for order %s has been processed and the related enrollments were cancelled.", payment.RefundAmount.StringFixed(2), order.UUID))
	log.WithField("order", order.UUID).Info("order refunded")
	return nil
}

func (r *Reconciler) applyInvoiceUpcoming(ctx context.Context, tx repository.Store, ev gateway.Event, log *logrus.Entry) error {
	plan, err := r.lockPlan(ctx, tx, ev)
	if err != nil {
		return err
	}
	if plan.Status != models.PlanStatusActive {
		return nil
	}
	inst, err := tx.Plans().NextPendingInstallment(ctx, plan.ID)
	if err != nil {
		return err
	}
	// Providers may announce invoices well ahead of schedule; only remind
	// when the due date is inside the window.
	if inst.DueDate.After(r.now().Add(r.reminderWindow)) {
		log.WithFields(logrus.Fields{"plan": plan.ID, "due": inst.DueDate}).Info("installment not due soon, skipping reminder")
		return nil
	}
	order, err := tx.Orders().Get(ctx, plan.OrderID)
	if err != nil {
		return err
	}
	r.notifyUser(ctx, order.UserID,
		"Upcoming installment",
		fmt.Sprintf("Installment %d of %d (%s) for order %s is due on %s.",
			inst.InstallmentNumber, plan.NumInstallments, inst.Amount.StringFixed(2),
			order.UUID, inst.DueDate.Format("2006-01-02")))
	return nil
}

// activateEnrollments flips pending enrollments active, reserving a seat per
// line. A class that filled up between checkout and settlement waitlists the
// enrollment instead of failing the payment.
func (r *Reconciler) activateEnrollments(ctx context.Context, tx repository.Store, order *models.Order, now time.Time) error {
	enrollments, err := tx.Enrollments().ListByOrder(ctx, order.ID)
	if err != nil {
		return err
	}
	for i := range enrollments {
		e := enrollments[i]
		if e.Status != models.EnrollmentStatusPending {
			continue
		}
		if err := tx.Catalog().ReserveSeat(ctx, e.ClassID); err != nil {
			var full *apperrors.CapacityExceededError
			if !errors.As(err, &full) {
				return err
			}
			e.Status = models.EnrollmentStatusWaitlisted
			r.log.WithFields(logrus.Fields{"enrollment": e.ID, "class": e.ClassID}).Warn("class full at activation, waitlisting")
		} else {
			e.Status = models.EnrollmentStatusActive
			e.EnrolledAt = &now
		}
		if err := tx.Enrollments().Update(ctx, &e); err != nil {
			return err
		}
	}
	return nil
}

// lockPlan resolves the plan an event targets, preferring the metadata plan
// ref and falling back to the provider schedule ref, then row-locks it.
func (r *Reconciler) lockPlan(ctx context.Context, tx repository.Store, ev gateway.Event) (*models.InstallmentPlan, error) {
	if ev.PlanRef != "" {
		id, err := strconv.ParseUint(ev.PlanRef, 10, 64)
		if err == nil {
			return tx.Plans().GetForUpdate(ctx, uint(id))
		}
	}
	if ev.ScheduleRef != "" {
		plan, err := tx.Plans().GetByScheduleRef(ctx, ev.ScheduleRef)
		if err != nil {
			return nil, err
		}
		return tx.Plans().GetForUpdate(ctx, plan.ID)
	}
	return nil, &apperrors.NotFoundError{Resource: "installment plan", ID: ev.PlanRef}
}

func (r *Reconciler) lockName(ev gateway.Event) string {
	switch {
	case ev.OrderRef != "":
		return "lock:order:" + ev.OrderRef
	case ev.PlanRef != "":
		return "lock:plan:" + ev.PlanRef
	case ev.ScheduleRef != "":
		return "lock:schedule:" + ev.ScheduleRef
	}
	return ""
}

func (r *Reconciler) notifyUser(ctx context.Context, userID uint, subject, body string) {
	if r.notifier == nil {
		return
	}
	user, err := r.store.Users().Get(ctx, userID)
	if err != nil {
		r.log.WithError(err).WithField("user", userID).Warn("cannot resolve user for notification")
		return
	}
	if err := r.notifier.Send(user.Email, subject, body); err != nil {
		r.log.WithError(err).WithField("user", userID).Warn("notification failed")
	}
}

func (r *Reconciler) observe(t gateway.EventType, result string) {
	if r.metrics != nil {
		label := string(t)
		if label == "" {
			label = "unknown"
		}
		r.metrics.WebhookEvents.WithLabelValues(label, result).Inc()
	}
}
