package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"sportsreg_app/internal/apperrors"
	"sportsreg_app/internal/gateway"
	"sportsreg_app/internal/metrics"
	"sportsreg_app/internal/models"
	"sportsreg_app/internal/pricing"
	"sportsreg_app/internal/repository"
)

// PaymentOrchestrator initiates charges, installment plans, cancellations and
// refunds against the payment gateway. It never marks anything paid: every
// create call ends in a pending local row plus an outbound gateway request,
// and the Reconciler advances state when the provider confirms via webhook.
type PaymentOrchestrator struct {
	store    repository.Store
	gw       gateway.Gateway
	currency string
	metrics  *metrics.Metrics
	log      *logrus.Logger
	now      func() time.Time
}

func NewPaymentOrchestrator(store repository.Store, gw gateway.Gateway, currency string, m *metrics.Metrics, log *logrus.Logger) *PaymentOrchestrator {
	return &PaymentOrchestrator{store: store, gw: gw, currency: currency, metrics: m, log: log, now: time.Now}
}

// PaymentIntent is what the client needs to complete a one-time charge.
type PaymentIntent struct {
	PaymentID   uint            `json:"payment_id"`
	OrderUUID   string          `json:"order_uuid"`
	Amount      decimal.Decimal `json:"amount"`
	Currency    string          `json:"currency"`
	ChargeRef   string          `json:"charge_ref"`
	RedirectURL string          `json:"redirect_url,omitempty"`
	Token       string          `json:"token,omitempty"`
}

// PayOneTime opens a one-time charge for the full order total. The pending
// payment row is committed before the gateway call, so a timeout or crash
// mid-call leaves a pending row the stale-payment sweep can reap instead of
// a charge we have no record of.
func (o *PaymentOrchestrator) PayOneTime(ctx context.Context, orderUUID string, userID uint) (*PaymentIntent, error) {
	var (
		order   *models.Order
		payment *models.Payment
	)
	err := o.store.Atomically(ctx, func(tx repository.Store) error {
		var err error
		order, err = tx.Orders().GetByUUIDForUpdate(ctx, orderUUID)
		if err != nil {
			return err
		}
		if order.UserID != userID {
			return &apperrors.ForbiddenError{Reason: "you can only pay your own orders"}
		}
		if order.Status != models.OrderStatusDraft && order.Status != models.OrderStatusPendingPayment {
			return &apperrors.ConflictError{
				Reason: fmt.Sprintf("order in status %q is not payable", order.Status),
			}
		}
		if !order.Total.IsPositive() {
			return &apperrors.ValidationError{Field: "order", Reason: "order total must be positive"}
		}

		payment = &models.Payment{
			OrderID:  order.ID,
			Type:     models.PaymentTypeOneTime,
			Status:   models.PaymentStatusPending,
			Amount:   order.Total,
			Currency: o.currency,
		}
		if err := tx.Payments().Create(ctx, payment); err != nil {
			return err
		}

		order.Status = models.OrderStatusPendingPayment
		return tx.Orders().Update(ctx, order)
	})
	if err != nil {
		return nil, err
	}

	user, err := o.store.Users().Get(ctx, userID)
	if err != nil {
		return nil, err
	}

	start := o.now()
	res, err := o.gw.CreateCharge(ctx, gateway.ChargeRequest{
		OrderRef:      order.UUID,
		Amount:        order.Total,
		Currency:      payment.Currency,
		CustomerName:  user.Name,
		CustomerEmail: user.Email,
		Description:   fmt.Sprintf("Registration order %s", order.UUID),
	})
	o.observeGateway("create_charge", start)
	if err != nil {
		o.failPaymentIfFinal(ctx, payment, err)
		return nil, err
	}

	payment.Status = models.PaymentStatusProcessing
	payment.ExternalRef = res.ChargeRef
	order.ExternalChargeRef = &res.ChargeRef
	if err := o.store.Atomically(ctx, func(tx repository.Store) error {
		if err := tx.Payments().Update(ctx, payment); err != nil {
			return err
		}
		return tx.Orders().Update(ctx, order)
	}); err != nil {
		return nil, err
	}

	if o.metrics != nil {
		o.metrics.PaymentsInitiated.WithLabelValues(string(models.PaymentTypeOneTime)).Inc()
	}
	o.log.WithFields(logrus.Fields{
		"order": order.UUID, "payment": payment.ID, "charge_ref": res.ChargeRef,
	}).Info("one-time charge initiated")

	return &PaymentIntent{
		PaymentID:   payment.ID,
		OrderUUID:   order.UUID,
		Amount:      payment.Amount,
		Currency:    payment.Currency,
		ChargeRef:   res.ChargeRef,
		RedirectURL: res.RedirectURL,
		Token:       res.Token,
	}, nil
}

// CreateInstallmentPlan splits the order total into an equal schedule and
// registers a matching recurring charge schedule at the gateway. Only draft
// or pending orders without an existing active plan qualify.
func (o *PaymentOrchestrator) CreateInstallmentPlan(ctx context.Context, orderUUID string, userID uint, numInstallments int, freq models.InstallmentFrequency, startDate time.Time) (*models.InstallmentPlan, error) {
	var (
		order *models.Order
		plan  *models.InstallmentPlan
	)
	err := o.store.Atomically(ctx, func(tx repository.Store) error {
		var err error
		order, err = tx.Orders().GetByUUIDForUpdate(ctx, orderUUID)
		if err != nil {
			return err
		}
		if order.UserID != userID {
			return &apperrors.ForbiddenError{Reason: "you can only pay your own orders"}
		}
		if order.Status != models.OrderStatusDraft && order.Status != models.OrderStatusPendingPayment {
			return &apperrors.ConflictError{
				Reason: fmt.Sprintf("order in status %q is not payable", order.Status),
			}
		}
		hasPlan, err := tx.Plans().HasActiveForOrder(ctx, order.ID)
		if err != nil {
			return err
		}
		if hasPlan {
			return &apperrors.ConflictError{Reason: "order already has an active installment plan"}
		}

		schedule, err := pricing.GenerateSchedule(order.Total, numInstallments, freq, startDate)
		if err != nil {
			return err
		}

		plan = &models.InstallmentPlan{
			OrderID:           order.ID,
			Status:            models.PlanStatusActive,
			TotalAmount:       order.Total,
			NumInstallments:   numInstallments,
			InstallmentAmount: schedule[0].Amount,
			Frequency:         freq,
			StartDate:         startDate,
			Installments:      make([]models.InstallmentPayment, len(schedule)),
		}
		for i, item := range schedule {
			plan.Installments[i] = models.InstallmentPayment{
				InstallmentNumber: item.Number,
				Status:            models.InstallmentStatusPending,
				DueDate:           item.DueDate,
				Amount:            item.Amount,
			}
		}
		if err := tx.Plans().Create(ctx, plan); err != nil {
			return err
		}

		order.Status = models.OrderStatusPendingPayment
		return tx.Orders().Update(ctx, order)
	})
	if err != nil {
		return nil, err
	}

	user, err := o.store.Users().Get(ctx, userID)
	if err != nil {
		return nil, err
	}

	start := o.now()
	res, err := o.gw.CreateRecurringSchedule(ctx, gateway.ScheduleRequest{
		PlanRef:        strconv.FormatUint(uint64(plan.ID), 10),
		PerCycleAmount: plan.InstallmentAmount,
		Currency:       o.currency,
		IntervalDays:   freq.IntervalDays(),
		Cycles:         numInstallments,
		StartDate:      startDate,
		CustomerName:   user.Name,
		CustomerEmail:  user.Email,
	})
	o.observeGateway("create_schedule", start)
	if err != nil {
		// The plan stays active and unlinked; the caller can retry, and the
		// stale-payment sweep reports plans that never got a schedule ref.
		return nil, err
	}

	plan.ExternalScheduleRef = res.ScheduleRef
	if err := o.store.Plans().Update(ctx, plan); err != nil {
		return nil, err
	}

	if o.metrics != nil {
		o.metrics.PaymentsInitiated.WithLabelValues(string(models.PaymentTypeInstallment)).Inc()
	}
	o.log.WithFields(logrus.Fields{
		"order": order.UUID, "plan": plan.ID, "installments": numInstallments,
		"schedule_ref": res.ScheduleRef,
	}).Info("installment plan created")

	return plan, nil
}

// CancelInstallmentPlan stops future charges on an active plan. Paid
// installments stay paid; a partially paid order keeps its status so the
// balance can still be settled another way.
func (o *PaymentOrchestrator) CancelInstallmentPlan(ctx context.Context, planID uint, userID uint) (*models.InstallmentPlan, error) {
	plan, err := o.store.Plans().Get(ctx, planID)
	if err != nil {
		return nil, err
	}
	order, err := o.store.Orders().Get(ctx, plan.OrderID)
	if err != nil {
		return nil, err
	}
	if order.UserID != userID {
		return nil, &apperrors.ForbiddenError{Reason: "you can only cancel your own plans"}
	}
	if plan.Status.Terminal() {
		return nil, &apperrors.ConflictError{
			Reason: fmt.Sprintf("plan in status %q cannot be cancelled", plan.Status),
		}
	}

	if plan.ExternalScheduleRef != "" {
		start := o.now()
		err := o.gw.CancelSchedule(ctx, plan.ExternalScheduleRef)
		o.observeGateway("cancel_schedule", start)
		if err != nil {
			return nil, err
		}
	}

	err = o.store.Atomically(ctx, func(tx repository.Store) error {
		locked, err := tx.Plans().GetForUpdate(ctx, plan.ID)
		if err != nil {
			return err
		}
		if locked.Status.Terminal() {
			// A webhook raced us to a terminal state; the schedule is already
			// stopped at the gateway, nothing left to do.
			plan = locked
			return nil
		}
		if err := tx.Plans().SkipPendingInstallments(ctx, locked.ID); err != nil {
			return err
		}
		locked.Status = models.PlanStatusCancelled
		plan = locked
		return tx.Plans().Update(ctx, locked)
	})
	if err != nil {
		return nil, err
	}

	o.log.WithFields(logrus.Fields{"plan": plan.ID, "order": order.UUID}).Info("installment plan cancelled")
	return plan, nil
}

// Refund asks the gateway to return amount against a settled payment, which
// covers one-time charges and individual installment charges alike. A zero
// amount refunds the full remaining balance. Admin only; local payment and
// order state stay untouched until the provider confirms with a refund event.
func (o *PaymentOrchestrator) Refund(ctx context.Context, paymentID uint, amount decimal.Decimal, reason string) (*gateway.RefundResult, error) {
	payment, err := o.store.Payments().Get(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if payment.Status != models.PaymentStatusSucceeded && payment.Status != models.PaymentStatusPartiallyRefunded {
		return nil, &apperrors.ConflictError{
			Reason: fmt.Sprintf("payment in status %q is not refundable", payment.Status),
		}
	}
	if payment.ExternalRef == "" {
		return nil, &apperrors.ConflictError{Reason: "payment has no settled charge to refund"}
	}

	refundable := payment.Amount.Sub(payment.RefundAmount)
	if amount.IsZero() {
		amount = refundable
	}
	if !amount.IsPositive() {
		return nil, &apperrors.ValidationError{Field: "amount", Reason: "refund amount must be positive"}
	}
	if amount.GreaterThan(refundable) {
		return nil, &apperrors.ValidationError{
			Field:  "amount",
			Reason: fmt.Sprintf("refund exceeds refundable balance %s", refundable.StringFixed(2)),
		}
	}

	start := o.now()
	res, err := o.gw.Refund(ctx, gateway.RefundRequest{
		ChargeRef: payment.ExternalRef,
		Amount:    amount,
		Reason:    reason,
	})
	o.observeGateway("refund", start)
	if err != nil {
		return nil, err
	}

	o.log.WithFields(logrus.Fields{
		"payment": payment.ID, "amount": amount.StringFixed(2), "refund_ref": res.RefundRef,
	}).Info("refund requested")
	return res, nil
}

func (o *PaymentOrchestrator) observeGateway(op string, start time.Time) {
	if o.metrics != nil {
		o.metrics.GatewayCalls.WithLabelValues(op).Observe(time.Since(start).Seconds())
	}
}

// failPaymentIfFinal marks the pending payment failed when the gateway error
// is definitive. Retryable errors (timeouts, 5xx) leave it pending for the
// sweep, since the provider may still have accepted the charge.
func (o *PaymentOrchestrator) failPaymentIfFinal(ctx context.Context, payment *models.Payment, gwErr error) {
	var ge *apperrors.GatewayError
	if errors.As(gwErr, &ge) && ge.Retryable {
		return
	}
	payment.Status = models.PaymentStatusFailed
	payment.FailureReason = gwErr.Error()
	if err := o.store.Payments().Update(ctx, payment); err != nil {
		o.log.WithError(err).WithField("payment", payment.ID).Warn("could not mark payment failed")
	}
}
