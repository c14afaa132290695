package services

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sportsreg_app/internal/apperrors"
	"sportsreg_app/internal/gateway"
	"sportsreg_app/internal/models"
)

// fakeGateway records calls and returns canned results.
type fakeGateway struct {
	chargeErr   error
	scheduleErr error
	chargeState gateway.ChargeState

	charges   []gateway.ChargeRequest
	schedules []gateway.ScheduleRequest
	cancelled []string
	refunds   []gateway.RefundRequest
}

func (f *fakeGateway) CreateCharge(ctx context.Context, req gateway.ChargeRequest) (*gateway.ChargeResult, error) {
	if f.chargeErr != nil {
		return nil, f.chargeErr
	}
	f.charges = append(f.charges, req)
	return &gateway.ChargeResult{ChargeRef: "chg-" + req.OrderRef, RedirectURL: "https://pay.example/" + req.OrderRef}, nil
}

func (f *fakeGateway) CreateRecurringSchedule(ctx context.Context, req gateway.ScheduleRequest) (*gateway.ScheduleResult, error) {
	if f.scheduleErr != nil {
		return nil, f.scheduleErr
	}
	f.schedules = append(f.schedules, req)
	return &gateway.ScheduleResult{ScheduleRef: "sub-" + req.PlanRef}, nil
}

func (f *fakeGateway) CancelSchedule(ctx context.Context, scheduleRef string) error {
	f.cancelled = append(f.cancelled, scheduleRef)
	return nil
}

func (f *fakeGateway) Refund(ctx context.Context, req gateway.RefundRequest) (*gateway.RefundResult, error) {
	f.refunds = append(f.refunds, req)
	return &gateway.RefundResult{RefundRef: "ref-1", Amount: req.Amount}, nil
}

func (f *fakeGateway) ChargeStatus(ctx context.Context, chargeRef string) (gateway.ChargeState, error) {
	if f.chargeState == "" {
		return gateway.ChargeStateUnknown, nil
	}
	return f.chargeState, nil
}

type orchestratorFixture struct {
	*pricingFixture
	gw   *fakeGateway
	orch *PaymentOrchestrator
}

func newOrchestratorFixture(t *testing.T) *orchestratorFixture {
	t.Helper()
	f := &orchestratorFixture{pricingFixture: newPricingFixture(t), gw: &fakeGateway{}}
	f.orch = NewPaymentOrchestrator(f.store, f.gw, "USD", nil, testLogger())
	return f
}

func (f *orchestratorFixture) draftOrder(t *testing.T) *models.Order {
	t.Helper()
	order, err := f.svc.CreateOrder(context.Background(), f.parent.ID, f.cart(), "", "")
	require.NoError(t, err)
	return order
}

func TestPayOneTime(t *testing.T) {
	ctx := context.Background()

	t.Run("happy path leaves a processing payment and a pending order", func(t *testing.T) {
		f := newOrchestratorFixture(t)
		order := f.draftOrder(t)

		intent, err := f.orch.PayOneTime(ctx, order.UUID, f.parent.ID)
		require.NoError(t, err)

		assert.Equal(t, "chg-"+order.UUID, intent.ChargeRef)
		assert.True(t, intent.Amount.Equal(dec("377.5")))
		require.Len(t, f.gw.charges, 1)
		assert.Equal(t, "dana@example.com", f.gw.charges[0].CustomerEmail)

		stored, err := f.store.Orders().GetByUUID(ctx, order.UUID)
		require.NoError(t, err)
		assert.Equal(t, models.OrderStatusPendingPayment, stored.Status)
		require.NotNil(t, stored.ExternalChargeRef)

		payment, err := f.store.Payments().GetByExternalRef(ctx, intent.ChargeRef)
		require.NoError(t, err)
		assert.Equal(t, models.PaymentStatusProcessing, payment.Status)
	})

	t.Run("only the owner can pay", func(t *testing.T) {
		f := newOrchestratorFixture(t)
		order := f.draftOrder(t)

		_, err := f.orch.PayOneTime(ctx, order.UUID, f.other.ID)
		var fe *apperrors.ForbiddenError
		require.ErrorAs(t, err, &fe)
	})

	t.Run("terminal order is not payable", func(t *testing.T) {
		f := newOrchestratorFixture(t)
		order := f.draftOrder(t)
		order.Status = models.OrderStatusPaid
		require.NoError(t, f.store.Orders().Update(ctx, order))

		_, err := f.orch.PayOneTime(ctx, order.UUID, f.parent.ID)
		var ce *apperrors.ConflictError
		require.ErrorAs(t, err, &ce)
	})

	t.Run("retryable gateway error keeps the payment pending", func(t *testing.T) {
		f := newOrchestratorFixture(t)
		f.gw.chargeErr = &apperrors.GatewayError{Op: "charge", Retryable: true, Err: context.DeadlineExceeded}
		order := f.draftOrder(t)

		_, err := f.orch.PayOneTime(ctx, order.UUID, f.parent.ID)
		require.Error(t, err)

		payments, err := f.store.Payments().ListStalePending(ctx, time.Now().Add(time.Minute))
		require.NoError(t, err)
		require.Len(t, payments, 1)
		assert.Equal(t, models.PaymentStatusPending, payments[0].Status)
	})

	t.Run("terminal gateway error fails the payment", func(t *testing.T) {
		f := newOrchestratorFixture(t)
		f.gw.chargeErr = &apperrors.GatewayError{Op: "charge", Retryable: false, Err: context.Canceled}
		order := f.draftOrder(t)

		_, err := f.orch.PayOneTime(ctx, order.UUID, f.parent.ID)
		require.Error(t, err)

		payments, err := f.store.Payments().ListStalePending(ctx, time.Now().Add(time.Minute))
		require.NoError(t, err)
		assert.Empty(t, payments, "failed payment must not look stale-pending")
	})
}

func TestCreateInstallmentPlan(t *testing.T) {
	ctx := context.Background()
	start := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)

	t.Run("happy path", func(t *testing.T) {
		f := newOrchestratorFixture(t)
		order := f.draftOrder(t)

		plan, err := f.orch.CreateInstallmentPlan(ctx, order.UUID, f.parent.ID, 3, models.FrequencyMonthly, start)
		require.NoError(t, err)

		assert.Equal(t, models.PlanStatusActive, plan.Status)
		assert.Equal(t, 3, plan.NumInstallments)
		assert.NotEmpty(t, plan.ExternalScheduleRef)
		require.Len(t, f.gw.schedules, 1)
		assert.Equal(t, 30, f.gw.schedules[0].IntervalDays)

		stored, err := f.store.Plans().Get(ctx, plan.ID)
		require.NoError(t, err)
		require.Len(t, stored.Installments, 3)
		// 377.50 / 3 = 125.83 with the remainder on the last slot.
		assert.True(t, stored.Installments[0].Amount.Equal(dec("125.83")))
		assert.True(t, stored.Installments[2].Amount.Equal(dec("125.84")))

		orderAfter, err := f.store.Orders().GetByUUID(ctx, order.UUID)
		require.NoError(t, err)
		assert.Equal(t, models.OrderStatusPendingPayment, orderAfter.Status)
	})

	t.Run("schedule policy violations surface", func(t *testing.T) {
		f := newOrchestratorFixture(t)
		order := f.draftOrder(t)

		_, err := f.orch.CreateInstallmentPlan(ctx, order.UUID, f.parent.ID, 13, models.FrequencyMonthly, start)
		var ise *apperrors.InvalidScheduleError
		require.ErrorAs(t, err, &ise)
	})

	t.Run("second active plan for the same order conflicts", func(t *testing.T) {
		f := newOrchestratorFixture(t)
		order := f.draftOrder(t)

		_, err := f.orch.CreateInstallmentPlan(ctx, order.UUID, f.parent.ID, 3, models.FrequencyMonthly, start)
		require.NoError(t, err)

		_, err = f.orch.CreateInstallmentPlan(ctx, order.UUID, f.parent.ID, 4, models.FrequencyMonthly, start)
		var ce *apperrors.ConflictError
		require.ErrorAs(t, err, &ce)
		assert.Len(t, f.gw.schedules, 1, "no second recurring schedule may be opened")
	})
}

func TestCancelInstallmentPlan(t *testing.T) {
	ctx := context.Background()
	start := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)

	f := newOrchestratorFixture(t)
	order := f.draftOrder(t)
	plan, err := f.orch.CreateInstallmentPlan(ctx, order.UUID, f.parent.ID, 3, models.FrequencyMonthly, start)
	require.NoError(t, err)

	t.Run("only the owner can cancel", func(t *testing.T) {
		_, err := f.orch.CancelInstallmentPlan(ctx, plan.ID, f.other.ID)
		var fe *apperrors.ForbiddenError
		require.ErrorAs(t, err, &fe)
	})

	t.Run("cancelling skips pending slots and stops the schedule", func(t *testing.T) {
		cancelled, err := f.orch.CancelInstallmentPlan(ctx, plan.ID, f.parent.ID)
		require.NoError(t, err)
		assert.Equal(t, models.PlanStatusCancelled, cancelled.Status)
		assert.Contains(t, f.gw.cancelled, plan.ExternalScheduleRef)

		n, err := f.store.Plans().CountPendingInstallments(ctx, plan.ID)
		require.NoError(t, err)
		assert.Zero(t, n)
	})

	t.Run("cancelling twice conflicts", func(t *testing.T) {
		_, err := f.orch.CancelInstallmentPlan(ctx, plan.ID, f.parent.ID)
		var ce *apperrors.ConflictError
		require.ErrorAs(t, err, &ce)
	})
}

func TestRefund(t *testing.T) {
	ctx := context.Background()

	f := newOrchestratorFixture(t)
	order := f.draftOrder(t)
	intent, err := f.orch.PayOneTime(ctx, order.UUID, f.parent.ID)
	require.NoError(t, err)

	t.Run("unsettled payment is not refundable", func(t *testing.T) {
		_, err := f.orch.Refund(ctx, intent.PaymentID, dec("50"), "requested")
		var ce *apperrors.ConflictError
		require.ErrorAs(t, err, &ce)
	})

	// Simulate the webhook having settled the charge.
	payment, err := f.store.Payments().GetByExternalRef(ctx, intent.ChargeRef)
	require.NoError(t, err)
	payment.Status = models.PaymentStatusSucceeded
	require.NoError(t, f.store.Payments().Update(ctx, payment))

	t.Run("refund passes through to the gateway", func(t *testing.T) {
		res, err := f.orch.Refund(ctx, intent.PaymentID, dec("50"), "requested")
		require.NoError(t, err)
		assert.True(t, res.Amount.Equal(dec("50")))
		require.Len(t, f.gw.refunds, 1)
		assert.Equal(t, intent.ChargeRef, f.gw.refunds[0].ChargeRef)
	})

	t.Run("zero amount refunds the full remaining balance", func(t *testing.T) {
		res, err := f.orch.Refund(ctx, intent.PaymentID, decimal.Zero, "requested")
		require.NoError(t, err)
		assert.True(t, res.Amount.Equal(dec("377.5")))
	})

	t.Run("refund above the balance is rejected", func(t *testing.T) {
		_, err := f.orch.Refund(ctx, intent.PaymentID, dec("1000"), "requested")
		var ve *apperrors.ValidationError
		require.ErrorAs(t, err, &ve)
	})

	t.Run("settled installment charges are refundable", func(t *testing.T) {
		instPayment := models.Payment{
			OrderID: order.ID, Type: models.PaymentTypeInstallment,
			Status: models.PaymentStatusSucceeded, Amount: dec("125.83"),
			ExternalRef: "chg-cycle-1",
		}
		require.NoError(t, f.store.Payments().Create(ctx, &instPayment))

		res, err := f.orch.Refund(ctx, instPayment.ID, decimal.Zero, "class cancelled")
		require.NoError(t, err)
		assert.True(t, res.Amount.Equal(dec("125.83")))
		assert.Equal(t, "chg-cycle-1", f.gw.refunds[len(f.gw.refunds)-1].ChargeRef)
	})
}
