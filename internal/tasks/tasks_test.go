package tasks

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sportsreg_app/internal/gateway"
	"sportsreg_app/internal/models"
	"sportsreg_app/internal/notify"
	"sportsreg_app/internal/repository"
)

func testDeps() (Deps, *repository.MemoryStore) {
	store := repository.NewMemoryStore()
	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)
	return Deps{
		Store:    store,
		Notifier: &notify.LogNotifier{Log: log},
		Log:      log,
	}, store
}

func TestInstallmentReminderTask(t *testing.T) {
	ctx := context.Background()
	deps, store := testDeps()

	user := store.AddUser(models.User{Name: "Dana Reyes", Email: "dana@example.com"})
	order := models.Order{UUID: "ord-1", UserID: user.ID, Status: models.OrderStatusPartiallyPaid}
	require.NoError(t, store.Orders().Create(ctx, &order))

	plan := models.InstallmentPlan{
		OrderID: order.ID, Status: models.PlanStatusActive,
		NumInstallments: 2, Frequency: models.FrequencyMonthly,
		Installments: []models.InstallmentPayment{
			{InstallmentNumber: 1, Status: models.InstallmentStatusPaid, DueDate: time.Now().AddDate(0, 0, -30), Amount: decimal.NewFromInt(50)},
			{InstallmentNumber: 2, Status: models.InstallmentStatusPending, DueDate: time.Now().AddDate(0, 0, 1), Amount: decimal.NewFromInt(50)},
		},
	}
	require.NoError(t, store.Plans().Create(ctx, &plan))

	result, err := InstallmentReminderTask.HandleExecution(ctx, deps, models.ScheduledTask{
		Arguments: map[string]interface{}{"window_days": float64(3)},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, result["sent"], "one pending installment inside the window")
}

func TestInstallmentReminderSkipsInactivePlans(t *testing.T) {
	ctx := context.Background()
	deps, store := testDeps()

	user := store.AddUser(models.User{Name: "Dana Reyes", Email: "dana@example.com"})
	order := models.Order{UUID: "ord-2", UserID: user.ID}
	require.NoError(t, store.Orders().Create(ctx, &order))

	plan := models.InstallmentPlan{
		OrderID: order.ID, Status: models.PlanStatusDefaulted,
		Installments: []models.InstallmentPayment{
			{InstallmentNumber: 1, Status: models.InstallmentStatusPending, DueDate: time.Now().AddDate(0, 0, 1), Amount: decimal.NewFromInt(50)},
		},
	}
	require.NoError(t, store.Plans().Create(ctx, &plan))

	result, err := InstallmentReminderTask.HandleExecution(ctx, deps, models.ScheduledTask{})
	require.NoError(t, err)
	assert.Equal(t, 0, result["sent"])
}

func TestStalePaymentSweep(t *testing.T) {
	ctx := context.Background()
	deps, store := testDeps()

	stale := models.Payment{
		Status: models.PaymentStatusPending, Amount: decimal.NewFromInt(100),
		CreatedAt: time.Now().Add(-48 * time.Hour),
	}
	require.NoError(t, store.Payments().Create(ctx, &stale))

	fresh := models.Payment{
		Status: models.PaymentStatusPending, Amount: decimal.NewFromInt(100),
	}
	require.NoError(t, store.Payments().Create(ctx, &fresh))

	result, err := StalePaymentSweep.HandleExecution(ctx, deps, models.ScheduledTask{
		Arguments: map[string]interface{}{"cutoff_hours": float64(24)},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, result["swept"])

	sweptPayment, err := store.Payments().Get(ctx, stale.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusFailed, sweptPayment.Status)

	freshPayment, err := store.Payments().Get(ctx, fresh.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusPending, freshPayment.Status)
}

// stubGateway answers status checks with a fixed state; everything else is
// unreachable from the sweep.
type stubGateway struct {
	gateway.Gateway
	state gateway.ChargeState
}

func (s *stubGateway) ChargeStatus(ctx context.Context, chargeRef string) (gateway.ChargeState, error) {
	return s.state, nil
}

func TestStalePaymentSweepChecksGatewayFirst(t *testing.T) {
	ctx := context.Background()

	cases := []struct {
		name       string
		state      gateway.ChargeState
		wantStatus models.PaymentStatus
	}{
		{"settled stays for webhook", gateway.ChargeStateSettled, models.PaymentStatusPending},
		{"pending left alone", gateway.ChargeStatePending, models.PaymentStatusPending},
		{"terminal swept", gateway.ChargeStateFailed, models.PaymentStatusFailed},
		{"never attempted swept", gateway.ChargeStateUnknown, models.PaymentStatusFailed},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			deps, store := testDeps()
			deps.Gateway = &stubGateway{state: tc.state}

			p := models.Payment{
				Status: models.PaymentStatusPending, Amount: decimal.NewFromInt(100),
				ExternalRef: "chg-1", CreatedAt: time.Now().Add(-48 * time.Hour),
			}
			require.NoError(t, store.Payments().Create(ctx, &p))

			_, err := StalePaymentSweep.HandleExecution(ctx, deps, models.ScheduledTask{})
			require.NoError(t, err)

			got, err := store.Payments().Get(ctx, p.ID)
			require.NoError(t, err)
			assert.Equal(t, tc.wantStatus, got.Status)
		})
	}
}
