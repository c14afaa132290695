package services

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sportsreg_app/internal/apperrors"
	"sportsreg_app/internal/models"
	"sportsreg_app/internal/pricing"
	"sportsreg_app/internal/repository"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)
	return log
}

type pricingFixture struct {
	store   *repository.MemoryStore
	svc     *PricingService
	parent  models.User
	other   models.User
	kids    []models.Child
	classes []models.Class
}

func newPricingFixture(t *testing.T) *pricingFixture {
	t.Helper()
	store := repository.NewMemoryStore()

	f := &pricingFixture{store: store}
	f.parent = store.AddUser(models.User{Name: "Dana Reyes", Email: "dana@example.com", Role: models.RoleParent})
	f.other = store.AddUser(models.User{Name: "Sam Okafor", Email: "sam@example.com", Role: models.RoleParent})

	f.kids = append(f.kids,
		store.AddChild(models.Child{UserID: f.parent.ID, Name: "Ari"}),
		store.AddChild(models.Child{UserID: f.parent.ID, Name: "Bea"}),
		store.AddChild(models.Child{UserID: f.parent.ID, Name: "Cal"}),
	)
	f.classes = append(f.classes,
		store.AddClass(models.Class{Name: "Travel Soccer", Program: "soccer", Price: dec("200"), Capacity: 20, IsActive: true}),
		store.AddClass(models.Class{Name: "Rec Soccer", Program: "soccer", Price: dec("150"), Capacity: 20, IsActive: true}),
		store.AddClass(models.Class{Name: "Mini Kickers", Program: "soccer", Price: dec("100"), Capacity: 20, IsActive: true}),
	)

	f.svc = NewPricingService(store, pricing.Policy{}, nil, testLogger())
	f.svc.now = func() time.Time { return time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC) }
	return f
}

func (f *pricingFixture) cart() []OrderItemInput {
	return []OrderItemInput{
		{ChildID: f.kids[0].ID, ClassID: f.classes[0].ID},
		{ChildID: f.kids[1].ID, ClassID: f.classes[1].ID},
		{ChildID: f.kids[2].ID, ClassID: f.classes[2].ID},
	}
}

func TestCalculateSiblingPricing(t *testing.T) {
	f := newPricingFixture(t)

	calc, err := f.svc.Calculate(context.Background(), f.parent.ID, f.cart(), "")
	require.NoError(t, err)

	assert.True(t, calc.Subtotal.Equal(dec("450")), "subtotal %s", calc.Subtotal)
	assert.True(t, calc.SiblingTotal.Equal(dec("72.5")), "sibling %s", calc.SiblingTotal)
	assert.True(t, calc.Total.Equal(dec("377.5")), "total %s", calc.Total)
	require.Len(t, calc.Items, 3)
	assert.True(t, calc.Items[0].DiscountAmount.IsZero(), "highest-priced line must keep full price")
}

func TestCalculateRejections(t *testing.T) {
	f := newPricingFixture(t)
	ctx := context.Background()

	t.Run("empty cart", func(t *testing.T) {
		_, err := f.svc.Calculate(ctx, f.parent.ID, nil, "")
		var ve *apperrors.ValidationError
		require.ErrorAs(t, err, &ve)
	})

	t.Run("someone else's child", func(t *testing.T) {
		_, err := f.svc.Calculate(ctx, f.other.ID, f.cart()[:1], "")
		var fe *apperrors.ForbiddenError
		require.ErrorAs(t, err, &fe)
	})

	t.Run("duplicate line in cart", func(t *testing.T) {
		items := []OrderItemInput{
			{ChildID: f.kids[0].ID, ClassID: f.classes[0].ID},
			{ChildID: f.kids[0].ID, ClassID: f.classes[0].ID},
		}
		_, err := f.svc.Calculate(ctx, f.parent.ID, items, "")
		var ce *apperrors.ConflictError
		require.ErrorAs(t, err, &ce)
	})

	t.Run("inactive class", func(t *testing.T) {
		inactive := f.store.AddClass(models.Class{Name: "Retired", Price: dec("50"), IsActive: false})
		_, err := f.svc.Calculate(ctx, f.parent.ID, []OrderItemInput{{ChildID: f.kids[0].ID, ClassID: inactive.ID}}, "")
		var nf *apperrors.NotFoundError
		require.ErrorAs(t, err, &nf)
	})

	t.Run("full class", func(t *testing.T) {
		full := f.store.AddClass(models.Class{Name: "Popular", Price: dec("50"), Capacity: 5, Enrolled: 5, IsActive: true})
		_, err := f.svc.Calculate(ctx, f.parent.ID, []OrderItemInput{{ChildID: f.kids[0].ID, ClassID: full.ID}}, "")
		var cap *apperrors.CapacityExceededError
		require.ErrorAs(t, err, &cap)
	})

	t.Run("already enrolled", func(t *testing.T) {
		require.NoError(t, f.store.Enrollments().CreateBatch(ctx, []models.Enrollment{{
			ChildID: f.kids[2].ID, ClassID: f.classes[2].ID, Status: models.EnrollmentStatusActive,
		}}))
		_, err := f.svc.Calculate(ctx, f.parent.ID, f.cart(), "")
		var ce *apperrors.ConflictError
		require.ErrorAs(t, err, &ce)
	})
}

func TestCalculatePromoHandling(t *testing.T) {
	f := newPricingFixture(t)
	ctx := context.Background()

	f.store.AddCode(models.DiscountCode{
		Code: "spring10", Type: models.DiscountTypePercentage, Value: dec("10"), IsActive: true,
	})

	t.Run("valid code applies after other discounts", func(t *testing.T) {
		calc, err := f.svc.Calculate(ctx, f.parent.ID, f.cart(), "SPRING10")
		require.NoError(t, err)
		assert.True(t, calc.PromoApplied)
		assert.True(t, calc.PromoTotal.Equal(dec("37.75")), "promo %s", calc.PromoTotal) // 10% of 377.50
		assert.True(t, calc.Total.Equal(dec("339.75")), "total %s", calc.Total)
	})

	t.Run("unknown code does not fail the calculation", func(t *testing.T) {
		calc, err := f.svc.Calculate(ctx, f.parent.ID, f.cart(), "NOPE")
		require.NoError(t, err)
		assert.False(t, calc.PromoApplied)
		assert.Equal(t, "code not found", calc.PromoReason)
		assert.True(t, calc.Total.Equal(dec("377.5")))
	})
}

func TestCreateOrder(t *testing.T) {
	f := newPricingFixture(t)
	ctx := context.Background()
	one := 1
	f.store.AddCode(models.DiscountCode{
		Code: "ONCE", Type: models.DiscountTypeFixedAmount, Value: dec("20"), IsActive: true, MaxUses: &one,
	})

	order, err := f.svc.CreateOrder(ctx, f.parent.ID, f.cart(), "once", "first season")
	require.NoError(t, err)

	assert.Equal(t, models.OrderStatusDraft, order.Status)
	assert.NotEmpty(t, order.UUID)
	assert.Equal(t, "ONCE", order.PromoCode)
	assert.True(t, order.Total.Equal(dec("357.5")), "total %s", order.Total) // 377.50 - 20
	require.Len(t, order.LineItems, 3)

	enrollments, err := f.store.Enrollments().ListByOrder(ctx, order.ID)
	require.NoError(t, err)
	require.Len(t, enrollments, 3)
	for _, e := range enrollments {
		assert.Equal(t, models.EnrollmentStatusPending, e.Status)
	}

	code, err := f.store.Discounts().GetByCode(ctx, "ONCE")
	require.NoError(t, err)
	assert.Equal(t, 1, code.CurrentUses)

	// The cap of one use is spent; the next cart prices without the promo.
	swim := f.store.AddClass(models.Class{Name: "Swim Basics", Program: "swim", Price: dec("80"), Capacity: 10, IsActive: true})
	calc, err := f.svc.Calculate(ctx, f.parent.ID, []OrderItemInput{{ChildID: f.kids[0].ID, ClassID: swim.ID}}, "ONCE")
	require.NoError(t, err)
	assert.False(t, calc.PromoApplied)
}

// The per-user cap must hold at the write itself: the calculate-time count is
// advisory and two racing checkouts can both pass it.
func TestConsumeEnforcesPerUserCap(t *testing.T) {
	f := newPricingFixture(t)
	ctx := context.Background()
	one := 1
	code := f.store.AddCode(models.DiscountCode{
		Code: "FAMILY1", Type: models.DiscountTypePercentage, Value: dec("10"),
		IsActive: true, MaxUsesPerUser: &one,
	})

	require.NoError(t, f.store.Discounts().Consume(ctx, code.ID, f.parent.ID, 1))

	err := f.store.Discounts().Consume(ctx, code.ID, f.parent.ID, 2)
	var ce *apperrors.ConflictError
	require.ErrorAs(t, err, &ce, "second redemption by the same user must lose at the storage layer")

	uses, err := f.store.Discounts().CountUserUses(ctx, code.ID, f.parent.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, uses)

	// A different user still has their own allowance.
	require.NoError(t, f.store.Discounts().Consume(ctx, code.ID, f.other.ID, 3))
}

func TestCancelDraftOrder(t *testing.T) {
	f := newPricingFixture(t)
	ctx := context.Background()

	order, err := f.svc.CreateOrder(ctx, f.parent.ID, f.cart(), "", "")
	require.NoError(t, err)

	t.Run("only the owner can cancel", func(t *testing.T) {
		_, err := f.svc.CancelDraftOrder(ctx, order.UUID, f.other.ID)
		var fe *apperrors.ForbiddenError
		require.ErrorAs(t, err, &fe)
	})

	t.Run("cancelling a draft cancels its enrollments", func(t *testing.T) {
		cancelled, err := f.svc.CancelDraftOrder(ctx, order.UUID, f.parent.ID)
		require.NoError(t, err)
		assert.Equal(t, models.OrderStatusCancelled, cancelled.Status)

		enrollments, err := f.store.Enrollments().ListByOrder(ctx, order.ID)
		require.NoError(t, err)
		for _, e := range enrollments {
			assert.Equal(t, models.EnrollmentStatusCancelled, e.Status)
		}
	})

	t.Run("terminal orders stay put", func(t *testing.T) {
		_, err := f.svc.CancelDraftOrder(ctx, order.UUID, f.parent.ID)
		var ce *apperrors.ConflictError
		require.ErrorAs(t, err, &ce)
	})
}
