package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"sportsreg_app/internal/apperrors"
	"sportsreg_app/internal/metrics"
	"sportsreg_app/internal/models"
	"sportsreg_app/internal/pricing"
	"sportsreg_app/internal/repository"
)

// PricingService prices carts and turns them into draft orders. Calculate is
// a pure preview with no side effects; CreateOrder re-runs it and persists
// the result together with the promo usage increment in one transaction.
type PricingService struct {
	store   repository.Store
	policy  pricing.Policy
	metrics *metrics.Metrics
	log     *logrus.Logger
	now     func() time.Time
}

func NewPricingService(store repository.Store, policy pricing.Policy, m *metrics.Metrics, log *logrus.Logger) *PricingService {
	return &PricingService{store: store, policy: policy, metrics: m, log: log, now: time.Now}
}

// OrderItemInput is one requested (child, class) pair.
type OrderItemInput struct {
	ChildID uint `json:"child_id"`
	ClassID uint `json:"class_id"`
}

// CalculatedItem is one priced line of a preview.
type CalculatedItem struct {
	ChildID        uint            `json:"child_id"`
	ClassID        uint            `json:"class_id"`
	Description    string          `json:"description"`
	UnitPrice      decimal.Decimal `json:"unit_price"`
	DiscountAmount decimal.Decimal `json:"discount_amount"`
	LineTotal      decimal.Decimal `json:"line_total"`
}

// OrderCalculation is the full priced preview of a cart.
type OrderCalculation struct {
	Items            []CalculatedItem `json:"items"`
	Subtotal         decimal.Decimal  `json:"subtotal"`
	SiblingTotal     decimal.Decimal  `json:"sibling_total"`
	ScholarshipTotal decimal.Decimal  `json:"scholarship_total"`
	PromoTotal       decimal.Decimal  `json:"promo_total"`
	DiscountTotal    decimal.Decimal  `json:"discount_total"`
	Total            decimal.Decimal  `json:"total"`
	PromoCode        string           `json:"promo_code,omitempty"`
	PromoApplied     bool             `json:"promo_applied"`
	PromoReason      string           `json:"promo_reason,omitempty"`
}

// Calculate validates the cart and prices it without persisting anything, so
// clients can call it repeatedly while the user edits. A bad promo code does
// not fail the calculation; it is reported via PromoApplied/PromoReason.
func (s *PricingService) Calculate(ctx context.Context, userID uint, items []OrderItemInput, promoCode string) (*OrderCalculation, error) {
	if len(items) == 0 {
		return nil, &apperrors.ValidationError{Field: "items", Reason: "cart is empty"}
	}

	seen := make(map[[2]uint]bool, len(items))
	cart := make([]pricing.CartItem, 0, len(items))
	for _, in := range items {
		key := [2]uint{in.ChildID, in.ClassID}
		if seen[key] {
			return nil, &apperrors.ConflictError{Reason: fmt.Sprintf("child %d appears twice for class %d", in.ChildID, in.ClassID)}
		}
		seen[key] = true

		child, err := s.store.Children().Get(ctx, in.ChildID)
		if err != nil {
			return nil, err
		}
		if child.UserID != userID {
			return nil, &apperrors.ForbiddenError{Reason: fmt.Sprintf("child %d does not belong to you", in.ChildID)}
		}

		class, err := s.store.Catalog().GetClass(ctx, in.ClassID)
		if err != nil {
			return nil, err
		}
		if !class.IsActive {
			return nil, &apperrors.NotFoundError{Resource: "class", ID: fmt.Sprint(in.ClassID)}
		}
		if !class.HasCapacity() {
			return nil, &apperrors.CapacityExceededError{ClassID: class.ID, ClassName: class.Name}
		}

		dup, err := s.store.Enrollments().HasActive(ctx, in.ChildID, in.ClassID)
		if err != nil {
			return nil, err
		}
		if dup {
			return nil, &apperrors.ConflictError{
				Reason: fmt.Sprintf("%s is already enrolled in %s", child.Name, class.Name),
			}
		}

		cart = append(cart, pricing.CartItem{
			ChildID:     child.ID,
			ClassID:     class.ID,
			Program:     class.Program,
			Description: fmt.Sprintf("%s - %s", child.Name, class.Name),
			UnitPrice:   class.Price,
		})
	}

	now := s.now()

	scholarships, err := s.store.Scholarships().ListActiveForUser(ctx, userID, now)
	if err != nil {
		return nil, err
	}
	grants := make([]pricing.ScholarshipGrant, 0, len(scholarships))
	for _, sc := range scholarships {
		grants = append(grants, pricing.ScholarshipGrant{ChildID: sc.ChildID, Percentage: sc.Percentage})
	}

	promo := pricing.PromoContext{}
	promoReason := ""
	if promoCode != "" {
		code, err := s.store.Discounts().GetByCode(ctx, promoCode)
		if err != nil {
			var nf *apperrors.NotFoundError
			if !errors.As(err, &nf) {
				return nil, err
			}
			promoReason = "code not found"
		} else {
			uses, err := s.store.Discounts().CountUserUses(ctx, code.ID, userID)
			if err != nil {
				return nil, err
			}
			promo = pricing.PromoContext{Code: code, UserUses: uses}
		}
	}

	b := pricing.ComputeDiscounts(cart, grants, promo, now, s.policy)

	calc := &OrderCalculation{
		Items:            make([]CalculatedItem, len(cart)),
		Subtotal:         b.Subtotal,
		SiblingTotal:     b.SiblingTotal,
		ScholarshipTotal: b.ScholarshipTotal,
		PromoTotal:       b.PromoTotal,
		DiscountTotal:    b.DiscountTotal,
		Total:            b.Total,
		PromoApplied:     b.PromoApplied,
		PromoReason:      b.PromoReason,
	}
	if promoReason != "" {
		calc.PromoReason = promoReason
	}
	if b.PromoApplied {
		calc.PromoCode = models.NormalizeCode(promoCode)
	}
	for i, it := range cart {
		calc.Items[i] = CalculatedItem{
			ChildID:        it.ChildID,
			ClassID:        it.ClassID,
			Description:    it.Description,
			UnitPrice:      it.UnitPrice,
			DiscountAmount: b.Lines[i].Total,
			LineTotal:      it.UnitPrice.Sub(b.Lines[i].Total),
		}
	}

	if promoCode != "" && s.metrics != nil {
		result := "invalid"
		if calc.PromoApplied {
			result = "valid"
		}
		s.metrics.DiscountChecks.WithLabelValues(result).Inc()
	}

	return calc, nil
}

// CreateOrder persists the priced cart as a draft order with pending
// enrollments. The promo usage counter increments in the same transaction as
// the order insert; a code exhausted between preview and creation surfaces
// as ConflictError rather than a partially applied discount.
func (s *PricingService) CreateOrder(ctx context.Context, userID uint, items []OrderItemInput, promoCode, notes string) (*models.Order, error) {
	calc, err := s.Calculate(ctx, userID, items, promoCode)
	if err != nil {
		return nil, err
	}

	order := &models.Order{
		UUID:             uuid.NewString(),
		UserID:           userID,
		Status:           models.OrderStatusDraft,
		Subtotal:         calc.Subtotal,
		DiscountTotal:    calc.DiscountTotal,
		Total:            calc.Total,
		SiblingTotal:     calc.SiblingTotal,
		ScholarshipTotal: calc.ScholarshipTotal,
		PromoTotal:       calc.PromoTotal,
		PromoCode:        calc.PromoCode,
		Notes:            notes,
		LineItems:        make([]models.OrderLineItem, len(calc.Items)),
	}
	for i, it := range calc.Items {
		order.LineItems[i] = models.OrderLineItem{
			ChildID:        it.ChildID,
			ClassID:        it.ClassID,
			Description:    it.Description,
			UnitPrice:      it.UnitPrice,
			DiscountAmount: it.DiscountAmount,
			LineTotal:      it.LineTotal,
		}
	}

	err = s.store.Atomically(ctx, func(tx repository.Store) error {
		if err := tx.Orders().Create(ctx, order); err != nil {
			return err
		}

		enrollments := make([]models.Enrollment, len(order.LineItems))
		for i, li := range order.LineItems {
			enrollments[i] = models.Enrollment{
				ChildID:         li.ChildID,
				ClassID:         li.ClassID,
				OrderLineItemID: li.ID,
				Status:          models.EnrollmentStatusPending,
				BasePrice:       li.UnitPrice,
				DiscountAmount:  li.DiscountAmount,
				FinalPrice:      li.LineTotal,
			}
		}
		if err := tx.Enrollments().CreateBatch(ctx, enrollments); err != nil {
			return err
		}

		if calc.PromoApplied {
			code, err := tx.Discounts().GetByCode(ctx, calc.PromoCode)
			if err != nil {
				return err
			}
			if err := tx.Discounts().Consume(ctx, code.ID, userID, order.ID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if s.metrics != nil {
		promoLabel := "skipped"
		if calc.PromoApplied {
			promoLabel = "applied"
		}
		s.metrics.OrdersCreated.WithLabelValues(promoLabel).Inc()
	}
	s.log.WithFields(logrus.Fields{
		"order": order.UUID, "user": userID, "total": order.Total.StringFixed(2),
	}).Info("order created")

	return order, nil
}

// CancelDraftOrder cancels an order still in a cancellable status, marking
// its pending enrollments cancelled.
func (s *PricingService) CancelDraftOrder(ctx context.Context, orderUUID string, userID uint) (*models.Order, error) {
	var out *models.Order
	err := s.store.Atomically(ctx, func(tx repository.Store) error {
		order, err := tx.Orders().GetByUUIDForUpdate(ctx, orderUUID)
		if err != nil {
			return err
		}
		if order.UserID != userID {
			return &apperrors.ForbiddenError{Reason: "you can only cancel your own orders"}
		}
		if !order.Status.Cancellable() {
			return &apperrors.ConflictError{
				Reason: fmt.Sprintf("order in status %q cannot be cancelled", order.Status),
			}
		}

		order.Status = models.OrderStatusCancelled
		if err := tx.Orders().Update(ctx, order); err != nil {
			return err
		}

		now := s.now()
		enrollments, err := tx.Enrollments().ListByOrder(ctx, order.ID)
		if err != nil {
			return err
		}
		for i := range enrollments {
			e := enrollments[i]
			switch e.Status {
			case models.EnrollmentStatusPending, models.EnrollmentStatusWaitlisted:
				e.Status = models.EnrollmentStatusCancelled
				e.CancelledAt = &now
			case models.EnrollmentStatusActive:
				// Active means a seat was reserved at activation; release it.
				e.Status = models.EnrollmentStatusCancelled
				e.CancelledAt = &now
				if err := tx.Catalog().ReleaseSeats(ctx, e.ClassID, 1); err != nil {
					return err
				}
			default:
				continue
			}
			if err := tx.Enrollments().Update(ctx, &e); err != nil {
				return err
			}
		}

		out = order
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ValidateCode checks a promo code for a user and prospective order amount,
// for cart UX. Never mutates anything.
func (s *PricingService) ValidateCode(ctx context.Context, userID uint, code string, orderAmount decimal.Decimal) (bool, string, error) {
	dc, err := s.store.Discounts().GetByCode(ctx, code)
	if err != nil {
		var nf *apperrors.NotFoundError
		if errors.As(err, &nf) {
			return false, "code not found", nil
		}
		return false, "", err
	}
	uses, err := s.store.Discounts().CountUserUses(ctx, dc.ID, userID)
	if err != nil {
		return false, "", err
	}
	ok, reason := pricing.ValidatePromo(dc, uses, orderAmount, nil, s.now())
	return ok, reason, nil
}
