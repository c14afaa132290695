package pricing

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"sportsreg_app/internal/models"
)

// Sibling discount rates by rank. Rank 1 is the highest-priced line and is
// never discounted; families keep full price on the most expensive
// enrollment and the cheaper add-ons get the break.
var siblingRates = map[int]decimal.Decimal{
	2: decimal.NewFromFloat(0.25),
	3: decimal.NewFromFloat(0.35),
}

// siblingRateCap applies from rank 4 onward.
var siblingRateCap = decimal.NewFromFloat(0.45)

// Policy holds the tunable discount knobs. PromoAppliesPreDiscount flips the
// unresolved business question of whether promo percentage and minimum-order
// checks run against the pre-discount subtotal; the default is the
// post-discount interpretation.
type Policy struct {
	PromoAppliesPreDiscount bool
}

// CartItem is one (child, class) request with its current catalog price.
type CartItem struct {
	ChildID     uint
	ClassID     uint
	Program     string
	Description string
	UnitPrice   decimal.Decimal
}

// ScholarshipGrant is an active scholarship relevant to the cart. ChildID
// nil applies family-wide.
type ScholarshipGrant struct {
	ChildID    *uint
	Percentage decimal.Decimal // e.g. 25 for 25%
}

// LineDiscount is the per-line outcome, in the input item order.
type LineDiscount struct {
	ChildID     uint
	ClassID     uint
	Sibling     decimal.Decimal
	Scholarship decimal.Decimal
	Promo       decimal.Decimal
	Total       decimal.Decimal
}

// Breakdown aggregates the discount computation for display and audit.
type Breakdown struct {
	Lines            []LineDiscount
	Subtotal         decimal.Decimal
	SiblingTotal     decimal.Decimal
	ScholarshipTotal decimal.Decimal
	PromoTotal       decimal.Decimal
	DiscountTotal    decimal.Decimal
	Total            decimal.Decimal
	PromoApplied     bool
	PromoReason      string
}

// PromoContext carries the facts promo eligibility depends on, resolved by
// the caller so this function stays pure.
type PromoContext struct {
	Code     *models.DiscountCode
	UserUses int // prior redemptions by this user
}

// ComputeDiscounts prices a cart. Deterministic: identical inputs yield
// identical output; the only time dependency is the explicit now used for
// validity windows.
func ComputeDiscounts(items []CartItem, scholarships []ScholarshipGrant, promo PromoContext, now time.Time, policy Policy) Breakdown {
	b := Breakdown{
		Lines:            make([]LineDiscount, len(items)),
		Subtotal:         decimal.Zero,
		SiblingTotal:     decimal.Zero,
		ScholarshipTotal: decimal.Zero,
		PromoTotal:       decimal.Zero,
	}

	for i, it := range items {
		b.Subtotal = b.Subtotal.Add(it.UnitPrice)
		b.Lines[i] = LineDiscount{ChildID: it.ChildID, ClassID: it.ClassID}
	}

	// 1. Sibling discount: rank lines by descending base price. Ties break
	// on child then class id so the result is independent of input order.
	ranked := make([]int, len(items))
	for i := range ranked {
		ranked[i] = i
	}
	sort.SliceStable(ranked, func(a, b int) bool {
		ia, ib := items[ranked[a]], items[ranked[b]]
		if !ia.UnitPrice.Equal(ib.UnitPrice) {
			return ia.UnitPrice.GreaterThan(ib.UnitPrice)
		}
		if ia.ChildID != ib.ChildID {
			return ia.ChildID < ib.ChildID
		}
		return ia.ClassID < ib.ClassID
	})
	for rank, idx := range ranked {
		rate := siblingRate(rank + 1)
		if rate.IsZero() {
			continue
		}
		amt := items[idx].UnitPrice.Mul(rate).Round(2)
		b.Lines[idx].Sibling = amt
		b.SiblingTotal = b.SiblingTotal.Add(amt)
	}

	// 2. Scholarship: per line, on the post-sibling remainder. Family-wide
	// grants hit every line; child-specific grants only that child's lines.
	for i, it := range items {
		remaining := it.UnitPrice.Sub(b.Lines[i].Sibling)
		for _, g := range scholarships {
			if g.ChildID != nil && *g.ChildID != it.ChildID {
				continue
			}
			amt := remaining.Mul(g.Percentage).Div(decimal.NewFromInt(100)).Round(2)
			if amt.GreaterThan(remaining) {
				amt = remaining
			}
			b.Lines[i].Scholarship = b.Lines[i].Scholarship.Add(amt)
			remaining = remaining.Sub(amt)
		}
		b.ScholarshipTotal = b.ScholarshipTotal.Add(b.Lines[i].Scholarship)
	}

	remaining := b.Subtotal.Sub(b.SiblingTotal).Sub(b.ScholarshipTotal)

	// 3. Promo code, applied last against the order remainder.
	if promo.Code != nil {
		eligibleAgainst := remaining
		if policy.PromoAppliesPreDiscount {
			eligibleAgainst = b.Subtotal
		}
		if ok, reason := ValidatePromo(promo.Code, promo.UserUses, eligibleAgainst, items, now); !ok {
			b.PromoReason = reason
		} else {
			var amt decimal.Decimal
			switch promo.Code.Type {
			case models.DiscountTypePercentage:
				amt = eligibleAgainst.Mul(promo.Code.Value).Div(decimal.NewFromInt(100)).Round(2)
			case models.DiscountTypeFixedAmount:
				amt = promo.Code.Value
			}
			// Never drive the total negative.
			if amt.GreaterThan(remaining) {
				amt = remaining
			}
			b.PromoTotal = amt
			b.PromoApplied = true
			distributePromo(&b, items, amt)
		}
	}

	for i := range b.Lines {
		b.Lines[i].Total = b.Lines[i].Sibling.Add(b.Lines[i].Scholarship).Add(b.Lines[i].Promo)
	}
	b.DiscountTotal = b.SiblingTotal.Add(b.ScholarshipTotal).Add(b.PromoTotal)
	b.Total = b.Subtotal.Sub(b.DiscountTotal)
	return b
}

func siblingRate(rank int) decimal.Decimal {
	if rank <= 1 {
		return decimal.Zero
	}
	if r, ok := siblingRates[rank]; ok {
		return r
	}
	return siblingRateCap
}

// distributePromo allocates an order-level promo amount across lines in
// proportion to their post-sibling/scholarship remainders, pushing the cent
// remainder onto the last line so line totals still sum to the order total.
func distributePromo(b *Breakdown, items []CartItem, amt decimal.Decimal) {
	if amt.IsZero() || len(b.Lines) == 0 {
		return
	}
	base := b.Subtotal.Sub(b.SiblingTotal).Sub(b.ScholarshipTotal)
	if base.IsZero() {
		return
	}
	allocated := decimal.Zero
	last := len(b.Lines) - 1
	for i := range b.Lines {
		lineRemaining := items[i].UnitPrice.Sub(b.Lines[i].Sibling).Sub(b.Lines[i].Scholarship)
		if i == last {
			b.Lines[i].Promo = amt.Sub(allocated)
			break
		}
		share := amt.Mul(lineRemaining).Div(base).Round(2)
		if share.GreaterThan(lineRemaining) {
			share = lineRemaining
		}
		b.Lines[i].Promo = share
		allocated = allocated.Add(share)
	}
}

// ValidatePromo checks a promo code against the order. Returns false with a
// human-readable reason on the first failing rule.
func ValidatePromo(code *models.DiscountCode, userUses int, orderAmount decimal.Decimal, items []CartItem, now time.Time) (bool, string) {
	if !code.IsActive {
		return false, "code is not active"
	}
	if code.ValidFrom != nil && now.Before(*code.ValidFrom) {
		return false, "code is not yet valid"
	}
	if code.ValidUntil != nil && now.After(*code.ValidUntil) {
		return false, "code has expired"
	}
	if code.MaxUses != nil && code.CurrentUses >= *code.MaxUses {
		return false, "code has reached its usage limit"
	}
	if code.MaxUsesPerUser != nil && userUses >= *code.MaxUsesPerUser {
		return false, "you have already used this code"
	}
	if code.MinOrderAmount != nil && orderAmount.LessThan(*code.MinOrderAmount) {
		return false, fmt.Sprintf("order must be at least %s to use this code", code.MinOrderAmount.StringFixed(2))
	}
	if code.Program != "" {
		for _, it := range items {
			if it.Program != code.Program {
				return false, fmt.Sprintf("code only applies to the %s program", code.Program)
			}
		}
	}
	return true, ""
}
