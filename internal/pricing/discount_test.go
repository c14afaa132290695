package pricing

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"sportsreg_app/internal/models"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func cart(prices ...string) []CartItem {
	items := make([]CartItem, len(prices))
	for i, p := range prices {
		items[i] = CartItem{
			ChildID:   uint(i + 1),
			ClassID:   uint(100 + i),
			Program:   "soccer",
			UnitPrice: dec(p),
		}
	}
	return items
}

func TestComputeDiscountsSiblingLadder(t *testing.T) {
	now := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name         string
		prices       []string
		wantSibling  string
		wantTotal    string
		wantPerLine  []string // in input order
	}{
		{
			name:        "single child no discount",
			prices:      []string{"200"},
			wantSibling: "0",
			wantTotal:   "200",
			wantPerLine: []string{"0"},
		},
		{
			name:        "two children",
			prices:      []string{"200", "150"},
			wantSibling: "37.5",
			wantTotal:   "312.5",
			wantPerLine: []string{"0", "37.5"},
		},
		{
			name:        "three children",
			prices:      []string{"200", "150", "100"},
			wantSibling: "72.5",
			wantTotal:   "377.5",
			wantPerLine: []string{"0", "37.5", "35"},
		},
		{
			name:        "fourth child gets the capped rate",
			prices:      []string{"200", "150", "100", "50"},
			wantSibling: "95",
			wantTotal:   "405",
			wantPerLine: []string{"0", "37.5", "35", "22.5"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := ComputeDiscounts(cart(tt.prices...), nil, PromoContext{}, now, Policy{})
			if !b.SiblingTotal.Equal(dec(tt.wantSibling)) {
				t.Errorf("SiblingTotal = %s; want %s", b.SiblingTotal, tt.wantSibling)
			}
			if !b.Total.Equal(dec(tt.wantTotal)) {
				t.Errorf("Total = %s; want %s", b.Total, tt.wantTotal)
			}
			for i, want := range tt.wantPerLine {
				if !b.Lines[i].Sibling.Equal(dec(want)) {
					t.Errorf("line %d sibling = %s; want %s", i, b.Lines[i].Sibling, want)
				}
			}
		})
	}
}

func TestComputeDiscountsOrderIndependence(t *testing.T) {
	now := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	base := cart("100", "200", "150")

	orders := [][]int{
		{0, 1, 2},
		{2, 1, 0},
		{1, 0, 2},
	}

	type lineKey struct{ child, class uint }
	var wantTotal decimal.Decimal
	var wantByLine map[lineKey]decimal.Decimal

	for i, perm := range orders {
		items := make([]CartItem, len(base))
		for j, idx := range perm {
			items[j] = base[idx]
		}
		b := ComputeDiscounts(items, nil, PromoContext{}, now, Policy{})

		byLine := make(map[lineKey]decimal.Decimal)
		for _, l := range b.Lines {
			byLine[lineKey{l.ChildID, l.ClassID}] = l.Total
		}

		if i == 0 {
			wantTotal = b.Total
			wantByLine = byLine
			continue
		}
		if !b.Total.Equal(wantTotal) {
			t.Errorf("permutation %v: Total = %s; want %s", perm, b.Total, wantTotal)
		}
		for k, want := range wantByLine {
			if !byLine[k].Equal(want) {
				t.Errorf("permutation %v: line %v discount = %s; want %s", perm, k, byLine[k], want)
			}
		}
	}
}

func TestComputeDiscountsScholarship(t *testing.T) {
	now := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	childTwo := uint(2)

	tests := []struct {
		name            string
		prices          []string
		grants          []ScholarshipGrant
		wantScholarship string
		wantTotal       string
	}{
		{
			name:            "family wide applies after sibling discount",
			prices:          []string{"200", "150"},
			grants:          []ScholarshipGrant{{Percentage: dec("25")}},
			wantScholarship: "78.13", // 200*0.25 + 112.50*0.25 (rounded)
			wantTotal:       "234.37",
		},
		{
			name:            "child specific only hits that child",
			prices:          []string{"200", "150"},
			grants:          []ScholarshipGrant{{ChildID: &childTwo, Percentage: dec("50")}},
			wantScholarship: "56.25", // (150-37.50)*0.50
			wantTotal:       "256.25",
		},
		{
			name:   "full scholarship never goes negative",
			prices: []string{"100"},
			grants: []ScholarshipGrant{
				{Percentage: dec("80")},
				{Percentage: dec("80")},
			},
			wantScholarship: "96", // 80 then 80% of the remaining 20
			wantTotal:       "4",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := ComputeDiscounts(cart(tt.prices...), tt.grants, PromoContext{}, now, Policy{})
			if !b.ScholarshipTotal.Equal(dec(tt.wantScholarship)) {
				t.Errorf("ScholarshipTotal = %s; want %s", b.ScholarshipTotal, tt.wantScholarship)
			}
			if !b.Total.Equal(dec(tt.wantTotal)) {
				t.Errorf("Total = %s; want %s", b.Total, tt.wantTotal)
			}
			if b.Total.IsNegative() {
				t.Errorf("Total is negative: %s", b.Total)
			}
		})
	}
}

func TestComputeDiscountsPromo(t *testing.T) {
	now := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)

	percent := &models.DiscountCode{
		Code: "SPRING10", Type: models.DiscountTypePercentage, Value: dec("10"), IsActive: true,
	}
	fixed := &models.DiscountCode{
		Code: "FLAT150", Type: models.DiscountTypeFixedAmount, Value: dec("150"), IsActive: true,
	}

	t.Run("percentage applies to the post-discount remainder", func(t *testing.T) {
		b := ComputeDiscounts(cart("200", "150"), nil, PromoContext{Code: percent}, now, Policy{})
		// remainder 312.50, 10% = 31.25
		if !b.PromoTotal.Equal(dec("31.25")) {
			t.Errorf("PromoTotal = %s; want 31.25", b.PromoTotal)
		}
		if !b.Total.Equal(dec("281.25")) {
			t.Errorf("Total = %s; want 281.25", b.Total)
		}
	})

	t.Run("percentage on pre-discount subtotal when the policy says so", func(t *testing.T) {
		b := ComputeDiscounts(cart("200", "150"), nil, PromoContext{Code: percent}, now, Policy{PromoAppliesPreDiscount: true})
		// 10% of 350 = 35
		if !b.PromoTotal.Equal(dec("35")) {
			t.Errorf("PromoTotal = %s; want 35", b.PromoTotal)
		}
	})

	t.Run("fixed amount caps at the remainder", func(t *testing.T) {
		b := ComputeDiscounts(cart("100"), nil, PromoContext{Code: fixed}, now, Policy{})
		if !b.PromoTotal.Equal(dec("100")) {
			t.Errorf("PromoTotal = %s; want 100", b.PromoTotal)
		}
		if !b.Total.IsZero() {
			t.Errorf("Total = %s; want 0", b.Total)
		}
	})

	t.Run("invalid promo reports a reason and changes nothing", func(t *testing.T) {
		expired := &models.DiscountCode{
			Code: "OLD", Type: models.DiscountTypePercentage, Value: dec("10"),
			IsActive: true, ValidUntil: timePtr(now.AddDate(0, -1, 0)),
		}
		b := ComputeDiscounts(cart("100"), nil, PromoContext{Code: expired}, now, Policy{})
		if b.PromoApplied {
			t.Error("PromoApplied = true for an expired code")
		}
		if b.PromoReason == "" {
			t.Error("PromoReason is empty")
		}
		if !b.Total.Equal(dec("100")) {
			t.Errorf("Total = %s; want 100", b.Total)
		}
	})

	t.Run("promo allocation sums to the promo total", func(t *testing.T) {
		b := ComputeDiscounts(cart("99.95", "66.65", "33.35"), nil, PromoContext{Code: percent}, now, Policy{})
		sum := decimal.Zero
		for _, l := range b.Lines {
			sum = sum.Add(l.Promo)
		}
		if !sum.Equal(b.PromoTotal) {
			t.Errorf("line promo sum = %s; PromoTotal = %s", sum, b.PromoTotal)
		}
	})
}

func TestValidatePromo(t *testing.T) {
	now := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	one := 1
	hundred := dec("100")

	tests := []struct {
		name     string
		code     models.DiscountCode
		userUses int
		amount   string
		items    []CartItem
		wantOK   bool
	}{
		{
			name:   "active unrestricted code",
			code:   models.DiscountCode{IsActive: true},
			amount: "50",
			wantOK: true,
		},
		{
			name:   "inactive code",
			code:   models.DiscountCode{IsActive: false},
			amount: "50",
			wantOK: false,
		},
		{
			name: "not yet valid",
			code: models.DiscountCode{
				IsActive: true, ValidFrom: timePtr(now.AddDate(0, 1, 0)),
			},
			amount: "50",
			wantOK: false,
		},
		{
			name: "expired",
			code: models.DiscountCode{
				IsActive: true, ValidUntil: timePtr(now.AddDate(0, -1, 0)),
			},
			amount: "50",
			wantOK: false,
		},
		{
			name: "global cap reached",
			code: models.DiscountCode{
				IsActive: true, MaxUses: &one, CurrentUses: 1,
			},
			amount: "50",
			wantOK: false,
		},
		{
			name: "user already redeemed",
			code: models.DiscountCode{
				IsActive: true, MaxUsesPerUser: &one,
			},
			userUses: 1,
			amount:   "50",
			wantOK:   false,
		},
		{
			name: "below minimum order",
			code: models.DiscountCode{
				IsActive: true, MinOrderAmount: &hundred,
			},
			amount: "50",
			wantOK: false,
		},
		{
			name: "program scoped code with matching cart",
			code: models.DiscountCode{
				IsActive: true, Program: "soccer",
			},
			amount: "50",
			items:  cart("50"),
			wantOK: true,
		},
		{
			name: "program scoped code with mixed cart",
			code: models.DiscountCode{
				IsActive: true, Program: "swim",
			},
			amount: "50",
			items:  cart("50"),
			wantOK: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ok, reason := ValidatePromo(&tt.code, tt.userUses, dec(tt.amount), tt.items, now)
			if ok != tt.wantOK {
				t.Errorf("ValidatePromo() = %v (%q); want %v", ok, reason, tt.wantOK)
			}
			if !ok && reason == "" {
				t.Error("rejection without a reason")
			}
		})
	}
}

func timePtr(t time.Time) *time.Time { return &t }
