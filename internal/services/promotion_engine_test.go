package services

import (
	"testing"
	"time"

	domain "github.com/pawpal/api/internal/domain"
)

func activePromotion(code string, kind domain.DiscountType, value float64) Promotion {
	return Promotion{
		ID:            "promo-" + code,
		Code:          code,
		DiscountType:  kind,
		DiscountValue: value,
		Rank:          domain.RankAll,
		Status:        domain.PromotionStatusActive,
	}
}

func TestComputeDiscount(t *testing.T) {
	capped := activePromotion("SAVE10", domain.DiscountTypePercent, 10)
	capped.MaxDiscountAmount = 15000

	cases := []struct {
		name  string
		promo Promotion
		base  int64
		want  int64
	}{
		{"percent capped", capped, 220000, 15000},
		{"percent under cap", capped, 100000, 10000},
		{"percent zero cap is uncapped", activePromotion("P", domain.DiscountTypePercent, 10), 1000000, 100000},
		{"percent rounds half up", activePromotion("P", domain.DiscountTypePercent, 12.5), 1004, 126},
		{"fixed", activePromotion("F", domain.DiscountTypeFixed, 30000), 220000, 30000},
		{"fixed never exceeds base", activePromotion("F", domain.DiscountTypeFixed, 30000), 20000, 20000},
		{"zero base", activePromotion("F", domain.DiscountTypeFixed, 30000), 0, 0},
		{"unknown type", activePromotion("X", "bogus", 10), 1000, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ComputeDiscount(tc.promo, tc.base); got != tc.want {
				t.Fatalf("ComputeDiscount() = %d, want %d", got, tc.want)
			}
		})
	}
}

func TestComputeDiscountNeverExceedsCap(t *testing.T) {
	promo := activePromotion("CAP", domain.DiscountTypePercent, 50)
	promo.MaxDiscountAmount = 25000
	for base := int64(0); base <= 2_000_000; base += 33_333 {
		if got := ComputeDiscount(promo, base); got > promo.MaxDiscountAmount || got < 0 {
			t.Fatalf("base %d: discount %d outside [0, %d]", base, got, promo.MaxDiscountAmount)
		}
	}
}

func TestSelectBestPicksLargestAndKeepsFirstOnTie(t *testing.T) {
	a := activePromotion("A", domain.DiscountTypeFixed, 10000)
	b := activePromotion("B", domain.DiscountTypeFixed, 20000)
	c := activePromotion("C", domain.DiscountTypeFixed, 20000)
	gold := activePromotion("GOLD", domain.DiscountTypeFixed, 90000)
	gold.Rank = "Gold"
	expired := activePromotion("OLD", domain.DiscountTypeFixed, 50000)
	expired.Status = domain.PromotionStatusExpired
	minimum := activePromotion("MIN", domain.DiscountTypeFixed, 60000)
	minimum.MinOrderAmount = 500000

	selection := SelectBest([]Promotion{a, b, c, gold, expired, minimum}, 200000, "Silver")
	if selection.Best == nil || selection.Best.Code != "B" {
		t.Fatalf("expected B as best, got %+v", selection.Best)
	}
	if selection.Amount != 20000 {
		t.Fatalf("expected amount 20000, got %d", selection.Amount)
	}
	codes := make([]string, 0, len(selection.Eligible))
	for _, candidate := range selection.Eligible {
		codes = append(codes, candidate.Promotion.Code)
	}
	want := []string{"B", "C", "A"}
	if len(codes) != len(want) {
		t.Fatalf("eligible = %v, want %v", codes, want)
	}
	for i := range want {
		if codes[i] != want[i] {
			t.Fatalf("eligible = %v, want %v", codes, want)
		}
	}
}

func TestSelectBestRankMatchIsExact(t *testing.T) {
	gold := activePromotion("GOLD", domain.DiscountTypeFixed, 1000)
	gold.Rank = "Gold"

	if sel := SelectBest([]Promotion{gold}, 10000, "Platinum"); sel.Best != nil {
		t.Fatalf("expected no match for higher rank, got %s", sel.Best.Code)
	}
	if sel := SelectBest([]Promotion{gold}, 10000, "gold"); sel.Best == nil {
		t.Fatalf("expected case-insensitive match")
	}
}

func TestSelectBestWithDiscountBase(t *testing.T) {
	promo := activePromotion("SAVE10", domain.DiscountTypePercent, 10)
	promo.MaxDiscountAmount = 15000
	promo.MinOrderAmount = 100000

	sel := SelectBest([]Promotion{promo}, 200000, "Bronze", WithDiscountBase(220000))
	if sel.Amount != 15000 {
		t.Fatalf("expected capped 15000 on total base, got %d", sel.Amount)
	}

	small := SelectBest([]Promotion{promo}, 50000, "Bronze", WithDiscountBase(150000))
	if small.Best != nil {
		t.Fatalf("minimum order must be checked against subtotal")
	}
}

func TestSelectBestEmpty(t *testing.T) {
	sel := SelectBest(nil, 1000, "")
	if sel.Best != nil || sel.Amount != 0 || len(sel.Eligible) != 0 {
		t.Fatalf("expected empty selection, got %+v", sel)
	}
}

func TestPromotionStatusAt(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	base := Promotion{
		StartDate: now.Add(-time.Hour),
		EndDate:   now.Add(time.Hour),
		Status:    domain.PromotionStatusExpired,
	}

	if got := PromotionStatusAt(base, now); got != domain.PromotionStatusActive {
		t.Fatalf("stored status must be ignored, got %s", got)
	}

	upcoming := base
	upcoming.StartDate = now.Add(time.Minute)
	if got := PromotionStatusAt(upcoming, now); got != domain.PromotionStatusUpcoming {
		t.Fatalf("expected upcoming, got %s", got)
	}

	ended := base
	ended.EndDate = now.Add(-time.Minute)
	if got := PromotionStatusAt(ended, now); got != domain.PromotionStatusExpired {
		t.Fatalf("expected expired, got %s", got)
	}

	exhausted := base
	exhausted.UsageLimit = 5
	exhausted.UsageCount = 5
	if got := PromotionStatusAt(exhausted, now); got != domain.PromotionStatusExpired {
		t.Fatalf("expected expired when usage limit reached, got %s", got)
	}

	unlimited := base
	unlimited.UsageCount = 1000
	if got := PromotionStatusAt(unlimited, now); got != domain.PromotionStatusActive {
		t.Fatalf("expected active for unlimited usage, got %s", got)
	}
}
