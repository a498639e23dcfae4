package services

import (
	"math"
	"sort"
	"strings"
	"time"

	domain "github.com/pawpal/api/internal/domain"
)

// PromotionCandidate pairs an eligible promotion with the discount it yields.
type PromotionCandidate struct {
	Promotion Promotion
	Amount    int64
}

// PromotionSelection is the result of SelectBest. Best is nil when nothing applies.
type PromotionSelection struct {
	Best     *Promotion
	Amount   int64
	Eligible []PromotionCandidate
}

type selectConfig struct {
	base    int64
	hasBase bool
}

// SelectOption customises SelectBest.
type SelectOption func(*selectConfig)

// WithDiscountBase computes discounts against amount instead of the subtotal. Checkout passes the
// order total (subtotal plus shipping) so previews match what is charged.
func WithDiscountBase(amount int64) SelectOption {
	return func(cfg *selectConfig) {
		cfg.base = amount
		cfg.hasBase = true
	}
}

// ComputeDiscount returns the discount the promotion grants on base. Percent discounts honour the
// cap only when MaxDiscountAmount is positive; zero means uncapped.
func ComputeDiscount(promotion Promotion, base int64) int64 {
	if base <= 0 || promotion.DiscountValue <= 0 {
		return 0
	}

	var amount int64
	switch promotion.DiscountType {
	case domain.DiscountTypeFixed:
		amount = roundHalfUp(promotion.DiscountValue)
	case domain.DiscountTypePercent:
		amount = roundHalfUp(float64(base) * promotion.DiscountValue / 100)
		if promotion.MaxDiscountAmount > 0 && amount > promotion.MaxDiscountAmount {
			amount = promotion.MaxDiscountAmount
		}
	default:
		return 0
	}

	if amount > base {
		amount = base
	}
	if amount < 0 {
		return 0
	}
	return amount
}

// SelectBest filters promotions to those usable for subtotal and rank, and returns the largest
// discount. Ties keep the first promotion encountered. Status must already reflect the current
// time; see PromotionStatusAt.
func SelectBest(promotions []Promotion, subtotal int64, rank string, opts ...SelectOption) PromotionSelection {
	cfg := selectConfig{}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	base := subtotal
	if cfg.hasBase {
		base = cfg.base
	}

	eligible := make([]PromotionCandidate, 0, len(promotions))
	for _, promotion := range promotions {
		if !isEligible(promotion, subtotal, rank) {
			continue
		}
		amount := ComputeDiscount(promotion, base)
		if amount <= 0 {
			continue
		}
		eligible = append(eligible, PromotionCandidate{Promotion: promotion, Amount: amount})
	}

	sort.SliceStable(eligible, func(i, j int) bool {
		return eligible[i].Amount > eligible[j].Amount
	})

	selection := PromotionSelection{Eligible: eligible}
	if len(eligible) > 0 {
		best := eligible[0].Promotion
		selection.Best = &best
		selection.Amount = eligible[0].Amount
	}
	return selection
}

// PromotionStatusAt derives the promotion status from its window and usage counters.
func PromotionStatusAt(promotion Promotion, now time.Time) domain.PromotionStatus {
	switch {
	case !promotion.StartDate.IsZero() && now.Before(promotion.StartDate):
		return domain.PromotionStatusUpcoming
	case !promotion.EndDate.IsZero() && now.After(promotion.EndDate):
		return domain.PromotionStatusExpired
	case promotion.UsageLimit > 0 && promotion.UsageCount >= promotion.UsageLimit:
		return domain.PromotionStatusExpired
	default:
		return domain.PromotionStatusActive
	}
}

// withDerivedStatus returns a copy of promotion whose Status reflects now.
func withDerivedStatus(promotion Promotion, now time.Time) Promotion {
	promotion.Status = PromotionStatusAt(promotion, now)
	return promotion
}

func isEligible(promotion Promotion, subtotal int64, rank string) bool {
	if promotion.Status != domain.PromotionStatusActive {
		return false
	}
	if subtotal < promotion.MinOrderAmount {
		return false
	}
	return rankMatches(promotion.Rank, rank)
}

// rankMatches compares exactly; membership ranks are not ordered.
func rankMatches(promotionRank, callerRank string) bool {
	promotionRank = strings.TrimSpace(promotionRank)
	if promotionRank == "" || strings.EqualFold(promotionRank, domain.RankAll) {
		return true
	}
	return strings.EqualFold(promotionRank, strings.TrimSpace(callerRank))
}

func roundHalfUp(value float64) int64 {
	if value <= 0 {
		return 0
	}
	return int64(math.Floor(value + 0.5))
}
