package services

import (
	"time"

	domain "github.com/pawpal/api/internal/domain"
)

// perKgRate is added per kilogram of pet weight for per_kg solutions.
const perKgRate = 10000

// PriceBookingPet computes the subtotal charged for one pet over [start, end). Fractional
// quantities round half-up.
func PriceBookingPet(solution Solution, resource Resource, pet Pet, start, end time.Time) int64 {
	duration := end.Sub(start)
	hours := duration.Hours()
	if hours < 1 {
		hours = 1
	}

	var subtotal int64
	switch solution.PricingType {
	case domain.PricingPerHour:
		subtotal = roundHalfUp(hours * float64(solution.Price))
	case domain.PricingPerDay:
		days := duration.Hours() / 24
		if days < 1 {
			days = 1
		}
		subtotal = roundHalfUp(days * float64(solution.Price))
	case domain.PricingPerKg:
		subtotal = solution.Price + roundHalfUp(pet.Weight*perKgRate)
	default:
		subtotal = solution.Price
	}

	if resource.Tier == domain.ResourceTierPremium && resource.Upcharge > 0 {
		if solution.PricingType == domain.PricingPerHour {
			subtotal += roundHalfUp(hours * float64(resource.Upcharge))
		} else {
			subtotal += resource.Upcharge
		}
	}

	if subtotal < 0 {
		return 0
	}
	return subtotal
}
