package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	domain "github.com/pawpal/api/internal/domain"
	pfirestore "github.com/pawpal/api/internal/platform/firestore"
	"github.com/pawpal/api/internal/repositories"
)

const (
	resourcesCollection = "resources"
	solutionsCollection = "solutions"
)

// ResourceRepository reads bookable resources maintained by the catalogue tooling.
type ResourceRepository struct {
	base *pfirestore.BaseRepository[resourceDocument]
}

var _ repositories.ResourceRepository = (*ResourceRepository)(nil)

// NewResourceRepository constructs a Firestore-backed resource repository.
func NewResourceRepository(provider *pfirestore.Provider) (*ResourceRepository, error) {
	if provider == nil {
		return nil, errors.New("resource repository: firestore provider is required")
	}
	return &ResourceRepository{base: pfirestore.NewBaseRepository[resourceDocument](provider, resourcesCollection)}, nil
}

// FindByID loads a resource.
func (r *ResourceRepository) FindByID(ctx context.Context, resourceID string) (domain.Resource, error) {
	doc, err := r.base.Get(ctx, strings.TrimSpace(resourceID))
	if err != nil {
		return domain.Resource{}, err
	}
	days := make([]time.Weekday, 0, len(doc.Data.AvailableDays))
	for _, day := range doc.Data.AvailableDays {
		if day >= 0 && day <= 6 {
			days = append(days, time.Weekday(day))
		}
	}
	return domain.Resource{
		ID:            doc.ID,
		SolutionID:    doc.Data.SolutionID,
		Name:          doc.Data.Name,
		Capacity:      doc.Data.Capacity,
		Location:      doc.Data.Location,
		AvailableDays: days,
		StartTime:     doc.Data.StartTime,
		EndTime:       doc.Data.EndTime,
		Tier:          domain.ResourceTier(doc.Data.Tier),
		Upcharge:      doc.Data.Upcharge,
	}, nil
}

// SolutionRepository reads bookable solutions.
type SolutionRepository struct {
	base *pfirestore.BaseRepository[solutionDocument]
}

var _ repositories.SolutionRepository = (*SolutionRepository)(nil)

// NewSolutionRepository constructs a Firestore-backed solution repository.
func NewSolutionRepository(provider *pfirestore.Provider) (*SolutionRepository, error) {
	if provider == nil {
		return nil, errors.New("solution repository: firestore provider is required")
	}
	return &SolutionRepository{base: pfirestore.NewBaseRepository[solutionDocument](provider, solutionsCollection)}, nil
}

// FindByID loads a solution.
func (r *SolutionRepository) FindByID(ctx context.Context, solutionID string) (domain.Solution, error) {
	doc, err := r.base.Get(ctx, strings.TrimSpace(solutionID))
	if err != nil {
		return domain.Solution{}, err
	}
	return domain.Solution{
		ID:          doc.ID,
		Name:        doc.Data.Name,
		Type:        doc.Data.Type,
		PricingType: domain.PricingType(doc.Data.PricingType),
		Price:       doc.Data.Price,
		Duration:    doc.Data.Duration,
	}, nil
}

type resourceDocument struct {
	SolutionID    string `firestore:"solutionId"`
	Name          string `firestore:"name"`
	Capacity      int    `firestore:"capacity"`
	Location      string `firestore:"location"`
	AvailableDays []int  `firestore:"availableDays"`
	StartTime     string `firestore:"startTime"`
	EndTime       string `firestore:"endTime"`
	Tier          string `firestore:"tier"`
	Upcharge      int64  `firestore:"upcharge"`
}

type solutionDocument struct {
	Name        string `firestore:"name"`
	Type        string `firestore:"type"`
	PricingType string `firestore:"pricingType"`
	Price       int64  `firestore:"price"`
	// Duration is in minutes.
	Duration int `firestore:"duration"`
}
