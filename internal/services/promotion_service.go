package services

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/pawpal/api/internal/domain"
	"github.com/pawpal/api/internal/repositories"
)

const (
	promotionEventCreated = "promotion.created"
	promotionEventUpdated = "promotion.updated"
	promotionEventDeleted = "promotion.deleted"

	promotionPreviewPageSize = 200
)

var promotionCodePattern = regexp.MustCompile(`^[A-Z0-9_-]{3,32}$`)

// PromotionServiceDeps bundles dependencies required to construct a PromotionService implementation.
type PromotionServiceDeps struct {
	Promotions     repositories.PromotionRepository
	// PromotionUsage hides promotions the caller already redeemed from previews.
	PromotionUsage repositories.PromotionUsageRepository
	Directory      Directory
	UnitOfWork     repositories.UnitOfWork
	Clock          func() time.Time
	IDGenerator    func() string
	Logger         func(ctx context.Context, event string, fields map[string]any)
}

type promotionService struct {
	repo       repositories.PromotionRepository
	usage      repositories.PromotionUsageRepository
	directory  Directory
	unitOfWork repositories.UnitOfWork
	clock      func() time.Time
	newID      func() string
	logger     func(context.Context, string, map[string]any)
}

// NewPromotionService wires a PromotionService backed by the provided repositories.
func NewPromotionService(deps PromotionServiceDeps) (PromotionService, error) {
	if deps.Promotions == nil {
		return nil, errors.New("promotion service: promotion repository is required")
	}
	unit := deps.UnitOfWork
	if unit == nil {
		unit = noopUnitOfWork{}
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string { return ulid.Make().String() }
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &promotionService{
		repo:       deps.Promotions,
		usage:      deps.PromotionUsage,
		directory:  deps.Directory,
		unitOfWork: unit,
		clock:      func() time.Time { return clock().UTC() },
		newID:      idGen,
		logger:     logger,
	}, nil
}

func (s *promotionService) ListPromotions(ctx context.Context, filter PromotionListFilter) (domain.CursorPage[Promotion], error) {
	page, err := s.repo.List(ctx, filter)
	if err != nil {
		return domain.CursorPage[Promotion]{}, mapRepositoryError(err)
	}
	now := s.clock()
	for i := range page.Items {
		page.Items[i] = withDerivedStatus(page.Items[i], now)
	}
	return page, nil
}

func (s *promotionService) GetPromotion(ctx context.Context, promotionID string) (Promotion, error) {
	promotionID = strings.TrimSpace(promotionID)
	if promotionID == "" {
		return Promotion{}, validationError("promotion id is required")
	}
	promotion, err := s.repo.FindByID(ctx, promotionID)
	if err != nil {
		return Promotion{}, mapRepositoryError(err)
	}
	return withDerivedStatus(promotion, s.clock()), nil
}

func (s *promotionService) CreatePromotion(ctx context.Context, cmd UpsertPromotionCommand) (Promotion, error) {
	promotion, err := buildPromotion(cmd)
	if err != nil {
		return Promotion{}, err
	}
	now := s.clock()
	promotion.ID = s.newID()
	promotion.UsageCount = 0
	promotion.CreatedAt = now
	promotion.UpdatedAt = now
	promotion = withDerivedStatus(promotion, now)

	if err := s.repo.Insert(ctx, promotion); err != nil {
		mapped := mapRepositoryError(err)
		if errors.Is(mapped, ErrConflict) {
			return Promotion{}, fmt.Errorf("%w: promotion code %s already exists", ErrConflict, promotion.Code)
		}
		return Promotion{}, mapped
	}
	s.logger(ctx, promotionEventCreated, map[string]any{"promotionId": promotion.ID, "code": promotion.Code})
	return promotion, nil
}

func (s *promotionService) UpdatePromotion(ctx context.Context, cmd UpsertPromotionCommand) (Promotion, error) {
	promotionID := strings.TrimSpace(cmd.PromotionID)
	if promotionID == "" {
		return Promotion{}, validationError("promotion id is required")
	}
	next, err := buildPromotion(cmd)
	if err != nil {
		return Promotion{}, err
	}

	now := s.clock()
	var updated Promotion
	err = s.runInTx(ctx, func(txCtx context.Context) error {
		current, err := s.repo.FindByID(txCtx, promotionID)
		if err != nil {
			return mapRepositoryError(err)
		}
		if current.Code != next.Code {
			return validationError("promotion code cannot be changed")
		}
		if next.UsageLimit > 0 && next.UsageLimit < current.UsageCount {
			return validationError("usageLimit %d is below current usage %d", next.UsageLimit, current.UsageCount)
		}
		next.ID = current.ID
		next.UsageCount = current.UsageCount
		next.CreatedAt = current.CreatedAt
		next.UpdatedAt = now
		updated = withDerivedStatus(next, now)
		return mapRepositoryError(s.repo.Update(txCtx, updated))
	})
	if err != nil {
		return Promotion{}, err
	}
	s.logger(ctx, promotionEventUpdated, map[string]any{"promotionId": updated.ID, "code": updated.Code})
	return updated, nil
}

func (s *promotionService) DeletePromotion(ctx context.Context, promotionID string) error {
	promotionID = strings.TrimSpace(promotionID)
	if promotionID == "" {
		return validationError("promotion id is required")
	}
	if err := s.repo.Delete(ctx, promotionID); err != nil {
		return mapRepositoryError(err)
	}
	s.logger(ctx, promotionEventDeleted, map[string]any{"promotionId": promotionID})
	return nil
}

// EvaluatePromotions previews the discounts available to the caller using the checkout base of
// subtotal plus shipping. It has no side effects.
func (s *promotionService) EvaluatePromotions(ctx context.Context, cmd EvaluatePromotionsCommand) (PromotionSelection, error) {
	if cmd.Subtotal < 0 || cmd.ShippingFee < 0 {
		return PromotionSelection{}, validationError("amounts must not be negative")
	}

	rank := strings.TrimSpace(cmd.Rank)
	userID := strings.TrimSpace(cmd.UserID)
	if userID == "" || userID == domain.GuestUserID {
		return PromotionSelection{Eligible: []PromotionCandidate{}}, nil
	}
	if rank == "" && s.directory != nil {
		user, err := s.directory.GetUser(ctx, userID)
		if err != nil {
			return PromotionSelection{}, directoryError("user", userID, err)
		}
		rank = user.Rank
	}

	now := s.clock()
	var candidates []Promotion
	filter := PromotionListFilter{Pagination: domain.Pagination{PageSize: promotionPreviewPageSize}}
	for {
		page, err := s.repo.List(ctx, filter)
		if err != nil {
			return PromotionSelection{}, mapRepositoryError(err)
		}
		for _, promotion := range page.Items {
			promotion = withDerivedStatus(promotion, now)
			if promotion.Status == domain.PromotionStatusActive {
				redeemed, err := s.redeemed(ctx, promotion.ID, userID)
				if err != nil {
					return PromotionSelection{}, err
				}
				if redeemed {
					continue
				}
			}
			candidates = append(candidates, promotion)
		}
		if page.NextPageToken == "" {
			break
		}
		filter.Pagination.PageToken = page.NextPageToken
	}

	return SelectBest(candidates, cmd.Subtotal, rank, WithDiscountBase(cmd.Subtotal+cmd.ShippingFee)), nil
}

func (s *promotionService) redeemed(ctx context.Context, promotionID, userID string) (bool, error) {
	if s.usage == nil {
		return false, nil
	}
	_, err := s.usage.Find(ctx, promotionID, userID)
	switch {
	case err == nil:
		return true, nil
	case isNotFound(err):
		return false, nil
	default:
		return false, mapRepositoryError(err)
	}
}

func (s *promotionService) runInTx(ctx context.Context, fn func(context.Context) error) error {
	if s.unitOfWork == nil {
		return fn(ctx)
	}
	return mapRepositoryError(s.unitOfWork.RunInTx(ctx, fn))
}

func buildPromotion(cmd UpsertPromotionCommand) (Promotion, error) {
	code := strings.ToUpper(strings.TrimSpace(cmd.Code))
	if !promotionCodePattern.MatchString(code) {
		return Promotion{}, validationError("code must be 3-32 characters of A-Z, 0-9, '-' or '_'")
	}

	discountType := domain.DiscountType(strings.ToLower(strings.TrimSpace(string(cmd.DiscountType))))
	switch discountType {
	case domain.DiscountTypeFixed, domain.DiscountTypePercent:
	default:
		return Promotion{}, validationError("unsupported discount type %q", cmd.DiscountType)
	}
	if cmd.DiscountValue <= 0 {
		return Promotion{}, validationError("discountValue must be positive")
	}
	if discountType == domain.DiscountTypePercent && cmd.DiscountValue > 100 {
		return Promotion{}, validationError("percent discount cannot exceed 100")
	}
	if cmd.MinOrderAmount < 0 || cmd.MaxDiscountAmount < 0 || cmd.UsageLimit < 0 {
		return Promotion{}, validationError("amounts and limits must not be negative")
	}
	if cmd.StartDate.IsZero() || cmd.EndDate.IsZero() {
		return Promotion{}, validationError("startDate and endDate are required")
	}
	if !cmd.StartDate.Before(cmd.EndDate) {
		return Promotion{}, validationError("startDate must be before endDate")
	}

	rank := strings.TrimSpace(cmd.Rank)
	if rank == "" {
		rank = domain.RankAll
	}

	return Promotion{
		Code:              code,
		Description:       strings.TrimSpace(cmd.Description),
		DiscountType:      discountType,
		DiscountValue:     cmd.DiscountValue,
		MinOrderAmount:    cmd.MinOrderAmount,
		MaxDiscountAmount: cmd.MaxDiscountAmount,
		StartDate:         cmd.StartDate.UTC(),
		EndDate:           cmd.EndDate.UTC(),
		UsageLimit:        cmd.UsageLimit,
		Rank:              rank,
	}, nil
}
