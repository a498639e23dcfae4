package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/pawpal/api/internal/domain"
	pfirestore "github.com/pawpal/api/internal/platform/firestore"
	"github.com/pawpal/api/internal/repositories"
)

const (
	promotionsCollection     = "promotions"
	promotionCodesCollection = "promotionCodes"
	promotionUsageCollection = "promotionUsages"
)

// PromotionRepository stores promotions keyed by ID with a code index document that enforces
// code uniqueness.
type PromotionRepository struct {
	base  *pfirestore.BaseRepository[promotionDocument]
	codes *pfirestore.BaseRepository[promotionCodeDocument]
	uow   *pfirestore.UnitOfWork
	now   func() time.Time
}

var _ repositories.PromotionRepository = (*PromotionRepository)(nil)

// NewPromotionRepository constructs a Firestore-backed promotion repository.
func NewPromotionRepository(provider *pfirestore.Provider) (*PromotionRepository, error) {
	if provider == nil {
		return nil, errors.New("promotion repository: firestore provider is required")
	}
	return &PromotionRepository{
		base:  pfirestore.NewBaseRepository[promotionDocument](provider, promotionsCollection),
		codes: pfirestore.NewBaseRepository[promotionCodeDocument](provider, promotionCodesCollection),
		uow:   pfirestore.NewUnitOfWork(provider),
		now:   time.Now,
	}, nil
}

// Insert creates the promotion and claims its code. A taken code yields a conflict.
func (r *PromotionRepository) Insert(ctx context.Context, promotion domain.Promotion) error {
	id := strings.TrimSpace(promotion.ID)
	code := normalizeCode(promotion.Code)
	if id == "" || code == "" {
		return errors.New("promotion repository: id and code are required")
	}
	return r.uow.RunInTx(ctx, func(ctx context.Context) error {
		if err := r.codes.Create(ctx, code, promotionCodeDocument{PromotionID: id}); err != nil {
			return err
		}
		return r.base.Create(ctx, id, encodePromotion(promotion))
	})
}

// Update overwrites the promotion. The code is immutable and is not re-indexed.
func (r *PromotionRepository) Update(ctx context.Context, promotion domain.Promotion) error {
	id := strings.TrimSpace(promotion.ID)
	if id == "" {
		return errors.New("promotion repository: promotion id is required")
	}
	return r.base.Set(ctx, id, encodePromotion(promotion))
}

// Delete removes the promotion and releases its code.
func (r *PromotionRepository) Delete(ctx context.Context, promotionID string) error {
	promotionID = strings.TrimSpace(promotionID)
	return r.uow.RunInTx(ctx, func(ctx context.Context) error {
		doc, err := r.base.Get(ctx, promotionID)
		if err != nil {
			return err
		}
		if err := r.base.Delete(ctx, promotionID, true); err != nil {
			return err
		}
		return r.codes.Delete(ctx, normalizeCode(doc.Data.Code), false)
	})
}

// FindByID loads a promotion.
func (r *PromotionRepository) FindByID(ctx context.Context, promotionID string) (domain.Promotion, error) {
	doc, err := r.base.Get(ctx, strings.TrimSpace(promotionID))
	if err != nil {
		return domain.Promotion{}, err
	}
	return decodePromotion(doc.ID, doc.Data), nil
}

// FindByCode resolves the code index and loads the promotion. Lookups are case-insensitive.
func (r *PromotionRepository) FindByCode(ctx context.Context, code string) (domain.Promotion, error) {
	code = normalizeCode(code)
	if code == "" {
		return domain.Promotion{}, errors.New("promotion repository: code is required")
	}
	index, err := r.codes.Get(ctx, code)
	if err != nil {
		return domain.Promotion{}, err
	}
	return r.FindByID(ctx, index.Data.PromotionID)
}

// List returns promotions newest first.
func (r *PromotionRepository) List(ctx context.Context, filter repositories.PromotionListFilter) (domain.CursorPage[domain.Promotion], error) {
	limit, fetch := pageWindow(filter.Pagination.PageSize)
	var cursorErr error
	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		q = q.OrderBy("createdAt", firestore.Desc).OrderBy(firestore.DocumentID, firestore.Desc)
		q, cursorErr = applyCreatedCursor(q, strings.TrimSpace(filter.Pagination.PageToken))
		return q.Limit(fetch)
	})
	if cursorErr != nil {
		return domain.CursorPage[domain.Promotion]{}, cursorErr
	}
	if err != nil {
		return domain.CursorPage[domain.Promotion]{}, err
	}

	page := domain.CursorPage[domain.Promotion]{Items: make([]domain.Promotion, 0, min(len(docs), limit))}
	for i, doc := range docs {
		if i == limit {
			last := docs[limit-1]
			token, err := encodeCreatedCursor(last.Data.CreatedAt, last.ID)
			if err != nil {
				return domain.CursorPage[domain.Promotion]{}, err
			}
			page.NextPageToken = token
			break
		}
		page.Items = append(page.Items, decodePromotion(doc.ID, doc.Data))
	}
	return page, nil
}

// AdjustUsageCount increments usageCount server-side. Callers floor the counter at zero.
func (r *PromotionRepository) AdjustUsageCount(ctx context.Context, promotionID string, delta int64) error {
	if delta == 0 {
		return nil
	}
	return r.base.Update(ctx, strings.TrimSpace(promotionID), []firestore.Update{
		{Path: "usageCount", Value: firestore.Increment(delta)},
		{Path: "updatedAt", Value: r.now().UTC()},
	})
}

// PromotionUsageRepository stores one usage document per promotion and user.
type PromotionUsageRepository struct {
	base *pfirestore.BaseRepository[promotionUsageDocument]
}

var _ repositories.PromotionUsageRepository = (*PromotionUsageRepository)(nil)

// NewPromotionUsageRepository constructs a Firestore-backed usage repository.
func NewPromotionUsageRepository(provider *pfirestore.Provider) (*PromotionUsageRepository, error) {
	if provider == nil {
		return nil, errors.New("promotion usage repository: firestore provider is required")
	}
	return &PromotionUsageRepository{base: pfirestore.NewBaseRepository[promotionUsageDocument](provider, promotionUsageCollection)}, nil
}

// Find loads the usage for the pair.
func (r *PromotionUsageRepository) Find(ctx context.Context, promotionID, userID string) (domain.PromotionUsage, error) {
	doc, err := r.base.Get(ctx, usageDocumentID(promotionID, userID))
	if err != nil {
		return domain.PromotionUsage{}, err
	}
	return domain.PromotionUsage{
		ID:          doc.ID,
		PromotionID: doc.Data.PromotionID,
		UserID:      doc.Data.UserID,
		OrderID:     doc.Data.OrderID,
		Used:        doc.Data.Used,
		CreatedAt:   doc.Data.CreatedAt.UTC(),
	}, nil
}

// Insert claims the pair. The deterministic document ID makes a second claim a conflict.
func (r *PromotionUsageRepository) Insert(ctx context.Context, usage domain.PromotionUsage) error {
	return r.base.Create(ctx, usageDocumentID(usage.PromotionID, usage.UserID), promotionUsageDocument{
		PromotionID: usage.PromotionID,
		UserID:      usage.UserID,
		OrderID:     usage.OrderID,
		Used:        usage.Used,
		CreatedAt:   usage.CreatedAt.UTC(),
	})
}

// Delete releases the pair. Releasing an unclaimed pair is a no-op.
func (r *PromotionUsageRepository) Delete(ctx context.Context, promotionID, userID string) error {
	return r.base.Delete(ctx, usageDocumentID(promotionID, userID), false)
}

func usageDocumentID(promotionID, userID string) string {
	promotionID = strings.TrimSpace(promotionID)
	userID = strings.TrimSpace(userID)
	if promotionID == "" || userID == "" {
		return ""
	}
	return fmt.Sprintf("%s_%s", promotionID, userID)
}

func normalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

type promotionDocument struct {
	Code              string    `firestore:"code"`
	Description       string    `firestore:"description"`
	DiscountType      string    `firestore:"discountType"`
	DiscountValue     float64   `firestore:"discountValue"`
	MinOrderAmount    int64     `firestore:"minOrderAmount"`
	MaxDiscountAmount int64     `firestore:"maxDiscountAmount"`
	StartDate         time.Time `firestore:"startDate"`
	EndDate           time.Time `firestore:"endDate"`
	UsageLimit        int64     `firestore:"usageLimit"`
	UsageCount        int64     `firestore:"usageCount"`
	Rank              string    `firestore:"rank"`
	Status            string    `firestore:"status"`
	CreatedAt         time.Time `firestore:"createdAt"`
	UpdatedAt         time.Time `firestore:"updatedAt"`
}

type promotionCodeDocument struct {
	PromotionID string `firestore:"promotionId"`
}

type promotionUsageDocument struct {
	PromotionID string    `firestore:"promotionId"`
	UserID      string    `firestore:"userId"`
	OrderID     string    `firestore:"orderId"`
	Used        bool      `firestore:"used"`
	CreatedAt   time.Time `firestore:"createdAt"`
}

func encodePromotion(p domain.Promotion) promotionDocument {
	return promotionDocument{
		Code:              normalizeCode(p.Code),
		Description:       p.Description,
		DiscountType:      string(p.DiscountType),
		DiscountValue:     p.DiscountValue,
		MinOrderAmount:    p.MinOrderAmount,
		MaxDiscountAmount: p.MaxDiscountAmount,
		StartDate:         p.StartDate.UTC(),
		EndDate:           p.EndDate.UTC(),
		UsageLimit:        p.UsageLimit,
		UsageCount:        p.UsageCount,
		Rank:              p.Rank,
		Status:            string(p.Status),
		CreatedAt:         p.CreatedAt.UTC(),
		UpdatedAt:         p.UpdatedAt.UTC(),
	}
}

func decodePromotion(id string, doc promotionDocument) domain.Promotion {
	return domain.Promotion{
		ID:                id,
		Code:              doc.Code,
		Description:       doc.Description,
		DiscountType:      domain.DiscountType(doc.DiscountType),
		DiscountValue:     doc.DiscountValue,
		MinOrderAmount:    doc.MinOrderAmount,
		MaxDiscountAmount: doc.MaxDiscountAmount,
		StartDate:         doc.StartDate.UTC(),
		EndDate:           doc.EndDate.UTC(),
		UsageLimit:        doc.UsageLimit,
		UsageCount:        doc.UsageCount,
		Rank:              doc.Rank,
		Status:            domain.PromotionStatus(doc.Status),
		CreatedAt:         doc.CreatedAt.UTC(),
		UpdatedAt:         doc.UpdatedAt.UTC(),
	}
}
