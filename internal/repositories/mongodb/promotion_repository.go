package mongodb

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	domain "github.com/pawpal/api/internal/domain"
	pmongo "github.com/pawpal/api/internal/platform/mongodb"
	"github.com/pawpal/api/internal/repositories"
)

const (
	promotionsCollection     = "promotions"
	promotionUsageCollection = "promotionUsages"
)

// PromotionRepository stores promotions; a unique index on code enforces uniqueness.
type PromotionRepository struct {
	coll *mongo.Collection
	now  func() time.Time
}

var _ repositories.PromotionRepository = (*PromotionRepository)(nil)

// NewPromotionRepository constructs a Mongo-backed promotion repository.
func NewPromotionRepository(provider *pmongo.Provider) *PromotionRepository {
	return &PromotionRepository{coll: provider.Collection(promotionsCollection), now: time.Now}
}

func (r *PromotionRepository) ensureIndexes(ctx context.Context) error {
	_, err := r.coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "code", Value: 1}},
		Options: options.Index().SetUnique(true).SetName("code_unique"),
	})
	return pmongo.WrapError("promotions.ensure_indexes", err)
}

// Insert creates the promotion; a taken code is a conflict.
func (r *PromotionRepository) Insert(ctx context.Context, promotion domain.Promotion) error {
	if strings.TrimSpace(promotion.ID) == "" || normalizeCode(promotion.Code) == "" {
		return errors.New("promotion repository: id and code are required")
	}
	_, err := r.coll.InsertOne(ctx, encodePromotion(promotion))
	return pmongo.WrapError("promotions.insert", err)
}

// Update replaces the promotion.
func (r *PromotionRepository) Update(ctx context.Context, promotion domain.Promotion) error {
	res, err := r.coll.ReplaceOne(ctx, bson.M{"_id": promotion.ID}, encodePromotion(promotion))
	if err != nil {
		return pmongo.WrapError("promotions.update", err)
	}
	if res.MatchedCount == 0 {
		return pmongo.WrapError("promotions.update", pmongo.ErrNoMatch)
	}
	return nil
}

// Delete removes the promotion.
func (r *PromotionRepository) Delete(ctx context.Context, promotionID string) error {
	res, err := r.coll.DeleteOne(ctx, bson.M{"_id": strings.TrimSpace(promotionID)})
	if err != nil {
		return pmongo.WrapError("promotions.delete", err)
	}
	if res.DeletedCount == 0 {
		return pmongo.WrapError("promotions.delete", pmongo.ErrNoMatch)
	}
	return nil
}

// FindByID loads a promotion.
func (r *PromotionRepository) FindByID(ctx context.Context, promotionID string) (domain.Promotion, error) {
	return r.findOne(ctx, "promotions.get", bson.M{"_id": strings.TrimSpace(promotionID)})
}

// FindByCode loads a promotion by its case-insensitive code.
func (r *PromotionRepository) FindByCode(ctx context.Context, code string) (domain.Promotion, error) {
	return r.findOne(ctx, "promotions.get_by_code", bson.M{"code": normalizeCode(code)})
}

func (r *PromotionRepository) findOne(ctx context.Context, op string, filter bson.M) (domain.Promotion, error) {
	var doc promotionDocument
	if err := r.coll.FindOne(ctx, filter).Decode(&doc); err != nil {
		return domain.Promotion{}, pmongo.WrapError(op, err)
	}
	return decodePromotion(doc), nil
}

// List returns promotions newest first.
func (r *PromotionRepository) List(ctx context.Context, filter repositories.PromotionListFilter) (domain.CursorPage[domain.Promotion], error) {
	return findPage(ctx, r.coll, "promotions.list", bson.M{}, filter.Pagination, decodePromotion)
}

// AdjustUsageCount adds delta to usageCount.
func (r *PromotionRepository) AdjustUsageCount(ctx context.Context, promotionID string, delta int64) error {
	if delta == 0 {
		return nil
	}
	res, err := r.coll.UpdateOne(ctx,
		bson.M{"_id": strings.TrimSpace(promotionID)},
		bson.M{"$inc": bson.M{"usageCount": delta}, "$set": bson.M{"updatedAt": r.now().UTC()}},
	)
	if err != nil {
		return pmongo.WrapError("promotions.adjust_usage", err)
	}
	if res.MatchedCount == 0 {
		return pmongo.WrapError("promotions.adjust_usage", pmongo.ErrNoMatch)
	}
	return nil
}

// PromotionUsageRepository stores one usage per promotion and user, keyed deterministically.
type PromotionUsageRepository struct {
	coll *mongo.Collection
}

var _ repositories.PromotionUsageRepository = (*PromotionUsageRepository)(nil)

// NewPromotionUsageRepository constructs a Mongo-backed usage repository.
func NewPromotionUsageRepository(provider *pmongo.Provider) *PromotionUsageRepository {
	return &PromotionUsageRepository{coll: provider.Collection(promotionUsageCollection)}
}

func (r *PromotionUsageRepository) ensureIndexes(ctx context.Context) error {
	_, err := r.coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "promotionId", Value: 1}, {Key: "userId", Value: 1}},
		Options: options.Index().SetUnique(true).SetName("promotion_user_unique"),
	})
	return pmongo.WrapError("promotion_usages.ensure_indexes", err)
}

// Find loads the usage for the pair.
func (r *PromotionUsageRepository) Find(ctx context.Context, promotionID, userID string) (domain.PromotionUsage, error) {
	var doc promotionUsageDocument
	if err := r.coll.FindOne(ctx, bson.M{"_id": usageID(promotionID, userID)}).Decode(&doc); err != nil {
		return domain.PromotionUsage{}, pmongo.WrapError("promotion_usages.get", err)
	}
	return domain.PromotionUsage{
		ID:          doc.ID,
		PromotionID: doc.PromotionID,
		UserID:      doc.UserID,
		OrderID:     doc.OrderID,
		Used:        doc.Used,
		CreatedAt:   doc.CreatedAt.UTC(),
	}, nil
}

// Insert claims the pair; a second claim is a conflict.
func (r *PromotionUsageRepository) Insert(ctx context.Context, usage domain.PromotionUsage) error {
	_, err := r.coll.InsertOne(ctx, promotionUsageDocument{
		ID:          usageID(usage.PromotionID, usage.UserID),
		PromotionID: usage.PromotionID,
		UserID:      usage.UserID,
		OrderID:     usage.OrderID,
		Used:        usage.Used,
		CreatedAt:   usage.CreatedAt.UTC(),
	})
	return pmongo.WrapError("promotion_usages.insert", err)
}

// Delete releases the pair. Releasing an unclaimed pair is a no-op.
func (r *PromotionUsageRepository) Delete(ctx context.Context, promotionID, userID string) error {
	_, err := r.coll.DeleteOne(ctx, bson.M{"_id": usageID(promotionID, userID)})
	return pmongo.WrapError("promotion_usages.delete", err)
}

func usageID(promotionID, userID string) string {
	return fmt.Sprintf("%s_%s", strings.TrimSpace(promotionID), strings.TrimSpace(userID))
}

func normalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

type promotionDocument struct {
	ID                string    `bson:"_id"`
	Code              string    `bson:"code"`
	Description       string    `bson:"description"`
	DiscountType      string    `bson:"discountType"`
	DiscountValue     float64   `bson:"discountValue"`
	MinOrderAmount    int64     `bson:"minOrderAmount"`
	MaxDiscountAmount int64     `bson:"maxDiscountAmount"`
	StartDate         time.Time `bson:"startDate"`
	EndDate           time.Time `bson:"endDate"`
	UsageLimit        int64     `bson:"usageLimit"`
	UsageCount        int64     `bson:"usageCount"`
	Rank              string    `bson:"rank"`
	Status            string    `bson:"status"`
	CreatedAt         time.Time `bson:"createdAt"`
	UpdatedAt         time.Time `bson:"updatedAt"`
}

func (d promotionDocument) cursorKey() (time.Time, string) { return d.CreatedAt, d.ID }

type promotionUsageDocument struct {
	ID          string    `bson:"_id"`
	PromotionID string    `bson:"promotionId"`
	UserID      string    `bson:"userId"`
	OrderID     string    `bson:"orderId"`
	Used        bool      `bson:"used"`
	CreatedAt   time.Time `bson:"createdAt"`
}

func encodePromotion(p domain.Promotion) promotionDocument {
	return promotionDocument{
		ID:                p.ID,
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

func decodePromotion(doc promotionDocument) domain.Promotion {
	return domain.Promotion{
		ID:                doc.ID,
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
