package mongodb

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	domain "github.com/pawpal/api/internal/domain"
	pmongo "github.com/pawpal/api/internal/platform/mongodb"
	"github.com/pawpal/api/internal/repositories"
)

const (
	ordersCollection   = "orders"
	productsCollection = "products"
)

// OrderRepository persists orders in Mongo.
type OrderRepository struct {
	coll *mongo.Collection
}

var _ repositories.OrderRepository = (*OrderRepository)(nil)

// NewOrderRepository constructs a Mongo-backed order repository.
func NewOrderRepository(provider *pmongo.Provider) *OrderRepository {
	return &OrderRepository{coll: provider.Collection(ordersCollection)}
}

// Insert creates the order; a reused ID is a conflict.
func (r *OrderRepository) Insert(ctx context.Context, order domain.Order) error {
	if strings.TrimSpace(order.ID) == "" {
		return errors.New("order repository: order id is required")
	}
	_, err := r.coll.InsertOne(ctx, encodeOrder(order))
	return pmongo.WrapError("orders.insert", err)
}

// Update replaces the stored order.
func (r *OrderRepository) Update(ctx context.Context, order domain.Order) error {
	res, err := r.coll.ReplaceOne(ctx, bson.M{"_id": order.ID}, encodeOrder(order))
	if err != nil {
		return pmongo.WrapError("orders.update", err)
	}
	if res.MatchedCount == 0 {
		return pmongo.WrapError("orders.update", pmongo.ErrNoMatch)
	}
	return nil
}

// FindByID loads an order.
func (r *OrderRepository) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	var doc orderDocument
	if err := r.coll.FindOne(ctx, bson.M{"_id": strings.TrimSpace(orderID)}).Decode(&doc); err != nil {
		return domain.Order{}, pmongo.WrapError("orders.get", err)
	}
	return decodeOrder(doc), nil
}

// List returns orders newest first.
func (r *OrderRepository) List(ctx context.Context, filter repositories.OrderListFilter) (domain.CursorPage[domain.Order], error) {
	query := bson.M{}
	if userID := strings.TrimSpace(filter.UserID); userID != "" {
		query["userId"] = userID
	}
	statusFilter(query, filter.Status)
	if filter.CreatedAfter != nil && !filter.CreatedAfter.IsZero() {
		query["createdAt"] = bson.M{"$gt": filter.CreatedAfter.UTC()}
	}
	return findPage(ctx, r.coll, "orders.list", query, filter.Pagination, decodeOrder)
}

// ProductRepository reads products and applies stock deltas with $inc.
type ProductRepository struct {
	coll *mongo.Collection
	now  func() time.Time
}

var _ repositories.ProductRepository = (*ProductRepository)(nil)

// NewProductRepository constructs a Mongo-backed product repository.
func NewProductRepository(provider *pmongo.Provider) *ProductRepository {
	return &ProductRepository{coll: provider.Collection(productsCollection), now: time.Now}
}

// FindByID loads a product.
func (r *ProductRepository) FindByID(ctx context.Context, productID string) (domain.Product, error) {
	var doc productDocument
	if err := r.coll.FindOne(ctx, bson.M{"_id": strings.TrimSpace(productID)}).Decode(&doc); err != nil {
		return domain.Product{}, pmongo.WrapError("products.get", err)
	}
	return domain.Product{
		ID:            doc.ID,
		Name:          doc.Name,
		Price:         doc.Price,
		DiscountPrice: doc.DiscountPrice,
		Stock:         doc.Stock,
	}, nil
}

// AdjustStock adds delta to the product stock.
func (r *ProductRepository) AdjustStock(ctx context.Context, productID string, delta int64) error {
	if delta == 0 {
		return nil
	}
	res, err := r.coll.UpdateOne(ctx,
		bson.M{"_id": strings.TrimSpace(productID)},
		bson.M{"$inc": bson.M{"stock": delta}, "$set": bson.M{"updatedAt": r.now().UTC()}},
	)
	if err != nil {
		return pmongo.WrapError("products.adjust_stock", err)
	}
	if res.MatchedCount == 0 {
		return pmongo.WrapError("products.adjust_stock", pmongo.ErrNoMatch)
	}
	return nil
}

type productDocument struct {
	ID            string    `bson:"_id"`
	Name          string    `bson:"name"`
	Price         int64     `bson:"price"`
	DiscountPrice int64     `bson:"discountPrice"`
	Stock         int64     `bson:"stock"`
	UpdatedAt     time.Time `bson:"updatedAt,omitempty"`
}

type orderDocument struct {
	ID             string               `bson:"_id"`
	UserID         string               `bson:"userId"`
	Items          []orderItemDocument  `bson:"items"`
	ShippingFee    int64                `bson:"shippingFee"`
	Subtotal       int64                `bson:"subtotal"`
	TotalAmount    int64                `bson:"totalAmount"`
	DiscountAmount int64                `bson:"discountAmount"`
	FinalAmount    int64                `bson:"finalAmount"`
	Payment        orderPaymentDocument `bson:"payment"`
	Address        addressDocument      `bson:"address"`
	PromotionCode  *string              `bson:"promotionCode,omitempty"`
	PromotionID    *string              `bson:"promotionId,omitempty"`
	Status         string               `bson:"status"`
	CreatedAt      time.Time            `bson:"createdAt"`
	UpdatedAt      time.Time            `bson:"updatedAt"`
	CancelledAt    *time.Time           `bson:"cancelledAt,omitempty"`
	DeliveredAt    *time.Time           `bson:"deliveredAt,omitempty"`
}

func (d orderDocument) cursorKey() (time.Time, string) { return d.CreatedAt, d.ID }

type orderItemDocument struct {
	ProductID string `bson:"productId"`
	Name      string `bson:"name"`
	Quantity  int    `bson:"quantity"`
	Price     int64  `bson:"price"`
}

type orderPaymentDocument struct {
	Method string     `bson:"method"`
	Status string     `bson:"status"`
	PaidAt *time.Time `bson:"paidAt,omitempty"`
}

type addressDocument struct {
	FullName string `bson:"fullName"`
	Phone    string `bson:"phone"`
	Email    string `bson:"email,omitempty"`
	Line     string `bson:"line"`
	Ward     string `bson:"ward,omitempty"`
	District string `bson:"district,omitempty"`
	City     string `bson:"city,omitempty"`
}

func encodeOrder(order domain.Order) orderDocument {
	items := make([]orderItemDocument, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, orderItemDocument(item))
	}
	return orderDocument{
		ID:             order.ID,
		UserID:         order.UserID,
		Items:          items,
		ShippingFee:    order.ShippingFee,
		Subtotal:       order.Subtotal,
		TotalAmount:    order.TotalAmount,
		DiscountAmount: order.DiscountAmount,
		FinalAmount:    order.FinalAmount,
		Payment: orderPaymentDocument{
			Method: string(order.Payment.Method),
			Status: string(order.Payment.Status),
			PaidAt: utcPtr(order.Payment.PaidAt),
		},
		Address:       addressDocument(order.Address),
		PromotionCode: order.PromotionCode,
		PromotionID:   order.PromotionID,
		Status:        string(order.Status),
		CreatedAt:     order.CreatedAt.UTC(),
		UpdatedAt:     order.UpdatedAt.UTC(),
		CancelledAt:   utcPtr(order.CancelledAt),
		DeliveredAt:   utcPtr(order.DeliveredAt),
	}
}

func decodeOrder(doc orderDocument) domain.Order {
	items := make([]domain.OrderItem, 0, len(doc.Items))
	for _, item := range doc.Items {
		items = append(items, domain.OrderItem(item))
	}
	return domain.Order{
		ID:             doc.ID,
		UserID:         doc.UserID,
		Items:          items,
		ShippingFee:    doc.ShippingFee,
		Subtotal:       doc.Subtotal,
		TotalAmount:    doc.TotalAmount,
		DiscountAmount: doc.DiscountAmount,
		FinalAmount:    doc.FinalAmount,
		Payment: domain.OrderPayment{
			Method: domain.PaymentMethod(doc.Payment.Method),
			Status: domain.PaymentStatus(doc.Payment.Status),
			PaidAt: utcPtr(doc.Payment.PaidAt),
		},
		Address:       domain.ShippingAddress(doc.Address),
		PromotionCode: doc.PromotionCode,
		PromotionID:   doc.PromotionID,
		Status:        domain.OrderStatus(doc.Status),
		CreatedAt:     doc.CreatedAt.UTC(),
		UpdatedAt:     doc.UpdatedAt.UTC(),
		CancelledAt:   utcPtr(doc.CancelledAt),
		DeliveredAt:   utcPtr(doc.DeliveredAt),
	}
}
