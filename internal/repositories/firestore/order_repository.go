package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/pawpal/api/internal/domain"
	pfirestore "github.com/pawpal/api/internal/platform/firestore"
	"github.com/pawpal/api/internal/repositories"
)

const ordersCollection = "orders"

// OrderRepository persists orders in Firestore.
type OrderRepository struct {
	base *pfirestore.BaseRepository[orderDocument]
}

var _ repositories.OrderRepository = (*OrderRepository)(nil)

// NewOrderRepository constructs a Firestore-backed order repository.
func NewOrderRepository(provider *pfirestore.Provider) (*OrderRepository, error) {
	if provider == nil {
		return nil, errors.New("order repository: firestore provider is required")
	}
	return &OrderRepository{base: pfirestore.NewBaseRepository[orderDocument](provider, ordersCollection)}, nil
}

// Insert creates the order document; the ID must be unused.
func (r *OrderRepository) Insert(ctx context.Context, order domain.Order) error {
	id := strings.TrimSpace(order.ID)
	if id == "" {
		return errors.New("order repository: order id is required")
	}
	return r.base.Create(ctx, id, encodeOrder(order))
}

// Update overwrites the stored order snapshot.
func (r *OrderRepository) Update(ctx context.Context, order domain.Order) error {
	id := strings.TrimSpace(order.ID)
	if id == "" {
		return errors.New("order repository: order id is required")
	}
	return r.base.Set(ctx, id, encodeOrder(order))
}

// FindByID loads an order.
func (r *OrderRepository) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	doc, err := r.base.Get(ctx, strings.TrimSpace(orderID))
	if err != nil {
		return domain.Order{}, err
	}
	return decodeOrder(doc.ID, doc.Data), nil
}

// List returns orders newest first.
func (r *OrderRepository) List(ctx context.Context, filter repositories.OrderListFilter) (domain.CursorPage[domain.Order], error) {
	limit, fetch := pageWindow(filter.Pagination.PageSize)
	var cursorErr error
	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		if userID := strings.TrimSpace(filter.UserID); userID != "" {
			q = q.Where("userId", "==", userID)
		}
		switch statuses := truncateIn(filter.Status); len(statuses) {
		case 0:
		case 1:
			q = q.Where("status", "==", statuses[0])
		default:
			q = q.Where("status", "in", statuses)
		}
		if filter.CreatedAfter != nil && !filter.CreatedAfter.IsZero() {
			q = q.Where("createdAt", ">", filter.CreatedAfter.UTC())
		}
		q = q.OrderBy("createdAt", firestore.Desc).OrderBy(firestore.DocumentID, firestore.Desc)
		q, cursorErr = applyCreatedCursor(q, strings.TrimSpace(filter.Pagination.PageToken))
		return q.Limit(fetch)
	})
	if cursorErr != nil {
		return domain.CursorPage[domain.Order]{}, cursorErr
	}
	if err != nil {
		return domain.CursorPage[domain.Order]{}, err
	}

	page := domain.CursorPage[domain.Order]{Items: make([]domain.Order, 0, min(len(docs), limit))}
	for i, doc := range docs {
		if i == limit {
			last := docs[limit-1]
			token, err := encodeCreatedCursor(last.Data.CreatedAt, last.ID)
			if err != nil {
				return domain.CursorPage[domain.Order]{}, err
			}
			page.NextPageToken = token
			break
		}
		page.Items = append(page.Items, decodeOrder(doc.ID, doc.Data))
	}
	return page, nil
}

type orderDocument struct {
	UserID         string               `firestore:"userId"`
	Items          []orderItemDocument  `firestore:"items"`
	ShippingFee    int64                `firestore:"shippingFee"`
	Subtotal       int64                `firestore:"subtotal"`
	TotalAmount    int64                `firestore:"totalAmount"`
	DiscountAmount int64                `firestore:"discountAmount"`
	FinalAmount    int64                `firestore:"finalAmount"`
	Payment        orderPaymentDocument `firestore:"payment"`
	Address        addressDocument      `firestore:"address"`
	PromotionCode  *string              `firestore:"promotionCode,omitempty"`
	PromotionID    *string              `firestore:"promotionId,omitempty"`
	Status         string               `firestore:"status"`
	CreatedAt      time.Time            `firestore:"createdAt"`
	UpdatedAt      time.Time            `firestore:"updatedAt"`
	CancelledAt    *time.Time           `firestore:"cancelledAt,omitempty"`
	DeliveredAt    *time.Time           `firestore:"deliveredAt,omitempty"`
}

type orderItemDocument struct {
	ProductID string `firestore:"productId"`
	Name      string `firestore:"name"`
	Quantity  int    `firestore:"quantity"`
	Price     int64  `firestore:"price"`
}

type orderPaymentDocument struct {
	Method string     `firestore:"method"`
	Status string     `firestore:"status"`
	PaidAt *time.Time `firestore:"paidAt,omitempty"`
}

type addressDocument struct {
	FullName string `firestore:"fullName"`
	Phone    string `firestore:"phone"`
	Email    string `firestore:"email,omitempty"`
	Line     string `firestore:"line"`
	Ward     string `firestore:"ward,omitempty"`
	District string `firestore:"district,omitempty"`
	City     string `firestore:"city,omitempty"`
}

func encodeOrder(order domain.Order) orderDocument {
	items := make([]orderItemDocument, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, orderItemDocument{
			ProductID: item.ProductID,
			Name:      item.Name,
			Quantity:  item.Quantity,
			Price:     item.Price,
		})
	}
	return orderDocument{
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

func decodeOrder(id string, doc orderDocument) domain.Order {
	items := make([]domain.OrderItem, 0, len(doc.Items))
	for _, item := range doc.Items {
		items = append(items, domain.OrderItem{
			ProductID: item.ProductID,
			Name:      item.Name,
			Quantity:  item.Quantity,
			Price:     item.Price,
		})
	}
	return domain.Order{
		ID:             id,
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

func utcPtr(t *time.Time) *time.Time {
	if t == nil || t.IsZero() {
		return nil
	}
	v := t.UTC()
	return &v
}
