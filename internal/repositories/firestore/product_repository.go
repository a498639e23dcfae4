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

const productsCollection = "products"

// ProductRepository reads catalogue products and applies stock deltas.
type ProductRepository struct {
	base *pfirestore.BaseRepository[productDocument]
	now  func() time.Time
}

var _ repositories.ProductRepository = (*ProductRepository)(nil)

// NewProductRepository constructs a Firestore-backed product repository.
func NewProductRepository(provider *pfirestore.Provider) (*ProductRepository, error) {
	if provider == nil {
		return nil, errors.New("product repository: firestore provider is required")
	}
	return &ProductRepository{
		base: pfirestore.NewBaseRepository[productDocument](provider, productsCollection),
		now:  time.Now,
	}, nil
}

// FindByID loads a product.
func (r *ProductRepository) FindByID(ctx context.Context, productID string) (domain.Product, error) {
	doc, err := r.base.Get(ctx, strings.TrimSpace(productID))
	if err != nil {
		return domain.Product{}, err
	}
	return domain.Product{
		ID:            doc.ID,
		Name:          doc.Data.Name,
		Price:         doc.Data.Price,
		DiscountPrice: doc.Data.DiscountPrice,
		Stock:         doc.Data.Stock,
	}, nil
}

// AdjustStock increments the stock field server-side so no read is needed inside the transaction.
func (r *ProductRepository) AdjustStock(ctx context.Context, productID string, delta int64) error {
	if delta == 0 {
		return nil
	}
	return r.base.Update(ctx, strings.TrimSpace(productID), []firestore.Update{
		{Path: "stock", Value: firestore.Increment(delta)},
		{Path: "updatedAt", Value: r.now().UTC()},
	})
}

type productDocument struct {
	Name          string    `firestore:"name"`
	Price         int64     `firestore:"price"`
	DiscountPrice int64     `firestore:"discountPrice"`
	Stock         int64     `firestore:"stock"`
	UpdatedAt     time.Time `firestore:"updatedAt"`
}
