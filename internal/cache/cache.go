package cache

import (
	"context"
	"errors"

	"github.com/SigNoz/storefront-go-app/internal/models"
)

// ProductCache caches catalog products for the product detail page.
// Cart totals and checkout always read prices from the database.
type ProductCache interface {
	Get(ctx context.Context, productID int64) (*models.Product, error)
	Set(ctx context.Context, product *models.Product) error
}

var ErrCacheMiss = errors.New("cache miss")
