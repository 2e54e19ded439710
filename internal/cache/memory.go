package cache

import (
	"context"
	"sync"
	"time"

	"github.com/SigNoz/storefront-go-app/internal/models"
)

type cachedProduct struct {
	product models.Product
	expires time.Time
}

// MemoryCache is a process-local product cache with a fixed TTL
type MemoryCache struct {
	mu    sync.RWMutex
	items map[int64]cachedProduct
	ttl   time.Duration
	now   func() time.Time
}

func NewMemoryCache(ttl time.Duration) *MemoryCache {
	return &MemoryCache{
		items: make(map[int64]cachedProduct),
		ttl:   ttl,
		now:   time.Now,
	}
}

func (c *MemoryCache) Get(_ context.Context, productID int64) (*models.Product, error) {
	c.mu.RLock()
	cached, exists := c.items[productID]
	c.mu.RUnlock()

	if !exists || !c.now().Before(cached.expires) {
		return nil, ErrCacheMiss
	}
	p := cached.product
	return &p, nil
}

func (c *MemoryCache) Set(_ context.Context, product *models.Product) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	// drop expired entries while holding the write lock anyway
	now := c.now()
	for id, cached := range c.items {
		if !now.Before(cached.expires) {
			delete(c.items, id)
		}
	}

	c.items[product.ID] = cachedProduct{
		product: *product,
		expires: now.Add(c.ttl),
	}
	return nil
}
