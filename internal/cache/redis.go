package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"math/rand"
	"time"

	"github.com/SigNoz/storefront-go-app/internal/models"
	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker/v2"
)

// RedisCache stores products as JSON under product:<id>. Calls go through a
// circuit breaker so an unhealthy Redis fails fast instead of slowing every
// product page; callers fall back to the database on any error.
type RedisCache struct {
	client  *redis.Client
	baseTTL time.Duration
	breaker *gobreaker.CircuitBreaker[[]byte]
}

func NewRedisCache(client *redis.Client, baseTTL time.Duration) *RedisCache {
	settings := gobreaker.Settings{
		Name:        "redis-product-cache",
		MaxRequests: 1,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrCacheMiss)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Printf("[CACHE] breaker %s: %s -> %s", name, from, to)
		},
	}

	return &RedisCache{
		client:  client,
		baseTTL: baseTTL,
		breaker: gobreaker.NewCircuitBreaker[[]byte](settings),
	}
}

func (r *RedisCache) Get(ctx context.Context, productID int64) (*models.Product, error) {
	key := cacheKey(productID)

	data, err := r.breaker.Execute(func() ([]byte, error) {
		data, err := r.client.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return nil, ErrCacheMiss
		}
		return data, err
	})
	if errors.Is(err, ErrCacheMiss) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("redis get failed: %w", err)
	}

	var product models.Product
	if err := json.Unmarshal(data, &product); err != nil {
		return nil, fmt.Errorf("unmarshal product failed: %w", err)
	}
	return &product, nil
}

func (r *RedisCache) Set(ctx context.Context, product *models.Product) error {
	payload, err := json.Marshal(product)
	if err != nil {
		return fmt.Errorf("marshal product failed: %w", err)
	}

	// jitter spreads expiry of products cached at the same moment
	ttl := r.baseTTL + time.Duration(rand.Int63n(int64(r.baseTTL/5)+1))

	_, err = r.breaker.Execute(func() ([]byte, error) {
		return nil, r.client.Set(ctx, cacheKey(product.ID), payload, ttl).Err()
	})
	if err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

func cacheKey(productID int64) string {
	return fmt.Sprintf("product:%d", productID)
}
