package services

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"strconv"
	"time"

	"github.com/SigNoz/storefront-go-app/internal/cache"
	"github.com/SigNoz/storefront-go-app/internal/db"
	"github.com/SigNoz/storefront-go-app/internal/metrics"
	"github.com/SigNoz/storefront-go-app/internal/models"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/singleflight"
)

const featuredProductsLimit = 6

const productColumns = "id, name, description, price, stock, image_url, category_id"

// CatalogService serves categories and products
type CatalogService struct {
	db      *db.DB
	metrics *metrics.AppMetrics
	cache   cache.ProductCache
	group   singleflight.Group
}

// NewCatalogService creates a new catalog service reading products through the given cache
func NewCatalogService(db *db.DB, metrics *metrics.AppMetrics, productCache cache.ProductCache) *CatalogService {
	return &CatalogService{
		db:      db,
		metrics: metrics,
		cache:   productCache,
	}
}

// Home returns all categories and a handful of featured products
func (s *CatalogService) Home(ctx context.Context) (*models.HomePage, error) {
	categories, err := s.ListCategories(ctx)
	if err != nil {
		return nil, err
	}

	query := "SELECT " + productColumns + " FROM products ORDER BY id LIMIT ?"
	featured, err := s.queryProducts(ctx, query, featuredProductsLimit)
	if err != nil {
		return nil, err
	}

	return &models.HomePage{
		Categories:       categories,
		FeaturedProducts: featured,
	}, nil
}

// ListCategories returns every category without its products
func (s *CatalogService) ListCategories(ctx context.Context) ([]models.Category, error) {
	start := time.Now()
	query := "SELECT id, name FROM categories ORDER BY id"
	rows, err := s.db.QueryContext(ctx, query)
	s.metrics.RecordDBQuery(ctx, "SELECT", "categories", query, start, err == nil)
	if err != nil {
		return nil, storageError("query categories", err)
	}
	defer rows.Close()

	categories := []models.Category{}
	for rows.Next() {
		var c models.Category
		if err := rows.Scan(&c.ID, &c.Name); err != nil {
			return nil, storageError("scan category", err)
		}
		categories = append(categories, c)
	}
	if err := rows.Err(); err != nil {
		return nil, storageError("query categories", err)
	}
	return categories, nil
}

// GetCategory returns a category with all of its products
func (s *CatalogService) GetCategory(ctx context.Context, id int64) (*models.Category, error) {
	start := time.Now()
	query := "SELECT id, name FROM categories WHERE id = ?"
	var c models.Category
	err := s.db.QueryRowContext(ctx, query, id).Scan(&c.ID, &c.Name)
	s.metrics.RecordDBQuery(ctx, "SELECT", "categories", query, start, err == nil || errors.Is(err, sql.ErrNoRows))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("category")
	}
	if err != nil {
		return nil, storageError("get category", err)
	}

	c.Products, err = s.queryProducts(ctx, "SELECT "+productColumns+" FROM products WHERE category_id = ? ORDER BY id", id)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// GetProduct returns a product, served from the cache when possible
func (s *CatalogService) GetProduct(ctx context.Context, id int64) (*models.Product, error) {
	product, err := s.cache.Get(ctx, id)
	switch {
	case err == nil:
		s.metrics.CacheHits.Add(ctx, 1, metric.WithAttributes(s.metrics.WithServiceName(nil)...))
	case errors.Is(err, cache.ErrCacheMiss):
		s.metrics.CacheMisses.Add(ctx, 1, metric.WithAttributes(s.metrics.WithServiceName(nil)...))
	default:
		log.Printf("[CACHE] Product cache unavailable: product_id=%d, error=%v", id, err)
		s.metrics.CacheMisses.Add(ctx, 1, metric.WithAttributes(s.metrics.WithServiceName(nil)...))
	}

	if product == nil {
		// concurrent misses for the same product share one query
		v, err, _ := s.group.Do(strconv.FormatInt(id, 10), func() (any, error) {
			return s.loadProduct(context.WithoutCancel(ctx), id)
		})
		if err != nil {
			return nil, err
		}
		loaded := *v.(*models.Product)
		product = &loaded
	}

	viewAttrs := s.metrics.WithServiceName([]attribute.KeyValue{
		attribute.Int64("product_id", product.ID),
		attribute.Int64("category_id", product.CategoryID),
	})
	s.metrics.ProductsViewed.Add(ctx, 1, metric.WithAttributes(viewAttrs...))
	s.metrics.InventoryLevel.Record(ctx, int64(product.Stock), metric.WithAttributes(s.metrics.WithServiceName([]attribute.KeyValue{
		attribute.Int64("product_id", product.ID),
	})...))

	return product, nil
}

func (s *CatalogService) loadProduct(ctx context.Context, id int64) (*models.Product, error) {
	start := time.Now()
	query := "SELECT " + productColumns + " FROM products WHERE id = ?"
	var p models.Product
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&p.ID, &p.Name, &p.Description, &p.Price, &p.Stock, &p.ImageURL, &p.CategoryID,
	)
	s.metrics.RecordDBQuery(ctx, "SELECT", "products", query, start, err == nil || errors.Is(err, sql.ErrNoRows))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("product")
	}
	if err != nil {
		return nil, storageError("get product", err)
	}

	if err := s.cache.Set(ctx, &p); err != nil {
		log.Printf("[CACHE] Failed to cache product: product_id=%d, error=%v", id, err)
	}
	return &p, nil
}

func (s *CatalogService) queryProducts(ctx context.Context, query string, args ...any) ([]models.Product, error) {
	start := time.Now()
	rows, err := s.db.QueryContext(ctx, query, args...)
	s.metrics.RecordDBQuery(ctx, "SELECT", "products", query, start, err == nil)
	if err != nil {
		return nil, storageError("query products", err)
	}
	defer rows.Close()

	products := []models.Product{}
	for rows.Next() {
		var p models.Product
		if err := rows.Scan(&p.ID, &p.Name, &p.Description, &p.Price, &p.Stock, &p.ImageURL, &p.CategoryID); err != nil {
			return nil, storageError("scan product", err)
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, storageError("query products", err)
	}
	return products, nil
}
