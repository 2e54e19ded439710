package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/SigNoz/storefront-go-app/internal/db"
	"github.com/SigNoz/storefront-go-app/internal/metrics"
	"github.com/SigNoz/storefront-go-app/internal/models"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// queryer is satisfied by both *sql.DB and *sql.Tx
type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

const cartLinesQuery = `
	SELECT ci.id, ci.user_id, ci.product_id, ci.quantity, ci.created_at, ci.updated_at,
	       p.name, p.image_url, p.category_id, p.price
	FROM cart_items ci
	JOIN products p ON ci.product_id = p.id
	WHERE ci.user_id = ?
	ORDER BY ci.id`

// MaxCartQuantity bounds the quantity of a single cart line
const MaxCartQuantity = 10000

// CartService handles cart-related operations
type CartService struct {
	db      *db.DB
	metrics *metrics.AppMetrics
}

// NewCartService creates a new cart service
func NewCartService(db *db.DB, metrics *metrics.AppMetrics) *CartService {
	return &CartService{
		db:      db,
		metrics: metrics,
	}
}

// Add puts quantity units of a product into the user's cart, merging into the
// existing line for that product. A nil quantity means 1.
func (s *CartService) Add(ctx context.Context, userID, productID int64, quantity *int) error {
	qty := 1
	if quantity != nil {
		qty = *quantity
	}
	if qty < 1 || qty > MaxCartQuantity {
		return validationError("quantity must be between 1 and %d", MaxCartQuantity)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return storageError("begin transaction", err)
	}
	defer tx.Rollback()

	start := time.Now()
	var exists bool
	checkProductQuery := "SELECT EXISTS(SELECT 1 FROM products WHERE id = ?)"
	err = tx.QueryRowContext(ctx, checkProductQuery, productID).Scan(&exists)
	s.metrics.RecordDBQuery(ctx, "SELECT", "products", checkProductQuery, start, err == nil)
	if err != nil {
		return storageError("verify product", err)
	}
	if !exists {
		return notFound("product")
	}

	start = time.Now()
	existingQuery := "SELECT quantity FROM cart_items WHERE user_id = ? AND product_id = ?" + s.db.Dialect.ForUpdate()
	var existing int
	err = tx.QueryRowContext(ctx, existingQuery, userID, productID).Scan(&existing)
	s.metrics.RecordDBQuery(ctx, "SELECT", "cart_items", existingQuery, start, err == nil || errors.Is(err, sql.ErrNoRows))
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return storageError("get cart item", err)
	}
	if existing+qty > MaxCartQuantity {
		return validationError("cart can hold at most %d of a product", MaxCartQuantity)
	}

	// UNIQUE(user_id, product_id) makes concurrent adds merge instead of duplicating;
	// the cap in the statement bounds a merge that raced past the check above
	start = time.Now()
	now := time.Now().UTC()
	upsertQuery := s.db.Dialect.UpsertCartItem()
	_, err = tx.ExecContext(ctx, upsertQuery, userID, productID, qty, now, now, MaxCartQuantity)
	s.metrics.RecordDBQuery(ctx, "UPSERT", "cart_items", upsertQuery, start, err == nil)
	if err != nil {
		return storageError("add item to cart", err)
	}

	if err := tx.Commit(); err != nil {
		return storageError("commit transaction", err)
	}

	log.Printf("[CART] Added to cart: user_id=%d, product_id=%d, quantity=%d", userID, productID, qty)
	s.updateCartItemsCount(ctx, userID)
	return nil
}

// Update sets the quantity of one cart line owned by the user.
// A quantity of zero or less removes the line.
func (s *CartService) Update(ctx context.Context, userID, itemID int64, quantity int) error {
	if quantity > MaxCartQuantity {
		return validationError("quantity must be at most %d", MaxCartQuantity)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return storageError("begin transaction", err)
	}
	defer tx.Rollback()

	start := time.Now()
	ownerQuery := "SELECT user_id FROM cart_items WHERE id = ?" + s.db.Dialect.ForUpdate()
	var ownerID int64
	err = tx.QueryRowContext(ctx, ownerQuery, itemID).Scan(&ownerID)
	s.metrics.RecordDBQuery(ctx, "SELECT", "cart_items", ownerQuery, start, err == nil || errors.Is(err, sql.ErrNoRows))
	if errors.Is(err, sql.ErrNoRows) {
		return notFound("cart item")
	}
	if err != nil {
		return storageError("get cart item", err)
	}
	if ownerID != userID {
		log.Printf("[CART] Rejected update of cart item %d by user_id=%d", itemID, userID)
		return fmt.Errorf("cart item belongs to another user: %w", ErrForbidden)
	}

	start = time.Now()
	if quantity > 0 {
		updateQuery := "UPDATE cart_items SET quantity = ?, updated_at = ? WHERE id = ? AND user_id = ?"
		_, err = tx.ExecContext(ctx, updateQuery, quantity, time.Now().UTC(), itemID, userID)
		s.metrics.RecordDBQuery(ctx, "UPDATE", "cart_items", updateQuery, start, err == nil)
		if err != nil {
			return storageError("update cart item", err)
		}
	} else {
		deleteQuery := "DELETE FROM cart_items WHERE id = ? AND user_id = ?"
		_, err = tx.ExecContext(ctx, deleteQuery, itemID, userID)
		s.metrics.RecordDBQuery(ctx, "DELETE", "cart_items", deleteQuery, start, err == nil)
		if err != nil {
			return storageError("remove cart item", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return storageError("commit transaction", err)
	}

	s.updateCartItemsCount(ctx, userID)
	return nil
}

// Remove deletes one cart line owned by the user
func (s *CartService) Remove(ctx context.Context, userID, itemID int64) error {
	return s.Update(ctx, userID, itemID, 0)
}

// Get returns the user's cart lines and their total from a single read
func (s *CartService) Get(ctx context.Context, userID int64) (*models.Cart, error) {
	start := time.Now()
	lines, err := loadCartLines(ctx, s.db, userID)
	s.metrics.RecordDBQuery(ctx, "SELECT", "cart_items", cartLinesQuery, start, err == nil)
	if err != nil {
		return nil, storageError("get cart items", err)
	}

	return &models.Cart{
		UserID: userID,
		Items:  lines,
		Total:  cartTotal(lines),
	}, nil
}

// List returns the user's cart lines
func (s *CartService) List(ctx context.Context, userID int64) ([]models.CartLine, error) {
	cart, err := s.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	return cart.Items, nil
}

// Total returns the sum of price x quantity over the user's cart, computed from current prices
func (s *CartService) Total(ctx context.Context, userID int64) (decimal.Decimal, error) {
	cart, err := s.Get(ctx, userID)
	if err != nil {
		return decimal.Zero, err
	}
	return cart.Total, nil
}

// updateCartItemsCount updates the cart items count gauge metric
func (s *CartService) updateCartItemsCount(ctx context.Context, userID int64) {
	start := time.Now()

	query := "SELECT COUNT(*) FROM cart_items WHERE user_id = ?"
	var count int
	err := s.db.QueryRowContext(ctx, query, userID).Scan(&count)
	s.metrics.RecordDBQuery(ctx, "SELECT", "cart_items", query, start, err == nil)
	if err != nil {
		return
	}

	s.metrics.CartItemsCount.Record(ctx, int64(count), metric.WithAttributes(s.metrics.WithServiceName([]attribute.KeyValue{
		attribute.Int64("user_id", userID),
	})...))
}

// loadCartLines reads a user's cart joined with current product data
func loadCartLines(ctx context.Context, q queryer, userID int64) ([]models.CartLine, error) {
	rows, err := q.QueryContext(ctx, cartLinesQuery, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	lines := []models.CartLine{}
	for rows.Next() {
		var line models.CartLine
		if err := rows.Scan(
			&line.ID, &line.UserID, &line.ProductID, &line.Quantity, &line.CreatedAt, &line.UpdatedAt,
			&line.ProductName, &line.ImageURL, &line.CategoryID, &line.UnitPrice,
		); err != nil {
			return nil, fmt.Errorf("scan cart item: %w", err)
		}
		line.LineSubtotal = line.UnitPrice.Mul(decimal.NewFromInt(int64(line.Quantity)))
		lines = append(lines, line)
	}
	return lines, rows.Err()
}

func cartTotal(lines []models.CartLine) decimal.Decimal {
	total := decimal.Zero
	for _, line := range lines {
		total = total.Add(line.LineSubtotal)
	}
	return total
}
