package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/SigNoz/storefront-go-app/internal/db"
	"github.com/SigNoz/storefront-go-app/internal/metrics"
	"github.com/SigNoz/storefront-go-app/internal/models"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// OrderService turns carts into orders and reads order history
type OrderService struct {
	db      *db.DB
	metrics *metrics.AppMetrics
}

// NewOrderService creates a new order service
func NewOrderService(db *db.DB, metrics *metrics.AppMetrics) *OrderService {
	return &OrderService{
		db:      db,
		metrics: metrics,
	}
}

// Checkout converts the user's whole cart into a pending order with price
// snapshots and empties the cart, all in one transaction.
func (s *OrderService) Checkout(ctx context.Context, userID int64) (*models.Order, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, storageError("begin transaction", err)
	}
	defer tx.Rollback()

	// a second checkout for the same user waits here until the first commits
	if forUpdate := s.db.Dialect.ForUpdate(); forUpdate != "" {
		start := time.Now()
		lockQuery := "SELECT id FROM cart_items WHERE user_id = ?" + forUpdate
		rows, err := tx.QueryContext(ctx, lockQuery, userID)
		s.metrics.RecordDBQuery(ctx, "SELECT", "cart_items", lockQuery, start, err == nil)
		if err != nil {
			return nil, storageError("lock cart", err)
		}
		rows.Close()
	}

	start := time.Now()
	lines, err := loadCartLines(ctx, tx, userID)
	s.metrics.RecordDBQuery(ctx, "SELECT", "cart_items", cartLinesQuery, start, err == nil)
	if err != nil {
		return nil, storageError("get cart items", err)
	}
	if len(lines) == 0 {
		return nil, ErrEmptyCart
	}

	total := cartTotal(lines)
	categories, err := s.categoryNames(ctx, tx, lines)
	if err != nil {
		return nil, err
	}

	start = time.Now()
	order := &models.Order{
		UserID:      userID,
		DateOrdered: time.Now().UTC(),
		TotalAmount: total,
		Status:      models.OrderStatusPending,
	}
	orderQuery := "INSERT INTO orders (user_id, date_ordered, total_amount, status) VALUES (?, ?, ?, ?)"
	result, err := tx.ExecContext(ctx, orderQuery, userID, order.DateOrdered, total.StringFixed(2), order.Status)
	s.metrics.RecordDBQuery(ctx, "INSERT", "orders", orderQuery, start, err == nil)
	if err != nil {
		return nil, storageError("create order", err)
	}
	order.ID, err = result.LastInsertId()
	if err != nil {
		return nil, storageError("get order ID", err)
	}

	itemQuery := "INSERT INTO order_items (order_id, product_id, quantity, price) VALUES (?, ?, ?, ?)"
	for _, line := range lines {
		start = time.Now()
		result, err := tx.ExecContext(ctx, itemQuery, order.ID, line.ProductID, line.Quantity, line.UnitPrice.StringFixed(2))
		s.metrics.RecordDBQuery(ctx, "INSERT", "order_items", itemQuery, start, err == nil)
		if err != nil {
			return nil, storageError("create order item", err)
		}
		itemID, err := result.LastInsertId()
		if err != nil {
			return nil, storageError("get order item ID", err)
		}
		order.Items = append(order.Items, models.OrderItem{
			ID:          itemID,
			OrderID:     order.ID,
			ProductID:   line.ProductID,
			ProductName: line.ProductName,
			Quantity:    line.Quantity,
			Price:       line.UnitPrice,
		})
	}

	deleteQuery := "DELETE FROM cart_items WHERE id = ? AND user_id = ?"
	for _, line := range lines {
		start = time.Now()
		result, err := tx.ExecContext(ctx, deleteQuery, line.ID, userID)
		s.metrics.RecordDBQuery(ctx, "DELETE", "cart_items", deleteQuery, start, err == nil)
		if err != nil {
			return nil, storageError("clear cart", err)
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return nil, storageError("clear cart", err)
		}
		if affected != 1 {
			return nil, fmt.Errorf("cart item %d was consumed concurrently: %w", line.ID, ErrConflict)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, storageError("commit transaction", err)
	}

	log.Printf("[ORDER] Order created: order_id=%d, user_id=%d, total=%s, items=%d",
		order.ID, userID, total.StringFixed(2), len(order.Items))
	s.recordOrderMetrics(ctx, lines, categories)

	return order, nil
}

// ListOrders returns the user's orders newest first, each with its items
func (s *OrderService) ListOrders(ctx context.Context, userID int64) ([]models.Order, error) {
	start := time.Now()
	query := `SELECT id, user_id, date_ordered, total_amount, status FROM orders
		WHERE user_id = ? ORDER BY date_ordered DESC, id DESC`
	rows, err := s.db.QueryContext(ctx, query, userID)
	s.metrics.RecordDBQuery(ctx, "SELECT", "orders", query, start, err == nil)
	if err != nil {
		return nil, storageError("query orders", err)
	}
	defer rows.Close()

	orders := []models.Order{}
	for rows.Next() {
		var order models.Order
		if err := rows.Scan(&order.ID, &order.UserID, &order.DateOrdered, &order.TotalAmount, &order.Status); err != nil {
			return nil, storageError("scan order", err)
		}
		order.Items = []models.OrderItem{}
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		return nil, storageError("query orders", err)
	}
	rows.Close()

	if len(orders) == 0 {
		return orders, nil
	}

	ids := make([]int64, len(orders))
	index := make(map[int64]int, len(orders))
	for i, order := range orders {
		ids[i] = order.ID
		index[order.ID] = i
	}
	items, err := s.orderItems(ctx, ids)
	if err != nil {
		return nil, err
	}
	for _, item := range items {
		i := index[item.OrderID]
		orders[i].Items = append(orders[i].Items, item)
	}

	return orders, nil
}

// GetOrder returns one of the user's orders with its items
func (s *OrderService) GetOrder(ctx context.Context, userID, orderID int64) (*models.Order, error) {
	start := time.Now()

	query := "SELECT id, user_id, date_ordered, total_amount, status FROM orders WHERE id = ?"
	var order models.Order
	err := s.db.QueryRowContext(ctx, query, orderID).Scan(
		&order.ID, &order.UserID, &order.DateOrdered, &order.TotalAmount, &order.Status,
	)
	s.metrics.RecordDBQuery(ctx, "SELECT", "orders", query, start, err == nil || errors.Is(err, sql.ErrNoRows))

	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("order")
	}
	if err != nil {
		return nil, storageError("get order", err)
	}
	if order.UserID != userID {
		return nil, fmt.Errorf("order belongs to another user: %w", ErrForbidden)
	}

	order.Items, err = s.orderItems(ctx, []int64{order.ID})
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// orderItems loads the items of several orders with a single query
func (s *OrderService) orderItems(ctx context.Context, orderIDs []int64) ([]models.OrderItem, error) {
	placeholders := make([]string, len(orderIDs))
	args := make([]any, len(orderIDs))
	for i, id := range orderIDs {
		placeholders[i] = "?"
		args[i] = id
	}

	start := time.Now()
	query := fmt.Sprintf(`
		SELECT oi.id, oi.order_id, oi.product_id, p.name, oi.quantity, oi.price
		FROM order_items oi
		JOIN products p ON oi.product_id = p.id
		WHERE oi.order_id IN (%s)
		ORDER BY oi.id`, strings.Join(placeholders, ","))
	rows, err := s.db.QueryContext(ctx, query, args...)
	s.metrics.RecordDBQuery(ctx, "SELECT", "order_items", query, start, err == nil)
	if err != nil {
		return nil, storageError("query order items", err)
	}
	defer rows.Close()

	items := []models.OrderItem{}
	for rows.Next() {
		var item models.OrderItem
		if err := rows.Scan(&item.ID, &item.OrderID, &item.ProductID, &item.ProductName, &item.Quantity, &item.Price); err != nil {
			return nil, storageError("scan order item", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, storageError("query order items", err)
	}
	return items, nil
}

// categoryNames resolves the category name of every cart line for metric attributes
func (s *OrderService) categoryNames(ctx context.Context, q queryer, lines []models.CartLine) (map[int64]string, error) {
	seen := make(map[int64]bool)
	var args []any
	for _, line := range lines {
		if !seen[line.CategoryID] {
			seen[line.CategoryID] = true
			args = append(args, line.CategoryID)
		}
	}

	start := time.Now()
	query := fmt.Sprintf("SELECT id, name FROM categories WHERE id IN (%s)",
		strings.TrimSuffix(strings.Repeat("?,", len(args)), ","))
	rows, err := q.QueryContext(ctx, query, args...)
	s.metrics.RecordDBQuery(ctx, "SELECT", "categories", query, start, err == nil)
	if err != nil {
		return nil, storageError("get categories", err)
	}
	defer rows.Close()

	names := make(map[int64]string, len(args))
	for rows.Next() {
		var id int64
		var name string
		if err := rows.Scan(&id, &name); err != nil {
			return nil, storageError("scan category", err)
		}
		names[id] = name
	}
	if err := rows.Err(); err != nil {
		return nil, storageError("get categories", err)
	}
	return names, nil
}

// recordOrderMetrics records order count and revenue per product category
func (s *OrderService) recordOrderMetrics(ctx context.Context, lines []models.CartLine, categories map[int64]string) {
	revenue := make(map[string]decimal.Decimal)
	for _, line := range lines {
		category := categories[line.CategoryID]
		if category == "" {
			category = "unknown"
		}
		revenue[category] = revenue[category].Add(line.LineSubtotal)
	}

	for category, amount := range revenue {
		attrs := metric.WithAttributes(s.metrics.WithServiceName([]attribute.KeyValue{
			attribute.String("order_status", models.OrderStatusPending),
			attribute.String("product_category", category),
		})...)
		s.metrics.OrdersCreated.Add(ctx, 1, attrs)
		s.metrics.RevenueTotal.Add(ctx, amount.InexactFloat64(), attrs)
		log.Printf("[METRICS] Recorded order revenue: category=%s, amount=%s", category, amount.StringFixed(2))
	}
}
