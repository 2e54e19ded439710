package services

import (
	"context"
	"testing"

	"github.com/SigNoz/storefront-go-app/internal/metrics"
	"github.com/SigNoz/storefront-go-app/internal/models"
	"github.com/SigNoz/storefront-go-app/pkg/config"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func TestCheckout(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	userID := env.createUser(t, "alice")
	a := env.createProduct(t, "A", "10.00")
	b := env.createProduct(t, "B", "5.00")
	require.NoError(t, env.cart.Add(ctx, userID, a, intPtr(2)))
	require.NoError(t, env.cart.Add(ctx, userID, b, intPtr(1)))

	order, err := env.orders.Checkout(ctx, userID)
	require.NoError(t, err)
	assert.NotZero(t, order.ID)
	assert.Equal(t, models.OrderStatusPending, order.Status)
	assert.True(t, decimal.RequireFromString("25.00").Equal(order.TotalAmount), order.TotalAmount.String())
	require.Len(t, order.Items, 2)
	assert.Equal(t, a, order.Items[0].ProductID)
	assert.Equal(t, 2, order.Items[0].Quantity)
	assert.True(t, decimal.RequireFromString("10.00").Equal(order.Items[0].Price))

	lines, err := env.cart.List(ctx, userID)
	require.NoError(t, err)
	assert.Empty(t, lines)

	stored, err := env.orders.GetOrder(ctx, userID, order.ID)
	require.NoError(t, err)
	assert.True(t, order.TotalAmount.Equal(stored.TotalAmount))
	assert.Len(t, stored.Items, 2)
	assert.Equal(t, "A", stored.Items[0].ProductName)
}

func TestCheckout_EmptyCart(t *testing.T) {
	env := newTestEnv(t)
	userID := env.createUser(t, "alice")

	_, err := env.orders.Checkout(context.Background(), userID)
	assert.ErrorIs(t, err, ErrEmptyCart)
	assert.Zero(t, env.count(t, "SELECT COUNT(*) FROM orders"))
}

func TestCheckout_PriceSnapshotSurvivesPriceChange(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	userID := env.createUser(t, "alice")
	productID := env.createProduct(t, "A", "10.00")
	require.NoError(t, env.cart.Add(ctx, userID, productID, intPtr(3)))

	order, err := env.orders.Checkout(ctx, userID)
	require.NoError(t, err)

	_, err = env.db.Exec("UPDATE products SET price = '99.99' WHERE id = ?", productID)
	require.NoError(t, err)

	stored, err := env.orders.GetOrder(ctx, userID, order.ID)
	require.NoError(t, err)
	require.Len(t, stored.Items, 1)
	assert.True(t, decimal.RequireFromString("10.00").Equal(stored.Items[0].Price))
	assert.True(t, decimal.RequireFromString("30.00").Equal(stored.TotalAmount))
}

func TestCheckout_RollsBackOnFailure(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	userID := env.createUser(t, "alice")
	require.NoError(t, env.cart.Add(ctx, userID, 1, intPtr(2)))
	require.NoError(t, env.cart.Add(ctx, userID, 3, nil))

	_, err := env.db.Exec("DROP TABLE order_items")
	require.NoError(t, err)

	_, err = env.orders.Checkout(ctx, userID)
	assert.ErrorIs(t, err, ErrStorage)

	assert.Zero(t, env.count(t, "SELECT COUNT(*) FROM orders"))
	lines, err := env.cart.List(ctx, userID)
	require.NoError(t, err)
	assert.Len(t, lines, 2)
}

func TestCheckout_SecondCheckoutFindsEmptyCart(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	userID := env.createUser(t, "alice")
	require.NoError(t, env.cart.Add(ctx, userID, 1, nil))

	_, err := env.orders.Checkout(ctx, userID)
	require.NoError(t, err)

	_, err = env.orders.Checkout(ctx, userID)
	assert.ErrorIs(t, err, ErrEmptyCart)
	assert.Equal(t, 1, env.count(t, "SELECT COUNT(*) FROM orders"))
}

func TestCheckout_OnlyConsumesOwnCart(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice := env.createUser(t, "alice")
	bob := env.createUser(t, "bob")
	require.NoError(t, env.cart.Add(ctx, alice, 1, nil))
	require.NoError(t, env.cart.Add(ctx, bob, 2, nil))

	_, err := env.orders.Checkout(ctx, alice)
	require.NoError(t, err)

	lines, err := env.cart.List(ctx, bob)
	require.NoError(t, err)
	assert.Len(t, lines, 1)
}

func TestGetOrder_Ownership(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice := env.createUser(t, "alice")
	bob := env.createUser(t, "bob")
	require.NoError(t, env.cart.Add(ctx, alice, 1, nil))
	order, err := env.orders.Checkout(ctx, alice)
	require.NoError(t, err)

	_, err = env.orders.GetOrder(ctx, bob, order.ID)
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = env.orders.GetOrder(ctx, alice, order.ID+100)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListOrders_NewestFirst(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	userID := env.createUser(t, "alice")

	orders, err := env.orders.ListOrders(ctx, userID)
	require.NoError(t, err)
	assert.Empty(t, orders)

	require.NoError(t, env.cart.Add(ctx, userID, 1, nil))
	first, err := env.orders.Checkout(ctx, userID)
	require.NoError(t, err)

	require.NoError(t, env.cart.Add(ctx, userID, 2, intPtr(2)))
	require.NoError(t, env.cart.Add(ctx, userID, 3, nil))
	second, err := env.orders.Checkout(ctx, userID)
	require.NoError(t, err)

	orders, err = env.orders.ListOrders(ctx, userID)
	require.NoError(t, err)
	require.Len(t, orders, 2)
	assert.Equal(t, second.ID, orders[0].ID)
	assert.Len(t, orders[0].Items, 2)
	assert.Equal(t, first.ID, orders[1].ID)
	assert.Len(t, orders[1].Items, 1)
}

func TestCheckout_RecordsRevenuePerCategory(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	m, err := metrics.NewAppMetrics(provider.Meter("test"), "test", config.DriverSQLite)
	require.NoError(t, err)

	env := newTestEnvWithMetrics(t, m)
	ctx := context.Background()
	userID := env.createUser(t, "alice")
	// seeded: 1 and 2 are Electronics, 3 is Books
	require.NoError(t, env.cart.Add(ctx, userID, 1, nil))
	require.NoError(t, env.cart.Add(ctx, userID, 2, intPtr(2)))
	require.NoError(t, env.cart.Add(ctx, userID, 3, nil))
	_, err = env.orders.Checkout(ctx, userID)
	require.NoError(t, err)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))

	revenue := map[string]float64{}
	for _, sm := range rm.ScopeMetrics {
		for _, mm := range sm.Metrics {
			if mm.Name != "revenue_total" {
				continue
			}
			sum, ok := mm.Data.(metricdata.Sum[float64])
			require.True(t, ok)
			for _, dp := range sum.DataPoints {
				category, _ := dp.Attributes.Value("product_category")
				revenue[category.AsString()] += dp.Value
			}
		}
	}

	assert.InDelta(t, 148.99, revenue["Electronics"], 0.001)
	assert.InDelta(t, 34.99, revenue["Books"], 0.001)
}
