package services

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/SigNoz/storefront-go-app/internal/cache"
	"github.com/SigNoz/storefront-go-app/internal/db"
	"github.com/SigNoz/storefront-go-app/internal/metrics"
	"github.com/SigNoz/storefront-go-app/pkg/config"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/metric/noop"
	"golang.org/x/crypto/bcrypt"
)

type testEnv struct {
	db       *db.DB
	auth     *AuthService
	cart     *CartService
	orders   *OrderService
	catalog  *CatalogService
	feedback *FeedbackService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	m, err := metrics.NewAppMetrics(noop.NewMeterProvider().Meter("test"), "test", config.DriverSQLite)
	require.NoError(t, err)
	return newTestEnvWithMetrics(t, m)
}

func newTestEnvWithMetrics(t *testing.T, m *metrics.AppMetrics) *testEnv {
	t.Helper()
	path := filepath.Join(t.TempDir(), "storefront.db")

	database, err := db.NewDB(config.DriverSQLite, config.SQLiteDSN(path), "test")
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })
	require.NoError(t, database.Migrate())

	return &testEnv{
		db:       database,
		auth:     NewAuthService(database, m, bcrypt.MinCost),
		cart:     NewCartService(database, m),
		orders:   NewOrderService(database, m),
		catalog:  NewCatalogService(database, m, cache.NewMemoryCache(time.Minute)),
		feedback: NewFeedbackService(database, m),
	}
}

func (e *testEnv) createUser(t *testing.T, username string) int64 {
	t.Helper()
	user, err := e.auth.Register(context.Background(), username, username+"@example.com", "secret-password")
	require.NoError(t, err)
	return user.ID
}

func (e *testEnv) createProduct(t *testing.T, name, price string) int64 {
	t.Helper()
	result, err := e.db.Exec(
		"INSERT INTO products (name, description, price, stock, image_url, category_id) VALUES (?, '', ?, 10, '', 1)",
		name, price,
	)
	require.NoError(t, err)
	id, err := result.LastInsertId()
	require.NoError(t, err)
	return id
}

func (e *testEnv) count(t *testing.T, query string, args ...any) int {
	t.Helper()
	var n int
	require.NoError(t, e.db.QueryRow(query, args...).Scan(&n))
	return n
}

func intPtr(v int) *int { return &v }
