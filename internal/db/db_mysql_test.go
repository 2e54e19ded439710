package db

import (
	"context"
	"testing"
	"time"

	"github.com/SigNoz/storefront-go-app/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/mysql"
)

func setupMySQL(t *testing.T) *DB {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping MySQL container test in -short mode")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)

	ctx := context.Background()
	container, err := mysql.Run(ctx,
		"mysql:8.0.36",
		mysql.WithDatabase("storefront"),
		mysql.WithUsername("storefront"),
		mysql.WithPassword("storefront"),
	)
	testcontainers.CleanupContainer(t, container)
	require.NoError(t, err)

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "3306/tcp")
	require.NoError(t, err)

	cfg := &config.Config{
		DBDriver:   config.DriverMySQL,
		DBHost:     host,
		DBPort:     port.Port(),
		DBUser:     "storefront",
		DBPassword: "storefront",
		DBName:     "storefront",
	}

	database, err := NewDB(cfg.DBDriver, cfg.GetDSN(), "test")
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })

	require.NoError(t, database.Migrate())
	return database
}

func TestMySQL_MigrateAndUpsert(t *testing.T) {
	database := setupMySQL(t)
	ctx := context.Background()
	now := time.Now().UTC()

	var products int
	require.NoError(t, database.QueryRowContext(ctx, "SELECT COUNT(*) FROM products").Scan(&products))
	assert.Equal(t, 7, products)

	res, err := database.ExecContext(ctx,
		"INSERT INTO users (username, email, password_hash, created_at) VALUES (?, ?, ?, ?)",
		"carol", "c@x.com", "hash", now)
	require.NoError(t, err)
	userID, err := res.LastInsertId()
	require.NoError(t, err)

	for _, qty := range []int{1, 4} {
		_, err := database.ExecContext(ctx, database.Dialect.UpsertCartItem(), userID, 2, qty, now, now, 100)
		require.NoError(t, err)
	}

	var rows, quantity int
	require.NoError(t, database.QueryRowContext(ctx,
		"SELECT COUNT(*), SUM(quantity) FROM cart_items WHERE user_id = ?", userID).Scan(&rows, &quantity))
	assert.Equal(t, 1, rows)
	assert.Equal(t, 5, quantity)

	_, err = database.ExecContext(ctx,
		"INSERT INTO users (username, email, password_hash, created_at) VALUES (?, ?, ?, ?)",
		"carol", "other@x.com", "hash", now)
	require.Error(t, err)
	assert.True(t, database.Dialect.IsUniqueViolation(err))
}
