package db

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/SigNoz/storefront-go-app/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupSQLite(t *testing.T) *DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "storefront.db")

	database, err := NewDB(config.DriverSQLite, config.SQLiteDSN(path), "test")
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })

	require.NoError(t, database.Migrate())
	return database
}

func TestDialectFor(t *testing.T) {
	d, err := DialectFor(config.DriverMySQL)
	require.NoError(t, err)
	assert.Equal(t, "mysql", d.Name())
	assert.Equal(t, " FOR UPDATE", d.ForUpdate())

	d, err = DialectFor(config.DriverSQLite)
	require.NoError(t, err)
	assert.Equal(t, "sqlite", d.Name())
	assert.Empty(t, d.ForUpdate())

	_, err = DialectFor("postgres")
	assert.ErrorContains(t, err, "unsupported database driver")
}

func TestMigrate_SeedsCatalog(t *testing.T) {
	database := setupSQLite(t)
	ctx := context.Background()

	var categories, products int
	require.NoError(t, database.QueryRowContext(ctx, "SELECT COUNT(*) FROM categories").Scan(&categories))
	require.NoError(t, database.QueryRowContext(ctx, "SELECT COUNT(*) FROM products").Scan(&products))
	assert.Equal(t, 3, categories)
	assert.Equal(t, 7, products)
}

func TestMigrate_Idempotent(t *testing.T) {
	database := setupSQLite(t)

	assert.NoError(t, database.Migrate())
}

func TestSQLite_UniqueViolation(t *testing.T) {
	database := setupSQLite(t)
	ctx := context.Background()
	now := time.Now().UTC()

	insert := "INSERT INTO users (username, email, password_hash, created_at) VALUES (?, ?, ?, ?)"
	_, err := database.ExecContext(ctx, insert, "alice", "a@x.com", "hash", now)
	require.NoError(t, err)

	_, err = database.ExecContext(ctx, insert, "alice", "other@x.com", "hash", now)
	require.Error(t, err)
	assert.True(t, database.Dialect.IsUniqueViolation(err))

	assert.False(t, database.Dialect.IsUniqueViolation(assert.AnError))
}

func TestSQLite_UpsertCartItemMerges(t *testing.T) {
	database := setupSQLite(t)
	ctx := context.Background()
	now := time.Now().UTC()

	res, err := database.ExecContext(ctx,
		"INSERT INTO users (username, email, password_hash, created_at) VALUES (?, ?, ?, ?)",
		"bob", "b@x.com", "hash", now)
	require.NoError(t, err)
	userID, err := res.LastInsertId()
	require.NoError(t, err)

	for _, qty := range []int{2, 3} {
		_, err := database.ExecContext(ctx, database.Dialect.UpsertCartItem(), userID, 1, qty, now, now, 100)
		require.NoError(t, err)
	}

	var rows, quantity int
	require.NoError(t, database.QueryRowContext(ctx,
		"SELECT COUNT(*), SUM(quantity) FROM cart_items WHERE user_id = ?", userID).Scan(&rows, &quantity))
	assert.Equal(t, 1, rows)
	assert.Equal(t, 5, quantity)
}

func TestSQLite_UpsertCartItemCapsMergedQuantity(t *testing.T) {
	database := setupSQLite(t)
	ctx := context.Background()
	now := time.Now().UTC()

	res, err := database.ExecContext(ctx,
		"INSERT INTO users (username, email, password_hash, created_at) VALUES (?, ?, ?, ?)",
		"dave", "d@x.com", "hash", now)
	require.NoError(t, err)
	userID, err := res.LastInsertId()
	require.NoError(t, err)

	for _, qty := range []int{8, 8} {
		_, err := database.ExecContext(ctx, database.Dialect.UpsertCartItem(), userID, 1, qty, now, now, 10)
		require.NoError(t, err)
	}

	var quantity int
	require.NoError(t, database.QueryRowContext(ctx,
		"SELECT quantity FROM cart_items WHERE user_id = ?", userID).Scan(&quantity))
	assert.Equal(t, 10, quantity)
}

func TestSQLite_ForeignKeysEnforced(t *testing.T) {
	database := setupSQLite(t)
	now := time.Now().UTC()

	_, err := database.ExecContext(context.Background(),
		"INSERT INTO cart_items (user_id, product_id, quantity, created_at, updated_at) VALUES (?, ?, ?, ?, ?)",
		999, 1, 1, now, now)
	assert.Error(t, err)
}
