package db

import (
	"errors"
	"fmt"

	"github.com/SigNoz/storefront-go-app/pkg/config"
	"github.com/go-sql-driver/mysql"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// Dialect holds the statements and error checks that differ between backends.
// Everything else is written in the shared subset with ? placeholders.
type Dialect interface {
	Name() string
	// UpsertCartItem inserts (user_id, product_id, quantity, created_at, updated_at)
	// or adds quantity to the existing row for the pair. A sixth argument caps
	// the merged quantity.
	UpsertCartItem() string
	// ForUpdate is appended to SELECTs that must lock the rows they read
	ForUpdate() string
	IsUniqueViolation(err error) bool
}

// DialectFor returns the dialect for a configured driver name
func DialectFor(driver string) (Dialect, error) {
	switch driver {
	case config.DriverMySQL:
		return mysqlDialect{}, nil
	case config.DriverSQLite:
		return sqliteDialect{}, nil
	}
	return nil, fmt.Errorf("unsupported database driver %q", driver)
}

type mysqlDialect struct{}

func (mysqlDialect) Name() string { return config.DriverMySQL }

func (mysqlDialect) UpsertCartItem() string {
	return `INSERT INTO cart_items (user_id, product_id, quantity, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE quantity = LEAST(quantity + VALUES(quantity), ?), updated_at = VALUES(updated_at)`
}

func (mysqlDialect) ForUpdate() string { return " FOR UPDATE" }

func (mysqlDialect) IsUniqueViolation(err error) bool {
	var mysqlErr *mysql.MySQLError
	return errors.As(err, &mysqlErr) && mysqlErr.Number == 1062
}

type sqliteDialect struct{}

func (sqliteDialect) Name() string { return config.DriverSQLite }

func (sqliteDialect) UpsertCartItem() string {
	return `INSERT INTO cart_items (user_id, product_id, quantity, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(user_id, product_id) DO UPDATE SET quantity = MIN(quantity + excluded.quantity, ?), updated_at = excluded.updated_at`
}

// sqlite has no row locks; write transactions are IMMEDIATE via the DSN
func (sqliteDialect) ForUpdate() string { return "" }

func (sqliteDialect) IsUniqueViolation(err error) bool {
	var sqliteErr *sqlite.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	code := sqliteErr.Code()
	return code == sqlite3.SQLITE_CONSTRAINT_UNIQUE || code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
}
