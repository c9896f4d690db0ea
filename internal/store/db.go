package store

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"
)

// Supported database/sql driver names.
const (
	DriverPostgres = "pgx"
	DriverMySQL    = "mysql"
	DriverSQLite   = "sqlite3"
)

// PoolOptions bounds the connection pool owned by a DB.
type PoolOptions struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// DefaultPool mirrors the pool the service has always run with.
var DefaultPool = PoolOptions{MaxOpenConns: 10, MaxIdleConns: 5, ConnMaxLifetime: time.Hour}

// DB wraps sql.DB together with the dialect of its driver.
type DB struct {
	Client *sql.DB
	Driver string
}

// NewDB opens a pooled connection for the given driver and pings it.
// The returned DB is owned by the caller and must be closed.
func NewDB(ctx context.Context, driver, dsn string, pool PoolOptions) (*DB, error) {
	switch driver {
	case DriverPostgres, DriverMySQL, DriverSQLite:
	case "postgres":
		driver = DriverPostgres
	default:
		return nil, fmt.Errorf("unsupported db driver %q", driver)
	}
	if driver == DriverMySQL && !strings.Contains(dsn, "parseTime=") {
		dsn = appendParam(dsn, "parseTime=true")
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, err
	}
	if pool.MaxOpenConns <= 0 {
		pool.MaxOpenConns = DefaultPool.MaxOpenConns
	}
	if pool.MaxIdleConns <= 0 {
		pool.MaxIdleConns = DefaultPool.MaxIdleConns
	}
	if pool.ConnMaxLifetime <= 0 {
		pool.ConnMaxLifetime = DefaultPool.ConnMaxLifetime
	}
	db.SetMaxOpenConns(pool.MaxOpenConns)
	db.SetMaxIdleConns(pool.MaxIdleConns)
	db.SetConnMaxLifetime(pool.ConnMaxLifetime)

	d := &DB{Client: db, Driver: driver}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return d, nil
}

// Rebind rewrites ? placeholders into the driver's positional form.
func (d *DB) Rebind(query string) string {
	if d == nil || d.Driver != DriverPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Healthy verifies database connectivity.
func (d *DB) Healthy(ctx context.Context) bool {
	if d == nil || d.Client == nil {
		return false
	}
	return d.Client.PingContext(ctx) == nil
}

// Close closes the underlying connection pool.
func (d *DB) Close() error {
	if d == nil || d.Client == nil {
		return nil
	}
	return d.Client.Close()
}

func appendParam(dsn, param string) string {
	if strings.Contains(dsn, "?") {
		return dsn + "&" + param
	}
	return dsn + "?" + param
}
