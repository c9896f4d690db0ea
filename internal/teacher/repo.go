package teacher

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"

	"rollsheet/internal/store"
)

const (
	pgUniqueViolation    = "23505"
	mysqlDuplicateEntry  = 1062
	sqliteUniqueFailedOn = "UNIQUE constraint failed"
)

var schemas = map[string]string{
	store.DriverPostgres: `
	CREATE TABLE IF NOT EXISTS teachers (
		id            BIGSERIAL PRIMARY KEY,
		username      TEXT NOT NULL UNIQUE,
		password_hash TEXT NOT NULL,
		sheet_url     TEXT,
		webapp_url    TEXT NOT NULL,
		webapp_secret TEXT NOT NULL,
		created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	store.DriverMySQL: `
	CREATE TABLE IF NOT EXISTS teachers (
		id            BIGINT AUTO_INCREMENT PRIMARY KEY,
		username      VARCHAR(191) NOT NULL UNIQUE,
		password_hash VARCHAR(255) NOT NULL,
		sheet_url     TEXT NULL,
		webapp_url    TEXT NOT NULL,
		webapp_secret VARCHAR(255) NOT NULL,
		created_at    TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	store.DriverSQLite: `
	CREATE TABLE IF NOT EXISTS teachers (
		id            INTEGER PRIMARY KEY AUTOINCREMENT,
		username      TEXT NOT NULL UNIQUE,
		password_hash TEXT NOT NULL,
		sheet_url     TEXT,
		webapp_url    TEXT NOT NULL,
		webapp_secret TEXT NOT NULL,
		created_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
}

// Repository persists teacher accounts through a pooled database handle.
type Repository struct {
	db *store.DB
}

// NewRepository creates a repo.
func NewRepository(db *store.DB) *Repository {
	return &Repository{db: db}
}

// Migrate creates the teachers table if it does not exist yet.
func (r *Repository) Migrate(ctx context.Context) error {
	schema, ok := schemas[r.db.Driver]
	if !ok {
		return errors.New("no schema for driver " + r.db.Driver)
	}
	_, err := r.db.Client.ExecContext(ctx, schema)
	return err
}

// Create inserts a new account and returns its id.
func (r *Repository) Create(ctx context.Context, acct Account) (int64, error) {
	const insert = `INSERT INTO teachers (username, password_hash, sheet_url, webapp_url, webapp_secret) VALUES (?, ?, ?, ?, ?)`
	args := []any{acct.Username, acct.PasswordHash, acct.SheetURL, acct.WebhookURL, acct.WebhookSecret}

	if r.db.Driver == store.DriverPostgres {
		var id int64
		err := r.db.Client.QueryRowContext(ctx, r.db.Rebind(insert+" RETURNING id"), args...).Scan(&id)
		if err != nil {
			return 0, translate(err)
		}
		return id, nil
	}

	res, err := r.db.Client.ExecContext(ctx, insert, args...)
	if err != nil {
		return 0, translate(err)
	}
	return res.LastInsertId()
}

// ByUsername returns the account with the given username.
func (r *Repository) ByUsername(ctx context.Context, username string) (*Account, error) {
	row := r.db.Client.QueryRowContext(ctx, r.db.Rebind(`
		SELECT id, username, password_hash, sheet_url, webapp_url, webapp_secret, created_at
		FROM teachers WHERE username = ?
	`), username)
	return scanAccount(row)
}

// ByID returns the account with the given id.
func (r *Repository) ByID(ctx context.Context, id int64) (*Account, error) {
	row := r.db.Client.QueryRowContext(ctx, r.db.Rebind(`
		SELECT id, username, password_hash, sheet_url, webapp_url, webapp_secret, created_at
		FROM teachers WHERE id = ?
	`), id)
	return scanAccount(row)
}

func scanAccount(row *sql.Row) (*Account, error) {
	var (
		a         Account
		sheetURL  sql.NullString
		createdAt sql.NullTime
	)
	if err := row.Scan(&a.ID, &a.Username, &a.PasswordHash, &sheetURL, &a.WebhookURL, &a.WebhookSecret, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	if sheetURL.Valid {
		a.SheetURL = &sheetURL.String
	}
	if createdAt.Valid {
		a.CreatedAt = createdAt.Time
	} else {
		a.CreatedAt = time.Now().UTC()
	}
	return &a, nil
}

// translate maps driver-specific unique violations onto ErrDuplicateUsername.
func translate(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
		return ErrDuplicateUsername
	}
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) && myErr.Number == mysqlDuplicateEntry {
		return ErrDuplicateUsername
	}
	if strings.Contains(err.Error(), sqliteUniqueFailedOn) {
		return ErrDuplicateUsername
	}
	return err
}
