package teacher

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rollsheet/internal/store"
)

func sampleAccount(username string) Account {
	sheet := "https://docs.google.com/spreadsheets/d/abc123/edit"
	return Account{
		Username:      username,
		PasswordHash:  "$2a$10$hash",
		SheetURL:      &sheet,
		WebhookURL:    "https://script.google.com/macros/s/xyz/exec",
		WebhookSecret: "s3cret",
	}
}

// exerciseStore runs the behaviour every Store implementation must share.
func exerciseStore(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	id, err := s.Create(ctx, sampleAccount("t1"))
	require.NoError(t, err)
	assert.Positive(t, id)

	_, err = s.Create(ctx, sampleAccount("t1"))
	assert.ErrorIs(t, err, ErrDuplicateUsername)

	byName, err := s.ByUsername(ctx, "t1")
	require.NoError(t, err)
	require.NotNil(t, byName)
	assert.Equal(t, id, byName.ID)
	assert.Equal(t, "s3cret", byName.WebhookSecret)
	require.NotNil(t, byName.SheetURL)
	assert.True(t, byName.HasWebhook())

	byID, err := s.ByID(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, byID)
	assert.Equal(t, "t1", byID.Username)

	missing, err := s.ByUsername(ctx, "nobody")
	require.NoError(t, err)
	assert.Nil(t, missing)

	missing, err = s.ByID(ctx, id+100)
	require.NoError(t, err)
	assert.Nil(t, missing)

	noSheet := sampleAccount("t2")
	noSheet.SheetURL = nil
	id2, err := s.Create(ctx, noSheet)
	require.NoError(t, err)
	assert.NotEqual(t, id, id2)
	got, err := s.ByID(ctx, id2)
	require.NoError(t, err)
	assert.Nil(t, got.SheetURL)
}

func TestMemoryStore(t *testing.T) {
	m := NewMemoryStore()
	exerciseStore(t, m)
	assert.Equal(t, 2, m.Len())
}

func TestMemoryStore_ReturnsCopies(t *testing.T) {
	m := NewMemoryStore()
	id, err := m.Create(context.Background(), sampleAccount("t1"))
	require.NoError(t, err)

	a, _ := m.ByID(context.Background(), id)
	a.WebhookURL = "mutated"

	b, _ := m.ByID(context.Background(), id)
	assert.NotEqual(t, "mutated", b.WebhookURL)
}

func TestRepository_SQLite(t *testing.T) {
	ctx := context.Background()
	db, err := store.NewDB(ctx, store.DriverSQLite, filepath.Join(t.TempDir(), "teachers.db"), store.PoolOptions{MaxOpenConns: 1})
	if err != nil {
		t.Skipf("sqlite unavailable: %v", err)
	}
	defer db.Close()

	repo := NewRepository(db)
	require.NoError(t, repo.Migrate(ctx))
	require.NoError(t, repo.Migrate(ctx), "migrate must be idempotent")

	exerciseStore(t, repo)

	var rows int
	require.NoError(t, db.Client.QueryRowContext(ctx, `SELECT COUNT(*) FROM teachers WHERE username = ?`, "t1").Scan(&rows))
	assert.Equal(t, 1, rows)
}

func TestTranslate(t *testing.T) {
	tests := []struct {
		name string
		err  error
		dup  bool
	}{
		{"postgres_unique", &pgconn.PgError{Code: "23505"}, true},
		{"postgres_other", &pgconn.PgError{Code: "23502"}, false},
		{"mysql_duplicate", &mysql.MySQLError{Number: 1062, Message: "Duplicate entry"}, true},
		{"mysql_other", &mysql.MySQLError{Number: 1045}, false},
		{"sqlite_unique", errors.New("UNIQUE constraint failed: teachers.username"), true},
		{"plain", errors.New("connection refused"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := translate(tt.err)
			if tt.dup {
				assert.ErrorIs(t, got, ErrDuplicateUsername)
			} else {
				assert.Equal(t, tt.err, got)
			}
		})
	}
}
