package main

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rollsheet/internal/config"
	"rollsheet/internal/httpmiddleware"
	"rollsheet/internal/teacher"
)

func TestCORSConfig(t *testing.T) {
	all := corsConfig([]string{"*"})
	assert.True(t, all.AllowAllOrigins)
	assert.False(t, all.AllowCredentials)
	assert.Empty(t, all.AllowOrigins)

	listed := corsConfig([]string{"https://a.example", "https://b.example"})
	assert.False(t, listed.AllowAllOrigins)
	assert.True(t, listed.AllowCredentials)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, listed.AllowOrigins)
	assert.Contains(t, listed.AllowHeaders, "Authorization")
}

func TestNewLimiter(t *testing.T) {
	cfg := config.App{RateLimitPerMin: 5, RateLimitBackend: "redis"}
	_, ok := newLimiter(cfg, nil).(*httpmiddleware.SimpleTokenBucket)
	assert.True(t, ok, "redis backend without REDIS_ADDR falls back to memory")

	cfg.RateLimitBackend = "memory"
	_, ok = newLimiter(cfg, nil).(*httpmiddleware.SimpleTokenBucket)
	assert.True(t, ok)
}

func TestOpenAccountsMemory(t *testing.T) {
	accounts, db, err := openAccounts(context.Background(), config.App{DBDriver: "memory"})
	require.NoError(t, err)
	assert.Nil(t, db)
	_, ok := accounts.(*teacher.MemoryStore)
	assert.True(t, ok)
}

func TestOpenAccountsUnknownDriver(t *testing.T) {
	_, _, err := openAccounts(context.Background(), config.App{DBDriver: "oracle", DatabaseURL: "x"})
	assert.Error(t, err)
}
