package config

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writePublicKey(t *testing.T) string {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	der, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "public.pem")
	require.NoError(t, os.WriteFile(path, pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der}), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("PUBLIC_KEY_PATH", writePublicKey(t))
	t.Setenv("DB_CONNECTION_STRING", "postgres://localhost/menus")

	cfg := Load()

	require.NotNil(t, cfg.JWTPublicKey)
	assert.Equal(t, "menu_breaches", cfg.BreachQueueName)
	assert.Equal(t, "menu.generation.requests", cfg.GenerationQueueName)
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, uint32(5), cfg.CircuitBreakerMaxRequests)
	assert.Equal(t, 60*time.Second, cfg.CircuitBreakerInterval)
	assert.Equal(t, 2*time.Minute, cfg.GenerationLockTTL)
	assert.Equal(t, 5*time.Second, cfg.GenerationRequeueDelay)
	assert.True(t, cfg.DefaultPricePerGram.Equal(decimal.RequireFromString("0.01")))
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("PUBLIC_KEY_PATH", writePublicKey(t))
	t.Setenv("DB_CONNECTION_STRING", "postgres://localhost/menus")
	t.Setenv("CIRCUIT_BREAKER_MAX_REQUESTS", "10")
	t.Setenv("CIRCUIT_BREAKER_TIMEOUT", "5s")
	t.Setenv("GENERATION_LOCK_TTL", "not-a-duration")
	t.Setenv("DEFAULT_PRICE_PER_GRAM", "0.035")
	t.Setenv("REDIS_URL", "redis://cache:6379/2")
	t.Setenv("GENERATION_REQUEUE_DELAY", "750ms")

	cfg := Load()

	assert.Equal(t, uint32(10), cfg.CircuitBreakerMaxRequests)
	assert.Equal(t, 5*time.Second, cfg.CircuitBreakerTimeout)
	assert.Equal(t, 2*time.Minute, cfg.GenerationLockTTL)
	assert.Equal(t, "0.035", cfg.DefaultPricePerGram.String())
	assert.Equal(t, 750*time.Millisecond, cfg.GenerationRequeueDelay)
	assert.Equal(t, "redis://cache:6379/2", cfg.RedisURL)
}

func TestLoad_RequiresDatabase(t *testing.T) {
	t.Setenv("PUBLIC_KEY_PATH", writePublicKey(t))
	t.Setenv("DB_CONNECTION_STRING", "")

	assert.Panics(t, func() { Load() })
}

func TestGetEnvDecimal_RejectsNegative(t *testing.T) {
	t.Setenv("PRICE", "-1")
	fallback := decimal.RequireFromString("0.02")

	assert.True(t, getEnvDecimal("PRICE", fallback).Equal(fallback))
}

func TestInitDatabase_CreatesSchema(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	t.Setenv("DROP_TABLES_ON_STARTUP", "")

	for _, table := range menuTables {
		mock.ExpectExec("CREATE TABLE IF NOT EXISTS " + table.name).WillReturnResult(sqlmock.NewResult(0, 0))
	}
	for i := 0; i < 10; i++ {
		mock.ExpectExec("CREATE INDEX IF NOT EXISTS").WillReturnResult(sqlmock.NewResult(0, 0))
	}

	require.NoError(t, InitDatabase(db))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInitDatabase_DropsInReverseOrder(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	t.Setenv("DROP_TABLES_ON_STARTUP", "true")

	for i := len(menuTables) - 1; i >= 0; i-- {
		mock.ExpectExec("DROP TABLE IF EXISTS " + menuTables[i].name + " CASCADE").WillReturnResult(sqlmock.NewResult(0, 0))
	}
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS patients").WillReturnError(assert.AnError)

	err = InitDatabase(db)
	assert.ErrorContains(t, err, "failed to create patients table")
}
