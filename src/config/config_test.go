package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 500, cfg.BatchLimit)
	assert.Equal(t, 100000, cfg.MaxTickets)
	assert.Equal(t, 5, cfg.ClaimRetries)
	assert.Equal(t, 30*time.Minute, cfg.ReservationTTL)
	assert.Equal(t, time.Minute, cfg.SweepInterval)
	assert.Equal(t, "mercadopago", cfg.PaymentProvider)
	assert.Equal(t, []string{"http://localhost:3000"}, cfg.AllowedOrigins)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("STORE_DRIVER", "SQLite")
	t.Setenv("BATCH_LIMIT", "100")
	t.Setenv("RESERVATION_TTL", "15m")
	t.Setenv("ALLOWED_ORIGINS", "https://rifas.example, https://admin.rifas.example")
	t.Setenv("MAINTENANCE", "true")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.StoreDriver)
	assert.Equal(t, 100, cfg.BatchLimit)
	assert.Equal(t, 15*time.Minute, cfg.ReservationTTL)
	assert.Equal(t, []string{"https://rifas.example", "https://admin.rifas.example"}, cfg.AllowedOrigins)
	assert.True(t, cfg.Maintenance)
	assert.Equal(t, "file:raffles.db?cache=shared", cfg.DSN())
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "raffles.yaml")
	require.NoError(t, os.WriteFile(path, []byte("PAYMENT_PROVIDER: stripe\nCLAIM_RETRIES: 9\n"), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "stripe", cfg.PaymentProvider)
	assert.Equal(t, 9, cfg.ClaimRetries)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	t.Setenv("BATCH_LIMIT", "501")
	_, err := Load("")
	assert.Error(t, err)

	t.Setenv("BATCH_LIMIT", "500")
	t.Setenv("STORE_DRIVER", "mongo")
	_, err = Load("")
	assert.Error(t, err)
}

func TestGetDSN(t *testing.T) {
	cfg := &Config{
		StoreDriver:      "postgres",
		DatabaseHost:     "db",
		DatabaseUser:     "postgres",
		DatabasePassword: "password",
		DatabaseName:     "rafflesdb",
		DatabasePort:     "5432",
		DatabaseSSLMode:  "disable",
		DatabaseTimezone: "UTC",
	}
	assert.Equal(t, "host=db user=postgres password=password dbname=rafflesdb port=5432 sslmode=disable TimeZone=UTC", cfg.DSN())

	cfg.DatabaseURL = "postgres://u:p@db/rafflesdb"
	assert.Equal(t, "postgres://u:p@db/rafflesdb", cfg.DSN())
}
