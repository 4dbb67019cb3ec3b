package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	t.Setenv("DB_USER", "cinema")
	t.Setenv("DB_NAME", "cinema")
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("BOOKING_TICKET_SECRET", "ticket")
	t.Setenv("BOOKING_PAYMENT_WINDOW", "10m")
	t.Setenv("CACHE_METHODS", "GET,HEAD")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.App.Port)
	assert.Equal(t, 10*time.Minute, cfg.Booking.PaymentWindow)
	assert.Equal(t, 30*time.Second, cfg.Booking.SelectTTL)
	assert.Equal(t, "booking.confirmed", cfg.RabbitMQ.Queue)
	assert.True(t, cfg.Cache.Caches("head"))
	assert.False(t, cfg.Cache.Caches("POST"))
}

func TestLoadMissingRequired(t *testing.T) {
	for _, key := range []string{"DB_USER", "DB_NAME", "JWT_SECRET", "BOOKING_TICKET_SECRET"} {
		t.Setenv(key, "")
		require.NoError(t, os.Unsetenv(key))
	}

	_, err := Load()
	assert.Error(t, err)
}

func TestDSN(t *testing.T) {
	dsn := DBConfig{User: "u", Pass: "p", Host: "db", Port: "3306", Name: "cinema"}.DSN()
	assert.Equal(t, "u:p@tcp(db:3306)/cinema?charset=utf8mb4&parseTime=true&loc=UTC&clientFoundRows=true", dsn)

	noPass := DBConfig{User: "u", Host: "db", Port: "3306", Name: "cinema"}.DSN()
	assert.Contains(t, noPass, "u@tcp(db:3306)")
}

func TestRateLimitNormalize(t *testing.T) {
	got := RateLimitConfig{Capacity: 0, RefillTokens: 0, RefillInterval: 0, TTL: time.Second}.Normalize()
	assert.Equal(t, 1, got.Capacity)
	assert.Equal(t, 1, got.RefillTokens)
	assert.Equal(t, time.Second, got.RefillInterval)
	assert.Equal(t, 5*time.Second, got.TTL)
	assert.Equal(t, "rl", got.Prefix)
}
