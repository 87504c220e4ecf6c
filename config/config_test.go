package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("BOOKING_MAX_PARTICIPANTS", "")
	t.Setenv("BOOKING_PENDING_TTL_SECONDS", "")

	cfg := Load()

	assert.Equal(t, 20, cfg.Business.MaxParticipants)
	assert.Equal(t, "anonymous", cfg.Business.GuestUserID)
	assert.Equal(t, 0, cfg.Business.PendingTTLSeconds)
	assert.Equal(t, "usd", cfg.Business.Currency)
	assert.Equal(t, 10, cfg.RateLimit.BookingPerMinute)
	assert.Equal(t, 1000, cfg.RateLimit.WebhookPerMinute)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("BOOKING_MAX_PARTICIPANTS", "8")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("REDIS_DB", "not-a-number")

	cfg := Load()

	assert.Equal(t, 8, cfg.Business.MaxParticipants)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, 0, cfg.Redis.DB)
}

func TestAllowedOrigins(t *testing.T) {
	t.Setenv("PUBLIC_BASE_URL", "https://holidaysync.example")
	t.Setenv("CORS_ALLOWED_ORIGINS", "")
	assert.Equal(t, []string{"https://holidaysync.example"}, Load().Server.AllowedOrigins)

	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example, https://b.example,")
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, Load().Server.AllowedOrigins)
}
