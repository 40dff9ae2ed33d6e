package config

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "NGN", cfg.Business.Currency)
	assert.True(t, cfg.Business.ReferralPercentage.Equal(decimal.NewFromInt(10)))
	assert.Equal(t, 5*time.Second, cfg.Business.OpenOrderLockTTL)
	assert.False(t, cfg.Business.WebhookAsync)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("REFERRAL_PERCENTAGE", "2.5")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("WEBHOOK_ASYNC", "true")
	t.Setenv("STORE_DRIVER", "memory")

	cfg := Load()

	assert.True(t, cfg.Business.ReferralPercentage.Equal(decimal.RequireFromString("2.5")))
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.True(t, cfg.Business.WebhookAsync)
	assert.Equal(t, "memory", cfg.Database.Driver)
}

func TestInvalidReferralPercentageFallsBackToZero(t *testing.T) {
	t.Setenv("REFERRAL_PERCENTAGE", "ten")

	cfg := Load()

	assert.True(t, cfg.Business.ReferralPercentage.IsZero())
}
