package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "localhost:6379", cfg.RedisAddr)
	assert.Equal(t, "invoice:extracted", cfg.EventsStream)
	assert.Equal(t, "invoice:alerts", cfg.AlertsStream)
	assert.Equal(t, "invoice:deadletter", cfg.DeadLetterStream)
	assert.Equal(t, 1000.00, cfg.AlertThreshold)
	assert.Equal(t, 5, cfg.MaxDeliveryAttempts)
	assert.Equal(t, 5*time.Minute, cfg.UploadURLTTL)
	assert.Equal(t, 30*time.Second, cfg.HandlerTimeout)
	assert.Equal(t, "gemini", cfg.ExtractorMode)
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("ALERT_THRESHOLD", "250.50")
	t.Setenv("MAX_DELIVERY_ATTEMPTS", "3")
	t.Setenv("EXTRACTOR_MODE", "static")
	t.Setenv("EVENTS_STREAM", "invoices:test")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, 250.50, cfg.AlertThreshold)
	assert.Equal(t, 3, cfg.MaxDeliveryAttempts)
	assert.Equal(t, "static", cfg.ExtractorMode)
	assert.Equal(t, "invoices:test", cfg.EventsStream)
}
