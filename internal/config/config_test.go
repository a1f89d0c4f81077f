package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDefaults(t *testing.T) {
	cfg, err := Parse([]byte("{}"))
	require.NoError(t, err)

	assert.Equal(t, "ETHUSDT", cfg.Price.Symbol)
	assert.Equal(t, 5*time.Second, cfg.PriceTimeout())
	assert.Equal(t, 60*time.Second, cfg.PriceCacheTTL())
	assert.Equal(t, time.Minute, cfg.SyncInterval())
	assert.Equal(t, 1000.0, cfg.Trading.DefaultPositionSize)
	assert.False(t, cfg.Trading.InvalidateOnPreEntrySLHit)
	assert.False(t, cfg.Trading.ExitAtLastTakeProfit)
	assert.Equal(t, "sqlite", cfg.Storage.Driver)
	assert.Equal(t, 8080, cfg.Web.Port)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := `
price:
  timeout_seconds: 3
  cache_ttl: 30s
trading:
  invalidate_on_pre_entry_sl_hit: true
scheduler:
  interval: 15s
storage:
  driver: postgres
  postgres_dsn: postgres://u:p@localhost:5432/trades
logging:
  level: debug
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 3*time.Second, cfg.PriceTimeout())
	assert.Equal(t, 30*time.Second, cfg.PriceCacheTTL())
	assert.Equal(t, 15*time.Second, cfg.SyncInterval())
	assert.True(t, cfg.Trading.InvalidateOnPreEntrySLHit)
	assert.Equal(t, "postgres", cfg.Storage.Driver)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"bad_interval", "scheduler:\n  interval: soon\n"},
		{"negative_ttl", "price:\n  cache_ttl: -1s\n"},
		{"postgres_without_dsn", "storage:\n  driver: postgres\n"},
		{"unknown_driver", "storage:\n  driver: mongo\n"},
		{"telegram_without_token", "telegram:\n  enabled: true\n  chat_id: 1\n"},
		{"ai_without_key", "ai:\n  enabled: true\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			assert.Error(t, err)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
