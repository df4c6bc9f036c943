package config

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "kestrel.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(t.TempDir()))
	t.Cleanup(func() { _ = os.Chdir(wd) })

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, domain.TierCommunity, cfg.Tier)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "sqlite", cfg.Repository.Driver)
	assert.Equal(t, "channel", cfg.EventBus.Type)
	assert.Equal(t, domain.CountryHighRisk, cfg.Rules.ForeignMode)
	assert.Equal(t, 30*24*time.Hour, cfg.Scanner.Window)
	assert.Equal(t, 400.0, cfg.Budget.Categories["dining"])
	assert.Equal(t, 5*time.Minute, cfg.Insights.CacheTTL)
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9090
rules:
  amount_threshold: 2000
  foreign_mode: non_home
  home_country: CA
scanner:
  window: 72h
budget:
  categories:
    dining: 250
`)

	cfg, err := load(viper.New(), path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 2000.0, cfg.Rules.AmountThreshold)
	assert.Equal(t, domain.CountryNonHome, cfg.Rules.ForeignMode)
	assert.Equal(t, "CA", cfg.Rules.HomeCountry)
	assert.Equal(t, 72*time.Hour, cfg.Scanner.Window)
	assert.Equal(t, 250.0, cfg.Budget.Categories["dining"])
	assert.Equal(t, "sqlite", cfg.Repository.Driver, "unset keys keep defaults")
}

func TestEnvironmentOverrides(t *testing.T) {
	t.Setenv("KESTREL_SERVER_PORT", "7070")
	t.Setenv("KESTREL_RULES_AMOUNT_THRESHOLD", "1500")
	t.Setenv("KESTREL_WORKER_ENABLED", "true")

	path := writeConfig(t, "server:\n  port: 9090\n")
	cfg, err := load(viper.New(), path)
	require.NoError(t, err)

	assert.Equal(t, 7070, cfg.Server.Port)
	assert.Equal(t, 1500.0, cfg.Rules.AmountThreshold)
	assert.True(t, cfg.Worker.Enabled)
}

func TestProTier(t *testing.T) {
	t.Setenv("KESTREL_TIER", "pro")

	path := writeConfig(t, "repository:\n  postgres_db: ledger\n")
	cfg, err := load(viper.New(), path)
	require.NoError(t, err)

	assert.Equal(t, domain.TierPro, cfg.Tier)
	assert.Equal(t, "postgres", cfg.Repository.Driver)
	assert.Equal(t, "ledger", cfg.Repository.PostgresDB)
	assert.Equal(t, "redis", cfg.Cache.Type)
	assert.Equal(t, "nats", cfg.EventBus.Type)
	assert.True(t, cfg.Worker.Enabled)
}

func TestLoadErrors(t *testing.T) {
	tests := map[string]string{
		"bad driver":       "repository:\n  driver: mysql\n",
		"bad port":         "server:\n  port: 0\n",
		"bad foreign mode": "rules:\n  foreign_mode: everywhere\n",
	}

	for name, content := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := load(viper.New(), writeConfig(t, content))
			assert.ErrorIs(t, err, domain.ErrInvalidInput)
		})
	}

	t.Run("missing explicit file", func(t *testing.T) {
		_, err := load(viper.New(), filepath.Join(t.TempDir(), "absent.yaml"))
		assert.Error(t, err)
	})
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer

	logger := NewLogger(domain.LoggingConfig{Level: "warn", Format: "json"}, &buf)
	logger.Info("hidden")
	logger.Warn("shown", "user_id", "user-001")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, `"user_id":"user-001"`)

	buf.Reset()
	NewLogger(domain.LoggingConfig{Level: "debug", Format: "text"}, &buf).Debug("details")
	assert.True(t, strings.Contains(buf.String(), "msg=details"))
}
