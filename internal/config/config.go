// Package config loads Kestrel configuration from a YAML file, a .env file
// and KESTREL_* environment variables, in increasing precedence.
package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"strings"

	"github.com/joho/godotenv"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. KESTREL_SERVER_PORT.
const EnvPrefix = "KESTREL"

// Load builds the configuration. path may be empty, in which case
// ./kestrel.yaml is used when present.
func Load(path string) (*domain.Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	return load(v, path)
}

func load(v *viper.Viper, path string) (*domain.Config, error) {
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("kestrel")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	// The tier picks the adapter defaults everything else overrides.
	base := domain.DefaultConfig()
	if domain.Tier(v.GetString("tier")) == domain.TierPro {
		base = domain.ProConfig()
	}
	setDefaults(v, base)

	cfg := &domain.Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper, c *domain.Config) {
	v.SetDefault("tier", string(c.Tier))

	v.SetDefault("server.host", c.Server.Host)
	v.SetDefault("server.port", c.Server.Port)
	v.SetDefault("server.read_timeout", c.Server.ReadTimeout)
	v.SetDefault("server.write_timeout", c.Server.WriteTimeout)
	v.SetDefault("server.scan_rate_limit", c.Server.ScanRateLimit)

	v.SetDefault("repository.driver", c.Repository.Driver)
	v.SetDefault("repository.sqlite_path", c.Repository.SQLitePath)
	v.SetDefault("repository.postgres_host", c.Repository.PostgresHost)
	v.SetDefault("repository.postgres_port", c.Repository.PostgresPort)
	v.SetDefault("repository.postgres_user", c.Repository.PostgresUser)
	v.SetDefault("repository.postgres_password", c.Repository.PostgresPassword)
	v.SetDefault("repository.postgres_db", c.Repository.PostgresDB)
	v.SetDefault("repository.postgres_sslmode", c.Repository.PostgresSSLMode)
	v.SetDefault("repository.max_open_conns", c.Repository.MaxOpenConns)
	v.SetDefault("repository.max_idle_conns", c.Repository.MaxIdleConns)
	v.SetDefault("repository.conn_max_lifetime", c.Repository.ConnMaxLifetime)

	v.SetDefault("cache.type", c.Cache.Type)
	v.SetDefault("cache.local_max_size", c.Cache.LocalMaxSize)
	v.SetDefault("cache.local_ttl", c.Cache.LocalTTL)
	v.SetDefault("cache.redis_addr", c.Cache.RedisAddr)
	v.SetDefault("cache.redis_password", c.Cache.RedisPassword)
	v.SetDefault("cache.redis_db", c.Cache.RedisDB)
	v.SetDefault("cache.enable_two_phase", c.Cache.EnableTwoPhase)

	v.SetDefault("event_bus.type", c.EventBus.Type)
	v.SetDefault("event_bus.channel_buffer_size", c.EventBus.ChannelBufferSize)
	v.SetDefault("event_bus.nats_url", c.EventBus.NATSUrl)
	v.SetDefault("event_bus.nats_token", c.EventBus.NATSToken)
	v.SetDefault("event_bus.nats_max_reconnects", c.EventBus.NATSMaxReconnects)
	v.SetDefault("event_bus.nats_reconnect_wait", c.EventBus.NATSReconnectWait)

	v.SetDefault("rules.file", c.Rules.File)
	v.SetDefault("rules.amount_threshold", c.Rules.AmountThreshold)
	v.SetDefault("rules.foreign_mode", string(c.Rules.ForeignMode))
	v.SetDefault("rules.home_country", c.Rules.HomeCountry)
	v.SetDefault("rules.high_risk_countries", c.Rules.HighRiskCountries)

	v.SetDefault("scanner.workers", c.Scanner.Workers)
	v.SetDefault("scanner.window", c.Scanner.Window)

	v.SetDefault("rewards.file", c.Rewards.File)
	v.SetDefault("rewards.top_n", c.Rewards.TopN)

	v.SetDefault("budget.categories", c.Budget.Categories)
	v.SetDefault("budget.default_budget", c.Budget.DefaultBudget)
	v.SetDefault("budget.default_credit_limit", c.Budget.DefaultCreditLimit)

	v.SetDefault("insights.cache_ttl", c.Insights.CacheTTL)
	v.SetDefault("worker.enabled", c.Worker.Enabled)

	v.SetDefault("logging.level", c.Logging.Level)
	v.SetDefault("logging.format", c.Logging.Format)
	v.SetDefault("tracing.enabled", c.Tracing.Enabled)
	v.SetDefault("tracing.service_name", c.Tracing.ServiceName)
}

// Validate rejects configurations the server cannot start with.
func Validate(c *domain.Config) error {
	switch {
	case c.Server.Port <= 0 || c.Server.Port > 65535:
		return fmt.Errorf("%w: server.port %d out of range", domain.ErrInvalidInput, c.Server.Port)
	case c.Repository.Driver != "sqlite" && c.Repository.Driver != "postgres":
		return fmt.Errorf("%w: unsupported repository.driver %q", domain.ErrInvalidInput, c.Repository.Driver)
	case c.Rules.ForeignMode != "" && c.Rules.ForeignMode != domain.CountryHighRisk && c.Rules.ForeignMode != domain.CountryNonHome:
		return fmt.Errorf("%w: rules.foreign_mode must be high_risk or non_home", domain.ErrInvalidInput)
	case c.Rules.AmountThreshold < 0:
		return fmt.Errorf("%w: rules.amount_threshold must not be negative", domain.ErrInvalidInput)
	case c.Scanner.Window < 0:
		return fmt.Errorf("%w: scanner.window must not be negative", domain.ErrInvalidInput)
	}
	return nil
}

// NewLogger builds the process logger from cfg.
func NewLogger(cfg domain.LoggingConfig, w io.Writer) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	if strings.ToLower(cfg.Format) == "text" {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}
