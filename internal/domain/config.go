package domain

import "time"

// Config holds the complete Kestrel configuration.
type Config struct {
	// Server settings
	Server ServerConfig `mapstructure:"server"`

	// Tier determines which adapters are used
	Tier Tier `mapstructure:"tier"`

	// Component configurations
	Repository RepositoryConfig `mapstructure:"repository"`
	Cache      CacheConfig      `mapstructure:"cache"`
	EventBus   EventBusConfig   `mapstructure:"event_bus"`

	// Engines
	Rules    RulesConfig    `mapstructure:"rules"`
	Scanner  ScannerConfig  `mapstructure:"scanner"`
	Rewards  RewardsConfig  `mapstructure:"rewards"`
	Budget   BudgetConfig   `mapstructure:"budget"`
	Insights InsightsConfig `mapstructure:"insights"`
	Worker   WorkerConfig   `mapstructure:"worker"`

	// Observability
	Logging LoggingConfig `mapstructure:"logging"`
	Tracing TracingConfig `mapstructure:"tracing"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	ReadTimeout  int    `mapstructure:"read_timeout"`  // seconds
	WriteTimeout int    `mapstructure:"write_timeout"` // seconds

	// ScanRateLimit caps scan requests per user per minute. Zero disables it.
	ScanRateLimit int `mapstructure:"scan_rate_limit"`
}

// RulesConfig controls the fraud rule catalog.
type RulesConfig struct {
	// File replaces the embedded default table when set.
	File string `mapstructure:"file"`

	// AmountThreshold overrides the amount rule of the default table.
	AmountThreshold float64 `mapstructure:"amount_threshold"`

	// ForeignMode is "high_risk" (country list) or "non_home".
	ForeignMode CountryMode `mapstructure:"foreign_mode"`
	HomeCountry string      `mapstructure:"home_country"`

	// HighRiskCountries overrides the country list of the default table.
	HighRiskCountries []string `mapstructure:"high_risk_countries"`
}

// ScannerConfig controls batch scanning.
type ScannerConfig struct {
	Workers int           `mapstructure:"workers"`
	Window  time.Duration `mapstructure:"window"`
}

// RewardsConfig controls the reward optimizer.
type RewardsConfig struct {
	// File replaces the embedded reward rate table when set.
	File string `mapstructure:"file"`
	TopN int    `mapstructure:"top_n"`
}

// BudgetConfig holds declared budgets.
type BudgetConfig struct {
	Categories         map[string]float64 `mapstructure:"categories"`
	DefaultBudget      float64            `mapstructure:"default_budget"`
	DefaultCreditLimit float64            `mapstructure:"default_credit_limit"`
}

// InsightsConfig controls caching of derived views.
type InsightsConfig struct {
	CacheTTL time.Duration `mapstructure:"cache_ttl"`
}

// WorkerConfig controls the ingest worker.
type WorkerConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // json, text
}

// TracingConfig holds OpenTelemetry settings.
type TracingConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	ServiceName string `mapstructure:"service_name"`
}

// Tier represents the deployment tier.
type Tier string

const (
	// TierCommunity runs on SQLite + channels + in-process cache
	TierCommunity Tier = "community"

	// TierPro runs on PostgreSQL + NATS + Redis
	TierPro Tier = "pro"
)

// DefaultBudgets is the declared monthly budget per category.
func DefaultBudgets() map[string]float64 {
	return map[string]float64{
		"groceries":     500,
		"dining":        400,
		"entertainment": 200,
		"gas":           150,
		"travel":        300,
		"shopping":      300,
		"bills":         1000,
		"other":         200,
	}
}

// DefaultConfig returns a default configuration for Community tier.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  30,
			WriteTimeout: 30,
		},
		Tier: TierCommunity,
		Repository: RepositoryConfig{
			Driver:     "sqlite",
			SQLitePath: "./kestrel.db",
		},
		Cache: CacheConfig{
			Type:         "memory",
			LocalMaxSize: 10000,
			LocalTTL:     5 * time.Minute,
		},
		EventBus: EventBusConfig{
			Type:              "channel",
			ChannelBufferSize: 1000,
		},
		Rules: RulesConfig{
			ForeignMode: CountryHighRisk,
			HomeCountry: "US",
		},
		Scanner: ScannerConfig{
			Workers: 8,
			Window:  30 * 24 * time.Hour,
		},
		Rewards: RewardsConfig{
			TopN: 5,
		},
		Budget: BudgetConfig{
			Categories:         DefaultBudgets(),
			DefaultBudget:      200,
			DefaultCreditLimit: 1000,
		},
		Insights: InsightsConfig{
			CacheTTL: 5 * time.Minute,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Tracing: TracingConfig{
			Enabled:     false,
			ServiceName: "kestrel",
		},
	}
}

// ProConfig returns a configuration for Pro tier.
func ProConfig() *Config {
	cfg := DefaultConfig()
	cfg.Tier = TierPro
	cfg.Repository = RepositoryConfig{
		Driver:       "postgres",
		PostgresHost: "localhost",
		PostgresPort: 5432,
		PostgresDB:   "kestrel",
	}
	cfg.Cache = CacheConfig{
		Type:           "redis",
		RedisAddr:      "localhost:6379",
		EnableTwoPhase: true,
		LocalMaxSize:   1000,
		LocalTTL:       time.Minute,
	}
	cfg.EventBus = EventBusConfig{
		Type:              "nats",
		NATSUrl:           "nats://localhost:4222",
		NATSMaxReconnects: 10,
		NATSReconnectWait: 5,
	}
	cfg.Worker.Enabled = true
	cfg.Tracing.Enabled = true
	return cfg
}
