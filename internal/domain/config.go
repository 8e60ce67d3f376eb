package domain

import "time"

// Config holds the complete Harrier configuration.
type Config struct {
	// Server settings
	Server ServerConfig `json:"server"`

	// Tier determines feature availability
	Tier Tier `json:"tier"`

	// Component configurations
	Repository RepositoryConfig `json:"repository"`
	Cache      CacheConfig      `json:"cache"`
	EventBus   EventBusConfig   `json:"eventBus"`

	// Detection thresholds for the analysis pipeline
	Detection DetectionConfig `json:"detection"`

	// Analysis run settings
	Analysis AnalysisConfig `json:"analysis"`

	// Observability
	Logging LoggingConfig `json:"logging"`
	Tracing TracingConfig `json:"tracing"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string `json:"host"`
	Port         int    `json:"port"`
	ReadTimeout  int    `json:"readTimeout"`  // seconds
	WriteTimeout int    `json:"writeTimeout"` // seconds
}

// DetectionConfig holds the pattern detector thresholds. The defaults are
// the published detection contract; tests tighten them to build small
// fixtures.
type DetectionConfig struct {
	// Cycle rings keep elementary circuits of length [Min, Max].
	MinCycleLength int `json:"minCycleLength"`
	MaxCycleLength int `json:"maxCycleLength"`

	// Shell candidates pass money through with low overall connectivity.
	ShellMaxDegree int `json:"shellMaxDegree"`
	ShellMaxHops   int `json:"shellMaxHops"`
	ShellMinChain  int `json:"shellMinChain"`

	// Smurfing hubs fan in or out to at least this many counterparties.
	FanThreshold int `json:"fanThreshold"`

	// Temporal clustering: BurstSize timestamps inside any BurstWindow.
	BurstWindow time.Duration `json:"burstWindow"`
	BurstSize   int           `json:"burstSize"`

	// High-volume merchant penalty applied by the scoring engine.
	MerchantTxThreshold int     `json:"merchantTxThreshold"`
	MerchantMaxPenalty  float64 `json:"merchantMaxPenalty"`
}

// AnalysisConfig holds run-level settings around the core pipeline.
type AnalysisConfig struct {
	// ReportCacheTTL controls how long identical-batch reports are served
	// from cache. Zero disables report caching.
	ReportCacheTTL time.Duration `json:"reportCacheTTL"`

	// RateLimitPerMinute caps analysis submissions per tenant. Zero
	// disables rate limiting.
	RateLimitPerMinute int `json:"rateLimitPerMinute"`

	// AsyncEnabled accepts batches for background analysis via the bus.
	AsyncEnabled bool `json:"asyncEnabled"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `json:"level"`  // debug, info, warn, error
	Format string `json:"format"` // json, text
}

// TracingConfig holds OpenTelemetry settings.
type TracingConfig struct {
	Enabled      bool   `json:"enabled"`
	ServiceName  string `json:"serviceName"`
	ExporterType string `json:"exporterType"` // stdout, otlp, jaeger
	Endpoint     string `json:"endpoint"`
}

// Tier represents the product tier.
type Tier string

const (
	// TierCommunity is the free tier with SQLite + channels
	TierCommunity Tier = "community"

	// TierPro is the paid tier with PostgreSQL + NATS + Redis
	TierPro Tier = "pro"
)

// DefaultDetectionConfig returns the published detection thresholds.
func DefaultDetectionConfig() DetectionConfig {
	return DetectionConfig{
		MinCycleLength:      3,
		MaxCycleLength:      5,
		ShellMaxDegree:      3,
		ShellMaxHops:        10,
		ShellMinChain:       3,
		FanThreshold:        10,
		BurstWindow:         72 * time.Hour,
		BurstSize:           5,
		MerchantTxThreshold: 20,
		MerchantMaxPenalty:  40,
	}
}

// DefaultConfig returns a default configuration for Community tier.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  60,
			WriteTimeout: 60,
		},
		Tier: TierCommunity,
		Repository: RepositoryConfig{
			Driver:     "sqlite",
			SQLitePath: "./harrier.db",
		},
		Cache: CacheConfig{
			Type:         "memory",
			LocalMaxSize: 1000,
			LocalTTL:     5 * time.Minute,
		},
		EventBus: EventBusConfig{
			Type:              "channel",
			ChannelBufferSize: 1000,
		},
		Detection: DefaultDetectionConfig(),
		Analysis: AnalysisConfig{
			ReportCacheTTL:     15 * time.Minute,
			RateLimitPerMinute: 0,
			AsyncEnabled:       false,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Tracing: TracingConfig{
			Enabled:     false,
			ServiceName: "harrier",
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
		PostgresDB:   "harrier",
	}
	cfg.Cache = CacheConfig{
		Type:           "redis",
		RedisAddr:      "localhost:6379",
		EnableTwoPhase: true,
		LocalMaxSize:   1000,
	}
	cfg.EventBus = EventBusConfig{
		Type:              "nats",
		NATSUrl:           "nats://localhost:4222",
		NATSMaxReconnects: 10,
		NATSReconnectWait: 5,
	}
	cfg.Analysis.AsyncEnabled = true
	cfg.Analysis.RateLimitPerMinute = 60
	cfg.Tracing.Enabled = true
	return cfg
}
