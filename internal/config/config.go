package config

import (
	"fmt"
	"os"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/kelseyhightower/envconfig"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig
	Logging   LogConfig
	Breaker   BreakerConfig
	RateLimit RateLimitConfig
	Cache     CacheConfig
	Health    HealthConfig
	Decision  DecisionConfig
	Venue     VenueConfig
	HTTPLimit HTTPLimitConfig
	Audit     AuditConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port string `envconfig:"PORT" default:"8600"`
	Host string `envconfig:"HOST" default:"0.0.0.0"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" default:"info"`
	Development bool   `envconfig:"LOG_DEV" default:"false"`
}

// BreakerConfig holds circuit breaker configuration, shared by every
// registered dependency breaker.
type BreakerConfig struct {
	FailureThreshold  int           `envconfig:"BREAKER_FAILURE_THRESHOLD" default:"5"`
	SuccessThreshold  int           `envconfig:"BREAKER_SUCCESS_THRESHOLD" default:"2"`
	OpenTimeout       time.Duration `envconfig:"BREAKER_OPEN_TIMEOUT" default:"60s"`
	HalfOpenMaxProbes int           `envconfig:"BREAKER_HALF_OPEN_MAX_PROBES" default:"3"`
}

// RateLimitConfig holds the outbound rate limiter ceilings. Each pair maps
// onto one token bucket.
type RateLimitConfig struct {
	OrdersPerSecond int `envconfig:"LIMIT_ORDERS_PER_SECOND" default:"50"`
	WeightPerMinute int `envconfig:"LIMIT_WEIGHT_PER_MINUTE" default:"1200"`
	OrdersPerDay    int `envconfig:"LIMIT_ORDERS_PER_DAY" default:"200000"`

	AcquireTimeout time.Duration `envconfig:"LIMIT_ACQUIRE_TIMEOUT" default:"10s"`
}

// CacheConfig holds cache configuration.
type CacheConfig struct {
	MaxSize    int           `envconfig:"CACHE_MAX_SIZE" default:"1000"`
	DefaultTTL time.Duration `envconfig:"CACHE_DEFAULT_TTL" default:"5m"`
	TickerTTL  time.Duration `envconfig:"CACHE_TICKER_TTL" default:"2s"`
}

// HealthConfig holds health monitor configuration.
type HealthConfig struct {
	MinHealthForNormalMode float64 `envconfig:"HEALTH_MIN_NORMAL" default:"50"`
	FailureFlagThreshold   int     `envconfig:"HEALTH_FAILURE_FLAG_THRESHOLD" default:"3"`
}

// DecisionConfig holds orchestrator configuration.
type DecisionConfig struct {
	Mode              string        `envconfig:"DECISION_MODE" default:"hybrid"` // "hybrid" or "auto"
	ExecuteScore      float64       `envconfig:"DECISION_EXECUTE_SCORE" default:"90"`
	ExecuteConfidence float64       `envconfig:"DECISION_EXECUTE_CONFIDENCE" default:"0.8"`
	EvaluatorTimeout  time.Duration `envconfig:"DECISION_EVALUATOR_TIMEOUT" default:"5s"`
	PolicyPath        string        `envconfig:"DECISION_POLICY_PATH" default:""`
}

// VenueConfig holds external venue client configuration.
type VenueConfig struct {
	BaseURL   string        `envconfig:"VENUE_BASE_URL" default:"https://testnet.binance.vision"`
	APIKey    string        `envconfig:"VENUE_API_KEY" default:""`
	APISecret string        `envconfig:"VENUE_API_SECRET" default:""`
	Timeout   time.Duration `envconfig:"VENUE_TIMEOUT" default:"30s"`
}

// HTTPLimitConfig holds inbound per-client rate limiting configuration.
type HTTPLimitConfig struct {
	RequestsPerSecond int  `envconfig:"HTTP_LIMIT_RPS" default:"100"`
	Burst             int  `envconfig:"HTTP_LIMIT_BURST" default:"200"`
	Enabled           bool `envconfig:"HTTP_LIMIT_ENABLED" default:"true"`
}

// AuditConfig holds decision journal configuration.
type AuditConfig struct {
	Path        string `envconfig:"AUDIT_PATH" default:"decisions.jsonl"`
	MaxSizeMB   int    `envconfig:"AUDIT_MAX_SIZE_MB" default:"64"`
	KeepEntries int    `envconfig:"AUDIT_KEEP_ENTRIES" default:"256"`
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadOrDefault loads configuration from environment or returns defaults.
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// Default returns default configuration.
func Default() *Config {
	var cfg Config
	// envconfig with empty environment applies struct tag defaults
	if err := envconfig.Process("", &cfg); err != nil {
		panic(fmt.Sprintf("default config invalid: %v", err))
	}
	return &cfg
}

// Validate checks cross-field constraints. Configuration errors are fatal
// at startup only; nothing revalidates during a decision cycle.
func (c *Config) Validate() error {
	if c.Breaker.FailureThreshold <= 0 {
		return fmt.Errorf("breaker failure threshold must be positive, got %d", c.Breaker.FailureThreshold)
	}
	if c.Breaker.SuccessThreshold <= 0 {
		return fmt.Errorf("breaker success threshold must be positive, got %d", c.Breaker.SuccessThreshold)
	}
	if c.Breaker.HalfOpenMaxProbes <= 0 {
		return fmt.Errorf("breaker half-open probe budget must be positive, got %d", c.Breaker.HalfOpenMaxProbes)
	}
	if c.RateLimit.OrdersPerSecond <= 0 || c.RateLimit.WeightPerMinute <= 0 || c.RateLimit.OrdersPerDay <= 0 {
		return fmt.Errorf("rate limit ceilings must be positive")
	}
	if c.Cache.MaxSize <= 0 {
		return fmt.Errorf("cache max size must be positive, got %d", c.Cache.MaxSize)
	}
	if c.Health.MinHealthForNormalMode < 0 || c.Health.MinHealthForNormalMode > 100 {
		return fmt.Errorf("health threshold must be in [0,100], got %v", c.Health.MinHealthForNormalMode)
	}
	switch c.Decision.Mode {
	case "hybrid", "auto":
	default:
		return fmt.Errorf("unknown decision mode %q", c.Decision.Mode)
	}
	return nil
}

// Policy holds the confidence aggregation policy. The weights are a tunable
// blend, not a law of the domain; they are normalized before use.
type Policy struct {
	Weights      map[string]float64 `yaml:"weights"`
	ExecuteScore float64            `yaml:"execute_score"`
	ExecuteConf  float64            `yaml:"execute_confidence"`
}

// DefaultPolicy returns the stock confidence blend.
func DefaultPolicy() Policy {
	return Policy{
		Weights: map[string]float64{
			"technical": 0.4,
			"history":   0.3,
			"temporal":  0.3,
		},
		ExecuteScore: 90,
		ExecuteConf:  0.8,
	}
}

// LoadPolicy reads an aggregation policy from a YAML file. An empty path
// returns the default policy.
func LoadPolicy(path string) (Policy, error) {
	return loadPolicy(path, DefaultPolicy())
}

// DecisionPolicy resolves the effective aggregation policy: the environment
// thresholds seed the base, and the optional YAML policy file overrides on
// top of them.
func (c *Config) DecisionPolicy() (Policy, error) {
	base := DefaultPolicy()
	base.ExecuteScore = c.Decision.ExecuteScore
	base.ExecuteConf = c.Decision.ExecuteConfidence
	return loadPolicy(c.Decision.PolicyPath, base)
}

func loadPolicy(path string, base Policy) (Policy, error) {
	if path == "" {
		return base, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Policy{}, fmt.Errorf("failed to read policy file: %w", err)
	}

	policy := base
	if err := yaml.Unmarshal(data, &policy); err != nil {
		return Policy{}, fmt.Errorf("failed to parse policy file: %w", err)
	}

	for name, w := range policy.Weights {
		if w < 0 {
			return Policy{}, fmt.Errorf("negative weight %v for evaluator %q", w, name)
		}
	}
	return policy, nil
}
