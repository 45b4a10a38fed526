package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/rs/zerolog/log"
)

// Environment represents different deployment environments
type Environment string

const (
	EnvDevelopment Environment = "development"
	EnvTesting     Environment = "testing"
	EnvProduction  Environment = "production"
)

// MaxTurnAttempts is the hard cap on draft generations per turn.
const MaxTurnAttempts = 3

// Config holds the configuration for the companion service.
// Environment variables are parsed with the COMPANION_ prefix.
type Config struct {
	// Build target selects high-level environment: local, cloud-dev, cloud
	BuildTarget string `envconfig:"BUILD_TARGET" default:"local"`

	// Derived or override driver: sqlite | postgres
	DBDriver string `envconfig:"DB_DRIVER" default:"auto"`

	Environment Environment `envconfig:"ENVIRONMENT" default:"development"`

	HTTPPort int `envconfig:"HTTP_PORT" default:"8080"`

	PostgresDSN string `envconfig:"POSTGRES_DSN" default:""`
	SQLitePath  string `envconfig:"SQLITE_PATH" default:"data/companion.db"`

	PersonasDir string `envconfig:"PERSONAS_DIR" default:"personas"`

	// Model backend (Ollama-compatible chat API)
	OllamaURL   string `envconfig:"OLLAMA_URL" default:"http://ollama:11434"`
	OllamaModel string `envconfig:"OLLAMA_MODEL" default:"llama3.2:3b"`

	// Per call-class timeouts
	GenerateTimeoutSeconds int `envconfig:"GENERATE_TIMEOUT_SECONDS" default:"60"`
	JudgeTimeoutSeconds    int `envconfig:"JUDGE_TIMEOUT_SECONDS" default:"60"`
	ExtractTimeoutSeconds  int `envconfig:"EXTRACT_TIMEOUT_SECONDS" default:"45"`
	AlertTimeoutSeconds    int `envconfig:"ALERT_TIMEOUT_SECONDS" default:"60"`

	// Judge gate
	JudgeEnabled   bool   `envconfig:"JUDGE_ENABLED" default:"true"`
	JudgeModel     string `envconfig:"JUDGE_MODEL" default:""`
	JudgeMaxTokens int    `envconfig:"JUDGE_MAX_TOKENS" default:"256"`
	MaxAttempts    int    `envconfig:"MAX_ATTEMPTS" default:"3"`

	// Memory & summary pipeline
	RecentMessages      int     `envconfig:"MX1_RECENT_MESSAGES" default:"10"`
	ConfidenceThreshold float64 `envconfig:"MX1_CONFIDENCE_THRESHOLD" default:"0.8"`
	SummaryCadence      int     `envconfig:"SUMMARY_CADENCE" default:"6"`
	AllowGlobalWrite    bool    `envconfig:"ALLOW_GLOBAL_WRITE" default:"true"`

	// Tools
	DisabledTools []string `envconfig:"DISABLED_TOOLS" default:""`
	AlertTimezone string   `envconfig:"ALERT_TIMEZONE" default:"UTC"`

	// Health and startup
	HealthIntervalSeconds     int `envconfig:"HEALTH_INTERVAL_SECONDS" default:"30"`
	HealthProbeTimeoutSeconds int `envconfig:"HEALTH_PROBE_TIMEOUT_SECONDS" default:"2"`
	BootstrapTimeoutSeconds   int `envconfig:"BOOTSTRAP_TIMEOUT_SECONDS" default:"30"`
}

// ResolveDefaults validates BuildTarget and derives DBDriver when set to "auto" or empty.
func (c *Config) ResolveDefaults() error {
	var defaultDB string

	switch c.BuildTarget {
	case "local":
		defaultDB = "sqlite"
	case "cloud-dev", "cloud":
		defaultDB = "postgres"
	default:
		return fmt.Errorf("unsupported BUILD_TARGET: %s", c.BuildTarget)
	}

	if c.DBDriver == "" || c.DBDriver == "auto" {
		c.DBDriver = defaultDB
	}

	allowedDB := map[string]bool{"sqlite": true, "postgres": true}
	if !allowedDB[c.DBDriver] {
		return fmt.Errorf("unsupported DB_DRIVER: %s", c.DBDriver)
	}
	if c.DBDriver == "postgres" && c.PostgresDSN == "" {
		return fmt.Errorf("COMPANION_POSTGRES_DSN is required when DB_DRIVER=postgres")
	}

	if c.JudgeModel == "" {
		c.JudgeModel = c.OllamaModel
	}
	if c.MaxAttempts <= 0 || c.MaxAttempts > MaxTurnAttempts {
		c.MaxAttempts = MaxTurnAttempts
	}
	if c.SummaryCadence <= 0 {
		return fmt.Errorf("SUMMARY_CADENCE must be positive, got %d", c.SummaryCadence)
	}
	if c.RecentMessages <= 0 {
		c.RecentMessages = 10
	}
	if c.ConfidenceThreshold < 0 || c.ConfidenceThreshold > 1 {
		return fmt.Errorf("MX1_CONFIDENCE_THRESHOLD must be within [0,1], got %v", c.ConfidenceThreshold)
	}
	if _, err := time.LoadLocation(c.AlertTimezone); err != nil {
		return fmt.Errorf("invalid ALERT_TIMEZONE %q: %w", c.AlertTimezone, err)
	}
	return nil
}

// New creates a new Config by parsing environment variables
// Environment variables should be prefixed with COMPANION_
// Example: COMPANION_OLLAMA_URL, COMPANION_HTTP_PORT
func New() (*Config, error) {
	var cfg Config

	if err := envconfig.Process("COMPANION", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process environment variables: %w", err)
	}

	if err := cfg.ResolveDefaults(); err != nil {
		return nil, err
	}

	log.Info().
		Str("build_target", cfg.BuildTarget).
		Str("db_driver", cfg.DBDriver).
		Str("environment", string(cfg.Environment)).
		Int("port", cfg.HTTPPort).
		Str("ollama_url", cfg.OllamaURL).
		Str("ollama_model", cfg.OllamaModel).
		Str("judge_model", cfg.JudgeModel).
		Bool("judge_enabled", cfg.JudgeEnabled).
		Int("summary_cadence", cfg.SummaryCadence).
		Float64("confidence_threshold", cfg.ConfidenceThreshold).
		Bool("allow_global_write", cfg.AllowGlobalWrite).
		Strs("disabled_tools", cfg.DisabledTools).
		Str("postgres_dsn_present", func() string {
			if cfg.PostgresDSN != "" {
				return "true"
			}
			return "false"
		}()).
		Msg("Configuration loaded")

	return &cfg, nil
}

// NewForTesting creates a config specifically for testing
func NewForTesting() *Config {
	cfg := &Config{
		Environment: EnvTesting,
		BuildTarget: "local",
		DBDriver:    "sqlite",
		HTTPPort:    8080,
		SQLitePath:  ":memory:",
		PersonasDir: "testdata/personas",

		OllamaURL:   "http://localhost:11434",
		OllamaModel: "llama3.2:3b",
		JudgeModel:  "llama3.2:3b",

		GenerateTimeoutSeconds: 5,
		JudgeTimeoutSeconds:    5,
		ExtractTimeoutSeconds:  5,
		AlertTimeoutSeconds:    5,

		JudgeEnabled:   true,
		JudgeMaxTokens: 256,
		MaxAttempts:    MaxTurnAttempts,

		RecentMessages:      10,
		ConfidenceThreshold: 0.8,
		SummaryCadence:      6,
		AllowGlobalWrite:    true,

		AlertTimezone: "UTC",

		HealthIntervalSeconds:     1,
		HealthProbeTimeoutSeconds: 1,
		BootstrapTimeoutSeconds:   1,
	}
	return cfg
}

// IsTesting returns true if the environment is set to testing
func (c *Config) IsTesting() bool {
	return c.Environment == EnvTesting
}

// IsProduction returns true if the environment is set to production
func (c *Config) IsProduction() bool {
	return c.Environment == EnvProduction
}

// GetHTTPAddr returns the HTTP server address
func (c *Config) GetHTTPAddr() string {
	return fmt.Sprintf(":%d", c.HTTPPort)
}

func seconds(n int) time.Duration { return time.Duration(n) * time.Second }

// GenerateTimeout bounds a single draft generation call.
func (c *Config) GenerateTimeout() time.Duration { return seconds(c.GenerateTimeoutSeconds) }

// JudgeTimeout bounds a single judge evaluation call.
func (c *Config) JudgeTimeout() time.Duration { return seconds(c.JudgeTimeoutSeconds) }

// ExtractTimeout bounds a single memory extraction call.
func (c *Config) ExtractTimeout() time.Duration { return seconds(c.ExtractTimeoutSeconds) }

// AlertTimeout bounds a single alert extraction call.
func (c *Config) AlertTimeout() time.Duration { return seconds(c.AlertTimeoutSeconds) }

// AlertLocation returns the timezone used to interpret and present alert times.
func (c *Config) AlertLocation() *time.Location {
	loc, err := time.LoadLocation(c.AlertTimezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
