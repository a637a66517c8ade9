package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config struct to hold the configuration settings
type Config struct {
	Database      DatabaseConfig      `yaml:"database"`
	Ballchasing   BallchasingConfig   `yaml:"ballchasing"`
	Reconcile     ReconcileConfig     `yaml:"reconcile"`
	Publish       PublishConfig       `yaml:"publish"`
	NATS          NATSConfig          `yaml:"nats"`
	Observability ObservabilityConfig `yaml:"observability"`
	League        LeagueConfig        `yaml:"league"`
}

// DatabaseConfig selects the storage backend.
type DatabaseConfig struct {
	Driver string `yaml:"driver"` // postgres|sqlite
	DSN    string `yaml:"dsn"`
}

// BallchasingConfig holds the replay archive client settings.
type BallchasingConfig struct {
	APIKey       string        `yaml:"api_key"`
	BaseURL      string        `yaml:"base_url"`
	ReplayURL    string        `yaml:"replay_url"`
	RequestDelay time.Duration `yaml:"request_delay"`
	Timeout      time.Duration `yaml:"timeout"`
}

// ReconcileConfig controls the periodic reconciliation job.
type ReconcileConfig struct {
	Enabled             bool          `yaml:"enabled"`
	Interval            time.Duration `yaml:"interval"`
	ClaimLease          time.Duration `yaml:"claim_lease"`
	RateLimitPause      time.Duration `yaml:"rate_limit_pause"`
	RejectInferredSides bool          `yaml:"reject_inferred_sides"`
}

// PublishConfig controls the periodic series publication job.
type PublishConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Interval time.Duration `yaml:"interval"`
}

// NATSConfig holds NATS configuration. An empty URL publishes events in process only.
type NATSConfig struct {
	URL      string `yaml:"url"`
	NKeySeed string `yaml:"nkey_seed"`
}

// ObservabilityConfig holds configuration for observability components
type ObservabilityConfig struct {
	LogLevel       string `yaml:"log_level"`
	LogFormat      string `yaml:"log_format"` // json|text
	MetricsAddress string `yaml:"metrics_address"`
	Environment    string `yaml:"environment"`
}

// LoadConfig loads the configuration from a YAML file, then applies environment
// overrides. A .env file in the working directory is loaded first when present.
func LoadConfig(filename string) (*Config, error) {
	_ = godotenv.Load()

	// Try reading configuration from the file first
	data, err := os.ReadFile(filename)
	if err != nil {
		// If the file is not found, try loading from environment variables
		return loadConfigFromEnv()
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := applyEnv(&cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return &cfg, nil
}

// loadConfigFromEnv loads the configuration from environment variables.
func loadConfigFromEnv() (*Config, error) {
	var cfg Config
	if err := applyEnv(&cfg); err != nil {
		return nil, err
	}

	if cfg.Database.DSN == "" && cfg.Database.Driver != "sqlite" {
		return nil, fmt.Errorf("DATABASE_URL environment variable not set")
	}
	if cfg.Ballchasing.APIKey == "" {
		return nil, fmt.Errorf("BALLCHASING_KEY environment variable not set")
	}

	cfg.Reconcile.Enabled = os.Getenv("RECONCILE_ENABLED") != "false"
	cfg.Publish.Enabled = os.Getenv("PUBLISH_ENABLED") != "false"

	cfg.applyDefaults()
	return &cfg, nil
}

func applyEnv(cfg *Config) error {
	if v := os.Getenv("DATABASE_DRIVER"); v != "" {
		cfg.Database.Driver = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Database.DSN = v
	}
	if v := os.Getenv("BALLCHASING_KEY"); v != "" {
		cfg.Ballchasing.APIKey = v
	}
	if v := os.Getenv("BALLCHASING_BASE_URL"); v != "" {
		cfg.Ballchasing.BaseURL = v
	}
	if v := os.Getenv("BALLCHASING_REQUEST_DELAY"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid BALLCHASING_REQUEST_DELAY value: %w", err)
		}
		cfg.Ballchasing.RequestDelay = d
	}
	if v := os.Getenv("RECONCILE_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid RECONCILE_INTERVAL value: %w", err)
		}
		cfg.Reconcile.Interval = d
	}
	if v := os.Getenv("RECONCILE_REJECT_INFERRED_SIDES"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid RECONCILE_REJECT_INFERRED_SIDES value: %w", err)
		}
		cfg.Reconcile.RejectInferredSides = b
	}
	if v := os.Getenv("PUBLISH_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid PUBLISH_INTERVAL value: %w", err)
		}
		cfg.Publish.Interval = d
	}
	if v := os.Getenv("NATS_URL"); v != "" {
		cfg.NATS.URL = v
	}
	if v := os.Getenv("NATS_NKEY_SEED"); v != "" {
		cfg.NATS.NKeySeed = v
	}
	if v := os.Getenv("METRICS_ADDRESS"); v != "" {
		cfg.Observability.MetricsAddress = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Observability.LogLevel = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Observability.LogFormat = v
	}
	if v := os.Getenv("ENV"); v != "" {
		cfg.Observability.Environment = v
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.Database.Driver == "" {
		c.Database.Driver = "postgres"
	}
	if c.Ballchasing.BaseURL == "" {
		c.Ballchasing.BaseURL = "https://ballchasing.com/api"
	}
	if c.Ballchasing.ReplayURL == "" {
		c.Ballchasing.ReplayURL = "https://ballchasing.com/replay"
	}
	if c.Ballchasing.RequestDelay <= 0 {
		c.Ballchasing.RequestDelay = time.Second
	}
	if c.Ballchasing.Timeout <= 0 {
		c.Ballchasing.Timeout = 30 * time.Second
	}
	if c.Reconcile.Interval <= 0 {
		c.Reconcile.Interval = time.Minute
	}
	if c.Reconcile.ClaimLease <= 0 {
		c.Reconcile.ClaimLease = 30 * time.Minute
	}
	if c.Reconcile.RateLimitPause <= 0 {
		c.Reconcile.RateLimitPause = 5 * time.Minute
	}
	if c.Publish.Interval <= 0 {
		c.Publish.Interval = 5 * time.Minute
	}
	if c.Observability.LogLevel == "" {
		c.Observability.LogLevel = "info"
	}
	if len(c.League.Modes) == 0 {
		c.League.Modes = DefaultModes()
	}
}
