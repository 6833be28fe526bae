// ABOUTME: Configuration loading and parsing for herald
// ABOUTME: Supports YAML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete herald configuration
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Auth     AuthConfig     `yaml:"auth"`
	Gateway  GatewayConfig  `yaml:"gateway"`
	Connect  ConnectConfig  `yaml:"connect"`
	Dispatch DispatchConfig `yaml:"dispatch"`
	Poll     PollConfig     `yaml:"poll"`
	Logging  LoggingConfig  `yaml:"logging"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	HTTPAddr string `yaml:"http_addr"`
	// PublicURL is the externally reachable base URL for this service.
	// It is used to register the webhook callback with the gateway.
	PublicURL string `yaml:"public_url"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// AuthConfig holds authentication configuration
type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"`
}

// GatewayConfig holds upstream messaging gateway configuration
type GatewayConfig struct {
	BaseURL      string `yaml:"base_url"`
	PartnerToken string `yaml:"partner_token"`
	// ProjectID is optional; when empty the project is resolved from the
	// gateway's project listing on each channel creation.
	ProjectID string `yaml:"project_id"`
	// WebhookToken is the shared secret the gateway presents when
	// delivering events to our webhook endpoint.
	WebhookToken string `yaml:"webhook_token"`

	Timeout time.Duration `yaml:"-"`

	// Raw string value for YAML unmarshaling
	TimeoutRaw string `yaml:"timeout"`
}

// ConnectConfig holds channel connection orchestration timing
type ConnectConfig struct {
	PairingMinAge  time.Duration `yaml:"-"`
	PairingWaitMax time.Duration `yaml:"-"`
	RetryBase      time.Duration `yaml:"-"`
	RetryMax       int           `yaml:"retry_max"`

	// Raw string values for YAML unmarshaling
	PairingMinAgeRaw  string `yaml:"pairing_min_age"`
	PairingWaitMaxRaw string `yaml:"pairing_wait_max"`
	RetryBaseRaw      string `yaml:"retry_base"`
}

// DispatchConfig holds scheduled broadcast dispatch configuration
type DispatchConfig struct {
	Interval  time.Duration `yaml:"-"`
	BatchSize int           `yaml:"batch_size"`

	// Raw string value for YAML unmarshaling
	IntervalRaw string `yaml:"interval"`
}

// PollConfig holds connection status polling configuration
type PollConfig struct {
	Interval time.Duration `yaml:"-"`

	// Raw string value for YAML unmarshaling
	IntervalRaw string `yaml:"interval"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig holds metrics endpoint configuration
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables in the raw YAML content
	expandedData := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	// Parse duration fields
	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	applyDefaults(&cfg)

	// Validate required fields
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	// Match ${VAR_NAME} pattern
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		// Extract variable name from ${VAR_NAME}
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Server.HTTPAddr == "" {
		return fmt.Errorf("server.http_addr is required")
	}

	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}

	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret is required")
	}

	if c.Gateway.BaseURL == "" {
		return fmt.Errorf("gateway.base_url is required")
	}
	if c.Gateway.PartnerToken == "" {
		return fmt.Errorf("gateway.partner_token is required")
	}

	if c.Connect.RetryMax < 0 {
		return fmt.Errorf("connect.retry_max must not be negative")
	}

	if c.Dispatch.BatchSize <= 0 {
		return fmt.Errorf("dispatch.batch_size must be positive")
	}

	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	var err error

	if cfg.Gateway.TimeoutRaw != "" {
		cfg.Gateway.Timeout, err = time.ParseDuration(cfg.Gateway.TimeoutRaw)
		if err != nil {
			return fmt.Errorf("parsing gateway.timeout %q: %w", cfg.Gateway.TimeoutRaw, err)
		}
	}

	if cfg.Connect.PairingMinAgeRaw != "" {
		cfg.Connect.PairingMinAge, err = time.ParseDuration(cfg.Connect.PairingMinAgeRaw)
		if err != nil {
			return fmt.Errorf("parsing connect.pairing_min_age %q: %w", cfg.Connect.PairingMinAgeRaw, err)
		}
	}

	if cfg.Connect.PairingWaitMaxRaw != "" {
		cfg.Connect.PairingWaitMax, err = time.ParseDuration(cfg.Connect.PairingWaitMaxRaw)
		if err != nil {
			return fmt.Errorf("parsing connect.pairing_wait_max %q: %w", cfg.Connect.PairingWaitMaxRaw, err)
		}
	}

	if cfg.Connect.RetryBaseRaw != "" {
		cfg.Connect.RetryBase, err = time.ParseDuration(cfg.Connect.RetryBaseRaw)
		if err != nil {
			return fmt.Errorf("parsing connect.retry_base %q: %w", cfg.Connect.RetryBaseRaw, err)
		}
	}

	if cfg.Dispatch.IntervalRaw != "" {
		cfg.Dispatch.Interval, err = time.ParseDuration(cfg.Dispatch.IntervalRaw)
		if err != nil {
			return fmt.Errorf("parsing dispatch.interval %q: %w", cfg.Dispatch.IntervalRaw, err)
		}
	}

	if cfg.Poll.IntervalRaw != "" {
		cfg.Poll.Interval, err = time.ParseDuration(cfg.Poll.IntervalRaw)
		if err != nil {
			return fmt.Errorf("parsing poll.interval %q: %w", cfg.Poll.IntervalRaw, err)
		}
	}

	return nil
}

// applyDefaults fills in defaults for optional fields left unset
func applyDefaults(cfg *Config) {
	if cfg.Gateway.Timeout == 0 {
		cfg.Gateway.Timeout = 15 * time.Second
	}

	if cfg.Connect.PairingMinAge == 0 {
		cfg.Connect.PairingMinAge = 60 * time.Second
	}
	if cfg.Connect.PairingWaitMax == 0 {
		cfg.Connect.PairingWaitMax = 10 * time.Second
	}
	if cfg.Connect.RetryBase == 0 {
		cfg.Connect.RetryBase = 2 * time.Second
	}
	if cfg.Connect.RetryMax == 0 {
		cfg.Connect.RetryMax = 2
	}

	if cfg.Dispatch.Interval == 0 {
		cfg.Dispatch.Interval = time.Minute
	}
	if cfg.Dispatch.BatchSize == 0 {
		cfg.Dispatch.BatchSize = 10
	}

	if cfg.Poll.Interval == 0 {
		cfg.Poll.Interval = 2 * time.Minute
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "text"
	}

	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}
}
