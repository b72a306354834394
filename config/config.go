// Package config loads jobpilot's startup configuration: the chat session from the
// environment (optionally seeded from a .env file) and resilience tuning from YAML.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v2"

	"github.com/JohnPlummer/jobpilot/chat"
	resilience "github.com/JohnPlummer/jobpilot/resilience"
	"github.com/JohnPlummer/jobpilot/uiop"
)

// ErrMissingSetting is returned when a required environment setting is absent.
var ErrMissingSetting = errors.New("missing required setting")

// Environment variable names.
const (
	EnvBaseURL  = "BASE_URL"
	EnvAPIKey   = "API_KEY"
	EnvModel    = "MODEL"
	EnvLogLevel = "LOG_LEVEL"
	EnvLogFile  = "LOG_FILE"
)

// Config is the full application configuration.
type Config struct {
	Chat           chat.Config   `yaml:"-"`
	Retry          RetryConfig   `yaml:"retry"`
	UI             UIConfig      `yaml:"ui"`
	CircuitBreaker BreakerConfig `yaml:"circuit_breaker"`
	Logging        LoggingConfig `yaml:"logging"`
	Metrics        MetricsConfig `yaml:"metrics"`
}

// RetryConfig tunes the chat client's executor.
type RetryConfig struct {
	MaxAttempts    int           `yaml:"max_attempts"`
	BaseDelay      time.Duration `yaml:"base_delay"`
	MaxDelay       time.Duration `yaml:"max_delay"`       // 0 = uncapped
	AttemptTimeout time.Duration `yaml:"attempt_timeout"` // 0 = no per-attempt deadline
	InterruptMode  string        `yaml:"interrupt_mode"`  // continue, abort
	TransientOnly  bool          `yaml:"transient_only"`  // skip retries of malformed responses
}

// UIConfig tunes browser interaction retries.
type UIConfig struct {
	MaxAttempts  int           `yaml:"max_attempts"`
	RetryDelay   time.Duration `yaml:"retry_delay"`
	PollInterval time.Duration `yaml:"poll_interval"`
}

// BreakerConfig tunes the optional circuit breaker in front of the chat endpoint.
type BreakerConfig struct {
	Enabled             bool          `yaml:"enabled"`
	ConsecutiveFailures uint32        `yaml:"consecutive_failures"`
	OpenTimeout         time.Duration `yaml:"open_timeout"`
	Interval            time.Duration `yaml:"interval"`
	MaxRequests         uint32        `yaml:"max_requests"`
}

// LoggingConfig selects the log level, format and optional rotating file.
type LoggingConfig struct {
	Level      string `yaml:"level"`  // debug, info, warn, error
	Format     string `yaml:"format"` // json, text
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

// MetricsConfig controls the prometheus endpoint.
type MetricsConfig struct {
	Addr string `yaml:"addr"` // empty disables the endpoint
}

// Default returns the configuration used when no tuning file is given.
func Default() *Config {
	return &Config{
		Retry: RetryConfig{
			MaxAttempts:    chat.DefaultMaxAttempts,
			BaseDelay:      chat.DefaultBaseDelay,
			AttemptTimeout: chat.DefaultAttemptTimeout,
			InterruptMode:  resilience.ContinueOnInterrupt.String(),
		},
		UI: UIConfig{
			MaxAttempts:  3,
			RetryDelay:   time.Second,
			PollInterval: 200 * time.Millisecond,
		},
		CircuitBreaker: BreakerConfig{
			ConsecutiveFailures: 5,
			OpenTimeout:         30 * time.Second,
			Interval:            60 * time.Second,
			MaxRequests:         1,
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "text",
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
	}
}

// Load builds the configuration.
// envFile is loaded into the environment when it exists; variables already set win.
// tuningPath, when not empty, is a YAML file with ${VAR} expansion overlaid on Default.
func Load(envFile, tuningPath string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to load env file: %w", err)
		}
	}

	cfg := Default()
	if tuningPath != "" {
		data, err := os.ReadFile(tuningPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		expanded := os.ExpandEnv(string(data))
		if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	var missing []string
	lookup := func(key string) string {
		v := strings.TrimSpace(os.Getenv(key))
		if v == "" {
			missing = append(missing, key)
		}
		return v
	}
	cfg.Chat = chat.Config{
		BaseURL: lookup(EnvBaseURL),
		APIKey:  lookup(EnvAPIKey),
		Model:   lookup(EnvModel),
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrMissingSetting, strings.Join(missing, ", "))
	}

	if v := os.Getenv(EnvLogLevel); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv(EnvLogFile); v != "" {
		cfg.Logging.File = v
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the tuning values.
func (c *Config) Validate() error {
	var errs []error
	if err := c.Chat.Validate(); err != nil {
		errs = append(errs, err)
	}
	if err := c.RetryPolicy().Validate(); err != nil {
		errs = append(errs, fmt.Errorf("retry: %w", err))
	}
	if c.Retry.AttemptTimeout < 0 {
		errs = append(errs, fmt.Errorf("retry: attempt timeout must not be negative, got %s", c.Retry.AttemptTimeout))
	}
	if _, err := parseInterruptMode(c.Retry.InterruptMode); err != nil {
		errs = append(errs, err)
	}
	if err := c.UIPolicy().Validate(); err != nil {
		errs = append(errs, fmt.Errorf("ui: %w", err))
	}
	if c.CircuitBreaker.Enabled && c.CircuitBreaker.ConsecutiveFailures == 0 {
		errs = append(errs, errors.New("circuit_breaker: consecutive_failures must be at least 1"))
	}
	switch c.Logging.Format {
	case "", "text", "json":
	default:
		errs = append(errs, fmt.Errorf("logging: unknown format %q", c.Logging.Format))
	}
	return errors.Join(errs...)
}

// RetryPolicy returns the chat retry policy.
func (c *Config) RetryPolicy() resilience.RetryPolicy {
	policy := resilience.NewRetryPolicy(c.Retry.MaxAttempts, c.Retry.BaseDelay)
	policy.MaxDelay = c.Retry.MaxDelay
	return policy
}

// UIPolicy returns the browser interaction retry policy.
func (c *Config) UIPolicy() resilience.RetryPolicy {
	return resilience.RetryPolicy{
		MaxAttempts: c.UI.MaxAttempts,
		BaseDelay:   c.UI.RetryDelay,
		Backoff:     resilience.Constant(c.UI.RetryDelay),
	}
}

// UIOptions translates the tuning into uiop runner options.
func (c *Config) UIOptions() []uiop.Option {
	return []uiop.Option{
		uiop.WithPolicy(c.UIPolicy()),
		uiop.WithPollInterval(c.UI.PollInterval),
		uiop.WithExecutorOptions(resilience.WithInterruptMode(c.InterruptMode())),
	}
}

// InterruptMode returns the configured interrupt mode, defaulting to continue.
func (c *Config) InterruptMode() resilience.InterruptMode {
	mode, err := parseInterruptMode(c.Retry.InterruptMode)
	if err != nil {
		return resilience.ContinueOnInterrupt
	}
	return mode
}

// ChatOptions translates the tuning into chat client options.
func (c *Config) ChatOptions() []chat.Option {
	execOpts := []resilience.ExecutorOption{
		resilience.WithInterruptMode(c.InterruptMode()),
	}
	if c.Retry.TransientOnly {
		execOpts = append(execOpts, resilience.WithErrorClassifier(resilience.TransientOnly()))
	}

	opts := []chat.Option{
		chat.WithRetryPolicy(c.RetryPolicy()),
		chat.WithAttemptTimeout(c.Retry.AttemptTimeout),
		chat.WithExecutorOptions(execOpts...),
	}
	if c.CircuitBreaker.Enabled {
		opts = append(opts, chat.WithCircuitBreaker(
			resilience.WithConsecutiveFailures(c.CircuitBreaker.ConsecutiveFailures),
			resilience.WithOpenTimeout(c.CircuitBreaker.OpenTimeout),
			resilience.WithInterval(c.CircuitBreaker.Interval),
			resilience.WithMaxRequests(c.CircuitBreaker.MaxRequests),
		))
	}
	return opts
}

func parseInterruptMode(s string) (resilience.InterruptMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "continue":
		return resilience.ContinueOnInterrupt, nil
	case "abort":
		return resilience.AbortOnInterrupt, nil
	default:
		return resilience.ContinueOnInterrupt, fmt.Errorf("retry: unknown interrupt mode %q", s)
	}
}
