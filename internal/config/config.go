// Package config provides YAML configuration loading and validation for the
// Calpol runner and API server.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration structure for Calpol.
type Config struct {
	// Runner holds the scheduler's cadence, per-run budget, and
	// concurrency/retention knobs.
	Runner RunnerConfig `yaml:"runner"`

	// Mailer holds the outbound SMTP relay credentials used to notify
	// contacts by email. Required.
	Mailer MailerConfig `yaml:"mailer"`

	// SMS holds the SMS gateway credentials used to notify contacts by
	// text message. Optional: if AccessKey is empty, SMS dispatch is
	// disabled and skipped rather than failed.
	SMS SMSConfig `yaml:"sms"`

	// LogLevel sets the minimum log severity: "debug", "info", "warn", or
	// "error". Defaults to "info" when omitted.
	LogLevel string `yaml:"log_level"`

	// HealthAddr is a listen address (e.g. "127.0.0.1:9000"). Defaults to
	// "127.0.0.1:9000" when omitted. Neither cmd/runnerd nor cmd/server
	// reads it: cmd/server serves /healthz on its -http-addr listener, and
	// cmd/runnerd serves no HTTP at all.
	HealthAddr string `yaml:"health_addr"`

	// DatabaseURL is the Postgres connection string for the ProbeStore.
	// Required for the production backend; the sqlite backend is selected
	// by supplying DatabasePath instead.
	DatabaseURL string `yaml:"database_url"`

	// DatabasePath, if set, selects the embedded SQLite ProbeStore instead
	// of Postgres, pointing at the given file path.
	DatabasePath string `yaml:"database_path"`

	// JWTPublicKeyPath is the path to the PEM-encoded RSA public key used
	// to verify bearer tokens on the operator API. Required.
	JWTPublicKeyPath string `yaml:"jwt_public_key_path"`
}

// RunnerConfig controls the scheduler and coordinator.
type RunnerConfig struct {
	// IntervalMinutes is the cadence between runs. Defaults to 15.
	IntervalMinutes uint8 `yaml:"interval"`

	// TimeoutMinutes is the hard per-run wall-clock budget; must be
	// strictly less than IntervalMinutes. Defaults to 10.
	TimeoutMinutes uint8 `yaml:"timeout"`

	// Concurrency is the maximum number of probes evaluated in flight at
	// once. Defaults to 4.
	Concurrency uint8 `yaml:"concurrency"`

	// LogAgeDays is the retention window, in days, for results and run
	// logs. Defaults to 30.
	LogAgeDays uint16 `yaml:"log_age"`
}

// Interval returns the configured run cadence as a time.Duration.
func (r RunnerConfig) Interval() time.Duration {
	return time.Duration(r.IntervalMinutes) * time.Minute
}

// Timeout returns the configured per-run budget as a time.Duration.
func (r RunnerConfig) Timeout() time.Duration {
	return time.Duration(r.TimeoutMinutes) * time.Minute
}

// RetentionAge returns the configured retention window as a time.Duration.
func (r RunnerConfig) RetentionAge() time.Duration {
	return time.Duration(r.LogAgeDays) * 24 * time.Hour
}

// MailerConfig holds SMTP relay settings used to send notification emails.
type MailerConfig struct {
	Host     string `yaml:"host"`
	Port     uint16 `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	SendFrom string `yaml:"send_from"`
	ReplyTo  string `yaml:"reply_to,omitempty"`
}

// SMSConfig holds SMS gateway credentials. An empty AccessKey disables SMS
// dispatch entirely; this is a valid configuration, not an error.
type SMSConfig struct {
	AccessKey string `yaml:"access_key,omitempty"`
	Endpoint  string `yaml:"endpoint,omitempty"`
}

// validLogLevels is the set of accepted log level strings.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// LoadConfig reads the YAML file at path, unmarshals it into Config, applies
// defaults, and validates all required fields. A validation error joins every
// failure found, not only the first.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: cannot read %q: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: cannot parse %q: %w", path, err)
	}

	applyDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config: validation failed for %q: %w", path, err)
	}

	return &cfg, nil
}

// applyDefaults fills in zero-value optional fields with sensible defaults.
func applyDefaults(cfg *Config) {
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.HealthAddr == "" {
		cfg.HealthAddr = "127.0.0.1:9000"
	}
	if cfg.Runner.IntervalMinutes == 0 {
		cfg.Runner.IntervalMinutes = 15
	}
	if cfg.Runner.TimeoutMinutes == 0 {
		cfg.Runner.TimeoutMinutes = 10
	}
	if cfg.Runner.Concurrency == 0 {
		cfg.Runner.Concurrency = 4
	}
	if cfg.Runner.LogAgeDays == 0 {
		cfg.Runner.LogAgeDays = 30
	}
}

// validate checks that all required fields are populated and that enumerated
// fields contain only valid values.
func validate(cfg *Config) error {
	var errs []error

	if !validLogLevels[cfg.LogLevel] {
		errs = append(errs, fmt.Errorf("log_level %q must be one of: debug, info, warn, error", cfg.LogLevel))
	}

	if cfg.Runner.TimeoutMinutes >= cfg.Runner.IntervalMinutes {
		errs = append(errs, fmt.Errorf("runner.timeout (%d) must be less than runner.interval (%d)",
			cfg.Runner.TimeoutMinutes, cfg.Runner.IntervalMinutes))
	}

	if cfg.DatabaseURL == "" && cfg.DatabasePath == "" {
		errs = append(errs, errors.New("one of database_url or database_path is required"))
	}
	if cfg.DatabaseURL != "" && cfg.DatabasePath != "" {
		errs = append(errs, errors.New("database_url and database_path are mutually exclusive"))
	}

	if cfg.JWTPublicKeyPath == "" {
		errs = append(errs, errors.New("jwt_public_key_path is required"))
	}

	if cfg.Mailer.Host == "" {
		errs = append(errs, errors.New("mailer.host is required"))
	}
	if cfg.Mailer.Port == 0 {
		errs = append(errs, errors.New("mailer.port is required"))
	}
	if cfg.Mailer.SendFrom == "" {
		errs = append(errs, errors.New("mailer.send_from is required"))
	}

	return errors.Join(errs...)
}
