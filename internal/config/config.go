// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Pharos Contributors

// Package config loads and validates the pharos configuration with the
// standard precedence: flags (bound by the CLI) > PHAROS_ environment
// variables > config file > defaults.
package config

import (
	"errors"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/pharos-dev/pharos/internal/secrets"
	pharoserr "github.com/pharos-dev/pharos/pkg/errors"
	"github.com/spf13/viper"
)

// Config is the top-level pharos configuration.
type Config struct {
	DataDir  string                   `mapstructure:"data_dir"`
	Server   ServerConfig             `mapstructure:"server"`
	Storage  StorageConfig            `mapstructure:"storage"`
	Monitor  MonitorConfig            `mapstructure:"monitor"`
	Gateways map[string]GatewayConfig `mapstructure:"gateways"`
	Targets  []TargetConfig           `mapstructure:"targets"`
	Logging  LoggingConfig            `mapstructure:"logging"`

	fileUsed string
}

// ServerConfig controls the HTTP API.
type ServerConfig struct {
	Listen         string   `mapstructure:"listen"`
	AdminToken     string   `mapstructure:"admin_token"`
	CORSOrigins    []string `mapstructure:"cors_origins"`
	RateLimitRPS   float64  `mapstructure:"rate_limit_rps"`
	RateLimitBurst int      `mapstructure:"rate_limit_burst"`
}

// StorageConfig selects the storage backend.
type StorageConfig struct {
	Backend string `mapstructure:"backend"`
}

// MonitorConfig tunes the scheduling and retention machinery. Zero values
// are rejected by Validate; the defaults come from SetDefaults.
type MonitorConfig struct {
	TickInterval  time.Duration `mapstructure:"tick_interval"`
	ProbeTimeout  time.Duration `mapstructure:"probe_timeout"`
	TrialInterval time.Duration `mapstructure:"trial_interval"`
	Concurrency   int           `mapstructure:"concurrency"`
	BatchLimit    int           `mapstructure:"batch_limit"`
	RetentionDays int           `mapstructure:"retention_days"`
	Breaker       BreakerConfig `mapstructure:"breaker"`
}

// BreakerConfig holds the circuit breaker thresholds.
type BreakerConfig struct {
	OpenThreshold     int `mapstructure:"open_threshold"`
	RecoveryThreshold int `mapstructure:"recovery_threshold"`
}

// GatewayConfig holds the endpoint and credentials the reference prober
// uses for targets routed through this gateway.
type GatewayConfig struct {
	BaseURL string            `mapstructure:"base_url"`
	APIKey  string            `mapstructure:"api_key"`
	Headers map[string]string `mapstructure:"headers"`
}

// TargetConfig declares one (provider, model) pair to monitor. Targets are
// registered idempotently at startup; removing one from the config does
// not delete its health history.
type TargetConfig struct {
	Provider string `mapstructure:"provider"`
	Model    string `mapstructure:"model"`
	Gateway  string `mapstructure:"gateway"`
	Enabled  *bool  `mapstructure:"enabled"`
}

// IsEnabled reports whether the target starts enabled. Absent means yes.
func (t TargetConfig) IsEnabled() bool {
	return t.Enabled == nil || *t.Enabled
}

// LoggingConfig controls slog output.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// FileUsed returns the config file path the load resolved to, or empty
// when running on defaults and environment only.
func (c *Config) FileUsed() string { return c.fileUsed }

// SetDefaults installs every default value on v. Durations are set as
// strings so a rendered config file round-trips identically.
func SetDefaults(v *viper.Viper) {
	// Empty defaults are registered so AutomaticEnv overrides reach
	// Unmarshal; Viper only surfaces env values for keys it knows about.
	v.SetDefault("data_dir", "")

	v.SetDefault("server.listen", "127.0.0.1:8787")
	v.SetDefault("server.admin_token", "")
	v.SetDefault("server.cors_origins", []string{})
	v.SetDefault("server.rate_limit_rps", 5)
	v.SetDefault("server.rate_limit_burst", 10)

	v.SetDefault("storage.backend", "sqlite")

	v.SetDefault("monitor.tick_interval", "15s")
	v.SetDefault("monitor.probe_timeout", "10s")
	v.SetDefault("monitor.trial_interval", "60s")
	v.SetDefault("monitor.concurrency", 8)
	v.SetDefault("monitor.batch_limit", 64)
	v.SetDefault("monitor.retention_days", 90)
	v.SetDefault("monitor.breaker.open_threshold", 5)
	v.SetDefault("monitor.breaker.recovery_threshold", 2)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
}

// SetupEnv enables PHAROS_ environment overrides, with dots in config keys
// mapped to underscores (server.listen -> PHAROS_SERVER_LISTEN).
func SetupEnv(v *viper.Viper) {
	v.SetEnvPrefix("PHAROS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
}

// Load reads configuration from path, or auto-discovers pharos.yaml in the
// standard locations when path is empty. keyring:// references are left
// unresolved; use LoadResolved when secrets must be usable.
func Load(path string) (*Config, error) {
	return LoadResolved(path, nil)
}

// LoadResolved is Load plus keyring:// secret resolution through store.
// A nil store skips resolution.
func LoadResolved(path string, store secrets.Store) (*Config, error) {
	v := viper.New()
	SetDefaults(v)
	SetupEnv(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, readErr(path, err)
		}
	} else {
		// Auto-discover pharos.yaml. SetConfigType is intentionally
		// omitted: with a type set, Viper also tries the bare config name
		// without extension, which collides with a ./pharos binary.
		v.SetConfigName("pharos")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/pharos")
		v.AddConfigPath("/etc/pharos")
		if err := v.ReadInConfig(); err != nil {
			// No config anywhere is fine; defaults and env still apply.
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, readErr(v.ConfigFileUsed(), err)
			}
		}
	}

	if store != nil {
		if err := secrets.ResolveViperSecrets(v, store); err != nil {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, pharoserr.Wrapf(err, pharoserr.CodeConfigParseInvalidFormat, "unmarshalling config")
	}
	cfg.fileUsed = v.ConfigFileUsed()

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, pharoserr.Wrapf(errors.Join(errs...), pharoserr.CodeConfigValidateInvalidValue, "validating config")
	}

	return &cfg, nil
}

func readErr(path string, err error) error {
	var parseErr viper.ConfigParseError
	if errors.As(err, &parseErr) {
		return pharoserr.Wrapf(err, pharoserr.CodeConfigParseInvalidFormat, "parsing config %s", path)
	}
	return pharoserr.Wrapf(err, pharoserr.CodeConfigLoadReadFailure, "reading config %s", path)
}

// Validate checks the configuration for logical errors. It returns every
// validation error found, not just the first, so the operator can fix a
// config in one pass.
func (c *Config) Validate() []error {
	var errs []error

	errs = append(errs, c.validateServer()...)
	errs = append(errs, c.validateStorage()...)
	errs = append(errs, c.validateMonitor()...)
	errs = append(errs, c.validateGateways()...)
	errs = append(errs, c.validateTargets()...)
	errs = append(errs, c.validateLogging()...)

	return errs
}

func (c *Config) validateServer() []error {
	var errs []error

	if c.Server.Listen == "" {
		errs = append(errs, pharoserr.New(pharoserr.CodeConfigValidateInvalidValue,
			"config: server.listen must not be empty"))
	} else {
		host, portStr, err := net.SplitHostPort(c.Server.Listen)
		if err != nil {
			errs = append(errs, pharoserr.Errorf(pharoserr.CodeConfigValidateInvalidValue,
				"config: server.listen must be a valid host:port address, got %q: %w",
				c.Server.Listen, err))
		} else {
			_ = host // empty host (":8787") listens on all interfaces, which is valid
			port, err := strconv.Atoi(portStr)
			if err != nil {
				errs = append(errs, pharoserr.Errorf(pharoserr.CodeConfigValidateInvalidValue,
					"config: server.listen port must be a number, got %q", portStr))
			} else if port < 1 || port > 65535 {
				errs = append(errs, pharoserr.Errorf(pharoserr.CodeConfigValidateInvalidValue,
					"config: server.listen port must be between 1 and 65535, got %d", port))
			}
		}
	}

	if c.Server.RateLimitRPS < 0 {
		errs = append(errs, pharoserr.Errorf(pharoserr.CodeConfigValidateInvalidValue,
			"config: server.rate_limit_rps must not be negative, got %g", c.Server.RateLimitRPS))
	}
	if c.Server.RateLimitRPS > 0 && c.Server.RateLimitBurst < 1 {
		errs = append(errs, pharoserr.Errorf(pharoserr.CodeConfigValidateInvalidValue,
			"config: server.rate_limit_burst must be at least 1 when rate limiting is on, got %d",
			c.Server.RateLimitBurst))
	}

	return errs
}

func (c *Config) validateStorage() []error {
	var errs []error

	validBackends := map[string]bool{"sqlite": true}
	if !validBackends[c.Storage.Backend] {
		errs = append(errs, pharoserr.Errorf(pharoserr.CodeConfigValidateInvalidValue,
			"config: storage.backend must be one of [sqlite], got %q", c.Storage.Backend))
	}

	return errs
}

func (c *Config) validateMonitor() []error {
	var errs []error

	durations := []struct {
		key string
		val time.Duration
	}{
		{"monitor.tick_interval", c.Monitor.TickInterval},
		{"monitor.probe_timeout", c.Monitor.ProbeTimeout},
		{"monitor.trial_interval", c.Monitor.TrialInterval},
	}
	for _, d := range durations {
		if d.val <= 0 {
			errs = append(errs, pharoserr.Errorf(pharoserr.CodeConfigValidateInvalidValue,
				"config: %s must be greater than 0, got %s", d.key, d.val))
		}
	}

	counts := []struct {
		key string
		val int
	}{
		{"monitor.concurrency", c.Monitor.Concurrency},
		{"monitor.batch_limit", c.Monitor.BatchLimit},
		{"monitor.retention_days", c.Monitor.RetentionDays},
	}
	for _, n := range counts {
		if n.val <= 0 {
			errs = append(errs, pharoserr.Errorf(pharoserr.CodeConfigValidateInvalidValue,
				"config: %s must be greater than 0, got %d", n.key, n.val))
		}
	}

	if c.Monitor.Breaker.OpenThreshold < 0 || c.Monitor.Breaker.RecoveryThreshold < 0 {
		errs = append(errs, pharoserr.Errorf(pharoserr.CodeConfigValidateInvalidValue,
			"config: monitor.breaker thresholds must not be negative, got open=%d recovery=%d",
			c.Monitor.Breaker.OpenThreshold, c.Monitor.Breaker.RecoveryThreshold))
	}

	return errs
}

func (c *Config) validateGateways() []error {
	var errs []error

	for name, gw := range c.Gateways {
		if gw.BaseURL == "" {
			errs = append(errs, pharoserr.Errorf(pharoserr.CodeConfigValidateInvalidValue,
				"config: gateways.%s.base_url must not be empty", name))
			continue
		}
		u, err := url.Parse(gw.BaseURL)
		if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
			errs = append(errs, pharoserr.Errorf(pharoserr.CodeConfigValidateInvalidValue,
				"config: gateways.%s.base_url must be an http(s) URL, got %q", name, gw.BaseURL))
		}
	}

	return errs
}

func (c *Config) validateTargets() []error {
	var errs []error

	for i, t := range c.Targets {
		if t.Provider == "" {
			errs = append(errs, pharoserr.Errorf(pharoserr.CodeConfigValidateInvalidValue,
				"config: targets[%d].provider must not be empty", i))
		}
		if t.Model == "" {
			errs = append(errs, pharoserr.Errorf(pharoserr.CodeConfigValidateInvalidValue,
				"config: targets[%d].model must not be empty", i))
		}
		if t.Gateway == "" {
			errs = append(errs, pharoserr.Errorf(pharoserr.CodeConfigValidateInvalidValue,
				"config: targets[%d].gateway must not be empty", i))
			continue
		}
		// Only cross-reference gateways when the gateways section exists.
		// A nil map means none were configured yet (defaults-only run); the
		// start command refuses to probe targets without a gateway anyway.
		if c.Gateways != nil {
			if _, ok := c.Gateways[t.Gateway]; !ok {
				errs = append(errs, pharoserr.Errorf(pharoserr.CodeConfigValidateInvalidValue,
					"config: targets[%d] (%s/%s) references gateway %q which is not configured",
					i, t.Provider, t.Model, t.Gateway))
			}
		}
	}

	return errs
}

func (c *Config) validateLogging() []error {
	var errs []error

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		errs = append(errs, pharoserr.Errorf(pharoserr.CodeConfigValidateInvalidValue,
			"config: logging.level must be one of [debug, info, warn, error], got %q", c.Logging.Level))
	}

	validFormats := map[string]bool{"text": true, "json": true}
	if !validFormats[c.Logging.Format] {
		errs = append(errs, pharoserr.Errorf(pharoserr.CodeConfigValidateInvalidValue,
			"config: logging.format must be one of [text, json], got %q", c.Logging.Format))
	}

	return errs
}
