// Package config loads PulseOne's runtime configuration: daemon
// settings, the default device timing/reconnection policy, the
// persistence DSN, and telemetry sink endpoints. Layering follows the
// teacher's own env-over-config.yaml-over-defaults convention (see
// cmd/bd/config.go), implemented here with spf13/viper rather than
// the teacher's hand-rolled SQLite-backed config store, since PulseOne
// has no per-project database to layer config into — a single
// config.yaml plus PULSEONE_-prefixed environment variables is the
// whole of it.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/pulseone/pulseone/internal/model"
)

// EnvPrefix is the prefix every environment variable override uses,
// e.g. PULSEONE_DAEMON_LOG_LEVEL.
const EnvPrefix = "PULSEONE"

// Config is the complete set of runtime settings read at startup and,
// for the fields watch.go tracks, hot-reloadable without a restart.
type Config struct {
	Daemon      DaemonConfig      `mapstructure:"daemon"`
	Store       StoreConfig       `mapstructure:"store"`
	Reconnect   model.ReconnectionPolicy `mapstructure:"reconnect"`
	DefaultTiming model.Timing    `mapstructure:"-"`
	Telemetry   TelemetryConfig   `mapstructure:"telemetry"`
}

// DaemonConfig controls the daemon process itself.
type DaemonConfig struct {
	LogLevel       string `mapstructure:"log_level"`
	ConfigPath     string `mapstructure:"-"`
	WatchConfig    bool   `mapstructure:"watch_config"`
	MetricsAddr    string `mapstructure:"metrics_addr"`
}

// StoreConfig describes how to reach the persistence collaborator
// (spec §6), consumed by cmd/pulseoned to open a *sql.DB and hand it
// to internal/store.NewSQLStore.
type StoreConfig struct {
	Driver string `mapstructure:"driver"` // database/sql driver name; cmd/pulseoned registers only "mysql"
	DSN    string `mapstructure:"dsn"`
}

// TelemetryConfig configures the optional Redis/Influx-style sinks
// (spec §6: "Both are optional; absence must not affect correctness").
type TelemetryConfig struct {
	RedisAddr   string `mapstructure:"redis_addr"`
	RedisDB     int    `mapstructure:"redis_db"`
	InfluxAddr  string `mapstructure:"influx_addr"`
	InfluxToken string `mapstructure:"influx_token"`
}

// defaultTimingRaw mirrors model.Timing's millisecond-duration fields
// the way viper/yaml actually stores them, since time.Duration has no
// natural YAML scalar representation in this codebase's convention.
type defaultTimingRaw struct {
	PollIntervalMS int `mapstructure:"poll_interval_ms"`
	TimeoutMS      int `mapstructure:"timeout_ms"`
	RetryCount     int `mapstructure:"retry_count"`
}

// Defaults returns the built-in configuration, matching
// model.DefaultReconnectionPolicy() and spec §3's device timing
// defaults (poll_interval=1s, timeout=5s, retry_count=3 is the
// teacher-neutral middle ground spec.md leaves unspecified at the
// config layer; per-device Timing in the repository always wins over
// this fallback).
func Defaults() *Config {
	return &Config{
		Daemon: DaemonConfig{
			LogLevel:    "info",
			WatchConfig: true,
			MetricsAddr: ":9090",
		},
		Store: StoreConfig{
			Driver: "mysql",
		},
		Reconnect: model.DefaultReconnectionPolicy(),
		DefaultTiming: model.Timing{
			PollInterval: time.Second,
			Timeout:      5 * time.Second,
			RetryCount:   3,
		},
		Telemetry: TelemetryConfig{
			RedisDB: 0,
		},
	}
}

// Load builds a *viper.Viper bound to configPath (if non-empty) plus
// PULSEONE_-prefixed environment variables, seeds it with Defaults(),
// and unmarshals the result into a Config. configPath may be empty, in
// which case only defaults and environment variables apply - spec
// §1's config layer never requires a file to exist.
func Load(configPath string) (*Config, error) {
	v := newViper(configPath)
	if err := bindDefaults(v, Defaults()); err != nil {
		return nil, err
	}

	if configPath != "" {
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok && !errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("config: reading %s: %w", configPath, err)
			}
		}
	}

	cfg := Defaults()
	cfg.Daemon.ConfigPath = configPath
	if err := decode(v, cfg); err != nil {
		return nil, fmt.Errorf("config: decode: %w", err)
	}

	if err := cfg.Reconnect.Validate(); err != nil {
		return nil, fmt.Errorf("config: reconnect policy: %w", err)
	}
	return cfg, nil
}

func newViper(configPath string) *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("yaml")
	}
	return v
}

// bindDefaults seeds v's default layer from cfg, the bottom rung of
// viper's precedence (env > file > this).
func bindDefaults(v *viper.Viper, cfg *Config) error {
	v.SetDefault("daemon.log_level", cfg.Daemon.LogLevel)
	v.SetDefault("daemon.watch_config", cfg.Daemon.WatchConfig)
	v.SetDefault("daemon.metrics_addr", cfg.Daemon.MetricsAddr)
	v.SetDefault("store.driver", cfg.Store.Driver)
	v.SetDefault("store.dsn", cfg.Store.DSN)
	v.SetDefault("reconnect.auto_reconnect_enabled", cfg.Reconnect.AutoReconnectEnabled)
	v.SetDefault("reconnect.retry_interval_ms", cfg.Reconnect.RetryIntervalMS)
	v.SetDefault("reconnect.max_retries_per_cycle", cfg.Reconnect.MaxRetriesPerCycle)
	v.SetDefault("reconnect.wait_time_after_max_retries_ms", cfg.Reconnect.WaitTimeAfterMaxRetriesMS)
	v.SetDefault("reconnect.keep_alive_enabled", cfg.Reconnect.KeepAliveEnabled)
	v.SetDefault("reconnect.keep_alive_interval_seconds", cfg.Reconnect.KeepAliveIntervalSeconds)
	v.SetDefault("reconnect.connection_timeout_seconds", cfg.Reconnect.ConnectionTimeoutSeconds)
	v.SetDefault("timing.poll_interval_ms", int(cfg.DefaultTiming.PollInterval.Milliseconds()))
	v.SetDefault("timing.timeout_ms", int(cfg.DefaultTiming.Timeout.Milliseconds()))
	v.SetDefault("timing.retry_count", cfg.DefaultTiming.RetryCount)
	v.SetDefault("telemetry.redis_addr", cfg.Telemetry.RedisAddr)
	v.SetDefault("telemetry.redis_db", cfg.Telemetry.RedisDB)
	v.SetDefault("telemetry.influx_addr", cfg.Telemetry.InfluxAddr)
	v.SetDefault("telemetry.influx_token", cfg.Telemetry.InfluxToken)
	return nil
}

// decode unmarshals v into cfg, then separately decodes the
// millisecond-based timing fields into cfg.DefaultTiming (mapstructure
// can't target a time.Duration-bearing struct from int-millisecond
// yaml keys without a custom hook, so this package keeps that
// translation explicit and visible instead).
func decode(v *viper.Viper, cfg *Config) error {
	if err := v.Unmarshal(cfg); err != nil {
		return err
	}
	var raw defaultTimingRaw
	if err := v.UnmarshalKey("timing", &raw); err != nil {
		return err
	}
	if raw.PollIntervalMS > 0 {
		cfg.DefaultTiming.PollInterval = time.Duration(raw.PollIntervalMS) * time.Millisecond
	}
	if raw.TimeoutMS > 0 {
		cfg.DefaultTiming.Timeout = time.Duration(raw.TimeoutMS) * time.Millisecond
	}
	if raw.RetryCount > 0 {
		cfg.DefaultTiming.RetryCount = raw.RetryCount
	}
	return nil
}
