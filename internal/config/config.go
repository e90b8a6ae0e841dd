// Package config loads process settings from the environment.
package config

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/cockroachdb/errors"

	"github.com/wis-software/hubot-huntflow-reloaded/internal/notifier"
)

// DefaultChannel is the pub/sub channel the chat client subscribes to.
const DefaultChannel = notifier.DefaultChannel

// Config holds all configuration for the huntflow server.
// Values are loaded from environment variables; see the serve command help for the full list.
type Config struct {
	DatabaseURL string `env:"DATABASE_URL"`

	RedisAddr     string `env:"REDIS_ADDR"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`
	ChannelName   string `env:"CHANNEL_NAME"`

	// HTTPAddr falls back to ":$PORT" and then ":8080".
	HTTPAddr string `env:"HTTP_ADDR"`
	Port     string `env:"PORT"`

	// SchedulerTimezone is the zone naive trigger times are compared in.
	SchedulerTimezone string `env:"SCHEDULER_TIMEZONE" envDefault:"Local"`

	DBOpTimeout       time.Duration `env:"DB_OP_TIMEOUT" envDefault:"5s"`
	DBMaxOpenConns    int           `env:"DB_MAX_OPEN_CONNS" envDefault:"25"`
	DBMaxIdleConns    int           `env:"DB_MAX_IDLE_CONNS" envDefault:"5"`
	DBConnMaxLifetime time.Duration `env:"DB_CONN_MAX_LIFETIME" envDefault:"30m"`
	DBConnMaxIdleTime time.Duration `env:"DB_CONN_MAX_IDLE_TIME" envDefault:"5m"`

	HTTPShutdownTimeout time.Duration `env:"HTTP_SHUTDOWN_TIMEOUT" envDefault:"10s"`

	MetricsEnabled bool   `env:"METRICS_ENABLED" envDefault:"false"`
	MetricsPath    string `env:"METRICS_PATH" envDefault:"/metrics"`
	MetricsPort    string `env:"METRICS_PORT" envDefault:"9090"`

	// NotifyBreakerThreshold: 0 disables the circuit breaker.
	NotifyBreakerThreshold int           `env:"NOTIFY_BREAKER_THRESHOLD" envDefault:"5"`
	NotifyBreakerCooldown  time.Duration `env:"NOTIFY_BREAKER_COOLDOWN" envDefault:"1m"`

	// BusBufferSize sizes the in-process channel used when REDIS_ADDR is unset.
	BusBufferSize int `env:"BUS_BUFFER_SIZE" envDefault:"100"`

	HousekeepingEnabled   bool          `env:"HOUSEKEEPING_ENABLED" envDefault:"true"`
	HousekeepingSchedule  string        `env:"HOUSEKEEPING_SCHEDULE" envDefault:"0 3 * * *"`
	HousekeepingRetention time.Duration `env:"HOUSEKEEPING_RETENTION" envDefault:"720h"`

	// LeaderLockKey: all instances sharing the same database must use the same key.
	LeaderLockKey int64 `env:"LEADER_LOCK_KEY" envDefault:"482113"`

	// LeaderRetryInterval determines the maximum failover gap.
	LeaderRetryInterval time.Duration `env:"LEADER_RETRY_INTERVAL" envDefault:"5s"`

	// LeaderHeartbeatInterval pings the dedicated connection to detect local
	// connection death. It does not renew the advisory lock.
	LeaderHeartbeatInterval time.Duration `env:"LEADER_HEARTBEAT_INTERVAL" envDefault:"2s"`

	// ManageToken guards /manage/*; empty leaves the endpoints open.
	ManageToken string `env:"MANAGE_TOKEN"`

	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`
}

// Load reads configuration from environment variables with defaults.
// Malformed values (a bad duration, a non-numeric count) are reported here;
// semantic checks are left to Validate.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, errors.Wrap(err, "config: parse environment")
	}

	if cfg.ChannelName == "" {
		cfg.ChannelName = DefaultChannel
	}

	// Support platform PORT variable as fallback for HTTP_ADDR.
	if cfg.HTTPAddr == "" {
		if cfg.Port != "" {
			cfg.HTTPAddr = ":" + cfg.Port
		} else {
			cfg.HTTPAddr = ":8080"
		}
	}
	return cfg, nil
}

// Location resolves SchedulerTimezone. "Local" and "" mean the process zone.
func (c Config) Location() (*time.Location, error) {
	switch c.SchedulerTimezone {
	case "", "Local":
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.SchedulerTimezone)
	if err != nil {
		return nil, errors.Wrapf(err, "config: load timezone %q", c.SchedulerTimezone)
	}
	return loc, nil
}

// RedisEnabled reports whether messages go to Redis rather than the in-process bus.
func (c Config) RedisEnabled() bool {
	return c.RedisAddr != ""
}

// MaskedJSON returns the configuration as JSON with secrets masked.
func (c Config) MaskedJSON() ([]byte, error) {
	masked := struct {
		DatabaseURL             string `json:"database_url"`
		RedisAddr               string `json:"redis_addr,omitempty"`
		RedisPassword           string `json:"redis_password,omitempty"`
		RedisDB                 int    `json:"redis_db"`
		ChannelName             string `json:"channel_name"`
		HTTPAddr                string `json:"http_addr"`
		SchedulerTimezone       string `json:"scheduler_timezone"`
		DBOpTimeout             string `json:"db_op_timeout"`
		DBMaxOpenConns          int    `json:"db_max_open_conns"`
		DBMaxIdleConns          int    `json:"db_max_idle_conns"`
		DBConnMaxLifetime       string `json:"db_conn_max_lifetime"`
		DBConnMaxIdleTime       string `json:"db_conn_max_idle_time"`
		HTTPShutdownTimeout     string `json:"http_shutdown_timeout"`
		MetricsEnabled          bool   `json:"metrics_enabled"`
		MetricsPath             string `json:"metrics_path"`
		MetricsPort             string `json:"metrics_port"`
		NotifyBreakerThreshold  int    `json:"notify_breaker_threshold"`
		NotifyBreakerCooldown   string `json:"notify_breaker_cooldown"`
		BusBufferSize           int    `json:"bus_buffer_size"`
		HousekeepingEnabled     bool   `json:"housekeeping_enabled"`
		HousekeepingSchedule    string `json:"housekeeping_schedule"`
		HousekeepingRetention   string `json:"housekeeping_retention"`
		LeaderLockKey           int64  `json:"leader_lock_key"`
		LeaderRetryInterval     string `json:"leader_retry_interval"`
		LeaderHeartbeatInterval string `json:"leader_heartbeat_interval"`
		ManageToken             string `json:"manage_token,omitempty"`
		LogLevel                string `json:"log_level"`
		LogFormat               string `json:"log_format"`
	}{
		DatabaseURL:             maskSecret(c.DatabaseURL),
		RedisAddr:               c.RedisAddr,
		RedisPassword:           maskSecret(c.RedisPassword),
		RedisDB:                 c.RedisDB,
		ChannelName:             c.ChannelName,
		HTTPAddr:                c.HTTPAddr,
		SchedulerTimezone:       c.SchedulerTimezone,
		DBOpTimeout:             c.DBOpTimeout.String(),
		DBMaxOpenConns:          c.DBMaxOpenConns,
		DBMaxIdleConns:          c.DBMaxIdleConns,
		DBConnMaxLifetime:       c.DBConnMaxLifetime.String(),
		DBConnMaxIdleTime:       c.DBConnMaxIdleTime.String(),
		HTTPShutdownTimeout:     c.HTTPShutdownTimeout.String(),
		MetricsEnabled:          c.MetricsEnabled,
		MetricsPath:             c.MetricsPath,
		MetricsPort:             c.MetricsPort,
		NotifyBreakerThreshold:  c.NotifyBreakerThreshold,
		NotifyBreakerCooldown:   c.NotifyBreakerCooldown.String(),
		BusBufferSize:           c.BusBufferSize,
		HousekeepingEnabled:     c.HousekeepingEnabled,
		HousekeepingSchedule:    c.HousekeepingSchedule,
		HousekeepingRetention:   c.HousekeepingRetention.String(),
		LeaderLockKey:           c.LeaderLockKey,
		LeaderRetryInterval:     c.LeaderRetryInterval.String(),
		LeaderHeartbeatInterval: c.LeaderHeartbeatInterval.String(),
		ManageToken:             maskSecret(c.ManageToken),
		LogLevel:                c.LogLevel,
		LogFormat:               c.LogFormat,
	}
	return json.MarshalIndent(masked, "", "  ")
}

// maskSecret masks a secret value, preserving only the URI scheme if present.
func maskSecret(s string) string {
	if s == "" {
		return ""
	}
	for _, scheme := range []string{"postgres://", "postgresql://"} {
		if strings.HasPrefix(s, scheme) {
			return scheme + "***"
		}
	}
	return "***"
}
