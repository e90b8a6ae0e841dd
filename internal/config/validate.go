package config

import (
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/wis-software/hubot-huntflow-reloaded/internal/cron"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	if len(e) == 1 {
		return e[0].Error()
	}
	msg := fmt.Sprintf("%d validation errors:", len(e))
	for _, err := range e {
		msg += "\n  - " + err.Error()
	}
	return msg
}

// Validate checks the configuration for errors.
// Returns nil if valid, or ValidationErrors if invalid.
func Validate(cfg Config) error {
	var errs ValidationErrors
	add := func(field, format string, args ...any) {
		errs = append(errs, ValidationError{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	if cfg.DatabaseURL == "" {
		add("DATABASE_URL", "required")
	}
	if strings.TrimSpace(cfg.ChannelName) == "" {
		add("CHANNEL_NAME", "must not be empty")
	}

	loc, err := cfg.Location()
	if err != nil {
		add("SCHEDULER_TIMEZONE", "unknown timezone %q", cfg.SchedulerTimezone)
	}

	positive := []struct {
		field string
		value time.Duration
	}{
		{"DB_OP_TIMEOUT", cfg.DBOpTimeout},
		{"HTTP_SHUTDOWN_TIMEOUT", cfg.HTTPShutdownTimeout},
		{"LEADER_RETRY_INTERVAL", cfg.LeaderRetryInterval},
		{"LEADER_HEARTBEAT_INTERVAL", cfg.LeaderHeartbeatInterval},
	}
	for _, p := range positive {
		if p.value <= 0 {
			add(p.field, "must be positive")
		}
	}

	if cfg.DBMaxOpenConns <= 0 {
		add("DB_MAX_OPEN_CONNS", "must be positive")
	}
	if cfg.DBMaxIdleConns < 0 {
		add("DB_MAX_IDLE_CONNS", "must not be negative")
	}
	if cfg.BusBufferSize <= 0 {
		add("BUS_BUFFER_SIZE", "must be positive")
	}
	if cfg.LeaderLockKey <= 0 {
		add("LEADER_LOCK_KEY", "must be positive")
	}

	// NOTIFY_BREAKER_THRESHOLD of 0 disables the breaker; the cooldown only matters when it is on.
	if cfg.NotifyBreakerThreshold < 0 {
		add("NOTIFY_BREAKER_THRESHOLD", "must not be negative")
	}
	if cfg.NotifyBreakerThreshold > 0 && cfg.NotifyBreakerCooldown <= 0 {
		add("NOTIFY_BREAKER_COOLDOWN", "must be positive")
	}

	if cfg.MetricsEnabled && !strings.HasPrefix(cfg.MetricsPath, "/") {
		add("METRICS_PATH", "must start with '/', got %q", cfg.MetricsPath)
	}

	if cfg.HousekeepingEnabled {
		if err == nil {
			if _, perr := cron.NewParser().Parse(cfg.HousekeepingSchedule, loc); perr != nil {
				add("HOUSEKEEPING_SCHEDULE", "invalid cron expression %q", cfg.HousekeepingSchedule)
			}
		}
		if cfg.HousekeepingRetention <= 0 {
			add("HOUSEKEEPING_RETENTION", "must be positive")
		}
	}

	if _, lerr := zap.ParseAtomicLevel(cfg.LogLevel); lerr != nil {
		add("LOG_LEVEL", "unknown level %q", cfg.LogLevel)
	}
	if cfg.LogFormat != "json" && cfg.LogFormat != "console" {
		add("LOG_FORMAT", "must be 'json' or 'console', got %q", cfg.LogFormat)
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}
