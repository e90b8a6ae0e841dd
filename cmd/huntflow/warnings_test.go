package main

import (
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/wis-software/hubot-huntflow-reloaded/internal/config"
)

// captureWarnings calls logConfigWarnings with cfg and returns the logged
// messages joined by newlines.
func captureWarnings(cfg config.Config) string {
	core, logs := observer.New(zapcore.DebugLevel)
	logConfigWarnings(cfg, zap.New(core).Sugar())

	var b strings.Builder
	for _, entry := range logs.All() {
		b.WriteString(entry.Message)
		b.WriteByte('\n')
	}
	return b.String()
}

// quietConfig is a production-like config that triggers no messages.
func quietConfig() config.Config {
	return config.Config{
		RedisAddr:              "redis:6379",
		ManageToken:            "secret",
		NotifyBreakerThreshold: 5,
		HousekeepingEnabled:    true,
		MetricsEnabled:         true,
		SchedulerTimezone:      "Europe/Moscow",
	}
}

func TestLogConfigWarnings_Quiet(t *testing.T) {
	output := captureWarnings(quietConfig())
	if output != "" {
		t.Errorf("expected no messages, got: %s", output)
	}
}

func TestLogConfigWarnings_NoRedis(t *testing.T) {
	cfg := quietConfig()
	cfg.RedisAddr = ""
	output := captureWarnings(cfg)

	if !strings.Contains(output, "WARNING: REDIS_ADDR is not set") {
		t.Error("expected redis warning, got:", output)
	}
	if strings.Contains(output, "MANAGE_TOKEN") {
		t.Error("did not expect token warning, got:", output)
	}
}

func TestLogConfigWarnings_NoToken(t *testing.T) {
	cfg := quietConfig()
	cfg.ManageToken = ""
	output := captureWarnings(cfg)

	if !strings.Contains(output, "WARNING: MANAGE_TOKEN is not set") {
		t.Error("expected token warning, got:", output)
	}
}

func TestLogConfigWarnings_LocalTimezone(t *testing.T) {
	for _, tz := range []string{"", "Local"} {
		cfg := quietConfig()
		cfg.SchedulerTimezone = tz
		output := captureWarnings(cfg)

		if !strings.Contains(output, "INFO: SCHEDULER_TIMEZONE uses the process zone") {
			t.Errorf("timezone %q: expected process zone INFO, got: %s", tz, output)
		}
	}
}

func TestLogConfigWarnings_AllMessages(t *testing.T) {
	output := captureWarnings(config.Config{})

	expected := []string{
		"WARNING: REDIS_ADDR is not set",
		"WARNING: MANAGE_TOKEN is not set",
		"INFO: NOTIFY_BREAKER_THRESHOLD=0",
		"INFO: HOUSEKEEPING_ENABLED=false",
		"INFO: METRICS_ENABLED=false",
		"INFO: SCHEDULER_TIMEZONE uses the process zone",
	}
	for _, want := range expected {
		if !strings.Contains(output, want) {
			t.Errorf("expected %q in output, got: %s", want, output)
		}
	}
}

func TestLogConfigWarnings_Levels(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	logConfigWarnings(config.Config{}, zap.New(core).Sugar())

	if n := logs.FilterLevelExact(zapcore.WarnLevel).Len(); n != 2 {
		t.Errorf("expected 2 warnings, got %d", n)
	}
	if n := logs.FilterLevelExact(zapcore.InfoLevel).Len(); n != 4 {
		t.Errorf("expected 4 info messages, got %d", n)
	}
}
