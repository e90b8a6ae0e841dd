package main

import (
	"go.uber.org/zap"

	"github.com/wis-software/hubot-huntflow-reloaded/internal/config"
)

// logConfigWarnings reports settings that are valid but risky in production.
func logConfigWarnings(cfg config.Config, logger *zap.SugaredLogger) {
	if !cfg.RedisEnabled() {
		logger.Warn("WARNING: REDIS_ADDR is not set. " +
			"Messages are logged by the in-process bus and never reach the chat client.")
	}

	if cfg.ManageToken == "" {
		logger.Warn("WARNING: MANAGE_TOKEN is not set. " +
			"The /manage endpoints are open to anyone who can reach the HTTP port.")
	}

	if cfg.NotifyBreakerThreshold == 0 {
		logger.Info("INFO: NOTIFY_BREAKER_THRESHOLD=0. " +
			"Every reminder attempts a publish even while Redis is down.")
	}

	if !cfg.HousekeepingEnabled {
		logger.Info("INFO: HOUSEKEEPING_ENABLED=false. Finished interviews are kept forever.")
	}

	if !cfg.MetricsEnabled {
		logger.Info("INFO: METRICS_ENABLED=false. Scheduler lag and publish failures are not exported.")
	}

	if cfg.SchedulerTimezone == "" || cfg.SchedulerTimezone == "Local" {
		logger.Infow("INFO: SCHEDULER_TIMEZONE uses the process zone. "+
			"Trigger times follow the host clock.", "zone", "Local")
	}
}
