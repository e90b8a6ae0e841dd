package main

import (
	"fmt"
	"os"

	"github.com/cockroachdb/errors"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/wis-software/hubot-huntflow-reloaded/internal/config"
)

// Build-time variables set via -ldflags
var (
	version = "dev"
	commit  = "unknown"
)

const (
	exitSuccess       = 0
	exitRuntimeError  = 1
	exitInvalidConfig = 2
)

// exitError carries the process exit code of a failed command.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

func invalidConfig(err error) error {
	return &exitError{code: exitInvalidConfig, err: err}
}

func exitCode(err error) int {
	if err == nil {
		return exitSuccess
	}
	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	return exitRuntimeError
}

const envHelp = `Environment Variables:
  DATABASE_URL               PostgreSQL connection string (required)
  REDIS_ADDR                 Redis address; unset logs messages in-process
  REDIS_PASSWORD             Redis password
  REDIS_DB                   Redis database number (default: 0)
  CHANNEL_NAME               Notification channel (default: "hubot-huntflow-reloaded")
  HTTP_ADDR / PORT           HTTP server address (default: ":8080")
  SCHEDULER_TIMEZONE         Zone of naive trigger times (default: "Local")

  DB_OP_TIMEOUT              Database operation timeout (default: "5s")
  DB_MAX_OPEN_CONNS          Max open database connections (default: "25")
  DB_MAX_IDLE_CONNS          Max idle database connections (default: "5")
  DB_CONN_MAX_LIFETIME       Max connection lifetime (default: "30m")
  DB_CONN_MAX_IDLE_TIME      Max connection idle time (default: "5m")
  HTTP_SHUTDOWN_TIMEOUT      Graceful HTTP shutdown timeout (default: "10s")

  METRICS_ENABLED            Enable Prometheus metrics (default: "false")
  METRICS_PATH               Metrics endpoint path (default: "/metrics")
  METRICS_PORT               Metrics server port (default: "9090")

  NOTIFY_BREAKER_THRESHOLD   Publish failures before the breaker opens, 0 disables (default: "5")
  NOTIFY_BREAKER_COOLDOWN    Open breaker cooldown (default: "1m")
  BUS_BUFFER_SIZE            In-process channel buffer (default: "100")

  HOUSEKEEPING_ENABLED       Purge finished interviews (default: "true")
  HOUSEKEEPING_SCHEDULE      Cron expression of the purge (default: "0 3 * * *")
  HOUSEKEEPING_RETENTION     Age after the interview end before purge (default: "720h")

  LEADER_LOCK_KEY            Advisory lock key shared by all instances (default: "482113")
  LEADER_RETRY_INTERVAL      Lock acquisition retry interval (default: "5s")
  LEADER_HEARTBEAT_INTERVAL  Dedicated connection ping interval (default: "2s")

  MANAGE_TOKEN               Token for /manage endpoints; unset leaves them open
  LOG_LEVEL                  debug, info, warn, error (default: "info")
  LOG_FORMAT                 json or console (default: "json")`

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "huntflow",
		Short: "huntflow - Huntflow webhook receiver and reminder scheduler",
		Long: `huntflow receives Huntflow webhooks, keeps candidate and interview state in
PostgreSQL and publishes interview reminders on a Redis channel.

` + envHelp,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// An optional .env file; real environment variables win.
			_ = godotenv.Load()
		},
	}

	root.AddCommand(
		newServeCmd(),
		newValidateCmd(),
		newConfigCmd(),
		newListenCmd(),
		newVersionCmd(),
	)
	return root
}

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate configuration (no connections made)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := loadConfig(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "configuration valid")
			return nil
		},
	}
}

func newConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print effective configuration as JSON (secrets masked)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return invalidConfig(err)
			}
			data, err := cfg.MaskedJSON()
			if err != nil {
				return errors.Wrap(err, "marshal config")
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return nil
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "huntflow version %s (commit: %s)\n", version, commit)
		},
	}
}

// loadConfig loads and validates the environment. Failures are invalid-config errors.
func loadConfig() (config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, invalidConfig(err)
	}
	if err := config.Validate(cfg); err != nil {
		return config.Config{}, invalidConfig(errors.Wrap(err, "configuration error"))
	}
	return cfg, nil
}

func main() {
	err := newRootCmd().Execute()
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
	}
	os.Exit(exitCode(err))
}
