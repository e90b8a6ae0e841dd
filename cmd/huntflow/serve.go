package main

import (
	"context"
	"database/sql"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/wis-software/hubot-huntflow-reloaded/internal/api"
	"github.com/wis-software/hubot-huntflow-reloaded/internal/circuitbreaker"
	"github.com/wis-software/hubot-huntflow-reloaded/internal/config"
	"github.com/wis-software/hubot-huntflow-reloaded/internal/cron"
	"github.com/wis-software/hubot-huntflow-reloaded/internal/database"
	"github.com/wis-software/hubot-huntflow-reloaded/internal/domain"
	"github.com/wis-software/hubot-huntflow-reloaded/internal/housekeeping"
	"github.com/wis-software/hubot-huntflow-reloaded/internal/leaderelection"
	"github.com/wis-software/hubot-huntflow-reloaded/internal/metrics"
	"github.com/wis-software/hubot-huntflow-reloaded/internal/notifier"
	"github.com/wis-software/hubot-huntflow-reloaded/internal/reconciler"
	"github.com/wis-software/hubot-huntflow-reloaded/internal/scheduler"
	"github.com/wis-software/hubot-huntflow-reloaded/internal/store/postgres"
	"github.com/wis-software/hubot-huntflow-reloaded/internal/transport/channel"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the webhook server and the reminder scheduler",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			logger, err := newLogger(cfg.LogLevel, cfg.LogFormat)
			if err != nil {
				return invalidConfig(err)
			}
			defer func() { _ = logger.Sync() }()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, cfg, logger)
		},
	}
}

func runServe(ctx context.Context, cfg config.Config, logger *zap.SugaredLogger) error {
	logConfigWarnings(cfg, logger)

	loc, err := cfg.Location()
	if err != nil {
		return invalidConfig(err)
	}

	conn := database.NewConn(cfg.DatabaseURL, database.PoolConfig{
		MaxOpenConns:    cfg.DBMaxOpenConns,
		MaxIdleConns:    cfg.DBMaxIdleConns,
		ConnMaxLifetime: cfg.DBConnMaxLifetime,
		ConnMaxIdleTime: cfg.DBConnMaxIdleTime,
	}, logger)
	defer conn.Close()

	db, err := conn.Open(ctx)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	if err := database.Migrate(ctx, db, logger); err != nil {
		return errors.Wrap(err, "migrate database")
	}

	g, gctx := errgroup.WithContext(ctx)

	var sink metrics.Sink = metrics.NewNoopSink()
	if cfg.MetricsEnabled {
		sink = metrics.NewPrometheusSink(prometheus.DefaultRegisterer, logger)

		metricsMux := http.NewServeMux()
		metricsMux.Handle(cfg.MetricsPath, promhttp.Handler())
		metricsServer := &http.Server{
			Addr:              ":" + cfg.MetricsPort,
			Handler:           metricsMux,
			ReadHeaderTimeout: 10 * time.Second,
		}
		logger.Infow("huntflow: metrics enabled", "port", cfg.MetricsPort, "path", cfg.MetricsPath)
		g.Go(func() error {
			return serveHTTP(gctx, metricsServer, cfg.HTTPShutdownTimeout, logger.With("server", "metrics"))
		})
	}

	publisher, closePublisher := newPublisher(gctx, g, cfg, sink, logger)
	defer closePublisher()

	n := notifier.New(publisher, cfg.ChannelName, logger).WithMetrics(sink)
	if cfg.NotifyBreakerThreshold > 0 {
		n = n.WithCircuitBreaker(circuitbreaker.New(cfg.NotifyBreakerThreshold, cfg.NotifyBreakerCooldown))
	}

	store := postgres.New(db, cfg.DBOpTimeout)
	elector := leaderelection.New(db, cfg.LeaderLockKey, cfg.LeaderRetryInterval, cfg.LeaderHeartbeatInterval, logger).
		WithMetrics(sink)

	g.Go(func() error {
		return elector.Run(gctx, func(leaderCtx context.Context) error {
			return lead(leaderCtx, cfg, loc, db, store, n, sink, logger)
		})
	})

	logger.Infow("huntflow: started", "http", cfg.HTTPAddr, "channel", n.Channel(), "timezone", loc.String())
	err = g.Wait()
	logger.Info("huntflow: stopped")
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// newPublisher returns the Redis publisher, or the in-process bus drained by
// a logging goroutine in g when no Redis address is configured.
func newPublisher(ctx context.Context, g *errgroup.Group, cfg config.Config, sink metrics.Sink, logger *zap.SugaredLogger) (notifier.Publisher, func()) {
	if cfg.RedisEnabled() {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		pub := notifier.NewRedisPublisher(client)

		pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		defer cancel()
		if err := pub.Ping(pingCtx); err != nil {
			logger.Warnw("huntflow: redis is not reachable yet", "addr", cfg.RedisAddr, "error", err)
		} else {
			logger.Infow("huntflow: publishing to redis", "addr", cfg.RedisAddr, "db", cfg.RedisDB)
		}
		return pub, func() { _ = client.Close() }
	}

	bus := channel.NewBus(cfg.BusBufferSize, channel.WithMetrics(sink), channel.WithEmitTimeout(time.Second))
	g.Go(func() error {
		bus.Drain(ctx, logger)
		return nil
	})
	return bus, func() {}
}

// lead runs everything that must have a single owner per database: the
// scheduler, the HTTP surface that feeds it, and housekeeping.
func lead(ctx context.Context, cfg config.Config, loc *time.Location, db *sql.DB, store *postgres.Store,
	n *notifier.Notifier, sink metrics.Sink, logger *zap.SugaredLogger) error {
	sched := scheduler.New(scheduler.Config{Location: loc}, store, logger).WithMetrics(sink)
	rec := reconciler.New(store, sched, n, logger)
	sched.
		Handle(domain.JobKindNotifyInterview, rec.FireInterviewReminder).
		Handle(domain.JobKindRemoveCandidate, rec.FireCandidateRemoval)

	handler := api.NewHandler(rec, store, sched, logger).
		WithHealthChecker(db).
		WithManageToken(cfg.ManageToken).
		WithMetrics(sink)
	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return sched.Run(gctx) })
	g.Go(func() error {
		return serveHTTP(gctx, httpServer, cfg.HTTPShutdownTimeout, logger.With("server", "http"))
	})

	if cfg.HousekeepingEnabled {
		schedule, err := cron.NewParser().Parse(cfg.HousekeepingSchedule, loc)
		if err != nil {
			return invalidConfig(err)
		}
		sweeper := housekeeping.New(housekeeping.Config{
			Schedule:  schedule,
			Retention: cfg.HousekeepingRetention,
			Location:  loc,
		}, store, rec, logger).WithMetrics(sink)
		g.Go(func() error {
			sweeper.Run(gctx)
			return nil
		})
	}

	return g.Wait()
}

// serveHTTP runs srv until ctx is done, then shuts it down gracefully.
func serveHTTP(ctx context.Context, srv *http.Server, shutdownTimeout time.Duration, logger *zap.SugaredLogger) error {
	errCh := make(chan error, 1)
	go func() {
		logger.Infow("huntflow: listening", "addr", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return errors.Wrapf(err, "listen on %s", srv.Addr)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warnw("huntflow: shutdown error", "error", err)
	}
	logger.Info("huntflow: server stopped")
	return nil
}
