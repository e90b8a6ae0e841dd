// Package leaderelection keeps a single process in charge of a database.
//
// A session-scoped Postgres advisory lock marks the leader. The lock lives
// on a dedicated connection; there is no TTL. The heartbeat ping only
// detects local connection death so leader duties stop promptly.
package leaderelection

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/wis-software/hubot-huntflow-reloaded/internal/metrics"
)

const (
	queryTryLock = "SELECT pg_try_advisory_lock($1)"
	queryUnlock  = "SELECT pg_advisory_unlock($1)"
)

// Reasons leadership ended.
const (
	ReasonShutdown = "shutdown"
	ReasonConnLost = "conn_lost"
	ReasonFinished = "finished"
)

// Elector runs leader duties while it holds the advisory lock.
type Elector struct {
	db                *sql.DB
	lockKey           int64
	retryInterval     time.Duration // follower: how often to attempt lock acquisition
	heartbeatInterval time.Duration // leader: how often to ping dedicated connection
	metrics           metrics.Sink
	logger            *zap.SugaredLogger
}

func New(db *sql.DB, lockKey int64, retryInterval, heartbeatInterval time.Duration, logger *zap.SugaredLogger) *Elector {
	return &Elector{
		db:                db,
		lockKey:           lockKey,
		retryInterval:     retryInterval,
		heartbeatInterval: heartbeatInterval,
		metrics:           metrics.NewNoopSink(),
		logger:            logger,
	}
}

// WithMetrics attaches a metrics sink to the elector.
func (e *Elector) WithMetrics(sink metrics.Sink) *Elector {
	e.metrics = sink
	return e
}

// Run waits for the lock and then runs lead with a context that is
// cancelled when leadership is lost. If lead returns on its own, Run
// releases the lock and returns its error. A lost connection makes Run wait
// for lead to return and compete for the lock again. Run returns nil when
// ctx is cancelled.
func (e *Elector) Run(ctx context.Context, lead func(ctx context.Context) error) error {
	e.logger.Infow("leader: starting election loop",
		"lock_key", e.lockKey, "retry", e.retryInterval, "heartbeat", e.heartbeatInterval)

	for {
		if ctx.Err() != nil {
			e.logger.Info("leader: election loop stopped")
			return nil
		}

		reason, err := e.runOnce(ctx, lead)
		if reason == ReasonFinished {
			return err
		}
		if ctx.Err() != nil {
			e.logger.Info("leader: election loop stopped")
			return nil
		}
		if reason != "" {
			e.logger.Warnw("leader: lost leadership, will retry", "reason", reason, "retry_in", e.retryInterval)
		}

		select {
		case <-ctx.Done():
			e.logger.Info("leader: election loop stopped")
			return nil
		case <-time.After(e.retryInterval):
		}
	}
}

// runOnce attempts to acquire the lock and lead. It returns the reason
// leadership ended, "" when the lock was not acquired.
func (e *Elector) runOnce(ctx context.Context, lead func(ctx context.Context) error) (string, error) {
	// Advisory lock is session-scoped: must use a dedicated connection.
	conn, err := e.db.Conn(ctx)
	if err != nil {
		e.logger.Warnw("leader: failed to acquire dedicated connection", "error", err)
		return "", nil
	}
	defer conn.Close()

	var acquired bool
	if err := conn.QueryRowContext(ctx, queryTryLock, e.lockKey).Scan(&acquired); err != nil {
		e.logger.Warnw("leader: advisory lock query failed", "error", err)
		return "", nil
	}
	if !acquired {
		e.logger.Infow("leader: lock held by another instance", "lock_key", e.lockKey, "retry_in", e.retryInterval)
		return "", nil
	}

	e.logger.Infow("leader: acquired advisory lock", "lock_key", e.lockKey)
	e.metrics.LeaderStatusChanged(true)

	leaderCtx, cancelLeader := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- lead(leaderCtx) }()

	var (
		reason  string
		leadErr error
	)
	select {
	case leadErr = <-done:
		reason = ReasonFinished
	case reason = <-e.heartbeat(leaderCtx, conn):
		cancelLeader()
		leadErr = <-done
	}
	cancelLeader()

	e.release(conn)
	e.metrics.LeaderStatusChanged(false)
	e.logger.Infow("leader: released advisory lock", "lock_key", e.lockKey, "reason", reason)

	if leadErr != nil && !errors.Is(leadErr, context.Canceled) {
		return reason, leadErr
	}
	return reason, nil
}

// heartbeat pings the dedicated connection until ctx ends or a ping fails.
func (e *Elector) heartbeat(ctx context.Context, conn *sql.Conn) <-chan string {
	out := make(chan string, 1)
	go func() {
		ticker := time.NewTicker(e.heartbeatInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				out <- ReasonShutdown
				return
			case <-ticker.C:
				if err := conn.PingContext(ctx); err != nil {
					if ctx.Err() != nil {
						out <- ReasonShutdown
						return
					}
					e.logger.Errorw("leader: dedicated connection ping failed", "error", err)
					out <- ReasonConnLost
					return
				}
			}
		}
	}()
	return out
}

// release unlocks explicitly; closing a *sql.Conn returns the session to the
// pool, which would otherwise keep the lock.
func (e *Elector) release(conn *sql.Conn) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var released bool
	if err := conn.QueryRowContext(ctx, queryUnlock, e.lockKey).Scan(&released); err != nil {
		e.logger.Warnw("leader: advisory unlock failed, discarding connection", "error", err)
		// ErrBadConn from Raw closes the session instead of pooling it.
		_ = conn.Raw(func(any) error { return driver.ErrBadConn })
		return
	}
	if !released {
		e.logger.Warnw("leader: advisory lock was not held at release", "lock_key", e.lockKey)
	}
}
