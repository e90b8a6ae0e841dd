package postgres

import (
	"github.com/cockroachdb/errors"
	"github.com/jackc/pgerrcode"
	"github.com/lib/pq"

	"github.com/wis-software/hubot-huntflow-reloaded/internal/domain"
)

// classify wraps a database error with op context and marks it with the
// matching domain sentinel.
func classify(err error, op string) error {
	if err == nil {
		return nil
	}
	wrapped := errors.Wrap(err, op)

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch string(pqErr.Code) {
		case pgerrcode.UniqueViolation:
			return errors.Mark(wrapped, domain.ErrConflict)
		case pgerrcode.ForeignKeyViolation:
			return errors.Mark(wrapped, domain.ErrNotFound)
		}
		return errors.Mark(wrapped, domain.ErrStoreUnavailable)
	}

	// Connection failures, timeouts and cancellations all surface the same way.
	return errors.Mark(wrapped, domain.ErrStoreUnavailable)
}
