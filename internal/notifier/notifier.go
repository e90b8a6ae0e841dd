// Package notifier publishes reminder messages on the notification channel.
package notifier

import (
	"context"
	"encoding/json"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/wis-software/hubot-huntflow-reloaded/internal/circuitbreaker"
	"github.com/wis-software/hubot-huntflow-reloaded/internal/domain"
	"github.com/wis-software/hubot-huntflow-reloaded/internal/metrics"
)

// DefaultChannel is the channel the chat client subscribes to.
const DefaultChannel = "hubot-huntflow-reloaded"

// Publisher delivers a payload on a named channel.
type Publisher interface {
	Publish(ctx context.Context, channel string, payload []byte) error
}

type Notifier struct {
	publisher Publisher
	channel   string
	breaker   *circuitbreaker.CircuitBreaker
	metrics   metrics.Sink
	logger    *zap.SugaredLogger
}

func New(publisher Publisher, channel string, logger *zap.SugaredLogger) *Notifier {
	if channel == "" {
		channel = DefaultChannel
	}
	return &Notifier{
		publisher: publisher,
		channel:   channel,
		metrics:   metrics.NewNoopSink(),
		logger:    logger,
	}
}

// WithCircuitBreaker attaches a breaker keyed by channel name.
func (n *Notifier) WithCircuitBreaker(cb *circuitbreaker.CircuitBreaker) *Notifier {
	n.breaker = cb
	return n
}

// WithMetrics attaches a metrics sink to the notifier.
func (n *Notifier) WithMetrics(sink metrics.Sink) *Notifier {
	n.metrics = sink
	return n
}

// Channel returns the channel messages are published on.
func (n *Notifier) Channel() string {
	return n.channel
}

// Notify publishes a message for a fired reminder job.
func (n *Notifier) Notify(ctx context.Context, msg domain.Message) error {
	return n.publish(ctx, metrics.ModeScheduled, msg)
}

// NotifyNow publishes a message immediately on behalf of a webhook request.
func (n *Notifier) NotifyNow(ctx context.Context, msg domain.Message) error {
	return n.publish(ctx, metrics.ModeImmediate, msg)
}

func (n *Notifier) publish(ctx context.Context, mode string, msg domain.Message) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		n.metrics.NotifyOutcome(mode, metrics.OutcomeOtherError)
		return errors.Mark(errors.Wrap(err, "encode message"), domain.ErrNotifyFailure)
	}

	if n.breaker != nil {
		if err := n.breaker.Allow(n.channel); err != nil {
			n.metrics.NotifyOutcome(mode, metrics.OutcomeCircuitOpen)
			n.logger.Warnw("notifier: circuit open, message dropped",
				"channel", n.channel, "type", msg.Type, "mode", mode)
			return errors.Mark(err, domain.ErrNotifyFailure)
		}
	}

	if err := n.publisher.Publish(ctx, n.channel, payload); err != nil {
		if n.breaker != nil {
			n.breaker.RecordFailure(n.channel)
		}
		n.metrics.NotifyOutcome(mode, metrics.OutcomeNotifyFailure)
		n.logger.Errorw("notifier: publish failed",
			"channel", n.channel, "type", msg.Type, "mode", mode, "error", err)
		return errors.Mark(errors.Wrapf(err, "publish on %q", n.channel), domain.ErrNotifyFailure)
	}

	if n.breaker != nil {
		n.breaker.RecordSuccess(n.channel)
	}
	n.metrics.NotifyOutcome(mode, metrics.OutcomeSuccess)
	n.logger.Debugw("notifier: published",
		"channel", n.channel, "type", msg.Type, "mode", mode,
		"first_name", msg.FirstName, "last_name", msg.LastName)
	return nil
}
