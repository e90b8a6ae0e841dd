// Package channel is an in-process stand-in for the Redis notification
// channel. Published messages are buffered and consumed by a local reader.
package channel

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/wis-software/hubot-huntflow-reloaded/internal/metrics"
)

// ErrBufferFull is returned when a publish cannot be buffered before the
// emit timeout elapses.
var ErrBufferFull = errors.New("channel bus: buffer full")

// Delivery is one message published on a named channel.
type Delivery struct {
	Channel string
	Payload []byte
}

type Option func(*Bus)

// WithEmitTimeout bounds how long Publish waits for buffer space.
// Zero waits until the caller's context is done.
func WithEmitTimeout(d time.Duration) Option {
	return func(b *Bus) { b.emitTimeout = d }
}

// WithMetrics attaches a metrics sink.
func WithMetrics(sink metrics.Sink) Option {
	return func(b *Bus) { b.metrics = sink }
}

type Bus struct {
	ch          chan Delivery
	emitTimeout time.Duration
	metrics     metrics.Sink
}

func NewBus(buffer int, opts ...Option) *Bus {
	b := &Bus{
		ch:      make(chan Delivery, buffer),
		metrics: metrics.NewNoopSink(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Publish buffers a copy of payload for channel.
func (b *Bus) Publish(ctx context.Context, channel string, payload []byte) error {
	d := Delivery{Channel: channel, Payload: append([]byte(nil), payload...)}

	var timeout <-chan time.Time
	if b.emitTimeout > 0 {
		timer := time.NewTimer(b.emitTimeout)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case b.ch <- d:
		b.metrics.BufferSizeUpdate(len(b.ch))
		return nil
	case <-timeout:
		b.metrics.EmitError()
		return errors.Wrapf(ErrBufferFull, "channel %q", channel)
	case <-ctx.Done():
		b.metrics.EmitError()
		return ctx.Err()
	}
}

// Channel returns the receive side of the bus.
func (b *Bus) Channel() <-chan Delivery {
	return b.ch
}

// Drain logs every delivery until ctx is done. It is the consumer used when
// no Redis server is configured.
func (b *Bus) Drain(ctx context.Context, logger *zap.SugaredLogger) {
	for {
		select {
		case <-ctx.Done():
			return
		case d := <-b.ch:
			b.metrics.BufferSizeUpdate(len(b.ch))
			logger.Infow("bus: message", "channel", d.Channel, "payload", string(d.Payload))
		}
	}
}
