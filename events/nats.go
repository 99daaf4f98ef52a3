package events

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/nats-io/nats.go"

	"github.com/c360/socialgate/errors"
	"github.com/c360/socialgate/pkg/retry"
)

// DefaultSubject is the NATS subject events are published on.
const DefaultSubject = "socialgate.events"

// NATSBus publishes events over a NATS connection.
type NATSBus struct {
	nc      *nats.Conn
	subject string
	logger  *slog.Logger
}

// NATSOption customizes a NATSBus.
type NATSOption func(*NATSBus)

// WithSubject overrides the publish subject.
func WithSubject(subject string) NATSOption {
	return func(b *NATSBus) { b.subject = subject }
}

// ConnectNATS dials the NATS server and returns a bus on it.
func ConnectNATS(url string, logger *slog.Logger, opts ...NATSOption) (*NATSBus, error) {
	if logger == nil {
		logger = slog.Default()
	}

	nc, err := nats.Connect(url,
		nats.MaxReconnects(-1),
		nats.ReconnectHandler(func(*nats.Conn) {
			logger.Info("NATS reconnected")
		}),
	)
	if err != nil {
		return nil, errors.WrapTransient(err, "events", "ConnectNATS", "connect")
	}

	return NewNATSBus(nc, logger, opts...), nil
}

// NewNATSBus wraps an existing connection.
func NewNATSBus(nc *nats.Conn, logger *slog.Logger, opts ...NATSOption) *NATSBus {
	if logger == nil {
		logger = slog.Default()
	}
	b := &NATSBus{
		nc:      nc,
		subject: DefaultSubject,
		logger:  logger.With("component", "nats-bus"),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Publish sends the event, retrying briefly across broker reconnects.
func (b *NATSBus) Publish(ctx context.Context, ev Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return errors.Wrap(err, "events", "Publish", "marshal event")
	}

	err = retry.Do(ctx, retry.Publish(), func() error {
		return b.nc.Publish(b.subject, payload)
	})
	if err != nil {
		return errors.WrapTransient(err, "events", "Publish", "publish to NATS")
	}
	return nil
}

// Subscribe registers a handler for every event on the bus subject.
func (b *NATSBus) Subscribe(ctx context.Context, h Handler) (func(), error) {
	sub, err := b.nc.Subscribe(b.subject, func(msg *nats.Msg) {
		var ev Event
		if err := json.Unmarshal(msg.Data, &ev); err != nil {
			b.logger.Warn("dropping malformed event", "error", err)
			return
		}
		h(ctx, ev)
	})
	if err != nil {
		return nil, errors.WrapTransient(err, "events", "Subscribe", "subscribe")
	}

	return func() {
		if err := sub.Unsubscribe(); err != nil {
			b.logger.Warn("unsubscribe failed", "error", err)
		}
	}, nil
}

// Connected reports whether the underlying connection is currently usable.
func (b *NATSBus) Connected() bool {
	return b.nc.Status() == nats.CONNECTED
}

// Close drains the underlying connection.
func (b *NATSBus) Close() {
	if err := b.nc.Drain(); err != nil {
		b.logger.Warn("NATS drain failed", "error", err)
	}
}

var _ Bus = (*NATSBus)(nil)
