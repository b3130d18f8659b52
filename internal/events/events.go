// Package events publishes best-effort payment-lifecycle notifications
// over core NATS, grounded on the connection-option style of the teacher's
// pkg/broker/nats/jetstream package but using plain publish-and-forget
// rather than JetStream: spec.md treats event publication as an
// observability side effect, never a step the credit/debit invariants
// depend on, so a publish failure is logged and swallowed rather than
// propagated to the caller.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// Kind enumerates the payment-lifecycle event types.
type Kind string

const (
	KindPurchaseInitiated Kind = "purchase.initiated"
	KindPaymentSuccessful Kind = "payment.successful"
	KindPaymentFailed     Kind = "payment.failed"
	KindTokensConsumed    Kind = "tokens.consumed"
)

// Event is the wire shape published to Subject.
type Event struct {
	Kind      Kind      `json:"kind"`
	Reference string    `json:"reference,omitempty"`
	UserKey   string    `json:"user_key"`
	TokenQty  int64     `json:"token_qty,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Publisher publishes Events. Nop is used when no NATS URL is configured.
type Publisher interface {
	Publish(ctx context.Context, event Event)
}

// Connect dials url and returns a Publisher that writes to subject.
func Connect(url, subject string, logger *zap.Logger) (*NatsPublisher, error) {
	nc, err := nats.Connect(
		url,
		nats.ReconnectWait(5*time.Second),
		nats.MaxReconnects(10),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("events: disconnected", zap.Error(err))
			}
		}),
	)
	if err != nil {
		return nil, err
	}
	return &NatsPublisher{nc: nc, subject: subject, logger: logger}, nil
}

// NatsPublisher is the concrete core-NATS Publisher.
type NatsPublisher struct {
	nc      *nats.Conn
	subject string
	logger  *zap.Logger
}

// Publish marshals event and publishes it on p.subject. Errors are logged,
// never returned: losing a lifecycle notification must never block or fail
// the payment/consumption operation that triggered it.
func (p *NatsPublisher) Publish(_ context.Context, event Event) {
	payload, err := json.Marshal(event)
	if err != nil {
		p.logger.Warn("events: marshal failed", zap.String("kind", string(event.Kind)), zap.Error(err))
		return
	}
	if err := p.nc.Publish(p.subject, payload); err != nil {
		p.logger.Warn("events: publish failed", zap.String("kind", string(event.Kind)), zap.Error(err))
	}
}

// Close closes the underlying connection without draining it.
func (p *NatsPublisher) Close() {
	p.nc.Close()
}

// Nop is a Publisher that does nothing, used when EVENTS_NATSURL is unset.
type Nop struct{}

func (Nop) Publish(context.Context, Event) {}

var _ Publisher = (*NatsPublisher)(nil)
var _ Publisher = Nop{}
