// Package bus publishes and consumes deploy events over NATS JetStream.
package bus

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"

	"github.com/nats-io/nats.go"

	deployer "github.com/kattsoftware/phassets-amazon-s3-deployer"
)

// DeployedSubject carries one message per successful asset upload.
const DeployedSubject = "phassets.assets.deployed"

// Bus wraps a NATS JetStream connection.
type Bus struct {
	conn *nats.Conn
	js   nats.JetStreamContext
}

// New creates a Bus connected to the provided NATS endpoint.
func New(url string, opts ...nats.Option) (*Bus, error) {
	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, err
	}

	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, err
	}

	return &Bus{conn: nc, js: js}, nil
}

// Close shuts down the underlying NATS connection.
func (b *Bus) Close() {
	if b == nil {
		return
	}
	if err := b.conn.Drain(); err != nil {
		b.conn.Close()
	}
}

// PublishDeployed emits a deploy event. It satisfies the deployer's
// EventPublisher interface.
func (b *Bus) PublishDeployed(ctx context.Context, evt deployer.DeployedEvent) error {
	if b == nil {
		return errors.New("nil bus")
	}

	data, err := json.Marshal(evt)
	if err != nil {
		return err
	}

	_, err = b.js.Publish(DeployedSubject, data, nats.Context(ctx))
	return err
}

type subscription struct {
	sub    *nats.Subscription
	mu     sync.Mutex
	closed bool
}

func (s *subscription) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.sub.Drain()
}

// SubscribeDeployed creates a durable consumer for deploy events and
// invokes fn for each decoded event. A handler error naks the message for
// redelivery.
func (b *Bus) SubscribeDeployed(ctx context.Context, durable string, fn func(ctx context.Context, evt deployer.DeployedEvent) error) (io.Closer, error) {
	if b == nil {
		return nil, errors.New("nil bus")
	}
	if fn == nil {
		return nil, errors.New("nil handler")
	}

	handler := func(msg *nats.Msg) {
		handlerCtx, cancel := context.WithCancel(ctx)
		defer cancel()

		var evt deployer.DeployedEvent
		if err := json.Unmarshal(msg.Data, &evt); err != nil {
			// Malformed events can never succeed on redelivery.
			_ = msg.Term()
			return
		}

		if err := fn(handlerCtx, evt); err != nil {
			_ = msg.Nak()
			return
		}
		_ = msg.Ack()
	}

	sub, err := b.js.Subscribe(DeployedSubject, handler, nats.Durable(durable), nats.ManualAck(), nats.AckExplicit())
	if err != nil {
		return nil, err
	}

	s := &subscription{sub: sub}

	go func() {
		<-ctx.Done()
		_ = s.Close()
	}()

	return s, nil
}
