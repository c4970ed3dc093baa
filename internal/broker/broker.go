// Package broker abstracts the message transport between pipeline stages.
// Delivery is at least once and ordered per routing key; consumers must be
// idempotent and acknowledge manually.
package broker

import (
	"context"
	"errors"
)

var (
	ErrPublishNacked      = errors.New("broker: message was nacked")
	ErrSubscriptionClosed = errors.New("broker: subscription closed")
)

// Message is one unit on a topic. Key is the routing key; messages sharing
// a key are delivered in publish order.
type Message struct {
	Topic   string
	Key     string
	Payload []byte
}

// Publisher sends a message and returns only after the broker acknowledges
// it. A nil error is the only proof of durable handoff.
type Publisher interface {
	Publish(ctx context.Context, msg Message) error
}

// Consumer opens a manually acknowledged subscription for a consumer group.
type Consumer interface {
	Subscribe(ctx context.Context, topic, group string) (Subscription, error)
}

// Subscription yields deliveries one at a time per partition.
type Subscription interface {
	// Receive blocks until a delivery arrives, the subscription closes,
	// or ctx is done.
	Receive(ctx context.Context) (*Delivery, error)
	Close() error
}

// Delivery is a received message awaiting acknowledgment. Unacknowledged
// deliveries are redelivered.
type Delivery struct {
	Message

	ack  func() error
	nack func() error
}

func NewDelivery(msg Message, ack, nack func() error) *Delivery {
	return &Delivery{Message: msg, ack: ack, nack: nack}
}

// Ack confirms processing; the broker will not redeliver.
func (d *Delivery) Ack() error {
	if d.ack == nil {
		return nil
	}
	return d.ack()
}

// Nack requeues the message for redelivery at the head of its partition.
func (d *Delivery) Nack() error {
	if d.nack == nil {
		return nil
	}
	return d.nack()
}

// Broker bundles both halves of the transport.
type Broker interface {
	Publisher
	Consumer
}
