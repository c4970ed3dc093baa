package broker

import (
	"context"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

const (
	dialAttempts = 10
	dialBackoff  = 2 * time.Second
)

// RabbitMQ implements the broker on AMQP 0-9-1. Each topic is a durable
// queue on the default exchange; publishes run on a confirm-mode channel
// and block until the broker acknowledges, so Publish == durable handoff.
type RabbitMQ struct {
	conn *amqp.Connection
	log  *zap.Logger

	mu       sync.Mutex
	pubCh    *amqp.Channel
	declared map[string]bool
}

// DialRabbitMQ connects with retries; brokers in container environments
// are often slower to start than this process.
func DialRabbitMQ(url string, log *zap.Logger) (*RabbitMQ, error) {
	var conn *amqp.Connection
	var err error

	for i := 0; i < dialAttempts; i++ {
		conn, err = amqp.Dial(url)
		if err == nil {
			break
		}
		log.Warn("rabbitmq dial failed, retrying",
			zap.Int("attempt", i+1),
			zap.Error(err),
		)
		time.Sleep(dialBackoff)
	}
	if err != nil {
		return nil, fmt.Errorf("connect to rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open publish channel: %w", err)
	}
	if err := ch.Confirm(false); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("enable confirm mode: %w", err)
	}

	return &RabbitMQ{
		conn:     conn,
		log:      log.Named("broker.rabbitmq"),
		pubCh:    ch,
		declared: make(map[string]bool),
	}, nil
}

func (b *RabbitMQ) ensureQueue(ch *amqp.Channel, topic string) error {
	b.mu.Lock()
	done := b.declared[topic]
	b.mu.Unlock()
	if done {
		return nil
	}

	_, err := ch.QueueDeclare(
		topic,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,
	)
	if err != nil {
		return fmt.Errorf("declare queue %s: %w", topic, err)
	}

	b.mu.Lock()
	b.declared[topic] = true
	b.mu.Unlock()
	return nil
}

func (b *RabbitMQ) Publish(ctx context.Context, msg Message) error {
	b.mu.Lock()
	ch := b.pubCh
	b.mu.Unlock()

	if err := b.ensureQueue(ch, msg.Topic); err != nil {
		return err
	}

	confirm, err := ch.PublishWithDeferredConfirmWithContext(ctx,
		"",        // default exchange
		msg.Topic, // routing key = queue
		false,     // mandatory
		false,     // immediate
		amqp.Publishing{
			MessageId:    msg.Key,
			ContentType:  "application/json",
			Body:         msg.Payload,
			DeliveryMode: amqp.Persistent,
		})
	if err != nil {
		return fmt.Errorf("publish to %s: %w", msg.Topic, err)
	}

	acked, err := confirm.WaitContext(ctx)
	if err != nil {
		return fmt.Errorf("await confirm for %s: %w", msg.Topic, err)
	}
	if !acked {
		return ErrPublishNacked
	}
	return nil
}

func (b *RabbitMQ) Subscribe(ctx context.Context, topic, group string) (Subscription, error) {
	ch, err := b.conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("open consume channel: %w", err)
	}
	// One unacked message at a time preserves per-key processing order.
	if err := ch.Qos(1, 0, false); err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("set qos: %w", err)
	}
	if err := b.ensureQueue(ch, topic); err != nil {
		_ = ch.Close()
		return nil, err
	}

	deliveries, err := ch.ConsumeWithContext(ctx,
		topic,
		group, // consumer tag
		false, // auto-ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,
	)
	if err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("consume %s: %w", topic, err)
	}

	return &rabbitSubscription{topic: topic, ch: ch, deliveries: deliveries}, nil
}

func (b *RabbitMQ) Close() error {
	return b.conn.Close()
}

type rabbitSubscription struct {
	topic      string
	ch         *amqp.Channel
	deliveries <-chan amqp.Delivery
}

func (s *rabbitSubscription) Receive(ctx context.Context) (*Delivery, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case d, ok := <-s.deliveries:
		if !ok {
			return nil, ErrSubscriptionClosed
		}
		return NewDelivery(
			Message{Topic: s.topic, Key: d.MessageId, Payload: d.Body},
			func() error { return d.Ack(false) },
			func() error { return d.Nack(false, true) },
		), nil
	}
}

func (s *rabbitSubscription) Close() error {
	return s.ch.Close()
}
