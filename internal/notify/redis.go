package notify

import (
	"context"

	redis "github.com/redis/go-redis/v9"
)

// Redis implements the wake channel on redis pub/sub.
type Redis struct {
	client *redis.Client
}

func NewRedis(client *redis.Client) *Redis {
	return &Redis{client: client}
}

func (r *Redis) Notify(ctx context.Context, channel string) error {
	return r.client.Publish(ctx, channel, "1").Err()
}

func (r *Redis) Listen(ctx context.Context, channel string) (Subscription, error) {
	pubsub := r.client.Subscribe(ctx, channel)
	// Force the SUBSCRIBE round trip so connection failures surface here,
	// not silently inside the forwarding goroutine.
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, err
	}

	sub := &redisSubscription{
		pubsub: pubsub,
		ch:     make(chan struct{}, 1),
	}
	go sub.forward()
	return sub, nil
}

type redisSubscription struct {
	pubsub *redis.PubSub
	ch     chan struct{}
}

func (s *redisSubscription) forward() {
	for range s.pubsub.Channel() {
		select {
		case s.ch <- struct{}{}:
		default:
		}
	}
	close(s.ch)
}

func (s *redisSubscription) C() <-chan struct{} { return s.ch }

func (s *redisSubscription) Close() error { return s.pubsub.Close() }
