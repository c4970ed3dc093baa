package broker

import (
	"context"
	"sync"
)

// Memory is an in-process broker for tests and single-process deployments.
// Each topic is a single FIFO partition: competing subscribers see at most
// one outstanding unacked delivery, and a nacked delivery returns to the
// head of the queue. This preserves per-key ordering by construction.
type Memory struct {
	mu     sync.Mutex
	queues map[string]*memQueue
}

func NewMemory() *Memory {
	return &Memory{queues: make(map[string]*memQueue)}
}

func (b *Memory) queue(topic string) *memQueue {
	b.mu.Lock()
	defer b.mu.Unlock()
	q, ok := b.queues[topic]
	if !ok {
		q = &memQueue{notify: make(chan struct{}, 1)}
		b.queues[topic] = q
	}
	return q
}

func (b *Memory) Publish(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	q := b.queue(msg.Topic)
	q.mu.Lock()
	q.items = append(q.items, msg)
	q.mu.Unlock()
	q.signal()
	return nil
}

func (b *Memory) Subscribe(ctx context.Context, topic, group string) (Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &memSubscription{queue: b.queue(topic)}, nil
}

// Depth reports messages waiting on a topic, including one in flight.
func (b *Memory) Depth(topic string) int {
	q := b.queue(topic)
	q.mu.Lock()
	defer q.mu.Unlock()
	n := len(q.items)
	if q.inflight {
		n++
	}
	return n
}

type memQueue struct {
	mu       sync.Mutex
	items    []Message
	inflight bool
	notify   chan struct{}
}

func (q *memQueue) signal() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

type memSubscription struct {
	queue  *memQueue
	closed bool
	mu     sync.Mutex
}

func (s *memSubscription) Receive(ctx context.Context) (*Delivery, error) {
	for {
		s.mu.Lock()
		closed := s.closed
		s.mu.Unlock()
		if closed {
			return nil, ErrSubscriptionClosed
		}

		q := s.queue
		q.mu.Lock()
		if len(q.items) > 0 && !q.inflight {
			msg := q.items[0]
			q.items = q.items[1:]
			q.inflight = true
			q.mu.Unlock()
			return NewDelivery(msg,
				func() error {
					q.mu.Lock()
					q.inflight = false
					q.mu.Unlock()
					q.signal()
					return nil
				},
				func() error {
					q.mu.Lock()
					q.inflight = false
					q.items = append([]Message{msg}, q.items...)
					q.mu.Unlock()
					q.signal()
					return nil
				},
			), nil
		}
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-q.notify:
		}
	}
}

func (s *memSubscription) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.queue.signal()
	return nil
}
