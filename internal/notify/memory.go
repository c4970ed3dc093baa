package notify

import (
	"context"
	"sync"
)

// Memory is an in-process wake channel for tests and single-process mode.
type Memory struct {
	mu   sync.Mutex
	subs map[string][]*memorySubscription
}

func NewMemory() *Memory {
	return &Memory{subs: make(map[string][]*memorySubscription)}
}

func (m *Memory) Notify(ctx context.Context, channel string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, sub := range m.subs[channel] {
		select {
		case sub.ch <- struct{}{}:
		default:
		}
	}
	return nil
}

func (m *Memory) Listen(ctx context.Context, channel string) (Subscription, error) {
	sub := &memorySubscription{
		owner:   m,
		channel: channel,
		ch:      make(chan struct{}, 1),
	}
	m.mu.Lock()
	m.subs[channel] = append(m.subs[channel], sub)
	m.mu.Unlock()
	return sub, nil
}

type memorySubscription struct {
	owner   *Memory
	channel string
	ch      chan struct{}
	once    sync.Once
}

func (s *memorySubscription) C() <-chan struct{} { return s.ch }

func (s *memorySubscription) Close() error {
	s.once.Do(func() {
		s.owner.mu.Lock()
		subs := s.owner.subs[s.channel]
		for i, sub := range subs {
			if sub == s {
				s.owner.subs[s.channel] = append(subs[:i], subs[i+1:]...)
				break
			}
		}
		s.owner.mu.Unlock()
	})
	return nil
}
