package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/smallbiznis/oms/internal/broker"
	"github.com/smallbiznis/oms/internal/clock"
	"github.com/smallbiznis/oms/internal/config"
	"github.com/smallbiznis/oms/internal/model"
	"github.com/smallbiznis/oms/internal/notify"
	outboxdomain "github.com/smallbiznis/oms/internal/outbox/domain"
	"github.com/smallbiznis/oms/internal/outbox/repository"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func setupRelayDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_loc=auto", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("db handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	_ = db.Exec("PRAGMA busy_timeout = 5000").Error

	if err := db.Exec(`CREATE TABLE outbox_events (
		id BIGINT PRIMARY KEY,
		aggregate_type TEXT NOT NULL,
		aggregate_id TEXT NOT NULL,
		event_type TEXT NOT NULL,
		topic TEXT NOT NULL,
		routing_key TEXT NOT NULL,
		payload BLOB NOT NULL,
		published BOOLEAN NOT NULL DEFAULT FALSE,
		created_at DATETIME NOT NULL,
		published_at DATETIME
	)`).Error; err != nil {
		t.Fatalf("prepare schema: %v", err)
	}
	return db
}

func newWorker(t *testing.T, db *gorm.DB, pub broker.Publisher, wake notify.WakeChannel, batch int, poll time.Duration) *Worker {
	t.Helper()
	if wake == nil {
		wake = notify.NewMemory()
	}
	return New(Params{
		DB:        db,
		Log:       zap.NewNop(),
		Clock:     clock.NewFakeClock(time.Date(2025, 6, 2, 9, 30, 0, 0, time.UTC)),
		Cfg:       config.Config{Relay: config.RelayConfig{Enabled: true, BatchSize: batch, PollInterval: poll}},
		Repo:      repository.Provide(),
		Publisher: pub,
		Wake:      wake,
		Metrics:   nil,
	})
}

func seedEvents(t *testing.T, db *gorm.DB, node *snowflake.Node, n int) []outboxdomain.OutboxEvent {
	t.Helper()
	repo := repository.Provide()
	events := make([]outboxdomain.OutboxEvent, 0, n)
	for i := 0; i < n; i++ {
		orderID := node.Generate()
		payload, _ := json.Marshal(model.Order{OrderID: orderID.String(), Symbol: "ACME"})
		ev := outboxdomain.OutboxEvent{
			ID:            node.Generate(),
			AggregateType: outboxdomain.AggregateTypeOrder,
			AggregateID:   orderID.String(),
			EventType:     outboxdomain.EventTypeOrderCreated,
			Topic:         model.TopicOrdersInbound,
			RoutingKey:    orderID.String(),
			Payload:       payload,
			CreatedAt:     time.Now().UTC(),
		}
		if err := repo.Insert(context.Background(), db, &ev); err != nil {
			t.Fatalf("seed event: %v", err)
		}
		events = append(events, ev)
	}
	return events
}

func mustNode(t *testing.T) *snowflake.Node {
	t.Helper()
	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("snowflake node: %v", err)
	}
	return node
}

// countingPublisher counts publishes and can fail from a given call on.
type countingPublisher struct {
	mu       sync.Mutex
	messages []broker.Message
	failFrom int // 0 means never fail
}

func (p *countingPublisher) Publish(_ context.Context, msg broker.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failFrom > 0 && len(p.messages)+1 >= p.failFrom {
		return errors.New("broker unavailable")
	}
	p.messages = append(p.messages, msg)
	return nil
}

func (p *countingPublisher) Count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.messages)
}

func TestDrainOncePublishesBacklogInOrder(t *testing.T) {
	db := setupRelayDB(t)
	node := mustNode(t)
	seeded := seedEvents(t, db, node, 7)

	pub := &countingPublisher{}
	w := newWorker(t, db, pub, nil, 3, time.Minute)

	published, err := w.DrainOnce(context.Background())
	if err != nil {
		t.Fatalf("drain: %v", err)
	}
	if published != 7 {
		t.Fatalf("expected 7 published, got %d", published)
	}
	for i, msg := range pub.messages {
		if msg.Key != seeded[i].RoutingKey {
			t.Fatalf("message %d out of order: got key %s, want %s", i, msg.Key, seeded[i].RoutingKey)
		}
	}

	backlog, err := repository.Provide().CountUnpublished(context.Background(), db)
	if err != nil {
		t.Fatalf("count unpublished: %v", err)
	}
	if backlog != 0 {
		t.Fatalf("expected empty backlog, got %d", backlog)
	}
}

func TestDrainOnceIsIdempotentOnEmptyBacklog(t *testing.T) {
	db := setupRelayDB(t)
	pub := &countingPublisher{}
	w := newWorker(t, db, pub, nil, 10, time.Minute)

	for i := 0; i < 3; i++ {
		published, err := w.DrainOnce(context.Background())
		if err != nil {
			t.Fatalf("drain %d: %v", i, err)
		}
		if published != 0 {
			t.Fatalf("expected 0 published on empty backlog, got %d", published)
		}
	}
	if pub.Count() != 0 {
		t.Fatalf("expected no publishes, got %d", pub.Count())
	}
}

func TestDrainOnceKeepsFailedEventsForRetry(t *testing.T) {
	db := setupRelayDB(t)
	node := mustNode(t)
	seedEvents(t, db, node, 5)

	pub := &countingPublisher{failFrom: 3}
	w := newWorker(t, db, pub, nil, 10, time.Minute)

	published, err := w.DrainOnce(context.Background())
	if err == nil {
		t.Fatal("expected publish failure to surface")
	}
	if published != 2 {
		t.Fatalf("expected 2 published before the failure, got %d", published)
	}

	backlog, cerr := repository.Provide().CountUnpublished(context.Background(), db)
	if cerr != nil {
		t.Fatalf("count unpublished: %v", cerr)
	}
	if backlog != 3 {
		t.Fatalf("expected 3 events left for retry, got %d", backlog)
	}

	// Broker recovers; the retry publishes the remainder exactly once.
	pub.mu.Lock()
	pub.failFrom = 0
	pub.mu.Unlock()

	published, err = w.DrainOnce(context.Background())
	if err != nil {
		t.Fatalf("retry drain: %v", err)
	}
	if published != 3 {
		t.Fatalf("expected 3 published on retry, got %d", published)
	}
	if pub.Count() != 5 {
		t.Fatalf("expected 5 total publishes, got %d", pub.Count())
	}
}

func TestConcurrentWorkersPublishExactlyOnce(t *testing.T) {
	db := setupRelayDB(t)
	node := mustNode(t)
	const seeded = 40
	seedEvents(t, db, node, seeded)

	pub := &countingPublisher{}
	const workers = 4

	var wg sync.WaitGroup
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			w := newWorker(t, db, pub, nil, 5, time.Minute)
			_, errs[i] = w.DrainOnce(context.Background())
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("worker %d: %v", i, err)
		}
	}
	if pub.Count() != seeded {
		t.Fatalf("expected exactly %d publishes across workers, got %d", seeded, pub.Count())
	}
}

func TestRunDrainsOnWakeSignal(t *testing.T) {
	db := setupRelayDB(t)
	node := mustNode(t)

	pub := &countingPublisher{}
	wake := notify.NewMemory()
	// Poll far out so only the wake signal can trigger the drain.
	w := newWorker(t, db, pub, wake, 10, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		defer close(done)
		w.Run(ctx)
	}()

	seedEvents(t, db, node, 2)

	// Notify until the drain lands; the worker may still be between
	// startup and subscribe on the first signals.
	deadline := time.Now().Add(5 * time.Second)
	for pub.Count() < 2 && time.Now().Before(deadline) {
		if err := wake.Notify(ctx, notify.OutboxChannel); err != nil {
			t.Fatalf("notify: %v", err)
		}
		time.Sleep(10 * time.Millisecond)
	}
	if pub.Count() != 2 {
		t.Fatalf("expected 2 publishes after wake, got %d", pub.Count())
	}

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("worker did not stop on cancel")
	}
}
