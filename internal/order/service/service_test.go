package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/smallbiznis/oms/internal/clock"
	"github.com/smallbiznis/oms/internal/config"
	"github.com/smallbiznis/oms/internal/model"
	"github.com/smallbiznis/oms/internal/notify"
	orderdomain "github.com/smallbiznis/oms/internal/order/domain"
	"github.com/smallbiznis/oms/internal/order/repository"
	outboxrepository "github.com/smallbiznis/oms/internal/outbox/repository"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func setupOrderService(t *testing.T) (orderdomain.Service, *gorm.DB) {
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
	_ = db.Exec("PRAGMA journal_mode = WAL").Error
	preparePipelineSchema(t, db)

	node := mustNode(t)
	svc := New(Params{
		DB:         db,
		Log:        zap.NewNop(),
		GenID:      node,
		Clock:      clock.NewFakeClock(time.Date(2025, 6, 2, 9, 30, 0, 0, time.UTC)),
		Cfg:        testConfig(),
		Repo:       repository.Provide(),
		OutboxRepo: outboxrepository.Provide(),
		Wake:       notify.NewMemory(),
		Metrics:    nil,
	})

	return svc, db
}

func testConfig() config.Config {
	return config.Config{
		Topics: config.TopicsConfig{
			Inbound:   model.TopicOrdersInbound,
			Validated: model.TopicOrdersValidated,
			Rejected:  model.TopicOrdersRejected,
		},
	}
}

func mustNode(t *testing.T) *snowflake.Node {
	t.Helper()
	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("snowflake node: %v", err)
	}
	return node
}

func preparePipelineSchema(t *testing.T, db *gorm.DB) {
	t.Helper()
	stmts := []string{
		`CREATE TABLE orders (
			id BIGINT PRIMARY KEY,
			client_order_id TEXT NOT NULL,
			account_id TEXT NOT NULL,
			source_channel TEXT NOT NULL,
			request_id TEXT,
			symbol TEXT NOT NULL,
			side TEXT NOT NULL,
			order_type TEXT NOT NULL,
			quantity REAL NOT NULL,
			filled_quantity REAL NOT NULL DEFAULT 0,
			limit_price REAL,
			stop_price REAL,
			time_in_force TEXT NOT NULL,
			status TEXT NOT NULL,
			received_at DATETIME NOT NULL,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)`,
		`CREATE UNIQUE INDEX ux_orders_natural_key ON orders (account_id, source_channel, client_order_id)`,
		`CREATE TABLE outbox_events (
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
		)`,
	}
	for _, stmt := range stmts {
		if err := db.Exec(stmt).Error; err != nil {
			t.Fatalf("prepare schema: %v", err)
		}
	}
}

func validRequest() orderdomain.AdmitRequest {
	price := 150.25
	return orderdomain.AdmitRequest{
		AccountID:     "ACC-1001",
		ClientOrderID: "CL-1",
		Symbol:        "ACME",
		Side:          "BUY",
		OrderType:     "LIMIT",
		Quantity:      100,
		LimitPrice:    &price,
		TimeInForce:   "DAY",
	}
}

func TestAdmitCreatesOrderWithOutboxRow(t *testing.T) {
	svc, db := setupOrderService(t)
	ctx := context.Background()

	result, err := svc.Admit(ctx, validRequest())
	if err != nil {
		t.Fatalf("admit: %v", err)
	}
	if !result.Created {
		t.Fatal("expected created=true on first submission")
	}
	if result.Order.Status != model.StatusNew {
		t.Fatalf("expected status NEW, got %s", result.Order.Status)
	}
	if result.Order.SourceChannel != "REST" {
		t.Fatalf("expected default channel REST, got %s", result.Order.SourceChannel)
	}

	events, err := outboxrepository.Provide().FindByAggregateID(ctx, db, result.Order.ID.String())
	if err != nil {
		t.Fatalf("find outbox events: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected 1 outbox row, got %d", len(events))
	}
	if events[0].Topic != model.TopicOrdersInbound {
		t.Fatalf("expected topic %s, got %s", model.TopicOrdersInbound, events[0].Topic)
	}
	if events[0].RoutingKey != result.Order.ID.String() {
		t.Fatalf("expected routing key %s, got %s", result.Order.ID.String(), events[0].RoutingKey)
	}
	if events[0].Published {
		t.Fatal("outbox row must start unpublished")
	}
}

func TestAdmitResubmissionReturnsOriginal(t *testing.T) {
	svc, db := setupOrderService(t)
	ctx := context.Background()

	first, err := svc.Admit(ctx, validRequest())
	if err != nil {
		t.Fatalf("first admit: %v", err)
	}

	resubmit := validRequest()
	resubmit.Quantity = 999 // differing payload still dedupes on the key
	second, err := svc.Admit(ctx, resubmit)
	if err != nil {
		t.Fatalf("second admit: %v", err)
	}

	if second.Created {
		t.Fatal("expected created=false on resubmission")
	}
	if second.Order.ID != first.Order.ID {
		t.Fatalf("expected original order id %s, got %s", first.Order.ID, second.Order.ID)
	}
	if second.Order.Quantity != 100 {
		t.Fatalf("resubmission must not overwrite the original, got quantity %v", second.Order.Quantity)
	}

	events, err := outboxrepository.Provide().FindByAggregateID(ctx, db, first.Order.ID.String())
	if err != nil {
		t.Fatalf("find outbox events: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("resubmission must not add outbox rows, got %d", len(events))
	}
}

func TestAdmitConcurrentSameKeyCreatesOnce(t *testing.T) {
	svc, db := setupOrderService(t)
	ctx := context.Background()

	const submitters = 20
	results := make([]*orderdomain.AdmitResult, submitters)
	errs := make([]error, submitters)

	var wg sync.WaitGroup
	for i := 0; i < submitters; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = svc.Admit(ctx, validRequest())
		}(i)
	}
	wg.Wait()

	created := 0
	var winner snowflake.ID
	for i := 0; i < submitters; i++ {
		if errs[i] != nil {
			t.Fatalf("admit %d: %v", i, errs[i])
		}
		if results[i].Created {
			created++
			winner = results[i].Order.ID
		}
	}
	if created != 1 {
		t.Fatalf("expected exactly 1 creation, got %d", created)
	}
	for i := 0; i < submitters; i++ {
		if results[i].Order.ID != winner {
			t.Fatalf("submission %d saw order %s, winner is %s", i, results[i].Order.ID, winner)
		}
	}

	var count int64
	if err := db.Raw(`SELECT COUNT(*) FROM outbox_events`).Scan(&count).Error; err != nil {
		t.Fatalf("count outbox: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 outbox row, got %d", count)
	}
}

func TestAdmitRejectsInvalidRequestWithAllViolations(t *testing.T) {
	svc, db := setupOrderService(t)
	ctx := context.Background()

	req := validRequest()
	req.Symbol = ""
	req.Side = "HOLD"
	req.Quantity = 0

	_, err := svc.Admit(ctx, req)
	if err == nil {
		t.Fatal("expected validation failure")
	}

	var verr *orderdomain.ValidationErrors
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationErrors, got %T", err)
	}
	if len(verr.Fields) != 3 {
		t.Fatalf("expected 3 field errors, got %d: %v", len(verr.Fields), verr.Fields)
	}

	var orders int64
	if err := db.Raw(`SELECT COUNT(*) FROM orders`).Scan(&orders).Error; err != nil {
		t.Fatalf("count orders: %v", err)
	}
	if orders != 0 {
		t.Fatal("invalid request must not persist an order")
	}
}

func TestAdmitRequiresPricesByOrderType(t *testing.T) {
	svc, _ := setupOrderService(t)
	ctx := context.Background()

	req := validRequest()
	req.OrderType = "STOP_LIMIT"
	req.StopPrice = nil

	_, err := svc.Admit(ctx, req)
	var verr *orderdomain.ValidationErrors
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationErrors, got %v", err)
	}
	if len(verr.Fields) != 1 || verr.Fields[0].Field != "stop_price" {
		t.Fatalf("expected a stop_price violation, got %v", verr.Fields)
	}

	req = validRequest()
	req.OrderType = "MARKET"
	req.LimitPrice = nil
	if _, err := svc.Admit(ctx, req); err != nil {
		t.Fatalf("market order must not require prices: %v", err)
	}
}

func TestAdmitDefaultsTimeInForce(t *testing.T) {
	svc, _ := setupOrderService(t)

	req := validRequest()
	req.TimeInForce = ""
	result, err := svc.Admit(context.Background(), req)
	if err != nil {
		t.Fatalf("admit: %v", err)
	}
	if result.Order.TimeInForce != model.TimeInForceDay {
		t.Fatalf("expected default DAY, got %s", result.Order.TimeInForce)
	}
}

func TestGetOrder(t *testing.T) {
	svc, _ := setupOrderService(t)
	ctx := context.Background()

	result, err := svc.Admit(ctx, validRequest())
	if err != nil {
		t.Fatalf("admit: %v", err)
	}

	got, err := svc.GetOrder(ctx, result.Order.ID.String())
	if err != nil {
		t.Fatalf("get order: %v", err)
	}
	if got.ClientOrderID != "CL-1" {
		t.Fatalf("unexpected order: %+v", got)
	}

	if _, err := svc.GetOrder(ctx, "123456789"); !errors.Is(err, orderdomain.ErrOrderNotFound) {
		t.Fatalf("expected ErrOrderNotFound, got %v", err)
	}
	if _, err := svc.GetOrder(ctx, "not-an-id"); !errors.Is(err, orderdomain.ErrInvalidID) {
		t.Fatalf("expected ErrInvalidID, got %v", err)
	}
}
