package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	outboxdomain "github.com/smallbiznis/oms/internal/outbox/domain"
	"github.com/smallbiznis/oms/pkg/db"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() outboxdomain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, conn *gorm.DB, event *outboxdomain.OutboxEvent) error {
	return conn.WithContext(ctx).Exec(
		`INSERT INTO outbox_events (id, aggregate_type, aggregate_id, event_type, topic, routing_key, payload, published, created_at, published_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		event.ID,
		event.AggregateType,
		event.AggregateID,
		event.EventType,
		event.Topic,
		event.RoutingKey,
		event.Payload,
		event.Published,
		event.CreatedAt,
		event.PublishedAt,
	).Error
}

func (r *repo) ClaimUnpublished(ctx context.Context, tx *gorm.DB, limit int) ([]outboxdomain.OutboxEvent, error) {
	var events []outboxdomain.OutboxEvent
	err := tx.WithContext(ctx).Raw(
		`SELECT id, aggregate_type, aggregate_id, event_type, topic, routing_key, payload, published, created_at, published_at
		 FROM outbox_events
		 WHERE published = ?
		 ORDER BY id ASC
		 LIMIT ?`+db.SkipLockedClause(tx),
		false,
		limit,
	).Scan(&events).Error
	if err != nil {
		return nil, err
	}
	return events, nil
}

func (r *repo) MarkPublished(ctx context.Context, tx *gorm.DB, ids []snowflake.ID, publishedAt time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	return tx.WithContext(ctx).Exec(
		`UPDATE outbox_events SET published = ?, published_at = ? WHERE id IN ?`,
		true,
		publishedAt,
		ids,
	).Error
}

func (r *repo) CountUnpublished(ctx context.Context, conn *gorm.DB) (int64, error) {
	var count int64
	err := conn.WithContext(ctx).Raw(
		`SELECT COUNT(*) FROM outbox_events WHERE published = ?`,
		false,
	).Scan(&count).Error
	if err != nil {
		return 0, err
	}
	return count, nil
}

func (r *repo) FindByAggregateID(ctx context.Context, conn *gorm.DB, aggregateID string) ([]outboxdomain.OutboxEvent, error) {
	var events []outboxdomain.OutboxEvent
	err := conn.WithContext(ctx).Raw(
		`SELECT id, aggregate_type, aggregate_id, event_type, topic, routing_key, payload, published, created_at, published_at
		 FROM outbox_events
		 WHERE aggregate_id = ?
		 ORDER BY id ASC`,
		aggregateID,
	).Scan(&events).Error
	if err != nil {
		return nil, err
	}
	return events, nil
}
