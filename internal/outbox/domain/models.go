package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

const (
	AggregateTypeOrder    = "Order"
	EventTypeOrderCreated = "OrderCreated"
)

// OutboxEvent is one pending publication. Rows are written inside the
// transaction that produced the state change, then claimed and published
// by the relay. ID ordering doubles as per-aggregate publish ordering
// because ids are time sortable and each aggregate writes sequentially.
type OutboxEvent struct {
	ID            snowflake.ID `json:"id" gorm:"primaryKey"`
	AggregateType string       `json:"aggregate_type" gorm:"type:text;not null"`
	AggregateID   string       `json:"aggregate_id" gorm:"type:text;not null;index:idx_outbox_aggregate"`
	EventType     string       `json:"event_type" gorm:"type:text;not null"`
	Topic         string       `json:"topic" gorm:"type:text;not null"`
	RoutingKey    string       `json:"routing_key" gorm:"type:text;not null"`
	Payload       []byte       `json:"payload" gorm:"type:bytes;not null"`
	Published     bool         `json:"published" gorm:"not null;default:false;index:idx_outbox_unpublished,priority:1"`
	CreatedAt     time.Time    `json:"created_at" gorm:"not null;index:idx_outbox_unpublished,priority:2"`
	PublishedAt   *time.Time   `json:"published_at"`
}

// TableName sets the database table name.
func (OutboxEvent) TableName() string { return "outbox_events" }
