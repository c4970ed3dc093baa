package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, event *OutboxEvent) error

	// ClaimUnpublished locks up to limit unpublished rows in id order,
	// skipping rows already locked by another claimer. Must run inside a
	// transaction; the locks release when it ends.
	ClaimUnpublished(ctx context.Context, tx *gorm.DB, limit int) ([]OutboxEvent, error)

	// MarkPublished flips the published flag on the claimed rows. Runs in
	// the claiming transaction so claim and mark commit atomically.
	MarkPublished(ctx context.Context, tx *gorm.DB, ids []snowflake.ID, publishedAt time.Time) error

	CountUnpublished(ctx context.Context, db *gorm.DB) (int64, error)
	FindByAggregateID(ctx context.Context, db *gorm.DB, aggregateID string) ([]OutboxEvent, error)
}
