package domain

import (
	"context"

	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, outcome *ValidatedOrder) error
	ExistsByOrderID(ctx context.Context, db *gorm.DB, orderID string) (bool, error)
	FindByOrderID(ctx context.Context, db *gorm.DB, orderID string) (*ValidatedOrder, error)
}
