package repository

import (
	"context"

	validationdomain "github.com/smallbiznis/oms/internal/validation/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() validationdomain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, conn *gorm.DB, outcome *validationdomain.ValidatedOrder) error {
	return conn.WithContext(ctx).Exec(
		`INSERT INTO validated_orders (order_id, client_order_id, account_id, symbol, side, order_type, quantity, limit_price, stop_price, validation_status, rejection_reason, validated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		outcome.OrderID,
		outcome.ClientOrderID,
		outcome.AccountID,
		outcome.Symbol,
		outcome.Side,
		outcome.OrderType,
		outcome.Quantity,
		outcome.LimitPrice,
		outcome.StopPrice,
		outcome.ValidationStatus,
		outcome.RejectionReason,
		outcome.ValidatedAt,
	).Error
}

func (r *repo) ExistsByOrderID(ctx context.Context, conn *gorm.DB, orderID string) (bool, error) {
	var count int64
	err := conn.WithContext(ctx).Raw(
		`SELECT COUNT(*) FROM validated_orders WHERE order_id = ?`,
		orderID,
	).Scan(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *repo) FindByOrderID(ctx context.Context, conn *gorm.DB, orderID string) (*validationdomain.ValidatedOrder, error) {
	var outcome validationdomain.ValidatedOrder
	err := conn.WithContext(ctx).Raw(
		`SELECT order_id, client_order_id, account_id, symbol, side, order_type, quantity, limit_price, stop_price, validation_status, rejection_reason, validated_at
		 FROM validated_orders WHERE order_id = ?`,
		orderID,
	).Scan(&outcome).Error
	if err != nil {
		return nil, err
	}
	if outcome.OrderID == "" {
		return nil, nil
	}
	return &outcome, nil
}
