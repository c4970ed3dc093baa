package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	orderdomain "github.com/smallbiznis/oms/internal/order/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() orderdomain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, conn *gorm.DB, order *orderdomain.Order) error {
	return conn.WithContext(ctx).Exec(
		`INSERT INTO orders (id, client_order_id, account_id, source_channel, request_id, symbol, side, order_type, quantity, filled_quantity, limit_price, stop_price, time_in_force, status, received_at, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		order.ID,
		order.ClientOrderID,
		order.AccountID,
		order.SourceChannel,
		order.RequestID,
		order.Symbol,
		order.Side,
		order.OrderType,
		order.Quantity,
		order.FilledQuantity,
		order.LimitPrice,
		order.StopPrice,
		order.TimeInForce,
		order.Status,
		order.ReceivedAt,
		order.CreatedAt,
		order.UpdatedAt,
	).Error
}

func (r *repo) FindByID(ctx context.Context, conn *gorm.DB, id snowflake.ID) (*orderdomain.Order, error) {
	var order orderdomain.Order
	err := conn.WithContext(ctx).Raw(
		`SELECT id, client_order_id, account_id, source_channel, request_id, symbol, side, order_type, quantity, filled_quantity, limit_price, stop_price, time_in_force, status, received_at, created_at, updated_at
		 FROM orders WHERE id = ?`,
		id,
	).Scan(&order).Error
	if err != nil {
		return nil, err
	}
	if order.ID == 0 {
		return nil, nil
	}
	return &order, nil
}

func (r *repo) FindByNaturalKey(ctx context.Context, conn *gorm.DB, accountID, sourceChannel, clientOrderID string) (*orderdomain.Order, error) {
	var order orderdomain.Order
	err := conn.WithContext(ctx).Raw(
		`SELECT id, client_order_id, account_id, source_channel, request_id, symbol, side, order_type, quantity, filled_quantity, limit_price, stop_price, time_in_force, status, received_at, created_at, updated_at
		 FROM orders WHERE account_id = ? AND source_channel = ? AND client_order_id = ?`,
		accountID,
		sourceChannel,
		clientOrderID,
	).Scan(&order).Error
	if err != nil {
		return nil, err
	}
	if order.ID == 0 {
		return nil, nil
	}
	return &order, nil
}
