package domain

import (
	"time"

	"github.com/smallbiznis/oms/internal/model"
)

// ValidatedOrder is the validator's processing outcome, keyed by order
// id. Its existence is the consumer's idempotency check: one row per
// order, ever, no matter how often the broker redelivers.
type ValidatedOrder struct {
	OrderID          string            `json:"order_id" gorm:"primaryKey"`
	ClientOrderID    string            `json:"client_order_id" gorm:"type:text;not null"`
	AccountID        string            `json:"account_id" gorm:"type:text;not null"`
	Symbol           string            `json:"symbol" gorm:"type:text;not null"`
	Side             model.Side        `json:"side" gorm:"type:text;not null"`
	OrderType        model.OrderType   `json:"order_type" gorm:"type:text;not null"`
	Quantity         float64           `json:"quantity" gorm:"not null"`
	LimitPrice       *float64          `json:"limit_price"`
	StopPrice        *float64          `json:"stop_price"`
	ValidationStatus model.OrderStatus `json:"validation_status" gorm:"type:text;not null"`
	RejectionReason  string            `json:"rejection_reason" gorm:"type:text"`
	ValidatedAt      time.Time         `json:"validated_at" gorm:"not null"`
}

// TableName sets the database table name.
func (ValidatedOrder) TableName() string { return "validated_orders" }

// NewValidatedOrder builds the outcome row from the wire snapshot.
func NewValidatedOrder(order *model.Order, status model.OrderStatus, reason string, now time.Time) *ValidatedOrder {
	return &ValidatedOrder{
		OrderID:          order.OrderID,
		ClientOrderID:    order.ClientOrderID,
		AccountID:        order.AccountID,
		Symbol:           order.Symbol,
		Side:             order.Side,
		OrderType:        order.OrderType,
		Quantity:         order.Quantity,
		LimitPrice:       order.LimitPrice,
		StopPrice:        order.StopPrice,
		ValidationStatus: status,
		RejectionReason:  reason,
		ValidatedAt:      now,
	}
}
