package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/oms/internal/model"
)

// DefaultSourceChannel is assumed when a request does not name its channel.
const DefaultSourceChannel = "REST"

// Order is the admission-stage record of an order. The natural key
// (account id, source channel, client order id) is the admission
// idempotency key; the store's unique index on it is the sole arbiter of
// concurrent duplicate submissions.
type Order struct {
	ID             snowflake.ID      `json:"id" gorm:"primaryKey"`
	ClientOrderID  string            `json:"client_order_id" gorm:"type:text;not null;uniqueIndex:ux_orders_natural_key,priority:3"`
	AccountID      string            `json:"account_id" gorm:"type:text;not null;uniqueIndex:ux_orders_natural_key,priority:1"`
	SourceChannel  string            `json:"source_channel" gorm:"type:text;not null;uniqueIndex:ux_orders_natural_key,priority:2"`
	RequestID      string            `json:"request_id" gorm:"type:text"`
	Symbol         string            `json:"symbol" gorm:"type:text;not null"`
	Side           model.Side        `json:"side" gorm:"type:text;not null"`
	OrderType      model.OrderType   `json:"order_type" gorm:"type:text;not null"`
	Quantity       float64           `json:"quantity" gorm:"not null"`
	FilledQuantity float64           `json:"filled_quantity" gorm:"not null;default:0"`
	LimitPrice     *float64          `json:"limit_price"`
	StopPrice      *float64          `json:"stop_price"`
	TimeInForce    model.TimeInForce `json:"time_in_force" gorm:"type:text;not null"`
	Status         model.OrderStatus `json:"status" gorm:"type:text;not null"`
	ReceivedAt     time.Time         `json:"received_at" gorm:"not null"`
	CreatedAt      time.Time         `json:"created_at" gorm:"not null"`
	UpdatedAt      time.Time         `json:"updated_at" gorm:"not null"`
}

// TableName sets the database table name.
func (Order) TableName() string { return "orders" }

// NewOrder builds a NEW order with every default filled. Defaulting lives
// here, not in ORM hooks, so the admission transaction persists exactly
// what this function returns.
func NewOrder(id snowflake.ID, now time.Time, req AdmitRequest, side model.Side, orderType model.OrderType, tif model.TimeInForce) *Order {
	return &Order{
		ID:             id,
		ClientOrderID:  req.ClientOrderID,
		AccountID:      req.AccountID,
		SourceChannel:  req.SourceChannel,
		RequestID:      req.RequestID,
		Symbol:         req.Symbol,
		Side:           side,
		OrderType:      orderType,
		Quantity:       req.Quantity,
		FilledQuantity: 0,
		LimitPrice:     req.LimitPrice,
		StopPrice:      req.StopPrice,
		TimeInForce:    tif,
		Status:         model.StatusNew,
		ReceivedAt:     now,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// Snapshot converts the record to its wire form for event payloads.
func (o *Order) Snapshot() model.Order {
	return model.Order{
		OrderID:        o.ID.String(),
		ClientOrderID:  o.ClientOrderID,
		AccountID:      o.AccountID,
		SourceChannel:  o.SourceChannel,
		Symbol:         o.Symbol,
		Side:           o.Side,
		OrderType:      o.OrderType,
		Quantity:       o.Quantity,
		FilledQuantity: o.FilledQuantity,
		LimitPrice:     o.LimitPrice,
		StopPrice:      o.StopPrice,
		TimeInForce:    o.TimeInForce,
		Status:         o.Status,
		ReceivedAt:     o.ReceivedAt,
		CreatedAt:      o.CreatedAt,
		UpdatedAt:      o.UpdatedAt,
	}
}

// AdmitRequest is the inbound order submission after transport binding.
// Enum fields arrive as raw strings and are parsed during validation.
type AdmitRequest struct {
	AccountID     string
	ClientOrderID string
	SourceChannel string
	RequestID     string
	Symbol        string
	Side          string
	OrderType     string
	Quantity      float64
	LimitPrice    *float64
	StopPrice     *float64
	TimeInForce   string
}

// AdmitResult reports the admitted order and whether this call created it.
// Created=false is the idempotent-resubmission path, not an error.
type AdmitResult struct {
	Order   *Order
	Created bool
}
