package model

import (
	"strings"
	"time"
)

// Side is the direction of an order.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// OrderType determines which price fields an order requires.
type OrderType string

const (
	OrderTypeMarket    OrderType = "MARKET"
	OrderTypeLimit     OrderType = "LIMIT"
	OrderTypeStop      OrderType = "STOP"
	OrderTypeStopLimit OrderType = "STOP_LIMIT"
)

// RequiresLimitPrice reports whether the type carries a limit price.
func (t OrderType) RequiresLimitPrice() bool {
	return t == OrderTypeLimit || t == OrderTypeStopLimit
}

// RequiresStopPrice reports whether the type carries a stop price.
func (t OrderType) RequiresStopPrice() bool {
	return t == OrderTypeStop || t == OrderTypeStopLimit
}

type TimeInForce string

const (
	TimeInForceDay TimeInForce = "DAY"
	TimeInForceGTC TimeInForce = "GTC"
	TimeInForceIOC TimeInForce = "IOC"
	TimeInForceFOK TimeInForce = "FOK"
)

// OrderStatus is the order lifecycle. Transitions are monotonic forward;
// this pipeline only drives NEW to VALIDATED or REJECTED, the later states
// belong to routing and execution services.
type OrderStatus string

const (
	StatusNew             OrderStatus = "NEW"
	StatusValidated       OrderStatus = "VALIDATED"
	StatusRejected        OrderStatus = "REJECTED"
	StatusRouted          OrderStatus = "ROUTED"
	StatusPartiallyFilled OrderStatus = "PARTIALLY_FILLED"
	StatusFilled          OrderStatus = "FILLED"
	StatusCanceled        OrderStatus = "CANCELED"
	StatusExpired         OrderStatus = "EXPIRED"
)

// Order is the wire snapshot of an order as carried on broker topics.
// Both pipeline stages read order fields through this payload rather than
// through each other's tables.
type Order struct {
	OrderID        string      `json:"order_id"`
	ClientOrderID  string      `json:"client_order_id"`
	AccountID      string      `json:"account_id"`
	SourceChannel  string      `json:"source_channel"`
	Symbol         string      `json:"symbol"`
	Side           Side        `json:"side"`
	OrderType      OrderType   `json:"order_type"`
	Quantity       float64     `json:"quantity"`
	FilledQuantity float64     `json:"filled_quantity"`
	LimitPrice     *float64    `json:"limit_price,omitempty"`
	StopPrice      *float64    `json:"stop_price,omitempty"`
	TimeInForce    TimeInForce `json:"time_in_force"`
	Status         OrderStatus `json:"status"`
	ReceivedAt     time.Time   `json:"received_at"`
	CreatedAt      time.Time   `json:"created_at"`
	UpdatedAt      time.Time   `json:"updated_at"`
}

// RejectedOrder is the payload published on the rejected topic.
type RejectedOrder struct {
	Order
	RejectionReason string `json:"rejection_reason"`
}

func ParseSide(raw string) (Side, bool) {
	switch Side(strings.ToUpper(strings.TrimSpace(raw))) {
	case SideBuy:
		return SideBuy, true
	case SideSell:
		return SideSell, true
	default:
		return "", false
	}
}

func ParseOrderType(raw string) (OrderType, bool) {
	switch OrderType(strings.ToUpper(strings.TrimSpace(raw))) {
	case OrderTypeMarket:
		return OrderTypeMarket, true
	case OrderTypeLimit:
		return OrderTypeLimit, true
	case OrderTypeStop:
		return OrderTypeStop, true
	case OrderTypeStopLimit:
		return OrderTypeStopLimit, true
	default:
		return "", false
	}
}

func ParseTimeInForce(raw string) (TimeInForce, bool) {
	switch TimeInForce(strings.ToUpper(strings.TrimSpace(raw))) {
	case TimeInForceDay:
		return TimeInForceDay, true
	case TimeInForceGTC:
		return TimeInForceGTC, true
	case TimeInForceIOC:
		return TimeInForceIOC, true
	case TimeInForceFOK:
		return TimeInForceFOK, true
	default:
		return "", false
	}
}
