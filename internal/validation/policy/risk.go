package policy

import (
	"context"
	"fmt"

	"github.com/smallbiznis/oms/internal/model"
)

type requiredFields struct{}

// NewRequiredFields re-checks the fields admission already enforced.
// The validator trusts no producer; anything can publish to the inbound
// topic.
func NewRequiredFields() Policy {
	return requiredFields{}
}

func (requiredFields) Name() string { return "required_fields" }

func (requiredFields) Evaluate(_ context.Context, order *model.Order) []string {
	var violations []string
	if order.OrderID == "" {
		violations = append(violations, "order_id is required")
	}
	if order.AccountID == "" {
		violations = append(violations, "account_id is required")
	}
	if order.Symbol == "" {
		violations = append(violations, "symbol is required")
	}
	if _, ok := model.ParseSide(string(order.Side)); !ok {
		violations = append(violations, fmt.Sprintf("invalid side: %s", order.Side))
	}
	if _, ok := model.ParseOrderType(string(order.OrderType)); !ok {
		violations = append(violations, fmt.Sprintf("invalid order type: %s", order.OrderType))
	}
	if order.Quantity <= 0 {
		violations = append(violations, "quantity must be positive")
	}
	return violations
}

type requiredPrices struct{}

// NewRequiredPrices enforces the price fields each order type carries.
func NewRequiredPrices() Policy {
	return requiredPrices{}
}

func (requiredPrices) Name() string { return "required_prices" }

func (requiredPrices) Evaluate(_ context.Context, order *model.Order) []string {
	var violations []string
	if order.OrderType.RequiresLimitPrice() {
		if order.LimitPrice == nil || *order.LimitPrice <= 0 {
			violations = append(violations, fmt.Sprintf("%s orders require a positive limit price", order.OrderType))
		}
	}
	if order.OrderType.RequiresStopPrice() {
		if order.StopPrice == nil || *order.StopPrice <= 0 {
			violations = append(violations, fmt.Sprintf("%s orders require a positive stop price", order.OrderType))
		}
	}
	return violations
}

type maxOrderValue struct {
	limit float64
}

// NewMaxOrderValue caps order notional. Market orders have no price at
// admission time and are exempt; an order exactly at the cap passes.
func NewMaxOrderValue(limit float64) Policy {
	return &maxOrderValue{limit: limit}
}

func (p *maxOrderValue) Name() string { return "max_order_value" }

func (p *maxOrderValue) Evaluate(_ context.Context, order *model.Order) []string {
	notional, ok := notionalValue(order)
	if !ok {
		return nil
	}
	if notional > p.limit {
		return []string{fmt.Sprintf("order value %.2f exceeds maximum %.2f", notional, p.limit)}
	}
	return nil
}

type maxPositionSize struct {
	limit float64
}

// NewMaxPositionSize caps order quantity.
func NewMaxPositionSize(limit float64) Policy {
	return &maxPositionSize{limit: limit}
}

func (p *maxPositionSize) Name() string { return "max_position_size" }

func (p *maxPositionSize) Evaluate(_ context.Context, order *model.Order) []string {
	if order.Quantity > p.limit {
		return []string{fmt.Sprintf("order quantity %.2f exceeds maximum position size %.2f", order.Quantity, p.limit)}
	}
	return nil
}

// notionalValue is quantity times the order's working price. Market
// orders carry no price and report ok=false.
func notionalValue(order *model.Order) (float64, bool) {
	switch {
	case order.LimitPrice != nil && *order.LimitPrice > 0:
		return order.Quantity * *order.LimitPrice, true
	case order.StopPrice != nil && *order.StopPrice > 0:
		return order.Quantity * *order.StopPrice, true
	default:
		return 0, false
	}
}
