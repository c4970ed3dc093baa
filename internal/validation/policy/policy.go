// Package policy holds the asynchronous risk and reference checks the
// validator runs against admitted orders. Every policy always runs;
// violations accumulate so a rejection names everything wrong at once.
package policy

import (
	"context"

	"github.com/smallbiznis/oms/internal/model"
)

// Policy evaluates one concern against an order. A nil or empty result
// means the order passes.
type Policy interface {
	Name() string
	Evaluate(ctx context.Context, order *model.Order) []string
}

// Chain runs every policy unconditionally and concatenates violations
// in policy order.
type Chain struct {
	policies []Policy
}

func NewChain(policies ...Policy) *Chain {
	return &Chain{policies: policies}
}

func (c *Chain) Evaluate(ctx context.Context, order *model.Order) []string {
	var violations []string
	for _, p := range c.policies {
		violations = append(violations, p.Evaluate(ctx, order)...)
	}
	return violations
}
