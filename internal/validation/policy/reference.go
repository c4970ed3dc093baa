package policy

import (
	"context"
	"fmt"
	"strings"

	"github.com/smallbiznis/oms/internal/model"
)

// SymbolDirectory answers whether a symbol is tradable.
type SymbolDirectory interface {
	SymbolExists(ctx context.Context, symbol string) (bool, error)
}

// AccountSource answers buying power queries.
type AccountSource interface {
	BuyingPower(ctx context.Context, accountID string) (float64, error)
}

// StaticSymbolDirectory accepts any plausible ticker.
// TODO: back this with the reference data service once its API ships.
type StaticSymbolDirectory struct{}

func (StaticSymbolDirectory) SymbolExists(_ context.Context, symbol string) (bool, error) {
	symbol = strings.TrimSpace(symbol)
	return symbol != "" && len(symbol) <= 10, nil
}

// UnlimitedAccountSource reports unbounded buying power.
type UnlimitedAccountSource struct{}

func (UnlimitedAccountSource) BuyingPower(_ context.Context, _ string) (float64, error) {
	return 0, nil
}

type symbolExists struct {
	directory SymbolDirectory
}

// NewSymbolExists rejects orders for symbols the directory does not know.
func NewSymbolExists(directory SymbolDirectory) Policy {
	return &symbolExists{directory: directory}
}

func (p *symbolExists) Name() string { return "symbol_exists" }

func (p *symbolExists) Evaluate(ctx context.Context, order *model.Order) []string {
	ok, err := p.directory.SymbolExists(ctx, order.Symbol)
	if err != nil {
		return []string{fmt.Sprintf("symbol lookup failed for %s: %v", order.Symbol, err)}
	}
	if !ok {
		return []string{fmt.Sprintf("unknown symbol: %s", order.Symbol)}
	}
	return nil
}

type buyingPower struct {
	accounts AccountSource
}

// NewBuyingPower rejects buys whose notional exceeds available buying
// power. A source reporting zero power is treated as unbounded until a
// real account service is wired.
func NewBuyingPower(accounts AccountSource) Policy {
	return &buyingPower{accounts: accounts}
}

func (p *buyingPower) Name() string { return "buying_power" }

func (p *buyingPower) Evaluate(ctx context.Context, order *model.Order) []string {
	if order.Side != model.SideBuy {
		return nil
	}
	notional, ok := notionalValue(order)
	if !ok {
		return nil
	}
	power, err := p.accounts.BuyingPower(ctx, order.AccountID)
	if err != nil {
		return []string{fmt.Sprintf("buying power lookup failed for account %s: %v", order.AccountID, err)}
	}
	if power > 0 && notional > power {
		return []string{fmt.Sprintf("insufficient buying power: order value %.2f exceeds available %.2f", notional, power)}
	}
	return nil
}
