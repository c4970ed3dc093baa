package validation

import (
	"context"

	"github.com/smallbiznis/oms/internal/config"
	"github.com/smallbiznis/oms/internal/validation/consumer"
	"github.com/smallbiznis/oms/internal/validation/policy"
	"github.com/smallbiznis/oms/internal/validation/repository"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("validation",
	fx.Provide(repository.Provide),
	fx.Provide(func() policy.SymbolDirectory { return policy.StaticSymbolDirectory{} }),
	fx.Provide(func() policy.AccountSource { return policy.UnlimitedAccountSource{} }),
	fx.Provide(newChain),
	fx.Provide(consumer.New),
	fx.Invoke(run),
)

func newChain(cfg config.Config, directory policy.SymbolDirectory, accounts policy.AccountSource) *policy.Chain {
	policies := []policy.Policy{
		policy.NewRequiredFields(),
		policy.NewRequiredPrices(),
		policy.NewMaxOrderValue(cfg.Risk.MaxOrderValue),
		policy.NewMaxPositionSize(cfg.Risk.MaxPositionSize),
	}
	if cfg.Validation.CheckSymbolExists {
		policies = append(policies, policy.NewSymbolExists(directory))
	}
	if cfg.Risk.CheckBuyingPower {
		policies = append(policies, policy.NewBuyingPower(accounts))
	}
	return policy.NewChain(policies...)
}

func run(lc fx.Lifecycle, cfg config.Config, log *zap.Logger, c *consumer.Consumer) {
	if !cfg.Validation.Enabled {
		log.Info("validation consumer disabled")
		return
	}

	runCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				defer close(done)
				if err := c.Run(runCtx); err != nil {
					log.Error("validation consumer stopped", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			cancel()
			select {
			case <-done:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		},
	})
}
