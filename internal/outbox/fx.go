package outbox

import (
	"context"

	"github.com/smallbiznis/oms/internal/config"
	"github.com/smallbiznis/oms/internal/outbox/relay"
	"github.com/smallbiznis/oms/internal/outbox/repository"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("outbox",
	fx.Provide(repository.Provide),
	fx.Provide(relay.New),
	fx.Invoke(run),
)

func run(lc fx.Lifecycle, cfg config.Config, log *zap.Logger, worker *relay.Worker) {
	if !cfg.Relay.Enabled {
		log.Info("outbox relay disabled")
		return
	}

	runCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				defer close(done)
				worker.Run(runCtx)
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
