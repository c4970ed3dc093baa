package broker

import (
	"context"

	"github.com/smallbiznis/oms/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("broker",
	fx.Provide(NewFromConfig),
	fx.Provide(func(b Broker) Publisher { return b }),
	fx.Provide(func(b Broker) Consumer { return b }),
)

func NewFromConfig(lc fx.Lifecycle, cfg config.Config, log *zap.Logger) (Broker, error) {
	switch cfg.BrokerDriver {
	case "memory":
		return NewMemory(), nil
	default:
		rb, err := DialRabbitMQ(cfg.BrokerURL, log)
		if err != nil {
			return nil, err
		}
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				log.Info("closing broker connection")
				return rb.Close()
			},
		})
		return rb, nil
	}
}
