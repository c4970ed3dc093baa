package notify

import (
	"context"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/oms/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("notify",
	fx.Provide(NewFromConfig),
)

type wakeChannel struct {
	Notifier
	Listener
}

// WakeChannel bundles both sides of the wake signal for wiring.
type WakeChannel interface {
	Notifier
	Listener
}

func NewFromConfig(lc fx.Lifecycle, cfg config.Config, log *zap.Logger) (WakeChannel, error) {
	switch cfg.NotifyDriver {
	case "memory":
		mem := NewMemory()
		return wakeChannel{mem, mem}, nil
	default:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				log.Info("closing redis wake channel")
				return client.Close()
			},
		})
		r := NewRedis(client)
		return wakeChannel{r, r}, nil
	}
}
