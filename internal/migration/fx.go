package migration

import (
	"github.com/smallbiznis/oms/internal/config"
	orderdomain "github.com/smallbiznis/oms/internal/order/domain"
	outboxdomain "github.com/smallbiznis/oms/internal/outbox/domain"
	validationdomain "github.com/smallbiznis/oms/internal/validation/domain"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config) error {
		if cfg.DBType != "postgres" {
			// Non-postgres deployments are dev and test setups; the
			// model tags carry enough schema for AutoMigrate.
			return conn.AutoMigrate(
				&orderdomain.Order{},
				&outboxdomain.OutboxEvent{},
				&validationdomain.ValidatedOrder{},
			)
		}

		sqlDB, err := conn.DB()
		if err != nil {
			return err
		}
		return RunMigrations(sqlDB)
	}),
)
