package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/oms/internal/broker"
	"github.com/smallbiznis/oms/internal/clock"
	"github.com/smallbiznis/oms/internal/config"
	"github.com/smallbiznis/oms/internal/migration"
	"github.com/smallbiznis/oms/internal/notify"
	"github.com/smallbiznis/oms/internal/observability"
	"github.com/smallbiznis/oms/internal/order"
	"github.com/smallbiznis/oms/internal/outbox"
	"github.com/smallbiznis/oms/internal/server"
	"github.com/smallbiznis/oms/internal/validation"
	"github.com/smallbiznis/oms/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		migration.Module,

		broker.Module,
		notify.Module,

		order.Module,
		outbox.Module,
		validation.Module,

		server.Module,
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}
