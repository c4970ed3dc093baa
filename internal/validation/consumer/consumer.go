package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/smallbiznis/oms/internal/broker"
	"github.com/smallbiznis/oms/internal/clock"
	"github.com/smallbiznis/oms/internal/config"
	"github.com/smallbiznis/oms/internal/model"
	"github.com/smallbiznis/oms/internal/observability/metrics"
	validationdomain "github.com/smallbiznis/oms/internal/validation/domain"
	"github.com/smallbiznis/oms/internal/validation/policy"
	"github.com/smallbiznis/oms/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	Clock     clock.Clock
	Cfg       config.Config
	Repo      validationdomain.Repository
	Consumer  broker.Consumer
	Publisher broker.Publisher
	Chain     *policy.Chain
	Metrics   *metrics.Metrics
}

// Consumer validates admitted orders off the inbound topic. Processing
// is idempotent on order id, so at-least-once delivery from the broker
// collapses to exactly one persisted outcome per order.
type Consumer struct {
	db        *gorm.DB
	log       *zap.Logger
	clock     clock.Clock
	cfg       config.Config
	repo      validationdomain.Repository
	consumer  broker.Consumer
	publisher broker.Publisher
	chain     *policy.Chain
	metrics   *metrics.Metrics
}

func New(p Params) *Consumer {
	return &Consumer{
		db:        p.DB,
		log:       p.Log.Named("validation.consumer"),
		clock:     p.Clock,
		cfg:       p.Cfg,
		repo:      p.Repo,
		consumer:  p.Consumer,
		publisher: p.Publisher,
		chain:     p.Chain,
		metrics:   p.Metrics,
	}
}

// Run consumes until ctx is canceled or the subscription closes.
func (c *Consumer) Run(ctx context.Context) error {
	sub, err := c.consumer.Subscribe(ctx, c.cfg.Topics.Inbound, c.cfg.Validation.ConsumerGroup)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", c.cfg.Topics.Inbound, err)
	}
	defer sub.Close()

	for {
		delivery, err := sub.Receive(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, broker.ErrSubscriptionClosed) {
				return nil
			}
			return err
		}

		if perr := c.Process(ctx, delivery.Message); perr != nil {
			c.metrics.RecordConsumerError(ctx)
			c.log.Error("order processing failed, requeueing",
				zap.String("key", delivery.Message.Key),
				zap.Error(perr),
			)
			if nerr := delivery.Nack(); nerr != nil {
				c.log.Warn("nack failed", zap.Error(nerr))
			}
			continue
		}
		if aerr := delivery.Ack(); aerr != nil {
			c.log.Warn("ack failed", zap.Error(aerr))
		}
	}
}

// Process handles one inbound message. A nil return means the message is
// finished and must be acked, including the poison and duplicate cases;
// an error means the broker should redeliver.
func (c *Consumer) Process(ctx context.Context, msg broker.Message) error {
	var order model.Order
	if err := json.Unmarshal(msg.Payload, &order); err != nil || order.OrderID == "" {
		// Poison message. Acked without outcome so it cannot wedge the
		// queue.
		c.metrics.RecordConsumerInvalid(ctx)
		c.log.Warn("discarding malformed inbound message",
			zap.String("key", msg.Key),
			zap.Error(err),
		)
		return nil
	}

	exists, err := c.repo.ExistsByOrderID(ctx, c.db, order.OrderID)
	if err != nil {
		return err
	}
	if exists {
		c.metrics.RecordConsumerDuplicate(ctx)
		return nil
	}

	violations := c.chain.Evaluate(ctx, &order)
	now := c.clock.Now()

	status := model.StatusValidated
	reason := ""
	if len(violations) > 0 {
		status = model.StatusRejected
		reason = strings.Join(violations, "; ")
	}

	outcome := validationdomain.NewValidatedOrder(&order, status, reason, now)
	if err := c.repo.Insert(ctx, c.db, outcome); err != nil {
		if db.IsDuplicateKeyErr(err) {
			// Another consumer persisted the outcome between our check
			// and insert. Their publication stands.
			c.metrics.RecordConsumerDuplicate(ctx)
			return nil
		}
		return err
	}

	order.Status = status
	order.UpdatedAt = now

	if err := c.publishOutcome(ctx, &order, reason); err != nil {
		// The outcome row committed, so a redelivery short-circuits at
		// the existence check: each order gets at most one publication.
		return err
	}

	c.metrics.RecordOrderProcessed(ctx)
	if status == model.StatusValidated {
		c.metrics.RecordOrderValidated(ctx)
	} else {
		c.metrics.RecordOrderRejected(ctx)
		c.log.Info("order rejected",
			zap.String("order_id", order.OrderID),
			zap.String("reason", reason),
		)
	}
	return nil
}

func (c *Consumer) publishOutcome(ctx context.Context, order *model.Order, reason string) error {
	var (
		topic   string
		payload any
	)
	if order.Status == model.StatusValidated {
		topic = c.cfg.Topics.Validated
		payload = order
	} else {
		topic = c.cfg.Topics.Rejected
		payload = model.RejectedOrder{Order: *order, RejectionReason: reason}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal outcome: %w", err)
	}
	return c.publisher.Publish(ctx, broker.Message{
		Topic:   topic,
		Key:     order.OrderID,
		Payload: body,
	})
}
