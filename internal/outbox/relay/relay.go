package relay

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/oms/internal/broker"
	"github.com/smallbiznis/oms/internal/clock"
	"github.com/smallbiznis/oms/internal/config"
	"github.com/smallbiznis/oms/internal/notify"
	"github.com/smallbiznis/oms/internal/observability/metrics"
	outboxdomain "github.com/smallbiznis/oms/internal/outbox/domain"
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
	Repo      outboxdomain.Repository
	Publisher broker.Publisher
	Wake      notify.WakeChannel
	Metrics   *metrics.Metrics
}

// Worker drains the outbox to the broker. Multiple workers may run
// against the same table; the claim query keeps them off each other's
// rows.
type Worker struct {
	db        *gorm.DB
	log       *zap.Logger
	clock     clock.Clock
	cfg       config.RelayConfig
	repo      outboxdomain.Repository
	publisher broker.Publisher
	wake      notify.Listener
	metrics   *metrics.Metrics
}

func New(p Params) *Worker {
	return &Worker{
		db:        p.DB,
		log:       p.Log.Named("outbox.relay"),
		clock:     p.Clock,
		cfg:       p.Cfg.Relay,
		repo:      p.Repo,
		publisher: p.Publisher,
		wake:      p.Wake,
		metrics:   p.Metrics,
	}
}

// Run drains until ctx is canceled. The wake subscription only shortens
// latency; every poll tick drains regardless, so a dead wake channel
// degrades to poll cadence instead of stalling the relay.
func (w *Worker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	var wakeC <-chan struct{}
	sub := w.subscribe(ctx)
	if sub != nil {
		wakeC = sub.C()
	}
	defer func() {
		if sub != nil {
			_ = sub.Close()
		}
	}()

	w.drain(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-wakeC:
			w.drain(ctx)
		case <-ticker.C:
			if sub == nil {
				if sub = w.subscribe(ctx); sub != nil {
					wakeC = sub.C()
				}
			}
			w.drain(ctx)
		}
	}
}

func (w *Worker) subscribe(ctx context.Context) notify.Subscription {
	sub, err := w.wake.Listen(ctx, notify.OutboxChannel)
	if err != nil {
		w.log.Warn("wake channel unavailable, relying on poll interval", zap.Error(err))
		return nil
	}
	return sub
}

func (w *Worker) drain(ctx context.Context) {
	published, err := w.DrainOnce(ctx)
	if err != nil {
		w.log.Error("outbox drain failed", zap.Error(err))
		return
	}
	if published > 0 {
		w.log.Debug("outbox drained", zap.Int("published", published))
	}
}

// DrainOnce claims and publishes batches until the backlog is empty or a
// batch saw a publish failure; failed rows wait for the next cycle so a
// down broker cannot hot-loop the claim query. Returns the number of
// events published.
func (w *Worker) DrainOnce(ctx context.Context) (int, error) {
	total := 0
	for {
		n, more, err := w.drainBatch(ctx)
		total += n
		if err != nil {
			return total, err
		}
		if !more {
			return total, nil
		}
	}
}

// drainBatch runs one claim transaction. A crash before commit leaves
// every claimed row unpublished; the broker may then see the same event
// again, which is the at-least-once contract consumers sign up for.
func (w *Worker) drainBatch(ctx context.Context) (published int, more bool, err error) {
	var failed error
	err = w.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		events, err := w.repo.ClaimUnpublished(ctx, tx, w.cfg.BatchSize)
		if err != nil {
			return err
		}
		if len(events) == 0 {
			return nil
		}

		if len(events) < w.cfg.BatchSize {
			backlog, cerr := w.repo.CountUnpublished(ctx, tx)
			if cerr == nil && backlog > int64(len(events)) {
				w.metrics.RecordOutboxPartialClaim(ctx)
			}
		}

		// Publish in id order. A failed row stays unpublished and is
		// retried on a later claim cycle; the rest of the batch still
		// goes out and the successful marks still commit.
		done := make([]snowflake.ID, 0, len(events))
		for i := range events {
			ev := &events[i]
			perr := w.publisher.Publish(ctx, broker.Message{
				Topic:   ev.Topic,
				Key:     ev.RoutingKey,
				Payload: ev.Payload,
			})
			if perr != nil {
				w.metrics.RecordOutboxPublishFailed(ctx, ev.Topic)
				w.log.Warn("outbox publish failed",
					zap.String("event_id", ev.ID.String()),
					zap.String("topic", ev.Topic),
					zap.Error(perr),
				)
				failed = perr
				continue
			}
			w.metrics.RecordOutboxPublished(ctx, ev.Topic)
			done = append(done, ev.ID)
		}

		if merr := w.repo.MarkPublished(ctx, tx, done, w.clock.Now()); merr != nil {
			return merr
		}

		published = len(done)
		more = failed == nil && len(events) == w.cfg.BatchSize
		return nil
	})
	if err != nil {
		return 0, false, err
	}
	return published, more, failed
}
