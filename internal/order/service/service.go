package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/oms/internal/clock"
	"github.com/smallbiznis/oms/internal/config"
	"github.com/smallbiznis/oms/internal/model"
	"github.com/smallbiznis/oms/internal/notify"
	"github.com/smallbiznis/oms/internal/observability/metrics"
	orderdomain "github.com/smallbiznis/oms/internal/order/domain"
	outboxdomain "github.com/smallbiznis/oms/internal/outbox/domain"
	"github.com/smallbiznis/oms/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	Cfg        config.Config
	Repo       orderdomain.Repository
	OutboxRepo outboxdomain.Repository
	Wake       notify.WakeChannel
	Metrics    *metrics.Metrics
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	clock      clock.Clock
	cfg        config.Config
	repo       orderdomain.Repository
	outboxRepo outboxdomain.Repository
	wake       notify.Notifier
	metrics    *metrics.Metrics
}

func New(p Params) orderdomain.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("order.service"),
		genID:      p.GenID,
		clock:      p.Clock,
		cfg:        p.Cfg,
		repo:       p.Repo,
		outboxRepo: p.OutboxRepo,
		wake:       p.Wake,
		metrics:    p.Metrics,
	}
}

func (s *Service) Admit(ctx context.Context, req orderdomain.AdmitRequest) (*orderdomain.AdmitResult, error) {
	normalize(&req)

	side, orderType, tif, err := validate(req)
	if err != nil {
		return nil, err
	}

	// Fast path for resubmissions. Races still fall through to the
	// unique index below.
	existing, err := s.repo.FindByNaturalKey(ctx, s.db, req.AccountID, req.SourceChannel, req.ClientOrderID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		s.metrics.RecordOrderDuplicate(ctx)
		return &orderdomain.AdmitResult{Order: existing, Created: false}, nil
	}

	now := s.clock.Now()
	order := orderdomain.NewOrder(s.genID.Generate(), now, req, side, orderType, tif)

	payload, err := json.Marshal(order.Snapshot())
	if err != nil {
		return nil, fmt.Errorf("marshal order snapshot: %w", err)
	}

	event := &outboxdomain.OutboxEvent{
		ID:            s.genID.Generate(),
		AggregateType: outboxdomain.AggregateTypeOrder,
		AggregateID:   order.ID.String(),
		EventType:     outboxdomain.EventTypeOrderCreated,
		Topic:         s.cfg.Topics.Inbound,
		RoutingKey:    order.ID.String(),
		Payload:       payload,
		CreatedAt:     now,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.repo.Insert(ctx, tx, order); err != nil {
			return err
		}
		return s.outboxRepo.Insert(ctx, tx, event)
	})
	if err != nil {
		if db.IsDuplicateKeyErr(err) {
			// Lost the insert race. The winner's row carries the order
			// id the caller must see.
			winner, ferr := s.repo.FindByNaturalKey(ctx, s.db, req.AccountID, req.SourceChannel, req.ClientOrderID)
			if ferr != nil {
				return nil, ferr
			}
			if winner == nil {
				return nil, err
			}
			s.metrics.RecordOrderDuplicate(ctx)
			return &orderdomain.AdmitResult{Order: winner, Created: false}, nil
		}
		return nil, err
	}

	// Wake the relay. Best effort, the poll loop covers a lost signal.
	if nerr := s.wake.Notify(ctx, notify.OutboxChannel); nerr != nil {
		s.log.Warn("outbox wake notify failed", zap.Error(nerr))
	}

	s.metrics.RecordOrderReceived(ctx, order.Symbol, string(order.Side))
	s.log.Info("order admitted",
		zap.String("order_id", order.ID.String()),
		zap.String("account_id", order.AccountID),
		zap.String("client_order_id", order.ClientOrderID),
		zap.String("symbol", order.Symbol),
	)

	return &orderdomain.AdmitResult{Order: order, Created: true}, nil
}

func (s *Service) GetOrder(ctx context.Context, id string) (*orderdomain.Order, error) {
	parsed, err := snowflake.ParseString(strings.TrimSpace(id))
	if err != nil {
		return nil, orderdomain.ErrInvalidID
	}

	order, err := s.repo.FindByID(ctx, s.db, parsed)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, orderdomain.ErrOrderNotFound
	}
	return order, nil
}

func normalize(req *orderdomain.AdmitRequest) {
	req.AccountID = strings.TrimSpace(req.AccountID)
	req.ClientOrderID = strings.TrimSpace(req.ClientOrderID)
	req.Symbol = strings.ToUpper(strings.TrimSpace(req.Symbol))
	req.SourceChannel = strings.ToUpper(strings.TrimSpace(req.SourceChannel))
	if req.SourceChannel == "" {
		req.SourceChannel = orderdomain.DefaultSourceChannel
	}
	req.RequestID = strings.TrimSpace(req.RequestID)
}

// validate collects every field violation so the caller sees the full
// list in one round trip.
func validate(req orderdomain.AdmitRequest) (model.Side, model.OrderType, model.TimeInForce, error) {
	verr := &orderdomain.ValidationErrors{}

	if req.AccountID == "" {
		verr.Add("account_id", "required", "account_id is required")
	}
	if req.ClientOrderID == "" {
		verr.Add("client_order_id", "required", "client_order_id is required")
	}
	if req.Symbol == "" {
		verr.Add("symbol", "required", "symbol is required")
	}

	side, ok := model.ParseSide(req.Side)
	if !ok {
		verr.Add("side", "invalid", fmt.Sprintf("side %q is not one of BUY, SELL", req.Side))
	}

	orderType, ok := model.ParseOrderType(req.OrderType)
	if !ok {
		verr.Add("order_type", "invalid", fmt.Sprintf("order_type %q is not one of MARKET, LIMIT, STOP, STOP_LIMIT", req.OrderType))
	}

	tif := model.TimeInForceDay
	if strings.TrimSpace(req.TimeInForce) != "" {
		tif, ok = model.ParseTimeInForce(req.TimeInForce)
		if !ok {
			verr.Add("time_in_force", "invalid", fmt.Sprintf("time_in_force %q is not one of DAY, GTC, IOC, FOK", req.TimeInForce))
		}
	}

	if req.Quantity <= 0 {
		verr.Add("quantity", "invalid", "quantity must be positive")
	}

	if orderType != "" {
		if orderType.RequiresLimitPrice() {
			if req.LimitPrice == nil || *req.LimitPrice <= 0 {
				verr.Add("limit_price", "required", fmt.Sprintf("limit_price must be positive for %s orders", orderType))
			}
		}
		if orderType.RequiresStopPrice() {
			if req.StopPrice == nil || *req.StopPrice <= 0 {
				verr.Add("stop_price", "required", fmt.Sprintf("stop_price must be positive for %s orders", orderType))
			}
		}
	}

	if verr.HasErrors() {
		return "", "", "", verr
	}
	return side, orderType, tif, nil
}
