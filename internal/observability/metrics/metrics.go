package metrics

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Config configures the metrics provider.
type Config struct {
	Enabled          bool
	ExporterEndpoint string
	ExporterProtocol string
	ServiceName      string
	Environment      string
}

// Metrics exposes the pipeline's instruments.
type Metrics struct {
	ordersReceived      metric.Int64Counter
	ordersDuplicate     metric.Int64Counter
	outboxPublished     metric.Int64Counter
	outboxPublishFailed metric.Int64Counter
	outboxPartialClaim  metric.Int64Counter
	ordersProcessed     metric.Int64Counter
	ordersValidated     metric.Int64Counter
	ordersRejected      metric.Int64Counter
	consumerDuplicate   metric.Int64Counter
	consumerInvalid     metric.Int64Counter
	consumerErrors      metric.Int64Counter
}

// NewProvider configures and registers the meter provider.
func NewProvider(lc fx.Lifecycle, cfg Config, log *zap.Logger) (metric.MeterProvider, error) {
	if !cfg.Enabled {
		provider := noop.NewMeterProvider()
		otel.SetMeterProvider(provider)
		return provider, nil
	}

	exporter, err := newExporter(cfg.ExporterProtocol, cfg.ExporterEndpoint)
	if err != nil {
		return nil, err
	}

	reader := sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(10*time.Second))
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	otel.SetMeterProvider(provider)

	if lc != nil {
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				if log != nil {
					log.Info("shutting down meter provider")
				}
				return provider.Shutdown(ctx)
			},
		})
	}

	return provider, nil
}

// New configures the pipeline instruments.
func New(cfg Config, provider metric.MeterProvider) (*Metrics, error) {
	name := strings.TrimSpace(cfg.ServiceName)
	if name == "" {
		name = "oms"
	}
	meter := provider.Meter(name)

	m := &Metrics{}
	for _, inst := range []struct {
		counter *metric.Int64Counter
		name    string
	}{
		{&m.ordersReceived, "oms_ingest_orders_received_total"},
		{&m.ordersDuplicate, "oms_ingest_orders_duplicate_total"},
		{&m.outboxPublished, "oms_ingest_outbox_published_total"},
		{&m.outboxPublishFailed, "oms_ingest_outbox_failed_total"},
		{&m.outboxPartialClaim, "oms_ingest_outbox_partial_claim_total"},
		{&m.ordersProcessed, "oms_validator_orders_processed_total"},
		{&m.ordersValidated, "oms_validator_orders_validated_total"},
		{&m.ordersRejected, "oms_validator_orders_rejected_total"},
		{&m.consumerDuplicate, "oms_validator_orders_duplicate_total"},
		{&m.consumerInvalid, "oms_validator_orders_invalid_total"},
		{&m.consumerErrors, "oms_validator_orders_errors_total"},
	} {
		counter, err := meter.Int64Counter(inst.name)
		if err != nil {
			return nil, err
		}
		*inst.counter = counter
	}

	return m, nil
}

// RecordOrderReceived counts an admitted order by symbol and side.
func (m *Metrics) RecordOrderReceived(ctx context.Context, symbol, side string) {
	if m == nil {
		return
	}
	m.ordersReceived.Add(ctx, 1, metric.WithAttributes(
		attribute.String("symbol", strings.TrimSpace(symbol)),
		attribute.String("side", strings.TrimSpace(side)),
	))
}

// RecordOrderDuplicate counts an idempotent resubmission at admission.
func (m *Metrics) RecordOrderDuplicate(ctx context.Context) {
	if m == nil {
		return
	}
	m.ordersDuplicate.Add(ctx, 1)
}

// RecordOutboxPublished counts a confirmed broker publish per topic.
func (m *Metrics) RecordOutboxPublished(ctx context.Context, topic string) {
	if m == nil {
		return
	}
	m.outboxPublished.Add(ctx, 1, metric.WithAttributes(
		attribute.String("topic", strings.TrimSpace(topic)),
	))
}

// RecordOutboxPublishFailed counts a failed broker publish per topic.
func (m *Metrics) RecordOutboxPublishFailed(ctx context.Context, topic string) {
	if m == nil {
		return
	}
	m.outboxPublishFailed.Add(ctx, 1, metric.WithAttributes(
		attribute.String("topic", strings.TrimSpace(topic)),
	))
}

// RecordOutboxPartialClaim counts claim cycles that returned fewer rows
// than requested while backlog remained, the lock-contention signal.
func (m *Metrics) RecordOutboxPartialClaim(ctx context.Context) {
	if m == nil {
		return
	}
	m.outboxPartialClaim.Add(ctx, 1)
}

// RecordOrderProcessed counts a fully handled consumer message.
func (m *Metrics) RecordOrderProcessed(ctx context.Context) {
	if m == nil {
		return
	}
	m.ordersProcessed.Add(ctx, 1)
}

// RecordOrderValidated counts a validated outcome.
func (m *Metrics) RecordOrderValidated(ctx context.Context) {
	if m == nil {
		return
	}
	m.ordersValidated.Add(ctx, 1)
}

// RecordOrderRejected counts a rejected outcome.
func (m *Metrics) RecordOrderRejected(ctx context.Context) {
	if m == nil {
		return
	}
	m.ordersRejected.Add(ctx, 1)
}

// RecordConsumerDuplicate counts redeliveries skipped by the outcome check.
func (m *Metrics) RecordConsumerDuplicate(ctx context.Context) {
	if m == nil {
		return
	}
	m.consumerDuplicate.Add(ctx, 1)
}

// RecordConsumerInvalid counts poison messages acknowledged without outcome.
func (m *Metrics) RecordConsumerInvalid(ctx context.Context) {
	if m == nil {
		return
	}
	m.consumerInvalid.Add(ctx, 1)
}

// RecordConsumerError counts processing failures that trigger redelivery.
func (m *Metrics) RecordConsumerError(ctx context.Context) {
	if m == nil {
		return
	}
	m.consumerErrors.Add(ctx, 1)
}

func newExporter(protocol, endpoint string) (sdkmetric.Exporter, error) {
	protocol = strings.ToLower(strings.TrimSpace(protocol))
	switch protocol {
	case "", "grpc":
		return otlpmetricgrpc.New(context.Background(),
			otlpmetricgrpc.WithEndpoint(endpoint),
			otlpmetricgrpc.WithInsecure(),
		)
	case "http", "http/protobuf":
		return otlpmetrichttp.New(context.Background(),
			otlpmetrichttp.WithEndpoint(endpoint),
			otlpmetrichttp.WithInsecure(),
		)
	default:
		return nil, fmt.Errorf("unsupported otlp protocol %q", protocol)
	}
}
