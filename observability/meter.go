package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/kbukum/resilix/logger"
)

// MeterConfig configures the OpenTelemetry meter provider.
type MeterConfig struct {
	Enabled        bool          `yaml:"enabled" mapstructure:"enabled"`
	ServiceName    string        `yaml:"service_name" mapstructure:"service_name"`
	ServiceVersion string        `yaml:"service_version" mapstructure:"service_version"`
	Environment    string        `yaml:"environment" mapstructure:"environment"`
	// Endpoint is the OTLP HTTP endpoint host:port (e.g., "localhost:4318").
	Endpoint string        `yaml:"endpoint" mapstructure:"endpoint"`
	Insecure bool          `yaml:"insecure" mapstructure:"insecure"`
	Interval time.Duration `yaml:"interval" mapstructure:"interval"`
}

// DefaultMeterConfig returns defaults for development.
func DefaultMeterConfig(serviceName string) MeterConfig {
	return MeterConfig{
		ServiceName:    serviceName,
		ServiceVersion: "1.0.0",
		Environment:    "development",
		Endpoint:       "localhost:4318",
		Insecure:       true,
		Interval:       15 * time.Second,
	}
}

// ApplyDefaults fills unset fields from DefaultMeterConfig.
func (c *MeterConfig) ApplyDefaults() {
	d := DefaultMeterConfig(c.ServiceName)
	if c.ServiceVersion == "" {
		c.ServiceVersion = d.ServiceVersion
	}
	if c.Environment == "" {
		c.Environment = d.Environment
	}
	if c.Endpoint == "" {
		c.Endpoint = d.Endpoint
	}
	if c.Interval <= 0 {
		c.Interval = d.Interval
	}
}

// InitMeter initializes the OpenTelemetry meter provider with an OTLP HTTP
// exporter and installs it globally. Shut it down on exit.
func InitMeter(ctx context.Context, config *MeterConfig) (*sdkmetric.MeterProvider, error) {
	opts := []otlpmetrichttp.Option{
		otlpmetrichttp.WithEndpoint(config.Endpoint),
	}
	if config.Insecure {
		opts = append(opts, otlpmetrichttp.WithInsecure())
	}

	exporter, err := otlpmetrichttp.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating metric exporter: %w", err)
	}

	res, err := newResource(config.ServiceName, config.ServiceVersion, config.Environment)
	if err != nil {
		return nil, fmt.Errorf("creating resource: %w", err)
	}

	readerOpts := []sdkmetric.PeriodicReaderOption{}
	if config.Interval > 0 {
		readerOpts = append(readerOpts, sdkmetric.WithInterval(config.Interval))
	}

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter, readerOpts...)),
		sdkmetric.WithResource(res),
	)
	otel.SetMeterProvider(mp)

	logger.Info("meter initialized", logger.Fields(
		logger.FieldService, config.ServiceName,
		"endpoint", config.Endpoint,
		"interval", config.Interval.String(),
	))

	return mp, nil
}

// Meter returns a named meter from the global provider.
func Meter(name string) metric.Meter {
	return otel.Meter(name)
}

// Lookup outcomes recorded by RecordLookup.
const (
	OutcomeDeferred = "deferred"
	OutcomeNotFound = "not_found"
	OutcomeSingle   = "single"
	OutcomeFailover = "failover"
	OutcomeError    = "error"
)

// Metrics holds the instruments for statement, connection and lookup activity.
type Metrics struct {
	statementRetries  metric.Int64Counter
	statementFailures metric.Int64Counter
	reconnects        metric.Int64Counter
	lookups           metric.Int64Counter
	operationDuration metric.Float64Histogram
}

// NewMetrics creates metric instruments on the given meter.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	statementRetries, err := meter.Int64Counter("resilix.statement.retries",
		metric.WithDescription("Statement attempts retried after a transient driver error"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating statement.retries counter: %w", err)
	}

	statementFailures, err := meter.Int64Counter("resilix.statement.failures",
		metric.WithDescription("Statement operations that returned an error to the caller"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating statement.failures counter: %w", err)
	}

	reconnects, err := meter.Int64Counter("resilix.connection.reconnects",
		metric.WithDescription("Connection reconnect attempts by outcome"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating connection.reconnects counter: %w", err)
	}

	lookups, err := meter.Int64Counter("resilix.discovery.lookups",
		metric.WithDescription("Name lookups by outcome"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating discovery.lookups counter: %w", err)
	}

	operationDuration, err := meter.Float64Histogram("resilix.operation.duration",
		metric.WithDescription("Duration of proxied operations in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating operation.duration histogram: %w", err)
	}

	return &Metrics{
		statementRetries:  statementRetries,
		statementFailures: statementFailures,
		reconnects:        reconnects,
		lookups:           lookups,
		operationDuration: operationDuration,
	}, nil
}

// NopMetrics returns instruments backed by a noop meter.
func NopMetrics() *Metrics {
	m, _ := NewMetrics(noop.NewMeterProvider().Meter("noop"))
	return m
}

// RecordRetry counts a statement retry caused by a transient error.
func (m *Metrics) RecordRetry(ctx context.Context, dialect, code string) {
	if m == nil {
		return
	}
	m.statementRetries.Add(ctx, 1, metric.WithAttributes(
		attribute.String("dialect", dialect),
		attribute.String("code", code),
	))
}

// RecordStatementFailure counts a statement error surfaced to the caller.
// Reason is "permanent", "exhausted", "reconnect" or "prepare".
func (m *Metrics) RecordStatementFailure(ctx context.Context, dialect, reason string) {
	if m == nil {
		return
	}
	m.statementFailures.Add(ctx, 1, metric.WithAttributes(
		attribute.String("dialect", dialect),
		attribute.String("reason", reason),
	))
}

// RecordReconnect counts a reconnect attempt. Skipped reconnects (a
// concurrent caller already advanced the round) are recorded as "skipped".
func (m *Metrics) RecordReconnect(ctx context.Context, outcome string) {
	if m == nil {
		return
	}
	m.reconnects.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

// RecordLookup counts a resolver lookup by outcome.
func (m *Metrics) RecordLookup(ctx context.Context, provider, outcome string) {
	if m == nil {
		return
	}
	m.lookups.Add(ctx, 1, metric.WithAttributes(
		attribute.String("provider", provider),
		attribute.String("outcome", outcome),
	))
}

// RecordOperation records the duration of a proxied operation.
func (m *Metrics) RecordOperation(ctx context.Context, component, operation, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.operationDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(
		attribute.String("component", component),
		attribute.String("operation", operation),
		attribute.String("status", status),
	))
}
