package discovery

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/kbukum/resilix/logger"
	"github.com/kbukum/resilix/observability"
)

// Filter decides whether a resolver handles a name.
type Filter func(name string) bool

// Resolver decorates a Backend with an optional name filter and the
// three-way Lookup. Configure it before sharing it between goroutines.
type Resolver struct {
	Backend

	provider string
	filter   Filter
	log      *logger.Logger
	metrics  *observability.Metrics
}

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// WithProvider labels the resolver in logs and metrics.
func WithProvider(name string) ResolverOption {
	return func(r *Resolver) { r.provider = name }
}

// WithLogger sets the logger.
func WithLogger(l *logger.Logger) ResolverOption {
	return func(r *Resolver) { r.log = l }
}

// WithMetrics records lookup outcomes.
func WithMetrics(m *observability.Metrics) ResolverOption {
	return func(r *Resolver) { r.metrics = m }
}

// New creates a Resolver over backend.
func New(backend Backend, opts ...ResolverOption) *Resolver {
	r := &Resolver{Backend: backend}
	for _, opt := range opts {
		opt(r)
	}
	if r.provider == "" {
		r.provider = "custom"
	}
	r.log = logger.OrNop(r.log).WithComponent("resolver")
	return r
}

// WithFilter installs f and returns r for chaining. A nil f removes the filter.
func (r *Resolver) WithFilter(f Filter) *Resolver {
	r.filter = f
	return r
}

// Filter returns the installed filter, or nil.
func (r *Resolver) Filter() Filter { return r.filter }

// HasFilter reports whether a filter is installed.
func (r *Resolver) HasFilter() bool { return r.filter != nil }

// Provider returns the resolver's label.
func (r *Resolver) Provider() string { return r.provider }

// Lookup resolves name. A filter that rejects the name yields Deferred, an
// unknown or empty cluster NotFound, one node Single and more Failover.
// Backend errors are returned as is.
func (r *Resolver) Lookup(ctx context.Context, name string) (Result, error) {
	ctx, span := observability.StartSpan(ctx, observability.SpanLookup)
	start := time.Now()

	res, err := r.lookup(ctx, name)

	outcome := res.Kind.String()
	status := "ok"
	if err != nil {
		outcome, status = observability.OutcomeError, "error"
		r.log.Warn("lookup failed", logger.Fields(
			logger.FieldService, name,
			logger.FieldProvider, r.provider,
			logger.FieldError, err.Error(),
		))
	} else {
		r.log.Debug("lookup", logger.Fields(
			logger.FieldService, name,
			logger.FieldProvider, r.provider,
			logger.FieldOutcome, outcome,
		))
	}
	r.metrics.RecordLookup(ctx, r.provider, outcome)
	r.metrics.RecordOperation(ctx, "resolver", "lookup", status, time.Since(start))
	span.SetAttributes(
		attribute.String(observability.AttrService, name),
		attribute.String(observability.AttrOutcome, outcome),
	)
	observability.EndSpan(span, err)
	return res, err
}

func (r *Resolver) lookup(ctx context.Context, name string) (Result, error) {
	if r.filter != nil && !r.filter(name) {
		return Deferred(), nil
	}

	cluster, err := r.GetCluster(ctx, name)
	if err != nil {
		return Result{}, err
	}

	switch cluster.Count() {
	case 0:
		return NotFound(), nil
	case 1:
		n, _ := cluster.Pop()
		return Single(n), nil
	default:
		return Multi(cluster), nil
	}
}
