package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"retailpulse/internal/analytics"
	"retailpulse/internal/campaign"
	"retailpulse/internal/dataset"
	apierrors "retailpulse/internal/errors"
	"retailpulse/internal/infrastructure"
	"retailpulse/internal/ingest"
	"retailpulse/internal/schema"
)

// Dimensions lists the enriched columns grouped KPIs may be computed by.
var Dimensions = []string{analytics.ColCity, analytics.ColChannel, analytics.ColCategory}

// Overview is the dashboard summary of one upload bundle.
type Overview struct {
	KPIs        analytics.KPIs          `json:"kpis"`
	ByCity      analytics.GroupedKPIs   `json:"by_city"`
	ByChannel   analytics.GroupedKPIs   `json:"by_channel"`
	ByCategory  analytics.GroupedKPIs   `json:"by_category"`
	Trend       analytics.Trend         `json:"trend"`
	TopProducts analytics.GroupedKPIs   `json:"top_products"`
	Stockout    *analytics.StockoutRisk `json:"stockout,omitempty"`
}

// AnalyticsDeps holds the collaborators of an AnalyticsService.
type AnalyticsDeps struct {
	Loader    *ingest.Loader
	Validator *schema.Validator
	Engine    *analytics.Engine
	Simulator *campaign.Simulator
	Reports   *ReportWriter
	Tracer    trace.Tracer
	Metrics   *infrastructure.BusinessMetrics
	Logger    *slog.Logger
	// TopProducts is the row count of the overview's best seller list.
	TopProducts int
}

// AnalyticsService runs ingestion, validation and the analytics core for
// one request at a time. It keeps no state between calls.
type AnalyticsService struct {
	loader      *ingest.Loader
	validator   *schema.Validator
	engine      *analytics.Engine
	simulator   *campaign.Simulator
	reports     *ReportWriter
	tracer      trace.Tracer
	metrics     *infrastructure.BusinessMetrics
	logger      *slog.Logger
	topProducts int
}

// NewAnalyticsService creates the service. Missing collaborators are built
// with defaults.
func NewAnalyticsService(deps AnalyticsDeps) *AnalyticsService {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Loader == nil {
		deps.Loader = ingest.NewLoader(deps.Logger, 0)
	}
	if deps.Validator == nil {
		deps.Validator = schema.NewValidator(nil, schema.Thresholds{}, deps.Logger)
	}
	if deps.Engine == nil {
		deps.Engine = analytics.NewEngine(analytics.Options{Logger: deps.Logger, OnFault: OnFault})
	}
	if deps.Simulator == nil {
		deps.Simulator = campaign.NewSimulator(deps.Engine, campaign.DefaultConfig(), deps.Logger)
	}
	if deps.Reports == nil {
		deps.Reports = NewReportWriter("", deps.Metrics, deps.Logger)
	}
	if deps.Tracer == nil {
		deps.Tracer = otel.Tracer(infrastructure.MeterName)
	}
	if deps.TopProducts <= 0 {
		deps.TopProducts = 10
	}
	return &AnalyticsService{
		loader:      deps.Loader,
		validator:   deps.Validator,
		engine:      deps.Engine,
		simulator:   deps.Simulator,
		reports:     deps.Reports,
		tracer:      deps.Tracer,
		metrics:     deps.Metrics,
		logger:      deps.Logger.With(slog.String("component", "analytics_service")),
		topProducts: deps.TopProducts,
	}
}

// Reports returns the service's report writer.
func (s *AnalyticsService) Reports() *ReportWriter {
	return s.reports
}

// ExpectedColumns describes the columns an entity type requires.
func (s *AnalyticsService) ExpectedColumns(ctx context.Context, entity string) (schema.ExpectedColumns, error) {
	cols, err := s.validator.Registry().ExpectedColumns(schema.EntityType(entity))
	if err != nil {
		s.logger.DebugContext(ctx, "Expected columns requested for unknown type",
			slog.String("entity", entity))
		return schema.ExpectedColumns{}, err
	}
	return cols, nil
}

// Validate reads one table and checks it against entity. Schema problems are
// reported in the result; only unreadable input returns an error.
func (s *AnalyticsService) Validate(ctx context.Context, entity string, src ingest.Source) (schema.ValidationResult, error) {
	ctx, span := s.tracer.Start(ctx, "analytics.validate",
		trace.WithAttributes(attribute.String("entity", entity)))
	defer span.End()

	t, err := s.loader.Load(ctx, src)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "load failed")
		return schema.ValidationResult{}, fmt.Errorf("load %s: %w", entity, err)
	}
	infrastructure.RecordRows(ctx, s.metrics, entity, t.Len())
	return s.validate(ctx, schema.EntityType(entity), t), nil
}

func (s *AnalyticsService) validate(ctx context.Context, entity schema.EntityType, t *dataset.Table) schema.ValidationResult {
	res := s.validator.Validate(t, entity)
	detected := ""
	if !res.Valid && res.DetectedType != "" {
		detected = string(res.DetectedType)
	}
	infrastructure.RecordValidation(ctx, s.metrics, string(entity), res.Valid, detected)
	infrastructure.AddSpanEvent(ctx, "schema.validated",
		attribute.String("entity", string(entity)),
		attribute.Bool("valid", res.Valid),
		attribute.String("detected", detected))

	if !res.Valid {
		s.logger.InfoContext(ctx, "Table failed validation",
			slog.String("entity", string(entity)),
			slog.String("message", res.Message),
			slog.Any("missing_columns", res.MissingColumns))
	}
	return res
}

// Ingest loads every source concurrently and validates each table against
// its entity type. Entities in required must be present.
func (s *AnalyticsService) Ingest(ctx context.Context, sources map[schema.EntityType]ingest.Source, required ...schema.EntityType) (ingest.Bundle, error) {
	ctx, span := s.tracer.Start(ctx, "analytics.ingest",
		trace.WithAttributes(attribute.Int("tables", len(sources))))
	defer span.End()

	for _, entity := range required {
		if _, ok := sources[entity]; !ok {
			return nil, &MissingTableError{Entity: entity}
		}
	}

	start := time.Now()
	bundle, err := s.loader.LoadBundle(ctx, sources)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "load failed")
		var le *ingest.LoadError
		if errors.As(err, &le) {
			return nil, apierrors.NewIngestError(string(le.Entity), err)
		}
		return nil, err
	}

	// Report in registry order so the first rejected table is deterministic.
	for _, entity := range s.validator.Registry().Types() {
		t, ok := bundle[entity]
		if !ok {
			continue
		}
		infrastructure.RecordRows(ctx, s.metrics, string(entity), t.Len())
		if res := s.validate(ctx, entity, t); !res.Valid {
			err := &TableValidationError{Entity: entity, Result: res}
			span.RecordError(err)
			span.SetStatus(codes.Error, "validation failed")
			return nil, err
		}
	}

	s.logger.DebugContext(ctx, "Bundle ingested",
		slog.Int("tables", len(bundle)),
		slog.Int("sales_rows", bundle.Sales().Len()),
		slog.Duration("duration", time.Since(start)))
	return bundle, nil
}

// Overall computes overall KPIs for the bundle.
func (s *AnalyticsService) Overall(ctx context.Context, b ingest.Bundle) analytics.KPIs {
	return observe(ctx, s, "overall_kpis", func(ctx context.Context) analytics.KPIs {
		return s.engine.Overall(ctx, s.enrich(ctx, b))
	})
}

// Grouped computes KPIs grouped by dimension.
func (s *AnalyticsService) Grouped(ctx context.Context, b ingest.Bundle, dimension string) analytics.GroupedKPIs {
	return observe(ctx, s, "grouped_kpis", func(ctx context.Context) analytics.GroupedKPIs {
		trace.SpanFromContext(ctx).SetAttributes(attribute.String("dimension", dimension))
		return s.engine.Grouped(ctx, s.enrich(ctx, b), dimension)
	})
}

// Trend computes the daily trend.
func (s *AnalyticsService) Trend(ctx context.Context, b ingest.Bundle) analytics.Trend {
	return observe(ctx, s, "daily_trend", func(ctx context.Context) analytics.Trend {
		tr := s.engine.Trend(ctx, s.enrich(ctx, b))
		if tr.Synthetic {
			s.logger.WarnContext(ctx, "No order date column, trend uses synthetic timestamps")
		}
		return tr
	})
}

// TopProducts returns the limit best selling SKUs by revenue.
func (s *AnalyticsService) TopProducts(ctx context.Context, b ingest.Bundle, limit int) analytics.GroupedKPIs {
	return observe(ctx, s, "top_products", func(ctx context.Context) analytics.GroupedKPIs {
		return s.engine.TopProducts(ctx, s.enrich(ctx, b), limit)
	})
}

// StockoutRisk summarises the inventory table.
func (s *AnalyticsService) StockoutRisk(ctx context.Context, b ingest.Bundle) analytics.StockoutRisk {
	return observe(ctx, s, "stockout_risk", func(ctx context.Context) analytics.StockoutRisk {
		return s.engine.StockoutRisk(ctx, b.Inventory())
	})
}

// Overview computes every dashboard section from a single enrichment.
// Stockout risk is included only when the bundle carries inventory.
func (s *AnalyticsService) Overview(ctx context.Context, b ingest.Bundle) Overview {
	return observe(ctx, s, "overview", func(ctx context.Context) Overview {
		enriched := s.enrich(ctx, b)
		o := Overview{
			KPIs:        s.engine.Overall(ctx, enriched),
			ByCity:      s.engine.Grouped(ctx, enriched, analytics.ColCity),
			ByChannel:   s.engine.Grouped(ctx, enriched, analytics.ColChannel),
			ByCategory:  s.engine.Grouped(ctx, enriched, analytics.ColCategory),
			Trend:       s.engine.Trend(ctx, enriched),
			TopProducts: s.engine.TopProducts(ctx, enriched, s.topProducts),
		}
		if inv := b.Inventory(); inv != nil {
			risk := s.engine.StockoutRisk(ctx, inv)
			o.Stockout = &risk
		}
		return o
	})
}

// Simulate projects a campaign over the bundle. The result is always well
// formed; failures surface as warnings.
func (s *AnalyticsService) Simulate(ctx context.Context, b ingest.Bundle, p campaign.Params) campaign.Result {
	ctx, span := s.tracer.Start(ctx, "campaign.simulate",
		trace.WithAttributes(
			attribute.Float64("campaign.discount_pct", p.DiscountPct),
			attribute.Float64("campaign.promo_budget", p.PromoBudget),
			attribute.Int("campaign.days", p.CampaignDays),
			attribute.String("campaign.city", p.City),
			attribute.String("campaign.channel", p.Channel),
			attribute.String("campaign.category", p.Category),
		))
	defer span.End()

	start := time.Now()
	res := s.simulator.Run(ctx, b.Sales(), b.Stores(), b.Products(), p)

	outcome := "projected"
	if res.Outputs == nil {
		outcome = "no_data"
		if len(res.Warnings) > 0 && res.Warnings[0] != campaign.NoMatchingDataWarning && res.Warnings[0] != campaign.NoSalesDataWarning {
			outcome = "error"
			span.SetStatus(codes.Error, res.Warnings[0])
		}
	}
	infrastructure.RecordSimulation(ctx, s.metrics, outcome, len(res.Warnings))
	infrastructure.RecordAnalyticsOperation(ctx, s.metrics, "campaign_simulation", time.Since(start), outcome == "error")
	span.SetAttributes(
		attribute.String("campaign.outcome", outcome),
		attribute.Int("campaign.warnings", len(res.Warnings)),
	)

	s.logger.InfoContext(ctx, "Campaign simulated",
		slog.String("outcome", outcome),
		slog.Int("warnings", len(res.Warnings)),
		slog.Duration("duration", time.Since(start)))
	return res
}

func (s *AnalyticsService) enrich(ctx context.Context, b ingest.Bundle) *dataset.Table {
	enriched, err := s.engine.Enrich(b.Sales(), b.Stores(), b.Products())
	if err != nil {
		// The never-fail adapters turn the nil table into empty results
		// and report the fault themselves.
		s.logger.WarnContext(ctx, "Enrichment failed", slog.String("error", err.Error()))
		return nil
	}
	return enriched
}

// observe wraps one analytics operation in a span, records its duration and
// whether any never-fail adapter fell back to an empty result.
func observe[T any](ctx context.Context, s *AnalyticsService, op string, fn func(context.Context) T) T {
	ctx, span := s.tracer.Start(ctx, "analytics."+op)
	defer span.End()

	faults := &faultLog{}
	ctx = context.WithValue(ctx, faultLogKey{}, faults)

	start := time.Now()
	out := fn(ctx)
	duration := time.Since(start)

	fallback := faults.count() > 0
	infrastructure.RecordAnalyticsOperation(ctx, s.metrics, op, duration, fallback)
	span.SetAttributes(
		attribute.Bool("analytics.fallback", fallback),
		attribute.Int64("analytics.duration_ms", duration.Milliseconds()),
	)
	return out
}

type faultLogKey struct{}

type faultLog struct {
	mu  sync.Mutex
	ops []string
}

func (f *faultLog) add(op string) {
	f.mu.Lock()
	f.ops = append(f.ops, op)
	f.mu.Unlock()
}

func (f *faultLog) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.ops)
}

type faultCollectorKey struct{}

// FaultCollector gathers the faults the analytics adapters swallowed while
// serving one request, so strict callers can fail instead of returning the
// empty fallback.
type FaultCollector struct {
	mu   sync.Mutex
	errs []error
}

// CollectFaults returns a context whose analytics faults are added to the
// returned collector.
func CollectFaults(ctx context.Context) (context.Context, *FaultCollector) {
	c := &FaultCollector{}
	return context.WithValue(ctx, faultCollectorKey{}, c), c
}

func (c *FaultCollector) add(err error) {
	c.mu.Lock()
	c.errs = append(c.errs, err)
	c.mu.Unlock()
}

// Err returns nil when nothing faulted, the fault itself when one did and
// the joined faults otherwise.
func (c *FaultCollector) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch len(c.errs) {
	case 0:
		return nil
	case 1:
		return c.errs[0]
	}
	return errors.Join(c.errs...)
}

// OnFault is the analytics.Options hook that attributes swallowed faults to
// the enclosing service operation and its span.
func OnFault(ctx context.Context, operation string, err error) {
	if f, ok := ctx.Value(faultLogKey{}).(*faultLog); ok {
		f.add(operation)
	}
	fault := apierrors.NewAnalyticsError(operation, err)
	if c, ok := ctx.Value(faultCollectorKey{}).(*FaultCollector); ok {
		c.add(fault)
	}
	infrastructure.RecordError(ctx, fault, trace.WithAttributes(attribute.String("operation", operation)))
}
