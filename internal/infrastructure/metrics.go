package infrastructure

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// BusinessMetrics holds the application-specific instruments.
type BusinessMetrics struct {
	// HTTP metrics
	HTTPRequestsTotal   metric.Int64Counter
	HTTPRequestDuration metric.Float64Histogram
	HTTPActiveRequests  metric.Int64UpDownCounter

	// Analytics metrics
	AnalyticsOperationsTotal   metric.Int64Counter
	AnalyticsOperationDuration metric.Float64Histogram
	AnalyticsFallbacksTotal    metric.Int64Counter
	RowsProcessedTotal         metric.Int64Counter

	// Validation metrics
	ValidationsTotal  metric.Int64Counter
	DetectedTypeTotal metric.Int64Counter

	// Campaign metrics
	SimulationsTotal      metric.Int64Counter
	CampaignWarningsTotal metric.Int64Counter
	ReportsGeneratedTotal metric.Int64Counter

	SystemErrors metric.Int64Counter
}

// CreateBusinessMetrics registers every instrument on meter.
func CreateBusinessMetrics(meter metric.Meter) (*BusinessMetrics, error) {
	b := &metricBuilder{meter: meter}
	m := &BusinessMetrics{
		HTTPRequestsTotal:   b.counter("http_requests_total", "Total number of HTTP requests"),
		HTTPRequestDuration: b.histogram("http_request_duration_seconds", "HTTP request duration in seconds"),
		HTTPActiveRequests:  b.upDown("http_active_requests", "Number of active HTTP requests"),

		AnalyticsOperationsTotal:   b.counter("analytics_operations_total", "Total number of analytics computations"),
		AnalyticsOperationDuration: b.histogram("analytics_operation_duration_seconds", "Analytics computation duration in seconds"),
		AnalyticsFallbacksTotal:    b.counter("analytics_fallbacks_total", "Computations that returned a fallback value after a fault"),
		RowsProcessedTotal:         b.counter("rows_processed_total", "Rows read from uploaded tables"),

		ValidationsTotal:  b.counter("schema_validations_total", "Total number of schema validations"),
		DetectedTypeTotal: b.counter("schema_detected_type_total", "Entity types detected for mismatched files"),

		SimulationsTotal:      b.counter("campaign_simulations_total", "Total number of campaign simulations"),
		CampaignWarningsTotal: b.counter("campaign_warnings_total", "Warnings emitted by campaign simulations"),
		ReportsGeneratedTotal: b.counter("reports_generated_total", "Report files written"),

		SystemErrors: b.counter("system_errors_total", "Total number of system errors"),
	}
	if b.err != nil {
		return nil, b.err
	}
	return m, nil
}

type metricBuilder struct {
	meter metric.Meter
	err   error
}

func (b *metricBuilder) counter(name, desc string) metric.Int64Counter {
	c, err := b.meter.Int64Counter(name, metric.WithDescription(desc))
	if err != nil && b.err == nil {
		b.err = err
	}
	return c
}

func (b *metricBuilder) upDown(name, desc string) metric.Int64UpDownCounter {
	c, err := b.meter.Int64UpDownCounter(name, metric.WithDescription(desc))
	if err != nil && b.err == nil {
		b.err = err
	}
	return c
}

func (b *metricBuilder) histogram(name, desc string) metric.Float64Histogram {
	h, err := b.meter.Float64Histogram(name, metric.WithDescription(desc), metric.WithUnit("s"))
	if err != nil && b.err == nil {
		b.err = err
	}
	return h
}

// RecordAnalyticsOperation records one computation. fallback marks runs
// that degraded to a zero result instead of failing.
func RecordAnalyticsOperation(ctx context.Context, m *BusinessMetrics, operation string, duration time.Duration, fallback bool) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("operation", operation))
	m.AnalyticsOperationsTotal.Add(ctx, 1, attrs)
	m.AnalyticsOperationDuration.Record(ctx, duration.Seconds(), attrs)
	if fallback {
		m.AnalyticsFallbacksTotal.Add(ctx, 1, attrs)
	}
}

// RecordRows counts rows ingested for an entity.
func RecordRows(ctx context.Context, m *BusinessMetrics, entity string, rows int) {
	if m == nil || rows <= 0 {
		return
	}
	m.RowsProcessedTotal.Add(ctx, int64(rows), metric.WithAttributes(attribute.String("entity", entity)))
}

// RecordValidation counts a validation outcome and, for mismatches, the
// detected entity type.
func RecordValidation(ctx context.Context, m *BusinessMetrics, entity string, valid bool, detected string) {
	if m == nil {
		return
	}
	m.ValidationsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("entity", entity),
		attribute.Bool("valid", valid),
	))
	if detected != "" {
		m.DetectedTypeTotal.Add(ctx, 1, metric.WithAttributes(
			attribute.String("expected", entity),
			attribute.String("detected", detected),
		))
	}
}

// RecordSimulation counts a simulation and the warnings it produced.
func RecordSimulation(ctx context.Context, m *BusinessMetrics, outcome string, warnings int) {
	if m == nil {
		return
	}
	m.SimulationsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
	if warnings > 0 {
		m.CampaignWarningsTotal.Add(ctx, int64(warnings))
	}
}

// RecordReport counts a written report by format.
func RecordReport(ctx context.Context, m *BusinessMetrics, format string) {
	if m == nil {
		return
	}
	m.ReportsGeneratedTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("format", format)))
}

// RecordSystemError counts an unexpected failure by component.
func RecordSystemError(ctx context.Context, m *BusinessMetrics, component string) {
	if m == nil {
		return
	}
	m.SystemErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("component", component)))
}
