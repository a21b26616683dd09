package http

import (
	"context"

	"retailpulse/internal/analytics"
	"retailpulse/internal/campaign"
	"retailpulse/internal/ingest"
	"retailpulse/internal/schema"
	"retailpulse/internal/services"
)

// AnalyticsServiceInterface defines the operations the analytics handler needs
type AnalyticsServiceInterface interface {
	ExpectedColumns(ctx context.Context, entity string) (schema.ExpectedColumns, error)
	Validate(ctx context.Context, entity string, src ingest.Source) (schema.ValidationResult, error)
	Ingest(ctx context.Context, sources map[schema.EntityType]ingest.Source, required ...schema.EntityType) (ingest.Bundle, error)

	Overall(ctx context.Context, b ingest.Bundle) analytics.KPIs
	Grouped(ctx context.Context, b ingest.Bundle, dimension string) analytics.GroupedKPIs
	Trend(ctx context.Context, b ingest.Bundle) analytics.Trend
	TopProducts(ctx context.Context, b ingest.Bundle, limit int) analytics.GroupedKPIs
	Overview(ctx context.Context, b ingest.Bundle) services.Overview
	StockoutRisk(ctx context.Context, b ingest.Bundle) analytics.StockoutRisk
	Simulate(ctx context.Context, b ingest.Bundle, p campaign.Params) campaign.Result

	Reports() *services.ReportWriter
}
