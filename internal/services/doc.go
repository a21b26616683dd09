// Package services implements the business logic layer between the HTTP
// handlers and the analytics core.
//
// AnalyticsService turns uploaded sources into validated tables and runs the
// core operations on them:
//
//	bundle, err := svc.Ingest(ctx, sources, schema.Sales)
//	if err != nil {
//	    return err // *MissingTableError, *TableValidationError or a load error
//	}
//	kpis := svc.Overall(ctx, bundle)
//
// Every computation runs inside a span, records its duration and reports
// whether it fell back to an empty result. The fallback signal comes from
// OnFault, which must be installed as analytics.Options.OnFault on the engine
// the service uses.
//
// The service holds no per-request state; each call works on the tables it
// is given. ReportWriter renders results as CSV or XLSX and HealthService
// backs the liveness and readiness probes.
package services
