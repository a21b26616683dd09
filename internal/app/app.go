package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"retailpulse/internal/analytics"
	"retailpulse/internal/campaign"
	"retailpulse/internal/config"
	"retailpulse/internal/dataset"
	apierrors "retailpulse/internal/errors"
	"retailpulse/internal/infrastructure"
	"retailpulse/internal/ingest"
	customMiddleware "retailpulse/internal/middleware"
	"retailpulse/internal/schema"
	"retailpulse/internal/services"
	handlers "retailpulse/internal/transport/http"
)

// Application represents the main application container
type Application struct {
	Config        *config.Config
	Paths         *config.Paths
	Router        *chi.Mux
	Server        *http.Server
	Logger        *slog.Logger
	OTelProviders *infrastructure.OTelProviders
	Metrics       *infrastructure.BusinessMetrics
	Services      *ServiceContainer
}

// ServiceContainer holds all application services
type ServiceContainer struct {
	Analytics *services.AnalyticsService
	Health    *services.HealthService
}

// NewApplication loads the configuration, initializes the process-wide
// logger and builds the application.
func NewApplication() (*Application, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, apierrors.NewConfigError("failed to load configuration", err)
	}

	logger, err := infrastructure.InitializeLogger(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	return New(cfg, logger)
}

// New builds an application from an explicit configuration and logger.
func New(cfg *config.Config, logger *slog.Logger) (*Application, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if logger == nil {
		logger = infrastructure.GetLogger()
	}

	logger.Info("Application starting",
		slog.String("name", config.AppName),
		slog.String("version", config.AppVersion))

	paths, err := cfg.Paths.ResolvePaths()
	if err != nil {
		return nil, fmt.Errorf("failed to resolve paths: %w", err)
	}
	if err := paths.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("failed to ensure directories: %w", err)
	}

	otelProviders, err := infrastructure.InitializeOTel(cfg.Telemetry, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize OpenTelemetry: %w", err)
	}

	metrics, err := infrastructure.CreateBusinessMetrics(otelProviders.Meter)
	if err != nil {
		return nil, fmt.Errorf("failed to create business metrics: %w", err)
	}

	app := &Application{
		Config:        cfg,
		Paths:         paths,
		Logger:        logger,
		OTelProviders: otelProviders,
		Metrics:       metrics,
	}

	app.initializeServices()
	app.setupRouter()
	app.createServer()

	return app, nil
}

// initializeServices initializes all application services
func (a *Application) initializeServices() {
	analyticsService := NewAnalyticsService(a.Config, a.Paths.ReportsDir, a.OTelProviders, a.Metrics, a.Logger)

	healthService := services.NewHealthService(config.AppVersion, a.checkReady, a.Logger)

	a.Services = &ServiceContainer{
		Analytics: analyticsService,
		Health:    healthService,
	}
}

// NewAnalyticsService wires the analytics pipeline from configuration.
// providers and metrics may be nil.
func NewAnalyticsService(cfg *config.Config, reportsDir string, providers *infrastructure.OTelProviders, metrics *infrastructure.BusinessMetrics, logger *slog.Logger) *services.AnalyticsService {
	ac := cfg.Analytics

	engine := analytics.NewEngine(analytics.Options{
		Resolver:            dataset.NewResolver(columnAliases(ac.ColumnAliases)),
		DefaultReorderPoint: ac.DefaultReorderPoint,
		OnFault:             services.OnFault,
		Logger:              logger,
	})

	simulator := campaign.NewSimulator(engine, campaign.Config{
		HistoryWindowDays:       ac.HistoryWindowDays,
		PromoSpendRate:          ac.PromoSpendRate,
		FulfillmentCostPerUnit:  ac.FulfillmentCostPerUnit,
		BrandErosionDiscountPct: ac.BrandErosionDiscountPct,
		DefaultElasticity:       ac.DefaultElasticity,
		Elasticities:            ac.Elasticities,
	}, logger)

	deps := services.AnalyticsDeps{
		Loader: ingest.NewLoader(logger, cfg.Ingest.MaxRows),
		Validator: schema.NewValidator(nil, schema.Thresholds{
			MinGroupRatio: ac.DetectionGroupRatio,
			MinScore:      ac.DetectionMinScore,
		}, logger),
		Engine:    engine,
		Simulator: simulator,
		Reports:   services.NewReportWriter(reportsDir, metrics, logger),
		Metrics:   metrics,
		Logger:    logger,
	}
	if providers != nil {
		deps.Tracer = providers.Tracer
	}
	return services.NewAnalyticsService(deps)
}

// columnAliases converts configured aliases into resolver fields. Names are
// normalized the way ingested headers are, so "Landed Cost" matches.
func columnAliases(in map[string][]string) map[dataset.Field][]string {
	if len(in) == 0 {
		return nil
	}
	out := make(map[dataset.Field][]string, len(in))
	for field, names := range in {
		normalized := make([]string, 0, len(names))
		for _, name := range names {
			normalized = append(normalized, schema.NormalizeHeader(name))
		}
		out[dataset.Field(field)] = normalized
	}
	return out
}

// checkReady reports whether report files can be written.
func (a *Application) checkReady() error {
	probe := filepath.Join(a.Paths.ReportsDir, ".write_test")
	if err := os.WriteFile(probe, []byte("ok"), 0644); err != nil {
		return fmt.Errorf("reports directory not writable: %s", a.Paths.ReportsDir)
	}
	_ = os.Remove(probe)
	return nil
}

// setupRouter configures the HTTP router with all routes
func (a *Application) setupRouter() {
	r := chi.NewRouter()
	errorHandler := apierrors.NewErrorHandler(a.Logger, a.Config.Logging.Development)

	// RequestID → RealIP → StripSlashes → OTel → Logger → Recoverer → headers → limits
	r.Use(customMiddleware.RequestID)
	r.Use(customMiddleware.RealIP)
	r.Use(customMiddleware.StripSlashes)
	r.Use(customMiddleware.NewOTelMiddleware(a.OTelProviders, a.Metrics).Handler)
	r.Use(customMiddleware.StructuredLogger(a.Logger))
	r.Use(errorHandler.RecoveryMiddleware)

	secure := customMiddleware.DefaultSecureHeaders()
	secure.DevMode = a.Config.Logging.Development
	r.Use(secure.Handler)

	if a.Config.Security.EnableCORS {
		r.Use(customMiddleware.CORS(a.getCORSConfig()))
	}

	if a.Config.Security.RateLimit.Enabled {
		r.Use(customMiddleware.NewRateLimiter(
			a.Config.Security.RateLimit.RPS,
			a.Config.Security.RateLimit.Burst,
			a.Logger,
		).WithMetrics(a.Metrics).Handler)
	}

	r.NotFound(errorHandler.NotFound)
	r.MethodNotAllowed(errorHandler.MethodNotAllowed)

	healthHandler := handlers.NewHealthHandler(a.Services.Health, a.Logger)
	r.Get("/healthz", healthHandler.LivenessCheck)
	r.Get("/readyz", healthHandler.ReadinessCheck)
	r.Get("/version", healthHandler.Version)

	r.Mount("/metrics", handlers.NewMetricsHandler(a.OTelProviders.PrometheusHTTP).Routes())

	a.setupAPIRoutes(r, errorHandler)

	a.Router = r
}

// setupAPIRoutes configures API endpoints
func (a *Application) setupAPIRoutes(r chi.Router, errorHandler *apierrors.ErrorHandler) {
	r.Group(func(r chi.Router) {
		r.Use(render.SetContentType(render.ContentTypeJSON))
		r.Use(customMiddleware.Timeout(a.Config.Server.RequestTimeout))
		r.Use(customMiddleware.MaxBodySize(a.Config.Ingest.MaxUploadBytes))

		analyticsHandler := handlers.NewAnalyticsHandler(a.Services.Analytics, a.Logger, errorHandler)
		r.Mount("/api/v1", analyticsHandler.Routes())
	})
}

// getCORSConfig returns the CORS configuration
func (a *Application) getCORSConfig() customMiddleware.CORSConfig {
	return customMiddleware.CORSConfig{
		AllowedOrigins: a.Config.Security.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{
			"Accept",
			"Content-Type",
			customMiddleware.RequestIDHeader,
		},
		ExposedHeaders: []string{
			customMiddleware.RequestIDHeader,
			"Content-Disposition",
		},
		MaxAge: 300,
		Logger: a.Logger,
	}
}

// createServer creates the HTTP server
func (a *Application) createServer() {
	a.Server = &http.Server{
		Addr:           fmt.Sprintf(":%d", a.Config.Server.Port),
		Handler:        a.Router,
		ReadTimeout:    a.Config.Server.ReadTimeout,
		WriteTimeout:   a.Config.Server.WriteTimeout,
		IdleTimeout:    a.Config.Server.IdleTimeout,
		MaxHeaderBytes: a.Config.Server.MaxHeaderBytes,
	}
}

// Start starts the HTTP server in the background. A listen failure cancels
// the context.
func (a *Application) Start(ctx context.Context, cancel context.CancelFunc) error {
	a.Logger.InfoContext(ctx, "Starting application",
		slog.String("name", config.AppName),
		slog.String("version", config.AppVersion),
		slog.Int("port", a.Config.Server.Port),
		slog.String("level", a.Config.Logging.Level),
		slog.String("reports_dir", a.Paths.ReportsDir))

	go func() {
		if err := a.Server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.Logger.ErrorContext(ctx, "Server error", slog.String("error", err.Error()))
			cancel()
		}
	}()

	if err := a.checkReady(); err != nil {
		a.Logger.WarnContext(ctx, "Startup readiness check failed", slog.String("error", err.Error()))
	}

	a.Logger.InfoContext(ctx, "Application started successfully",
		slog.String("address", fmt.Sprintf("http://localhost:%d", a.Config.Server.Port)))
	return nil
}

// Stop gracefully shuts down the server and flushes telemetry.
func (a *Application) Stop(ctx context.Context) error {
	a.Logger.InfoContext(ctx, "Shutting down application")

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.Config.Server.ShutdownTimeout)
	defer cancel()

	if err := a.Server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown error: %w", err)
	}

	if a.OTelProviders != nil {
		if err := a.OTelProviders.Shutdown(shutdownCtx); err != nil {
			a.Logger.ErrorContext(ctx, "Error shutting down OpenTelemetry", slog.String("error", err.Error()))
		}
	}

	a.Logger.InfoContext(ctx, "Application shutdown complete")
	return nil
}

// Run runs the application until interrupted or the server fails.
func (a *Application) Run() error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := a.Start(ctx, cancel); err != nil {
		return err
	}

	<-ctx.Done()
	a.Logger.InfoContext(ctx, "Received shutdown signal")

	return a.Stop(ctx)
}
