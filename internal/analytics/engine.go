package analytics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"retailpulse/internal/dataset"
)

var (
	// ErrEmptyInput is returned when a required table is missing or has no columns.
	ErrEmptyInput = errors.New("empty input table")
	// ErrMissingDimension is returned when a grouping column is absent.
	ErrMissingDimension = errors.New("grouping dimension not found")
	// ErrNotEnriched is returned when a KPI is requested on a raw sales table.
	ErrNotEnriched = errors.New("table is not enriched")
)

// Canonical column names added by Enrich.
const (
	ColCost      = "cost"
	ColCategory  = "category"
	ColCity      = "city"
	ColChannel   = "channel"
	ColUnits     = "units"
	ColUnitPrice = "unit_price"
	ColRevenue   = "revenue"
	ColProfit    = "profit"

	// Unknown fills category, city and channel when no value is available.
	Unknown = "Unknown"
)

// Options configures an Engine.
type Options struct {
	Resolver            *dataset.Resolver
	DefaultReorderPoint float64
	// Now anchors the synthetic trend timeline. Defaults to time.Now.
	Now func() time.Time
	// OnFault, if set, is told about every fault a never-fail operation
	// swallowed.
	OnFault func(ctx context.Context, operation string, err error)
	Logger  *slog.Logger
}

// Engine computes enriched tables, KPIs and stockout risk. It holds no
// per-call state and is safe for concurrent use.
type Engine struct {
	resolver     *dataset.Resolver
	reorderPoint float64
	now          func() time.Time
	onFault      func(ctx context.Context, operation string, err error)
	logger       *slog.Logger
}

// NewEngine creates an analytics engine.
func NewEngine(opts Options) *Engine {
	if opts.Resolver == nil {
		opts.Resolver = dataset.NewResolver(nil)
	}
	if opts.DefaultReorderPoint <= 0 {
		opts.DefaultReorderPoint = 10
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Engine{
		resolver:     opts.Resolver,
		reorderPoint: opts.DefaultReorderPoint,
		now:          opts.Now,
		onFault:      opts.OnFault,
		logger:       opts.Logger.With(slog.String("component", "analytics")),
	}
}

// Resolver returns the column resolver the engine uses.
func (e *Engine) Resolver() *dataset.Resolver {
	return e.resolver
}

// guard runs fn and converts any error or panic into the zero result,
// logging the fault. Callers get a well-formed value in every case.
func guard[T any](ctx context.Context, e *Engine, op string, zero T, fn func() (T, error)) (out T) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.ErrorContext(ctx, "Computation panicked, returning empty result",
				slog.String("operation", op),
				slog.String("error", fmt.Sprint(r)))
			e.fault(ctx, op, fmt.Errorf("panic: %v", r))
			out = zero
		}
	}()

	res, err := fn()
	if err != nil {
		e.logger.ErrorContext(ctx, "Computation failed, returning empty result",
			slog.String("operation", op),
			slog.String("error", err.Error()))
		e.fault(ctx, op, err)
		return zero
	}
	return res
}

func (e *Engine) fault(ctx context.Context, op string, err error) {
	if e.onFault != nil {
		e.onFault(ctx, op, err)
	}
}
