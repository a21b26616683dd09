package campaign

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"

	"retailpulse/internal/analytics"
	"retailpulse/internal/dataset"
)

var (
	// ErrNoMatchingData is returned when the target filters select no rows.
	ErrNoMatchingData = errors.New("no data matches the selected filters")
	// ErrInvalidParams is returned for parameters the model cannot use.
	ErrInvalidParams = errors.New("invalid campaign parameters")
)

// Warning texts returned in place of outputs.
const (
	NoMatchingDataWarning = "No data matches the selected filters"
	NoSalesDataWarning    = "No sales data available"
)

// Params describes a hypothetical discount campaign.
type Params struct {
	DiscountPct  float64 `json:"discount_pct" validate:"gte=0,lte=100"`
	PromoBudget  float64 `json:"promo_budget" validate:"gte=0"`
	MarginFloor  float64 `json:"margin_floor" validate:"gte=-100,lte=100"`
	City         string  `json:"city"`
	Channel      string  `json:"channel"`
	Category     string  `json:"category"`
	CampaignDays int     `json:"campaign_days" validate:"gt=0,lte=365"`
}

// Outputs are the projected campaign figures.
type Outputs struct {
	BaselineRevenue     float64 `json:"baseline_revenue"`
	BaselineProfit      float64 `json:"baseline_profit"`
	BaselineOrders      float64 `json:"baseline_orders"`
	BaselineUnits       float64 `json:"baseline_units"`
	Elasticity          float64 `json:"elasticity"`
	DemandLiftPct       float64 `json:"demand_lift_pct"`
	ExpectedUnits       float64 `json:"expected_units"`
	DiscountedPrice     float64 `json:"discounted_price"`
	ExpectedRevenue     float64 `json:"expected_revenue"`
	PromoCost           float64 `json:"promo_cost"`
	FulfillmentCost     float64 `json:"fulfillment_cost"`
	COGS                float64 `json:"cogs"`
	ExpectedGrossProfit float64 `json:"expected_gross_profit"`
	ExpectedNetProfit   float64 `json:"expected_net_profit"`
	ExpectedMarginPct   float64 `json:"expected_margin_pct"`
	ROI                 float64 `json:"roi"`
}

// Comparison restates the baseline and the projected change against it.
type Comparison struct {
	BaselineRevenue  float64 `json:"baseline_revenue"`
	BaselineProfit   float64 `json:"baseline_profit"`
	BaselineOrders   float64 `json:"baseline_orders"`
	ProjectedOrders  float64 `json:"projected_orders"`
	RevenueChangePct float64 `json:"revenue_change_pct"`
	ProfitChangePct  float64 `json:"profit_change_pct"`
	OrdersChangePct  float64 `json:"orders_change_pct"`
}

// Result is the simulator response. Outputs and Comparison are nil when the
// simulation could not run; Warnings then explains why.
type Result struct {
	Outputs    *Outputs    `json:"outputs"`
	Comparison *Comparison `json:"comparison"`
	Warnings   []string    `json:"warnings"`
}

// Simulator projects campaign outcomes against a historical baseline.
type Simulator struct {
	engine *analytics.Engine
	cfg    Config
	logger *slog.Logger
}

// NewSimulator creates a simulator. Unset Config fields take their defaults.
func NewSimulator(engine *analytics.Engine, cfg Config, logger *slog.Logger) *Simulator {
	if engine == nil {
		engine = analytics.NewEngine(analytics.Options{Logger: logger})
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Simulator{
		engine: engine,
		cfg:    cfg.withDefaults(),
		logger: logger.With(slog.String("component", "campaign_simulator")),
	}
}

// Config returns the effective simulator configuration.
func (s *Simulator) Config() Config {
	return s.cfg
}

// Run simulates the campaign and never fails. Empty or fully filtered input
// yields a warning-only result; any other fault yields "Error: ..." warning.
func (s *Simulator) Run(ctx context.Context, sales, stores, products *dataset.Table, p Params) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.ErrorContext(ctx, "Campaign simulation panicked",
				slog.String("error", fmt.Sprint(r)))
			res = errorResult(fmt.Errorf("%v", r))
		}
	}()

	out, err := s.Simulate(sales, stores, products, p)
	switch {
	case err == nil:
		return out
	case errors.Is(err, ErrNoMatchingData):
		s.logger.InfoContext(ctx, "Campaign filters matched no rows",
			slog.String("city", p.City),
			slog.String("channel", p.Channel),
			slog.String("category", p.Category))
		return Result{Warnings: []string{NoMatchingDataWarning}}
	case errors.Is(err, analytics.ErrEmptyInput):
		return Result{Warnings: []string{NoSalesDataWarning}}
	default:
		s.logger.ErrorContext(ctx, "Campaign simulation failed",
			slog.String("error", err.Error()))
		return errorResult(err)
	}
}

// Simulate is the strict variant of Run.
func (s *Simulator) Simulate(sales, stores, products *dataset.Table, p Params) (Result, error) {
	if p.CampaignDays <= 0 {
		return Result{}, fmt.Errorf("%w: campaign days must be positive, got %d", ErrInvalidParams, p.CampaignDays)
	}
	if invalidNumber(p.DiscountPct) || invalidNumber(p.PromoBudget) || invalidNumber(p.MarginFloor) {
		return Result{}, fmt.Errorf("%w: non-finite numeric parameter", ErrInvalidParams)
	}
	if sales.Len() == 0 {
		return Result{}, fmt.Errorf("sales: %w", analytics.ErrEmptyInput)
	}

	enriched, err := s.engine.Enrich(sales, stores, products)
	if err != nil {
		return Result{}, fmt.Errorf("enrich sales: %w", err)
	}
	target := applyFilters(enriched, p)
	if target.Len() == 0 {
		return Result{}, ErrNoMatchingData
	}

	o := s.project(target, p)
	c := compare(o)
	return Result{Outputs: &o, Comparison: &c, Warnings: s.warnings(o, p)}, nil
}

func (s *Simulator) project(target *dataset.Table, p Params) Outputs {
	n := target.Len()
	scale := float64(p.CampaignDays) / s.cfg.HistoryWindowDays

	revenue := sum(dataset.Floats(target.Column(analytics.ColRevenue), n, 0))
	profit := sum(dataset.Floats(target.Column(analytics.ColProfit), n, 0))
	units := sum(dataset.Floats(target.Column(analytics.ColUnits), n, 0))
	orders := float64(orderCount(target, s.engine.Resolver()))

	meanPrice := sum(dataset.Floats(target.Column(analytics.ColUnitPrice), n, 0)) / float64(n)
	meanCost := sum(dataset.Floats(target.Column(analytics.ColCost), n, 0)) / float64(n)

	var o Outputs
	o.BaselineRevenue = revenue * scale
	o.BaselineProfit = profit * scale
	o.BaselineOrders = orders * scale
	o.BaselineUnits = units * scale

	o.Elasticity = s.cfg.Elasticity(p.Category)
	o.DemandLiftPct = p.DiscountPct * o.Elasticity
	o.ExpectedUnits = o.BaselineUnits * (1 + o.DemandLiftPct/100)
	o.DiscountedPrice = meanPrice * (1 - p.DiscountPct/100)
	o.ExpectedRevenue = o.ExpectedUnits * o.DiscountedPrice

	o.PromoCost = math.Min(p.PromoBudget, o.ExpectedRevenue*s.cfg.PromoSpendRate)
	o.FulfillmentCost = o.ExpectedUnits * s.cfg.FulfillmentCostPerUnit
	o.COGS = o.ExpectedUnits * meanCost

	o.ExpectedGrossProfit = o.ExpectedRevenue - o.COGS
	o.ExpectedNetProfit = o.ExpectedGrossProfit - o.PromoCost - o.FulfillmentCost
	if o.ExpectedRevenue != 0 {
		o.ExpectedMarginPct = o.ExpectedNetProfit / o.ExpectedRevenue * 100
	}
	if investment := o.PromoCost + o.FulfillmentCost; investment != 0 {
		o.ROI = (o.ExpectedNetProfit - o.BaselineProfit) / investment * 100
	}
	return o
}

func compare(o Outputs) Comparison {
	c := Comparison{
		BaselineRevenue: o.BaselineRevenue,
		BaselineProfit:  o.BaselineProfit,
		BaselineOrders:  o.BaselineOrders,
		ProjectedOrders: o.BaselineOrders * (1 + o.DemandLiftPct/100),
	}
	if o.BaselineRevenue != 0 {
		c.RevenueChangePct = (o.ExpectedRevenue - o.BaselineRevenue) / o.BaselineRevenue * 100
	}
	if o.BaselineProfit != 0 {
		c.ProfitChangePct = (o.ExpectedNetProfit - o.BaselineProfit) / math.Abs(o.BaselineProfit) * 100
	}
	if o.BaselineOrders != 0 {
		c.OrdersChangePct = (c.ProjectedOrders - o.BaselineOrders) / o.BaselineOrders * 100
	}
	return c
}

func (s *Simulator) warnings(o Outputs, p Params) []string {
	w := []string{}
	if o.ExpectedMarginPct < p.MarginFloor {
		w = append(w, fmt.Sprintf("Expected margin %.1f%% is below the minimum of %.1f%%", o.ExpectedMarginPct, p.MarginFloor))
	}
	if o.ROI < 0 {
		w = append(w, fmt.Sprintf("Negative ROI (%.1f%%): the campaign is projected to earn less than the baseline", o.ROI))
	}
	if p.DiscountPct > s.cfg.BrandErosionDiscountPct {
		w = append(w, fmt.Sprintf("Discount above %.0f%% may erode brand value", s.cfg.BrandErosionDiscountPct))
	}
	return w
}

func applyFilters(t *dataset.Table, p Params) *dataset.Table {
	filters := map[string]string{
		analytics.ColCity:     p.City,
		analytics.ColChannel:  p.Channel,
		analytics.ColCategory: p.Category,
	}
	active := make(map[string]string, len(filters))
	for col, want := range filters {
		if !isAll(want) {
			active[col] = want
		}
	}
	if len(active) == 0 {
		return t
	}
	return t.Filter(func(row int) bool {
		for col, want := range active {
			if dataset.Text(t.Value(col, row)) != want {
				return false
			}
		}
		return true
	})
}

func orderCount(t *dataset.Table, r *dataset.Resolver) int {
	col := r.Column(t, dataset.FieldOrderID)
	if col == nil {
		return t.Len()
	}
	seen := make(map[string]struct{}, len(col))
	for _, v := range col {
		if id := dataset.Text(v); id != "" {
			seen[id] = struct{}{}
		}
	}
	return len(seen)
}

func errorResult(err error) Result {
	return Result{Warnings: []string{"Error: " + err.Error()}}
}

func invalidNumber(f float64) bool {
	return math.IsNaN(f) || math.IsInf(f, 0)
}

func sum(values []float64) float64 {
	var s float64
	for _, v := range values {
		s += v
	}
	return s
}
