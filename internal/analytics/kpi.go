package analytics

import (
	"context"
	"fmt"
	"sort"

	"retailpulse/internal/dataset"
)

// KPIs are the headline metrics for an enriched sales table.
type KPIs struct {
	TotalRevenue    float64 `json:"total_revenue"`
	TotalProfit     float64 `json:"total_profit"`
	TotalOrders     int     `json:"total_orders"`
	TotalUnits      float64 `json:"total_units"`
	AvgOrderValue   float64 `json:"avg_order_value"`
	ProfitMarginPct float64 `json:"profit_margin_pct"`
	ReturnRatePct   float64 `json:"return_rate_pct"`
	AvgDiscountPct  float64 `json:"avg_discount_pct"`
}

// GroupKPI is one row of a grouped KPI result.
type GroupKPI struct {
	Key             string  `json:"key"`
	Revenue         float64 `json:"revenue"`
	Profit          float64 `json:"profit"`
	Orders          int     `json:"orders"`
	Units           float64 `json:"units"`
	AvgOrderValue   float64 `json:"avg_order_value"`
	ProfitMarginPct float64 `json:"profit_margin_pct"`
}

// GroupedKPIs holds per-group metrics sorted by revenue, highest first.
type GroupedKPIs struct {
	Dimension string     `json:"dimension"`
	Rows      []GroupKPI `json:"rows"`
}

// Table renders the result with the dimension as the first column.
func (g GroupedKPIs) Table() *dataset.Table {
	b := dataset.NewBuilder(len(g.Rows))
	keys := make([]any, len(g.Rows))
	rev := make([]any, len(g.Rows))
	prof := make([]any, len(g.Rows))
	orders := make([]any, len(g.Rows))
	units := make([]any, len(g.Rows))
	aov := make([]any, len(g.Rows))
	margin := make([]any, len(g.Rows))
	for i, r := range g.Rows {
		keys[i], rev[i], prof[i] = r.Key, r.Revenue, r.Profit
		orders[i], units[i] = r.Orders, r.Units
		aov[i], margin[i] = r.AvgOrderValue, r.ProfitMarginPct
	}
	dim := g.Dimension
	if dim == "" {
		dim = "key"
	}
	return b.Add(dim, keys...).
		Add("revenue", rev...).
		Add("profit", prof...).
		Add("orders", orders...).
		Add("units", units...).
		Add("avg_order_value", aov...).
		Add("profit_margin_pct", margin...).
		MustBuild()
}

// Overall computes KPIs and never fails; faults yield zero KPIs.
func (e *Engine) Overall(ctx context.Context, enriched *dataset.Table) KPIs {
	return guard(ctx, e, "overall_kpis", KPIs{}, func() (KPIs, error) {
		return e.ComputeOverall(enriched)
	})
}

// ComputeOverall computes KPIs from an enriched table.
func (e *Engine) ComputeOverall(enriched *dataset.Table) (KPIs, error) {
	if err := requireEnriched(enriched); err != nil {
		return KPIs{}, err
	}
	n := enriched.Len()
	var k KPIs
	if n == 0 {
		return k, nil
	}

	revenue := dataset.Floats(enriched.Column(ColRevenue), n, 0)
	profit := dataset.Floats(enriched.Column(ColProfit), n, 0)
	units := dataset.Floats(enriched.Column(ColUnits), n, 0)
	for i := 0; i < n; i++ {
		k.TotalRevenue += revenue[i]
		k.TotalProfit += profit[i]
		k.TotalUnits += units[i]
	}

	if orders := e.resolver.Column(enriched, dataset.FieldOrderID); orders != nil {
		k.TotalOrders = distinct(orders)
	} else {
		k.TotalOrders = n
	}
	k.AvgOrderValue = ratio(k.TotalRevenue, float64(k.TotalOrders))
	k.ProfitMarginPct = ratio(k.TotalProfit, k.TotalRevenue) * 100

	if ret := e.resolver.Column(enriched, dataset.FieldReturned); ret != nil {
		returned := 0
		for _, v := range ret {
			if dataset.ToBool(v) {
				returned++
			}
		}
		k.ReturnRatePct = float64(returned) / float64(n) * 100
	}
	if disc := e.resolver.Column(enriched, dataset.FieldDiscount); disc != nil {
		k.AvgDiscountPct = mean(disc)
	}
	return k, nil
}

// Grouped computes per-group KPIs and never fails; faults yield an empty
// result for the requested dimension.
func (e *Engine) Grouped(ctx context.Context, enriched *dataset.Table, dimension string) GroupedKPIs {
	zero := GroupedKPIs{Dimension: dimension, Rows: []GroupKPI{}}
	return guard(ctx, e, "grouped_kpis", zero, func() (GroupedKPIs, error) {
		return e.ComputeGrouped(enriched, dimension)
	})
}

// ComputeGrouped aggregates revenue, profit, orders and units per distinct
// value of the dimension column. Ties in revenue keep first-seen order.
func (e *Engine) ComputeGrouped(enriched *dataset.Table, dimension string) (GroupedKPIs, error) {
	if err := requireEnriched(enriched); err != nil {
		return GroupedKPIs{}, err
	}
	if !enriched.Has(dimension) {
		return GroupedKPIs{}, fmt.Errorf("%w: %s", ErrMissingDimension, dimension)
	}
	n := enriched.Len()
	keys := enriched.Column(dimension)
	revenue := dataset.Floats(enriched.Column(ColRevenue), n, 0)
	profit := dataset.Floats(enriched.Column(ColProfit), n, 0)
	units := dataset.Floats(enriched.Column(ColUnits), n, 0)
	orderCol := e.resolver.Column(enriched, dataset.FieldOrderID)

	type acc struct {
		row    GroupKPI
		orders map[string]struct{}
	}
	var order []string
	groups := make(map[string]*acc)
	for i := 0; i < n; i++ {
		key := dataset.Text(keys[i])
		g, ok := groups[key]
		if !ok {
			g = &acc{row: GroupKPI{Key: key}, orders: make(map[string]struct{})}
			groups[key] = g
			order = append(order, key)
		}
		g.row.Revenue += revenue[i]
		g.row.Profit += profit[i]
		g.row.Units += units[i]
		if orderCol != nil {
			if id := dataset.Text(orderCol[i]); id != "" {
				g.orders[id] = struct{}{}
			}
		} else {
			g.row.Orders++
		}
	}

	rows := make([]GroupKPI, 0, len(order))
	for _, key := range order {
		g := groups[key]
		if orderCol != nil {
			g.row.Orders = len(g.orders)
		}
		g.row.AvgOrderValue = ratio(g.row.Revenue, float64(g.row.Orders))
		g.row.ProfitMarginPct = ratio(g.row.Profit, g.row.Revenue) * 100
		rows = append(rows, g.row)
	}
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].Revenue > rows[j].Revenue })
	return GroupedKPIs{Dimension: dimension, Rows: rows}, nil
}

// TopProducts returns the best-selling SKUs by revenue, at most limit rows
// (all rows when limit <= 0). It never fails.
func (e *Engine) TopProducts(ctx context.Context, enriched *dataset.Table, limit int) GroupedKPIs {
	zero := GroupedKPIs{Dimension: string(dataset.FieldSKU), Rows: []GroupKPI{}}
	return guard(ctx, e, "top_products", zero, func() (GroupedKPIs, error) {
		return e.ComputeTopProducts(enriched, limit)
	})
}

// ComputeTopProducts groups by the resolved SKU column.
func (e *Engine) ComputeTopProducts(enriched *dataset.Table, limit int) (GroupedKPIs, error) {
	col, ok := e.resolver.Resolve(enriched, dataset.FieldSKU)
	if !ok {
		return GroupedKPIs{}, fmt.Errorf("%w: sku", ErrMissingDimension)
	}
	g, err := e.ComputeGrouped(enriched, col)
	if err != nil {
		return GroupedKPIs{}, err
	}
	if limit > 0 && len(g.Rows) > limit {
		g.Rows = g.Rows[:limit]
	}
	return g, nil
}

func requireEnriched(t *dataset.Table) error {
	if t == nil {
		return ErrEmptyInput
	}
	for _, c := range []string{ColRevenue, ColProfit, ColUnits} {
		if !t.Has(c) {
			return fmt.Errorf("%w: missing %s", ErrNotEnriched, c)
		}
	}
	return nil
}

func distinct(values []any) int {
	seen := make(map[string]struct{}, len(values))
	for _, v := range values {
		if s := dataset.Text(v); s != "" {
			seen[s] = struct{}{}
		}
	}
	return len(seen)
}

// mean averages the numeric cells, skipping blanks and non-numbers.
func mean(values []any) float64 {
	var sum float64
	var count int
	for _, v := range values {
		if f, ok := dataset.ToFloat(v); ok {
			sum += f
			count++
		}
	}
	if count == 0 {
		return 0
	}
	return sum / float64(count)
}

func ratio(num, den float64) float64 {
	if den == 0 {
		return 0
	}
	return num / den
}
