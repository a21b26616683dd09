package analytics

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"retailpulse/internal/dataset"
	"retailpulse/internal/shared/testutil"
)

func salesFixture() *dataset.Table {
	return dataset.FromRecords(
		[]string{"order_id", "sku", "store_id", "qty", "selling_price_aed", "discount_pct", "is_returned", "order_time"},
		[][]string{
			{"O1", "A", "S1", "2", "100", "10", "0", "2024-03-02 10:00:00"},
			{"O1", "B", "S1", "1", "50", "0", "0", "2024-03-02 10:00:00"},
			{"O2", "A", "S2", "3", "100", "20", "1", "2024-03-01 09:30:00"},
			{"O3", "C", "S3", "1", "abc", "", "false", "not a date"},
		},
	)
}

func productsFixture() *dataset.Table {
	return dataset.FromRecords(
		[]string{"sku", "category", "unit_cost_aed"},
		[][]string{
			{"A", "Electronics", "60"},
			{"B", "Fashion", "20"},
			{"A", "Duplicate", "999"},
		},
	)
}

func storesFixture() *dataset.Table {
	return dataset.FromRecords(
		[]string{"store_id", "city", "channel"},
		[][]string{
			{"S1", "Dubai", "Retail"},
			{"S2", "Abu Dhabi", "Online"},
		},
	)
}

func newTestEngine() *Engine {
	return NewEngine(Options{
		Now: func() time.Time { return time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC) },
	})
}

func enrichedFixture(t *testing.T) *dataset.Table {
	t.Helper()
	out, err := newTestEngine().Enrich(salesFixture(), storesFixture(), productsFixture())
	require.NoError(t, err)
	return out
}

func sumColumn(t *dataset.Table, name string) float64 {
	var s float64
	for _, f := range dataset.Floats(t.Column(name), t.Len(), 0) {
		s += f
	}
	return s
}

func TestEnrich_JoinsAndDefaults(t *testing.T) {
	sales := salesFixture()
	before := sales.Columns()

	out := enrichedFixture(t)

	require.Equal(t, sales.Len(), out.Len(), "left join keeps row count")
	assert.Equal(t, before, sales.Columns(), "input not mutated")
	assert.False(t, sales.Has(ColRevenue))

	assert.Equal(t, []any{60.0, 20.0, 60.0, 0.0}, out.Column(ColCost))
	assert.Equal(t, []any{"Electronics", "Fashion", "Electronics", Unknown}, out.Column(ColCategory))
	assert.Equal(t, []any{"Dubai", "Dubai", "Abu Dhabi", Unknown}, out.Column(ColCity))
	assert.Equal(t, []any{"Retail", "Retail", "Online", Unknown}, out.Column(ColChannel))
	assert.Equal(t, []any{200.0, 50.0, 300.0, 0.0}, out.Column(ColRevenue))
	assert.Equal(t, []any{80.0, 30.0, 120.0, 0.0}, out.Column(ColProfit))
}

func TestEnrich_RevenueAndProfitIdentities(t *testing.T) {
	out := enrichedFixture(t)

	var wantRev, wantProfit float64
	units := dataset.Floats(out.Column(ColUnits), out.Len(), 0)
	price := dataset.Floats(out.Column(ColUnitPrice), out.Len(), 0)
	cost := dataset.Floats(out.Column(ColCost), out.Len(), 0)
	for i := range units {
		wantRev += units[i] * price[i]
		wantProfit += units[i] * (price[i] - cost[i])
	}
	assert.Equal(t, wantRev, sumColumn(out, ColRevenue))
	assert.Equal(t, wantProfit, sumColumn(out, ColProfit))
}

func TestEnrich_SkipsJoinsWithoutKeys(t *testing.T) {
	sales := dataset.FromRecords(
		[]string{"price", "cost", "category"},
		[][]string{{"10", "4", "Home"}, {"20", "", ""}},
	)

	out, err := newTestEngine().Enrich(sales, storesFixture(), productsFixture())
	require.NoError(t, err)

	assert.Equal(t, []any{1.0, 1.0}, out.Column(ColUnits), "quantity defaults to 1")
	assert.Equal(t, []any{4.0, 0.0}, out.Column(ColCost), "own cost column kept")
	assert.Equal(t, []any{"Home", Unknown}, out.Column(ColCategory))
	assert.Equal(t, []any{Unknown, Unknown}, out.Column(ColCity))
	assert.Equal(t, []any{6.0, 20.0}, out.Column(ColProfit))
}

func TestEnrich_MatchesNumericKeys(t *testing.T) {
	sales := dataset.NewBuilder(1).Add("sku", 101.0).Add("qty", 1).Add("price", 5).MustBuild()
	products := dataset.FromRecords([]string{"sku", "category"}, [][]string{{"101", "Grocery"}})

	out, err := newTestEngine().Enrich(sales, nil, products)
	require.NoError(t, err)
	assert.Equal(t, "Grocery", out.Value(ColCategory, 0))
}

func TestEnrich_CanonicalColumnsReplaceSameNamedInputs(t *testing.T) {
	sales := dataset.FromRecords(
		[]string{"sku", "qty", "selling_price_aed", "unit_price"},
		[][]string{{"A", "2", "100", "80"}},
	)

	out, err := newTestEngine().Enrich(sales, nil, productsFixture())
	require.NoError(t, err)

	assert.Equal(t, 100.0, out.Value(ColUnitPrice, 0), "resolved selling price wins")
	assert.Equal(t, 200.0, out.Value(ColRevenue, 0))
	assert.Equal(t, "80", sales.Value("unit_price", 0), "input keeps its own column")
}

func TestEnrich_EmptySales(t *testing.T) {
	_, err := newTestEngine().Enrich(nil, nil, nil)
	assert.ErrorIs(t, err, ErrEmptyInput)
}

func TestComputeOverall(t *testing.T) {
	e := newTestEngine()
	k, err := e.ComputeOverall(enrichedFixture(t))
	require.NoError(t, err)

	assert.Equal(t, 550.0, k.TotalRevenue)
	assert.Equal(t, 230.0, k.TotalProfit)
	assert.Equal(t, 3, k.TotalOrders)
	assert.Equal(t, 7.0, k.TotalUnits)
	assert.InDelta(t, k.TotalRevenue, k.AvgOrderValue*float64(k.TotalOrders), 1e-9)
	assert.InDelta(t, 230.0/550.0*100, k.ProfitMarginPct, 1e-9)
	assert.InDelta(t, 25.0, k.ReturnRatePct, 1e-9)
	assert.InDelta(t, 10.0, k.AvgDiscountPct, 1e-9)
}

func TestComputeOverall_NoOrderColumnAndZeroRevenue(t *testing.T) {
	e := newTestEngine()
	sales := dataset.FromRecords([]string{"sku", "qty"}, [][]string{{"A", "2"}, {"B", "1"}})
	enriched, err := e.Enrich(sales, nil, nil)
	require.NoError(t, err)

	k, err := e.ComputeOverall(enriched)
	require.NoError(t, err)
	assert.Equal(t, 2, k.TotalOrders)
	assert.Zero(t, k.TotalRevenue)
	assert.Zero(t, k.ProfitMarginPct)
	assert.Zero(t, k.ReturnRatePct)
}

func TestComputeOverall_RequiresEnrichedTable(t *testing.T) {
	_, err := newTestEngine().ComputeOverall(salesFixture())
	assert.ErrorIs(t, err, ErrNotEnriched)

	k := newTestEngine().Overall(context.Background(), salesFixture())
	assert.Equal(t, KPIs{}, k)
}

func TestComputeGrouped(t *testing.T) {
	e := newTestEngine()
	enriched := enrichedFixture(t)
	overall, err := e.ComputeOverall(enriched)
	require.NoError(t, err)

	for _, dim := range []string{ColCity, ColChannel, ColCategory} {
		t.Run(dim, func(t *testing.T) {
			g, err := e.ComputeGrouped(enriched, dim)
			require.NoError(t, err)

			var total float64
			for i, r := range g.Rows {
				total += r.Revenue
				if i > 0 {
					assert.GreaterOrEqual(t, g.Rows[i-1].Revenue, r.Revenue)
				}
			}
			assert.Equal(t, overall.TotalRevenue, total)
		})
	}

	g, err := e.ComputeGrouped(enriched, ColCity)
	require.NoError(t, err)
	require.Len(t, g.Rows, 3)
	assert.Equal(t, GroupKPI{Key: "Abu Dhabi", Revenue: 300, Profit: 120, Orders: 1, Units: 3, AvgOrderValue: 300, ProfitMarginPct: 40}, g.Rows[0])
	assert.Equal(t, "Dubai", g.Rows[1].Key)
	assert.Equal(t, 1, g.Rows[1].Orders, "O1 spans two rows")
}

func TestComputeGrouped_StableTiesAndRowOrders(t *testing.T) {
	e := newTestEngine()
	sales := dataset.FromRecords(
		[]string{"qty", "price", "region"},
		[][]string{{"1", "10", "north"}, {"1", "10", "south"}, {"1", "10", "north"}, {"2", "10", "south"}, {"1", "0", "east"}},
	)
	enriched, err := e.Enrich(sales, nil, nil)
	require.NoError(t, err)

	g, err := e.ComputeGrouped(enriched, "region")
	require.NoError(t, err)
	assert.Equal(t, []string{"south", "north", "east"}, keysOf(g))
	assert.Equal(t, 2, g.Rows[0].Orders)

	tie := dataset.FromRecords([]string{"qty", "price", "region"}, [][]string{{"1", "5", "b"}, {"1", "5", "a"}})
	enriched, err = e.Enrich(tie, nil, nil)
	require.NoError(t, err)
	g, err = e.ComputeGrouped(enriched, "region")
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "a"}, keysOf(g))
}

func TestGrouped_MissingDimension(t *testing.T) {
	e := newTestEngine()
	_, err := e.ComputeGrouped(enrichedFixture(t), "brand")
	assert.ErrorIs(t, err, ErrMissingDimension)

	g := e.Grouped(context.Background(), enrichedFixture(t), "brand")
	assert.Equal(t, "brand", g.Dimension)
	assert.Empty(t, g.Rows)
	assert.NotNil(t, g.Rows)
}

func TestTopProducts(t *testing.T) {
	e := newTestEngine()
	g := e.TopProducts(context.Background(), enrichedFixture(t), 1)

	require.Len(t, g.Rows, 1)
	assert.Equal(t, "sku", g.Dimension)
	assert.Equal(t, "A", g.Rows[0].Key)
	assert.Equal(t, 500.0, g.Rows[0].Revenue)

	all := e.TopProducts(context.Background(), enrichedFixture(t), 0)
	assert.Len(t, all.Rows, 3)
}

func TestComputeTrend(t *testing.T) {
	tr, err := newTestEngine().ComputeTrend(enrichedFixture(t))
	require.NoError(t, err)

	assert.False(t, tr.Synthetic)
	assert.Equal(t, 1, tr.Dropped)
	require.Len(t, tr.Points, 2)
	assert.Equal(t, TrendPoint{Date: "2024-03-01", Revenue: 300, Profit: 120, Units: 3, Orders: 1}, tr.Points[0])
	assert.Equal(t, TrendPoint{Date: "2024-03-02", Revenue: 250, Profit: 110, Units: 3, Orders: 1}, tr.Points[1])
}

func TestComputeTrend_SyntheticTimeline(t *testing.T) {
	e := newTestEngine()
	sales := dataset.FromRecords([]string{"qty", "price"}, [][]string{{"1", "1"}, {"2", "1"}, {"3", "1"}})
	enriched, err := e.Enrich(sales, nil, nil)
	require.NoError(t, err)

	tr, err := e.ComputeTrend(enriched)
	require.NoError(t, err)
	assert.True(t, tr.Synthetic)
	require.Len(t, tr.Points, 1)
	assert.Equal(t, "2024-05-10", tr.Points[0].Date)
	assert.Equal(t, 6, tr.Points[0].Orders, "orders fall back to units")
}

func TestComputeTrend_Empty(t *testing.T) {
	e := newTestEngine()
	sales := dataset.FromRecords([]string{"qty", "order_date"}, [][]string{{"1", "garbage"}})
	enriched, err := e.Enrich(sales, nil, nil)
	require.NoError(t, err)

	tr := e.Trend(context.Background(), enriched)
	assert.NotNil(t, tr.Points)
	assert.Empty(t, tr.Points)
	assert.Equal(t, 1, tr.Dropped)

	assert.Equal(t, 0, tr.Table().Len())
	assert.Equal(t, []string{"date", "revenue", "profit", "units", "orders"}, tr.Table().Columns())
}

func TestComputeStockoutRisk(t *testing.T) {
	inv := dataset.FromRecords(
		[]string{"sku", "store_id", "stock_on_hand", "reorder_point"},
		[][]string{
			{"A", "S1", "0", "5"},
			{"B", "S1", "3", "5"},
			{"C", "S1", "50", ""},
			{"D", "S1", "", "2"},
		},
	)
	before := inv.Columns()

	r, err := newTestEngine().ComputeStockoutRisk(inv)
	require.NoError(t, err)
	assert.Equal(t, StockoutRisk{TotalItems: 4, ZeroStock: 2, LowStock: 3, RiskPct: 75}, r)
	assert.Equal(t, before, inv.Columns())
}

func TestComputeStockoutRisk_Defaults(t *testing.T) {
	inv := dataset.FromRecords([]string{"sku"}, [][]string{{"A"}, {"B"}})
	r := newTestEngine().StockoutRisk(context.Background(), inv)
	assert.Equal(t, StockoutRisk{TotalItems: 2, ZeroStock: 2, LowStock: 2, RiskPct: 100}, r)

	inv = dataset.FromRecords([]string{"stock"}, [][]string{{"10"}, {"11"}})
	r = newTestEngine().StockoutRisk(context.Background(), inv)
	assert.Equal(t, 1, r.LowStock, "default reorder point is 10")

	assert.Equal(t, StockoutRisk{}, newTestEngine().StockoutRisk(context.Background(), nil))
}

func TestGuard_RecoversPanics(t *testing.T) {
	e := newTestEngine()
	got := guard(context.Background(), e, "boom", 42, func() (int, error) {
		panic("unexpected")
	})
	assert.Equal(t, 42, got)
}

func TestOnFaultReportsSwallowedErrors(t *testing.T) {
	var ops []string
	logger, logs := testutil.NewTestLogger(t)
	e := NewEngine(Options{
		Logger: logger,
		OnFault: func(_ context.Context, op string, err error) {
			ops = append(ops, op)
			assert.ErrorIs(t, err, ErrNotEnriched)
		},
	})

	raw := dataset.FromRecords([]string{"sku"}, [][]string{{"A"}})
	assert.Equal(t, KPIs{}, e.Overall(context.Background(), raw))
	assert.Equal(t, []string{"overall_kpis"}, ops)

	rec := testutil.AssertLogged(t, logs, slog.LevelError, "Computation failed")
	assert.Equal(t, "overall_kpis", rec.Attrs["operation"])
}

func keysOf(g GroupedKPIs) []string {
	out := make([]string, len(g.Rows))
	for i, r := range g.Rows {
		out[i] = r.Key
	}
	return out
}
