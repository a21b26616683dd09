package analytics

import (
	"context"
	"math"
	"sort"
	"strings"
	"time"

	"retailpulse/internal/dataset"
)

const dateLayout = "2006-01-02"

var timeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
	"2006/01/02 15:04:05",
	"2006/01/02",
	"1/2/2006 15:04:05",
	"1/2/2006 15:04",
	"1/2/2006",
	"02-Jan-2006",
	"Jan 2, 2006",
}

// TrendPoint aggregates one calendar day.
type TrendPoint struct {
	Date    string  `json:"date"`
	Revenue float64 `json:"revenue"`
	Profit  float64 `json:"profit"`
	Units   float64 `json:"units"`
	Orders  int     `json:"orders"`
}

// Trend is a daily series sorted by date. Synthetic is set when the table had
// no date column and hourly placeholder timestamps ending at the current time
// were used instead; such a series carries no real temporal information.
type Trend struct {
	Points    []TrendPoint `json:"points"`
	Synthetic bool         `json:"synthetic"`
	Dropped   int          `json:"dropped_rows"`
}

// Table renders the series with a leading date column.
func (tr Trend) Table() *dataset.Table {
	n := len(tr.Points)
	date := make([]any, n)
	rev := make([]any, n)
	prof := make([]any, n)
	units := make([]any, n)
	orders := make([]any, n)
	for i, p := range tr.Points {
		date[i], rev[i], prof[i], units[i], orders[i] = p.Date, p.Revenue, p.Profit, p.Units, p.Orders
	}
	return dataset.NewBuilder(n).
		Add("date", date...).
		Add("revenue", rev...).
		Add("profit", prof...).
		Add("units", units...).
		Add("orders", orders...).
		MustBuild()
}

// Trend computes the daily series and never fails.
func (e *Engine) Trend(ctx context.Context, enriched *dataset.Table) Trend {
	return guard(ctx, e, "daily_trend", Trend{Points: []TrendPoint{}}, func() (Trend, error) {
		return e.ComputeTrend(enriched)
	})
}

// ComputeTrend groups revenue, profit, units and orders by calendar day.
// Rows whose date does not parse are dropped from the series only.
func (e *Engine) ComputeTrend(enriched *dataset.Table) (Trend, error) {
	if err := requireEnriched(enriched); err != nil {
		return Trend{}, err
	}
	n := enriched.Len()
	out := Trend{Points: []TrendPoint{}}
	if n == 0 {
		return out, nil
	}

	dates := make([]time.Time, n)
	valid := make([]bool, n)
	if col := e.resolver.Column(enriched, dataset.FieldOrderDate); col != nil {
		for i, v := range col {
			dates[i], valid[i] = ParseTime(v)
		}
	} else {
		out.Synthetic = true
		end := e.now()
		for i := range dates {
			dates[i] = end.Add(-time.Duration(n-1-i) * time.Hour)
			valid[i] = true
		}
	}

	revenue := dataset.Floats(enriched.Column(ColRevenue), n, 0)
	profit := dataset.Floats(enriched.Column(ColProfit), n, 0)
	units := dataset.Floats(enriched.Column(ColUnits), n, 0)
	orderCol := e.resolver.Column(enriched, dataset.FieldOrderID)

	points := make(map[string]*TrendPoint)
	orders := make(map[string]map[string]struct{})
	for i := 0; i < n; i++ {
		if !valid[i] {
			out.Dropped++
			continue
		}
		day := dates[i].Format(dateLayout)
		p, ok := points[day]
		if !ok {
			p = &TrendPoint{Date: day}
			points[day] = p
			orders[day] = make(map[string]struct{})
		}
		p.Revenue += revenue[i]
		p.Profit += profit[i]
		p.Units += units[i]
		if orderCol != nil {
			if id := dataset.Text(orderCol[i]); id != "" {
				orders[day][id] = struct{}{}
			}
		}
	}

	for day, p := range points {
		if orderCol != nil {
			p.Orders = len(orders[day])
		} else {
			p.Orders = int(math.Round(p.Units))
		}
		out.Points = append(out.Points, *p)
	}
	sort.Slice(out.Points, func(i, j int) bool { return out.Points[i].Date < out.Points[j].Date })
	return out, nil
}

// ParseTime parses a date or timestamp cell using the supported layouts.
func ParseTime(v any) (time.Time, bool) {
	switch x := v.(type) {
	case time.Time:
		return x, !x.IsZero()
	case string:
		s := strings.TrimSpace(x)
		if s == "" {
			return time.Time{}, false
		}
		for _, layout := range timeLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				return t, true
			}
		}
	}
	return time.Time{}, false
}
