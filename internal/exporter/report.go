package exporter

import (
	"retailpulse/internal/analytics"
	"retailpulse/internal/campaign"
	"retailpulse/internal/dataset"
)

// metric is a label/value pair for two-column summary sheets.
type metric struct {
	name  string
	value any
}

func metricsTable(ms []metric) *dataset.Table {
	names := make([]any, len(ms))
	values := make([]any, len(ms))
	for i, m := range ms {
		names[i], values[i] = m.name, m.value
	}
	return dataset.NewBuilder(len(ms)).Add("metric", names...).Add("value", values...).MustBuild()
}

// KPIsTable renders overall KPIs as metric/value rows.
func KPIsTable(k analytics.KPIs) *dataset.Table {
	return metricsTable([]metric{
		{"total_revenue", k.TotalRevenue},
		{"total_profit", k.TotalProfit},
		{"total_orders", k.TotalOrders},
		{"total_units", k.TotalUnits},
		{"avg_order_value", k.AvgOrderValue},
		{"profit_margin_pct", k.ProfitMarginPct},
		{"return_rate_pct", k.ReturnRatePct},
		{"avg_discount_pct", k.AvgDiscountPct},
	})
}

// StockoutTable renders stockout risk as metric/value rows.
func StockoutTable(r analytics.StockoutRisk) *dataset.Table {
	return metricsTable([]metric{
		{"total_items", r.TotalItems},
		{"zero_stock", r.ZeroStock},
		{"low_stock", r.LowStock},
		{"risk_pct", r.RiskPct},
	})
}

// CampaignSheets lays out a simulation result as Outputs, Comparison and
// Warnings sheets. Sentinel results produce only the Warnings sheet.
func CampaignSheets(res campaign.Result) []Sheet {
	var sheets []Sheet
	if o := res.Outputs; o != nil {
		sheets = append(sheets, Sheet{Name: "Outputs", Table: metricsTable([]metric{
			{"baseline_revenue", o.BaselineRevenue},
			{"baseline_profit", o.BaselineProfit},
			{"baseline_orders", o.BaselineOrders},
			{"baseline_units", o.BaselineUnits},
			{"elasticity", o.Elasticity},
			{"demand_lift_pct", o.DemandLiftPct},
			{"expected_units", o.ExpectedUnits},
			{"discounted_price", o.DiscountedPrice},
			{"expected_revenue", o.ExpectedRevenue},
			{"promo_cost", o.PromoCost},
			{"fulfillment_cost", o.FulfillmentCost},
			{"cogs", o.COGS},
			{"expected_gross_profit", o.ExpectedGrossProfit},
			{"expected_net_profit", o.ExpectedNetProfit},
			{"expected_margin_pct", o.ExpectedMarginPct},
			{"roi", o.ROI},
		})})
	}
	if c := res.Comparison; c != nil {
		sheets = append(sheets, Sheet{Name: "Comparison", Table: metricsTable([]metric{
			{"baseline_revenue", c.BaselineRevenue},
			{"baseline_profit", c.BaselineProfit},
			{"baseline_orders", c.BaselineOrders},
			{"projected_orders", c.ProjectedOrders},
			{"revenue_change_pct", c.RevenueChangePct},
			{"profit_change_pct", c.ProfitChangePct},
			{"orders_change_pct", c.OrdersChangePct},
		})})
	}
	warnings := make([]any, len(res.Warnings))
	for i, w := range res.Warnings {
		warnings[i] = w
	}
	sheets = append(sheets, Sheet{
		Name:  "Warnings",
		Table: dataset.NewBuilder(len(warnings)).Add("warning", warnings...).MustBuild(),
	})
	return sheets
}
