// Package analytics builds the enriched sales table and computes the
// dashboard metrics: overall KPIs, KPIs grouped by a dimension, a daily
// trend, top products and stockout risk.
//
// Every metric has two entry points. The Compute* methods are strict and
// return an error for programmatic callers. The short-named methods
// (Overall, Grouped, Trend, TopProducts, StockoutRisk) never fail: any error
// or panic is logged and replaced by a zeroed, well-formed result so a
// dashboard always has something to render.
package analytics
