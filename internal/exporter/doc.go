// Package exporter writes analytics results as CSV files and Excel
// workbooks.
//
// CSVWriter handles single tables (grouped KPIs, trends) with a UTF-8 BOM
// for Excel compatibility and supports streaming for large outputs.
// WorkbookWriter lays several tables out as worksheets; CampaignSheets and
// KPIsTable shape simulator and KPI results for it.
//
// Example usage:
//
//	w := exporter.NewCSVWriter("data/reports", logger)
//	err := w.WriteTable("kpis_by_city.csv", grouped.Table())
//
//	wb := exporter.NewWorkbookWriter("data/reports", logger)
//	err = wb.Write("campaign.xlsx", exporter.CampaignSheets(result)...)
package exporter
