package services

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"

	"retailpulse/internal/campaign"
	"retailpulse/internal/dataset"
	apierrors "retailpulse/internal/errors"
	"retailpulse/internal/exporter"
	"retailpulse/internal/infrastructure"
)

// ReportWriter renders analytics results as CSV and XLSX, either streamed to
// a writer or saved under the reports directory.
type ReportWriter struct {
	csv      *exporter.CSVWriter
	workbook *exporter.WorkbookWriter
	metrics  *infrastructure.BusinessMetrics
	logger   *slog.Logger
}

// NewReportWriter creates a report writer. Relative file names resolve
// against reportsDir.
func NewReportWriter(reportsDir string, metrics *infrastructure.BusinessMetrics, logger *slog.Logger) *ReportWriter {
	if logger == nil {
		logger = slog.Default()
	}
	return &ReportWriter{
		csv:      exporter.NewCSVWriter(reportsDir, logger),
		workbook: exporter.NewWorkbookWriter(reportsDir, logger),
		metrics:  metrics,
		logger:   logger.With(slog.String("component", "reports")),
	}
}

// OverviewSheets lays out a dashboard overview as workbook sheets.
func OverviewSheets(o Overview) []exporter.Sheet {
	sheets := []exporter.Sheet{
		{Name: "KPIs", Table: exporter.KPIsTable(o.KPIs)},
		{Name: "By City", Table: o.ByCity.Table()},
		{Name: "By Channel", Table: o.ByChannel.Table()},
		{Name: "By Category", Table: o.ByCategory.Table()},
		{Name: "Daily Trend", Table: o.Trend.Table()},
		{Name: "Top Products", Table: o.TopProducts.Table()},
	}
	if o.Stockout != nil {
		sheets = append(sheets, exporter.Sheet{Name: "Stockout Risk", Table: exporter.StockoutTable(*o.Stockout)})
	}
	return sheets
}

// WriteCSV streams t as CSV.
func (w *ReportWriter) WriteCSV(ctx context.Context, out io.Writer, t *dataset.Table) error {
	if err := exporter.WriteTableTo(out, t); err != nil {
		return apierrors.NewExportError("csv", err)
	}
	infrastructure.RecordReport(ctx, w.metrics, "csv")
	return nil
}

// WriteWorkbook streams the sheets as an XLSX workbook.
func (w *ReportWriter) WriteWorkbook(ctx context.Context, out io.Writer, sheets ...exporter.Sheet) error {
	if err := exporter.WriteWorkbookTo(out, sheets...); err != nil {
		return apierrors.NewExportError("xlsx", err)
	}
	infrastructure.RecordReport(ctx, w.metrics, "xlsx")
	return nil
}

type reportFile struct {
	name  string
	table *dataset.Table
}

// Save writes the overview as one CSV per section plus an overview
// workbook, and the campaign workbook when res is not nil. It returns the
// written file names.
func (w *ReportWriter) Save(ctx context.Context, o Overview, res *campaign.Result) ([]string, error) {
	csvs := []reportFile{
		{"kpis.csv", exporter.KPIsTable(o.KPIs)},
		{"kpis_by_city.csv", o.ByCity.Table()},
		{"kpis_by_channel.csv", o.ByChannel.Table()},
		{"kpis_by_category.csv", o.ByCategory.Table()},
		{"daily_trend.csv", o.Trend.Table()},
		{"top_products.csv", o.TopProducts.Table()},
	}
	if o.Stockout != nil {
		csvs = append(csvs, reportFile{"stockout_risk.csv", exporter.StockoutTable(*o.Stockout)})
	}

	var written []string
	for _, c := range csvs {
		if err := w.csv.WriteTable(c.name, c.table); err != nil {
			return written, apierrors.NewExportError("csv", err).WithContext("file", c.name)
		}
		infrastructure.RecordReport(ctx, w.metrics, "csv")
		written = append(written, c.name)
	}

	if err := w.workbook.Write("overview.xlsx", OverviewSheets(o)...); err != nil {
		return written, apierrors.NewExportError("xlsx", err).WithContext("file", "overview.xlsx")
	}
	infrastructure.RecordReport(ctx, w.metrics, "xlsx")
	written = append(written, "overview.xlsx")

	if res != nil {
		if err := w.workbook.Write("campaign.xlsx", exporter.CampaignSheets(*res)...); err != nil {
			return written, apierrors.NewExportError("xlsx", err).WithContext("file", "campaign.xlsx")
		}
		infrastructure.RecordReport(ctx, w.metrics, "xlsx")
		written = append(written, "campaign.xlsx")
	}

	w.logger.InfoContext(ctx, "Reports saved",
		slog.Int("files", len(written)),
		slog.String("last", filepath.Base(written[len(written)-1])))
	return written, nil
}
