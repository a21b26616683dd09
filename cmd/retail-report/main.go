// Command retail-report computes the dashboard figures for a set of local
// CSV or Excel files and writes the CSV and workbook reports.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"retailpulse/internal/app"
	"retailpulse/internal/campaign"
	"retailpulse/internal/config"
	apierrors "retailpulse/internal/errors"
	"retailpulse/internal/files"
	"retailpulse/internal/infrastructure"
	"retailpulse/internal/ingest"
	"retailpulse/internal/schema"
	"retailpulse/internal/services"
)

type options struct {
	configFile string
	inputDir   string
	outputDir  string
	files      map[schema.EntityType]string

	simulate bool
	campaign campaign.Params
}

func main() {
	opts := options{files: make(map[schema.EntityType]string)}

	sales := flag.String("sales", "", "sales file (.csv or .xlsx), required")
	stores := flag.String("stores", "", "stores file")
	products := flag.String("products", "", "products file")
	inventory := flag.String("inventory", "", "inventory file")
	flag.StringVar(&opts.inputDir, "dir", "", "directory to discover input files in (sales*.csv, stores*.xlsx, ...)")
	flag.StringVar(&opts.configFile, "config", "", "YAML config file (defaults to config.yaml lookup)")
	flag.StringVar(&opts.outputDir, "out", "", "output directory for reports (defaults to the configured reports dir)")

	flag.BoolVar(&opts.simulate, "simulate", false, "also run a campaign simulation")
	flag.Float64Var(&opts.campaign.DiscountPct, "discount", 10, "campaign discount percent")
	flag.Float64Var(&opts.campaign.PromoBudget, "budget", 10000, "promotion budget")
	flag.Float64Var(&opts.campaign.MarginFloor, "margin-floor", 15, "minimum acceptable net margin percent")
	flag.StringVar(&opts.campaign.City, "city", campaign.AllFilter, "target city")
	flag.StringVar(&opts.campaign.Channel, "channel", campaign.AllFilter, "target channel")
	flag.StringVar(&opts.campaign.Category, "category", campaign.AllFilter, "target category")
	flag.IntVar(&opts.campaign.CampaignDays, "days", 14, "campaign length in days")
	flag.Parse()

	for entity, path := range map[schema.EntityType]string{
		schema.Sales:     *sales,
		schema.Stores:    *stores,
		schema.Products:  *products,
		schema.Inventory: *inventory,
	} {
		if path != "" {
			opts.files[entity] = path
		}
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, opts, os.Stdout); err != nil {
		slog.Error("Report generation failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run(ctx context.Context, opts options, stdout io.Writer) error {
	cfg, err := loadConfig(opts.configFile)
	if err != nil {
		return err
	}

	logger := infrastructure.NewLoggerWithWriter(os.Stderr, cfg.Logging.Level, cfg.Logging.Development)
	slog.SetDefault(logger)

	outputDir := opts.outputDir
	if outputDir == "" {
		paths, err := cfg.Paths.ResolvePaths()
		if err != nil {
			return fmt.Errorf("resolve paths: %w", err)
		}
		outputDir = paths.ReportsDir
	}

	if opts.inputDir != "" {
		if err := discoverFiles(opts.inputDir, opts.files); err != nil {
			return err
		}
	}

	sources, err := collectSources(opts.files)
	if err != nil {
		return err
	}

	svc := app.NewAnalyticsService(cfg, outputDir, nil, nil, logger)

	bundle, err := svc.Ingest(ctx, sources, schema.Sales)
	if err != nil {
		return fmt.Errorf("ingest: %w", err)
	}

	overview := svc.Overview(ctx, bundle)
	printOverview(stdout, overview)

	var simulation *campaign.Result
	if opts.simulate {
		res := svc.Simulate(ctx, bundle, opts.campaign)
		simulation = &res
		printSimulation(stdout, res)
	}

	written, err := svc.Reports().Save(ctx, overview, simulation)
	if err != nil {
		return fmt.Errorf("save reports: %w", err)
	}

	logger.InfoContext(ctx, "Reports generated",
		slog.String("dir", outputDir),
		slog.Int("files", len(written)))
	fmt.Fprintf(stdout, "\nWrote %d files to %s\n", len(written), outputDir)
	return nil
}

func loadConfig(path string) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if path != "" {
		cfg, err = config.LoadFile(path)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, apierrors.NewConfigError("failed to load configuration", err)
	}
	return cfg, nil
}

// discoverFiles fills in entity files found in dir. Files named explicitly
// on the command line take precedence.
func discoverFiles(dir string, paths map[schema.EntityType]string) error {
	found, err := files.NewDiscovery("").MatchTables(dir, schema.DefaultRegistry().Types())
	if err != nil {
		return fmt.Errorf("discover input files: %w", err)
	}
	for entity, f := range found {
		if paths[entity] == "" {
			paths[entity] = f.Path
		}
	}
	return nil
}

// collectSources checks every input file up front so a typo fails before
// any parsing starts.
func collectSources(paths map[schema.EntityType]string) (map[schema.EntityType]ingest.Source, error) {
	if paths[schema.Sales] == "" {
		return nil, fmt.Errorf("-sales is required")
	}
	loader := ingest.NewLoader(nil, 0)
	sources := make(map[schema.EntityType]ingest.Source, len(paths))
	for entity, path := range paths {
		if err := loader.ValidateFile(path); err != nil {
			return nil, fmt.Errorf("%s: %w", entity, err)
		}
		if _, err := ingest.FormatFromName(path); err != nil {
			return nil, fmt.Errorf("%s: %w", entity, err)
		}
		sources[entity] = ingest.FileSource(path)
	}
	return sources, nil
}

func printOverview(w io.Writer, o services.Overview) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "KPI\tValue")
	fmt.Fprintf(tw, "Total revenue\t%.2f\n", o.KPIs.TotalRevenue)
	fmt.Fprintf(tw, "Total profit\t%.2f\n", o.KPIs.TotalProfit)
	fmt.Fprintf(tw, "Orders\t%d\n", o.KPIs.TotalOrders)
	fmt.Fprintf(tw, "Units\t%.0f\n", o.KPIs.TotalUnits)
	fmt.Fprintf(tw, "Avg order value\t%.2f\n", o.KPIs.AvgOrderValue)
	fmt.Fprintf(tw, "Profit margin %%\t%.2f\n", o.KPIs.ProfitMarginPct)
	fmt.Fprintf(tw, "Return rate %%\t%.2f\n", o.KPIs.ReturnRatePct)
	fmt.Fprintf(tw, "Avg discount %%\t%.2f\n", o.KPIs.AvgDiscountPct)
	if o.Stockout != nil {
		fmt.Fprintf(tw, "Stockout risk %%\t%.2f\n", o.Stockout.RiskPct)
	}
	_ = tw.Flush()

	if len(o.TopProducts.Rows) > 0 {
		fmt.Fprintln(w, "\nTop products")
		tw = tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "SKU\tRevenue\tUnits")
		for _, row := range o.TopProducts.Rows {
			fmt.Fprintf(tw, "%s\t%.2f\t%.0f\n", row.Key, row.Revenue, row.Units)
		}
		_ = tw.Flush()
	}
	if o.Trend.Synthetic {
		fmt.Fprintln(w, "\nNote: sales have no order dates; the daily trend uses placeholder timestamps.")
	}
}

func printSimulation(w io.Writer, res campaign.Result) {
	fmt.Fprintln(w, "\nCampaign simulation")
	if res.Outputs != nil {
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		fmt.Fprintf(tw, "Expected revenue\t%.2f\n", res.Outputs.ExpectedRevenue)
		fmt.Fprintf(tw, "Expected net profit\t%.2f\n", res.Outputs.ExpectedNetProfit)
		fmt.Fprintf(tw, "Expected margin %%\t%.2f\n", res.Outputs.ExpectedMarginPct)
		fmt.Fprintf(tw, "ROI %%\t%.2f\n", res.Outputs.ROI)
		_ = tw.Flush()
	}
	for _, warning := range res.Warnings {
		fmt.Fprintf(w, "  ! %s\n", warning)
	}
}
