package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"retailpulse/internal/campaign"
	apierrors "retailpulse/internal/errors"
	"retailpulse/internal/schema"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func fixtureOptions(t *testing.T) options {
	t.Helper()
	dir := t.TempDir()
	return options{
		configFile: writeFile(t, dir, "config.yaml", "logging:\n  level: error\n"),
		outputDir:  filepath.Join(dir, "reports"),
		files: map[schema.EntityType]string{
			schema.Sales: writeFile(t, dir, "sales.csv", "order_id,sku,store_id,qty,selling_price_aed,order_time\n"+
				"O1,A,S1,2,100,2024-03-01 10:00:00\n"+
				"O2,B,S2,1,50,2024-03-02 11:00:00\n"),
			schema.Stores:    writeFile(t, dir, "stores.csv", "store_id,city,channel\nS1,Dubai,App\nS2,Abu Dhabi,Web\n"),
			schema.Products:  writeFile(t, dir, "products.csv", "sku,category,unit_cost_aed\nA,Electronics,60\nB,Fashion,20\n"),
			schema.Inventory: writeFile(t, dir, "inventory.csv", "sku,store_id,stock_on_hand,reorder_point\nA,S1,0,5\nB,S2,20,5\n"),
		},
		campaign: campaign.Params{
			DiscountPct:  10,
			PromoBudget:  1000,
			MarginFloor:  15,
			City:         campaign.AllFilter,
			Channel:      campaign.AllFilter,
			Category:     campaign.AllFilter,
			CampaignDays: 14,
		},
	}
}

func TestRun(t *testing.T) {
	opts := fixtureOptions(t)
	opts.simulate = true

	var out bytes.Buffer
	require.NoError(t, run(context.Background(), opts, &out))

	assert.Contains(t, out.String(), "Total revenue")
	assert.Contains(t, out.String(), "250.00")
	assert.Contains(t, out.String(), "Campaign simulation")

	for _, name := range []string{"kpis.csv", "kpis_by_city.csv", "daily_trend.csv", "stockout_risk.csv", "overview.xlsx", "campaign.xlsx"} {
		assert.FileExists(t, filepath.Join(opts.outputDir, name))
	}
}

func TestRun_WithoutSimulation(t *testing.T) {
	opts := fixtureOptions(t)

	var out bytes.Buffer
	require.NoError(t, run(context.Background(), opts, &out))

	assert.NotContains(t, out.String(), "Campaign simulation")
	assert.NoFileExists(t, filepath.Join(opts.outputDir, "campaign.xlsx"))
}

func TestCollectSources(t *testing.T) {
	dir := t.TempDir()
	sales := writeFile(t, dir, "sales.csv", "order_id\n1\n")

	tests := []struct {
		name    string
		files   map[schema.EntityType]string
		wantErr string
	}{
		{"sales required", map[schema.EntityType]string{schema.Stores: sales}, "-sales is required"},
		{"missing file", map[schema.EntityType]string{schema.Sales: filepath.Join(dir, "nope.csv")}, "does not exist"},
		{"directory", map[schema.EntityType]string{schema.Sales: dir}, "is a directory"},
		{"unsupported extension", map[schema.EntityType]string{schema.Sales: writeFile(t, dir, "sales.json", "{}")}, "unsupported file format"},
		{"ok", map[schema.EntityType]string{schema.Sales: sales}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sources, err := collectSources(tt.files)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Len(t, sources, 1)
		})
	}
}

func TestRun_DiscoversInputDirectory(t *testing.T) {
	opts := fixtureOptions(t)
	dir := filepath.Dir(opts.files[schema.Sales])
	opts.inputDir = dir
	opts.files = map[schema.EntityType]string{
		schema.Products: opts.files[schema.Products],
	}

	var out bytes.Buffer
	require.NoError(t, run(context.Background(), opts, &out))
	assert.Contains(t, out.String(), "250.00")
	assert.FileExists(t, filepath.Join(opts.outputDir, "stockout_risk.csv"))
}

func TestRun_InvalidConfig(t *testing.T) {
	opts := fixtureOptions(t)
	opts.configFile = writeFile(t, t.TempDir(), "config.yaml", "logging: [level\n")

	var out bytes.Buffer
	err := run(context.Background(), opts, &out)
	require.Error(t, err)

	var appErr *apierrors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, apierrors.ErrTypeConfig, appErr.Type)
	assert.Empty(t, out.String())
}
