package analytics

import (
	"context"

	"retailpulse/internal/dataset"
)

// StockoutRisk summarises inventory health. Zero-stock items are a subset of
// low-stock items.
type StockoutRisk struct {
	TotalItems int     `json:"total_items"`
	ZeroStock  int     `json:"zero_stock"`
	LowStock   int     `json:"low_stock"`
	RiskPct    float64 `json:"risk_pct"`
}

// StockoutRisk estimates stockout risk and never fails.
func (e *Engine) StockoutRisk(ctx context.Context, inventory *dataset.Table) StockoutRisk {
	return guard(ctx, e, "stockout_risk", StockoutRisk{}, func() (StockoutRisk, error) {
		return e.ComputeStockoutRisk(inventory)
	})
}

// ComputeStockoutRisk counts items at zero stock and at or below their
// reorder point. Missing stock counts as 0; a missing or blank reorder point
// uses the engine default. The inventory table is only read.
func (e *Engine) ComputeStockoutRisk(inventory *dataset.Table) (StockoutRisk, error) {
	var r StockoutRisk
	n := inventory.Len()
	if n == 0 {
		return r, nil
	}

	stock := dataset.Floats(e.resolver.Column(inventory, dataset.FieldStock), n, 0)
	reorderCol := e.resolver.Column(inventory, dataset.FieldReorderPoint)

	r.TotalItems = n
	for i := 0; i < n; i++ {
		reorder := e.reorderPoint
		if reorderCol != nil {
			if f, ok := dataset.ToFloat(reorderCol[i]); ok {
				reorder = f
			}
		}
		if stock[i] == 0 {
			r.ZeroStock++
		}
		if stock[i] <= reorder {
			r.LowStock++
		}
	}
	r.RiskPct = float64(r.LowStock) / float64(r.TotalItems) * 100
	return r, nil
}
