package campaign

import "strings"

// AllFilter disables a target filter.
const AllFilter = "All"

// Config holds the simulator's business constants.
type Config struct {
	// HistoryWindowDays is the span the supplied sales data is assumed to cover.
	HistoryWindowDays float64
	// PromoSpendRate is the share of projected revenue spent on promotion
	// before the budget cap applies.
	PromoSpendRate         float64
	FulfillmentCostPerUnit float64
	// BrandErosionDiscountPct is the discount above which a warning fires.
	BrandErosionDiscountPct float64
	DefaultElasticity       float64
	Elasticities            map[string]float64
}

// DefaultElasticities maps known categories to demand elasticity.
func DefaultElasticities() map[string]float64 {
	return map[string]float64{
		"Electronics": 1.8,
		"Fashion":     2.0,
		"Grocery":     1.2,
		"Beauty":      1.6,
		"Home":        1.4,
		"Sports":      1.7,
	}
}

// DefaultConfig returns the standard simulator constants.
func DefaultConfig() Config {
	return Config{
		HistoryWindowDays:       30,
		PromoSpendRate:          0.10,
		FulfillmentCostPerUnit:  2,
		BrandErosionDiscountPct: 30,
		DefaultElasticity:       1.5,
		Elasticities:            DefaultElasticities(),
	}
}

// withDefaults fills unset fields. Overrides in Elasticities are merged on
// top of the built-in table.
func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.HistoryWindowDays <= 0 {
		c.HistoryWindowDays = def.HistoryWindowDays
	}
	if c.PromoSpendRate <= 0 {
		c.PromoSpendRate = def.PromoSpendRate
	}
	if c.FulfillmentCostPerUnit <= 0 {
		c.FulfillmentCostPerUnit = def.FulfillmentCostPerUnit
	}
	if c.BrandErosionDiscountPct <= 0 {
		c.BrandErosionDiscountPct = def.BrandErosionDiscountPct
	}
	if c.DefaultElasticity <= 0 {
		c.DefaultElasticity = def.DefaultElasticity
	}
	merged := def.Elasticities
	for k, v := range c.Elasticities {
		merged[k] = v
	}
	c.Elasticities = merged
	return c
}

// Elasticity returns the coefficient for a category. The "All" filter and
// unknown categories use the default. Lookup is exact first, then
// case-insensitive.
func (c Config) Elasticity(category string) float64 {
	if isAll(category) {
		return c.DefaultElasticity
	}
	if e, ok := c.Elasticities[category]; ok {
		return e
	}
	for k, e := range c.Elasticities {
		if strings.EqualFold(k, category) {
			return e
		}
	}
	return c.DefaultElasticity
}

func isAll(v string) bool {
	v = strings.TrimSpace(v)
	return v == "" || v == AllFilter
}
