package analytics

import (
	"fmt"

	"retailpulse/internal/dataset"
)

// Enrich left-joins sales with products on SKU and with stores on store id
// and adds the canonical cost, category, city, channel, units, unit_price,
// revenue and profit columns. The sales table is not modified and the result
// has exactly as many rows as sales.
//
// A join is skipped when either side lacks the key column. Joined values take
// precedence over same-named sales columns; rows without a match fall back to
// the sales table's own column, then to 0 or Unknown.
//
// The canonical columns replace any sales column of the same name in the
// result. A sales table carrying both selling_price_aed and unit_price gets
// unit_price rewritten to the resolved selling price; the input keeps its
// own values.
func (e *Engine) Enrich(sales, stores, products *dataset.Table) (*dataset.Table, error) {
	if sales == nil || len(sales.Columns()) == 0 {
		return nil, fmt.Errorf("sales: %w", ErrEmptyInput)
	}
	out := sales.Clone()
	n := out.Len()

	cost := e.joined(sales, products, dataset.FieldSKU, dataset.FieldCost)
	category := e.joined(sales, products, dataset.FieldSKU, dataset.FieldCategory)
	city := e.joined(sales, stores, dataset.FieldStoreID, dataset.FieldCity)
	channel := e.joined(sales, stores, dataset.FieldStoreID, dataset.FieldChannel)

	// Coercion runs on the merged columns, after every join.
	units := dataset.Floats(e.resolver.Column(sales, dataset.FieldQuantity), n, 1)
	price := dataset.Floats(e.resolver.Column(sales, dataset.FieldPrice), n, 0)
	costs := dataset.Floats(cost, n, 0)

	revenue := make([]any, n)
	profit := make([]any, n)
	for i := 0; i < n; i++ {
		revenue[i] = units[i] * price[i]
		profit[i] = units[i] * (price[i] - costs[i])
	}

	cols := []struct {
		name   string
		values []any
	}{
		{ColCost, floatsToAny(costs)},
		{ColCategory, labels(category, n)},
		{ColCity, labels(city, n)},
		{ColChannel, labels(channel, n)},
		{ColUnits, floatsToAny(units)},
		{ColUnitPrice, floatsToAny(price)},
		{ColRevenue, revenue},
		{ColProfit, profit},
	}
	for _, c := range cols {
		if err := out.Set(c.name, c.values); err != nil {
			return nil, fmt.Errorf("enrich %s: %w", c.name, err)
		}
	}
	return out, nil
}

// joined returns, for each sales row, the value of field taken from the
// matching row of right (keyed on key), or the sales table's own value for
// that field when there is no match. Nil means neither source had a value.
func (e *Engine) joined(sales, right *dataset.Table, key, field dataset.Field) []any {
	n := sales.Len()
	own := e.resolver.Column(sales, field)
	out := make([]any, n)
	for i := range out {
		if own != nil {
			out[i] = own[i]
		}
	}

	leftKey := e.resolver.Column(sales, key)
	rightKey := e.resolver.Column(right, key)
	rightVal := e.resolver.Column(right, field)
	if leftKey == nil || rightKey == nil || rightVal == nil {
		return out
	}

	// First occurrence wins so duplicate keys on the right never fan out rows.
	index := make(map[string]int, len(rightKey))
	for r, k := range rightKey {
		ks := dataset.Text(k)
		if ks == "" {
			continue
		}
		if _, seen := index[ks]; !seen {
			index[ks] = r
		}
	}
	for i := 0; i < n; i++ {
		if r, ok := index[dataset.Text(leftKey[i])]; ok {
			out[i] = rightVal[r]
		}
	}
	return out
}

func labels(values []any, n int) []any {
	out := make([]any, n)
	for i := range out {
		s := ""
		if i < len(values) {
			s = dataset.Text(values[i])
		}
		if s == "" {
			s = Unknown
		}
		out[i] = s
	}
	return out
}

func floatsToAny(in []float64) []any {
	out := make([]any, len(in))
	for i, f := range in {
		out[i] = f
	}
	return out
}
