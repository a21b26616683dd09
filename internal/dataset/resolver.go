package dataset

// Field identifies a semantic column the analytics need regardless of how
// the source file spells it.
type Field string

const (
	FieldSKU          Field = "sku"
	FieldCost         Field = "cost"
	FieldPrice        Field = "price"
	FieldQuantity     Field = "quantity"
	FieldOrderDate    Field = "order_date"
	FieldOrderID      Field = "order_id"
	FieldStoreID      Field = "store_id"
	FieldCategory     Field = "category"
	FieldCity         Field = "city"
	FieldChannel      Field = "channel"
	FieldDiscount     Field = "discount"
	FieldReturned     Field = "returned"
	FieldStock        Field = "stock"
	FieldReorderPoint Field = "reorder_point"
	FieldSnapshotDate Field = "snapshot_date"
)

// defaultCandidates lists the accepted spellings per field in priority order.
var defaultCandidates = map[Field][]string{
	FieldSKU:          {"sku", "SKU", "product_id", "item_id", "sku_id"},
	FieldCost:         {"cost", "unit_cost", "cost_price", "unit_cost_aed", "cost_aed"},
	FieldPrice:        {"selling_price_aed", "selling_price", "unit_price", "price", "sale_price"},
	FieldQuantity:     {"qty", "quantity", "units", "units_sold"},
	FieldOrderDate:    {"order_time", "order_date", "date", "timestamp", "transaction_date"},
	FieldOrderID:      {"order_id", "transaction_id", "invoice_id"},
	FieldStoreID:      {"store_id", "store", "branch_id", "location_id"},
	FieldCategory:     {"category", "product_category", "category_name"},
	FieldCity:         {"city", "store_city", "location_city"},
	FieldChannel:      {"channel", "sales_channel", "store_channel"},
	FieldDiscount:     {"discount_pct", "discount", "discount_percent"},
	FieldReturned:     {"is_returned", "returned", "return_flag"},
	FieldStock:        {"stock_on_hand", "stock", "on_hand", "quantity_on_hand", "inventory"},
	FieldReorderPoint: {"reorder_point", "reorder_level", "min_stock"},
	FieldSnapshotDate: {"snapshot_date", "date"},
}

// Resolve returns the first candidate that names an existing column.
// Matching is exact and case-sensitive; priority follows candidate order.
func Resolve(t *Table, candidates []string) (string, bool) {
	for _, c := range candidates {
		if t.Has(c) {
			return c, true
		}
	}
	return "", false
}

// Resolver maps semantic fields to concrete column names using a candidate
// table. The zero value is not usable; call NewResolver.
type Resolver struct {
	candidates map[Field][]string
}

// NewResolver returns a resolver seeded with the built-in aliases. Extra
// aliases are appended after the built-ins so they never shadow them.
func NewResolver(extra map[Field][]string) *Resolver {
	r := &Resolver{candidates: make(map[Field][]string, len(defaultCandidates))}
	for f, names := range defaultCandidates {
		r.candidates[f] = append([]string(nil), names...)
	}
	for f, names := range extra {
		r.candidates[f] = appendUnique(r.candidates[f], names...)
	}
	return r
}

// Candidates returns the ordered candidate names for a field.
func (r *Resolver) Candidates(f Field) []string {
	return append([]string(nil), r.candidates[f]...)
}

// Resolve finds the column for a field in t.
func (r *Resolver) Resolve(t *Table, f Field) (string, bool) {
	return Resolve(t, r.candidates[f])
}

// Column returns the values of the resolved column, or nil.
func (r *Resolver) Column(t *Table, f Field) []any {
	name, ok := r.Resolve(t, f)
	if !ok {
		return nil
	}
	return t.Column(name)
}

func appendUnique(dst []string, names ...string) []string {
	for _, n := range names {
		found := false
		for _, d := range dst {
			if d == n {
				found = true
				break
			}
		}
		if !found && n != "" {
			dst = append(dst, n)
		}
	}
	return dst
}
