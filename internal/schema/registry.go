package schema

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownEntityType is returned when a type is not in the registry.
var ErrUnknownEntityType = errors.New("unknown entity type")

// EntityType tags one of the known table shapes.
type EntityType string

const (
	Products  EntityType = "products"
	Stores    EntityType = "stores"
	Sales     EntityType = "sales"
	Inventory EntityType = "inventory"
)

// Schema describes the columns a table of a given type carries.
// Required holds field groups; a group is satisfied when any of its
// variants is present. Identifiers only feed type detection.
type Schema struct {
	Type        EntityType
	Required    [][]string
	Optional    []string
	Identifiers []string
}

// ExpectedColumns is the introspection view of a schema.
type ExpectedColumns struct {
	Type     EntityType `json:"type"`
	Required []string   `json:"required"`
	Optional []string   `json:"optional"`
}

// Registry is an immutable, ordered set of schemas. Order matters: detection
// ties go to the schema registered first.
type Registry struct {
	schemas []Schema
	index   map[EntityType]int
}

// NewRegistry builds a registry from the given definitions. Variants and
// identifiers are lowercased once here so lookups can compare directly
// against normalized headers.
func NewRegistry(defs ...Schema) (*Registry, error) {
	r := &Registry{index: make(map[EntityType]int, len(defs))}
	for _, d := range defs {
		if d.Type == "" {
			return nil, fmt.Errorf("schema type cannot be empty")
		}
		if _, dup := r.index[d.Type]; dup {
			return nil, fmt.Errorf("schema %s already registered", d.Type)
		}
		if len(d.Required) == 0 {
			return nil, fmt.Errorf("schema %s has no required groups", d.Type)
		}
		s := Schema{
			Type:        d.Type,
			Required:    make([][]string, 0, len(d.Required)),
			Optional:    append([]string(nil), d.Optional...),
			Identifiers: lowerAll(d.Identifiers),
		}
		for i, g := range d.Required {
			if len(g) == 0 {
				return nil, fmt.Errorf("schema %s: required group %d is empty", d.Type, i)
			}
			s.Required = append(s.Required, lowerAll(g))
		}
		r.index[d.Type] = len(r.schemas)
		r.schemas = append(r.schemas, s)
	}
	return r, nil
}

// DefaultRegistry returns the built-in products, stores, sales and
// inventory schemas in that order.
func DefaultRegistry() *Registry {
	r, err := NewRegistry(defaultSchemas()...)
	if err != nil {
		panic(err)
	}
	return r
}

func defaultSchemas() []Schema {
	return []Schema{
		{
			Type: Products,
			Required: [][]string{
				{"sku", "product_id", "item_id", "sku_id"},
				{"category", "product_category", "category_name"},
			},
			Optional:    []string{"product_name", "brand", "base_price_aed", "unit_cost_aed", "tax_rate", "launch_date"},
			Identifiers: []string{"base_price", "base_price_aed", "unit_cost_aed", "brand", "tax_rate", "product_name"},
		},
		{
			Type: Stores,
			Required: [][]string{
				{"store_id", "store", "branch_id", "location_id"},
				{"city", "store_city", "location_city"},
				{"channel", "sales_channel", "store_channel"},
			},
			Optional:    []string{"store_name", "fulfillment_type", "region", "opened_date"},
			Identifiers: []string{"store_name", "fulfillment_type", "region"},
		},
		{
			Type: Sales,
			Required: [][]string{
				{"order_id", "transaction_id", "invoice_id"},
				{"sku", "product_id", "item_id", "sku_id"},
				{"store_id", "store", "branch_id", "location_id"},
				{"qty", "quantity", "units", "units_sold"},
				{"selling_price_aed", "selling_price", "unit_price", "price", "sale_price"},
			},
			Optional:    []string{"order_time", "discount_pct", "payment_status", "is_returned", "customer_id"},
			Identifiers: []string{"order_id", "order_time", "discount_pct", "is_returned", "payment_status", "selling_price_aed"},
		},
		{
			Type: Inventory,
			Required: [][]string{
				{"sku", "product_id", "item_id", "sku_id"},
				{"store_id", "store", "branch_id", "location_id"},
				{"stock_on_hand", "stock", "on_hand", "quantity_on_hand"},
			},
			Optional:    []string{"reorder_point", "snapshot_date"},
			Identifiers: []string{"stock_on_hand", "reorder_point", "snapshot_date"},
		},
	}
}

// Types lists registered types in registry order.
func (r *Registry) Types() []EntityType {
	out := make([]EntityType, len(r.schemas))
	for i, s := range r.schemas {
		out[i] = s.Type
	}
	return out
}

// Lookup returns the schema for a type.
func (r *Registry) Lookup(t EntityType) (Schema, bool) {
	i, ok := r.index[t]
	if !ok {
		return Schema{}, false
	}
	return r.schemas[i], true
}

// ExpectedColumns returns the first variant of each required group plus the
// optional column names for a type.
func (r *Registry) ExpectedColumns(t EntityType) (ExpectedColumns, error) {
	s, ok := r.Lookup(t)
	if !ok {
		return ExpectedColumns{}, fmt.Errorf("%w: %s", ErrUnknownEntityType, t)
	}
	req := make([]string, len(s.Required))
	for i, g := range s.Required {
		req[i] = g[0]
	}
	return ExpectedColumns{
		Type:     s.Type,
		Required: req,
		Optional: append([]string(nil), s.Optional...),
	}, nil
}

// NormalizeHeader trims, lowercases and replaces spaces with underscores.
func NormalizeHeader(h string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(h)), " ", "_")
}

func lowerAll(in []string) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = strings.ToLower(s)
	}
	return out
}
