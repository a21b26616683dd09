// Package dataset provides the in-memory tabular model shared by the
// ingestion, schema and analytics layers.
//
// A Table is a set of named, row-aligned columns holding loosely typed
// cells. Source files rarely agree on column spelling, so the package also
// carries a Resolver that maps semantic fields (SKU, price, quantity, ...)
// to whatever column a given file actually uses, plus helpers that coerce
// cells to numbers, booleans and join keys.
//
// # Ownership
//
// Tables passed into analytics are never modified. Transformations work on
// a Clone or return a fresh Table.
package dataset
