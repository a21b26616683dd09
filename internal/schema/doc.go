// Package schema validates uploaded tables against the known entity types
// (products, stores, sales, inventory) and detects a table's most likely
// type from its headers.
//
// Headers are normalized (trimmed, lowercased, spaces to underscores) before
// matching. Detection awards 3 points per satisfied required group and 1 per
// identifying column, and accepts the best schema only when both the group
// ratio and the score clear the configured Thresholds.
package schema
