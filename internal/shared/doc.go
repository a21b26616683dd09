// Package shared is the parent of helpers used across packages that do not
// belong to any one layer. Its testutil subpackage provides an in-memory
// slog handler for asserting on log output in tests.
package shared
