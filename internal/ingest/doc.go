// Package ingest reads CSV and Excel files into dataset tables.
//
// Readers are lenient about layout: byte order marks and zero-width
// characters are stripped from headers, blank rows are skipped and ragged
// rows are padded. Column names are otherwise left as-is; normalization is
// the schema package's job.
package ingest
