package ingest

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	"retailpulse/internal/dataset"
	"retailpulse/internal/schema"
)

var (
	// ErrUnsupportedFormat is returned for file extensions with no reader.
	ErrUnsupportedFormat = errors.New("unsupported file format")
	// ErrNoHeader is returned when a file has no header row.
	ErrNoHeader = errors.New("file has no header row")
	// ErrTooManyRows is returned when a file exceeds the configured row limit.
	ErrTooManyRows = errors.New("file exceeds row limit")
)

// Format identifies a tabular file encoding.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// FormatFromName picks a format from a file name's extension.
func FormatFromName(name string) (Format, error) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".csv", ".txt":
		return FormatCSV, nil
	case ".xlsx", ".xlsm":
		return FormatXLSX, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, filepath.Ext(name))
	}
}

// Read decodes r according to format.
func Read(r io.Reader, format Format) (*dataset.Table, error) {
	switch format {
	case FormatCSV:
		return ReadCSV(r)
	case FormatXLSX:
		return ReadExcel(r, "")
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
}

// ReadCSV parses a comma-separated file whose first record is the header.
// A UTF-8 byte order mark is stripped and rows may have differing lengths.
func ReadCSV(r io.Reader) (*dataset.Table, error) {
	br := bufio.NewReader(r)
	if head, err := br.Peek(len(utf8BOM)); err == nil && bytes.Equal(head, utf8BOM) {
		if _, err := br.Discard(len(utf8BOM)); err != nil {
			return nil, fmt.Errorf("failed to skip byte order mark: %w", err)
		}
	}

	reader := csv.NewReader(br)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV: %w", err)
	}
	return fromRows(records)
}

// ReadExcel parses a workbook sheet whose first non-empty row is the header.
// An empty sheet name selects the first sheet.
func ReadExcel(r io.Reader, sheet string) (*dataset.Table, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook: %w", err)
	}
	defer f.Close()

	if sheet == "" {
		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			return nil, ErrNoHeader
		}
		sheet = sheets[0]
	}
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %q: %w", sheet, err)
	}
	for len(rows) > 0 && blank(rows[0]) {
		rows = rows[1:]
	}
	return fromRows(rows)
}

func fromRows(rows [][]string) (*dataset.Table, error) {
	if len(rows) == 0 || blank(rows[0]) {
		return nil, ErrNoHeader
	}
	// Headers are stored in the normalized form the schema validator checks,
	// so every column it accepts is also found by the analytics resolver.
	header := make([]string, len(rows[0]))
	for i, h := range rows[0] {
		header[i] = schema.NormalizeHeader(CleanHeader(h))
	}
	body := rows[1:]
	kept := body[:0:0]
	for _, r := range body {
		if !blank(r) {
			kept = append(kept, r)
		}
	}
	return dataset.FromRecords(header, kept), nil
}

// CleanHeader strips whitespace, byte order marks and zero-width characters
// from a header cell. Case is preserved; readers normalize afterwards.
func CleanHeader(h string) string {
	h = strings.TrimSpace(h)
	h = strings.TrimLeft(h, "\u200B\u200C\u200D\u2060\uFEFF")
	return strings.TrimSpace(h)
}

func blank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
