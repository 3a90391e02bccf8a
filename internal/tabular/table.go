// Package tabular turns CSV, XLSX and SQL result sets into an in-memory
// table of string cells with a header row.
package tabular

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
)

// Table is a header plus string rows. Rows may be ragged; use Value for
// bounds-safe access.
type Table struct {
	Columns []string
	Rows    [][]string
}

// Len returns the number of data rows.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Rows)
}

// Value returns the cell at (row, col), or "" when the row is short.
func (t *Table) Value(row, col int) string {
	if col < 0 || row < 0 || row >= len(t.Rows) {
		return ""
	}
	r := t.Rows[row]
	if col >= len(r) {
		return ""
	}
	return r[col]
}

// newTable splits the first record off as the header.
func newTable(records [][]string) *Table {
	if len(records) == 0 {
		return &Table{}
	}
	return &Table{Columns: records[0], Rows: records[1:]}
}

// Format identifies an input file format.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

// zipMagic prefixes every XLSX (OOXML zip) document.
var zipMagic = []byte("PK\x03\x04")

// DetectFormat picks a format from the file name, falling back to sniffing
// the zip signature for nameless uploads.
func DetectFormat(name string, data []byte) Format {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".xlsx", ".xlsm":
		return FormatXLSX
	case ".csv", ".txt", ".tsv":
		return FormatCSV
	}
	if len(data) >= len(zipMagic) && string(data[:len(zipMagic)]) == string(zipMagic) {
		return FormatXLSX
	}
	return FormatCSV
}

// Options configures decoding.
type Options struct {
	Format           Format // empty = detect
	FallbackEncoding string // WHATWG label tried once when UTF-8 fails; default "iso-8859-1"
	Delimiter        rune   // CSV only; default ','
	Comment          rune   // CSV only; 0 = none
	LazyQuotes       bool   // CSV only; accept bare quotes inside fields
	TrimSpace        bool   // CSV only; trim every field
	SheetIndex       int    // XLSX only
	SheetName        string // XLSX only; overrides SheetIndex
}

// DefaultFallbackEncoding is the encoding retried when UTF-8 decoding fails.
// Retail exports from spreadsheet tools are commonly Latin-1.
const DefaultFallbackEncoding = "iso-8859-1"

// Parse decodes data into a Table. name is used for format detection and
// error context only.
func Parse(ctx context.Context, name string, data []byte, opts Options) (*Table, error) {
	format := opts.Format
	if format == "" {
		format = DetectFormat(name, data)
	}
	switch format {
	case FormatXLSX:
		return parseXLSX(name, data, opts)
	case FormatCSV:
		return parseCSV(ctx, name, data, opts)
	default:
		return nil, eris.Errorf("tabular: unsupported format %q", format)
	}
}

// Load reads a local file and parses it.
func Load(ctx context.Context, path string, opts Options) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "tabular: read %s", path)
	}
	return Parse(ctx, path, data, opts)
}
