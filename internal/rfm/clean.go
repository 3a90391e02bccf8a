package rfm

import (
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/araddon/dateparse"

	"github.com/Jihanvall/rfm-app/internal/model"
	"github.com/Jihanvall/rfm-app/internal/tabular"
)

// CleanStats counts what happened to each input row during cleaning. Every
// dropped row is attributed to exactly one counter, so
// RowsRead = Kept + the sum of the drop counters.
type CleanStats struct {
	RowsRead          int `json:"rows_read"`
	Kept              int `json:"kept"`
	MissingIdentity   int `json:"missing_identity"`
	MissingDate       int `json:"missing_date"`
	MissingInvoice    int `json:"missing_invoice,omitempty"`
	NonNumericAmount  int `json:"non_numeric_amount"`
	NonPositiveAmount int `json:"non_positive_amount"`
	UnparseableDate   int `json:"unparseable_date"`
}

// Dropped returns the number of rows discarded.
func (s CleanStats) Dropped() int {
	return s.RowsRead - s.Kept
}

// missingTokens are the cell values treated as absent, in addition to
// whitespace-only cells.
var missingTokens = map[string]bool{
	"na": true, "n/a": true, "nan": true, "null": true, "none": true,
	"#n/a": true, "#na": true, "<na>": true, "nat": true, "-nan": true,
	"-1.#ind": true, "1.#qnan": true, "-1.#qnan": true, "1.#ind": true,
}

func isMissing(v string) bool {
	v = strings.TrimSpace(v)
	return v == "" || missingTokens[strings.ToLower(v)]
}

// parseNumber coerces a cell to a finite float; anything else is missing.
func parseNumber(v string) (float64, bool) {
	if isMissing(v) {
		return 0, false
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// excelEpoch is day zero of the 1900 date system as used by spreadsheet
// serial dates (which include the phantom 1900-02-29).
var excelEpoch = time.Date(1899, time.December, 30, 0, 0, 0, 0, time.UTC)

// maxExcelSerial is 9999-12-31.
const maxExcelSerial = 2958465

// extraLayouts cover exports dateparse does not recognise.
var extraLayouts = []string{
	"02-Jan-2006 15:04:05",
	"02-Jan-2006",
}

// ParseDate parses the date formats seen in sales exports, including
// spreadsheet serial numbers. Times without a zone are taken as UTC.
// Ambiguous slash dates are month-first unless that yields an impossible
// date, in which case day-first is tried.
func ParseDate(v string) (time.Time, bool) {
	v = strings.TrimSpace(v)
	if isMissing(v) {
		return time.Time{}, false
	}

	// Bare numbers are compact yyyymmdd or spreadsheet serials, never unix
	// timestamps.
	if serial, err := strconv.ParseFloat(v, 64); err == nil {
		if t, err := time.Parse("20060102", v); err == nil {
			return t, true
		}
		if serial < 1 || serial > maxExcelSerial {
			return time.Time{}, false
		}
		// Round to the millisecond to absorb float noise in the fraction.
		ms := math.Round(serial * 24 * 60 * 60 * 1000)
		return excelEpoch.Add(time.Duration(ms) * time.Millisecond), true
	}

	if t, err := dateparse.ParseIn(v, time.UTC, dateparse.RetryAmbiguousDateWithSwap(true)); err == nil {
		return t.UTC(), true
	}
	for _, layout := range extraLayouts {
		if t, err := time.Parse(layout, v); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

// Clean converts table rows into valid transactions, silently discarding
// rows that cannot be priced or dated. The result preserves input order.
func Clean(tbl *tabular.Table, cols Columns) ([]model.Transaction, CleanStats) {
	stats := CleanStats{RowsRead: tbl.Len()}
	txns := make([]model.Transaction, 0, tbl.Len())

	for i := range tbl.Len() {
		id := strings.TrimSpace(tbl.Value(i, cols.Identity.Index))
		if isMissing(id) {
			stats.MissingIdentity++
			continue
		}
		id = canonicalID(id)
		rawDate := tbl.Value(i, cols.Date.Index)
		if isMissing(rawDate) {
			stats.MissingDate++
			continue
		}
		if cols.Strict && isMissing(tbl.Value(i, cols.Invoice.Index)) {
			stats.MissingInvoice++
			continue
		}

		amount, ok := rowAmount(tbl, i, cols)
		if !ok {
			stats.NonNumericAmount++
			continue
		}
		if amount <= 0 {
			stats.NonPositiveAmount++
			continue
		}

		ts, ok := ParseDate(rawDate)
		if !ok {
			stats.UnparseableDate++
			continue
		}

		txns = append(txns, model.Transaction{CustomerID: id, Timestamp: ts, Amount: amount})
	}

	stats.Kept = len(txns)
	return txns, stats
}

// canonicalID folds integral decimal spellings such as "17850.0", which
// spreadsheet round trips produce, onto the plain integer "17850". Other ids
// are returned unchanged.
func canonicalID(id string) string {
	whole, frac, ok := strings.Cut(id, ".")
	if !ok || strings.Trim(frac, "0") != "" {
		return id
	}
	digits := strings.TrimPrefix(whole, "-")
	if digits == "" || strings.Trim(digits, "0123456789") != "" {
		return id
	}
	return whole
}

// rowAmount computes the monetary value of a row. ok is false when the
// value is missing or not numeric. Strict mode requires both quantity and
// unit price to be positive on their own; a non-positive factor yields 0
// so the row is counted as non-positive.
func rowAmount(tbl *tabular.Table, row int, cols Columns) (float64, bool) {
	if !cols.Strict && cols.UsesAmount() {
		return parseNumber(tbl.Value(row, cols.Amount.Index))
	}

	qty, ok := parseNumber(tbl.Value(row, cols.Quantity.Index))
	if !ok {
		return 0, false
	}
	price, ok := parseNumber(tbl.Value(row, cols.UnitPrice.Index))
	if !ok {
		return 0, false
	}
	if cols.Strict && (qty <= 0 || price <= 0) {
		return 0, true
	}
	return qty * price, true
}
