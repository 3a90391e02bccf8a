package rfm

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Jihanvall/rfm-app/internal/model"
	"github.com/Jihanvall/rfm-app/internal/tabular"
)

var retailHeader = []string{
	"InvoiceNo", "StockCode", "Description", "Quantity",
	"InvoiceDate", "UnitPrice", "CustomerID", "Country",
}

func day(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

func TestResolve_IdentityVariants(t *testing.T) {
	for _, name := range []string{"Customer ID", "customerid", "CUST_ID", "  CustomerID  "} {
		t.Run(name, func(t *testing.T) {
			cols, err := Resolve([]string{name, "Date", "Amount"})
			require.NoError(t, err)
			assert.Equal(t, Match{Index: 0, Name: name}, cols.Identity)
			assert.Equal(t, 1, cols.Date.Index)
			assert.True(t, cols.UsesAmount())
		})
	}
}

func TestResolve_Idempotent(t *testing.T) {
	header := []string{"Cust Name", "Order Time", "Sales Total"}
	first, err := Resolve(header)
	require.NoError(t, err)
	second, err := Resolve(header)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestResolve_FirstMatchWins(t *testing.T) {
	cols, err := Resolve([]string{"order_id", "customer_id", "created_date", "ship_date", "total"})
	require.NoError(t, err)
	assert.Equal(t, "order_id", cols.Identity.Name)
	assert.Equal(t, "created_date", cols.Date.Name)
	assert.Equal(t, "total", cols.Amount.Name)
}

func TestResolve_QuantityPriceFallback(t *testing.T) {
	cols, err := Resolve(retailHeader)
	require.NoError(t, err)
	assert.Equal(t, "CustomerID", cols.Identity.Name)
	assert.Equal(t, "InvoiceDate", cols.Date.Name)
	assert.False(t, cols.UsesAmount())
	assert.Equal(t, "Quantity", cols.Quantity.Name)
	assert.Equal(t, "UnitPrice", cols.UnitPrice.Name)
	assert.False(t, cols.Strict)
}

func TestResolve_SchemaErrors(t *testing.T) {
	tests := []struct {
		name    string
		header  []string
		missing []string
	}{
		{"nothing", []string{"name", "value"}, []string{"identity", "date", "amount or quantity+unit_price"}},
		{"no date", []string{"customer", "amount"}, []string{"date"}},
		{"quantity without price", []string{"customer", "date", "qty"}, []string{"amount or quantity+unit_price"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Resolve(tt.header)
			var se *SchemaError
			require.True(t, errors.As(err, &se))
			assert.Equal(t, tt.missing, se.Missing)
			assert.Equal(t, tt.header, se.Columns)
		})
	}
}

func TestResolveStrict(t *testing.T) {
	cols, err := ResolveStrict(retailHeader)
	require.NoError(t, err)
	assert.True(t, cols.Strict)
	assert.Equal(t, 0, cols.Invoice.Index)
	assert.Equal(t, 6, cols.Identity.Index)

	_, err = ResolveStrict([]string{"customerid", "InvoiceDate", "Quantity", "UnitPrice"})
	var se *SchemaError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, []string{"CustomerID", "InvoiceNo"}, se.Missing)
}

func TestParseDate(t *testing.T) {
	tests := []struct {
		in   string
		want time.Time
	}{
		{"2023-01-05", day("2023-01-05")},
		{"2010-12-01 08:26:00", time.Date(2010, 12, 1, 8, 26, 0, 0, time.UTC)},
		{"12/1/2010 8:26", time.Date(2010, 12, 1, 8, 26, 0, 0, time.UTC)},
		{"2023-01-05T10:00:00+02:00", time.Date(2023, 1, 5, 8, 0, 0, 0, time.UTC)},
		{"40513.35", time.Date(2010, 12, 1, 8, 24, 0, 0, time.UTC)},
		{"20230105", day("2023-01-05")},
		{"2010-12-01 08:26:00+00:00", time.Date(2010, 12, 1, 8, 26, 0, 0, time.UTC)},
		{"1/5/2023 10:00:00 AM", time.Date(2023, 1, 5, 10, 0, 0, 0, time.UTC)},
		{"1/5/2023 10:00:00 PM", time.Date(2023, 1, 5, 22, 0, 0, 0, time.UTC)},
		{"Jan 2, 2023 3:04 PM", time.Date(2023, 1, 2, 15, 4, 0, 0, time.UTC)},
		{"2023-01-05 10:00:00 UTC", time.Date(2023, 1, 5, 10, 0, 0, 0, time.UTC)},
		{"13/01/2023", day("2023-01-13")},
		{"01-Dec-2010", day("2010-12-01")},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := ParseDate(tt.in)
			require.True(t, ok)
			assert.True(t, tt.want.Equal(got), "got %s", got)
		})
	}

	for _, bad := range []string{"", "NaT", "yesterday", "13/45/2020", "-3", "1700000000"} {
		_, ok := ParseDate(bad)
		assert.False(t, ok, bad)
	}
}

func TestCanonicalID(t *testing.T) {
	tests := map[string]string{
		"17850.0":  "17850",
		"17850.00": "17850",
		"17850.":   "17850",
		"-12.0":    "-12",
		"17850":    "17850",
		"17850.5":  "17850.5",
		"12.50":    "12.50",
		"A12.0":    "A12.0",
		".0":       ".0",
		"1.0.0":    "1.0.0",
		"C-1.0":    "C-1.0",
	}
	for in, want := range tests {
		assert.Equal(t, want, canonicalID(in), in)
	}
}

func TestClean_MergesIntegralDecimalIDs(t *testing.T) {
	tbl := &tabular.Table{
		Columns: []string{"Customer", "Date", "Amount"},
		Rows: [][]string{
			{"17850", "2023-01-01", "10"},
			{"17850.0", "2023-01-02", "20"},
			{" 17850.0 ", "2023-01-03", "30"},
		},
	}
	cols, err := Resolve(tbl.Columns)
	require.NoError(t, err)

	txns, _ := Clean(tbl, cols)
	require.Len(t, txns, 3)
	for _, tx := range txns {
		assert.Equal(t, "17850", tx.CustomerID)
	}

	_, customers, err := Aggregate(txns)
	require.NoError(t, err)
	require.Len(t, customers, 1)
	assert.Equal(t, 3, customers[0].Frequency)
	assert.InDelta(t, 60.0, customers[0].Monetary, 1e-9)
}

func TestClean_AmountColumn(t *testing.T) {
	tbl := &tabular.Table{
		Columns: []string{"Customer", "Date", "Amount"},
		Rows: [][]string{
			{"C1", "2023-01-01", "100"},
			{"", "2023-01-02", "10"},
			{"C2", "NaN", "10"},
			{"C2", "2023-01-03", "abc"},
			{"C2", "2023-01-03", "-5"},
			{"C3", "not a date", "5"},
			{" C4 ", "2023-01-04", " 7.5 "},
			{"NA", "2023-01-04", "1"},
		},
	}
	cols, err := Resolve(tbl.Columns)
	require.NoError(t, err)

	txns, stats := Clean(tbl, cols)
	require.Len(t, txns, 2)
	assert.Equal(t, model.Transaction{CustomerID: "C1", Timestamp: day("2023-01-01"), Amount: 100}, txns[0])
	assert.Equal(t, "C4", txns[1].CustomerID)
	assert.Equal(t, 7.5, txns[1].Amount)

	assert.Equal(t, CleanStats{
		RowsRead:          8,
		Kept:              2,
		MissingIdentity:   2,
		MissingDate:       1,
		NonNumericAmount:  1,
		NonPositiveAmount: 1,
		UnparseableDate:   1,
	}, stats)
	assert.Equal(t, 6, stats.Dropped())
}

// A row with Quantity=0 or UnitPrice=0 never reaches aggregation.
func TestClean_ZeroQuantityOrPriceExcluded(t *testing.T) {
	for _, strict := range []bool{false, true} {
		t.Run(fmt.Sprintf("strict=%v", strict), func(t *testing.T) {
			tbl := &tabular.Table{
				Columns: retailHeader,
				Rows: [][]string{
					{"536365", "85123A", "HEART", "6", "12/1/2010 8:26", "2.55", "17850", "UK"},
					{"536366", "71053", "LANTERN", "0", "12/1/2010 8:28", "3.39", "17850", "UK"},
					{"536367", "84406B", "CREAM", "8", "12/1/2010 8:34", "0", "13047", "UK"},
				},
			}
			resolve := Resolve
			if strict {
				resolve = ResolveStrict
			}
			cols, err := resolve(tbl.Columns)
			require.NoError(t, err)

			txns, stats := Clean(tbl, cols)
			require.Len(t, txns, 1)
			assert.InDelta(t, 15.3, txns[0].Amount, 1e-9)
			assert.Equal(t, 2, stats.NonPositiveAmount)

			_, customers, err := Aggregate(txns)
			require.NoError(t, err)
			require.Len(t, customers, 1)
			assert.Equal(t, "17850", customers[0].CustomerID)
			assert.Equal(t, 1, customers[0].Frequency)
		})
	}
}

func TestClean_StrictRules(t *testing.T) {
	tbl := &tabular.Table{
		Columns: retailHeader,
		Rows: [][]string{
			// Negative quantity and price multiply to a positive amount.
			{"C536379", "D", "Discount", "-1", "12/1/2010 9:41", "-27.5", "14527", "UK"},
			{"", "22752", "SET", "2", "12/1/2010 9:00", "7.65", "17850", "UK"},
			{"536370", "22728", "ALARM", "24", "12/1/2010 8:45", "3.75", "12583", "France"},
		},
	}

	heuristic, err := Resolve(tbl.Columns)
	require.NoError(t, err)
	txns, _ := Clean(tbl, heuristic)
	assert.Len(t, txns, 3)

	strict, err := ResolveStrict(tbl.Columns)
	require.NoError(t, err)
	txns, stats := Clean(tbl, strict)
	require.Len(t, txns, 1)
	assert.Equal(t, "12583", txns[0].CustomerID)
	assert.Equal(t, 1, stats.MissingInvoice)
	assert.Equal(t, 1, stats.NonPositiveAmount)
}

func TestAggregate_ScenarioA(t *testing.T) {
	txns := []model.Transaction{
		{CustomerID: "C1", Timestamp: day("2023-01-01"), Amount: 100},
		{CustomerID: "C1", Timestamp: day("2023-01-10"), Amount: 50},
		{CustomerID: "C2", Timestamp: day("2023-01-05"), Amount: 500},
	}

	snapshot, customers, err := Aggregate(txns)
	require.NoError(t, err)
	assert.Equal(t, day("2023-01-11"), snapshot)
	assert.Equal(t, []model.Customer{
		{CustomerID: "C1", Recency: 1, Frequency: 2, Monetary: 150},
		{CustomerID: "C2", Recency: 6, Frequency: 1, Monetary: 500},
	}, customers)
}

func TestAggregate_RecencyFloorsPartialDays(t *testing.T) {
	base := time.Date(2023, 3, 1, 18, 0, 0, 0, time.UTC)
	txns := []model.Transaction{
		{CustomerID: "A", Timestamp: base, Amount: 1},
		{CustomerID: "B", Timestamp: base.Add(-30 * time.Hour), Amount: 1},
	}
	_, customers, err := Aggregate(txns)
	require.NoError(t, err)
	assert.Equal(t, 1, customers[0].Recency)
	// 54h before the snapshot.
	assert.Equal(t, 2, customers[1].Recency)
}

func TestAggregate_Empty(t *testing.T) {
	_, _, err := Aggregate(nil)
	var dq *DataQualityError
	require.True(t, errors.As(err, &dq))
	assert.Equal(t, 0, dq.Rows)
}

func TestAggregate_Invariants(t *testing.T) {
	r := rand.New(rand.NewPCG(7, 11))
	start := day("2022-01-01")

	txns := make([]model.Transaction, 500)
	for i := range txns {
		txns[i] = model.Transaction{
			CustomerID: fmt.Sprintf("C%03d", r.IntN(60)),
			Timestamp:  start.Add(time.Duration(r.Int64N(int64(365 * 24 * time.Hour)))),
			Amount:     0.01 + r.Float64()*1000,
		}
	}

	snapshot, customers, err := Aggregate(txns)
	require.NoError(t, err)

	latest, _ := Snapshot(txns)
	assert.Equal(t, latest, snapshot)

	total := 0
	for i, c := range customers {
		assert.GreaterOrEqual(t, c.Recency, 0)
		assert.GreaterOrEqual(t, c.Frequency, 1)
		assert.Greater(t, c.Monetary, 0.0)
		total += c.Frequency
		if i > 0 {
			assert.Less(t, customers[i-1].CustomerID, c.CustomerID)
		}
	}
	assert.Equal(t, len(txns), total)
}

func TestWhales_ScenarioE(t *testing.T) {
	customers := []model.Customer{
		{CustomerID: "A", Monetary: 5000},
		{CustomerID: "B", Monetary: 15000},
		{CustomerID: "C", Monetary: 20000},
		{CustomerID: "D", Monetary: 10000},
	}

	whales := Whales(customers, DefaultWhaleThreshold)
	require.Len(t, whales, 2)
	assert.Equal(t, 20000.0, whales[0].Monetary)
	assert.Equal(t, 15000.0, whales[1].Monetary)
	assert.Equal(t, "A", customers[0].CustomerID, "input must not be reordered")
}

func TestWhales_TiesByCustomerID(t *testing.T) {
	whales := Whales([]model.Customer{
		{CustomerID: "Z", Monetary: 50},
		{CustomerID: "M", Monetary: 50},
	}, 0)
	require.Len(t, whales, 2)
	assert.Equal(t, "M", whales[0].CustomerID)
	assert.Empty(t, Whales(nil, 0))
}
