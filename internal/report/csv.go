// Package report exports segmented customers and summarizes them for
// dashboards.
package report

import (
	"context"
	"encoding/csv"
	"io"
	"os"
	"strconv"

	"github.com/rotisserie/eris"

	"github.com/Jihanvall/rfm-app/internal/model"
	"github.com/Jihanvall/rfm-app/internal/tabular"
)

// DefaultOutput is the batch export file name.
const DefaultOutput = "Production_Results.csv"

// Columns is the ordered export header.
var Columns = []string{"CustomerID", "Recency", "Frequency", "Monetary", "Cluster", "Segment"}

// WriteCSV writes customers in export format.
func WriteCSV(w io.Writer, customers []model.Customer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Columns); err != nil {
		return eris.Wrap(err, "report: write header")
	}
	for _, c := range customers {
		if err := cw.Write(row(c)); err != nil {
			return eris.Wrapf(err, "report: write customer %s", c.CustomerID)
		}
	}
	cw.Flush()
	return eris.Wrap(cw.Error(), "report: flush csv")
}

// ExportCSV writes customers to a file at path.
func ExportCSV(path string, customers []model.Customer) error {
	f, err := os.Create(path)
	if err != nil {
		return eris.Wrap(err, "report: create file")
	}
	if err := WriteCSV(f, customers); err != nil {
		f.Close() //nolint:errcheck
		return err
	}
	return eris.Wrap(f.Close(), "report: close file")
}

func row(c model.Customer) []string {
	return []string{
		c.CustomerID,
		strconv.Itoa(c.Recency),
		strconv.Itoa(c.Frequency),
		strconv.FormatFloat(c.Monetary, 'f', -1, 64),
		strconv.Itoa(c.Cluster),
		string(c.Segment),
	}
}

// LoadResults reads a previously exported results file (CSV or XLSX).
func LoadResults(ctx context.Context, path string) ([]model.Customer, error) {
	tbl, err := tabular.Load(ctx, path, tabular.Options{})
	if err != nil {
		return nil, err
	}
	return FromTable(tbl)
}

// ReadCSV parses exported CSV from r.
func ReadCSV(ctx context.Context, r io.Reader) ([]model.Customer, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, eris.Wrap(err, "report: read csv")
	}
	tbl, err := tabular.Parse(ctx, "results.csv", data, tabular.Options{Format: tabular.FormatCSV})
	if err != nil {
		return nil, err
	}
	return FromTable(tbl)
}

// FromTable maps a table with the export header back to customers.
func FromTable(tbl *tabular.Table) ([]model.Customer, error) {
	idx := make(map[string]int, len(tbl.Columns))
	for i, name := range tbl.Columns {
		idx[name] = i
	}
	for _, name := range Columns {
		if _, ok := idx[name]; !ok {
			return nil, eris.Errorf("report: results file has no %s column", name)
		}
	}

	customers := make([]model.Customer, 0, tbl.Len())
	for i := range tbl.Rows {
		get := func(name string) string { return tbl.Value(i, idx[name]) }
		line := i + 2 // 1-based, after the header

		recency, err := strconv.Atoi(get("Recency"))
		if err != nil {
			return nil, eris.Wrapf(err, "report: line %d: recency", line)
		}
		frequency, err := strconv.Atoi(get("Frequency"))
		if err != nil {
			return nil, eris.Wrapf(err, "report: line %d: frequency", line)
		}
		monetary, err := strconv.ParseFloat(get("Monetary"), 64)
		if err != nil {
			return nil, eris.Wrapf(err, "report: line %d: monetary", line)
		}
		cluster, err := strconv.Atoi(get("Cluster"))
		if err != nil {
			return nil, eris.Wrapf(err, "report: line %d: cluster", line)
		}

		customers = append(customers, model.Customer{
			CustomerID: get("CustomerID"),
			Recency:    recency,
			Frequency:  frequency,
			Monetary:   monetary,
			Cluster:    cluster,
			Segment:    model.Segment(get("Segment")),
		})
	}
	return customers, nil
}
