package report

import (
	"io"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/Jihanvall/rfm-app/internal/model"
)

// SheetName is the worksheet written by WriteXLSX.
const SheetName = "Segments"

func buildWorkbook(customers []model.Customer) (*xlsx.File, error) {
	f := xlsx.NewFile()
	sheet, err := f.AddSheet(SheetName)
	if err != nil {
		return nil, eris.Wrap(err, "report: add sheet")
	}

	header := sheet.AddRow()
	for _, name := range Columns {
		header.AddCell().SetString(name)
	}
	for _, c := range customers {
		r := sheet.AddRow()
		r.AddCell().SetString(c.CustomerID)
		r.AddCell().SetInt(c.Recency)
		r.AddCell().SetInt(c.Frequency)
		r.AddCell().SetFloat(c.Monetary)
		r.AddCell().SetInt(c.Cluster)
		r.AddCell().SetString(string(c.Segment))
	}
	return f, nil
}

// WriteXLSX writes customers as a single-sheet workbook.
func WriteXLSX(w io.Writer, customers []model.Customer) error {
	f, err := buildWorkbook(customers)
	if err != nil {
		return err
	}
	return eris.Wrap(f.Write(w), "report: write xlsx")
}

// ExportXLSX writes the workbook to path.
func ExportXLSX(path string, customers []model.Customer) error {
	f, err := buildWorkbook(customers)
	if err != nil {
		return err
	}
	return eris.Wrapf(f.Save(path), "report: save %s", path)
}
