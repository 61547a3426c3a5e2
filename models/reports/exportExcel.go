package reports

import (
	"fmt"
	"io"

	"github.com/mmdatafocus/orderdesk_backend/models"
	"github.com/xuri/excelize/v2"
)

const ExcelContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

type ExcelExporter interface {
	GetCellValues() []interface{}
}

// WriteExcel writes one sheet: a header row followed by one row per record.
func WriteExcel(w io.Writer, sheetName string, headings []string, data []ExcelExporter) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sheetName); err != nil {
		return err
	}

	for i, h := range headings {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(sheetName, cell, h); err != nil {
			return err
		}
	}

	rowNo := 2
	for _, d := range data {
		for i, value := range d.GetCellValues() {
			cell, err := excelize.CoordinatesToCellName(i+1, rowNo)
			if err != nil {
				return err
			}
			if err := f.SetCellValue(sheetName, cell, value); err != nil {
				return err
			}
		}
		rowNo++
	}

	if err := f.SetPanes(sheetName, &excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"}); err != nil {
		return err
	}
	if err := f.Write(w); err != nil {
		return fmt.Errorf("failed to write %s: %w", sheetName, err)
	}
	return nil
}

type revisionRow struct {
	*models.RevisionProduct
}

func (r revisionRow) GetCellValues() []interface{} {
	return []interface{}{
		r.ID,
		r.Sku,
		r.Name,
		r.Price.InexactFloat64(),
		r.DbStock,
		r.Reserved.New,
		r.Reserved.Processed,
		r.Available(),
	}
}

var revisionHeadings = []string{"ID", "SKU", "Name", "Price", "Stock", "Reserved (new)", "Reserved (processed)", "Available"}

// ExportRevisionList writes the revision list as an XLSX workbook.
func ExportRevisionList(w io.Writer, rows []*models.RevisionProduct) error {
	data := make([]ExcelExporter, 0, len(rows))
	for _, r := range rows {
		data = append(data, revisionRow{r})
	}
	return WriteExcel(w, "Revision", revisionHeadings, data)
}
