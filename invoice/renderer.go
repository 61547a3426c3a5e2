// Package invoice renders order documents: a JSON snapshot for the print
// service and an XLSX invoice.
package invoice

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/mmdatafocus/orderdesk_backend/models"
	"github.com/mmdatafocus/orderdesk_backend/models/reports"
	"github.com/xuri/excelize/v2"
)

const sheetName = "Invoice"

type Renderer struct {
	Storage Storage
	// Clock names preview files; defaults to time.Now.
	Clock func() time.Time
}

func NewRenderer(storage Storage) *Renderer {
	return &Renderer{Storage: storage, Clock: time.Now}
}

// objectBase is invoices/YYYY-MM/order_<number>, or previews/... for previews.
func (r *Renderer) objectBase(s *models.InvoiceSnapshot) string {
	number := s.OrderNumber
	if number == "" {
		number = fmt.Sprintf("id%d", s.OrderId)
	}
	period := s.CreatedAt.UTC().Format("2006-01")
	if s.Preview {
		now := time.Now
		if r.Clock != nil {
			now = r.Clock
		}
		return path.Join("previews", period, fmt.Sprintf("order_%s_%d", number, now().UnixNano()))
	}
	return path.Join("invoices", period, "order_"+number)
}

func (r *Renderer) Render(ctx context.Context, s *models.InvoiceSnapshot) (*models.InvoiceDocuments, error) {
	base := r.objectBase(s)

	doc, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return nil, err
	}
	docPath, err := r.Storage.Save(ctx, base+".json", doc, "application/json")
	if err != nil {
		return nil, fmt.Errorf("save invoice document: %w", err)
	}

	sheet, err := Spreadsheet(s)
	if err != nil {
		return nil, err
	}
	sheetPath, err := r.Storage.Save(ctx, base+".xlsx", sheet, reports.ExcelContentType)
	if err != nil {
		return nil, fmt.Errorf("save invoice spreadsheet: %w", err)
	}

	return &models.InvoiceDocuments{DocumentPath: docPath, SpreadsheetPath: sheetPath}, nil
}

// Spreadsheet builds the XLSX invoice: a header block, the item table and totals.
func Spreadsheet(s *models.InvoiceSnapshot) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()
	if err := f.SetSheetName("Sheet1", sheetName); err != nil {
		return nil, err
	}

	title := "Invoice " + s.OrderNumber
	if s.Preview {
		title += " (preview)"
	}
	header := [][]interface{}{
		{title},
		{"Customer", s.CustomerName},
		{"Phone", s.CustomerPhone},
		{"Date", s.CreatedAt.UTC().Format("2006-01-02 15:04")},
	}
	if c := strings.TrimSpace(s.CustomerComment); c != "" {
		header = append(header, []interface{}{"Comment", c})
	}
	row := 1
	for _, values := range header {
		if err := setRow(f, row, values); err != nil {
			return nil, err
		}
		row++
	}
	row++

	if err := setRow(f, row, []interface{}{"SKU", "Name", "Quantity", "Price", "Total", "Image"}); err != nil {
		return nil, err
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return nil, err
	}
	if err := f.SetRowStyle(sheetName, row, row, bold); err != nil {
		return nil, err
	}
	row++
	for _, line := range s.Lines {
		values := []interface{}{line.Sku, line.Name, line.Quantity, line.PricePerItem.InexactFloat64(), line.LineTotal.InexactFloat64(), line.ImageRef}
		if err := setRow(f, row, values); err != nil {
			return nil, err
		}
		row++
	}
	row++

	totals := [][]interface{}{
		{"", "", "", "Subtotal", s.Subtotal.InexactFloat64()},
		{"", "", "", "Discount %", s.DiscountPercent.InexactFloat64()},
		{"", "", "", "Total", s.Total.InexactFloat64()},
	}
	for _, values := range totals {
		if err := setRow(f, row, values); err != nil {
			return nil, err
		}
		row++
	}
	if err := f.SetColWidth(sheetName, "B", "B", 40); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func setRow(f *excelize.File, row int, values []interface{}) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	return f.SetSheetRow(sheetName, cell, &values)
}
