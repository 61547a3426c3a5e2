package invoice

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/mmdatafocus/orderdesk_backend/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func snapshot() *models.InvoiceSnapshot {
	return &models.InvoiceSnapshot{
		OrderId:         7,
		OrderNumber:     "2024-03-00007",
		CustomerName:    "Ivan",
		CustomerPhone:   "+79991234567",
		CreatedAt:       time.Date(2024, 3, 14, 10, 0, 0, 0, time.UTC),
		DiscountPercent: decimal.NewFromInt(10),
		Lines: []models.InvoiceLine{
			{Sku: "A-1", Name: "Anchor", Quantity: 2, PricePerItem: decimal.NewFromInt(50), LineTotal: decimal.NewFromInt(100), ImageRef: "products/a-1.jpg"},
		},
		Subtotal: decimal.NewFromInt(100),
		Total:    decimal.NewFromInt(90),
	}
}

func TestRenderWritesBothDocuments(t *testing.T) {
	dir := t.TempDir()
	r := NewRenderer(LocalStorage{Dir: dir})

	docs, err := r.Render(context.Background(), snapshot())
	require.NoError(t, err)
	assert.Equal(t, "invoices/2024-03/order_2024-03-00007.json", docs.DocumentPath)
	assert.Equal(t, "invoices/2024-03/order_2024-03-00007.xlsx", docs.SpreadsheetPath)

	raw, err := os.ReadFile(filepath.Join(dir, filepath.FromSlash(docs.DocumentPath)))
	require.NoError(t, err)
	var decoded models.InvoiceSnapshot
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, "2024-03-00007", decoded.OrderNumber)
	assert.True(t, decoded.Total.Equal(decimal.NewFromInt(90)))
	require.Len(t, decoded.Lines, 1)
	assert.Equal(t, "products/a-1.jpg", decoded.Lines[0].ImageRef)

	f, err := excelize.OpenFile(filepath.Join(dir, filepath.FromSlash(docs.SpreadsheetPath)))
	require.NoError(t, err)
	defer f.Close()
	title, err := f.GetCellValue(sheetName, "A1")
	require.NoError(t, err)
	assert.Equal(t, "Invoice 2024-03-00007", title)
}

func TestPreviewGoesToScratchArea(t *testing.T) {
	r := NewRenderer(LocalStorage{Dir: t.TempDir()})
	r.Clock = func() time.Time { return time.Unix(0, 42) }
	s := snapshot()
	s.Preview = true

	docs, err := r.Render(context.Background(), s)
	require.NoError(t, err)
	assert.Equal(t, "previews/2024-03/order_2024-03-00007_42.json", docs.DocumentPath)
}

func TestSpreadsheetListsLines(t *testing.T) {
	data, err := Spreadsheet(snapshot())
	require.NoError(t, err)
	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows(sheetName)
	require.NoError(t, err)
	var found bool
	for _, row := range rows {
		if len(row) > 1 && row[0] == "A-1" {
			found = true
			assert.Equal(t, "Anchor", row[1])
			assert.Equal(t, "2", row[2])
			require.Len(t, row, 6)
			assert.Equal(t, "products/a-1.jpg", row[5])
		}
	}
	assert.True(t, found)
}
