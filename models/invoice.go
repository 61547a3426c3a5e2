package models

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

type InvoiceLine struct {
	Sku          string          `json:"sku"`
	Name         string          `json:"name"`
	Quantity     int             `json:"quantity"`
	PricePerItem decimal.Decimal `json:"price_per_item"`
	LineTotal    decimal.Decimal `json:"line_total"`
	Comment      string          `json:"comment,omitempty"`
	// ImageRef is the product's image_url, passed through for printing.
	ImageRef string `json:"image_ref,omitempty"`
}

// InvoiceSnapshot is everything a renderer may print. Preview snapshots are
// written to a scratch area and never stored on the order.
type InvoiceSnapshot struct {
	OrderId         int             `json:"order_id"`
	OrderNumber     string          `json:"order_number"`
	CustomerName    string          `json:"customer_name"`
	CustomerPhone   string          `json:"customer_phone"`
	CustomerComment string          `json:"customer_comment,omitempty"`
	Status          OrderStatus     `json:"status"`
	CreatedAt       time.Time       `json:"created_at"`
	DiscountPercent decimal.Decimal `json:"discount_percent"`
	Lines           []InvoiceLine   `json:"lines"`
	Subtotal        decimal.Decimal `json:"subtotal"`
	Total           decimal.Decimal `json:"total"`
	Preview         bool            `json:"preview"`
}

type InvoiceDocuments struct {
	DocumentPath    string `json:"document_path"`
	SpreadsheetPath string `json:"spreadsheet_path"`
}

type DocumentRenderer interface {
	Render(ctx context.Context, snapshot *InvoiceSnapshot) (*InvoiceDocuments, error)
}

func newInvoiceSnapshot(order *Order, products map[int]*Product) *InvoiceSnapshot {
	snapshot := &InvoiceSnapshot{
		OrderId:         order.ID,
		OrderNumber:     order.OrderNumber,
		CustomerName:    order.CustomerName,
		CustomerPhone:   order.CustomerPhone,
		CustomerComment: order.CustomerComment,
		Status:          order.Status,
		CreatedAt:       order.CreatedAt,
		DiscountPercent: order.DiscountPercent,
		Subtotal:        order.Subtotal(),
		Total:           order.Total(),
	}
	for _, item := range order.Items {
		line := InvoiceLine{
			Quantity:     item.Quantity,
			PricePerItem: item.PricePerItem,
			LineTotal:    item.PricePerItem.Mul(decimal.NewFromInt(int64(item.Quantity))),
			Comment:      item.Comment,
		}
		if p, ok := products[item.ProductId]; ok {
			line.Sku = p.Sku
			line.Name = p.Name
			line.ImageRef = p.ImageUrl
		} else {
			line.Name = fmt.Sprintf("product %d", item.ProductId)
		}
		snapshot.Lines = append(snapshot.Lines, line)
	}
	return snapshot
}

// renderInvoices regenerates both documents for order and stores their paths
// on it. It runs inside the caller's transaction so a failure aborts the mutation.
func (e *Engine) renderInvoices(ctx context.Context, tx Tx, order *Order, products map[int]*Product) error {
	if e.renderer == nil {
		return nil
	}
	if products == nil {
		var err error
		products, err = tx.GetProductsByIds(order.productIds())
		if err != nil {
			return err
		}
	}
	docs, err := e.renderer.Render(ctx, newInvoiceSnapshot(order, products))
	if err != nil {
		return fmt.Errorf("render invoice for order %s: %w", order.ref(), err)
	}
	order.InvoiceDocumentPath = docs.DocumentPath
	order.InvoiceSpreadsheetPath = docs.SpreadsheetPath
	return nil
}

// PreviewInvoice renders the current state of an order without touching it.
func (e *Engine) PreviewInvoice(ctx context.Context, orderId int) (docs *InvoiceDocuments, err error) {
	ctx, span := startSpan(ctx, "PreviewInvoice")
	defer func() { endSpan(span, err) }()

	if _, err := requireAdmin(ctx); err != nil {
		return nil, err
	}
	if e.renderer == nil {
		return nil, wrapf(ErrConflict, "no document renderer configured")
	}
	var snapshot *InvoiceSnapshot
	err = e.store.WithinTransaction(ctx, func(tx Tx) error {
		order, err := tx.GetOrder(orderId)
		if err != nil {
			return err
		}
		products, err := tx.GetProductsByIds(order.productIds())
		if err != nil {
			return err
		}
		snapshot = newInvoiceSnapshot(order, products)
		snapshot.Preview = true
		return nil
	})
	if err != nil {
		return nil, err
	}
	docs, err = e.renderer.Render(ctx, snapshot)
	if err != nil {
		e.logError(ctx, "PreviewInvoice", fmt.Sprintf("order %d", orderId), nil, err)
		return nil, err
	}
	return docs, nil
}
