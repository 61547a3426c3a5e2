package models

import (
	"context"
	"sort"

	"github.com/shopspring/decimal"
)

// RevisionProduct is one row of the revision list: stock on hand next to what
// open orders are holding.
type RevisionProduct struct {
	ID       int             `json:"id"`
	Sku      string          `json:"sku"`
	Name     string          `json:"name"`
	Price    decimal.Decimal `json:"price"`
	DbStock  int             `json:"db_stock"`
	Reserved ReservedStock   `json:"reserved"`
}

// Available is stock minus everything reserved by new and processed orders.
func (r *RevisionProduct) Available() int {
	return r.DbStock - r.Reserved.New - r.Reserved.Processed
}

// RevisionList is read-only; it takes no locks and its figures are advisory.
func (e *Engine) RevisionList(ctx context.Context) ([]*RevisionProduct, error) {
	if _, err := requireAdmin(ctx); err != nil {
		return nil, err
	}
	var rows []*RevisionProduct
	err := e.store.WithinTransaction(ctx, func(tx Tx) error {
		products, err := tx.ListProducts()
		if err != nil {
			return err
		}
		reserved, err := tx.ReservedQuantities()
		if err != nil {
			return err
		}
		rows = make([]*RevisionProduct, 0, len(products))
		for _, p := range products {
			rows = append(rows, &RevisionProduct{
				ID:       p.ID,
				Sku:      p.Sku,
				Name:     p.Name,
				Price:    p.Price,
				DbStock:  p.Stock,
				Reserved: reserved[p.ID],
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].Name != rows[j].Name {
			return rows[i].Name < rows[j].Name
		}
		return rows[i].ID < rows[j].ID
	})
	return rows, nil
}
