package models

import (
	"context"
	"sort"
	"strings"

	"github.com/mmdatafocus/orderdesk_backend/utils"
	"github.com/shopspring/decimal"
)

// ProductUpdate changes only the fields that are set.
type ProductUpdate struct {
	ID        int              `json:"id" validate:"required,gt=0"`
	Sku       *string          `json:"sku"`
	Name      *string          `json:"name"`
	Price     *decimal.Decimal `json:"price"`
	Stock     *int             `json:"stock"`
	IsVisible *bool            `json:"is_visible"`
}

// BulkUpdateProducts applies catalog edits all-or-nothing. Every entry is
// checked first (existence, field ranges, SKU uniqueness against the table
// and the rest of the batch); any failure returns a BulkEditError listing all
// of them and nothing is saved.
func (e *Engine) BulkUpdateProducts(ctx context.Context, updates []*ProductUpdate) (products []*Product, err error) {
	ctx, span := startSpan(ctx, "BulkUpdateProducts")
	defer func() { endSpan(span, err) }()

	if _, err := requireAdmin(ctx); err != nil {
		return nil, err
	}
	if len(updates) == 0 {
		return nil, validationErrorf("updates must not be empty")
	}

	err = e.store.WithinTransaction(ctx, func(tx Tx) error {
		bulkErr := &BulkEditError{Operation: "product bulk update"}

		ids := make([]int, 0, len(updates))
		seen := make(map[int]bool, len(updates))
		for i, u := range updates {
			if err := validateProductUpdate(u); err != nil {
				bulkErr.add(i, u.ID, err)
				continue
			}
			if seen[u.ID] {
				bulkErr.add(i, u.ID, validationErrorf("product %d is listed twice", u.ID))
				continue
			}
			seen[u.ID] = true
			ids = append(ids, u.ID)
		}

		locked, err := tx.LockProducts(utils.SortedUniqueInts(ids))
		if err != nil {
			return err
		}

		// Final SKU of every product touched by the batch.
		finalSku := make(map[int]string, len(locked))
		for _, u := range updates {
			p, ok := locked[u.ID]
			if !ok {
				continue
			}
			finalSku[p.ID] = p.Sku
			if u.Sku != nil {
				finalSku[p.ID] = *u.Sku
			}
		}

		claimed := make(map[string]int, len(finalSku))
		for i, u := range updates {
			if !seen[u.ID] {
				continue
			}
			p, ok := locked[u.ID]
			if !ok {
				bulkErr.add(i, u.ID, notFoundErrorf("product %d not found", u.ID))
				continue
			}
			sku := finalSku[p.ID]
			if other, dup := claimed[sku]; dup && other != p.ID {
				bulkErr.add(i, u.ID, wrapf(ErrDuplicateSku, "sku %q is set on both product %d and product %d", sku, other, p.ID))
				continue
			}
			claimed[sku] = p.ID
			if u.Sku == nil || *u.Sku == p.Sku {
				continue
			}
			holder, err := tx.FindProductBySku(sku)
			if err != nil {
				return err
			}
			if holder == nil || holder.ID == p.ID {
				continue
			}
			if _, inBatch := locked[holder.ID]; inBatch && finalSku[holder.ID] != sku {
				// The holder gives the sku up in this batch.
				continue
			}
			bulkErr.add(i, u.ID, wrapf(ErrDuplicateSku, "sku %q is already used by %s; product %d cannot take it", sku, holder.label(), p.ID))
		}
		if !bulkErr.empty() {
			return bulkErr
		}

		ordered := make([]*ProductUpdate, len(updates))
		copy(ordered, updates)
		sort.Slice(ordered, func(a, b int) bool { return ordered[a].ID < ordered[b].ID })
		products = make([]*Product, 0, len(ordered))
		for _, u := range ordered {
			p := locked[u.ID]
			if u.Sku != nil {
				p.Sku = *u.Sku
			}
			if u.Name != nil {
				p.Name = *u.Name
			}
			if u.Price != nil {
				p.Price = *u.Price
			}
			if u.IsVisible != nil {
				v := *u.IsVisible
				p.IsVisible = &v
			}
			if err := tx.UpdateProduct(p); err != nil {
				return err
			}
			if u.Stock != nil && *u.Stock != p.Stock {
				if err := SetProductStock(tx, p, *u.Stock); err != nil {
					return err
				}
			}
			products = append(products, p)
		}
		return nil
	})
	if err != nil {
		e.logError(ctx, "BulkUpdateProducts", "bulk update", updates, err)
		return nil, err
	}
	return products, nil
}

func validateProductUpdate(u *ProductUpdate) error {
	if u == nil {
		return validationErrorf("empty update entry")
	}
	if err := utils.ValidateStruct(u); err != nil {
		return validationErrorf("product %d: %s", u.ID, utils.ValidationMessage(err))
	}
	if u.Sku != nil {
		sku := strings.TrimSpace(*u.Sku)
		if sku == "" || len(sku) > 100 {
			return validationErrorf("product %d: sku must be 1..100 characters", u.ID)
		}
		u.Sku = &sku
	}
	if u.Name != nil {
		name := strings.TrimSpace(*u.Name)
		if name == "" || len(name) > 255 {
			return validationErrorf("product %d: name must be 1..255 characters", u.ID)
		}
		u.Name = &name
	}
	if u.Price != nil && u.Price.IsNegative() {
		return validationErrorf("product %d: price must not be negative", u.ID)
	}
	if u.Stock != nil && *u.Stock < 0 {
		return validationErrorf("product %d: stock must not be negative", u.ID)
	}
	return nil
}
