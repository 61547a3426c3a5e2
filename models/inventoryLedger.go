package models

import (
	"fmt"
	"strings"

	"github.com/mmdatafocus/orderdesk_backend/utils"
)

// The inventory ledger is the only code that writes Product.Stock. Every
// function here runs inside the caller's transaction; stock writes require
// the product to be locked by that transaction first.

// LockProducts locks ids in ascending order and fails with ErrNotFound when
// any of them does not exist.
func LockProducts(tx Tx, ids []int) (map[int]*Product, error) {
	ids = utils.SortedUniqueInts(ids)
	products, err := tx.LockProducts(ids)
	if err != nil {
		return nil, err
	}
	var missing []string
	for _, id := range ids {
		if _, ok := products[id]; !ok {
			missing = append(missing, fmt.Sprint(id))
		}
	}
	if len(missing) > 0 {
		return nil, notFoundErrorf("product %s not found", strings.Join(missing, ", "))
	}
	return products, nil
}

// CheckAndReserve locks the product and reports whether qty can be debited.
// It never mutates; the debit must follow in the same transaction.
func CheckAndReserve(tx Tx, productId int, qty int) (bool, *Product, error) {
	if qty <= 0 {
		return false, nil, validationErrorf("quantity must be positive, got %d", qty)
	}
	products, err := LockProducts(tx, []int{productId})
	if err != nil {
		return false, nil, err
	}
	product := products[productId]
	return product.Stock >= qty, product, nil
}

// DebitStock takes qty out of a locked product. allowOversell skips the
// non-negative check (ignore_stock_limits).
func DebitStock(tx Tx, product *Product, qty int, allowOversell bool) error {
	if qty <= 0 {
		return validationErrorf("debit quantity must be positive, got %d", qty)
	}
	if !allowOversell && product.Stock < qty {
		return wrapf(ErrInsufficientStock, "%s has %d in stock, %d requested", product.label(), product.Stock, qty)
	}
	if err := tx.AdjustStock(product.ID, -qty); err != nil {
		return err
	}
	product.Stock -= qty
	return nil
}

func CreditStock(tx Tx, product *Product, qty int) error {
	if qty <= 0 {
		return validationErrorf("credit quantity must be positive, got %d", qty)
	}
	if err := tx.AdjustStock(product.ID, qty); err != nil {
		return err
	}
	product.Stock += qty
	return nil
}

// SetProductStock is the administrative absolute overwrite.
func SetProductStock(tx Tx, product *Product, stock int) error {
	if stock < 0 {
		return validationErrorf("stock for %s must not be negative, got %d", product.label(), stock)
	}
	if err := tx.SetStock(product.ID, stock); err != nil {
		return err
	}
	product.Stock = stock
	return nil
}
