package models

import (
	"context"
	"time"

	"github.com/mmdatafocus/orderdesk_backend/utils"
	"github.com/sirupsen/logrus"
)

const bulkStockLockKey = "orderdesk:bulk-stock"

type StockUpdate struct {
	ProductId int `json:"product_id" validate:"required,gt=0"`
	NewStock  int `json:"new_stock" validate:"gte=0"`
}

type BulkStockResult struct {
	UpdatedCount int               `json:"updated_count"`
	UpdatedIds   []int             `json:"updated_ids"`
	NotFoundIds  []int             `json:"not_found_ids"`
	Failed       []BulkEditFailure `json:"failed,omitempty"`
}

// BulkSetStock overwrites stock after a physical count. It is best effort:
// each entry commits on its own, unknown ids are reported, and one bad entry
// never blocks the others. Malformed input rejects the whole call up front.
func (e *Engine) BulkSetStock(ctx context.Context, updates []StockUpdate) (result *BulkStockResult, err error) {
	ctx, span := startSpan(ctx, "BulkSetStock")
	defer func() { endSpan(span, err) }()

	if _, err := requireAdmin(ctx); err != nil {
		return nil, err
	}
	if len(updates) == 0 {
		return nil, validationErrorf("updates must not be empty")
	}
	for i := range updates {
		if err := utils.ValidateStruct(&updates[i]); err != nil {
			return nil, validationErrorf("updates[%d]: %s", i, utils.ValidationMessage(err))
		}
	}

	if e.batchLocker != nil {
		release, err := e.batchLocker.Obtain(ctx, bulkStockLockKey, 2*time.Minute)
		if err != nil {
			return nil, wrapf(ErrLockTimeout, "another inventory update is running: %v", err)
		}
		defer release()
	}

	result = &BulkStockResult{UpdatedIds: []int{}, NotFoundIds: []int{}}
	for i, update := range updates {
		found := true
		err := e.store.WithinTransaction(ctx, func(tx Tx) error {
			products, err := tx.LockProducts([]int{update.ProductId})
			if err != nil {
				return err
			}
			product, ok := products[update.ProductId]
			if !ok {
				found = false
				return nil
			}
			return SetProductStock(tx, product, update.NewStock)
		})
		switch {
		case err != nil:
			result.Failed = append(result.Failed, BulkEditFailure{Index: i, Id: update.ProductId, Message: err.Error(), Err: err})
			e.logger.WithFields(logrus.Fields{"module": "inventory", "product_id": update.ProductId}).Warn("stock update failed: " + err.Error())
		case !found:
			result.NotFoundIds = append(result.NotFoundIds, update.ProductId)
		default:
			result.UpdatedIds = append(result.UpdatedIds, update.ProductId)
		}
	}
	result.UpdatedCount = len(result.UpdatedIds)
	return result, nil
}
