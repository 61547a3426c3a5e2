package models

import (
	"context"
	"fmt"

	"github.com/mmdatafocus/orderdesk_backend/utils"
	"github.com/shopspring/decimal"
)

var maxDiscountPercent = decimal.NewFromInt(100)

type OrderItemChange struct {
	ItemId   int `json:"item_id" validate:"required,gt=0"`
	Quantity int `json:"quantity" validate:"required,gt=0"`
}

// OrderEdit is an all-or-nothing batch against one order.
type OrderEdit struct {
	Items           []OrderItemChange `json:"items" validate:"omitempty,dive"`
	ItemsToDelete   []int             `json:"items_to_delete" validate:"omitempty,dive,gt=0"`
	DiscountPercent *decimal.Decimal  `json:"discount_percent"`
	Status          *OrderStatus      `json:"status"`
}

func (input *OrderEdit) validate() error {
	if err := utils.ValidateStruct(input); err != nil {
		return validationErrorf("%s", utils.ValidationMessage(err))
	}
	if d := input.DiscountPercent; d != nil && (d.IsNegative() || d.GreaterThan(maxDiscountPercent)) {
		return validationErrorf("discount_percent must be between 0 and 100, got %s", d.String())
	}
	if input.Status != nil && !input.Status.IsValid() {
		return validationErrorf("unknown order status %q", *input.Status)
	}
	return nil
}

// UpdateOrder edits items and discount of a new or processed order. Any
// change to a new order promotes it to processed. An explicit status is
// applied afterwards in the same transaction, so "edit and complete" debits
// the edited quantities. Invoices are re-rendered when items or discount change.
func (e *Engine) UpdateOrder(ctx context.Context, orderId int, input *OrderEdit) (order *Order, err error) {
	ctx, span := startSpan(ctx, "UpdateOrder")
	defer func() { endSpan(span, err) }()

	actor, err := requireAdmin(ctx)
	if err != nil {
		return nil, err
	}
	if err := input.validate(); err != nil {
		return nil, err
	}

	var from OrderStatus
	err = e.store.WithinTransaction(ctx, func(tx Tx) error {
		var err error
		order, err = tx.LockOrder(orderId)
		if err != nil {
			return err
		}
		from = order.Status
		if !order.Status.IsOpen() {
			return wrapf(ErrInvalidTransition, "order %s is %s; only new or processed orders can be edited", order.ref(), order.Status)
		}

		changed, err := e.applyOrderEdit(tx, order, input)
		if err != nil {
			return err
		}

		if changed && order.Status == OrderStatusNew {
			if err := e.promoteOrder(tx, order, actor); err != nil {
				return err
			}
		}
		if input.Status != nil && *input.Status != order.Status {
			if err := e.applyRequestedStatus(tx, order, *input.Status, actor); err != nil {
				return err
			}
		}

		if changed {
			if err := e.renderInvoices(ctx, tx, order, nil); err != nil {
				return err
			}
		}
		return tx.UpdateOrder(order)
	})
	if err != nil {
		e.logError(ctx, "UpdateOrder", fmt.Sprintf("order %d", orderId), input, err)
		return nil, err
	}

	e.publish(ctx, OrderEventEdited, newOrderEvent(order, from, order.Status, actor, e.now()))
	return order, nil
}

// applyOrderEdit validates every entry against the locked order and only then
// writes. It reports whether items or discount actually changed.
func (e *Engine) applyOrderEdit(tx Tx, order *Order, input *OrderEdit) (bool, error) {
	bulkErr := &BulkEditError{Operation: fmt.Sprintf("edit of order %s", order.ref())}

	deleting := make(map[int]bool, len(input.ItemsToDelete))
	for i, id := range input.ItemsToDelete {
		if order.item(id) == nil {
			bulkErr.add(i, id, notFoundErrorf("order %s has no item %d", order.ref(), id))
			continue
		}
		deleting[id] = true
	}
	seen := make(map[int]bool, len(input.Items))
	for i, change := range input.Items {
		switch {
		case order.item(change.ItemId) == nil:
			bulkErr.add(i, change.ItemId, notFoundErrorf("order %s has no item %d", order.ref(), change.ItemId))
		case deleting[change.ItemId]:
			bulkErr.add(i, change.ItemId, validationErrorf("item %d is both changed and deleted", change.ItemId))
		case seen[change.ItemId]:
			bulkErr.add(i, change.ItemId, validationErrorf("item %d is listed twice", change.ItemId))
		}
		seen[change.ItemId] = true
	}
	if len(input.ItemsToDelete) > 0 && len(deleting) >= len(order.Items) {
		bulkErr.add(0, order.ID, validationErrorf("order %s must keep at least one item; delete the order instead", order.ref()))
	}
	if !bulkErr.empty() {
		return false, bulkErr
	}

	changed := false
	for _, change := range input.Items {
		item := order.item(change.ItemId)
		if item.Quantity == change.Quantity {
			continue
		}
		item.Quantity = change.Quantity
		if err := tx.UpdateOrderItem(item); err != nil {
			return false, err
		}
		changed = true
	}
	if len(deleting) > 0 {
		ids := make([]int, 0, len(deleting))
		kept := make([]*OrderItem, 0, len(order.Items))
		for _, item := range order.Items {
			if deleting[item.ID] {
				ids = append(ids, item.ID)
				continue
			}
			kept = append(kept, item)
		}
		if err := tx.DeleteOrderItems(order.ID, utils.SortedUniqueInts(ids)); err != nil {
			return false, err
		}
		order.Items = kept
		changed = true
	}
	if input.DiscountPercent != nil && !input.DiscountPercent.Equal(order.DiscountPercent) {
		order.DiscountPercent = *input.DiscountPercent
		changed = true
	}
	return changed, nil
}
