package models

import (
	"context"
	"fmt"
	"strings"
)

// orderStatusTransitions lists every legal move. Moves into returned and
// partially_returned are reserved for return accounting.
var orderStatusTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusNew:               {OrderStatusProcessed, OrderStatusCompleted, OrderStatusDeleted},
	OrderStatusProcessed:         {OrderStatusCompleted, OrderStatusDeleted},
	OrderStatusCompleted:         {OrderStatusReturned, OrderStatusPartiallyReturned},
	OrderStatusPartiallyReturned: {OrderStatusReturned, OrderStatusPartiallyReturned},
}

func canTransition(from, to OrderStatus) bool {
	for _, next := range orderStatusTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

func invalidTransition(order *Order, to OrderStatus) error {
	return wrapf(ErrInvalidTransition, "order %s cannot move from %s to %s", order.ref(), order.Status, to)
}

// transitionOrder moves a locked order to `to`, stamps the matching timestamp
// and appends the log entry. Inventory effects belong to the caller.
func (e *Engine) transitionOrder(tx Tx, order *Order, to OrderStatus, actor int, reason string) error {
	if !canTransition(order.Status, to) {
		return invalidTransition(order, to)
	}
	now := e.now()
	switch to {
	case OrderStatusProcessed:
		order.ProcessedAt = &now
	case OrderStatusCompleted:
		order.CompletedAt = &now
	case OrderStatusReturned, OrderStatusPartiallyReturned:
		order.ReturnedAt = &now
	case OrderStatusDeleted:
		order.DeletedAt = &now
		order.DeletionReason = reason
	}
	from := order.Status
	order.Status = to
	if err := tx.UpdateOrder(order); err != nil {
		return err
	}
	return tx.AppendTransition(&OrderTransition{
		OrderId:    order.ID,
		FromStatus: from,
		ToStatus:   to,
		ActorId:    actor,
		Reason:     reason,
		CreatedAt:  now,
	})
}

// promoteOrder is the new -> processed move fired by the first edit of a new order.
func (e *Engine) promoteOrder(tx Tx, order *Order, actor int) error {
	if order.Status != OrderStatusNew {
		return invalidTransition(order, OrderStatusProcessed)
	}
	return e.transitionOrder(tx, order, OrderStatusProcessed, actor, "")
}

// completeOrder debits stock for every item of a locked order. Products are
// locked in ascending id order; any shortfall aborts before the first debit.
func (e *Engine) completeOrder(tx Tx, order *Order, actor int) error {
	if !canTransition(order.Status, OrderStatusCompleted) {
		return invalidTransition(order, OrderStatusCompleted)
	}
	ignoreLimits, err := e.storedSettingBool(tx, SettingIgnoreStockLimits)
	if err != nil {
		return err
	}

	need := order.quantitiesByProduct()
	ids := order.productIds()
	products, err := LockProducts(tx, ids)
	if err != nil {
		return err
	}

	if !ignoreLimits {
		var shortages []string
		for _, id := range ids {
			if p := products[id]; p.Stock < need[id] {
				shortages = append(shortages, fmt.Sprintf("%s has %d in stock, order needs %d", p.label(), p.Stock, need[id]))
			}
		}
		if len(shortages) > 0 {
			return wrapf(ErrInsufficientStock, "cannot complete order %s: %s", order.ref(), strings.Join(shortages, "; "))
		}
	}

	for _, id := range ids {
		if err := DebitStock(tx, products[id], need[id], ignoreLimits); err != nil {
			return err
		}
	}
	return e.transitionOrder(tx, order, OrderStatusCompleted, actor, "")
}

func (e *Engine) deleteOrder(tx Tx, order *Order, actor int, reason string) error {
	if !canTransition(order.Status, OrderStatusDeleted) {
		return wrapf(ErrInvalidTransition, "order %s is %s; only new or processed orders can be deleted", order.ref(), order.Status)
	}
	return e.transitionOrder(tx, order, OrderStatusDeleted, actor, reason)
}

// applyRequestedStatus runs a caller-requested status through the named transitions.
func (e *Engine) applyRequestedStatus(tx Tx, order *Order, status OrderStatus, actor int) error {
	switch status {
	case OrderStatusProcessed:
		return e.promoteOrder(tx, order, actor)
	case OrderStatusCompleted:
		return e.completeOrder(tx, order, actor)
	case OrderStatusReturned, OrderStatusPartiallyReturned:
		return wrapf(ErrInvalidTransition, "order %s: returns are recorded through the return operation", order.ref())
	case OrderStatusDeleted:
		return wrapf(ErrInvalidTransition, "order %s: deletion requires the delete operation with a reason", order.ref())
	}
	return invalidTransition(order, status)
}

// UpdateOrderStatus applies an explicit status change. Completing an order
// that is already completed is rejected, so repeated calls never debit twice.
func (e *Engine) UpdateOrderStatus(ctx context.Context, orderId int, status OrderStatus) (order *Order, err error) {
	ctx, span := startSpan(ctx, "UpdateOrderStatus")
	defer func() { endSpan(span, err) }()

	actor, err := requireAdmin(ctx)
	if err != nil {
		return nil, err
	}
	if !status.IsValid() {
		return nil, validationErrorf("unknown order status %q", status)
	}

	var from OrderStatus
	err = e.store.WithinTransaction(ctx, func(tx Tx) error {
		var err error
		order, err = tx.LockOrder(orderId)
		if err != nil {
			return err
		}
		from = order.Status
		return e.applyRequestedStatus(tx, order, status, actor)
	})
	if err != nil {
		e.logError(ctx, "UpdateOrderStatus", fmt.Sprintf("order %d -> %s", orderId, status), nil, err)
		return nil, err
	}

	e.publish(ctx, OrderEventStatusChanged, newOrderEvent(order, from, order.Status, actor, e.now()))
	return order, nil
}

// DeleteOrder soft-deletes a new or processed order. No stock moves since
// nothing was debited yet.
func (e *Engine) DeleteOrder(ctx context.Context, orderId int, reason string) (order *Order, err error) {
	ctx, span := startSpan(ctx, "DeleteOrder")
	defer func() { endSpan(span, err) }()

	actor, err := requireAdmin(ctx)
	if err != nil {
		return nil, err
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, validationErrorf("a deletion reason is required")
	}

	var from OrderStatus
	err = e.store.WithinTransaction(ctx, func(tx Tx) error {
		var err error
		order, err = tx.LockOrder(orderId)
		if err != nil {
			return err
		}
		from = order.Status
		return e.deleteOrder(tx, order, actor, reason)
	})
	if err != nil {
		e.logError(ctx, "DeleteOrder", fmt.Sprintf("order %d", orderId), nil, err)
		return nil, err
	}

	e.publish(ctx, OrderEventStatusChanged, newOrderEvent(order, from, order.Status, actor, e.now()))
	return order, nil
}
