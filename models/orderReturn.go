package models

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/mmdatafocus/orderdesk_backend/utils"
	"github.com/shopspring/decimal"
)

type ReturnLine struct {
	OrderItemId int `json:"order_item_id" validate:"required,gt=0"`
	Quantity    int `json:"quantity" validate:"required,gt=0"`
}

// OrderReturnRequest carries incremental deltas: each call adds its
// quantities to what was already returned.
type OrderReturnRequest struct {
	Lines                 []ReturnLine    `json:"items_to_return" validate:"required,min=1,dive"`
	FinalReturnAmount     decimal.Decimal `json:"final_return_amount"`
	ReturnWithoutDiscount bool            `json:"return_without_discount"`
}

func (input *OrderReturnRequest) validate() error {
	if err := utils.ValidateStruct(input); err != nil {
		return validationErrorf("%s", utils.ValidationMessage(err))
	}
	if input.FinalReturnAmount.IsNegative() {
		return validationErrorf("final_return_amount must not be negative")
	}
	return nil
}

// ApplyOrderReturn credits returned items back to stock. Every line is
// validated before the first credit; one bad line aborts the whole call.
// total_returned_amount is overwritten with the caller's final amount.
func (e *Engine) ApplyOrderReturn(ctx context.Context, orderId int, input *OrderReturnRequest) (order *Order, err error) {
	ctx, span := startSpan(ctx, "ApplyOrderReturn")
	defer func() { endSpan(span, err) }()

	actor, err := requireAdmin(ctx)
	if err != nil {
		return nil, err
	}
	if err := input.validate(); err != nil {
		return nil, err
	}

	deltas := make(map[int]int, len(input.Lines))
	for _, line := range input.Lines {
		deltas[line.OrderItemId] += line.Quantity
	}
	itemIds := make([]int, 0, len(deltas))
	for id := range deltas {
		itemIds = append(itemIds, id)
	}
	sort.Ints(itemIds)

	var from OrderStatus
	err = e.store.WithinTransaction(ctx, func(tx Tx) error {
		var err error
		order, err = tx.LockOrder(orderId)
		if err != nil {
			return err
		}
		from = order.Status
		if order.Status != OrderStatusCompleted && order.Status != OrderStatusPartiallyReturned {
			return wrapf(ErrInvalidTransition, "order %s is %s; only completed orders accept returns", order.ref(), order.Status)
		}

		var missing, over []string
		credits := make(map[int]int)
		for _, id := range itemIds {
			item := order.item(id)
			if item == nil {
				missing = append(missing, fmt.Sprint(id))
				continue
			}
			if outstanding := item.Quantity - item.ReturnedQuantity; deltas[id] > outstanding {
				over = append(over, fmt.Sprintf("item %d: ordered %d, already returned %d, requested %d", id, item.Quantity, item.ReturnedQuantity, deltas[id]))
				continue
			}
			credits[item.ProductId] += deltas[id]
		}
		if len(missing) > 0 {
			return notFoundErrorf("order %s has no item %s", order.ref(), strings.Join(missing, ", "))
		}
		if len(over) > 0 {
			return wrapf(ErrOverReturn, "order %s: %s", order.ref(), strings.Join(over, "; "))
		}

		productIds := make([]int, 0, len(credits))
		for id := range credits {
			productIds = append(productIds, id)
		}
		products, err := LockProducts(tx, productIds)
		if err != nil {
			return err
		}
		for _, id := range utils.SortedUniqueInts(productIds) {
			if err := CreditStock(tx, products[id], credits[id]); err != nil {
				return err
			}
		}
		for _, id := range itemIds {
			item := order.item(id)
			item.ReturnedQuantity += deltas[id]
			if err := tx.UpdateOrderItem(item); err != nil {
				return err
			}
		}

		amount := input.FinalReturnAmount
		order.TotalReturnedAmount = &amount
		order.ReturnWithoutDiscount = input.ReturnWithoutDiscount
		next := OrderStatusPartiallyReturned
		if order.fullyReturned() {
			next = OrderStatusReturned
		}
		return e.transitionOrder(tx, order, next, actor, "")
	})
	if err != nil {
		e.logError(ctx, "ApplyOrderReturn", fmt.Sprintf("order %d", orderId), input, err)
		return nil, err
	}

	e.publish(ctx, OrderEventReturned, newOrderEvent(order, from, order.Status, actor, e.now()))
	return order, nil
}
