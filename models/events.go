package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderEvent is the payload published after an order operation commits.
type OrderEvent struct {
	OrderId     int             `json:"order_id"`
	OrderNumber string          `json:"order_number"`
	FromStatus  OrderStatus     `json:"from_status,omitempty"`
	ToStatus    OrderStatus     `json:"to_status"`
	ActorId     int             `json:"actor_id"`
	Total       decimal.Decimal `json:"total"`
	OccurredAt  time.Time       `json:"occurred_at"`
}

func newOrderEvent(order *Order, from, to OrderStatus, actor int, at time.Time) *OrderEvent {
	return &OrderEvent{
		OrderId:     order.ID,
		OrderNumber: order.OrderNumber,
		FromStatus:  from,
		ToStatus:    to,
		ActorId:     actor,
		Total:       order.Total(),
		OccurredAt:  at,
	}
}
