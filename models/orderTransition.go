package models

import (
	"context"
	"fmt"
	"time"
)

// OrderTransition is one row of the append-only status log. FromStatus is
// empty for the creation entry. ActorId is 0 for anonymous customers.
type OrderTransition struct {
	ID         int         `gorm:"primary_key" json:"id"`
	OrderId    int         `gorm:"index;not null" json:"order_id"`
	FromStatus OrderStatus `gorm:"size:32" json:"from_status"`
	ToStatus   OrderStatus `gorm:"size:32;not null" json:"to_status"`
	ActorId    int         `gorm:"not null;default:0" json:"actor_id"`
	Reason     string      `gorm:"type:text" json:"reason"`
	CreatedAt  time.Time   `json:"created_at"`
}

// OrderSequence holds the last order number issued per period (YYYY-MM).
type OrderSequence struct {
	Period    string `gorm:"primaryKey;size:7"`
	LastValue int64  `gorm:"not null;default:0"`
}

func orderPeriod(t time.Time) string {
	return t.Format("2006-01")
}

// FormatOrderNumber renders YYYY-MM-NNNNN.
func FormatOrderNumber(period string, seq int64) string {
	return fmt.Sprintf("%s-%05d", period, seq)
}

func (e *Engine) OrderHistory(ctx context.Context, orderId int) ([]*OrderTransition, error) {
	if _, err := requireAdmin(ctx); err != nil {
		return nil, err
	}
	var transitions []*OrderTransition
	err := e.store.WithinTransaction(ctx, func(tx Tx) error {
		if _, err := tx.GetOrder(orderId); err != nil {
			return err
		}
		var err error
		transitions, err = tx.ListTransitions(orderId)
		return err
	})
	if err != nil {
		return nil, err
	}
	return transitions, nil
}
