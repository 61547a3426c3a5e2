package models

import (
	"encoding/json"
	"errors"
)

type OrderStatus string

const (
	OrderStatusNew               OrderStatus = "new"
	OrderStatusProcessed         OrderStatus = "processed"
	OrderStatusCompleted         OrderStatus = "completed"
	OrderStatusReturned          OrderStatus = "returned"
	OrderStatusPartiallyReturned OrderStatus = "partially_returned"
	OrderStatusDeleted           OrderStatus = "deleted"
)

var orderStatuses = map[string]OrderStatus{
	"new":                OrderStatusNew,
	"processed":          OrderStatusProcessed,
	"completed":          OrderStatusCompleted,
	"returned":           OrderStatusReturned,
	"partially_returned": OrderStatusPartiallyReturned,
	"deleted":            OrderStatusDeleted,
}

func (s OrderStatus) String() string {
	return string(s)
}

func (s OrderStatus) IsValid() bool {
	_, ok := orderStatuses[string(s)]
	return ok
}

// IsOpen reports whether the order still counts as a reservation.
func (s OrderStatus) IsOpen() bool {
	return s == OrderStatusNew || s == OrderStatusProcessed
}

// UnmarshalJSON accepts "" as the zero status, which is the from status of a
// creation log entry. Inputs reject it through IsValid.
func (s *OrderStatus) UnmarshalJSON(b []byte) error {
	var str string
	if err := json.Unmarshal(b, &str); err != nil {
		return errors.New("order status must be string")
	}
	if str == "" {
		*s = ""
		return nil
	}
	status, ok := orderStatuses[str]
	if !ok {
		return errors.New("invalid order status")
	}
	*s = status
	return nil
}

func ParseOrderStatus(str string) (OrderStatus, error) {
	status, ok := orderStatuses[str]
	if !ok {
		return "", validationErrorf("unknown order status %q", str)
	}
	return status, nil
}

// Setting keys read by the engine.
const (
	SettingIgnoreStockLimits = "ignore_stock_limits"
	SettingShowStockPublicly = "show_stock_publicly"
	SettingContactPhone      = "contact_phone"
	SettingContactWhatsapp   = "contact_whatsapp"
	SettingContactTelegram   = "contact_telegram"
	SettingContactEmail      = "contact_email"
)

// Order event types published after commit.
const (
	OrderEventCreated       = "order.created"
	OrderEventStatusChanged = "order.status_changed"
	OrderEventEdited        = "order.edited"
	OrderEventReturned      = "order.returned"
)
