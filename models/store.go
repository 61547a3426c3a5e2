package models

import (
	"context"
	"time"
)

// Store runs one transaction per caller operation. fn's error rolls the
// transaction back; a nil return commits it.
type Store interface {
	WithinTransaction(ctx context.Context, fn func(tx Tx) error) error
}

// Tx is the storage surface the engine works against.
//
// LockProducts and LockOrder take exclusive row locks held until the
// transaction ends. A lock wait longer than the store's bound fails with
// ErrLockTimeout. Stock writes (AdjustStock, SetStock) are only valid on
// products locked by the same transaction.
type Tx interface {
	// LockProducts locks the given products one by one in ascending id order
	// and returns the fresh rows. Unknown ids are absent from the map.
	LockProducts(ids []int) (map[int]*Product, error)
	// LockOrder locks the order row and returns it with its items.
	LockOrder(id int) (*Order, error)

	GetProduct(id int) (*Product, error)
	GetProductsByIds(ids []int) (map[int]*Product, error)
	// FindProductBySku returns nil, nil when no product carries sku.
	FindProductBySku(sku string) (*Product, error)
	ListProducts() ([]*Product, error)
	CreateProduct(product *Product) error
	// UpdateProduct writes catalog fields (sku, name, price, visibility, subcategory); never stock.
	UpdateProduct(product *Product) error
	AdjustStock(productId int, delta int) error
	SetStock(productId int, stock int) error

	CreateOrder(order *Order) error
	GetOrder(id int) (*Order, error)
	GetOrderByPrivateKey(key string) (*Order, error)
	ListOrders(filter *OrderFilter) ([]*Order, error)
	// UpdateOrder writes order columns; items are written separately.
	UpdateOrder(order *Order) error
	UpdateOrderItem(item *OrderItem) error
	DeleteOrderItems(orderId int, itemIds []int) error
	NextOrderSequence(period string) (int64, error)

	AppendTransition(transition *OrderTransition) error
	ListTransitions(orderId int) ([]*OrderTransition, error)
	// ReservedQuantities sums item quantities of new and processed orders per product.
	ReservedQuantities() (map[int]ReservedStock, error)

	GetSetting(key string) (*AppSetting, error)
	ListSettings() ([]*AppSetting, error)
	SaveSetting(setting *AppSetting) error
}

type OrderFilter struct {
	Statuses []OrderStatus
	// DateField is "created_at" or "deleted_at".
	DateField string
	From      *time.Time
	To        *time.Time
}

type ReservedStock struct {
	New       int `json:"new"`
	Processed int `json:"processed"`
}

// SettingsCache is an optional read-through cache in front of AppSetting rows.
type SettingsCache interface {
	GetSetting(key string) (string, bool)
	SetSetting(key string, value string)
	InvalidateSetting(key string)
}

// BatchLocker serializes long batch jobs across service instances.
type BatchLocker interface {
	Obtain(ctx context.Context, key string, ttl time.Duration) (release func(), err error)
}

// EventPublisher receives order lifecycle events after commit.
type EventPublisher interface {
	Publish(ctx context.Context, eventType string, payload any) error
}
