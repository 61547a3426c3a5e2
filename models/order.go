package models

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mmdatafocus/orderdesk_backend/utils"
	"github.com/shopspring/decimal"
)

type Order struct {
	ID                     int              `gorm:"primary_key" json:"id"`
	OrderNumber            string           `gorm:"size:32;index" json:"order_number"`
	PrivateKey             string           `gorm:"size:64;uniqueIndex" json:"private_key"`
	CustomerName           string           `gorm:"size:255;not null" json:"customer_name"`
	CustomerPhone          string           `gorm:"size:32" json:"customer_phone"`
	CustomerComment        string           `gorm:"type:text" json:"customer_comment"`
	Status                 OrderStatus      `gorm:"size:32;not null;index" json:"status"`
	DiscountPercent        decimal.Decimal  `gorm:"type:decimal(5,2);default:0" json:"discount_percent"`
	TotalReturnedAmount    *decimal.Decimal `gorm:"type:decimal(20,2)" json:"total_returned_amount"`
	ReturnWithoutDiscount  bool             `json:"return_without_discount"`
	DeletionReason         string           `gorm:"type:text" json:"deletion_reason"`
	InvoiceDocumentPath    string           `gorm:"size:512" json:"invoice_document_path"`
	InvoiceSpreadsheetPath string           `gorm:"size:512" json:"invoice_spreadsheet_path"`
	Items                  []*OrderItem     `gorm:"foreignKey:OrderId" json:"items"`
	CreatedAt              time.Time        `gorm:"index" json:"created_at"`
	ProcessedAt            *time.Time       `json:"processed_at"`
	CompletedAt            *time.Time       `json:"completed_at"`
	ReturnedAt             *time.Time       `json:"returned_at"`
	DeletedAt              *time.Time       `gorm:"index" json:"deleted_at"`
	UpdatedAt              time.Time        `gorm:"autoUpdateTime" json:"updated_at"`
}

type OrderItem struct {
	ID               int             `gorm:"primary_key" json:"id"`
	OrderId          int             `gorm:"index;not null" json:"order_id"`
	ProductId        int             `gorm:"index;not null" json:"product_id"`
	Quantity         int             `gorm:"not null" json:"quantity"`
	PricePerItem     decimal.Decimal `gorm:"type:decimal(20,2);not null" json:"price_per_item"`
	ReturnedQuantity int             `gorm:"not null;default:0" json:"returned_quantity"`
	Comment          string          `gorm:"type:text" json:"comment"`
}

type NewOrder struct {
	CustomerName    string         `json:"customer_name" validate:"required,max=255"`
	CustomerPhone   string         `json:"customer_phone" validate:"required,max=32"`
	CustomerComment string         `json:"customer_comment" validate:"max=2000"`
	Items           []NewOrderItem `json:"items" validate:"required,min=1,dive"`
}

type NewOrderItem struct {
	ProductId int    `json:"product_id" validate:"required,gt=0"`
	Quantity  int    `json:"quantity" validate:"required,gt=0"`
	Comment   string `json:"comment" validate:"max=1000"`
}

// OrderListFilter is the caller-facing filter; Date selects one calendar day.
type OrderListFilter struct {
	Status *OrderStatus
	Date   *time.Time
}

func (o *Order) item(id int) *OrderItem {
	for _, item := range o.Items {
		if item.ID == id {
			return item
		}
	}
	return nil
}

// quantitiesByProduct sums item quantities per product.
func (o *Order) quantitiesByProduct() map[int]int {
	need := make(map[int]int, len(o.Items))
	for _, item := range o.Items {
		need[item.ProductId] += item.Quantity
	}
	return need
}

func (o *Order) productIds() []int {
	ids := make([]int, 0, len(o.Items))
	for _, item := range o.Items {
		ids = append(ids, item.ProductId)
	}
	return utils.SortedUniqueInts(ids)
}

func (o *Order) fullyReturned() bool {
	for _, item := range o.Items {
		if item.ReturnedQuantity < item.Quantity {
			return false
		}
	}
	return true
}

func (o *Order) Subtotal() decimal.Decimal {
	total := decimal.Zero
	for _, item := range o.Items {
		total = total.Add(item.PricePerItem.Mul(decimal.NewFromInt(int64(item.Quantity))))
	}
	return total
}

func (o *Order) Total() decimal.Decimal {
	return utils.ApplyDiscountPercent(o.Subtotal(), o.DiscountPercent)
}

func (o *Order) ref() string {
	if o.OrderNumber != "" {
		return o.OrderNumber
	}
	return fmt.Sprintf("#%d", o.ID)
}

func (input *NewOrder) validate(region string) error {
	input.CustomerName = strings.TrimSpace(input.CustomerName)
	input.CustomerPhone = strings.TrimSpace(input.CustomerPhone)
	input.CustomerComment = strings.TrimSpace(input.CustomerComment)
	if err := utils.ValidateStruct(input); err != nil {
		return validationErrorf("%s", utils.ValidationMessage(err))
	}
	if err := utils.ValidatePhoneNumber(input.CustomerPhone, region); err != nil {
		return validationErrorf("customer_phone %q: %v", input.CustomerPhone, err)
	}
	input.CustomerPhone = utils.FormatPhoneNumber(input.CustomerPhone, region)
	return nil
}

// CreateOrder places a customer order. The stock check here is advisory: it
// reads without locks and never debits. Enforcement happens at completion.
func (e *Engine) CreateOrder(ctx context.Context, input *NewOrder) (order *Order, err error) {
	ctx, span := startSpan(ctx, "CreateOrder")
	defer func() { endSpan(span, err) }()

	if err := input.validate(e.phoneRegion); err != nil {
		return nil, err
	}
	actor := actorId(ctx)

	err = e.store.WithinTransaction(ctx, func(tx Tx) error {
		ids := make([]int, 0, len(input.Items))
		need := make(map[int]int, len(input.Items))
		for _, item := range input.Items {
			ids = append(ids, item.ProductId)
			need[item.ProductId] += item.Quantity
		}
		ids = utils.SortedUniqueInts(ids)
		products, err := tx.GetProductsByIds(ids)
		if err != nil {
			return err
		}
		for _, id := range ids {
			if _, ok := products[id]; !ok {
				return notFoundErrorf("product %d not found", id)
			}
		}

		ignoreLimits, err := e.settingBool(tx, SettingIgnoreStockLimits)
		if err != nil {
			return err
		}
		if !ignoreLimits {
			var shortages []string
			for _, id := range ids {
				if p := products[id]; p.Stock < need[id] {
					shortages = append(shortages, fmt.Sprintf("%s has %d in stock, %d requested", p.label(), p.Stock, need[id]))
				}
			}
			if len(shortages) > 0 {
				return wrapf(ErrInsufficientStock, "%s", strings.Join(shortages, "; "))
			}
		}

		now := e.now()
		order = &Order{
			PrivateKey:      strings.ReplaceAll(uuid.NewString(), "-", ""),
			CustomerName:    input.CustomerName,
			CustomerPhone:   input.CustomerPhone,
			CustomerComment: input.CustomerComment,
			Status:          OrderStatusNew,
			DiscountPercent: decimal.Zero,
			CreatedAt:       now,
		}
		for _, item := range input.Items {
			order.Items = append(order.Items, &OrderItem{
				ProductId:    item.ProductId,
				Quantity:     item.Quantity,
				PricePerItem: products[item.ProductId].Price,
				Comment:      strings.TrimSpace(item.Comment),
			})
		}
		if err := tx.CreateOrder(order); err != nil {
			return err
		}

		// The number derives from the period sequence once the row exists.
		period := orderPeriod(now)
		seq, err := tx.NextOrderSequence(period)
		if err != nil {
			return err
		}
		order.OrderNumber = FormatOrderNumber(period, seq)

		if err := e.renderInvoices(ctx, tx, order, products); err != nil {
			return err
		}
		if err := tx.UpdateOrder(order); err != nil {
			return err
		}
		return tx.AppendTransition(&OrderTransition{
			OrderId:   order.ID,
			ToStatus:  OrderStatusNew,
			ActorId:   actor,
			CreatedAt: now,
		})
	})
	if err != nil {
		e.logError(ctx, "CreateOrder", "create order", input, err)
		return nil, err
	}

	e.publish(ctx, OrderEventCreated, newOrderEvent(order, "", OrderStatusNew, actor, e.now()))
	return order, nil
}

func (e *Engine) GetOrder(ctx context.Context, id int) (*Order, error) {
	if _, err := requireAdmin(ctx); err != nil {
		return nil, err
	}
	var order *Order
	err := e.store.WithinTransaction(ctx, func(tx Tx) error {
		var err error
		order, err = tx.GetOrder(id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return order, nil
}

// GetOrderByPrivateKey is the customer-facing lookup; it needs no admin rights.
func (e *Engine) GetOrderByPrivateKey(ctx context.Context, key string) (*Order, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, validationErrorf("order key is required")
	}
	var order *Order
	err := e.store.WithinTransaction(ctx, func(tx Tx) error {
		var err error
		order, err = tx.GetOrderByPrivateKey(key)
		return err
	})
	if err != nil {
		return nil, err
	}
	return order, nil
}

// ListOrders returns orders in ascending id. Without a status filter deleted
// orders are hidden. The date filter matches deleted_at when listing deleted
// orders and created_at otherwise.
func (e *Engine) ListOrders(ctx context.Context, input *OrderListFilter) ([]*Order, error) {
	if _, err := requireAdmin(ctx); err != nil {
		return nil, err
	}
	filter := &OrderFilter{DateField: "created_at"}
	if input != nil && input.Status != nil {
		if !input.Status.IsValid() {
			return nil, validationErrorf("unknown order status %q", *input.Status)
		}
		filter.Statuses = []OrderStatus{*input.Status}
		if *input.Status == OrderStatusDeleted {
			filter.DateField = "deleted_at"
		}
	} else {
		filter.Statuses = []OrderStatus{
			OrderStatusNew,
			OrderStatusProcessed,
			OrderStatusCompleted,
			OrderStatusReturned,
			OrderStatusPartiallyReturned,
		}
	}
	if input != nil && input.Date != nil {
		d := *input.Date
		from := time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, d.Location())
		to := from.AddDate(0, 0, 1)
		filter.From = &from
		filter.To = &to
	}

	var orders []*Order
	err := e.store.WithinTransaction(ctx, func(tx Tx) error {
		var err error
		orders, err = tx.ListOrders(filter)
		return err
	})
	if err != nil {
		return nil, err
	}
	return orders, nil
}
