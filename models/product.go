package models

import (
	"context"
	"strings"
	"time"

	"github.com/mmdatafocus/orderdesk_backend/utils"
	"github.com/shopspring/decimal"
)

type Product struct {
	ID            int             `gorm:"primary_key" json:"id"`
	Sku           string          `gorm:"size:100;not null;uniqueIndex" json:"sku"`
	Name          string          `gorm:"size:255;not null;index" json:"name"`
	Price         decimal.Decimal `gorm:"type:decimal(20,2);default:0" json:"price"`
	Stock         int             `gorm:"not null;default:0" json:"stock"`
	IsVisible     *bool           `gorm:"not null;default:true" json:"is_visible"`
	SubcategoryId *int            `gorm:"index" json:"subcategory_id"`
	ImageUrl      string          `gorm:"size:512" json:"image_url"`
	CreatedAt     time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewProduct struct {
	Sku           string          `json:"sku" validate:"required,max=100"`
	Name          string          `json:"name" validate:"required,max=255"`
	Price         decimal.Decimal `json:"price"`
	Stock         int             `json:"stock" validate:"gte=0"`
	IsVisible     *bool           `json:"is_visible"`
	SubcategoryId *int            `json:"subcategory_id"`
	ImageUrl      string          `json:"image_url" validate:"omitempty,max=512"`
}

func (p *Product) label() string {
	return p.Name + " (sku " + p.Sku + ")"
}

func (input *NewProduct) validate() error {
	input.Sku = strings.TrimSpace(input.Sku)
	input.Name = strings.TrimSpace(input.Name)
	if err := utils.ValidateStruct(input); err != nil {
		return validationErrorf("%s", utils.ValidationMessage(err))
	}
	if input.Price.IsNegative() {
		return validationErrorf("price must not be negative")
	}
	return nil
}

// CreateProduct adds a catalog entry. Initial stock is the only stock write outside the ledger.
func (e *Engine) CreateProduct(ctx context.Context, input *NewProduct) (product *Product, err error) {
	ctx, span := startSpan(ctx, "CreateProduct")
	defer func() { endSpan(span, err) }()

	if _, err := requireAdmin(ctx); err != nil {
		return nil, err
	}
	if err := input.validate(); err != nil {
		return nil, err
	}

	isVisible := input.IsVisible
	if isVisible == nil {
		isVisible = utils.NewTrue()
	}
	product = &Product{
		Sku:           input.Sku,
		Name:          input.Name,
		Price:         input.Price,
		Stock:         input.Stock,
		IsVisible:     isVisible,
		SubcategoryId: input.SubcategoryId,
		ImageUrl:      input.ImageUrl,
	}

	err = e.store.WithinTransaction(ctx, func(tx Tx) error {
		existing, err := tx.FindProductBySku(input.Sku)
		if err != nil {
			return err
		}
		if existing != nil {
			return wrapf(ErrDuplicateSku, "sku %q is already used by product %q", input.Sku, existing.Name)
		}
		return tx.CreateProduct(product)
	})
	if err != nil {
		e.logError(ctx, "CreateProduct", "create product", input, err)
		return nil, err
	}
	return product, nil
}

func (e *Engine) GetProduct(ctx context.Context, id int) (*Product, error) {
	var product *Product
	err := e.store.WithinTransaction(ctx, func(tx Tx) error {
		var err error
		product, err = tx.GetProduct(id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return product, nil
}

func (e *Engine) ListProducts(ctx context.Context) ([]*Product, error) {
	if _, err := requireAdmin(ctx); err != nil {
		return nil, err
	}
	var products []*Product
	err := e.store.WithinTransaction(ctx, func(tx Tx) error {
		var err error
		products, err = tx.ListProducts()
		return err
	})
	return products, err
}
