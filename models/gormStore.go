package models

import (
	"context"
	"errors"
	"strings"

	mysqlDriver "github.com/go-sql-driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormStore runs engine transactions on MySQL. Row locks are SELECT ... FOR
// UPDATE; the wait bound is innodb_lock_wait_timeout set on the DSN.
type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) WithinTransaction(ctx context.Context, fn func(tx Tx) error) error {
	err := s.db.WithContext(ctx).Transaction(func(db *gorm.DB) error {
		return fn(&gormTx{db: db})
	})
	return translateDBError(err)
}

// translateDBError maps MySQL lock and key errors onto engine error kinds.
func translateDBError(err error) error {
	if err == nil || KindOf(err) != ErrorKindInternal {
		return err
	}
	var mysqlErr *mysqlDriver.MySQLError
	if errors.As(err, &mysqlErr) {
		switch mysqlErr.Number {
		case 1205, 1213:
			return wrapf(ErrLockTimeout, "%s", mysqlErr.Message)
		case 1062:
			if strings.Contains(strings.ToLower(mysqlErr.Message), "sku") {
				return wrapf(ErrDuplicateSku, "%s", mysqlErr.Message)
			}
			return wrapf(ErrConflict, "%s", mysqlErr.Message)
		}
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return wrapf(ErrNotFound, "%v", err)
	}
	return err
}

type gormTx struct {
	db *gorm.DB
}

func (t *gormTx) locked() *gorm.DB {
	return t.db.Clauses(clause.Locking{Strength: "UPDATE"})
}

func (t *gormTx) LockProducts(ids []int) (map[int]*Product, error) {
	products := make(map[int]*Product, len(ids))
	// One statement per row keeps the acquisition order explicit.
	for _, id := range ids {
		var product Product
		err := t.locked().Where("id = ?", id).Limit(1).Find(&product).Error
		if err != nil {
			return nil, translateDBError(err)
		}
		if product.ID == 0 {
			continue
		}
		products[id] = &product
	}
	return products, nil
}

func (t *gormTx) LockOrder(id int) (*Order, error) {
	var order Order
	if err := t.locked().Where("id = ?", id).First(&order).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, notFoundErrorf("order %d not found", id)
		}
		return nil, translateDBError(err)
	}
	if err := t.loadItems(&order); err != nil {
		return nil, err
	}
	return &order, nil
}

func (t *gormTx) loadItems(orders ...*Order) error {
	if len(orders) == 0 {
		return nil
	}
	ids := make([]int, 0, len(orders))
	byId := make(map[int]*Order, len(orders))
	for _, o := range orders {
		ids = append(ids, o.ID)
		byId[o.ID] = o
		o.Items = nil
	}
	var items []*OrderItem
	if err := t.db.Where("order_id IN ?", ids).Order("id").Find(&items).Error; err != nil {
		return err
	}
	for _, item := range items {
		o := byId[item.OrderId]
		o.Items = append(o.Items, item)
	}
	return nil
}

func (t *gormTx) GetProduct(id int) (*Product, error) {
	var product Product
	if err := t.db.Where("id = ?", id).First(&product).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, notFoundErrorf("product %d not found", id)
		}
		return nil, err
	}
	return &product, nil
}

func (t *gormTx) GetProductsByIds(ids []int) (map[int]*Product, error) {
	result := make(map[int]*Product, len(ids))
	if len(ids) == 0 {
		return result, nil
	}
	var products []*Product
	if err := t.db.Where("id IN ?", ids).Find(&products).Error; err != nil {
		return nil, err
	}
	for _, p := range products {
		result[p.ID] = p
	}
	return result, nil
}

func (t *gormTx) FindProductBySku(sku string) (*Product, error) {
	var products []*Product
	if err := t.db.Where("sku = ?", sku).Limit(1).Find(&products).Error; err != nil {
		return nil, err
	}
	if len(products) == 0 {
		return nil, nil
	}
	return products[0], nil
}

func (t *gormTx) ListProducts() ([]*Product, error) {
	var products []*Product
	if err := t.db.Order("name, id").Find(&products).Error; err != nil {
		return nil, err
	}
	return products, nil
}

func (t *gormTx) CreateProduct(product *Product) error {
	return t.db.Create(product).Error
}

func (t *gormTx) UpdateProduct(product *Product) error {
	return t.db.Model(&Product{ID: product.ID}).Updates(map[string]interface{}{
		"sku":            product.Sku,
		"name":           product.Name,
		"price":          product.Price,
		"is_visible":     product.IsVisible,
		"subcategory_id": product.SubcategoryId,
		"image_url":      product.ImageUrl,
	}).Error
}

func (t *gormTx) AdjustStock(productId int, delta int) error {
	res := t.db.Model(&Product{}).Where("id = ?", productId).
		UpdateColumn("stock", gorm.Expr("stock + ?", delta))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return notFoundErrorf("product %d not found", productId)
	}
	return nil
}

func (t *gormTx) SetStock(productId int, stock int) error {
	// RowsAffected is 0 for an unchanged value too, so existence is the caller's lock.
	return t.db.Model(&Product{}).Where("id = ?", productId).UpdateColumn("stock", stock).Error
}

func (t *gormTx) CreateOrder(order *Order) error {
	return t.db.Create(order).Error
}

func (t *gormTx) GetOrder(id int) (*Order, error) {
	var order Order
	if err := t.db.Where("id = ?", id).First(&order).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, notFoundErrorf("order %d not found", id)
		}
		return nil, err
	}
	if err := t.loadItems(&order); err != nil {
		return nil, err
	}
	return &order, nil
}

func (t *gormTx) GetOrderByPrivateKey(key string) (*Order, error) {
	var order Order
	if err := t.db.Where("private_key = ?", key).First(&order).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, notFoundErrorf("order not found")
		}
		return nil, err
	}
	if err := t.loadItems(&order); err != nil {
		return nil, err
	}
	return &order, nil
}

func (t *gormTx) ListOrders(filter *OrderFilter) ([]*Order, error) {
	db := t.db.Model(&Order{})
	if len(filter.Statuses) > 0 {
		db = db.Where("status IN ?", filter.Statuses)
	}
	field := "created_at"
	if filter.DateField == "deleted_at" {
		field = "deleted_at"
	}
	if filter.From != nil {
		db = db.Where(field+" >= ?", *filter.From)
	}
	if filter.To != nil {
		db = db.Where(field+" < ?", *filter.To)
	}
	var orders []*Order
	if err := db.Order("id").Find(&orders).Error; err != nil {
		return nil, err
	}
	if err := t.loadItems(orders...); err != nil {
		return nil, err
	}
	return orders, nil
}

func (t *gormTx) UpdateOrder(order *Order) error {
	return t.db.Omit(clause.Associations).Save(order).Error
}

func (t *gormTx) UpdateOrderItem(item *OrderItem) error {
	return t.db.Model(&OrderItem{}).Where("id = ?", item.ID).Updates(map[string]interface{}{
		"quantity":          item.Quantity,
		"returned_quantity": item.ReturnedQuantity,
		"comment":           item.Comment,
	}).Error
}

func (t *gormTx) DeleteOrderItems(orderId int, itemIds []int) error {
	if len(itemIds) == 0 {
		return nil
	}
	return t.db.Where("order_id = ? AND id IN ?", orderId, itemIds).Delete(&OrderItem{}).Error
}

// NextOrderSequence creates the period row on first use, then increments it
// under a row lock so concurrent creators get distinct values.
func (t *gormTx) NextOrderSequence(period string) (int64, error) {
	if err := t.db.Clauses(clause.OnConflict{DoNothing: true}).Create(&OrderSequence{Period: period}).Error; err != nil {
		return 0, err
	}
	var seq OrderSequence
	if err := t.locked().Where("period = ?", period).First(&seq).Error; err != nil {
		return 0, err
	}
	seq.LastValue++
	if err := t.db.Model(&OrderSequence{}).Where("period = ?", period).Update("last_value", seq.LastValue).Error; err != nil {
		return 0, err
	}
	return seq.LastValue, nil
}

func (t *gormTx) AppendTransition(transition *OrderTransition) error {
	return t.db.Create(transition).Error
}

func (t *gormTx) ListTransitions(orderId int) ([]*OrderTransition, error) {
	var transitions []*OrderTransition
	if err := t.db.Where("order_id = ?", orderId).Order("id").Find(&transitions).Error; err != nil {
		return nil, err
	}
	return transitions, nil
}

func (t *gormTx) ReservedQuantities() (map[int]ReservedStock, error) {
	var rows []struct {
		ProductId int
		Status    OrderStatus
		Quantity  int
	}
	err := t.db.Table("order_items").
		Select("order_items.product_id, orders.status, SUM(order_items.quantity) AS quantity").
		Joins("JOIN orders ON orders.id = order_items.order_id").
		Where("orders.status IN ?", []OrderStatus{OrderStatusNew, OrderStatusProcessed}).
		Group("order_items.product_id, orders.status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	reserved := make(map[int]ReservedStock)
	for _, row := range rows {
		r := reserved[row.ProductId]
		if row.Status == OrderStatusNew {
			r.New += row.Quantity
		} else {
			r.Processed += row.Quantity
		}
		reserved[row.ProductId] = r
	}
	return reserved, nil
}

// settingKey quotes the column; key is reserved in MySQL.
func settingKey(key string) clause.Eq {
	return clause.Eq{Column: clause.Column{Name: "key"}, Value: key}
}

func (t *gormTx) GetSetting(key string) (*AppSetting, error) {
	var setting AppSetting
	if err := t.db.Where(settingKey(key)).First(&setting).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, notFoundErrorf("setting %q not found", key)
		}
		return nil, err
	}
	return &setting, nil
}

func (t *gormTx) ListSettings() ([]*AppSetting, error) {
	var settings []*AppSetting
	if err := t.db.Order(clause.OrderByColumn{Column: clause.Column{Name: "key"}}).Find(&settings).Error; err != nil {
		return nil, err
	}
	return settings, nil
}

func (t *gormTx) SaveSetting(setting *AppSetting) error {
	return t.db.Clauses(clause.OnConflict{UpdateAll: true}).Create(setting).Error
}
