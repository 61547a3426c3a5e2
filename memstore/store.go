// Package memstore is an in-process implementation of models.Store for tests
// and single-instance demos. Writes are staged per transaction and applied on
// commit; row locks are exclusive and bounded by Options.LockTimeout.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/mmdatafocus/orderdesk_backend/models"
)

type Options struct {
	LockTimeout time.Duration
}

type Store struct {
	mu          sync.Mutex
	locks       *keyedLocks
	lockTimeout time.Duration

	products    map[int]*models.Product
	orders      map[int]*models.Order
	items       map[int]*models.OrderItem
	transitions []*models.OrderTransition
	sequences   map[string]int64
	settings    map[string]*models.AppSetting

	lastProductId    int
	lastOrderId      int
	lastItemId       int
	lastTransitionId int
}

func New(opts Options) *Store {
	if opts.LockTimeout <= 0 {
		opts.LockTimeout = 5 * time.Second
	}
	return &Store{
		locks:       newKeyedLocks(),
		lockTimeout: opts.LockTimeout,
		products:    make(map[int]*models.Product),
		orders:      make(map[int]*models.Order),
		items:       make(map[int]*models.OrderItem),
		sequences:   make(map[string]int64),
		settings:    make(map[string]*models.AppSetting),
	}
}

func (s *Store) WithinTransaction(ctx context.Context, fn func(tx models.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	t := &tx{
		s:            s,
		ctx:          ctx,
		held:         make(map[string]bool),
		products:     make(map[int]*models.Product),
		orders:       make(map[int]*models.Order),
		items:        make(map[int]*models.OrderItem),
		deletedItems: make(map[int]bool),
		settings:     make(map[string]*models.AppSetting),
	}
	defer t.releaseLocks()
	if err := fn(t); err != nil {
		return err
	}
	return t.commit()
}

// Stock returns the committed stock of a product, or -1 when it does not exist.
func (s *Store) Stock(productId int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.products[productId]; ok {
		return p.Stock
	}
	return -1
}

type tx struct {
	s        *Store
	ctx      context.Context
	held     map[string]bool
	acquired []string

	products     map[int]*models.Product
	orders       map[int]*models.Order
	items        map[int]*models.OrderItem
	deletedItems map[int]bool
	transitions  []*models.OrderTransition
	settings     map[string]*models.AppSetting
}

func productKey(id int) string { return fmt.Sprintf("product:%d", id) }
func orderKey(id int) string   { return fmt.Sprintf("order:%d", id) }

func (t *tx) lock(key string) error {
	if t.held[key] {
		return nil
	}
	if err := t.s.locks.acquire(t.ctx, key, t.s.lockTimeout); err != nil {
		return err
	}
	t.held[key] = true
	t.acquired = append(t.acquired, key)
	return nil
}

func (t *tx) releaseLocks() {
	for i := len(t.acquired) - 1; i >= 0; i-- {
		t.s.locks.release(t.acquired[i])
	}
	t.acquired = nil
	t.held = map[string]bool{}
}

func (t *tx) commit() error {
	s := t.s
	s.mu.Lock()
	defer s.mu.Unlock()

	final := make(map[int]*models.Product, len(s.products)+len(t.products))
	for id, p := range s.products {
		final[id] = p
	}
	for id, p := range t.products {
		final[id] = p
	}
	skus := make(map[string]int, len(final))
	for id, p := range final {
		if other, ok := skus[p.Sku]; ok {
			if other > id {
				id, other = other, id
			}
			return fmt.Errorf("%w: sku %q is used by product %d and product %d", models.ErrDuplicateSku, p.Sku, other, id)
		}
		skus[p.Sku] = id
	}

	for id, p := range t.products {
		s.products[id] = p
	}
	for id, o := range t.orders {
		s.orders[id] = o
	}
	for id := range t.deletedItems {
		delete(s.items, id)
	}
	for id, item := range t.items {
		if !t.deletedItems[id] {
			s.items[id] = item
		}
	}
	s.transitions = append(s.transitions, t.transitions...)
	for key, setting := range t.settings {
		s.settings[key] = setting
	}
	return nil
}

func copyProduct(p *models.Product) *models.Product {
	c := *p
	if p.IsVisible != nil {
		v := *p.IsVisible
		c.IsVisible = &v
	}
	if p.SubcategoryId != nil {
		v := *p.SubcategoryId
		c.SubcategoryId = &v
	}
	return &c
}

func copyOrder(o *models.Order) *models.Order {
	c := *o
	c.Items = nil
	if o.TotalReturnedAmount != nil {
		v := *o.TotalReturnedAmount
		c.TotalReturnedAmount = &v
	}
	for _, ts := range []**time.Time{&c.ProcessedAt, &c.CompletedAt, &c.ReturnedAt, &c.DeletedAt} {
		if *ts != nil {
			v := **ts
			*ts = &v
		}
	}
	return &c
}

func copyItem(i *models.OrderItem) *models.OrderItem {
	c := *i
	return &c
}

// product returns a private copy of the current view of a product.
func (t *tx) product(id int) (*models.Product, bool) {
	if p, ok := t.products[id]; ok {
		return copyProduct(p), true
	}
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	p, ok := t.s.products[id]
	if !ok {
		return nil, false
	}
	return copyProduct(p), true
}

func (t *tx) LockProducts(ids []int) (map[int]*models.Product, error) {
	products := make(map[int]*models.Product, len(ids))
	for _, id := range ids {
		if _, ok := t.product(id); !ok {
			continue
		}
		if err := t.lock(productKey(id)); err != nil {
			return nil, err
		}
		// Re-read after the lock so the row reflects the previous holder's commit.
		p, ok := t.product(id)
		if !ok {
			continue
		}
		products[id] = p
	}
	return products, nil
}

func (t *tx) GetProduct(id int) (*models.Product, error) {
	p, ok := t.product(id)
	if !ok {
		return nil, fmt.Errorf("%w: product %d not found", models.ErrNotFound, id)
	}
	return p, nil
}

func (t *tx) GetProductsByIds(ids []int) (map[int]*models.Product, error) {
	products := make(map[int]*models.Product, len(ids))
	for _, id := range ids {
		if p, ok := t.product(id); ok {
			products[id] = p
		}
	}
	return products, nil
}

func (t *tx) allProducts() []*models.Product {
	t.s.mu.Lock()
	ids := make(map[int]bool, len(t.s.products))
	for id := range t.s.products {
		ids[id] = true
	}
	t.s.mu.Unlock()
	for id := range t.products {
		ids[id] = true
	}
	products := make([]*models.Product, 0, len(ids))
	for id := range ids {
		if p, ok := t.product(id); ok {
			products = append(products, p)
		}
	}
	sort.Slice(products, func(i, j int) bool { return products[i].ID < products[j].ID })
	return products
}

func (t *tx) FindProductBySku(sku string) (*models.Product, error) {
	for _, p := range t.allProducts() {
		if p.Sku == sku {
			return p, nil
		}
	}
	return nil, nil
}

func (t *tx) ListProducts() ([]*models.Product, error) {
	products := t.allProducts()
	sort.SliceStable(products, func(i, j int) bool { return products[i].Name < products[j].Name })
	return products, nil
}

func (t *tx) CreateProduct(product *models.Product) error {
	t.s.mu.Lock()
	t.s.lastProductId++
	product.ID = t.s.lastProductId
	t.s.mu.Unlock()
	now := time.Now().UTC()
	product.CreatedAt, product.UpdatedAt = now, now
	t.products[product.ID] = copyProduct(product)
	// A row created here is implicitly held by this transaction.
	t.held[productKey(product.ID)] = true
	return nil
}

func (t *tx) UpdateProduct(product *models.Product) error {
	current, ok := t.product(product.ID)
	if !ok {
		return fmt.Errorf("%w: product %d not found", models.ErrNotFound, product.ID)
	}
	next := copyProduct(product)
	next.Stock = current.Stock
	next.CreatedAt = current.CreatedAt
	next.UpdatedAt = time.Now().UTC()
	t.products[product.ID] = next
	return nil
}

func (t *tx) stockRow(productId int) (*models.Product, error) {
	if !t.held[productKey(productId)] {
		return nil, fmt.Errorf("stock write on product %d without holding its lock", productId)
	}
	p, ok := t.product(productId)
	if !ok {
		return nil, fmt.Errorf("%w: product %d not found", models.ErrNotFound, productId)
	}
	return p, nil
}

func (t *tx) AdjustStock(productId int, delta int) error {
	p, err := t.stockRow(productId)
	if err != nil {
		return err
	}
	p.Stock += delta
	t.products[productId] = p
	return nil
}

func (t *tx) SetStock(productId int, stock int) error {
	p, err := t.stockRow(productId)
	if err != nil {
		return err
	}
	p.Stock = stock
	t.products[productId] = p
	return nil
}

// orderRow returns a copy of the order columns without items.
func (t *tx) orderRow(id int) (*models.Order, bool) {
	if o, ok := t.orders[id]; ok {
		return copyOrder(o), true
	}
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	o, ok := t.s.orders[id]
	if !ok {
		return nil, false
	}
	return copyOrder(o), true
}

func (t *tx) orderItems(orderId int) []*models.OrderItem {
	byId := make(map[int]*models.OrderItem)
	t.s.mu.Lock()
	for id, item := range t.s.items {
		if item.OrderId == orderId {
			byId[id] = copyItem(item)
		}
	}
	t.s.mu.Unlock()
	for id, item := range t.items {
		if item.OrderId == orderId {
			byId[id] = copyItem(item)
		}
	}
	items := make([]*models.OrderItem, 0, len(byId))
	for id, item := range byId {
		if !t.deletedItems[id] {
			items = append(items, item)
		}
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })
	return items
}

func (t *tx) fullOrder(id int) (*models.Order, bool) {
	o, ok := t.orderRow(id)
	if !ok {
		return nil, false
	}
	o.Items = t.orderItems(id)
	return o, true
}

func (t *tx) LockOrder(id int) (*models.Order, error) {
	if _, ok := t.orderRow(id); !ok {
		return nil, fmt.Errorf("%w: order %d not found", models.ErrNotFound, id)
	}
	if err := t.lock(orderKey(id)); err != nil {
		return nil, err
	}
	o, ok := t.fullOrder(id)
	if !ok {
		return nil, fmt.Errorf("%w: order %d not found", models.ErrNotFound, id)
	}
	return o, nil
}

func (t *tx) CreateOrder(order *models.Order) error {
	t.s.mu.Lock()
	t.s.lastOrderId++
	order.ID = t.s.lastOrderId
	for _, item := range order.Items {
		t.s.lastItemId++
		item.ID = t.s.lastItemId
		item.OrderId = order.ID
	}
	t.s.mu.Unlock()
	if order.CreatedAt.IsZero() {
		order.CreatedAt = time.Now().UTC()
	}
	order.UpdatedAt = order.CreatedAt
	t.orders[order.ID] = copyOrder(order)
	for _, item := range order.Items {
		t.items[item.ID] = copyItem(item)
	}
	t.held[orderKey(order.ID)] = true
	return nil
}

func (t *tx) GetOrder(id int) (*models.Order, error) {
	o, ok := t.fullOrder(id)
	if !ok {
		return nil, fmt.Errorf("%w: order %d not found", models.ErrNotFound, id)
	}
	return o, nil
}

func (t *tx) allOrderIds() []int {
	t.s.mu.Lock()
	set := make(map[int]bool, len(t.s.orders))
	for id := range t.s.orders {
		set[id] = true
	}
	t.s.mu.Unlock()
	for id := range t.orders {
		set[id] = true
	}
	ids := make([]int, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

func (t *tx) GetOrderByPrivateKey(key string) (*models.Order, error) {
	for _, id := range t.allOrderIds() {
		if o, ok := t.orderRow(id); ok && o.PrivateKey == key {
			return t.GetOrder(id)
		}
	}
	return nil, fmt.Errorf("%w: order not found", models.ErrNotFound)
}

func (t *tx) ListOrders(filter *models.OrderFilter) ([]*models.Order, error) {
	statuses := make(map[models.OrderStatus]bool, len(filter.Statuses))
	for _, s := range filter.Statuses {
		statuses[s] = true
	}
	var orders []*models.Order
	for _, id := range t.allOrderIds() {
		o, ok := t.orderRow(id)
		if !ok {
			continue
		}
		if len(statuses) > 0 && !statuses[o.Status] {
			continue
		}
		if filter.From != nil || filter.To != nil {
			at := &o.CreatedAt
			if filter.DateField == "deleted_at" {
				at = o.DeletedAt
			}
			if at == nil {
				continue
			}
			if filter.From != nil && at.Before(*filter.From) {
				continue
			}
			if filter.To != nil && !at.Before(*filter.To) {
				continue
			}
		}
		o.Items = t.orderItems(id)
		orders = append(orders, o)
	}
	return orders, nil
}

func (t *tx) requireOrderLock(id int) error {
	if !t.held[orderKey(id)] {
		return fmt.Errorf("write on order %d without holding its lock", id)
	}
	return nil
}

func (t *tx) UpdateOrder(order *models.Order) error {
	if err := t.requireOrderLock(order.ID); err != nil {
		return err
	}
	row := copyOrder(order)
	row.UpdatedAt = time.Now().UTC()
	t.orders[order.ID] = row
	return nil
}

func (t *tx) UpdateOrderItem(item *models.OrderItem) error {
	if err := t.requireOrderLock(item.OrderId); err != nil {
		return err
	}
	t.items[item.ID] = copyItem(item)
	return nil
}

func (t *tx) DeleteOrderItems(orderId int, itemIds []int) error {
	if err := t.requireOrderLock(orderId); err != nil {
		return err
	}
	for _, id := range itemIds {
		t.deletedItems[id] = true
	}
	return nil
}

// NextOrderSequence hands out values immediately; a rolled back transaction
// leaves a gap, never a duplicate.
func (t *tx) NextOrderSequence(period string) (int64, error) {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	t.s.sequences[period]++
	return t.s.sequences[period], nil
}

func (t *tx) AppendTransition(transition *models.OrderTransition) error {
	t.s.mu.Lock()
	t.s.lastTransitionId++
	transition.ID = t.s.lastTransitionId
	t.s.mu.Unlock()
	c := *transition
	t.transitions = append(t.transitions, &c)
	return nil
}

func (t *tx) ListTransitions(orderId int) ([]*models.OrderTransition, error) {
	var transitions []*models.OrderTransition
	t.s.mu.Lock()
	for _, tr := range t.s.transitions {
		if tr.OrderId == orderId {
			c := *tr
			transitions = append(transitions, &c)
		}
	}
	t.s.mu.Unlock()
	for _, tr := range t.transitions {
		if tr.OrderId == orderId {
			c := *tr
			transitions = append(transitions, &c)
		}
	}
	sort.SliceStable(transitions, func(i, j int) bool { return transitions[i].ID < transitions[j].ID })
	return transitions, nil
}

func (t *tx) ReservedQuantities() (map[int]models.ReservedStock, error) {
	reserved := make(map[int]models.ReservedStock)
	for _, id := range t.allOrderIds() {
		o, ok := t.orderRow(id)
		if !ok || (o.Status != models.OrderStatusNew && o.Status != models.OrderStatusProcessed) {
			continue
		}
		for _, item := range t.orderItems(id) {
			r := reserved[item.ProductId]
			if o.Status == models.OrderStatusNew {
				r.New += item.Quantity
			} else {
				r.Processed += item.Quantity
			}
			reserved[item.ProductId] = r
		}
	}
	return reserved, nil
}

func (t *tx) GetSetting(key string) (*models.AppSetting, error) {
	if s, ok := t.settings[key]; ok {
		c := *s
		return &c, nil
	}
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	s, ok := t.s.settings[key]
	if !ok {
		return nil, fmt.Errorf("%w: setting %q not found", models.ErrNotFound, key)
	}
	c := *s
	return &c, nil
}

func (t *tx) ListSettings() ([]*models.AppSetting, error) {
	byKey := make(map[string]*models.AppSetting)
	t.s.mu.Lock()
	for key, s := range t.s.settings {
		c := *s
		byKey[key] = &c
	}
	t.s.mu.Unlock()
	for key, s := range t.settings {
		c := *s
		byKey[key] = &c
	}
	settings := make([]*models.AppSetting, 0, len(byKey))
	for _, s := range byKey {
		settings = append(settings, s)
	}
	sort.Slice(settings, func(i, j int) bool { return settings[i].Key < settings[j].Key })
	return settings, nil
}

func (t *tx) SaveSetting(setting *models.AppSetting) error {
	c := *setting
	if c.UpdatedAt.IsZero() {
		c.UpdatedAt = time.Now().UTC()
	}
	t.settings[setting.Key] = &c
	return nil
}

// SeedProducts inserts products directly, bypassing transactions. Tests and
// the demo seeder use it.
func (s *Store) SeedProducts(products ...*models.Product) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range products {
		s.lastProductId++
		p.ID = s.lastProductId
		if p.IsVisible == nil {
			v := true
			p.IsVisible = &v
		}
		s.products[p.ID] = copyProduct(p)
	}
}
