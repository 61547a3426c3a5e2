package models_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/mmdatafocus/orderdesk_backend/memstore"
	"github.com/mmdatafocus/orderdesk_backend/models"
	"github.com/mmdatafocus/orderdesk_backend/utils"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

const testPhone = "+7 912 345-67-89"

type fakeRenderer struct {
	mu        sync.Mutex
	snapshots []*models.InvoiceSnapshot
	fail      error
}

func (r *fakeRenderer) Render(ctx context.Context, s *models.InvoiceSnapshot) (*models.InvoiceDocuments, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail != nil {
		return nil, r.fail
	}
	r.snapshots = append(r.snapshots, s)
	base := fmt.Sprintf("invoices/order_%s_v%d", s.OrderNumber, len(r.snapshots))
	return &models.InvoiceDocuments{DocumentPath: base + ".json", SpreadsheetPath: base + ".xlsx"}, nil
}

type publishedEvent struct {
	Type    string
	Payload *models.OrderEvent
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []publishedEvent
}

func (p *recordingPublisher) Publish(ctx context.Context, eventType string, payload any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	ev, _ := payload.(*models.OrderEvent)
	p.events = append(p.events, publishedEvent{Type: eventType, Payload: ev})
	return nil
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []string
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

type fixture struct {
	t        *testing.T
	store    *memstore.Store
	engine   *models.Engine
	renderer *fakeRenderer
	events   *recordingPublisher
	now      time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)

	f := &fixture{
		t:        t,
		store:    memstore.New(memstore.Options{LockTimeout: 2 * time.Second}),
		renderer: &fakeRenderer{},
		events:   &recordingPublisher{},
		now:      time.Date(2024, 3, 14, 9, 30, 0, 0, time.UTC),
	}
	f.engine = models.NewEngine(models.EngineDeps{
		Store:       f.store,
		Renderer:    f.renderer,
		Events:      f.events,
		Logger:      logger,
		Clock:       func() time.Time { return f.now },
		PhoneRegion: "RU",
	})
	require.NoError(t, models.SeedSettings(context.Background(), f.store))
	return f
}

// staleSettingsCache keeps answering with the values it was built with, like a
// cache refilled from a read that raced an update.
type staleSettingsCache struct {
	values map[string]string
}

func (c staleSettingsCache) GetSetting(key string) (string, bool) {
	v, ok := c.values[key]
	return v, ok
}

func (staleSettingsCache) SetSetting(key string, value string) {}

func (staleSettingsCache) InvalidateSetting(key string) {}

// engineWithCache builds a second engine over the fixture's store.
func (f *fixture) engineWithCache(cache models.SettingsCache) *models.Engine {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return models.NewEngine(models.EngineDeps{
		Store:       f.store,
		Renderer:    f.renderer,
		Settings:    cache,
		Logger:      logger,
		Clock:       func() time.Time { return f.now },
		PhoneRegion: "RU",
	})
}

func adminCtx() context.Context {
	return utils.SetCurrentUserInContext(context.Background(), utils.CurrentUser{Id: 1, IsAdmin: true})
}

func staffCtx() context.Context {
	return utils.SetCurrentUserInContext(context.Background(), utils.CurrentUser{Id: 2, IsAdmin: false})
}

func (f *fixture) product(sku string, stock int) *models.Product {
	f.t.Helper()
	p := &models.Product{Sku: sku, Name: "Product " + sku, Price: decimal.NewFromInt(100), Stock: stock}
	f.store.SeedProducts(p)
	return p
}

func (f *fixture) stock(p *models.Product) int {
	return f.store.Stock(p.ID)
}

func line(p *models.Product, qty int) models.NewOrderItem {
	return models.NewOrderItem{ProductId: p.ID, Quantity: qty}
}

func (f *fixture) placeOrder(items ...models.NewOrderItem) *models.Order {
	f.t.Helper()
	order, err := f.engine.CreateOrder(context.Background(), &models.NewOrder{
		CustomerName:  "Ivan Petrov",
		CustomerPhone: testPhone,
		Items:         items,
	})
	require.NoError(f.t, err)
	return order
}

func (f *fixture) complete(order *models.Order) *models.Order {
	f.t.Helper()
	done, err := f.engine.UpdateOrderStatus(adminCtx(), order.ID, models.OrderStatusCompleted)
	require.NoError(f.t, err)
	return done
}

func (f *fixture) setSetting(key, value string) {
	f.t.Helper()
	_, err := f.engine.UpdateSetting(adminCtx(), key, value)
	require.NoError(f.t, err)
}

func (f *fixture) reload(order *models.Order) *models.Order {
	f.t.Helper()
	o, err := f.engine.GetOrder(adminCtx(), order.ID)
	require.NoError(f.t, err)
	return o
}

func returnReq(amount int64, lines ...models.ReturnLine) *models.OrderReturnRequest {
	return &models.OrderReturnRequest{Lines: lines, FinalReturnAmount: decimal.NewFromInt(amount)}
}
