package models_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/mmdatafocus/orderdesk_backend/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOrderLifecycleEndToEnd(t *testing.T) {
	f := newFixture(t)
	p := f.product("SKU-1", 5)

	order := f.placeOrder(line(p, 2))
	assert.Equal(t, models.OrderStatusNew, order.Status)
	assert.Equal(t, 5, f.stock(p), "creation never debits")

	order = f.complete(order)
	assert.Equal(t, models.OrderStatusCompleted, order.Status)
	assert.Equal(t, 3, f.stock(p))

	itemId := order.Items[0].ID
	order, err := f.engine.ApplyOrderReturn(adminCtx(), order.ID, returnReq(100, models.ReturnLine{OrderItemId: itemId, Quantity: 1}))
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusPartiallyReturned, order.Status)
	assert.Equal(t, 4, f.stock(p))
	assert.Equal(t, 1, order.Items[0].ReturnedQuantity)

	order, err = f.engine.ApplyOrderReturn(adminCtx(), order.ID, returnReq(200, models.ReturnLine{OrderItemId: itemId, Quantity: 1}))
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusReturned, order.Status)
	assert.Equal(t, 5, f.stock(p))
	require.NotNil(t, order.TotalReturnedAmount)
	assert.True(t, order.TotalReturnedAmount.Equal(decimal.NewFromInt(200)), "final amount overwrites")

	history, err := f.engine.OrderHistory(adminCtx(), order.ID)
	require.NoError(t, err)
	var path []models.OrderStatus
	for _, h := range history {
		path = append(path, h.ToStatus)
	}
	assert.Equal(t, []models.OrderStatus{
		models.OrderStatusNew,
		models.OrderStatusCompleted,
		models.OrderStatusPartiallyReturned,
		models.OrderStatusReturned,
	}, path)
	assert.Equal(t, []string{
		models.OrderEventCreated,
		models.OrderEventStatusChanged,
		models.OrderEventReturned,
		models.OrderEventReturned,
	}, f.events.types())
}

func TestOrderHistoryJSONRoundTrip(t *testing.T) {
	f := newFixture(t)
	p := f.product("SKU-1", 5)
	order := f.complete(f.placeOrder(line(p, 1)))

	history, err := f.engine.OrderHistory(adminCtx(), order.ID)
	require.NoError(t, err)
	body, err := json.Marshal(history)
	require.NoError(t, err)
	assert.Contains(t, string(body), `"from_status":""`)

	var decoded []*models.OrderTransition
	require.NoError(t, json.Unmarshal(body, &decoded))
	require.Len(t, decoded, 2)
	assert.Equal(t, models.OrderStatus(""), decoded[0].FromStatus)
	assert.Equal(t, models.OrderStatusNew, decoded[0].ToStatus)
	assert.Equal(t, models.OrderStatusCompleted, decoded[1].ToStatus)

	var bad models.OrderStatus
	assert.Error(t, json.Unmarshal([]byte(`"shipped"`), &bad))
}

func TestCreateOrderAssignsNumberKeyAndDocuments(t *testing.T) {
	f := newFixture(t)
	p := f.product("SKU-1", 10)

	first := f.placeOrder(line(p, 1))
	second := f.placeOrder(line(p, 1))

	assert.Equal(t, "2024-03-00001", first.OrderNumber)
	assert.Equal(t, "2024-03-00002", second.OrderNumber)
	assert.Len(t, first.PrivateKey, 32)
	assert.NotEqual(t, first.PrivateKey, second.PrivateKey)
	assert.Equal(t, "+79123456789", first.CustomerPhone)
	assert.NotEmpty(t, first.InvoiceDocumentPath)
	assert.NotEmpty(t, first.InvoiceSpreadsheetPath)
	assert.True(t, first.Items[0].PricePerItem.Equal(decimal.NewFromInt(100)))

	found, err := f.engine.GetOrderByPrivateKey(context.Background(), first.PrivateKey)
	require.NoError(t, err)
	assert.Equal(t, first.ID, found.ID)

	f.now = time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)
	april := f.placeOrder(line(p, 1))
	assert.Equal(t, "2024-04-00001", april.OrderNumber)
}

func TestCreateOrderValidation(t *testing.T) {
	f := newFixture(t)
	p := f.product("SKU-1", 1)

	cases := map[string]*models.NewOrder{
		"no items":      {CustomerName: "Ivan", CustomerPhone: testPhone},
		"zero quantity": {CustomerName: "Ivan", CustomerPhone: testPhone, Items: []models.NewOrderItem{line(p, 0)}},
		"no name":       {CustomerPhone: testPhone, Items: []models.NewOrderItem{line(p, 1)}},
		"bad phone":     {CustomerName: "Ivan", CustomerPhone: "12", Items: []models.NewOrderItem{line(p, 1)}},
	}
	for name, input := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := f.engine.CreateOrder(context.Background(), input)
			assert.ErrorIs(t, err, models.ErrValidation)
		})
	}

	_, err := f.engine.CreateOrder(context.Background(), &models.NewOrder{
		CustomerName: "Ivan", CustomerPhone: testPhone,
		Items: []models.NewOrderItem{{ProductId: 999, Quantity: 1}},
	})
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestCreateOrderAdvisoryStockCheck(t *testing.T) {
	f := newFixture(t)
	p := f.product("SKU-1", 2)

	_, err := f.engine.CreateOrder(context.Background(), &models.NewOrder{
		CustomerName: "Ivan", CustomerPhone: testPhone,
		Items: []models.NewOrderItem{line(p, 2), line(p, 1)},
	})
	assert.ErrorIs(t, err, models.ErrInsufficientStock)
	assert.Equal(t, 2, f.stock(p))

	f.setSetting(models.SettingIgnoreStockLimits, "true")
	order := f.placeOrder(line(p, 3))
	assert.Equal(t, models.OrderStatusNew, order.Status)
	assert.Equal(t, 2, f.stock(p))
}

func TestRepeatedCompletionNeverDebitsTwice(t *testing.T) {
	f := newFixture(t)
	p := f.product("SKU-1", 5)
	order := f.placeOrder(line(p, 2))
	f.complete(order)

	_, err := f.engine.UpdateOrderStatus(adminCtx(), order.ID, models.OrderStatusCompleted)
	assert.ErrorIs(t, err, models.ErrInvalidTransition)
	assert.ErrorIs(t, err, models.ErrConflict)
	assert.Equal(t, 3, f.stock(p))
}

func TestCompletionIsAllOrNothing(t *testing.T) {
	f := newFixture(t)
	a := f.product("A", 5)
	b := f.product("B", 5)
	order := f.placeOrder(line(a, 2), line(b, 3))

	// Someone else drains B before completion.
	_, err := f.engine.BulkSetStock(adminCtx(), []models.StockUpdate{{ProductId: b.ID, NewStock: 1}})
	require.NoError(t, err)

	_, err = f.engine.UpdateOrderStatus(adminCtx(), order.ID, models.OrderStatusCompleted)
	require.ErrorIs(t, err, models.ErrInsufficientStock)
	assert.Contains(t, err.Error(), "sku B")
	assert.Equal(t, 5, f.stock(a), "no partial debit")
	assert.Equal(t, 1, f.stock(b))
	assert.Equal(t, models.OrderStatusNew, f.reload(order).Status)
}

func TestIgnoreStockLimitsAllowsOversell(t *testing.T) {
	f := newFixture(t)
	p := f.product("SKU-1", 5)
	order := f.placeOrder(line(p, 4))
	_, err := f.engine.BulkSetStock(adminCtx(), []models.StockUpdate{{ProductId: p.ID, NewStock: 1}})
	require.NoError(t, err)

	_, err = f.engine.UpdateOrderStatus(adminCtx(), order.ID, models.OrderStatusCompleted)
	require.ErrorIs(t, err, models.ErrInsufficientStock)

	f.setSetting(models.SettingIgnoreStockLimits, "true")
	f.complete(order)
	assert.Equal(t, -3, f.stock(p))
}

func TestCompletionReadsStockLimitSettingFromStore(t *testing.T) {
	f := newFixture(t)
	p := f.product("SKU-1", 1)
	engine := f.engineWithCache(staleSettingsCache{values: map[string]string{models.SettingIgnoreStockLimits: "true"}})

	// The stale cache lets the advisory creation check through.
	order, err := engine.CreateOrder(context.Background(), &models.NewOrder{
		CustomerName:  "Ivan Petrov",
		CustomerPhone: testPhone,
		Items:         []models.NewOrderItem{line(p, 5)},
	})
	require.NoError(t, err)

	_, err = engine.UpdateOrderStatus(adminCtx(), order.ID, models.OrderStatusCompleted)
	require.ErrorIs(t, err, models.ErrInsufficientStock)
	assert.Equal(t, 1, f.stock(p))
	assert.Equal(t, models.OrderStatusNew, f.reload(order).Status)
}

func TestProcessThenComplete(t *testing.T) {
	f := newFixture(t)
	p := f.product("SKU-1", 5)
	order := f.placeOrder(line(p, 1))

	order, err := f.engine.UpdateOrderStatus(adminCtx(), order.ID, models.OrderStatusProcessed)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusProcessed, order.Status)
	assert.NotNil(t, order.ProcessedAt)

	_, err = f.engine.UpdateOrderStatus(adminCtx(), order.ID, models.OrderStatusProcessed)
	assert.ErrorIs(t, err, models.ErrInvalidTransition)

	order = f.complete(order)
	assert.NotNil(t, order.CompletedAt)
	assert.Equal(t, 4, f.stock(p))
}

func TestStatusRequestsReservedForOtherOperations(t *testing.T) {
	f := newFixture(t)
	p := f.product("SKU-1", 5)
	order := f.placeOrder(line(p, 1))

	for _, status := range []models.OrderStatus{models.OrderStatusReturned, models.OrderStatusPartiallyReturned, models.OrderStatusDeleted, models.OrderStatusNew} {
		_, err := f.engine.UpdateOrderStatus(adminCtx(), order.ID, status)
		assert.ErrorIs(t, err, models.ErrInvalidTransition, string(status))
	}
	_, err := f.engine.UpdateOrderStatus(adminCtx(), order.ID, models.OrderStatus("shipped"))
	assert.ErrorIs(t, err, models.ErrValidation)
}

func TestDeleteOrderRules(t *testing.T) {
	f := newFixture(t)
	p := f.product("SKU-1", 5)

	open := f.placeOrder(line(p, 1))
	_, err := f.engine.DeleteOrder(adminCtx(), open.ID, "  ")
	assert.ErrorIs(t, err, models.ErrValidation)

	deleted, err := f.engine.DeleteOrder(adminCtx(), open.ID, "customer cancelled")
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusDeleted, deleted.Status)
	assert.Equal(t, "customer cancelled", deleted.DeletionReason)
	assert.NotNil(t, deleted.DeletedAt)
	assert.Equal(t, 5, f.stock(p))

	_, err = f.engine.UpdateOrderStatus(adminCtx(), open.ID, models.OrderStatusCompleted)
	assert.ErrorIs(t, err, models.ErrInvalidTransition, "deleted is terminal")

	done := f.complete(f.placeOrder(line(p, 1)))
	_, err = f.engine.DeleteOrder(adminCtx(), done.ID, "too late")
	assert.ErrorIs(t, err, models.ErrInvalidTransition)
	assert.Equal(t, 4, f.stock(p))
}

func TestListOrdersFilters(t *testing.T) {
	f := newFixture(t)
	p := f.product("SKU-1", 10)

	a := f.placeOrder(line(p, 1))
	f.now = f.now.AddDate(0, 0, 1)
	b := f.placeOrder(line(p, 1))
	_, err := f.engine.DeleteOrder(adminCtx(), a.ID, "duplicate")
	require.NoError(t, err)

	all, err := f.engine.ListOrders(adminCtx(), nil)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, b.ID, all[0].ID)

	deleted := models.OrderStatusDeleted
	day := f.now
	gone, err := f.engine.ListOrders(adminCtx(), &models.OrderListFilter{Status: &deleted, Date: &day})
	require.NoError(t, err)
	require.Len(t, gone, 1, "deleted orders match on deletion date")
	assert.Equal(t, a.ID, gone[0].ID)

	firstDay := day.AddDate(0, 0, -1)
	none, err := f.engine.ListOrders(adminCtx(), &models.OrderListFilter{Date: &firstDay})
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestAdminOperationsRequireAdmin(t *testing.T) {
	f := newFixture(t)
	p := f.product("SKU-1", 5)
	order := f.placeOrder(line(p, 1))

	calls := map[string]func(ctx context.Context) error{
		"status": func(ctx context.Context) error {
			_, err := f.engine.UpdateOrderStatus(ctx, order.ID, models.OrderStatusCompleted)
			return err
		},
		"edit": func(ctx context.Context) error {
			_, err := f.engine.UpdateOrder(ctx, order.ID, &models.OrderEdit{})
			return err
		},
		"delete": func(ctx context.Context) error {
			_, err := f.engine.DeleteOrder(ctx, order.ID, "x")
			return err
		},
		"return": func(ctx context.Context) error {
			_, err := f.engine.ApplyOrderReturn(ctx, order.ID, returnReq(0, models.ReturnLine{OrderItemId: order.Items[0].ID, Quantity: 1}))
			return err
		},
		"stock": func(ctx context.Context) error {
			_, err := f.engine.BulkSetStock(ctx, []models.StockUpdate{{ProductId: p.ID, NewStock: 0}})
			return err
		},
		"revision": func(ctx context.Context) error {
			_, err := f.engine.RevisionList(ctx)
			return err
		},
		"settings": func(ctx context.Context) error {
			_, err := f.engine.UpdateSetting(ctx, models.SettingIgnoreStockLimits, "true")
			return err
		},
	}
	for name, call := range calls {
		t.Run(name, func(t *testing.T) {
			err := call(staffCtx())
			assert.ErrorIs(t, err, models.ErrForbidden)
			err = call(context.Background())
			assert.ErrorIs(t, err, models.ErrForbidden)
		})
	}
	assert.Equal(t, 5, f.stock(p))
	assert.Equal(t, models.OrderStatusNew, f.reload(order).Status)
}

func TestRenderFailureAbortsMutation(t *testing.T) {
	f := newFixture(t)
	p := f.product("SKU-1", 5)
	order := f.placeOrder(line(p, 2))

	f.renderer.fail = errors.New("disk full")
	_, err := f.engine.UpdateOrder(adminCtx(), order.ID, &models.OrderEdit{
		Items: []models.OrderItemChange{{ItemId: order.Items[0].ID, Quantity: 1}},
	})
	require.Error(t, err)
	assert.Equal(t, models.ErrorKindInternal, models.KindOf(err))
	reloaded := f.reload(order)
	assert.Equal(t, 2, reloaded.Items[0].Quantity)
	assert.Equal(t, models.OrderStatusNew, reloaded.Status)
}

func TestPreviewInvoiceLeavesOrderUntouched(t *testing.T) {
	f := newFixture(t)
	p := f.product("SKU-1", 5)
	order := f.placeOrder(line(p, 2))

	docs, err := f.engine.PreviewInvoice(adminCtx(), order.ID)
	require.NoError(t, err)
	assert.NotEqual(t, order.InvoiceDocumentPath, docs.DocumentPath)
	assert.Equal(t, order.InvoiceDocumentPath, f.reload(order).InvoiceDocumentPath)

	last := f.renderer.snapshots[len(f.renderer.snapshots)-1]
	assert.True(t, last.Preview)
	assert.Equal(t, "SKU-1", last.Lines[0].Sku)
	assert.True(t, last.Total.Equal(decimal.NewFromInt(200)))
}

func TestInvoiceSnapshotCarriesProductImage(t *testing.T) {
	f := newFixture(t)
	p := &models.Product{Sku: "IMG-1", Name: "Framed print", Price: decimal.NewFromInt(70), Stock: 3, ImageUrl: "products/img-1.jpg"}
	f.store.SeedProducts(p)
	plain := f.product("SKU-2", 3)

	f.placeOrder(line(p, 1), line(plain, 1))

	require.NotEmpty(t, f.renderer.snapshots)
	lines := f.renderer.snapshots[len(f.renderer.snapshots)-1].Lines
	require.Len(t, lines, 2)
	assert.Equal(t, "products/img-1.jpg", lines[0].ImageRef)
	assert.Empty(t, lines[1].ImageRef)
}
