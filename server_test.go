package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mmdatafocus/orderdesk_backend/invoice"
	"github.com/mmdatafocus/orderdesk_backend/memstore"
	"github.com/mmdatafocus/orderdesk_backend/models"
	"github.com/mmdatafocus/orderdesk_backend/models/reports"
	"github.com/mmdatafocus/orderdesk_backend/utils"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testServer struct {
	t      *testing.T
	router *gin.Engine
	store  *memstore.Store
	dir    string
	admin  string
	staff  string
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)
	t.Setenv("JWT_SECRET", "test-secret")

	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	clock := func() time.Time { return time.Date(2024, 3, 14, 9, 30, 0, 0, time.UTC) }

	store := memstore.New(memstore.Options{LockTimeout: time.Second})
	require.NoError(t, models.SeedSettings(context.Background(), store))

	dir := t.TempDir()
	renderer := invoice.NewRenderer(invoice.LocalStorage{Dir: dir})
	renderer.Clock = clock

	a := &app{logger: logger, clock: clock}
	a.engine.Store(models.NewEngine(models.EngineDeps{
		Store:       store,
		Renderer:    renderer,
		Logger:      logger,
		Clock:       clock,
		PhoneRegion: "RU",
	}))

	admin, err := utils.JwtGenerate(1, utils.RoleAdmin)
	require.NoError(t, err)
	staff, err := utils.JwtGenerate(2, "staff")
	require.NoError(t, err)

	return &testServer{t: t, router: newRouter(a, nil), store: store, dir: dir, admin: admin, staff: staff}
}

func (s *testServer) do(method, path, token string, body any) *httptest.ResponseRecorder {
	s.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(s.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func (s *testServer) seed(sku string, stock int) *models.Product {
	p := &models.Product{Sku: sku, Name: "Product " + sku, Price: decimal.NewFromInt(100), Stock: stock}
	s.store.SeedProducts(p)
	return p
}

func TestOrderFlowOverHTTP(t *testing.T) {
	s := newTestServer(t)
	p := s.seed("SKU-1", 5)

	w := s.do(http.MethodPost, "/orders", "", gin.H{
		"customer_name":  "Ivan Petrov",
		"customer_phone": "+7 912 345-67-89",
		"items":          []gin.H{{"product_id": p.ID, "quantity": 2}},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	order := decode[models.Order](t, w)
	assert.Equal(t, "2024-03-00001", order.OrderNumber)
	assert.FileExists(t, filepath.Join(s.dir, filepath.FromSlash("invoices/2024-03/order_2024-03-00001.json")))
	assert.FileExists(t, filepath.Join(s.dir, filepath.FromSlash("invoices/2024-03/order_2024-03-00001.xlsx")))

	w = s.do(http.MethodGet, "/orders/track/"+order.PrivateKey, "", nil)
	require.Equal(t, http.StatusOK, w.Code)

	statusPath := fmt.Sprintf("/admin/orders/%d/status", order.ID)
	w = s.do(http.MethodPatch, statusPath, s.admin, gin.H{"status": "completed"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, 3, s.store.Stock(p.ID))

	w = s.do(http.MethodPatch, statusPath, s.admin, gin.H{"status": "completed"})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "conflict", decode[map[string]any](t, w)["kind"])
	assert.Equal(t, 3, s.store.Stock(p.ID))

	returnPath := fmt.Sprintf("/admin/orders/%d/returns", order.ID)
	line := gin.H{"order_item_id": order.Items[0].ID, "quantity": 1}
	w = s.do(http.MethodPost, returnPath, s.admin, gin.H{"items_to_return": []gin.H{line}, "final_return_amount": "100"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, models.OrderStatusPartiallyReturned, decode[models.Order](t, w).Status)

	w = s.do(http.MethodPost, returnPath, s.admin, gin.H{"items_to_return": []gin.H{{"order_item_id": order.Items[0].ID, "quantity": 5}}})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = s.do(http.MethodPost, returnPath, s.admin, gin.H{"items_to_return": []gin.H{line}, "final_return_amount": "200"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, models.OrderStatusReturned, decode[models.Order](t, w).Status)
	assert.Equal(t, 5, s.store.Stock(p.ID))

	w = s.do(http.MethodGet, fmt.Sprintf("/admin/orders/%d/history", order.ID), s.admin, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]models.OrderTransition](t, w), 4)
}

func TestAdminRoutesRequireAdminToken(t *testing.T) {
	s := newTestServer(t)

	assert.Equal(t, http.StatusUnauthorized, s.do(http.MethodGet, "/admin/orders", "", nil).Code)
	assert.Equal(t, http.StatusForbidden, s.do(http.MethodGet, "/admin/orders", s.staff, nil).Code)
	assert.Equal(t, http.StatusUnauthorized, s.do(http.MethodGet, "/admin/orders", "not-a-jwt", nil).Code)

	w := s.do(http.MethodGet, "/admin/orders", s.admin, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, "[]", w.Body.String())
}

func TestErrorKindsMapToStatusCodes(t *testing.T) {
	s := newTestServer(t)
	p := s.seed("SKU-1", 1)

	w := s.do(http.MethodPost, "/orders", "", gin.H{"customer_name": "Ivan", "customer_phone": "12", "items": []gin.H{{"product_id": p.ID, "quantity": 1}}})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "validation", decode[map[string]any](t, w)["kind"])

	w = s.do(http.MethodPost, "/orders", "", gin.H{"customer_name": "Ivan", "customer_phone": "+79123456789", "items": []gin.H{{"product_id": p.ID, "quantity": 2}}})
	assert.Equal(t, http.StatusConflict, w.Code, "advisory stock check")

	assert.Equal(t, http.StatusNotFound, s.do(http.MethodGet, "/admin/orders/77", s.admin, nil).Code)
	assert.Equal(t, http.StatusBadRequest, s.do(http.MethodGet, "/admin/orders/abc", s.admin, nil).Code)
	assert.Equal(t, http.StatusBadRequest, s.do(http.MethodGet, "/admin/orders?date=14.03.2024", s.admin, nil).Code)
	assert.Equal(t, http.StatusBadRequest, s.do(http.MethodGet, "/admin/orders?status=shipped", s.admin, nil).Code)
	assert.Equal(t, http.StatusNotFound, s.do(http.MethodGet, "/nowhere", "", nil).Code)
}

func TestBulkProductUpdateReportsFailures(t *testing.T) {
	s := newTestServer(t)
	a := s.seed("A", 1)
	b := s.seed("B", 1)

	w := s.do(http.MethodPatch, "/admin/products", s.admin, gin.H{"products": []gin.H{
		{"id": a.ID, "name": "Renamed"},
		{"id": b.ID, "sku": "A"},
	}})
	require.Equal(t, http.StatusConflict, w.Code)
	body := decode[struct {
		Kind     string                   `json:"kind"`
		Failures []models.BulkEditFailure `json:"failures"`
	}](t, w)
	assert.Equal(t, "conflict", body.Kind)
	require.Len(t, body.Failures, 1)
	assert.Equal(t, 1, body.Failures[0].Index)

	w = s.do(http.MethodGet, "/admin/products", s.admin, nil)
	require.Equal(t, http.StatusOK, w.Code)
	for _, p := range decode[[]models.Product](t, w) {
		assert.NotEqual(t, "Renamed", p.Name)
	}
}

func TestInventoryEndpoints(t *testing.T) {
	s := newTestServer(t)
	a := s.seed("A", 4)

	w := s.do(http.MethodPost, "/orders", "", gin.H{"customer_name": "Ivan", "customer_phone": "+79123456789", "items": []gin.H{{"product_id": a.ID, "quantity": 1}}})
	require.Equal(t, http.StatusCreated, w.Code)

	w = s.do(http.MethodPost, "/admin/inventory/stock", s.admin, gin.H{"updates": []gin.H{
		{"product_id": a.ID, "new_stock": 9},
		{"product_id": 555, "new_stock": 1},
	}})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	result := decode[models.BulkStockResult](t, w)
	assert.Equal(t, 1, result.UpdatedCount)
	assert.Equal(t, []int{555}, result.NotFoundIds)

	w = s.do(http.MethodGet, "/admin/inventory/revision", s.admin, nil)
	require.Equal(t, http.StatusOK, w.Code)
	rows := decode[[]map[string]any](t, w)
	require.Len(t, rows, 1)
	assert.EqualValues(t, 9, rows[0]["db_stock"])
	assert.EqualValues(t, 8, rows[0]["available"])

	w = s.do(http.MethodGet, "/admin/inventory/revision/export", s.admin, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, reports.ExcelContentType, w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "revision_2024-03-14.xlsx")
	assert.NotZero(t, w.Body.Len())
}

func TestSettingsEndpoints(t *testing.T) {
	s := newTestServer(t)

	w := s.do(http.MethodPut, "/admin/settings/show_stock_publicly", s.admin, gin.H{"value": "false"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = s.do(http.MethodGet, "/settings/public", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	public := decode[map[string]string](t, w)
	assert.Equal(t, "false", public["show_stock_publicly"])
	assert.NotContains(t, public, "ignore_stock_limits")

	assert.Equal(t, http.StatusBadRequest, s.do(http.MethodPut, "/admin/settings/ignore_stock_limits", s.admin, gin.H{}).Code)
	assert.Equal(t, http.StatusNotFound, s.do(http.MethodPut, "/admin/settings/nope", s.admin, gin.H{"value": "x"}).Code)
}

func TestNotReadyUntilEngineIsSet(t *testing.T) {
	gin.SetMode(gin.TestMode)
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	router := newRouter(&app{logger: logger}, nil)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.NotEmpty(t, w.Header().Get("x-correlation-id"))

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/settings/public", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}
