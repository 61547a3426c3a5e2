package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/mmdatafocus/orderdesk_backend/config"
	"github.com/mmdatafocus/orderdesk_backend/invoice"
	"github.com/mmdatafocus/orderdesk_backend/memstore"
	"github.com/mmdatafocus/orderdesk_backend/middlewares"
	"github.com/mmdatafocus/orderdesk_backend/models"
	"github.com/mmdatafocus/orderdesk_backend/utils"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

const defaultPort = "8080"

// app holds the engine once dependencies are connected. Until then every
// non-health route answers 503.
type app struct {
	engine atomic.Pointer[models.Engine]
	logger *logrus.Logger
	clock  func() time.Time
}

func (a *app) eng() *models.Engine {
	return a.engine.Load()
}

func (a *app) now() time.Time {
	if a.clock != nil {
		return a.clock()
	}
	return time.Now()
}

// Define a struct to represent the rate limiter.
type RateLimiter struct {
	client *redis.Client
	limit  int64
	window time.Duration
}

func customNotFoundHandler(c *gin.Context) {
	c.JSON(http.StatusNotFound, gin.H{"error": "route not found"})
}

func newRouter(a *app, rateLimiter *RateLimiter) *gin.Engine {
	r := gin.New()
	// Correlation IDs: generate once per request and attach to context.
	r.Use(func(c *gin.Context) {
		cid := c.GetHeader("x-correlation-id")
		if cid == "" {
			cid = uuid.NewString()
		}
		c.Header("x-correlation-id", cid)
		c.Request = c.Request.WithContext(utils.SetCorrelationIdInContext(c.Request.Context(), cid))
		c.Next()
	})
	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusNoContent) })
	r.Use(func(c *gin.Context) {
		if a.eng() == nil {
			c.AbortWithStatus(http.StatusServiceUnavailable)
			return
		}
		c.Next()
	})

	corsConfig := cors.DefaultConfig()
	// In production, require an explicit allowlist via CORS_ALLOWED_ORIGINS (comma-separated).
	allowedOrigins := strings.TrimSpace(os.Getenv("CORS_ALLOWED_ORIGINS"))
	if strings.EqualFold(strings.TrimSpace(os.Getenv("GO_ENV")), "production") {
		corsConfig.AllowOrigins = splitAndTrim(allowedOrigins)
		if len(corsConfig.AllowOrigins) == 0 {
			// Deny all cross-origin requests when nothing is configured.
			corsConfig.AllowOriginFunc = func(string) bool { return false }
		}
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AddAllowMethods("GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS")
	corsConfig.AddAllowHeaders("Origin", "Content-Type", "Authorization", "x-correlation-id")
	corsConfig.AddExposeHeaders("Content-Length", "Content-Disposition", "x-correlation-id")
	r.Use(cors.New(corsConfig))

	if rateLimiter != nil {
		r.Use(rateLimiter.RateLimitMiddleware)
	}

	r.Use(middlewares.AuthMiddleware())
	r.Use(customErrorLogger(a.logger))
	r.Use(gin.Recovery())

	r.POST("/orders", a.createOrderHandler)
	r.GET("/orders/track/:key", a.trackOrderHandler)
	r.GET("/settings/public", a.publicSettingsHandler)

	admin := r.Group("/admin", middlewares.RequireAdmin())
	{
		admin.GET("/orders", a.listOrdersHandler)
		admin.GET("/orders/:id", a.getOrderHandler)
		admin.GET("/orders/:id/history", a.orderHistoryHandler)
		admin.PATCH("/orders/:id", a.updateOrderHandler)
		admin.PATCH("/orders/:id/status", a.updateOrderStatusHandler)
		admin.POST("/orders/:id/returns", a.returnOrderHandler)
		admin.DELETE("/orders/:id", a.deleteOrderHandler)
		admin.POST("/orders/:id/invoice-preview", a.previewInvoiceHandler)

		admin.GET("/inventory/revision", a.revisionListHandler)
		admin.GET("/inventory/revision/export", a.revisionExportHandler)
		admin.POST("/inventory/stock", a.bulkSetStockHandler)

		admin.GET("/products", a.listProductsHandler)
		admin.POST("/products", a.createProductHandler)
		admin.PATCH("/products", a.bulkUpdateProductsHandler)

		admin.GET("/settings", a.listSettingsHandler)
		admin.PUT("/settings/:key", a.updateSettingHandler)
	}
	r.NoRoute(customNotFoundHandler)
	return r
}

// openStore connects the configured store and prepares its schema.
func openStore(ctx context.Context, logger *logrus.Logger) (models.Store, func(), error) {
	switch driver := config.StoreDriver(); driver {
	case config.StoreDriverMemory:
		logger.WithFields(logrus.Fields{"field": "store"}).Warn("STORE_DRIVER=memory; data is lost on restart")
		return memstore.New(memstore.Options{LockTimeout: config.LockWaitTimeout()}), func() {}, nil
	case config.StoreDriverMySQL:
		config.ConnectDatabaseWithRetry()
		db := config.GetDB()
		closeDB := func() {
			if sqlDB, err := db.DB(); err == nil {
				_ = sqlDB.Close()
			}
		}
		// AutoMigrate can block tables; SKIP_MIGRATIONS=true leaves it to cmd/seed.
		if !config.SkipMigrations() {
			if err := models.MigrateTable(db.WithContext(ctx)); err != nil {
				closeDB()
				return nil, nil, err
			}
		} else {
			logger.WithFields(logrus.Fields{"field": "migrations"}).Warn("SKIP_MIGRATIONS=true; skipping AutoMigrate on startup")
		}
		return models.NewGormStore(db), closeDB, nil
	default:
		return nil, nil, fmt.Errorf("unknown STORE_DRIVER %q", driver)
	}
}

func buildEngine(store models.Store, logger *logrus.Logger) (*models.Engine, error) {
	storage, err := invoice.NewStorageFromEnv()
	if err != nil {
		return nil, err
	}
	deps := models.EngineDeps{
		Store:       store,
		Renderer:    invoice.NewRenderer(storage),
		Settings:    config.RedisSettingsCache{TTL: 10 * time.Minute},
		BatchLocker: config.RedisBatchLocker{},
		Logger:      logger,
		PhoneRegion: config.DefaultPhoneRegion(),
	}
	if config.PubSubEnabled() {
		deps.Events = config.NewPubSubPublisher()
	}
	return models.NewEngine(deps), nil
}

func newRateLimiterFromEnv() *RateLimiter {
	// Env:
	// - RATE_LIMIT_ENABLED=true
	// - RATE_LIMIT_WINDOW_SECONDS=60
	// - RATE_LIMIT_MAX_REQUESTS=600
	if !config.BoolFromEnv("RATE_LIMIT_ENABLED", false) {
		return nil
	}
	client := config.GetRedisDB()
	if client == nil {
		return nil
	}
	limit := int64(config.IntFromEnv("RATE_LIMIT_MAX_REQUESTS", 600))
	window := time.Duration(config.IntFromEnv("RATE_LIMIT_WINDOW_SECONDS", 60)) * time.Second
	return NewRateLimiter(client, limit, window)
}

func main() {
	port := os.Getenv("API_PORT_2")
	if port == "" {
		port = os.Getenv("PORT")
	}
	if port == "" {
		port = defaultPort
	}

	logger := config.GetLogger()

	// Cloud Run sends SIGTERM on revision shutdown; handle it for graceful drain.
	sigCtx, stopSignals := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stopSignals()

	// Redis first: the rate limiter is installed when the router is built.
	config.ConnectRedisWithRetry()
	defer config.CloseRedis()
	defer config.ClosePubSub()

	a := &app{logger: logger}
	srv := &http.Server{
		Addr:    ":" + port,
		Handler: newRouter(a, newRateLimiterFromEnv()),
	}
	serverErrCh := make(chan error, 1)
	go func() {
		// ListenAndServe returns http.ErrServerClosed on graceful shutdown.
		serverErrCh <- srv.ListenAndServe()
	}()

	store, closeStore, err := openStore(sigCtx, logger)
	if err != nil {
		logger.WithFields(logrus.Fields{"field": "store"}).Fatal(err.Error())
	}
	defer closeStore()
	if err := models.SeedSettings(sigCtx, store); err != nil {
		logger.WithFields(logrus.Fields{"field": "settings"}).Fatal(err.Error())
	}
	engine, err := buildEngine(store, logger)
	if err != nil {
		logger.WithFields(logrus.Fields{"field": "engine"}).Fatal(err.Error())
	}
	a.engine.Store(engine)

	logger.WithFields(logrus.Fields{
		"info": "Connection Established",
	}).Info("listening on :", port)
	log.Println("Server started successfully")

	// Block until shutdown or server error.
	select {
	case <-sigCtx.Done():
	case err := <-serverErrCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithFields(logrus.Fields{"field": "http"}).Error("server stopped unexpectedly: " + err.Error())
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithFields(logrus.Fields{"field": "http"}).Error("graceful shutdown failed: " + err.Error())
	}
}

// customErrorLogger is a custom Gin middleware that logs only errors
func customErrorLogger(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) > 0 {
			config.WithCorrelation(c.Request.Context(), logger).WithFields(logrus.Fields{
				"method": c.Request.Method,
				"path":   c.FullPath(),
				"status": c.Writer.Status(),
			}).Error(c.Errors.String())
		}
	}
}

// Initialize a new RateLimiter instance.
func NewRateLimiter(client *redis.Client, limit int64, window time.Duration) *RateLimiter {
	return &RateLimiter{
		client: client,
		limit:  limit,
		window: window,
	}
}

// RateLimitMiddleware counts requests per client IP in fixed windows.
func (rl *RateLimiter) RateLimitMiddleware(c *gin.Context) {
	key := "ratelimit:" + c.ClientIP()

	count, err := rl.client.Incr(c.Request.Context(), key).Result()
	if err != nil {
		// Redis trouble must not take the shop down.
		_ = c.Error(err)
		c.Next()
		return
	}
	if count == 1 {
		rl.client.Expire(c.Request.Context(), key, rl.window)
	}

	if count > rl.limit {
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
			"error": "Rate limit exceeded. Try again in " + strconv.Itoa(int(rl.window.Seconds())) + " seconds",
		})
		return
	}

	c.Next()
}

func splitAndTrim(csv string) []string {
	if strings.TrimSpace(csv) == "" {
		return nil
	}
	parts := strings.Split(csv, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
