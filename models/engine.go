package models

import (
	"context"
	"strconv"
	"time"

	"github.com/mmdatafocus/orderdesk_backend/config"
	"github.com/mmdatafocus/orderdesk_backend/utils"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("orderdesk/models")

type EngineDeps struct {
	Store Store
	// Renderer is optional; without it orders keep empty document paths.
	Renderer    DocumentRenderer
	Events      EventPublisher
	Settings    SettingsCache
	BatchLocker BatchLocker
	Logger      *logrus.Logger
	Clock       func() time.Time
	PhoneRegion string
}

// Engine owns the order lifecycle and every stock mutation.
type Engine struct {
	store       Store
	renderer    DocumentRenderer
	events      EventPublisher
	settings    SettingsCache
	batchLocker BatchLocker
	logger      *logrus.Logger
	clock       func() time.Time
	phoneRegion string
}

func NewEngine(deps EngineDeps) *Engine {
	e := &Engine{
		store:       deps.Store,
		renderer:    deps.Renderer,
		events:      deps.Events,
		settings:    deps.Settings,
		batchLocker: deps.BatchLocker,
		logger:      deps.Logger,
		clock:       deps.Clock,
		phoneRegion: deps.PhoneRegion,
	}
	if e.logger == nil {
		e.logger = config.GetLogger()
	}
	if e.clock == nil {
		e.clock = time.Now
	}
	if e.phoneRegion == "" {
		e.phoneRegion = config.DefaultPhoneRegion()
	}
	return e
}

func (e *Engine) now() time.Time {
	return e.clock().UTC()
}

func requireAdmin(ctx context.Context) (int, error) {
	user, ok := utils.GetCurrentUserFromContext(ctx)
	if !ok || !user.IsAdmin {
		return 0, wrapf(ErrForbidden, "admin access required")
	}
	return user.Id, nil
}

// actorId is 0 for anonymous callers.
func actorId(ctx context.Context) int {
	if user, ok := utils.GetCurrentUserFromContext(ctx); ok {
		return user.Id
	}
	return 0
}

func startSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "models."+name)
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, string(KindOf(err)))
	}
	span.End()
}

// logError skips caller mistakes; only conflicts and internal failures are logged.
func (e *Engine) logError(ctx context.Context, funcName string, context string, data any, err error) {
	switch KindOf(err) {
	case ErrorKindValidation, ErrorKindNotFound, ErrorKindForbidden:
		return
	}
	entry := config.WithCorrelation(ctx, e.logger)
	if data != nil {
		entry = entry.WithField("data", data)
	}
	entry.WithFields(logrus.Fields{
		"module":   "orders",
		"funcName": funcName,
		"context":  context,
		"kind":     KindOf(err),
	}).Error(err.Error())
}

// publish runs after commit; a failed publish never undoes the operation.
func (e *Engine) publish(ctx context.Context, eventType string, payload any) {
	if e.events == nil {
		return
	}
	if err := e.events.Publish(ctx, eventType, payload); err != nil {
		config.WithCorrelation(ctx, e.logger).WithFields(logrus.Fields{
			"module":     "events",
			"event_type": eventType,
		}).Warn("publish failed: " + err.Error())
	}
}

// settingBool reads a boolean setting through the cache, falling back to the
// stored row and then to the built-in default. Display and advisory paths
// only; decisions that guard stock use storedSettingBool.
func (e *Engine) settingBool(tx Tx, key string) (bool, error) {
	value, err := e.settingValue(tx, key)
	if err != nil {
		return false, err
	}
	return parseSettingBool(key, value)
}

// storedSettingBool reads the row inside tx, bypassing the cache.
func (e *Engine) storedSettingBool(tx Tx, key string) (bool, error) {
	value, err := storedSettingValue(tx, key)
	if err != nil {
		return false, err
	}
	return parseSettingBool(key, value)
}

func parseSettingBool(key, value string) (bool, error) {
	b, err := strconv.ParseBool(value)
	if err != nil {
		return false, validationErrorf("setting %s holds %q, not a boolean", key, value)
	}
	return b, nil
}

func (e *Engine) settingValue(tx Tx, key string) (string, error) {
	if e.settings != nil {
		if v, ok := e.settings.GetSetting(key); ok {
			return v, nil
		}
	}
	value, err := storedSettingValue(tx, key)
	if err != nil {
		return "", err
	}
	if e.settings != nil {
		e.settings.SetSetting(key, value)
	}
	return value, nil
}

func storedSettingValue(tx Tx, key string) (string, error) {
	setting, err := tx.GetSetting(key)
	switch {
	case err == nil:
		return setting.Value, nil
	case KindOf(err) == ErrorKindNotFound:
		def, ok := settingDefaults[key]
		if !ok {
			return "", err
		}
		return def, nil
	}
	return "", err
}
