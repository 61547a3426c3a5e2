package models

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"time"
)

type AppSetting struct {
	Key       string    `gorm:"primaryKey;size:100" json:"key"`
	Value     string    `gorm:"type:text" json:"value"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

var settingDefaults = map[string]string{
	SettingIgnoreStockLimits: "false",
	SettingShowStockPublicly: "true",
	SettingContactPhone:      "",
	SettingContactWhatsapp:   "",
	SettingContactTelegram:   "",
	SettingContactEmail:      "",
}

var boolSettings = map[string]bool{
	SettingIgnoreStockLimits: true,
	SettingShowStockPublicly: true,
}

// publicSettings may be read by anonymous storefront callers.
var publicSettings = []string{
	SettingShowStockPublicly,
	SettingContactPhone,
	SettingContactWhatsapp,
	SettingContactTelegram,
	SettingContactEmail,
}

// ListSettings returns every known key, falling back to defaults for rows not seeded yet.
func (e *Engine) ListSettings(ctx context.Context) ([]*AppSetting, error) {
	if _, err := requireAdmin(ctx); err != nil {
		return nil, err
	}
	var settings []*AppSetting
	err := e.store.WithinTransaction(ctx, func(tx Tx) error {
		stored, err := tx.ListSettings()
		if err != nil {
			return err
		}
		byKey := make(map[string]*AppSetting, len(stored))
		for _, s := range stored {
			byKey[s.Key] = s
		}
		for key, def := range settingDefaults {
			if _, ok := byKey[key]; !ok {
				byKey[key] = &AppSetting{Key: key, Value: def}
			}
		}
		for _, s := range byKey {
			settings = append(settings, s)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(settings, func(i, j int) bool { return settings[i].Key < settings[j].Key })
	return settings, nil
}

func (e *Engine) PublicSettings(ctx context.Context) (map[string]string, error) {
	values := make(map[string]string, len(publicSettings))
	err := e.store.WithinTransaction(ctx, func(tx Tx) error {
		for _, key := range publicSettings {
			v, err := e.settingValue(tx, key)
			if err != nil {
				return err
			}
			values[key] = v
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return values, nil
}

func (e *Engine) UpdateSetting(ctx context.Context, key string, value string) (setting *AppSetting, err error) {
	ctx, span := startSpan(ctx, "UpdateSetting")
	defer func() { endSpan(span, err) }()

	if _, err := requireAdmin(ctx); err != nil {
		return nil, err
	}
	key = strings.TrimSpace(key)
	if _, ok := settingDefaults[key]; !ok {
		return nil, notFoundErrorf("setting %q does not exist", key)
	}
	value = strings.TrimSpace(value)
	if boolSettings[key] {
		b, err := strconv.ParseBool(value)
		if err != nil {
			return nil, validationErrorf("setting %s expects true or false, got %q", key, value)
		}
		value = strconv.FormatBool(b)
	}

	setting = &AppSetting{Key: key, Value: value, UpdatedAt: e.now()}
	err = e.store.WithinTransaction(ctx, func(tx Tx) error {
		return tx.SaveSetting(setting)
	})
	if e.settings != nil {
		e.settings.InvalidateSetting(key)
	}
	if err != nil {
		e.logError(ctx, "UpdateSetting", key, value, err)
		return nil, err
	}
	return setting, nil
}

// SeedSettings inserts defaults for missing keys and leaves existing values alone.
func SeedSettings(ctx context.Context, store Store) error {
	return store.WithinTransaction(ctx, func(tx Tx) error {
		keys := make([]string, 0, len(settingDefaults))
		for key := range settingDefaults {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		for _, key := range keys {
			_, err := tx.GetSetting(key)
			if err == nil {
				continue
			}
			if KindOf(err) != ErrorKindNotFound {
				return err
			}
			if err := tx.SaveSetting(&AppSetting{Key: key, Value: settingDefaults[key]}); err != nil {
				return err
			}
		}
		return nil
	})
}
