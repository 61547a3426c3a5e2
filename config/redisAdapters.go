package config

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bsm/redislock"
	"github.com/sirupsen/logrus"
)

const settingCachePrefix = "Setting:"

// RedisSettingsCache caches app settings by key. Every method is a no-op without redis.
type RedisSettingsCache struct {
	TTL time.Duration
}

func (c RedisSettingsCache) GetSetting(key string) (string, bool) {
	value, ok, err := GetRedisValue(settingCachePrefix + key)
	if err != nil {
		logg.WithFields(logrus.Fields{"field": "settings-cache", "key": key}).Warn("redis get failed: " + err.Error())
		return "", false
	}
	return value, ok
}

func (c RedisSettingsCache) SetSetting(key string, value string) {
	ttl := c.TTL
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	if err := SetRedisValue(settingCachePrefix+key, value, ttl); err != nil {
		logg.WithFields(logrus.Fields{"field": "settings-cache", "key": key}).Warn("redis set failed: " + err.Error())
	}
}

func (c RedisSettingsCache) InvalidateSetting(key string) {
	if err := RemoveRedisKey(settingCachePrefix + key); err != nil {
		logg.WithFields(logrus.Fields{"field": "settings-cache", "key": key}).Warn("redis del failed: " + err.Error())
	}
}

// RedisBatchLocker serializes batch jobs across instances with bsm/redislock.
// Without redis it grants every request immediately.
type RedisBatchLocker struct{}

var ErrBatchLockNotObtained = errors.New("batch lock is held by another run")

func (RedisBatchLocker) Obtain(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	l := GetRedisLock()
	if l == nil {
		return func() {}, nil
	}
	waitCtx, cancel := context.WithTimeout(ctx, LockWaitTimeout())
	defer cancel()

	lock, err := l.Obtain(waitCtx, key, ttl, &redislock.Options{
		RetryStrategy: redislock.LinearBackoff(100 * time.Millisecond),
	})
	if errors.Is(err, redislock.ErrNotObtained) || errors.Is(err, context.DeadlineExceeded) {
		return nil, fmt.Errorf("%w: %s", ErrBatchLockNotObtained, key)
	} else if err != nil {
		// Redis trouble must not block inventory corrections.
		logg.WithFields(logrus.Fields{"field": "batch-lock", "key": key}).Warn("redis lock unavailable; proceeding without it: " + err.Error())
		return func() {}, nil
	}
	return func() {
		_ = lock.Release(context.Background())
	}, nil
}
