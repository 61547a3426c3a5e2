package memstore

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/mmdatafocus/orderdesk_backend/models"
)

// keyedLocks is a set of exclusive row locks. Each key is a one-slot channel;
// holding the slot is holding the lock.
type keyedLocks struct {
	mu    sync.Mutex
	slots map[string]chan struct{}
}

func newKeyedLocks() *keyedLocks {
	return &keyedLocks{slots: make(map[string]chan struct{})}
}

func (k *keyedLocks) slot(key string) chan struct{} {
	k.mu.Lock()
	defer k.mu.Unlock()
	ch, ok := k.slots[key]
	if !ok {
		ch = make(chan struct{}, 1)
		k.slots[key] = ch
	}
	return ch
}

func (k *keyedLocks) acquire(ctx context.Context, key string, timeout time.Duration) error {
	ch := k.slot(key)
	select {
	case ch <- struct{}{}:
		return nil
	default:
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case ch <- struct{}{}:
		return nil
	case <-timer.C:
		return fmt.Errorf("%w: %s still locked after %s", models.ErrLockTimeout, key, timeout)
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (k *keyedLocks) release(key string) {
	<-k.slot(key)
}
