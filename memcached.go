package main

import (
	"context"
	"errors"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"
)

var ErrMemcachedClosed = errors.New("memcached closed")

type cached[V any] struct {
	value    V
	expireAt time.Time
}

// Memcached is an in-process cache whose items expire ttlTimeout after
// their last Set. A background cleaner drops expired items and hands them
// to the expiry hook, if one is set.
type Memcached[V any] struct {
	mu          sync.RWMutex
	cleanerOnce sync.Once
	cleanerCh   chan struct{}
	items       map[string]cached[V]
	ttlTimeout  time.Duration
	inShutdown  atomic.Bool

	now      func() time.Time
	onExpire func(key string, value V)
}

func NewMemcached[V any](ttlTimeout, cleanupTimeout time.Duration) *Memcached[V] {
	mc := &Memcached[V]{
		cleanerCh:  make(chan struct{}),
		items:      make(map[string]cached[V]),
		ttlTimeout: ttlTimeout,
		now:        time.Now,
	}

	go mc.runCleaner(cleanupTimeout)
	return mc
}

// OnExpire registers fn to receive items dropped by the cleaner. fn runs on
// the cleaner goroutine, outside the cache lock.
func (mc *Memcached[V]) OnExpire(fn func(key string, value V)) {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	mc.onExpire = fn
}

func (mc *Memcached[V]) runCleaner(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-mc.cleanerCh:
			return
		case <-ticker.C:
			mc.expire()
		}
	}
}

// Set stores value under key and restarts its TTL. During shutdown only
// live sessions are refreshed, new keys are refused.
func (mc *Memcached[V]) Set(key string, value V) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	if _, ok := mc.items[key]; !ok && mc.inShutdown.Load() {
		return
	}
	mc.items[key] = cached[V]{value: value, expireAt: mc.now().Add(mc.ttlTimeout)}
}

func (mc *Memcached[V]) Get(key string) (V, bool) {
	mc.mu.RLock()
	defer mc.mu.RUnlock()

	item, ok := mc.items[key]
	if !ok || mc.now().After(item.expireAt) {
		var zero V
		return zero, false
	}
	return item.value, true
}

func (mc *Memcached[V]) Delete(key string) {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	delete(mc.items, key)
}

func (mc *Memcached[V]) Len() int {
	mc.mu.RLock()
	defer mc.mu.RUnlock()
	return len(mc.items)
}

func (mc *Memcached[V]) IsEmpty() bool {
	return mc.Len() == 0
}

const (
	shutdownIntervalMin = time.Millisecond
	shutdownIntervalMax = 500 * time.Millisecond
)

// Shutdown refuses new keys and waits until every live item has expired
// or ctx is done. Polling backs off exponentially with jitter.
func (mc *Memcached[V]) Shutdown(ctx context.Context) error {
	mc.inShutdown.Store(true)
	mc.closeCleaner()

	backoff := shutdownIntervalMin
	for {
		mc.expire()
		if mc.IsEmpty() {
			return nil
		}

		wait := backoff + rand.N(backoff/10+1)
		backoff = min(backoff*2, shutdownIntervalMax)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

// Close drops every item without calling the expiry hook.
func (mc *Memcached[V]) Close() error {
	if mc.inShutdown.Swap(true) && mc.isCleanerClosed() {
		return ErrMemcachedClosed
	}
	mc.closeCleaner()

	mc.mu.Lock()
	clear(mc.items)
	mc.mu.Unlock()
	return nil
}

// expire removes items past their deadline and passes them to the hook.
func (mc *Memcached[V]) expire() {
	mc.mu.Lock()
	now := mc.now()
	hook := mc.onExpire
	var dropped map[string]V
	for k, item := range mc.items {
		if !now.After(item.expireAt) {
			continue
		}
		delete(mc.items, k)
		if hook != nil {
			if dropped == nil {
				dropped = make(map[string]V)
			}
			dropped[k] = item.value
		}
	}
	mc.mu.Unlock()

	for k, v := range dropped {
		hook(k, v)
	}
}

func (mc *Memcached[V]) isCleanerClosed() bool {
	select {
	case <-mc.cleanerCh:
		return true
	default:
		return false
	}
}

func (mc *Memcached[V]) closeCleaner() {
	mc.cleanerOnce.Do(func() {
		close(mc.cleanerCh)
	})
}
