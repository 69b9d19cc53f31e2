package main

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemcached_SetGet(t *testing.T) {
	mc := NewMemcached[int](time.Minute, time.Minute)
	t.Cleanup(func() { _ = mc.Close() })

	_, ok := mc.Get("a")
	assert.False(t, ok)

	mc.Set("a", 1)
	v, ok := mc.Get("a")
	require.True(t, ok)
	assert.Equal(t, 1, v)
	assert.Equal(t, 1, mc.Len())

	mc.Delete("a")
	assert.True(t, mc.IsEmpty())
}

func TestMemcached_Expiry(t *testing.T) {
	mc := NewMemcached[string](10*time.Millisecond, 5*time.Millisecond)
	t.Cleanup(func() { _ = mc.Close() })

	mc.Set("a", "x")
	assert.Eventually(t, func() bool {
		_, ok := mc.Get("a")
		return !ok && mc.IsEmpty()
	}, time.Second, 5*time.Millisecond)
}

func TestMemcached_OnExpire(t *testing.T) {
	mc := NewMemcached[string](time.Minute, time.Hour)
	t.Cleanup(func() { _ = mc.Close() })

	now := time.Now()
	mc.now = func() time.Time { return now }

	var expired []string
	mc.OnExpire(func(key, value string) { expired = append(expired, key+"="+value) })
	mc.Set("a", "x")
	mc.Set("b", "y")

	now = now.Add(30 * time.Second)
	mc.Set("b", "z")
	now = now.Add(45 * time.Second)
	mc.expire()

	assert.Equal(t, []string{"a=x"}, expired)
	v, ok := mc.Get("b")
	require.True(t, ok)
	assert.Equal(t, "z", v)
}

func TestMemcached_ShutdownWaitsForExpiry(t *testing.T) {
	mc := NewMemcached[string](30*time.Millisecond, time.Minute)
	mc.Set("a", "x")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, mc.Shutdown(ctx))
	assert.True(t, mc.IsEmpty())

	mc.Set("b", "y")
	assert.True(t, mc.IsEmpty(), "new keys are refused during shutdown")
	assert.ErrorIs(t, mc.Close(), ErrMemcachedClosed)
}

func TestMemcached_ShutdownTimeout(t *testing.T) {
	mc := NewMemcached[string](time.Hour, time.Minute)
	mc.Set("a", "x")

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, mc.Shutdown(ctx), context.DeadlineExceeded)
}

func TestMemcached_Close(t *testing.T) {
	mc := NewMemcached[string](time.Hour, time.Minute)
	mc.Set("a", "x")

	require.NoError(t, mc.Close())
	assert.True(t, mc.IsEmpty())
	assert.ErrorIs(t, mc.Close(), ErrMemcachedClosed)
}
