package threshold

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/flood-trigger-service/internal/domain"
	"github.com/couchcryptid/flood-trigger-service/internal/observability"
)

// --- mock for cache tests ---

type countingLoader struct {
	calls  int
	resets int
	result domain.Threshold
	err    error
}

func (m *countingLoader) LoadThreshold(_ context.Context, _ string, _ domain.BasinConfig, _ domain.Station) (domain.Threshold, error) {
	m.calls++
	return m.result, m.err
}

func (m *countingLoader) Reset() { m.resets++ }

// --- CachedStore tests ---

func TestCachedStore_CacheHit(t *testing.T) {
	inner := &countingLoader{result: domain.Threshold{ReturnPeriod: 5, DischargeM3s: 850}}
	cached := NewCachedStore(inner, 10, observability.NewMetricsForTesting())

	th1, err := cached.LoadThreshold(context.Background(), "gt", testBasin(5), testStation)
	require.NoError(t, err)
	th2, err := cached.LoadThreshold(context.Background(), "gt", testBasin(5), testStation)
	require.NoError(t, err)

	assert.Equal(t, th1, th2)
	assert.Equal(t, 1, inner.calls, "should only call inner once")
}

func TestCachedStore_DifferentKeysMiss(t *testing.T) {
	inner := &countingLoader{result: domain.Threshold{DischargeM3s: 1}}
	cached := NewCachedStore(inner, 10, observability.NewMetricsForTesting())

	_, _ = cached.LoadThreshold(context.Background(), "gt", testBasin(5), testStation)
	_, _ = cached.LoadThreshold(context.Background(), "gt", testBasin(2), testStation)
	_, _ = cached.LoadThreshold(context.Background(), "ph", testBasin(5), testStation)

	interpolated := testBasin(5)
	interpolated.Policy.Interpolate = true
	_, _ = cached.LoadThreshold(context.Background(), "gt", interpolated, testStation)

	assert.Equal(t, 4, inner.calls)
}

func TestCachedStore_ErrorsNotCached(t *testing.T) {
	inner := &countingLoader{err: &domain.MissingThresholdError{Country: "gt", Basin: "achiguate", ReturnPeriod: 5}}
	cached := NewCachedStore(inner, 10, observability.NewMetricsForTesting())

	_, err := cached.LoadThreshold(context.Background(), "gt", testBasin(5), testStation)
	require.Error(t, err)
	_, err = cached.LoadThreshold(context.Background(), "gt", testBasin(5), testStation)
	require.Error(t, err)

	assert.Equal(t, 2, inner.calls)
}

func TestCachedStore_ResetPurgesAndPropagates(t *testing.T) {
	inner := &countingLoader{result: domain.Threshold{DischargeM3s: 1}}
	cached := NewCachedStore(inner, 10, observability.NewMetricsForTesting())

	_, _ = cached.LoadThreshold(context.Background(), "gt", testBasin(5), testStation)
	cached.Reset()
	_, _ = cached.LoadThreshold(context.Background(), "gt", testBasin(5), testStation)

	assert.Equal(t, 2, inner.calls)
	assert.Equal(t, 1, inner.resets)
}

// --- LRU cache unit tests ---

func TestLRUCache_BasicGetPut(t *testing.T) {
	c := newLRUCache(3)

	c.put("a", domain.Threshold{DischargeM3s: 1})
	c.put("b", domain.Threshold{DischargeM3s: 2})

	th, ok := c.get("a")
	assert.True(t, ok)
	assert.Equal(t, 1.0, th.DischargeM3s)

	_, ok = c.get("missing")
	assert.False(t, ok)
}

func TestLRUCache_Eviction(t *testing.T) {
	c := newLRUCache(2)

	c.put("a", domain.Threshold{DischargeM3s: 1})
	c.put("b", domain.Threshold{DischargeM3s: 2})
	c.put("c", domain.Threshold{DischargeM3s: 3}) // evicts "a"

	_, ok := c.get("a")
	assert.False(t, ok, "a should have been evicted")

	th, ok := c.get("c")
	assert.True(t, ok)
	assert.Equal(t, 3.0, th.DischargeM3s)
	assert.Len(t, c.entries, 2)
}

func TestLRUCache_AccessPromotesEntry(t *testing.T) {
	c := newLRUCache(2)

	c.put("a", domain.Threshold{DischargeM3s: 1})
	c.put("b", domain.Threshold{DischargeM3s: 2})
	c.get("a")
	c.put("c", domain.Threshold{DischargeM3s: 3})

	_, ok := c.get("a")
	assert.True(t, ok, "a was accessed recently, should not be evicted")
	_, ok = c.get("b")
	assert.False(t, ok, "b should have been evicted")
}

func TestLRUCache_UpdateExistingAndPurge(t *testing.T) {
	c := newLRUCache(2)

	c.put("a", domain.Threshold{DischargeM3s: 1})
	c.put("a", domain.Threshold{DischargeM3s: 2})

	th, ok := c.get("a")
	assert.True(t, ok)
	assert.Equal(t, 2.0, th.DischargeM3s)

	c.purge()
	assert.Empty(t, c.entries)
	_, ok = c.get("a")
	assert.False(t, ok)
}
