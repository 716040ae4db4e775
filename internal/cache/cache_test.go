package cache_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/pmprecos/comparador/internal/cache"
)

// fakeClock lets tests move time across TTL boundaries.
type fakeClock struct {
	now time.Time
}

func (f *fakeClock) Now() time.Time { return f.now }

func (f *fakeClock) advance(d time.Duration) { f.now = f.now.Add(d) }

func newTestCache(t *testing.T, dir string, clk *fakeClock) *cache.StoreCache {
	t.Helper()
	c, err := cache.New(cache.Config{Dir: dir}, "teststore", clk, zap.NewNop())
	require.NoError(t, err)
	return c
}

func floatPtr(v float64) *float64 { return &v }

func TestNew(t *testing.T) {
	t.Run("MissingStoreName", func(t *testing.T) {
		_, err := cache.New(cache.Config{Dir: t.TempDir()}, " ", nil, nil)
		assert.Error(t, err)
	})

	t.Run("MissingDir", func(t *testing.T) {
		_, err := cache.New(cache.Config{}, "store", nil, nil)
		assert.Error(t, err)
	})

	t.Run("MissingFileIsEmptyCache", func(t *testing.T) {
		c := newTestCache(t, t.TempDir(), &fakeClock{now: time.Now().UTC()})
		assert.Nil(t, c.Get("ANYTHING"))
		assert.Zero(t, c.Snapshot().Total)
	})

	t.Run("CorruptFileDegradesToEmpty", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "teststore_cache.json")
		require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

		c := newTestCache(t, dir, &fakeClock{now: time.Now().UTC()})
		assert.Zero(t, c.Snapshot().Total)
	})
}

func TestRoundTrip(t *testing.T) {
	dir := t.TempDir()
	clk := &fakeClock{now: time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)}

	c := newTestCache(t, dir, clk)
	c.Put("H085LR1X", "https://shop.example/p", "€ 365.50", floatPtr(365.50), 1.0)
	require.NoError(t, c.Save())

	reloaded := newTestCache(t, dir, clk)
	entry := reloaded.Get("H085LR1X")
	require.NotNil(t, entry)
	assert.Equal(t, "H085LR1X", entry.Key)
	assert.Equal(t, "https://shop.example/p", entry.URL)
	assert.Equal(t, "€ 365.50", entry.PriceText)
	require.NotNil(t, entry.PriceNum)
	assert.InDelta(t, 365.50, *entry.PriceNum, 1e-9)
	assert.InDelta(t, 1.0, entry.Confidence, 1e-9)
	assert.True(t, entry.Found())
}

func TestSaveOnlyWhenDirty(t *testing.T) {
	dir := t.TempDir()
	clk := &fakeClock{now: time.Now().UTC()}
	c := newTestCache(t, dir, clk)

	// Nothing written yet, so no file should appear.
	require.NoError(t, c.Save())
	_, err := os.Stat(filepath.Join(dir, "teststore_cache.json"))
	assert.True(t, os.IsNotExist(err))

	c.Put("KEY1", "", "", nil, 0)
	require.NoError(t, c.Save())
	info, err := os.Stat(filepath.Join(dir, "teststore_cache.json"))
	require.NoError(t, err)

	// A second Save with no changes must not rewrite the file.
	time.Sleep(10 * time.Millisecond)
	require.NoError(t, c.Save())
	again, err := os.Stat(filepath.Join(dir, "teststore_cache.json"))
	require.NoError(t, err)
	assert.Equal(t, info.ModTime(), again.ModTime())
}

func TestOutcomeDependentTTL(t *testing.T) {
	const day = 24 * time.Hour

	t.Run("FoundSurvivesTenDays", func(t *testing.T) {
		clk := &fakeClock{now: time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)}
		c := newTestCache(t, t.TempDir(), clk)
		c.Put("REF1", "https://shop.example/p", "€ 10", floatPtr(10), 1.0)

		clk.advance(10*day - time.Minute)
		assert.NotNil(t, c.Get("REF1"))

		clk.advance(2 * time.Minute)
		assert.Nil(t, c.Get("REF1"))
		// Evicted on the expired probe, not merely hidden.
		assert.Zero(t, c.Snapshot().Total)
	})

	t.Run("NotFoundSurvivesFourDays", func(t *testing.T) {
		clk := &fakeClock{now: time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)}
		c := newTestCache(t, t.TempDir(), clk)
		c.Put("REF2", "", "", nil, 0)

		clk.advance(4*day - time.Minute)
		entry := c.Get("REF2")
		require.NotNil(t, entry)
		assert.False(t, entry.Found())

		clk.advance(2 * time.Minute)
		assert.Nil(t, c.Get("REF2"))
	})

	t.Run("UnparseableTimestampExpires", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "teststore_cache.json")
		blob := `{"REF3": {"key": "REF3", "url": "https://x", "saved_at": "yesterday-ish"}}`
		require.NoError(t, os.WriteFile(path, []byte(blob), 0o600))

		c := newTestCache(t, dir, &fakeClock{now: time.Now().UTC()})
		assert.Nil(t, c.Get("REF3"))
	})
}

func TestLegacyFields(t *testing.T) {
	dir := t.TempDir()
	clk := &fakeClock{now: time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)}
	blob := `{
	  "OLDREF": {
	    "key": "OLDREF",
	    "url": "https://shop.example/old",
	    "saved_at": "2026-07-31T00:00:00Z",
	    "some_future_field": 42
	  }
	}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "teststore_cache.json"), []byte(blob), 0o600))

	c := newTestCache(t, dir, clk)
	entry := c.Get("OLDREF")
	require.NotNil(t, entry)
	// Missing confidence defaults to 1.0; unknown fields are ignored.
	assert.InDelta(t, 1.0, entry.Confidence, 1e-9)
}

func TestClear(t *testing.T) {
	clk := &fakeClock{now: time.Now().UTC()}
	dir := t.TempDir()
	c := newTestCache(t, dir, clk)
	c.Put("A", "https://x", "€ 1", floatPtr(1), 1.0)
	c.Put("B", "", "", nil, 0)
	require.NoError(t, c.Save())

	c.Clear()
	require.NoError(t, c.Save())

	reloaded := newTestCache(t, dir, clk)
	assert.Zero(t, reloaded.Snapshot().Total)
}

func TestClearExpired(t *testing.T) {
	clk := &fakeClock{now: time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)}
	c := newTestCache(t, t.TempDir(), clk)
	c.Put("FRESH", "https://x", "€ 1", floatPtr(1), 1.0)
	c.Put("STALE", "", "", nil, 0)

	clk.advance(5 * 24 * time.Hour)
	removed := c.ClearExpired()
	assert.Equal(t, 1, removed)
	assert.NotNil(t, c.Get("FRESH"))

	stats := c.Snapshot()
	assert.Equal(t, 1, stats.Total)
	assert.Equal(t, 1, stats.Found)
	assert.Zero(t, stats.NotFound)
}
