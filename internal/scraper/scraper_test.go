package scraper_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/pmprecos/comparador/internal/cache"
	"github.com/pmprecos/comparador/internal/match"
	"github.com/pmprecos/comparador/internal/refs"
	"github.com/pmprecos/comparador/internal/scraper"
)

// stubStore scripts FetchAndScore responses and records invocations.
type stubStore struct {
	name    string
	result  *scraper.SearchResult
	err     error
	calls   int
	lastRaw string
}

func (s *stubStore) Name() string { return s.name }

func (s *stubStore) FetchAndScore(_ context.Context, _ []string, refRaw string) (*scraper.SearchResult, error) {
	s.calls++
	s.lastRaw = refRaw
	return s.result, s.err
}

func floatPtr(v float64) *float64 { return &v }

func newScraper(t *testing.T, store *stubStore) *scraper.Scraper {
	t.Helper()
	c, err := cache.New(cache.Config{Dir: t.TempDir()}, store.name, nil, zap.NewNop())
	require.NoError(t, err)
	return scraper.New(store, c, zap.NewNop())
}

func foundResult(url string, price float64) *scraper.SearchResult {
	return &scraper.SearchResult{
		URL:       url,
		PriceText: "€ 365.50",
		PriceNum:  floatPtr(price),
		Validation: match.Result{
			Valid:      true,
			Confidence: 1.0,
			Type:       match.TypeSKUExact,
		},
	}
}

func TestSearchWithCache(t *testing.T) {
	ctx := context.Background()

	t.Run("EndToEndFoundThenCached", func(t *testing.T) {
		norm, parts := refs.Normalize("H.085.LR1X")
		require.Equal(t, "H085LR1X", norm)
		require.Equal(t, []string{"H085LR1X"}, parts)

		store := &stubStore{name: "emmoto", result: foundResult("https://shop.example/p", 365.50)}
		s := newScraper(t, store)

		first := s.SearchWithCache(ctx, norm, parts, "H.085.LR1X", true)
		require.NotNil(t, first)
		assert.Equal(t, "https://shop.example/p", first.URL)
		assert.Equal(t, "H.085.LR1X", store.lastRaw)
		assert.Equal(t, 1, store.calls)

		// The second call must answer from cache without touching the
		// collaborator.
		second := s.SearchWithCache(ctx, norm, parts, "H.085.LR1X", true)
		require.NotNil(t, second)
		assert.Equal(t, 1, store.calls)
		assert.Equal(t, "https://shop.example/p", second.URL)
		assert.Equal(t, "€ 365.50", second.PriceText)
		require.NotNil(t, second.PriceNum)
		assert.InDelta(t, 365.50, *second.PriceNum, 1e-9)
		assert.InDelta(t, 1.0, second.Confidence(), 1e-9)
		assert.True(t, second.Validation.Valid)

		stats := s.Stats()
		assert.Equal(t, 2, stats.TotalSearches)
		assert.Equal(t, 1, stats.CacheHits)
		assert.Equal(t, 1, stats.CacheMisses)
		// found counts live fetches only; the cached answer is a hit
		assert.Equal(t, 1, stats.Found)
	})

	t.Run("NegativeOutcomeCached", func(t *testing.T) {
		store := &stubStore{name: "emmoto"}
		s := newScraper(t, store)

		res := s.SearchWithCache(ctx, "PHF1595", []string{"PHF1595"}, "P-HF1595", true)
		assert.Nil(t, res)
		assert.Equal(t, 1, store.calls)

		// Second lookup is a cache hit on the not-found entry.
		res = s.SearchWithCache(ctx, "PHF1595", []string{"PHF1595"}, "P-HF1595", true)
		assert.Nil(t, res)
		assert.Equal(t, 1, store.calls)

		stats := s.Stats()
		assert.Equal(t, 1, stats.CacheHits)
		assert.Equal(t, 2, stats.NotFound)
	})

	t.Run("UseCacheFalseBypassesCacheEntirely", func(t *testing.T) {
		store := &stubStore{name: "emmoto", result: foundResult("https://shop.example/p", 10)}
		s := newScraper(t, store)

		for i := 0; i < 3; i++ {
			res := s.SearchWithCache(ctx, "ABC123", []string{"ABC123"}, "ABC123", false)
			require.NotNil(t, res)
		}
		assert.Equal(t, 3, store.calls)

		// Nothing was written: a later cached lookup still reaches the
		// collaborator.
		s.SearchWithCache(ctx, "ABC123", []string{"ABC123"}, "ABC123", true)
		assert.Equal(t, 4, store.calls)

		stats := s.Stats()
		assert.Equal(t, 0, stats.CacheHits)
		assert.Equal(t, 1, stats.CacheMisses)
	})

	t.Run("CollaboratorErrorIsIsolated", func(t *testing.T) {
		store := &stubStore{name: "emmoto", err: errors.New("navigation timed out")}
		s := newScraper(t, store)

		res := s.SearchWithCache(ctx, "ABC123", []string{"ABC123"}, "ABC123", true)
		assert.Nil(t, res)

		stats := s.Stats()
		assert.Equal(t, 1, stats.Errors)
		assert.Zero(t, stats.NotFound)

		// Errors are not cached; the next lookup retries the store.
		store.err = nil
		store.result = foundResult("https://shop.example/p", 5)
		res = s.SearchWithCache(ctx, "ABC123", []string{"ABC123"}, "ABC123", true)
		assert.NotNil(t, res)
		assert.Equal(t, 2, store.calls)
	})

	t.Run("EmptyReferenceRejected", func(t *testing.T) {
		store := &stubStore{name: "emmoto"}
		s := newScraper(t, store)
		assert.Nil(t, s.SearchWithCache(ctx, "", nil, "", true))
		assert.Zero(t, store.calls)
		assert.Zero(t, s.Stats().TotalSearches)
	})
}

func TestScraperClosePersists(t *testing.T) {
	dir := t.TempDir()
	store := &stubStore{name: "emmoto", result: foundResult("https://shop.example/p", 99.9)}

	c, err := cache.New(cache.Config{Dir: dir}, store.name, nil, zap.NewNop())
	require.NoError(t, err)
	s := scraper.New(store, c, zap.NewNop())

	require.NotNil(t, s.SearchWithCache(context.Background(), "ABC123", []string{"ABC123"}, "ABC123", true))
	require.NoError(t, s.Close())

	reloaded, err := cache.New(cache.Config{Dir: dir}, store.name, nil, zap.NewNop())
	require.NoError(t, err)
	entry := reloaded.Get("ABC123")
	require.NotNil(t, entry)
	assert.Equal(t, "https://shop.example/p", entry.URL)
}

func TestStatsRates(t *testing.T) {
	stats := scraper.Stats{TotalSearches: 10, CacheHits: 4, Found: 5}
	assert.InDelta(t, 0.4, stats.HitRate(), 1e-9)
	assert.InDelta(t, 0.5, stats.SuccessRate(), 1e-9)
	assert.Zero(t, scraper.Stats{}.HitRate())
}

func TestRegistry(t *testing.T) {
	reg := scraper.NewRegistry()

	a := newScraper(t, &stubStore{name: "emmoto"})
	b := newScraper(t, &stubStore{name: "omniaracing"})
	require.NoError(t, reg.Register(a))
	require.NoError(t, reg.Register(b))

	t.Run("DuplicateRejected", func(t *testing.T) {
		assert.Error(t, reg.Register(newScraper(t, &stubStore{name: "emmoto"})))
	})

	t.Run("LookupAndOrder", func(t *testing.T) {
		got, ok := reg.Get("omniaracing")
		require.True(t, ok)
		assert.Equal(t, "omniaracing", got.Name())

		_, ok = reg.Get("missing")
		assert.False(t, ok)

		assert.Equal(t, []string{"emmoto", "omniaracing"}, reg.Names())
		require.Len(t, reg.All(), 2)
	})

	t.Run("CloseSavesAll", func(t *testing.T) {
		assert.NoError(t, reg.Close())
	})
}

// Guards against the cache TTL interacting with freshly written entries:
// a found entry written now must be served for the whole found TTL.
func TestFreshEntryServedWithinTTL(t *testing.T) {
	store := &stubStore{name: "emmoto", result: foundResult("https://shop.example/p", 1)}
	s := newScraper(t, store)

	require.NotNil(t, s.SearchWithCache(context.Background(), "REF", []string{"REF"}, "REF", true))
	time.Sleep(5 * time.Millisecond)
	require.NotNil(t, s.SearchWithCache(context.Background(), "REF", []string{"REF"}, "REF", true))
	assert.Equal(t, 1, store.calls)
}
