// Package scraper runs cached, validated reference lookups against one
// store behind a capability interface.
package scraper

import (
	"context"
	"io"

	"go.uber.org/zap"

	"github.com/pmprecos/comparador/internal/cache"
	"github.com/pmprecos/comparador/internal/match"
	"github.com/pmprecos/comparador/internal/telemetry"
)

// SearchResult is a confirmed listing for a reference in one store.
type SearchResult struct {
	URL        string
	PriceText  string
	PriceNum   *float64
	Validation match.Result
}

// Confidence is a shortcut to the validation confidence.
func (r *SearchResult) Confidence() float64 {
	return r.Validation.Confidence
}

// Store is the per-site fetch collaborator. Implementations drive the
// network, call their Rate Governor around every navigation, and score
// candidate pages through the Match Validator before returning.
type Store interface {
	Name() string
	// FetchAndScore looks the reference up on the site and returns the
	// first validated listing, or nil when the store does not sell it.
	FetchAndScore(ctx context.Context, refParts []string, refRaw string) (*SearchResult, error)
}

// Stats holds the monotonic per-store counters. Mutated only by the
// Scraper; read-only for everyone else.
type Stats struct {
	TotalSearches int
	CacheHits     int
	CacheMisses   int
	Found         int
	NotFound      int
	Errors        int
}

// HitRate is the fraction of searches answered from cache.
func (s Stats) HitRate() float64 {
	if s.TotalSearches == 0 {
		return 0
	}
	return float64(s.CacheHits) / float64(s.TotalSearches)
}

// SuccessRate is the fraction of searches that located a product.
func (s Stats) SuccessRate() float64 {
	if s.TotalSearches == 0 {
		return 0
	}
	return float64(s.Found) / float64(s.TotalSearches)
}

// Scraper orchestrates lookups for one store: cache consultation, the
// governed fetch, validation outcome persistence and statistics. One
// Scraper is driven by one sequential loop.
type Scraper struct {
	store  Store
	cache  *cache.StoreCache
	logger *zap.Logger
	stats  Stats
}

// New wires a store collaborator to its cache.
func New(store Store, c *cache.StoreCache, logger *zap.Logger) *Scraper {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scraper{
		store:  store,
		cache:  c,
		logger: logger.With(zap.String("store", store.Name())),
	}
}

// Name returns the store name.
func (s *Scraper) Name() string {
	return s.store.Name()
}

// SearchWithCache resolves one reference against the store.
//
// With useCache, a live cached entry answers without network access: a
// found entry is synthesized back into a SearchResult, a not-found entry
// short-circuits to nil. Otherwise the store collaborator fetches and the
// outcome, positive or negative, is written back. A collaborator error
// is counted and swallowed: one store's failure never aborts the batch.
func (s *Scraper) SearchWithCache(ctx context.Context, refNorm string, refParts []string, refRaw string, useCache bool) *SearchResult {
	if refNorm == "" || len(refParts) == 0 {
		return nil
	}
	s.stats.TotalSearches++

	if useCache {
		if entry := s.cache.Get(refNorm); entry != nil {
			s.stats.CacheHits++
			telemetry.CountCacheLookup(s.Name(), "hit")
			if !entry.Found() {
				s.stats.NotFound++
				telemetry.CountSearch(s.Name(), "not_found")
				return nil
			}
			telemetry.CountSearch(s.Name(), "found")
			return &SearchResult{
				URL:       entry.URL,
				PriceText: entry.PriceText,
				PriceNum:  entry.PriceNum,
				Validation: match.Result{
					Valid:        true,
					Confidence:   entry.Confidence,
					Type:         match.TypeCodeExact,
					MatchedParts: []string{refNorm},
					Reason:       "from cache",
				},
			}
		}
		s.stats.CacheMisses++
		telemetry.CountCacheLookup(s.Name(), "miss")
	}

	result, err := s.store.FetchAndScore(ctx, refParts, refRaw)
	if err != nil {
		s.stats.Errors++
		telemetry.CountSearch(s.Name(), "error")
		s.logger.Warn("store lookup failed",
			zap.String("ref", refNorm), zap.Error(err))
		return nil
	}

	if result != nil {
		s.stats.Found++
		telemetry.CountSearch(s.Name(), "found")
		if useCache {
			s.cache.Put(refNorm, result.URL, result.PriceText, result.PriceNum, result.Confidence())
		}
		return result
	}

	s.stats.NotFound++
	telemetry.CountSearch(s.Name(), "not_found")
	if useCache {
		// A negative entry spares repeat lookups until its shorter TTL
		// lapses.
		s.cache.Put(refNorm, "", "", nil, 0)
	}
	return nil
}

// Stats returns a copy of the counters.
func (s *Scraper) Stats() Stats {
	return s.stats
}

// Cache exposes the store cache for maintenance commands.
func (s *Scraper) Cache() *cache.StoreCache {
	return s.cache
}

// Close persists any unsaved cache tail and releases the store's
// transport if it holds one. Safe to call repeatedly.
func (s *Scraper) Close() error {
	err := s.cache.Save()
	if closer, ok := s.store.(io.Closer); ok {
		if cerr := closer.Close(); err == nil {
			err = cerr
		}
	}
	return err
}
