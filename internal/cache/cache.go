// Package cache persists per-store lookup outcomes with outcome-dependent
// expiry.
package cache

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/pmprecos/comparador/internal/clock"
)

// Default TTLs. Found products are kept longer than misses: prices move in
// campaigns, but new stock arrives faster than listings change.
const (
	DefaultFoundTTLDays    = 10
	DefaultNotFoundTTLDays = 4
)

// Config captures the parameters for a per-store cache.
type Config struct {
	// Dir is the directory holding the per-store cache files.
	Dir string `mapstructure:"dir"`
	// FoundTTLDays bounds the age of entries that carry a product URL.
	FoundTTLDays int `mapstructure:"found_ttl_days"`
	// NotFoundTTLDays bounds the age of negative entries.
	NotFoundTTLDays int `mapstructure:"not_found_ttl_days"`
}

// Entry is one store's last known answer for one normalized reference.
type Entry struct {
	Key        string   `json:"key"`
	URL        string   `json:"url,omitempty"`
	PriceText  string   `json:"price_text,omitempty"`
	PriceNum   *float64 `json:"price_num,omitempty"`
	Confidence float64  `json:"confidence"`
	SavedAt    string   `json:"saved_at"`
}

// Found reports whether the entry records a located product.
func (e Entry) Found() bool {
	return e.URL != ""
}

type persistedEntry struct {
	Key        string   `json:"key"`
	URL        string   `json:"url,omitempty"`
	PriceText  string   `json:"price_text,omitempty"`
	PriceNum   *float64 `json:"price_num,omitempty"`
	Confidence *float64 `json:"confidence,omitempty"`
	SavedAt    string   `json:"saved_at"`
}

// StoreCache is a durable key→entry map for one store, fully loaded at
// construction and written back only when dirty. Not safe for concurrent
// mutation: one store is driven by one sequential lookup loop.
type StoreCache struct {
	store       string
	path        string
	foundTTL    time.Duration
	notFoundTTL time.Duration
	clk         clock.Clock
	logger      *zap.Logger

	entries map[string]Entry
	dirty   bool
}

// New loads the cache file for store from cfg.Dir. A missing file is an
// empty cache; a corrupt one degrades to empty and never fails the run.
func New(cfg Config, store string, clk clock.Clock, logger *zap.Logger) (*StoreCache, error) {
	if strings.TrimSpace(store) == "" {
		return nil, fmt.Errorf("store name is required")
	}
	if strings.TrimSpace(cfg.Dir) == "" {
		return nil, fmt.Errorf("cache directory is required")
	}
	if cfg.FoundTTLDays <= 0 {
		cfg.FoundTTLDays = DefaultFoundTTLDays
	}
	if cfg.NotFoundTTLDays <= 0 {
		cfg.NotFoundTTLDays = DefaultNotFoundTTLDays
	}
	if clk == nil {
		clk = clock.NewSystem()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	c := &StoreCache{
		store:       store,
		path:        filepath.Join(cfg.Dir, store+"_cache.json"),
		foundTTL:    time.Duration(cfg.FoundTTLDays) * 24 * time.Hour,
		notFoundTTL: time.Duration(cfg.NotFoundTTLDays) * 24 * time.Hour,
		clk:         clk,
		logger:      logger,
		entries:     make(map[string]Entry),
	}
	c.load()
	return c, nil
}

func (c *StoreCache) load() {
	data, err := os.ReadFile(c.path)
	if err != nil {
		if !os.IsNotExist(err) {
			c.logger.Warn("cache unreadable, starting empty",
				zap.String("store", c.store), zap.Error(err))
		}
		return
	}

	var raw map[string]persistedEntry
	if err := json.Unmarshal(data, &raw); err != nil {
		c.logger.Warn("cache corrupt, starting empty",
			zap.String("store", c.store), zap.Error(err))
		return
	}

	for key, pe := range raw {
		entry := Entry{
			Key:       pe.Key,
			URL:       pe.URL,
			PriceText: pe.PriceText,
			PriceNum:  pe.PriceNum,
			SavedAt:   pe.SavedAt,
		}
		if entry.Key == "" {
			entry.Key = key
		}
		// Legacy files predate the confidence field.
		if pe.Confidence != nil {
			entry.Confidence = *pe.Confidence
		} else {
			entry.Confidence = 1.0
		}
		c.entries[key] = entry
	}
}

// Get returns the live entry for key, or nil. An expired entry is evicted
// on this first read and reported as absent.
func (c *StoreCache) Get(key string) *Entry {
	entry, ok := c.entries[key]
	if !ok {
		return nil
	}
	if c.expired(entry) {
		delete(c.entries, key)
		c.dirty = true
		return nil
	}
	return &entry
}

// Put records a fresh lookup outcome, overwriting any prior entry. An
// empty url records a not-found outcome.
func (c *StoreCache) Put(key, url, priceText string, priceNum *float64, confidence float64) {
	c.entries[key] = Entry{
		Key:        key,
		URL:        url,
		PriceText:  priceText,
		PriceNum:   priceNum,
		Confidence: confidence,
		SavedAt:    c.clk.Now().Format(time.RFC3339),
	}
	c.dirty = true
}

// Save writes the cache back to disk if anything changed. Idempotent.
func (c *StoreCache) Save() error {
	if !c.dirty {
		return nil
	}

	data, err := json.MarshalIndent(c.entries, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal cache %s: %w", c.store, err)
	}
	if err := os.MkdirAll(filepath.Dir(c.path), 0o750); err != nil {
		return fmt.Errorf("create cache dir: %w", err)
	}
	if err := os.WriteFile(c.path, data, 0o600); err != nil {
		return fmt.Errorf("write cache %s: %w", c.store, err)
	}

	c.dirty = false
	return nil
}

// Clear discards every entry and marks the cache dirty.
func (c *StoreCache) Clear() {
	c.entries = make(map[string]Entry)
	c.dirty = true
}

// ClearExpired removes expired entries without probing them individually
// and returns how many were dropped.
func (c *StoreCache) ClearExpired() int {
	var expired []string
	for key, entry := range c.entries {
		if c.expired(entry) {
			expired = append(expired, key)
		}
	}
	for _, key := range expired {
		delete(c.entries, key)
	}
	if len(expired) > 0 {
		c.dirty = true
	}
	return len(expired)
}

// Stats summarizes the cache contents.
type Stats struct {
	Store    string
	Total    int
	Found    int
	NotFound int
	Expired  int
}

// Snapshot counts entries without mutating the map.
func (c *StoreCache) Snapshot() Stats {
	s := Stats{Store: c.store, Total: len(c.entries)}
	for _, entry := range c.entries {
		if entry.Found() {
			s.Found++
		} else {
			s.NotFound++
		}
		if c.expired(entry) {
			s.Expired++
		}
	}
	return s
}

// expired applies the outcome-dependent TTL. An unparseable timestamp
// counts as expired.
func (c *StoreCache) expired(entry Entry) bool {
	saved, err := time.Parse(time.RFC3339, entry.SavedAt)
	if err != nil {
		return true
	}
	ttl := c.notFoundTTL
	if entry.Found() {
		ttl = c.foundTTL
	}
	return c.clk.Now().Sub(saved) > ttl
}
