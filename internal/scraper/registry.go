package scraper

import (
	"fmt"
	"sort"
)

// Registry resolves store names to their orchestrators. The caller that
// builds the registry owns the lifecycle of every registered scraper.
type Registry struct {
	byName map[string]*Scraper
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{byName: make(map[string]*Scraper)}
}

// Register adds a scraper; registering the same store twice is a wiring
// bug and fails.
func (r *Registry) Register(s *Scraper) error {
	name := s.Name()
	if name == "" {
		return fmt.Errorf("scraper has no store name")
	}
	if _, exists := r.byName[name]; exists {
		return fmt.Errorf("store %q already registered", name)
	}
	r.byName[name] = s
	return nil
}

// Get returns the scraper for name.
func (r *Registry) Get(name string) (*Scraper, bool) {
	s, ok := r.byName[name]
	return s, ok
}

// Names lists the registered stores in stable order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.byName))
	for name := range r.byName {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// All returns the scrapers in Names order.
func (r *Registry) All() []*Scraper {
	scrapers := make([]*Scraper, 0, len(r.byName))
	for _, name := range r.Names() {
		scrapers = append(scrapers, r.byName[name])
	}
	return scrapers
}

// Close saves every scraper's cache, returning the first error after
// attempting all of them.
func (r *Registry) Close() error {
	var firstErr error
	for _, s := range r.All() {
		if err := s.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
