// Package governor gates the timing of store navigations and adapts the
// pace from observed outcomes.
package governor

import (
	"context"
	"crypto/rand"
	"math/big"
	"sync"
	"time"

	"github.com/pmprecos/comparador/internal/clock"
	"github.com/pmprecos/comparador/internal/telemetry"
)

// Config controls Governor behavior.
type Config struct {
	// MinGap is the minimum interval between navigations in normal mode.
	MinGap time.Duration `mapstructure:"min_gap"`
	// JitterMin/JitterMax bound the extra randomized pause added after
	// the gap wait, so the cadence is not fingerprintable.
	JitterMin time.Duration `mapstructure:"jitter_min"`
	JitterMax time.Duration `mapstructure:"jitter_max"`
	// SlowMultiplier scales MinGap while in slow mode.
	SlowMultiplier float64 `mapstructure:"slow_multiplier"`
	// WindowSize bounds the sliding window of navigation outcomes.
	WindowSize int `mapstructure:"window_size"`
	// MinSamples is how many outcomes the window needs before the
	// failure ratio is acted on.
	MinSamples int `mapstructure:"min_samples"`
	// FailureThreshold is the ratio above which slow mode engages.
	FailureThreshold float64 `mapstructure:"failure_threshold"`
}

// DefaultConfig returns the production pacing constants.
func DefaultConfig() Config {
	return Config{
		MinGap:           7500 * time.Millisecond,
		JitterMin:        700 * time.Millisecond,
		JitterMax:        1500 * time.Millisecond,
		SlowMultiplier:   2.0,
		WindowSize:       20,
		MinSamples:       10,
		FailureThreshold: 0.30,
	}
}

// pauser abstracts how the governor blocks, so tests can observe waits
// instead of sleeping through them.
type pauser interface {
	Pause(ctx context.Context, delay time.Duration)
}

type timerPauser struct{}

func (timerPauser) Pause(ctx context.Context, delay time.Duration) {
	if delay <= 0 {
		return
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

// Governor owns the pacing state for one store. Construct one per store;
// sharing a Governor across stores couples their pacing, sharing one
// across goroutines serializes them on its lock.
type Governor struct {
	cfg    Config
	clk    clock.Clock
	pause  pauser
	store  string
	mu     sync.Mutex
	lastAt time.Time
	slow   bool
	window []bool
}

// New builds a Governor for the named store.
func New(cfg Config, store string, clk clock.Clock) *Governor {
	def := DefaultConfig()
	if cfg.MinGap <= 0 {
		cfg.MinGap = def.MinGap
	}
	if cfg.JitterMax < cfg.JitterMin {
		cfg.JitterMax = cfg.JitterMin
	}
	if cfg.SlowMultiplier <= 1 {
		cfg.SlowMultiplier = def.SlowMultiplier
	}
	if cfg.WindowSize <= 0 {
		cfg.WindowSize = def.WindowSize
	}
	if cfg.MinSamples <= 0 {
		cfg.MinSamples = def.MinSamples
	}
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = def.FailureThreshold
	}
	if clk == nil {
		clk = clock.NewSystem()
	}
	return &Governor{
		cfg:   cfg,
		clk:   clk,
		pause: timerPauser{},
		store: store,
	}
}

// Throttle blocks until the current minimum gap since the last navigation
// has elapsed, adds randomized jitter, then stamps the new navigation
// instant. Call it before every network navigation.
func (g *Governor) Throttle(ctx context.Context) {
	g.mu.Lock()
	gap := g.currentGap()
	last := g.lastAt
	g.mu.Unlock()

	start := g.clk.Now()
	if !last.IsZero() {
		if remaining := gap - start.Sub(last); remaining > 0 {
			g.pause.Pause(ctx, remaining)
		}
	}
	g.pause.Pause(ctx, randomBetween(g.cfg.JitterMin, g.cfg.JitterMax))

	now := g.clk.Now()
	if waited := now.Sub(start); waited > 0 {
		telemetry.ObserveThrottleDelay(g.store, waited)
	}

	g.mu.Lock()
	g.lastAt = now
	g.mu.Unlock()
}

// RecordOutcome feeds one navigation result into the sliding window and
// re-evaluates slow mode. Call it after every attempt, success or failure.
func (g *Governor) RecordOutcome(success bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.window = append(g.window, success)
	if len(g.window) > g.cfg.WindowSize {
		g.window = g.window[1:]
	}
	if len(g.window) < g.cfg.MinSamples {
		return
	}

	wasSlow := g.slow
	g.slow = g.failureRatio() > g.cfg.FailureThreshold
	if g.slow != wasSlow {
		telemetry.SetSlowMode(g.store, g.slow)
	}
}

// IsSlow reports whether sustained failures have engaged slow mode.
func (g *Governor) IsSlow() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.slow
}

// Snapshot describes the governor's current pacing state.
type Snapshot struct {
	Store        string
	MinGap       time.Duration
	Slow         bool
	FailureRatio float64
	WindowLen    int
}

// Snapshot returns a point-in-time view for logging and the cache command.
func (g *Governor) Snapshot() Snapshot {
	g.mu.Lock()
	defer g.mu.Unlock()
	return Snapshot{
		Store:        g.store,
		MinGap:       g.currentGap(),
		Slow:         g.slow,
		FailureRatio: g.failureRatio(),
		WindowLen:    len(g.window),
	}
}

// currentGap must be called with the lock held.
func (g *Governor) currentGap() time.Duration {
	if g.slow {
		return time.Duration(float64(g.cfg.MinGap) * g.cfg.SlowMultiplier)
	}
	return g.cfg.MinGap
}

// failureRatio must be called with the lock held.
func (g *Governor) failureRatio() float64 {
	if len(g.window) == 0 {
		return 0
	}
	failures := 0
	for _, ok := range g.window {
		if !ok {
			failures++
		}
	}
	return float64(failures) / float64(len(g.window))
}

func randomBetween(low, high time.Duration) time.Duration {
	if high <= low {
		return low
	}
	span := big.NewInt(int64(high - low))
	n, err := rand.Int(rand.Reader, span)
	if err != nil {
		return low + (high-low)/2
	}
	return low + time.Duration(n.Int64())
}
