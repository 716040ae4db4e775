// Package stores implements the per-site fetch collaborators and the
// governed navigation they share.
package stores

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/pmprecos/comparador/internal/governor"
)

// Page is one fetched, rendered page.
type Page struct {
	URL  string
	HTML string
}

// Transport loads a single URL and returns the page body. Implementations
// do no pacing of their own; that is the Navigator's job.
type Transport interface {
	Get(ctx context.Context, url string) (Page, error)
	Close() error
}

// Navigator is the single road to the network for one store: every load
// passes through the store's Rate Governor, is retried under the policy,
// and feeds the governor's outcome window, failed attempts included.
type Navigator struct {
	transport Transport
	gov       *governor.Governor
	retry     *governor.RetryPolicy
	logger    *zap.Logger
}

// NewNavigator wires a transport to its governor and retry policy.
func NewNavigator(transport Transport, gov *governor.Governor, retry *governor.RetryPolicy, logger *zap.Logger) *Navigator {
	if retry == nil {
		retry = governor.NewRetryPolicy(0, 0, 0)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Navigator{transport: transport, gov: gov, retry: retry, logger: logger}
}

// Fetch loads url with throttling and bounded retries.
func (n *Navigator) Fetch(ctx context.Context, url string) (Page, error) {
	var lastErr error
	for attempt := 0; attempt < n.retry.MaxAttempts(); attempt++ {
		n.gov.Throttle(ctx)

		page, err := n.transport.Get(ctx, url)
		n.gov.RecordOutcome(err == nil)
		if err == nil {
			return page, nil
		}
		lastErr = err

		if !n.retry.ShouldRetry(err, attempt) {
			break
		}
		backoff := n.retry.Backoff(attempt)
		n.logger.Debug("navigation failed, backing off",
			zap.String("url", url),
			zap.Int("attempt", attempt+1),
			zap.Duration("backoff", backoff),
			zap.Error(err))
		if err := sleepCtx(ctx, backoff); err != nil {
			return Page{}, err
		}
	}
	return Page{}, fmt.Errorf("fetch %s: %w", url, lastErr)
}

// Close releases the underlying transport.
func (n *Navigator) Close() error {
	return n.transport.Close()
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
