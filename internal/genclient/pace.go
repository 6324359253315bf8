// Package genclient wraps the external generation provider with the two
// protections every caller must share: a pacing gate that spaces call starts
// to stay under the provider's token budget, and retry-on-throttle with
// provider hints.
package genclient

import (
	"context"
	"sync"
	"time"
)

// Gate spaces call starts at least a minimum interval apart. The interval is
// derived from the provider's tokens-per-minute budget and an average-tokens-
// per-call estimate, so aggregate throughput stays under budget no matter how
// many workers share the gate.
type Gate struct {
	mu       sync.Mutex
	interval time.Duration
	next     time.Time

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// NewGate derives the minimum inter-call interval from the budget. A
// non-positive budget or estimate disables pacing.
func NewGate(tokensPerMinute, avgTokensPerCall int) *Gate {
	var interval time.Duration
	if tokensPerMinute > 0 && avgTokensPerCall > 0 {
		interval = time.Duration(float64(avgTokensPerCall) / float64(tokensPerMinute) * float64(time.Minute))
	}
	return &Gate{
		interval: interval,
		now:      time.Now,
		sleep:    sleepCtx,
	}
}

// Interval returns the minimum spacing between call starts.
func (g *Gate) Interval() time.Duration { return g.interval }

// Wait blocks until the caller's reserved start slot. Slots are handed out
// under the lock, so two concurrent callers can never start closer together
// than the interval; the actual sleeping happens outside the lock.
func (g *Gate) Wait(ctx context.Context) error {
	if g.interval <= 0 {
		return ctx.Err()
	}

	g.mu.Lock()
	now := g.now()
	start := g.next
	if start.Before(now) {
		start = now
	}
	g.next = start.Add(g.interval)
	g.mu.Unlock()

	if d := start.Sub(now); d > 0 {
		return g.sleep(ctx, d)
	}
	return ctx.Err()
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
