// Package rate shapes the stream of actor/workflow pairings fed to the
// runner: a linear ramp-up and a fixed-window throttle, both optional and
// composable.
package rate

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// Pacer is a leaky bucket that answers "when may the next item go".
//
// It keeps a virtual drip time advancing at the configured rate. Callers
// behind schedule proceed at once; callers ahead of it wait for their slot.
// Changing the rate drops any accumulated allowance so a rate drop never
// releases a burst.
//
// Pacer is safe for concurrent use.
type Pacer struct {
	mu          sync.Mutex
	rate        float64 // items per second
	lastDrip    time.Time
	accumulated float64
	maxBurst    float64

	scheduled atomic.Int64
	waited    atomic.Int64 // nanoseconds
}

// NewPacer creates a pacer releasing rate items per second. Non-positive
// rates fall back to 1. The first item is released immediately.
func NewPacer(rate float64) *Pacer {
	if rate <= 0 {
		rate = 1.0
	}
	return &Pacer{
		rate:        rate,
		lastDrip:    time.Now(),
		accumulated: 1.0,
		maxBurst:    1.0,
	}
}

// Next reserves the next slot and returns when it starts. The returned time
// is in the past or now when the caller is behind schedule.
func (p *Pacer) Next() time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := time.Now()
	elapsed := now.Sub(p.lastDrip).Seconds()
	if elapsed < 0 {
		elapsed = 0
	}

	p.accumulated += elapsed * p.rate
	if p.accumulated > p.maxBurst {
		p.accumulated = p.maxBurst
	}
	p.scheduled.Add(1)

	if p.accumulated >= 1.0 {
		p.accumulated -= 1.0
		p.lastDrip = now
		return now
	}

	wait := time.Duration((1.0 - p.accumulated) / p.rate * float64(time.Second))
	p.accumulated = 0

	// The slot is consumed at next; starting the drip there keeps the
	// wake-up from counting the same interval twice.
	next := now.Add(wait)
	p.lastDrip = next
	p.waited.Add(int64(wait))
	return next
}

// Wait blocks until the next slot or until ctx is done.
func (p *Pacer) Wait(ctx context.Context) error {
	d := time.Until(p.Next())
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// SetRate changes the rate. Accumulated allowance is discarded.
func (p *Pacer) SetRate(rate float64) {
	if rate <= 0 {
		rate = 1.0
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.rate = rate
	p.accumulated = 0
	p.lastDrip = time.Now()
}

// Rate returns the current rate in items per second.
func (p *Pacer) Rate() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.rate
}

// Stats returns counters describing the pacer's work so far.
func (p *Pacer) Stats() PacerStats {
	return PacerStats{
		Rate:      p.Rate(),
		Scheduled: p.scheduled.Load(),
		Waited:    time.Duration(p.waited.Load()),
	}
}

// PacerStats summarises a Pacer.
type PacerStats struct {
	Rate      float64       `json:"rate"`
	Scheduled int64         `json:"scheduled"`
	Waited    time.Duration `json:"waited"`
}
