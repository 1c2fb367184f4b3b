package worker

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"
)

// jitterFraction bounds the random delay added to every wait
const jitterFraction = 0.2

// Pacer is a process-wide gate that spaces outbound model calls. Each Wait
// returns no earlier than interval after the previous Wait returned, plus a
// random jitter of up to a fifth of the interval. Callers are served one at a
// time.
type Pacer struct {
	mu       sync.Mutex
	interval time.Duration
	last     time.Time

	now    func() time.Time
	sleep  func(ctx context.Context, d time.Duration) error
	jitter func(limit time.Duration) time.Duration
}

// NewPacer creates a pacer. An interval <= 0 disables pacing.
func NewPacer(interval time.Duration) *Pacer {
	return &Pacer{
		interval: interval,
		now:      time.Now,
		sleep:    SleepContext,
		jitter:   randomJitter,
	}
}

// NewPacerSeconds creates a pacer from a fractional number of seconds
func NewPacerSeconds(seconds float64) *Pacer {
	return NewPacer(time.Duration(seconds * float64(time.Second)))
}

// Interval returns the configured minimum spacing
func (p *Pacer) Interval() time.Duration {
	if p == nil {
		return 0
	}
	return p.interval
}

// Wait blocks until the caller may issue its request. It returns ctx.Err() if
// the context ends first; the slot is not consumed in that case.
func (p *Pacer) Wait(ctx context.Context) error {
	if p == nil || p.interval <= 0 {
		return nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	var wait time.Duration
	if !p.last.IsZero() {
		wait = max(p.interval-p.now().Sub(p.last), 0)
	}
	wait += p.jitter(time.Duration(float64(p.interval) * jitterFraction))

	if wait > 0 {
		if err := p.sleep(ctx, wait); err != nil {
			return err
		}
	}

	p.last = p.now()
	return nil
}

// SleepContext sleeps for d or until ctx is done, returning ctx.Err() in
// the latter case
func SleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func randomJitter(limit time.Duration) time.Duration {
	if limit <= 0 {
		return 0
	}
	return rand.N(limit + 1)
}
