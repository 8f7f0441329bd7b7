package fetch

import (
	"context"
	"math/rand/v2"
	"time"
)

// Sleeper blocks for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// Sleep waits for d, returning early with ctx.Err() when ctx is cancelled.
func Sleep(ctx context.Context, d time.Duration) error {
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

// Pacer spaces out requests to a remote site.
type Pacer struct {
	Min   time.Duration
	Max   time.Duration
	Sleep Sleeper
	// Jitter returns a value in [0,1). Defaults to math/rand.
	Jitter func() float64
}

// Fixed returns a pacer that always waits d.
func Fixed(d time.Duration) *Pacer {
	return &Pacer{Min: d, Max: d}
}

// Between returns a pacer waiting a uniform random delay in [min,max].
func Between(min, max time.Duration) *Pacer {
	return &Pacer{Min: min, Max: max}
}

// Delay returns the next delay without sleeping.
func (p *Pacer) Delay() time.Duration {
	if p == nil || p.Max <= 0 {
		return 0
	}
	if p.Max <= p.Min {
		return p.Min
	}
	jitter := rand.Float64
	if p.Jitter != nil {
		jitter = p.Jitter
	}
	return p.Min + time.Duration(jitter()*float64(p.Max-p.Min))
}

// Wait sleeps for the next delay and returns it.
func (p *Pacer) Wait(ctx context.Context) (time.Duration, error) {
	d := p.Delay()
	if d <= 0 {
		return 0, ctx.Err()
	}
	sleep := Sleep
	if p.Sleep != nil {
		sleep = p.Sleep
	}
	return d, sleep(ctx, d)
}
