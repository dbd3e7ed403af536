package ratelimit

import (
	"context"
	"math/rand"
	"sync"
	"time"
)

// Limiter spaces out requests against a single retailer. The scrape
// orchestrator feeds outcomes back so the window can adapt.
type Limiter interface {
	Wait(ctx context.Context) error
	SetDelay(min, max time.Duration)
	RecordSuccess()
	RecordThrottled()
}

// domainLimiter enforces a jittered minimum gap between consecutive
// requests to one retailer domain.
type domainLimiter struct {
	mu         sync.Mutex
	minDelay   time.Duration
	maxDelay   time.Duration
	lastAction time.Time
	rand       *rand.Rand

	// Adaptive state. Repeated rate_limit or bot_detection outcomes
	// widen the delay window; sustained success narrows it back.
	errorStreak   int
	successStreak int
	floorMin      time.Duration
	floorMax      time.Duration
}

const (
	backoffFactor   = 1.5
	errorThreshold  = 2
	recoverStreak   = 5
	hardMinCeiling  = 60 * time.Second
	hardMaxCeiling  = 120 * time.Second
)

func newDomainLimiter(min, max time.Duration, src rand.Source) *domainLimiter {
	return &domainLimiter{
		minDelay: min,
		maxDelay: max,
		floorMin: min,
		floorMax: max,
		rand:     rand.New(src),
	}
}

// Wait blocks until the jittered gap since the last request to this
// domain has elapsed, or the context is cancelled.
func (l *domainLimiter) Wait(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	elapsed := time.Since(l.lastAction)
	delay := l.pickDelay()

	if elapsed < delay {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay - elapsed):
		}
	}

	l.lastAction = time.Now()
	return nil
}

// SetDelay reconfigures the delay window floor. Idempotent: restating the
// current floor keeps the adaptive state, so per-retailer configuration can
// be applied on every scrape without erasing earned backoff.
func (l *domainLimiter) SetDelay(min, max time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if min == l.floorMin && max == l.floorMax {
		return
	}
	l.minDelay = min
	l.maxDelay = max
	l.floorMin = min
	l.floorMax = max
}

func (l *domainLimiter) pickDelay() time.Duration {
	if l.maxDelay <= l.minDelay {
		return l.minDelay
	}
	jitter := time.Duration(l.rand.Int63n(int64(l.maxDelay - l.minDelay)))
	return l.minDelay + jitter
}

// RecordThrottled widens the delay window after consecutive throttling
// or bot-detection outcomes against this domain.
func (l *domainLimiter) RecordThrottled() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.errorStreak++
	l.successStreak = 0

	if l.errorStreak < errorThreshold {
		return
	}
	l.errorStreak = 0

	l.minDelay = minDuration(time.Duration(float64(l.minDelay)*backoffFactor), hardMinCeiling)
	l.maxDelay = minDuration(time.Duration(float64(l.maxDelay)*backoffFactor), hardMaxCeiling)
}

// RecordSuccess narrows the window back toward the configured floor
// after a run of clean outcomes.
func (l *domainLimiter) RecordSuccess() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.successStreak++
	l.errorStreak = 0

	if l.successStreak < recoverStreak {
		return
	}
	l.successStreak = 0

	l.minDelay = maxDuration(time.Duration(float64(l.minDelay)*0.9), l.floorMin)
	l.maxDelay = maxDuration(time.Duration(float64(l.maxDelay)*0.9), l.floorMax)
}

func minDuration(a, b time.Duration) time.Duration {
	if a < b {
		return a
	}
	return b
}

func maxDuration(a, b time.Duration) time.Duration {
	if a > b {
		return a
	}
	return b
}

// Registry hands out one limiter per retailer domain so that pacing
// against one retailer never stalls requests to another.
type Registry struct {
	mu       sync.Mutex
	limiters map[string]*domainLimiter
	minDelay time.Duration
	maxDelay time.Duration
	seed     func() rand.Source
}

func NewRegistry(minDelay, maxDelay time.Duration) *Registry {
	return &Registry{
		limiters: make(map[string]*domainLimiter),
		minDelay: minDelay,
		maxDelay: maxDelay,
		seed: func() rand.Source {
			return rand.NewSource(time.Now().UnixNano())
		},
	}
}

// For returns the limiter for a retailer domain, creating it on first use.
func (r *Registry) For(domain string) Limiter {
	r.mu.Lock()
	defer r.mu.Unlock()

	if l, ok := r.limiters[domain]; ok {
		return l
	}
	l := newDomainLimiter(r.minDelay, r.maxDelay, r.seed())
	r.limiters[domain] = l
	return l
}
