// Package retry drives the attempt loop for a logical scrape request. It owns
// retry eligibility per error kind and backoff timing; it holds no browser
// logic and learns about failures only through the classifier.
package retry

import (
	"context"
	"log/slog"
	"math"
	"math/rand"
	"time"

	"github.com/pricewatch/price-scraper/internal/errclass"
)

// AttemptFunc performs one browser-engine attempt. The attempt index lets the
// caller pick a browser family and widen its navigation timeout.
type AttemptFunc func(ctx context.Context, attempt int) error

// Policy holds the tunables of the retry state machine.
type Policy struct {
	MaxRetries        int
	BackoffMultiplier float64
	MaxDelay          time.Duration
	JitterFraction    float64
}

func DefaultPolicy() Policy {
	return Policy{
		MaxRetries:        2,
		BackoffMultiplier: 2.0,
		MaxDelay:          60 * time.Second,
		JitterFraction:    0.10,
	}
}

// Base delays are tiered: rate limiting and bot detection wait longest before
// another knock on the door, network and navigation failures are usually
// transient and retry quickly.
var baseDelays = map[errclass.Kind]time.Duration{
	errclass.KindNetwork:      1 * time.Second,
	errclass.KindNavigation:   1 * time.Second,
	errclass.KindServerError:  2 * time.Second,
	errclass.KindParsing:      2 * time.Second,
	errclass.KindUnknown:      3 * time.Second,
	errclass.KindRateLimit:    10 * time.Second,
	errclass.KindBotDetection: 15 * time.Second,
}

// Executor runs attempt functions under a Policy. The rand source and sleep
// function are injectable so tests can pin jitter and skip real waiting.
type Executor struct {
	policy Policy
	logger *slog.Logger
	rand   *rand.Rand
	sleep  func(ctx context.Context, d time.Duration) error
}

type Option func(*Executor)

func WithRand(r *rand.Rand) Option {
	return func(e *Executor) { e.rand = r }
}

func WithSleep(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(e *Executor) { e.sleep = fn }
}

func NewExecutor(policy Policy, logger *slog.Logger, opts ...Option) *Executor {
	e := &Executor{
		policy: policy,
		logger: logger.With("component", "retry"),
		rand:   rand.New(rand.NewSource(time.Now().UnixNano())),
		sleep:  sleepContext,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute runs fn until it succeeds, the error kind is no longer eligible for
// another attempt, or MaxRetries is exceeded. It returns nil on success and
// the last attempt's error on exhaustion.
func (e *Executor) Execute(ctx context.Context, fn AttemptFunc) error {
	var lastErr error

	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := fn(ctx, attempt)
		if err == nil {
			return nil
		}
		lastErr = err

		kind := errclass.Classify(err)
		if !Eligible(kind, attempt) || attempt == e.policy.MaxRetries {
			e.logger.Debug("retries exhausted",
				"attempt", attempt, "error_type", string(kind), "error", err)
			return lastErr
		}

		delay := e.Delay(kind, attempt)
		e.logger.Debug("retrying after failure",
			"attempt", attempt, "error_type", string(kind), "delay", delay, "error", err)

		if err := e.sleep(ctx, delay); err != nil {
			return err
		}
	}
}

// Eligible reports whether a failure of the given kind at the given attempt
// index may be retried. Client errors indicate a permanently bad request and
// are never retried.
func Eligible(kind errclass.Kind, attempt int) bool {
	switch kind {
	case errclass.KindNetwork, errclass.KindServerError, errclass.KindNavigation:
		return true
	case errclass.KindRateLimit, errclass.KindParsing:
		return attempt < 2
	case errclass.KindBotDetection, errclass.KindUnknown:
		return attempt < 1
	case errclass.KindClientError:
		return false
	default:
		return false
	}
}

// Delay computes the backoff before the next attempt: exponential in the
// attempt index with symmetric jitter, never exceeding MaxDelay.
func (e *Executor) Delay(kind errclass.Kind, attempt int) time.Duration {
	base, ok := baseDelays[kind]
	if !ok {
		base = baseDelays[errclass.KindUnknown]
	}

	d := time.Duration(float64(base) * math.Pow(e.policy.BackoffMultiplier, float64(attempt)))

	if e.policy.JitterFraction > 0 {
		jitter := (e.rand.Float64()*2 - 1) * e.policy.JitterFraction
		d = time.Duration(float64(d) * (1 + jitter))
	}
	if d > e.policy.MaxDelay {
		d = e.policy.MaxDelay
	}
	if d < 0 {
		d = 0
	}

	return d
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
