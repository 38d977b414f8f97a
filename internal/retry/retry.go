// Package retry replays operations that failed with a transient error, backing
// off exponentially with jitter between attempts.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"time"
)

var ErrMaxRetriesExceeded = errors.New("max retries exceeded")

type Config struct {
	// MaxAttempts counts the first try; values below 1 mean 1.
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Multiplier      float64
	// JitterFactor in [0, 1]: 0.2 spreads each wait by ±20%.
	JitterFactor float64
}

func DefaultConfig() Config {
	return Config{
		MaxAttempts:     3,
		InitialInterval: 10 * time.Millisecond,
		MaxInterval:     200 * time.Millisecond,
		Multiplier:      2.0,
		JitterFactor:    0.2,
	}
}

type Operation func(ctx context.Context) error

// Classifier reports whether err is worth another attempt.
type Classifier func(err error) bool

// RetryCallback is called before waiting for the next attempt.
type RetryCallback func(attempt int, err error, next time.Duration)

type Retrier struct {
	cfg       Config
	retryable Classifier
	onRetry   RetryCallback
}

func New(cfg Config, retryable Classifier) *Retrier {
	def := DefaultConfig()
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	if cfg.InitialInterval <= 0 {
		cfg.InitialInterval = def.InitialInterval
	}
	if cfg.MaxInterval < cfg.InitialInterval {
		cfg.MaxInterval = max(def.MaxInterval, cfg.InitialInterval)
	}
	if cfg.Multiplier < 1 {
		cfg.Multiplier = def.Multiplier
	}
	cfg.JitterFactor = min(max(cfg.JitterFactor, 0), 1)

	return &Retrier{cfg: cfg, retryable: retryable}
}

// OnRetry sets a callback invoked before each backoff wait.
func (r *Retrier) OnRetry(cb RetryCallback) *Retrier {
	r.onRetry = cb
	return r
}

// Do runs op until it succeeds, fails with an error the classifier rejects, or
// runs out of attempts. Exhaustion returns an error matching both
// ErrMaxRetriesExceeded and the last failure. It returns the attempts made.
func (r *Retrier) Do(ctx context.Context, op Operation) (int, error) {
	var lastErr error

	for attempt := 1; attempt <= r.cfg.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return attempt - 1, err
		}

		err := op(ctx)
		if err == nil {
			return attempt, nil
		}
		if r.retryable == nil || !r.retryable(err) {
			return attempt, err
		}

		lastErr = err
		if attempt == r.cfg.MaxAttempts {
			break
		}

		wait := r.interval(attempt - 1)
		if r.onRetry != nil {
			r.onRetry(attempt, err, wait)
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return attempt, ctx.Err()
		case <-timer.C:
		}
	}

	return r.cfg.MaxAttempts, fmt.Errorf("%w after %d attempts: %w", ErrMaxRetriesExceeded, r.cfg.MaxAttempts, lastErr)
}

func (r *Retrier) interval(n int) time.Duration {
	d := float64(r.cfg.InitialInterval) * math.Pow(r.cfg.Multiplier, float64(n))

	if r.cfg.JitterFactor > 0 {
		d += d * r.cfg.JitterFactor * (rand.Float64()*2 - 1)
	}

	if d > float64(r.cfg.MaxInterval) {
		d = float64(r.cfg.MaxInterval)
	}
	if d < 0 {
		d = float64(r.cfg.InitialInterval)
	}

	return time.Duration(d)
}
