package retry

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/spawn-mcp/campaign-studio/pkg/errors"
)

// Strategy defines retry strategy interface
type Strategy interface {
	NextDelay(attempt int) time.Duration
	ShouldRetry(attempt int, err error) bool
}

// Config defines retry configuration. MaxAttempts counts every call, the first included.
type Config struct {
	MaxAttempts    int
	Strategy       Strategy
	Jitter         float64
	AttemptTimeout time.Duration
	OnRetry        func(attempt int, err error)
}

// WithAttemptTimeout returns a copy of c whose attempts are each bounded by d.
func (c Config) WithAttemptTimeout(d time.Duration) Config {
	c.AttemptTimeout = d
	return c
}

// ExponentialBackoff implements exponential backoff strategy
type ExponentialBackoff struct {
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}

// NextDelay calculates next delay for exponential backoff
func (e *ExponentialBackoff) NextDelay(attempt int) time.Duration {
	delay := float64(e.InitialDelay) * math.Pow(e.Multiplier, float64(attempt))
	if delay > float64(e.MaxDelay) {
		return e.MaxDelay
	}
	return time.Duration(delay)
}

// ShouldRetry determines if retry should continue
func (e *ExponentialBackoff) ShouldRetry(attempt int, err error) bool {
	return errors.IsRetryable(err)
}

// LinearBackoff waits the same delay before every retry.
type LinearBackoff struct {
	Delay time.Duration
}

// NextDelay returns constant delay for linear backoff
func (l *LinearBackoff) NextDelay(attempt int) time.Duration {
	return l.Delay
}

// ShouldRetry determines if retry should continue
func (l *LinearBackoff) ShouldRetry(attempt int, err error) bool {
	return errors.IsRetryable(err)
}

// ExecuteWithRetry executes operation with retry logic
func ExecuteWithRetry[T any](
	ctx context.Context,
	operation func(ctx context.Context) (T, error),
	config Config,
) (T, error) {
	var zero T
	var lastErr error

	maxAttempts := config.maxAttempts()
	for attempt := 0; attempt < maxAttempts; attempt++ {
		var result T
		err := config.runAttempt(ctx, func(attemptCtx context.Context) error {
			var opErr error
			result, opErr = operation(attemptCtx)
			return opErr
		})
		if err == nil {
			return result, nil
		}
		lastErr = err

		if !config.shouldRetry(attempt, err) {
			return zero, fmt.Errorf("attempt %d of %d failed permanently: %w", attempt+1, maxAttempts, err)
		}
		if attempt == maxAttempts-1 {
			break
		}
		if waitErr := config.wait(ctx, attempt, err); waitErr != nil {
			return zero, waitErr
		}
	}

	return zero, fmt.Errorf("max retries (%d) exceeded: %w", maxAttempts, lastErr)
}

func (c Config) maxAttempts() int {
	if c.MaxAttempts < 1 {
		return 1
	}
	return c.MaxAttempts
}

func (c Config) shouldRetry(attempt int, err error) bool {
	if c.Strategy != nil {
		return c.Strategy.ShouldRetry(attempt, err)
	}
	return errors.IsRetryable(err)
}

// runAttempt bounds one attempt by AttemptTimeout. A per-attempt deadline is
// reported as a retryable timeout, distinct from the parent context ending.
func (c Config) runAttempt(ctx context.Context, fn func(context.Context) error) error {
	if c.AttemptTimeout <= 0 {
		return fn(ctx)
	}
	attemptCtx, cancel := context.WithTimeout(ctx, c.AttemptTimeout)
	defer cancel()

	err := fn(attemptCtx)
	if err != nil && ctx.Err() == nil && attemptCtx.Err() == context.DeadlineExceeded {
		return errors.Wrap(err, errors.ErrTimeout, fmt.Sprintf("attempt exceeded %v", c.AttemptTimeout))
	}
	return err
}

func (c Config) wait(ctx context.Context, attempt int, err error) error {
	var delay time.Duration
	if c.Strategy != nil {
		delay = c.Strategy.NextDelay(attempt)
	}
	if c.Jitter > 0 {
		delay = applyJitter(delay, c.Jitter)
	}
	if c.OnRetry != nil {
		c.OnRetry(attempt, err)
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("retry cancelled: %w", ctx.Err())
	}
}

// applyJitter adds random jitter to delay
func applyJitter(delay time.Duration, jitterFactor float64) time.Duration {
	jitter := float64(delay) * jitterFactor
	randomJitter := (rand.Float64() - 0.5) * 2 * jitter
	finalDelay := float64(delay) + randomJitter

	if finalDelay < 0 {
		return 0
	}

	return time.Duration(finalDelay)
}

// Remote builds the fixed-delay policy used for remote capability calls.
func Remote(maxAttempts int, delay time.Duration) Config {
	return Config{
		MaxAttempts: maxAttempts,
		Strategy:    &LinearBackoff{Delay: delay},
	}
}

// DefaultConfigs provides pre-configured retry configurations
var DefaultConfigs = struct {
	Remote      Config
	Persistence Config
	Standard    Config
}{
	Remote: Remote(3, 5*time.Second),
	Persistence: Config{
		MaxAttempts: 3,
		Strategy:    &LinearBackoff{Delay: 100 * time.Millisecond},
		Jitter:      0.1,
	},
	Standard: Config{
		MaxAttempts: 5,
		Strategy: &ExponentialBackoff{
			InitialDelay: 100 * time.Millisecond,
			MaxDelay:     10 * time.Second,
			Multiplier:   2,
		},
		Jitter: 0.2,
	},
}
