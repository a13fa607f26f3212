package retry

import (
	"context"
	"fmt"
	"sync"

	"github.com/spawn-mcp/campaign-studio/pkg/errors"
)

// Accumulator collects items produced by a remote call. It outlives individual
// attempts so a retry never discards what an earlier attempt already gathered.
type Accumulator[T any] struct {
	mu    sync.Mutex
	items []T
}

func (a *Accumulator[T]) Add(items ...T) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.items = append(a.items, items...)
}

// Items returns a copy of everything collected so far.
func (a *Accumulator[T]) Items() []T {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]T, len(a.items))
	copy(out, a.items)
	return out
}

func (a *Accumulator[T]) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.items)
}

// Outcome is the result of a salvaging call. Complete is false when the
// attempts ran out and Items holds only what was collected before that.
type Outcome[T any] struct {
	Items    []T
	Complete bool
	Attempts int
	Err      error
}

// Partial reports whether the outcome was salvaged from failed attempts.
func (o *Outcome[T]) Partial() bool {
	return !o.Complete
}

// ExecuteWithSalvage runs op until it succeeds or the attempts run out.
//
// Every attempt appends to the same accumulator. On success the outcome holds
// the union of all attempts. When the last attempt fails, or the error is not
// retryable, the collected items are returned with Complete=false; if nothing
// was collected the call fails with ErrRetriesExhausted wrapping the last error.
func ExecuteWithSalvage[T any](
	ctx context.Context,
	op func(ctx context.Context, acc *Accumulator[T]) error,
	config Config,
) (*Outcome[T], error) {
	acc := &Accumulator[T]{}
	maxAttempts := config.maxAttempts()

	var lastErr error
	attempts := 0
	for attempt := 0; attempt < maxAttempts; attempt++ {
		attempts++
		err := config.runAttempt(ctx, func(attemptCtx context.Context) error {
			return op(attemptCtx, acc)
		})
		if err == nil {
			return &Outcome[T]{Items: acc.Items(), Complete: true, Attempts: attempts}, nil
		}
		lastErr = err

		if ctx.Err() != nil || attempt == maxAttempts-1 || !config.shouldRetry(attempt, err) {
			break
		}
		if waitErr := config.wait(ctx, attempt, err); waitErr != nil {
			lastErr = fmt.Errorf("%w (after: %v)", waitErr, err)
			break
		}
	}

	if acc.Len() > 0 {
		return &Outcome[T]{Items: acc.Items(), Complete: false, Attempts: attempts, Err: lastErr}, nil
	}
	return nil, errors.Wrap(lastErr, errors.ErrRetriesExhausted,
		fmt.Sprintf("no data collected after %d attempt(s)", attempts)).
		WithContext("attempts", attempts)
}
