package retry

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spawn-mcp/campaign-studio/pkg/errors"
)

func TestSalvageReturnsUnionAcrossAttempts(t *testing.T) {
	attempt := 0
	out, err := ExecuteWithSalvage(context.Background(), func(_ context.Context, acc *Accumulator[string]) error {
		attempt++
		acc.Add(fmt.Sprintf("msg-%d", attempt))
		if attempt < 3 {
			return transient()
		}
		return nil
	}, fastConfig(3))

	require.NoError(t, err)
	assert.True(t, out.Complete)
	assert.Equal(t, 3, out.Attempts)
	assert.Equal(t, []string{"msg-1", "msg-2", "msg-3"}, out.Items)
	assert.NoError(t, out.Err)
}

func TestSalvageReturnsPartialWhenExhausted(t *testing.T) {
	attempt := 0
	out, err := ExecuteWithSalvage(context.Background(), func(_ context.Context, acc *Accumulator[int]) error {
		attempt++
		if attempt == 1 {
			acc.Add(1, 2)
		}
		return transient()
	}, fastConfig(3))

	require.NoError(t, err)
	assert.False(t, out.Complete)
	assert.True(t, out.Partial())
	assert.Equal(t, 3, out.Attempts)
	assert.Equal(t, []int{1, 2}, out.Items)
	assert.True(t, errors.HasCode(out.Err, errors.ErrServiceUnavailable))
}

func TestSalvageFailsWhenNothingCollected(t *testing.T) {
	calls := 0
	out, err := ExecuteWithSalvage(context.Background(), func(context.Context, *Accumulator[int]) error {
		calls++
		return transient()
	}, fastConfig(3))

	require.Error(t, err)
	assert.Nil(t, out)
	assert.Equal(t, 3, calls)
	assert.Equal(t, errors.ErrRetriesExhausted, errors.CodeOf(err))
	assert.True(t, errors.HasCode(err, errors.ErrServiceUnavailable))
	assert.False(t, errors.IsRetryable(err))
}

func TestSalvageStopsOnTerminalErrorButKeepsData(t *testing.T) {
	calls := 0
	out, err := ExecuteWithSalvage(context.Background(), func(_ context.Context, acc *Accumulator[int]) error {
		calls++
		acc.Add(7)
		return errors.New(errors.ErrUpstreamRejected, "bad prompt")
	}, fastConfig(3))

	require.NoError(t, err)
	assert.Equal(t, 1, calls)
	assert.False(t, out.Complete)
	assert.Equal(t, []int{7}, out.Items)
}

func TestSalvageTreatsSilenceAsTransient(t *testing.T) {
	attempt := 0
	cfg := fastConfig(3).WithAttemptTimeout(10 * time.Millisecond)

	out, err := ExecuteWithSalvage(context.Background(), func(ctx context.Context, acc *Accumulator[string]) error {
		attempt++
		acc.Add(fmt.Sprintf("step-%d", attempt))
		if attempt < 2 {
			<-ctx.Done()
			return ctx.Err()
		}
		return nil
	}, cfg)

	require.NoError(t, err)
	assert.True(t, out.Complete)
	assert.Equal(t, []string{"step-1", "step-2"}, out.Items)
}

func TestSalvageParentCancellationKeepsData(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := Remote(3, time.Hour)
	cfg.OnRetry = func(int, error) { cancel() }

	out, err := ExecuteWithSalvage(ctx, func(_ context.Context, acc *Accumulator[int]) error {
		acc.Add(1)
		return transient()
	}, cfg)

	require.NoError(t, err)
	assert.False(t, out.Complete)
	assert.Equal(t, 1, out.Attempts)
	assert.ErrorIs(t, out.Err, context.Canceled)
}

func TestAccumulatorItemsIsACopy(t *testing.T) {
	acc := &Accumulator[int]{}
	acc.Add(1)
	items := acc.Items()
	items[0] = 99

	assert.Equal(t, []int{1}, acc.Items())
	assert.Equal(t, 1, acc.Len())
}
