package timeout

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManagerDefaultsAndOverrides(t *testing.T) {
	m := NewManager(time.Minute)

	assert.Equal(t, OperationTimeouts[OpVideo], m.Get(OpVideo))
	assert.Equal(t, time.Minute, m.Get("unknown"))

	m.LoadConfig(Config{Operations: map[string]time.Duration{OpVideo: time.Second, OpLLM: 0}})
	assert.Equal(t, time.Second, m.Get(OpVideo))
	assert.Equal(t, OperationTimeouts[OpLLM], m.Get(OpLLM), "zero values do not override")
}

func TestGetTimeoutRespectsParentDeadline(t *testing.T) {
	m := NewManager(time.Hour)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	assert.LessOrEqual(t, m.GetTimeout(ctx, OpBrowser), 50*time.Millisecond)
}

func TestRunReportsTimeout(t *testing.T) {
	m := NewManager(time.Hour)
	m.SetOperationTimeout(OpLLM, 10*time.Millisecond)

	err := m.Run(context.Background(), OpLLM, func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	require.Error(t, err)
	assert.True(t, IsTimeout(err))

	var te *TimeoutError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, OpLLM, te.Operation)
	assert.Equal(t, 10*time.Millisecond, te.Duration)
	assert.True(t, te.Timeout())
	assert.Contains(t, te.Error(), "timed out after 10ms")
}

func TestRunPassesThroughOtherErrors(t *testing.T) {
	m := NewManager(time.Hour)
	boom := errors.New("boom")

	err := m.Run(context.Background(), OpStore, func(context.Context) error { return boom })
	assert.Equal(t, boom, err)
	assert.False(t, IsTimeout(err))
	assert.False(t, IsTimeout(nil))
}
