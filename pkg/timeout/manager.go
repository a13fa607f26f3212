package timeout

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// Operation names used as timeout keys.
const (
	OpLLM      = "llm"
	OpImage    = "image"
	OpVideo    = "video"
	OpBrowser  = "browser"
	OpLocation = "location"
	OpTrends   = "trends"
	OpStore    = "store"
)

// OperationTimeouts defines default timeouts for operations
var OperationTimeouts = map[string]time.Duration{
	OpLLM:      2 * time.Minute,
	OpImage:    2 * time.Minute,
	OpVideo:    6 * time.Minute,
	OpBrowser:  5 * time.Minute,
	OpLocation: 30 * time.Second,
	OpTrends:   30 * time.Second,
	OpStore:    10 * time.Second,
}

// Manager manages timeout configuration
type Manager struct {
	global    time.Duration
	operation map[string]time.Duration
	mu        sync.RWMutex
}

// NewManager creates a manager seeded with OperationTimeouts.
func NewManager(globalTimeout time.Duration) *Manager {
	ops := make(map[string]time.Duration, len(OperationTimeouts))
	for k, v := range OperationTimeouts {
		ops[k] = v
	}
	return &Manager{
		global:    globalTimeout,
		operation: ops,
	}
}

// Config represents timeout configuration
type Config struct {
	Global     time.Duration            `json:"global" mapstructure:"global"`
	Operations map[string]time.Duration `json:"operations" mapstructure:"operations"`
}

// LoadConfig overlays configured values on top of the current ones. Zero values are ignored.
func (m *Manager) LoadConfig(config Config) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if config.Global > 0 {
		m.global = config.Global
	}
	for op, d := range config.Operations {
		if d > 0 {
			m.operation[op] = d
		}
	}
}

// SetOperationTimeout sets timeout for specific operation
func (m *Manager) SetOperationTimeout(operation string, timeout time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.operation[operation] = timeout
}

// Get returns the configured timeout for operation, falling back to the global value.
func (m *Manager) Get(operation string) time.Duration {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if d, ok := m.operation[operation]; ok {
		return d
	}
	return m.global
}

// GetTimeout is Get capped by the time remaining on ctx.
func (m *Manager) GetTimeout(ctx context.Context, operation string) time.Duration {
	d := m.Get(operation)
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < d {
			return remaining
		}
	}
	return d
}

// WithTimeout creates context with timeout
func (m *Manager) WithTimeout(ctx context.Context, operation string) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, m.GetTimeout(ctx, operation))
}

// Run executes fn under the operation's timeout. A deadline hit inside fn is
// reported as a *TimeoutError unless the parent context was already done.
func (m *Manager) Run(ctx context.Context, operation string, fn func(context.Context) error) error {
	timeoutCtx, cancel := m.WithTimeout(ctx, operation)
	defer cancel()

	err := fn(timeoutCtx)
	if err != nil && ctx.Err() == nil && errors.Is(timeoutCtx.Err(), context.DeadlineExceeded) {
		return &TimeoutError{
			Operation: operation,
			Duration:  m.Get(operation),
			Cause:     err,
		}
	}
	return err
}

// TimeoutError represents a timeout error
type TimeoutError struct {
	Operation string
	Duration  time.Duration
	Cause     error
}

// Error implements error interface
func (e *TimeoutError) Error() string {
	return fmt.Sprintf("operation %s timed out after %v", e.Operation, e.Duration)
}

func (e *TimeoutError) Unwrap() error { return e.Cause }

// Timeout marks the error as a timeout for net.Error-style checks.
func (e *TimeoutError) Timeout() bool { return true }

// IsTimeout checks if error is a timeout
func IsTimeout(err error) bool {
	if err == nil {
		return false
	}
	var te *TimeoutError
	if errors.As(err, &te) {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}
