// Package browser runs browsing tasks that stream messages while they work.
package browser

import (
	"context"
	"time"

	"github.com/spawn-mcp/campaign-studio/pkg/retry"
)

// Message types emitted by agents.
const (
	MessageStatus  = "status"
	MessageContent = "content"
	MessageResult  = "result"
)

// Message is one observation streamed by a browsing agent.
type Message struct {
	ID      string    `json:"id,omitempty"`
	Type    string    `json:"type"`
	Content string    `json:"content"`
	Time    time.Time `json:"time"`
}

// Task describes what the agent should browse.
type Task struct {
	URL          string
	Instructions string
}

// Agent runs a task, appending messages to acc as they arrive. Messages
// added before an error are kept by the caller.
type Agent interface {
	Run(ctx context.Context, task Task, acc *retry.Accumulator[Message]) error
}

// AgentFunc adapts a function to Agent.
type AgentFunc func(ctx context.Context, task Task, acc *retry.Accumulator[Message]) error

func (f AgentFunc) Run(ctx context.Context, task Task, acc *retry.Accumulator[Message]) error {
	return f(ctx, task, acc)
}

// Disabled never browses; it reports the URL it was given so downstream
// synthesis still has something to work from.
type Disabled struct{}

func (Disabled) Run(_ context.Context, task Task, acc *retry.Accumulator[Message]) error {
	acc.Add(Message{Type: MessageStatus, Content: "browsing disabled; website " + task.URL, Time: time.Now().UTC()})
	return nil
}
