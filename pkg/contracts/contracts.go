// Package contracts defines the narrow interfaces the agent core expects
// its hosting process to satisfy. The core never implements these edges
// itself: agent execution and text completion are injected collaborators.
package contracts

import (
	"context"

	"github.com/totalaud/agentcore/pkg/models"
)

// ── Agent execution ─────────────────────────────────────────

// TaskDescriptor describes one unit of autonomous work handed to a Runner.
type TaskDescriptor struct {
	LoopID   string                 `json:"loop_id"`
	Agent    models.AgentName       `json:"agent"`
	LoopType models.LoopType        `json:"loop_type"`
	Payload  map[string]interface{} `json:"payload,omitempty"`

	// Context is a snapshot of campaign/task state assembled by the loop
	// engine at execution time.
	Context map[string]interface{} `json:"context,omitempty"`
}

// RunResult is what a Runner reports back. Failures are carried in the
// result, never as a panic; the Error field is set when Success is false
// and a cause is known.
type RunResult struct {
	Success      bool                   `json:"success"`
	Message      string                 `json:"message"`
	Data         map[string]interface{} `json:"data,omitempty"`
	TasksCreated int                    `json:"tasks_created,omitempty"`
	NotesCreated int                    `json:"notes_created,omitempty"`
	Error        string                 `json:"error,omitempty"`
}

// Runner executes agent work on behalf of the loop engine. Implementations
// must honour ctx cancellation: the engine wraps every call in a hard
// timeout and treats overruns as execution failures.
type Runner interface {
	Execute(ctx context.Context, task TaskDescriptor) (*RunResult, error)
}

// RunnerFunc adapts a plain function to the Runner interface.
type RunnerFunc func(ctx context.Context, task TaskDescriptor) (*RunResult, error)

// Execute implements Runner.
func (f RunnerFunc) Execute(ctx context.Context, task TaskDescriptor) (*RunResult, error) {
	return f(ctx, task)
}

// ── Text completion ─────────────────────────────────────────

// Message is one turn of a completion conversation.
type Message struct {
	Role    string `json:"role"` // "system", "user", "assistant"
	Content string `json:"content"`
}

// CompletionOptions tune a single completion call.
type CompletionOptions struct {
	Model       string  `json:"model,omitempty"`
	MaxTokens   int     `json:"max_tokens,omitempty"`
	Temperature float64 `json:"temperature,omitempty"`
}

// Completion is the raw model output. Content may be malformed with respect
// to whatever structure the caller asked for; callers must tolerate parse
// failure and fall back to a conservative default.
type Completion struct {
	Content string `json:"content"`
	Model   string `json:"model"`
}

// Completer produces natural-language output from a prompt. The retry and
// timeout policy of the underlying provider belongs to the implementation,
// not to the core.
type Completer interface {
	Complete(ctx context.Context, provider string, messages []Message, opts CompletionOptions) (*Completion, error)
}
