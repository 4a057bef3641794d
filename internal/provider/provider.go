// Package provider implements the abstract ModelStream capability the
// Agent Runner drives (spec §4.1), backed by the eino agent framework.
package provider

import (
	"context"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/agentcore/server/pkg/types"
)

// ModelEventKind discriminates the variants of ModelEvent (spec §4.1).
type ModelEventKind string

const (
	EventTextDelta     ModelEventKind = "text_delta"
	EventThinkingDelta ModelEventKind = "thinking_delta"
	EventThinkingEnd   ModelEventKind = "thinking_end"
	EventToolCall      ModelEventKind = "tool_call"
	EventStop          ModelEventKind = "stop"
	EventError         ModelEventKind = "error"
)

// ModelEvent is one item of a ModelStream (spec §4.1): "{text_delta(message_id,
// text)}, {thinking_delta(text)}, {thinking_end(duration_ms)},
// {tool_call(id, name, input_json)}, {stop(finish_reason, usage?)},
// {error(message)}".
type ModelEvent struct {
	Kind ModelEventKind

	MessageID string
	Text      string

	DurationMs int64

	ToolCallID string
	ToolName   string
	InputJSON  []byte

	FinishReason string
	Usage        *types.Usage

	Err error
}

// EventReader yields a ModelStream's events in order; Recv returns io.EOF
// once the stream has delivered its stop (or error) event.
type EventReader interface {
	Recv() (ModelEvent, error)
	Close()
}

// ModelStream is the abstract capability the Agent Runner is given
// (spec §4.1): "Open(messages, tools, model) → stream of ModelEvent".
// The stream is cancellable through ctx; cancelling must terminate it
// promptly.
type ModelStream interface {
	Open(ctx context.Context, messages []*schema.Message, tools []*schema.ToolInfo, modelID string) (EventReader, error)
}

// Model describes one model a Provider exposes, for catalog/selection
// purposes (not part of the persisted data model — a static, per-process
// catalog, so it lives here rather than in pkg/types).
type Model struct {
	ID                string       `json:"id"`
	Name              string       `json:"name"`
	ProviderID        string       `json:"providerId"`
	ContextLength     int          `json:"contextLength"`
	MaxOutputTokens   int          `json:"maxOutputTokens"`
	SupportsTools     bool         `json:"supportsTools"`
	SupportsVision    bool         `json:"supportsVision"`
	SupportsReasoning bool         `json:"supportsReasoning"`
	InputPrice        float64      `json:"inputPrice"`
	OutputPrice       float64      `json:"outputPrice"`
	Options           ModelOptions `json:"options,omitempty"`
}

// ModelOptions carries model-specific capability flags.
type ModelOptions struct {
	PromptCaching  bool `json:"promptCaching,omitempty"`
	ExtendedOutput bool `json:"extendedOutput,omitempty"`
}

// Provider is an LLM backend: a ModelStream plus the model catalog it
// serves.
type Provider interface {
	ModelStream

	ID() string
	Name() string
	Models() []Model

	// ChatModel exposes the underlying eino chat model, e.g. for a
	// sub-agent executor that needs to bind a restricted tool subset
	// itself rather than go through Open.
	ChatModel() model.ToolCallingChatModel
}
