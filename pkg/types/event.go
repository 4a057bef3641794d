package types

import "encoding/json"

// EventType is the discriminator carried in every persisted event's
// SSE envelope and Store row.
type EventType string

const (
	EventMessageDelta  EventType = "message_delta"
	EventThinking      EventType = "thinking"
	EventToolCall      EventType = "tool_call"
	EventToolResult    EventType = "tool_result"
	EventTerminalChunk EventType = "terminal_chunk"
	EventDiff          EventType = "diff"
	EventSubagent      EventType = "subagent"
	EventSubagentBlock EventType = "subagent_block"
	EventFinal         EventType = "final"
	EventError         EventType = "error"
)

// Event is one append-only row of the event log (§3 Event).
type Event struct {
	ID        int64           `json:"id"`
	Seq       int64           `json:"seq"`
	SessionID string          `json:"sessionId"`
	TurnID    *string         `json:"turnId,omitempty"`
	StepID    *string         `json:"stepId,omitempty"`
	Ts        float64         `json:"ts"`
	Type      EventType       `json:"type"`
	Payload   json.RawMessage `json:"payload"`
}

// ToolCallStatus is the status field of a tool_call event payload.
type ToolCallStatus string

const (
	ToolCallPermissionRequired ToolCallStatus = "permission_required"
	ToolCallRunning            ToolCallStatus = "running"
	ToolCallCompleted          ToolCallStatus = "completed"
	ToolCallError              ToolCallStatus = "error"
)

// MessageDeltaPayload backs EventMessageDelta.
type MessageDeltaPayload struct {
	Role      string `json:"role"`
	MessageID string `json:"message_id"`
	Delta     string `json:"delta"`
}

// ThinkingStatus is the status field of a thinking event payload.
type ThinkingStatus string

const (
	ThinkingStart ThinkingStatus = "start"
	ThinkingDelta ThinkingStatus = "delta"
	ThinkingEnd   ThinkingStatus = "end"
)

// ThinkingPayload backs EventThinking.
type ThinkingPayload struct {
	Status     ThinkingStatus `json:"status"`
	Text       string         `json:"text,omitempty"`
	DurationMs *int64         `json:"duration_ms,omitempty"`
}

// ToolCallPayload backs EventToolCall.
type ToolCallPayload struct {
	ToolCallID          string          `json:"tool_call_id"`
	ToolName            string          `json:"tool_name"`
	Input               json.RawMessage `json:"input"`
	Status              ToolCallStatus  `json:"status"`
	PermissionRequestID *string         `json:"permission_request_id,omitempty"`
}

// ToolResultPayload backs EventToolResult.
type ToolResultPayload struct {
	ToolCallID string `json:"tool_call_id"`
	OK         bool   `json:"ok"`
	Output     string `json:"output,omitempty"`
	Error      string `json:"error,omitempty"`
	DurationMs int64  `json:"duration_ms"`
}

// TerminalStream distinguishes stdout/stderr chunks in TerminalChunkPayload.
type TerminalStream string

const (
	StreamStdout TerminalStream = "stdout"
	StreamStderr TerminalStream = "stderr"
)

// TerminalChunkPayload backs EventTerminalChunk. No built-in tool in the
// public registry currently emits this; it is decoded here so the SSE
// envelope format does not special-case its absence (spec open question).
type TerminalChunkPayload struct {
	ToolCallID string         `json:"tool_call_id"`
	Stream     TerminalStream `json:"stream"`
	Text       string         `json:"text"`
}

// DiffPayload backs EventDiff.
type DiffPayload struct {
	ToolCallID string `json:"tool_call_id"`
	Path       string `json:"path"`
	Diff       string `json:"diff"`
}

// SubagentStatus is the status field of a subagent event payload.
type SubagentStatus string

const (
	SubagentRunning SubagentStatus = "running"
	SubagentDone    SubagentStatus = "done"
	SubagentError   SubagentStatus = "error"
)

// SubagentPayload backs EventSubagent.
type SubagentPayload struct {
	ParentToolCallID string         `json:"parent_tool_call_id"`
	SubagentID       string         `json:"subagent_id"`
	Status           SubagentStatus `json:"status"`
	Label            string         `json:"label"`
	Task             string         `json:"task"`
	Result           string         `json:"result,omitempty"`
	Error            string         `json:"error,omitempty"`
}

// SubagentBlockPayload backs EventSubagentBlock: one inner event of a
// running sub-agent, relayed verbatim under the parent tool call.
type SubagentBlockPayload struct {
	ParentToolCallID string          `json:"parent_tool_call_id"`
	SubagentID       string          `json:"subagent_id"`
	Block            json.RawMessage `json:"block"`
}

// FinalPayload backs EventFinal.
type FinalPayload struct {
	Role         string `json:"role"`
	MessageID    string `json:"message_id"`
	Text         string `json:"text"`
	FinishReason string `json:"finish_reason"`
	Usage        *Usage `json:"usage,omitempty"`
}

// Usage reports model token accounting, when the provider supplies it.
type Usage struct {
	InputTokens  int64 `json:"input_tokens"`
	OutputTokens int64 `json:"output_tokens"`
}

// ErrorPayload backs EventError.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error codes used in ErrorPayload.Code.
const (
	ErrCodeCancelled = "cancelled"
	ErrCodeRunner    = "runner"
	ErrCodeWriter    = "writer"
	ErrCodeHub       = "hub"
)
