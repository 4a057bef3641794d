package provider

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/cloudwego/eino/schema"
	"github.com/oklog/ulid/v2"

	"github.com/agentcore/server/pkg/types"
)

// ulidMessageID mints a new message identifier for a model response, using
// the same ULID convention as the rest of the store/runner/event surface.
func ulidMessageID() string {
	return ulid.Make().String()
}

// einoEventReader adapts eino's raw *schema.StreamReader[*schema.Message]
// chunk stream into the ModelEvent vocabulary (spec §4.1). Eino delivers
// tool calls as a sequence of partial chunks keyed by Index (or ID, when
// the provider doesn't send one) with accumulating Function.Arguments
// fragments; the runner needs one complete tool_call event per call, so
// this reader buffers tool-call argument fragments and only emits
// tool_call once the upstream stream ends, in first-seen order. Text and
// reasoning content arrive either as true deltas or as the full
// accumulated string so far depending on provider; both are normalized
// to an emitted delta the same way the teacher's processMessageChunk did.
type einoEventReader struct {
	reader    *schema.StreamReader[*schema.Message]
	messageID string

	queue []ModelEvent
	done  bool

	accumulatedText      string
	accumulatedReasoning string
	thinkingStarted      bool
	thinkingStart        time.Time

	toolOrder []string
	toolCalls map[string]*toolCallAccum

	finishReason string
	usage        *types.Usage
}

type toolCallAccum struct {
	id   string
	name string
	args strings.Builder
}

func newEinoEventReader(reader *schema.StreamReader[*schema.Message], messageID string) *einoEventReader {
	return &einoEventReader{
		reader:    reader,
		messageID: messageID,
		toolCalls: make(map[string]*toolCallAccum),
	}
}

// Recv returns the next ModelEvent, or io.EOF once the stop/error event
// for this stream has already been delivered.
func (r *einoEventReader) Recv() (ModelEvent, error) {
	for len(r.queue) == 0 {
		if r.done {
			return ModelEvent{}, io.EOF
		}

		msg, err := r.reader.Recv()
		if err == io.EOF {
			r.done = true
			r.flush(nil)
			continue
		}
		if err != nil {
			r.done = true
			r.queue = append(r.queue, ModelEvent{Kind: EventError, Err: err})
			r.flush(err)
			continue
		}
		r.ingest(msg)
	}

	ev := r.queue[0]
	r.queue = r.queue[1:]
	return ev, nil
}

// Close releases the underlying eino stream.
func (r *einoEventReader) Close() {
	r.reader.Close()
}

func (r *einoEventReader) ingest(msg *schema.Message) {
	if msg.Content != "" {
		r.queue = append(r.queue, ModelEvent{
			Kind:      EventTextDelta,
			MessageID: r.messageID,
			Text:      deltaOf(&r.accumulatedText, msg.Content),
		})
	}

	if msg.ReasoningContent != "" {
		if !r.thinkingStarted {
			r.thinkingStarted = true
			r.thinkingStart = time.Now()
		}
		r.queue = append(r.queue, ModelEvent{
			Kind: EventThinkingDelta,
			Text: deltaOf(&r.accumulatedReasoning, msg.ReasoningContent),
		})
	}

	for _, tc := range msg.ToolCalls {
		key := toolCallKey(tc)
		if key == "" {
			continue
		}
		acc, exists := r.toolCalls[key]
		if !exists {
			acc = &toolCallAccum{}
			r.toolCalls[key] = acc
			r.toolOrder = append(r.toolOrder, key)
		}
		if tc.ID != "" {
			acc.id = tc.ID
		}
		if tc.Function.Name != "" {
			acc.name = tc.Function.Name
		}
		if tc.Function.Arguments != "" {
			acc.args.WriteString(tc.Function.Arguments)
		}
	}

	if msg.ResponseMeta != nil {
		if msg.ResponseMeta.Usage != nil {
			r.usage = &types.Usage{
				InputTokens:  int64(msg.ResponseMeta.Usage.PromptTokens),
				OutputTokens: int64(msg.ResponseMeta.Usage.CompletionTokens),
			}
		}
		if msg.ResponseMeta.FinishReason != "" {
			r.finishReason = msg.ResponseMeta.FinishReason
		}
	}
}

// flush drains accumulated tool calls and appends the terminal
// thinking_end (if reasoning was seen) and stop/error event. err is the
// stream error that ended Recv, if any (already queued by the caller).
func (r *einoEventReader) flush(err error) {
	if r.thinkingStarted {
		r.queue = append(r.queue, ModelEvent{
			Kind:       EventThinkingEnd,
			DurationMs: time.Since(r.thinkingStart).Milliseconds(),
		})
	}

	for _, key := range r.toolOrder {
		acc := r.toolCalls[key]
		input := acc.args.String()
		if input == "" {
			input = "{}"
		}
		r.queue = append(r.queue, ModelEvent{
			Kind:       EventToolCall,
			ToolCallID: acc.id,
			ToolName:   acc.name,
			InputJSON:  []byte(input),
		})
	}

	if err != nil {
		return
	}

	reason := normalizeFinishReason(r.finishReason, len(r.toolOrder) > 0)
	r.queue = append(r.queue, ModelEvent{
		Kind:         EventStop,
		FinishReason: reason,
		Usage:        r.usage,
	})
}

// deltaOf computes the emitted delta for content that may arrive either
// as true incremental chunks or as the full accumulated string so far,
// and updates acc to the new accumulated value.
func deltaOf(acc *string, chunk string) string {
	if *acc == "" {
		*acc = chunk
		return chunk
	}
	if strings.HasPrefix(chunk, *acc) {
		delta := chunk[len(*acc):]
		*acc = chunk
		return delta
	}
	*acc += chunk
	return chunk
}

// toolCallKey picks a stable accumulation key for a tool call chunk,
// preferring eino's Index (present on every chunk of the same call) and
// falling back to ID for providers that omit it.
func toolCallKey(tc schema.ToolCall) string {
	if tc.Index != nil {
		return fmt.Sprintf("idx:%d", *tc.Index)
	}
	if tc.ID != "" {
		return tc.ID
	}
	return ""
}

// normalizeFinishReason maps provider-specific finish reasons to the
// spec's vocabulary, defaulting based on whether tool calls were seen.
func normalizeFinishReason(reason string, hasToolCalls bool) string {
	switch reason {
	case "tool_use", "tool_calls", "tool-calls":
		return "tool_use"
	case "":
		if hasToolCalls {
			return "tool_use"
		}
		return "stop"
	default:
		return reason
	}
}
