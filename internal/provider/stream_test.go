package provider

import (
	"testing"

	"github.com/cloudwego/eino/schema"
)

// Note: schema.StreamReaderFromChan doesn't exist in Eino (see the
// registry tests' history), so einoEventReader's Recv loop is exercised
// through the registry integration tests against real providers rather
// than a fabricated StreamReader here. These tests cover the pure
// accumulation/detection helpers directly.

func TestDeltaOf_TrueDeltas(t *testing.T) {
	var acc string
	if got := deltaOf(&acc, "Hello"); got != "Hello" {
		t.Errorf("first delta = %q, want %q", got, "Hello")
	}
	if got := deltaOf(&acc, " world"); got != " world" {
		t.Errorf("non-prefixed chunk should be treated as its own delta, got %q", got)
	}
}

func TestDeltaOf_AccumulatedContent(t *testing.T) {
	var acc string
	deltaOf(&acc, "Hello")
	if got := deltaOf(&acc, "Hello world"); got != " world" {
		t.Errorf("accumulated chunk delta = %q, want %q", got, " world")
	}
	if acc != "Hello world" {
		t.Errorf("accumulated state = %q, want %q", acc, "Hello world")
	}
}

func TestToolCallKey_PrefersIndex(t *testing.T) {
	idx := 2
	key := toolCallKey(schema.ToolCall{Index: &idx, ID: "toolu_abc"})
	if key != "idx:2" {
		t.Errorf("key = %q, want 'idx:2'", key)
	}
}

func TestToolCallKey_FallsBackToID(t *testing.T) {
	key := toolCallKey(schema.ToolCall{ID: "toolu_abc"})
	if key != "toolu_abc" {
		t.Errorf("key = %q, want 'toolu_abc'", key)
	}
}

func TestToolCallKey_EmptyWhenNeitherPresent(t *testing.T) {
	if key := toolCallKey(schema.ToolCall{}); key != "" {
		t.Errorf("key = %q, want empty", key)
	}
}

func TestNormalizeFinishReason(t *testing.T) {
	tests := []struct {
		reason       string
		hasToolCalls bool
		want         string
	}{
		{"tool_use", false, "tool_use"},
		{"tool_calls", false, "tool_use"},
		{"", true, "tool_use"},
		{"", false, "stop"},
		{"length", false, "length"},
	}

	for _, tt := range tests {
		got := normalizeFinishReason(tt.reason, tt.hasToolCalls)
		if got != tt.want {
			t.Errorf("normalizeFinishReason(%q, %v) = %q, want %q", tt.reason, tt.hasToolCalls, got, tt.want)
		}
	}
}

func TestEinoEventReader_IngestAccumulatesToolCallArguments(t *testing.T) {
	r := newEinoEventReader(nil, "msg-1")

	idx := 0
	r.ingest(&schema.Message{
		ToolCalls: []schema.ToolCall{
			{Index: &idx, ID: "toolu_1", Function: schema.FunctionCall{Name: "read_file", Arguments: `{"path":`}},
		},
	})
	r.ingest(&schema.Message{
		ToolCalls: []schema.ToolCall{
			{Index: &idx, Function: schema.FunctionCall{Arguments: `"a.txt"}`}},
		},
	})

	if len(r.toolOrder) != 1 {
		t.Fatalf("expected 1 accumulated tool call, got %d", len(r.toolOrder))
	}
	acc := r.toolCalls[r.toolOrder[0]]
	if acc.id != "toolu_1" {
		t.Errorf("tool call id = %q, want 'toolu_1'", acc.id)
	}
	if acc.name != "read_file" {
		t.Errorf("tool call name = %q, want 'read_file'", acc.name)
	}
	if got := acc.args.String(); got != `{"path":"a.txt"}` {
		t.Errorf("accumulated arguments = %q, want %q", got, `{"path":"a.txt"}`)
	}
}

func TestEinoEventReader_FlushEmitsOneToolCallEventPerAccumulation(t *testing.T) {
	r := newEinoEventReader(nil, "msg-1")

	idx := 0
	r.ingest(&schema.Message{
		ToolCalls: []schema.ToolCall{
			{Index: &idx, ID: "toolu_1", Function: schema.FunctionCall{Name: "read_file", Arguments: `{"path":"a.txt"}`}},
		},
	})
	r.flush(nil)

	var toolCallEvents, stopEvents int
	for _, ev := range r.queue {
		switch ev.Kind {
		case EventToolCall:
			toolCallEvents++
			if ev.ToolCallID != "toolu_1" || ev.ToolName != "read_file" {
				t.Errorf("unexpected tool_call event: %+v", ev)
			}
			if string(ev.InputJSON) != `{"path":"a.txt"}` {
				t.Errorf("InputJSON = %s, want %s", ev.InputJSON, `{"path":"a.txt"}`)
			}
		case EventStop:
			stopEvents++
			if ev.FinishReason != "tool_use" {
				t.Errorf("FinishReason = %q, want 'tool_use'", ev.FinishReason)
			}
		}
	}
	if toolCallEvents != 1 {
		t.Errorf("expected exactly 1 tool_call event, got %d", toolCallEvents)
	}
	if stopEvents != 1 {
		t.Errorf("expected exactly 1 stop event, got %d", stopEvents)
	}
}
