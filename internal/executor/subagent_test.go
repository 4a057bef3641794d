package executor

import (
	"context"
	"encoding/json"
	"io"
	"testing"

	"github.com/cloudwego/eino/components/model"
	einotool "github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/require"

	"github.com/agentcore/server/internal/agent"
	"github.com/agentcore/server/internal/event"
	"github.com/agentcore/server/internal/permission"
	"github.com/agentcore/server/internal/provider"
	"github.com/agentcore/server/internal/store"
	"github.com/agentcore/server/internal/tool"
	"github.com/agentcore/server/pkg/types"
)

// fakeReader replays a fixed script of ModelEvents, mirroring
// internal/session's runner_test.go harness.
type fakeReader struct {
	events []provider.ModelEvent
	idx    int
}

func (f *fakeReader) Recv() (provider.ModelEvent, error) {
	if f.idx >= len(f.events) {
		return provider.ModelEvent{}, io.EOF
	}
	ev := f.events[f.idx]
	f.idx++
	return ev, nil
}
func (f *fakeReader) Close() {}

type scriptedProvider struct {
	id      string
	scripts [][]provider.ModelEvent
	calls   int
}

func (p *scriptedProvider) ID() string   { return p.id }
func (p *scriptedProvider) Name() string { return p.id }
func (p *scriptedProvider) Models() []provider.Model {
	return []provider.Model{{ID: "fake-model", ProviderID: p.id, SupportsTools: true}}
}
func (p *scriptedProvider) ChatModel() model.ToolCallingChatModel { return nil }
func (p *scriptedProvider) Open(ctx context.Context, messages []*schema.Message, tools []*schema.ToolInfo, modelID string) (provider.EventReader, error) {
	i := p.calls
	p.calls++
	return &fakeReader{events: p.scripts[i]}, nil
}

type echoTool struct {
	calls []json.RawMessage
}

func (t *echoTool) ID() string          { return "echo" }
func (t *echoTool) Description() string { return "echoes input" }
func (t *echoTool) Parameters() json.RawMessage {
	return json.RawMessage(`{"type":"object","properties":{"text":{"type":"string"}}}`)
}
func (t *echoTool) Execute(ctx context.Context, input json.RawMessage, toolCtx *tool.Context) (*tool.Result, error) {
	t.calls = append(t.calls, input)
	var v struct {
		Text string `json:"text"`
	}
	_ = json.Unmarshal(input, &v)
	return &tool.Result{Title: "echo", Output: "echo: " + v.Text}, nil
}
func (t *echoTool) EinoTool() einotool.InvokableTool { return nil }

func newExecutorHarness(t *testing.T) (*store.Store, *event.Writer, *permission.Gate, *tool.Registry, func() int64) {
	t.Helper()
	st, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	require.NoError(t, st.CreateSession(context.Background(), &types.Session{
		ID: "s1", Title: "t", Status: types.SessionIdle, CreatedAt: 1, UpdatedAt: 1,
	}))
	require.NoError(t, st.SetPermissionMode(context.Background(), types.ModeAllow))

	var clock int64
	now := func() int64 { clock++; return clock }
	nowF := func() float64 { clock++; return float64(clock) }

	bus := event.NewBus()
	hub := event.NewHub(st, bus, nowF)
	writer := event.NewWriter(st, hub, nowF)
	gate := permission.NewGate(st, writer, now)
	tools := tool.NewRegistry()

	return st, writer, gate, tools, now
}

func seedParentTurn(t *testing.T, st *store.Store, sessionID, turnID, stepID string, ts int64) {
	t.Helper()
	require.NoError(t, st.CreateTurn(context.Background(), &types.Turn{
		ID: turnID, SessionID: sessionID, UserText: "spawn a helper", CreatedAt: ts,
	}))
	require.NoError(t, st.CreateStep(context.Background(), &types.Step{
		ID: stepID, TurnID: turnID, Idx: 0, Status: types.StepRunning, StartedAt: ts,
	}))
}

func subagentEvents(t *testing.T, st *store.Store, turnID string) (blocks []types.SubagentBlockPayload, statuses []types.SubagentPayload) {
	t.Helper()
	evs, err := st.EventsForTurn(context.Background(), turnID)
	require.NoError(t, err)
	for _, e := range evs {
		switch e.Type {
		case types.EventSubagentBlock:
			var p types.SubagentBlockPayload
			require.NoError(t, json.Unmarshal(e.Payload, &p))
			blocks = append(blocks, p)
		case types.EventSubagent:
			var p types.SubagentPayload
			require.NoError(t, json.Unmarshal(e.Payload, &p))
			statuses = append(statuses, p)
		}
	}
	return blocks, statuses
}

func TestSubagentExecutor_SingleRoundCompletion(t *testing.T) {
	st, writer, gate, tools, now := newExecutorHarness(t)
	seedParentTurn(t, st, "s1", "t1", "step1", now())

	prov := &scriptedProvider{
		id: "fake",
		scripts: [][]provider.ModelEvent{
			{
				{Kind: provider.EventTextDelta, MessageID: "m1", Text: "all done"},
				{Kind: provider.EventStop, FinishReason: "stop"},
			},
		},
	}
	providers := provider.NewRegistry("fake/fake-model")
	providers.Register(prov)

	exec := NewSubagentExecutor(st, writer, gate, tools, providers, agent.NewRegistry(), t.TempDir(), now)

	toolCtx := &tool.Context{SessionID: "s1", TurnID: "t1", StepID: "step1", CallID: "call1"}
	result, err := exec.Spawn(context.Background(), toolCtx, "explorer", "look around", "", nil)
	require.NoError(t, err)
	require.Empty(t, result.Err)
	require.Equal(t, "all done", result.Output)

	_, statuses := subagentEvents(t, st, "t1")
	require.Len(t, statuses, 2)
	require.Equal(t, types.SubagentRunning, statuses[0].Status)
	require.Equal(t, types.SubagentDone, statuses[1].Status)
	require.Equal(t, "all done", statuses[1].Result)
}

func TestSubagentExecutor_ToolCallThenFinalAnswer(t *testing.T) {
	st, writer, gate, tools, now := newExecutorHarness(t)
	seedParentTurn(t, st, "s1", "t1", "step1", now())

	et := &echoTool{}
	tools.Register(et)

	prov := &scriptedProvider{
		id: "fake",
		scripts: [][]provider.ModelEvent{
			{
				{Kind: provider.EventToolCall, ToolCallID: "c1", ToolName: "echo", InputJSON: []byte(`{"text":"hi"}`)},
				{Kind: provider.EventStop, FinishReason: "tool_use"},
			},
			{
				{Kind: provider.EventTextDelta, MessageID: "m2", Text: "echoed it"},
				{Kind: provider.EventStop, FinishReason: "stop"},
			},
		},
	}
	providers := provider.NewRegistry("fake/fake-model")
	providers.Register(prov)

	exec := NewSubagentExecutor(st, writer, gate, tools, providers, agent.NewRegistry(), t.TempDir(), now)

	toolCtx := &tool.Context{SessionID: "s1", TurnID: "t1", StepID: "step1", CallID: "call1"}
	result, err := exec.Spawn(context.Background(), toolCtx, "explorer", "echo hi", "", nil)
	require.NoError(t, err)
	require.Empty(t, result.Err)
	require.Equal(t, "echoed it", result.Output)
	require.Len(t, et.calls, 1)

	blocks, statuses := subagentEvents(t, st, "t1")
	require.Equal(t, types.SubagentDone, statuses[len(statuses)-1].Status)

	var sawToolCallBlock, sawToolResultBlock bool
	for _, b := range blocks {
		var env struct {
			Type types.EventType `json:"type"`
		}
		require.NoError(t, json.Unmarshal(b.Block, &env))
		switch env.Type {
		case types.EventToolCall:
			sawToolCallBlock = true
		case types.EventToolResult:
			sawToolResultBlock = true
		}
		require.Equal(t, "call1", b.ParentToolCallID)
	}
	require.True(t, sawToolCallBlock)
	require.True(t, sawToolResultBlock)
}

func TestSubagentExecutor_DeniedToolCallReturnsErrorTextButNoFailure(t *testing.T) {
	st, writer, gate, tools, now := newExecutorHarness(t)
	seedParentTurn(t, st, "s1", "t1", "step1", now())

	tools.Register(&echoTool{})
	require.NoError(t, st.SetPermissionMode(context.Background(), types.ModeAsk))
	require.NoError(t, st.SetToolPolicy(context.Background(), "echo", types.PolicyDeny))

	prov := &scriptedProvider{
		id: "fake",
		scripts: [][]provider.ModelEvent{
			{
				{Kind: provider.EventToolCall, ToolCallID: "c1", ToolName: "echo", InputJSON: []byte(`{"text":"hi"}`)},
				{Kind: provider.EventStop, FinishReason: "tool_use"},
			},
			{
				{Kind: provider.EventTextDelta, MessageID: "m2", Text: "ok, skipped"},
				{Kind: provider.EventStop, FinishReason: "stop"},
			},
		},
	}
	providers := provider.NewRegistry("fake/fake-model")
	providers.Register(prov)

	exec := NewSubagentExecutor(st, writer, gate, tools, providers, agent.NewRegistry(), t.TempDir(), now)

	toolCtx := &tool.Context{SessionID: "s1", TurnID: "t1", StepID: "step1", CallID: "call1"}
	result, err := exec.Spawn(context.Background(), toolCtx, "explorer", "echo hi", "", nil)
	require.NoError(t, err)
	require.Empty(t, result.Err)
	require.Equal(t, "ok, skipped", result.Output)

	blocks, _ := subagentEvents(t, st, "t1")
	var sawDenied bool
	for _, b := range blocks {
		var env struct {
			Type    types.EventType         `json:"type"`
			Payload types.ToolResultPayload `json:"payload"`
		}
		require.NoError(t, json.Unmarshal(b.Block, &env))
		if env.Type == types.EventToolResult {
			require.False(t, env.Payload.OK)
			require.Equal(t, "denied", env.Payload.Error)
			sawDenied = true
		}
	}
	require.True(t, sawDenied)
}

func TestSubagentExecutor_ExceedsMaxStepsReportsError(t *testing.T) {
	st, writer, gate, tools, now := newExecutorHarness(t)
	seedParentTurn(t, st, "s1", "t1", "step1", now())

	tools.Register(&echoTool{})

	scripts := make([][]provider.ModelEvent, 0, DefaultMaxSteps)
	for i := 0; i < DefaultMaxSteps; i++ {
		scripts = append(scripts, []provider.ModelEvent{
			{Kind: provider.EventToolCall, ToolCallID: "c1", ToolName: "echo", InputJSON: []byte(`{"text":"hi ` + string(rune('a'+i)) + `"}`)},
			{Kind: provider.EventStop, FinishReason: "tool_use"},
		})
	}
	prov := &scriptedProvider{id: "fake", scripts: scripts}
	providers := provider.NewRegistry("fake/fake-model")
	providers.Register(prov)

	exec := NewSubagentExecutor(st, writer, gate, tools, providers, agent.NewRegistry(), t.TempDir(), now)

	toolCtx := &tool.Context{SessionID: "s1", TurnID: "t1", StepID: "step1", CallID: "call1"}
	result, err := exec.Spawn(context.Background(), toolCtx, "explorer", "loop forever", "", nil)
	require.NoError(t, err)
	require.NotEmpty(t, result.Err)

	_, statuses := subagentEvents(t, st, "t1")
	require.Equal(t, types.SubagentError, statuses[len(statuses)-1].Status)
	require.NotEmpty(t, statuses[len(statuses)-1].Error)
}
