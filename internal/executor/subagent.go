// Package executor implements the Sub-agent Facility (spec §4.6): a
// nested agent loop, run over a restricted tool view, whose every inner
// event is relayed back into the parent session's event stream instead
// of becoming its own top-level turn.
package executor

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/cloudwego/eino/schema"
	"github.com/oklog/ulid/v2"

	"github.com/agentcore/server/internal/agent"
	"github.com/agentcore/server/internal/event"
	"github.com/agentcore/server/internal/permission"
	"github.com/agentcore/server/internal/provider"
	"github.com/agentcore/server/internal/session"
	"github.com/agentcore/server/internal/store"
	"github.com/agentcore/server/internal/tool"
	"github.com/agentcore/server/pkg/types"
)

// defaultAgentPreset is the tool-view preset spawn_subagent falls back
// to when a caller names neither an agent preset nor an explicit
// tools_allowlist.
const defaultAgentPreset = "general"

// DefaultMaxSteps bounds a sub-agent's own round-trip count, so a
// confused child can't loop forever on the parent's behalf.
const DefaultMaxSteps = 10

// SubagentExecutor implements tool.SubagentExecutor. There is no child
// Session row: a sub-agent has no identity of its own in the persisted
// data model, so every event it produces is written under the parent's
// real session/turn/step (the only way it reaches the same SSE
// subscribers and satisfies the events table's session_id foreign key),
// tagged with a SubagentID and the spawning ToolCallID.
type SubagentExecutor struct {
	store     *store.Store
	writer    *event.Writer
	gate      *permission.Gate
	tools     *tool.Registry
	providers *provider.Registry
	agents    *agent.Registry
	workDir   string
	now       func() int64
}

// NewSubagentExecutor wires a SubagentExecutor over the same collaborators
// the primary Agent Runner uses, plus the named tool-view presets
// spawn_subagent falls back to when a caller doesn't supply an explicit
// tools_allowlist.
func NewSubagentExecutor(
	st *store.Store,
	w *event.Writer,
	gate *permission.Gate,
	tools *tool.Registry,
	providers *provider.Registry,
	agents *agent.Registry,
	workDir string,
	now func() int64,
) *SubagentExecutor {
	return &SubagentExecutor{
		store: st, writer: w, gate: gate, tools: tools, providers: providers,
		agents: agents, workDir: workDir, now: now,
	}
}

// Spawn implements tool.SubagentExecutor (spec §4.6). toolCtx identifies
// the spawn_subagent call this sub-agent is running on behalf of.
func (e *SubagentExecutor) Spawn(ctx context.Context, toolCtx *tool.Context, label, task, agentName string, toolsAllowlist []string) (*tool.SubagentResult, error) {
	subagentID := ulid.Make().String()

	allowlist := toolsAllowlist
	if len(allowlist) == 0 {
		allowlist = e.presetAllowlist(agentName)
	}
	filtered := make([]string, 0, len(allowlist))
	for _, id := range allowlist {
		if id == "spawn_subagent" {
			continue // depth is capped at 1: a sub-agent never gets its own spawn tool
		}
		filtered = append(filtered, id)
	}
	subset := e.tools.Subset(filtered)

	providerID, modelID, err := e.resolveModel(ctx, toolCtx.SessionID)
	if err != nil {
		return nil, fmt.Errorf("resolve model: %w", err)
	}
	prov, err := e.providers.Get(providerID)
	if err != nil {
		return nil, fmt.Errorf("resolve provider: %w", err)
	}

	turnID, stepID := toolCtx.TurnID, toolCtx.StepID
	if _, err := e.writer.Write(ctx, event.Draft{
		SessionID: toolCtx.SessionID, TurnID: &turnID, StepID: &stepID,
		Type: types.EventSubagent,
		Payload: types.SubagentPayload{
			ParentToolCallID: toolCtx.CallID, SubagentID: subagentID,
			Status: types.SubagentRunning, Label: label, Task: task,
		},
	}); err != nil {
		return nil, err
	}

	messages := []*schema.Message{
		{Role: schema.System, Content: label},
		{Role: schema.User, Content: task},
	}

	finalText, runErr := e.run(ctx, toolCtx, subagentID, subset, prov, modelID, messages)
	if runErr != nil {
		_, _ = e.writer.Write(context.Background(), event.Draft{
			SessionID: toolCtx.SessionID, TurnID: &turnID, StepID: &stepID,
			Type: types.EventSubagent,
			Payload: types.SubagentPayload{
				ParentToolCallID: toolCtx.CallID, SubagentID: subagentID,
				Status: types.SubagentError, Label: label, Task: task, Error: runErr.Error(),
			},
		})
		return &tool.SubagentResult{SubagentID: subagentID, Err: runErr.Error()}, nil
	}

	if _, err := e.writer.Write(ctx, event.Draft{
		SessionID: toolCtx.SessionID, TurnID: &turnID, StepID: &stepID,
		Type: types.EventSubagent,
		Payload: types.SubagentPayload{
			ParentToolCallID: toolCtx.CallID, SubagentID: subagentID,
			Status: types.SubagentDone, Label: label, Task: task, Result: finalText,
		},
	}); err != nil {
		return nil, err
	}

	return &tool.SubagentResult{SubagentID: subagentID, Output: finalText}, nil
}

// run drives the nested loop to completion: one round-trip per
// iteration, relaying every inner model/tool event as a subagent_block
// and feeding executed tool results back into its own short-lived
// message history (there is no Context Builder for a sub-agent — its
// history never outlives the call).
func (e *SubagentExecutor) run(
	ctx context.Context,
	toolCtx *tool.Context,
	subagentID string,
	subset *tool.Registry,
	prov provider.Provider,
	modelID string,
	messages []*schema.Message,
) (string, error) {
	toolInfos, err := subset.ToolInfos()
	if err != nil {
		return "", err
	}

	for step := 0; step < DefaultMaxSteps; step++ {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		default:
		}

		reader, err := prov.Open(ctx, messages, toolInfos, modelID)
		if err != nil {
			return "", fmt.Errorf("open model stream: %w", err)
		}

		text, calls, stopReason, err := e.consume(ctx, toolCtx, subagentID, reader)
		reader.Close()
		if err != nil {
			return "", err
		}

		if stopReason != "tool_use" && stopReason != "tool_calls" || len(calls) == 0 {
			return text, nil
		}

		assistant := &schema.Message{Role: schema.Assistant, Content: text, ToolCalls: calls}
		messages = append(messages, assistant)

		for _, tc := range calls {
			output, err := e.executeCall(ctx, toolCtx, subagentID, subset, tc)
			if err != nil {
				return "", err
			}
			messages = append(messages, &schema.Message{
				Role: schema.Tool, ToolCallID: tc.ID, Content: output,
			})
		}
	}

	return "", fmt.Errorf("sub-agent exceeded %d steps without a final answer", DefaultMaxSteps)
}

// consume drains one model stream, relaying every event as a
// subagent_block and returning the accumulated text, any buffered tool
// calls, and the stream's finish reason.
func (e *SubagentExecutor) consume(
	ctx context.Context,
	toolCtx *tool.Context,
	subagentID string,
	reader provider.EventReader,
) (string, []schema.ToolCall, string, error) {
	var (
		text  strings.Builder
		calls []schema.ToolCall
		seen  = make(map[string]bool)
	)

	for {
		ev, err := reader.Recv()
		if err == io.EOF {
			return "", nil, "", fmt.Errorf("sub-agent model stream closed without a stop event")
		}
		if err != nil {
			_ = e.block(ctx, toolCtx, subagentID, types.EventError, types.ErrorPayload{Code: types.ErrCodeRunner, Message: err.Error()})
			return "", nil, "", err
		}

		switch ev.Kind {
		case provider.EventTextDelta:
			text.WriteString(ev.Text)
			if err := e.block(ctx, toolCtx, subagentID, types.EventMessageDelta, types.MessageDeltaPayload{
				Role: "assistant", MessageID: ev.MessageID, Delta: ev.Text,
			}); err != nil {
				return "", nil, "", err
			}

		case provider.EventThinkingDelta:
			if err := e.block(ctx, toolCtx, subagentID, types.EventThinking, types.ThinkingPayload{
				Status: types.ThinkingDelta, Text: ev.Text,
			}); err != nil {
				return "", nil, "", err
			}

		case provider.EventThinkingEnd:
			durationMs := ev.DurationMs
			if err := e.block(ctx, toolCtx, subagentID, types.EventThinking, types.ThinkingPayload{
				Status: types.ThinkingEnd, DurationMs: &durationMs,
			}); err != nil {
				return "", nil, "", err
			}

		case provider.EventToolCall:
			if !seen[ev.ToolCallID] {
				seen[ev.ToolCallID] = true
				calls = append(calls, schema.ToolCall{
					ID: ev.ToolCallID,
					Function: schema.FunctionCall{
						Name: ev.ToolName, Arguments: string(ev.InputJSON),
					},
				})
			}
			if err := e.block(ctx, toolCtx, subagentID, types.EventToolCall, types.ToolCallPayload{
				ToolCallID: ev.ToolCallID, ToolName: ev.ToolName,
				Input: json.RawMessage(ev.InputJSON), Status: types.ToolCallRunning,
			}); err != nil {
				return "", nil, "", err
			}

		case provider.EventStop:
			return text.String(), calls, ev.FinishReason, nil

		case provider.EventError:
			msg := "model stream error"
			if ev.Err != nil {
				msg = ev.Err.Error()
			}
			if err := e.block(ctx, toolCtx, subagentID, types.EventError, types.ErrorPayload{Code: types.ErrCodeRunner, Message: msg}); err != nil {
				return "", nil, "", err
			}
			return "", nil, "", fmt.Errorf("%s", msg)
		}
	}
}

// executeCall resolves, gates, and runs one tool call from the
// sub-agent's restricted registry, relaying its diff/result as
// subagent_block events and returning the text fed back into the
// sub-agent's own history.
func (e *SubagentExecutor) executeCall(ctx context.Context, toolCtx *tool.Context, subagentID string, subset *tool.Registry, call schema.ToolCall) (string, error) {
	input := json.RawMessage(call.Function.Arguments)

	t, ok := subset.Get(call.Function.Name)
	if !ok {
		_ = e.blockToolResult(ctx, toolCtx, subagentID, call.ID, false, "", "unknown tool", 0)
		return "Error: unknown tool", nil
	}

	forceAsk := e.gate.CheckDoomLoop(toolCtx.SessionID, call.Function.Name, input)
	decision, err := e.gate.Evaluate(ctx, permission.Request{
		SessionID: toolCtx.SessionID, TurnID: toolCtx.TurnID, StepID: toolCtx.StepID,
		ToolCallID: call.ID, ToolName: call.Function.Name, Input: input,
		Target: targetFromInput(input), ForceAsk: forceAsk,
	})
	if err != nil {
		if permission.IsRejectedError(err) {
			_ = e.blockToolResult(ctx, toolCtx, subagentID, call.ID, false, "", "denied", 0)
			return "Error: denied", nil
		}
		return "", err
	}
	if !decision.Approved() {
		_ = e.blockToolResult(ctx, toolCtx, subagentID, call.ID, false, "", "denied", 0)
		return "Error: denied", nil
	}

	childCtx := &tool.Context{
		SessionID: toolCtx.SessionID, TurnID: toolCtx.TurnID, StepID: toolCtx.StepID,
		CallID: call.ID, Agent: toolCtx.Agent, WorkDir: e.workDir, AbortCh: ctx.Done(),
	}

	started := e.now()
	result, err := t.Execute(ctx, input, childCtx)
	duration := e.now() - started
	if err != nil {
		_ = e.blockToolResult(ctx, toolCtx, subagentID, call.ID, false, "", err.Error(), duration)
		return "Error: " + err.Error(), nil
	}

	if path, diff, ok := diffFromMetadata(result.Metadata); ok {
		if err := e.block(ctx, toolCtx, subagentID, types.EventDiff, types.DiffPayload{
			ToolCallID: call.ID, Path: path, Diff: diff,
		}); err != nil {
			return "", err
		}
	}

	if err := e.blockToolResult(ctx, toolCtx, subagentID, call.ID, true, result.Output, "", duration); err != nil {
		return "", err
	}
	return result.Output, nil
}

func (e *SubagentExecutor) blockToolResult(ctx context.Context, toolCtx *tool.Context, subagentID, callID string, ok bool, output, errMsg string, durationMs int64) error {
	return e.block(ctx, toolCtx, subagentID, types.EventToolResult, types.ToolResultPayload{
		ToolCallID: callID, OK: ok, Output: output, Error: errMsg, DurationMs: durationMs,
	})
}

// block wraps one inner event as a subagent_block (spec §4.6), tagged
// with the parent's real session/turn/step plus the spawning tool call
// and this sub-agent's id, so the UI can render a nested timeline
// without the event ever becoming a top-level event of its own kind.
func (e *SubagentExecutor) block(ctx context.Context, toolCtx *tool.Context, subagentID string, kind types.EventType, payload any) error {
	raw, err := json.Marshal(struct {
		Type    types.EventType `json:"type"`
		Payload any             `json:"payload"`
	}{Type: kind, Payload: payload})
	if err != nil {
		return err
	}

	turnID, stepID := toolCtx.TurnID, toolCtx.StepID
	_, err = e.writer.Write(ctx, event.Draft{
		SessionID: toolCtx.SessionID, TurnID: &turnID, StepID: &stepID,
		Type: types.EventSubagentBlock,
		Payload: types.SubagentBlockPayload{
			ParentToolCallID: toolCtx.CallID, SubagentID: subagentID, Block: raw,
		},
	})
	return err
}

// presetAllowlist resolves agentName against the agent registry, falling
// back to "general" when the caller doesn't name a preset. If the
// registry has no matching preset (or wasn't wired in), it falls back to
// tool.DefaultReadOnlyTools so spawn_subagent still has a safe default.
func (e *SubagentExecutor) presetAllowlist(agentName string) []string {
	if agentName == "" {
		agentName = defaultAgentPreset
	}

	if e.agents != nil {
		if preset, err := e.agents.Get(agentName); err == nil {
			return preset.Allowlist()
		}
	}

	return tool.DefaultReadOnlyTools
}

// resolveModel mirrors session.Runner.resolveModel: a sub-agent inherits
// whatever model the parent session is pinned to (or the registry
// default), rather than picking its own.
func (e *SubagentExecutor) resolveModel(ctx context.Context, sessionID string) (providerID, modelID string, err error) {
	settings, err := e.store.GetSessionSettings(ctx, sessionID)
	if err != nil {
		return "", "", err
	}
	if settings.OverrideModel != nil && *settings.OverrideModel != "" {
		providerID, modelID = provider.ParseModelString(*settings.OverrideModel)
		if providerID != "" {
			return providerID, modelID, nil
		}
	}
	if m, err := e.providers.DefaultModel(); err == nil {
		return m.ProviderID, m.ID, nil
	}
	return session.DefaultProviderID, session.DefaultModelID, nil
}

// targetFromInput pulls a best-effort "path"/"url" field for
// pattern-scoped policy matching, mirroring session.Runner's helper of
// the same shape.
func targetFromInput(input json.RawMessage) string {
	var v struct {
		Path string `json:"path"`
		URL  string `json:"url"`
	}
	if err := json.Unmarshal(input, &v); err != nil {
		return ""
	}
	if v.Path != "" {
		return v.Path
	}
	return v.URL
}

// diffFromMetadata extracts the (path, diff) pair a write_file/apply_patch
// tool result sets in its Metadata, if any.
func diffFromMetadata(meta map[string]any) (path, diff string, ok bool) {
	if meta == nil {
		return "", "", false
	}
	p, pOK := meta["path"].(string)
	d, dOK := meta["diff"].(string)
	if !pOK || !dOK {
		return "", "", false
	}
	return p, d, true
}
