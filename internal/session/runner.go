package session

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/oklog/ulid/v2"

	"github.com/agentcore/server/internal/event"
	"github.com/agentcore/server/internal/permission"
	"github.com/agentcore/server/internal/provider"
	"github.com/agentcore/server/internal/store"
	"github.com/agentcore/server/internal/tool"
	"github.com/agentcore/server/pkg/types"
)

const (
	// RetryInitialInterval is the initial exponential-backoff interval
	// for a failed Open() call.
	RetryInitialInterval = time.Second
	// RetryMaxInterval caps the backoff interval.
	RetryMaxInterval = 30 * time.Second
	// RetryMaxElapsedTime caps total time spent retrying a single Open().
	RetryMaxElapsedTime = 2 * time.Minute
	// MaxRetries caps the number of retry attempts.
	MaxRetries = 3

	// DefaultToolTimeout bounds a single tool call's execution (spec
	// §4.1: "handler execution with per-call timeout").
	DefaultToolTimeout = 5 * time.Minute

	// DefaultProviderID/DefaultModelID are used when a session has no
	// model override and the provider registry has no configured
	// default.
	DefaultProviderID = "anthropic"
	DefaultModelID    = "claude-sonnet-4-20250514"
)

func newOpenBackoff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = RetryInitialInterval
	b.MaxInterval = RetryMaxInterval
	b.MaxElapsedTime = RetryMaxElapsedTime
	b.RandomizationFactor = 0.5
	b.Multiplier = 2.0
	b.Reset()
	return backoff.WithContext(backoff.WithMaxRetries(b, MaxRetries), ctx)
}

// Runner is the Agent Runner (spec §4.1): it drives one turn to
// completion, one Step per model round-trip, publishing every event
// through the Event Writer and gating tool calls through the Permission
// Gate. A Runner is constructed once per turn execution; the top-level
// session uses the full tool Registry, a spawned sub-agent gets one
// constructed over a restricted Registry.
type Runner struct {
	store     *store.Store
	writer    *event.Writer
	gate      *permission.Gate
	tools     *tool.Registry
	providers *provider.Registry
	builder   *Builder
	workDir   string
	now       func() int64

	toolTimeout time.Duration
}

// NewRunner constructs a Runner over its collaborators.
func NewRunner(
	st *store.Store,
	w *event.Writer,
	gate *permission.Gate,
	tools *tool.Registry,
	providers *provider.Registry,
	builder *Builder,
	workDir string,
	now func() int64,
) *Runner {
	return &Runner{
		store:       st,
		writer:      w,
		gate:        gate,
		tools:       tools,
		providers:   providers,
		builder:     builder,
		workDir:     workDir,
		now:         now,
		toolTimeout: DefaultToolTimeout,
	}
}

// bufferedCall is one tool_call the model requested in a single Step,
// collected from the ModelStream before the Step's tool-execution phase.
type bufferedCall struct {
	id    string
	name  string
	input json.RawMessage
}

// Run drives sessionID/turnID to completion or cancellation (spec §4.1).
// The turn must already exist (created by the caller, e.g.
// Service.SendMessage); Run creates every Step itself. agentName selects the sub-agent label recorded in
// tool.Context (empty for the primary session).
func (r *Runner) Run(ctx context.Context, sessionID, turnID, agentName string) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = r.fail(context.Background(), sessionID, turnID, fmt.Errorf("panic: %v", p), types.ErrCodeRunner)
		}
	}()

	if ctx.Err() != nil {
		return r.cancel(sessionID, turnID)
	}

	providerID, modelID, err := r.resolveModel(ctx, sessionID)
	if err != nil {
		return r.fail(ctx, sessionID, turnID, err, types.ErrCodeRunner)
	}
	prov, err := r.providers.Get(providerID)
	if err != nil {
		return r.fail(ctx, sessionID, turnID, err, types.ErrCodeRunner)
	}

	stepIdx := 0
	for {
		select {
		case <-ctx.Done():
			return r.cancel(sessionID, turnID)
		default:
		}

		step := &types.Step{
			ID:        ulid.Make().String(),
			TurnID:    turnID,
			Idx:       stepIdx,
			Status:    types.StepRunning,
			StartedAt: r.now(),
		}
		if err := r.store.CreateStep(ctx, step); err != nil {
			return r.fail(ctx, sessionID, turnID, err, types.ErrCodeRunner)
		}

		done, err := r.runStep(ctx, sessionID, turnID, step, agentName, prov, modelID)
		if err != nil {
			if ctx.Err() != nil {
				return r.cancel(sessionID, turnID)
			}
			_ = r.store.UpdateStepStatus(ctx, step.ID, types.StepError, ptrI64(r.now()))
			return r.fail(ctx, sessionID, turnID, err, types.ErrCodeRunner)
		}

		if done {
			_ = r.store.UpdateStepStatus(ctx, step.ID, types.StepDone, ptrI64(r.now()))
			_ = r.store.UpdateSessionStatus(ctx, sessionID, types.SessionIdle, r.now())
			return nil
		}

		_ = r.store.UpdateStepStatus(ctx, step.ID, types.StepDone, ptrI64(r.now()))
		stepIdx++
	}
}

// runStep executes one model round-trip plus any tool calls it requested.
// It returns done=true once the turn has produced its final assistant
// message (no further Step is needed).
func (r *Runner) runStep(
	ctx context.Context,
	sessionID, turnID string,
	step *types.Step,
	agentName string,
	prov provider.Provider,
	modelID string,
) (bool, error) {
	messages, err := r.builder.Build(ctx, sessionID)
	if err != nil {
		return false, fmt.Errorf("build context: %w", err)
	}
	toolInfos, err := r.tools.ToolInfos()
	if err != nil {
		return false, fmt.Errorf("list tools: %w", err)
	}

	var reader provider.EventReader
	b := newOpenBackoff(ctx)
	for {
		reader, err = prov.Open(ctx, messages, toolInfos, modelID)
		if err == nil {
			break
		}
		wait := b.NextBackOff()
		if wait == backoff.Stop {
			return false, fmt.Errorf("open model stream: %w", err)
		}
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-time.After(wait):
		}
	}
	defer reader.Close()

	var (
		messageID string
		textBuf   strings.Builder
		calls     []bufferedCall
		seen      = make(map[string]bool)
	)

	for {
		ev, err := reader.Recv()
		if err == io.EOF {
			return false, fmt.Errorf("model stream closed without a stop event")
		}
		if err != nil {
			if werr := r.writeError(ctx, sessionID, turnID, step.ID, types.ErrCodeRunner, err.Error()); werr != nil {
				return false, werr
			}
			return false, err
		}

		switch ev.Kind {
		case provider.EventTextDelta:
			if ev.MessageID != "" {
				messageID = ev.MessageID
			}
			textBuf.WriteString(ev.Text)
			if _, err := r.writer.Write(ctx, event.Draft{
				SessionID: sessionID, TurnID: &turnID, StepID: &step.ID,
				Type: types.EventMessageDelta,
				Payload: types.MessageDeltaPayload{
					Role: "assistant", MessageID: messageID, Delta: ev.Text,
				},
			}); err != nil {
				return false, err
			}

		case provider.EventThinkingDelta:
			if _, err := r.writer.Write(ctx, event.Draft{
				SessionID: sessionID, TurnID: &turnID, StepID: &step.ID,
				Type:    types.EventThinking,
				Payload: types.ThinkingPayload{Status: types.ThinkingDelta, Text: ev.Text},
			}); err != nil {
				return false, err
			}

		case provider.EventThinkingEnd:
			durationMs := ev.DurationMs
			if _, err := r.writer.Write(ctx, event.Draft{
				SessionID: sessionID, TurnID: &turnID, StepID: &step.ID,
				Type:    types.EventThinking,
				Payload: types.ThinkingPayload{Status: types.ThinkingEnd, DurationMs: &durationMs},
			}); err != nil {
				return false, err
			}

		case provider.EventToolCall:
			if !seen[ev.ToolCallID] {
				seen[ev.ToolCallID] = true
				calls = append(calls, bufferedCall{id: ev.ToolCallID, name: ev.ToolName, input: json.RawMessage(ev.InputJSON)})
			}
			if _, err := r.writer.Write(ctx, event.Draft{
				SessionID: sessionID, TurnID: &turnID, StepID: &step.ID,
				Type: types.EventToolCall,
				Payload: types.ToolCallPayload{
					ToolCallID: ev.ToolCallID, ToolName: ev.ToolName,
					Input: json.RawMessage(ev.InputJSON), Status: types.ToolCallRunning,
				},
			}); err != nil {
				return false, err
			}

		case provider.EventStop:
			if ev.FinishReason == "tool_use" || ev.FinishReason == "tool_calls" {
				if len(calls) == 0 {
					// Model claimed a tool_use stop with nothing buffered;
					// treat as a normal completion to avoid looping forever.
					return r.publishFinal(ctx, sessionID, turnID, step.ID, messageID, textBuf.String(), ev.FinishReason, ev.Usage)
				}
				for _, c := range calls {
					if err := r.executeCall(ctx, sessionID, turnID, step.ID, agentName, c); err != nil {
						return false, err
					}
				}
				return false, nil
			}
			return r.publishFinal(ctx, sessionID, turnID, step.ID, messageID, textBuf.String(), ev.FinishReason, ev.Usage)

		case provider.EventError:
			msg := "model stream error"
			if ev.Err != nil {
				msg = ev.Err.Error()
			}
			if err := r.writeError(ctx, sessionID, turnID, step.ID, types.ErrCodeRunner, msg); err != nil {
				return false, err
			}
			return false, fmt.Errorf("%s", msg)
		}
	}
}

func (r *Runner) publishFinal(ctx context.Context, sessionID, turnID, stepID, messageID, text, finishReason string, usage *types.Usage) (bool, error) {
	if _, err := r.writer.Write(ctx, event.Draft{
		SessionID: sessionID, TurnID: &turnID, StepID: &stepID,
		Type: types.EventFinal,
		Payload: types.FinalPayload{
			Role: "assistant", MessageID: messageID, Text: text,
			FinishReason: finishReason, Usage: usage,
		},
	}); err != nil {
		return false, err
	}
	return true, nil
}

func (r *Runner) writeError(ctx context.Context, sessionID, turnID, stepID, code, message string) error {
	_, err := r.writer.Write(ctx, event.Draft{
		SessionID: sessionID, TurnID: &turnID, StepID: &stepID,
		Type:    types.EventError,
		Payload: types.ErrorPayload{Code: code, Message: message},
	})
	return err
}

// executeCall resolves, gates, and runs one buffered tool call, publishing
// the diff (if the handler mutated a file) and tool_result events (spec
// §4.1's tool-execution phase).
func (r *Runner) executeCall(ctx context.Context, sessionID, turnID, stepID, agentName string, call bufferedCall) error {
	t, ok := r.tools.Get(call.name)
	if !ok {
		return r.writeToolResult(ctx, sessionID, turnID, stepID, call.id, false, "", "unknown tool", 0)
	}

	forceAsk := r.gate.CheckDoomLoop(sessionID, call.name, call.input)
	decision, err := r.gate.Evaluate(ctx, permission.Request{
		SessionID: sessionID, TurnID: turnID, StepID: stepID,
		ToolCallID: call.id, ToolName: call.name, Input: call.input,
		Target: targetFromInput(call.input), ForceAsk: forceAsk,
	})
	if err != nil {
		if permission.IsRejectedError(err) {
			return r.writeToolResult(ctx, sessionID, turnID, stepID, call.id, false, "", "denied", 0)
		}
		return err
	}
	if !decision.Approved() {
		return r.writeToolResult(ctx, sessionID, turnID, stepID, call.id, false, "", "denied", 0)
	}

	toolCtx := &tool.Context{
		SessionID: sessionID, TurnID: turnID, StepID: stepID,
		CallID: call.id, Agent: agentName, WorkDir: r.workDir,
		AbortCh: ctx.Done(),
	}

	callCtx, cancel := context.WithTimeout(ctx, r.toolTimeout)
	defer cancel()

	started := r.now()
	result, err := t.Execute(callCtx, call.input, toolCtx)
	duration := r.now() - started

	if err != nil {
		return r.writeToolResult(ctx, sessionID, turnID, stepID, call.id, false, "", err.Error(), duration)
	}

	if path, diff, ok := diffFromMetadata(result.Metadata); ok {
		if _, err := r.writer.Write(ctx, event.Draft{
			SessionID: sessionID, TurnID: &turnID, StepID: &stepID,
			Type:    types.EventDiff,
			Payload: types.DiffPayload{ToolCallID: call.id, Path: path, Diff: diff},
		}); err != nil {
			return err
		}
	}

	return r.writeToolResult(ctx, sessionID, turnID, stepID, call.id, true, result.Output, "", duration)
}

func (r *Runner) writeToolResult(ctx context.Context, sessionID, turnID, stepID, callID string, ok bool, output, errMsg string, durationMs int64) error {
	_, err := r.writer.Write(ctx, event.Draft{
		SessionID: sessionID, TurnID: &turnID, StepID: &stepID,
		Type: types.EventToolResult,
		Payload: types.ToolResultPayload{
			ToolCallID: callID, OK: ok, Output: output, Error: errMsg, DurationMs: durationMs,
		},
	})
	return err
}

// cancel tears down an in-flight turn (spec §4.1): expires any pending
// permission ask, marks the in-progress Step cancelled, the Session idle,
// publishes error(cancelled), and emits no final.
func (r *Runner) cancel(sessionID, turnID string) error {
	bg := context.Background()
	_ = r.gate.ExpireTurn(bg, turnID)

	if steps, err := r.store.ListSteps(bg, turnID); err == nil {
		for _, s := range steps {
			if s.Status == types.StepRunning {
				_ = r.store.UpdateStepStatus(bg, s.ID, types.StepCancelled, ptrI64(r.now()))
			}
		}
	}

	_ = r.store.UpdateSessionStatus(bg, sessionID, types.SessionIdle, r.now())
	_, _ = r.writer.Write(bg, event.Draft{
		SessionID: sessionID, TurnID: &turnID,
		Type:    types.EventError,
		Payload: types.ErrorPayload{Code: types.ErrCodeCancelled, Message: "turn cancelled"},
	})
	return nil
}

// fail marks the session errored and publishes error(code), used for
// failures the loop can't recover from (model open exhausted retries,
// writer failures, panics).
func (r *Runner) fail(ctx context.Context, sessionID, turnID string, cause error, code string) error {
	bg := context.Background()
	_ = r.store.UpdateSessionStatus(bg, sessionID, types.SessionError, r.now())
	_, _ = r.writer.Write(bg, event.Draft{
		SessionID: sessionID, TurnID: &turnID,
		Type:    types.EventError,
		Payload: types.ErrorPayload{Code: code, Message: cause.Error()},
	})
	return cause
}

// resolveModel picks the provider/model for a session: its
// SessionSettings.OverrideModel if set, else the provider registry's
// configured default.
func (r *Runner) resolveModel(ctx context.Context, sessionID string) (providerID, modelID string, err error) {
	settings, err := r.store.GetSessionSettings(ctx, sessionID)
	if err != nil {
		return "", "", err
	}
	if settings.OverrideModel != nil && *settings.OverrideModel != "" {
		providerID, modelID = provider.ParseModelString(*settings.OverrideModel)
		if providerID != "" {
			return providerID, modelID, nil
		}
	}

	if m, err := r.providers.DefaultModel(); err == nil {
		return m.ProviderID, m.ID, nil
	}

	return DefaultProviderID, DefaultModelID, nil
}

// targetFromInput pulls a best-effort "path" field out of a tool call's
// input for pattern-scoped policy matching (spec §4.4); empty if the
// tool's input has no such field.
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

func ptrI64(v int64) *int64 { return &v }
