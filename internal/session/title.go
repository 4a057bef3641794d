package session

import (
	"context"
	"io"
	"strings"

	"github.com/cloudwego/eino/schema"

	"github.com/agentcore/server/internal/provider"
	"github.com/agentcore/server/internal/store"
)

const titleSystemPrompt = `You are a title generator. You output ONLY a thread title. Nothing else.

Generate a brief title that would help the user find this conversation later.

Rules:
- A single line, <=50 characters
- No explanations
- Use -ing verbs for actions (Debugging, Implementing, Analyzing)
- Keep exact: technical terms, numbers, filenames
- Remove: the, this, my, a, an
- Always output something meaningful

Examples:
"debug 500 errors in production" -> Debugging production 500 errors
"refactor user service" -> Refactoring user service
"implement rate limiting" -> Implementing rate limiting`

const defaultSessionTitle = "New Session"

// GenerateTitle synthesizes a short title from the session's first user
// message and updates the Session row (supplemented feature, carried
// forward from the teacher's title generation). It only ever updates the
// Session.title field — SPEC_FULL.md §9 resolves the open question of
// whether this should be its own SSE event type by deciding it isn't one;
// clients observe it through GET /sessions like any other title edit.
func GenerateTitle(ctx context.Context, st *store.Store, providers *provider.Registry, sessionID, userText string) {
	sess, err := st.GetSession(ctx, sessionID)
	if err != nil || sess.Title != defaultSessionTitle {
		return
	}

	model, err := providers.DefaultModel()
	if err != nil {
		return
	}
	prov, err := providers.Get(model.ProviderID)
	if err != nil {
		return
	}

	reader, err := prov.Open(ctx, []*schema.Message{
		{Role: schema.System, Content: titleSystemPrompt},
		{Role: schema.User, Content: "Generate a title for this conversation:\n\n" + userText},
	}, nil, model.ID)
	if err != nil {
		return
	}
	defer reader.Close()

	var title strings.Builder
	for {
		ev, err := reader.Recv()
		if err == io.EOF {
			break
		}
		if err != nil {
			return
		}
		if ev.Kind == provider.EventTextDelta {
			title.WriteString(ev.Text)
		}
		if ev.Kind == provider.EventError {
			return
		}
	}

	text := firstNonEmptyLine(title.String())
	if text == "" {
		return
	}
	if len(text) > 100 {
		text = text[:97] + "..."
	}

	_ = st.UpdateSessionTitle(ctx, sessionID, text, nowMillis())
}

func firstNonEmptyLine(s string) string {
	for _, line := range strings.Split(strings.TrimSpace(s), "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			return line
		}
	}
	return ""
}
