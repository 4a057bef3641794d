package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/agentcore/server/pkg/types"
)

// sessionExport is the payload shape for GET /sessions/{id}/export.json:
// the session header plus every turn and its full event log, enough to
// reconstruct the conversation without replaying the live stream.
type sessionExport struct {
	Session *types.Session `json:"session"`
	Turns   []*turnExport  `json:"turns"`
}

type turnExport struct {
	Turn   *types.Turn    `json:"turn"`
	Events []*types.Event `json:"events"`
}

func (s *Server) buildExport(r *http.Request, sessionID string) (*sessionExport, error) {
	sess, err := s.sessions.GetSession(r.Context(), sessionID)
	if err != nil {
		return nil, err
	}
	turns, err := s.sessions.ListTurns(r.Context(), sessionID)
	if err != nil {
		return nil, err
	}
	out := &sessionExport{Session: sess, Turns: make([]*turnExport, 0, len(turns))}
	for _, t := range turns {
		events, err := s.store.EventsForTurn(r.Context(), t.ID)
		if err != nil {
			return nil, err
		}
		out.Turns = append(out.Turns, &turnExport{Turn: t, Events: events})
	}
	return out, nil
}

// exportJSON handles GET /sessions/{id}/export.json.
func (s *Server) exportJSON(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	export, err := s.buildExport(r, sessionID)
	if err != nil {
		writeNotFoundOrError(w, err, "session not found")
		return
	}
	writeJSON(w, http.StatusOK, export)
}

// exportMarkdown handles GET /sessions/{id}/export.md: a readable
// transcript rendered from the user turn plus each turn's final and
// error events. Intermediate tool_call/tool_result/thinking events are
// omitted — they belong to the live view, not the archival one.
func (s *Server) exportMarkdown(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	export, err := s.buildExport(r, sessionID)
	if err != nil {
		writeNotFoundOrError(w, err, "session not found")
		return
	}

	var b strings.Builder
	title := export.Session.Title
	if title == "" {
		title = export.Session.ID
	}
	fmt.Fprintf(&b, "# %s\n\n", title)

	for i, te := range export.Turns {
		fmt.Fprintf(&b, "## Turn %d\n\n", i+1)
		fmt.Fprintf(&b, "**User:**\n\n%s\n\n", te.Turn.UserText)

		for _, ev := range te.Events {
			switch ev.Type {
			case types.EventFinal:
				var p types.FinalPayload
				if json.Unmarshal(ev.Payload, &p) == nil {
					fmt.Fprintf(&b, "**Assistant:**\n\n%s\n\n", p.Text)
				}
			case types.EventError:
				var p types.ErrorPayload
				if json.Unmarshal(ev.Payload, &p) == nil {
					fmt.Fprintf(&b, "**Error (%s):** %s\n\n", p.Code, p.Message)
				}
			}
		}
	}

	w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(b.String()))
}
