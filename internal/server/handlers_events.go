package server

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/agentcore/server/pkg/types"
)

// listEvents handles GET /sessions/{id}/events?since=<global_id> (spec
// §6): a point-in-time JSON page, as opposed to the live SSE stream.
func (s *Server) listEvents(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	var (
		events []*types.Event
		err    error
	)
	if v := r.URL.Query().Get("since_seq"); v != "" {
		sinceSeq, perr := strconv.ParseInt(v, 10, 64)
		if perr != nil {
			writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "since_seq must be an integer")
			return
		}
		events, err = s.store.EventsSinceSeq(r.Context(), sessionID, sinceSeq)
	} else {
		var sinceID int64
		if v := r.URL.Query().Get("since"); v != "" {
			sinceID, err = strconv.ParseInt(v, 10, 64)
			if err != nil {
				writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "since must be an integer")
				return
			}
		}
		events, err = s.store.EventsSince(r.Context(), sessionID, sinceID)
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
		return
	}
	if events == nil {
		events = []*types.Event{}
	}
	writeJSON(w, http.StatusOK, events)
}
