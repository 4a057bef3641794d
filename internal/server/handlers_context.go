package server

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/oklog/ulid/v2"

	"github.com/agentcore/server/pkg/types"
)

// listContext handles GET /sessions/{id}/context.
func (s *Server) listContext(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	items, err := s.store.ListContextItems(r.Context(), sessionID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
		return
	}
	if items == nil {
		items = []*types.ContextItem{}
	}
	writeJSON(w, http.StatusOK, items)
}

type contextIDRequest struct {
	ContextID string `json:"context_id"`
}

// pinContext handles POST /sessions/{id}/context/pin.
func (s *Server) pinContext(w http.ResponseWriter, r *http.Request) {
	s.setPinned(w, r, true)
}

// unpinContext handles POST /sessions/{id}/context/unpin.
func (s *Server) unpinContext(w http.ResponseWriter, r *http.Request) {
	s.setPinned(w, r, false)
}

func (s *Server) setPinned(w http.ResponseWriter, r *http.Request, pinned bool) {
	var req contextIDRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ContextID == "" {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "context_id is required")
		return
	}
	if err := s.store.SetContextItemPinned(r.Context(), req.ContextID, pinned); err != nil {
		writeNotFoundOrError(w, err, "context item not found")
		return
	}
	writeSuccess(w)
}

// setPinnedRefRequest is the body of POST /sessions/{id}/context/set_pinned_ref.
type setPinnedRefRequest struct {
	Kind       types.ContextItemKind `json:"kind"`
	Title      string                `json:"title"`
	ContentRef string                `json:"content_ref"`
	Pinned     bool                  `json:"pinned"`
}

// setPinnedRef handles POST /sessions/{id}/context/set_pinned_ref: the
// one write path a client uses to hand the Context Builder a piece of
// material directly (spec §4.7), as opposed to material the runner
// attaches itself (kind=summary).
func (s *Server) setPinnedRef(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	var req setPinnedRefRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ContentRef == "" {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "content_ref is required")
		return
	}
	switch req.Kind {
	case types.ContextFile, types.ContextWeb, types.ContextMemory:
	default:
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "kind must be file, web, or memory")
		return
	}

	item := &types.ContextItem{
		ID:         ulid.Make().String(),
		SessionID:  sessionID,
		Kind:       req.Kind,
		Title:      req.Title,
		ContentRef: req.ContentRef,
		Pinned:     req.Pinned,
		CreatedAt:  s.now(),
	}
	if err := s.store.CreateContextItem(r.Context(), item); err != nil {
		writeError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, item)
}
