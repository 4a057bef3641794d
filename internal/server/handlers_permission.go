package server

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/agentcore/server/pkg/types"
)

// listPendingPermissions handles GET /sessions/{id}/permissions/pending.
func (s *Server) listPendingPermissions(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	reqs, err := s.store.ListPendingPermissionRequests(r.Context(), sessionID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
		return
	}
	if reqs == nil {
		reqs = []*types.PermissionRequest{}
	}
	writeJSON(w, http.StatusOK, reqs)
}

// resolvePermissionRequest is the body of POST /permissions/{req}/resolve.
type resolvePermissionRequest struct {
	Status types.RequestStatus `json:"status"`
	Scope  types.Scope         `json:"scope"`
}

// resolvePermission handles POST /permissions/{req}/resolve. approved is
// derived from status so the caller can only ever say "approved" or
// "denied" — an attempt to resolve directly into "pending"/"expired" is
// rejected, since those are states the Gate itself manages.
func (s *Server) resolvePermission(w http.ResponseWriter, r *http.Request) {
	requestID := chi.URLParam(r, "requestID")

	var req resolvePermissionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "invalid JSON body")
		return
	}

	var approved bool
	switch req.Status {
	case types.RequestApproved:
		approved = true
	case types.RequestDenied:
		approved = false
	default:
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "status must be approved or denied")
		return
	}
	if req.Scope == "" {
		req.Scope = types.ScopeOnce
	}

	if err := s.gate.Resolve(r.Context(), requestID, approved, req.Scope); err != nil {
		writeNotFoundOrError(w, err, "permission request not found")
		return
	}
	writeSuccess(w)
}

// getPermissionMode handles GET /permissions/mode.
func (s *Server) getPermissionMode(w http.ResponseWriter, r *http.Request) {
	mode, err := s.store.GetPermissionMode(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]types.Mode{"mode": mode})
}

type setPermissionModeRequest struct {
	Mode types.Mode `json:"mode"`
}

// setPermissionMode handles POST /permissions/mode.
func (s *Server) setPermissionMode(w http.ResponseWriter, r *http.Request) {
	var req setPermissionModeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || (req.Mode != types.ModeAsk && req.Mode != types.ModeAllow) {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "mode must be \"ask\" or \"allow\"")
		return
	}
	if err := s.store.SetPermissionMode(r.Context(), req.Mode); err != nil {
		writeError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
		return
	}
	writeSuccess(w)
}
