package server

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/agentcore/server/internal/sandbox"
)

// fsTree handles GET /sessions/{id}/fs/tree.
func (s *Server) fsTree(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")
	maxEntries := 2000
	if v := r.URL.Query().Get("max"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			maxEntries = n
		}
	}

	entries, truncated, err := s.fs.ListTree(r.Context(), path, maxEntries)
	if err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries, "truncated": truncated})
}

// fsRead handles GET /sessions/{id}/fs/read?path=&max_bytes= (spec §4.5:
// read_file(path, max_bytes?) -> {content, size, mtime, truncated}).
func (s *Server) fsRead(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")
	if path == "" {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "path is required")
		return
	}
	maxBytes := 0
	if v := r.URL.Query().Get("max_bytes"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			maxBytes = n
		}
	}

	res, err := s.fs.ReadFile(r.Context(), path, maxBytes)
	if err != nil {
		writeError(w, http.StatusNotFound, ErrCodeNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"path":      res.Rel,
		"content":   string(res.Content),
		"size":      res.Size,
		"mtime":     res.ModTime.UnixMilli(),
		"truncated": res.Truncated,
	})
}

// fsVersions handles GET /sessions/{id}/fs/versions?path=.
func (s *Server) fsVersions(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	path := r.URL.Query().Get("path")
	if path == "" {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "path is required")
		return
	}
	versions, err := s.fs.ListVersions(r.Context(), sessionID, path)
	if err != nil {
		writeError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, versions)
}

// fsVersion handles GET /fs/version/{versionID}: a single version's full
// content, which ListVersions omits (its rows carry no body).
func (s *Server) fsVersion(w http.ResponseWriter, r *http.Request) {
	versionID := chi.URLParam(r, "versionID")
	version, err := s.fs.GetVersion(r.Context(), versionID)
	if err != nil {
		writeNotFoundOrError(w, err, "file version not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"id": version.ID, "path": version.Path, "idx": version.Idx,
		"content": string(version.Content), "note": version.Note, "createdAt": version.CreatedAt,
	})
}

// fsRollbackRequest is the body of POST /sessions/{id}/fs/rollback.
type fsRollbackRequest struct {
	Path      string `json:"path"`
	VersionID string `json:"version_id"`
}

// fsRollback handles POST /sessions/{id}/fs/rollback. Since it's a
// mutation of its own (spec §4.5: "rollback is itself versioned"), it
// needs a Mutation identity; without an active turn/step it's tagged
// with the session id in all three slots.
func (s *Server) fsRollback(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	var req fsRollbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Path == "" || req.VersionID == "" {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "path and version_id are required")
		return
	}

	m := sandbox.Mutation{SessionID: sessionID, TurnID: sessionID, StepID: sessionID}
	diff, err := s.fs.Rollback(r.Context(), m, req.Path, req.VersionID)
	if err != nil {
		writeNotFoundOrError(w, err, "file version not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"path": req.Path, "diff": diff})
}
