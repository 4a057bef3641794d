package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/agentcore/server/internal/store"
	"github.com/agentcore/server/pkg/types"
)

// createSessionRequest is the body of POST /sessions.
type createSessionRequest struct {
	Title string `json:"title"`
}

func (s *Server) createSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	_ = json.NewDecoder(r.Body).Decode(&req)

	sess, err := s.sessions.CreateSession(r.Context(), req.Title)
	if err != nil {
		writeError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, sess)
}

func (s *Server) listSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := s.sessions.ListSessions(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
		return
	}
	if sessions == nil {
		sessions = []*types.Session{}
	}
	writeJSON(w, http.StatusOK, sessions)
}

// sessionBootstrap is GET /sessions/{id}'s response (spec §6: "session +
// historical messages for UI bootstrap").
type sessionBootstrap struct {
	*types.Session
	Turns []*types.Turn `json:"turns"`
}

func (s *Server) getSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")
	sess, err := s.sessions.GetSession(r.Context(), id)
	if err != nil {
		writeNotFoundOrError(w, err, "session not found")
		return
	}
	turns, err := s.sessions.ListTurns(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, sessionBootstrap{Session: sess, Turns: turns})
}

type updateSessionRequest struct {
	Title string `json:"title"`
}

func (s *Server) updateSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")
	var req updateSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Title == "" {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "title is required")
		return
	}
	if err := s.store.UpdateSessionTitle(r.Context(), id, req.Title, s.now()); err != nil {
		writeNotFoundOrError(w, err, "session not found")
		return
	}
	sess, err := s.sessions.GetSession(r.Context(), id)
	if err != nil {
		writeNotFoundOrError(w, err, "session not found")
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (s *Server) deleteSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")
	if err := s.sessions.DeleteSession(r.Context(), id); err != nil {
		writeNotFoundOrError(w, err, "session not found")
		return
	}
	writeSuccess(w)
}

// setSessionSettingsRequest is the body of PUT /sessions/{id}/settings
// (spec §3: SessionSettings is "Upserted by API; deleted by API").
type setSessionSettingsRequest struct {
	Model string `json:"model"`
}

func (s *Server) setSessionSettings(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")
	var req setSessionSettingsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "invalid request body")
		return
	}
	if err := s.sessions.SetModelOverride(r.Context(), id, req.Model); err != nil {
		writeError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
		return
	}
	writeSuccess(w)
}

func (s *Server) deleteSessionSettings(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")
	if err := s.sessions.SetModelOverride(r.Context(), id, ""); err != nil {
		writeError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
		return
	}
	writeSuccess(w)
}

// createTurnRequest is the body of POST /sessions/{id}/turns.
type createTurnRequest struct {
	Content string `json:"content"`
}

func (s *Server) createTurn(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")
	var req createTurnRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Content == "" {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "content is required")
		return
	}

	turn, err := s.sessions.SendMessage(r.Context(), id, req.Content)
	if err != nil {
		if errors.Is(err, store.ErrSessionBusy) {
			writeError(w, http.StatusConflict, ErrCodeConflict, "a turn is already active for this session")
			return
		}
		writeError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"turn_id": turn.ID})
}

func (s *Server) cancelTurn(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")
	sess, err := s.sessions.GetSession(r.Context(), id)
	if err != nil {
		writeNotFoundOrError(w, err, "session not found")
		return
	}
	if sess.Status != types.SessionRunning {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	s.sessions.Cancel(id)
	w.WriteHeader(http.StatusNoContent)
}

func writeNotFoundOrError(w http.ResponseWriter, err error, notFoundMsg string) {
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, ErrCodeNotFound, notFoundMsg)
		return
	}
	writeError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
}
