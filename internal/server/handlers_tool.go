package server

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/agentcore/server/pkg/types"
)

// toolInfo is one row of GET /tools: the tool's identity plus its
// currently effective policy, if one has been set explicitly.
type toolInfo struct {
	ID          string       `json:"id"`
	Description string       `json:"description"`
	Policy      types.Policy `json:"policy,omitempty"`
}

// listTools handles GET /tools.
func (s *Server) listTools(w http.ResponseWriter, r *http.Request) {
	policies, err := s.store.ListToolPolicies(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
		return
	}
	byName := make(map[string]types.Policy, len(policies))
	for _, p := range policies {
		byName[p.ToolName] = p.Policy
	}

	tools := s.tools.List()
	out := make([]toolInfo, 0, len(tools))
	for _, t := range tools {
		out = append(out, toolInfo{ID: t.ID(), Description: t.Description(), Policy: byName[t.ID()]})
	}
	writeJSON(w, http.StatusOK, out)
}

type setToolPolicyRequest struct {
	Policy types.Policy `json:"policy"`
}

// setToolPolicy handles PUT /tools/{name}/policy.
func (s *Server) setToolPolicy(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	var req setToolPolicyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "invalid JSON body")
		return
	}
	switch req.Policy {
	case types.PolicyAllow, types.PolicyAsk, types.PolicyDeny:
	default:
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "policy must be allow, ask, or deny")
		return
	}
	if _, ok := s.tools.Get(name); !ok {
		writeError(w, http.StatusNotFound, ErrCodeNotFound, "unknown tool")
		return
	}

	if err := s.store.SetToolPolicy(r.Context(), name, req.Policy); err != nil {
		writeError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
		return
	}
	writeSuccess(w)
}
