// Package agent provides named sub-agent tool-view presets (spec §4.6):
// the default tools_allowlist spawn_subagent falls back to when a caller
// doesn't pass an explicit one.
package agent

import (
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// Agent is a named, reusable tool-view preset for spawn_subagent.
type Agent struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	BuiltIn     bool            `json:"builtIn"`
	Tools       map[string]bool `json:"tools"`
	Model       *ModelRef       `json:"model,omitempty"`
}

// ModelRef names a specific model on a sub-agent preset. The sub-agent
// executor does not read it: a spawned run always uses the parent
// session's model.
type ModelRef struct {
	ProviderID string `json:"providerID"`
	ModelID    string `json:"modelID"`
}

// ToolEnabled reports whether toolID is in this preset's allowlist. An
// exact match wins; failing that, the most specific (longest) matching
// wildcard pattern applies. A preset with no entry for a tool denies it — unlike
// the permission gate, an agent's tool view is a closed allowlist, not an
// ask-by-default policy.
func (a *Agent) ToolEnabled(toolID string) bool {
	if enabled, ok := a.Tools[toolID]; ok {
		return enabled
	}

	best, bestEnabled := "", false
	for pattern, enabled := range a.Tools {
		if len(pattern) > len(best) && matchWildcard(pattern, toolID) {
			best, bestEnabled = pattern, enabled
		}
	}

	return bestEnabled
}

// Allowlist returns the tool IDs this preset enables, suitable for use as
// spawn_subagent's tools_allowlist when the caller doesn't supply one.
func (a *Agent) Allowlist() []string {
	var names []string
	for tool, enabled := range a.Tools {
		if enabled && tool != "*" {
			names = append(names, tool)
		}
	}
	return names
}

// Clone creates a deep copy of the agent, safe to mutate without
// affecting a built-in preset.
func (a *Agent) Clone() *Agent {
	clone := &Agent{
		Name:        a.Name,
		Description: a.Description,
		BuiltIn:     a.BuiltIn,
	}

	if a.Tools != nil {
		clone.Tools = make(map[string]bool, len(a.Tools))
		for k, v := range a.Tools {
			clone.Tools[k] = v
		}
	}

	if a.Model != nil {
		clone.Model = &ModelRef{
			ProviderID: a.Model.ProviderID,
			ModelID:    a.Model.ModelID,
		}
	}

	return clone
}

// matchWildcard checks if s matches a tool-name pattern. Simple prefix/
// suffix globs are handled with plain string ops; anything containing
// ** (or a mid-string *) falls back to doublestar.
func matchWildcard(pattern, s string) bool {
	if pattern == "*" {
		return true
	}

	if strings.Contains(pattern, "**") {
		matched, _ := doublestar.Match(pattern, s)
		return matched
	}

	if strings.HasSuffix(pattern, "*") && !strings.HasPrefix(pattern, "*") {
		return strings.HasPrefix(s, strings.TrimSuffix(pattern, "*"))
	}

	if strings.HasPrefix(pattern, "*") && !strings.HasSuffix(pattern, "*") {
		return strings.HasSuffix(s, strings.TrimPrefix(pattern, "*"))
	}

	if strings.Contains(pattern, "*") {
		matched, _ := doublestar.Match(pattern, s)
		return matched
	}

	return pattern == s
}

// BuiltInAgents returns the server's default sub-agent presets. Per spec
// §4.6, the default tools_allowlist is read/search/fetch only — never
// write or spawn_subagent itself, since sub-agents are capped at depth 1.
func BuiltInAgents() map[string]*Agent {
	return map[string]*Agent{
		"general": {
			Name:        "general",
			Description: "General-purpose sub-agent for searches and exploration",
			BuiltIn:     true,
			Tools: map[string]bool{
				"read_file":      true,
				"glob_files":     true,
				"grep_search":    true,
				"list_tree":      true,
				"web_fetch":      true,
				"write_file":     false,
				"apply_patch":    false,
				"bash":           false,
				"spawn_subagent": false,
			},
		},
		"explore": {
			Name:        "explore",
			Description: "Read-only sub-agent specialized for codebase exploration",
			BuiltIn:     true,
			Tools: map[string]bool{
				"read_file":      true,
				"glob_files":     true,
				"grep_search":    true,
				"list_tree":      true,
				"web_fetch":      false,
				"write_file":     false,
				"apply_patch":    false,
				"bash":           false,
				"spawn_subagent": false,
			},
		},
	}
}
