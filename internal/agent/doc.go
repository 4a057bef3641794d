// Package agent provides named sub-agent tool-view presets.
//
// The only place a preset is used is spawn_subagent: when a tool call
// omits tools_allowlist, the runner falls back to a preset's Allowlist
// instead of giving the child runner every tool the parent has. A preset
// is a closed allowlist — a tool with no entry (and matching no wildcard
// pattern) is disabled, never implicitly enabled.
//
// # Built-in presets
//
//   - general: search, read files, and fetch URLs; no writes, no bash,
//     no further spawn_subagent (sub-agents are capped at depth 1).
//   - explore: read-only codebase exploration — read/glob/grep/list only.
//
// # Tool access control
//
// Each preset has a Tools map keyed by tool name or glob pattern:
//
//	agent.Tools = map[string]bool{
//	    "read_file":  true,
//	    "mcp_*":      true,
//	    "write_file": false,
//	}
//
// [Agent.ToolEnabled] checks tool availability against exact names and
// glob patterns, including doublestar (**) for nested matches.
// [Agent.Allowlist] turns an enabled-tool set into the []string
// spawn_subagent expects.
//
// # Registry
//
// [Registry] manages presets with thread-safe operations:
//
//	registry := agent.NewRegistry() // seeded with the built-ins
//	registry.Register(customPreset)
//	preset, err := registry.Get("explore")
//
// Custom presets can be loaded from configuration via
// [Registry.LoadFromConfig], which merges tool-map overrides into an
// existing (including built-in) preset without mutating the original:
//
//	config := map[string]agent.AgentConfig{
//	    "explore": {Tools: map[string]bool{"bash": true}},
//	    "docs":    {Description: "Docs-only sub-agent", Tools: map[string]bool{"read_file": true}},
//	}
//	registry.LoadFromConfig(config)
package agent
