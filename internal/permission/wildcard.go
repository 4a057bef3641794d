package permission

import (
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/agentcore/server/pkg/types"
)

// policyKey builds the composite ToolPolicy.ToolName stored for a
// pattern-scoped "always" approval ("approve write_file for src/**/*.go
// always" becomes the key "write_file src/**/*.go"), mirroring the
// teacher's "git commit *" bash hierarchy but keyed on a path/domain glob
// instead of a command/subcommand pair.
func policyKey(toolName, pattern string) string {
	if pattern == "" {
		return toolName
	}
	return toolName + " " + pattern
}

// splitPolicyKey reverses policyKey.
func splitPolicyKey(key string) (toolName, pattern string) {
	if i := strings.IndexByte(key, ' '); i >= 0 {
		return key[:i], key[i+1:]
	}
	return key, ""
}

// globalKey is the tool name that matches every tool, used for a
// blanket "*" policy override.
const globalKey = "*"

// matchPolicies finds the most specific stored policy for (toolName,
// target): an exact pattern match against target first, then a bare
// tool-level entry, then the global "*" entry. ok is false if nothing in
// policies applies.
func matchPolicies(policies []*types.ToolPolicy, toolName, target string) (policy types.Policy, ok bool) {
	var bare types.Policy
	var bareOK bool
	var global types.Policy
	var globalOK bool

	for _, p := range policies {
		name, pattern := splitPolicyKey(p.ToolName)
		if name == globalKey && pattern == "" {
			global, globalOK = p.Policy, true
			continue
		}
		if name != toolName {
			continue
		}
		if pattern == "" {
			bare, bareOK = p.Policy, true
			continue
		}
		if target == "" {
			continue
		}
		if matched, _ := doublestar.Match(pattern, target); matched {
			return p.Policy, true
		}
	}
	if bareOK {
		return bare, true
	}
	if globalOK {
		return global, true
	}
	return "", false
}
