package tool

import (
	"sync"

	einotool "github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"

	"github.com/agentcore/server/internal/logging"
	"github.com/agentcore/server/internal/sandbox"
)

// Registry manages tool registration and lookup.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

// NewRegistry creates an empty tool registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

// Register adds a tool to the registry.
func (r *Registry) Register(t Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	logging.Logger.Debug().Str("tool", t.ID()).Msg("registered tool")
	r.tools[t.ID()] = t
}

// Get retrieves a tool by ID.
func (r *Registry) Get(id string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[id]
	return t, ok
}

// List returns all registered tools.
func (r *Registry) List() []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tools := make([]Tool, 0, len(r.tools))
	for _, t := range r.tools {
		tools = append(tools, t)
	}
	return tools
}

// IDs returns all registered tool IDs.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.tools))
	for id := range r.tools {
		ids = append(ids, id)
	}
	return ids
}

// Subset returns a new Registry containing only the named tools — used to
// build a sub-agent's restricted tool view (spec §4.6).
func (r *Registry) Subset(ids []string) *Registry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sub := NewRegistry()
	for _, id := range ids {
		if t, ok := r.tools[id]; ok {
			sub.tools[id] = t
		}
	}
	return sub
}

// EinoTools returns Eino-compatible tools for binding to a ModelStream.
func (r *Registry) EinoTools() []einotool.BaseTool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tools := make([]einotool.BaseTool, 0, len(r.tools))
	for _, t := range r.tools {
		tools = append(tools, t.EinoTool())
	}
	return tools
}

// ToolInfos returns Eino tool infos for all registered tools.
func (r *Registry) ToolInfos() ([]*schema.ToolInfo, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	infos := make([]*schema.ToolInfo, 0, len(r.tools))
	for _, t := range r.tools {
		params := parseJSONSchemaToParams(t.Parameters())
		infos = append(infos, &schema.ToolInfo{
			Name:        t.ID(),
			Desc:        t.Description(),
			ParamsOneOf: schema.NewParamsOneOfByParams(params),
		})
	}
	return infos, nil
}

// DefaultReadOnlyTools is the tool view a sub-agent gets when it isn't
// given an explicit tools_allowlist (spec §4.6: "default read/search/
// fetch, never write/spawn").
var DefaultReadOnlyTools = []string{"read_file", "list_tree", "glob_files", "grep_search", "web_fetch"}

// DefaultRegistry builds a registry with every built-in tool over the
// given Sandbox FS, except spawn_subagent, which requires a
// SubagentExecutor wired in separately once the executor package is
// constructed (it in turn depends on a fully-built Registry, so the two
// can't be constructed in one step).
func DefaultRegistry(fs *sandbox.FS) *Registry {
	r := NewRegistry()
	r.Register(NewReadFileTool(fs))
	r.Register(NewWriteFileTool(fs))
	r.Register(NewApplyPatchTool(fs))
	r.Register(NewListTreeTool(fs))
	r.Register(NewGlobTool(fs))
	r.Register(NewGrepTool(fs))
	r.Register(NewWebFetchTool())
	return r
}

// RegisterSpawnSubagent registers spawn_subagent once a SubagentExecutor
// is available.
func (r *Registry) RegisterSpawnSubagent(executor SubagentExecutor) {
	r.Register(NewSpawnSubagentTool(executor))
}
