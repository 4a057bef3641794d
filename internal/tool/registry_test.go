package tool

import (
	"context"
	"encoding/json"
	"testing"

	einotool "github.com/cloudwego/eino/components/tool"
	"github.com/stretchr/testify/require"

	"github.com/agentcore/server/internal/sandbox"
	"github.com/agentcore/server/internal/store"
	"github.com/agentcore/server/pkg/types"
)

// mockTool implements Tool for testing.
type mockTool struct {
	id          string
	description string
	params      json.RawMessage
}

func (m *mockTool) ID() string                  { return m.id }
func (m *mockTool) Description() string         { return m.description }
func (m *mockTool) Parameters() json.RawMessage { return m.params }
func (m *mockTool) Execute(ctx context.Context, input json.RawMessage, toolCtx *Context) (*Result, error) {
	return &Result{Output: "mock result"}, nil
}
func (m *mockTool) EinoTool() einotool.InvokableTool {
	return &einoToolWrapper{tool: m}
}

func newMockTool(id, description string) *mockTool {
	return &mockTool{
		id:          id,
		description: description,
		params:      json.RawMessage(`{"type": "object", "properties": {}}`),
	}
}

func TestRegistryRegisterAndGet(t *testing.T) {
	registry := NewRegistry()
	registry.Register(newMockTool("test_tool", "A test tool"))

	got, ok := registry.Get("test_tool")
	require.True(t, ok)
	require.Equal(t, "test_tool", got.ID())
}

func TestRegistryGetNotFound(t *testing.T) {
	registry := NewRegistry()
	_, ok := registry.Get("nonexistent")
	require.False(t, ok)
}

func TestRegistryList(t *testing.T) {
	registry := NewRegistry()
	registry.Register(newMockTool("tool1", "Tool 1"))
	registry.Register(newMockTool("tool2", "Tool 2"))
	registry.Register(newMockTool("tool3", "Tool 3"))

	require.Len(t, registry.List(), 3)
}

func TestRegistryIDs(t *testing.T) {
	registry := NewRegistry()
	registry.Register(newMockTool("alpha", "Alpha"))
	registry.Register(newMockTool("beta", "Beta"))

	ids := registry.IDs()
	require.Len(t, ids, 2)
	require.ElementsMatch(t, []string{"alpha", "beta"}, ids)
}

func TestRegistryEinoTools(t *testing.T) {
	registry := NewRegistry()
	registry.Register(newMockTool("tool1", "Tool 1"))
	registry.Register(newMockTool("tool2", "Tool 2"))

	require.Len(t, registry.EinoTools(), 2)
}

func TestRegistryToolInfos(t *testing.T) {
	registry := NewRegistry()
	registry.Register(&mockTool{
		id:          "read_file",
		description: "Reads a file from disk",
		params: json.RawMessage(`{
			"type": "object",
			"properties": {
				"path": {"type": "string", "description": "File path"}
			},
			"required": ["path"]
		}`),
	})

	infos, err := registry.ToolInfos()
	require.NoError(t, err)
	require.Len(t, infos, 1)
	require.Equal(t, "read_file", infos[0].Name)
	require.Equal(t, "Reads a file from disk", infos[0].Desc)
}

func TestDefaultRegistry(t *testing.T) {
	root := t.TempDir()
	st, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	require.NoError(t, st.CreateSession(context.Background(), &types.Session{
		ID: "s1", Title: "t", Status: types.SessionIdle, CreatedAt: 1, UpdatedAt: 1,
	}))

	fs, err := sandbox.New(root, st, func() int64 { return 1 })
	require.NoError(t, err)

	registry := DefaultRegistry(fs)

	expectedTools := []string{"read_file", "write_file", "apply_patch", "list_tree", "glob_files", "grep_search", "web_fetch"}
	for _, name := range expectedTools {
		_, ok := registry.Get(name)
		require.Truef(t, ok, "expected tool %q to be registered", name)
	}
	require.Len(t, registry.List(), len(expectedTools))
}

func TestRegistrySubsetBuildsReadOnlyView(t *testing.T) {
	registry := NewRegistry()
	registry.Register(newMockTool("read_file", "read"))
	registry.Register(newMockTool("write_file", "write"))

	sub := registry.Subset([]string{"read_file"})
	_, ok := sub.Get("read_file")
	require.True(t, ok)
	_, ok = sub.Get("write_file")
	require.False(t, ok)
}

func TestRegistryConcurrentAccess(t *testing.T) {
	registry := NewRegistry()

	done := make(chan bool)
	for i := 0; i < 10; i++ {
		go func(n int) {
			tool := newMockTool("tool"+string(rune('0'+n)), "Tool")
			registry.Register(tool)
			registry.List()
			registry.IDs()
			registry.Get("tool" + string(rune('0'+n)))
			done <- true
		}(i)
	}
	for i := 0; i < 10; i++ {
		<-done
	}
	require.Len(t, registry.List(), 10)
}

func TestRegistryReplaceExisting(t *testing.T) {
	registry := NewRegistry()
	registry.Register(newMockTool("mytool", "Original description"))
	registry.Register(newMockTool("mytool", "New description"))

	got, _ := registry.Get("mytool")
	require.Equal(t, "New description", got.Description())
	require.Len(t, registry.List(), 1)
}
