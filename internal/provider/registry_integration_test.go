package provider

import (
	"context"
	"io"
	"os"
	"testing"

	"github.com/cloudwego/eino/schema"
	"github.com/joho/godotenv"
)

// ProviderTestConfig defines a provider configuration for table-driven
// integration tests against real LLM backends.
type ProviderTestConfig struct {
	Name           string
	ProviderID     string
	Kind           Kind
	APIKeyEnv      string
	BaseURLEnv     string
	ModelIDEnv     string
	DefaultModelID string
	SkipToolTest   bool
}

var providerTestConfigs = []ProviderTestConfig{
	{
		Name:           "Anthropic",
		ProviderID:     "anthropic",
		Kind:           KindAnthropic,
		APIKeyEnv:      "ANTHROPIC_API_KEY",
		ModelIDEnv:     "ANTHROPIC_MODEL_ID",
		DefaultModelID: "claude-3-5-haiku-20241022",
	},
	{
		Name:           "OpenAI",
		ProviderID:     "openai",
		Kind:           KindOpenAI,
		APIKeyEnv:      "OPENAI_API_KEY",
		BaseURLEnv:     "OPENAI_BASE_URL",
		ModelIDEnv:     "OPENAI_MODEL_ID",
		DefaultModelID: "gpt-4o-mini",
	},
}

func TestRegistry_LLMIntegration(t *testing.T) {
	_ = godotenv.Load("../../.env")

	for _, tc := range providerTestConfigs {
		tc := tc
		t.Run(tc.Name, func(t *testing.T) {
			apiKey := os.Getenv(tc.APIKeyEnv)
			if apiKey == "" {
				t.Skipf("%s not set, skipping %s integration test", tc.APIKeyEnv, tc.Name)
			}

			modelID := os.Getenv(tc.ModelIDEnv)
			if modelID == "" {
				if tc.DefaultModelID == "" {
					t.Skipf("%s not set and no default, skipping %s test", tc.ModelIDEnv, tc.Name)
				}
				modelID = tc.DefaultModelID
			}

			specs := []Spec{buildTestSpec(tc)}

			ctx := context.Background()
			registry, err := InitializeProviders(ctx, specs, tc.ProviderID+"/"+modelID)
			if err != nil {
				t.Fatalf("Failed to initialize providers: %v", err)
			}

			provider, err := registry.Get(tc.ProviderID)
			if err != nil {
				t.Fatalf("Failed to get provider %s from registry: %v", tc.ProviderID, err)
			}

			runProviderIntegrationTests(t, provider, modelID, tc.SkipToolTest)
		})
	}
}

func buildTestSpec(tc ProviderTestConfig) Spec {
	baseURL := ""
	if tc.BaseURLEnv != "" {
		baseURL = os.Getenv(tc.BaseURLEnv)
	}
	modelID := os.Getenv(tc.ModelIDEnv)
	if modelID == "" {
		modelID = tc.DefaultModelID
	}

	return Spec{
		ID:      tc.ProviderID,
		Kind:    tc.Kind,
		APIKey:  os.Getenv(tc.APIKeyEnv),
		BaseURL: baseURL,
		Model:   modelID,
	}
}

func runProviderIntegrationTests(t *testing.T, provider Provider, modelID string, skipToolTest bool) {
	ctx := context.Background()

	if provider.ID() == "" {
		t.Error("Expected non-empty provider ID")
	}
	if provider.Name() == "" {
		t.Error("Expected non-empty provider name")
	}

	t.Run("SimpleCompletion", func(t *testing.T) {
		testSimpleCompletion(t, ctx, provider, modelID)
	})

	t.Run("StreamingChunks", func(t *testing.T) {
		testStreamingChunks(t, ctx, provider, modelID)
	})

	t.Run("MultiTurnConversation", func(t *testing.T) {
		testMultiTurnConversation(t, ctx, provider, modelID)
	})

	if !skipToolTest {
		t.Run("ToolBinding", func(t *testing.T) {
			testToolBinding(t, provider)
		})
	}
}

func testSimpleCompletion(t *testing.T, ctx context.Context, provider Provider, modelID string) {
	messages := []*schema.Message{
		{Role: schema.User, Content: "Say 'Hello, World!' and nothing else."},
	}

	reader, err := provider.Open(ctx, messages, nil, modelID)
	if err != nil {
		t.Fatalf("Failed to open stream: %v", err)
	}
	defer reader.Close()

	var fullResponse string
	for {
		ev, err := reader.Recv()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("Recv failed: %v", err)
		}
		if ev.Kind == EventTextDelta {
			fullResponse += ev.Text
		}
	}

	if fullResponse == "" {
		t.Error("Expected non-empty response")
	}
	t.Logf("[%s] Response: %s", provider.Name(), fullResponse)
}

func testStreamingChunks(t *testing.T, ctx context.Context, provider Provider, modelID string) {
	messages := []*schema.Message{
		{Role: schema.User, Content: "Count from 1 to 5, one number per line."},
	}

	reader, err := provider.Open(ctx, messages, nil, modelID)
	if err != nil {
		t.Fatalf("Failed to open stream: %v", err)
	}
	defer reader.Close()

	chunkCount := 0
	for {
		ev, err := reader.Recv()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("Recv failed: %v", err)
		}
		if ev.Kind == EventTextDelta {
			chunkCount++
		}
	}

	if chunkCount == 0 {
		t.Error("Expected to receive at least one chunk")
	}
	t.Logf("[%s] Received %d chunks", provider.Name(), chunkCount)
}

func testMultiTurnConversation(t *testing.T, ctx context.Context, provider Provider, modelID string) {
	messages := []*schema.Message{
		{Role: schema.User, Content: "Remember the number 42."},
		{Role: schema.Assistant, Content: "I'll remember the number 42."},
		{Role: schema.User, Content: "What number did I ask you to remember? Reply with just the number."},
	}

	reader, err := provider.Open(ctx, messages, nil, modelID)
	if err != nil {
		t.Fatalf("Failed to open stream: %v", err)
	}
	defer reader.Close()

	var fullResponse string
	for {
		ev, err := reader.Recv()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("Recv failed: %v", err)
		}
		if ev.Kind == EventTextDelta {
			fullResponse += ev.Text
		}
	}

	if fullResponse == "" {
		t.Error("Expected non-empty response")
	}
	t.Logf("[%s] Response: %s", provider.Name(), fullResponse)
}

func testToolBinding(t *testing.T, provider Provider) {
	tools := []*schema.ToolInfo{
		{
			Name: "calculator",
			Desc: "Performs arithmetic calculations",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"expression": {
					Type: schema.String,
					Desc: "The mathematical expression to evaluate",
				},
			}),
		},
	}

	chatModel := provider.ChatModel()
	boundModel, err := chatModel.WithTools(tools)
	if err != nil {
		t.Fatalf("Failed to bind tools: %v", err)
	}
	if boundModel == nil {
		t.Error("Expected non-nil bound model")
	}
}

// TestRegistry_MultiProvider exercises several providers registered at
// once, when more than one backend's API key is available.
func TestRegistry_MultiProvider(t *testing.T) {
	_ = godotenv.Load("../../.env")

	var specs []Spec
	var availableProviders []string

	for _, tc := range providerTestConfigs {
		apiKey := os.Getenv(tc.APIKeyEnv)
		if apiKey == "" {
			continue
		}
		spec := buildTestSpec(tc)
		if spec.Model == "" {
			continue
		}
		specs = append(specs, spec)
		availableProviders = append(availableProviders, tc.ProviderID)
	}

	if len(availableProviders) == 0 {
		t.Skip("No provider API keys configured, skipping multi-provider test")
	}

	ctx := context.Background()
	registry, err := InitializeProviders(ctx, specs, "")
	if err != nil {
		t.Fatalf("Failed to initialize providers: %v", err)
	}

	providers := registry.List()
	t.Logf("Registered %d providers: %v", len(providers), availableProviders)

	if len(providers) != len(availableProviders) {
		t.Errorf("Expected %d providers, got %d", len(availableProviders), len(providers))
	}

	for _, providerID := range availableProviders {
		provider, err := registry.Get(providerID)
		if err != nil {
			t.Errorf("Failed to get provider %s: %v", providerID, err)
			continue
		}
		t.Logf("Provider %s: ID=%s, Name=%s, Models=%d",
			providerID, provider.ID(), provider.Name(), len(provider.Models()))
	}
}
