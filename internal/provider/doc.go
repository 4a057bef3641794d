// Package provider implements the ModelStream capability the Agent Runner
// drives (spec §4.1): "Open(messages, tools, model) → stream of
// ModelEvent". It wraps the eino agent framework so the runner never deals
// in provider-specific chunk formats.
//
// # Core types
//
//   - Provider: ID/Name/Models plus the ModelStream's Open method
//   - ModelEvent: the closed vocabulary the runner consumes — text_delta,
//     thinking_delta, thinking_end, tool_call, stop, error
//   - Registry: constructs and looks up Providers by ID, resolves the
//     default model
//
// # Supported providers
//
// Anthropic Claude (direct API or AWS Bedrock, extended thinking, prompt
// caching) and any OpenAI-compatible endpoint (native OpenAI, Azure OpenAI,
// self-hosted gateways) are implemented directly on eino-ext's claude and
// openai chat model components.
//
//	anthropic, err := NewAnthropicProvider(ctx, &AnthropicConfig{
//	    ID:        "anthropic",
//	    APIKey:    "sk-...",
//	    Model:     "claude-sonnet-4-20250514",
//	    MaxTokens: 8192,
//	})
//
// # Registry
//
//	registry, err := InitializeProviders(ctx, specs, "anthropic/claude-sonnet-4-20250514")
//	model, err := registry.DefaultModel()
//	provider, err := registry.Get(model.ProviderID)
//
// # Streaming
//
// Open returns an EventReader that has already absorbed eino's raw,
// partial-chunk stream (see stream.go): tool calls are buffered by
// Index/ID and only surfaced as a single complete tool_call event, text
// and reasoning deltas are normalized regardless of whether the
// upstream provider sends true deltas or resends the full accumulated
// string each chunk.
//
//	reader, err := provider.Open(ctx, messages, tools, modelID)
//	for {
//	    ev, err := reader.Recv()
//	    if err == io.EOF {
//	        break
//	    }
//	    // handle ev.Kind
//	}
//	reader.Close()
package provider
