package provider

import (
	"context"
	"io"
	"os"
	"testing"

	"github.com/cloudwego/eino/schema"
	"github.com/joho/godotenv"
)

func TestAnthropicProvider_CustomID(t *testing.T) {
	_ = godotenv.Load("../../.env")

	apiKey := os.Getenv("ANTHROPIC_API_KEY")
	if apiKey == "" {
		t.Skip("ANTHROPIC_API_KEY not set, skipping test")
	}

	ctx := context.Background()

	provider, err := NewAnthropicProvider(ctx, &AnthropicConfig{
		ID:        "claude",
		APIKey:    apiKey,
		MaxTokens: 1024,
	})
	if err != nil {
		t.Fatalf("Failed to create Anthropic provider: %v", err)
	}

	if provider.ID() != "claude" {
		t.Errorf("Expected ID 'claude', got '%s'", provider.ID())
	}
}

func TestAnthropicProvider_NoAPIKey(t *testing.T) {
	ctx := context.Background()

	originalKey := os.Getenv("ANTHROPIC_API_KEY")
	os.Unsetenv("ANTHROPIC_API_KEY")
	defer os.Setenv("ANTHROPIC_API_KEY", originalKey)

	_, err := NewAnthropicProvider(ctx, &AnthropicConfig{
		MaxTokens: 1024,
	})
	if err == nil {
		t.Error("Expected error when API key is not set")
	}
}

// TestAnthropicProvider_EmptyContentHandling reproduces a real Anthropic
// API constraint: a user message without content fails with
// "messages.0.content: Field required". A non-empty first message must
// still complete normally.
func TestAnthropicProvider_EmptyContentHandling(t *testing.T) {
	_ = godotenv.Load("../../.env")

	apiKey := os.Getenv("ANTHROPIC_API_KEY")
	if apiKey == "" {
		t.Skip("ANTHROPIC_API_KEY not set, skipping integration test")
	}

	modelID := os.Getenv("ANTHROPIC_MODEL_ID")
	if modelID == "" {
		modelID = "claude-3-5-haiku-20241022"
	}

	ctx := context.Background()

	provider, err := NewAnthropicProvider(ctx, &AnthropicConfig{
		APIKey:    apiKey,
		MaxTokens: 1024,
	})
	if err != nil {
		t.Fatalf("Failed to create Anthropic provider: %v", err)
	}

	t.Run("EmptyFirstMessageContentReturnsError", func(t *testing.T) {
		messages := []*schema.Message{
			{Role: schema.User, Content: ""},
		}

		reader, err := provider.Open(ctx, messages, nil, modelID)
		if err == nil {
			defer reader.Close()
			if _, recvErr := reader.Recv(); recvErr == nil {
				t.Error("Expected error for empty first message content, but received successful response")
			} else {
				t.Logf("Got expected error on Recv: %v", recvErr)
			}
		} else {
			t.Logf("Got expected error: %v", err)
		}
	})

	t.Run("NonEmptyFirstMessageWorks", func(t *testing.T) {
		messages := []*schema.Message{
			{Role: schema.User, Content: "Say 'test' and nothing else."},
		}

		reader, err := provider.Open(ctx, messages, nil, modelID)
		if err != nil {
			t.Fatalf("Expected no error for non-empty content, got: %v", err)
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
			t.Error("Expected non-empty response for non-empty first message")
		}
		t.Logf("Response: %s", fullResponse)
	})
}
