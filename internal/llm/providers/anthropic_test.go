package providers

import (
	"testing"

	"github.com/modelcouncil/council/internal/llm"
)

func TestNewAnthropicClientRequiresAPIKey(t *testing.T) {
	if _, err := NewAnthropicClient(AnthropicConfig{}); err == nil {
		t.Fatal("expected error for missing API key")
	}
	if _, err := NewAnthropicClient(AnthropicConfig{APIKey: "sk-test"}); err != nil {
		t.Fatalf("NewAnthropicClient: %v", err)
	}
}

func TestConvertMessagesSkipsSystemRole(t *testing.T) {
	msgs := []llm.CompletionMessage{
		{Role: llm.RoleSystem, Content: "be concise"},
		{Role: llm.RoleUser, Content: "hello"},
		{Role: llm.RoleAssistant, Content: "hi there"},
	}
	converted := convertMessages(msgs)
	if len(converted) != 2 {
		t.Fatalf("len(convertMessages()) = %d, want 2 (system message dropped)", len(converted))
	}
}

func TestMaxTokensOrDefault(t *testing.T) {
	if got := maxTokensOrDefault(0); got != 4000 {
		t.Fatalf("maxTokensOrDefault(0) = %d, want 4000", got)
	}
	if got := maxTokensOrDefault(512); got != 512 {
		t.Fatalf("maxTokensOrDefault(512) = %d, want 512", got)
	}
}
