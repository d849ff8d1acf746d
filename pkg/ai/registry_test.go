package ai

import (
	"context"
	"testing"

	"chatbridge/pkg/config"
)

type stubProvider struct{}

func (stubProvider) CreateChatCompletion(ctx context.Context, req ChatRequest) (ChatResponse, error) {
	return ChatResponse{Content: "stub"}, nil
}

func (stubProvider) CreateChatCompletionStream(ctx context.Context, req ChatRequest) (ChatStream, error) {
	return nil, nil
}

func TestRegistry_RegisterAndGet(t *testing.T) {
	r := NewRegistry()
	r.Register(ProviderInfo{Type: ProviderCompat, Name: "Test"}, func(cfg ProviderConfig) (Provider, error) {
		return stubProvider{}, nil
	})

	if !r.IsRegistered(ProviderCompat) {
		t.Fatal("provider not registered")
	}

	p, err := r.GetProvider(ProviderConfig{Type: ProviderCompat})
	if err != nil {
		t.Fatalf("GetProvider() error: %v", err)
	}

	resp, err := p.CreateChatCompletion(context.Background(), ChatRequest{})
	if err != nil || resp.Content != "stub" {
		t.Fatalf("unexpected provider: resp=%v err=%v", resp, err)
	}
}

func TestRegistry_UnknownType(t *testing.T) {
	r := NewRegistry()
	if _, err := r.GetProvider(ProviderConfig{Type: "nope"}); err == nil {
		t.Fatal("expected error for unknown provider type")
	}
}

func TestRegistry_ListProviders(t *testing.T) {
	r := NewRegistry()
	r.Register(ProviderInfo{Type: ProviderCompat, Name: "A"}, func(cfg ProviderConfig) (Provider, error) { return stubProvider{}, nil })
	r.Register(ProviderInfo{Type: ProviderOpenAI, Name: "B"}, func(cfg ProviderConfig) (Provider, error) { return stubProvider{}, nil })

	if got := len(r.ListProviders()); got != 2 {
		t.Fatalf("ListProviders() = %d entries, want 2", got)
	}
}

func TestValidateProviderType(t *testing.T) {
	tests := []struct {
		input string
		want  ProviderType
		ok    bool
	}{
		{"compat", ProviderCompat, true},
		{"openai", ProviderOpenAI, true},
		{"google", ProviderGoogle, true},
		{"copilot", "", false},
		{"", "", false},
	}

	for _, tt := range tests {
		got, ok := ValidateProviderType(tt.input)
		if got != tt.want || ok != tt.ok {
			t.Fatalf("ValidateProviderType(%q) = (%q, %v), want (%q, %v)", tt.input, got, ok, tt.want, tt.ok)
		}
	}
}

func TestGetProviderFromConfig_FallsBackToCompat(t *testing.T) {
	r := NewRegistry()
	called := false
	r.Register(ProviderInfo{Type: ProviderCompat, Name: "Compat"}, func(cfg ProviderConfig) (Provider, error) {
		called = true
		return stubProvider{}, nil
	})

	cfg := config.Default()
	cfg.LLMProvider = "something-unknown"

	pt, ok := ValidateProviderType(cfg.LLMProvider)
	if ok {
		t.Fatalf("unexpected valid type %q", pt)
	}
	if _, err := r.GetProvider(ProviderConfig{Type: ProviderCompat, Config: cfg}); err != nil {
		t.Fatalf("GetProvider() error: %v", err)
	}
	if !called {
		t.Fatal("compat factory not invoked")
	}
}
