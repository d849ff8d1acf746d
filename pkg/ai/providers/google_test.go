package providers

import (
	"context"
	"errors"
	"iter"
	"strings"
	"testing"
	"time"

	"chatbridge/pkg/ai"
	"chatbridge/pkg/config"

	"google.golang.org/genai"
)

type stubGoogleModelsClient struct {
	generateResp *genai.GenerateContentResponse
	generateErr  error
	streamSeq    iter.Seq2[*genai.GenerateContentResponse, error]

	gotModel    string
	gotContents []*genai.Content
	gotConfig   *genai.GenerateContentConfig
}

func (s *stubGoogleModelsClient) GenerateContent(ctx context.Context, model string, contents []*genai.Content, cfg *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	s.gotModel = model
	s.gotContents = contents
	s.gotConfig = cfg
	return s.generateResp, s.generateErr
}

func (s *stubGoogleModelsClient) GenerateContentStream(ctx context.Context, model string, contents []*genai.Content, cfg *genai.GenerateContentConfig) iter.Seq2[*genai.GenerateContentResponse, error] {
	s.gotModel = model
	s.gotContents = contents
	s.gotConfig = cfg
	if s.streamSeq != nil {
		return s.streamSeq
	}
	return func(yield func(*genai.GenerateContentResponse, error) bool) {}
}

func googleTextResponse(text string) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{
			{
				Content: &genai.Content{
					Role:  genai.RoleModel,
					Parts: []*genai.Part{{Text: text}},
				},
			},
		},
	}
}

func TestNewGoogleProvider_RequiresAPIKey(t *testing.T) {
	cfg := config.Default()
	cfg.LLMProvider = "google"
	cfg.Providers.Google.APIKey = ""

	_, err := NewGoogleProvider(ai.ProviderConfig{Type: ai.ProviderGoogle, Config: cfg})
	if err == nil {
		t.Fatal("Expected error when Google API key is missing")
	}
}

func TestNewGoogleProvider_DefaultFallbacks(t *testing.T) {
	origNewClient := newGoogleClient
	defer func() { newGoogleClient = origNewClient }()

	var gotClientCfg *genai.ClientConfig
	newGoogleClient = func(ctx context.Context, cfg *genai.ClientConfig) (*genai.Client, error) {
		gotClientCfg = cfg
		return &genai.Client{}, nil
	}

	provider, err := newGoogleProvider(config.GoogleConfig{
		APIKey:      "test-google-key",
		Temperature: 0.55,
		MaxTokens:   2048,
	})
	if err != nil {
		t.Fatalf("newGoogleProvider() error: %v", err)
	}

	if gotClientCfg == nil {
		t.Fatal("Expected Google client config to be captured")
	}
	if gotClientCfg.APIKey != "test-google-key" {
		t.Fatalf("Expected API key to be forwarded, got %q", gotClientCfg.APIKey)
	}
	if gotClientCfg.Backend != genai.BackendGeminiAPI {
		t.Fatalf("Expected BackendGeminiAPI, got %q", gotClientCfg.Backend)
	}
	if provider.defaultModel != googleDefaultModel {
		t.Fatalf("Expected default model %q, got %q", googleDefaultModel, provider.defaultModel)
	}
	if provider.defaultTimeout != 60*time.Second {
		t.Fatalf("Expected default timeout 60s, got %s", provider.defaultTimeout)
	}
}

func TestGoogleProvider_CreateChatCompletion(t *testing.T) {
	stub := &stubGoogleModelsClient{generateResp: googleTextResponse("hi from gemini")}
	provider := &GoogleProvider{
		models:             stub,
		defaultModel:       "gemini-test",
		defaultTemperature: 0.5,
		defaultMaxTokens:   512,
	}

	resp, err := provider.CreateChatCompletion(context.Background(), ai.ChatRequest{
		Messages: []ai.Message{
			{Role: "system", Content: "be brief"},
			{Role: "user", Content: "hello"},
		},
	})
	if err != nil {
		t.Fatalf("CreateChatCompletion() error: %v", err)
	}

	if resp.Content != "hi from gemini" {
		t.Fatalf("Content = %q, want 'hi from gemini'", resp.Content)
	}
	if stub.gotModel != "gemini-test" {
		t.Fatalf("model = %q, want gemini-test", stub.gotModel)
	}
	if len(stub.gotContents) != 1 {
		t.Fatalf("contents = %d entries, want 1 (system folded into instruction)", len(stub.gotContents))
	}
	if stub.gotConfig.SystemInstruction == nil {
		t.Fatal("system instruction not set")
	}
	if stub.gotConfig.MaxOutputTokens != 512 {
		t.Fatalf("MaxOutputTokens = %d, want 512", stub.gotConfig.MaxOutputTokens)
	}
}

func TestGoogleProvider_StreamRecoversDeltas(t *testing.T) {
	// Cumulative responses; the stream must emit only the new suffix each time.
	seq := func(yield func(*genai.GenerateContentResponse, error) bool) {
		if !yield(googleTextResponse("Hel"), nil) {
			return
		}
		yield(googleTextResponse("Hello"), nil)
	}

	stub := &stubGoogleModelsClient{streamSeq: seq}
	provider := &GoogleProvider{models: stub, defaultModel: "gemini-test"}

	stream, err := provider.CreateChatCompletionStream(context.Background(), ai.ChatRequest{
		Messages: []ai.Message{{Role: "user", Content: "hi"}},
	})
	if err != nil {
		t.Fatalf("CreateChatCompletionStream() error: %v", err)
	}
	defer stream.Close()

	var output strings.Builder
	for stream.Next() {
		output.WriteString(stream.Content())
	}
	if err := stream.Err(); err != nil {
		t.Fatalf("stream error: %v", err)
	}
	if output.String() != "Hello" {
		t.Fatalf("output = %q, want 'Hello'", output.String())
	}
}

func TestGoogleProvider_StreamError(t *testing.T) {
	wantErr := errors.New("backend unavailable")
	seq := func(yield func(*genai.GenerateContentResponse, error) bool) {
		if !yield(googleTextResponse("partial"), nil) {
			return
		}
		yield(nil, wantErr)
	}

	stub := &stubGoogleModelsClient{streamSeq: seq}
	provider := &GoogleProvider{models: stub, defaultModel: "gemini-test"}

	stream, err := provider.CreateChatCompletionStream(context.Background(), ai.ChatRequest{
		Messages: []ai.Message{{Role: "user", Content: "hi"}},
	})
	if err != nil {
		t.Fatalf("CreateChatCompletionStream() error: %v", err)
	}
	defer stream.Close()

	var got []string
	for stream.Next() {
		got = append(got, stream.Content())
	}
	if len(got) != 1 || got[0] != "partial" {
		t.Fatalf("increments before failure = %v, want [partial]", got)
	}
	if !errors.Is(stream.Err(), wantErr) {
		t.Fatalf("Err() = %v, want %v", stream.Err(), wantErr)
	}
}
