package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"chatbridge/pkg/ai"
	"chatbridge/pkg/bridge"
	"chatbridge/pkg/config"
)

func init() {
	ai.RegisterProvider(ai.ProviderInfo{
		Type:        ai.ProviderCompat,
		Name:        "OpenAI-compatible",
		Description: "Any OpenAI-compatible chat completions endpoint (OpenRouter, vLLM, LiteLLM, ...)",
		RequiresKey: false,
	}, NewCompatProvider)
}

// CompatProvider talks to any OpenAI-compatible endpoint. Streaming goes
// through the bridge transport and decoder; non-streaming is a plain POST
// against the same resource.
type CompatProvider struct {
	client           *bridge.Client
	httpClient       *http.Client
	endpoint         string
	apiKey           string
	defaultModel     string
	defaultMaxTokens int
}

// NewCompatProvider creates a new compat provider from config.
func NewCompatProvider(cfg ai.ProviderConfig) (ai.Provider, error) {
	providerCfg := cfg.Config.Providers.Compat
	httpClient := &http.Client{Timeout: time.Duration(providerCfg.APITimeoutSeconds) * time.Second}
	return newCompatProviderWithHTTPClient(providerCfg, httpClient)
}

func newCompatProviderWithHTTPClient(cfg config.CompatConfig, httpClient *http.Client) (*CompatProvider, error) {
	if strings.TrimSpace(cfg.Endpoint) == "" {
		return nil, fmt.Errorf("compat endpoint is required")
	}
	if strings.TrimSpace(cfg.Model) == "" {
		return nil, fmt.Errorf("compat model is required")
	}
	if cfg.APITimeoutSeconds <= 0 {
		return nil, fmt.Errorf("compat api_timeout_seconds must be positive")
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: time.Duration(cfg.APITimeoutSeconds) * time.Second}
	}

	slog.Debug("compat_provider_ready",
		"endpoint", cfg.Endpoint,
		"model", cfg.Model,
		"timeout_seconds", cfg.APITimeoutSeconds,
	)
	return &CompatProvider{
		client:           bridge.NewClientWithHTTPClient(httpClient),
		httpClient:       httpClient,
		endpoint:         cfg.Endpoint,
		apiKey:           cfg.APIKey,
		defaultModel:     cfg.Model,
		defaultMaxTokens: cfg.MaxTokens,
	}, nil
}

// compatRequest is the non-streaming request body.
type compatRequest struct {
	Model     string           `json:"model"`
	Messages  []bridge.Message `json:"messages"`
	Stream    bool             `json:"stream"`
	MaxTokens int              `json:"max_tokens,omitempty"`
}

// compatResponse is the non-streaming completion response.
type compatResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// CreateChatCompletion sends a non-streaming chat completion request.
func (p *CompatProvider) CreateChatCompletion(ctx context.Context, req ai.ChatRequest) (ai.ChatResponse, error) {
	model, messages, maxTokens, err := p.buildRequest(req)
	if err != nil {
		return ai.ChatResponse{}, err
	}

	body, err := json.Marshal(compatRequest{
		Model:     model,
		Messages:  messages,
		Stream:    false,
		MaxTokens: maxTokens,
	})
	if err != nil {
		return ai.ChatResponse{}, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(body))
	if err != nil {
		return ai.ChatResponse{}, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return ai.ChatResponse{}, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return ai.ChatResponse{}, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return ai.ChatResponse{}, &bridge.ConnectionError{
			Status:     resp.StatusCode,
			StatusText: http.StatusText(resp.StatusCode),
		}
	}

	var compatResp compatResponse
	if err := json.Unmarshal(respBody, &compatResp); err != nil {
		return ai.ChatResponse{}, fmt.Errorf("failed to parse response: %w", err)
	}

	content := ""
	if len(compatResp.Choices) > 0 {
		content = compatResp.Choices[0].Message.Content
	}
	return ai.ChatResponse{
		Content: content,
		Model:   compatResp.Model,
	}, nil
}

// CreateChatCompletionStream opens a streaming chat completion exchange
// through the bridge.
func (p *CompatProvider) CreateChatCompletionStream(ctx context.Context, req ai.ChatRequest) (ai.ChatStream, error) {
	model, messages, maxTokens, err := p.buildRequest(req)
	if err != nil {
		return nil, err
	}

	slog.Debug("compat_chat_stream_request",
		"model", model,
		"message_count", len(messages),
	)

	src, err := p.client.Open(ctx, bridge.Request{
		Endpoint:  p.endpoint,
		APIKey:    p.apiKey,
		Model:     model,
		Messages:  messages,
		MaxTokens: maxTokens,
	})
	if err != nil {
		return nil, err
	}
	return bridge.Decode(ctx, src), nil
}

func (p *CompatProvider) buildRequest(req ai.ChatRequest) (string, []bridge.Message, int, error) {
	model := strings.TrimSpace(req.Model)
	if model == "" {
		model = p.defaultModel
	}
	if strings.TrimSpace(model) == "" {
		return "", nil, 0, fmt.Errorf("model is required")
	}
	if len(req.Messages) == 0 {
		return "", nil, 0, fmt.Errorf("messages are required")
	}

	messages := make([]bridge.Message, 0, len(req.Messages))
	for _, msg := range req.Messages {
		role := strings.ToLower(strings.TrimSpace(msg.Role))
		switch role {
		case "system", "user", "assistant":
		default:
			return "", nil, 0, fmt.Errorf("unsupported role: %s", msg.Role)
		}
		messages = append(messages, bridge.Message{Role: role, Content: msg.Content})
	}

	maxTokens := p.defaultMaxTokens
	if req.MaxTokens != nil {
		maxTokens = *req.MaxTokens
	}
	return model, messages, maxTokens, nil
}

// Ensure interface compliance
var _ ai.Provider = (*CompatProvider)(nil)
