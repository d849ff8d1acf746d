package ai

import "context"

// Message is a single role-tagged entry in a conversation.
type Message struct {
	Role    string // "system", "user", "assistant"
	Content string
}

// ChatRequest is the input to a chat completion. Zero-value Temperature and
// MaxTokens mean "use the provider's configured defaults".
type ChatRequest struct {
	Model       string
	Messages    []Message
	Temperature *float64
	MaxTokens   *int
}

// ChatResponse is a normalized non-streaming completion.
type ChatResponse struct {
	Content string
	Model   string
}

// ChatStream is an ordered, forward-only sequence of content increments.
// Err is nil after a clean end; Close releases the underlying connection and
// is safe to call more than once.
type ChatStream interface {
	Next() bool
	Content() string
	Err() error
	Close() error
}

// Provider is the backend abstraction the rest of the app talks to.
type Provider interface {
	CreateChatCompletion(ctx context.Context, req ChatRequest) (ChatResponse, error)
	CreateChatCompletionStream(ctx context.Context, req ChatRequest) (ChatStream, error)
}
