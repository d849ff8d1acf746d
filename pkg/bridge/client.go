package bridge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

const (
	// DefaultTimeout bounds the whole exchange when the caller does not
	// supply its own HTTP client.
	DefaultTimeout = 60 * time.Second

	defaultUserAgent = "chatbridge/1.0"

	// readBufferSize is the transport read granularity. Chunk boundaries
	// carry no meaning; the decoder reassembles frames across them.
	readBufferSize = 4096
)

// Message is a single role-tagged entry in a conversation.
type Message struct {
	Role    string `json:"role"` // "system", "user", "assistant"
	Content string `json:"content"`
}

// Request describes one streaming chat completion exchange. It is read-only
// once handed to Open.
type Request struct {
	Endpoint  string // full URL of the completions resource
	APIKey    string // optional; sent as a bearer credential when set
	Model     string
	Messages  []Message
	MaxTokens int
}

// requestBody is the wire shape of the outbound POST.
type requestBody struct {
	Model     string    `json:"model"`
	Messages  []Message `json:"messages"`
	Stream    bool      `json:"stream"`
	MaxTokens int       `json:"max_tokens,omitempty"`
}

// Client issues streaming chat completion requests.
type Client struct {
	HTTPClient *http.Client
	UserAgent  string
}

// NewClient creates a client with the default timeout.
func NewClient() *Client {
	return &Client{
		HTTPClient: &http.Client{Timeout: DefaultTimeout},
		UserAgent:  defaultUserAgent,
	}
}

// NewClientWithHTTPClient creates a client over a caller-supplied HTTP
// client. Tests inject fake transports through here.
func NewClientWithHTTPClient(httpClient *http.Client) *Client {
	return &Client{
		HTTPClient: httpClient,
		UserAgent:  defaultUserAgent,
	}
}

// Open performs the streaming POST and returns the response body as a
// cancelable chunk source. A non-success status fails with *ConnectionError
// before any chunk is delivered. Cancel ctx to abandon the exchange; the
// underlying connection is released either way.
func (c *Client) Open(ctx context.Context, req Request) (*ChunkSource, error) {
	if strings.TrimSpace(req.Endpoint) == "" {
		return nil, ErrNoEndpoint
	}

	body, err := json.Marshal(requestBody{
		Model:     req.Model,
		Messages:  req.Messages,
		Stream:    true,
		MaxTokens: req.MaxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, req.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")
	if c.UserAgent != "" {
		httpReq.Header.Set("User-Agent", c.UserAgent)
	}
	if req.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+req.APIKey)
	}

	slog.Debug("bridge_open",
		"endpoint", req.Endpoint,
		"model", req.Model,
		"message_count", len(req.Messages),
		"max_tokens", req.MaxTokens,
		"has_credential", req.APIKey != "",
	)

	resp, err := c.HTTPClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		resp.Body.Close()
		connErr := &ConnectionError{
			Status:     resp.StatusCode,
			StatusText: http.StatusText(resp.StatusCode),
		}
		slog.Debug("bridge_open_rejected", "status", connErr.Status, "status_text", connErr.StatusText)
		return nil, connErr
	}

	return &ChunkSource{
		ctx:    ctx,
		body:   resp.Body,
		Status: resp.StatusCode,
		Header: resp.Header,
	}, nil
}

// ChunkReader is the surface the decoder consumes: a forward-only chunk
// sequence plus idempotent release of the underlying resource.
type ChunkReader interface {
	Chunks() iter.Seq2[[]byte, error]
	Close() error
}

// ChunkSource exposes one response body as a lazy, single-consumer sequence
// of raw byte chunks. It owns the connection until drained, closed, or the
// request context is canceled.
type ChunkSource struct {
	ctx  context.Context
	body io.ReadCloser

	Status int
	Header http.Header

	traversed atomic.Bool
	closeOnce sync.Once
	closeErr  error
}

// Chunks returns the chunk sequence. The sequence is finite and not
// restartable: a second call yields ErrStreamConsumed. A pending read
// unblocks with an error when the request context is canceled.
func (s *ChunkSource) Chunks() iter.Seq2[[]byte, error] {
	return func(yield func([]byte, error) bool) {
		if !s.traversed.CompareAndSwap(false, true) {
			yield(nil, ErrStreamConsumed)
			return
		}

		buf := make([]byte, readBufferSize)
		for {
			n, err := s.body.Read(buf)
			if n > 0 {
				chunk := make([]byte, n)
				copy(chunk, buf[:n])
				if !yield(chunk, nil) {
					return
				}
			}
			if err != nil {
				if err == io.EOF {
					// Fully drained releases the connection even when the
					// consumer never calls Close.
					s.Close()
					return
				}
				// Prefer the context error so cancellation is not
				// misreported as a transport failure.
				if ctxErr := s.ctx.Err(); ctxErr != nil {
					err = ctxErr
				}
				yield(nil, err)
				return
			}
		}
	}
}

// Close releases the connection. Safe to call any number of times and from
// any terminal path.
func (s *ChunkSource) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.body.Close()
	})
	return s.closeErr
}

var _ ChunkReader = (*ChunkSource)(nil)
