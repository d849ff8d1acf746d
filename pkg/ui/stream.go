package ui

import (
	"context"
	"log/slog"
	"time"

	"chatbridge/pkg/ai"
	"chatbridge/pkg/config"
)

// MaxHistoryMessages caps how much conversation history is sent upstream.
const MaxHistoryMessages = 20

// StreamEvent is one update from an in-flight assistant response.
type StreamEvent struct {
	Delta string
	Err   error
	Done  bool
}

// StartFunc launches a streaming exchange for the given history and returns
// the event channel plus a cancel handle. The model holds one so tests can
// substitute a scripted stream.
type StartFunc func(messages []ai.Message) (<-chan StreamEvent, context.CancelFunc, error)

// NewStarter builds the production StartFunc from config.
func NewStarter(cfg config.Config) StartFunc {
	return func(messages []ai.Message) (<-chan StreamEvent, context.CancelFunc, error) {
		return startChatStream(cfg, messages)
	}
}

func startChatStream(cfg config.Config, messages []ai.Message) (<-chan StreamEvent, context.CancelFunc, error) {
	capped := messages
	if len(messages) > MaxHistoryMessages {
		capped = messages[len(messages)-MaxHistoryMessages:]
	}

	provider, err := ai.GetProviderFromConfig(cfg)
	if err != nil {
		slog.Error("chat_stream_provider_error", "error", err)
		return nil, nil, err
	}

	timeout := cfg.Providers.Compat.APITimeoutSeconds
	if timeout <= 0 {
		timeout = 60
	}
	streamCtx, cancel := context.WithTimeout(context.Background(), time.Duration(timeout)*time.Second)

	stream, err := provider.CreateChatCompletionStream(streamCtx, ai.ChatRequest{
		Messages: capped,
	})
	if err != nil {
		cancel()
		slog.Error("chat_stream_create_error", "error", err)
		return nil, nil, err
	}

	slog.Info("chat_stream_start",
		"provider", cfg.LLMProvider,
		"message_count", len(capped),
	)

	return pumpEvents(streamCtx, cancel, stream), cancel, nil
}

// pumpEvents drains the provider stream into a buffered event channel. Every
// send also watches ctx so the goroutine exits even when the consumer stops
// reading with events still pending.
func pumpEvents(ctx context.Context, cancel context.CancelFunc, stream ai.ChatStream) <-chan StreamEvent {
	ch := make(chan StreamEvent, 8)
	go func() {
		defer close(ch)
		defer stream.Close()
		defer cancel()

		send := func(ev StreamEvent) bool {
			select {
			case ch <- ev:
				return true
			case <-ctx.Done():
				return false
			}
		}

		for stream.Next() {
			if delta := stream.Content(); delta != "" {
				if !send(StreamEvent{Delta: delta}) {
					return
				}
			}
		}

		if err := stream.Err(); err != nil {
			slog.Error("chat_stream_error", "error", err)
			send(StreamEvent{Err: err, Done: true})
			return
		}
		send(StreamEvent{Done: true})
	}()
	return ch
}
