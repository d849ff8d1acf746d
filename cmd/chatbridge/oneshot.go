package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"chatbridge/pkg/ai"
	"chatbridge/pkg/bridge"
	"chatbridge/pkg/config"
)

// writerSink streams reply fragments to out. The working notice goes to
// status so piped stdout stays clean.
type writerSink struct {
	out     io.Writer
	status  io.Writer
	started bool
}

func (s *writerSink) Working() {
	if s.status != nil {
		fmt.Fprintln(s.status, "working...")
	}
}

func (s *writerSink) Append(fragment string) {
	s.started = true
	fmt.Fprint(s.out, fragment)
}

func runOneShot(cfg config.Config, prompt string, out, status io.Writer) error {
	timeout := cfg.Providers.Compat.APITimeoutSeconds
	if timeout <= 0 {
		timeout = 60
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(timeout)*time.Second)
	defer cancel()

	sink := &writerSink{out: out, status: status}

	var err error
	if cfg.LLMProvider == string(ai.ProviderCompat) || cfg.LLMProvider == "" {
		err = relayOneShot(ctx, cfg, prompt, sink)
	} else {
		err = providerOneShot(ctx, cfg, prompt, sink)
	}
	if err != nil {
		return err
	}
	if sink.started {
		fmt.Fprintln(out)
	}
	return nil
}

// relayOneShot drives the compat wire directly through the bridge.
func relayOneShot(ctx context.Context, cfg config.Config, prompt string, sink bridge.Sink) error {
	compat := cfg.Providers.Compat
	req := bridge.Request{
		Endpoint:  compat.Endpoint,
		APIKey:    compat.APIKey,
		Model:     compat.Model,
		MaxTokens: compat.MaxTokens,
		Messages:  []bridge.Message{{Role: "user", Content: prompt}},
	}
	return bridge.Relay(ctx, bridge.NewClient(), req, sink)
}

// providerOneShot goes through the provider registry for non-compat backends.
func providerOneShot(ctx context.Context, cfg config.Config, prompt string, sink bridge.Sink) error {
	provider, err := ai.GetProviderFromConfig(cfg)
	if err != nil {
		return err
	}

	stream, err := provider.CreateChatCompletionStream(ctx, ai.ChatRequest{
		Messages: []ai.Message{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return err
	}
	defer stream.Close()

	sink.Working()
	for stream.Next() {
		if content := stream.Content(); content != "" {
			sink.Append(content)
		}
	}
	if err := stream.Err(); err != nil {
		slog.Error("oneshot_stream_error", "provider", cfg.LLMProvider, "error", err)
		return err
	}
	return nil
}
