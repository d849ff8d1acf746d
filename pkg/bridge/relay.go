package bridge

import (
	"context"
	"errors"
	"log/slog"
)

// Sink is the ordered, append-only receiver of a streamed response.
// Working is emitted exactly once, before the first fragment.
type Sink interface {
	Working()
	Append(fragment string)
}

// Relay runs one full exchange: opens the connection, decodes the event
// stream, and forwards each increment to sink in wire order.
//
// It returns nil for a clean end and for cancellation; only a rejected
// request or a mid-stream transport failure comes back as an error. Retry
// policy is the caller's concern.
func Relay(ctx context.Context, client *Client, req Request, sink Sink) error {
	src, err := client.Open(ctx, req)
	if err != nil {
		// Cancellation can land while the request itself is still in
		// flight. That is the quiet termination path, not a failure.
		if ctx.Err() != nil || errors.Is(err, context.Canceled) {
			slog.Debug("bridge_relay_cancelled_before_stream")
			return nil
		}
		return err
	}

	stream := Decode(ctx, src)
	defer stream.Close()

	sink.Working()

	count := 0
	for stream.Next() {
		sink.Append(stream.Content())
		count++
	}

	if err := stream.Err(); err != nil {
		slog.Error("bridge_relay_failed", "error", err, "increments_delivered", count)
		return err
	}

	slog.Debug("bridge_relay_done",
		"increments", count,
		"cancelled", stream.Cancelled(),
	)
	return nil
}
