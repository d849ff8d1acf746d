package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"strings"
)

const (
	dataPrefix   = "data: "
	doneSentinel = "[DONE]"
)

// decodeState tracks where the decoder is between chunk deliveries.
type decodeState int

const (
	stateAwaitingData decodeState = iota
	stateBufferingPartialLine
	stateTerminated
)

// deltaChunk mirrors the streaming chat completion chunk payload. Only the
// content delta is extracted; everything else is ignored.
type deltaChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
}

// stepKind tags the outcome of decoding one candidate frame.
type stepKind int

const (
	stepSkip stepKind = iota
	stepIncrement
	stepTerminate
)

type frameStep struct {
	kind  stepKind
	delta string
}

// decodeFrame classifies one complete line of the wire protocol.
// Keep-alive blanks and non-data lines are skipped, the sentinel terminates,
// and a malformed payload is skipped with a warning so a single bad frame
// never aborts a healthy stream.
func decodeFrame(frame string) frameStep {
	line := strings.TrimSpace(frame)
	if line == "" {
		return frameStep{kind: stepSkip}
	}
	if !strings.HasPrefix(line, dataPrefix) {
		return frameStep{kind: stepSkip}
	}

	payload := strings.TrimPrefix(line, dataPrefix)
	if payload == doneSentinel {
		return frameStep{kind: stepTerminate}
	}

	var chunk deltaChunk
	if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
		slog.Warn("bridge_frame_decode_failed",
			"error", err,
			"payload", truncate(payload, 200),
		)
		return frameStep{kind: stepSkip}
	}

	if len(chunk.Choices) == 0 {
		return frameStep{kind: stepSkip}
	}
	delta := chunk.Choices[0].Delta.Content
	if delta == "" {
		// Empty deltas add no content but are not termination.
		return frameStep{kind: stepSkip}
	}
	return frameStep{kind: stepIncrement, delta: delta}
}

// Stream decodes a chunk source into an ordered sequence of content
// increments. It satisfies the Next/Content/Err/Close stream shape.
//
// Err is nil after a clean end and after cancellation; Cancelled reports
// the latter. Increments yielded before a mid-stream failure stand.
type Stream struct {
	ctx  context.Context
	src  ChunkReader
	next func() ([]byte, error, bool)
	stop func()

	carry   string
	state   decodeState
	pending []string
	current string

	err       error
	cancelled bool
}

// Decode wraps src in a decoding stream. The stream is finite and not
// restartable; the caller must Close it unless it was drained to the end.
func Decode(ctx context.Context, src ChunkReader) *Stream {
	next, stop := iter.Pull2(src.Chunks())
	return &Stream{
		ctx:   ctx,
		src:   src,
		next:  next,
		stop:  stop,
		state: stateAwaitingData,
	}
}

// Next advances to the next increment, pulling chunks as needed. It returns
// false on sentinel, source exhaustion, cancellation, or transport failure.
func (s *Stream) Next() bool {
	for {
		if len(s.pending) > 0 {
			s.current = s.pending[0]
			s.pending = s.pending[1:]
			return true
		}
		if s.state == stateTerminated {
			return false
		}

		// Cancellation is observed immediately before awaiting the next
		// chunk. Increments decoded from an already-received chunk were
		// drained above, so they are never lost to a late signal.
		if s.ctx.Err() != nil {
			s.cancelled = true
			s.terminate()
			slog.Debug("bridge_stream_cancelled")
			return false
		}

		chunk, err, ok := s.next()
		if !ok {
			// Peer closed without a sentinel. Treated as a clean end, but
			// logged apart from sentinel termination so the two paths can
			// be told apart when debugging truncated responses.
			s.terminate()
			slog.Debug("bridge_stream_closed_without_sentinel")
			return false
		}
		if err != nil {
			if s.ctx.Err() != nil || errors.Is(err, context.Canceled) {
				s.cancelled = true
				s.terminate()
				slog.Debug("bridge_stream_cancelled")
				return false
			}
			if errors.Is(err, ErrStreamConsumed) {
				s.err = err
			} else {
				s.err = fmt.Errorf("stream read failed: %w", err)
			}
			s.terminate()
			return false
		}

		s.ingest(chunk)
	}
}

// ingest appends one raw chunk to the carry-over buffer, splits off the
// complete frames, and queues their increments in frame order. The final
// unterminated segment is retained for the next chunk; dropping it would
// silently truncate content split across a chunk boundary.
func (s *Stream) ingest(chunk []byte) {
	s.carry += string(chunk)

	parts := strings.Split(s.carry, "\n")
	s.carry = parts[len(parts)-1]
	if s.carry == "" {
		s.state = stateAwaitingData
	} else {
		s.state = stateBufferingPartialLine
	}

	for _, frame := range parts[:len(parts)-1] {
		step := decodeFrame(frame)
		switch step.kind {
		case stepIncrement:
			s.pending = append(s.pending, step.delta)
		case stepTerminate:
			// Anything still buffered past the sentinel is deliberately
			// left unparsed.
			slog.Debug("bridge_stream_sentinel")
			s.terminate()
			return
		}
	}
}

// terminate moves to the terminal state and releases the source. Increments
// already queued remain deliverable.
func (s *Stream) terminate() {
	s.state = stateTerminated
	s.carry = ""
	s.stop()
	s.src.Close()
}

// Content returns the increment Next advanced to.
func (s *Stream) Content() string {
	return s.current
}

// Err returns the terminal failure, if any. Clean end and cancellation both
// leave it nil.
func (s *Stream) Err() error {
	return s.err
}

// Cancelled reports whether the stream stopped because its context fired.
func (s *Stream) Cancelled() bool {
	return s.cancelled
}

// Close releases the underlying source. Idempotent.
func (s *Stream) Close() error {
	s.state = stateTerminated
	s.stop()
	return s.src.Close()
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
