package transport

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
)

// Stream states. A stream starts open, finishes on its terminal event, and
// closes on done.
const (
	streamOpen = iota
	streamFinished
	streamClosed
)

// EventStream writes named server-sent events for a single invocation in the
// order the wire contract promises: any number of progress events, exactly
// one result or error, then done. Writes that would break the order fail and
// leave the stream untouched.
type EventStream struct {
	mu    sync.Mutex
	w     io.Writer
	flush http.Flusher
	state int
}

// NewEventStream wraps w. The caller is responsible for the response headers.
func NewEventStream(w http.ResponseWriter) (*EventStream, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("streaming unsupported: %T is not an http.Flusher", w)
	}
	return &EventStream{w: w, flush: flusher}, nil
}

// Progress emits an intermediate event. Only valid before the terminal.
func (s *EventStream) Progress(v any) error {
	return s.write("progress", v, streamOpen, streamOpen)
}

// Result emits the successful terminal event.
func (s *EventStream) Result(v any) error {
	return s.write("result", v, streamOpen, streamFinished)
}

// Fail emits the failing terminal event.
func (s *EventStream) Fail(v any) error {
	return s.write("error", v, streamOpen, streamFinished)
}

// Done closes the stream. Valid only after a terminal event.
func (s *EventStream) Done() error {
	return s.write("done", struct{}{}, streamFinished, streamClosed)
}

func (s *EventStream) write(event string, v any, want, next int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != want {
		err := fmt.Errorf("event %q out of order (stream %s)", event, stateName(s.state))
		log.Warn("stream order violation", "event", event, "state", stateName(s.state))
		return err
	}

	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", event, err)
	}
	if _, err := io.WriteString(s.w, formatEvent(event, data)); err != nil {
		return err
	}
	s.flush.Flush()
	s.state = next
	return nil
}

func stateName(state int) string {
	switch state {
	case streamOpen:
		return "open"
	case streamFinished:
		return "finished"
	default:
		return "closed"
	}
}

// formatEvent renders one SSE frame. Payload lines each get their own data
// field so embedded newlines survive the framing.
func formatEvent(event string, data []byte) string {
	var b strings.Builder
	b.WriteString("event: ")
	b.WriteString(event)
	b.WriteByte('\n')
	for _, line := range strings.Split(string(data), "\n") {
		b.WriteString("data: ")
		b.WriteString(line)
		b.WriteByte('\n')
	}
	b.WriteByte('\n')
	return b.String()
}
