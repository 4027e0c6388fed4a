package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// Sink receives events one at a time. Send returns only once the event has
// been written; callers never issue a Send before the previous one returns.
type Sink interface {
	Send(ctx context.Context, e Event) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, e Event) error

func (f SinkFunc) Send(ctx context.Context, e Event) error { return f(ctx, e) }

// NDJSONSink writes each event as one JSON object per line.
type NDJSONSink struct {
	w       io.Writer
	enc     *json.Encoder
	flusher http.Flusher
}

// NewNDJSONSink creates a sink over w. When w is an http.Flusher every event
// is flushed to the client as soon as it is written.
func NewNDJSONSink(w io.Writer) *NDJSONSink {
	s := &NDJSONSink{w: w, enc: json.NewEncoder(w)}
	s.enc.SetEscapeHTML(false)
	if f, ok := w.(http.Flusher); ok {
		s.flusher = f
	}
	return s
}

func (s *NDJSONSink) Send(ctx context.Context, e Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	// Encode appends the trailing newline.
	if err := s.enc.Encode(e); err != nil {
		return fmt.Errorf("writing %s event: %w", e.Type, err)
	}
	if s.flusher != nil {
		s.flusher.Flush()
	}
	return nil
}

// SliceSink collects events in memory.
type SliceSink struct {
	Events []Event
}

func (s *SliceSink) Send(_ context.Context, e Event) error {
	s.Events = append(s.Events, e)
	return nil
}
