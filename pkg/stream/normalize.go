package stream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/nstogner/forge/pkg/artifact"
	"github.com/nstogner/forge/pkg/domain"
	"github.com/nstogner/forge/pkg/model"
)

// SinkError reports that the sink itself rejected an event. No further
// events can be delivered once it occurs.
type SinkError struct {
	Err error
}

func (e *SinkError) Error() string { return "stream sink: " + e.Err.Error() }
func (e *SinkError) Unwrap() error { return e.Err }

// Normalize drains ms into sink as start, one chunk per non-empty delta,
// then complete carrying the extracted and signed artifact. Any failure of
// the provider stream, including ctx cancellation, ends the stream with an
// error event instead, and is also returned. Normalize closes ms.
func Normalize(ctx context.Context, ms model.ModelStream, sink Sink) (*domain.Artifact, error) {
	defer ms.Close()

	if err := sink.Send(ctx, Start()); err != nil {
		return nil, &SinkError{Err: err}
	}

	var text strings.Builder
	for {
		if err := ctx.Err(); err != nil {
			return nil, fail(sink, err)
		}
		delta, err := ms.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fail(sink, err)
		}
		if delta == "" {
			continue
		}
		text.WriteString(delta)
		if err := sink.Send(ctx, Chunk(delta)); err != nil {
			return nil, &SinkError{Err: err}
		}
	}

	art := artifact.Build(text.String())
	if err := sink.Send(ctx, Complete(art)); err != nil {
		return nil, &SinkError{Err: err}
	}
	return art, nil
}

// fail emits the terminal error event. The context may already be done, so
// the event is sent on a context that is not.
func fail(sink Sink, cause error) error {
	if err := sink.Send(context.Background(), Error(cause.Error())); err != nil {
		return &SinkError{Err: errors.Join(cause, err)}
	}
	return fmt.Errorf("stream: %w", cause)
}
