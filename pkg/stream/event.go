// Package stream normalizes provider streams into one newline-delimited
// event protocol.
package stream

import (
	"encoding/json"

	"github.com/nstogner/forge/pkg/domain"
)

// EventType tags a StreamEvent.
type EventType string

const (
	TypeStart    EventType = "start"
	TypeChunk    EventType = "chunk"
	TypeComplete EventType = "complete"
	TypeError    EventType = "error"
)

// Event is one element of a generation stream. Per request the order is
// always one start, zero or more chunks, then exactly one complete or error.
type Event struct {
	Type      EventType `json:"type"`
	Text      string    `json:"text,omitempty"`
	HTML      string    `json:"html,omitempty"`
	Signature string    `json:"signature,omitempty"`
	Message   string    `json:"message,omitempty"`
}

func Start() Event            { return Event{Type: TypeStart} }
func Chunk(text string) Event { return Event{Type: TypeChunk, Text: text} }
func Error(msg string) Event  { return Event{Type: TypeError, Message: msg} }

// Complete builds the terminal success event for art.
func Complete(art *domain.Artifact) Event {
	return Event{Type: TypeComplete, HTML: art.HTML, Signature: art.Signature}
}

// Terminal reports whether e ends a stream.
func (e Event) Terminal() bool {
	return e.Type == TypeComplete || e.Type == TypeError
}

// MarshalJSON emits exactly the fields that belong to the event's type, so
// an empty chunk or an empty document still carries its payload key.
func (e Event) MarshalJSON() ([]byte, error) {
	switch e.Type {
	case TypeChunk:
		return json.Marshal(struct {
			Type EventType `json:"type"`
			Text string    `json:"text"`
		}{e.Type, e.Text})
	case TypeComplete:
		return json.Marshal(struct {
			Type      EventType `json:"type"`
			HTML      string    `json:"html"`
			Signature string    `json:"signature"`
		}{e.Type, e.HTML, e.Signature})
	case TypeError:
		return json.Marshal(struct {
			Type    EventType `json:"type"`
			Message string    `json:"message"`
		}{e.Type, e.Message})
	default:
		return json.Marshal(struct {
			Type EventType `json:"type"`
		}{e.Type})
	}
}
