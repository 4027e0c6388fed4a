package model

import (
	"context"

	"github.com/nstogner/forge/pkg/domain"
)

// Request is a single completion call. It is built per call and never stored.
type Request struct {
	// Model identifies which model to use (e.g. "gemini-2.0-flash").
	Model string
	// System is the system prompt.
	System string
	// Messages is the ordered conversation context.
	Messages []domain.Message
	// Temperature is nil when the caller has no preference. A pointer keeps
	// an explicit zero distinguishable from "unset".
	Temperature *float64
	// MaxTokens is zero when the caller has no preference.
	MaxTokens int
}

// Completion is a finished, non-streaming response.
type Completion struct {
	Text  string
	Usage domain.Usage
}

// Provider represents a service that provides LLMs (e.g. Gemini, OpenAI).
type Provider interface {
	// Name returns the provider's identifier (e.g. "gemini", "openai").
	Name() string

	// List returns the available models from this provider.
	List(ctx context.Context) ([]domain.Model, error)

	// Complete sends the request and blocks until the full response is available.
	Complete(ctx context.Context, req Request) (*Completion, error)

	// Stream sends the request and returns an incremental response.
	Stream(ctx context.Context, req Request) (ModelStream, error)
}

// ModelStream abstracts the incremental response of a provider. Every
// backend reduces its native shape to plain text deltas.
type ModelStream interface {
	// Recv returns the next piece of newly produced text. It returns io.EOF
	// once the response is complete. A delta may be empty.
	Recv() (string, error)

	// Close releases resources associated with this stream.
	Close() error
}

// Float returns a pointer to v, for Request.Temperature.
func Float(v float64) *float64 { return &v }

// UserText builds a single user message request body.
func UserText(text string) []domain.Message {
	return []domain.Message{{Role: domain.RoleUser, Text: text}}
}
