package generate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/nstogner/forge/pkg/artifact"
	"github.com/nstogner/forge/pkg/config"
	"github.com/nstogner/forge/pkg/domain"
	"github.com/nstogner/forge/pkg/history"
	"github.com/nstogner/forge/pkg/prompt"
	"github.com/nstogner/forge/pkg/safety"
	"github.com/nstogner/forge/pkg/stream"
)

var (
	// ErrMaintenance is returned while the maintenance flag is set.
	ErrMaintenance = errors.New("generation is temporarily unavailable for maintenance")
	// ErrNoQuery is returned when a request carries nothing to generate from.
	ErrNoQuery = errors.New("query, feedback or drawing is required")
	// ErrInvalidDrawing is returned when drawing data cannot be decoded.
	ErrInvalidDrawing = errors.New("invalid drawing")
)

// UnsafeContentError reports a moderation rejection.
type UnsafeContentError struct {
	Category string
}

func (e *UnsafeContentError) Error() string {
	if e.Category == "" {
		return "request rejected by content moderation"
	}
	return "request rejected by content moderation: " + e.Category
}

// Request is the input of a generation.
type Request struct {
	Query       string `json:"query,omitempty"`
	CurrentHTML string `json:"currentHtml,omitempty"`
	Feedback    string `json:"feedback,omitempty"`
	Theme       string `json:"theme,omitempty"`
	// DrawingData is a data URL (or bare base64 PNG) of a UI sketch.
	DrawingData string `json:"drawingData,omitempty"`
	Model       string `json:"model,omitempty"`
	Stream      bool   `json:"stream,omitempty"`
}

// Response is the result of a non-streaming generation.
type Response struct {
	HTML      string       `json:"html"`
	Signature string       `json:"signature"`
	Usage     domain.Usage `json:"usage"`
	Model     string       `json:"model"`
}

// Service implements the generation endpoint on top of a Generator.
type Service struct {
	gen     *Generator
	gate    *safety.Gate
	history history.Log
	flags   *config.Flags
}

// NewService creates a Service. gate, hist and flags may be nil.
func NewService(gen *Generator, gate *safety.Gate, hist history.Log, flags *config.Flags) *Service {
	return &Service{gen: gen, gate: gate, history: hist, flags: flags}
}

// Generator returns the underlying generator.
func (s *Service) Generator() *Generator { return s.gen }

// Generate produces a signed artifact for req.
func (s *Service) Generate(ctx context.Context, req Request) (*Response, error) {
	text, err := s.prepare(ctx, req)
	if err != nil {
		return nil, err
	}

	res, err := s.gen.GenerateWithFallback(ctx, text, req.Model, false)
	if err != nil {
		s.record(ctx, req, "", nil)
		return nil, err
	}
	art := artifact.Build(res.Completion.Text)
	s.record(ctx, req, res.Model, art)
	return &Response{
		HTML:      art.HTML,
		Signature: art.Signature,
		Usage:     res.Completion.Usage,
		Model:     res.Model,
	}, nil
}

// GenerateStream produces the artifact for req as a stream of events written
// to sink. Errors raised before any event is written (maintenance, moderation,
// invalid input) are returned without touching sink; once streaming has
// started every failure ends the stream with an error event.
func (s *Service) GenerateStream(ctx context.Context, req Request, sink stream.Sink) error {
	text, err := s.prepare(ctx, req)
	if err != nil {
		return err
	}

	res, err := s.gen.GenerateWithFallback(ctx, text, req.Model, true)
	if err != nil {
		s.record(ctx, req, "", nil)
		if sendErr := sink.Send(ctx, stream.Start()); sendErr != nil {
			return &stream.SinkError{Err: sendErr}
		}
		if sendErr := sink.Send(context.Background(), stream.Error(err.Error())); sendErr != nil {
			return &stream.SinkError{Err: sendErr}
		}
		return err
	}

	art, err := stream.Normalize(ctx, res.Stream, sink)
	s.record(ctx, req, res.Model, art)
	return err
}

// prepare runs every check that precedes a model call and returns the prompt.
func (s *Service) prepare(ctx context.Context, req Request) (string, error) {
	if s.flags.Maintenance() {
		return "", ErrMaintenance
	}
	if strings.TrimSpace(req.Query) == "" && strings.TrimSpace(req.Feedback) == "" && req.DrawingData == "" {
		return "", ErrNoQuery
	}

	query := req.Query
	if req.DrawingData != "" {
		img, err := domain.ParseDataURL(req.DrawingData)
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrInvalidDrawing, err)
		}
		desc, err := s.gen.DescribeImage(ctx, img)
		if err != nil {
			return "", fmt.Errorf("describing drawing: %w", err)
		}
		query = strings.TrimSpace(query + "\n\nSketch description:\n" + desc)
	}

	text := prompt.Build(prompt.Fields{
		Query:       query,
		CurrentHTML: req.CurrentHTML,
		Feedback:    req.Feedback,
		Theme:       req.Theme,
	})

	if v := s.gate.Check(ctx, text); !v.Safe {
		slog.Info("Request rejected by moderation", "category", v.Category)
		return "", &UnsafeContentError{Category: v.Category}
	}
	return text, nil
}

func (s *Service) record(ctx context.Context, req Request, modelID string, art *domain.Artifact) {
	if s.history == nil {
		return
	}
	entry := &domain.HistoryEntry{
		Kind:    domain.HistoryGeneration,
		Model:   modelID,
		Summary: summarize(req),
		Success: art != nil,
	}
	if art != nil {
		entry.Signature = art.Signature
	}
	// The request context may be done by now; the log entry still matters.
	if err := s.history.Append(context.WithoutCancel(ctx), entry); err != nil {
		slog.Warn("Failed to record history", "error", err)
	}
}

func summarize(req Request) string {
	s := strings.TrimSpace(req.Query)
	if s == "" {
		s = strings.TrimSpace(req.Feedback)
	}
	if s == "" && req.DrawingData != "" {
		s = "(drawing)"
	}
	if r := []rune(s); len(r) > 120 {
		s = string(r[:120]) + "..."
	}
	return s
}
