// Package generate turns generation requests into signed artifacts, retrying
// once on a fallback model when the requested one fails.
package generate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/nstogner/forge/pkg/config"
	"github.com/nstogner/forge/pkg/domain"
	"github.com/nstogner/forge/pkg/model"
	"github.com/nstogner/forge/pkg/prompt"
)

// Client is the model surface used by the generator. *model.Registry
// satisfies it.
type Client interface {
	Complete(ctx context.Context, req model.Request) (*model.Completion, error)
	Stream(ctx context.Context, req model.Request) (model.ModelStream, error)
}

// Result is the outcome of a successful attempt. Exactly one of Completion
// and Stream is set, depending on whether streaming was requested.
type Result struct {
	// Model is the model that answered.
	Model      string
	Completion *model.Completion
	Stream     model.ModelStream
}

// Generator runs completions against an ordered list of model attempts.
type Generator struct {
	client Client
	models config.ModelsConfig
	flags  *config.Flags
}

// NewGenerator creates a generator. flags may be nil.
func NewGenerator(client Client, models config.ModelsConfig, flags *config.Flags) *Generator {
	return &Generator{client: client, models: models, flags: flags}
}

// Attempts returns the models tried for modelID, in order: the requested
// model (or the default, or the vanilla model when forced) then the fallback.
func (g *Generator) Attempts(modelID string) []string {
	first := modelID
	if first == "" {
		first = g.models.Default
	}
	if g.flags.ForceVanilla() && g.models.Vanilla != "" {
		first = g.models.Vanilla
	}
	return []string{first, g.models.Fallback}
}

// Complete runs one blocking generation against modelID.
func (g *Generator) Complete(ctx context.Context, text, modelID string) (*model.Completion, error) {
	return g.client.Complete(ctx, request(text, modelID))
}

// Stream opens one streaming generation against modelID.
func (g *Generator) Stream(ctx context.Context, text, modelID string) (model.ModelStream, error) {
	return g.client.Stream(ctx, request(text, modelID))
}

// GenerateWithFallback tries each model from Attempts in turn and returns the
// first success. There is exactly one retry. When streaming, only opening
// the stream is retried; failures after the first delta belong to the
// caller.
func (g *Generator) GenerateWithFallback(ctx context.Context, text, modelID string, stream bool) (*Result, error) {
	return firstSuccess(ctx, "generation", g.Attempts(modelID), func(id string) (*Result, error) {
		if stream {
			s, err := g.Stream(ctx, text, id)
			if err != nil {
				return nil, err
			}
			return &Result{Model: id, Stream: s}, nil
		}
		c, err := g.Complete(ctx, text, id)
		if err != nil {
			return nil, err
		}
		return &Result{Model: id, Completion: c}, nil
	})
}

// DescribeImage asks the primary vision model, then the secondary one, for
// a textual description of img. When both fail the joined error is
// returned.
func (g *Generator) DescribeImage(ctx context.Context, img *domain.Image) (string, error) {
	attempts := []string{g.models.VisionPrimary, g.models.VisionSecondary}
	c, err := firstSuccess(ctx, "vision", attempts, func(id string) (*model.Completion, error) {
		return g.client.Complete(ctx, model.Request{
			Model: id,
			Messages: []domain.Message{{
				Role:  domain.RoleUser,
				Text:  prompt.DescribeImage,
				Image: img,
			}},
		})
	})
	if err != nil {
		return "", err
	}
	return c.Text, nil
}

// firstSuccess calls try for each model id until one succeeds.
func firstSuccess[T any](ctx context.Context, what string, attempts []string, try func(id string) (T, error)) (T, error) {
	var (
		zero T
		errs []error
	)
	for i, id := range attempts {
		if id == "" {
			continue
		}
		v, err := try(id)
		if err == nil {
			if i > 0 {
				slog.Info("Fallback model succeeded", "kind", what, "model", id, "attempt", i+1)
			}
			return v, nil
		}
		slog.Warn("Model attempt failed", "kind", what, "model", id, "attempt", i+1, "error", err)
		errs = append(errs, fmt.Errorf("%s: %w", id, err))
		if ctx.Err() != nil {
			break
		}
	}
	if len(errs) == 0 {
		return zero, fmt.Errorf("%s: no model configured", what)
	}
	return zero, fmt.Errorf("%s failed: %w", what, errors.Join(errs...))
}

func request(text, modelID string) model.Request {
	return model.Request{
		Model:    modelID,
		System:   prompt.GenerateSystem,
		Messages: model.UserText(text),
	}
}
