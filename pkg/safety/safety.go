// Package safety classifies prompts with a moderation model before
// generation.
package safety

import (
	"context"
	"log/slog"
	"strings"

	"github.com/nstogner/forge/pkg/model"
)

// DefaultMaxTokens is the output budget for a verdict.
const DefaultMaxTokens = 10

// Completer is the subset of the model registry used by the gate.
type Completer interface {
	Complete(ctx context.Context, req model.Request) (*model.Completion, error)
}

// Verdict is the outcome of a check. Category is set only when unsafe.
type Verdict struct {
	Safe     bool   `json:"safe"`
	Category string `json:"category,omitempty"`
}

// Gate checks prompts against a moderation model. It fails open: when the
// moderation call errors, the prompt is treated as safe.
type Gate struct {
	client    Completer
	model     string
	maxTokens int
}

// New creates a gate. An empty modelID disables moderation.
func New(client Completer, modelID string) *Gate {
	return &Gate{client: client, model: modelID, maxTokens: DefaultMaxTokens}
}

// Check classifies prompt.
func (g *Gate) Check(ctx context.Context, prompt string) Verdict {
	if g == nil || g.client == nil || g.model == "" {
		return Verdict{Safe: true}
	}
	c, err := g.client.Complete(ctx, model.Request{
		Model:       g.model,
		Messages:    model.UserText(prompt),
		Temperature: model.Float(0),
		MaxTokens:   g.maxTokens,
	})
	if err != nil {
		slog.Warn("Content safety check failed, allowing request", "model", g.model, "error", err)
		return Verdict{Safe: true}
	}
	return ParseVerdict(c.Text)
}

// ParseVerdict reads the first line as the verdict token and, for unsafe
// verdicts, the second line as the category. Unrecognized output is safe.
func ParseVerdict(text string) Verdict {
	var lines []string
	for _, l := range strings.Split(text, "\n") {
		if l = strings.TrimSpace(l); l != "" {
			lines = append(lines, l)
		}
	}
	if len(lines) == 0 {
		return Verdict{Safe: true}
	}
	switch strings.ToLower(lines[0]) {
	case "unsafe":
		v := Verdict{Safe: false}
		if len(lines) > 1 {
			v.Category = lines[1]
		}
		return v
	case "safe":
		return Verdict{Safe: true}
	default:
		slog.Warn("Unrecognized moderation verdict, allowing request", "verdict", lines[0])
		return Verdict{Safe: true}
	}
}
