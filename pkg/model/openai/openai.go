// Package openai implements model.Provider against any OpenAI-compatible
// chat completions endpoint.
package openai

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/nstogner/forge/pkg/domain"
	"github.com/nstogner/forge/pkg/model"
	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"
)

// Provider implements model.Provider using the OpenAI Go SDK.
type Provider struct {
	client oai.Client
}

// Verify interface compliance.
var _ model.Provider = (*Provider)(nil)

// New creates a provider. An empty baseURL keeps the SDK default.
func New(apiKey, baseURL string, opts ...option.RequestOption) *Provider {
	reqOpts := []option.RequestOption{option.WithAPIKey(strings.TrimSpace(apiKey))}
	if u := strings.TrimSpace(baseURL); u != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(u))
	}
	reqOpts = append(reqOpts, opts...)
	return &Provider{client: oai.NewClient(reqOpts...)}
}

// Name returns the provider identifier.
func (p *Provider) Name() string { return model.ProviderOpenAI }

// List returns the models advertised by the endpoint.
func (p *Provider) List(ctx context.Context) ([]domain.Model, error) {
	var models []domain.Model
	iter := p.client.Models.ListAutoPaging(ctx)
	for iter.Next() {
		m := iter.Current()
		models = append(models, domain.Model{
			ID:       m.ID,
			Name:     m.ID,
			Provider: model.ProviderOpenAI,
		})
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("listing models: %w", err)
	}
	return models, nil
}

// Complete runs a blocking chat completion.
func (p *Provider) Complete(ctx context.Context, req model.Request) (*model.Completion, error) {
	slog.Debug("OpenAI.Complete", "model", req.Model, "messageCount", len(req.Messages))

	resp, err := p.client.Chat.Completions.New(ctx, buildParams(req))
	if err != nil {
		return nil, err
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("model %q returned no choices", req.Model)
	}
	return &model.Completion{
		Text: resp.Choices[0].Message.Content,
		Usage: domain.Usage{
			PromptTokens:     int(resp.Usage.PromptTokens),
			CompletionTokens: int(resp.Usage.CompletionTokens),
			TotalTokens:      int(resp.Usage.TotalTokens),
		},
	}, nil
}

// Stream opens a server-sent-events chat completion. Every network message
// carries a discrete text delta.
func (p *Provider) Stream(ctx context.Context, req model.Request) (model.ModelStream, error) {
	slog.Debug("OpenAI.Stream", "model", req.Model, "messageCount", len(req.Messages))

	s := p.client.Chat.Completions.NewStreaming(ctx, buildParams(req))
	// Connection errors surface on the stream before the first event.
	if err := s.Err(); err != nil {
		_ = s.Close()
		return nil, err
	}
	return newDeltaStream(s), nil
}

func buildParams(req model.Request) oai.ChatCompletionNewParams {
	params := oai.ChatCompletionNewParams{
		Model:    shared.ChatModel(req.Model),
		Messages: buildMessages(req.System, req.Messages),
	}
	if req.Temperature != nil {
		params.Temperature = oai.Float(*req.Temperature)
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = oai.Int(int64(req.MaxTokens))
	}
	return params
}

func buildMessages(system string, messages []domain.Message) []oai.ChatCompletionMessageParamUnion {
	out := make([]oai.ChatCompletionMessageParamUnion, 0, len(messages)+1)
	if s := strings.TrimSpace(system); s != "" {
		out = append(out, oai.SystemMessage(s))
	}
	for _, msg := range messages {
		switch msg.Role {
		case domain.RoleSystem:
			out = append(out, oai.SystemMessage(msg.Text))
		case domain.RoleAssistant:
			out = append(out, oai.AssistantMessage(msg.Text))
		default:
			if msg.Image == nil {
				out = append(out, oai.UserMessage(msg.Text))
				continue
			}
			parts := []oai.ChatCompletionContentPartUnionParam{}
			if msg.Text != "" {
				parts = append(parts, oai.TextContentPart(msg.Text))
			}
			parts = append(parts, oai.ImageContentPart(oai.ChatCompletionContentPartImageImageURLParam{
				URL: msg.Image.DataURL(),
			}))
			out = append(out, oai.UserMessage(parts))
		}
	}
	return out
}

// chunkSource is the subset of the SDK's ssestream.Stream used here.
type chunkSource interface {
	Next() bool
	Current() oai.ChatCompletionChunk
	Err() error
	Close() error
}

// deltaStream adapts the chat completion event stream to model.ModelStream.
type deltaStream struct {
	src  chunkSource
	done bool
}

func newDeltaStream(src chunkSource) *deltaStream {
	return &deltaStream{src: src}
}

func (s *deltaStream) Recv() (string, error) {
	if s.done {
		return "", io.EOF
	}
	if !s.src.Next() {
		s.done = true
		if err := s.src.Err(); err != nil {
			return "", err
		}
		return "", io.EOF
	}
	chunk := s.src.Current()
	var b strings.Builder
	for _, choice := range chunk.Choices {
		b.WriteString(choice.Delta.Content)
	}
	return b.String(), nil
}

func (s *deltaStream) Close() error {
	return s.src.Close()
}
