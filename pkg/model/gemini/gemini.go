package gemini

import (
	"context"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"strings"

	"github.com/nstogner/forge/pkg/domain"
	"github.com/nstogner/forge/pkg/model"
	"google.golang.org/genai"
)

// Provider implements model.Provider using the Google Gen AI SDK.
type Provider struct {
	client *genai.Client
}

// Verify interface compliance.
var _ model.Provider = (*Provider)(nil)

// New creates a new Gemini provider.
func New(ctx context.Context, apiKey string) (*Provider, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}
	return &Provider{client: client}, nil
}

// Name returns the provider identifier.
func (p *Provider) Name() string { return model.ProviderGemini }

// List returns available Gemini models.
func (p *Provider) List(ctx context.Context) ([]domain.Model, error) {
	var models []domain.Model
	for m, err := range p.client.Models.All(ctx) {
		if err != nil {
			return nil, err
		}
		if !supportsGenerate(m) {
			continue
		}
		models = append(models, domain.Model{
			ID:        strings.TrimPrefix(m.Name, "models/"),
			Name:      m.DisplayName,
			Provider:  model.ProviderGemini,
			MaxTokens: int(m.OutputTokenLimit),
		})
	}
	return models, nil
}

func supportsGenerate(m *genai.Model) bool {
	if strings.Contains(strings.ToLower(m.Name), "gemma") {
		return false
	}
	for _, action := range m.SupportedActions {
		if action == "generateContent" {
			return true
		}
	}
	return false
}

// Complete runs a blocking generation.
func (p *Provider) Complete(ctx context.Context, req model.Request) (*model.Completion, error) {
	slog.Debug("Gemini.Complete", "model", req.Model, "messageCount", len(req.Messages))

	contents, config := buildContents(req)
	resp, err := p.client.Models.GenerateContent(ctx, req.Model, contents, config)
	if err != nil {
		return nil, err
	}
	c := &model.Completion{Text: responseText(resp)}
	if u := resp.UsageMetadata; u != nil {
		c.Usage = domain.Usage{
			PromptTokens:     int(u.PromptTokenCount),
			CompletionTokens: int(u.CandidatesTokenCount),
			TotalTokens:      int(u.TotalTokenCount),
		}
	}
	return c, nil
}

// Stream opens a streaming generation. The SDK yields whole response
// objects; the returned stream reduces them to text deltas.
func (p *Provider) Stream(ctx context.Context, req model.Request) (model.ModelStream, error) {
	slog.Debug("Gemini.Stream", "model", req.Model, "messageCount", len(req.Messages))

	contents, config := buildContents(req)
	streamCtx, cancel := context.WithCancel(ctx)
	seq := p.client.Models.GenerateContentStream(streamCtx, req.Model, contents, config)
	return newChunkedStream(seq, segmentsDelta, cancel), nil
}

func buildContents(req model.Request) ([]*genai.Content, *genai.GenerateContentConfig) {
	config := &genai.GenerateContentConfig{}
	if req.Temperature != nil {
		config.Temperature = genai.Ptr(float32(*req.Temperature))
	}
	if req.MaxTokens > 0 {
		config.MaxOutputTokens = int32(req.MaxTokens)
	}

	system := req.System
	var contents []*genai.Content
	for _, msg := range req.Messages {
		if msg.Role == domain.RoleSystem {
			// Folded into the system instruction.
			system = strings.TrimSpace(system + "\n\n" + msg.Text)
			continue
		}
		var parts []*genai.Part
		if msg.Text != "" {
			parts = append(parts, &genai.Part{Text: msg.Text})
		}
		if msg.Image != nil {
			parts = append(parts, &genai.Part{
				InlineData: &genai.Blob{MIMEType: msg.Image.MIMEType, Data: msg.Image.Data},
			})
		}
		if len(parts) == 0 {
			continue
		}
		role := "user"
		if msg.Role == domain.RoleAssistant {
			role = "model"
		}
		contents = append(contents, &genai.Content{Role: role, Parts: parts})
	}
	if system != "" {
		config.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: system}}}
	}
	return contents, config
}

func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil {
		return ""
	}
	var b strings.Builder
	for _, cand := range resp.Candidates {
		if cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if part.Thought {
				continue
			}
			b.WriteString(part.Text)
		}
		// Only the first candidate is used.
		break
	}
	return b.String()
}

// segmentMode says how successive stream segments relate to each other.
type segmentMode int

const (
	// segmentsDelta segments are incremental chunks, as GenerateContentStream
	// yields them.
	segmentsDelta segmentMode = iota
	// segmentsCumulative segments repeat all text so far plus the new suffix.
	segmentsCumulative
)

// chunkedStream wraps the Gemini streaming iterator and reduces its segments
// to text deltas according to mode.
type chunkedStream struct {
	next   func() (*genai.GenerateContentResponse, error, bool)
	stop   func()
	cancel context.CancelFunc
	mode   segmentMode
	acc    strings.Builder
	done   bool
}

func newChunkedStream(seq iter.Seq2[*genai.GenerateContentResponse, error], mode segmentMode, cancel context.CancelFunc) *chunkedStream {
	next, stop := iter.Pull2(seq)
	return &chunkedStream{next: next, stop: stop, cancel: cancel, mode: mode}
}

func (s *chunkedStream) Recv() (string, error) {
	if s.done {
		return "", io.EOF
	}
	resp, err, ok := s.next()
	if !ok {
		s.done = true
		return "", io.EOF
	}
	if err != nil {
		s.done = true
		return "", err
	}
	seg := responseText(resp)
	if s.mode == segmentsDelta {
		return seg, nil
	}

	delta := seg
	if acc := s.acc.String(); strings.HasPrefix(seg, acc) {
		delta = seg[len(acc):]
	} else {
		// The backend restarted the text; emit it whole.
		slog.Warn("Cumulative segment does not extend previous text", "accumulated", len(acc), "segment", len(seg))
	}
	s.acc.WriteString(delta)
	return delta, nil
}

func (s *chunkedStream) Close() error {
	s.stop()
	if s.cancel != nil {
		s.cancel()
	}
	return nil
}
