package gemini

import (
	"errors"
	"io"
	"iter"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"

	"github.com/nstogner/forge/pkg/domain"
	"github.com/nstogner/forge/pkg/model"
)

func textResp(text string) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{Content: &genai.Content{Parts: []*genai.Part{{Text: text}}}}},
	}
}

func seqOf(segments []string, tail error) iter.Seq2[*genai.GenerateContentResponse, error] {
	return func(yield func(*genai.GenerateContentResponse, error) bool) {
		for _, s := range segments {
			if !yield(textResp(s), nil) {
				return
			}
		}
		if tail != nil {
			yield(nil, tail)
		}
	}
}

func collect(t *testing.T, s model.ModelStream) ([]string, error) {
	t.Helper()
	var out []string
	for {
		d, err := s.Recv()
		if err != nil {
			return out, err
		}
		out = append(out, d)
	}
}

func TestChunkedStreamIncremental(t *testing.T) {
	s := newChunkedStream(seqOf([]string{"<di", "v>", "</div>"}, nil), segmentsDelta, nil)
	defer s.Close()

	deltas, err := collect(t, s)
	assert.ErrorIs(t, err, io.EOF)
	assert.Equal(t, []string{"<di", "v>", "</div>"}, deltas)
}

func TestChunkedStreamDeltaKeepsRepeatedPrefix(t *testing.T) {
	// Each chunk starts with all text so far; in delta mode nothing is trimmed.
	s := newChunkedStream(seqOf([]string{"\n", "\n<div>Todo</div>"}, nil), segmentsDelta, nil)
	defer s.Close()

	deltas, err := collect(t, s)
	assert.ErrorIs(t, err, io.EOF)
	assert.Equal(t, "\n\n<div>Todo</div>", strings.Join(deltas, ""))
}

func TestChunkedStreamDeltaRepeatedChunk(t *testing.T) {
	s := newChunkedStream(seqOf([]string{"ha", "ha"}, nil), segmentsDelta, nil)
	defer s.Close()

	deltas, err := collect(t, s)
	assert.ErrorIs(t, err, io.EOF)
	assert.Equal(t, "haha", strings.Join(deltas, ""))
}

func TestChunkedStreamCumulative(t *testing.T) {
	s := newChunkedStream(seqOf([]string{"<di", "<div>", "<div>", "<div></div>"}, nil), segmentsCumulative, nil)
	defer s.Close()

	deltas, err := collect(t, s)
	assert.ErrorIs(t, err, io.EOF)
	assert.Equal(t, []string{"<di", "v>", "", "</div>"}, deltas)
	assert.Equal(t, "<div></div>", strings.Join(deltas, ""))
}

func TestChunkedStreamCumulativeRestart(t *testing.T) {
	s := newChunkedStream(seqOf([]string{"abc", "xyz"}, nil), segmentsCumulative, nil)
	defer s.Close()

	deltas, err := collect(t, s)
	assert.ErrorIs(t, err, io.EOF)
	assert.Equal(t, []string{"abc", "xyz"}, deltas)
}

func TestChunkedStreamError(t *testing.T) {
	boom := errors.New("quota exceeded")
	cancelled := false
	s := newChunkedStream(seqOf([]string{"a"}, boom), segmentsDelta, func() { cancelled = true })

	deltas, err := collect(t, s)
	assert.Equal(t, []string{"a"}, deltas)
	assert.ErrorIs(t, err, boom)

	_, err = s.Recv()
	assert.ErrorIs(t, err, io.EOF)

	require.NoError(t, s.Close())
	assert.True(t, cancelled)
}

func TestBuildContents(t *testing.T) {
	req := model.Request{
		Model:       "gemini-2.0-flash",
		System:      "be brief",
		Temperature: model.Float(0),
		MaxTokens:   64,
		Messages: []domain.Message{
			{Role: domain.RoleSystem, Text: "no markdown"},
			{Role: domain.RoleUser, Text: "what is this", Image: &domain.Image{MIMEType: "image/jpeg", Data: []byte("jpg")}},
			{Role: domain.RoleAssistant, Text: "a cat"},
		},
	}
	contents, config := buildContents(req)

	require.NotNil(t, config.Temperature)
	assert.Equal(t, float32(0), *config.Temperature)
	assert.Equal(t, int32(64), config.MaxOutputTokens)
	require.NotNil(t, config.SystemInstruction)
	assert.Equal(t, "be brief\n\nno markdown", config.SystemInstruction.Parts[0].Text)

	require.Len(t, contents, 2)
	assert.Equal(t, "user", contents[0].Role)
	require.Len(t, contents[0].Parts, 2)
	require.NotNil(t, contents[0].Parts[1].InlineData)
	assert.Equal(t, "image/jpeg", contents[0].Parts[1].InlineData.MIMEType)
	assert.Equal(t, "model", contents[1].Role)
}

func TestResponseTextSkipsThoughts(t *testing.T) {
	resp := &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{Content: &genai.Content{Parts: []*genai.Part{
			{Text: "thinking...", Thought: true},
			{Text: "answer"},
		}}}},
	}
	assert.Equal(t, "answer", responseText(resp))
	assert.Equal(t, "", responseText(nil))
}
