package generate

import (
	"context"
	"encoding/base64"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nstogner/forge/pkg/artifact"
	"github.com/nstogner/forge/pkg/config"
	"github.com/nstogner/forge/pkg/domain"
	"github.com/nstogner/forge/pkg/history"
	"github.com/nstogner/forge/pkg/model"
	"github.com/nstogner/forge/pkg/model/modeltest"
	"github.com/nstogner/forge/pkg/safety"
	"github.com/nstogner/forge/pkg/stream"
)

var testModels = config.ModelsConfig{
	Default:         "primary",
	Fallback:        "backup",
	Vanilla:         "vanilla",
	Safety:          "guard",
	VisionPrimary:   "eyes",
	VisionSecondary: "eyes-backup",
}

type fixture struct {
	fake    *modeltest.Provider
	flags   *config.Flags
	history *history.Ring
	gen     *Generator
	svc     *Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	fake := modeltest.New(model.ProviderOpenAI)
	fake.On("guard", modeltest.Reply{Text: "safe"})

	reg := model.NewRegistry(nil)
	reg.Register(fake)

	flags := config.NewFlags(config.FlagsConfig{})
	hist := history.NewRing(10)
	gen := NewGenerator(reg, testModels, flags)
	return &fixture{
		fake:    fake,
		flags:   flags,
		history: hist,
		gen:     gen,
		svc:     NewService(gen, safety.New(reg, testModels.Safety), hist, flags),
	}
}

const todoHTML = "```html\n<div>Todo</div>\n```"

func TestGenerateWithFallbackUsesRequestedModel(t *testing.T) {
	f := newFixture(t)
	f.fake.On("primary", modeltest.Reply{Text: "one"})

	res, err := f.gen.GenerateWithFallback(context.Background(), "p", "", false)
	require.NoError(t, err)
	assert.Equal(t, "primary", res.Model)
	assert.Equal(t, "one", res.Completion.Text)
	assert.Equal(t, 0, f.fake.CallsFor("backup"))
}

func TestGenerateWithFallbackRetriesOnce(t *testing.T) {
	f := newFixture(t)
	f.fake.On("primary", modeltest.Reply{Err: errors.New("rate limited")})
	f.fake.On("backup", modeltest.Reply{Text: "from backup"})

	res, err := f.gen.GenerateWithFallback(context.Background(), "p", "primary", false)
	require.NoError(t, err)
	assert.Equal(t, "backup", res.Model)
	assert.Equal(t, "from backup", res.Completion.Text)
	assert.Equal(t, 1, f.fake.CallsFor("primary"))
	assert.Equal(t, 1, f.fake.CallsFor("backup"))
}

func TestGenerateWithFallbackBothFail(t *testing.T) {
	f := newFixture(t)
	f.fake.On("primary", modeltest.Reply{Err: errors.New("boom")})
	f.fake.On("backup", modeltest.Reply{Err: errors.New("also boom")})

	_, err := f.gen.GenerateWithFallback(context.Background(), "p", "primary", true)
	require.Error(t, err)
	assert.ErrorContains(t, err, "primary: boom")
	assert.ErrorContains(t, err, "backup: also boom")
	assert.Equal(t, 1, f.fake.CallsFor("primary"))
	assert.Equal(t, 1, f.fake.CallsFor("backup"))
}

func TestForceVanillaOverridesRequestedModel(t *testing.T) {
	f := newFixture(t)
	f.flags.Set(config.FlagsConfig{ForceVanilla: true})
	f.fake.On("vanilla", modeltest.Reply{Err: errors.New("down")})
	f.fake.On("backup", modeltest.Reply{Text: "ok"})

	assert.Equal(t, []string{"vanilla", "backup"}, f.gen.Attempts("fancy"))

	res, err := f.gen.GenerateWithFallback(context.Background(), "p", "fancy", false)
	require.NoError(t, err)
	// Fallback still applies under force-vanilla.
	assert.Equal(t, "backup", res.Model)
	assert.Equal(t, 0, f.fake.CallsFor("fancy"))
}

func TestDescribeImage(t *testing.T) {
	img := &domain.Image{MIMEType: "image/png", Data: []byte{1, 2, 3}}

	t.Run("secondary after primary fails", func(t *testing.T) {
		f := newFixture(t)
		f.fake.On("eyes", modeltest.Reply{Err: errors.New("no vision today")})
		f.fake.On("eyes-backup", modeltest.Reply{Text: "a login form"})

		desc, err := f.gen.DescribeImage(context.Background(), img)
		require.NoError(t, err)
		assert.Equal(t, "a login form", desc)

		calls := f.fake.Calls()
		require.Len(t, calls, 2)
		require.Len(t, calls[1].Messages, 1)
		assert.Equal(t, img, calls[1].Messages[0].Image)
	})

	t.Run("fails closed", func(t *testing.T) {
		f := newFixture(t)
		f.fake.On("eyes", modeltest.Reply{Err: errors.New("a")})
		f.fake.On("eyes-backup", modeltest.Reply{Err: errors.New("b")})

		_, err := f.gen.DescribeImage(context.Background(), img)
		assert.Error(t, err)
	})
}

func TestServiceGenerate(t *testing.T) {
	f := newFixture(t)
	f.fake.On("primary", modeltest.Reply{Text: todoHTML, Usage: domain.Usage{TotalTokens: 7}})

	resp, err := f.svc.Generate(context.Background(), Request{Query: "todo app"})
	require.NoError(t, err)
	assert.Equal(t, &Response{
		HTML:      "<div>Todo</div>",
		Signature: artifact.Sign("<div>Todo</div>"),
		Usage:     domain.Usage{TotalTokens: 7},
		Model:     "primary",
	}, resp)

	entries, err := f.history.List(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.True(t, entries[0].Success)
	assert.Equal(t, resp.Signature, entries[0].Signature)
	assert.Equal(t, "todo app", entries[0].Summary)
}

func TestServiceGenerateStream(t *testing.T) {
	f := newFixture(t)
	f.fake.On("primary", modeltest.Reply{Chunks: []string{"<di", "v>", "</div>"}})

	sink := &stream.SliceSink{}
	require.NoError(t, f.svc.GenerateStream(context.Background(), Request{Query: "todo app", Stream: true}, sink))

	want := []stream.Event{
		stream.Start(),
		stream.Chunk("<di"),
		stream.Chunk("v>"),
		stream.Chunk("</div>"),
		stream.Complete(&domain.Artifact{HTML: "<div></div>", Signature: artifact.Sign("<div></div>")}),
	}
	assert.Equal(t, want, sink.Events)
}

func TestStreamAndBlockingProduceSameArtifact(t *testing.T) {
	f := newFixture(t)
	f.fake.On("primary", modeltest.Reply{Chunks: []string{"Sure!\n```ht", "ml\n<p>hi</p>\n", "```\nbye"}})

	resp, err := f.svc.Generate(context.Background(), Request{Query: "hi"})
	require.NoError(t, err)

	sink := &stream.SliceSink{}
	require.NoError(t, f.svc.GenerateStream(context.Background(), Request{Query: "hi"}, sink))
	last := sink.Events[len(sink.Events)-1]

	assert.Equal(t, stream.TypeComplete, last.Type)
	assert.Equal(t, "<p>hi</p>", resp.HTML)
	assert.Equal(t, resp.HTML, last.HTML)
	assert.Equal(t, resp.Signature, last.Signature)
}

func TestServiceGenerateStreamBothFail(t *testing.T) {
	f := newFixture(t)
	f.fake.On("primary", modeltest.Reply{Err: errors.New("x")})
	f.fake.On("backup", modeltest.Reply{Err: errors.New("y")})

	sink := &stream.SliceSink{}
	err := f.svc.GenerateStream(context.Background(), Request{Query: "todo"}, sink)
	require.Error(t, err)
	require.Len(t, sink.Events, 2)
	assert.Equal(t, stream.TypeStart, sink.Events[0].Type)
	assert.Equal(t, stream.TypeError, sink.Events[1].Type)

	entries, _ := f.history.List(context.Background(), 0)
	require.Len(t, entries, 1)
	assert.False(t, entries[0].Success)
}

func TestServiceMaintenance(t *testing.T) {
	f := newFixture(t)
	f.flags.Set(config.FlagsConfig{Maintenance: true})

	_, err := f.svc.Generate(context.Background(), Request{Query: "todo"})
	assert.ErrorIs(t, err, ErrMaintenance)

	sink := &stream.SliceSink{}
	err = f.svc.GenerateStream(context.Background(), Request{Query: "todo"}, sink)
	assert.ErrorIs(t, err, ErrMaintenance)
	assert.Empty(t, sink.Events)
	assert.Empty(t, f.fake.Calls())
}

func TestServiceRejectsUnsafe(t *testing.T) {
	f := newFixture(t)
	f.fake.Replies["guard"] = []modeltest.Reply{{Text: "unsafe\nS10"}}

	_, err := f.svc.Generate(context.Background(), Request{Query: "something nasty"})
	var unsafe *UnsafeContentError
	require.ErrorAs(t, err, &unsafe)
	assert.Equal(t, "S10", unsafe.Category)
	assert.Equal(t, 0, f.fake.CallsFor("primary"))
}

func TestServiceSafetyFailsOpen(t *testing.T) {
	f := newFixture(t)
	f.fake.Replies["guard"] = []modeltest.Reply{{Err: errors.New("moderation down")}}
	f.fake.On("primary", modeltest.Reply{Text: todoHTML})

	resp, err := f.svc.Generate(context.Background(), Request{Query: "todo app"})
	require.NoError(t, err)
	assert.Equal(t, "<div>Todo</div>", resp.HTML)
}

func TestServiceNoQuery(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Generate(context.Background(), Request{Theme: "dark"})
	assert.ErrorIs(t, err, ErrNoQuery)
}

func TestServiceDrawingAppendsDescription(t *testing.T) {
	f := newFixture(t)
	f.fake.On("eyes", modeltest.Reply{Text: "two buttons side by side"})
	f.fake.On("primary", modeltest.Reply{Text: "<button>a</button>"})

	drawing := "data:image/png;base64," + base64.StdEncoding.EncodeToString([]byte("png"))
	resp, err := f.svc.Generate(context.Background(), Request{Query: "buttons", DrawingData: drawing})
	require.NoError(t, err)
	assert.Equal(t, "<button>a</button>", resp.HTML)

	var genCall *model.Request
	for _, c := range f.fake.Calls() {
		if c.Model == "primary" {
			genCall = &c
		}
	}
	require.NotNil(t, genCall)
	assert.Contains(t, genCall.Messages[0].Text, "two buttons side by side")
}

func TestServiceDrawingVisionFailure(t *testing.T) {
	f := newFixture(t)
	f.fake.On("eyes", modeltest.Reply{Err: errors.New("a")})
	f.fake.On("eyes-backup", modeltest.Reply{Err: errors.New("b")})

	_, err := f.svc.Generate(context.Background(), Request{DrawingData: "aGk="})
	require.Error(t, err)
	assert.ErrorContains(t, err, "describing drawing")
	assert.Equal(t, 0, f.fake.CallsFor("primary"))
}
