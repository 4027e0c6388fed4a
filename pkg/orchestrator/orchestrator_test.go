package orchestrator

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nstogner/forge/pkg/domain"
	"github.com/nstogner/forge/pkg/history"
	"github.com/nstogner/forge/pkg/model/modeltest"
)

func threeStepPlan() *domain.Plan {
	return &domain.Plan{
		Objectives:   "Todo app",
		Requirements: []string{"add", "remove"},
		Technologies: "HTML, JS",
		Implementation: []domain.ImplementationStep{
			{ID: "s1", Step: "Markup", Description: "index.html"},
			{ID: "s2", Step: "Styles", Description: "style.css"},
			{ID: "s3", Step: "Logic", Description: "app.js"},
		},
	}
}

func statuses(steps []domain.Step) []domain.StepStatus {
	out := make([]domain.StepStatus, len(steps))
	for i, s := range steps {
		out[i] = s.Status
	}
	return out
}

func TestExecuteAllSteps(t *testing.T) {
	fake := modeltest.New("openai").On("m",
		modeltest.Reply{Text: `Here you go <action type="file" filePath="index.html"><ul></ul></action>`},
		modeltest.Reply{Text: `<action type="file" filePath="/style.css">ul{}</action><action type="shell">npm install</action>`},
		modeltest.Reply{Text: `<action type="file" filePath="index.html"><ul id="list"></ul></action><action type="file" filePath="app.js">go()</action>`},
	)
	hist := history.NewRing(5)
	o := New(fake, "m", hist)

	var snapshots [][]domain.StepStatus
	res := o.Execute(context.Background(), threeStepPlan(), "", func(steps []domain.Step) {
		snapshots = append(snapshots, statuses(steps))
	})

	assert.Equal(t, []domain.StepStatus{domain.StepComplete, domain.StepComplete, domain.StepComplete}, statuses(res.Steps))
	assert.Equal(t, []string{"npm install"}, res.Commands)

	wantFiles := []domain.GeneratedFile{
		{Path: "index.html", Content: "<ul></ul>", Language: "html"},
		{Path: "style.css", Content: "ul{}", Language: "css"},
		{Path: "index.html", Content: `<ul id="list"></ul>`, Language: "html"},
		{Path: "app.js", Content: "go()", Language: "javascript"},
	}
	if diff := cmp.Diff(wantFiles, res.Files); diff != "" {
		t.Errorf("files mismatch (-want +got):\n%s", diff)
	}

	wantSnapshots := [][]domain.StepStatus{
		{domain.StepRunning},
		{domain.StepComplete},
		{domain.StepComplete, domain.StepRunning},
		{domain.StepComplete, domain.StepComplete},
		{domain.StepComplete, domain.StepComplete, domain.StepRunning},
		{domain.StepComplete, domain.StepComplete, domain.StepComplete},
	}
	if diff := cmp.Diff(wantSnapshots, snapshots); diff != "" {
		t.Errorf("snapshots mismatch (-want +got):\n%s", diff)
	}

	// Later steps see earlier files.
	calls := fake.Calls()
	require.Len(t, calls, 3)
	assert.NotContains(t, calls[0].Messages[0].Text, "--- index.html ---")
	assert.Contains(t, calls[2].Messages[0].Text, "--- index.html ---\n<ul></ul>")
	assert.Contains(t, calls[2].Messages[0].Text, "step 3 of 3: Logic")

	entries, _ := hist.List(context.Background(), 0)
	require.Len(t, entries, 1)
	assert.True(t, entries[0].Success)
	assert.Equal(t, domain.HistoryPlan, entries[0].Kind)
}

func TestExecuteStopsAtFailedStep(t *testing.T) {
	fake := modeltest.New("openai").On("m",
		modeltest.Reply{Text: `<action type="file" filePath="index.html">x</action>`},
		modeltest.Reply{Err: errors.New("provider exploded")},
		modeltest.Reply{Text: `<action type="file" filePath="never.js">y</action>`},
	)
	hist := history.NewRing(5)
	res := New(fake, "m", hist).Execute(context.Background(), threeStepPlan(), "m", nil)

	assert.Equal(t, []domain.StepStatus{domain.StepComplete, domain.StepFailed}, statuses(res.Steps))
	assert.Contains(t, res.Steps[1].Error, "provider exploded")
	require.Len(t, res.Files, 1)
	assert.Equal(t, "index.html", res.Files[0].Path)
	assert.Len(t, fake.Calls(), 2)

	entries, _ := hist.List(context.Background(), 0)
	require.Len(t, entries, 1)
	assert.False(t, entries[0].Success)
}

func TestExecuteEmptyPlan(t *testing.T) {
	fake := modeltest.New("openai")
	res := New(fake, "m", nil).Execute(context.Background(), &domain.Plan{Objectives: "nothing"}, "", nil)

	assert.Empty(t, res.Steps)
	assert.Empty(t, res.Files)
	assert.Empty(t, res.Commands)
	assert.Empty(t, fake.Calls())
}

func TestExecuteCancelled(t *testing.T) {
	fake := modeltest.New("openai").On("m", modeltest.Reply{Text: "nothing"})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := New(fake, "m", nil).Execute(ctx, threeStepPlan(), "", nil)
	assert.Equal(t, []domain.StepStatus{domain.StepFailed}, statuses(res.Steps))
	assert.Empty(t, fake.Calls())
}

func TestLanguageFor(t *testing.T) {
	tests := map[string]string{
		"index.html":    "html",
		"src/App.TSX":   "typescript",
		"styles/a.css":  "css",
		"package.json":  "json",
		"README":        PlainText,
		"weird.unknown": PlainText,
	}
	for path, want := range tests {
		assert.Equal(t, want, LanguageFor(path), path)
	}
}
