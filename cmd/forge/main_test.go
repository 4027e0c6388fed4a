package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nstogner/forge/pkg/domain"
)

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger, err := newLogger(&buf, "warn", "json")
	require.NoError(t, err)
	logger.Info("hidden")
	logger.Warn("shown", "k", "v")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), `"msg":"shown"`)

	_, err = newLogger(&buf, "info", "xml")
	assert.Error(t, err)
}

func TestWriteFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, writeFiles(dir, map[string]string{
		"/src/app.js": "x()",
		"index.html":  "<p></p>",
	}))
	got, err := os.ReadFile(filepath.Join(dir, "src", "app.js"))
	require.NoError(t, err)
	assert.Equal(t, "x()", string(got))

	assert.Error(t, writeFiles(dir, map[string]string{"../escape": "no"}))
}

func TestRenderSteps(t *testing.T) {
	out := renderSteps("Plan", []domain.Step{
		{ID: "1", Title: "Markup", Status: domain.StepComplete},
		{ID: "2", Title: "Logic", Status: domain.StepFailed, Error: "boom"},
	})
	assert.Contains(t, out, "1. Markup")
	assert.Contains(t, out, "2. Logic")
	assert.Contains(t, out, "boom")
}

func TestProgressPrinterReportsChangesOnly(t *testing.T) {
	var lines []string
	p := newProgressPrinter(func(s string) { lines = append(lines, s) })
	steps := []domain.Step{{ID: "a", Title: "A", Status: domain.StepPending}}
	p.observe(steps)
	steps[0].Status = domain.StepRunning
	p.observe(steps)
	p.observe(steps)
	steps[0].Status = domain.StepComplete
	p.observe(steps)
	assert.Len(t, lines, 2)
}

func TestActionsCommandListsActions(t *testing.T) {
	for _, k := range []string{"OPENAI_API_KEY", "GEMINI_API_KEY", "FORGE_MAINTENANCE", "FORGE_FORCE_VANILLA"} {
		t.Setenv(k, "")
	}
	dir := t.TempDir()
	input := filepath.Join(dir, "reply.txt")
	require.NoError(t, os.WriteFile(input, []byte(
		`Sure. <action type="file" filePath="index.html"><p></p></action> <action type="shell">npm start</action>`), 0o644))

	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"actions", "--config", filepath.Join(dir, "missing.yaml"), "--file", input})
	require.NoError(t, root.Execute())

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	assert.Equal(t, []string{"1. Create index.html", "2. Run npm start"}, lines)
}
