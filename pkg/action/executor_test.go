package action

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/nstogner/forge/pkg/domain"
	"github.com/nstogner/forge/pkg/sandbox"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeRunner struct {
	outputs map[string]string
	fail    map[string]error
	calls   []string
	seen    [][]domain.VirtualFile
}

func (r *fakeRunner) Run(ctx context.Context, workspaceID, command string, files []domain.VirtualFile) (*sandbox.Result, error) {
	r.calls = append(r.calls, command)
	r.seen = append(r.seen, files)
	if err := r.fail[command]; err != nil {
		return &sandbox.Result{Output: "partial"}, err
	}
	return &sandbox.Result{Output: r.outputs[command]}, nil
}

func statuses(steps []domain.Step) []domain.StepStatus {
	out := make([]domain.StepStatus, len(steps))
	for i, s := range steps {
		out[i] = s.Status
	}
	return out
}

func TestExecuteStopsAtFirstFailure(t *testing.T) {
	runner := &fakeRunner{fail: map[string]error{"npm test": errors.New("exit 1")}}
	e := &Executor{Runner: runner}

	run := e.Execute(context.Background(), []domain.Action{
		{Type: domain.ActionFile, FilePath: "a.js", Content: "1"},
		{Type: domain.ActionShell, Content: "npm test"},
		{Type: domain.ActionFile, FilePath: "b.js", Content: "2"},
	})

	assert.Equal(t, []domain.StepStatus{domain.StepComplete, domain.StepFailed, domain.StepPending}, statuses(run.Steps))
	assert.Equal(t, "exit 1", run.Steps[1].Error)
	assert.Equal(t, "partial", run.Steps[1].Output)
	require.Error(t, run.Err)

	// Action 3 never ran.
	assert.Equal(t, []domain.VirtualFile{{Path: "a.js", Content: "1"}}, run.Files)
	assert.Equal(t, []string{"npm test"}, runner.calls)
}

func TestExecuteObserverSeesEveryTransition(t *testing.T) {
	var snapshots [][]domain.StepStatus
	e := &Executor{
		Runner:   &fakeRunner{outputs: map[string]string{"ls": "a.js\n"}},
		Observer: func(steps []domain.Step) { snapshots = append(snapshots, statuses(steps)) },
	}

	run := e.Execute(context.Background(), []domain.Action{
		{Type: domain.ActionFile, FilePath: "a.js", Content: "x"},
		{Type: domain.ActionShell, Content: "ls"},
	})
	require.NoError(t, run.Err)

	p, r, c := domain.StepPending, domain.StepRunning, domain.StepComplete
	want := [][]domain.StepStatus{
		{p, p},
		{r, p},
		{c, p},
		{c, r},
		{c, c},
	}
	if diff := cmp.Diff(want, snapshots); diff != "" {
		t.Errorf("snapshots mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, "a.js\n", run.Steps[1].Output)
	assert.Equal(t, "x", run.Steps[0].Output)
	assert.Equal(t, "Create a.js", run.Steps[0].Title)
	assert.Equal(t, "Run ls", run.Steps[1].Title)
}

func TestExecuteShellSeesEarlierFiles(t *testing.T) {
	runner := &fakeRunner{}
	e := &Executor{Runner: runner, WorkspaceID: "ws"}

	e.Execute(context.Background(), []domain.Action{
		{Type: domain.ActionFile, FilePath: "package.json", Content: "{}"},
		{Type: domain.ActionShell, Content: "npm install"},
	})
	require.Len(t, runner.seen, 1)
	assert.Equal(t, []domain.VirtualFile{{Path: "package.json", Content: "{}"}}, runner.seen[0])
}

func TestExecuteWithoutRunner(t *testing.T) {
	e := &Executor{}
	run := e.Execute(context.Background(), []domain.Action{
		{Type: domain.ActionShell, Content: "ls"},
	})
	assert.ErrorIs(t, run.Err, ErrNoRunner)
	assert.Equal(t, []domain.StepStatus{domain.StepFailed}, statuses(run.Steps))
}

func TestExecuteInvalidPathFails(t *testing.T) {
	e := &Executor{}
	run := e.Execute(context.Background(), []domain.Action{
		{Type: domain.ActionFile, FilePath: "../escape", Content: "x"},
		{Type: domain.ActionFile, FilePath: "ok", Content: "y"},
	})
	assert.Equal(t, []domain.StepStatus{domain.StepFailed, domain.StepPending}, statuses(run.Steps))
	assert.Empty(t, run.Files)
}

func TestExecuteLastWriteWins(t *testing.T) {
	e := &Executor{}
	run := e.Execute(context.Background(), Parse(`
<action type="file" filePath="index.html">one</action>
<action type="file" filePath="style.css">css</action>
<action type="file" filePath="index.html">two</action>`))
	require.NoError(t, run.Err)
	assert.Equal(t, map[string]string{"index.html": "two", "style.css": "css"}, e.Files.ReadAll())
	assert.Len(t, run.Steps, 3)
}

func TestExecuteCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	run := (&Executor{}).Execute(ctx, []domain.Action{{Type: domain.ActionFile, FilePath: "a", Content: ""}})
	assert.ErrorIs(t, run.Err, context.Canceled)
	assert.Equal(t, []domain.StepStatus{domain.StepFailed}, statuses(run.Steps))
}

func TestTransition(t *testing.T) {
	s := &domain.Step{ID: "s1", Status: domain.StepPending}

	require.Error(t, Transition(s, domain.StepPending, domain.StepComplete))
	require.Error(t, Transition(s, domain.StepRunning, domain.StepComplete))
	require.NoError(t, Transition(s, domain.StepPending, domain.StepRunning))
	require.NoError(t, Transition(s, domain.StepRunning, domain.StepFailed))
	assert.True(t, s.Status.IsTerminal())

	// Terminal states never move again.
	err := Transition(s, domain.StepFailed, domain.StepRunning)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "s1")
	assert.Equal(t, domain.StepFailed, s.Status)
}
