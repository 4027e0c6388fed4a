package action

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/nstogner/forge/pkg/domain"
	"github.com/nstogner/forge/pkg/sandbox"
)

// ErrNoRunner is returned for shell actions when no command runner is configured.
var ErrNoRunner = errors.New("no command runner configured")

// Observer receives a snapshot of all steps after the initial publish and
// after every transition.
type Observer func(steps []domain.Step)

// Executor runs actions strictly in order against a FileStore.
type Executor struct {
	// Runner executes shell actions. Optional.
	Runner sandbox.Runner
	// WorkspaceID identifies the runner workspace.
	WorkspaceID string
	// Files receives file actions. A new store is used when nil.
	Files *FileStore
	// Observer is notified of progress. Optional.
	Observer Observer
}

// Run is the outcome of one Execute call.
type Run struct {
	Steps []domain.Step        `json:"steps"`
	Files []domain.VirtualFile `json:"files"`
	// Err is the failure that stopped the batch, if any.
	Err error `json:"-"`
}

// Execute creates one pending step per action, publishes them, then runs
// the actions one at a time. The first failure marks its step failed and
// leaves every later step pending.
func (e *Executor) Execute(ctx context.Context, actions []domain.Action) *Run {
	if e.Files == nil {
		e.Files = NewFileStore()
	}
	steps := make([]domain.Step, len(actions))
	for i, a := range actions {
		steps[i] = domain.Step{
			ID:     uuid.New().String(),
			Title:  Title(a),
			Status: domain.StepPending,
		}
	}
	e.notify(steps)

	run := &Run{Steps: steps}
	for i, a := range actions {
		step := &steps[i]
		if err := Transition(step, domain.StepPending, domain.StepRunning); err != nil {
			run.Err = err
			break
		}
		e.notify(steps)

		output, err := e.apply(ctx, a)
		step.Output = output
		if err != nil {
			slog.Warn("Action failed", "step", step.Title, "error", err)
			step.Error = err.Error()
			_ = Transition(step, domain.StepRunning, domain.StepFailed)
			e.notify(steps)
			run.Err = fmt.Errorf("step %d (%s): %w", i+1, step.Title, err)
			break
		}
		_ = Transition(step, domain.StepRunning, domain.StepComplete)
		e.notify(steps)
	}
	run.Files = e.Files.Files()
	return run
}

func (e *Executor) apply(ctx context.Context, a domain.Action) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	switch a.Type {
	case domain.ActionFile:
		if _, err := e.Files.Write(a.FilePath, a.Content); err != nil {
			return "", err
		}
		return a.Content, nil
	case domain.ActionShell:
		if e.Runner == nil {
			return "", ErrNoRunner
		}
		res, err := e.Runner.Run(ctx, e.WorkspaceID, a.Content, e.Files.Files())
		var out string
		if res != nil {
			out = res.Output
		}
		return out, err
	default:
		return "", fmt.Errorf("unknown action type %q", a.Type)
	}
}

func (e *Executor) notify(steps []domain.Step) {
	if e.Observer == nil {
		return
	}
	snapshot := make([]domain.Step, len(steps))
	copy(snapshot, steps)
	e.Observer(snapshot)
}

// Title names the step for an action.
func Title(a domain.Action) string {
	if a.Type == domain.ActionFile {
		return "Create " + a.FilePath
	}
	cmd, _, _ := strings.Cut(a.Content, "\n")
	return "Run " + strings.TrimSpace(cmd)
}
