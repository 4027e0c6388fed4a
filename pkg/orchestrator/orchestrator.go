// Package orchestrator turns a multi-step plan into code, one model call per
// step, carrying the files written so far into every later step.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/nstogner/forge/pkg/action"
	"github.com/nstogner/forge/pkg/domain"
	"github.com/nstogner/forge/pkg/history"
	"github.com/nstogner/forge/pkg/model"
	"github.com/nstogner/forge/pkg/prompt"
)

// DefaultContextLimit caps how much of each earlier file is repeated in a
// step prompt.
const DefaultContextLimit = 4000

// Completer is the blocking model call used per step.
type Completer interface {
	Complete(ctx context.Context, req model.Request) (*model.Completion, error)
}

// Orchestrator executes plans.
type Orchestrator struct {
	client       Completer
	defaultModel string
	history      history.Log

	// ContextLimit is the per-file byte budget of step prompts.
	ContextLimit int
}

// New creates an orchestrator. hist may be nil.
func New(client Completer, defaultModel string, hist history.Log) *Orchestrator {
	return &Orchestrator{
		client:       client,
		defaultModel: defaultModel,
		history:      hist,
		ContextLimit: DefaultContextLimit,
	}
}

// Execute runs the plan's implementation steps in order. A step's Step is
// created only when the step starts. The first failing step is marked
// failed and execution stops there, returning whatever was produced so far.
// observer, if non-nil, receives a snapshot after every transition.
func (o *Orchestrator) Execute(ctx context.Context, plan *domain.Plan, modelID string, observer action.Observer) *domain.PlanResult {
	res := &domain.PlanResult{
		Files:    []domain.GeneratedFile{},
		Steps:    []domain.Step{},
		Commands: []string{},
	}
	if plan == nil || len(plan.Implementation) == 0 {
		return res
	}
	if modelID == "" {
		modelID = o.defaultModel
	}

	notify := func() {
		if observer != nil {
			observer(append([]domain.Step(nil), res.Steps...))
		}
	}

	// Latest content per path, used as context for later steps.
	files := action.NewFileStore()

	for i, impl := range plan.Implementation {
		id := impl.ID
		if id == "" {
			id = uuid.New().String()
		}
		res.Steps = append(res.Steps, domain.Step{
			ID:          id,
			Title:       impl.Step,
			Description: impl.Description,
			Status:      domain.StepPending,
		})
		step := &res.Steps[len(res.Steps)-1]
		_ = action.Transition(step, domain.StepPending, domain.StepRunning)
		notify()

		nFiles, nCmds, err := o.runStep(ctx, plan, i, modelID, files, res)
		if err != nil {
			slog.Warn("Plan step failed", "step", i+1, "title", impl.Step, "error", err)
			step.Error = err.Error()
			_ = action.Transition(step, domain.StepRunning, domain.StepFailed)
			notify()
			break
		}
		step.Output = fmt.Sprintf("%d files, %d commands", nFiles, nCmds)
		_ = action.Transition(step, domain.StepRunning, domain.StepComplete)
		notify()
	}

	o.record(ctx, plan, modelID, res)
	return res
}

func (o *Orchestrator) runStep(ctx context.Context, plan *domain.Plan, index int, modelID string, files *action.FileStore, res *domain.PlanResult) (int, int, error) {
	if err := ctx.Err(); err != nil {
		return 0, 0, err
	}
	c, err := o.client.Complete(ctx, model.Request{
		Model:    modelID,
		System:   prompt.ActionSystem,
		Messages: model.UserText(prompt.StepPrompt(plan, index, files.Files(), o.ContextLimit)),
	})
	if err != nil {
		return 0, 0, fmt.Errorf("generating step %d: %w", index+1, err)
	}

	var nFiles, nCmds int
	for _, a := range action.Parse(c.Text) {
		switch a.Type {
		case domain.ActionFile:
			p, err := files.Write(a.FilePath, a.Content)
			if err != nil {
				return nFiles, nCmds, err
			}
			res.Files = append(res.Files, domain.GeneratedFile{
				Path:     p,
				Content:  a.Content,
				Language: LanguageFor(p),
			})
			nFiles++
		case domain.ActionShell:
			res.Commands = append(res.Commands, a.Content)
			nCmds++
		}
	}
	return nFiles, nCmds, nil
}

func (o *Orchestrator) record(ctx context.Context, plan *domain.Plan, modelID string, res *domain.PlanResult) {
	if o.history == nil {
		return
	}
	ok := len(res.Steps) == len(plan.Implementation)
	if ok && len(res.Steps) > 0 {
		ok = res.Steps[len(res.Steps)-1].Status == domain.StepComplete
	}
	entry := &domain.HistoryEntry{
		Kind:    domain.HistoryPlan,
		Model:   modelID,
		Summary: fmt.Sprintf("%s (%d/%d steps, %d files)", plan.Objectives, completed(res.Steps), len(plan.Implementation), len(res.Files)),
		Success: ok,
	}
	if err := o.history.Append(context.WithoutCancel(ctx), entry); err != nil {
		slog.Warn("Failed to record history", "error", err)
	}
}

func completed(steps []domain.Step) int {
	n := 0
	for _, s := range steps {
		if s.Status == domain.StepComplete {
			n++
		}
	}
	return n
}
