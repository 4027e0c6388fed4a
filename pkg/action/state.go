package action

import (
	"fmt"

	"github.com/nstogner/forge/pkg/domain"
)

// Transition moves step from one status to another. The caller supplies the
// expected prior status so out-of-order updates are observable. The step is
// modified only if the transition is allowed.
func Transition(step *domain.Step, from, to domain.StepStatus) error {
	if step.Status != from {
		return fmt.Errorf("invalid transition for step %q: expected %s, got %s", step.ID, from, step.Status)
	}
	if !isAllowedTransition(from, to) {
		return fmt.Errorf("disallowed transition for step %q: %s -> %s", step.ID, from, to)
	}
	step.Status = to
	return nil
}

func isAllowedTransition(from, to domain.StepStatus) bool {
	switch from {
	case domain.StepPending:
		return to == domain.StepRunning
	case domain.StepRunning:
		return to == domain.StepComplete || to == domain.StepFailed
	default:
		return false
	}
}
