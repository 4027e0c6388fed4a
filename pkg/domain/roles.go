package domain

// Role defines the sender of a conversation message.
type Role string

const (
	// RoleUser indicates a message from the user.
	RoleUser Role = "user"
	// RoleAssistant indicates a message from the model/assistant.
	RoleAssistant Role = "assistant"
	// RoleSystem indicates system instructions.
	RoleSystem Role = "system"
)

// ActionType is the kind of effect a parsed action performs.
type ActionType string

const (
	// ActionFile writes content to a path in the virtual file store.
	ActionFile ActionType = "file"
	// ActionShell runs a command through the command runner.
	ActionShell ActionType = "shell"
)

// StepStatus is the progress state of a Step.
type StepStatus string

const (
	StepPending  StepStatus = "pending"
	StepRunning  StepStatus = "running"
	StepComplete StepStatus = "complete"
	StepFailed   StepStatus = "failed"
)

// IsTerminal reports whether no further transitions are allowed from s.
func (s StepStatus) IsTerminal() bool {
	return s == StepComplete || s == StepFailed
}
