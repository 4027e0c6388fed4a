package sandbox

import (
	"context"
	"fmt"

	"github.com/nstogner/forge/pkg/domain"
)

// Result represents the output of a shell command run in a sandbox.
type Result struct {
	// Output is the combined stdout and stderr.
	Output string `json:"output,omitempty"`
	// Stdout is the standard output (if split).
	Stdout string `json:"stdout,omitempty"`
	// Stderr is the standard error (if split).
	Stderr string `json:"stderr,omitempty"`
	// ExitCode is the process exit status.
	ExitCode int `json:"exit_code"`
}

// Runner executes shell commands on behalf of the action executor.
type Runner interface {
	// Run executes command in the workspace identified by workspaceID after
	// syncing files into it. A non-zero exit code is returned as an
	// *ExitError carrying the captured output.
	Run(ctx context.Context, workspaceID, command string, files []domain.VirtualFile) (*Result, error)
}

// Manager is a Runner that owns long-lived workspaces.
type Manager interface {
	Runner

	// Reap starts a long-running reconciliation loop that removes
	// workspaces that were released or sat idle past their TTL. Blocks
	// until ctx is cancelled.
	Reap(ctx context.Context) error

	// Release marks the workspace as no longer needed.
	Release(ctx context.Context, workspaceID string) error

	// Close releases any resources held by the manager (e.g. docker client).
	Close() error
}

// ExitError reports a command that ran but exited unsuccessfully.
type ExitError struct {
	Command string
	Result  *Result
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("command %q exited with code %d: %s", e.Command, e.Result.ExitCode, e.Result.Output)
}
