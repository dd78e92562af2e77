package proc

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"

	"github.com/shell-bridge/backend/internal/model"
)

// RunResult is the outcome of a one-shot command.
type RunResult struct {
	Output   string `json:"output"`
	Error    string `json:"error"`
	ExitCode int    `json:"exitCode"`
}

// Run executes command through the shell, waits for it to finish, and
// returns its collected output. A non-zero exit is not an error; only
// failure to spawn is. This is the primitive behind executeCommand and the
// stateless collaborator handlers.
func (s *Supervisor) Run(ctx context.Context, command, cwd string, env map[string]string) (*RunResult, error) {
	if command == "" {
		return nil, model.ErrCommandRequired
	}

	cmd := exec.CommandContext(ctx, "/bin/sh", "-c", command)
	cmd.Dir = cwd
	cmd.Env = mergeEnv(env)

	stdout := &bytes.Buffer{}
	stderr := &bytes.Buffer{}
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("spawning %q: %w", command, err)
	}

	if err := cmd.Wait(); err != nil {
		if _, ok := err.(*exec.ExitError); !ok {
			return nil, fmt.Errorf("running %q: %w", command, err)
		}
	}

	return &RunResult{
		Output:   stdout.String(),
		Error:    stderr.String(),
		ExitCode: cmd.ProcessState.ExitCode(),
	}, nil
}
