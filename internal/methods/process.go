package methods

import (
	"context"
	"os"

	"github.com/shell-bridge/backend/internal/protocol"
)

// ExecuteCommand runs a one-shot shell command and responds with its full
// output and exit code.
func (c *Core) ExecuteCommand(ctx context.Context, req *protocol.Message, w protocol.ResponseWriter) {
	command := req.Params.String("command", "")
	if command == "" {
		c.badRequest(w, req.ID, "Command is required")
		return
	}
	cwd := req.Params.String("cwd", defaultCwd())
	env := req.Params.StringMap("env")

	result, err := c.sup.Run(ctx, command, cwd, env)
	if err != nil {
		c.fail(w, req.ID, err)
		return
	}
	c.reply(w, req.ID, result)
}

// StartLongRunningCommand spawns a supervised process keyed by the supplied
// processId, defaulting to the request id.
func (c *Core) StartLongRunningCommand(ctx context.Context, req *protocol.Message, w protocol.ResponseWriter) {
	command := req.Params.String("command", "")
	if command == "" {
		c.badRequest(w, req.ID, "Command is required")
		return
	}
	cwd := req.Params.String("cwd", defaultCwd())
	env := req.Params.StringMap("env")
	key := req.Params.String("processId", req.ID)

	if _, err := c.sup.Start(key, command, cwd, env); err != nil {
		c.fail(w, req.ID, err)
		return
	}

	c.reply(w, req.ID, map[string]any{
		"processId": key,
		"status":    "started",
	})
}

// GetProcessOutput drains the process's buffered output lines.
func (c *Core) GetProcessOutput(ctx context.Context, req *protocol.Message, w protocol.ResponseWriter) {
	key := req.Params.String("processId", "")

	result, err := c.sup.Drain(key)
	if err != nil {
		c.fail(w, req.ID, err)
		return
	}

	lines := result.Lines
	if lines == nil {
		lines = []string{}
	}
	c.reply(w, req.ID, map[string]any{
		"output":    lines,
		"isRunning": result.IsRunning,
	})
}

// WriteToProcess writes a line of text to a supervised process's input
// stream.
func (c *Core) WriteToProcess(ctx context.Context, req *protocol.Message, w protocol.ResponseWriter) {
	text := req.Params.String("text", "")
	if text == "" {
		c.badRequest(w, req.ID, "Text to write is required")
		return
	}
	key := req.Params.String("processId", "")

	if err := c.sup.WriteInput(key, text); err != nil {
		c.fail(w, req.ID, err)
		return
	}
	c.reply(w, req.ID, map[string]any{"status": "written"})
}

// KillProcess forcefully terminates a supervised process and waits for it
// to be reaped.
func (c *Core) KillProcess(ctx context.Context, req *protocol.Message, w protocol.ResponseWriter) {
	key := req.Params.String("processId", "")

	if err := c.sup.Kill(key); err != nil {
		c.fail(w, req.ID, err)
		return
	}
	c.reply(w, req.ID, map[string]any{"status": "killed"})
}

func defaultCwd() string {
	cwd, err := os.Getwd()
	if err != nil {
		return "/"
	}
	return cwd
}
