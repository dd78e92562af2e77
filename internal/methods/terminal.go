package methods

import (
	"context"
	"fmt"

	"github.com/shell-bridge/backend/internal/protocol"
	"github.com/shell-bridge/backend/internal/term"
)

// replCommands maps REPL type names to the command that starts them inside
// a shell session.
var replCommands = map[string]string{
	"python":        "python3",
	"clojure":       "clj",
	"clj":           "clj",
	"clojurescript": "clj -m cljs.main",
	"cljs":          "clj -m cljs.main",
}

// CreateTerminalSession spawns a new interactive shell session and responds
// with its key and any startup banner output.
func (c *Core) CreateTerminalSession(ctx context.Context, req *protocol.Message, w protocol.ResponseWriter) {
	shell := req.Params.String("shell", "")
	cwd := req.Params.String("cwd", "")
	name := req.Params.String("name", "")

	sess, initial, err := c.mux.Create(ctx, shell, cwd, name)
	if err != nil {
		c.fail(w, req.ID, err)
		return
	}

	if initial == nil {
		initial = []string{}
	}
	c.reply(w, req.ID, map[string]any{
		"terminalId":    sess.ID,
		"name":          sess.Name,
		"shell":         sess.Shell,
		"initialOutput": initial,
	})
}

// ListTerminalSessions responds with metadata for every live session.
func (c *Core) ListTerminalSessions(ctx context.Context, req *protocol.Message, w protocol.ResponseWriter) {
	infos := c.mux.List()
	if infos == nil {
		infos = []term.SessionInfo{}
	}
	c.reply(w, req.ID, map[string]any{"sessions": infos})
}

// SwitchTerminalSession moves the current-session pointer.
func (c *Core) SwitchTerminalSession(ctx context.Context, req *protocol.Message, w protocol.ResponseWriter) {
	key := req.Params.String("terminalId", "")
	if key == "" {
		c.badRequest(w, req.ID, "Terminal ID is required")
		return
	}

	sess, err := c.mux.Switch(key)
	if err != nil {
		c.fail(w, req.ID, err)
		return
	}

	c.reply(w, req.ID, map[string]any{
		"terminalId": sess.ID,
		"name":       sess.Name,
		"shell":      sess.Shell,
		"cwd":        sess.Workdir,
	})
}

// CloseTerminalSession closes the named session, defaulting to the current
// one, and reports the new current-session key.
func (c *Core) CloseTerminalSession(ctx context.Context, req *protocol.Message, w protocol.ResponseWriter) {
	key := req.Params.String("terminalId", "")

	closedID, currentID, err := c.mux.Close(ctx, key)
	if err != nil {
		c.fail(w, req.ID, err)
		return
	}

	c.reply(w, req.ID, map[string]any{
		"success":           true,
		"message":           fmt.Sprintf("Terminal session %s closed", closedID),
		"currentTerminalId": currentID,
	})
}

// WriteToTerminal writes a line of input to the resolved session and
// responds with the output it settled into.
func (c *Core) WriteToTerminal(ctx context.Context, req *protocol.Message, w protocol.ResponseWriter) {
	text := req.Params.String("text", "")
	if text == "" {
		c.badRequest(w, req.ID, "Text to write is required")
		return
	}
	key := req.Params.String("terminalId", "")

	output, err := c.mux.Write(key, text)
	if err != nil {
		c.fail(w, req.ID, err)
		return
	}

	if output == nil {
		output = []string{}
	}
	c.reply(w, req.ID, map[string]any{
		"output":    output,
		"lineCount": len(output),
	})
}

// ReadTerminalOutput returns a window of the session's permanent history
// without mutating it.
func (c *Core) ReadTerminalOutput(ctx context.Context, req *protocol.Message, w protocol.ResponseWriter) {
	lineCount := req.Params.Int("lineCount", 10)
	fromEnd := req.Params.Bool("fromEnd", true)
	key := req.Params.String("terminalId", "")

	window, err := c.mux.ReadHistory(key, lineCount, fromEnd)
	if err != nil {
		c.fail(w, req.ID, err)
		return
	}

	lines := window.Lines
	if lines == nil {
		lines = []string{}
	}
	c.reply(w, req.ID, map[string]any{
		"output":     lines,
		"lineCount":  len(lines),
		"totalLines": window.TotalLines,
	})
}

// SendControlCharacter injects a raw control byte into the resolved
// session's input.
func (c *Core) SendControlCharacter(ctx context.Context, req *protocol.Message, w protocol.ResponseWriter) {
	character := req.Params.String("character", "")
	if character == "" {
		c.badRequest(w, req.ID, "Control character is required")
		return
	}
	key := req.Params.String("terminalId", "")

	output, err := c.mux.SendControl(key, character)
	if err != nil {
		c.fail(w, req.ID, err)
		return
	}

	if output == nil {
		output = []string{}
	}
	c.reply(w, req.ID, map[string]any{
		"success":   true,
		"character": character,
		"output":    output,
		"lineCount": len(output),
	})
}

// ClearTerminalOutput truncates the resolved session's history.
func (c *Core) ClearTerminalOutput(ctx context.Context, req *protocol.Message, w protocol.ResponseWriter) {
	key := req.Params.String("terminalId", "")

	id, err := c.mux.ClearHistory(key)
	if err != nil {
		c.fail(w, req.ID, err)
		return
	}

	c.reply(w, req.ID, map[string]any{
		"success": true,
		"message": fmt.Sprintf("Terminal output cleared for session %s", id),
	})
}

// ExecuteReplCommand starts the named REPL in the resolved session, then
// feeds it the command, returning the settled output of both steps.
func (c *Core) ExecuteReplCommand(ctx context.Context, req *protocol.Message, w protocol.ResponseWriter) {
	command := req.Params.String("command", "")
	if command == "" {
		c.badRequest(w, req.ID, "Command is required")
		return
	}
	replType := req.Params.String("repl", "")
	if replType == "" {
		c.badRequest(w, req.ID, "REPL type is required")
		return
	}
	key := req.Params.String("terminalId", "")

	replCmd, ok := replCommands[replType]
	if !ok {
		c.badRequest(w, req.ID, fmt.Sprintf("Unsupported REPL type: %s", replType))
		return
	}

	// Pin the resolution so both writes land in the same session even if
	// the current pointer moves between them.
	sess, err := c.mux.Get(key)
	if err != nil {
		c.fail(w, req.ID, err)
		return
	}

	startup, err := c.mux.Write(sess.ID, replCmd)
	if err != nil {
		c.fail(w, req.ID, err)
		return
	}
	output, err := c.mux.Write(sess.ID, command)
	if err != nil {
		c.fail(w, req.ID, err)
		return
	}

	combined := append(startup, output...)
	if combined == nil {
		combined = []string{}
	}
	c.reply(w, req.ID, map[string]any{
		"repl":      replType,
		"command":   command,
		"output":    combined,
		"lineCount": len(combined),
	})
}
