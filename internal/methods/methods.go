// Package methods implements the named remote calls exposed over a channel,
// bridging the dispatcher to the process supervisor and terminal
// multiplexer.
package methods

import (
	"errors"

	"go.uber.org/zap"

	"github.com/shell-bridge/backend/internal/dispatch"
	"github.com/shell-bridge/backend/internal/model"
	"github.com/shell-bridge/backend/internal/proc"
	"github.com/shell-bridge/backend/internal/protocol"
	"github.com/shell-bridge/backend/internal/term"
)

// Core wires the method handlers to the server's runtime state. One Core
// serves every channel; process and session ownership is server-wide.
type Core struct {
	log *zap.SugaredLogger
	sup *proc.Supervisor
	mux *term.Mux
}

// New creates a Core over the given supervisor and multiplexer.
func New(log *zap.SugaredLogger, sup *proc.Supervisor, mux *term.Mux) *Core {
	return &Core{log: log.Named("methods"), sup: sup, mux: mux}
}

// Register binds every method the server speaks onto the dispatcher.
func (c *Core) Register(d *dispatch.Dispatcher) {
	// Process supervision
	d.Register("executeCommand", c.ExecuteCommand)
	d.Register("startLongRunningCommand", c.StartLongRunningCommand)
	d.Register("getProcessOutput", c.GetProcessOutput)
	d.Register("writeToProcess", c.WriteToProcess)
	d.Register("killProcess", c.KillProcess)

	// Terminal sessions
	d.Register("createTerminalSession", c.CreateTerminalSession)
	d.Register("listTerminalSessions", c.ListTerminalSessions)
	d.Register("switchTerminalSession", c.SwitchTerminalSession)
	d.Register("closeTerminalSession", c.CloseTerminalSession)
	d.Register("writeToTerminal", c.WriteToTerminal)
	d.Register("readTerminalOutput", c.ReadTerminalOutput)
	d.Register("sendControlCharacter", c.SendControlCharacter)
	d.Register("clearTerminalOutput", c.ClearTerminalOutput)
	d.Register("executeReplCommand", c.ExecuteReplCommand)

	// Filesystem
	d.Register("readFile", c.ReadFile)
	d.Register("writeFile", c.WriteFile)
	d.Register("listDirectory", c.ListDirectory)
	d.Register("createDirectory", c.CreateDirectory)
	d.Register("deleteFile", c.DeleteFile)
	d.Register("renameFile", c.RenameFile)
	d.Register("searchFiles", c.SearchFiles)
}

// reply sends a response, logging delivery failures (the channel may have
// gone away while the handler ran).
func (c *Core) reply(w protocol.ResponseWriter, id string, result any) {
	if err := w.SendResponse(id, result); err != nil {
		c.log.Debugf("sending response for %s: %v", id, err)
	}
}

// fail converts a core error into an error envelope, mapping the sentinel
// taxonomy onto wire codes.
func (c *Core) fail(w protocol.ResponseWriter, id string, err error) {
	code := protocol.CodeInternal
	switch {
	case errors.Is(err, model.ErrNotFound):
		code = protocol.CodeNotFound
	case errors.Is(err, model.ErrNoActiveSession),
		errors.Is(err, model.ErrUnsupportedControl),
		errors.Is(err, model.ErrCommandRequired),
		errors.Is(err, model.ErrDuplicateKey):
		code = protocol.CodeBadRequest
	}
	if sendErr := w.SendError(id, code, err.Error()); sendErr != nil {
		c.log.Debugf("sending error for %s: %v", id, sendErr)
	}
}

// badRequest sends a 400 with a literal message.
func (c *Core) badRequest(w protocol.ResponseWriter, id, message string) {
	if err := w.SendError(id, protocol.CodeBadRequest, message); err != nil {
		c.log.Debugf("sending error for %s: %v", id, err)
	}
}
