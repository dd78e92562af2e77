// Package term multiplexes interactive shell sessions: a server-wide named
// collection of shells, one of which is current, with settle-then-drain
// writes and a permanent output history per session.
package term

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/creack/pty"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/shell-bridge/backend/internal/buffer"
	"github.com/shell-bridge/backend/internal/logger"
	"github.com/shell-bridge/backend/internal/model"
)

const (
	// DefaultSettleDelay is the wait between writing input and draining the
	// output it produced. Output collected this way is a best-effort
	// snapshot, not a guaranteed-complete read.
	DefaultSettleDelay = 200 * time.Millisecond

	// DefaultStartupSettle is the quiescence window after spawning a shell,
	// long enough to capture its startup banner.
	DefaultStartupSettle = 500 * time.Millisecond

	// DefaultShell is used when neither the request nor $SHELL names one.
	DefaultShell = "/bin/bash"
)

// Config holds multiplexer tunables.
type Config struct {
	// SettleDelay overrides DefaultSettleDelay when positive.
	SettleDelay time.Duration

	// StartupSettle overrides DefaultStartupSettle when positive.
	StartupSettle time.Duration

	// TranscriptDir, when set, enables per-session transcript recording
	// under this directory.
	TranscriptDir string
}

// Recorder persists session lifecycle events. The multiplexer works without
// one; a nil Recorder disables persistence.
type Recorder interface {
	Create(ctx context.Context, record *model.SessionRecord) error
	Close(ctx context.Context, id string, exitCode *int) error
}

// Session is one interactive shell running under a pseudo-terminal, so
// control bytes reach the line discipline and interrupt the foreground job
// instead of arriving as ordinary input. Output read from the shell lands in
// the pending buffer; drains move pending lines into the permanent history,
// which only ClearHistory truncates.
type Session struct {
	ID        string
	Name      string
	Shell     string
	Workdir   string
	CreatedAt time.Time

	cmd        *exec.Cmd
	pty        *os.File
	pending    *buffer.LineBuffer
	transcript *logger.Transcript

	histMu  sync.Mutex
	history []string

	done     chan struct{}
	exitCode int
}

// appendHistory moves lines into the permanent history.
func (s *Session) appendHistory(lines []string) {
	if len(lines) == 0 {
		return
	}
	s.histMu.Lock()
	s.history = append(s.history, lines...)
	s.histMu.Unlock()
}

// collectPending drains the pending buffer into history and returns the
// drained lines.
func (s *Session) collectPending() []string {
	lines := s.pending.Drain()
	s.appendHistory(lines)
	return lines
}

// HistoryLen returns the permanent history length.
func (s *Session) HistoryLen() int {
	s.histMu.Lock()
	defer s.histMu.Unlock()
	return len(s.history)
}

// SessionInfo is the listing metadata for one session.
type SessionInfo struct {
	ID        string    `json:"terminalId"`
	Name      string    `json:"name"`
	Shell     string    `json:"shell"`
	Workdir   string    `json:"cwd"`
	IsCurrent bool      `json:"isCurrent"`
	CreatedAt time.Time `json:"createdAt"`
	LineCount int       `json:"outputLineCount"`
}

// Mux owns the session map and the single current-session pointer, both
// server-wide: any channel may operate on any session it knows the key of.
type Mux struct {
	log *zap.SugaredLogger
	cfg Config
	rec Recorder

	mu        sync.Mutex
	sessions  map[string]*Session
	currentID string
}

// NewMux creates an empty multiplexer. rec may be nil.
func NewMux(log *zap.SugaredLogger, cfg Config, rec Recorder) *Mux {
	if cfg.SettleDelay <= 0 {
		cfg.SettleDelay = DefaultSettleDelay
	}
	if cfg.StartupSettle <= 0 {
		cfg.StartupSettle = DefaultStartupSettle
	}
	return &Mux{
		log:      log.Named("terminal"),
		cfg:      cfg,
		rec:      rec,
		sessions: make(map[string]*Session),
	}
}

// Create spawns an interactive shell, waits out the startup quiescence
// window, and returns the new session along with any banner output (already
// appended to history). The first session created becomes current.
func (m *Mux) Create(ctx context.Context, shell, cwd, name string) (*Session, []string, error) {
	if shell == "" {
		shell = os.Getenv("SHELL")
	}
	if shell == "" {
		shell = DefaultShell
	}
	if cwd == "" {
		cwd, _ = os.Getwd()
	}

	cmd := exec.Command(shell)
	cmd.Dir = cwd

	// The shell gets the slave side of a pseudo-terminal, so it starts
	// interactive with job control, and stdout and stderr interleave the way
	// a terminal shows them. Control bytes written to the master side go
	// through the line discipline and signal the foreground job.
	ptmx, err := pty.StartWithSize(cmd, &pty.Winsize{Rows: 24, Cols: 80})
	if err != nil {
		return nil, nil, fmt.Errorf("spawning shell %q: %w", shell, err)
	}

	id := uuid.New().String()

	sess := &Session{
		ID:        id,
		Shell:     shell,
		Workdir:   cwd,
		CreatedAt: time.Now(),
		cmd:       cmd,
		pty:       ptmx,
		pending:   buffer.NewLineBuffer(),
		done:      make(chan struct{}),
	}

	if m.cfg.TranscriptDir != "" {
		transcript, err := logger.NewTranscript(filepath.Join(m.cfg.TranscriptDir, id+".cast"))
		if err != nil {
			m.log.Warnw("transcript disabled for session", "session", id, "error", err)
		} else if err := transcript.WriteHeader(80, 24, shell); err != nil {
			m.log.Warnw("transcript header failed", "session", id, "error", err)
			transcript.Close()
		} else {
			sess.transcript = transcript
		}
	}

	go m.readLoop(sess, ptmx)

	// Naming shares the critical section with the insert so concurrent
	// creates never pick the same default name.
	m.mu.Lock()
	if name == "" {
		name = fmt.Sprintf("Terminal-%d", len(m.sessions)+1)
	}
	sess.Name = name
	m.sessions[id] = sess
	if m.currentID == "" {
		m.currentID = id
	}
	m.mu.Unlock()

	if m.rec != nil {
		record := &model.SessionRecord{
			ID:        id,
			Name:      name,
			Shell:     shell,
			Workdir:   cwd,
			Status:    model.SessionStatusOpen,
			CreatedAt: sess.CreatedAt,
		}
		if err := m.rec.Create(ctx, record); err != nil {
			m.log.Warnw("recording session failed", "session", id, "error", err)
		}
	}

	m.log.Infow("terminal session created", "session", id, "shell", shell, "name", name)

	// Capture the startup banner before returning.
	time.Sleep(m.cfg.StartupSettle)
	initial := sess.collectPending()

	return sess, initial, nil
}

// readLoop pumps shell output lines into the pending buffer until the shell
// exits, then reaps it. Pump errors are recorded as output, never fatal.
func (m *Mux) readLoop(sess *Session, stdout io.Reader) {
	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		sess.pending.Append(line)
		if sess.transcript != nil {
			sess.transcript.WriteOutput(line + "\n")
		}
	}
	// A master read fails with EIO once the slave side is gone; that is the
	// normal end of a session, not a pump failure.
	if err := scanner.Err(); err != nil && !errors.Is(err, syscall.EIO) && !errors.Is(err, os.ErrClosed) {
		sess.pending.Append(fmt.Sprintf("ERROR: output pump: %v", err))
		m.log.Debugw("session pump error", "session", sess.ID, "error", err)
	}

	if err := sess.cmd.Wait(); err != nil {
		if _, ok := err.(*exec.ExitError); !ok {
			m.log.Debugw("unexpected wait error", "session", sess.ID, "error", err)
		}
	}
	sess.exitCode = sess.cmd.ProcessState.ExitCode()
	close(sess.done)
}

// resolve returns the session for key, defaulting to the current session
// when key is empty.
func (m *Mux) resolve(key string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if key == "" {
		if m.currentID == "" {
			return nil, model.ErrNoActiveSession
		}
		key = m.currentID
	}
	sess, ok := m.sessions[key]
	if !ok {
		return nil, fmt.Errorf("terminal session %s: %w", key, model.ErrNotFound)
	}
	return sess, nil
}

// Get returns the session for key (or the current session for ""), without
// side effects.
func (m *Mux) Get(key string) (*Session, error) {
	return m.resolve(key)
}

// List returns metadata for every session in map iteration order.
func (m *Mux) List() []SessionInfo {
	m.mu.Lock()
	defer m.mu.Unlock()

	infos := make([]SessionInfo, 0, len(m.sessions))
	for id, sess := range m.sessions {
		infos = append(infos, SessionInfo{
			ID:        id,
			Name:      sess.Name,
			Shell:     sess.Shell,
			Workdir:   sess.Workdir,
			IsCurrent: id == m.currentID,
			CreatedAt: sess.CreatedAt,
			LineCount: sess.HistoryLen(),
		})
	}
	return infos
}

// CurrentID returns the current-session pointer, "" when no session is
// current.
func (m *Mux) CurrentID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.currentID
}

// Switch sets the current-session pointer to key.
func (m *Mux) Switch(key string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sess, ok := m.sessions[key]
	if !ok {
		return nil, fmt.Errorf("terminal session %s: %w", key, model.ErrNotFound)
	}
	m.currentID = key
	return sess, nil
}

// Close kills the resolved session's shell, waits for it to be reaped, and
// removes the session. Closing the current session advances the pointer to
// some remaining session, or clears it if none remain. Returns the closed
// session's id and the new current id.
func (m *Mux) Close(ctx context.Context, key string) (string, string, error) {
	sess, err := m.resolve(key)
	if err != nil {
		return "", "", err
	}

	// Kill the whole process group: the shell's children hold the slave side
	// of the terminal open, and the reader only sees end-of-stream once every
	// holder is gone.
	if err := syscall.Kill(-sess.cmd.Process.Pid, syscall.SIGKILL); err != nil && !errors.Is(err, syscall.ESRCH) {
		if err := sess.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
			m.log.Debugw("kill failed", "session", sess.ID, "error", err)
		}
	}
	<-sess.done
	sess.pty.Close()

	if sess.transcript != nil {
		sess.transcript.Close()
	}

	m.mu.Lock()
	delete(m.sessions, sess.ID)
	if m.currentID == sess.ID {
		m.currentID = ""
		for id := range m.sessions {
			m.currentID = id
			break
		}
	}
	current := m.currentID
	m.mu.Unlock()

	if m.rec != nil {
		code := sess.exitCode
		if err := m.rec.Close(ctx, sess.ID, &code); err != nil {
			m.log.Warnw("recording session close failed", "session", sess.ID, "error", err)
		}
	}

	m.log.Infow("terminal session closed", "session", sess.ID, "current", current)

	return sess.ID, current, nil
}

// Write writes text as a line to the resolved session's input, waits out the
// settle delay, and returns the freshly produced output lines, which are
// also appended to the session's permanent history.
func (m *Mux) Write(key, text string) ([]string, error) {
	sess, err := m.resolve(key)
	if err != nil {
		return nil, err
	}

	if _, err := sess.pty.Write([]byte(text + "\n")); err != nil {
		return nil, fmt.Errorf("writing to terminal session %s: %w", sess.ID, err)
	}
	if sess.transcript != nil {
		sess.transcript.WriteInput(text + "\n")
	}

	time.Sleep(m.cfg.SettleDelay)
	return sess.collectPending(), nil
}

// SendControl writes the raw control byte for the given mnemonic to the
// resolved session's input, settles, and returns the produced output.
func (m *Mux) SendControl(key, character string) ([]string, error) {
	code, ok := controlBytes[strings.ToLower(character)]
	if !ok {
		return nil, fmt.Errorf("%q: %w", character, model.ErrUnsupportedControl)
	}

	sess, err := m.resolve(key)
	if err != nil {
		return nil, err
	}

	if _, err := sess.pty.Write([]byte{code}); err != nil {
		return nil, fmt.Errorf("writing to terminal session %s: %w", sess.ID, err)
	}
	if sess.transcript != nil {
		sess.transcript.WriteInput(string([]byte{code}))
	}

	time.Sleep(m.cfg.SettleDelay)
	return sess.collectPending(), nil
}

// HistoryWindow is the non-mutating result of ReadHistory.
type HistoryWindow struct {
	Lines      []string
	TotalLines int
}

// ReadHistory returns a window of the session's permanent history: the last
// lineCount lines when fromEnd, the first lineCount otherwise. History is
// never mutated by reads.
func (m *Mux) ReadHistory(key string, lineCount int, fromEnd bool) (*HistoryWindow, error) {
	sess, err := m.resolve(key)
	if err != nil {
		return nil, err
	}

	sess.histMu.Lock()
	defer sess.histMu.Unlock()

	total := len(sess.history)
	if lineCount < 0 {
		lineCount = 0
	}
	if lineCount > total {
		lineCount = total
	}

	var window []string
	if fromEnd {
		window = append(window, sess.history[total-lineCount:]...)
	} else {
		window = append(window, sess.history[:lineCount]...)
	}

	return &HistoryWindow{Lines: window, TotalLines: total}, nil
}

// ClearHistory truncates the resolved session's history. The shell itself is
// untouched.
func (m *Mux) ClearHistory(key string) (string, error) {
	sess, err := m.resolve(key)
	if err != nil {
		return "", err
	}

	sess.histMu.Lock()
	sess.history = nil
	sess.histMu.Unlock()

	return sess.ID, nil
}

// CloseAll closes every session. Used on server shutdown.
func (m *Mux) CloseAll(ctx context.Context) {
	m.mu.Lock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	m.mu.Unlock()

	for _, id := range ids {
		if _, _, err := m.Close(ctx, id); err != nil {
			m.log.Debugw("closing session on shutdown", "session", id, "error", err)
		}
	}
}
