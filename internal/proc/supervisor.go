// Package proc supervises long-running child processes: spawn, buffered
// output capture, input injection, and forceful termination, keyed by an
// opaque identifier shared across every channel.
package proc

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/shell-bridge/backend/internal/buffer"
	"github.com/shell-bridge/backend/internal/model"
)

// maxLineSize bounds a single captured output line.
const maxLineSize = 1024 * 1024

// ManagedProcess is one supervised child process. The output buffer outlives
// the process itself: after exit the buffer remains a drain target holding
// the terminal exit marker.
type ManagedProcess struct {
	Key       string
	StartedAt time.Time

	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout io.ReadCloser
	stderr io.ReadCloser
	buf    *buffer.LineBuffer

	done     chan struct{}
	exitCode int
}

// Done returns a channel closed once the process has been reaped and its
// exit marker appended.
func (p *ManagedProcess) Done() <-chan struct{} {
	return p.done
}

// ExitCode returns the recorded exit code. Valid only after Done is closed.
func (p *ManagedProcess) ExitCode() int {
	return p.exitCode
}

// PID returns the OS process id.
func (p *ManagedProcess) PID() int {
	return p.cmd.Process.Pid
}

// Supervisor owns the server-wide live set of processes and their output
// buffers. The live set holds keys of processes not yet reaped; buffers
// persist past exit so late drains still observe the exit marker.
type Supervisor struct {
	log *zap.SugaredLogger

	mu      sync.Mutex
	procs   map[string]*ManagedProcess
	pending map[string]struct{}
	buffers map[string]*buffer.LineBuffer
}

// NewSupervisor creates an empty Supervisor.
func NewSupervisor(log *zap.SugaredLogger) *Supervisor {
	return &Supervisor{
		log:     log.Named("supervisor"),
		procs:   make(map[string]*ManagedProcess),
		pending: make(map[string]struct{}),
		buffers: make(map[string]*buffer.LineBuffer),
	}
}

// DrainResult is the outcome of draining a process buffer.
type DrainResult struct {
	Lines     []string
	IsRunning bool
}

// Start spawns command through the shell with captured stdio and registers
// it under key. A background pump collects stdout and stderr line by line
// until both streams end and the process is reaped, then appends the exit
// marker and removes the key from the live set. Spawn failures leave no
// trace in the live set.
func (s *Supervisor) Start(key, command, cwd string, env map[string]string) (*ManagedProcess, error) {
	if command == "" {
		return nil, model.ErrCommandRequired
	}

	// Reserve the key before spawning so two concurrent Starts on the same
	// key cannot both pass the duplicate check while neither is in the live
	// set yet.
	s.mu.Lock()
	_, live := s.procs[key]
	_, reserved := s.pending[key]
	if live || reserved {
		s.mu.Unlock()
		return nil, fmt.Errorf("process %s: %w", key, model.ErrDuplicateKey)
	}
	s.pending[key] = struct{}{}
	s.mu.Unlock()

	release := func() {
		s.mu.Lock()
		delete(s.pending, key)
		s.mu.Unlock()
	}

	cmd := exec.Command("/bin/sh", "-c", command)
	cmd.Dir = cwd
	cmd.Env = mergeEnv(env)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		release()
		return nil, fmt.Errorf("opening stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		release()
		return nil, fmt.Errorf("opening stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		release()
		return nil, fmt.Errorf("opening stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		release()
		return nil, fmt.Errorf("spawning %q: %w", command, err)
	}

	p := &ManagedProcess{
		Key:       key,
		StartedAt: time.Now(),
		cmd:       cmd,
		stdin:     stdin,
		stdout:    stdout,
		stderr:    stderr,
		buf:       buffer.NewLineBuffer(),
		done:      make(chan struct{}),
	}

	s.mu.Lock()
	delete(s.pending, key)
	s.procs[key] = p
	s.buffers[key] = p.buf
	s.mu.Unlock()

	s.log.Debugw("process started", "key", key, "pid", cmd.Process.Pid)

	go s.pump(p)

	return p, nil
}

// pump drains both output streams into the process buffer, then reaps the
// process, records the exit marker, and retires the key from the live set.
func (s *Supervisor) pump(p *ManagedProcess) {
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		s.pumpStream(p, p.stdout, "")
	}()
	go func() {
		defer wg.Done()
		s.pumpStream(p, p.stderr, "ERROR: ")
	}()
	wg.Wait()

	// Both streams are at EOF; reap the process for its exit code.
	if err := p.cmd.Wait(); err != nil {
		if _, ok := err.(*exec.ExitError); !ok {
			s.log.Debugw("unexpected wait error", "key", p.Key, "error", err)
		}
	}
	code := p.cmd.ProcessState.ExitCode()

	p.buf.Append(fmt.Sprintf("Process exited with code %d", code))

	// Only retire the key if it still maps to this process; a later Start
	// reusing the key must not lose its live-set entry.
	s.mu.Lock()
	if s.procs[p.Key] == p {
		delete(s.procs, p.Key)
	}
	s.mu.Unlock()

	p.exitCode = code
	close(p.done)

	s.log.Debugw("process reaped", "key", p.Key, "exitCode", code)
}

// pumpStream appends one stream's lines to the process buffer, prefixed for
// the error stream. Pump failures are recorded as output and never crash the
// pump or the server.
func (s *Supervisor) pumpStream(p *ManagedProcess, r io.Reader, prefix string) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)

	for scanner.Scan() {
		p.buf.Append(prefix + scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		p.buf.Append(fmt.Sprintf("ERROR: output pump: %v", err))
		s.log.Debugw("output pump error", "key", p.Key, "error", err)
	}
}

// Drain returns and clears the lines buffered since the last drain. The
// IsRunning flag reflects live-set membership at the moment of the call.
func (s *Supervisor) Drain(key string) (*DrainResult, error) {
	s.mu.Lock()
	buf, known := s.buffers[key]
	_, live := s.procs[key]
	s.mu.Unlock()

	if !known {
		return nil, fmt.Errorf("process %s: %w", key, model.ErrNotFound)
	}

	return &DrainResult{Lines: buf.Drain(), IsRunning: live}, nil
}

// WriteInput appends a newline to text and writes it to the process's input
// stream. The process must be in the live set.
func (s *Supervisor) WriteInput(key, text string) error {
	s.mu.Lock()
	p, live := s.procs[key]
	s.mu.Unlock()

	if !live {
		return fmt.Errorf("process %s: %w", key, model.ErrNotFound)
	}

	if _, err := p.stdin.Write([]byte(text + "\n")); err != nil {
		if errors.Is(err, os.ErrClosed) || errors.Is(err, io.ErrClosedPipe) {
			return fmt.Errorf("process %s: %w", key, model.ErrProcessClosed)
		}
		return fmt.Errorf("writing to process %s: %w", key, err)
	}
	return nil
}

// Kill forcefully terminates the process and waits for it to be reaped. A
// repeated kill on an already-reaped key reports NotFound, not success.
func (s *Supervisor) Kill(key string) error {
	s.mu.Lock()
	p, live := s.procs[key]
	s.mu.Unlock()

	if !live {
		return fmt.Errorf("process %s: %w", key, model.ErrNotFound)
	}

	if err := p.cmd.Process.Kill(); err != nil && !isProcessDone(err) {
		return fmt.Errorf("killing process %s: %w", key, err)
	}

	<-p.done
	return nil
}

// IsRunning reports live-set membership for key.
func (s *Supervisor) IsRunning(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, live := s.procs[key]
	return live
}

// Keys returns the keys currently in the live set.
func (s *Supervisor) Keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	keys := make([]string, 0, len(s.procs))
	for key := range s.procs {
		keys = append(keys, key)
	}
	return keys
}

// Close kills every live process and waits for the pumps to finish. Used on
// server shutdown only; channel disconnects never reach here.
func (s *Supervisor) Close() error {
	s.mu.Lock()
	procs := make([]*ManagedProcess, 0, len(s.procs))
	for _, p := range s.procs {
		procs = append(procs, p)
	}
	s.mu.Unlock()

	var firstErr error
	for _, p := range procs {
		if err := p.cmd.Process.Kill(); err != nil && !isProcessDone(err) && firstErr == nil {
			firstErr = err
		}
	}
	for _, p := range procs {
		<-p.done
	}
	return firstErr
}

// isProcessDone reports whether a signal error means the process had already
// exited.
func isProcessDone(err error) bool {
	return errors.Is(err, os.ErrProcessDone)
}

// mergeEnv layers overrides on top of the server's own environment so
// children inherit PATH, HOME, and friends.
func mergeEnv(overrides map[string]string) []string {
	env := os.Environ()
	for k, v := range overrides {
		env = append(env, fmt.Sprintf("%s=%s", k, v))
	}
	return env
}
