package proc

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/shell-bridge/backend/internal/model"
)

func testSupervisor() *Supervisor {
	return NewSupervisor(zap.NewNop().Sugar())
}

func waitDone(t *testing.T, p *ManagedProcess) {
	t.Helper()
	select {
	case <-p.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for process exit")
	}
}

func TestSupervisor_StartAndDrain(t *testing.T) {
	s := testSupervisor()
	defer s.Close()

	p, err := s.Start("echo-test", "echo hello", "", nil)
	if err != nil {
		t.Fatalf("unexpected start error: %v", err)
	}
	waitDone(t, p)

	res, err := s.Drain("echo-test")
	if err != nil {
		t.Fatalf("unexpected drain error: %v", err)
	}
	if res.IsRunning {
		t.Error("expected IsRunning false after exit")
	}
	if len(res.Lines) != 2 {
		t.Fatalf("expected 2 lines, got %v", res.Lines)
	}
	if res.Lines[0] != "hello" {
		t.Errorf("expected 'hello', got '%s'", res.Lines[0])
	}
	if res.Lines[1] != "Process exited with code 0" {
		t.Errorf("expected exit marker, got '%s'", res.Lines[1])
	}

	// A second drain is empty but still succeeds: the buffer outlives the
	// process.
	res, err = s.Drain("echo-test")
	if err != nil {
		t.Fatalf("unexpected error on second drain: %v", err)
	}
	if len(res.Lines) != 0 {
		t.Errorf("expected empty second drain, got %v", res.Lines)
	}
}

func TestSupervisor_StderrPrefix(t *testing.T) {
	s := testSupervisor()
	defer s.Close()

	p, err := s.Start("stderr-test", "echo oops >&2", "", nil)
	if err != nil {
		t.Fatalf("unexpected start error: %v", err)
	}
	waitDone(t, p)

	res, err := s.Drain("stderr-test")
	if err != nil {
		t.Fatalf("unexpected drain error: %v", err)
	}
	found := false
	for _, line := range res.Lines {
		if line == "ERROR: oops" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected 'ERROR: oops' in %v", res.Lines)
	}
}

func TestSupervisor_NonZeroExitMarker(t *testing.T) {
	s := testSupervisor()
	defer s.Close()

	p, err := s.Start("fail-test", "exit 3", "", nil)
	if err != nil {
		t.Fatalf("unexpected start error: %v", err)
	}
	waitDone(t, p)
	if p.ExitCode() != 3 {
		t.Errorf("expected exit code 3, got %d", p.ExitCode())
	}

	res, _ := s.Drain("fail-test")
	last := res.Lines[len(res.Lines)-1]
	if last != "Process exited with code 3" {
		t.Errorf("expected exit marker with code 3, got '%s'", last)
	}
}

func TestSupervisor_BufferIsolation(t *testing.T) {
	s := testSupervisor()
	defer s.Close()

	p1, err := s.Start("proc-a", "echo from-a", "", nil)
	if err != nil {
		t.Fatalf("unexpected start error: %v", err)
	}
	p2, err := s.Start("proc-b", "echo from-b", "", nil)
	if err != nil {
		t.Fatalf("unexpected start error: %v", err)
	}
	waitDone(t, p1)
	waitDone(t, p2)

	resA, _ := s.Drain("proc-a")
	resB, _ := s.Drain("proc-b")
	for _, line := range resA.Lines {
		if strings.Contains(line, "from-b") {
			t.Errorf("proc-a buffer leaked proc-b output: %v", resA.Lines)
		}
	}
	if resA.Lines[0] != "from-a" {
		t.Errorf("expected 'from-a', got '%s'", resA.Lines[0])
	}
	if resB.Lines[0] != "from-b" {
		t.Errorf("expected 'from-b', got '%s'", resB.Lines[0])
	}
}

func TestSupervisor_DuplicateKey(t *testing.T) {
	s := testSupervisor()
	defer s.Close()

	if _, err := s.Start("dup", "sleep 5", "", nil); err != nil {
		t.Fatalf("unexpected start error: %v", err)
	}
	if _, err := s.Start("dup", "echo again", "", nil); !errors.Is(err, model.ErrDuplicateKey) {
		t.Errorf("expected ErrDuplicateKey, got %v", err)
	}
	if err := s.Kill("dup"); err != nil {
		t.Errorf("unexpected kill error: %v", err)
	}
}

func TestSupervisor_ConcurrentStartSameKey(t *testing.T) {
	s := testSupervisor()
	defer s.Close()

	for i := 0; i < 50; i++ {
		key := "race"
		var wg sync.WaitGroup
		errs := make([]error, 2)
		wg.Add(2)
		for j := 0; j < 2; j++ {
			go func(j int) {
				defer wg.Done()
				_, errs[j] = s.Start(key, "sleep 5", "", nil)
			}(j)
		}
		wg.Wait()

		var started, rejected int
		for _, err := range errs {
			switch {
			case err == nil:
				started++
			case errors.Is(err, model.ErrDuplicateKey):
				rejected++
			default:
				t.Fatalf("unexpected start error: %v", err)
			}
		}
		if started != 1 || rejected != 1 {
			t.Fatalf("iteration %d: expected exactly one winner, got %d started and %d rejected", i, started, rejected)
		}

		if err := s.Kill(key); err != nil {
			t.Fatalf("unexpected kill error: %v", err)
		}
	}
}

func TestSupervisor_WriteInput(t *testing.T) {
	s := testSupervisor()
	defer s.Close()

	p, err := s.Start("cat-test", "cat", "", nil)
	if err != nil {
		t.Fatalf("unexpected start error: %v", err)
	}

	if err := s.WriteInput("cat-test", "hello stdin"); err != nil {
		t.Fatalf("unexpected write error: %v", err)
	}

	// cat echoes each input line; poll for it
	deadline := time.Now().Add(5 * time.Second)
	var got []string
	for time.Now().Before(deadline) {
		res, err := s.Drain("cat-test")
		if err != nil {
			t.Fatalf("unexpected drain error: %v", err)
		}
		got = append(got, res.Lines...)
		if len(got) > 0 {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	if len(got) == 0 || got[0] != "hello stdin" {
		t.Errorf("expected echoed input, got %v", got)
	}

	if err := s.Kill("cat-test"); err != nil {
		t.Fatalf("unexpected kill error: %v", err)
	}
	waitDone(t, p)
}

func TestSupervisor_KillWaitsForExit(t *testing.T) {
	s := testSupervisor()
	defer s.Close()

	_, err := s.Start("sleeper", "sleep 60", "", nil)
	if err != nil {
		t.Fatalf("unexpected start error: %v", err)
	}
	if !s.IsRunning("sleeper") {
		t.Fatal("expected process in live set")
	}

	if err := s.Kill("sleeper"); err != nil {
		t.Fatalf("unexpected kill error: %v", err)
	}

	// Kill returns only after the reap, so the live set is already clean.
	if s.IsRunning("sleeper") {
		t.Error("expected process removed from live set after kill")
	}

	// A repeated kill reports not found.
	if err := s.Kill("sleeper"); !errors.Is(err, model.ErrNotFound) {
		t.Errorf("expected ErrNotFound on second kill, got %v", err)
	}

	// The buffer still holds the exit marker.
	res, err := s.Drain("sleeper")
	if err != nil {
		t.Fatalf("unexpected drain error: %v", err)
	}
	last := res.Lines[len(res.Lines)-1]
	if !strings.HasPrefix(last, "Process exited with code") {
		t.Errorf("expected exit marker, got '%s'", last)
	}
}

func TestSupervisor_UnknownKey(t *testing.T) {
	s := testSupervisor()

	if _, err := s.Drain("ghost"); !errors.Is(err, model.ErrNotFound) {
		t.Errorf("expected ErrNotFound from drain, got %v", err)
	}
	if err := s.WriteInput("ghost", "hi"); !errors.Is(err, model.ErrNotFound) {
		t.Errorf("expected ErrNotFound from write, got %v", err)
	}
	if err := s.Kill("ghost"); !errors.Is(err, model.ErrNotFound) {
		t.Errorf("expected ErrNotFound from kill, got %v", err)
	}
}

func TestSupervisor_EmptyCommand(t *testing.T) {
	s := testSupervisor()
	if _, err := s.Start("empty", "", "", nil); !errors.Is(err, model.ErrCommandRequired) {
		t.Errorf("expected ErrCommandRequired, got %v", err)
	}
}

func TestRun_CapturesOutputAndExitCode(t *testing.T) {
	s := testSupervisor()

	res, err := s.Run(context.Background(), "echo out; echo err >&2; exit 2", "", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.TrimSpace(res.Output) != "out" {
		t.Errorf("expected output 'out', got '%s'", res.Output)
	}
	if strings.TrimSpace(res.Error) != "err" {
		t.Errorf("expected error 'err', got '%s'", res.Error)
	}
	if res.ExitCode != 2 {
		t.Errorf("expected exit code 2, got %d", res.ExitCode)
	}
}

func TestRun_Environment(t *testing.T) {
	s := testSupervisor()

	res, err := s.Run(context.Background(), "echo $GREETING", "", map[string]string{"GREETING": "salut"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.TrimSpace(res.Output) != "salut" {
		t.Errorf("expected 'salut', got '%s'", res.Output)
	}
}

func TestRun_WorkingDirectory(t *testing.T) {
	s := testSupervisor()

	dir := t.TempDir()
	res, err := s.Run(context.Background(), "pwd", dir, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(strings.TrimSpace(res.Output), dir) {
		t.Errorf("expected pwd to report %s, got '%s'", dir, res.Output)
	}
}
