package dispatch

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/shell-bridge/backend/internal/protocol"
)

// recordingWriter captures envelopes a handler sends.
type recordingWriter struct {
	mu        sync.Mutex
	responses []string // ids
	errors    []protocol.ErrorDetail
	errorIDs  []string
	sent      chan struct{}
}

func newRecordingWriter() *recordingWriter {
	return &recordingWriter{sent: make(chan struct{}, 16)}
}

func (w *recordingWriter) SendResponse(id string, result any) error {
	w.mu.Lock()
	w.responses = append(w.responses, id)
	w.mu.Unlock()
	w.sent <- struct{}{}
	return nil
}

func (w *recordingWriter) SendError(id string, code int, message string) error {
	w.mu.Lock()
	w.errors = append(w.errors, protocol.ErrorDetail{Code: code, Message: message})
	w.errorIDs = append(w.errorIDs, id)
	w.mu.Unlock()
	w.sent <- struct{}{}
	return nil
}

func (w *recordingWriter) waitOne(t *testing.T) {
	t.Helper()
	select {
	case <-w.sent:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for an envelope")
	}
}

func (w *recordingWriter) counts() (int, int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.responses), len(w.errors)
}

func testDispatcher() *Dispatcher {
	return New(zap.NewNop().Sugar())
}

func TestDispatchKnownMethod(t *testing.T) {
	d := testDispatcher()
	d.Register("ping", func(ctx context.Context, req *protocol.Message, w protocol.ResponseWriter) {
		w.SendResponse(req.ID, map[string]any{"pong": true})
	})

	rw := newRecordingWriter()
	d.Dispatch(context.Background(), protocol.NewRequest("r1", "ping", nil), rw)
	rw.waitOne(t)

	responses, errors := rw.counts()
	if responses != 1 || errors != 0 {
		t.Errorf("expected exactly one response, got %d responses and %d errors", responses, errors)
	}
	if rw.responses[0] != "r1" {
		t.Errorf("response addressed to %s, want r1", rw.responses[0])
	}
}

func TestDispatchUnknownMethod(t *testing.T) {
	d := testDispatcher()

	rw := newRecordingWriter()
	d.Dispatch(context.Background(), protocol.NewRequest("r2", "noSuchMethod", nil), rw)
	rw.waitOne(t)

	responses, errors := rw.counts()
	if responses != 0 || errors != 1 {
		t.Fatalf("expected exactly one error, got %d responses and %d errors", responses, errors)
	}
	if rw.errors[0].Code != protocol.CodeNotFound {
		t.Errorf("expected code 404, got %d", rw.errors[0].Code)
	}
	if !strings.Contains(rw.errors[0].Message, "noSuchMethod") {
		t.Errorf("error message should name the method, got %q", rw.errors[0].Message)
	}
	if rw.errorIDs[0] != "r2" {
		t.Errorf("error addressed to %s, want r2", rw.errorIDs[0])
	}
}

func TestDispatchIgnoresNonRequests(t *testing.T) {
	d := testDispatcher()
	d.Register("ping", func(ctx context.Context, req *protocol.Message, w protocol.ResponseWriter) {
		w.SendResponse(req.ID, nil)
	})

	rw := newRecordingWriter()
	resp, err := protocol.NewResponse("r3", map[string]any{})
	if err != nil {
		t.Fatalf("building response: %v", err)
	}
	d.Dispatch(context.Background(), resp, rw)
	d.Dispatch(context.Background(), protocol.NewError("r4", 500, "boom"), rw)

	// Give any stray goroutine a chance to misbehave before checking.
	time.Sleep(50 * time.Millisecond)
	responses, errors := rw.counts()
	if responses != 0 || errors != 0 {
		t.Errorf("non-requests must be ignored, got %d responses and %d errors", responses, errors)
	}
}

func TestDispatchPanicBecomesInternalError(t *testing.T) {
	d := testDispatcher()
	d.Register("explode", func(ctx context.Context, req *protocol.Message, w protocol.ResponseWriter) {
		panic("kaboom")
	})

	rw := newRecordingWriter()
	d.Dispatch(context.Background(), protocol.NewRequest("r5", "explode", nil), rw)
	rw.waitOne(t)

	_, errors := rw.counts()
	if errors != 1 {
		t.Fatalf("expected one error, got %d", errors)
	}
	if rw.errors[0].Code != protocol.CodeInternal {
		t.Errorf("expected code 500, got %d", rw.errors[0].Code)
	}
}

func TestDispatchConcurrentHandlers(t *testing.T) {
	d := testDispatcher()

	// A slow handler must not delay a fast one issued after it.
	release := make(chan struct{})
	d.Register("slow", func(ctx context.Context, req *protocol.Message, w protocol.ResponseWriter) {
		<-release
		w.SendResponse(req.ID, nil)
	})
	d.Register("fast", func(ctx context.Context, req *protocol.Message, w protocol.ResponseWriter) {
		w.SendResponse(req.ID, nil)
	})

	rw := newRecordingWriter()
	d.Dispatch(context.Background(), protocol.NewRequest("s1", "slow", nil), rw)
	d.Dispatch(context.Background(), protocol.NewRequest("f1", "fast", nil), rw)

	rw.waitOne(t)
	rw.mu.Lock()
	first := rw.responses[0]
	rw.mu.Unlock()
	if first != "f1" {
		t.Errorf("fast response should arrive while slow is blocked, got %s first", first)
	}

	close(release)
	rw.waitOne(t)
	responses, _ := rw.counts()
	if responses != 2 {
		t.Errorf("expected 2 responses, got %d", responses)
	}
}
