package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/shell-bridge/backend/internal/db"
	"github.com/shell-bridge/backend/internal/model"
)

func testRepo(t *testing.T) *SessionRepository {
	t.Helper()
	conn, err := db.OpenMemory()
	if err != nil {
		t.Fatalf("opening in-memory db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return NewSessionRepository(conn)
}

func testRecord() *model.SessionRecord {
	return &model.SessionRecord{
		ID:        uuid.New().String(),
		Name:      "Terminal-1",
		Shell:     "/bin/bash",
		Workdir:   "/tmp",
		Status:    model.SessionStatusOpen,
		CreatedAt: time.Now(),
	}
}

func TestSessionRepository_CreateAndGet(t *testing.T) {
	repo := testRepo(t)
	ctx := context.Background()

	record := testRecord()
	if err := repo.Create(ctx, record); err != nil {
		t.Fatalf("unexpected create error: %v", err)
	}

	got, err := repo.GetByID(ctx, record.ID)
	if err != nil {
		t.Fatalf("unexpected get error: %v", err)
	}
	if got.ID != record.ID || got.Name != record.Name || got.Shell != record.Shell {
		t.Errorf("retrieved record differs: %+v", got)
	}
	if got.Status != model.SessionStatusOpen {
		t.Errorf("expected status open, got %s", got.Status)
	}
	if got.ExitCode != nil || got.ClosedAt != nil {
		t.Error("open record should have no exit code or close time")
	}
}

func TestSessionRepository_GetUnknown(t *testing.T) {
	repo := testRepo(t)

	if _, err := repo.GetByID(context.Background(), "ghost"); !errors.Is(err, model.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestSessionRepository_Close(t *testing.T) {
	repo := testRepo(t)
	ctx := context.Background()

	record := testRecord()
	if err := repo.Create(ctx, record); err != nil {
		t.Fatalf("unexpected create error: %v", err)
	}

	code := 0
	if err := repo.Close(ctx, record.ID, &code); err != nil {
		t.Fatalf("unexpected close error: %v", err)
	}

	got, err := repo.GetByID(ctx, record.ID)
	if err != nil {
		t.Fatalf("unexpected get error: %v", err)
	}
	if got.Status != model.SessionStatusClosed {
		t.Errorf("expected status closed, got %s", got.Status)
	}
	if got.ExitCode == nil || *got.ExitCode != 0 {
		t.Errorf("expected exit code 0, got %v", got.ExitCode)
	}
	if got.ClosedAt == nil {
		t.Error("expected close time")
	}
}

func TestSessionRepository_CloseUnknown(t *testing.T) {
	repo := testRepo(t)

	code := 1
	if err := repo.Close(context.Background(), "ghost", &code); !errors.Is(err, model.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestSessionRepository_ListNewestFirst(t *testing.T) {
	repo := testRepo(t)
	ctx := context.Background()

	older := testRecord()
	older.CreatedAt = time.Now().Add(-time.Hour)
	newer := testRecord()

	if err := repo.Create(ctx, older); err != nil {
		t.Fatalf("unexpected create error: %v", err)
	}
	if err := repo.Create(ctx, newer); err != nil {
		t.Fatalf("unexpected create error: %v", err)
	}

	records, err := repo.List(ctx)
	if err != nil {
		t.Fatalf("unexpected list error: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	if records[0].ID != newer.ID {
		t.Errorf("expected newest record first")
	}
}

func TestSessionRepository_CountOpen(t *testing.T) {
	repo := testRepo(t)
	ctx := context.Background()

	first := testRecord()
	second := testRecord()
	if err := repo.Create(ctx, first); err != nil {
		t.Fatalf("unexpected create error: %v", err)
	}
	if err := repo.Create(ctx, second); err != nil {
		t.Fatalf("unexpected create error: %v", err)
	}

	count, err := repo.CountOpen(ctx)
	if err != nil {
		t.Fatalf("unexpected count error: %v", err)
	}
	if count != 2 {
		t.Errorf("expected 2 open records, got %d", count)
	}

	code := 130
	if err := repo.Close(ctx, first.ID, &code); err != nil {
		t.Fatalf("unexpected close error: %v", err)
	}
	count, err = repo.CountOpen(ctx)
	if err != nil {
		t.Fatalf("unexpected count error: %v", err)
	}
	if count != 1 {
		t.Errorf("expected 1 open record, got %d", count)
	}
}
