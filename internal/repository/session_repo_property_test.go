package repository

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/shell-bridge/backend/internal/db"
	"github.com/shell-bridge/backend/internal/model"
)

// Property: any created record can be retrieved with its fields intact, and
// closing it records exactly the given exit code.
func TestSessionRecordLifecycleProperty(t *testing.T) {
	conn, err := db.OpenMemory()
	if err != nil {
		t.Fatalf("opening in-memory db: %v", err)
	}
	defer conn.Close()

	repo := NewSessionRepository(conn)
	ctx := context.Background()

	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	nonEmptyString := gen.AlphaString().SuchThat(func(s string) bool {
		return len(s) > 0 && len(s) <= 100
	})

	properties.Property("create then get preserves fields", prop.ForAll(
		func(name, shell, workdir string) bool {
			record := &model.SessionRecord{
				ID:        uuid.New().String(),
				Name:      name,
				Shell:     shell,
				Workdir:   workdir,
				Status:    model.SessionStatusOpen,
				CreatedAt: time.Now(),
			}
			if err := repo.Create(ctx, record); err != nil {
				return false
			}
			got, err := repo.GetByID(ctx, record.ID)
			if err != nil {
				return false
			}
			return got.Name == name &&
				got.Shell == shell &&
				got.Workdir == workdir &&
				got.Status == model.SessionStatusOpen
		},
		nonEmptyString,
		nonEmptyString,
		nonEmptyString,
	))

	properties.Property("close records the exit code", prop.ForAll(
		func(name string, exitCode int) bool {
			record := &model.SessionRecord{
				ID:        uuid.New().String(),
				Name:      name,
				Shell:     "/bin/sh",
				Workdir:   "/",
				Status:    model.SessionStatusOpen,
				CreatedAt: time.Now(),
			}
			if err := repo.Create(ctx, record); err != nil {
				return false
			}
			if err := repo.Close(ctx, record.ID, &exitCode); err != nil {
				return false
			}
			got, err := repo.GetByID(ctx, record.ID)
			if err != nil {
				return false
			}
			return got.Status == model.SessionStatusClosed &&
				got.ExitCode != nil &&
				*got.ExitCode == exitCode &&
				got.ClosedAt != nil
		},
		nonEmptyString,
		gen.IntRange(0, 255),
	))

	properties.TestingRun(t)
}
