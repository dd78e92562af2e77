// Package repository provides data access for terminal session records.
package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/shell-bridge/backend/internal/model"
)

// SessionRepository persists terminal session lifecycle records. Records are
// an audit trail: they are written on create and close and survive the
// in-memory session.
type SessionRepository struct {
	db *sql.DB
}

// NewSessionRepository creates a new SessionRepository.
func NewSessionRepository(db *sql.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

// Create inserts a new session record.
func (r *SessionRepository) Create(ctx context.Context, record *model.SessionRecord) error {
	query := `
		INSERT INTO terminal_sessions (id, name, shell, workdir, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, query,
		record.ID,
		record.Name,
		record.Shell,
		record.Workdir,
		record.Status,
		record.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("creating session record: %w", err)
	}
	return nil
}

// Close marks a session record closed with its shell's exit code.
func (r *SessionRepository) Close(ctx context.Context, id string, exitCode *int) error {
	query := `
		UPDATE terminal_sessions
		SET status = ?, exit_code = ?, closed_at = ?
		WHERE id = ?
	`

	result, err := r.db.ExecContext(ctx, query, model.SessionStatusClosed, exitCode, time.Now(), id)
	if err != nil {
		return fmt.Errorf("closing session record: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("session record %s: %w", id, model.ErrNotFound)
	}
	return nil
}

// GetByID retrieves one session record.
func (r *SessionRepository) GetByID(ctx context.Context, id string) (*model.SessionRecord, error) {
	query := `
		SELECT id, name, shell, workdir, status, exit_code, created_at, closed_at
		FROM terminal_sessions
		WHERE id = ?
	`

	record, err := scanRecord(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("session record %s: %w", id, model.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("getting session record: %w", err)
	}
	return record, nil
}

// List retrieves all session records, newest first.
func (r *SessionRepository) List(ctx context.Context) ([]*model.SessionRecord, error) {
	query := `
		SELECT id, name, shell, workdir, status, exit_code, created_at, closed_at
		FROM terminal_sessions
		ORDER BY created_at DESC
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("listing session records: %w", err)
	}
	defer rows.Close()

	var records []*model.SessionRecord
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning session record: %w", err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating session records: %w", err)
	}
	return records, nil
}

// CountOpen returns the number of records still marked open.
func (r *SessionRepository) CountOpen(ctx context.Context) (int, error) {
	query := `SELECT COUNT(*) FROM terminal_sessions WHERE status = ?`

	var count int
	if err := r.db.QueryRowContext(ctx, query, model.SessionStatusOpen).Scan(&count); err != nil {
		return 0, fmt.Errorf("counting open session records: %w", err)
	}
	return count, nil
}

// scanner abstracts sql.Row and sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (*model.SessionRecord, error) {
	record := &model.SessionRecord{}
	var exitCode sql.NullInt64
	var closedAt sql.NullTime

	err := row.Scan(
		&record.ID,
		&record.Name,
		&record.Shell,
		&record.Workdir,
		&record.Status,
		&exitCode,
		&record.CreatedAt,
		&closedAt,
	)
	if err != nil {
		return nil, err
	}

	if exitCode.Valid {
		code := int(exitCode.Int64)
		record.ExitCode = &code
	}
	if closedAt.Valid {
		t := closedAt.Time
		record.ClosedAt = &t
	}
	return record, nil
}
