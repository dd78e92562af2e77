package model

import "time"

// SessionStatus represents the lifecycle state of a persisted terminal
// session record.
type SessionStatus string

const (
	SessionStatusOpen   SessionStatus = "open"
	SessionStatusClosed SessionStatus = "closed"
)

// SessionRecord is the persisted form of a terminal session. Records outlive
// the in-memory session so that closed sessions remain auditable over the
// REST API.
type SessionRecord struct {
	ID        string        `json:"id"`
	Name      string        `json:"name"`
	Shell     string        `json:"shell"`
	Workdir   string        `json:"workdir"`
	Status    SessionStatus `json:"status"`
	ExitCode  *int          `json:"exitCode,omitempty"`
	CreatedAt time.Time     `json:"createdAt"`
	ClosedAt  *time.Time    `json:"closedAt,omitempty"`
}
