package storage

import (
	"context"
	"time"

	"github.com/iudanet/doccollab/internal/models"
)

// SessionFilter narrows session listings
type SessionFilter struct {
	DocumentID string
	ActorID    string
	ActiveOnly bool
}

// SessionStorage defines interface for edit session persistence
type SessionStorage interface {
	// CreateSession stores a new session
	CreateSession(ctx context.Context, session *models.EditSession) error

	// GetSession retrieves session by ID
	// Returns ErrSessionNotFound if session doesn't exist
	GetSession(ctx context.Context, id string) (*models.EditSession, error)

	// TouchSession sets last_activity_at of an active session
	// Returns ErrSessionNotFound if session doesn't exist
	TouchSession(ctx context.Context, id string, at time.Time) error

	// DeactivateSession moves an active session into a terminal status
	// Returns false if the session was already inactive
	DeactivateSession(ctx context.Context, id string, status models.SessionStatus, reason string, at time.Time) (bool, error)

	// ListSessions retrieves sessions matching the filter, newest first
	// Returns empty slice if no sessions found
	ListSessions(ctx context.Context, filter SessionFilter) ([]*models.EditSession, error)

	// ListIdleSessions retrieves active sessions whose last activity is before cutoff
	ListIdleSessions(ctx context.Context, cutoff time.Time) ([]*models.EditSession, error)
}
