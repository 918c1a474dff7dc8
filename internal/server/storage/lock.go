package storage

import (
	"context"
	"time"

	"github.com/iudanet/doccollab/internal/models"
)

// LockFilter narrows lock listings
type LockFilter struct {
	// EffectiveAt when non-zero keeps only locks with expires_at after this instant
	EffectiveAt time.Time
	DocumentID  string
	SessionID   string
	ActiveOnly  bool
}

// LockStorage defines interface for document lock persistence
type LockStorage interface {
	// CreateLock stores a newly granted lock
	CreateLock(ctx context.Context, lock *models.DocumentLock) error

	// GetLock retrieves lock by ID
	// Returns ErrLockNotFound if lock doesn't exist
	GetLock(ctx context.Context, id string) (*models.DocumentLock, error)

	// ListLocks retrieves locks matching the filter, oldest first
	// Returns empty slice if no locks found
	ListLocks(ctx context.Context, filter LockFilter) ([]*models.DocumentLock, error)

	// DeactivateLock marks an active lock inactive with the given reason
	// Returns false if the lock was already inactive
	DeactivateLock(ctx context.Context, id string, reason string, at time.Time) (bool, error)

	// ListExpiredLocks retrieves active locks with expires_at not after now
	ListExpiredLocks(ctx context.Context, now time.Time) ([]*models.DocumentLock, error)
}
