package storage

import (
	"context"

	"github.com/iudanet/doccollab/internal/models"
)

// ConflictStorage defines interface for conflict persistence
type ConflictStorage interface {
	// SaveConflict stores a detected conflict
	SaveConflict(ctx context.Context, conflict *models.Conflict) error

	// GetConflict retrieves conflict by ID
	// Returns ErrConflictNotFound if conflict doesn't exist
	GetConflict(ctx context.Context, id string) (*models.Conflict, error)

	// ListConflicts retrieves conflicts of a document with the given status, newest first.
	// Empty status matches every status.
	ListConflicts(ctx context.Context, documentID string, status models.ConflictStatus) ([]*models.Conflict, error)

	// CountConflicts counts conflicts of a document with the given status
	CountConflicts(ctx context.Context, documentID string, status models.ConflictStatus) (int, error)
}

// Store aggregates every record storage the coordinator needs
type Store interface {
	DocumentStorage
	SessionStorage
	LockStorage
	OperationStorage
	ConflictStorage
}
