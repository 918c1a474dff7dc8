package storage

import (
	"context"
	"time"

	"github.com/iudanet/doccollab/internal/models"
)

// OperationFilter narrows operation listings
type OperationFilter struct {
	// Since when non-zero keeps only operations submitted at or after this instant
	Since time.Time
	// Until when non-zero keeps only operations submitted at or before this instant
	Until          time.Time
	DocumentID     string
	ExcludeActorID string
	Limit          int
	Offset         int
}

// OperationStorage defines interface for the append-only operation log.
// There is deliberately no update or delete.
type OperationStorage interface {
	// AppendOperation stores a new operation
	// Returns ErrDuplicateSequence if (session_id, sequence_number) is taken
	AppendOperation(ctx context.Context, op *models.EditOperation) error

	// GetOperation retrieves operation by ID
	// Returns ErrOperationNotFound if operation doesn't exist
	GetOperation(ctx context.Context, id string) (*models.EditOperation, error)

	// MaxSequence returns the highest sequence number of the session, 0 if none
	MaxSequence(ctx context.Context, sessionID string) (int64, error)

	// ListOperations retrieves operations matching the filter, newest first
	ListOperations(ctx context.Context, filter OperationFilter) ([]*models.EditOperation, error)

	// ListSessionOperations retrieves all operations of a session ordered by sequence number
	ListSessionOperations(ctx context.Context, sessionID string) ([]*models.EditOperation, error)
}
