package storage

import (
	"context"

	"github.com/iudanet/doccollab/internal/models"
)

// DocumentStorage defines interface for the document registry used for
// existence and edit-capability checks
type DocumentStorage interface {
	// CreateDocument registers a new document
	// Returns ErrDocumentAlreadyExists if the ID is taken
	CreateDocument(ctx context.Context, doc *models.Document) error

	// GetDocument retrieves document by ID
	// Returns ErrDocumentNotFound if document doesn't exist
	GetDocument(ctx context.Context, id string) (*models.Document, error)

	// DocumentExists reports whether the document is registered
	DocumentExists(ctx context.Context, id string) (bool, error)

	// GrantEdit gives actorID edit capability on the document
	// Granting twice is a no-op
	GrantEdit(ctx context.Context, documentID, actorID string) error

	// HasEditCapability reports whether actorID owns the document or was granted edit capability
	HasEditCapability(ctx context.Context, documentID, actorID string) (bool, error)
}
