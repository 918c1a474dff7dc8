package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/iudanet/doccollab/internal/models"
	"github.com/iudanet/doccollab/internal/server/storage"
)

// CreateDocument registers a new document
func (s *Storage) CreateDocument(ctx context.Context, doc *models.Document) error {
	query := `
		INSERT INTO documents (id, owner_id, title, created_at)
		VALUES (?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		doc.ID,
		doc.OwnerID,
		doc.Title,
		timeToNano(doc.CreatedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return storage.ErrDocumentAlreadyExists
		}
		return fmt.Errorf("failed to insert document: %w", err)
	}

	return nil
}

// GetDocument retrieves document by ID
func (s *Storage) GetDocument(ctx context.Context, id string) (*models.Document, error) {
	query := `SELECT id, owner_id, title, created_at FROM documents WHERE id = ?`

	doc := &models.Document{}
	var createdAt int64

	err := s.db.QueryRowContext(ctx, query, id).Scan(&doc.ID, &doc.OwnerID, &doc.Title, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrDocumentNotFound
		}
		return nil, fmt.Errorf("failed to get document: %w", err)
	}
	doc.CreatedAt = nanoToTime(createdAt)

	return doc, nil
}

// DocumentExists reports whether the document is registered
func (s *Storage) DocumentExists(ctx context.Context, id string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM documents WHERE id = ?`, id).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to check document: %w", err)
	}
	return n > 0, nil
}

// GrantEdit gives actorID edit capability on the document
func (s *Storage) GrantEdit(ctx context.Context, documentID, actorID string) error {
	exists, err := s.DocumentExists(ctx, documentID)
	if err != nil {
		return err
	}
	if !exists {
		return storage.ErrDocumentNotFound
	}

	query := `
		INSERT OR IGNORE INTO document_editors (document_id, actor_id, granted_at)
		VALUES (?, ?, ?)
	`
	if _, err := s.db.ExecContext(ctx, query, documentID, actorID, time.Now().UnixNano()); err != nil {
		return fmt.Errorf("failed to grant edit: %w", err)
	}

	return nil
}

// HasEditCapability reports whether actorID owns the document or was granted edit capability
func (s *Storage) HasEditCapability(ctx context.Context, documentID, actorID string) (bool, error) {
	query := `
		SELECT COUNT(1) FROM documents d
		WHERE d.id = ? AND (
			d.owner_id = ? OR EXISTS (
				SELECT 1 FROM document_editors e
				WHERE e.document_id = d.id AND e.actor_id = ?
			)
		)
	`

	var n int
	if err := s.db.QueryRowContext(ctx, query, documentID, actorID, actorID).Scan(&n); err != nil {
		return false, fmt.Errorf("failed to check edit capability: %w", err)
	}

	return n > 0, nil
}
