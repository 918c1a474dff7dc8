package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/iudanet/doccollab/internal/models"
	"github.com/iudanet/doccollab/internal/server/storage"
)

const operationColumns = `
	id, session_id, document_id, actor_id, kind, line, character, offset_pos,
	content, length, submitted_at, sequence_number
`

// AppendOperation stores a new operation
func (s *Storage) AppendOperation(ctx context.Context, op *models.EditOperation) error {
	query := `INSERT INTO edit_operations (` + operationColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := s.db.ExecContext(ctx, query,
		op.ID,
		op.SessionID,
		op.DocumentID,
		op.ActorID,
		string(op.Kind),
		op.Position.Line,
		op.Position.Character,
		intPtrToNull(op.Position.Offset),
		op.Content,
		intPtrToNull(op.Length),
		timeToNano(op.SubmittedAt),
		op.SequenceNumber,
	)
	if err != nil {
		// UNIQUE (session_id, sequence_number) страхует от гонки внутри одной сессии
		if isUniqueViolation(err) && strings.Contains(err.Error(), "sequence_number") {
			return storage.ErrDuplicateSequence
		}
		return fmt.Errorf("failed to insert operation: %w", err)
	}

	return nil
}

// GetOperation retrieves operation by ID
func (s *Storage) GetOperation(ctx context.Context, id string) (*models.EditOperation, error) {
	query := `SELECT ` + operationColumns + ` FROM edit_operations WHERE id = ?`

	op, err := scanOperation(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrOperationNotFound
		}
		return nil, fmt.Errorf("failed to get operation: %w", err)
	}

	return op, nil
}

// MaxSequence returns the highest sequence number of the session, 0 if none
func (s *Storage) MaxSequence(ctx context.Context, sessionID string) (int64, error) {
	var seq int64
	err := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(sequence_number), 0) FROM edit_operations WHERE session_id = ?`,
		sessionID,
	).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("failed to get max sequence: %w", err)
	}
	return seq, nil
}

// ListOperations retrieves operations matching the filter, newest first
func (s *Storage) ListOperations(ctx context.Context, filter storage.OperationFilter) ([]*models.EditOperation, error) {
	var (
		conds []string
		args  []any
	)
	if filter.DocumentID != "" {
		conds = append(conds, "document_id = ?")
		args = append(args, filter.DocumentID)
	}
	if filter.ExcludeActorID != "" {
		conds = append(conds, "actor_id <> ?")
		args = append(args, filter.ExcludeActorID)
	}
	if !filter.Since.IsZero() {
		conds = append(conds, "submitted_at >= ?")
		args = append(args, timeToNano(filter.Since))
	}
	if !filter.Until.IsZero() {
		conds = append(conds, "submitted_at <= ?")
		args = append(args, timeToNano(filter.Until))
	}

	query := `SELECT ` + operationColumns + ` FROM edit_operations`
	if len(conds) > 0 {
		query += ` WHERE ` + strings.Join(conds, " AND ")
	}
	// id как последний ключ делает порядок полным, что нужно для постраничного чтения
	query += ` ORDER BY submitted_at DESC, sequence_number DESC, id DESC`
	if filter.Limit > 0 {
		query += ` LIMIT ? OFFSET ?`
		args = append(args, filter.Limit, filter.Offset)
	}

	return s.queryOperations(ctx, query, args...)
}

// ListSessionOperations retrieves all operations of a session ordered by sequence number
func (s *Storage) ListSessionOperations(ctx context.Context, sessionID string) ([]*models.EditOperation, error) {
	query := `SELECT ` + operationColumns + ` FROM edit_operations WHERE session_id = ? ORDER BY sequence_number ASC`
	return s.queryOperations(ctx, query, sessionID)
}

func (s *Storage) queryOperations(ctx context.Context, query string, args ...any) ([]*models.EditOperation, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query operations: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	ops := make([]*models.EditOperation, 0)
	for rows.Next() {
		op, err := scanOperation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan operation: %w", err)
		}
		ops = append(ops, op)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	return ops, nil
}

func scanOperation(row rowScanner) (*models.EditOperation, error) {
	op := &models.EditOperation{}
	var (
		kind           string
		offset, length sql.NullInt64
		submittedAt    int64
	)

	err := row.Scan(
		&op.ID,
		&op.SessionID,
		&op.DocumentID,
		&op.ActorID,
		&kind,
		&op.Position.Line,
		&op.Position.Character,
		&offset,
		&op.Content,
		&length,
		&submittedAt,
		&op.SequenceNumber,
	)
	if err != nil {
		return nil, err
	}

	op.Kind = models.OperationKind(kind)
	op.Position.Offset = nullToIntPtr(offset)
	op.Length = nullToIntPtr(length)
	op.SubmittedAt = nanoToTime(submittedAt)

	return op, nil
}
