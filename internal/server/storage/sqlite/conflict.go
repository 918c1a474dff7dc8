package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/iudanet/doccollab/internal/models"
	"github.com/iudanet/doccollab/internal/server/storage"
)

const conflictColumns = `
	id, document_id, kind, severity, operation_ids, affected_region,
	auto_resolvable, description, status, detected_at
`

// SaveConflict stores a detected conflict
func (s *Storage) SaveConflict(ctx context.Context, conflict *models.Conflict) error {
	region, err := encodeRegion(conflict.AffectedRegion)
	if err != nil {
		return err
	}

	opIDs, err := json.Marshal(conflict.OperationIDs)
	if err != nil {
		return fmt.Errorf("failed to marshal operation ids: %w", err)
	}

	query := `INSERT INTO conflicts (` + conflictColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err = s.db.ExecContext(ctx, query,
		conflict.ID,
		conflict.DocumentID,
		string(conflict.Kind),
		string(conflict.Severity),
		string(opIDs),
		region,
		boolToInt(conflict.AutoResolvable),
		conflict.Description,
		string(conflict.Status),
		timeToNano(conflict.DetectedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert conflict: %w", err)
	}

	return nil
}

// GetConflict retrieves conflict by ID
func (s *Storage) GetConflict(ctx context.Context, id string) (*models.Conflict, error) {
	query := `SELECT ` + conflictColumns + ` FROM conflicts WHERE id = ?`

	conflict, err := scanConflict(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrConflictNotFound
		}
		return nil, fmt.Errorf("failed to get conflict: %w", err)
	}

	return conflict, nil
}

// ListConflicts retrieves conflicts of a document with the given status, newest first
func (s *Storage) ListConflicts(ctx context.Context, documentID string, status models.ConflictStatus) ([]*models.Conflict, error) {
	query := `
		SELECT ` + conflictColumns + ` FROM conflicts
		WHERE document_id = ? AND (? = '' OR status = ?)
		ORDER BY detected_at DESC
	`

	rows, err := s.db.QueryContext(ctx, query, documentID, string(status), string(status))
	if err != nil {
		return nil, fmt.Errorf("failed to query conflicts: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	conflicts := make([]*models.Conflict, 0)
	for rows.Next() {
		conflict, err := scanConflict(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan conflict: %w", err)
		}
		conflicts = append(conflicts, conflict)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	return conflicts, nil
}

// CountConflicts counts conflicts of a document with the given status
func (s *Storage) CountConflicts(ctx context.Context, documentID string, status models.ConflictStatus) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM conflicts WHERE document_id = ? AND (? = '' OR status = ?)`,
		documentID, string(status), string(status),
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count conflicts: %w", err)
	}
	return n, nil
}

func scanConflict(row rowScanner) (*models.Conflict, error) {
	conflict := &models.Conflict{}
	var (
		kind, severity, status, opIDs string
		region                        sql.NullString
		autoResolvable                int
		detectedAt                    int64
	)

	err := row.Scan(
		&conflict.ID,
		&conflict.DocumentID,
		&kind,
		&severity,
		&opIDs,
		&region,
		&autoResolvable,
		&conflict.Description,
		&status,
		&detectedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(opIDs), &conflict.OperationIDs); err != nil {
		return nil, fmt.Errorf("failed to unmarshal operation ids: %w", err)
	}
	conflict.AffectedRegion, err = decodeRegion(region)
	if err != nil {
		return nil, err
	}
	conflict.Kind = models.ConflictKind(kind)
	conflict.Severity = models.Severity(severity)
	conflict.Status = models.ConflictStatus(status)
	conflict.AutoResolvable = intToBool(autoResolvable)
	conflict.DetectedAt = nanoToTime(detectedAt)

	return conflict, nil
}
