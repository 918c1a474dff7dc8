package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/iudanet/doccollab/internal/models"
	"github.com/iudanet/doccollab/internal/server/storage"
)

const lockColumns = `
	id, document_id, actor_id, discipline, region, session_id, active,
	acquired_at, expires_at, released_at, release_reason
`

// CreateLock stores a newly granted lock
func (s *Storage) CreateLock(ctx context.Context, lock *models.DocumentLock) error {
	region, err := encodeRegion(lock.Region)
	if err != nil {
		return err
	}

	query := `INSERT INTO document_locks (` + lockColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err = s.db.ExecContext(ctx, query,
		lock.ID,
		lock.DocumentID,
		lock.ActorID,
		string(lock.Discipline),
		region,
		lock.SessionID,
		boolToInt(lock.Active),
		timeToNano(lock.AcquiredAt),
		timeToNano(lock.ExpiresAt),
		timeToNano(lock.ReleasedAt),
		lock.ReleaseReason,
	)
	if err != nil {
		return fmt.Errorf("failed to insert lock: %w", err)
	}

	return nil
}

// GetLock retrieves lock by ID
func (s *Storage) GetLock(ctx context.Context, id string) (*models.DocumentLock, error) {
	query := `SELECT ` + lockColumns + ` FROM document_locks WHERE id = ?`

	lock, err := scanLock(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrLockNotFound
		}
		return nil, fmt.Errorf("failed to get lock: %w", err)
	}

	return lock, nil
}

// ListLocks retrieves locks matching the filter, oldest first
func (s *Storage) ListLocks(ctx context.Context, filter storage.LockFilter) ([]*models.DocumentLock, error) {
	var (
		conds []string
		args  []any
	)
	if filter.DocumentID != "" {
		conds = append(conds, "document_id = ?")
		args = append(args, filter.DocumentID)
	}
	if filter.SessionID != "" {
		conds = append(conds, "session_id = ?")
		args = append(args, filter.SessionID)
	}
	if filter.ActiveOnly {
		conds = append(conds, "active = 1")
	}
	if !filter.EffectiveAt.IsZero() {
		conds = append(conds, "expires_at > ?")
		args = append(args, timeToNano(filter.EffectiveAt))
	}

	query := `SELECT ` + lockColumns + ` FROM document_locks`
	if len(conds) > 0 {
		query += ` WHERE ` + strings.Join(conds, " AND ")
	}
	query += ` ORDER BY acquired_at ASC`

	return s.queryLocks(ctx, query, args...)
}

// DeactivateLock marks an active lock inactive with the given reason
func (s *Storage) DeactivateLock(ctx context.Context, id string, reason string, at time.Time) (bool, error) {
	query := `
		UPDATE document_locks
		SET active = 0, release_reason = ?, released_at = ?
		WHERE id = ? AND active = 1
	`

	result, err := s.db.ExecContext(ctx, query, reason, timeToNano(at), id)
	if err != nil {
		return false, fmt.Errorf("failed to deactivate lock: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rows > 0, nil
}

// ListExpiredLocks retrieves active locks with expires_at not after now
func (s *Storage) ListExpiredLocks(ctx context.Context, now time.Time) ([]*models.DocumentLock, error) {
	query := `
		SELECT ` + lockColumns + ` FROM document_locks
		WHERE active = 1 AND expires_at <= ?
		ORDER BY expires_at ASC
	`
	return s.queryLocks(ctx, query, timeToNano(now))
}

func (s *Storage) queryLocks(ctx context.Context, query string, args ...any) ([]*models.DocumentLock, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query locks: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	locks := make([]*models.DocumentLock, 0)
	for rows.Next() {
		lock, err := scanLock(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan lock: %w", err)
		}
		locks = append(locks, lock)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	return locks, nil
}

func scanLock(row rowScanner) (*models.DocumentLock, error) {
	lock := &models.DocumentLock{}
	var (
		discipline                        string
		region                            sql.NullString
		active                            int
		acquiredAt, expiresAt, releasedAt int64
	)

	err := row.Scan(
		&lock.ID,
		&lock.DocumentID,
		&lock.ActorID,
		&discipline,
		&region,
		&lock.SessionID,
		&active,
		&acquiredAt,
		&expiresAt,
		&releasedAt,
		&lock.ReleaseReason,
	)
	if err != nil {
		return nil, err
	}

	lock.Region, err = decodeRegion(region)
	if err != nil {
		return nil, err
	}
	lock.Discipline = models.LockDiscipline(discipline)
	lock.Active = intToBool(active)
	lock.AcquiredAt = nanoToTime(acquiredAt)
	lock.ExpiresAt = nanoToTime(expiresAt)
	lock.ReleasedAt = nanoToTime(releasedAt)

	return lock, nil
}
