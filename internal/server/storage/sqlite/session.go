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

const sessionColumns = `
	id, document_id, actor_id, actor_name, discipline, region, client_id,
	status, end_reason, active, started_at, last_activity_at, ended_at
`

// CreateSession stores a new session
func (s *Storage) CreateSession(ctx context.Context, session *models.EditSession) error {
	region, err := encodeRegion(session.Region)
	if err != nil {
		return err
	}

	query := `INSERT INTO edit_sessions (` + sessionColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err = s.db.ExecContext(ctx, query,
		session.ID,
		session.DocumentID,
		session.ActorID,
		session.ActorName,
		string(session.Discipline),
		region,
		session.ClientID,
		string(session.Status),
		session.EndReason,
		boolToInt(session.Active),
		timeToNano(session.StartedAt),
		timeToNano(session.LastActivityAt),
		timeToNano(session.EndedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert session: %w", err)
	}

	return nil
}

// GetSession retrieves session by ID
func (s *Storage) GetSession(ctx context.Context, id string) (*models.EditSession, error) {
	query := `SELECT ` + sessionColumns + ` FROM edit_sessions WHERE id = ?`

	session, err := scanSession(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	return session, nil
}

// TouchSession sets last_activity_at of an active session
func (s *Storage) TouchSession(ctx context.Context, id string, at time.Time) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE edit_sessions SET last_activity_at = ? WHERE id = ?`,
		timeToNano(at), id,
	)
	if err != nil {
		return fmt.Errorf("failed to touch session: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return storage.ErrSessionNotFound
	}

	return nil
}

// DeactivateSession moves an active session into a terminal status
func (s *Storage) DeactivateSession(ctx context.Context, id string, status models.SessionStatus, reason string, at time.Time) (bool, error) {
	query := `
		UPDATE edit_sessions
		SET active = 0, status = ?, end_reason = ?, ended_at = ?
		WHERE id = ? AND active = 1
	`

	result, err := s.db.ExecContext(ctx, query, string(status), reason, timeToNano(at), id)
	if err != nil {
		return false, fmt.Errorf("failed to deactivate session: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rows > 0, nil
}

// ListSessions retrieves sessions matching the filter, newest first
func (s *Storage) ListSessions(ctx context.Context, filter storage.SessionFilter) ([]*models.EditSession, error) {
	var (
		conds []string
		args  []any
	)
	if filter.DocumentID != "" {
		conds = append(conds, "document_id = ?")
		args = append(args, filter.DocumentID)
	}
	if filter.ActorID != "" {
		conds = append(conds, "actor_id = ?")
		args = append(args, filter.ActorID)
	}
	if filter.ActiveOnly {
		conds = append(conds, "active = 1")
	}

	query := `SELECT ` + sessionColumns + ` FROM edit_sessions`
	if len(conds) > 0 {
		query += ` WHERE ` + strings.Join(conds, " AND ")
	}
	query += ` ORDER BY started_at DESC`

	return s.querySessions(ctx, query, args...)
}

// ListIdleSessions retrieves active sessions whose last activity is before cutoff
func (s *Storage) ListIdleSessions(ctx context.Context, cutoff time.Time) ([]*models.EditSession, error) {
	query := `
		SELECT ` + sessionColumns + ` FROM edit_sessions
		WHERE active = 1 AND last_activity_at < ?
		ORDER BY last_activity_at ASC
	`
	return s.querySessions(ctx, query, timeToNano(cutoff))
}

func (s *Storage) querySessions(ctx context.Context, query string, args ...any) ([]*models.EditSession, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	sessions := make([]*models.EditSession, 0)
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		sessions = append(sessions, session)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	return sessions, nil
}

func scanSession(row rowScanner) (*models.EditSession, error) {
	session := &models.EditSession{}
	var (
		discipline, status                 string
		region                             sql.NullString
		active                             int
		startedAt, lastActivityAt, endedAt int64
	)

	err := row.Scan(
		&session.ID,
		&session.DocumentID,
		&session.ActorID,
		&session.ActorName,
		&discipline,
		&region,
		&session.ClientID,
		&status,
		&session.EndReason,
		&active,
		&startedAt,
		&lastActivityAt,
		&endedAt,
	)
	if err != nil {
		return nil, err
	}

	session.Region, err = decodeRegion(region)
	if err != nil {
		return nil, err
	}
	session.Discipline = models.LockDiscipline(discipline)
	session.Status = models.SessionStatus(status)
	session.Active = intToBool(active)
	session.StartedAt = nanoToTime(startedAt)
	session.LastActivityAt = nanoToTime(lastActivityAt)
	session.EndedAt = nanoToTime(endedAt)

	return session, nil
}
