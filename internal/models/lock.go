package models

import (
	"fmt"
	"time"
)

// LockDiscipline is the concurrency-control mode a session requests.
type LockDiscipline string

// Lock disciplines
const (
	// DisciplineExclusive single writer over the whole document
	DisciplineExclusive LockDiscipline = "exclusive"
	// DisciplineShared many readers, one writer
	DisciplineShared LockDiscipline = "shared"
	// DisciplineRegion exclusive over a named or positional sub-range
	DisciplineRegion LockDiscipline = "region"
	// DisciplineOptimistic no lock, conflicts are detected after the fact
	DisciplineOptimistic LockDiscipline = "optimistic"
)

// ParseLockDiscipline converts a wire value into a LockDiscipline.
// An empty string selects the optimistic discipline.
func ParseLockDiscipline(s string) (LockDiscipline, error) {
	switch d := LockDiscipline(s); d {
	case DisciplineExclusive, DisciplineShared, DisciplineRegion, DisciplineOptimistic:
		return d, nil
	case "":
		return DisciplineOptimistic, nil
	default:
		return "", fmt.Errorf("unknown lock discipline %q", s)
	}
}

// Valid reports whether d is one of the known disciplines.
func (d LockDiscipline) Valid() bool {
	_, err := ParseLockDiscipline(string(d))
	return err == nil && d != ""
}

// RequiresLock reports whether a session with this discipline must hold a lock record.
func (d LockDiscipline) RequiresLock() bool {
	return d != DisciplineOptimistic
}

// Lock release reasons
const (
	ReleaseReasonReleased     = "released"
	ReleaseReasonSessionEnded = "session_ended"
	ReleaseReasonExpired      = "expired"
	ReleaseReasonTimeout      = "timeout"
)

// DocumentLock представляет выданное право на редактирование документа или его региона.
// Неактивные блокировки не удаляются и остаются для аудита.
type DocumentLock struct {
	AcquiredAt    time.Time      `json:"acquired_at"`
	ExpiresAt     time.Time      `json:"expires_at"`
	ReleasedAt    time.Time      `json:"released_at,omitempty"`
	Region        *Region        `json:"region,omitempty"`
	ID            string         `json:"id"`
	DocumentID    string         `json:"document_id"`
	ActorID       string         `json:"actor_id"`
	Discipline    LockDiscipline `json:"discipline"`
	SessionID     string         `json:"session_id,omitempty"` // SessionID сессия-владелец (может отсутствовать)
	ReleaseReason string         `json:"release_reason,omitempty"`
	Active        bool           `json:"active"`
}

// IsEffective reports whether the lock participates in compatibility checks at now.
func (l *DocumentLock) IsEffective(now time.Time) bool {
	return l.Active && now.Before(l.ExpiresAt)
}
