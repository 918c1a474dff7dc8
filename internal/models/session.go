package models

import "time"

// SessionStatus is the lifecycle state of an edit session.
type SessionStatus string

// Session states. Ended and expired are terminal.
const (
	SessionActive  SessionStatus = "active"
	SessionEnded   SessionStatus = "ended"
	SessionExpired SessionStatus = "expired"
)

// EditSession представляет активный контекст редактирования одного актора над одним документом.
// Сессии никогда не удаляются физически.
type EditSession struct {
	StartedAt      time.Time      `json:"started_at"`
	LastActivityAt time.Time      `json:"last_activity_at"` // LastActivityAt обновляется при каждой операции
	EndedAt        time.Time      `json:"ended_at,omitempty"`
	Region         *Region        `json:"region,omitempty"`
	ID             string         `json:"id"`
	DocumentID     string         `json:"document_id"`
	ActorID        string         `json:"actor_id"`
	ActorName      string         `json:"actor_name"`
	Discipline     LockDiscipline `json:"discipline"`
	ClientID       string         `json:"client_id"` // ClientID непрозрачный токен для корреляции real-time обновлений
	Status         SessionStatus  `json:"status"`
	EndReason      string         `json:"end_reason,omitempty"`
	Active         bool           `json:"active"`
}

// IdleSince reports whether the session has seen no activity since cutoff.
func (s *EditSession) IdleSince(cutoff time.Time) bool {
	return s.LastActivityAt.Before(cutoff)
}
