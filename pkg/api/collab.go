package api

import (
	"time"

	"github.com/iudanet/doccollab/internal/models"
)

// CreateDocumentRequest запрос на регистрацию документа
type CreateDocumentRequest struct {
	Title string `json:"title"`
}

// GrantEditRequest запрос на выдачу права редактирования
type GrantEditRequest struct {
	ActorID string `json:"actor_id"`
}

// StartSessionRequest запрос на открытие сессии редактирования
type StartSessionRequest struct {
	Region     *models.Region `json:"region,omitempty"`
	DocumentID string         `json:"document_id"`
	ActorName  string         `json:"actor_name,omitempty"`
	Discipline string         `json:"discipline,omitempty"` // пусто = optimistic
}

// StartSessionResponse открытая сессия и, если дисциплина требует, ее блокировка
type StartSessionResponse struct {
	Session *models.EditSession  `json:"session"`
	Lock    *models.DocumentLock `json:"lock,omitempty"`
}

// SubmitOperationRequest операция редактирования в рамках сессии
type SubmitOperationRequest struct {
	Length   *int            `json:"length,omitempty"`
	Kind     string          `json:"kind"`
	Content  string          `json:"content,omitempty"`
	Position models.Position `json:"position"`
}

// SubmitOperationResponse записанная операция и результат анализа конфликтов
type SubmitOperationResponse struct {
	Operation   *models.EditOperation        `json:"operation"`
	Conflicts   []*models.Conflict           `json:"conflicts,omitempty"`
	Resolutions []*models.ConflictResolution `json:"resolutions,omitempty"`
	Warnings    []string                     `json:"warnings,omitempty"`
}

// AcquireLockRequest запрос на дополнительную блокировку
type AcquireLockRequest struct {
	Region     *models.Region `json:"region,omitempty"`
	DocumentID string         `json:"document_id"`
	SessionID  string         `json:"session_id,omitempty"`
	Discipline string         `json:"discipline"`
}

// AcquireLockResponse выданная блокировка; Lock == nil для optimistic
type AcquireLockResponse struct {
	Lock    *models.DocumentLock `json:"lock,omitempty"`
	Granted bool                 `json:"granted"`
}

// StateResponse состояние совместной работы над документом
type StateResponse struct {
	GeneratedAt      time.Time               `json:"generated_at"`
	HaltedAt         *time.Time              `json:"halted_at,omitempty"`
	DocumentID       string                  `json:"document_id"`
	HaltReason       string                  `json:"halt_reason,omitempty"`
	ActiveSessions   []*models.EditSession   `json:"active_sessions"`
	RecentOperations []*models.EditOperation `json:"recent_operations"`
	ActiveLocks      []*models.DocumentLock  `json:"active_locks"`
	PendingConflicts int                     `json:"pending_conflicts"`
	Halted           bool                    `json:"halted"`
}

// ResumeResponse ответ на снятие остановки документа
type ResumeResponse struct {
	DocumentID string `json:"document_id"`
	Resumed    bool   `json:"resumed"` // false, если документ не был остановлен
}
