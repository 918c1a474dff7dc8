// Package session ведет жизненный цикл сессий редактирования:
// created → active → {ended | expired}. Завершенная сессия не возобновляется.
package session

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/iudanet/doccollab/internal/errs"
	"github.com/iudanet/doccollab/internal/models"
	"github.com/iudanet/doccollab/internal/server/audit"
	"github.com/iudanet/doccollab/internal/server/lock"
	"github.com/iudanet/doccollab/internal/server/notify"
	"github.com/iudanet/doccollab/internal/server/storage"
	"github.com/iudanet/doccollab/internal/validation"
)

// DefaultTimeout время простоя, после которого сессия истекает
const DefaultTimeout = 60 * time.Minute

// EndReasonEnded причина явного завершения сессии
const EndReasonEnded = "ended"

// DocumentAccess проверки существования документа и права на редактирование
type DocumentAccess interface {
	DocumentExists(ctx context.Context, documentID string) (bool, error)
	HasEditCapability(ctx context.Context, documentID, actorID string) (bool, error)
}

// Locker часть lock.Manager, которая нужна сессиям
type Locker interface {
	Acquire(ctx context.Context, req lock.AcquireRequest) (*models.DocumentLock, error)
	ReleaseSession(ctx context.Context, sessionID, reason string) (int, error)
}

// StartRequest параметры старта сессии
type StartRequest struct {
	Region     *models.Region
	DocumentID string
	ActorID    string
	ActorName  string
	Discipline models.LockDiscipline
}

// Started результат старта сессии
type Started struct {
	Session *models.EditSession
	Lock    *models.DocumentLock // Lock nil для OPTIMISTIC
}

// Manager управляет сессиями
type Manager struct {
	store    storage.SessionStorage
	docs     DocumentAccess
	locks    Locker
	recorder *audit.Recorder
	notifier *notify.Notifier
	logger   *slog.Logger
	now      func() time.Time
	timeout  time.Duration
}

// Option настраивает Manager
type Option func(*Manager)

// WithClock подменяет источник времени
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		m.now = now
	}
}

// WithTimeout задает порог простоя сессии
func WithTimeout(timeout time.Duration) Option {
	return func(m *Manager) {
		if timeout > 0 {
			m.timeout = timeout
		}
	}
}

// NewManager создает Manager
func NewManager(store storage.SessionStorage, docs DocumentAccess, locks Locker, recorder *audit.Recorder, notifier *notify.Notifier, logger *slog.Logger, opts ...Option) *Manager {
	m := &Manager{
		store:    store,
		docs:     docs,
		locks:    locks,
		recorder: recorder,
		notifier: notifier,
		logger:   logger,
		now:      time.Now,
		timeout:  DefaultTimeout,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Start открывает сессию. Для дисциплин кроме OPTIMISTIC сначала выдается
// блокировка; если в блокировке отказано, сессия не создается.
func (m *Manager) Start(ctx context.Context, req StartRequest) (*Started, error) {
	const op = "session.Start"

	if err := validateStart(req); err != nil {
		return nil, errs.Wrap(errs.ErrInvalid, op, err)
	}

	exists, err := m.docs.DocumentExists(ctx, req.DocumentID)
	if err != nil {
		return nil, fmt.Errorf("failed to check document: %w", err)
	}
	if !exists {
		return nil, errs.E(errs.ErrNotFound, op, "document %s", req.DocumentID)
	}

	canEdit, err := m.docs.HasEditCapability(ctx, req.DocumentID, req.ActorID)
	if err != nil {
		return nil, fmt.Errorf("failed to check edit capability: %w", err)
	}
	if !canEdit {
		return nil, errs.E(errs.ErrForbidden, op, "actor %s cannot edit document %s", req.ActorID, req.DocumentID)
	}

	if req.ActorName == "" {
		req.ActorName = req.ActorID
	}

	clientID, err := newClientID()
	if err != nil {
		return nil, err
	}

	now := m.now()
	session := &models.EditSession{
		ID:             uuid.New().String(),
		DocumentID:     req.DocumentID,
		ActorID:        req.ActorID,
		ActorName:      req.ActorName,
		Discipline:     req.Discipline,
		Region:         req.Region.Clone(),
		ClientID:       clientID,
		Status:         models.SessionActive,
		Active:         true,
		StartedAt:      now,
		LastActivityAt: now,
	}

	granted, err := m.locks.Acquire(ctx, lock.AcquireRequest{
		DocumentID: req.DocumentID,
		ActorID:    req.ActorID,
		Discipline: req.Discipline,
		Region:     req.Region,
		SessionID:  session.ID,
		ClientID:   clientID,
	})
	if err != nil {
		return nil, err
	}

	if err := m.store.CreateSession(ctx, session); err != nil {
		// откатываем блокировку, чтобы не оставить частичное состояние
		if granted != nil {
			if _, relErr := m.locks.ReleaseSession(ctx, session.ID, models.ReleaseReasonReleased); relErr != nil {
				m.logger.Error("Failed to roll back lock", "lock_id", granted.ID, "error", relErr)
			}
		}
		return nil, fmt.Errorf("failed to save session: %w", err)
	}

	m.logger.Info("Session started",
		"session_id", session.ID,
		"document_id", session.DocumentID,
		"actor_id", session.ActorID,
		"discipline", session.Discipline,
	)

	details := map[string]string{
		"discipline": string(session.Discipline),
		"client_id":  session.ClientID,
	}
	if session.Region != nil {
		details["region"] = session.Region.String()
	}
	if granted != nil {
		details["lock_id"] = granted.ID
	}
	m.recorder.Record(ctx, audit.Record{
		Kind:       models.EventSessionStarted,
		DocumentID: session.DocumentID,
		SessionID:  session.ID,
		ActorID:    session.ActorID,
		Details:    details,
	})
	m.notifier.Notify(ctx, notify.Event{
		Kind:       models.EventSessionStarted,
		DocumentID: session.DocumentID,
		SessionID:  session.ID,
		ActorID:    session.ActorID,
		ClientID:   session.ClientID,
		Details:    map[string]string{"actor_name": session.ActorName, "discipline": string(session.Discipline)},
	})

	return &Started{Session: session, Lock: granted}, nil
}

// End завершает сессию владельца и освобождает все ее блокировки.
// Для уже неактивной сессии только повторяет освобождение блокировок.
func (m *Manager) End(ctx context.Context, sessionID, actorID string) error {
	const op = "session.End"

	session, err := m.Get(ctx, sessionID)
	if err != nil {
		return err
	}
	if session.ActorID != actorID {
		return errs.E(errs.ErrForbidden, op, "session %s is owned by another actor", sessionID)
	}

	if !session.Active {
		if _, err := m.locks.ReleaseSession(ctx, session.ID, models.ReleaseReasonSessionEnded); err != nil {
			return fmt.Errorf("failed to release session locks: %w", err)
		}
		return nil
	}

	_, err = m.finish(ctx, session, models.SessionEnded, EndReasonEnded, models.ReleaseReasonSessionEnded, models.EventSessionEnded)
	return err
}

// SweepExpired завершает сессии, простаивающие дольше порога, с причиной "timeout".
// Каждая сессия обрабатывается независимо, ошибки объединяются.
func (m *Manager) SweepExpired(ctx context.Context) (int, error) {
	cutoff := m.now().Add(-m.timeout)
	idle, err := m.store.ListIdleSessions(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to list idle sessions: %w", err)
	}

	expired := 0
	var errList []error
	for _, session := range idle {
		changed, err := m.finish(ctx, session, models.SessionExpired, models.ReleaseReasonTimeout, models.ReleaseReasonTimeout, models.EventSessionExpired)
		if err != nil {
			m.logger.Error("Failed to expire session", "session_id", session.ID, "error", err)
			errList = append(errList, err)
		}
		if changed {
			expired++
		}
	}

	if expired > 0 {
		m.logger.Info("Idle sessions expired", "count", expired, "cutoff", cutoff)
	}

	return expired, errors.Join(errList...)
}

// Get возвращает сессию по ID
func (m *Manager) Get(ctx context.Context, sessionID string) (*models.EditSession, error) {
	session, err := m.store.GetSession(ctx, sessionID)
	if err != nil {
		if errors.Is(err, storage.ErrSessionNotFound) {
			return nil, errs.Wrap(errs.ErrNotFound, "session.Get", err)
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return session, nil
}

// Active возвращает активные сессии документа
func (m *Manager) Active(ctx context.Context, documentID string) ([]*models.EditSession, error) {
	sessions, err := m.store.ListSessions(ctx, storage.SessionFilter{DocumentID: documentID, ActiveOnly: true})
	if err != nil {
		return nil, fmt.Errorf("failed to list active sessions: %w", err)
	}
	return sessions, nil
}

// Timeout возвращает порог простоя
func (m *Manager) Timeout() time.Duration {
	return m.timeout
}

func (m *Manager) finish(ctx context.Context, session *models.EditSession, status models.SessionStatus, reason, lockReason string, kind models.EventKind) (bool, error) {
	now := m.now()
	changed, err := m.store.DeactivateSession(ctx, session.ID, status, reason, now)
	if err != nil {
		return false, fmt.Errorf("failed to deactivate session %s: %w", session.ID, err)
	}

	// блокировки освобождаем даже если сессию уже закрыл параллельный вызов
	released, relErr := m.locks.ReleaseSession(ctx, session.ID, lockReason)
	if relErr != nil {
		relErr = fmt.Errorf("failed to release locks of session %s: %w", session.ID, relErr)
	}

	if !changed {
		return false, relErr
	}

	duration := now.Sub(session.StartedAt)
	m.logger.Info("Session finished",
		"session_id", session.ID,
		"status", status,
		"reason", reason,
		"duration", duration,
		"locks_released", released,
	)

	m.recorder.Record(ctx, audit.Record{
		Kind:       kind,
		DocumentID: session.DocumentID,
		SessionID:  session.ID,
		ActorID:    session.ActorID,
		Details: map[string]string{
			"reason":         reason,
			"duration_s":     strconv.FormatInt(int64(duration.Seconds()), 10),
			"locks_released": strconv.Itoa(released),
		},
	})
	m.notifier.Notify(ctx, notify.Event{
		Kind:       kind,
		DocumentID: session.DocumentID,
		SessionID:  session.ID,
		ActorID:    session.ActorID,
		ClientID:   session.ClientID,
		Details:    map[string]string{"reason": reason},
	})

	return true, relErr
}

func validateStart(req StartRequest) error {
	if err := validation.ValidateID("document id", req.DocumentID); err != nil {
		return err
	}
	if err := validation.ValidateID("actor id", req.ActorID); err != nil {
		return err
	}
	if err := validation.ValidateDisplayName(req.ActorName); err != nil {
		return err
	}
	if !req.Discipline.Valid() {
		return fmt.Errorf("unknown discipline %q", req.Discipline)
	}
	if req.Discipline == models.DisciplineRegion || req.Region != nil {
		if err := req.Region.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// newClientID генерирует случайный непрозрачный токен корреляции
func newClientID() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate client id: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
