// Package lock выдает, отслеживает и отзывает блокировки документа
// или его региона по матрице совместимости.
package lock

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/iudanet/doccollab/internal/errs"
	"github.com/iudanet/doccollab/internal/models"
	"github.com/iudanet/doccollab/internal/server/audit"
	"github.com/iudanet/doccollab/internal/server/notify"
	"github.com/iudanet/doccollab/internal/server/storage"
	"github.com/iudanet/doccollab/internal/syncutil"
)

// DefaultTTL время жизни блокировки по умолчанию
const DefaultTTL = 30 * time.Minute

// AcquireRequest параметры запроса блокировки
type AcquireRequest struct {
	Region     *models.Region
	DocumentID string
	ActorID    string
	SessionID  string // SessionID сессия-владелец, может быть пустой
	ClientID   string // ClientID только для уведомлений
	Discipline models.LockDiscipline
}

// Manager выдает блокировки. Проверка совместимости и вставка новой
// блокировки выполняются атомарно в пределах одного документа.
type Manager struct {
	store    storage.LockStorage
	docs     *syncutil.KeyedMutex
	recorder *audit.Recorder
	notifier *notify.Notifier
	logger   *slog.Logger
	now      func() time.Time
	ttl      time.Duration
}

// Option настраивает Manager
type Option func(*Manager)

// WithClock подменяет источник времени (для тестов и воспроизводимых sweep)
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		m.now = now
	}
}

// WithTTL задает время жизни блокировки
func WithTTL(ttl time.Duration) Option {
	return func(m *Manager) {
		if ttl > 0 {
			m.ttl = ttl
		}
	}
}

// NewManager создает Manager
func NewManager(store storage.LockStorage, recorder *audit.Recorder, notifier *notify.Notifier, logger *slog.Logger, opts ...Option) *Manager {
	m := &Manager{
		store:    store,
		docs:     syncutil.NewKeyedMutex(),
		recorder: recorder,
		notifier: notifier,
		logger:   logger,
		now:      time.Now,
		ttl:      DefaultTTL,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// TTL возвращает время жизни выдаваемых блокировок
func (m *Manager) TTL() time.Duration {
	return m.ttl
}

// Acquire выдает блокировку или сразу отказывает с errs.ErrConflict.
// Ожидания освобождения чужой блокировки нет.
// Для OPTIMISTIC возвращает (nil, nil): разрешено, запись не создается.
func (m *Manager) Acquire(ctx context.Context, req AcquireRequest) (*models.DocumentLock, error) {
	const op = "lock.Acquire"

	if req.DocumentID == "" || req.ActorID == "" {
		return nil, errs.E(errs.ErrInvalid, op, "document id and actor id are required")
	}
	if !req.Discipline.Valid() {
		return nil, errs.E(errs.ErrInvalid, op, "unknown discipline %q", req.Discipline)
	}
	if req.Discipline == models.DisciplineRegion {
		if err := req.Region.Validate(); err != nil {
			return nil, errs.Wrap(errs.ErrInvalid, op, err)
		}
	} else if req.Region != nil {
		if err := req.Region.Validate(); err != nil {
			return nil, errs.Wrap(errs.ErrInvalid, op, err)
		}
	}

	if !req.Discipline.RequiresLock() {
		return nil, nil
	}

	unlock := m.docs.Lock(req.DocumentID)
	defer unlock()

	now := m.now()
	existing, err := m.store.ListLocks(ctx, storage.LockFilter{
		DocumentID:  req.DocumentID,
		ActiveOnly:  true,
		EffectiveAt: now,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list locks: %w", err)
	}

	for _, held := range existing {
		if !Compatible(req.Discipline, req.Region, held.Discipline, held.Region) {
			m.logger.Info("Lock denied",
				"document_id", req.DocumentID,
				"actor_id", req.ActorID,
				"requested", req.Discipline,
				"held", held.Discipline,
				"held_by", held.ActorID,
			)
			return nil, errs.E(errs.ErrConflict, op,
				"%s lock on document %s denied: %s lock %s held by %s until %s",
				req.Discipline, req.DocumentID, held.Discipline, held.ID, held.ActorID,
				held.ExpiresAt.UTC().Format(time.RFC3339))
		}
	}

	lock := &models.DocumentLock{
		ID:         uuid.New().String(),
		DocumentID: req.DocumentID,
		ActorID:    req.ActorID,
		Discipline: req.Discipline,
		Region:     req.Region.Clone(),
		SessionID:  req.SessionID,
		Active:     true,
		AcquiredAt: now,
		ExpiresAt:  now.Add(m.ttl),
	}
	if err := m.store.CreateLock(ctx, lock); err != nil {
		return nil, fmt.Errorf("failed to save lock: %w", err)
	}

	m.logger.Debug("Lock acquired",
		"lock_id", lock.ID,
		"document_id", lock.DocumentID,
		"actor_id", lock.ActorID,
		"discipline", lock.Discipline,
	)

	details := map[string]string{
		"lock_id":    lock.ID,
		"discipline": string(lock.Discipline),
		"expires_at": lock.ExpiresAt.UTC().Format(time.RFC3339),
	}
	if lock.Region != nil {
		details["region"] = lock.Region.String()
	}
	m.recorder.Record(ctx, audit.Record{
		Kind:       models.EventLockAcquired,
		DocumentID: lock.DocumentID,
		SessionID:  lock.SessionID,
		ActorID:    lock.ActorID,
		Details:    details,
	})
	m.notifier.Notify(ctx, notify.Event{
		Kind:       models.EventLockAcquired,
		DocumentID: lock.DocumentID,
		SessionID:  lock.SessionID,
		ActorID:    lock.ActorID,
		ClientID:   req.ClientID,
		LockID:     lock.ID,
	})

	return lock, nil
}

// Release освобождает блокировку. Повторный вызов ничего не меняет и не является ошибкой.
func (m *Manager) Release(ctx context.Context, lockID, actorID string) error {
	const op = "lock.Release"

	lock, err := m.store.GetLock(ctx, lockID)
	if err != nil {
		if errors.Is(err, storage.ErrLockNotFound) {
			return errs.Wrap(errs.ErrNotFound, op, err)
		}
		return fmt.Errorf("failed to get lock: %w", err)
	}

	if lock.ActorID != actorID {
		return errs.E(errs.ErrForbidden, op, "lock %s is owned by another actor", lockID)
	}

	_, err = m.deactivate(ctx, lock, models.ReleaseReasonReleased, models.EventLockReleased)
	return err
}

// ReleaseSession освобождает все активные блокировки сессии.
// Каждая блокировка обрабатывается независимо, ошибки объединяются.
func (m *Manager) ReleaseSession(ctx context.Context, sessionID, reason string) (int, error) {
	locks, err := m.store.ListLocks(ctx, storage.LockFilter{SessionID: sessionID, ActiveOnly: true})
	if err != nil {
		return 0, fmt.Errorf("failed to list session locks: %w", err)
	}

	released := 0
	var errList []error
	for _, lock := range locks {
		changed, err := m.deactivate(ctx, lock, reason, models.EventLockReleased)
		if err != nil {
			errList = append(errList, err)
			continue
		}
		if changed {
			released++
		}
	}

	return released, errors.Join(errList...)
}

// SweepExpired деактивирует все активные блокировки с истекшим expiresAt
// с причиной "expired". Ошибка на одной блокировке не мешает остальным.
func (m *Manager) SweepExpired(ctx context.Context) (int, error) {
	now := m.now()
	locks, err := m.store.ListExpiredLocks(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("failed to list expired locks: %w", err)
	}

	expired := 0
	var errList []error
	for _, lock := range locks {
		changed, err := m.deactivate(ctx, lock, models.ReleaseReasonExpired, models.EventLockExpired)
		if err != nil {
			m.logger.Error("Failed to expire lock", "lock_id", lock.ID, "error", err)
			errList = append(errList, err)
			continue
		}
		if changed {
			expired++
		}
	}

	if expired > 0 {
		m.logger.Info("Expired locks swept", "count", expired)
	}

	return expired, errors.Join(errList...)
}

// Active возвращает действующие (активные и не истекшие) блокировки документа
func (m *Manager) Active(ctx context.Context, documentID string) ([]*models.DocumentLock, error) {
	locks, err := m.store.ListLocks(ctx, storage.LockFilter{
		DocumentID:  documentID,
		ActiveOnly:  true,
		EffectiveAt: m.now(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list active locks: %w", err)
	}
	return locks, nil
}

func (m *Manager) deactivate(ctx context.Context, lock *models.DocumentLock, reason string, kind models.EventKind) (bool, error) {
	now := m.now()
	changed, err := m.store.DeactivateLock(ctx, lock.ID, reason, now)
	if err != nil {
		return false, fmt.Errorf("failed to deactivate lock %s: %w", lock.ID, err)
	}
	if !changed {
		return false, nil
	}

	m.logger.Debug("Lock deactivated", "lock_id", lock.ID, "reason", reason)

	m.recorder.Record(ctx, audit.Record{
		Kind:       kind,
		DocumentID: lock.DocumentID,
		SessionID:  lock.SessionID,
		ActorID:    lock.ActorID,
		Details: map[string]string{
			"lock_id":    lock.ID,
			"reason":     reason,
			"held_for_s": strconv.FormatInt(int64(now.Sub(lock.AcquiredAt).Seconds()), 10),
		},
	})
	m.notifier.Notify(ctx, notify.Event{
		Kind:       kind,
		DocumentID: lock.DocumentID,
		SessionID:  lock.SessionID,
		ActorID:    lock.ActorID,
		LockID:     lock.ID,
	})

	return true, nil
}
