// Package collab объединяет сессии, блокировки, журнал операций и
// координатор конфликтов в один сервис, которым пользуются HTTP-обработчики.
package collab

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
	"github.com/iudanet/doccollab/internal/server/conflict"
	"github.com/iudanet/doccollab/internal/server/lock"
	"github.com/iudanet/doccollab/internal/server/notify"
	"github.com/iudanet/doccollab/internal/server/oplog"
	"github.com/iudanet/doccollab/internal/server/session"
	"github.com/iudanet/doccollab/internal/server/storage"
	"github.com/iudanet/doccollab/internal/validation"
)

// Service определяет интерфейс сервиса совместного редактирования
type Service interface {
	// CreateDocument регистрирует документ; владелец получает право редактирования
	CreateDocument(ctx context.Context, ownerID, title string) (*models.Document, error)

	// GrantEdit выдает actorID право редактирования; выдавать может только владелец
	GrantEdit(ctx context.Context, documentID, ownerID, actorID string) error

	// StartSession открывает сессию (и блокировку, если дисциплина ее требует)
	StartSession(ctx context.Context, req session.StartRequest) (*session.Started, error)

	// EndSession завершает сессию владельца и освобождает ее блокировки
	EndSession(ctx context.Context, sessionID, actorID string) error

	// AcquireLock выдает дополнительную блокировку
	AcquireLock(ctx context.Context, req lock.AcquireRequest) (*models.DocumentLock, error)

	// ReleaseLock освобождает блокировку владельца
	ReleaseLock(ctx context.Context, lockID, actorID string) error

	// SubmitOperation записывает операцию и анализирует конфликты
	SubmitOperation(ctx context.Context, sessionID, actorID string, req oplog.AppendRequest) (*SubmitResult, error)

	// State возвращает состояние совместной работы над документом
	State(ctx context.Context, documentID, actorID string) (*State, error)

	// Sweep завершает простаивающие сессии и истекшие блокировки
	Sweep(ctx context.Context) (*SweepResult, error)

	// RunSweeper запускает Sweep каждые interval до отмены ctx
	RunSweeper(ctx context.Context, interval time.Duration)

	// Resume снимает остановку документа после ErrFatal; снимать может только владелец
	Resume(ctx context.Context, documentID, ownerID string) (bool, error)
}

// SubmitResult результат отправки операции
type SubmitResult struct {
	Operation   *models.EditOperation        `json:"operation"`
	Conflicts   []*models.Conflict           `json:"conflicts,omitempty"`
	Resolutions []*models.ConflictResolution `json:"resolutions,omitempty"`
	Warnings    []string                     `json:"warnings,omitempty"`
}

// OperationError операция уже записана в журнал, но ее обработка завершилась ошибкой.
// Operation позволяет клиенту сверить номер последовательности.
type OperationError struct {
	Operation *models.EditOperation
	Err       error
}

func (e *OperationError) Error() string {
	return fmt.Sprintf("operation %s (sequence %d) recorded: %v", e.Operation.ID, e.Operation.SequenceNumber, e.Err)
}

func (e *OperationError) Unwrap() error {
	return e.Err
}

// State состояние совместной работы над документом
type State struct {
	GeneratedAt      time.Time               `json:"generated_at"`
	HaltedAt         time.Time               `json:"halted_at,omitempty"`
	DocumentID       string                  `json:"document_id"`
	HaltReason       string                  `json:"halt_reason,omitempty"`
	ActiveSessions   []*models.EditSession   `json:"active_sessions"`
	RecentOperations []*models.EditOperation `json:"recent_operations"`
	ActiveLocks      []*models.DocumentLock  `json:"active_locks"`
	PendingConflicts int                     `json:"pending_conflicts"`
	Halted           bool                    `json:"halted"`
}

// SweepResult итог одного прохода очистки
type SweepResult struct {
	ExpiredSessions int `json:"expired_sessions"`
	ExpiredLocks    int `json:"expired_locks"`
}

type service struct {
	store       storage.Store
	sessions    *session.Manager
	locks       *lock.Manager
	ops         *oplog.Log
	coordinator *conflict.Coordinator
	recorder    *audit.Recorder
	notifier    *notify.Notifier
	halts       *haltRegistry
	logger      *slog.Logger
	now         func() time.Time
}

// NewService создает сервис из готовых компонентов
func NewService(store storage.Store, sessions *session.Manager, locks *lock.Manager, ops *oplog.Log, coordinator *conflict.Coordinator, recorder *audit.Recorder, notifier *notify.Notifier, logger *slog.Logger) Service {
	return &service{
		store:       store,
		sessions:    sessions,
		locks:       locks,
		ops:         ops,
		coordinator: coordinator,
		recorder:    recorder,
		notifier:    notifier,
		halts:       newHaltRegistry(),
		logger:      logger,
		now:         time.Now,
	}
}

func (s *service) CreateDocument(ctx context.Context, ownerID, title string) (*models.Document, error) {
	const op = "collab.CreateDocument"

	if err := validation.ValidateID("owner id", ownerID); err != nil {
		return nil, errs.Wrap(errs.ErrInvalid, op, err)
	}
	if err := validation.ValidateTitle(title); err != nil {
		return nil, errs.Wrap(errs.ErrInvalid, op, err)
	}

	doc := &models.Document{
		ID:        uuid.New().String(),
		OwnerID:   ownerID,
		Title:     title,
		CreatedAt: s.now().UTC(),
	}
	if err := s.store.CreateDocument(ctx, doc); err != nil {
		if errors.Is(err, storage.ErrDocumentAlreadyExists) {
			return nil, errs.Wrap(errs.ErrConflict, op, err)
		}
		return nil, fmt.Errorf("failed to create document: %w", err)
	}

	s.logger.Info("Document created", "document_id", doc.ID, "owner_id", ownerID)
	s.recorder.Record(ctx, audit.Record{
		Kind:       models.EventDocumentCreated,
		DocumentID: doc.ID,
		ActorID:    ownerID,
	})

	return doc, nil
}

func (s *service) GrantEdit(ctx context.Context, documentID, ownerID, actorID string) error {
	const op = "collab.GrantEdit"

	if err := validation.ValidateID("actor id", actorID); err != nil {
		return errs.Wrap(errs.ErrInvalid, op, err)
	}

	if err := s.checkOwner(ctx, op, documentID, ownerID); err != nil {
		return err
	}

	if err := s.store.GrantEdit(ctx, documentID, actorID); err != nil {
		return fmt.Errorf("failed to grant edit: %w", err)
	}
	return nil
}

func (s *service) StartSession(ctx context.Context, req session.StartRequest) (*session.Started, error) {
	if info, ok := s.halts.get(req.DocumentID); ok {
		return nil, errs.E(errs.ErrFatal, "collab.StartSession", "document %s is halted: %s", req.DocumentID, info.reason)
	}
	return s.sessions.Start(ctx, req)
}

func (s *service) EndSession(ctx context.Context, sessionID, actorID string) error {
	return s.sessions.End(ctx, sessionID, actorID)
}

func (s *service) AcquireLock(ctx context.Context, req lock.AcquireRequest) (*models.DocumentLock, error) {
	const op = "collab.AcquireLock"

	if err := validation.ValidateID("document id", req.DocumentID); err != nil {
		return nil, errs.Wrap(errs.ErrInvalid, op, err)
	}

	if req.SessionID != "" {
		sess, err := s.sessions.Get(ctx, req.SessionID)
		if err != nil {
			return nil, err
		}
		if sess.ActorID != req.ActorID {
			return nil, errs.E(errs.ErrForbidden, op, "session %s is owned by another actor", req.SessionID)
		}
		if !sess.Active {
			return nil, errs.E(errs.ErrInactive, op, "session %s is %s", sess.ID, sess.Status)
		}
		if sess.DocumentID != req.DocumentID {
			return nil, errs.E(errs.ErrInvalid, op, "session %s belongs to another document", sess.ID)
		}
		req.ClientID = sess.ClientID
	}

	if err := s.checkAccess(ctx, op, req.DocumentID, req.ActorID); err != nil {
		return nil, err
	}

	return s.locks.Acquire(ctx, req)
}

func (s *service) ReleaseLock(ctx context.Context, lockID, actorID string) error {
	return s.locks.Release(ctx, lockID, actorID)
}

func (s *service) SubmitOperation(ctx context.Context, sessionID, actorID string, req oplog.AppendRequest) (*SubmitResult, error) {
	const op = "collab.SubmitOperation"

	sess, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sess.ActorID != actorID {
		return nil, errs.E(errs.ErrForbidden, op, "session %s is owned by another actor", sessionID)
	}
	if !sess.Active {
		return nil, errs.E(errs.ErrInactive, op, "session %s is %s", sessionID, sess.Status)
	}
	if info, ok := s.halts.get(sess.DocumentID); ok {
		return nil, errs.E(errs.ErrFatal, op, "document %s is halted: %s", sess.DocumentID, info.reason)
	}

	held, err := s.locks.Active(ctx, sess.DocumentID)
	if err != nil {
		return nil, err
	}
	if err := s.guardLocks(ctx, sess, req, held); err != nil {
		return nil, err
	}

	operation, err := s.ops.Append(ctx, sessionID, req)
	if err != nil {
		if errs.IsFatal(err) {
			s.haltDocument(ctx, sess.DocumentID, err)
		}
		return nil, err
	}

	report, err := s.coordinator.Analyze(ctx, operation)
	if err != nil {
		return nil, &OperationError{
			Operation: operation,
			Err:       fmt.Errorf("failed to analyze operation: %w", err),
		}
	}

	outcome, handleErr := s.coordinator.Handle(ctx, report, effectiveDiscipline(sess, held, report))
	if len(report.Conflicts) > 0 {
		s.notifyConflicts(ctx, sess, operation, report.Conflicts)
	}
	if handleErr != nil {
		if errs.IsFatal(handleErr) {
			s.haltDocument(ctx, sess.DocumentID, handleErr)
		}
		return nil, &OperationError{Operation: operation, Err: handleErr}
	}

	s.notifier.Notify(ctx, notify.Event{
		Kind:        models.EventOperationSubmitted,
		DocumentID:  operation.DocumentID,
		SessionID:   operation.SessionID,
		ActorID:     operation.ActorID,
		ClientID:    sess.ClientID,
		OperationID: operation.ID,
		Details: map[string]string{
			"kind":     string(operation.Kind),
			"sequence": strconv.FormatInt(operation.SequenceNumber, 10),
		},
	})

	return &SubmitResult{
		Operation:   operation,
		Conflicts:   report.Conflicts,
		Resolutions: outcome.Resolutions,
		Warnings:    outcome.Warnings,
	}, nil
}

func (s *service) State(ctx context.Context, documentID, actorID string) (*State, error) {
	const op = "collab.State"

	if err := s.checkAccess(ctx, op, documentID, actorID); err != nil {
		return nil, err
	}

	sessions, err := s.sessions.Active(ctx, documentID)
	if err != nil {
		return nil, err
	}
	locks, err := s.locks.Active(ctx, documentID)
	if err != nil {
		return nil, err
	}
	recent, err := oplog.Collect(s.ops.Recent(ctx, documentID, "", 0))
	if err != nil {
		return nil, err
	}
	pending, err := s.store.CountConflicts(ctx, documentID, models.ConflictPending)
	if err != nil {
		return nil, fmt.Errorf("failed to count conflicts: %w", err)
	}

	state := &State{
		GeneratedAt:      s.now().UTC(),
		DocumentID:       documentID,
		ActiveSessions:   sessions,
		RecentOperations: recent,
		ActiveLocks:      locks,
		PendingConflicts: pending,
	}
	if state.RecentOperations == nil {
		state.RecentOperations = []*models.EditOperation{}
	}
	if info, ok := s.halts.get(documentID); ok {
		state.Halted = true
		state.HaltedAt = info.at
		state.HaltReason = info.reason
	}

	return state, nil
}

func (s *service) Sweep(ctx context.Context) (*SweepResult, error) {
	result := &SweepResult{}

	// сначала сессии: они освобождают свои блокировки с причиной timeout
	sessions, sessErr := s.sessions.SweepExpired(ctx)
	result.ExpiredSessions = sessions

	locks, lockErr := s.locks.SweepExpired(ctx)
	result.ExpiredLocks = locks

	return result, errors.Join(sessErr, lockErr)
}

func (s *service) RunSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.Info("Sweeper started", "interval", interval)
	for {
		select {
		case <-ticker.C:
			result, err := s.Sweep(ctx)
			if err != nil {
				s.logger.Error("Sweep finished with errors", "error", err)
			}
			if result.ExpiredSessions > 0 || result.ExpiredLocks > 0 {
				s.logger.Info("Sweep finished",
					"expired_sessions", result.ExpiredSessions,
					"expired_locks", result.ExpiredLocks,
				)
			}
		case <-ctx.Done():
			s.logger.Info("Sweeper stopped")
			return
		}
	}
}

func (s *service) Resume(ctx context.Context, documentID, ownerID string) (bool, error) {
	const op = "collab.Resume"

	if err := s.checkOwner(ctx, op, documentID, ownerID); err != nil {
		return false, err
	}
	if !s.halts.resume(documentID) {
		return false, nil
	}

	s.logger.Warn("Document resumed", "document_id", documentID, "actor_id", ownerID)
	s.recorder.Record(ctx, audit.Record{Kind: models.EventDocumentResumed, DocumentID: documentID, ActorID: ownerID})
	s.notifier.Notify(ctx, notify.Event{Kind: models.EventDocumentResumed, DocumentID: documentID, ActorID: ownerID})
	return true, nil
}

// effectiveDiscipline возвращает дисциплину, под которой операция фактически выполнена.
// Сессия без действующей блокировки работает как OPTIMISTIC. Под EXCLUSIVE нарушением
// считаются только конфликты с операциями, записанными после выдачи блокировки.
func effectiveDiscipline(sess *models.EditSession, held []*models.DocumentLock, report *conflict.Report) models.LockDiscipline {
	var own *models.DocumentLock
	for _, l := range held {
		if l.SessionID != sess.ID {
			continue
		}
		if own == nil || l.Discipline == models.DisciplineExclusive {
			own = l
		}
	}

	switch {
	case own == nil:
		return models.DisciplineOptimistic
	case own.Discipline == models.DisciplineExclusive && len(report.Concurrent(own.AcquiredAt)) == 0:
		return models.DisciplineOptimistic
	default:
		return own.Discipline
	}
}

// guardLocks отклоняет операцию, если документ держит в EXCLUSIVE другой актор
// или позиция попадает в чужой REGION
func (s *service) guardLocks(ctx context.Context, sess *models.EditSession, req oplog.AppendRequest, held []*models.DocumentLock) error {
	for _, l := range held {
		if l.ActorID == sess.ActorID {
			continue
		}
		violated := l.Discipline == models.DisciplineExclusive ||
			(l.Discipline == models.DisciplineRegion && l.Region.Covers(req.Position))
		if !violated {
			continue
		}

		candidate := &models.EditOperation{
			SessionID:   sess.ID,
			DocumentID:  sess.DocumentID,
			ActorID:     sess.ActorID,
			Kind:        req.Kind,
			Position:    req.Position,
			SubmittedAt: s.now(),
		}
		c, err := s.coordinator.RecordLockViolation(ctx, candidate, l)
		if err != nil {
			s.logger.Error("Failed to record lock violation", "lock_id", l.ID, "error", err)
		} else {
			s.notifyConflicts(ctx, sess, nil, []*models.Conflict{c})
		}

		return errs.E(errs.ErrConflict, "collab.SubmitOperation",
			"%s lock %s held by %s covers %d:%d", l.Discipline, l.ID, l.ActorID,
			req.Position.Line, req.Position.Character)
	}

	return nil
}

func (s *service) checkOwner(ctx context.Context, op, documentID, ownerID string) error {
	doc, err := s.store.GetDocument(ctx, documentID)
	if err != nil {
		if errors.Is(err, storage.ErrDocumentNotFound) {
			return errs.Wrap(errs.ErrNotFound, op, err)
		}
		return fmt.Errorf("failed to get document: %w", err)
	}
	if doc.OwnerID != ownerID {
		return errs.E(errs.ErrForbidden, op, "only the owner of document %s can do this", documentID)
	}
	return nil
}

func (s *service) checkAccess(ctx context.Context, op, documentID, actorID string) error {
	exists, err := s.store.DocumentExists(ctx, documentID)
	if err != nil {
		return fmt.Errorf("failed to check document: %w", err)
	}
	if !exists {
		return errs.E(errs.ErrNotFound, op, "document %s", documentID)
	}

	ok, err := s.store.HasEditCapability(ctx, documentID, actorID)
	if err != nil {
		return fmt.Errorf("failed to check edit capability: %w", err)
	}
	if !ok {
		return errs.E(errs.ErrForbidden, op, "actor %s cannot edit document %s", actorID, documentID)
	}
	return nil
}

func (s *service) haltDocument(ctx context.Context, documentID string, cause error) {
	if !s.halts.halt(documentID, cause.Error(), s.now().UTC()) {
		return
	}

	s.logger.Error("Document halted", "document_id", documentID, "error", cause)
	s.recorder.Record(ctx, audit.Record{
		Kind:       models.EventDocumentHalted,
		DocumentID: documentID,
		Details:    map[string]string{"error": cause.Error()},
	})
	s.notifier.Notify(ctx, notify.Event{Kind: models.EventDocumentHalted, DocumentID: documentID})
}

func (s *service) notifyConflicts(ctx context.Context, sess *models.EditSession, operation *models.EditOperation, conflicts []*models.Conflict) {
	ids := make([]string, 0, len(conflicts))
	for _, c := range conflicts {
		ids = append(ids, c.ID)
	}

	ev := notify.Event{
		Kind:        models.EventConflictDetected,
		DocumentID:  sess.DocumentID,
		SessionID:   sess.ID,
		ActorID:     sess.ActorID,
		ClientID:    sess.ClientID,
		ConflictIDs: ids,
	}
	if operation != nil {
		ev.OperationID = operation.ID
	}
	s.notifier.Notify(ctx, ev)
}
