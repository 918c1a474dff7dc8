// Package oplog ведет журнал операций редактирования: только добавление,
// номера операций монотонны в пределах сессии и идут без пропусков.
package oplog

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/iudanet/doccollab/internal/errs"
	"github.com/iudanet/doccollab/internal/models"
	"github.com/iudanet/doccollab/internal/server/audit"
	"github.com/iudanet/doccollab/internal/server/storage"
	"github.com/iudanet/doccollab/internal/syncutil"
	"github.com/iudanet/doccollab/internal/validation"
)

const (
	// DefaultWindow окно недавних операций по умолчанию
	DefaultWindow = 5 * time.Minute
	// DefaultPageSize размер страницы при чтении недавних операций
	DefaultPageSize = 100
)

// Store хранилище, которое нужно журналу
type Store interface {
	storage.OperationStorage
	GetSession(ctx context.Context, id string) (*models.EditSession, error)
	TouchSession(ctx context.Context, id string, at time.Time) error
}

// AppendRequest содержимое новой операции
type AppendRequest struct {
	Length   *int
	Kind     models.OperationKind
	Content  string
	Position models.Position
}

// Log журнал операций
type Log struct {
	store    Store
	sessions *syncutil.KeyedMutex
	recorder *audit.Recorder
	logger   *slog.Logger
	now      func() time.Time
	window   time.Duration
	pageSize int
}

// Option настраивает Log
type Option func(*Log)

// WithClock подменяет источник времени
func WithClock(now func() time.Time) Option {
	return func(l *Log) {
		l.now = now
	}
}

// WithWindow задает окно недавних операций по умолчанию
func WithWindow(window time.Duration) Option {
	return func(l *Log) {
		if window > 0 {
			l.window = window
		}
	}
}

// WithPageSize задает размер страницы для Recent
func WithPageSize(n int) Option {
	return func(l *Log) {
		if n > 0 {
			l.pageSize = n
		}
	}
}

// New создает Log
func New(store Store, recorder *audit.Recorder, logger *slog.Logger, opts ...Option) *Log {
	l := &Log{
		store:    store,
		sessions: syncutil.NewKeyedMutex(),
		recorder: recorder,
		logger:   logger,
		now:      time.Now,
		window:   DefaultWindow,
		pageSize: DefaultPageSize,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Window возвращает окно недавних операций по умолчанию
func (l *Log) Window() time.Duration {
	return l.window
}

// Append добавляет операцию активной сессии. Номер операции равен
// максимальному номеру в сессии плюс один и вычисляется под мьютексом сессии.
// Обновляет lastActivityAt сессии.
func (l *Log) Append(ctx context.Context, sessionID string, req AppendRequest) (*models.EditOperation, error) {
	const op = "oplog.Append"

	if err := validation.ValidateOperation(req.Kind, req.Position, req.Content, req.Length); err != nil {
		return nil, errs.Wrap(errs.ErrInvalid, op, err)
	}

	unlock := l.sessions.Lock(sessionID)
	defer unlock()

	session, err := l.store.GetSession(ctx, sessionID)
	if err != nil {
		if errors.Is(err, storage.ErrSessionNotFound) {
			return nil, errs.Wrap(errs.ErrNotFound, op, err)
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	if !session.Active {
		return nil, errs.E(errs.ErrInactive, op, "session %s is %s", sessionID, session.Status)
	}

	last, err := l.store.MaxSequence(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to read sequence: %w", err)
	}

	now := l.now()
	operation := &models.EditOperation{
		ID:             uuid.New().String(),
		SessionID:      session.ID,
		DocumentID:     session.DocumentID,
		ActorID:        session.ActorID,
		Kind:           req.Kind,
		Position:       req.Position,
		Content:        req.Content,
		Length:         req.Length,
		SubmittedAt:    now,
		SequenceNumber: last + 1,
	}

	if err := l.store.AppendOperation(ctx, operation); err != nil {
		if errors.Is(err, storage.ErrDuplicateSequence) {
			// под мьютексом сессии такого быть не должно
			return nil, errs.E(errs.ErrFatal, op, "sequence %d of session %s already taken", operation.SequenceNumber, sessionID)
		}
		return nil, fmt.Errorf("failed to append operation: %w", err)
	}

	if err := l.store.TouchSession(ctx, sessionID, now); err != nil {
		// операция уже записана, устаревший lastActivityAt только приблизит истечение
		l.logger.Warn("Failed to touch session", "session_id", sessionID, "error", err)
	}

	l.recorder.Record(ctx, audit.Record{
		Kind:       models.EventOperationSubmitted,
		DocumentID: operation.DocumentID,
		SessionID:  operation.SessionID,
		ActorID:    operation.ActorID,
		Details: map[string]string{
			"operation_id": operation.ID,
			"kind":         string(operation.Kind),
			"sequence":     strconv.FormatInt(operation.SequenceNumber, 10),
			"line":         strconv.Itoa(operation.Position.Line),
			"character":    strconv.Itoa(operation.Position.Character),
			"content_hash": audit.Digest(operation.Content),
		},
	})

	return operation, nil
}

// Recent возвращает ленивую конечную последовательность операций документа,
// отправленных не excludingActorID за последние window (window <= 0 означает окно
// по умолчанию), от новых к старым. Границы окна фиксируются при вызове Recent,
// поэтому повторный обход дает ту же последовательность плюс-минус конкурентные записи
// внутри окна. Граница окна включительная.
func (l *Log) Recent(ctx context.Context, documentID, excludingActorID string, window time.Duration) iter.Seq2[*models.EditOperation, error] {
	if window <= 0 {
		window = l.window
	}
	until := l.now()
	since := until.Add(-window)

	return func(yield func(*models.EditOperation, error) bool) {
		seen := make(map[string]struct{})
		for offset := 0; ; offset += l.pageSize {
			page, err := l.store.ListOperations(ctx, storage.OperationFilter{
				DocumentID:     documentID,
				ExcludeActorID: excludingActorID,
				Since:          since,
				Until:          until,
				Limit:          l.pageSize,
				Offset:         offset,
			})
			if err != nil {
				yield(nil, fmt.Errorf("failed to list recent operations: %w", err))
				return
			}

			for _, operation := range page {
				// вставка во время обхода сдвигает страницы
				if _, dup := seen[operation.ID]; dup {
					continue
				}
				seen[operation.ID] = struct{}{}
				if !yield(operation, nil) {
					return
				}
			}

			if len(page) < l.pageSize {
				return
			}
		}
	}
}

// ForSession возвращает все операции сессии по возрастанию номера
func (l *Log) ForSession(ctx context.Context, sessionID string) ([]*models.EditOperation, error) {
	ops, err := l.store.ListSessionOperations(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list session operations: %w", err)
	}
	return ops, nil
}

// Get возвращает операцию по ID
func (l *Log) Get(ctx context.Context, id string) (*models.EditOperation, error) {
	operation, err := l.store.GetOperation(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrOperationNotFound) {
			return nil, errs.Wrap(errs.ErrNotFound, "oplog.Get", err)
		}
		return nil, fmt.Errorf("failed to get operation: %w", err)
	}
	return operation, nil
}

// Collect читает последовательность целиком
func Collect(seq iter.Seq2[*models.EditOperation, error]) ([]*models.EditOperation, error) {
	var out []*models.EditOperation
	for operation, err := range seq {
		if err != nil {
			return out, err
		}
		out = append(out, operation)
	}
	return out, nil
}
