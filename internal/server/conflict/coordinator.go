// Package conflict сравнивает новую операцию с недавними операциями других
// акторов того же документа, классифицирует пересечения и предлагает
// стратегию их разрешения.
package conflict

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/iudanet/doccollab/internal/errs"
	"github.com/iudanet/doccollab/internal/models"
)

// RecentSource источник недавних операций (oplog.Log)
type RecentSource interface {
	Recent(ctx context.Context, documentID, excludingActorID string, window time.Duration) iter.Seq2[*models.EditOperation, error]
}

// Store сохраняет конфликты
type Store interface {
	SaveConflict(ctx context.Context, conflict *models.Conflict) error
}

// Report результат анализа одной операции
type Report struct {
	Operation *models.EditOperation
	Conflicts []*models.Conflict
	// operations все операции, участвующие в конфликтах, по ID
	operations map[string]*models.EditOperation
}

// Operations возвращает операции конфликта
func (r *Report) Operations(c *models.Conflict) []*models.EditOperation {
	out := make([]*models.EditOperation, 0, len(c.OperationIDs))
	for _, id := range c.OperationIDs {
		if op, ok := r.operations[id]; ok {
			out = append(out, op)
		}
	}
	return out
}

// Concurrent возвращает конфликты, в которых участвует операция другого актора,
// записанная не раньше since
func (r *Report) Concurrent(since time.Time) []*models.Conflict {
	var out []*models.Conflict
	for _, c := range r.Conflicts {
		for _, op := range r.Operations(c) {
			if op.ID != r.Operation.ID && !op.SubmittedAt.Before(since) {
				out = append(out, c)
				break
			}
		}
	}
	return out
}

// Outcome итог обработки отчета
type Outcome struct {
	Resolutions []*models.ConflictResolution
	Warnings    []string
	Persisted   int
}

// Coordinator анализирует операции на конфликты
type Coordinator struct {
	recent   RecentSource
	store    Store
	strategy ProximityStrategy
	logger   *slog.Logger
	now      func() time.Time
	window   time.Duration
}

// Option настраивает Coordinator
type Option func(*Coordinator)

// WithStrategy подменяет эвристику близости
func WithStrategy(s ProximityStrategy) Option {
	return func(c *Coordinator) {
		if s != nil {
			c.strategy = s
		}
	}
}

// WithWindow задает окно недавних операций; 0 означает окно журнала по умолчанию
func WithWindow(window time.Duration) Option {
	return func(c *Coordinator) {
		c.window = window
	}
}

// WithClock подменяет источник времени
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) {
		c.now = now
	}
}

// NewCoordinator создает Coordinator с DistanceHeuristic по умолчанию
func NewCoordinator(recent RecentSource, store Store, logger *slog.Logger, opts ...Option) *Coordinator {
	c := &Coordinator{
		recent:   recent,
		store:    store,
		strategy: NewDistanceHeuristic(DefaultLineWeight, DefaultThreshold),
		logger:   logger,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Analyze попарно сравнивает операцию с недавними операциями других акторов документа
func (c *Coordinator) Analyze(ctx context.Context, op *models.EditOperation) (*Report, error) {
	report := &Report{
		Operation:  op,
		operations: map[string]*models.EditOperation{op.ID: op},
	}

	for other, err := range c.recent.Recent(ctx, op.DocumentID, op.ActorID, c.window) {
		if err != nil {
			return nil, fmt.Errorf("failed to read recent operations: %w", err)
		}
		if other.ID == op.ID {
			continue
		}

		p, ok := c.strategy.Classify(op, other)
		if !ok {
			continue
		}

		report.operations[other.ID] = other
		report.Conflicts = append(report.Conflicts, &models.Conflict{
			ID:             uuid.New().String(),
			DocumentID:     op.DocumentID,
			Kind:           p.Kind,
			Severity:       p.Severity,
			OperationIDs:   []string{op.ID, other.ID},
			AffectedRegion: spanLines(op, other),
			Description: fmt.Sprintf("%s %s by %s at %d:%d is %d positions from %s by %s at %d:%d",
				p.Kind, op.Kind, op.ActorID, op.Position.Line, op.Position.Character, p.Distance,
				other.Kind, other.ActorID, other.Position.Line, other.Position.Character),
			Status:         models.ConflictPending,
			AutoResolvable: p.Severity == models.SeverityLow,
			DetectedAt:     c.now(),
		})
	}

	return report, nil
}

// Handle сохраняет конфликты, которые нельзя разрешить автоматически, со статусом pending
// и предлагает разрешение для каждого конфликта.
// Конфликт при EXCLUSIVE означает, что матрица блокировок нарушена: возвращается errs.ErrFatal.
// При OPTIMISTIC операция принимается с предупреждением о числе конфликтов.
func (c *Coordinator) Handle(ctx context.Context, report *Report, discipline models.LockDiscipline) (*Outcome, error) {
	const op = "conflict.Handle"

	out := &Outcome{}
	for _, conflict := range report.Conflicts {
		if !conflict.AutoResolvable {
			if err := c.store.SaveConflict(ctx, conflict); err != nil {
				return nil, fmt.Errorf("failed to save conflict: %w", err)
			}
			out.Persisted++
		}
		out.Resolutions = append(out.Resolutions, ProposeResolution(conflict, report.Operations(conflict)))
	}

	if len(report.Conflicts) == 0 {
		return out, nil
	}

	c.logger.Info("Conflicts detected",
		"operation_id", report.Operation.ID,
		"document_id", report.Operation.DocumentID,
		"count", len(report.Conflicts),
		"persisted", out.Persisted,
		"discipline", discipline,
	)

	switch discipline {
	case models.DisciplineExclusive:
		c.logger.Error("Conflict under exclusive lock",
			"operation_id", report.Operation.ID,
			"document_id", report.Operation.DocumentID,
		)
		return out, errs.E(errs.ErrFatal, op, "conflict under exclusive lock: %d conflict(s) for operation %s",
			len(report.Conflicts), report.Operation.ID)
	case models.DisciplineOptimistic:
		out.Warnings = append(out.Warnings, fmt.Sprintf("%d conflict(s) detected", len(report.Conflicts)))
	case models.DisciplineShared, models.DisciplineRegion:
		// конфликты сохранены, операция принимается
	}

	return out, nil
}

// RecordLockViolation сохраняет конфликт нарушения чужой блокировки.
// op отклоненная операция: в журнал она не попала, поэтому ID у нее может не быть.
func (c *Coordinator) RecordLockViolation(ctx context.Context, op *models.EditOperation, held *models.DocumentLock) (*models.Conflict, error) {
	region := held.Region.Clone()
	if region == nil {
		region = spanLines(op, op)
	}

	var opIDs []string
	if op.ID != "" {
		opIDs = []string{op.ID}
	}

	conflict := &models.Conflict{
		ID:             uuid.New().String(),
		DocumentID:     op.DocumentID,
		Kind:           models.ConflictLockViolation,
		Severity:       models.SeverityCritical,
		OperationIDs:   opIDs,
		AffectedRegion: region,
		Description: fmt.Sprintf("%s by %s at %d:%d violates %s lock %s held by %s",
			op.Kind, op.ActorID, op.Position.Line, op.Position.Character, held.Discipline, held.ID, held.ActorID),
		Status:     models.ConflictPending,
		DetectedAt: c.now(),
	}
	if err := c.store.SaveConflict(ctx, conflict); err != nil {
		return nil, fmt.Errorf("failed to save conflict: %w", err)
	}
	return conflict, nil
}

func spanLines(a, b *models.EditOperation) *models.Region {
	lo, hi := a.Position.Line, b.Position.Line
	if lo > hi {
		lo, hi = hi, lo
	}
	return &models.Region{Lines: &models.Range{Start: lo, End: hi}}
}
