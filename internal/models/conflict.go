package models

import "time"

// ConflictKind classifies a detected overlap.
type ConflictKind string

// Conflict kinds
const (
	ConflictConcurrentEdit    ConflictKind = "concurrent-edit"
	ConflictOverlappingRegion ConflictKind = "overlapping-region"
	ConflictSequenceViolation ConflictKind = "sequence-violation"
	ConflictLockViolation     ConflictKind = "lock-violation"
)

// Severity of a conflict.
type Severity string

// Severities, in increasing order.
const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Rank returns the ordinal of the severity, 0 for unknown values.
func (s Severity) Rank() int {
	switch s {
	case SeverityLow:
		return 1
	case SeverityMedium:
		return 2
	case SeverityHigh:
		return 3
	case SeverityCritical:
		return 4
	default:
		return 0
	}
}

// ConflictStatus is the persistence state of a conflict.
type ConflictStatus string

// Conflict statuses
const (
	ConflictPending  ConflictStatus = "pending"
	ConflictResolved ConflictStatus = "resolved"
)

// Conflict представляет обнаруженное пересечение операций разных акторов.
type Conflict struct {
	DetectedAt     time.Time      `json:"detected_at"`
	AffectedRegion *Region        `json:"affected_region,omitempty"`
	ID             string         `json:"id"`
	DocumentID     string         `json:"document_id"`
	Kind           ConflictKind   `json:"kind"`
	Severity       Severity       `json:"severity"`
	Description    string         `json:"description"`
	Status         ConflictStatus `json:"status"`
	OperationIDs   []string       `json:"operation_ids"`
	AutoResolvable bool           `json:"auto_resolvable"`
}

// ResolutionStrategy is the proposed way to settle a conflict.
type ResolutionStrategy string

// Resolution strategies
const (
	ResolutionMergeChanges   ResolutionStrategy = "merge-changes"
	ResolutionLastWriterWins ResolutionStrategy = "last-writer-wins"
	ResolutionUserDecision   ResolutionStrategy = "user-decision"
)

// ConflictResolution is a proposal only; applying it is up to the caller.
type ConflictResolution struct {
	ConflictID         string             `json:"conflict_id"`
	Strategy           ResolutionStrategy `json:"strategy"`
	WinningOperationID string             `json:"winning_operation_id,omitempty"` // для last-writer-wins
	Description        string             `json:"description"`
	OrderedOperations  []string           `json:"ordered_operations,omitempty"` // для merge-changes, по времени
	Confidence         float64            `json:"confidence"`
	RequiresUserInput  bool               `json:"requires_user_input"`
}
