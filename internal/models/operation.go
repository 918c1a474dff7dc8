package models

import (
	"fmt"
	"time"
)

// OperationKind is the type of a single atomic edit.
type OperationKind string

// Operation kinds
const (
	OperationInsert  OperationKind = "insert"
	OperationDelete  OperationKind = "delete"
	OperationReplace OperationKind = "replace"
	OperationMove    OperationKind = "move"
	OperationFormat  OperationKind = "format"
)

// ParseOperationKind converts a wire value into an OperationKind.
func ParseOperationKind(s string) (OperationKind, error) {
	switch k := OperationKind(s); k {
	case OperationInsert, OperationDelete, OperationReplace, OperationMove, OperationFormat:
		return k, nil
	default:
		return "", fmt.Errorf("unknown operation kind %q", s)
	}
}

// Position locates an edit inside a document.
type Position struct {
	Offset    *int `json:"offset,omitempty"` // Offset абсолютное смещение (опционально)
	Line      int  `json:"line"`
	Character int  `json:"character"`
}

// EditOperation представляет одну атомарную правку внутри сессии.
// Операции неизменяемы после записи.
type EditOperation struct {
	SubmittedAt    time.Time     `json:"submitted_at"`
	Length         *int          `json:"length,omitempty"`
	ID             string        `json:"id"`
	SessionID      string        `json:"session_id"`
	DocumentID     string        `json:"document_id"`
	ActorID        string        `json:"actor_id"`
	Kind           OperationKind `json:"kind"`
	Content        string        `json:"content,omitempty"`
	Position       Position      `json:"position"`
	SequenceNumber int64         `json:"sequence_number"` // SequenceNumber монотонный номер в рамках сессии, начиная с 1
}

// SubmittedBefore orders operations by submission time, breaking ties by
// sequence number and then by id so the order is total.
func (o *EditOperation) SubmittedBefore(other *EditOperation) bool {
	if !o.SubmittedAt.Equal(other.SubmittedAt) {
		return o.SubmittedAt.Before(other.SubmittedAt)
	}
	if o.SequenceNumber != other.SequenceNumber {
		return o.SequenceNumber < other.SequenceNumber
	}
	return o.ID < other.ID
}
