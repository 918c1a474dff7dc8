package storage

import "errors"

// Common storage errors
var (
	// ErrDocumentNotFound indicates that document was not found in storage
	ErrDocumentNotFound = errors.New("document not found")

	// ErrDocumentAlreadyExists indicates that document with this ID already exists
	ErrDocumentAlreadyExists = errors.New("document already exists")

	// ErrSessionNotFound indicates that edit session was not found
	ErrSessionNotFound = errors.New("session not found")

	// ErrLockNotFound indicates that document lock was not found
	ErrLockNotFound = errors.New("lock not found")

	// ErrOperationNotFound indicates that edit operation was not found
	ErrOperationNotFound = errors.New("operation not found")

	// ErrDuplicateSequence indicates that the session already has an operation with this sequence number
	ErrDuplicateSequence = errors.New("duplicate sequence number")

	// ErrConflictNotFound indicates that conflict record was not found
	ErrConflictNotFound = errors.New("conflict not found")
)
