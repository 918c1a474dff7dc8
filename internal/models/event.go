package models

// EventKind names a coordination event. The same names are used for audit
// records and for notifications.
type EventKind string

const (
	EventSessionStarted     EventKind = "session.started"
	EventSessionEnded       EventKind = "session.ended"
	EventSessionExpired     EventKind = "session.expired"
	EventLockAcquired       EventKind = "lock.acquired"
	EventLockReleased       EventKind = "lock.released"
	EventLockExpired        EventKind = "lock.expired"
	EventOperationSubmitted EventKind = "operation.submitted"
	EventConflictDetected   EventKind = "conflict.detected"
	EventDocumentCreated    EventKind = "document.created"
	EventDocumentHalted     EventKind = "document.halted"
	EventDocumentResumed    EventKind = "document.resumed"
)
