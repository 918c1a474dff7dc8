// Package notify рассылает события координации подписчикам документа
// (другим клиентам, которые редактируют тот же документ).
package notify

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/iudanet/doccollab/internal/models"
)

// Event событие, отправляемое подписчикам документа
type Event struct {
	At          time.Time         `json:"at"`
	Details     map[string]string `json:"details,omitempty"`
	Kind        models.EventKind  `json:"kind"`
	DocumentID  string            `json:"document_id"`
	SessionID   string            `json:"session_id,omitempty"`
	ActorID     string            `json:"actor_id,omitempty"`
	ClientID    string            `json:"client_id,omitempty"`
	LockID      string            `json:"lock_id,omitempty"`
	OperationID string            `json:"operation_id,omitempty"`
	ConflictIDs []string          `json:"conflict_ids,omitempty"`
}

// Publisher доставляет событие в канал/subject
type Publisher interface {
	Publish(ctx context.Context, subject string, ev *Event) error
	Close() error
}

// Notifier строит subject документа и публикует события.
// Ошибки публикации логируются, вызывающий код их не видит.
type Notifier struct {
	pub    Publisher
	logger *slog.Logger
	now    func() time.Time
	prefix string
}

// NewNotifier создает Notifier. pub == nil эквивалентен Nop.
func NewNotifier(pub Publisher, prefix string, logger *slog.Logger) *Notifier {
	if pub == nil {
		pub = Nop{}
	}
	if prefix == "" {
		prefix = "doccollab"
	}
	return &Notifier{pub: pub, prefix: prefix, logger: logger, now: time.Now}
}

// Subject возвращает subject (канал) документа
func (n *Notifier) Subject(documentID string) string {
	return n.prefix + ".doc." + documentID
}

// Notify публикует событие в subject документа
func (n *Notifier) Notify(ctx context.Context, ev Event) {
	if n == nil {
		return
	}
	if ev.At.IsZero() {
		ev.At = n.now().UTC()
	}

	if err := n.pub.Publish(ctx, n.Subject(ev.DocumentID), &ev); err != nil {
		n.logger.Warn("Failed to publish event",
			"kind", ev.Kind,
			"document_id", ev.DocumentID,
			"error", err,
		)
	}
}

// Close закрывает publisher
func (n *Notifier) Close() error {
	if n == nil {
		return nil
	}
	return n.pub.Close()
}

// Nop ничего не публикует
type Nop struct{}

// Publish ничего не делает
func (Nop) Publish(context.Context, string, *Event) error { return nil }

// Close ничего не делает
func (Nop) Close() error { return nil }

// Published событие вместе с subject, в который оно ушло
type Published struct {
	Subject string
	Event   Event
}

// MemoryPublisher копит события в памяти
type MemoryPublisher struct {
	events []Published
	mu     sync.Mutex
}

// Publish сохраняет событие
func (m *MemoryPublisher) Publish(_ context.Context, subject string, ev *Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, Published{Subject: subject, Event: *ev})
	return nil
}

// Close ничего не делает
func (m *MemoryPublisher) Close() error { return nil }

// Events возвращает копию опубликованных событий
func (m *MemoryPublisher) Events() []Published {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Published, len(m.events))
	copy(out, m.events)
	return out
}

// Kinds возвращает типы опубликованных событий по порядку
func (m *MemoryPublisher) Kinds() []models.EventKind {
	m.mu.Lock()
	defer m.mu.Unlock()
	kinds := make([]models.EventKind, 0, len(m.events))
	for _, p := range m.events {
		kinds = append(kinds, p.Event.Kind)
	}
	return kinds
}
