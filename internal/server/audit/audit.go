// Package audit хранит журнал событий координации (старт/конец сессий,
// блокировки, операции, конфликты). Журнал вспомогательный: ошибка записи
// логируется и не прерывает основную операцию.
package audit

import (
	"context"
	"encoding/hex"
	"log/slog"
	"time"

	"golang.org/x/crypto/blake2b"

	"github.com/iudanet/doccollab/internal/models"
)

// Record одна запись журнала
type Record struct {
	At         time.Time         `json:"at"`
	Details    map[string]string `json:"details,omitempty"`
	Kind       models.EventKind  `json:"kind"`
	DocumentID string            `json:"document_id"`
	SessionID  string            `json:"session_id,omitempty"`
	ActorID    string            `json:"actor_id,omitempty"`
	Seq        uint64            `json:"seq"`
}

// Sink принимает записи журнала
type Sink interface {
	Write(ctx context.Context, rec *Record) error
}

// Recorder пишет записи в Sink по принципу best-effort
type Recorder struct {
	sink   Sink
	logger *slog.Logger
	now    func() time.Time
}

// NewRecorder создает Recorder. sink может быть nil, тогда записи отбрасываются.
func NewRecorder(sink Sink, logger *slog.Logger) *Recorder {
	return &Recorder{sink: sink, logger: logger, now: time.Now}
}

// Record пишет запись. Ошибка sink только логируется.
func (r *Recorder) Record(ctx context.Context, rec Record) {
	if r == nil || r.sink == nil {
		return
	}
	if rec.At.IsZero() {
		rec.At = r.now().UTC()
	}

	if err := r.sink.Write(ctx, &rec); err != nil {
		r.logger.Warn("Failed to write audit record",
			"kind", rec.Kind,
			"document_id", rec.DocumentID,
			"error", err,
		)
	}
}

// Digest возвращает hex blake2b-256 от содержимого операции.
// В журнал пишется дайджест, а не сам текст.
func Digest(content string) string {
	sum := blake2b.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}
