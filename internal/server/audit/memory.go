package audit

import (
	"context"
	"sync"
)

// MemorySink держит журнал в памяти. Используется в тестах и когда путь
// к файлу журнала не задан.
type MemorySink struct {
	records []Record
	mu      sync.Mutex
}

// NewMemorySink создает пустой MemorySink
func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

// Write добавляет запись
func (s *MemorySink) Write(_ context.Context, rec *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec.Seq = uint64(len(s.records) + 1)
	s.records = append(s.records, *rec)
	return nil
}

// Records возвращает копию всех записей
func (s *MemorySink) Records() []Record {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Record, len(s.records))
	copy(out, s.records)
	return out
}
