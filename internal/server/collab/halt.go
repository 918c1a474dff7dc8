package collab

import (
	"sync"
	"time"
)

// haltRegistry документы, остановленные после нарушения инварианта
type haltRegistry struct {
	halted map[string]haltInfo
	mu     sync.RWMutex
}

type haltInfo struct {
	at     time.Time
	reason string
}

func newHaltRegistry() *haltRegistry {
	return &haltRegistry{halted: make(map[string]haltInfo)}
}

func (r *haltRegistry) halt(documentID, reason string, at time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.halted[documentID]; ok {
		return false
	}
	r.halted[documentID] = haltInfo{at: at, reason: reason}
	return true
}

func (r *haltRegistry) get(documentID string) (haltInfo, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	info, ok := r.halted[documentID]
	return info, ok
}

func (r *haltRegistry) resume(documentID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.halted[documentID]; !ok {
		return false
	}
	delete(r.halted, documentID)
	return true
}
