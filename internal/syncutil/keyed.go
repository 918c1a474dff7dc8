// Package syncutil содержит примитивы синхронизации, которых нет в sync.
package syncutil

import "sync"

// KeyedMutex сериализует работу по ключу (например, по documentID).
// Разные ключи не блокируют друг друга. Записи удаляются, когда
// на ключе никого нет, поэтому карта не растет бесконечно.
type KeyedMutex struct {
	entries map[string]*keyedEntry
	mu      sync.Mutex
}

type keyedEntry struct {
	refs int
	mu   sync.Mutex
}

// NewKeyedMutex создает пустой KeyedMutex
func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{entries: make(map[string]*keyedEntry)}
}

// Lock захватывает мьютекс ключа и возвращает функцию освобождения.
// Повторный вызов возвращенной функции ничего не делает.
func (k *KeyedMutex) Lock(key string) (unlock func()) {
	k.mu.Lock()
	e, ok := k.entries[key]
	if !ok {
		e = &keyedEntry{}
		k.entries[key] = e
	}
	e.refs++
	k.mu.Unlock()

	e.mu.Lock()

	var once sync.Once
	return func() {
		once.Do(func() {
			e.mu.Unlock()

			k.mu.Lock()
			e.refs--
			if e.refs == 0 {
				delete(k.entries, key)
			}
			k.mu.Unlock()
		})
	}
}

// Len возвращает количество ключей, на которых сейчас кто-то держит или ждет мьютекс
func (k *KeyedMutex) Len() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.entries)
}
