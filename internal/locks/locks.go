package locks

import (
	"sync"

	"github.com/google/uuid"
)

// Manager hands out one mutex per key so mutations on a single conversation
// serialize while unrelated conversations proceed concurrently. Entries are
// reference-counted and removed when the last holder releases, so the map
// does not grow with the total number of conversations ever seen.
type Manager struct {
	mu      sync.Mutex
	entries map[uuid.UUID]*entry
}

type entry struct {
	mu   sync.Mutex
	refs int
}

func NewManager() *Manager {
	return &Manager{entries: make(map[uuid.UUID]*entry)}
}

// Lock acquires the mutex for key and returns the matching unlock func.
func (m *Manager) Lock(key uuid.UUID) func() {
	m.mu.Lock()
	e, ok := m.entries[key]
	if !ok {
		e = &entry{}
		m.entries[key] = e
	}
	e.refs++
	m.mu.Unlock()

	e.mu.Lock()

	var once sync.Once
	return func() {
		once.Do(func() {
			e.mu.Unlock()
			m.mu.Lock()
			e.refs--
			if e.refs == 0 {
				delete(m.entries, key)
			}
			m.mu.Unlock()
		})
	}
}

// Len reports the number of live entries; used by tests.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}
