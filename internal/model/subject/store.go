package subject

import "strings"

// Store exposes subject retrieval for HTTP handlers and prompt building.
type Store interface {
	List() []Subject
	FindByID(id string) (Subject, bool)
}

// MemoryStore implements Store with an in-memory slice.
type MemoryStore struct {
	items []Subject
}

// NewMemoryStore returns a MemoryStore preloaded with the supplied subjects.
func NewMemoryStore(items []Subject) *MemoryStore {
	return &MemoryStore{items: append([]Subject(nil), items...)}
}

// List returns the configured subjects.
func (s *MemoryStore) List() []Subject {
	return append([]Subject(nil), s.items...)
}

// FindByID looks a subject up by identifier or, case-insensitively, by name.
func (s *MemoryStore) FindByID(id string) (Subject, bool) {
	for _, item := range s.items {
		if item.ID == id || strings.EqualFold(item.Name, id) {
			return item, true
		}
	}
	return Subject{}, false
}
