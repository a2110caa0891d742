package tus

import "sync"

// Store remembers transfer session URLs by content fingerprint so that an
// interrupted upload can be resumed, possibly by another process.
type Store interface {
	// Get returns the URL stored under fingerprint.
	Get(fingerprint string) (url string, ok bool)

	// Put stores url under fingerprint, replacing any previous entry.
	Put(fingerprint, url string) error

	// Delete removes the entry for fingerprint. Deleting a missing entry is
	// not an error.
	Delete(fingerprint string) error
}

// MemoryStore is a Store that lives for the lifetime of the process.
type MemoryStore struct {
	mu sync.Mutex
	m  map[string]string
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{m: make(map[string]string)}
}

// Get implements Store.
func (s *MemoryStore) Get(fingerprint string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	url, ok := s.m[fingerprint]
	return url, ok
}

// Put implements Store.
func (s *MemoryStore) Put(fingerprint, url string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[fingerprint] = url
	return nil
}

// Delete implements Store.
func (s *MemoryStore) Delete(fingerprint string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.m, fingerprint)
	return nil
}

// Len returns the number of stored entries.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.m)
}
