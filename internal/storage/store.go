package storage

import (
	"errors"
	"sort"
	"sync"
)

// ErrDocNotFound is returned when a document ID doesn't exist in the store.
var ErrDocNotFound = errors.New("document not found")

// DocStore is the document storage backing one shard. All implementations
// must be safe for concurrent use.
type DocStore interface {
	// Put stores a document under id, overwriting any existing one.
	Put(id string, doc []byte) error

	// Get retrieves a document by id.
	// Returns ErrDocNotFound if the id doesn't exist.
	Get(id string) ([]byte, error)

	// Delete removes a document. No error if the id doesn't exist.
	Delete(id string) error

	// IDs returns all document IDs in sorted order, so iteration over the
	// store is deterministic.
	IDs() []string

	// Stats returns storage statistics.
	Stats() StoreStats
}

// StoreStats contains statistics about the store.
type StoreStats struct {
	Docs  int // Number of documents
	Bytes int // Total size of all documents in bytes
}

// MemoryStore implements DocStore with in-memory storage.
// Uses sync.RWMutex for thread-safe concurrent access.
type MemoryStore struct {
	mu   sync.RWMutex
	docs map[string][]byte
}

// NewMemoryStore creates a new in-memory document store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		docs: make(map[string][]byte),
	}
}

// Put stores a copy of doc under id.
func (m *MemoryStore) Put(id string, doc []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]byte, len(doc))
	copy(cp, doc)
	m.docs[id] = cp
	return nil
}

// Get returns a copy of the document to prevent external modification.
func (m *MemoryStore) Get(id string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	doc, ok := m.docs[id]
	if !ok {
		return nil, ErrDocNotFound
	}
	cp := make([]byte, len(doc))
	copy(cp, doc)
	return cp, nil
}

// Delete removes a document; deleting a missing id is not an error.
func (m *MemoryStore) Delete(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.docs, id)
	return nil
}

// IDs returns all document IDs sorted ascending.
func (m *MemoryStore) IDs() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.docs))
	for id := range m.docs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Stats returns document count and total byte size.
func (m *MemoryStore) Stats() StoreStats {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s := StoreStats{Docs: len(m.docs)}
	for _, doc := range m.docs {
		s.Bytes += len(doc)
	}
	return s
}
