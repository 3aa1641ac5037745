package repository

import (
	"sync"

	"FinPulse/internal/domain/models"
)

// SnapshotStore is a bounded, append-only history of snapshots with their
// embeddings kept index-aligned in a parallel slice.
//
// Writes go through Append under the write lock. Readers receive capped slice
// headers: the store only ever writes past the current length or drops from the
// head, so an element visible through a view is never mutated afterwards.
type SnapshotStore struct {
	mu       sync.RWMutex
	capacity int
	entries  []models.Snapshot
	vectors  [][]float64
}

func NewSnapshotStore(capacity int) *SnapshotStore {
	if capacity < 1 {
		capacity = 1
	}
	return &SnapshotStore{
		capacity: capacity,
		entries:  make([]models.Snapshot, 0, capacity),
		vectors:  make([][]float64, 0, capacity),
	}
}

// Append adds s at the tail, evicting from the head of both slices when full.
func (s *SnapshotStore) Append(snap models.Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries = append(s.entries, snap)
	s.vectors = append(s.vectors, snap.Embedding)

	if over := len(s.entries) - s.capacity; over > 0 {
		s.entries = s.entries[over:]
		s.vectors = s.vectors[over:]
	}
}

// All returns every stored snapshot, oldest first.
func (s *SnapshotStore) All() []models.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := len(s.entries)
	return s.entries[:n:n]
}

// Window returns the last n snapshots, oldest first.
func (s *SnapshotStore) Window(n int) []models.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	size := len(s.entries)
	if n <= 0 {
		return s.entries[size:size:size]
	}
	if n > size {
		n = size
	}
	return s.entries[size-n : size : size]
}

// View returns entries and vectors captured under the same lock.
func (s *SnapshotStore) View() models.StoreView {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := len(s.entries)
	return models.StoreView{
		Entries: s.entries[:n:n],
		Vectors: s.vectors[:n:n],
	}
}

func (s *SnapshotStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

func (s *SnapshotStore) Capacity() int {
	return s.capacity
}
