package storage

import (
	"context"
	"fmt"
	"sync"

	"lectureRAG/core"
)

// MemoryVectorStore keeps vectors in process memory.
type MemoryVectorStore struct {
	mu    sync.RWMutex
	byID  map[string]core.IndexedVector
	order []string // insertion order
}

func NewMemoryVectorStore() *MemoryVectorStore {
	return &MemoryVectorStore{byID: map[string]core.IndexedVector{}}
}

func (s *MemoryVectorStore) Insert(_ context.Context, vectors []core.IndexedVector) error {
	if err := checkBatch(vectors); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, v := range vectors {
		if _, ok := s.byID[v.ID]; ok {
			return fmt.Errorf("%w: %s", core.ErrDuplicateID, v.ID)
		}
	}
	for _, v := range vectors {
		v.Embedding = append([]float32(nil), v.Embedding...)
		s.byID[v.ID] = v
		s.order = append(s.order, v.ID)
	}
	return nil
}

func (s *MemoryVectorStore) Query(_ context.Context, embedding []float32, k int, f Filter) ([]core.Hit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return rankByCosine(s.matching(f), embedding, k)
}

func (s *MemoryVectorStore) Get(_ context.Context, f Filter) ([]core.IndexedVector, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.matching(f), nil
}

func (s *MemoryVectorStore) Delete(_ context.Context, f Filter) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.order[:0]
	removed := 0
	for _, id := range s.order {
		if f.Matches(s.byID[id].Metadata) {
			delete(s.byID, id)
			removed++
			continue
		}
		kept = append(kept, id)
	}
	s.order = kept
	return removed, nil
}

func (s *MemoryVectorStore) Count(_ context.Context, f Filter) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if f.Title == "" {
		return len(s.byID), nil
	}
	n := 0
	for _, v := range s.byID {
		if f.Matches(v.Metadata) {
			n++
		}
	}
	return n, nil
}

func (s *MemoryVectorStore) Close() error { return nil }

// matching must be called with the lock held.
func (s *MemoryVectorStore) matching(f Filter) []core.IndexedVector {
	out := make([]core.IndexedVector, 0, len(s.order))
	for _, id := range s.order {
		if v := s.byID[id]; f.Matches(v.Metadata) {
			out = append(out, v)
		}
	}
	return out
}
