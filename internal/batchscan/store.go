package batchscan

import (
	"fmt"
	"sync"
	"time"

	"github.com/templatedoctor/validation-orchestrator/internal/domain"
)

// Store holds batch records. It is owned by the coordinator and
// injected at construction; nothing reaches it through ambient
// global state.
type Store interface {
	Create(b *domain.Batch) error
	// Get returns a deep-copy snapshot safe for concurrent readers.
	Get(id string) (*domain.Batch, bool)
	// SetItemStatus advances one item, enforcing the forward-only
	// state machine.
	SetItemStatus(batchID string, idx int, status domain.ItemStatus, errMsg, resultID string) error
	// Sweep removes finished batches created before the cutoff and
	// returns how many were evicted.
	Sweep(olderThan time.Duration) int
}

// MemoryStore is the in-process Store. Writes come only from each
// batch's progression task; reads may come from any request handler,
// so all access goes through the lock and Get hands out copies.
type MemoryStore struct {
	mu      sync.RWMutex
	batches map[string]*domain.Batch
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{batches: make(map[string]*domain.Batch)}
}

// Create registers a new batch record.
func (s *MemoryStore) Create(b *domain.Batch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.batches[b.ID]; exists {
		return fmt.Errorf("batch %s already exists", b.ID)
	}
	s.batches[b.ID] = b.Clone()
	return nil
}

// Get returns a snapshot of the batch, which may be partially
// advanced while its progression task keeps running.
func (s *MemoryStore) Get(id string) (*domain.Batch, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	b, ok := s.batches[id]
	if !ok {
		return nil, false
	}
	return b.Clone(), true
}

// SetItemStatus advances one item. Transitions that would move an
// item backwards are rejected.
func (s *MemoryStore) SetItemStatus(batchID string, idx int, status domain.ItemStatus, errMsg, resultID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.batches[batchID]
	if !ok {
		return fmt.Errorf("batch %s not found", batchID)
	}
	if idx < 0 || idx >= len(b.Items) {
		return fmt.Errorf("batch %s has no item %d", batchID, idx)
	}

	item := &b.Items[idx]
	if !item.Status.CanTransition(status) {
		return fmt.Errorf("batch %s item %d: illegal transition %s -> %s", batchID, idx, item.Status, status)
	}

	item.Status = status
	item.Error = errMsg
	item.ResultID = resultID
	return nil
}

// Sweep evicts batches whose items have all finished and whose
// creation time predates the cutoff.
func (s *MemoryStore) Sweep(olderThan time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := time.Now().Add(-olderThan)
	evicted := 0
	for id, b := range s.batches {
		if b.Done() && b.Created.Before(cutoff) {
			delete(s.batches, id)
			evicted++
		}
	}
	return evicted
}
