package batchscan

import (
	"testing"
	"time"

	"github.com/templatedoctor/validation-orchestrator/internal/domain"
)

func newStoredBatch(t *testing.T, s *MemoryStore) *domain.Batch {
	t.Helper()
	b := &domain.Batch{
		ID:      "b1",
		Created: time.Now().Add(-time.Hour),
		Items: []domain.BatchItem{
			{Repo: "a/b", Status: domain.ItemPending},
		},
	}
	if err := s.Create(b); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	return b
}

func TestCreateRejectsDuplicateID(t *testing.T) {
	s := NewMemoryStore()
	b := newStoredBatch(t, s)

	if err := s.Create(b); err == nil {
		t.Error("Create() accepted a duplicate batch id")
	}
}

func TestGetReturnsSnapshot(t *testing.T) {
	s := NewMemoryStore()
	newStoredBatch(t, s)

	snap, ok := s.Get("b1")
	if !ok {
		t.Fatal("Get() did not find the batch")
	}
	snap.Items[0].Status = domain.ItemDone

	fresh, _ := s.Get("b1")
	if fresh.Items[0].Status != domain.ItemPending {
		t.Error("mutating a snapshot leaked into the store")
	}
}

func TestSetItemStatusEnforcesForwardOnly(t *testing.T) {
	s := NewMemoryStore()
	newStoredBatch(t, s)

	if err := s.SetItemStatus("b1", 0, domain.ItemInProgress, "", ""); err != nil {
		t.Fatalf("pending -> in-progress error = %v", err)
	}
	if err := s.SetItemStatus("b1", 0, domain.ItemDone, "", "res-1"); err != nil {
		t.Fatalf("in-progress -> done error = %v", err)
	}
	if err := s.SetItemStatus("b1", 0, domain.ItemInProgress, "", ""); err == nil {
		t.Error("done -> in-progress was not rejected")
	}

	if err := s.SetItemStatus("b1", 5, domain.ItemDone, "", ""); err == nil {
		t.Error("out-of-range item index was not rejected")
	}
	if err := s.SetItemStatus("nope", 0, domain.ItemDone, "", ""); err == nil {
		t.Error("unknown batch id was not rejected")
	}
}

func TestSweepKeepsUnfinishedBatches(t *testing.T) {
	s := NewMemoryStore()
	newStoredBatch(t, s) // item still pending

	if n := s.Sweep(0); n != 0 {
		t.Errorf("Sweep() = %d, want 0 while items are pending", n)
	}

	s.SetItemStatus("b1", 0, domain.ItemInProgress, "", "")
	s.SetItemStatus("b1", 0, domain.ItemDone, "", "r")

	if n := s.Sweep(time.Minute); n != 1 {
		t.Errorf("Sweep() = %d, want 1 for an old finished batch", n)
	}
}
