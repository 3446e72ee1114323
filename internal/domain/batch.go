package domain

import "time"

// ItemStatus is the state of a single repository within a batch scan.
// Transitions are strictly forward-only: pending → in-progress →
// done|error|cancelled. There are no back-transitions.
type ItemStatus string

const (
	ItemPending    ItemStatus = "pending"
	ItemInProgress ItemStatus = "in-progress"
	ItemDone       ItemStatus = "done"
	ItemError      ItemStatus = "error"
	ItemCancelled  ItemStatus = "cancelled"
)

// Terminal reports whether the item has reached a final state.
func (s ItemStatus) Terminal() bool {
	switch s {
	case ItemDone, ItemError, ItemCancelled:
		return true
	}
	return false
}

// CanTransition reports whether moving from s to next respects the
// forward-only state machine.
func (s ItemStatus) CanTransition(next ItemStatus) bool {
	switch s {
	case ItemPending:
		return next == ItemInProgress || next == ItemCancelled
	case ItemInProgress:
		return next.Terminal()
	default:
		return false
	}
}

// BatchItem tracks one repository's scan within a batch.
type BatchItem struct {
	Repo     string     `json:"repo"`
	Status   ItemStatus `json:"status"`
	Error    string     `json:"error,omitempty"`
	ResultID string     `json:"resultId,omitempty"`
}

// Batch is an in-memory record of a batch scan. Created once on
// submission, mutated item-by-item only by the batch's own
// progression task, read concurrently as whole snapshots.
type Batch struct {
	ID      string      `json:"batchId"`
	Created time.Time   `json:"created"`
	Mode    string      `json:"mode,omitempty"`
	Items   []BatchItem `json:"items"`
}

// Completed counts items in any terminal state.
func (b *Batch) Completed() int {
	n := 0
	for _, it := range b.Items {
		if it.Status.Terminal() {
			n++
		}
	}
	return n
}

// Done reports whether every item has reached a terminal state.
func (b *Batch) Done() bool {
	return b.Completed() == len(b.Items)
}

// Clone returns a deep copy safe to hand to readers while the
// progression task keeps mutating the original.
func (b *Batch) Clone() *Batch {
	cp := *b
	cp.Items = make([]BatchItem, len(b.Items))
	copy(cp.Items, b.Items)
	return &cp
}
