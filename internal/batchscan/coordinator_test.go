package batchscan

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"pkt.systems/pslog"

	"github.com/templatedoctor/validation-orchestrator/internal/analyzer"
	"github.com/templatedoctor/validation-orchestrator/internal/domain"
)

func testLogger() pslog.Logger {
	return pslog.NewWithOptions(io.Discard, pslog.Options{Mode: pslog.ModeStructured, NoColor: true})
}

// waitDone polls until every item is terminal or the deadline passes.
func waitDone(t *testing.T, c *Coordinator, id string) *domain.Batch {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		b, ok := c.Status(id)
		if !ok {
			t.Fatalf("batch %s disappeared", id)
		}
		if b.Done() {
			return b
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("batch %s did not finish in time", id)
	return nil
}

func TestStartDeduplicatesAndCompletes(t *testing.T) {
	c := New(NewMemoryStore(), &analyzer.Simulated{}, 1, testLogger())

	batch, err := c.Start([]string{"a/b", "a/b", "c/d"}, "")
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if len(batch.Items) != 2 {
		t.Fatalf("item count = %d, want 2 after dedupe", len(batch.Items))
	}

	done := waitDone(t, c, batch.ID)
	if got := done.Completed(); got != 2 {
		t.Errorf("Completed() = %d, want 2", got)
	}
	for _, it := range done.Items {
		if it.Status != domain.ItemDone {
			t.Errorf("item %s status = %s, want done", it.Repo, it.Status)
		}
		if it.ResultID == "" {
			t.Errorf("item %s missing result id", it.Repo)
		}
	}
}

func TestStartRejectsInvalidInput(t *testing.T) {
	c := New(NewMemoryStore(), &analyzer.Simulated{}, 1, testLogger())

	cases := [][]string{
		nil,
		{},
		{"not-a-repo", "also bad", "trailing/slash/extra"},
	}
	for _, repos := range cases {
		if _, err := c.Start(repos, ""); !errors.Is(err, ErrNoValidRepos) {
			t.Errorf("Start(%v) error = %v, want ErrNoValidRepos", repos, err)
		}
	}
}

func TestStartCapsRepoCount(t *testing.T) {
	repos := make([]string, 0, MaxRepos+10)
	for i := 0; i < MaxRepos+10; i++ {
		repos = append(repos, fmt.Sprintf("owner/repo-%03d", i))
	}

	c := New(NewMemoryStore(), &analyzer.Simulated{}, 4, testLogger())
	batch, err := c.Start(repos, "")
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if len(batch.Items) != MaxRepos {
		t.Errorf("item count = %d, want cap of %d", len(batch.Items), MaxRepos)
	}
}

// failingAnalyzer fails a chosen repo and succeeds otherwise.
type failingAnalyzer struct {
	failRepo string
}

func (f *failingAnalyzer) Scan(ctx context.Context, repo, mode string) (*analyzer.Result, error) {
	if repo == f.failRepo {
		return nil, errors.New("clone failed")
	}
	return &analyzer.Result{ID: "res-" + repo}, nil
}

func TestItemFailureIsContained(t *testing.T) {
	c := New(NewMemoryStore(), &failingAnalyzer{failRepo: "bad/repo"}, 1, testLogger())

	batch, err := c.Start([]string{"good/one", "bad/repo", "good/two"}, "")
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	done := waitDone(t, c, batch.ID)
	statuses := map[string]domain.ItemStatus{}
	for _, it := range done.Items {
		statuses[it.Repo] = it.Status
	}
	if statuses["bad/repo"] != domain.ItemError {
		t.Errorf("bad/repo status = %s, want error", statuses["bad/repo"])
	}
	if statuses["good/one"] != domain.ItemDone || statuses["good/two"] != domain.ItemDone {
		t.Errorf("sibling items = %v, want done despite the failure", statuses)
	}
}

func TestStatusUnknownBatch(t *testing.T) {
	c := New(NewMemoryStore(), &analyzer.Simulated{}, 1, testLogger())

	if _, ok := c.Status("nope"); ok {
		t.Error("Status() found a batch that was never created")
	}
}

func TestItemStatesOnlyMoveForward(t *testing.T) {
	var mu sync.Mutex
	observed := map[string][]domain.ItemStatus{}

	c := New(NewMemoryStore(), &analyzer.Simulated{Delay: time.Millisecond}, 2, testLogger())
	c.SetOnUpdate(func(u ItemUpdate) {
		mu.Lock()
		observed[u.Item.Repo] = append(observed[u.Item.Repo], u.Item.Status)
		mu.Unlock()
	})

	batch, err := c.Start([]string{"a/b", "c/d", "e/f"}, "")
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	waitDone(t, c, batch.ID)

	mu.Lock()
	defer mu.Unlock()
	for repo, seq := range observed {
		if len(seq) != 2 || seq[0] != domain.ItemInProgress || !seq[1].Terminal() {
			t.Errorf("repo %s transitions = %v, want [in-progress, terminal]", repo, seq)
		}
	}
}

func TestCancelMarksPendingItems(t *testing.T) {
	// Slow scans so cancellation lands while later items are pending.
	c := New(NewMemoryStore(), &analyzer.Simulated{Delay: 50 * time.Millisecond}, 1, testLogger())

	batch, err := c.Start([]string{"a/b", "c/d", "e/f", "g/h"}, "")
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	time.Sleep(10 * time.Millisecond)
	if !c.Cancel(batch.ID) {
		t.Fatal("Cancel() = false for a running batch")
	}

	done := waitDone(t, c, batch.ID)
	cancelled := 0
	for _, it := range done.Items {
		if it.Status == domain.ItemCancelled {
			cancelled++
		}
	}
	if cancelled == 0 {
		t.Error("expected at least one cancelled item after Cancel")
	}
}

func TestSweepEvictsFinishedBatches(t *testing.T) {
	store := NewMemoryStore()
	c := New(store, &analyzer.Simulated{}, 1, testLogger())

	batch, err := c.Start([]string{"a/b"}, "")
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	waitDone(t, c, batch.ID)

	if n := c.Sweep(time.Hour); n != 0 {
		t.Errorf("Sweep(1h) = %d, want 0 for a fresh batch", n)
	}
	if n := c.Sweep(0); n != 1 {
		t.Errorf("Sweep(0) = %d, want 1", n)
	}
	if _, ok := c.Status(batch.ID); ok {
		t.Error("batch still readable after sweep")
	}
}
