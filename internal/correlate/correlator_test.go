package correlate

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/templatedoctor/validation-orchestrator/internal/domain"
	"github.com/templatedoctor/validation-orchestrator/internal/githubhost"
)

type fakeLister struct {
	narrowRuns []domain.WorkflowRun
	broadRuns  []domain.WorkflowRun
	calls      []githubhost.RunScope
	err        error
}

func (f *fakeLister) ListRuns(ctx context.Context, scope githubhost.RunScope) ([]domain.WorkflowRun, error) {
	f.calls = append(f.calls, scope)
	if f.err != nil {
		return nil, f.err
	}
	if scope.Narrow() {
		return f.narrowRuns, nil
	}
	return f.broadRuns, nil
}

var (
	narrowScope = githubhost.RunScope{WorkflowFile: "validate.yml", Branch: "main"}
	broadScope  = githubhost.RunScope{Branch: "main"}
)

func TestResolveNarrowFirstMatchWins(t *testing.T) {
	lister := &fakeLister{
		narrowRuns: []domain.WorkflowRun{
			{ID: 100, Title: "Validate tok-A"}, // most recent
			{ID: 90, Title: "Validate tok-A"},  // stale re-dispatch
		},
	}

	c := New(lister, narrowScope, broadScope, 0)
	id, err := c.Resolve(context.Background(), "tok-A")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if id != 100 {
		t.Errorf("run id = %d, want 100 (freshest match)", id)
	}
	if len(lister.calls) != 1 || !lister.calls[0].Narrow() {
		t.Errorf("calls = %+v, want single narrow query", lister.calls)
	}
}

func TestResolveFallsBackToBroadScope(t *testing.T) {
	lister := &fakeLister{
		broadRuns: []domain.WorkflowRun{
			{ID: 55, CommitMessage: "trigger validation tok-B"},
		},
	}

	c := New(lister, narrowScope, broadScope, 0)
	id, err := c.Resolve(context.Background(), "tok-B")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if id != 55 {
		t.Errorf("run id = %d, want 55", id)
	}
	if len(lister.calls) != 2 {
		t.Errorf("call count = %d, want narrow then broad", len(lister.calls))
	}
}

func TestResolveNoMatch(t *testing.T) {
	c := New(&fakeLister{}, narrowScope, broadScope, 0)

	_, err := c.Resolve(context.Background(), "tok-missing")
	if !errors.Is(err, ErrNoMatch) {
		t.Errorf("Resolve() error = %v, want ErrNoMatch", err)
	}
}

func TestResolveIsIdempotent(t *testing.T) {
	lister := &fakeLister{
		narrowRuns: []domain.WorkflowRun{{ID: 7, Title: "run tok-C"}},
	}

	c := New(lister, narrowScope, broadScope, 0)
	first, _ := c.Resolve(context.Background(), "tok-C")
	second, _ := c.Resolve(context.Background(), "tok-C")
	if first != second {
		t.Errorf("Resolve() = %d then %d, want identical ids", first, second)
	}
}

func TestResolveUsesCache(t *testing.T) {
	lister := &fakeLister{
		narrowRuns: []domain.WorkflowRun{{ID: 7, Title: "run tok-D"}},
	}

	c := New(lister, narrowScope, broadScope, time.Minute)
	if _, err := c.Resolve(context.Background(), "tok-D"); err != nil {
		t.Fatal(err)
	}

	// Remote queries must not be needed while the entry is warm.
	lister.err = errors.New("host down")
	id, err := c.Resolve(context.Background(), "tok-D")
	if err != nil {
		t.Fatalf("cached Resolve() error = %v", err)
	}
	if id != 7 {
		t.Errorf("cached id = %d, want 7", id)
	}
}

func TestRecordWarmsCache(t *testing.T) {
	lister := &fakeLister{err: errors.New("host down")}

	c := New(lister, narrowScope, broadScope, time.Minute)
	c.Record("tok-E", 31)

	id, err := c.Resolve(context.Background(), "tok-E")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if id != 31 {
		t.Errorf("id = %d, want 31", id)
	}
}
