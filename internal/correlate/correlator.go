// Package correlate finds the remote run id that belongs to a
// client-chosen run token. The token is embedded in the dispatched
// workflow's inputs and surfaces in the run's title or head commit
// message, so correlation is a substring scan over recent run
// metadata: first scoped to the validation workflow, then repo-wide.
package correlate

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/templatedoctor/validation-orchestrator/internal/domain"
	"github.com/templatedoctor/validation-orchestrator/internal/githubhost"
)

// ErrNoMatch means no run anywhere embeds the token. Callers must
// treat this as "not yet visible to the host", not a hard failure:
// the dispatch may still be propagating.
var ErrNoMatch = errors.New("no run matches token")

// RunLister is the slice of the host adapter the correlator needs.
type RunLister interface {
	ListRuns(ctx context.Context, scope githubhost.RunScope) ([]domain.WorkflowRun, error)
}

// Correlator resolves run tokens to remote run ids. Resolved pairs go
// into a time-bounded cache purely as an optimization: correctness
// never depends on the cache being warm, and a miss falls back to
// live correlation.
type Correlator struct {
	lister RunLister
	narrow githubhost.RunScope
	broad  githubhost.RunScope
	ttl    time.Duration

	mu    sync.Mutex
	cache map[string]cacheEntry
}

type cacheEntry struct {
	runID   int64
	expires time.Time
}

// New creates a Correlator. A non-positive ttl disables caching.
func New(lister RunLister, narrow, broad githubhost.RunScope, ttl time.Duration) *Correlator {
	return &Correlator{
		lister: lister,
		narrow: narrow,
		broad:  broad,
		ttl:    ttl,
		cache:  make(map[string]cacheEntry),
	}
}

// Resolve finds the remote run id for token. The narrow scope is
// searched first; runs arrive most-recent-first and the first match
// wins, so a re-dispatched workflow resolves to the freshest run even
// when old runs linger. Returns ErrNoMatch if no run embeds the token.
func (c *Correlator) Resolve(ctx context.Context, token string) (int64, error) {
	if id, ok := c.cached(token); ok {
		return id, nil
	}

	for _, scope := range []githubhost.RunScope{c.narrow, c.broad} {
		runs, err := c.lister.ListRuns(ctx, scope)
		if err != nil {
			return 0, err
		}
		for _, run := range runs {
			if strings.Contains(run.Title, token) || strings.Contains(run.CommitMessage, token) {
				c.Record(token, run.ID)
				return run.ID, nil
			}
		}
	}

	return 0, ErrNoMatch
}

// Record stores a known token→run pairing, e.g. one reported through
// the callback channel before the client ever polled.
func (c *Correlator) Record(token string, runID int64) {
	if c.ttl <= 0 || token == "" || runID == 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache[token] = cacheEntry{runID: runID, expires: time.Now().Add(c.ttl)}
}

func (c *Correlator) cached(token string) (int64, bool) {
	if c.ttl <= 0 {
		return 0, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.cache[token]
	if !ok {
		return 0, false
	}
	if time.Now().After(entry.expires) {
		delete(c.cache, token)
		return 0, false
	}
	return entry.runID, true
}
