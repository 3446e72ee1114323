// Package batchscan fans a scan request out over many repositories.
// Each batch gets one background progression task that advances its
// items through a small forward-only state machine while status
// queries read whole-batch snapshots concurrently.
package batchscan

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"pkt.systems/pslog"

	"github.com/templatedoctor/validation-orchestrator/internal/analyzer"
	"github.com/templatedoctor/validation-orchestrator/internal/domain"
)

// MaxRepos caps how many repositories one batch may carry. Longer
// lists are truncated before batch creation.
const MaxRepos = 50

// ErrNoValidRepos means nothing submittable remained after
// validation and de-duplication.
var ErrNoValidRepos = errors.New("no valid repositories in request")

var repoPattern = regexp.MustCompile(`^[A-Za-z0-9_.-]+/[A-Za-z0-9_.-]+$`)

// ItemUpdate describes one item transition, for progress broadcasts.
type ItemUpdate struct {
	BatchID string
	Index   int
	Item    domain.BatchItem
}

// Coordinator accepts batch submissions and drives their progression.
type Coordinator struct {
	store    Store
	analyzer analyzer.Analyzer
	// concurrency bounds how many items one batch advances at once.
	concurrency int
	logger      pslog.Logger
	onUpdate    func(ItemUpdate)

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
}

// New creates a Coordinator. concurrency below 1 means one item at a
// time, preserving submission order.
func New(store Store, a analyzer.Analyzer, concurrency int, logger pslog.Logger) *Coordinator {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Coordinator{
		store:       store,
		analyzer:    a,
		concurrency: concurrency,
		logger:      logger,
		cancels:     make(map[string]context.CancelFunc),
	}
}

// SetOnUpdate registers a callback invoked after each item
// transition. Must be set before the first Start.
func (c *Coordinator) SetOnUpdate(fn func(ItemUpdate)) {
	c.onUpdate = fn
}

// Start validates and accepts a batch, launching its progression in
// the background. The returned snapshot reflects the batch as
// created, all items pending.
func (c *Coordinator) Start(repos []string, mode string) (*domain.Batch, error) {
	accepted := dedupe(repos)
	if len(accepted) == 0 {
		return nil, ErrNoValidRepos
	}
	if len(accepted) > MaxRepos {
		accepted = accepted[:MaxRepos]
	}

	batch := &domain.Batch{
		ID:      uuid.NewString(),
		Created: time.Now().UTC(),
		Mode:    mode,
		Items:   make([]domain.BatchItem, len(accepted)),
	}
	for i, repo := range accepted {
		batch.Items[i] = domain.BatchItem{Repo: repo, Status: domain.ItemPending}
	}

	if err := c.store.Create(batch); err != nil {
		return nil, fmt.Errorf("create batch: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	c.mu.Lock()
	c.cancels[batch.ID] = cancel
	c.mu.Unlock()

	c.logger.Info("batch accepted", "batch_id", batch.ID, "repos", len(accepted), "mode", mode)

	go c.progress(ctx, batch.ID, accepted, mode)

	return batch.Clone(), nil
}

// Status returns a snapshot of the batch, possibly mid-progression.
func (c *Coordinator) Status(id string) (*domain.Batch, bool) {
	return c.store.Get(id)
}

// Cancel stops a batch's progression. Items already in flight run to
// their own conclusion; pending items move straight to cancelled.
func (c *Coordinator) Cancel(id string) bool {
	c.mu.Lock()
	cancel, ok := c.cancels[id]
	c.mu.Unlock()
	if ok {
		cancel()
	}
	return ok
}

// Sweep evicts finished batches older than the cutoff.
func (c *Coordinator) Sweep(olderThan time.Duration) int {
	return c.store.Sweep(olderThan)
}

// progress is the single writer for this batch's items.
func (c *Coordinator) progress(ctx context.Context, batchID string, repos []string, mode string) {
	defer func() {
		c.mu.Lock()
		if cancel, ok := c.cancels[batchID]; ok {
			cancel()
			delete(c.cancels, batchID)
		}
		c.mu.Unlock()
	}()

	g := new(errgroup.Group)
	g.SetLimit(c.concurrency)

	for idx, repo := range repos {
		g.Go(func() error {
			c.scanItem(ctx, batchID, idx, repo, mode)
			return nil
		})
	}
	_ = g.Wait()

	c.logger.Info("batch finished", "batch_id", batchID)
}

func (c *Coordinator) scanItem(ctx context.Context, batchID string, idx int, repo, mode string) {
	if ctx.Err() != nil {
		c.setStatus(batchID, idx, repo, domain.ItemCancelled, "", "")
		return
	}

	c.setStatus(batchID, idx, repo, domain.ItemInProgress, "", "")

	result, err := c.analyzer.Scan(ctx, repo, mode)
	switch {
	case errors.Is(err, context.Canceled):
		c.setStatus(batchID, idx, repo, domain.ItemCancelled, "", "")
	case err != nil:
		// One item's failure never aborts its siblings.
		c.setStatus(batchID, idx, repo, domain.ItemError, err.Error(), "")
	default:
		c.setStatus(batchID, idx, repo, domain.ItemDone, "", result.ID)
	}
}

func (c *Coordinator) setStatus(batchID string, idx int, repo string, status domain.ItemStatus, errMsg, resultID string) {
	if err := c.store.SetItemStatus(batchID, idx, status, errMsg, resultID); err != nil {
		c.logger.Warn("batch item update rejected", "batch_id", batchID, "item", idx, "err", err)
		return
	}
	if c.onUpdate != nil {
		c.onUpdate(ItemUpdate{
			BatchID: batchID,
			Index:   idx,
			Item:    domain.BatchItem{Repo: repo, Status: status, Error: errMsg, ResultID: resultID},
		})
	}
}

// dedupe keeps the first occurrence of each well-formed "owner/repo"
// entry, preserving submission order.
func dedupe(repos []string) []string {
	seen := make(map[string]struct{}, len(repos))
	var out []string
	for _, repo := range repos {
		if !repoPattern.MatchString(repo) {
			continue
		}
		if _, dup := seen[repo]; dup {
			continue
		}
		seen[repo] = struct{}{}
		out = append(out, repo)
	}
	return out
}
