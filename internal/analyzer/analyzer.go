// Package analyzer defines the scan capability the batch coordinator
// fans out over. The real analyzer (rule matching over repository
// files) is an external collaborator; this package only fixes its
// contract and ships a simulated implementation.
package analyzer

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Result identifies a finished scan.
type Result struct {
	ID string
}

// Analyzer runs a compliance scan for one repository.
type Analyzer interface {
	Scan(ctx context.Context, repo, mode string) (*Result, error)
}

// Simulated is an Analyzer that models the dispatch/poll-to-completion
// cycle with a fixed delay, matching what a scan costs without
// touching any remote system.
type Simulated struct {
	Delay time.Duration
}

// Scan waits for the configured delay, honoring cancellation, and
// returns a fresh result id.
func (s *Simulated) Scan(ctx context.Context, repo, mode string) (*Result, error) {
	if s.Delay > 0 {
		timer := time.NewTimer(s.Delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
	return &Result{ID: uuid.NewString()}, nil
}
