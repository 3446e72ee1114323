// Package polldriver runs the consumer side of a validation: submit
// once, then poll status at a fixed interval until a terminal state or
// the wall-clock budget runs out. The budget expiring is reported as a
// distinct timeout outcome, never as a failure: the remote run may
// simply not be finished yet, and the caller can continue polling.
package polldriver

import (
	"context"
	"errors"
	"regexp"
	"time"
)

// Outcome classifies how a polling session ended.
type Outcome string

const (
	// OutcomeCompleted means a terminal status was observed. The last
	// report carries the host's verdict.
	OutcomeCompleted Outcome = "completed"
	// OutcomeTimedOut means the attempt budget ran out before a
	// terminal status appeared. Retryable: call Run again to continue
	// polling the same token.
	OutcomeTimedOut Outcome = "timeout"
	// OutcomeCancelled means polling was cancelled externally and the
	// upstream cancel was issued.
	OutcomeCancelled Outcome = "cancelled"
)

// Hosts are inconsistent about which field carries the lifecycle
// value, so both status and state are matched, case-insensitively.
var terminalPattern = regexp.MustCompile(`(?i)^(completed|succeeded|failed|error|cancelled)$`)

// Report is one status observation. Either Status or State may carry
// the lifecycle value depending on the host.
type Report struct {
	Status     string
	State      string
	Conclusion string
	RunURL     string
}

// Terminal reports whether the observation matches a terminal pattern.
func (r Report) Terminal() bool {
	return terminalPattern.MatchString(r.Status) || terminalPattern.MatchString(r.State)
}

// StatusFunc fetches the current status of the tracked run.
type StatusFunc func(ctx context.Context) (Report, error)

// CancelFunc cancels the tracked run upstream.
type CancelFunc func(ctx context.Context) error

// Config bounds a polling session. MaxAttempts × Interval is the
// end-to-end budget; the host-side workflow has no deadline contract,
// so this client-side budget is the only one.
type Config struct {
	Interval    time.Duration
	MaxAttempts int
}

// Result is the outcome of one Run call.
type Result struct {
	Outcome  Outcome
	Last     Report
	Attempts int
}

// Driver polls one run to completion.
type Driver struct {
	status   StatusFunc
	cancel   CancelFunc
	cfg      Config
	cancelCh chan struct{}
}

// New creates a Driver. cancel may be nil when the caller never
// requests cancellation.
func New(cfg Config, status StatusFunc, cancel CancelFunc) *Driver {
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Second
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 60
	}
	return &Driver{
		status:   status,
		cancel:   cancel,
		cfg:      cfg,
		cancelCh: make(chan struct{}),
	}
}

// RequestCancel stops further polling and triggers the upstream
// cancel. Safe to call at most once, from any goroutine.
func (d *Driver) RequestCancel() {
	close(d.cancelCh)
}

// Run polls until a terminal state, a cancellation, or the attempt
// budget is exhausted. A "pending" status is a normal observation and
// keeps the loop going; transport errors abort the session.
func (d *Driver) Run(ctx context.Context) (Result, error) {
	var last Report

	for attempt := 1; attempt <= d.cfg.MaxAttempts; attempt++ {
		select {
		case <-d.cancelCh:
			return d.finishCancelled(ctx, attempt)
		default:
		}

		report, err := d.status(ctx)
		if err != nil {
			return Result{Last: last, Attempts: attempt}, err
		}
		last = report

		if report.Terminal() {
			return Result{Outcome: OutcomeCompleted, Last: report, Attempts: attempt}, nil
		}
		if attempt == d.cfg.MaxAttempts {
			break
		}

		// The wait must die the moment a cancel fires; a finished
		// poller must not resurrect on a stale timer.
		timer := time.NewTimer(d.cfg.Interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return Result{Last: last, Attempts: attempt}, ctx.Err()
		case <-d.cancelCh:
			timer.Stop()
			return d.finishCancelled(ctx, attempt)
		case <-timer.C:
		}
	}

	return Result{Outcome: OutcomeTimedOut, Last: last, Attempts: d.cfg.MaxAttempts}, nil
}

// finishCancelled issues the upstream cancel, then reads status once
// more so the result reflects the cancellation.
func (d *Driver) finishCancelled(ctx context.Context, attempts int) (Result, error) {
	if d.cancel != nil {
		if err := d.cancel(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return Result{Outcome: OutcomeCancelled, Attempts: attempts}, err
		}
	}

	last, err := d.status(ctx)
	if err != nil {
		return Result{Outcome: OutcomeCancelled, Attempts: attempts}, nil
	}
	return Result{Outcome: OutcomeCancelled, Last: last, Attempts: attempts + 1}, nil
}
