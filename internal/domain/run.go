package domain

import "time"

// WorkflowRun is a read-only snapshot of a remote workflow run. The
// host owns the record; the orchestrator only reads snapshots and
// never mutates one.
type WorkflowRun struct {
	ID            int64
	Title         string
	CommitMessage string
	Status        RunStatus
	Conclusion    Conclusion
	URL           string
	StartedAt     *time.Time
	UpdatedAt     *time.Time
}

// Terminal reports whether the run has finished.
func (r *WorkflowRun) Terminal() bool {
	return r.Status.Terminal()
}
