package domain

import "strings"

// RunStatus is the canonical lifecycle state of a remote workflow run.
// Host responses are translated into this closed set at the adapter
// boundary so nothing downstream matches on loosely-typed strings.
type RunStatus string

const (
	// RunPending means no remote run is visible for a token yet. The
	// host never reports this state; it exists for the window between
	// dispatch acceptance and the run appearing in list queries.
	RunPending    RunStatus = "pending"
	RunQueued     RunStatus = "queued"
	RunInProgress RunStatus = "in_progress"
	RunCompleted  RunStatus = "completed"
)

// Terminal reports whether no further status transition can occur.
func (s RunStatus) Terminal() bool {
	return s == RunCompleted
}

// ParseRunStatus normalizes a host-reported status string. The host
// uses several queued-equivalent spellings (waiting, requested,
// pending) depending on the run's trigger.
func ParseRunStatus(raw string) RunStatus {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "in_progress":
		return RunInProgress
	case "completed":
		return RunCompleted
	default:
		return RunQueued
	}
}

// Conclusion is the outcome of a completed run. Defined only when the
// run status is RunCompleted; ConclusionNone otherwise.
type Conclusion string

const (
	ConclusionNone           Conclusion = ""
	ConclusionSuccess        Conclusion = "success"
	ConclusionFailure        Conclusion = "failure"
	ConclusionCancelled      Conclusion = "cancelled"
	ConclusionTimedOut       Conclusion = "timed_out"
	ConclusionActionRequired Conclusion = "action_required"
	ConclusionNeutral        Conclusion = "neutral"
)

// ParseConclusion normalizes a host-reported conclusion string.
// Unknown spellings fold into ConclusionNeutral rather than leaking
// through as free text.
func ParseConclusion(raw string) Conclusion {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "":
		return ConclusionNone
	case "success":
		return ConclusionSuccess
	case "failure":
		return ConclusionFailure
	case "cancelled", "canceled":
		return ConclusionCancelled
	case "timed_out":
		return ConclusionTimedOut
	case "action_required":
		return ConclusionActionRequired
	default:
		return ConclusionNeutral
	}
}
