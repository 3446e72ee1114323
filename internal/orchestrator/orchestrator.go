// Package orchestrator owns the validation run lifecycle: dispatch →
// correlate → poll → terminal state, plus cancellation. It keeps no
// state between calls; every status or cancel request re-derives the
// present state from the host, which makes concurrent calls for the
// same token naturally safe.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"pkt.systems/pslog"

	"github.com/templatedoctor/validation-orchestrator/internal/correlate"
	"github.com/templatedoctor/validation-orchestrator/internal/domain"
)

var (
	// ErrNotConfigured means the service-to-service credential is
	// absent. Fatal for dispatch, never retried.
	ErrNotConfigured = errors.New("github credential not configured")
	// ErrInvalidInput marks malformed client input.
	ErrInvalidInput = errors.New("invalid input")
	// ErrRunNotFound means cancellation could not locate any run for
	// the token.
	ErrRunNotFound = errors.New("no run found for token")
)

// Host is the slice of the host adapter the orchestrator drives.
type Host interface {
	DispatchWorkflow(ctx context.Context, workflowFile, ref string, inputs map[string]string) error
	GetRun(ctx context.Context, runID int64) (*domain.WorkflowRun, error)
	CancelRun(ctx context.Context, runID int64) error
}

// Resolver maps run tokens to remote run ids.
type Resolver interface {
	Resolve(ctx context.Context, token string) (int64, error)
	Record(token string, runID int64)
}

// Config holds orchestrator settings.
type Config struct {
	// WorkflowFile is the validation workflow in the host repo.
	WorkflowFile string
	// Ref is the git ref the workflow is dispatched on.
	Ref string
	// TokenPresent records whether a host credential was configured.
	// Dispatch refuses to run without one.
	TokenPresent bool
}

// Orchestrator coordinates validation runs against the host.
type Orchestrator struct {
	host   Host
	runs   Resolver
	cfg    Config
	logger pslog.Logger
}

// New creates an Orchestrator.
func New(host Host, runs Resolver, cfg Config, logger pslog.Logger) *Orchestrator {
	return &Orchestrator{host: host, runs: runs, cfg: cfg, logger: logger}
}

// DispatchRequest is a request to validate one repository.
type DispatchRequest struct {
	TargetRepoURL string
	CallbackURL   string
	Validators    []string
}

// DispatchResult carries the client's only durable handle on the run.
type DispatchResult struct {
	RunToken string
}

// Dispatch triggers the remote validation workflow. It generates a
// fresh run token, embeds it in the workflow inputs so the resulting
// run can be found later, and returns immediately without waiting for
// the run to appear on the host.
func (o *Orchestrator) Dispatch(ctx context.Context, req DispatchRequest) (*DispatchResult, error) {
	if !o.cfg.TokenPresent {
		return nil, ErrNotConfigured
	}
	if req.TargetRepoURL == "" {
		return nil, fmt.Errorf("%w: targetRepoUrl is required", ErrInvalidInput)
	}

	token := uuid.NewString()
	inputs := map[string]string{
		"target_repo_url": req.TargetRepoURL,
		"run_id":          token,
	}
	if req.CallbackURL != "" {
		inputs["callback_url"] = req.CallbackURL
	}
	if len(req.Validators) > 0 {
		inputs["validators"] = strings.Join(req.Validators, ",")
	}

	if err := o.host.DispatchWorkflow(ctx, o.cfg.WorkflowFile, o.cfg.Ref, inputs); err != nil {
		return nil, fmt.Errorf("dispatch validation workflow: %w", err)
	}

	o.logger.Info("validation dispatched",
		"run_token", token,
		"target", req.TargetRepoURL,
		"workflow", o.cfg.WorkflowFile)

	return &DispatchResult{RunToken: token}, nil
}

// StatusReport is the orchestrator's view of a run at one instant.
type StatusReport struct {
	RunToken    string
	RemoteRunID int64
	Status      domain.RunStatus
	Conclusion  domain.Conclusion
	RunURL      string
	StartedAt   *time.Time
	UpdatedAt   *time.Time
}

// Pending reports whether no remote run is visible for the token yet.
func (r *StatusReport) Pending() bool {
	return r.Status == domain.RunPending
}

// Status returns the present state of the run identified by token.
// A non-zero remoteID hint skips correlation. When no run is visible
// yet the report carries RunPending — a valid response, not an error:
// the dispatch may still be propagating on the host side.
func (o *Orchestrator) Status(ctx context.Context, token string, remoteID int64) (*StatusReport, error) {
	if token == "" {
		return nil, fmt.Errorf("%w: runId is required", ErrInvalidInput)
	}

	if remoteID == 0 {
		id, err := o.runs.Resolve(ctx, token)
		if errors.Is(err, correlate.ErrNoMatch) {
			return &StatusReport{RunToken: token, Status: domain.RunPending}, nil
		}
		if err != nil {
			return nil, fmt.Errorf("correlate run: %w", err)
		}
		remoteID = id
	}

	run, err := o.host.GetRun(ctx, remoteID)
	if err != nil {
		return nil, fmt.Errorf("get run %d: %w", remoteID, err)
	}

	return &StatusReport{
		RunToken:    token,
		RemoteRunID: run.ID,
		Status:      run.Status,
		Conclusion:  run.Conclusion,
		RunURL:      run.URL,
		StartedAt:   run.StartedAt,
		UpdatedAt:   run.UpdatedAt,
	}, nil
}

// CancelResult reports which run a cancellation was applied to.
type CancelResult struct {
	RunToken    string
	RemoteRunID int64
}

// Cancel asks the host to cancel the run for token. If only the token
// is known the same correlation as Status runs first; a token with no
// matching run yields ErrRunNotFound. Cancelling an already-terminal
// run surfaces the host's conflict rather than silently succeeding.
func (o *Orchestrator) Cancel(ctx context.Context, token string, remoteID int64) (*CancelResult, error) {
	if token == "" && remoteID == 0 {
		return nil, fmt.Errorf("%w: runId or githubRunId is required", ErrInvalidInput)
	}

	if remoteID == 0 {
		id, err := o.runs.Resolve(ctx, token)
		if errors.Is(err, correlate.ErrNoMatch) {
			return nil, ErrRunNotFound
		}
		if err != nil {
			return nil, fmt.Errorf("correlate run: %w", err)
		}
		remoteID = id
	}

	if err := o.host.CancelRun(ctx, remoteID); err != nil {
		return nil, fmt.Errorf("cancel run %d: %w", remoteID, err)
	}

	o.logger.Info("validation cancelled", "run_token", token, "remote_run_id", remoteID)

	return &CancelResult{RunToken: token, RemoteRunID: remoteID}, nil
}

// Callback is a push notification from the remote CI system, which may
// arrive before the client ever polls.
type Callback struct {
	RunToken    string
	RemoteRunID int64
	Status      string
	Result      string
}

// HandleCallback validates and acknowledges a host callback. The
// backend stays stateless: the only side effect is warming the
// correlation cache so later status polls skip the run-list scan.
func (o *Orchestrator) HandleCallback(ctx context.Context, cb Callback) error {
	if cb.RunToken == "" || cb.RemoteRunID == 0 {
		return fmt.Errorf("%w: runId and githubRunId are required", ErrInvalidInput)
	}

	o.runs.Record(cb.RunToken, cb.RemoteRunID)

	o.logger.Info("validation callback received",
		"run_token", cb.RunToken,
		"remote_run_id", cb.RemoteRunID,
		"status", cb.Status)

	return nil
}
