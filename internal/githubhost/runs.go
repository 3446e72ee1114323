package githubhost

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/templatedoctor/validation-orchestrator/internal/domain"
)

// RunScope selects which runs to list. With a WorkflowFile it is the
// narrow workflow+branch query; without one it is the broad
// repo+branch query.
type RunScope struct {
	WorkflowFile string
	Branch       string
}

// Narrow reports whether the scope is restricted to one workflow.
func (s RunScope) Narrow() bool {
	return s.WorkflowFile != ""
}

type hostRun struct {
	ID           int64  `json:"id"`
	Name         string `json:"name"`
	DisplayTitle string `json:"display_title"`
	HeadCommit   struct {
		Message string `json:"message"`
	} `json:"head_commit"`
	Status       string     `json:"status"`
	Conclusion   string     `json:"conclusion"`
	HTMLURL      string     `json:"html_url"`
	RunStartedAt *time.Time `json:"run_started_at"`
	UpdatedAt    *time.Time `json:"updated_at"`
}

func (h *hostRun) toDomain() domain.WorkflowRun {
	title := h.DisplayTitle
	if title == "" {
		title = h.Name
	}
	return domain.WorkflowRun{
		ID:            h.ID,
		Title:         title,
		CommitMessage: h.HeadCommit.Message,
		Status:        domain.ParseRunStatus(h.Status),
		Conclusion:    domain.ParseConclusion(h.Conclusion),
		URL:           h.HTMLURL,
		StartedAt:     h.RunStartedAt,
		UpdatedAt:     h.UpdatedAt,
	}
}

// DispatchWorkflow triggers a workflow_dispatch event. The host only
// acknowledges acceptance; it does not return the run id. Callers
// embed a correlation token in the inputs and find the run later.
func (c *Client) DispatchWorkflow(ctx context.Context, workflowFile, ref string, inputs map[string]string) error {
	path := fmt.Sprintf("/repos/%s/actions/workflows/%s/dispatches", c.repo, workflowFile)
	body := map[string]interface{}{
		"ref":    ref,
		"inputs": inputs,
	}
	return c.post(ctx, "dispatch workflow", path, body, nil)
}

// ListRuns returns recent run summaries for the scope, most recent
// first as the host orders them. Each call is a fresh query.
func (c *Client) ListRuns(ctx context.Context, scope RunScope) ([]domain.WorkflowRun, error) {
	var path string
	if scope.Narrow() {
		path = fmt.Sprintf("/repos/%s/actions/workflows/%s/runs", c.repo, scope.WorkflowFile)
	} else {
		path = fmt.Sprintf("/repos/%s/actions/runs", c.repo)
	}

	q := url.Values{}
	q.Set("per_page", "30")
	if scope.Branch != "" {
		q.Set("branch", scope.Branch)
	}
	path += "?" + q.Encode()

	var payload struct {
		WorkflowRuns []hostRun `json:"workflow_runs"`
	}
	if err := c.get(ctx, "list runs", path, &payload); err != nil {
		return nil, err
	}

	runs := make([]domain.WorkflowRun, len(payload.WorkflowRuns))
	for i := range payload.WorkflowRuns {
		runs[i] = payload.WorkflowRuns[i].toDomain()
	}
	return runs, nil
}

// GetRun fetches a single run snapshot. Fails with ErrNotFound if the
// id no longer resolves on the host.
func (c *Client) GetRun(ctx context.Context, runID int64) (*domain.WorkflowRun, error) {
	path := fmt.Sprintf("/repos/%s/actions/runs/%d", c.repo, runID)

	var payload hostRun
	if err := c.get(ctx, "get run", path, &payload); err != nil {
		return nil, err
	}

	run := payload.toDomain()
	return &run, nil
}

// CancelRun asks the host to cancel a run. The host answers 409 when
// the run already finished; APIError folds that into ErrConflict.
func (c *Client) CancelRun(ctx context.Context, runID int64) error {
	path := fmt.Sprintf("/repos/%s/actions/runs/%d/cancel", c.repo, runID)
	return c.post(ctx, "cancel run", path, nil, nil)
}
