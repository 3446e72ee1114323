package githubhost

import (
	"context"
	"fmt"
)

// Fork is the host's record of a newly created fork.
type Fork struct {
	FullName string `json:"full_name"`
	HTMLURL  string `json:"html_url"`
}

// Issue is the host's record of a created issue.
type Issue struct {
	Number  int    `json:"number"`
	HTMLURL string `json:"html_url"`
}

// PullRequest is the host's record of a created pull request.
type PullRequest struct {
	Number  int    `json:"number"`
	HTMLURL string `json:"html_url"`
}

// ForkRepository forks owner/repo into the authenticated account.
// Fork creation is asynchronous on the host side; the returned record
// may describe a repository that is still being populated.
func (c *Client) ForkRepository(ctx context.Context, repo string) (*Fork, error) {
	var fork Fork
	path := fmt.Sprintf("/repos/%s/forks", repo)
	if err := c.post(ctx, "fork repository", path, nil, &fork); err != nil {
		return nil, err
	}
	return &fork, nil
}

// CreateIssue opens an issue on repo.
func (c *Client) CreateIssue(ctx context.Context, repo, title, body string, labels []string) (*Issue, error) {
	payload := map[string]interface{}{
		"title": title,
		"body":  body,
	}
	if len(labels) > 0 {
		payload["labels"] = labels
	}

	var issue Issue
	path := fmt.Sprintf("/repos/%s/issues", repo)
	if err := c.post(ctx, "create issue", path, payload, &issue); err != nil {
		return nil, err
	}
	return &issue, nil
}

// CreatePullRequest opens a pull request on repo from head into base.
func (c *Client) CreatePullRequest(ctx context.Context, repo, title, head, base, body string) (*PullRequest, error) {
	payload := map[string]interface{}{
		"title": title,
		"head":  head,
		"base":  base,
		"body":  body,
	}

	var pr PullRequest
	path := fmt.Sprintf("/repos/%s/pulls", repo)
	if err := c.post(ctx, "create pull request", path, payload, &pr); err != nil {
		return nil, err
	}
	return &pr, nil
}
