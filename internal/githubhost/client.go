// Package githubhost wraps the GitHub REST API calls the orchestrator
// depends on: workflow dispatch, run listing and cancellation, and the
// repo/issue/PR helpers outside the polling hot path. Host status and
// conclusion strings are translated into closed domain variants here
// so the rest of the system never pattern-matches on raw host text.
package githubhost

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	defaultBaseURL = "https://api.github.com"
	callTimeout    = 15 * time.Second
	readAttempts   = 3
	retryBackoff   = 250 * time.Millisecond
)

// Config holds client settings.
type Config struct {
	// Token is the service-to-service credential sent as a bearer token.
	Token string
	// Repo is the "owner/repo" that hosts the validation workflow.
	Repo string
	// BaseURL overrides the GitHub API endpoint, mainly for tests.
	BaseURL string
}

// Client is a GitHub REST API client with bounded retry for
// idempotent reads. Writes are never retried automatically to avoid
// duplicate side effects.
type Client struct {
	baseURL string
	token   string
	repo    string
	http    *http.Client
}

// New creates a Client.
func New(cfg Config) *Client {
	base := cfg.BaseURL
	if base == "" {
		base = defaultBaseURL
	}
	return &Client{
		baseURL: base,
		token:   cfg.Token,
		repo:    cfg.Repo,
		http:    &http.Client{Timeout: callTimeout},
	}
}

// Repo returns the workflow host repository ("owner/repo").
func (c *Client) Repo() string {
	return c.repo
}

// get performs an idempotent read with bounded retry on transport
// errors and 5xx/429 responses.
func (c *Client) get(ctx context.Context, op, path string, out interface{}) error {
	var lastErr error
	for attempt := 0; attempt < readAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(retryBackoff << (attempt - 1)):
			}
		}

		err := c.do(ctx, op, http.MethodGet, path, nil, out)
		if err == nil {
			return nil
		}
		lastErr = err

		if !retryable(err) {
			return err
		}
	}
	return lastErr
}

// post performs a write. No retry: a duplicate dispatch or cancel is a
// duplicate side effect.
func (c *Client) post(ctx context.Context, op, path string, body, out interface{}) error {
	return c.do(ctx, op, http.MethodPost, path, body, out)
}

func (c *Client) do(ctx context.Context, op, method, path string, body, out interface{}) error {
	var payload io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%s: encode request: %w", op, err)
		}
		payload = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, payload)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// Cap the body: it is for diagnostics, not for parsing.
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &APIError{Op: op, StatusCode: resp.StatusCode, Body: string(raw)}
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("%s: decode response: %w", op, err)
		}
	}
	return nil
}

func retryable(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == 429 || apiErr.StatusCode >= 500
	}
	// Transport-level failure: worth another attempt.
	return true
}
