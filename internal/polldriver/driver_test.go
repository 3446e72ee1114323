package polldriver

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestTerminalMatching(t *testing.T) {
	tests := []struct {
		report   Report
		terminal bool
	}{
		{Report{Status: "completed"}, true},
		{Report{Status: "Completed"}, true},
		{Report{State: "SUCCEEDED"}, true},
		{Report{Status: "failed"}, true},
		{Report{State: "error"}, true},
		{Report{Status: "cancelled"}, true},
		{Report{Status: "pending"}, false},
		{Report{Status: "in_progress"}, false},
		{Report{Status: "queued"}, false},
		{Report{}, false},
	}

	for _, tt := range tests {
		if got := tt.report.Terminal(); got != tt.terminal {
			t.Errorf("Terminal(%+v) = %v, want %v", tt.report, got, tt.terminal)
		}
	}
}

func TestRunStopsOnTerminalState(t *testing.T) {
	var calls atomic.Int32
	status := func(ctx context.Context) (Report, error) {
		if calls.Add(1) < 3 {
			return Report{Status: "in_progress"}, nil
		}
		return Report{Status: "completed", Conclusion: "success"}, nil
	}

	d := New(Config{Interval: time.Millisecond, MaxAttempts: 10}, status, nil)
	res, err := d.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if res.Outcome != OutcomeCompleted {
		t.Errorf("Outcome = %s, want completed", res.Outcome)
	}
	if res.Attempts != 3 {
		t.Errorf("Attempts = %d, want 3", res.Attempts)
	}
	if res.Last.Conclusion != "success" {
		t.Errorf("Conclusion = %q, want success", res.Last.Conclusion)
	}
}

func TestRunTimeoutIsNotAFailure(t *testing.T) {
	status := func(ctx context.Context) (Report, error) {
		return Report{Status: "pending"}, nil
	}

	d := New(Config{Interval: time.Millisecond, MaxAttempts: 4}, status, nil)
	res, err := d.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v, timeout must not be an error", err)
	}
	if res.Outcome != OutcomeTimedOut {
		t.Errorf("Outcome = %s, want timeout", res.Outcome)
	}
	if res.Attempts != 4 {
		t.Errorf("Attempts = %d, want full budget", res.Attempts)
	}
}

func TestRunCanContinueAfterTimeout(t *testing.T) {
	var calls atomic.Int32
	status := func(ctx context.Context) (Report, error) {
		if calls.Add(1) < 4 {
			return Report{Status: "pending"}, nil
		}
		return Report{Status: "completed"}, nil
	}

	d := New(Config{Interval: time.Millisecond, MaxAttempts: 2}, status, nil)
	res, _ := d.Run(context.Background())
	if res.Outcome != OutcomeTimedOut {
		t.Fatalf("first Run() outcome = %s, want timeout", res.Outcome)
	}

	// The manual "continue polling" action is just running again.
	res, err := d.Run(context.Background())
	if err != nil {
		t.Fatalf("second Run() error = %v", err)
	}
	if res.Outcome != OutcomeCompleted {
		t.Errorf("second Run() outcome = %s, want completed", res.Outcome)
	}
}

func TestRequestCancelIssuesUpstreamCancel(t *testing.T) {
	var cancelCalls atomic.Int32
	var polls atomic.Int32

	status := func(ctx context.Context) (Report, error) {
		if cancelCalls.Load() > 0 {
			return Report{Status: "cancelled"}, nil
		}
		polls.Add(1)
		return Report{Status: "in_progress"}, nil
	}
	cancel := func(ctx context.Context) error {
		cancelCalls.Add(1)
		return nil
	}

	d := New(Config{Interval: 50 * time.Millisecond, MaxAttempts: 100}, status, cancel)

	done := make(chan Result, 1)
	go func() {
		res, _ := d.Run(context.Background())
		done <- res
	}()

	// Let at least one poll land, then cancel.
	for polls.Load() == 0 {
		time.Sleep(time.Millisecond)
	}
	d.RequestCancel()

	select {
	case res := <-done:
		if res.Outcome != OutcomeCancelled {
			t.Errorf("Outcome = %s, want cancelled", res.Outcome)
		}
		if cancelCalls.Load() != 1 {
			t.Errorf("upstream cancel calls = %d, want 1", cancelCalls.Load())
		}
		if res.Last.Status != "cancelled" {
			t.Errorf("final report status = %q, want post-cancel read", res.Last.Status)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run() did not return promptly after cancel")
	}
}

func TestRunSurfacesTransportErrors(t *testing.T) {
	wantErr := errors.New("connection refused")
	status := func(ctx context.Context) (Report, error) {
		return Report{}, wantErr
	}

	d := New(Config{Interval: time.Millisecond, MaxAttempts: 5}, status, nil)
	_, err := d.Run(context.Background())
	if !errors.Is(err, wantErr) {
		t.Errorf("Run() error = %v, want transport error surfaced", err)
	}
}
