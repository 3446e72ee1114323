package schedule

import (
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"pkt.systems/pslog"
)

func testLogger() pslog.Logger {
	return pslog.NewWithOptions(io.Discard, pslog.Options{Mode: pslog.ModeStructured, NoColor: true})
}

func TestScanConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     ScanConfig
		wantErr bool
	}{
		{"valid", ScanConfig{Name: "nightly", Cron: "0 2 * * *", Repos: []string{"a/b"}}, false},
		{"missing name", ScanConfig{Cron: "0 2 * * *", Repos: []string{"a/b"}}, true},
		{"missing cron", ScanConfig{Name: "x", Repos: []string{"a/b"}}, true},
		{"bad cron", ScanConfig{Name: "x", Cron: "not a cron", Repos: []string{"a/b"}}, true},
		{"no repos", ScanConfig{Name: "x", Cron: "0 2 * * *"}, true},
	}

	for _, tt := range tests {
		err := tt.cfg.Validate()
		if (err != nil) != tt.wantErr {
			t.Errorf("%s: Validate() error = %v, wantErr %v", tt.name, err, tt.wantErr)
		}
	}
}

func TestSchedulerShouldRun(t *testing.T) {
	s, err := NewScheduler([]ScanConfig{
		{Name: "everyminute", Cron: "* * * * *", Repos: []string{"a/b"}},
	}, testLogger())
	if err != nil {
		t.Fatalf("NewScheduler() error = %v", err)
	}

	// Never ran: last run defaults to 24h ago, so any schedule is due.
	if !s.ShouldRun("everyminute") {
		t.Error("ShouldRun() = false for a never-run scan")
	}

	cfg, ok := s.markRunning("everyminute")
	if !ok || cfg.Name != "everyminute" {
		t.Fatalf("markRunning() = %+v, %v", cfg, ok)
	}
	if s.ShouldRun("everyminute") {
		t.Error("ShouldRun() = true while the scan is running")
	}

	s.markComplete("everyminute")
	if s.ShouldRun("everyminute") {
		t.Error("ShouldRun() = true immediately after completion")
	}
}

func TestSchedulerReload(t *testing.T) {
	s, err := NewScheduler(nil, testLogger())
	if err != nil {
		t.Fatal(err)
	}

	if err := s.Reload([]ScanConfig{
		{Name: "weekly", Cron: "0 3 * * 1", Repos: []string{"a/b"}},
	}); err != nil {
		t.Fatalf("Reload() error = %v", err)
	}
	if got := s.Names(); len(got) != 1 || got[0] != "weekly" {
		t.Errorf("Names() = %v, want [weekly]", got)
	}

	// Invalid entries must reject the whole reload.
	if err := s.Reload([]ScanConfig{{Name: "broken"}}); err == nil {
		t.Error("Reload() accepted an invalid definition")
	}
	if got := s.Names(); len(got) != 1 || got[0] != "weekly" {
		t.Errorf("Names() after failed reload = %v, want [weekly]", got)
	}
}

func TestSchedulerNextRun(t *testing.T) {
	s, err := NewScheduler([]ScanConfig{
		{Name: "nightly", Cron: "0 2 * * *", Repos: []string{"a/b"}},
	}, testLogger())
	if err != nil {
		t.Fatal(err)
	}

	next := s.NextRun("nightly")
	if next.IsZero() || !next.After(time.Now()) {
		t.Errorf("NextRun() = %v, want a future time", next)
	}
	if !s.NextRun("unknown").IsZero() {
		t.Error("NextRun() for unknown scan should be zero")
	}
}

func TestConfigWatcherFiresOnChange(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	if err := os.WriteFile(path, []byte("# v1"), 0644); err != nil {
		t.Fatal(err)
	}

	fired := make(chan struct{}, 1)
	w, err := WatchConfig(path, func() {
		select {
		case fired <- struct{}{}:
		default:
		}
	})
	if err != nil {
		t.Fatalf("WatchConfig() error = %v", err)
	}
	defer w.Stop()
	w.SetDebounce(10 * time.Millisecond)
	w.Start(t.Context())

	if err := os.WriteFile(path, []byte("# v2"), 0644); err != nil {
		t.Fatal(err)
	}

	select {
	case <-fired:
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not fire after config change")
	}
}

func TestConfigWatcherIgnoresSiblingFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	if err := os.WriteFile(path, []byte("# v1"), 0644); err != nil {
		t.Fatal(err)
	}

	fired := make(chan struct{}, 1)
	w, err := WatchConfig(path, func() { fired <- struct{}{} })
	if err != nil {
		t.Fatal(err)
	}
	defer w.Stop()
	w.SetDebounce(10 * time.Millisecond)
	w.Start(t.Context())

	if err := os.WriteFile(filepath.Join(dir, "other.txt"), []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}

	select {
	case <-fired:
		t.Fatal("watcher fired for an unrelated file")
	case <-time.After(100 * time.Millisecond):
	}
}
