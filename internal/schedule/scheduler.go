// Package schedule runs recurring batch scans on cron expressions and
// reloads scan definitions when the config file changes on disk.
package schedule

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"pkt.systems/pslog"
)

// ScanConfig is one scheduled scan definition.
type ScanConfig struct {
	Name  string   `toml:"name"`
	Cron  string   `toml:"cron"`
	Repos []string `toml:"repos"`
	Mode  string   `toml:"mode"`
}

// Validate checks the scan definition.
func (c *ScanConfig) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("scan name is required")
	}
	if c.Cron == "" {
		return fmt.Errorf("scan %s: cron expression is required", c.Name)
	}
	if _, err := ParseCron(c.Cron); err != nil {
		return fmt.Errorf("scan %s: invalid cron expression: %w", c.Name, err)
	}
	if len(c.Repos) == 0 {
		return fmt.Errorf("scan %s: at least one repo is required", c.Name)
	}
	return nil
}

// ParseCron parses a five-field cron expression.
func ParseCron(expr string) (cron.Schedule, error) {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	return parser.Parse(expr)
}

// RunFunc executes one scheduled scan.
type RunFunc func(ScanConfig)

// Scheduler fires scheduled scans when their cron expressions come
// due. Definitions can be swapped at runtime via Reload.
type Scheduler struct {
	parser  cron.Parser
	logger  pslog.Logger
	mu      sync.RWMutex
	configs map[string]ScanConfig
	lastRun map[string]time.Time
	running map[string]bool
}

// NewScheduler creates a Scheduler with the given definitions.
func NewScheduler(configs []ScanConfig, logger pslog.Logger) (*Scheduler, error) {
	s := &Scheduler{
		parser:  cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow),
		logger:  logger,
		configs: make(map[string]ScanConfig),
		lastRun: make(map[string]time.Time),
		running: make(map[string]bool),
	}
	for _, cfg := range configs {
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
		s.configs[cfg.Name] = cfg
	}
	return s, nil
}

// Reload replaces the scan definitions. Invalid entries reject the
// whole reload so a half-edited config never takes effect.
func (s *Scheduler) Reload(configs []ScanConfig) error {
	next := make(map[string]ScanConfig, len(configs))
	for _, cfg := range configs {
		if err := cfg.Validate(); err != nil {
			return err
		}
		next[cfg.Name] = cfg
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.configs = next
	return nil
}

// NextRun returns when the named scan fires next.
func (s *Scheduler) NextRun(name string) time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cfg, ok := s.configs[name]
	if !ok {
		return time.Time{}
	}
	sched, err := s.parser.Parse(cfg.Cron)
	if err != nil {
		return time.Time{}
	}
	return sched.Next(time.Now())
}

// ShouldRun reports whether the named scan is due and not already
// running.
func (s *Scheduler) ShouldRun(name string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cfg, ok := s.configs[name]
	if !ok || s.running[name] {
		return false
	}
	sched, err := s.parser.Parse(cfg.Cron)
	if err != nil {
		return false
	}

	last := s.lastRun[name]
	if last.IsZero() {
		last = time.Now().Add(-24 * time.Hour)
	}
	return time.Now().After(sched.Next(last))
}

// Names returns all configured scan names.
func (s *Scheduler) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.configs))
	for name := range s.configs {
		names = append(names, name)
	}
	return names
}

func (s *Scheduler) markRunning(name string) (ScanConfig, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cfg, ok := s.configs[name]
	if !ok {
		return ScanConfig{}, false
	}
	s.running[name] = true
	return cfg, true
}

func (s *Scheduler) markComplete(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running[name] = false
	s.lastRun[name] = time.Now()
}

// Start ticks once a minute and fires due scans until ctx is done.
func (s *Scheduler) Start(ctx context.Context, run RunFunc) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, name := range s.Names() {
				if !s.ShouldRun(name) {
					continue
				}
				cfg, ok := s.markRunning(name)
				if !ok {
					continue
				}
				go func(c ScanConfig) {
					defer s.markComplete(c.Name)
					s.logger.Info("scheduled scan starting", "scan", c.Name, "repos", len(c.Repos))
					run(c)
				}(cfg)
			}
		}
	}
}
