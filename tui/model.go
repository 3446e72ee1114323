package tui

import (
	"context"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/templatedoctor/validation-orchestrator/internal/domain"
)

// RunView is the TUI's snapshot of the watched validation run.
type RunView struct {
	Token       string
	RemoteRunID int64
	Status      domain.RunStatus
	Conclusion  domain.Conclusion
	URL         string
	StartedAt   *time.Time
	UpdatedAt   *time.Time
}

// FetchFunc reads the run's present state.
type FetchFunc func(ctx context.Context) (*RunView, error)

// CancelFunc asks upstream to cancel the run.
type CancelFunc func(ctx context.Context) error

// Model is the watch-view application model. It polls one run until
// it reaches a terminal state, or the user quits or cancels.
type Model struct {
	fetch  FetchFunc
	cancel CancelFunc

	run      *RunView
	fetchErr error
	attempts int
	interval time.Duration

	cancelRequested bool
	cancelErr       error

	width  int
	height int

	startedWatching time.Time
}

// ModelConfig holds initial data for the watch model.
type ModelConfig struct {
	Token    string
	Interval time.Duration
	Fetch    FetchFunc
	Cancel   CancelFunc
}

// NewModel creates a watch model for one run token.
func NewModel(cfg ModelConfig) Model {
	interval := cfg.Interval
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return Model{
		fetch:           cfg.Fetch,
		cancel:          cfg.Cancel,
		run:             &RunView{Token: cfg.Token, Status: domain.RunPending},
		interval:        interval,
		startedWatching: time.Now(),
	}
}

// Init starts the poll loop.
func (m Model) Init() tea.Cmd {
	return tea.Batch(fetchCmd(m.fetch), tickCmd(m.interval))
}

// TickMsg triggers the next status fetch.
type TickMsg time.Time

// StatusMsg carries a fresh run snapshot.
type StatusMsg struct {
	Run *RunView
	Err error
}

// CancelDoneMsg reports the upstream cancel result.
type CancelDoneMsg struct {
	Err error
}

func tickCmd(interval time.Duration) tea.Cmd {
	return tea.Tick(interval, func(t time.Time) tea.Msg {
		return TickMsg(t)
	})
}

func fetchCmd(fetch FetchFunc) tea.Cmd {
	return func() tea.Msg {
		run, err := fetch(context.Background())
		return StatusMsg{Run: run, Err: err}
	}
}

func cancelCmd(cancel CancelFunc) tea.Cmd {
	return func() tea.Msg {
		return CancelDoneMsg{Err: cancel(context.Background())}
	}
}

// Terminal reports whether the watched run has finished.
func (m Model) Terminal() bool {
	return m.run != nil && m.run.Status.Terminal()
}
