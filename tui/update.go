package tui

import (
	tea "github.com/charmbracelet/bubbletea"
)

// Update handles messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "r":
			return m, fetchCmd(m.fetch)
		case "c":
			if m.cancel != nil && !m.cancelRequested && !m.Terminal() {
				m.cancelRequested = true
				return m, cancelCmd(m.cancel)
			}
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case TickMsg:
		if m.Terminal() {
			return m, nil
		}
		return m, tea.Batch(fetchCmd(m.fetch), tickCmd(m.interval))

	case StatusMsg:
		m.attempts++
		if msg.Err != nil {
			m.fetchErr = msg.Err
			return m, nil
		}
		m.fetchErr = nil
		m.run = msg.Run
		return m, nil

	case CancelDoneMsg:
		m.cancelErr = msg.Err
		if msg.Err != nil {
			m.cancelRequested = false
			return m, nil
		}
		// One more read to reflect the cancellation.
		return m, fetchCmd(m.fetch)
	}

	return m, nil
}
