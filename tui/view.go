package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/templatedoctor/validation-orchestrator/internal/domain"
)

var (
	headerStyle = lipgloss.NewStyle().
		Background(lipgloss.Color("236")).
		Foreground(lipgloss.Color("255")).
		Padding(0, 1)

	sectionStyle = lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("240")).
		Padding(0, 1)

	pendingStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("244"))

	runningStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("214"))

	successStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("42"))

	failureStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("196"))

	labelStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("244"))

	statusBarStyle = lipgloss.NewStyle().
		Background(lipgloss.Color("236")).
		Foreground(lipgloss.Color("255"))
)

// View renders the watch view.
func (m Model) View() string {
	if m.width == 0 {
		return "Loading..."
	}

	var b strings.Builder

	header := fmt.Sprintf(" Validation Run │ %s │ polls: %d │ watching for %s ",
		m.run.Token, m.attempts, time.Since(m.startedWatching).Round(time.Second))
	b.WriteString(headerStyle.Width(m.width).Render(header))
	b.WriteString("\n")

	b.WriteString(sectionStyle.Width(m.width - 2).Render(m.renderRun()))
	b.WriteString("\n")

	if m.fetchErr != nil {
		b.WriteString(failureStyle.Render("  poll error: " + m.fetchErr.Error()))
		b.WriteString("\n")
	}
	if m.cancelErr != nil {
		b.WriteString(failureStyle.Render("  cancel failed: " + m.cancelErr.Error()))
		b.WriteString("\n")
	}

	bar := " q: quit │ r: refresh │ c: cancel run "
	if m.cancelRequested {
		bar = " cancellation requested, waiting for host... "
	}
	b.WriteString(statusBarStyle.Width(m.width).Render(bar))

	return b.String()
}

func (m Model) renderRun() string {
	var b strings.Builder

	b.WriteString(labelStyle.Render("status     "))
	b.WriteString(m.statusLine())
	b.WriteString("\n")

	if m.run.RemoteRunID != 0 {
		b.WriteString(labelStyle.Render("remote run "))
		b.WriteString(fmt.Sprintf("%d", m.run.RemoteRunID))
		b.WriteString("\n")
	}
	if m.run.URL != "" {
		b.WriteString(labelStyle.Render("url        "))
		b.WriteString(m.run.URL)
		b.WriteString("\n")
	}
	if m.run.StartedAt != nil {
		b.WriteString(labelStyle.Render("started    "))
		b.WriteString(m.run.StartedAt.Format(time.RFC3339))
		b.WriteString("\n")
	}
	if m.run.UpdatedAt != nil {
		b.WriteString(labelStyle.Render("updated    "))
		b.WriteString(m.run.UpdatedAt.Format(time.RFC3339))
		b.WriteString("\n")
	}

	return strings.TrimRight(b.String(), "\n")
}

func (m Model) statusLine() string {
	switch m.run.Status {
	case domain.RunPending:
		return pendingStyle.Render("pending (run not yet visible on host)")
	case domain.RunQueued:
		return pendingStyle.Render("queued")
	case domain.RunInProgress:
		return runningStyle.Render("in progress")
	case domain.RunCompleted:
		switch m.run.Conclusion {
		case domain.ConclusionSuccess:
			return successStyle.Render("completed: success")
		case domain.ConclusionCancelled:
			return pendingStyle.Render("completed: cancelled")
		default:
			return failureStyle.Render("completed: " + string(m.run.Conclusion))
		}
	}
	return string(m.run.Status)
}
