package tui

import (
	"fmt"
	"strings"

	"ddtcms/internal/run"

	"github.com/mattn/go-runewidth"
)

// View renders the run watcher screen.
func (m Model) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder

	b.WriteString(titleStyle.Render("ddtcms run watcher"))
	b.WriteString("\n\n")
	b.WriteString(m.renderStatus())
	b.WriteString("\n")

	if m.finalReport != "" {
		b.WriteString("\n")
		b.WriteString(m.finalReport)
		b.WriteString("\n")
	} else if m.snapshot.Progress != nil {
		b.WriteString(m.renderProgress())
		b.WriteString("\n")
	}

	if len(m.activityLog) > 0 {
		b.WriteString("\n")
		b.WriteString(m.renderLog())
	}

	b.WriteString("\n")
	if m.statusMessage != "" {
		b.WriteString(statusBarStyle.Render(m.statusMessage))
		b.WriteString("\n")
	}
	b.WriteString(helpStyle.Render("q: quit  c: copy report"))
	b.WriteString("\n")

	return b.String()
}

func (m Model) renderStatus() string {
	snap := m.snapshot
	switch snap.Status {
	case run.StatusQueued:
		label := fmt.Sprintf("Run %d queued", snap.RunID)
		if snap.QueuePosition > 0 {
			label += fmt.Sprintf(" (position %d)", snap.QueuePosition)
		}
		return m.spinner.View() + " " + statusQueuedStyle.Render(label)
	case run.StatusRunning:
		return m.spinner.View() + " " + statusRunningStyle.Render(fmt.Sprintf("Run %d in progress", snap.RunID))
	case run.StatusComplete:
		return statusPassStyle.Render(fmt.Sprintf("Run %d complete", snap.RunID))
	case run.StatusFailed:
		return statusFailStyle.Render(fmt.Sprintf("Run %d failed", snap.RunID))
	default:
		return m.spinner.View() + " waiting for run"
	}
}

func (m Model) renderProgress() string {
	p := m.snapshot.Progress
	line := fmt.Sprintf("Scenario %d/%d", p.CurrentScenario, p.TotalScenarios)
	if p.ScenarioName != "" {
		line += " " + p.ScenarioName
	}
	line += fmt.Sprintf("  step %d/%d", p.CurrentStep, p.TotalSteps)
	if p.StepDefinition != "" {
		line += "  " + p.StepDefinition
	}
	return progressStyle.Render(m.truncate(line))
}

// renderLog shows the tail of the activity log, truncated to the
// terminal width so long lines never wrap.
func (m Model) renderLog() string {
	const tail = 8
	start := 0
	if len(m.activityLog) > tail {
		start = len(m.activityLog) - tail
	}
	var b strings.Builder
	for _, line := range m.activityLog[start:] {
		b.WriteString(logStyle.Render(m.truncate(line)))
		b.WriteString("\n")
	}
	return b.String()
}

func (m Model) truncate(line string) string {
	maxWidth := m.width
	if maxWidth <= 0 {
		maxWidth = 80
	}
	if runewidth.StringWidth(line) > maxWidth {
		return runewidth.Truncate(line, maxWidth-1, "…")
	}
	return line
}
