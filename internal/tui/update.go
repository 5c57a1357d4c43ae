package tui

import (
	"fmt"
	"time"

	"ddtcms/internal/reporting"
	"ddtcms/internal/run"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
)

const statusMessageTimeout = 3 * time.Second

// Update handles all incoming messages for the run watcher.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case stateChangedMsg:
		if msg.event.Kind == reporting.ChangeRun {
			m.snapshot = m.store.RunState()
			if m.snapshot.Status.Terminal() && m.snapshot.Report != nil {
				m.finalReport = run.FormatReport(m.snapshot.Report)
			}
		}
		return m, waitForStateChange(m.subscription)

	case logEntryMsg:
		line := fmt.Sprintf("[%s] %s: %s",
			msg.entry.Timestamp.Format("15:04:05"), msg.entry.Level, msg.entry.Message)
		m.activityLog = append(m.activityLog, line)
		if len(m.activityLog) > maxActivityLogLines {
			m.activityLog = m.activityLog[len(m.activityLog)-maxActivityLogLines:]
		}
		return m, waitForLogEntry(m.logCh)

	case pollDoneMsg:
		if msg.done {
			return m, nil
		}
		return m, tea.Tick(msg.wait, func(time.Time) tea.Msg {
			return pollTickMsg{}
		})

	case pollTickMsg:
		return m, pollStepCmd(m.orchestrator)

	case statusMessageTimeoutMsg:
		m.statusMessage = ""
		return m, nil

	case channelClosedMsg:
		return m, nil
	}

	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		m.quitting = true
		// Capture the snapshot before Dismiss resets the orchestrator.
		m.final = m.orchestrator.Snapshot()
		m.orchestrator.Dismiss()
		m.store.Unsubscribe(m.subscription)
		return m, tea.Quit

	case key.Matches(msg, m.keys.Copy):
		if m.finalReport == "" {
			return m, m.setStatusMessage("No report to copy yet")
		}
		if err := clipboard.WriteAll(m.finalReport); err != nil {
			return m, m.setStatusMessage("Copy failed: " + err.Error())
		}
		return m, m.setStatusMessage("Report copied to clipboard")
	}
	return m, nil
}

func (m *Model) setStatusMessage(text string) tea.Cmd {
	m.statusMessage = text
	return tea.Tick(statusMessageTimeout, func(time.Time) tea.Msg {
		return statusMessageTimeoutMsg{}
	})
}
