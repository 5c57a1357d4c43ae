package tui

import (
	"context"

	"ddtcms/internal/reporting"
	"ddtcms/internal/run"
	"ddtcms/pkg/logging"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

const maxActivityLogLines = 200

// Model is the bubbletea model for the run watcher. It drives the
// orchestrator's poll loop and renders state store updates as they arrive.
type Model struct {
	orchestrator *run.Orchestrator
	store        *reporting.Store
	subscription *reporting.Subscription
	logCh        <-chan logging.LogEntry

	snapshot    run.Snapshot
	activityLog []string
	finalReport string

	// final is the snapshot captured at quit, before the orchestrator is
	// dismissed back to idle. Watch hands it to the caller so the report
	// survives screen teardown.
	final run.Snapshot

	spinner       spinner.Model
	keys          KeyMap
	width         int
	height        int
	statusMessage string
	quitting      bool
}

// NewModel builds a run watcher model. The caller must already have
// initialized watch-mode logging and submitted the run; the watcher only
// polls and renders.
func NewModel(orch *run.Orchestrator, store *reporting.Store, logCh <-chan logging.LogEntry) Model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("63"))

	return Model{
		orchestrator: orch,
		store:        store,
		subscription: store.Subscribe(),
		logCh:        logCh,
		snapshot:     orch.Snapshot(),
		final:        orch.Snapshot(),
		spinner:      sp,
		keys:         DefaultKeyMap(),
	}
}

// Init kicks off the spinner, the channel waiters and the first poll step.
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		m.spinner.Tick,
		waitForStateChange(m.subscription),
		waitForLogEntry(m.logCh),
		pollStepCmd(m.orchestrator),
	)
}

// pollStepCmd runs a single poll step against the remote service.
func pollStepCmd(orch *run.Orchestrator) tea.Cmd {
	return func() tea.Msg {
		done, wait := orch.Poll(context.Background())
		return pollDoneMsg{done: done, wait: wait}
	}
}

// waitForStateChange returns a command that blocks on the state store
// subscription channel and delivers the next event.
func waitForStateChange(sub *reporting.Subscription) tea.Cmd {
	return func() tea.Msg {
		event, ok := <-sub.Channel
		if !ok {
			return channelClosedMsg{name: "state"}
		}
		return stateChangedMsg{event: event}
	}
}

// waitForLogEntry returns a command that blocks on the logging watch channel.
func waitForLogEntry(ch <-chan logging.LogEntry) tea.Cmd {
	return func() tea.Msg {
		entry, ok := <-ch
		if !ok {
			return channelClosedMsg{name: "log"}
		}
		return logEntryMsg{entry: entry}
	}
}
