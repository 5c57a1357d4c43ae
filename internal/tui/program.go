package tui

import (
	"fmt"

	"ddtcms/internal/reporting"
	"ddtcms/internal/run"
	"ddtcms/pkg/logging"

	tea "github.com/charmbracelet/bubbletea"
)

// Watch runs the interactive watcher until the user quits. It returns the
// run snapshot captured at quit time, before the orchestrator was dismissed,
// so callers can report the outcome after the screen is torn down.
func Watch(orch *run.Orchestrator, store *reporting.Store, logCh <-chan logging.LogEntry) (run.Snapshot, error) {
	model := NewModel(orch, store, logCh)
	program := tea.NewProgram(model, tea.WithAltScreen())

	defer logging.CloseWatchChannel()

	finalModel, err := program.Run()
	if err != nil {
		return orch.Snapshot(), fmt.Errorf("watcher terminated: %w", err)
	}
	if m, ok := finalModel.(Model); ok {
		return m.final, nil
	}
	return orch.Snapshot(), nil
}
