package tui

import (
	"time"

	"ddtcms/internal/reporting"
	"ddtcms/pkg/logging"
)

// stateChangedMsg carries a state store event into the Update loop.
type stateChangedMsg struct {
	event reporting.ChangeEvent
}

// logEntryMsg carries a log line from the watch channel.
type logEntryMsg struct {
	entry logging.LogEntry
}

// pollTickMsg fires when the orchestrator should take its next poll step.
type pollTickMsg struct{}

// pollDoneMsg reports the outcome of a single poll step.
type pollDoneMsg struct {
	done bool
	wait time.Duration
}

// channelClosedMsg signals that an input channel was closed.
type channelClosedMsg struct{ name string }

// statusMessageTimeoutMsg clears a transient status bar message.
type statusMessageTimeoutMsg struct{}
