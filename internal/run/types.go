package run

import (
	"errors"
	"time"
)

// Status is the lifecycle state of one test-run submission.
type Status string

const (
	// StatusIdle means no run has been submitted, or the last report was
	// dismissed.
	StatusIdle Status = "idle"
	// StatusQueued means the executor accepted the run but has not started
	// it; the executor queues under concurrent load.
	StatusQueued Status = "queued"
	// StatusRunning means scenarios are executing.
	StatusRunning Status = "running"
	// StatusComplete means the run finished and results are available.
	StatusComplete Status = "complete"
	// StatusFailed means the run failed, the submission failed, or polling
	// gave up without a terminal answer.
	StatusFailed Status = "failed"
)

// Terminal reports whether no further polling happens in this status.
func (s Status) Terminal() bool {
	return s == StatusComplete || s == StatusFailed
}

// Reference cadence of the poll loop. A poll failure (as opposed to a
// failure status) waits the extra backoff on top of the interval.
const (
	DefaultPollInterval   = 3 * time.Second
	DefaultFailureBackoff = 2 * time.Second
	DefaultMaxAttempts    = 120
)

// UnknownBucket is the case/scenario grouping for result steps the executor
// reported without an association.
const UnknownBucket = "Unknown"

// ErrRunActive is returned by Submit while a previous run has not been
// dismissed.
var ErrRunActive = errors.New("a test run is already active")

// Progress is the point-in-time execution position of a running test run.
// A newer snapshot replaces an older one wholesale; when the executor sends
// none, the presentation layer shows a generic running placeholder instead
// of stale values.
type Progress struct {
	CurrentScenario int    `json:"currentScenario"`
	TotalScenarios  int    `json:"totalScenarios"`
	ScenarioName    string `json:"scenarioName,omitempty"`
	CurrentStep     int    `json:"currentStep"`
	TotalSteps      int    `json:"totalSteps"`
	StepDefinition  string `json:"stepDefinition,omitempty"`
}

// StepResult is one executed step in the final report.
type StepResult struct {
	Definition string        `json:"definition"`
	Passed     bool          `json:"passed"`
	Error      string        `json:"error,omitempty"`
	Duration   time.Duration `json:"duration,omitempty"`
}

// ScenarioResult groups the steps of one scenario.
type ScenarioResult struct {
	Name  string       `json:"name"`
	Steps []StepResult `json:"steps"`
}

// CaseResult groups the scenarios of one test case.
type CaseResult struct {
	Name      string           `json:"name"`
	Scenarios []ScenarioResult `json:"scenarios"`
}

// Report is the aggregated outcome of a terminal run. The pass/fail totals
// and duration come from the executor's payload, which is authoritative;
// they are never recomputed from the step breakdown.
//
// When Failure is set and Cases is empty the run produced no breakdown: the
// presentation layer shows a single explanatory error card instead.
type Report struct {
	Cases        []CaseResult  `json:"cases,omitempty"`
	PassedSteps  int           `json:"passedSteps"`
	FailedSteps  int           `json:"failedSteps"`
	Duration     time.Duration `json:"duration"`
	Failure      string        `json:"failure,omitempty"`
	Inconclusive bool          `json:"inconclusive,omitempty"`
}

// Snapshot is the read-only projection of the orchestrator state handed to
// the presentation layer. Progress is non-nil only while the run is queued
// or running; Report is non-nil exactly when the status is terminal.
type Snapshot struct {
	RunID         int64     `json:"runId,omitempty"`
	Status        Status    `json:"status"`
	QueuePosition int       `json:"queuePosition,omitempty"`
	Progress      *Progress `json:"progress,omitempty"`
	Report        *Report   `json:"report,omitempty"`
	Attempts      int       `json:"attempts"`
}
