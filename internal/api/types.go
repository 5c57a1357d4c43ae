package api

// StepRecord is the wire representation of a single scenario step. The
// server assigns Id on first sync; a zero Id marks a row the server has not
// seen yet.
type StepRecord struct {
	ID              int64  `json:"id,omitempty"`
	OrderIndex      int    `json:"orderIndex"`
	Definition      string `json:"definition"`
	ElementRef      string `json:"elementRef,omitempty"`
	ActionKind      string `json:"actionKind,omitempty"`
	ActionResult    string `json:"actionResult,omitempty"`
	Required        bool   `json:"required"`
	ExpectedResults string `json:"expectedResults,omitempty"`

	// Optional references to reusable configuration entries.
	SelectOptionSetID int64 `json:"selectOptionSetId,omitempty"`
	MatchOptionSetID  int64 `json:"matchOptionSetId,omitempty"`
}

// SyncRequest is the full-collection upsert payload for one scenario.
type SyncRequest struct {
	ScenarioID int64        `json:"scenarioId"`
	Steps      []StepRecord `json:"steps"`
}

// SubmitRequest asks the execution service to run all scenarios of a test
// set against an environment.
type SubmitRequest struct {
	TestSetID   int64  `json:"testSetId"`
	ReleaseID   int64  `json:"releaseId"`
	Environment string `json:"environment"`
}

// SubmitResponse acknowledges a run submission. QueuePosition is only
// meaningful when Status is "queued".
type SubmitResponse struct {
	RunID         int64  `json:"runId"`
	Status        string `json:"status"`
	QueuePosition int    `json:"queuePosition,omitempty"`
}

// RunProgress describes where a running execution currently is. It is a
// point-in-time snapshot; a later snapshot replaces an earlier one wholesale.
type RunProgress struct {
	CurrentScenario int    `json:"currentScenario"`
	TotalScenarios  int    `json:"totalScenarios"`
	ScenarioName    string `json:"scenarioName,omitempty"`
	CurrentStep     int    `json:"currentStep"`
	TotalSteps      int    `json:"totalSteps"`
	StepDefinition  string `json:"stepDefinition,omitempty"`
}

// StepOutcome is the per-step result reported by the execution service once
// a run reaches a terminal status.
type StepOutcome struct {
	CaseName     string `json:"caseName,omitempty"`
	ScenarioName string `json:"scenarioName,omitempty"`
	Definition   string `json:"definition"`
	Passed       bool   `json:"passed"`
	Error        string `json:"error,omitempty"`
	DurationMS   int64  `json:"durationMs,omitempty"`
}

// RunStatusResponse is the polled status of a submitted run. Progress is set
// only while the run is queued or running; step outcomes and the aggregate
// counts are set only on a terminal status. The server is authoritative for
// PassedSteps/FailedSteps and DurationMS; clients must not recompute them.
type RunStatusResponse struct {
	Status        string        `json:"status"`
	QueuePosition int           `json:"queuePosition,omitempty"`
	Progress      *RunProgress  `json:"progress,omitempty"`
	PassedSteps   int           `json:"passedSteps,omitempty"`
	FailedSteps   int           `json:"failedSteps,omitempty"`
	DurationMS    int64         `json:"durationMs,omitempty"`
	Steps         []StepOutcome `json:"steps,omitempty"`
	Error         string        `json:"error,omitempty"`
}
