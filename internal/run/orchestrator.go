package run

import (
	"context"
	"sync"
	"time"

	"ddtcms/internal/api"
	"ddtcms/pkg/logging"
)

const subsystem = "RunOrchestrator"

// Orchestrator drives one test-run submission from enqueue through terminal
// status. It owns the run state exclusively; consumers read it through
// Snapshot and the optional change observer.
//
// Polling is expressed as a single Poll step function so any scheduler can
// drive it; RunUntilDone is the built-in timer loop.
type Orchestrator struct {
	mu sync.Mutex

	exec api.ExecutionAPI

	status        Status
	runID         int64
	queuePosition int
	progress      *Progress
	report        *Report
	attempts      int

	// interested is cleared when the report UI is dismissed. Polling checks
	// it before every attempt; the remote run itself is fire-and-forget and
	// is never cancelled.
	interested bool

	// submitting is held while a Submit call is suspended at the remote
	// service, so a concurrent Submit cannot slip past the idle check and
	// fire a second run.
	submitting bool

	pollInterval   time.Duration
	failureBackoff time.Duration
	maxAttempts    int

	emitMu   sync.Mutex
	onChange func(Snapshot)
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithPollInterval overrides the fixed poll interval.
func WithPollInterval(d time.Duration) Option {
	return func(o *Orchestrator) { o.pollInterval = d }
}

// WithFailureBackoff overrides the extra wait after a failed poll call.
func WithFailureBackoff(d time.Duration) Option {
	return func(o *Orchestrator) { o.failureBackoff = d }
}

// WithMaxAttempts overrides the poll attempt cap.
func WithMaxAttempts(n int) Option {
	return func(o *Orchestrator) { o.maxAttempts = n }
}

// WithChangeFunc installs an observer invoked with a fresh snapshot after
// every state transition and progress update. The observer must not call
// back into the orchestrator.
func WithChangeFunc(fn func(Snapshot)) Option {
	return func(o *Orchestrator) { o.onChange = fn }
}

// New creates an idle orchestrator bound to an execution service.
func New(exec api.ExecutionAPI, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		exec:           exec,
		status:         StatusIdle,
		pollInterval:   DefaultPollInterval,
		failureBackoff: DefaultFailureBackoff,
		maxAttempts:    DefaultMaxAttempts,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Snapshot returns the current run state as plain values.
func (o *Orchestrator) Snapshot() Snapshot {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.snapshotLocked()
}

func (o *Orchestrator) snapshotLocked() Snapshot {
	snap := Snapshot{
		RunID:         o.runID,
		Status:        o.status,
		QueuePosition: o.queuePosition,
		Attempts:      o.attempts,
	}
	if o.progress != nil {
		p := *o.progress
		snap.Progress = &p
	}
	if o.report != nil {
		r := *o.report
		snap.Report = &r
	}
	return snap
}

// Submit sends one run of all scenarios in a test set to the executor. On
// success the orchestrator is queued or running, whichever the executor
// decided, and ready to poll. A submission failure is a terminal failed
// state with a single synthetic error record, not an error return; there is
// no run id to poll in that case.
func (o *Orchestrator) Submit(ctx context.Context, testSetID, releaseID int64, environment string) error {
	o.mu.Lock()
	if o.submitting || o.status != StatusIdle {
		o.mu.Unlock()
		return ErrRunActive
	}
	o.submitting = true
	o.interested = true
	o.attempts = 0
	o.mu.Unlock()

	logging.Info(subsystem, "submitting run for test set %d, release %d, environment %q", testSetID, releaseID, environment)
	resp, err := o.exec.Submit(ctx, api.SubmitRequest{
		TestSetID:   testSetID,
		ReleaseID:   releaseID,
		Environment: environment,
	})

	o.mu.Lock()
	o.submitting = false
	if err != nil {
		o.status = StatusFailed
		o.report = &Report{Failure: err.Error()}
		o.mu.Unlock()
		logging.Error(subsystem, err, "run submission failed")
		o.emitChanged()
		return nil
	}

	o.runID = resp.RunID
	o.queuePosition = resp.QueuePosition
	if resp.Status == string(StatusQueued) {
		o.status = StatusQueued
	} else {
		o.status = StatusRunning
	}
	o.mu.Unlock()

	logging.Info(subsystem, "run %d accepted with status %s", resp.RunID, resp.Status)
	o.emitChanged()
	return nil
}

// Poll performs one status check. It returns done=true when no further
// polling is needed (terminal status reached, interest withdrawn, or nothing
// to poll) and otherwise the wait before the next attempt.
//
// A poll call failure is not a run failure: the orchestrator retries with an
// extra backoff until the attempt cap, then synthesizes an inconclusive
// failed result rather than polling forever.
func (o *Orchestrator) Poll(ctx context.Context) (done bool, wait time.Duration) {
	o.mu.Lock()
	if !o.interested || o.status.Terminal() || o.status == StatusIdle || o.runID == 0 {
		o.mu.Unlock()
		return true, 0
	}
	runID := o.runID
	o.mu.Unlock()

	resp, err := o.exec.GetStatus(ctx, runID)

	o.mu.Lock()
	if !o.interested || o.status.Terminal() {
		o.mu.Unlock()
		return true, 0
	}
	o.attempts++

	if err != nil {
		if o.attempts >= o.maxAttempts {
			o.giveUpLocked()
			o.mu.Unlock()
			o.emitChanged()
			return true, 0
		}
		attempts := o.attempts
		o.mu.Unlock()
		logging.Warn(subsystem, "poll %d/%d for run %d failed: %v", attempts, o.maxAttempts, runID, err)
		return false, o.pollInterval + o.failureBackoff
	}

	switch resp.Status {
	case string(StatusQueued):
		o.status = StatusQueued
		o.queuePosition = resp.QueuePosition
		o.progress = progressFrom(resp.Progress)
	case string(StatusRunning):
		o.status = StatusRunning
		o.queuePosition = 0
		// Replace, never merge: absent progress means the placeholder is
		// shown, not the previous snapshot.
		o.progress = progressFrom(resp.Progress)
	case string(StatusComplete):
		o.status = StatusComplete
		o.progress = nil
		o.report = BuildReport(resp)
		o.mu.Unlock()
		logging.Info(subsystem, "run %d complete: %d passed, %d failed", runID, resp.PassedSteps, resp.FailedSteps)
		o.emitChanged()
		return true, 0
	case string(StatusFailed):
		o.status = StatusFailed
		o.progress = nil
		o.report = BuildReport(resp)
		o.mu.Unlock()
		logging.Warn(subsystem, "run %d failed: %s", runID, resp.Error)
		o.emitChanged()
		return true, 0
	default:
		logging.Warn(subsystem, "run %d reported unknown status %q, still polling", runID, resp.Status)
	}

	if o.attempts >= o.maxAttempts {
		o.giveUpLocked()
		o.mu.Unlock()
		o.emitChanged()
		return true, 0
	}
	o.mu.Unlock()

	o.emitChanged()
	return false, o.pollInterval
}

// giveUpLocked synthesizes an inconclusive failed result once the attempt
// cap is exceeded without a terminal status.
func (o *Orchestrator) giveUpLocked() {
	o.status = StatusFailed
	o.progress = nil
	o.report = &Report{
		Failure:      "the run did not finish within the polling window; its final outcome is unknown",
		Inconclusive: true,
	}
	logging.Warn(subsystem, "giving up on run %d after %d poll attempts", o.runID, o.attempts)
}

// RunUntilDone submits nothing; it drives Poll on the reference cadence
// until the run is terminal, the context is cancelled, or the report is
// dismissed. It returns the final snapshot.
func (o *Orchestrator) RunUntilDone(ctx context.Context) Snapshot {
	for {
		done, wait := o.Poll(ctx)
		if done {
			return o.Snapshot()
		}
		select {
		case <-ctx.Done():
			return o.Snapshot()
		case <-time.After(wait):
		}
	}
}

// Dismiss closes the report: polling stops and the orchestrator returns to
// idle, ready for the next submission. The remote run, if still executing,
// keeps going; submission is fire-and-forget.
func (o *Orchestrator) Dismiss() {
	o.mu.Lock()
	o.interested = false
	o.status = StatusIdle
	o.runID = 0
	o.queuePosition = 0
	o.progress = nil
	o.report = nil
	o.attempts = 0
	o.mu.Unlock()
	o.emitChanged()
}

func progressFrom(p *api.RunProgress) *Progress {
	if p == nil {
		return nil
	}
	return &Progress{
		CurrentScenario: p.CurrentScenario,
		TotalScenarios:  p.TotalScenarios,
		ScenarioName:    p.ScenarioName,
		CurrentStep:     p.CurrentStep,
		TotalSteps:      p.TotalSteps,
		StepDefinition:  p.StepDefinition,
	}
}

// emitChanged delivers a fresh snapshot to the change observer, in order.
func (o *Orchestrator) emitChanged() {
	if o.onChange == nil {
		return
	}
	o.emitMu.Lock()
	defer o.emitMu.Unlock()
	o.mu.Lock()
	snap := o.snapshotLocked()
	o.mu.Unlock()
	o.onChange(snap)
}
