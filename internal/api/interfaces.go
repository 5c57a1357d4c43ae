package api

import "context"

// StepsAPI is the collaborator boundary for persisting scenario steps. The
// management server owns the schema; this interface only carries what the
// sync engine needs.
type StepsAPI interface {
	// Update issues a partial field update for a durable step. The fields
	// map carries only the changed columns.
	Update(ctx context.Context, scenarioID, stepID int64, fields map[string]interface{}) error

	// Sync performs a full-collection upsert for one scenario and returns
	// the server's canonical ordered list with durable ids assigned.
	Sync(ctx context.Context, req SyncRequest) ([]StepRecord, error)

	// Delete removes a durable step.
	Delete(ctx context.Context, scenarioID, stepID int64) error
}

// ExecutionAPI is the collaborator boundary for the remote test executor.
type ExecutionAPI interface {
	// Submit enqueues a run of all scenarios in a test set. The executor
	// decides whether the run starts immediately or queues.
	Submit(ctx context.Context, req SubmitRequest) (SubmitResponse, error)

	// GetStatus returns the current status of a previously submitted run.
	GetStatus(ctx context.Context, runID int64) (RunStatusResponse, error)
}
