package steps

import (
	"context"
	"errors"
	"sync"
	"testing"

	"ddtcms/internal/api"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type updateCall struct {
	stepID int64
	fields map[string]interface{}
}

// fakeStepsAPI records calls and answers syncs by assigning durable ids to
// blank rows and echoing the rest back, unless a hook overrides it.
type fakeStepsAPI struct {
	mu      sync.Mutex
	nextID  int64
	updates []updateCall
	deletes []int64
	syncs   []api.SyncRequest

	updateErr error
	deleteErr error
	syncErr   error

	// syncHook, when set, fully replaces the default sync answer.
	syncHook func(req api.SyncRequest) ([]api.StepRecord, error)

	// syncGate, when set, is received from at the start of every Sync call,
	// letting a test hold a sync in flight.
	syncGate chan struct{}
}

func newFakeStepsAPI() *fakeStepsAPI {
	return &fakeStepsAPI{nextID: 100}
}

func (f *fakeStepsAPI) Update(_ context.Context, _ int64, stepID int64, fields map[string]interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates = append(f.updates, updateCall{stepID: stepID, fields: fields})
	return f.updateErr
}

func (f *fakeStepsAPI) Delete(_ context.Context, _ int64, stepID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletes = append(f.deletes, stepID)
	return f.deleteErr
}

func (f *fakeStepsAPI) Sync(_ context.Context, req api.SyncRequest) ([]api.StepRecord, error) {
	f.mu.Lock()
	gate := f.syncGate
	f.mu.Unlock()
	if gate != nil {
		<-gate
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.syncs = append(f.syncs, req)
	if f.syncHook != nil {
		return f.syncHook(req)
	}
	if f.syncErr != nil {
		return nil, f.syncErr
	}
	fresh := make([]api.StepRecord, len(req.Steps))
	for i, rec := range req.Steps {
		if rec.ID == 0 {
			rec.ID = f.nextID
			f.nextID++
		}
		fresh[i] = rec
	}
	return fresh, nil
}

func (f *fakeStepsAPI) updateCalls() []updateCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]updateCall(nil), f.updates...)
}

func (f *fakeStepsAPI) syncCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.syncs)
}

func seedRecords(n int) []api.StepRecord {
	recs := make([]api.StepRecord, n)
	for i := range recs {
		recs[i] = api.StepRecord{ID: int64(i + 1), Definition: "step"}
	}
	return recs
}

func requireDenseIndexes(t *testing.T, views []StepView) {
	t.Helper()
	for i, v := range views {
		require.Equal(t, i, v.Record.OrderIndex, "order index must be dense at position %d", i)
	}
}

func TestNewEngineSeedsSyncedRows(t *testing.T) {
	fake := newFakeStepsAPI()
	engine := NewEngine(7, fake, seedRecords(3))

	views := engine.Snapshot()
	require.Len(t, views, 3)
	requireDenseIndexes(t, views)
	for _, v := range views {
		assert.Equal(t, RowSynced, v.State)
		assert.False(t, v.ID.IsProvisional())
	}
	assert.Zero(t, fake.syncCount(), "seeding must not trigger a sync")
}

func TestAddStepAssignsDurableID(t *testing.T) {
	fake := newFakeStepsAPI()
	engine := NewEngine(7, fake, seedRecords(2))

	id, err := engine.AddStep()
	require.NoError(t, err)
	assert.True(t, id.IsProvisional())

	engine.WaitIdle()

	views := engine.Snapshot()
	require.Len(t, views, 3)
	requireDenseIndexes(t, views)
	last := views[2]
	assert.False(t, last.ID.IsProvisional(), "sync response must re-associate the provisional row")
	assert.Equal(t, RowSynced, last.State)

	durable, ok := last.ID.Durable()
	require.True(t, ok)
	assert.Equal(t, int64(100), durable)
}

func TestUpdateFieldIsOptimisticAndDispatchesInOrder(t *testing.T) {
	fake := newFakeStepsAPI()
	engine := NewEngine(7, fake, seedRecords(1))
	id := engine.Snapshot()[0].ID

	require.NoError(t, engine.UpdateField(id, FieldDefinition, "first"))
	require.NoError(t, engine.UpdateField(id, FieldDefinition, "second"))
	require.NoError(t, engine.UpdateField(id, FieldExpectedResults, "green"))

	// The local value is visible before any remote call settles.
	assert.Equal(t, "second", engine.Snapshot()[0].Record.Definition)

	engine.WaitIdle()

	calls := fake.updateCalls()
	require.Len(t, calls, 3)
	assert.Equal(t, map[string]interface{}{FieldDefinition: "first"}, calls[0].fields)
	assert.Equal(t, map[string]interface{}{FieldDefinition: "second"}, calls[1].fields)
	assert.Equal(t, map[string]interface{}{FieldExpectedResults: "green"}, calls[2].fields)
}

func TestUpdateFieldUnknownField(t *testing.T) {
	fake := newFakeStepsAPI()
	engine := NewEngine(7, fake, seedRecords(1))
	id := engine.Snapshot()[0].ID

	err := engine.UpdateField(id, "color", "red")
	assert.ErrorIs(t, err, ErrUnknownField)
}

func TestUpdateFieldMissingStep(t *testing.T) {
	fake := newFakeStepsAPI()
	engine := NewEngine(7, fake, seedRecords(1))

	err := engine.UpdateField(DurableID(999), FieldDefinition, "x")
	assert.ErrorIs(t, err, ErrStepNotFound)
}

func TestProvisionalIDNeverReachesUpdateEndpoint(t *testing.T) {
	fake := newFakeStepsAPI()
	fake.syncErr = errors.New("service unavailable")
	engine := NewEngine(7, fake, nil)

	id, err := engine.AddStep()
	require.NoError(t, err)
	engine.WaitIdle()

	// The add-step sync failed, so the row is still provisional. Editing it
	// must stay local.
	require.NoError(t, engine.UpdateField(id, FieldDefinition, "typed while offline"))
	engine.WaitIdle()

	assert.Empty(t, fake.updateCalls(), "a provisional id must never be sent to the partial-update endpoint")

	views := engine.Snapshot()
	require.Len(t, views, 1)
	assert.Equal(t, RowUnsynced, views[0].State)
	assert.Equal(t, "typed while offline", views[0].Record.Definition)
}

func TestFieldSaveFailureKeepsOptimisticValue(t *testing.T) {
	fake := newFakeStepsAPI()
	fake.updateErr = errors.New("boom")

	var mu sync.Mutex
	var reported []Op
	engine := NewEngine(7, fake, seedRecords(1), WithRemoteErrorFunc(func(op Op, _ StepID, err error) {
		mu.Lock()
		defer mu.Unlock()
		reported = append(reported, op)
	}))
	id := engine.Snapshot()[0].ID

	require.NoError(t, engine.UpdateField(id, FieldDefinition, "optimistic"))
	engine.WaitIdle()

	view := engine.Snapshot()[0]
	assert.Equal(t, "optimistic", view.Record.Definition, "the optimistic value must survive a failed save")
	assert.Equal(t, RowSaveFailed, view.State)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, reported, 1)
	assert.Equal(t, OpUpdate, reported[0])
}

func TestDeleteStepRenumbersAndCallsRemote(t *testing.T) {
	fake := newFakeStepsAPI()
	engine := NewEngine(7, fake, seedRecords(3))
	views := engine.Snapshot()

	require.NoError(t, engine.DeleteStep(views[1].ID))
	engine.WaitIdle()

	remaining := engine.Snapshot()
	require.Len(t, remaining, 2)
	requireDenseIndexes(t, remaining)
	assert.Equal(t, views[0].ID, remaining[0].ID)
	assert.Equal(t, views[2].ID, remaining[1].ID)

	fake.mu.Lock()
	defer fake.mu.Unlock()
	assert.Equal(t, []int64{2}, fake.deletes)
}

func TestDeleteProvisionalStepSkipsRemote(t *testing.T) {
	fake := newFakeStepsAPI()
	fake.syncErr = errors.New("service unavailable")
	engine := NewEngine(7, fake, nil)

	id, err := engine.AddStep()
	require.NoError(t, err)
	engine.WaitIdle()

	require.NoError(t, engine.DeleteStep(id))
	engine.WaitIdle()

	assert.Empty(t, engine.Snapshot())
	fake.mu.Lock()
	defer fake.mu.Unlock()
	assert.Empty(t, fake.deletes, "the server never saw the row, nothing to delete")
}

func TestReorderStepsOptimistic(t *testing.T) {
	fake := newFakeStepsAPI()
	engine := NewEngine(7, fake, seedRecords(3))
	views := engine.Snapshot()

	err := engine.ReorderSteps([]StepID{views[2].ID, views[0].ID, views[1].ID})
	require.NoError(t, err)

	reordered := engine.Snapshot()
	requireDenseIndexes(t, reordered)
	assert.Equal(t, views[2].ID, reordered[0].ID)
	assert.Equal(t, views[0].ID, reordered[1].ID)
	assert.Equal(t, views[1].ID, reordered[2].ID)

	engine.WaitIdle()
	assert.Equal(t, 1, fake.syncCount())
}

func TestReorderRollsBackOnSyncFailure(t *testing.T) {
	fake := newFakeStepsAPI()
	fake.syncErr = errors.New("conflict")

	var mu sync.Mutex
	var reported []Op
	engine := NewEngine(7, fake, seedRecords(3), WithRemoteErrorFunc(func(op Op, _ StepID, err error) {
		mu.Lock()
		defer mu.Unlock()
		reported = append(reported, op)
	}))
	before := engine.Snapshot()

	err := engine.ReorderSteps([]StepID{before[2].ID, before[0].ID, before[1].ID})
	require.NoError(t, err)
	engine.WaitIdle()

	after := engine.Snapshot()
	require.Len(t, after, len(before))
	requireDenseIndexes(t, after)
	for i := range before {
		assert.Equal(t, before[i].ID, after[i].ID, "rollback must restore position %d exactly", i)
	}

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, reported, 1)
	assert.Equal(t, OpReorder, reported[0])
}

func TestReorderRollbackKeepsStructuralChangesMadeInFlight(t *testing.T) {
	fake := newFakeStepsAPI()
	gate := make(chan struct{})
	fake.syncGate = gate
	fake.syncErr = errors.New("conflict")
	engine := NewEngine(7, fake, seedRecords(3))
	before := engine.Snapshot()

	err := engine.ReorderSteps([]StepID{before[2].ID, before[0].ID, before[1].ID})
	require.NoError(t, err)

	// While the reorder sync is held at the gate, the user keeps editing:
	// one row added, one of the original rows deleted.
	added, err := engine.AddStep()
	require.NoError(t, err)
	require.NoError(t, engine.DeleteStep(before[0].ID))

	close(gate)
	engine.WaitIdle()

	views := engine.Snapshot()
	require.Len(t, views, 3, "rollback must not resurrect the deleted row or drop the added one")
	requireDenseIndexes(t, views)
	assert.Equal(t, before[1].ID, views[0].ID, "surviving rows return to their pre-reorder order")
	assert.Equal(t, before[2].ID, views[1].ID)
	assert.Equal(t, added, views[2].ID, "the row added during the sync keeps its spot at the end")
}

func TestRowDeletedDuringSyncIsNotResurrected(t *testing.T) {
	fake := newFakeStepsAPI()
	gate := make(chan struct{})
	fake.syncGate = gate
	engine := NewEngine(7, fake, seedRecords(2))
	views := engine.Snapshot()

	// The add-step sync request carries both seeded rows; row 1 is deleted
	// while that request is in flight, so the echo still contains it.
	added, err := engine.AddStep()
	require.NoError(t, err)
	require.NoError(t, engine.DeleteStep(views[0].ID))

	close(gate)
	engine.WaitIdle()

	after := engine.Snapshot()
	require.Len(t, after, 2, "the stale echo must not bring the deleted row back")
	requireDenseIndexes(t, after)
	assert.Equal(t, views[1].ID, after[0].ID)
	assert.Equal(t, added, after[1].ID)

	fake.mu.Lock()
	defer fake.mu.Unlock()
	assert.Equal(t, []int64{1}, fake.deletes)
}

func TestReconcileIdempotent(t *testing.T) {
	fake := newFakeStepsAPI()
	var fresh []api.StepRecord
	fake.syncHook = func(req api.SyncRequest) ([]api.StepRecord, error) {
		out := make([]api.StepRecord, len(req.Steps))
		for i, rec := range req.Steps {
			if rec.ID == 0 {
				rec.ID = 100 + int64(i)
			}
			out[i] = rec
		}
		out = append(out, api.StepRecord{ID: 999, Definition: "added elsewhere", OrderIndex: len(out)})
		fresh = out
		return out, nil
	}
	engine := NewEngine(7, fake, seedRecords(2))

	_, err := engine.AddStep()
	require.NoError(t, err)
	engine.WaitIdle()
	first := engine.Snapshot()

	// Replay the identical response; every record now matches by durable id,
	// so the collection must come out unchanged.
	engine.mu.Lock()
	engine.reconcileLocked(fresh, map[*step]sentInfo{})
	engine.mu.Unlock()

	assert.Equal(t, first, engine.Snapshot())
}

func TestReorderRejectsNonPermutation(t *testing.T) {
	fake := newFakeStepsAPI()
	engine := NewEngine(7, fake, seedRecords(3))
	views := engine.Snapshot()

	err := engine.ReorderSteps([]StepID{views[0].ID, views[1].ID})
	assert.ErrorIs(t, err, ErrNotAPermutation)

	err = engine.ReorderSteps([]StepID{views[0].ID, views[1].ID, views[1].ID})
	assert.ErrorIs(t, err, ErrNotAPermutation)
}

func TestReorderRefusedWhileSyncInFlight(t *testing.T) {
	fake := newFakeStepsAPI()
	fake.syncGate = make(chan struct{})
	engine := NewEngine(7, fake, seedRecords(2))

	_, err := engine.AddStep()
	require.NoError(t, err)

	views := engine.Snapshot()
	err = engine.ReorderSteps([]StepID{views[1].ID, views[0].ID, views[2].ID})
	assert.ErrorIs(t, err, ErrSyncInFlight)

	close(fake.syncGate)
	engine.WaitIdle()
}

func TestConcurrentSyncRequestsCollapse(t *testing.T) {
	fake := newFakeStepsAPI()
	gate := make(chan struct{})
	fake.syncGate = gate
	engine := NewEngine(7, fake, nil)

	// The first add starts a sync that is held at the gate. The next two
	// adds both queue, collapsing into a single follow-up sync.
	_, err := engine.AddStep()
	require.NoError(t, err)
	_, err = engine.AddStep()
	require.NoError(t, err)
	_, err = engine.AddStep()
	require.NoError(t, err)

	gate <- struct{}{}
	gate <- struct{}{}
	engine.WaitIdle()

	assert.Equal(t, 2, fake.syncCount(), "queued syncs must collapse into one follow-up")

	views := engine.Snapshot()
	require.Len(t, views, 3)
	requireDenseIndexes(t, views)
	for _, v := range views {
		assert.False(t, v.ID.IsProvisional(), "the follow-up sync covers rows added during the window")
	}
}

func TestSyncFailureKeepsProvisionalRows(t *testing.T) {
	fake := newFakeStepsAPI()
	fake.syncErr = errors.New("gateway timeout")
	engine := NewEngine(7, fake, seedRecords(1))

	id, err := engine.AddStep()
	require.NoError(t, err)
	engine.WaitIdle()

	views := engine.Snapshot()
	require.Len(t, views, 2, "a failed sync must not drop the optimistic row")
	assert.Equal(t, id, views[1].ID)
	assert.Equal(t, RowUnsynced, views[1].State)
}

func TestEditDuringSyncIsNotOverwrittenByEcho(t *testing.T) {
	fake := newFakeStepsAPI()
	gate := make(chan struct{})
	fake.syncGate = gate
	engine := NewEngine(7, fake, seedRecords(1))
	id := engine.Snapshot()[0].ID

	require.NoError(t, engine.UpdateField(id, FieldDefinition, "old value"))

	// Hold the add-step sync in flight, then edit the seeded row. The sync
	// response echoes "old value"; the newer local edit must win.
	_, err := engine.AddStep()
	require.NoError(t, err)

	require.NoError(t, engine.UpdateField(id, FieldDefinition, "new value"))
	close(gate)
	engine.WaitIdle()

	views := engine.Snapshot()
	assert.Equal(t, "new value", views[0].Record.Definition, "a stale echo must not overwrite a newer local edit")
}

func TestUnmatchedServerRowsAreAppended(t *testing.T) {
	fake := newFakeStepsAPI()
	fake.syncHook = func(req api.SyncRequest) ([]api.StepRecord, error) {
		fresh := make([]api.StepRecord, len(req.Steps))
		for i, rec := range req.Steps {
			if rec.ID == 0 {
				rec.ID = 100 + int64(i)
			}
			fresh[i] = rec
		}
		// A row this client never sent, created by another session.
		fresh = append(fresh, api.StepRecord{ID: 999, Definition: "added elsewhere"})
		return fresh, nil
	}
	engine := NewEngine(7, fake, seedRecords(1))

	_, err := engine.AddStep()
	require.NoError(t, err)
	engine.WaitIdle()

	views := engine.Snapshot()
	require.Len(t, views, 3, "unmatched server rows are appended, never dropped")
	requireDenseIndexes(t, views)
	last := views[2]
	durable, ok := last.ID.Durable()
	require.True(t, ok)
	assert.Equal(t, int64(999), durable)
	assert.Equal(t, "added elsewhere", last.Record.Definition)
}

func TestDiscardedEngineRefusesMutations(t *testing.T) {
	fake := newFakeStepsAPI()
	engine := NewEngine(7, fake, seedRecords(1))
	id := engine.Snapshot()[0].ID

	engine.Discard()

	_, err := engine.AddStep()
	assert.ErrorIs(t, err, ErrEngineDiscarded)
	assert.ErrorIs(t, engine.UpdateField(id, FieldDefinition, "x"), ErrEngineDiscarded)
	assert.ErrorIs(t, engine.DeleteStep(id), ErrEngineDiscarded)
	assert.ErrorIs(t, engine.ReorderSteps([]StepID{id}), ErrEngineDiscarded)
}

func TestDiscardDropsInFlightSyncResult(t *testing.T) {
	fake := newFakeStepsAPI()
	gate := make(chan struct{})
	fake.syncGate = gate
	engine := NewEngine(7, fake, seedRecords(1))

	id, err := engine.AddStep()
	require.NoError(t, err)

	engine.Discard()
	close(gate)
	engine.WaitIdle()

	// The sync completed after the discard; its result must not have been
	// merged, so the row is still provisional.
	views := engine.Snapshot()
	require.Len(t, views, 2)
	assert.Equal(t, id, views[1].ID)
	assert.True(t, views[1].ID.IsProvisional())
}

func TestChangeObserverReceivesSnapshots(t *testing.T) {
	fake := newFakeStepsAPI()

	var mu sync.Mutex
	var lengths []int
	engine := NewEngine(7, fake, seedRecords(1), WithChangeFunc(func(views []StepView) {
		mu.Lock()
		defer mu.Unlock()
		lengths = append(lengths, len(views))
	}))

	_, err := engine.AddStep()
	require.NoError(t, err)
	engine.WaitIdle()

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, lengths)
	assert.Equal(t, 2, lengths[len(lengths)-1])
}
