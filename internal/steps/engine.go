package steps

import (
	"context"
	"sync"

	"ddtcms/internal/api"
	"ddtcms/pkg/logging"
)

const subsystem = "StepSyncEngine"

// Engine owns the ordered step collection for one open scenario. Mutations
// apply to local state immediately and return; the matching remote calls run
// in the background. The collection keeps a dense 0..n-1 order index at every
// point a caller can observe it.
//
// An Engine is scoped to exactly one scenario. Switching the active scenario
// means discarding the old engine and constructing a new one; in-flight
// remote completions of a discarded engine are dropped, never merged.
type Engine struct {
	mu sync.Mutex

	scenarioID int64
	api        api.StepsAPI

	steps []*step

	// generation counts local mutations. Each row remembers the generation
	// of its last local edit so reconciliation can tell a stale server echo
	// from the current value.
	generation uint64

	// At most one full-collection sync is in flight per scenario. A second
	// request during that window sets syncQueued and runs once the first
	// completes.
	syncInFlight bool
	syncQueued   bool

	// Durable ids deleted while a sync was in flight. The request was built
	// before the delete, so the echo still carries those rows; reconciliation
	// must not mistake them for rows created by another session. Cleared once
	// the in-flight sync settles.
	deletedInFlight map[int64]struct{}

	discarded bool

	ctx    context.Context
	cancel context.CancelFunc

	// background tracks in-flight remote calls so tests and shutdown can
	// wait for the engine to settle.
	background sync.WaitGroup

	// emitMu serializes observer callbacks so snapshots arrive in the order
	// they were taken. Callbacks run outside the engine mutex but must not
	// call back into the engine.
	emitMu        sync.Mutex
	onRemoteError RemoteErrorFunc
	onChange      func([]StepView)
}

// Option configures an Engine.
type Option func(*Engine)

// WithRemoteErrorFunc installs a callback for non-fatal remote failures.
func WithRemoteErrorFunc(fn RemoteErrorFunc) Option {
	return func(e *Engine) { e.onRemoteError = fn }
}

// WithChangeFunc installs an observer invoked with a fresh snapshot after
// every local state change, including background reconciliations. The
// observer must not call back into the engine; it is meant to hand the
// snapshot to a state store or render queue.
func WithChangeFunc(fn func([]StepView)) Option {
	return func(e *Engine) { e.onChange = fn }
}

// NewEngine creates the engine for one scenario, seeded with the rows already
// known from the server. Seed rows are taken as durable and synced.
func NewEngine(scenarioID int64, stepsAPI api.StepsAPI, seed []api.StepRecord, opts ...Option) *Engine {
	ctx, cancel := context.WithCancel(context.Background())
	e := &Engine{
		scenarioID: scenarioID,
		api:        stepsAPI,
		ctx:        ctx,
		cancel:     cancel,
	}
	for _, o := range opts {
		o(e)
	}
	for i, rec := range seed {
		rec.OrderIndex = i
		e.steps = append(e.steps, &step{
			id:     DurableID(rec.ID),
			record: rec,
			state:  RowSynced,
		})
	}
	return e
}

// ScenarioID returns the scenario this engine is bound to.
func (e *Engine) ScenarioID() int64 {
	return e.scenarioID
}

// Snapshot returns the current ordered step list as plain values.
func (e *Engine) Snapshot() []StepView {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshotLocked()
}

func (e *Engine) snapshotLocked() []StepView {
	views := make([]StepView, len(e.steps))
	for i, s := range e.steps {
		views[i] = s.view()
	}
	return views
}

// Discard abandons the engine when the active scenario changes. Remote calls
// already in flight run to completion but their results are dropped.
func (e *Engine) Discard() {
	e.mu.Lock()
	e.discarded = true
	e.mu.Unlock()
	e.cancel()
}

// WaitIdle blocks until all background remote calls have settled. Used by
// tests and by graceful shutdown; callers on the hot path never need it.
func (e *Engine) WaitIdle() {
	e.background.Wait()
}

// UpdateField applies one field change locally and returns. For a durable
// row the change is also queued for a remote partial update, in issue order
// per row. For a provisional row the value is held locally and travels with
// the next full sync; no remote call ever carries a provisional id.
//
// A remote save failure is reported through the error callback and flags the
// row, but the optimistic value stays: field edits are later-consistent via
// the next sync or reload.
func (e *Engine) UpdateField(id StepID, field string, value interface{}) error {
	e.mu.Lock()
	if e.discarded {
		e.mu.Unlock()
		return ErrEngineDiscarded
	}

	s := e.findLocked(id)
	if s == nil {
		e.mu.Unlock()
		return ErrStepNotFound
	}
	if err := applyField(&s.record, field, value); err != nil {
		e.mu.Unlock()
		return err
	}
	e.generation++
	s.gen = e.generation

	if _, durable := s.id.Durable(); durable {
		e.enqueueUpdateLocked(s, map[string]interface{}{field: value})
	}
	e.mu.Unlock()

	e.emitChanged()
	return nil
}

// AddStep appends a new provisional row at the end of the collection and
// triggers a full-collection sync so the server can assign a durable id.
// The new row's id is returned immediately; it stays valid until the sync
// response re-associates it with a durable id.
func (e *Engine) AddStep() (StepID, error) {
	e.mu.Lock()
	if e.discarded {
		e.mu.Unlock()
		return StepID{}, ErrEngineDiscarded
	}

	e.generation++
	s := &step{
		id:    NewProvisionalID(),
		state: RowUnsynced,
		gen:   e.generation,
	}
	s.record.OrderIndex = len(e.steps)
	e.steps = append(e.steps, s)

	e.requestSyncLocked()
	newID := s.id
	e.mu.Unlock()

	e.emitChanged()
	return newID, nil
}

// DeleteStep removes a row locally. Durable rows also get a best-effort
// remote delete; provisional rows are simply dropped because the server has
// never seen them.
func (e *Engine) DeleteStep(id StepID) error {
	e.mu.Lock()
	if e.discarded {
		e.mu.Unlock()
		return ErrEngineDiscarded
	}

	idx := e.indexLocked(id)
	if idx < 0 {
		e.mu.Unlock()
		return ErrStepNotFound
	}
	s := e.steps[idx]
	e.steps = append(e.steps[:idx], e.steps[idx+1:]...)
	e.generation++
	e.renumberLocked()

	if stepID, durable := s.id.Durable(); durable {
		if e.syncInFlight {
			if e.deletedInFlight == nil {
				e.deletedInFlight = make(map[int64]struct{})
			}
			e.deletedInFlight[stepID] = struct{}{}
		}
		e.background.Add(1)
		go func() {
			defer e.background.Done()
			if err := e.api.Delete(e.ctx, e.scenarioID, stepID); err != nil {
				logging.Warn(subsystem, "remote delete of step %s failed: %v", s.id, err)
				e.reportRemoteError(OpDelete, s.id, err)
			}
		}()
	}
	e.mu.Unlock()

	e.emitChanged()
	return nil
}

// ReorderSteps rearranges the collection to match newOrder, which must name
// exactly the current rows. The new order applies optimistically and a
// remote sync is issued; if that sync fails the previous order is restored
// element-for-element, because a partially applied reorder would corrupt the
// order index invariant.
//
// Reorders refuse to start while another sync is in flight.
func (e *Engine) ReorderSteps(newOrder []StepID) error {
	e.mu.Lock()
	if e.discarded {
		e.mu.Unlock()
		return ErrEngineDiscarded
	}
	if e.syncInFlight {
		e.mu.Unlock()
		return ErrSyncInFlight
	}
	if len(newOrder) != len(e.steps) {
		e.mu.Unlock()
		return ErrNotAPermutation
	}

	byID := make(map[StepID]*step, len(e.steps))
	for _, s := range e.steps {
		byID[s.id] = s
	}
	reordered := make([]*step, 0, len(newOrder))
	for _, id := range newOrder {
		s, ok := byID[id]
		if !ok {
			e.mu.Unlock()
			return ErrNotAPermutation
		}
		delete(byID, id)
		reordered = append(reordered, s)
	}

	// Keep a copy of the previous arrangement for rollback.
	prevOrder := make([]*step, len(e.steps))
	copy(prevOrder, e.steps)

	e.steps = reordered
	e.generation++
	e.renumberLocked()

	e.syncInFlight = true
	req, sent := e.buildSyncRequestLocked()
	e.background.Add(1)
	go e.runReorderSync(req, sent, prevOrder)

	e.mu.Unlock()

	e.emitChanged()
	return nil
}

func (e *Engine) runReorderSync(req api.SyncRequest, sent map[*step]sentInfo, prevOrder []*step) {
	defer e.background.Done()
	fresh, err := e.api.Sync(e.ctx, req)

	e.mu.Lock()
	e.syncInFlight = false
	if e.discarded {
		e.mu.Unlock()
		return
	}

	if err != nil {
		// Roll back the relative order only. Rows added while the sync was
		// in flight keep their spot at the end, and rows deleted since stay
		// deleted; restoring the old slice verbatim would throw away those
		// structural mutations.
		present := make(map[*step]bool, len(e.steps))
		for _, s := range e.steps {
			present[s] = true
		}
		restored := make([]*step, 0, len(e.steps))
		for _, s := range prevOrder {
			if present[s] {
				restored = append(restored, s)
				delete(present, s)
			}
		}
		for _, s := range e.steps {
			if present[s] {
				restored = append(restored, s)
			}
		}
		e.steps = restored
		e.generation++
		e.renumberLocked()
		logging.Warn(subsystem, "reorder sync for scenario %d failed, order rolled back: %v", e.scenarioID, err)
	} else {
		e.reconcileLocked(fresh, sent)
	}

	e.deletedInFlight = nil
	if e.syncQueued {
		e.syncQueued = false
		e.startSyncLocked()
	}
	e.mu.Unlock()

	if err != nil {
		e.reportRemoteError(OpReorder, StepID{}, err)
	}
	e.emitChanged()
}

// findLocked returns the row with the given id, or nil.
func (e *Engine) findLocked(id StepID) *step {
	idx := e.indexLocked(id)
	if idx < 0 {
		return nil
	}
	return e.steps[idx]
}

func (e *Engine) indexLocked(id StepID) int {
	for i, s := range e.steps {
		if s.id == id {
			return i
		}
	}
	return -1
}

// renumberLocked restores the dense 0..n-1 order index after a structural
// mutation.
func (e *Engine) renumberLocked() {
	for i, s := range e.steps {
		s.record.OrderIndex = i
	}
}

// enqueueUpdateLocked appends a partial update to the row's dispatch queue
// and starts a drainer if none is running. The queue guarantees updates to
// one row reach the server in issue order.
func (e *Engine) enqueueUpdateLocked(s *step, fields map[string]interface{}) {
	s.updateQueue = append(s.updateQueue, fields)
	if s.updating {
		return
	}
	s.updating = true
	e.background.Add(1)
	go e.drainUpdates(s)
}

func (e *Engine) drainUpdates(s *step) {
	defer e.background.Done()
	for {
		e.mu.Lock()
		if e.discarded || len(s.updateQueue) == 0 {
			s.updating = false
			e.mu.Unlock()
			return
		}
		fields := s.updateQueue[0]
		s.updateQueue = s.updateQueue[1:]
		stepID, durable := s.id.Durable()
		id := s.id
		e.mu.Unlock()

		if !durable {
			// Ids only ever go provisional -> durable, so the queue cannot
			// hold work for a provisional row; guard anyway so a provisional
			// id can never leak to the partial-update endpoint.
			continue
		}

		err := e.api.Update(e.ctx, e.scenarioID, stepID, fields)

		e.mu.Lock()
		discarded := e.discarded
		if err != nil && !discarded {
			s.state = RowSaveFailed
		} else if err == nil && s.state == RowSaveFailed {
			s.state = RowSynced
		}
		e.mu.Unlock()

		if discarded {
			return
		}
		if err != nil {
			logging.Warn(subsystem, "field save for step %s failed, keeping optimistic value: %v", id, err)
			e.reportRemoteError(OpUpdate, id, err)
			e.emitChanged()
		}
	}
}

// requestSyncLocked starts a full-collection sync, or queues one if a sync
// is already in flight. Exactly one follow-up sync is kept queued; further
// requests during the window collapse into it.
func (e *Engine) requestSyncLocked() {
	if e.syncInFlight {
		e.syncQueued = true
		return
	}
	e.startSyncLocked()
}

func (e *Engine) startSyncLocked() {
	e.syncInFlight = true
	req, sent := e.buildSyncRequestLocked()
	e.background.Add(1)
	go e.runSync(req, sent)
}

// buildSyncRequestLocked snapshots the collection for a full sync.
// Provisional rows travel with a blank id; the server treats them as
// inserts. The per-row generations at send time are captured so the
// reconciliation can tell which rows were edited while the request was in
// flight.
func (e *Engine) buildSyncRequestLocked() (api.SyncRequest, map[*step]sentInfo) {
	req := api.SyncRequest{ScenarioID: e.scenarioID}
	sent := make(map[*step]sentInfo, len(e.steps))
	for i, s := range e.steps {
		rec := s.record
		rec.OrderIndex = i
		if s.id.IsProvisional() {
			rec.ID = 0
			s.state = RowSyncing
		}
		req.Steps = append(req.Steps, rec)
		sent[s] = sentInfo{gen: s.gen, index: i}
	}
	return req, sent
}

func (e *Engine) runSync(req api.SyncRequest, sent map[*step]sentInfo) {
	defer e.background.Done()
	fresh, err := e.api.Sync(e.ctx, req)

	e.mu.Lock()
	e.syncInFlight = false
	if e.discarded {
		e.mu.Unlock()
		return
	}

	if err != nil {
		// The optimistic rows stay; dropping a row the user just typed into
		// would be worse than a transient inconsistency. They are flagged so
		// the presentation layer can show them as unsynced.
		for _, s := range e.steps {
			if s.id.IsProvisional() {
				s.state = RowUnsynced
			}
		}
		logging.Warn(subsystem, "sync for scenario %d failed, provisional rows flagged unsynced: %v", e.scenarioID, err)
	} else {
		e.reconcileLocked(fresh, sent)
	}

	e.deletedInFlight = nil
	if e.syncQueued {
		e.syncQueued = false
		e.startSyncLocked()
	}
	e.mu.Unlock()

	if err != nil {
		e.reportRemoteError(OpSync, StepID{}, err)
	}
	e.emitChanged()
}

func (e *Engine) reportRemoteError(op Op, id StepID, err error) {
	if e.onRemoteError != nil {
		e.onRemoteError(op, id, err)
	}
}

// emit delivers a fresh snapshot to the change observer. Taking the
// snapshot under emitMu keeps deliveries in order even when mutations and
// background completions interleave.
func (e *Engine) emitChanged() {
	if e.onChange == nil {
		return
	}
	e.emitMu.Lock()
	defer e.emitMu.Unlock()
	e.mu.Lock()
	views := e.snapshotLocked()
	e.mu.Unlock()
	e.onChange(views)
}
