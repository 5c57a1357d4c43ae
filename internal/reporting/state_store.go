package reporting

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"ddtcms/internal/run"
	"ddtcms/internal/steps"
)

// ChangeKind distinguishes the two state streams the store carries.
type ChangeKind string

const (
	// ChangeRun marks a run state transition or progress update.
	ChangeRun ChangeKind = "run"
	// ChangeSteps marks a step list change for one scenario.
	ChangeSteps ChangeKind = "steps"
)

// ChangeEvent is delivered to subscribers on every state change.
type ChangeEvent struct {
	Kind       ChangeKind
	Run        *run.Snapshot
	ScenarioID int64
	Steps      []steps.StepView
}

// Subscription represents a subscription to state changes.
type Subscription struct {
	ID      string
	Channel chan ChangeEvent
	closed  bool
	mu      sync.Mutex
}

// Close closes the subscription channel.
func (s *Subscription) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		close(s.Channel)
		s.closed = true
	}
}

// IsClosed returns whether the subscription is closed.
func (s *Subscription) IsClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Metrics tracks store usage. Slow subscribers drop events rather than
// block the engines; DroppedEvents counts those.
type Metrics struct {
	ActiveSubscriptions  int
	StateChanges         int64
	TotalEventsDelivered int64
	DroppedEvents        int64
	LastStateChange      time.Time
}

// Store is the centralized snapshot store between the engines and their
// consumers. Engines publish through the Set methods (wired as their change
// observers); the CLI and the watcher read and subscribe. The engines stay
// the exclusive owners of their state; the store only holds projections.
type Store struct {
	mu            sync.RWMutex
	runState      run.Snapshot
	stepLists     map[int64][]steps.StepView
	subscriptions map[string]*Subscription
	metrics       Metrics
}

// NewStore creates an empty store with an idle run state.
func NewStore() *Store {
	return &Store{
		runState:      run.Snapshot{Status: run.StatusIdle},
		stepLists:     make(map[int64][]steps.StepView),
		subscriptions: make(map[string]*Subscription),
	}
}

// SetRunState replaces the run projection and notifies subscribers.
func (s *Store) SetRunState(snap run.Snapshot) {
	s.mu.Lock()
	s.runState = snap
	s.metrics.StateChanges++
	s.metrics.LastStateChange = time.Now()
	event := ChangeEvent{Kind: ChangeRun, Run: &snap}
	s.notifyLocked(event)
	s.mu.Unlock()
}

// RunState returns the current run projection.
func (s *Store) RunState() run.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.runState
}

// SetStepList replaces the step projection for one scenario and notifies
// subscribers.
func (s *Store) SetStepList(scenarioID int64, views []steps.StepView) {
	s.mu.Lock()
	s.stepLists[scenarioID] = views
	s.metrics.StateChanges++
	s.metrics.LastStateChange = time.Now()
	event := ChangeEvent{Kind: ChangeSteps, ScenarioID: scenarioID, Steps: views}
	s.notifyLocked(event)
	s.mu.Unlock()
}

// StepList returns the step projection for a scenario.
func (s *Store) StepList(scenarioID int64) ([]steps.StepView, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	views, ok := s.stepLists[scenarioID]
	return views, ok
}

// ClearScenario drops the projection of a scenario that is no longer open.
// Discarded engine state is never merged back.
func (s *Store) ClearScenario(scenarioID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.stepLists[scenarioID]; !ok {
		return false
	}
	delete(s.stepLists, scenarioID)
	return true
}

// Subscribe creates a subscription to all state changes.
func (s *Store) Subscribe() *Subscription {
	s.mu.Lock()
	defer s.mu.Unlock()

	sub := &Subscription{
		ID:      uuid.NewString(),
		Channel: make(chan ChangeEvent, 100),
	}
	s.subscriptions[sub.ID] = sub
	s.metrics.ActiveSubscriptions++
	return sub
}

// Unsubscribe removes a subscription and closes its channel.
func (s *Store) Unsubscribe(sub *Subscription) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.subscriptions[sub.ID]; ok {
		sub.Close()
		delete(s.subscriptions, sub.ID)
		s.metrics.ActiveSubscriptions--
	}
}

// GetMetrics returns a copy of the store metrics.
func (s *Store) GetMetrics() Metrics {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.metrics
}

// notifyLocked fans an event out to all live subscribers without blocking;
// a full channel drops the event for that subscriber.
func (s *Store) notifyLocked(event ChangeEvent) {
	for id, sub := range s.subscriptions {
		if sub.IsClosed() {
			delete(s.subscriptions, id)
			s.metrics.ActiveSubscriptions--
			continue
		}
		select {
		case sub.Channel <- event:
			s.metrics.TotalEventsDelivered++
		default:
			s.metrics.DroppedEvents++
		}
	}
}
