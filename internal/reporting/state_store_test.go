package reporting

import (
	"testing"

	"ddtcms/internal/run"
	"ddtcms/internal/steps"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewStoreStartsIdle(t *testing.T) {
	store := NewStore()

	snap := store.RunState()
	assert.Equal(t, run.StatusIdle, snap.Status)

	_, ok := store.StepList(1)
	assert.False(t, ok)
}

func TestSetRunStateReplacesProjection(t *testing.T) {
	store := NewStore()

	store.SetRunState(run.Snapshot{Status: run.StatusRunning, RunID: 42})

	snap := store.RunState()
	assert.Equal(t, run.StatusRunning, snap.Status)
	assert.Equal(t, int64(42), snap.RunID)
}

func TestStepListRoundTrip(t *testing.T) {
	store := NewStore()
	views := []steps.StepView{{State: steps.RowSynced}}

	store.SetStepList(7, views)

	got, ok := store.StepList(7)
	require.True(t, ok)
	assert.Equal(t, views, got)
}

func TestClearScenario(t *testing.T) {
	store := NewStore()
	store.SetStepList(7, []steps.StepView{{State: steps.RowSynced}})

	assert.True(t, store.ClearScenario(7))
	_, ok := store.StepList(7)
	assert.False(t, ok)

	assert.False(t, store.ClearScenario(7), "clearing twice reports nothing to clear")
}

func TestSubscribeReceivesEvents(t *testing.T) {
	store := NewStore()
	sub := store.Subscribe()
	defer store.Unsubscribe(sub)

	store.SetRunState(run.Snapshot{Status: run.StatusQueued, RunID: 42})
	store.SetStepList(7, []steps.StepView{{State: steps.RowSyncing}})

	event := <-sub.Channel
	assert.Equal(t, ChangeRun, event.Kind)
	require.NotNil(t, event.Run)
	assert.Equal(t, run.StatusQueued, event.Run.Status)

	event = <-sub.Channel
	assert.Equal(t, ChangeSteps, event.Kind)
	assert.Equal(t, int64(7), event.ScenarioID)
	require.Len(t, event.Steps, 1)
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	store := NewStore()
	sub := store.Subscribe()

	store.Unsubscribe(sub)

	assert.True(t, sub.IsClosed())
	_, open := <-sub.Channel
	assert.False(t, open)

	// Publishing after unsubscribe must not panic on the closed channel.
	store.SetRunState(run.Snapshot{Status: run.StatusRunning})
}

func TestSlowSubscriberDropsInsteadOfBlocking(t *testing.T) {
	store := NewStore()
	sub := store.Subscribe()
	defer store.Unsubscribe(sub)

	// Fill the subscription buffer and then some.
	for i := 0; i < 150; i++ {
		store.SetRunState(run.Snapshot{Status: run.StatusRunning, Attempts: i})
	}

	metrics := store.GetMetrics()
	assert.Equal(t, int64(100), metrics.TotalEventsDelivered)
	assert.Equal(t, int64(50), metrics.DroppedEvents)
	assert.Equal(t, int64(150), metrics.StateChanges)
}

func TestMetricsTrackSubscriptions(t *testing.T) {
	store := NewStore()
	a := store.Subscribe()
	b := store.Subscribe()

	assert.Equal(t, 2, store.GetMetrics().ActiveSubscriptions)

	store.Unsubscribe(a)
	assert.Equal(t, 1, store.GetMetrics().ActiveSubscriptions)

	store.Unsubscribe(b)
	assert.Equal(t, 0, store.GetMetrics().ActiveSubscriptions)
}
