package steps

import (
	"errors"

	"ddtcms/internal/api"
)

// RowSyncState describes how a step row relates to the server copy.
type RowSyncState string

const (
	// RowSynced means the row matches a durable server record and no save is outstanding.
	RowSynced RowSyncState = "synced"
	// RowSyncing means the row is part of an in-flight full-collection sync.
	RowSyncing RowSyncState = "syncing"
	// RowUnsynced means the row is provisional and the last sync attempt failed
	// (or no sync has completed yet).
	RowUnsynced RowSyncState = "unsynced"
	// RowSaveFailed means a field-level save for a durable row failed. The
	// optimistic value stays visible; a later full sync or reload reconciles.
	RowSaveFailed RowSyncState = "save_failed"
)

// Field names accepted by UpdateField. They match the wire column names used
// by the partial-update endpoint.
const (
	FieldDefinition      = "definition"
	FieldElementRef      = "elementRef"
	FieldActionKind      = "actionKind"
	FieldActionResult    = "actionResult"
	FieldRequired        = "required"
	FieldExpectedResults = "expectedResults"
	FieldSelectOptionSet = "selectOptionSetId"
	FieldMatchOptionSet  = "matchOptionSetId"
)

// Operation names used when surfacing remote failures.
type Op string

const (
	OpUpdate  Op = "update"
	OpSync    Op = "sync"
	OpReorder Op = "reorder"
	OpDelete  Op = "delete"
)

var (
	// ErrStepNotFound is returned when an operation names an id that is not in
	// the collection.
	ErrStepNotFound = errors.New("step not found in scenario")
	// ErrUnknownField is returned for a field name UpdateField does not know.
	ErrUnknownField = errors.New("unknown step field")
	// ErrSyncInFlight is returned when a reorder is requested while a
	// full-collection sync is still in flight. Reorders never queue behind
	// another sync; the caller retries once the collection settles.
	ErrSyncInFlight = errors.New("a sync for this scenario is already in flight")
	// ErrNotAPermutation is returned when a reorder request does not name
	// exactly the current rows.
	ErrNotAPermutation = errors.New("reorder list is not a permutation of the current steps")
	// ErrEngineDiscarded is returned once the engine has been discarded by a
	// scenario switch.
	ErrEngineDiscarded = errors.New("step engine discarded")
)

// StepView is the read-only projection of one row handed to the
// presentation layer.
type StepView struct {
	ID     StepID         `json:"id"`
	State  RowSyncState   `json:"state"`
	Record api.StepRecord `json:"record"`
}

// RemoteErrorFunc receives non-fatal remote failures (field saves, deletes,
// add-step syncs). The local state is already settled when it is called.
type RemoteErrorFunc func(op Op, id StepID, err error)

// step is the engine-internal row representation.
type step struct {
	id     StepID
	record api.StepRecord
	state  RowSyncState

	// gen is the engine generation of the last local edit to this row. A
	// reconciliation only adopts server field values for rows whose gen is
	// unchanged since the sync request was built, so a newer local edit is
	// never overwritten by a stale echo.
	gen uint64

	// Ordered queue of partial updates awaiting remote dispatch. Updates to
	// one row are applied to remote state in issue order.
	updateQueue []map[string]interface{}
	updating    bool
}

func (s *step) view() StepView {
	return StepView{ID: s.id, State: s.state, Record: s.record}
}

// applyField writes one field value into a record. Values use the natural Go
// type for the column; an int works for the option-set references.
func applyField(rec *api.StepRecord, field string, value interface{}) error {
	switch field {
	case FieldDefinition:
		s, ok := value.(string)
		if !ok {
			return errors.New("definition requires a string value")
		}
		rec.Definition = s
	case FieldElementRef:
		s, ok := value.(string)
		if !ok {
			return errors.New("elementRef requires a string value")
		}
		rec.ElementRef = s
	case FieldActionKind:
		s, ok := value.(string)
		if !ok {
			return errors.New("actionKind requires a string value")
		}
		rec.ActionKind = s
	case FieldActionResult:
		s, ok := value.(string)
		if !ok {
			return errors.New("actionResult requires a string value")
		}
		rec.ActionResult = s
	case FieldRequired:
		b, ok := value.(bool)
		if !ok {
			return errors.New("required requires a bool value")
		}
		rec.Required = b
	case FieldExpectedResults:
		s, ok := value.(string)
		if !ok {
			return errors.New("expectedResults requires a string value")
		}
		rec.ExpectedResults = s
	case FieldSelectOptionSet:
		n, ok := toInt64(value)
		if !ok {
			return errors.New("selectOptionSetId requires an integer value")
		}
		rec.SelectOptionSetID = n
	case FieldMatchOptionSet:
		n, ok := toInt64(value)
		if !ok {
			return errors.New("matchOptionSetId requires an integer value")
		}
		rec.MatchOptionSetID = n
	default:
		return ErrUnknownField
	}
	return nil
}

func toInt64(value interface{}) (int64, bool) {
	switch v := value.(type) {
	case int:
		return int64(v), true
	case int64:
		return v, true
	}
	return 0, false
}
