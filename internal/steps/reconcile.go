package steps

import (
	"ddtcms/internal/api"
	"ddtcms/pkg/logging"
)

// sentInfo captures what a row looked like at the moment a sync request was
// built: its edit generation and the order index it was sent under.
type sentInfo struct {
	gen   uint64
	index int
}

// reconcileLocked folds a server-confirmed step list back into the local
// collection after a full sync. Matching is never positional:
//
//  1. a server record with an id already held locally matches that row;
//  2. otherwise it matches a still-provisional row that was part of the
//     request and was sent under the same order index;
//  3. otherwise the record is appended at the end with a fresh index,
//     unless its id was deleted locally while the request was in flight.
//     Dropping a genuinely unknown record could lose a row another client
//     just created, and silently losing data is worse than an extra row.
//
// Rows matched via rule 2 inherit the durable id. Server field values are
// adopted only for rows not edited since the request was built: the last
// local edit wins over the value the server echoes back for the same field.
//
// Applying the same response twice yields the same collection as applying
// it once: rule 1 catches on the second pass everything rules 2 and 3
// settled on the first.
func (e *Engine) reconcileLocked(fresh []api.StepRecord, sent map[*step]sentInfo) {
	byDurable := make(map[int64]*step, len(e.steps))
	for _, s := range e.steps {
		if id, ok := s.id.Durable(); ok {
			byDurable[id] = s
		}
	}

	// Provisional rows eligible for order-index matching: only those that
	// were in the request, keyed by the index they were sent under. A row
	// added while the sync was in flight must not steal a durable id meant
	// for an older row that happened to land on the same index.
	provisionalBySentIndex := make(map[int]*step)
	for s, info := range sent {
		if !s.id.IsProvisional() {
			continue
		}
		if e.indexOf(s) < 0 {
			continue // deleted while in flight
		}
		provisionalBySentIndex[info.index] = s
	}

	for _, rec := range fresh {
		s := byDurable[rec.ID]
		if s == nil {
			if p, ok := provisionalBySentIndex[rec.OrderIndex]; ok {
				s = p
				delete(provisionalBySentIndex, rec.OrderIndex)
				s.id = DurableID(rec.ID)
				byDurable[rec.ID] = s
			}
		}

		if s == nil {
			if _, gone := e.deletedInFlight[rec.ID]; gone {
				// The row was deleted locally after the request went out;
				// the echo is stale, not a row from another session.
				logging.Debug(subsystem, "sync echoed step %d deleted in flight for scenario %d, skipping", rec.ID, e.scenarioID)
				continue
			}
			// No local counterpart. Append rather than drop, with a fresh
			// index; renumbering below keeps the collection dense.
			logging.Debug(subsystem, "sync returned unmatched step %d for scenario %d, appending", rec.ID, e.scenarioID)
			appended := &step{
				id:     DurableID(rec.ID),
				record: rec,
				state:  RowSynced,
			}
			appended.record.OrderIndex = len(e.steps)
			e.steps = append(e.steps, appended)
			continue
		}

		localIndex := s.record.OrderIndex
		if info, wasSent := sent[s]; wasSent && s.gen == info.gen {
			// Untouched since the request went out: the echo is current.
			s.record = rec
		}
		// Local order is display truth; a concurrent reorder must not be
		// undone by the echo.
		s.record.OrderIndex = localIndex
		s.record.ID = rec.ID
		if s.state != RowSaveFailed {
			s.state = RowSynced
		}
	}

	e.renumberLocked()
}

// indexOf returns the position of a row in the collection, or -1.
func (e *Engine) indexOf(s *step) int {
	for i, cur := range e.steps {
		if cur == s {
			return i
		}
	}
	return -1
}
