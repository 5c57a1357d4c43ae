package steps

import (
	"fmt"

	"github.com/google/uuid"
)

// StepID identifies one step row. It is either durable (server-assigned
// integer, stable across requests) or provisional (client-generated token
// that is only valid until the next successful sync). The two kinds are kept
// in one opaque value so reconciliation code cannot accidentally treat a
// provisional token as a real foreign key.
type StepID struct {
	durable int64
	token   string
}

// DurableID wraps a server-assigned step id.
func DurableID(id int64) StepID {
	return StepID{durable: id}
}

// NewProvisionalID generates a fresh provisional id for a row the server has
// not seen yet.
func NewProvisionalID() StepID {
	return StepID{token: "local-" + uuid.NewString()}
}

// IsProvisional reports whether the id is a client-generated placeholder.
func (id StepID) IsProvisional() bool {
	return id.token != ""
}

// IsZero reports whether the id is the zero value.
func (id StepID) IsZero() bool {
	return id.durable == 0 && id.token == ""
}

// Durable returns the server-assigned id and true, or zero and false for a
// provisional id.
func (id StepID) Durable() (int64, bool) {
	if id.IsProvisional() {
		return 0, false
	}
	return id.durable, true
}

// String renders the id for display and logging.
func (id StepID) String() string {
	if id.IsProvisional() {
		return id.token
	}
	return fmt.Sprintf("%d", id.durable)
}

// MarshalText lets StepID appear in serialized snapshots handed to the
// presentation layer.
func (id StepID) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}
