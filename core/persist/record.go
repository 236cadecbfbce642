package persist

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Action is the write a queued record is waiting for.
type Action string

const (
	// ActionInsert creates the record in the store.
	ActionInsert Action = "insert"
	// ActionMerge overwrites the stored record with the submitted state.
	ActionMerge Action = "merge"
	// ActionDelete removes the record from the store.
	ActionDelete Action = "delete"
)

// Valid reports whether a is one of the known actions.
func (a Action) Valid() bool {
	switch a {
	case ActionInsert, ActionMerge, ActionDelete:
		return true
	default:
		return false
	}
}

// Record is the unit submitted for persistence.
//
// Version is owned by the store and advances on every successful write.
// Revision is owned by the submitter and is compared against the stored
// revision to drop stale merges and deletes before they reach the store.
// Attempt, Action and Delay are retry state and are only ever mutated on
// the reconciler's private copy.
type Record struct {
	// Kind is the entity type name (e.g. "position", "transaction").
	Kind string `json:"kind"`

	// ID is the record identity.
	ID uuid.UUID `json:"id"`

	// ParentID references a record that must be durable before this one.
	ParentID *uuid.UUID `json:"parent_id,omitempty"`

	// Version is the store-assigned optimistic concurrency counter.
	Version int64 `json:"version"`

	// Revision is the submitter-assigned logical change counter.
	Revision int64 `json:"revision"`

	// Payload is the serialized entity state. The reconciler never inspects it.
	Payload []byte `json:"payload,omitempty"`

	// Attempt counts failed attempts in the current reconciliation episode.
	Attempt int `json:"attempt"`

	// Action is the pending write.
	Action Action `json:"action"`

	// Delay is the backoff to wait before the next attempt.
	Delay time.Duration `json:"delay,omitempty"`
}

// Clone returns a deep copy of r.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	c := *r
	if r.ParentID != nil {
		parent := *r.ParentID
		c.ParentID = &parent
	}
	if r.Payload != nil {
		c.Payload = append([]byte(nil), r.Payload...)
	}
	return &c
}

// String identifies the record in logs and errors.
func (r *Record) String() string {
	return fmt.Sprintf("%s %s", r.Kind, r.ID)
}

// resetRetry clears the retry state after a terminal outcome.
func (r *Record) resetRetry() {
	r.Attempt = 0
	r.Delay = 0
}
