package persist

import (
	"context"

	"github.com/google/uuid"
)

// Store is the versioned store the reconciler writes to.
// Every read and write happens inside a transaction the store opens for
// the callback; the Tx handle is only valid until fn returns.
type Store interface {
	// Transact runs fn inside one bounded transactional unit. If fn returns
	// an error the unit is rolled back and the error is returned unchanged
	// (possibly wrapped) so it can be classified.
	Transact(ctx context.Context, fn func(tx Tx) error) error
}

// Tx is a transaction-scoped view of the store.
type Tx interface {
	// Find loads the stored state of a record. It returns an error
	// classifying as FaultNotFound when the record is absent.
	Find(kind string, id uuid.UUID) (*Record, error)

	// CurrentVersion returns the stored version of id.
	CurrentVersion(id uuid.UUID) (int64, error)

	// CurrentRevision returns the stored revision of id.
	CurrentRevision(id uuid.UUID) (int64, error)

	// Insert creates rec and sets rec.Version to the assigned version.
	Insert(rec *Record) error

	// Merge overwrites the stored state of rec if rec.Version still matches
	// and sets rec.Version to the new version.
	Merge(rec *Record) error

	// Remove deletes rec if rec.Version still matches.
	Remove(rec *Record) error
}

// EscalationSink receives records the reconciler gave up on.
type EscalationSink interface {
	Archive(ctx context.Context, esc *EscalationError) error
}

// Refresher re-prepares a record before it is requeued after its
// prerequisite was found missing. It may update any field but Attempt.
type Refresher func(ctx context.Context, rec *Record) error
