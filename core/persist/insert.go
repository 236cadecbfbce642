package persist

import "context"

// insert attempts to create rec.
//
// A duplicate identity turns the record into a merge; a missing parent is
// refreshed and retried as an insert; unrecognised faults escalate at once.
func (r *Reconciler) insert(ctx context.Context, rec *Record) error {
	err := r.store.Transact(ctx, func(tx Tx) error {
		return tx.Insert(rec)
	})
	if err == nil {
		return r.succeed(rec, "Record inserted")
	}

	kind := r.classify.Classify(err)
	r.metrics.fault(ActionInsert, kind)

	switch kind {
	case FaultDuplicateKey:
		return r.retry(ctx, rec, ActionMerge, kind, err, nil)
	case FaultParentNotPersisted:
		return r.retry(ctx, rec, ActionInsert, kind, err, r.refreshed)
	case FaultPropertyAccess:
		return r.retry(ctx, rec, ActionInsert, kind, err, r.withBackoff)
	case FaultUnknown:
		return r.escalate(ctx, rec, kind, err)
	default:
		return r.retry(ctx, rec, ActionInsert, kind, err, nil)
	}
}
