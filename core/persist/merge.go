package persist

import "context"

// merge overwrites the stored state of rec unless the store already holds
// the same or a newer revision.
func (r *Reconciler) merge(ctx context.Context, rec *Record) error {
	var (
		skipped bool
		stored  int64
	)
	err := r.store.Transact(ctx, func(tx Tx) error {
		current, err := tx.CurrentRevision(rec.ID)
		switch {
		case err == nil:
			if rec.Revision <= current {
				skipped, stored = true, current
				return nil
			}
		case r.classify.Classify(err) == FaultNotFound:
			// Nothing stored yet. Merge reports NotFound and the restore
			// below inserts the record.
		default:
			return err
		}
		return tx.Merge(rec)
	})
	if err == nil {
		if skipped {
			return r.skip(rec, stored)
		}
		return r.succeed(rec, "Record merged")
	}

	kind := r.classify.Classify(err)
	r.metrics.fault(ActionMerge, kind)

	switch {
	case kind == FaultVersionConflict, kind == FaultNotFound, r.classify.Has(err, FaultDuplicateKey):
		return r.retry(ctx, rec, ActionMerge, kind, err, r.restore)
	case kind == FaultPropertyAccess:
		return r.retry(ctx, rec, ActionMerge, kind, err, r.withBackoff)
	case kind == FaultParentNotPersisted:
		return r.retry(ctx, rec, ActionMerge, kind, err, r.refreshed)
	case kind == FaultUnknown:
		return r.escalate(ctx, rec, kind, err)
	default:
		return r.retry(ctx, rec, ActionMerge, kind, err, nil)
	}
}

// restore reloads the stored version of rec, or inserts rec if the store
// has nothing for its identity.
func (r *Reconciler) restore(ctx context.Context, rec *Record) error {
	return r.store.Transact(ctx, func(tx Tx) error {
		stored, err := tx.Find(rec.Kind, rec.ID)
		if err == nil {
			rec.Version = stored.Version
			return nil
		}
		if r.classify.Classify(err) != FaultNotFound {
			return err
		}

		fresh := rec.Clone()
		if err := tx.Insert(fresh); err != nil {
			return err
		}
		rec.Version = fresh.Version
		return nil
	})
}
