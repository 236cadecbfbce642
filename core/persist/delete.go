package persist

import (
	"context"
	"errors"
)

// delete removes rec unless the store already holds the same or a newer
// revision. A record the store does not have counts as deleted.
func (r *Reconciler) delete(ctx context.Context, rec *Record) error {
	var (
		gone    bool
		skipped bool
		stored  int64
	)
	// Gate and remove share a transaction so the revision we compared
	// against is the one we delete.
	err := r.store.Transact(ctx, func(tx Tx) error {
		current, err := tx.CurrentRevision(rec.ID)
		if err != nil {
			if r.classify.Classify(err) == FaultNotFound {
				gone = true
				return nil
			}
			return err
		}
		if rec.Revision <= current {
			skipped, stored = true, current
			return nil
		}
		return tx.Remove(rec)
	})
	switch {
	case err == nil && gone:
		return r.succeed(rec, "Record already deleted")
	case err == nil && skipped:
		return r.skip(rec, stored)
	case err == nil:
		return r.succeed(rec, "Record deleted")
	}

	kind := r.classify.Classify(err)
	r.metrics.fault(ActionDelete, kind)

	switch kind {
	case FaultNotFound, FaultLockTimeout:
		// The version we hold may be stale, or the lock holder may have
		// finished. Reload and try once more inside this attempt.
		gone, rerr := r.reloadAndRemove(ctx, rec)
		if rerr == nil {
			if gone {
				return r.succeed(rec, "Record already deleted")
			}
			return r.succeed(rec, "Record deleted after reload")
		}
		if r.classify.Classify(rerr) == FaultUnknown {
			return r.escalate(ctx, rec, FaultUnknown, errors.Join(err, rerr))
		}
		return r.retry(ctx, rec, ActionDelete, kind, errors.Join(err, rerr), nil)

	case FaultVersionConflict:
		// Someone wrote after us. Pick up their version and let the next
		// attempt re-run the revision gate against it.
		gone, rerr := r.reload(ctx, rec)
		if rerr == nil && gone {
			return r.succeed(rec, "Record already deleted")
		}
		if rerr != nil && r.classify.Classify(rerr) == FaultUnknown {
			return r.escalate(ctx, rec, FaultUnknown, errors.Join(err, rerr))
		}
		return r.retry(ctx, rec, ActionDelete, kind, err, nil)

	case FaultDetached:
		// Recovery runs before the attempt is counted so even a ceiling of
		// one gets a chance to attach and remove the record.
		gone, rerr := r.mergeAndRemove(ctx, rec)
		if rerr == nil {
			if gone {
				return r.succeed(rec, "Record already deleted")
			}
			return r.succeed(rec, "Detached record merged and deleted")
		}
		if r.classify.Classify(rerr) == FaultUnknown {
			return r.escalate(ctx, rec, FaultUnknown, errors.Join(err, rerr))
		}
		return r.retry(ctx, rec, ActionDelete, kind, errors.Join(err, rerr), nil)

	case FaultParentNotPersisted:
		// Children still point at this record; give their deletes time to land.
		return r.retry(ctx, rec, ActionDelete, kind, err, chain(r.refreshed, r.withBackoff))

	case FaultPropertyAccess, FaultDuplicateKey:
		return r.retry(ctx, rec, ActionDelete, kind, err, r.withBackoff)

	case FaultUnknown:
		return r.escalate(ctx, rec, kind, err)

	default:
		return r.retry(ctx, rec, ActionDelete, kind, err, nil)
	}
}

// reload copies the stored version onto rec. gone is true if the store no
// longer has the record.
func (r *Reconciler) reload(ctx context.Context, rec *Record) (gone bool, err error) {
	err = r.store.Transact(ctx, func(tx Tx) error {
		stored, err := tx.Find(rec.Kind, rec.ID)
		if err != nil {
			if r.classify.Classify(err) == FaultNotFound {
				gone = true
				return nil
			}
			return err
		}
		rec.Version = stored.Version
		return nil
	})
	return gone, err
}

// reloadAndRemove reloads the stored version and retries the removal in
// the same transaction.
func (r *Reconciler) reloadAndRemove(ctx context.Context, rec *Record) (gone bool, err error) {
	err = r.store.Transact(ctx, func(tx Tx) error {
		stored, err := tx.Find(rec.Kind, rec.ID)
		if err != nil {
			if r.classify.Classify(err) == FaultNotFound {
				gone = true
				return nil
			}
			return err
		}
		rec.Version = stored.Version
		return tx.Remove(rec)
	})
	return gone, err
}

// mergeAndRemove attaches a detached record by merging it over the stored
// state and then removes it, as one transaction.
func (r *Reconciler) mergeAndRemove(ctx context.Context, rec *Record) (gone bool, err error) {
	err = r.store.Transact(ctx, func(tx Tx) error {
		stored, err := tx.Find(rec.Kind, rec.ID)
		if err != nil {
			if r.classify.Classify(err) == FaultNotFound {
				gone = true
				return nil
			}
			return err
		}
		rec.Version = stored.Version
		if err := tx.Merge(rec); err != nil {
			return err
		}
		return tx.Remove(rec)
	})
	return gone, err
}
