// Package persist reconciles records into a versioned store.
//
// Callers submit records for insertion, merging or deletion and return
// immediately. The Reconciler owns a private copy of every submitted
// record and drives it through two pending queues (one for inserts, one
// for merges and deletes) until the write succeeds, turns out to be
// superseded, or is escalated.
//
// # Fault Classification
//
// Store errors are mapped to a small set of fault kinds by a Classifier.
// The classifier walks the whole cause chain, outermost link first, so a
// store adapter may wrap driver errors as deeply as it likes. Adapters
// contribute their own rules (see gormstore.Rules).
//
// # Recovery
//
// Each action reacts to a fault by either requeueing the record (possibly
// as a different action, with a refreshed version, or after a backoff
// delay) or escalating it. Every requeue counts one failed attempt; when
// the count reaches Config.MaxAttempts the fault is fatal. Unrecognised
// faults are never retried.
//
// Merges and deletes carry a submitter-assigned Revision. If the store
// already holds the same or a newer revision the write is dropped as a
// successful no-op.
//
// # Usage
//
//	r := persist.New(store, cfg.Reconciler, logger,
//	    persist.WithClassifier(persist.NewClassifier(gormstore.Rules()...)),
//	)
//	go r.Run(ctx)
//
//	r.Persist(rec)
//	r.Merge(updated)
//
//	// Or, on the calling goroutine:
//	if err := r.PersistEntities(ctx, rec); err != nil {
//	    var esc *persist.EscalationError
//	    errors.As(err, &esc)
//	}
package persist
