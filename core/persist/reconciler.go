package persist

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ErrQueueClosed is returned when a record cannot be requeued because the
// reconciler is shutting down.
var ErrQueueClosed = errors.New("pending queue closed")

// EscalationError is raised when the reconciler gives up on a record.
type EscalationError struct {
	// Record is a copy of the record as it was when escalated, with its
	// retry state already reset.
	Record *Record
	// Action is the write that was being attempted.
	Action Action
	// Kind is the classification of the final fault.
	Kind FaultKind
	// Attempts is the attempt count reached before escalation.
	Attempts int
	// Err is the final store fault.
	Err error
}

func (e *EscalationError) Error() string {
	return fmt.Sprintf("%s of %s failed after %d attempt(s) (%s): %v", e.Action, e.Record, e.Attempts, e.Kind, e.Err)
}

func (e *EscalationError) Unwrap() error {
	return e.Err
}

// Reconciler commits records to a versioned store, retrying through its
// pending queues until each record succeeds or is escalated.
type Reconciler struct {
	store    Store
	cfg      Config
	policy   RetryPolicy
	classify *Classifier
	logger   *zap.Logger
	metrics  *Metrics
	sink     EscalationSink
	refresh  Refresher

	insertQ *Queue
	mergeQ  *Queue
}

// Option customises a Reconciler.
type Option func(*Reconciler)

// WithClassifier replaces the default classifier, typically with one
// carrying the store adapter's rules.
func WithClassifier(c *Classifier) Option {
	return func(r *Reconciler) { r.classify = c }
}

// WithMetrics attaches prometheus metrics.
func WithMetrics(m *Metrics) Option {
	return func(r *Reconciler) { r.metrics = m }
}

// WithEscalationSink archives every escalated record.
func WithEscalationSink(s EscalationSink) Option {
	return func(r *Reconciler) { r.sink = s }
}

// WithRefresher sets the hook run before a record whose prerequisite was
// missing is requeued.
func WithRefresher(fn Refresher) Option {
	return func(r *Reconciler) { r.refresh = fn }
}

// New creates a reconciler over store.
func New(store Store, cfg Config, logger *zap.Logger, opts ...Option) *Reconciler {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Reconciler{
		store:    store,
		cfg:      cfg,
		policy:   NewRetryPolicy(cfg),
		classify: defaultClassifier,
		logger:   logger.Named("reconciler"),
		insertQ:  NewQueue("insert"),
		mergeQ:   NewQueue("merge"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Persist queues a copy of each record for insertion and returns.
func (r *Reconciler) Persist(recs ...*Record) {
	r.submit(ActionInsert, recs)
}

// Merge queues a copy of each record for merging and returns.
func (r *Reconciler) Merge(recs ...*Record) {
	r.submit(ActionMerge, recs)
}

// Delete queues a copy of each record for deletion and returns.
func (r *Reconciler) Delete(recs ...*Record) {
	r.submit(ActionDelete, recs)
}

// PersistEntities attempts to insert each record on the calling goroutine.
// It returns once every record has succeeded, been requeued or escalated;
// escalations are returned joined.
func (r *Reconciler) PersistEntities(ctx context.Context, recs ...*Record) error {
	return r.apply(ctx, ActionInsert, recs)
}

// MergeEntities is the synchronous variant of Merge.
func (r *Reconciler) MergeEntities(ctx context.Context, recs ...*Record) error {
	return r.apply(ctx, ActionMerge, recs)
}

// DeleteEntities is the synchronous variant of Delete.
func (r *Reconciler) DeleteEntities(ctx context.Context, recs ...*Record) error {
	return r.apply(ctx, ActionDelete, recs)
}

// QueueStats is a snapshot of the pending queues.
type QueueStats struct {
	Insert int `json:"insert"`
	Merge  int `json:"merge"`
}

// Stats returns the current queue depths.
func (r *Reconciler) Stats() QueueStats {
	return QueueStats{Insert: r.insertQ.Len(), Merge: r.mergeQ.Len()}
}

// Run drains both queues with the configured number of workers until ctx
// is cancelled or the queues are closed and empty. An attempt already in
// flight when ctx is cancelled runs to completion.
func (r *Reconciler) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < r.cfg.InsertWorkers; i++ {
		g.Go(func() error {
			r.work(gctx, r.insertQ)
			return nil
		})
	}
	for i := 0; i < r.cfg.MergeWorkers; i++ {
		g.Go(func() error {
			r.work(gctx, r.mergeQ)
			return nil
		})
	}
	r.logger.Info("Reconciler workers started",
		zap.Int("insert_workers", r.cfg.InsertWorkers),
		zap.Int("merge_workers", r.cfg.MergeWorkers),
		zap.Int("max_attempts", r.cfg.MaxAttempts),
	)
	return g.Wait()
}

// Drain processes both queues on the calling goroutine until they are
// empty, waiting out any backoff delays. Escalations are returned joined.
func (r *Reconciler) Drain(ctx context.Context) error {
	var errs []error
	for {
		if err := ctx.Err(); err != nil {
			return errors.Join(append(errs, err)...)
		}

		q := r.insertQ
		rec, waitInsert, ok := q.TryPop()
		if !ok {
			var waitMerge time.Duration
			q = r.mergeQ
			rec, waitMerge, ok = q.TryPop()
			if !ok {
				wait := shortest(waitInsert, waitMerge)
				if wait == 0 {
					return errors.Join(errs...)
				}
				t := time.NewTimer(wait)
				select {
				case <-ctx.Done():
					t.Stop()
				case <-t.C:
				}
				continue
			}
		}
		r.metrics.depth(q)

		// ctx bounds the drain loop, not a popped record's attempt.
		if err := r.process(context.WithoutCancel(ctx), rec); err != nil {
			errs = append(errs, err)
		}
	}
}

// Close stops both queues from accepting records.
func (r *Reconciler) Close() {
	r.insertQ.Close()
	r.mergeQ.Close()
}

func (r *Reconciler) work(ctx context.Context, q *Queue) {
	for {
		rec, ok := q.Pop(ctx)
		if !ok {
			return
		}
		r.metrics.depth(q)
		// Escalations are logged and archived by process; nobody is
		// listening for the error on this path.
		_ = r.process(context.WithoutCancel(ctx), rec)
	}
}

func (r *Reconciler) submit(action Action, recs []*Record) {
	for _, rec := range recs {
		if rec == nil {
			continue
		}
		c := rec.Clone()
		c.Action = action
		c.resetRetry()
		if !r.enqueue(c) {
			r.logger.Error("Submission rejected, reconciler is closed",
				zap.String("action", string(action)),
				zap.String("kind", c.Kind),
				zap.String("id", c.ID.String()),
			)
			continue
		}
		r.logger.Debug("Record queued",
			zap.String("action", string(action)),
			zap.String("kind", c.Kind),
			zap.String("id", c.ID.String()),
		)
	}
}

func (r *Reconciler) apply(ctx context.Context, action Action, recs []*Record) error {
	// A caller that goes away must not turn a started attempt into an
	// escalation. The store's transaction timeout still bounds each attempt.
	ctx = context.WithoutCancel(ctx)
	var errs []error
	for _, rec := range recs {
		if rec == nil {
			continue
		}
		c := rec.Clone()
		c.Action = action
		c.resetRetry()
		if err := r.process(ctx, c); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (r *Reconciler) process(ctx context.Context, rec *Record) error {
	switch rec.Action {
	case ActionInsert:
		return r.insert(ctx, rec)
	case ActionMerge:
		return r.merge(ctx, rec)
	case ActionDelete:
		return r.delete(ctx, rec)
	default:
		return r.escalate(ctx, rec, FaultUnknown, fmt.Errorf("unknown action %q", rec.Action))
	}
}

func (r *Reconciler) queueFor(action Action) *Queue {
	if action == ActionInsert {
		return r.insertQ
	}
	return r.mergeQ
}

func (r *Reconciler) enqueue(rec *Record) bool {
	q := r.queueFor(rec.Action)
	ok := q.Push(rec)
	r.metrics.depth(q)
	return ok
}

// prepareFunc adjusts a record after its attempt was counted and before it
// is requeued.
type prepareFunc func(ctx context.Context, rec *Record) error

// retry counts the failed attempt, escalates at the ceiling, and otherwise
// requeues a fresh copy of rec targeting next.
func (r *Reconciler) retry(ctx context.Context, rec *Record, next Action, kind FaultKind, cause error, prepare prepareFunc) error {
	if r.policy.Fail(rec) {
		return r.escalate(ctx, rec, kind, cause)
	}
	rec.Delay = 0
	if prepare != nil {
		if err := prepare(ctx, rec); err != nil {
			if r.classify.Classify(err) == FaultUnknown {
				return r.escalate(ctx, rec, FaultUnknown, errors.Join(cause, err))
			}
			r.logger.Warn("Recovery step failed, retrying anyway",
				zap.String("kind", rec.Kind),
				zap.String("id", rec.ID.String()),
				zap.Error(err),
			)
		}
	}
	return r.requeue(ctx, rec, next, kind, cause)
}

func (r *Reconciler) requeue(ctx context.Context, rec *Record, next Action, kind FaultKind, cause error) error {
	from := rec.Action
	rec.Action = next
	if !r.enqueue(rec.Clone()) {
		return r.escalate(ctx, rec, kind, errors.Join(cause, ErrQueueClosed))
	}
	r.metrics.outcome(from, OutcomeRequeued)
	r.logger.Debug("Record requeued",
		zap.String("fault", string(kind)),
		zap.String("from", string(from)),
		zap.String("to", string(next)),
		zap.String("kind", rec.Kind),
		zap.String("id", rec.ID.String()),
		zap.Int("attempt", rec.Attempt),
		zap.Int("max_attempts", r.policy.MaxAttempts),
		zap.Duration("delay", rec.Delay),
	)
	return nil
}

// escalate gives up on rec: it logs, resets the retry state, archives the
// record and returns the error for the synchronous caller.
func (r *Reconciler) escalate(ctx context.Context, rec *Record, kind FaultKind, cause error) error {
	attempts := rec.Attempt
	rec.resetRetry()

	esc := &EscalationError{
		Record:   rec.Clone(),
		Action:   rec.Action,
		Kind:     kind,
		Attempts: attempts,
		Err:      cause,
	}

	r.metrics.outcome(rec.Action, OutcomeEscalated)
	r.logger.Error("Giving up on record",
		zap.String("action", string(rec.Action)),
		zap.String("kind", rec.Kind),
		zap.String("id", rec.ID.String()),
		zap.String("fault", string(kind)),
		zap.Int("attempt", attempts),
		zap.Int("max_attempts", r.policy.MaxAttempts),
		zap.Error(cause),
	)

	if r.sink != nil {
		if err := r.sink.Archive(ctx, esc); err != nil {
			r.logger.Error("Failed to archive escalated record",
				zap.String("id", rec.ID.String()),
				zap.Error(err),
			)
		}
	}
	return esc
}

func (r *Reconciler) succeed(rec *Record, msg string) error {
	rec.resetRetry()
	r.metrics.outcome(rec.Action, OutcomeSuccess)
	r.logger.Debug(msg,
		zap.String("kind", rec.Kind),
		zap.String("id", rec.ID.String()),
		zap.Int64("version", rec.Version),
		zap.Int64("revision", rec.Revision),
	)
	return nil
}

func (r *Reconciler) skip(rec *Record, stored int64) error {
	rec.resetRetry()
	r.metrics.outcome(rec.Action, OutcomeSkipped)
	r.logger.Debug("Record superseded by stored revision",
		zap.String("action", string(rec.Action)),
		zap.String("kind", rec.Kind),
		zap.String("id", rec.ID.String()),
		zap.Int64("revision", rec.Revision),
		zap.Int64("stored_revision", stored),
	)
	return nil
}

// withBackoff sets the record's delay from the retry policy.
func (r *Reconciler) withBackoff(_ context.Context, rec *Record) error {
	rec.Delay = r.policy.Delay(rec.Attempt)
	return nil
}

// refreshed runs the refresher hook, if any.
func (r *Reconciler) refreshed(ctx context.Context, rec *Record) error {
	if r.refresh == nil {
		return nil
	}
	return r.refresh(ctx, rec)
}

// chain runs several prepare steps in order, stopping at the first error.
func chain(steps ...prepareFunc) prepareFunc {
	return func(ctx context.Context, rec *Record) error {
		for _, step := range steps {
			if err := step(ctx, rec); err != nil {
				return err
			}
		}
		return nil
	}
}

func shortest(a, b time.Duration) time.Duration {
	switch {
	case a == 0:
		return b
	case b == 0:
		return a
	case a < b:
		return a
	default:
		return b
	}
}
