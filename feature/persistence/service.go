package persistence

import (
	"context"
	"errors"
	"fmt"

	"portfolio-persist/core/deadletter"
	"portfolio-persist/core/persist"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	// ErrRecordNotFound is returned when the store has no such record.
	ErrRecordNotFound = errors.New("record not found")
	// ErrInvalidSubmission is returned for a malformed submission.
	ErrInvalidSubmission = errors.New("invalid submission")
	// ErrNoArchive is returned when dead-letter storage is not configured.
	ErrNoArchive = errors.New("dead-letter archive not configured")
)

// Reconciler is the part of persist.Reconciler the service drives.
type Reconciler interface {
	Persist(recs ...*persist.Record)
	Merge(recs ...*persist.Record)
	Delete(recs ...*persist.Record)
	PersistEntities(ctx context.Context, recs ...*persist.Record) error
	MergeEntities(ctx context.Context, recs ...*persist.Record) error
	DeleteEntities(ctx context.Context, recs ...*persist.Record) error
	Stats() persist.QueueStats
}

// Service exposes the reconciler and the store to HTTP and CLI callers.
type Service struct {
	reconciler Reconciler
	store      persist.Store
	classify   *persist.Classifier
	archive    *deadletter.Archive
	logger     *zap.Logger
}

// NewService creates the service. archive may be nil.
func NewService(r Reconciler, store persist.Store, classify *persist.Classifier, archive *deadletter.Archive, logger *zap.Logger) *Service {
	if classify == nil {
		classify = persist.NewClassifier()
	}
	return &Service{
		reconciler: r,
		store:      store,
		classify:   classify,
		archive:    archive,
		logger:     logger,
	}
}

// Submission is one record handed to the reconciler.
type Submission struct {
	Action persist.Action  `json:"action"`
	Record *persist.Record `json:"record"`
	// Sync makes the first attempt before returning.
	Sync bool `json:"sync"`
}

// Validate checks the submission before it reaches the reconciler.
func (s Submission) Validate() error {
	if !s.Action.Valid() {
		return fmt.Errorf("%w: unknown action %q", ErrInvalidSubmission, s.Action)
	}
	if s.Record == nil {
		return fmt.Errorf("%w: record is required", ErrInvalidSubmission)
	}
	if s.Record.Kind == "" {
		return fmt.Errorf("%w: record kind is required", ErrInvalidSubmission)
	}
	if s.Record.ID == uuid.Nil {
		return fmt.Errorf("%w: record id is required", ErrInvalidSubmission)
	}
	return nil
}

// Submit hands the record to the reconciler. For a synchronous submission
// the returned error carries any *persist.EscalationError.
func (s *Service) Submit(ctx context.Context, sub Submission) error {
	if err := sub.Validate(); err != nil {
		return err
	}

	if sub.Sync {
		switch sub.Action {
		case persist.ActionInsert:
			return s.reconciler.PersistEntities(ctx, sub.Record)
		case persist.ActionMerge:
			return s.reconciler.MergeEntities(ctx, sub.Record)
		default:
			return s.reconciler.DeleteEntities(ctx, sub.Record)
		}
	}

	switch sub.Action {
	case persist.ActionInsert:
		s.reconciler.Persist(sub.Record)
	case persist.ActionMerge:
		s.reconciler.Merge(sub.Record)
	default:
		s.reconciler.Delete(sub.Record)
	}
	return nil
}

// Find loads the stored state of a record.
func (s *Service) Find(ctx context.Context, kind string, id uuid.UUID) (*persist.Record, error) {
	var rec *persist.Record
	err := s.store.Transact(ctx, func(tx persist.Tx) error {
		found, err := tx.Find(kind, id)
		if err != nil {
			return err
		}
		rec = found
		return nil
	})
	if err != nil {
		if s.classify.Classify(err) == persist.FaultNotFound {
			return nil, ErrRecordNotFound
		}
		return nil, err
	}
	return rec, nil
}

// Status is a snapshot of the reconciler.
type Status struct {
	Queues      persist.QueueStats `json:"queues"`
	DeadLetters *int               `json:"dead_letters,omitempty"`
}

// Status reports queue depths and, if the archive is configured, the
// number of dead letters.
func (s *Service) Status(ctx context.Context) (*Status, error) {
	status := &Status{Queues: s.reconciler.Stats()}
	if s.archive == nil {
		return status, nil
	}
	objs, err := s.archive.List(ctx, "")
	if err != nil {
		return status, err
	}
	n := len(objs)
	status.DeadLetters = &n
	return status, nil
}

// DeadLetters lists archived escalations of kind (all kinds if empty).
func (s *Service) DeadLetters(ctx context.Context, kind string) ([]deadletter.Object, error) {
	if s.archive == nil {
		return nil, ErrNoArchive
	}
	return s.archive.List(ctx, kind)
}

// Replay resubmits an archived record synchronously with its original
// action and removes the archive entry.
func (s *Service) Replay(ctx context.Context, key string) error {
	if s.archive == nil {
		return ErrNoArchive
	}
	entry, err := s.archive.Load(ctx, key)
	if err != nil {
		return err
	}

	action := entry.Action
	if !action.Valid() {
		action = entry.Record.Action
	}

	s.logger.Info("Replaying dead letter",
		zap.String("key", key),
		zap.String("action", string(action)),
		zap.String("kind", entry.Record.Kind),
		zap.String("id", entry.Record.ID.String()),
	)

	err = s.Submit(ctx, Submission{Action: action, Record: entry.Record, Sync: true})
	var esc *persist.EscalationError
	if err != nil && !errors.As(err, &esc) {
		return fmt.Errorf("replay of %s failed: %w", key, err)
	}
	// A repeated escalation has already been archived under a new key.
	if rerr := s.archive.Remove(ctx, key); rerr != nil {
		return errors.Join(err, rerr)
	}
	if err != nil {
		return fmt.Errorf("replay of %s escalated again: %w", key, err)
	}
	return nil
}
