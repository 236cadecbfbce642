package persist

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// fakeStore is an in-memory Store with scriptable faults. Each scripted
// error is returned by the next call of its operation, in order.
type fakeStore struct {
	mu     sync.Mutex
	rows   map[uuid.UUID]Record
	script map[string][]error
	calls  map[string]int
	// ctxAware makes Transact fail with ctx.Err() like a real driver.
	ctxAware bool
}

func newFakeStore(rows ...*Record) *fakeStore {
	s := &fakeStore{
		rows:   make(map[uuid.UUID]Record),
		script: make(map[string][]error),
		calls:  make(map[string]int),
	}
	for _, r := range rows {
		s.rows[r.ID] = *r.Clone()
	}
	return s
}

func (s *fakeStore) fail(op string, errs ...error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.script[op] = append(s.script[op], errs...)
}

func (s *fakeStore) get(id uuid.UUID) (Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rows[id]
	return r, ok
}

func (s *fakeStore) count(op string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[op]
}

func (s *fakeStore) Transact(ctx context.Context, fn func(tx Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ctxAware {
		if err := ctx.Err(); err != nil {
			return err
		}
	}

	snapshot := make(map[uuid.UUID]Record, len(s.rows))
	for k, v := range s.rows {
		snapshot[k] = v
	}
	if err := fn(&fakeTx{s: s}); err != nil {
		s.rows = snapshot
		return fmt.Errorf("transaction rolled back: %w", err)
	}
	return nil
}

type fakeTx struct {
	s *fakeStore
}

func (t *fakeTx) next(op string) error {
	t.s.calls[op]++
	errs := t.s.script[op]
	if len(errs) == 0 {
		return nil
	}
	t.s.script[op] = errs[1:]
	return errs[0]
}

func (t *fakeTx) Find(kind string, id uuid.UUID) (*Record, error) {
	if err := t.next("find"); err != nil {
		return nil, err
	}
	r, ok := t.s.rows[id]
	if !ok || r.Kind != kind {
		return nil, ErrNotFound
	}
	return r.Clone(), nil
}

func (t *fakeTx) CurrentVersion(id uuid.UUID) (int64, error) {
	if err := t.next("version"); err != nil {
		return 0, err
	}
	r, ok := t.s.rows[id]
	if !ok {
		return 0, ErrNotFound
	}
	return r.Version, nil
}

func (t *fakeTx) CurrentRevision(id uuid.UUID) (int64, error) {
	if err := t.next("revision"); err != nil {
		return 0, err
	}
	r, ok := t.s.rows[id]
	if !ok {
		return 0, ErrNotFound
	}
	return r.Revision, nil
}

func (t *fakeTx) Insert(rec *Record) error {
	if err := t.next("insert"); err != nil {
		return err
	}
	if _, ok := t.s.rows[rec.ID]; ok {
		return fmt.Errorf("insert %s: %w", rec.ID, ErrDuplicateKey)
	}
	if rec.ParentID != nil {
		if _, ok := t.s.rows[*rec.ParentID]; !ok {
			return ErrParentNotPersisted
		}
	}
	rec.Version = 1
	t.s.rows[rec.ID] = *rec.Clone()
	return nil
}

func (t *fakeTx) Merge(rec *Record) error {
	if err := t.next("merge"); err != nil {
		return err
	}
	stored, ok := t.s.rows[rec.ID]
	if !ok {
		return ErrNotFound
	}
	if stored.Version != rec.Version {
		return ErrVersionConflict
	}
	rec.Version++
	t.s.rows[rec.ID] = *rec.Clone()
	return nil
}

func (t *fakeTx) Remove(rec *Record) error {
	if err := t.next("remove"); err != nil {
		return err
	}
	stored, ok := t.s.rows[rec.ID]
	if !ok {
		return ErrNotFound
	}
	if stored.Version != rec.Version {
		return ErrVersionConflict
	}
	delete(t.s.rows, rec.ID)
	return nil
}

// recordingSink keeps every escalation it receives.
type recordingSink struct {
	mu   sync.Mutex
	escs []*EscalationError
}

func (s *recordingSink) Archive(_ context.Context, esc *EscalationError) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.escs = append(s.escs, esc)
	return nil
}

func (s *recordingSink) all() []*EscalationError {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*EscalationError(nil), s.escs...)
}

func (s *fakeStore) put(rec *Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows[rec.ID] = *rec.Clone()
}
