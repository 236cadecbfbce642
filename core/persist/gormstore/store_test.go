package gormstore_test

import (
	"context"
	"errors"
	"testing"

	"portfolio-persist/core/database"
	"portfolio-persist/core/persist"
	"portfolio-persist/core/persist/gormstore"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func setupStore(t *testing.T) (*gormstore.Store, *gorm.DB) {
	t.Helper()
	db, err := database.Connect(database.Config{Driver: "sqlite", Name: ":memory:"})
	require.NoError(t, err)

	store := gormstore.New(db, 0)
	require.NoError(t, store.Migrate(context.Background()))
	return store, db
}

func newRecord() *persist.Record {
	return &persist.Record{
		Kind:     "position",
		ID:       uuid.New(),
		Revision: 1,
		Payload:  []byte(`{"qty":1}`),
	}
}

var classifier = persist.NewClassifier(gormstore.Rules()...)

func insert(t *testing.T, store *gormstore.Store, rec *persist.Record) {
	t.Helper()
	require.NoError(t, store.Transact(context.Background(), func(tx persist.Tx) error {
		return tx.Insert(rec)
	}))
}

func TestStore_InsertAndFind(t *testing.T) {
	store, _ := setupStore(t)
	ctx := context.Background()

	parent := newRecord()
	parent.Kind = "portfolio"
	insert(t, store, parent)
	assert.Equal(t, int64(1), parent.Version)

	child := newRecord()
	child.ParentID = &parent.ID
	child.Revision = 3
	insert(t, store, child)

	err := store.Transact(ctx, func(tx persist.Tx) error {
		got, err := tx.Find("position", child.ID)
		require.NoError(t, err)
		assert.Equal(t, child.ID, got.ID)
		assert.Equal(t, parent.ID, *got.ParentID)
		assert.Equal(t, int64(1), got.Version)
		assert.Equal(t, child.Payload, got.Payload)

		rev, err := tx.CurrentRevision(child.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(3), rev)

		ver, err := tx.CurrentVersion(child.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(1), ver)

		_, err = tx.Find("transaction", child.ID)
		assert.Equal(t, persist.FaultNotFound, classifier.Classify(err), "kind is part of the identity")
		return nil
	})
	require.NoError(t, err)
}

func TestStore_Faults(t *testing.T) {
	ctx := context.Background()

	t.Run("DuplicateKey", func(t *testing.T) {
		store, _ := setupStore(t)
		rec := newRecord()
		insert(t, store, rec)

		err := store.Transact(ctx, func(tx persist.Tx) error {
			return tx.Insert(rec.Clone())
		})
		assert.Equal(t, persist.FaultDuplicateKey, classifier.Classify(err))
	})

	t.Run("ParentNotPersisted", func(t *testing.T) {
		store, _ := setupStore(t)
		missing := uuid.New()
		rec := newRecord()
		rec.ParentID = &missing

		err := store.Transact(ctx, func(tx persist.Tx) error {
			return tx.Insert(rec)
		})
		assert.Equal(t, persist.FaultParentNotPersisted, classifier.Classify(err))
	})

	t.Run("VersionConflict", func(t *testing.T) {
		store, _ := setupStore(t)
		rec := newRecord()
		insert(t, store, rec)

		stale := rec.Clone()
		stale.Version = 0
		stale.Revision = 2
		err := store.Transact(ctx, func(tx persist.Tx) error {
			return tx.Merge(stale)
		})
		assert.Equal(t, persist.FaultVersionConflict, classifier.Classify(err))
	})

	t.Run("NotFound", func(t *testing.T) {
		store, _ := setupStore(t)
		rec := newRecord()
		rec.Version = 1

		err := store.Transact(ctx, func(tx persist.Tx) error {
			return tx.Merge(rec)
		})
		assert.Equal(t, persist.FaultNotFound, classifier.Classify(err))

		err = store.Transact(ctx, func(tx persist.Tx) error {
			_, err := tx.CurrentRevision(rec.ID)
			return err
		})
		assert.Equal(t, persist.FaultNotFound, classifier.Classify(err))
	})

	t.Run("Detached", func(t *testing.T) {
		store, _ := setupStore(t)
		rec := newRecord()
		insert(t, store, rec)

		detached := rec.Clone()
		detached.Version = 0
		err := store.Transact(ctx, func(tx persist.Tx) error {
			return tx.Remove(detached)
		})
		assert.Equal(t, persist.FaultDetached, classifier.Classify(err))
	})

	t.Run("ReferencedParent", func(t *testing.T) {
		store, _ := setupStore(t)
		parent := newRecord()
		parent.Kind = "portfolio"
		insert(t, store, parent)

		child := newRecord()
		child.ParentID = &parent.ID
		insert(t, store, child)

		err := store.Transact(ctx, func(tx persist.Tx) error {
			return tx.Remove(parent)
		})
		require.Error(t, err)
		// Matches MySQL 1451 so both drivers retry with a refresh.
		assert.Equal(t, persist.FaultParentNotPersisted, classifier.Classify(err))

		err = store.Transact(ctx, func(tx persist.Tx) error {
			_, err := tx.Find(parent.Kind, parent.ID)
			return err
		})
		assert.NoError(t, err, "the parent row survives the rejected delete")
	})
}

func TestStore_MergeAndRemove(t *testing.T) {
	store, _ := setupStore(t)
	ctx := context.Background()
	rec := newRecord()
	insert(t, store, rec)

	rec.Revision = 2
	rec.Payload = []byte(`{"qty":2}`)
	require.NoError(t, store.Transact(ctx, func(tx persist.Tx) error {
		return tx.Merge(rec)
	}))
	assert.Equal(t, int64(2), rec.Version)

	require.NoError(t, store.Transact(ctx, func(tx persist.Tx) error {
		return tx.Remove(rec)
	}))

	err := store.Transact(ctx, func(tx persist.Tx) error {
		_, err := tx.Find(rec.Kind, rec.ID)
		return err
	})
	assert.True(t, errors.Is(err, gorm.ErrRecordNotFound))
}

func TestStore_TransactRollsBack(t *testing.T) {
	store, _ := setupStore(t)
	ctx := context.Background()
	rec := newRecord()
	boom := errors.New("boom")

	err := store.Transact(ctx, func(tx persist.Tx) error {
		require.NoError(t, tx.Insert(rec))
		return boom
	})
	assert.ErrorIs(t, err, boom)

	err = store.Transact(ctx, func(tx persist.Tx) error {
		_, err := tx.Find(rec.Kind, rec.ID)
		return err
	})
	assert.Equal(t, persist.FaultNotFound, classifier.Classify(err))
}

func TestStore_Verify(t *testing.T) {
	store, db := setupStore(t)
	assert.NoError(t, store.Verify(context.Background()))

	require.NoError(t, db.Exec("ALTER TABLE persisted_records DROP COLUMN revision").Error)
	assert.ErrorContains(t, store.Verify(context.Background()), "revision")
}

func TestStore_WithReconciler(t *testing.T) {
	ctx := context.Background()
	cfg := persist.Config{MaxAttempts: 5, InsertWorkers: 1, MergeWorkers: 1}

	t.Run("DuplicateInsertBecomesNoop", func(t *testing.T) {
		store, _ := setupStore(t)
		rec := newRecord()
		rec.Revision = 3
		insert(t, store, rec.Clone())

		r := persist.New(store, cfg, nil, persist.WithClassifier(classifier))
		require.NoError(t, r.PersistEntities(ctx, rec))
		require.NoError(t, r.Drain(ctx))
		assert.Equal(t, persist.QueueStats{}, r.Stats())
	})

	t.Run("StaleVersionIsRestored", func(t *testing.T) {
		store, _ := setupStore(t)
		rec := newRecord()
		insert(t, store, rec)
		for i := 0; i < 3; i++ {
			rec.Revision++
			require.NoError(t, store.Transact(ctx, func(tx persist.Tx) error {
				return tx.Merge(rec)
			}))
		}
		require.Equal(t, int64(4), rec.Version)

		update := rec.Clone()
		update.Version = 3
		update.Revision = 10
		update.Payload = []byte(`{"qty":99}`)

		r := persist.New(store, cfg, nil, persist.WithClassifier(classifier))
		require.NoError(t, r.MergeEntities(ctx, update))
		require.NoError(t, r.Drain(ctx))

		require.NoError(t, store.Transact(ctx, func(tx persist.Tx) error {
			got, err := tx.Find(rec.Kind, rec.ID)
			require.NoError(t, err)
			assert.Equal(t, int64(5), got.Version)
			assert.Equal(t, int64(10), got.Revision)
			assert.Equal(t, update.Payload, got.Payload)
			return nil
		}))
	})

	t.Run("DeleteAbsentRecord", func(t *testing.T) {
		store, _ := setupStore(t)
		r := persist.New(store, cfg, nil, persist.WithClassifier(classifier))
		assert.NoError(t, r.DeleteEntities(ctx, newRecord()))
	})
}
