package gormstore

import (
	"context"
	"fmt"
	"time"

	"portfolio-persist/core/database"
	"portfolio-persist/core/persist"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Store implements persist.Store on a GORM connection.
type Store struct {
	db      *gorm.DB
	timeout time.Duration
}

// New wraps db. Every transaction is bounded by timeout.
func New(db *gorm.DB, timeout time.Duration) *Store {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Store{db: db, timeout: timeout}
}

// Transact runs fn in a database transaction. fn's error is returned
// as-is so the classifier sees the full chain.
func (s *Store) Transact(ctx context.Context, fn func(tx persist.Tx) error) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&txn{db: tx})
	})
}

// Migrate creates or updates the records table.
func (s *Store) Migrate(ctx context.Context) error {
	if err := s.db.WithContext(ctx).AutoMigrate(&recordRow{}); err != nil {
		return fmt.Errorf("failed to migrate %s: %w", TableName, err)
	}
	return nil
}

// Verify checks that the records table has every expected column.
func (s *Store) Verify(ctx context.Context) error {
	missing, err := database.MissingColumns(s.db.WithContext(ctx), TableName, Columns)
	if err != nil {
		return err
	}
	if len(missing) > 0 {
		return fmt.Errorf("table %s is missing columns %v", TableName, missing)
	}
	return nil
}

type txn struct {
	db *gorm.DB
}

func (t *txn) Find(kind string, id uuid.UUID) (*persist.Record, error) {
	var row recordRow
	err := t.db.Where("id = ? AND kind = ?", id.String(), kind).Take(&row).Error
	if err != nil {
		return nil, fmt.Errorf("find %s %s: %w", kind, id, err)
	}
	return row.toRecord()
}

func (t *txn) CurrentVersion(id uuid.UUID) (int64, error) {
	return t.column(id, "version")
}

func (t *txn) CurrentRevision(id uuid.UUID) (int64, error) {
	return t.column(id, "revision")
}

func (t *txn) column(id uuid.UUID, name string) (int64, error) {
	var values []int64
	err := t.db.Model(&recordRow{}).Where("id = ?", id.String()).Pluck(name, &values).Error
	if err != nil {
		return 0, fmt.Errorf("read %s of %s: %w", name, id, err)
	}
	if len(values) == 0 {
		return 0, fmt.Errorf("read %s of %s: %w", name, id, gorm.ErrRecordNotFound)
	}
	return values[0], nil
}

func (t *txn) Insert(rec *persist.Record) error {
	row := toRow(rec)
	row.Version = 1
	if err := t.db.Omit(clause.Associations).Create(&row).Error; err != nil {
		return fmt.Errorf("insert %s: %w", rec, err)
	}
	rec.Version = row.Version
	return nil
}

func (t *txn) Merge(rec *persist.Record) error {
	row := toRow(rec)
	res := t.db.Model(&recordRow{}).
		Where("id = ? AND version = ?", row.ID, rec.Version).
		Updates(map[string]any{
			"kind":      row.Kind,
			"parent_id": row.ParentID,
			"revision":  row.Revision,
			"payload":   row.Payload,
			"version":   gorm.Expr("version + 1"),
		})
	if res.Error != nil {
		return fmt.Errorf("merge %s: %w", rec, res.Error)
	}
	if res.RowsAffected == 0 {
		return t.missed("merge", rec)
	}
	rec.Version++
	return nil
}

func (t *txn) Remove(rec *persist.Record) error {
	if rec.Version == 0 {
		return fmt.Errorf("remove %s: %w", rec, persist.ErrDetached)
	}
	res := t.db.Where("id = ? AND version = ?", rec.ID.String(), rec.Version).Delete(&recordRow{})
	if res.Error != nil {
		return fmt.Errorf("remove %s: %w", rec, res.Error)
	}
	if res.RowsAffected == 0 {
		return t.missed("remove", rec)
	}
	return nil
}

// missed explains why a versioned write touched no row.
func (t *txn) missed(op string, rec *persist.Record) error {
	var n int64
	if err := t.db.Model(&recordRow{}).Where("id = ?", rec.ID.String()).Count(&n).Error; err != nil {
		return fmt.Errorf("%s %s: %w", op, rec, err)
	}
	if n == 0 {
		return fmt.Errorf("%s %s: %w", op, rec, persist.ErrNotFound)
	}
	return fmt.Errorf("%s %s at version %d: %w", op, rec, rec.Version, persist.ErrVersionConflict)
}

var _ persist.Store = (*Store)(nil)
