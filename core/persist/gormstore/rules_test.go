package gormstore_test

import (
	"context"
	"fmt"
	"regexp"
	"testing"

	"portfolio-persist/core/persist"
	"portfolio-persist/core/persist/gormstore"

	"github.com/DATA-DOG/go-sqlmock"
	mysqldriver "github.com/go-sql-driver/mysql"
	"github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
)

func setupMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("Failed to open mock sql db: %v", err)
	}

	dialector := mysql.New(mysql.Config{
		Conn:                      db,
		SkipInitializeWithVersion: true,
	})

	gormDB, err := gorm.Open(dialector, &gorm.Config{})
	if err != nil {
		t.Fatalf("Failed to open gorm db: %v", err)
	}
	return gormDB, mock
}

func TestRules_MySQLErrorNumbers(t *testing.T) {
	tests := []struct {
		number uint16
		want   persist.FaultKind
	}{
		{1062, persist.FaultDuplicateKey},
		{1452, persist.FaultParentNotPersisted},
		{1451, persist.FaultParentNotPersisted},
		{1205, persist.FaultLockTimeout},
		{1213, persist.FaultLockTimeout},
		{3572, persist.FaultLockTimeout},
		{1146, persist.FaultUnknown},
	}
	c := persist.NewClassifier(gormstore.Rules()...)

	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.number), func(t *testing.T) {
			err := fmt.Errorf("exec: %w", &mysqldriver.MySQLError{Number: tt.number, Message: "test"})
			assert.Equal(t, tt.want, c.Classify(err))
		})
	}
}

func TestRules_SQLiteCodes(t *testing.T) {
	c := persist.NewClassifier(gormstore.Rules()...)

	assert.Equal(t, persist.FaultDuplicateKey, c.Classify(sqlite3.Error{Code: sqlite3.ErrConstraint, ExtendedCode: sqlite3.ErrConstraintUnique}))
	assert.Equal(t, persist.FaultDuplicateKey, c.Classify(&sqlite3.Error{Code: sqlite3.ErrConstraint, ExtendedCode: sqlite3.ErrConstraintPrimaryKey}))
	assert.Equal(t, persist.FaultParentNotPersisted, c.Classify(sqlite3.Error{Code: sqlite3.ErrConstraint, ExtendedCode: sqlite3.ErrConstraintForeignKey}))
	assert.Equal(t, persist.FaultParentNotPersisted, c.Classify(sqlite3.Error{Code: sqlite3.ErrConstraint, ExtendedCode: sqlite3.ErrConstraintTrigger}))
	assert.Equal(t, persist.FaultLockTimeout, c.Classify(fmt.Errorf("commit: %w", sqlite3.Error{Code: sqlite3.ErrBusy})))
	assert.Equal(t, persist.FaultLockTimeout, c.Classify(sqlite3.Error{Code: sqlite3.ErrLocked}))
	assert.Equal(t, persist.FaultUnknown, c.Classify(sqlite3.Error{Code: sqlite3.ErrIoErr}))
}

func TestRules_GormSentinels(t *testing.T) {
	c := persist.NewClassifier(gormstore.Rules()...)

	assert.Equal(t, persist.FaultNotFound, c.Classify(gorm.ErrRecordNotFound))
	assert.Equal(t, persist.FaultDuplicateKey, c.Classify(fmt.Errorf("insert: %w", gorm.ErrDuplicatedKey)))
	assert.Equal(t, persist.FaultParentNotPersisted, c.Classify(gorm.ErrForeignKeyViolated))
	assert.Equal(t, persist.FaultPropertyAccess, c.Classify(gorm.ErrInvalidField))
}

func TestStore_MySQLLockWaitTimeout(t *testing.T) {
	gormDB, mock := setupMockDB(t)
	store := gormstore.New(gormDB, 0)
	c := persist.NewClassifier(gormstore.Rules()...)
	rec := newRecord()
	rec.Version = 2

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE `persisted_records` SET")).
		WillReturnError(&mysqldriver.MySQLError{Number: 1205, Message: "Lock wait timeout exceeded"})
	mock.ExpectRollback()

	err := store.Transact(context.Background(), func(tx persist.Tx) error {
		return tx.Merge(rec)
	})
	assert.Equal(t, persist.FaultLockTimeout, c.Classify(err))
	assert.Equal(t, int64(2), rec.Version)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_MySQLVersionMiss(t *testing.T) {
	gormDB, mock := setupMockDB(t)
	store := gormstore.New(gormDB, 0)
	rec := newRecord()
	rec.Version = 2

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM `persisted_records` WHERE")).
		WithArgs(rec.ID.String(), int64(2)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT count(*) FROM `persisted_records`")).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectRollback()

	err := store.Transact(context.Background(), func(tx persist.Tx) error {
		return tx.Remove(rec)
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, persist.ErrVersionConflict)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_MySQLDuplicateInsert(t *testing.T) {
	gormDB, mock := setupMockDB(t)
	store := gormstore.New(gormDB, 0)
	c := persist.NewClassifier(gormstore.Rules()...)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO `persisted_records`")).
		WillReturnError(&mysqldriver.MySQLError{Number: 1062, Message: "Duplicate entry"})
	mock.ExpectRollback()

	err := store.Transact(context.Background(), func(tx persist.Tx) error {
		return tx.Insert(newRecord())
	})
	assert.Equal(t, persist.FaultDuplicateKey, c.Classify(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}
