package gormstore

import (
	"portfolio-persist/core/persist"

	"github.com/go-sql-driver/mysql"
	"github.com/mattn/go-sqlite3"
	"gorm.io/gorm"
)

// MySQL server error numbers the reconciler reacts to.
const (
	mysqlDuplicateEntry     = 1062
	mysqlLockWaitTimeout    = 1205
	mysqlDeadlock           = 1213
	mysqlRowIsReferenced    = 1451
	mysqlNoReferencedRow    = 1452
	mysqlLockNowaitConflict = 3572
)

// Rules maps GORM sentinels and raw driver errors to fault kinds. Pass
// them to persist.NewClassifier.
func Rules() []persist.Rule {
	return []persist.Rule{
		persist.Is(gorm.ErrRecordNotFound, persist.FaultNotFound),
		persist.Is(gorm.ErrDuplicatedKey, persist.FaultDuplicateKey),
		persist.Is(gorm.ErrForeignKeyViolated, persist.FaultParentNotPersisted),
		persist.Is(gorm.ErrInvalidField, persist.FaultPropertyAccess),
		persist.Is(gorm.ErrInvalidValue, persist.FaultPropertyAccess),
		persist.Is(gorm.ErrInvalidData, persist.FaultPropertyAccess),
		mysqlRule,
		sqliteRule,
	}
}

func mysqlRule(err error) (persist.FaultKind, bool) {
	me, ok := err.(*mysql.MySQLError)
	if !ok {
		return "", false
	}
	switch me.Number {
	case mysqlDuplicateEntry:
		return persist.FaultDuplicateKey, true
	case mysqlNoReferencedRow, mysqlRowIsReferenced:
		return persist.FaultParentNotPersisted, true
	case mysqlLockWaitTimeout, mysqlDeadlock, mysqlLockNowaitConflict:
		return persist.FaultLockTimeout, true
	}
	return "", false
}

func sqliteRule(err error) (persist.FaultKind, bool) {
	var se sqlite3.Error
	switch e := err.(type) {
	case sqlite3.Error:
		se = e
	case *sqlite3.Error:
		se = *e
	default:
		return "", false
	}

	switch se.ExtendedCode {
	case sqlite3.ErrConstraintUnique, sqlite3.ErrConstraintPrimaryKey:
		return persist.FaultDuplicateKey, true
	case sqlite3.ErrConstraintForeignKey:
		return persist.FaultParentNotPersisted, true
	case sqlite3.ErrConstraintTrigger:
		// ON DELETE RESTRICT is enforced by an internal trigger, so a parent
		// that still has children fails here rather than with the FK code.
		// The table defines no triggers of its own. Same kind as MySQL 1451.
		return persist.FaultParentNotPersisted, true
	}
	switch se.Code {
	case sqlite3.ErrBusy, sqlite3.ErrLocked:
		return persist.FaultLockTimeout, true
	}
	return "", false
}
