// Package database opens the relational store behind the reconciler.
//
// Connect wraps GORM for the two supported dialects. MySQL is the
// production target; SQLite (with foreign keys enabled) backs local runs
// and tests. Error translation is switched on so duplicate keys and
// foreign key violations arrive as gorm sentinels.
//
// # Schema Inspection
//
// GetTableColumns and MissingColumns read the live table definition. The
// migrate command uses them to verify the records table after migrating.
//
// # Usage
//
//	db, err := database.Connect(cfg.Database)
//	if err != nil {
//	    logger.Fatal("Database connection failed", zap.Error(err))
//	}
//
//	missing, err := database.MissingColumns(db, "persisted_records", []string{"version"})
package database
