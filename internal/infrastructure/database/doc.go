// Package database provides SQLite connectivity for the netpulse sample
// history store.
//
// This package manages:
//   - Connection setup with WAL mode and a busy timeout
//   - Forward and rollback schema migrations read from an fs.FS
//   - Health checks
//
// Usage:
//
//	db, err := database.Open(ctx, database.Config{Path: cfg.Database.Path, WALMode: true})
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx, migrations.FS); err != nil {
//	    return err
//	}
//
// Migration files are named YYYYMMDD_HHMMSS_description.up.sql with an
// optional matching .down.sql.
package database
