// Package database provides SQLite connectivity for Conductor Core.
//
// It manages the connection (WAL mode, busy timeout, single-writer pool),
// schema migrations embedded into the binary, and health checks. Conductor
// uses the database for the run outcome log and the terminal execution
// archive; live execution state never touches disk.
//
// All queries use parameterised statements, and the database file is
// restricted to owner read/write.
//
// Usage:
//
//	db, err := database.Open(database.Config{Path: cfg.Database.Path, WALMode: true, BusyTimeout: 5})
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    return err
//	}
package database
