// Package database provides the SQLite store backing devagent's actuator
// journal.
//
// This package manages:
//   - Opening the database file with WAL mode and a busy timeout
//   - Applying embedded schema migrations in version order
//
// The journal is optional (database.enabled). Nothing in the connectivity
// loop depends on it, so a slow or failed write never blocks reconnection.
//
// Usage:
//
//	db, err := database.Open(cfg.Database)
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    return err
//	}
package database
