// Package relica provides a SQL implementation of servicebus.Transport using the Relica
// query builder.
//
// Relica (github.com/coregx/relica) is a lightweight, type-safe database query builder
// for Go with zero production dependencies.
//
// The transport is built from three repositories, one per table:
//   - QueueRepository: queue registrations (path, transactional flag, label, size limit)
//   - MessageRepository: queued messages, read back in ID order
//   - PermissionRepository: access control entries granted at queue creation
//
// Tables are created by servicebus.ApplyMigrations and share a configurable prefix.
//
// Example usage:
//
//	import (
//	    "database/sql"
//	    "github.com/coregx/servicebus"
//	    "github.com/coregx/servicebus/adapters/relica"
//	    _ "github.com/go-sql-driver/mysql"
//	)
//
//	// Open database connection
//	db, err := sql.Open("mysql", "user:pass@tcp(localhost:3306)/servicebus?parseTime=true")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	// Create tables (driverName should be "mysql", "postgres", or "sqlite3")
//	if err := servicebus.ApplyMigrations(ctx, db, "mysql", ""); err != nil {
//	    log.Fatal(err)
//	}
//
//	transport, err := relica.NewTransport(db, "mysql")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	publisher, err := servicebus.NewPublisher[OrderPlaced](ctx, transport, "orders")
package relica
