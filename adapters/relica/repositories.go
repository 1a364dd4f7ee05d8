package relica

import (
	"database/sql"
)

// Repositories holds the repositories backing a Transport.
type Repositories struct {
	Queue      *QueueRepository
	Message    *MessageRepository
	Permission *PermissionRepository
}

// NewRepositories creates all repository implementations using Relica.
//
// The db parameter should be an *sql.DB connected to MySQL, PostgreSQL, or SQLite.
// The driverName should be "mysql", "postgres", or "sqlite3".
// The table prefix defaults to servicebus.DefaultTablePrefix.
func NewRepositories(db *sql.DB, driverName string) *Repositories {
	return &Repositories{
		Queue:      NewQueueRepository(db, driverName),
		Message:    NewMessageRepository(db, driverName),
		Permission: NewPermissionRepository(db, driverName),
	}
}

// NewRepositoriesWithPrefix creates all repository implementations with a custom table prefix.
func NewRepositoriesWithPrefix(db *sql.DB, driverName, prefix string) *Repositories {
	return &Repositories{
		Queue:      NewQueueRepositoryWithPrefix(db, driverName, prefix),
		Message:    NewMessageRepositoryWithPrefix(db, driverName, prefix),
		Permission: NewPermissionRepositoryWithPrefix(db, driverName, prefix),
	}
}

// aggregateRow receives a single aggregate column aliased as n.
// Relica scans into structs only.
type aggregateRow struct {
	N int64 `db:"n"`
}
