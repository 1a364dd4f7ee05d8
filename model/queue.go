package model

import (
	"time"
)

// tablePrefix is the default prefix of all servicebus tables.
const tablePrefix = "servicebus_"

// Queue represents a queue registered with the transport.
//
// Path is the full queue address (for example `.\private$\orders`), Name is the short
// name used by publishers for pattern routing. Transactional is fixed at creation;
// Label and MaxSizeKB can be changed later through the transport.
//
// Business logic methods:
//   - CanAccept: Check whether a message fits into the remaining capacity
//   - Touch: Record a configuration change
type Queue struct {
	ID            int64     `json:"id" db:"id"`
	Path          string    `json:"path" db:"path"`
	Name          string    `json:"name" db:"name"`
	Transactional bool      `json:"transactional" db:"transactional"`
	Label         string    `json:"label" db:"label"`
	MaxSizeKB     int64     `json:"maxSizeKB" db:"max_size_kb"` // 0 means unlimited
	CreatedAt     time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt     time.Time `json:"updatedAt" db:"updated_at"`
}

// TableName returns the database table name for Queue.
func (q *Queue) TableName() string {
	return tablePrefix + "queue"
}

// NewQueue creates a queue registration for the given path.
//
// Parameters:
//   - path: Full queue path
//   - name: Short queue name derived from the path
//   - transactional: Whether sends to this queue run inside transactions
func NewQueue(path, name string, transactional bool) Queue {
	now := time.Now()

	return Queue{
		ID:            0,
		Path:          path,
		Name:          name,
		Transactional: transactional,
		Label:         "",
		MaxSizeKB:     0,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// CanAccept reports whether a message of messageBytes fits into the queue
// given usedBytes already stored. Queues without a size limit accept everything.
func (q *Queue) CanAccept(usedBytes, messageBytes int64) bool {
	if q.MaxSizeKB <= 0 {
		return true
	}
	return usedBytes+messageBytes <= q.MaxSizeKB*1024
}

// Touch records a configuration change.
func (q *Queue) Touch() {
	q.UpdatedAt = time.Now()
}

// Domain errors returned by Queue business logic methods.
var (
	// ErrQueueFull indicates the queue reached its configured maximum size.
	ErrQueueFull = DomainError{Code: "QUEUE_FULL", Message: "Queue maximum size exceeded"}
)

// DomainError represents a domain-level business rule violation.
type DomainError struct {
	Code    string // Error code for programmatic handling
	Message string // Human-readable error message
}

func (e DomainError) Error() string {
	return e.Message
}
