package model

import (
	"strings"
	"time"
)

// AccessRights is a set of rights granted to a principal on a queue.
type AccessRights int

const (
	// RightGenericRead allows peeking and receiving messages.
	RightGenericRead AccessRights = 1 << iota

	// RightGenericWrite allows sending messages.
	RightGenericWrite

	// RightFullControl allows everything, including reconfiguring the queue.
	RightFullControl
)

// Has reports whether r includes every right in other.
// Full control implies read and write.
func (r AccessRights) Has(other AccessRights) bool {
	if r&RightFullControl != 0 {
		return true
	}
	return r&other == other
}

func (r AccessRights) String() string {
	if r&RightFullControl != 0 {
		return "full-control"
	}

	var parts []string
	if r&RightGenericRead != 0 {
		parts = append(parts, "read")
	}
	if r&RightGenericWrite != 0 {
		parts = append(parts, "write")
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, "+")
}

// Permission is one access control entry of a queue.
type Permission struct {
	ID        int64        `json:"id" db:"id"`
	QueuePath string       `json:"queuePath" db:"queue_path"`
	Principal string       `json:"principal" db:"principal"`
	Rights    AccessRights `json:"rights" db:"rights"`
	CreatedAt time.Time    `json:"createdAt" db:"created_at"`
}

// TableName returns the database table name for Permission.
func (p Permission) TableName() string {
	return tablePrefix + "queue_permission"
}

// NewPermission creates an access control entry.
func NewPermission(queuePath, principal string, rights AccessRights) Permission {
	return Permission{
		QueuePath: queuePath,
		Principal: principal,
		Rights:    rights,
		CreatedAt: time.Now(),
	}
}
