package servicebus

import (
	"context"
	"database/sql"

	"github.com/coregx/servicebus/model"
)

// Transport defines the interface of a durable, FIFO, at-least-once queue store.
// Implementations are provided in the adapters package (adapters/memory, adapters/relica).
//
// All methods must be safe for concurrent use. Operations on a missing queue return an
// *Error with ErrCodeQueueNotFound.
type Transport interface {
	// Exists reports whether a queue is registered at path.
	Exists(ctx context.Context, path string) (bool, error)

	// Create registers a new queue. Returns ErrCodeQueueExists if path is taken.
	Create(ctx context.Context, path string, transactional bool) (*QueueHandle, error)

	// SetPermissions grants rights on the queue to a principal.
	SetPermissions(ctx context.Context, h *QueueHandle, principal string, rights model.AccessRights) error

	// Open returns a handle to an existing queue.
	// A second exclusive-read open of the same path fails with ErrCodeQueueLocked until Close.
	Open(ctx context.Context, path string, exclusiveRead, cacheConnection bool) (*QueueHandle, error)

	// Configure updates the mutable queue properties.
	Configure(ctx context.Context, h *QueueHandle, props QueueProperties) error

	// Peek blocks until the queue has a head message or ctx is done, and returns the
	// head without removing it.
	Peek(ctx context.Context, h *QueueHandle) (model.Message, error)

	// Receive removes and returns the head message. Returns ErrNoData if the queue is empty.
	Receive(ctx context.Context, h *QueueHandle) (model.Message, error)

	// Send appends a message to the queue using the given transaction mode.
	Send(ctx context.Context, h *QueueHandle, msg model.Message, mode TransactionMode) error

	// Refresh re-reads the queue registration into the handle.
	Refresh(ctx context.Context, h *QueueHandle) error

	// Close releases the handle (and its exclusive-read lock, if any).
	Close(ctx context.Context, h *QueueHandle) error
}

// QueueHandle is a reference to an opened transport queue.
// A handle is owned by the publisher or subscriber it was opened for.
type QueueHandle struct {
	Path            string // Full queue path
	Name            string // Short queue name, used for pattern routing
	Transactional   bool   // Sends run inside a transaction
	ExclusiveRead   bool   // Opened with the exclusive-read lock
	CacheConnection bool   // Transport may reuse its connection for this handle
	Label           string // Queue description
	MaxSizeKB       int64  // Maximum total body size, 0 means unlimited
}

// QueueProperties are the mutable properties of a queue.
type QueueProperties struct {
	Label     string
	MaxSizeKB int64
}

// TransactionMode selects how a send is committed.
type TransactionMode int

const (
	// TransactionNone sends without a transaction.
	TransactionNone TransactionMode = iota

	// TransactionSingle sends in a self-contained transaction.
	TransactionSingle

	// TransactionAmbient enlists the send in the transaction carried by the context.
	TransactionAmbient
)

func (m TransactionMode) String() string {
	switch m {
	case TransactionNone:
		return "none"
	case TransactionSingle:
		return "single"
	case TransactionAmbient:
		return "ambient"
	default:
		return "unknown"
	}
}

// Transaction is the subset of *sql.Tx a transport needs to enlist a send in an
// ambient transaction.
type Transaction interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

type transactionKey struct{}

// WithTransaction returns a context carrying tx as the ambient transaction.
//
// Example:
//
//	tx, _ := db.BeginTx(ctx, nil)
//	ctx = servicebus.WithTransaction(ctx, tx)
//	_ = publisher.Send(ctx, order) // enlisted in tx for transactional queues
//	_ = tx.Commit()
func WithTransaction(ctx context.Context, tx Transaction) context.Context {
	return context.WithValue(ctx, transactionKey{}, tx)
}

// TransactionFromContext returns the ambient transaction carried by ctx, if any.
func TransactionFromContext(ctx context.Context) (Transaction, bool) {
	tx, ok := ctx.Value(transactionKey{}).(Transaction)
	return tx, ok && tx != nil
}

// HasTransaction reports whether ctx carries an ambient transaction.
func HasTransaction(ctx context.Context) bool {
	_, ok := TransactionFromContext(ctx)
	return ok
}

// transactionModeFor picks the transaction mode of one send.
func transactionModeFor(ctx context.Context, h *QueueHandle, useAmbient bool) TransactionMode {
	if !h.Transactional {
		return TransactionNone
	}
	if useAmbient && HasTransaction(ctx) {
		return TransactionAmbient
	}
	return TransactionSingle
}
