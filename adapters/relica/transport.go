package relica

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/coregx/servicebus"
	"github.com/coregx/servicebus/model"
)

var _ servicebus.Transport = (*Transport)(nil)

// Default polling schedule of Peek on an empty queue.
const (
	DefaultPollInterval    = 50 * time.Millisecond
	DefaultMaxPollInterval = 2 * time.Second
)

// Transport implements servicebus.Transport on a SQL database through Relica.
//
// Queues, messages and access control entries live in three tables created by
// servicebus.ApplyMigrations. Peek polls the message table with an exponential
// backoff capped at the maximum poll interval.
//
// Exclusive-read locks are held in process memory. Two processes opening the same
// queue for exclusive read are not detected.
//
// Thread safety: Safe for concurrent use.
type Transport struct {
	sqlDB           *sql.DB
	driverName      string
	tablePrefix     string
	pollInterval    time.Duration
	maxPollInterval time.Duration
	logger          servicebus.Logger
	repos           *Repositories

	mu    sync.Mutex
	locks map[string]struct{}
}

// Option configures a Transport.
type Option func(*Transport) error

// WithTablePrefix sets the prefix of the servicebus tables.
// Default: servicebus.DefaultTablePrefix.
func WithTablePrefix(prefix string) Option {
	return func(t *Transport) error {
		if strings.TrimSpace(prefix) == "" {
			return fmt.Errorf("table prefix cannot be empty")
		}
		t.tablePrefix = prefix
		return nil
	}
}

// WithPollInterval sets the first and the maximum delay between polls of an empty queue.
func WithPollInterval(interval, maxInterval time.Duration) Option {
	return func(t *Transport) error {
		if interval <= 0 {
			return fmt.Errorf("poll interval must be positive, got %v", interval)
		}
		if maxInterval < interval {
			return fmt.Errorf("max poll interval %v is shorter than poll interval %v", maxInterval, interval)
		}
		t.pollInterval = interval
		t.maxPollInterval = maxInterval
		return nil
	}
}

// WithLogger sets the logger instance for the transport.
func WithLogger(logger servicebus.Logger) Option {
	return func(t *Transport) error {
		if logger == nil {
			return fmt.Errorf("logger cannot be nil")
		}
		t.logger = logger
		return nil
	}
}

// NewTransport creates a SQL transport on an open database.
//
// Parameters:
//   - sqlDB: Open database connection
//   - driverName: "mysql", "postgres" or "sqlite3"
//   - opts: Transport options
//
// Example:
//
//	db, _ := sql.Open("sqlite3", "servicebus.db?_busy_timeout=5000")
//	_ = servicebus.ApplyMigrations(ctx, db, "sqlite3", "")
//	transport, err := relica.NewTransport(db, "sqlite3")
func NewTransport(sqlDB *sql.DB, driverName string, opts ...Option) (*Transport, error) {
	if sqlDB == nil {
		return nil, servicebus.NewError(servicebus.ErrCodeConfiguration, "database is required")
	}

	switch driverName {
	case "mysql", "postgres", "sqlite3":
	default:
		return nil, servicebus.NewError(servicebus.ErrCodeConfiguration,
			fmt.Sprintf("unsupported database driver: %s", driverName))
	}

	t := &Transport{
		sqlDB:           sqlDB,
		driverName:      driverName,
		tablePrefix:     servicebus.DefaultTablePrefix,
		pollInterval:    DefaultPollInterval,
		maxPollInterval: DefaultMaxPollInterval,
		logger:          &servicebus.NoopLogger{},
		locks:           make(map[string]struct{}),
	}

	for _, opt := range opts {
		if err := opt(t); err != nil {
			return nil, servicebus.NewErrorWithCause(servicebus.ErrCodeConfiguration, "failed to apply transport option", err)
		}
	}

	t.repos = NewRepositoriesWithPrefix(sqlDB, driverName, t.tablePrefix)
	return t, nil
}

// Repositories returns the repositories backing the transport.
func (t *Transport) Repositories() *Repositories {
	return t.repos
}

func (t *Transport) load(ctx context.Context, path string) (model.Queue, error) {
	q, err := t.repos.Queue.FindByPath(ctx, path)
	if servicebus.IsNoData(err) {
		return q, servicebus.NewError(servicebus.ErrCodeQueueNotFound, fmt.Sprintf("unable to locate queue: %s", path))
	}
	return q, err
}

func handleFor(q model.Queue, exclusiveRead, cacheConnection bool) *servicebus.QueueHandle {
	return &servicebus.QueueHandle{
		Path:            q.Path,
		Name:            q.Name,
		Transactional:   q.Transactional,
		ExclusiveRead:   exclusiveRead,
		CacheConnection: cacheConnection,
		Label:           q.Label,
		MaxSizeKB:       q.MaxSizeKB,
	}
}

// Exists implements servicebus.Transport.Exists.
func (t *Transport) Exists(ctx context.Context, path string) (bool, error) {
	return t.repos.Queue.Exists(ctx, path)
}

// Create implements servicebus.Transport.Create.
func (t *Transport) Create(ctx context.Context, path string, transactional bool) (*servicebus.QueueHandle, error) {
	exists, err := t.repos.Queue.Exists(ctx, path)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, servicebus.NewError(servicebus.ErrCodeQueueExists, fmt.Sprintf("queue already exists: %s", path))
	}

	q, err := t.repos.Queue.Save(ctx, model.NewQueue(path, servicebus.QueueNameFromPath(path), transactional))
	if err != nil {
		return nil, err
	}

	t.logger.Debugf("Queue created: path=%s, transactional=%t", q.Path, q.Transactional)
	return handleFor(q, false, false), nil
}

// SetPermissions implements servicebus.Transport.SetPermissions.
func (t *Transport) SetPermissions(ctx context.Context, h *servicebus.QueueHandle, principal string, rights model.AccessRights) error {
	q, err := t.load(ctx, h.Path)
	if err != nil {
		return err
	}

	_, err = t.repos.Permission.Save(ctx, model.NewPermission(q.Path, principal, rights))
	return err
}

// Permissions returns the access control entries of the queue at path.
func (t *Transport) Permissions(ctx context.Context, path string) ([]model.Permission, error) {
	q, err := t.load(ctx, path)
	if err != nil {
		return nil, err
	}
	return t.repos.Permission.FindByQueuePath(ctx, q.Path)
}

// Open implements servicebus.Transport.Open.
func (t *Transport) Open(ctx context.Context, path string, exclusiveRead, cacheConnection bool) (*servicebus.QueueHandle, error) {
	q, err := t.load(ctx, path)
	if err != nil {
		return nil, err
	}

	if exclusiveRead {
		t.mu.Lock()
		defer t.mu.Unlock()

		key := strings.ToLower(q.Path)
		if _, locked := t.locks[key]; locked {
			return nil, servicebus.NewError(servicebus.ErrCodeQueueLocked,
				fmt.Sprintf("queue %s is already opened for exclusive read", q.Path))
		}
		t.locks[key] = struct{}{}
	}

	return handleFor(q, exclusiveRead, cacheConnection), nil
}

// Configure implements servicebus.Transport.Configure.
func (t *Transport) Configure(ctx context.Context, h *servicebus.QueueHandle, props servicebus.QueueProperties) error {
	q, err := t.load(ctx, h.Path)
	if err != nil {
		return err
	}

	if err := t.repos.Queue.UpdateProperties(ctx, q.ID, props.Label, props.MaxSizeKB); err != nil {
		return err
	}

	h.Label = props.Label
	h.MaxSizeKB = props.MaxSizeKB
	return nil
}

// errEmpty marks an empty poll so it can be retried.
var errEmpty = errors.New("queue is empty")

// Peek implements servicebus.Transport.Peek.
// Polls until the queue has a head message or ctx is done.
func (t *Transport) Peek(ctx context.Context, h *servicebus.QueueHandle) (model.Message, error) {
	backoff := retry.WithCappedDuration(t.maxPollInterval, retry.NewExponential(t.pollInterval))

	var head model.Message
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		msg, err := t.repos.Message.Head(ctx, h.Path)
		if servicebus.IsNoData(err) {
			return retry.RetryableError(errEmpty)
		}
		if err != nil {
			return err
		}
		head = msg
		return nil
	})
	if err != nil {
		return model.Message{}, err
	}

	return head, nil
}

// Receive implements servicebus.Transport.Receive.
// Returns servicebus.ErrNoData if the queue is empty.
func (t *Transport) Receive(ctx context.Context, h *servicebus.QueueHandle) (model.Message, error) {
	for {
		head, err := t.repos.Message.Head(ctx, h.Path)
		if err != nil {
			return model.Message{}, err
		}

		removed, err := t.repos.Message.Remove(ctx, head.ID)
		if err != nil {
			return model.Message{}, err
		}
		if removed {
			return head, nil
		}

		if err := ctx.Err(); err != nil {
			return model.Message{}, err
		}
	}
}

// Send implements servicebus.Transport.Send.
//
// TransactionNone inserts directly. TransactionSingle inserts inside a transaction of
// its own. TransactionAmbient inserts through the servicebus.Transaction carried by ctx
// and falls back to TransactionSingle when ctx carries none.
func (t *Transport) Send(ctx context.Context, h *servicebus.QueueHandle, msg model.Message, mode servicebus.TransactionMode) error {
	q, err := t.load(ctx, h.Path)
	if err != nil {
		return err
	}

	if q.MaxSizeKB > 0 {
		used, err := t.repos.Message.UsedBytes(ctx, q.Path)
		if err != nil {
			return err
		}
		if !q.CanAccept(used, int64(msg.Size())) {
			return servicebus.NewErrorWithCause(servicebus.ErrCodeQueueFull,
				fmt.Sprintf("queue %s cannot accept %d bytes", q.Path, msg.Size()), model.ErrQueueFull)
		}
	}

	msg.ID = 0
	msg.QueuePath = q.Path
	if msg.Body == nil {
		msg.Body = []byte{}
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}

	if mode == servicebus.TransactionAmbient {
		if tx, ok := servicebus.TransactionFromContext(ctx); ok {
			return t.repos.Message.SaveWith(ctx, tx, msg)
		}
		mode = servicebus.TransactionSingle
	}

	if mode == servicebus.TransactionNone {
		_, err := t.repos.Message.Save(ctx, msg)
		return err
	}

	return t.sendSingle(ctx, msg)
}

func (t *Transport) sendSingle(ctx context.Context, msg model.Message) error {
	tx, err := t.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return servicebus.NewErrorWithCause(servicebus.ErrCodeDatabase, "failed to begin transaction", err)
	}

	if err := t.repos.Message.SaveWith(ctx, tx, msg); err != nil {
		_ = tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return servicebus.NewErrorWithCause(servicebus.ErrCodeDatabase, "failed to commit transaction", err)
	}
	return nil
}

// Refresh implements servicebus.Transport.Refresh.
func (t *Transport) Refresh(ctx context.Context, h *servicebus.QueueHandle) error {
	q, err := t.load(ctx, h.Path)
	if err != nil {
		return err
	}

	h.Name = q.Name
	h.Transactional = q.Transactional
	h.Label = q.Label
	h.MaxSizeKB = q.MaxSizeKB
	return nil
}

// Close implements servicebus.Transport.Close.
// Releases the exclusive-read lock held by h.
func (t *Transport) Close(_ context.Context, h *servicebus.QueueHandle) error {
	if !h.ExclusiveRead {
		return nil
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	delete(t.locks, strings.ToLower(h.Path))
	h.ExclusiveRead = false
	return nil
}

// Depth returns the number of messages stored in the queue at path.
func (t *Transport) Depth(ctx context.Context, path string) (int64, error) {
	q, err := t.load(ctx, path)
	if err != nil {
		return 0, err
	}
	return t.repos.Message.Count(ctx, q.Path)
}

// Queues returns every registered queue ordered by path.
func (t *Transport) Queues(ctx context.Context) ([]model.Queue, error) {
	return t.repos.Queue.FindAll(ctx)
}
