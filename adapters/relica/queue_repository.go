package relica

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/coregx/relica"

	"github.com/coregx/servicebus"
	"github.com/coregx/servicebus/model"
)

// QueueRepository stores queue registrations using Relica.
// Paths are matched case-insensitively.
type QueueRepository struct {
	db          *relica.DB
	tablePrefix string
}

// NewQueueRepository creates a new QueueRepository with default table prefix.
func NewQueueRepository(sqlDB *sql.DB, driverName string) *QueueRepository {
	return &QueueRepository{
		db:          relica.WrapDB(sqlDB, driverName),
		tablePrefix: servicebus.DefaultTablePrefix,
	}
}

// NewQueueRepositoryWithPrefix creates a new QueueRepository with custom table prefix.
func NewQueueRepositoryWithPrefix(sqlDB *sql.DB, driverName, prefix string) *QueueRepository {
	return &QueueRepository{
		db:          relica.WrapDB(sqlDB, driverName),
		tablePrefix: prefix,
	}
}

func (r *QueueRepository) tableName() string {
	return r.tablePrefix + "queue"
}

// FindByPath retrieves the queue registered at path.
// Returns servicebus.ErrNoData if no queue is registered there.
func (r *QueueRepository) FindByPath(ctx context.Context, path string) (model.Queue, error) {
	var queue model.Queue

	err := r.db.WithContext(ctx).Select("*").
		From(r.tableName()).
		Where("LOWER(path) = LOWER(?)", path).
		One(&queue)

	if errors.Is(err, sql.ErrNoRows) {
		return queue, servicebus.ErrNoData
	}
	if err != nil {
		return queue, servicebus.NewErrorWithCause(servicebus.ErrCodeDatabase, "failed to load queue", err)
	}

	return queue, nil
}

// Exists reports whether a queue is registered at path.
func (r *QueueRepository) Exists(ctx context.Context, path string) (bool, error) {
	var row aggregateRow

	err := r.db.WithContext(ctx).Select("COUNT(*) AS n").
		From(r.tableName()).
		Where("LOWER(path) = LOWER(?)", path).
		One(&row)
	if err != nil {
		return false, servicebus.NewErrorWithCause(servicebus.ErrCodeDatabase, "failed to check queue", err)
	}

	return row.N > 0, nil
}

// Save creates or updates a queue registration.
func (r *QueueRepository) Save(ctx context.Context, q model.Queue) (model.Queue, error) {
	if q.ID == 0 {
		err := r.db.WithContext(ctx).Model(&q).Table(r.tableName()).Insert()
		if err != nil {
			return q, servicebus.NewErrorWithCause(servicebus.ErrCodeDatabase, "failed to insert queue", err)
		}
		return q, nil
	}

	err := r.db.WithContext(ctx).Model(&q).Table(r.tableName()).Update()
	if err != nil {
		return q, servicebus.NewErrorWithCause(servicebus.ErrCodeDatabase, "failed to update queue", err)
	}
	return q, nil
}

// UpdateProperties changes the label and size limit of a queue.
func (r *QueueRepository) UpdateProperties(ctx context.Context, id int64, label string, maxSizeKB int64) error {
	_, err := r.db.WithContext(ctx).Update(r.tableName()).
		Set(map[string]interface{}{
			"label":       label,
			"max_size_kb": maxSizeKB,
			"updated_at":  time.Now(),
		}).
		Where("id = ?", id).
		WithContext(ctx).
		Execute()

	if err != nil {
		return servicebus.NewErrorWithCause(servicebus.ErrCodeDatabase, "failed to update queue properties", err)
	}

	return nil
}

// FindAll retrieves every registered queue ordered by path.
func (r *QueueRepository) FindAll(ctx context.Context) ([]model.Queue, error) {
	var queues []model.Queue

	err := r.db.WithContext(ctx).Select("*").
		From(r.tableName()).
		OrderBy("path ASC").
		All(&queues)
	if err != nil {
		return nil, servicebus.NewErrorWithCause(servicebus.ErrCodeDatabase, "failed to list queues", err)
	}

	return queues, nil
}
