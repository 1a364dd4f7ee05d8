package relica

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"strings"

	"github.com/coregx/relica"

	"github.com/coregx/servicebus"
	"github.com/coregx/servicebus/model"
)

// Execer runs a statement. Satisfied by *sql.DB, *sql.Tx and servicebus.Transaction.
type Execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// MessageRepository stores queued messages using Relica.
// Messages of a queue are read back in ascending ID order.
type MessageRepository struct {
	db          *relica.DB
	sqlDB       *sql.DB
	driverName  string
	tablePrefix string
}

// NewMessageRepository creates a new MessageRepository with default table prefix.
func NewMessageRepository(sqlDB *sql.DB, driverName string) *MessageRepository {
	return NewMessageRepositoryWithPrefix(sqlDB, driverName, servicebus.DefaultTablePrefix)
}

// NewMessageRepositoryWithPrefix creates a new MessageRepository with custom table prefix.
func NewMessageRepositoryWithPrefix(sqlDB *sql.DB, driverName, prefix string) *MessageRepository {
	return &MessageRepository{
		db:          relica.WrapDB(sqlDB, driverName),
		sqlDB:       sqlDB,
		driverName:  driverName,
		tablePrefix: prefix,
	}
}

func (r *MessageRepository) tableName() string {
	return r.tablePrefix + "message"
}

// Head retrieves the oldest message of a queue without removing it.
// Returns servicebus.ErrNoData if the queue is empty.
func (r *MessageRepository) Head(ctx context.Context, queuePath string) (model.Message, error) {
	var msg model.Message

	err := r.db.WithContext(ctx).Select("*").
		From(r.tableName()).
		Where("queue_path = ?", queuePath).
		OrderBy("id ASC").
		Limit(1).
		One(&msg)

	if errors.Is(err, sql.ErrNoRows) {
		return msg, servicebus.ErrNoData
	}
	if err != nil {
		return msg, servicebus.NewErrorWithCause(servicebus.ErrCodeDatabase, "failed to load head message", err)
	}
	return msg, nil
}

// Save inserts a message. m.ID is populated on success.
func (r *MessageRepository) Save(ctx context.Context, m model.Message) (model.Message, error) {
	err := r.db.WithContext(ctx).Model(&m).Table(r.tableName()).Insert()
	if err != nil {
		return m, servicebus.NewErrorWithCause(servicebus.ErrCodeDatabase, "failed to insert message", err)
	}
	return m, nil
}

// SaveWith inserts a message through ex, typically an open transaction.
// The ID of the stored row is not read back.
func (r *MessageRepository) SaveWith(ctx context.Context, ex Execer, m model.Message) error {
	query := "INSERT INTO " + r.tableName() +
		" (queue_path, label, correlation_id, body, created_at) VALUES (?, ?, ?, ?, ?)"

	_, err := ex.ExecContext(ctx, r.rebind(query), m.QueuePath, m.Label, m.CorrelationID, m.Body, m.CreatedAt)
	if err != nil {
		return servicebus.NewErrorWithCause(servicebus.ErrCodeDatabase, "failed to insert message", err)
	}
	return nil
}

// Remove deletes a message by ID. Reports false if another reader removed it first.
func (r *MessageRepository) Remove(ctx context.Context, id int64) (bool, error) {
	res, err := r.sqlDB.ExecContext(ctx, r.rebind("DELETE FROM "+r.tableName()+" WHERE id = ?"), id)
	if err != nil {
		return false, servicebus.NewErrorWithCause(servicebus.ErrCodeDatabase, "failed to delete message", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, servicebus.NewErrorWithCause(servicebus.ErrCodeDatabase, "failed to delete message", err)
	}
	return n > 0, nil
}

// UsedBytes returns the total body size stored in a queue.
func (r *MessageRepository) UsedBytes(ctx context.Context, queuePath string) (int64, error) {
	var row aggregateRow

	err := r.db.WithContext(ctx).Select("COALESCE(SUM(LENGTH(body)), 0) AS n").
		From(r.tableName()).
		Where("queue_path = ?", queuePath).
		One(&row)
	if err != nil {
		return 0, servicebus.NewErrorWithCause(servicebus.ErrCodeDatabase, "failed to measure queue", err)
	}
	return row.N, nil
}

// Count returns the number of messages stored in a queue.
func (r *MessageRepository) Count(ctx context.Context, queuePath string) (int64, error) {
	var row aggregateRow

	err := r.db.WithContext(ctx).Select("COUNT(*) AS n").
		From(r.tableName()).
		Where("queue_path = ?", queuePath).
		One(&row)
	if err != nil {
		return 0, servicebus.NewErrorWithCause(servicebus.ErrCodeDatabase, "failed to count messages", err)
	}
	return row.N, nil
}

// rebind rewrites `?` placeholders for drivers that use numbered parameters.
func (r *MessageRepository) rebind(query string) string {
	if r.driverName != "postgres" {
		return query
	}

	var b strings.Builder
	n := 0
	for _, c := range query {
		if c == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(c)
	}
	return b.String()
}
