package relica

import (
	"context"
	"database/sql"

	"github.com/coregx/relica"

	"github.com/coregx/servicebus"
	"github.com/coregx/servicebus/model"
)

// PermissionRepository stores queue access control entries using Relica.
type PermissionRepository struct {
	db          *relica.DB
	tablePrefix string
}

// NewPermissionRepository creates a new PermissionRepository with default table prefix.
func NewPermissionRepository(sqlDB *sql.DB, driverName string) *PermissionRepository {
	return &PermissionRepository{db: relica.WrapDB(sqlDB, driverName), tablePrefix: servicebus.DefaultTablePrefix}
}

// NewPermissionRepositoryWithPrefix creates a new PermissionRepository with custom table prefix.
func NewPermissionRepositoryWithPrefix(sqlDB *sql.DB, driverName, prefix string) *PermissionRepository {
	return &PermissionRepository{db: relica.WrapDB(sqlDB, driverName), tablePrefix: prefix}
}

func (r *PermissionRepository) tableName() string {
	return r.tablePrefix + "queue_permission"
}

// Save stores a new access control entry.
func (r *PermissionRepository) Save(ctx context.Context, p model.Permission) (model.Permission, error) {
	err := r.db.WithContext(ctx).Model(&p).Table(r.tableName()).Insert()
	if err != nil {
		return p, servicebus.NewErrorWithCause(servicebus.ErrCodeDatabase, "failed to insert permission", err)
	}
	return p, nil
}

// FindByQueuePath retrieves the access control entries of a queue in grant order.
func (r *PermissionRepository) FindByQueuePath(ctx context.Context, queuePath string) ([]model.Permission, error) {
	var permissions []model.Permission

	err := r.db.WithContext(ctx).Select("*").
		From(r.tableName()).
		Where("queue_path = ?", queuePath).
		OrderBy("id ASC").
		All(&permissions)
	if err != nil {
		return nil, servicebus.NewErrorWithCause(servicebus.ErrCodeDatabase, "failed to load permissions", err)
	}

	return permissions, nil
}
