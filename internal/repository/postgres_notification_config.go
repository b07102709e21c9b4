package repository

import (
	"context"
	"database/sql"
	"fmt"

	"openelis-alert/internal/models"

	"go.uber.org/zap"
)

const notificationConfigColumns = `
			id,
			notification_nature,
			notification_method,
			notification_person_type,
			active,
			additional_contacts`

// PostgresNotificationConfigRepository 通知配置仓库（PostgreSQL）
type PostgresNotificationConfigRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewPostgresNotificationConfigRepository 创建通知配置仓库
func NewPostgresNotificationConfigRepository(db *sql.DB, logger *zap.Logger) *PostgresNotificationConfigRepository {
	return &PostgresNotificationConfigRepository{
		db:     db,
		logger: logger,
	}
}

var _ NotificationConfigRepository = (*PostgresNotificationConfigRepository)(nil)

// GetByNature 获取某通知性质的全部配置
func (r *PostgresNotificationConfigRepository) GetByNature(ctx context.Context, nature models.NotificationNature) ([]*models.NotificationConfigOption, error) {
	query := `
		SELECT` + notificationConfigColumns + `
		FROM notification_config_option
		WHERE notification_nature = $1
		ORDER BY id
	`
	return r.queryOptions(ctx, query, string(nature))
}

// GetByNatureAndMethod 按唯一键获取
func (r *PostgresNotificationConfigRepository) GetByNatureAndMethod(ctx context.Context, nature models.NotificationNature, method models.NotificationMethod, personType models.NotificationPersonType) (*models.NotificationConfigOption, error) {
	query := `
		SELECT` + notificationConfigColumns + `
		FROM notification_config_option
		WHERE notification_nature = $1
		  AND notification_method = $2
		  AND notification_person_type = $3
	`
	opt, err := scanNotificationConfig(r.db.QueryRowContext(ctx, query, string(nature), string(method), string(personType)))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("notification config %s/%s: %w", nature, method, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get notification config: %w", err)
	}
	return opt, nil
}

// GetAllAlertConfigs 获取全部告警类通知配置
func (r *PostgresNotificationConfigRepository) GetAllAlertConfigs(ctx context.Context) ([]*models.NotificationConfigOption, error) {
	natures := make([]interface{}, 0, len(models.AlertNatures))
	placeholders := ""
	for i, n := range models.AlertNatures {
		if i > 0 {
			placeholders += ", "
		}
		placeholders += fmt.Sprintf("$%d", i+1)
		natures = append(natures, string(n))
	}

	query := `
		SELECT` + notificationConfigColumns + `
		FROM notification_config_option
		WHERE notification_nature IN (` + placeholders + `)
		ORDER BY notification_nature, notification_method
	`
	return r.queryOptions(ctx, query, natures...)
}

// Upsert 插入或更新（ON CONFLICT 唯一键）
func (r *PostgresNotificationConfigRepository) Upsert(ctx context.Context, opt *models.NotificationConfigOption) error {
	if opt == nil {
		return fmt.Errorf("notification config is required")
	}
	if opt.PersonType == "" {
		opt.PersonType = models.PersonTypeProvider
	}

	query := `
		INSERT INTO notification_config_option (
			notification_nature,
			notification_method,
			notification_person_type,
			active,
			additional_contacts
		) VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (notification_nature, notification_method, notification_person_type)
		DO UPDATE SET
			active = EXCLUDED.active,
			additional_contacts = EXCLUDED.additional_contacts
		RETURNING id
	`
	err := r.db.QueryRowContext(ctx, query,
		string(opt.Nature),
		string(opt.Method),
		string(opt.PersonType),
		opt.Active,
		opt.AdditionalContacts,
	).Scan(&opt.ID)
	if err != nil {
		return fmt.Errorf("failed to upsert notification config: %w", err)
	}
	return nil
}

func (r *PostgresNotificationConfigRepository) queryOptions(ctx context.Context, query string, args ...interface{}) ([]*models.NotificationConfigOption, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query notification configs: %w", err)
	}
	defer rows.Close()

	opts := []*models.NotificationConfigOption{}
	for rows.Next() {
		opt, err := scanNotificationConfig(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan notification config: %w", err)
		}
		opts = append(opts, opt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate notification configs: %w", err)
	}
	return opts, nil
}

func scanNotificationConfig(row rowScanner) (*models.NotificationConfigOption, error) {
	var opt models.NotificationConfigOption
	var nature, method, personType string
	var contacts sql.NullString

	if err := row.Scan(&opt.ID, &nature, &method, &personType, &opt.Active, &contacts); err != nil {
		return nil, err
	}
	opt.Nature = models.NotificationNature(nature)
	opt.Method = models.NotificationMethod(method)
	opt.PersonType = models.NotificationPersonType(personType)
	if contacts.Valid {
		opt.AdditionalContacts = contacts.String
	}
	return &opt, nil
}
