package repository

import (
	"context"

	"openelis-alert/internal/models"
)

// NotificationConfigRepository 通知配置仓库（notification_config_option 表）
// (nature, method, person_type) 唯一
type NotificationConfigRepository interface {
	GetByNature(ctx context.Context, nature models.NotificationNature) ([]*models.NotificationConfigOption, error)
	GetByNatureAndMethod(ctx context.Context, nature models.NotificationNature, method models.NotificationMethod, personType models.NotificationPersonType) (*models.NotificationConfigOption, error)
	GetAllAlertConfigs(ctx context.Context) ([]*models.NotificationConfigOption, error)
	// Upsert 按唯一键插入或更新 active / additional_contacts，回填 ID
	Upsert(ctx context.Context, opt *models.NotificationConfigOption) error
}
