package repository

import (
	"context"

	"openelis-alert/internal/models"
)

// SiteInformationRepository 站点配置仓库（site_information 表）
type SiteInformationRepository interface {
	// GetByName 不存在时返回 ErrNotFound
	GetByName(ctx context.Context, name string) (*models.SiteInformation, error)
	// Save 按 name 插入或更新
	Save(ctx context.Context, info *models.SiteInformation) error
}
