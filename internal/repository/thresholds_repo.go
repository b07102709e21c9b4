package repository

import (
	"context"
	"time"

	"openelis-alert/internal/models"
)

// ThresholdsRepository 冷库阈值仓库
type ThresholdsRepository interface {
	// GetFreezer 获取冷库基础阈值（target ± warning/critical 偏差），不存在返回 ErrNotFound
	GetFreezer(ctx context.Context, freezerID int64) (*models.Freezer, error)
	// GetActiveProfile 在 at 时刻生效的阈值模板；多条生效时取 effective_start 最晚的一条，没有返回 ErrNotFound
	GetActiveProfile(ctx context.Context, freezerID int64, at time.Time) (*models.ThresholdProfile, error)
}
