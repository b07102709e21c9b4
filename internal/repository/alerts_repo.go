package repository

import (
	"context"
	"time"

	"openelis-alert/internal/models"
)

// AlertsRepository 告警存储
// CreateOrFold 必须原子地完成"查找可折叠告警 → 折叠或插入"，同一去重键的并发调用只会产生一条告警
type AlertsRepository interface {
	// CreateOrFold 查找同键、活跃且最近活动晚于 cutoff 的告警：
	// 命中则 duplicate_count+1、last_duplicate_time=candidate.StartTime，返回 (existing, true)；
	// 否则以 OPEN 状态插入 candidate，返回 (created, false)
	CreateOrFold(ctx context.Context, candidate *models.Alert, cutoff time.Time) (*models.Alert, bool, error)

	GetAlert(ctx context.Context, id int64) (*models.Alert, error)

	// TransitionAlert 持久化状态迁移；仅当当前状态仍为 from 时更新，否则返回 ErrConflict
	TransitionAlert(ctx context.Context, alert *models.Alert, from models.AlertStatus) error

	// 以下查询均按 start_time 倒序
	GetAlertsByEntity(ctx context.Context, key models.EntityKey) ([]*models.Alert, error)
	GetAlertsByAlertType(ctx context.Context, alertType models.AlertType) ([]*models.Alert, error)
	GetAlertsByStatus(ctx context.Context, status models.AlertStatus) ([]*models.Alert, error)

	CountActiveAlertsForEntity(ctx context.Context, key models.EntityKey) (int64, error)
}
