package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"openelis-alert/internal/models"
	"openelis-alert/internal/repository"

	"go.uber.org/zap"
)

// EventPublisher 告警事件发布（通知分发器实现）；Publish 不得阻塞调用方
type EventPublisher interface {
	Publish(event models.AlertEvent)
}

// Option AlertService 可选项
type Option func(*AlertService)

// WithClock 注入时钟（测试用）
func WithClock(now func() time.Time) Option {
	return func(s *AlertService) {
		if now != nil {
			s.now = now
		}
	}
}

// WithDedupPolicy 覆盖去重策略
func WithDedupPolicy(p DedupPolicy) Option {
	return func(s *AlertService) {
		s.dedup = p
	}
}

// AlertService 告警生命周期服务
// 职责：
// 1. 创建告警（去重折叠）
// 2. 状态迁移：OPEN → ACKNOWLEDGED → RESOLVED
// 3. 新告警发布 AlertCreated 事件，由通知分发器异步处理
type AlertService struct {
	alertsRepo repository.AlertsRepository
	publisher  EventPublisher
	dedup      DedupPolicy
	now        func() time.Time
	logger     *zap.Logger
}

// NewAlertService 创建告警服务；publisher 可为 nil（不发布事件）
func NewAlertService(
	alertsRepo repository.AlertsRepository,
	publisher EventPublisher,
	logger *zap.Logger,
	opts ...Option,
) *AlertService {
	s := &AlertService{
		alertsRepo: alertsRepo,
		publisher:  publisher,
		dedup:      DefaultDedupPolicy(),
		now:        time.Now,
		logger:     logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ============================================
// 创建
// ============================================

// CreateAlert 创建告警或折叠到已有告警
// 业务规则：
// - alertType / severity 必须为已知值，entityType 必填
// - contextData 为空时写入 {}，非法 JSON 拒绝
// - 30 分钟窗口内同实体同类型的活跃告警：duplicate_count+1，不发布事件
// - 否则新建 OPEN 告警并发布 AlertCreated
func (s *AlertService) CreateAlert(
	ctx context.Context,
	alertType models.AlertType,
	entityType string,
	entityID int64,
	severity models.AlertSeverity,
	message string,
	contextData json.RawMessage,
) (*models.Alert, error) {
	// 业务规则验证
	if !alertType.Valid() {
		return nil, fmt.Errorf("%w: unknown alert type %q", ErrInvalidArgument, alertType)
	}
	if !severity.Valid() {
		return nil, fmt.Errorf("%w: unknown severity %q", ErrInvalidArgument, severity)
	}
	entity := models.EntityKey{EntityType: entityType, EntityID: entityID}
	if err := entity.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}
	if len(contextData) == 0 {
		contextData = json.RawMessage("{}")
	} else if !json.Valid(contextData) {
		return nil, fmt.Errorf("%w: context_data is not valid JSON", ErrInvalidArgument)
	}

	now := s.now()
	candidate := &models.Alert{
		AlertType:   alertType,
		Entity:      entity,
		Severity:    severity,
		Status:      models.StatusOpen,
		Message:     message,
		ContextData: contextData,
		StartTime:   now,
	}

	alert, folded, err := s.alertsRepo.CreateOrFold(ctx, candidate, s.dedup.Cutoff(now))
	if err != nil {
		s.logger.Error("Failed to create alert",
			zap.String("alert_type", string(alertType)),
			zap.String("entity", entity.String()),
			zap.Error(err),
		)
		return nil, fmt.Errorf("failed to create alert: %w", err)
	}

	if folded {
		s.logger.Debug("Duplicate alert folded",
			zap.Int64("alert_id", alert.ID),
			zap.String("entity", entity.String()),
			zap.Int("duplicate_count", alert.DuplicateCount),
		)
		return alert, nil
	}

	s.logger.Info("Alert created",
		zap.Int64("alert_id", alert.ID),
		zap.String("alert_type", string(alert.AlertType)),
		zap.String("severity", string(alert.Severity)),
		zap.String("entity", entity.String()),
	)
	s.publish(models.AlertCreated, alert, nil, now)
	return alert, nil
}

// ============================================
// 状态迁移
// ============================================

// AcknowledgeAlert 确认告警：仅 OPEN 可确认
func (s *AlertService) AcknowledgeAlert(ctx context.Context, alertID, userID int64) (*models.Alert, error) {
	return s.transition(ctx, alertID, userID, models.StatusAcknowledged, func(a *models.Alert, now time.Time) {
		a.AcknowledgedAt = &now
		a.AcknowledgedBy = &userID
	})
}

// ResolveAlert 解决告警：仅 ACKNOWLEDGED 可解决，同时写入 end_time
func (s *AlertService) ResolveAlert(ctx context.Context, alertID, userID int64, notes string) (*models.Alert, error) {
	return s.transition(ctx, alertID, userID, models.StatusResolved, func(a *models.Alert, now time.Time) {
		a.ResolvedAt = &now
		a.ResolvedBy = &userID
		a.EndTime = &now
		a.ResolutionNotes = &notes
	})
}

func (s *AlertService) transition(
	ctx context.Context,
	alertID, userID int64,
	next models.AlertStatus,
	apply func(a *models.Alert, now time.Time),
) (*models.Alert, error) {
	if userID <= 0 {
		return nil, fmt.Errorf("%w: user_id must be positive", ErrInvalidArgument)
	}

	alert, err := s.GetAlert(ctx, alertID)
	if err != nil {
		return nil, err
	}

	prev := alert.Status
	if !prev.CanTransitionTo(next) {
		return nil, fmt.Errorf("%w: alert %d is %s, cannot move to %s", ErrInvalidStateTransition, alertID, prev, next)
	}

	now := s.now()
	alert.Status = next
	apply(alert, now)

	if err := s.alertsRepo.TransitionAlert(ctx, alert, prev); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, fmt.Errorf("%w: alert %d changed concurrently", ErrInvalidStateTransition, alertID)
		}
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: id=%d", ErrAlertNotFound, alertID)
		}
		s.logger.Error("Failed to update alert status",
			zap.Int64("alert_id", alertID),
			zap.String("status", string(next)),
			zap.Error(err),
		)
		return nil, fmt.Errorf("failed to update alert status: %w", err)
	}

	s.logger.Info("Alert status changed",
		zap.Int64("alert_id", alertID),
		zap.String("from", string(prev)),
		zap.String("to", string(next)),
		zap.Int64("user_id", userID),
	)

	kind := models.AlertAcknowledged
	if next == models.StatusResolved {
		kind = models.AlertResolved
	}
	s.publish(kind, alert, &userID, now)
	return alert, nil
}

// ============================================
// 查询
// ============================================

// GetAlert 获取单个告警
func (s *AlertService) GetAlert(ctx context.Context, alertID int64) (*models.Alert, error) {
	alert, err := s.alertsRepo.GetAlert(ctx, alertID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: id=%d", ErrAlertNotFound, alertID)
		}
		return nil, fmt.Errorf("failed to get alert: %w", err)
	}
	return alert, nil
}

// GetAlertsByEntity 实体的全部告警，按 start_time 倒序
func (s *AlertService) GetAlertsByEntity(ctx context.Context, entityType string, entityID int64) ([]*models.Alert, error) {
	alerts, err := s.alertsRepo.GetAlertsByEntity(ctx, models.EntityKey{EntityType: entityType, EntityID: entityID})
	if err != nil {
		return nil, fmt.Errorf("failed to get alerts by entity: %w", err)
	}
	return alerts, nil
}

// GetAlertsByAlertType 按类型查询
func (s *AlertService) GetAlertsByAlertType(ctx context.Context, alertType models.AlertType) ([]*models.Alert, error) {
	if !alertType.Valid() {
		return nil, fmt.Errorf("%w: unknown alert type %q", ErrInvalidArgument, alertType)
	}
	alerts, err := s.alertsRepo.GetAlertsByAlertType(ctx, alertType)
	if err != nil {
		return nil, fmt.Errorf("failed to get alerts by type: %w", err)
	}
	return alerts, nil
}

// GetAlertsByStatus 按状态查询
func (s *AlertService) GetAlertsByStatus(ctx context.Context, status models.AlertStatus) ([]*models.Alert, error) {
	if !status.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidArgument, status)
	}
	alerts, err := s.alertsRepo.GetAlertsByStatus(ctx, status)
	if err != nil {
		return nil, fmt.Errorf("failed to get alerts by status: %w", err)
	}
	return alerts, nil
}

// CountActiveAlertsForEntity 实体的 OPEN + ACKNOWLEDGED 告警数
func (s *AlertService) CountActiveAlertsForEntity(ctx context.Context, entityType string, entityID int64) (int64, error) {
	n, err := s.alertsRepo.CountActiveAlertsForEntity(ctx, models.EntityKey{EntityType: entityType, EntityID: entityID})
	if err != nil {
		return 0, fmt.Errorf("failed to count active alerts: %w", err)
	}
	return n, nil
}

func (s *AlertService) publish(kind models.AlertEventKind, alert *models.Alert, userID *int64, at time.Time) {
	if s.publisher == nil {
		return
	}
	s.publisher.Publish(models.AlertEvent{
		Kind:       kind,
		Alert:      alert.Clone(),
		UserID:     userID,
		OccurredAt: at,
	})
}
