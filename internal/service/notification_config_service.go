package service

import (
	"context"
	"fmt"

	"openelis-alert/internal/models"
	"openelis-alert/internal/repository"
	"openelis-alert/internal/siteconfig"

	"go.uber.org/zap"
)

// SiteSettings 告警升级相关站点配置（siteconfig.Service 实现）
type SiteSettings interface {
	EscalationEnabled(ctx context.Context) (bool, error)
	EscalationDelayMinutes(ctx context.Context) (int, error)
	SupervisorEmail(ctx context.Context) (string, error)
	SetEscalationEnabled(ctx context.Context, enabled bool) error
	SetEscalationDelayMinutes(ctx context.Context, minutes int) error
	SetSupervisorEmail(ctx context.Context, email string) error
}

// MethodToggles 某通知性质下各通知方式的开关
type MethodToggles struct {
	Email bool `json:"email"`
	SMS   bool `json:"sms"`
}

// AlertNotificationConfig 告警通知配置视图
type AlertNotificationConfig struct {
	AlertConfigs           map[string]MethodToggles `json:"alertConfigs"`
	EscalationEnabled      bool                     `json:"escalationEnabled"`
	EscalationDelayMinutes int                      `json:"escalationDelayMinutes"`
	SupervisorEmail        string                   `json:"supervisorEmail"`
}

// MethodToggleUpdate 开关更新；nil 表示保持原值
type MethodToggleUpdate struct {
	Email *bool `json:"email"`
	SMS   *bool `json:"sms"`
}

// AlertNotificationConfigUpdate 保存请求
// 升级设置的 nil 字段使用默认值（false / 15 / ""）
type AlertNotificationConfigUpdate struct {
	AlertConfigs           map[string]MethodToggleUpdate `json:"alertConfigs"`
	EscalationEnabled      *bool                         `json:"escalationEnabled"`
	EscalationDelayMinutes *int                          `json:"escalationDelayMinutes"`
	SupervisorEmail        *string                       `json:"supervisorEmail"`
}

// NotificationConfigService 告警通知配置服务
type NotificationConfigService struct {
	configRepo repository.NotificationConfigRepository
	settings   SiteSettings
	logger     *zap.Logger
}

func NewNotificationConfigService(
	configRepo repository.NotificationConfigRepository,
	settings SiteSettings,
	logger *zap.Logger,
) *NotificationConfigService {
	return &NotificationConfigService{
		configRepo: configRepo,
		settings:   settings,
		logger:     logger,
	}
}

// GetAlertNotificationConfig 返回全部告警性质的开关（缺省 false）及升级设置
func (s *NotificationConfigService) GetAlertNotificationConfig(ctx context.Context) (*AlertNotificationConfig, error) {
	opts, err := s.configRepo.GetAllAlertConfigs(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load notification configs: %w", err)
	}

	cfg := &AlertNotificationConfig{
		AlertConfigs: make(map[string]MethodToggles, len(models.AlertNatures)),
	}
	for _, n := range models.AlertNatures {
		cfg.AlertConfigs[string(n)] = MethodToggles{}
	}
	for _, opt := range opts {
		if opt.PersonType != models.PersonTypeProvider {
			continue
		}
		toggles, ok := cfg.AlertConfigs[string(opt.Nature)]
		if !ok {
			continue
		}
		switch opt.Method {
		case models.MethodEmail:
			toggles.Email = opt.Active
		case models.MethodSMS:
			toggles.SMS = opt.Active
		}
		cfg.AlertConfigs[string(opt.Nature)] = toggles
	}

	if cfg.EscalationEnabled, err = s.settings.EscalationEnabled(ctx); err != nil {
		return nil, err
	}
	if cfg.EscalationDelayMinutes, err = s.settings.EscalationDelayMinutes(ctx); err != nil {
		return nil, err
	}
	if cfg.SupervisorEmail, err = s.settings.SupervisorEmail(ctx); err != nil {
		return nil, err
	}
	return cfg, nil
}

// SaveAlertNotificationConfig 保存通知开关与升级设置
// 业务规则：
// - 未知的 nature 记录日志并跳过，其余继续保存
// - 只更新请求中给出的通知方式，未给出的保持原值
// - 已存在的配置只更新 active，保留 additional_contacts
func (s *NotificationConfigService) SaveAlertNotificationConfig(ctx context.Context, update AlertNotificationConfigUpdate) error {
	for natureName, toggles := range update.AlertConfigs {
		nature, err := models.ParseNotificationNature(natureName)
		if err != nil {
			s.logger.Warn("Skipping unknown notification nature", zap.String("nature", natureName))
			continue
		}

		if toggles.Email != nil {
			if err := s.saveOption(ctx, nature, models.MethodEmail, *toggles.Email); err != nil {
				return err
			}
		}
		if toggles.SMS != nil {
			if err := s.saveOption(ctx, nature, models.MethodSMS, *toggles.SMS); err != nil {
				return err
			}
		}
	}

	enabled := false
	if update.EscalationEnabled != nil {
		enabled = *update.EscalationEnabled
	}
	delay := siteconfig.DefaultEscalationDelayMinutes
	if update.EscalationDelayMinutes != nil {
		delay = *update.EscalationDelayMinutes
	}
	supervisor := ""
	if update.SupervisorEmail != nil {
		supervisor = *update.SupervisorEmail
	}

	if err := s.settings.SetEscalationEnabled(ctx, enabled); err != nil {
		return err
	}
	if err := s.settings.SetEscalationDelayMinutes(ctx, delay); err != nil {
		return err
	}
	if err := s.settings.SetSupervisorEmail(ctx, supervisor); err != nil {
		return err
	}

	s.logger.Info("Alert notification config saved",
		zap.Int("natures", len(update.AlertConfigs)),
		zap.Bool("escalation_enabled", enabled),
		zap.Int("escalation_delay_minutes", delay),
	)
	return nil
}

func (s *NotificationConfigService) saveOption(ctx context.Context, nature models.NotificationNature, method models.NotificationMethod, active bool) error {
	opt := &models.NotificationConfigOption{
		Nature:     nature,
		Method:     method,
		PersonType: models.PersonTypeProvider,
		Active:     active,
	}

	existing, err := s.configRepo.GetByNatureAndMethod(ctx, nature, method, models.PersonTypeProvider)
	switch {
	case err == nil:
		opt.AdditionalContacts = existing.AdditionalContacts
	case isNotFound(err):
	default:
		return fmt.Errorf("failed to load notification config %s/%s: %w", nature, method, err)
	}

	if err := s.configRepo.Upsert(ctx, opt); err != nil {
		return fmt.Errorf("failed to save notification config %s/%s: %w", nature, method, err)
	}
	return nil
}
