package siteconfig

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"openelis-alert/internal/models"
	"openelis-alert/internal/repository"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// Key 站点配置键
type Key string

const (
	KeyEscalationEnabled      Key = "alert.escalation.enabled"
	KeyEscalationDelayMinutes Key = "alert.escalation.delayMinutes"
	KeySupervisorEmail        Key = "alert.supervisor.email"
	KeyNotificationEmail      Key = "alert.notification.email"
	KeyNotificationPhone      Key = "alert.notification.phone"
)

const (
	DefaultEscalationDelayMinutes = 15
	DefaultCacheTTL               = 60 * time.Second
	DefaultCachePrefix            = "openelis:siteinfo:"

	valueTypeBoolean = "boolean"
	valueTypeText    = "text"
)

// Option Service 可选项
type Option func(*Service)

// WithCache 在 site_information 前加 Redis 缓存；client 为 nil 时不缓存
func WithCache(client *redis.Client, ttl time.Duration, prefix string) Option {
	return func(s *Service) {
		s.cache = client
		if ttl > 0 {
			s.ttl = ttl
		}
		if prefix != "" {
			s.prefix = prefix
		}
	}
}

// Service 类型化的站点配置读写
// 读：Redis 缓存 → site_information；缓存故障时直接读库
// 写：写库后删除缓存
type Service struct {
	repo   repository.SiteInformationRepository
	cache  *redis.Client
	ttl    time.Duration
	prefix string
	logger *zap.Logger
}

// NewService 创建站点配置服务
func NewService(repo repository.SiteInformationRepository, logger *zap.Logger, opts ...Option) *Service {
	s := &Service{
		repo:   repo,
		ttl:    DefaultCacheTTL,
		prefix: DefaultCachePrefix,
		logger: logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ============================================
// 类型化读取
// ============================================

// EscalationEnabled 默认 false
func (s *Service) EscalationEnabled(ctx context.Context) (bool, error) {
	v, ok, err := s.get(ctx, KeyEscalationEnabled)
	if err != nil || !ok {
		return false, err
	}
	b, perr := strconv.ParseBool(v)
	if perr != nil {
		s.logger.Warn("Invalid boolean site setting, using default",
			zap.String("key", string(KeyEscalationEnabled)),
			zap.String("value", v),
		)
		return false, nil
	}
	return b, nil
}

// EscalationDelayMinutes 默认 15
func (s *Service) EscalationDelayMinutes(ctx context.Context) (int, error) {
	v, ok, err := s.get(ctx, KeyEscalationDelayMinutes)
	if err != nil || !ok {
		return DefaultEscalationDelayMinutes, err
	}
	n, perr := strconv.Atoi(v)
	if perr != nil {
		s.logger.Warn("Invalid integer site setting, using default",
			zap.String("key", string(KeyEscalationDelayMinutes)),
			zap.String("value", v),
		)
		return DefaultEscalationDelayMinutes, nil
	}
	return n, nil
}

// SupervisorEmail 默认空串
func (s *Service) SupervisorEmail(ctx context.Context) (string, error) {
	v, _, err := s.get(ctx, KeySupervisorEmail)
	return v, err
}

// AlertNotificationEmail 告警邮件收件人
func (s *Service) AlertNotificationEmail(ctx context.Context) (string, error) {
	v, _, err := s.get(ctx, KeyNotificationEmail)
	return v, err
}

// AlertNotificationPhone 告警短信号码（原始格式）
func (s *Service) AlertNotificationPhone(ctx context.Context) (string, error) {
	v, _, err := s.get(ctx, KeyNotificationPhone)
	return v, err
}

// ============================================
// 类型化写入
// ============================================

func (s *Service) SetEscalationEnabled(ctx context.Context, enabled bool) error {
	return s.set(ctx, KeyEscalationEnabled, strconv.FormatBool(enabled), valueTypeBoolean)
}

func (s *Service) SetEscalationDelayMinutes(ctx context.Context, minutes int) error {
	if minutes < 0 {
		return fmt.Errorf("escalation delay must not be negative: %d", minutes)
	}
	return s.set(ctx, KeyEscalationDelayMinutes, strconv.Itoa(minutes), valueTypeText)
}

func (s *Service) SetSupervisorEmail(ctx context.Context, email string) error {
	return s.set(ctx, KeySupervisorEmail, email, valueTypeText)
}

func (s *Service) SetAlertNotificationEmail(ctx context.Context, email string) error {
	return s.set(ctx, KeyNotificationEmail, email, valueTypeText)
}

func (s *Service) SetAlertNotificationPhone(ctx context.Context, phone string) error {
	return s.set(ctx, KeyNotificationPhone, phone, valueTypeText)
}

// ============================================
// 缓存
// ============================================

func (s *Service) cacheKey(key Key) string {
	return s.prefix + string(key)
}

// get 返回 (value, 是否存在, error)
func (s *Service) get(ctx context.Context, key Key) (string, bool, error) {
	if s.cache != nil {
		val, err := s.cache.Get(ctx, s.cacheKey(key)).Result()
		switch {
		case err == nil:
			return val, true, nil
		case err == redis.Nil:
			// 缓存未命中
		default:
			s.logger.Warn("Site config cache read failed, falling back to database",
				zap.String("key", string(key)),
				zap.Error(err),
			)
		}
	}

	info, err := s.repo.GetByName(ctx, string(key))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("failed to read site setting %s: %w", key, err)
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, s.cacheKey(key), info.Value, s.ttl).Err(); err != nil {
			s.logger.Warn("Failed to populate site config cache",
				zap.String("key", string(key)),
				zap.Error(err),
			)
		}
	}
	return info.Value, true, nil
}

func (s *Service) set(ctx context.Context, key Key, value, valueType string) error {
	err := s.repo.Save(ctx, &models.SiteInformation{
		Name:      string(key),
		Value:     value,
		ValueType: valueType,
	})
	if err != nil {
		return fmt.Errorf("failed to save site setting %s: %w", key, err)
	}

	if s.cache != nil {
		if err := s.cache.Del(ctx, s.cacheKey(key)).Err(); err != nil {
			s.logger.Warn("Failed to invalidate site config cache",
				zap.String("key", string(key)),
				zap.Error(err),
			)
		}
	}
	return nil
}
