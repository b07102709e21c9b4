package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	rediscommon "openelis-alert/common/redis"
	"openelis-alert/internal/config"
	"openelis-alert/internal/models"
	"openelis-alert/internal/service"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// AlertCreator 告警创建（service.AlertService 实现）
type AlertCreator interface {
	CreateAlert(
		ctx context.Context,
		alertType models.AlertType,
		entityType string,
		entityID int64,
		severity models.AlertSeverity,
		message string,
		contextData json.RawMessage,
	) (*models.Alert, error)
}

// TriggerMessage 告警触发消息（stream "data" 字段中的 JSON）
type TriggerMessage struct {
	AlertType   string          `json:"alert_type"`
	EntityType  string          `json:"entity_type"`
	EntityID    int64           `json:"entity_id"`
	Severity    string          `json:"severity"`
	Message     string          `json:"message"`
	ContextData json.RawMessage `json:"context_data,omitempty"`
}

// errInvalidTrigger 消息无法处理，重试也不会成功
var errInvalidTrigger = errors.New("invalid trigger message")

// TriggerStreamConsumer 消费告警触发流并调用 CreateAlert
type TriggerStreamConsumer struct {
	redisClient *redis.Client
	alerts      AlertCreator
	cfg         config.StreamsConfig
	consumer    string
	logger      *zap.Logger
}

// NewTriggerStreamConsumer 创建消费者；消费者名追加 uuid 后缀，多实例互不冲突
func NewTriggerStreamConsumer(
	redisClient *redis.Client,
	alerts AlertCreator,
	cfg config.StreamsConfig,
	logger *zap.Logger,
) *TriggerStreamConsumer {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 10
	}
	return &TriggerStreamConsumer{
		redisClient: redisClient,
		alerts:      alerts,
		cfg:         cfg,
		consumer:    fmt.Sprintf("%s-%s", cfg.ConsumerName, uuid.NewString()[:8]),
		logger:      logger,
	}
}

// Start 创建消费者组并循环消费，直到 ctx 取消
func (c *TriggerStreamConsumer) Start(ctx context.Context) error {
	if err := rediscommon.EnsureConsumerGroup(ctx, c.redisClient, c.cfg.AlertTrigger, c.cfg.ConsumerGroup); err != nil {
		return err
	}

	c.logger.Info("Trigger stream consumer started",
		zap.String("stream", c.cfg.AlertTrigger),
		zap.String("consumer_group", c.cfg.ConsumerGroup),
		zap.String("consumer_name", c.consumer),
	)

	backoff := time.Second
	maxBackoff := 30 * time.Second

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		if _, err := c.ConsumeOnce(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.logger.Error("Failed to consume trigger stream",
				zap.String("stream", c.cfg.AlertTrigger),
				zap.Duration("backoff", backoff),
				zap.Error(err),
			)

			// 指数退避
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(backoff):
				backoff *= 2
				if backoff > maxBackoff {
					backoff = maxBackoff
				}
			}
			continue
		}
		backoff = time.Second
	}
}

// ConsumeOnce 先重投 pending 消息，再读取一批新消息，返回已确认的消息数
// 非法消息记录日志后确认；CreateAlert 失败的消息不确认，留在本消费者的 pending 列表，下一轮重投
// pending 消息重投仍失败时返回错误，由 Start 退避
func (c *TriggerStreamConsumer) ConsumeOnce(ctx context.Context) (int, error) {
	if c.cfg.ClaimMinIdle > 0 {
		claimed, err := rediscommon.ClaimIdle(ctx, c.redisClient,
			c.cfg.AlertTrigger,
			c.cfg.ConsumerGroup,
			c.consumer,
			c.cfg.ClaimMinIdle,
			c.cfg.BatchSize,
		)
		if err != nil {
			return 0, err
		}
		if len(claimed) > 0 {
			c.logger.Info("Claimed idle trigger messages", zap.Int("count", len(claimed)))
		}
	}

	pending, err := rediscommon.ReadPending(ctx, c.redisClient,
		c.cfg.AlertTrigger,
		c.cfg.ConsumerGroup,
		c.consumer,
		c.cfg.BatchSize,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to read pending from stream %s: %w", c.cfg.AlertTrigger, err)
	}
	acked, failed, err := c.handleMessages(ctx, pending)
	if err != nil {
		return acked, err
	}
	if failed > 0 {
		return acked, fmt.Errorf("%d pending trigger messages still failing", failed)
	}

	// 有 pending 时不阻塞
	block := c.cfg.Block
	if len(pending) > 0 {
		block = -1
	}
	messages, err := rediscommon.ReadGroup(ctx, c.redisClient,
		c.cfg.AlertTrigger,
		c.cfg.ConsumerGroup,
		c.consumer,
		c.cfg.BatchSize,
		block,
	)
	if err != nil {
		return acked, fmt.Errorf("failed to read from stream %s: %w", c.cfg.AlertTrigger, err)
	}
	n, _, err := c.handleMessages(ctx, messages)
	return acked + n, err
}

// handleMessages 处理并确认消息，返回确认数和留在 pending 的失败数
func (c *TriggerStreamConsumer) handleMessages(ctx context.Context, messages []rediscommon.StreamMessage) (int, int, error) {
	acked, failed := 0, 0
	for _, msg := range messages {
		err := c.processMessage(ctx, msg)
		switch {
		case err == nil:
		case errors.Is(err, errInvalidTrigger):
			c.logger.Warn("Discarding invalid trigger message",
				zap.String("message_id", msg.ID),
				zap.Error(err),
			)
		default:
			c.logger.Error("Failed to process trigger message",
				zap.String("message_id", msg.ID),
				zap.Error(err),
			)
			failed++
			continue
		}

		if err := rediscommon.Ack(ctx, c.redisClient, c.cfg.AlertTrigger, c.cfg.ConsumerGroup, msg.ID); err != nil {
			return acked, failed, fmt.Errorf("failed to ack message %s: %w", msg.ID, err)
		}
		acked++
	}
	return acked, failed, nil
}

func (c *TriggerStreamConsumer) processMessage(ctx context.Context, msg rediscommon.StreamMessage) error {
	trigger, err := ParseTriggerMessage(msg)
	if err != nil {
		return err
	}

	alertType, err := models.ParseAlertType(trigger.AlertType)
	if err != nil {
		return fmt.Errorf("%w: %v", errInvalidTrigger, err)
	}
	severity, err := models.ParseAlertSeverity(trigger.Severity)
	if err != nil {
		return fmt.Errorf("%w: %v", errInvalidTrigger, err)
	}
	if trigger.EntityType == "" || trigger.EntityID <= 0 {
		return fmt.Errorf("%w: entity_type and entity_id are required", errInvalidTrigger)
	}

	alert, err := c.alerts.CreateAlert(ctx, alertType, trigger.EntityType, trigger.EntityID, severity, trigger.Message, trigger.ContextData)
	if errors.Is(err, service.ErrInvalidArgument) {
		return fmt.Errorf("%w: %v", errInvalidTrigger, err)
	}
	if err != nil {
		return fmt.Errorf("failed to create alert: %w", err)
	}

	c.logger.Debug("Trigger message processed",
		zap.String("message_id", msg.ID),
		zap.Int64("alert_id", alert.ID),
		zap.Int("duplicate_count", alert.DuplicateCount),
	)
	return nil
}

// ParseTriggerMessage 解析 stream 消息的 "data" 字段
func ParseTriggerMessage(msg rediscommon.StreamMessage) (*TriggerMessage, error) {
	data, ok := msg.Field("data")
	if !ok {
		return nil, fmt.Errorf("%w: missing data field", errInvalidTrigger)
	}
	var trigger TriggerMessage
	if err := json.Unmarshal([]byte(data), &trigger); err != nil {
		return nil, fmt.Errorf("%w: %v", errInvalidTrigger, err)
	}
	return &trigger, nil
}
