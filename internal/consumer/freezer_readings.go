package consumer

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"openelis-alert/common/mqtt"
	"openelis-alert/internal/coldstorage"
	"openelis-alert/internal/models"

	"go.uber.org/zap"
)

// Subscriber MQTT 订阅（common/mqtt.Client 实现）
type Subscriber interface {
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
}

// ReadingProcessor 读数评估（coldstorage.Monitor 实现）
type ReadingProcessor interface {
	ProcessReading(ctx context.Context, reading models.FreezerReading) (*coldstorage.ReadingResult, error)
}

// FreezerReadingsConsumer 订阅冷库读数并评估阈值
type FreezerReadingsConsumer struct {
	subscriber Subscriber
	monitor    ReadingProcessor
	topic      string
	qos        byte
	timeout    time.Duration
	now        func() time.Time
	logger     *zap.Logger
}

func NewFreezerReadingsConsumer(
	subscriber Subscriber,
	monitor ReadingProcessor,
	topic string,
	qos byte,
	logger *zap.Logger,
) *FreezerReadingsConsumer {
	return &FreezerReadingsConsumer{
		subscriber: subscriber,
		monitor:    monitor,
		topic:      topic,
		qos:        qos,
		timeout:    10 * time.Second,
		now:        time.Now,
		logger:     logger,
	}
}

// Start 订阅读数主题
func (c *FreezerReadingsConsumer) Start() error {
	if err := c.subscriber.Subscribe(c.topic, c.qos, c.HandleMessage); err != nil {
		return err
	}
	c.logger.Info("Subscribed to freezer readings", zap.String("topic", c.topic))
	return nil
}

// HandleMessage 解析读数并交给 Monitor；recorded_at 缺省取当前时间
func (c *FreezerReadingsConsumer) HandleMessage(topic string, payload []byte) error {
	var reading models.FreezerReading
	if err := json.Unmarshal(payload, &reading); err != nil {
		return fmt.Errorf("failed to parse freezer reading on %s: %w", topic, err)
	}
	if reading.RecordedAt.IsZero() {
		reading.RecordedAt = c.now()
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	result, err := c.monitor.ProcessReading(ctx, reading)
	if err != nil {
		return fmt.Errorf("failed to process reading for freezer %d: %w", reading.FreezerID, err)
	}

	if result.Status != models.ReadingNormal {
		c.logger.Info("Freezer reading out of range",
			zap.Int64("freezer_id", reading.FreezerID),
			zap.String("status", string(result.Status)),
			zap.Time("recorded_at", reading.RecordedAt),
		)
	}
	return nil
}
