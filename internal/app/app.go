package app

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	"openelis-alert/common/database"
	"openelis-alert/common/mqtt"
	rediscommon "openelis-alert/common/redis"
	"openelis-alert/internal/coldstorage"
	"openelis-alert/internal/config"
	"openelis-alert/internal/consumer"
	"openelis-alert/internal/notification"
	"openelis-alert/internal/notification/sender"
	"openelis-alert/internal/repository"
	"openelis-alert/internal/service"
	"openelis-alert/internal/siteconfig"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// App 告警服务（整合各层）
type App struct {
	config      *config.Config
	db          *sql.DB
	redisClient *redis.Client
	mqttClient  *mqtt.Client
	logger      *zap.Logger

	// 各层组件
	dispatcher         *notification.Dispatcher
	alertService       *service.AlertService
	notifConfigService *service.NotificationConfigService
	siteConfig         *siteconfig.Service
	monitor            *coldstorage.Monitor
	triggerConsumer    *consumer.TriggerStreamConsumer
	readingsConsumer   *consumer.FreezerReadingsConsumer

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewApp 连接外部依赖并组装服务
func NewApp(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	// 1. 连接数据库
	db, err := database.NewPostgresDB(ctx, &cfg.Database)
	if err != nil {
		return nil, err
	}

	// 2. 连接 Redis
	redisClient, err := rediscommon.NewRedisClient(ctx, &cfg.Redis)
	if err != nil {
		database.Close(db)
		return nil, err
	}

	// 3. 连接 MQTT（可选）
	if !cfg.MQTT.Enabled {
		return build(cfg, db, redisClient, nil, logger), nil
	}
	mqttClient, err := mqtt.NewClient(&cfg.MQTT.MQTTConfig, logger)
	if err != nil {
		rediscommon.Close(redisClient)
		database.Close(db)
		return nil, err
	}

	a := build(cfg, db, redisClient, mqttClient, logger)
	a.mqttClient = mqttClient
	return a, nil
}

// build 组装 Repository / Service / Consumer 层；subscriber 为 nil 时不订阅冷库读数
func build(cfg *config.Config, db *sql.DB, redisClient *redis.Client, subscriber consumer.Subscriber, logger *zap.Logger) *App {
	// Repository 层
	alertsRepo := repository.NewPostgresAlertsRepository(db, logger)
	notifConfigRepo := repository.NewPostgresNotificationConfigRepository(db, logger)
	siteInfoRepo := repository.NewPostgresSiteInformationRepository(db, logger)
	thresholdsRepo := repository.NewPostgresThresholdsRepository(db, logger)

	siteConfig := siteconfig.NewService(siteInfoRepo, logger,
		siteconfig.WithCache(redisClient, cfg.SiteConfig.CacheTTL, cfg.SiteConfig.CachePrefix),
	)

	// 通知层
	notifier := notification.NewAlertNotifier(
		notifConfigRepo,
		siteConfig,
		buildSenders(cfg, logger),
		cfg.Channels.ChannelFlags,
		logger,
	)
	dispatcher := notification.NewDispatcher(cfg.Dispatcher.Workers, cfg.Dispatcher.QueueSize, logger, notifier)

	// Service 层
	alertService := service.NewAlertService(alertsRepo, dispatcher, logger,
		service.WithDedupPolicy(service.DedupPolicy{Window: cfg.Dedup.Window}),
	)
	notifConfigService := service.NewNotificationConfigService(notifConfigRepo, siteConfig, logger)
	monitor := coldstorage.NewMonitor(thresholdsRepo, coldstorage.NewFreezerAlertService(alertService, logger), logger)

	a := &App{
		config:             cfg,
		db:                 db,
		redisClient:        redisClient,
		logger:             logger,
		dispatcher:         dispatcher,
		alertService:       alertService,
		notifConfigService: notifConfigService,
		siteConfig:         siteConfig,
		monitor:            monitor,
	}

	// Consumer 层
	if cfg.Streams.Enabled {
		a.triggerConsumer = consumer.NewTriggerStreamConsumer(redisClient, alertService, cfg.Streams, logger)
	}
	if subscriber != nil {
		a.readingsConsumer = consumer.NewFreezerReadingsConsumer(subscriber, monitor, cfg.MQTT.ReadingsTopic, cfg.MQTT.QoS, logger)
	}
	return a
}

// buildSenders 按系统开关创建发送器
func buildSenders(cfg *config.Config, logger *zap.Logger) []sender.Sender {
	var senders []sender.Sender
	if cfg.Channels.EmailEnabled() {
		senders = append(senders, sender.NewSMTPSender(cfg.Channels.SMTP, logger))
	}
	if cfg.Channels.SMSEnabled() {
		senders = append(senders, sender.NewHTTPSMSSender(cfg.Channels.SMSGateway, logger))
	}
	return senders
}

// Start 启动分发器和消费者
func (a *App) Start(ctx context.Context) error {
	a.logger.Info("Starting alert service",
		zap.Bool("trigger_stream", a.triggerConsumer != nil),
		zap.Bool("freezer_readings", a.readingsConsumer != nil),
		zap.Bool("email", a.config.Channels.EmailEnabled()),
		zap.Bool("sms", a.config.Channels.SMSEnabled()),
	)

	runCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel

	// 排空队列时仍需发送，不随 runCtx 取消
	a.dispatcher.Start(context.WithoutCancel(ctx))

	if a.readingsConsumer != nil {
		if err := a.readingsConsumer.Start(); err != nil {
			cancel()
			return fmt.Errorf("failed to start freezer readings consumer: %w", err)
		}
	}

	if a.triggerConsumer != nil {
		a.wg.Add(1)
		go func() {
			defer a.wg.Done()
			if err := a.triggerConsumer.Start(runCtx); err != nil {
				a.logger.Error("Trigger stream consumer stopped", zap.Error(err))
			}
		}()
	}
	return nil
}

// Stop 停止消费者，排空通知队列，关闭连接
func (a *App) Stop() error {
	a.logger.Info("Stopping alert service")

	if a.mqttClient != nil {
		a.mqttClient.Disconnect()
	}
	if a.cancel != nil {
		a.cancel()
	}
	a.wg.Wait()

	a.dispatcher.Stop()
	if dropped := a.dispatcher.Dropped(); dropped > 0 {
		a.logger.Warn("Notifications dropped during run", zap.Int64("dropped", dropped))
	}

	if err := rediscommon.Close(a.redisClient); err != nil {
		a.logger.Error("Failed to close redis", zap.Error(err))
	}
	if err := database.Close(a.db); err != nil {
		a.logger.Error("Failed to close database", zap.Error(err))
	}
	return nil
}

func (a *App) AlertService() *service.AlertService { return a.alertService }

func (a *App) NotificationConfigService() *service.NotificationConfigService {
	return a.notifConfigService
}

func (a *App) SiteConfig() *siteconfig.Service { return a.siteConfig }

func (a *App) Monitor() *coldstorage.Monitor { return a.monitor }
