package notification

import (
	"context"
	"fmt"

	"openelis-alert/internal/models"
	"openelis-alert/internal/notification/sender"

	"go.uber.org/zap"
)

// ChannelFlags 系统级渠道开关
type ChannelFlags struct {
	SMTPEnabled    bool `yaml:"smtp_enabled"`
	BMPSMSEnabled  bool `yaml:"bmp_sms_enabled"`
	SMPPSMSEnabled bool `yaml:"smpp_sms_enabled"`
	OzekiActive    bool `yaml:"ozeki_active"`
}

func (f ChannelFlags) EmailEnabled() bool { return f.SMTPEnabled }

// SMSEnabled 任一短信通道开启即可
func (f ChannelFlags) SMSEnabled() bool {
	return f.BMPSMSEnabled || f.SMPPSMSEnabled || f.OzekiActive
}

// ConfigSource 按通知性质读取配置
type ConfigSource interface {
	GetByNature(ctx context.Context, nature models.NotificationNature) ([]*models.NotificationConfigOption, error)
}

// RecipientSource 告警通知收件人（站点配置）
type RecipientSource interface {
	AlertNotificationEmail(ctx context.Context) (string, error)
	AlertNotificationPhone(ctx context.Context) (string, error)
}

// AlertNotifier 处理 AlertCreated：按配置发送邮件 / 短信
// 各渠道互不影响，错误只记录日志
type AlertNotifier struct {
	configs    ConfigSource
	recipients RecipientSource
	senders    []sender.Sender
	flags      ChannelFlags
	logger     *zap.Logger
}

func NewAlertNotifier(
	configs ConfigSource,
	recipients RecipientSource,
	senders []sender.Sender,
	flags ChannelFlags,
	logger *zap.Logger,
) *AlertNotifier {
	return &AlertNotifier{
		configs:    configs,
		recipients: recipients,
		senders:    senders,
		flags:      flags,
		logger:     logger,
	}
}

var _ Handler = (*AlertNotifier)(nil)

// Handle 只处理 AlertCreated
func (n *AlertNotifier) Handle(ctx context.Context, event models.AlertEvent) {
	if event.Kind != models.AlertCreated || event.Alert == nil {
		return
	}
	alert := event.Alert

	nature, ok := models.NatureForAlertType(alert.AlertType)
	if !ok {
		n.logger.Debug("Alert type has no notification nature, skipping",
			zap.String("alert_type", string(alert.AlertType)),
			zap.Int64("alert_id", alert.ID),
		)
		return
	}

	opts, err := n.configs.GetByNature(ctx, nature)
	if err != nil {
		n.logger.Error("Failed to load notification config",
			zap.String("nature", string(nature)),
			zap.Error(err),
		)
		return
	}
	if len(opts) == 0 {
		n.logger.Info("No notification configuration for alert nature", zap.String("nature", string(nature)))
		return
	}

	subject := BuildSubject(alert)
	message := BuildMessage(alert)

	for _, opt := range opts {
		if !opt.Active {
			continue
		}
		switch {
		case opt.Method == models.MethodEmail && n.flags.EmailEnabled():
			n.guard(alert, sender.ChannelEmail, func() error { return n.sendEmail(ctx, subject, message, opt) })
		case opt.Method == models.MethodSMS && n.flags.SMSEnabled():
			n.guard(alert, sender.ChannelSMS, func() error { return n.sendSMS(ctx, subject, message) })
		}
	}
}

// guard 隔离单个渠道的错误与 panic
func (n *AlertNotifier) guard(alert *models.Alert, channel sender.Channel, fn func() error) {
	defer func() {
		if r := recover(); r != nil {
			n.logger.Error("Alert notification panicked",
				zap.Int64("alert_id", alert.ID),
				zap.String("channel", string(channel)),
				zap.String("panic", fmt.Sprint(r)),
			)
		}
	}()
	if err := fn(); err != nil {
		n.logger.Error("Failed to send alert notification",
			zap.Int64("alert_id", alert.ID),
			zap.String("channel", string(channel)),
			zap.Error(err),
		)
	}
}

func (n *AlertNotifier) sendEmail(ctx context.Context, subject, message string, opt *models.NotificationConfigOption) error {
	to, err := n.recipients.AlertNotificationEmail(ctx)
	if err != nil {
		return fmt.Errorf("failed to read alert notification email: %w", err)
	}
	if to == "" {
		n.logger.Warn("Alert notification email not configured")
		return nil
	}

	err = sender.Dispatch(ctx, n.senders, sender.EmailNotification{
		To:      to,
		BCC:     opt.BCCs(),
		Subject: subject,
		Body:    message,
	})
	if err != nil {
		return err
	}
	n.logger.Info("Alert email notification sent", zap.String("to", to))
	return nil
}

func (n *AlertNotifier) sendSMS(ctx context.Context, subject, message string) error {
	raw, err := n.recipients.AlertNotificationPhone(ctx)
	if err != nil {
		return fmt.Errorf("failed to read alert notification phone: %w", err)
	}
	if raw == "" {
		n.logger.Warn("Alert notification phone not configured")
		return nil
	}

	phone := ExtractDigits(raw)
	if phone == "" {
		n.logger.Warn("Invalid alert notification phone number", zap.String("phone", raw))
		return nil
	}

	err = sender.Dispatch(ctx, n.senders, sender.SMSNotification{
		PhoneNumber: phone,
		Subject:     subject,
		Body:        BuildSMSBody(subject, message),
	})
	if err != nil {
		return err
	}
	n.logger.Info("Alert SMS notification sent", zap.String("phone", phone))
	return nil
}
