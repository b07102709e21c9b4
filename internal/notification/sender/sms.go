package sender

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// SMSGatewayConfig HTTP 短信网关配置
type SMSGatewayConfig struct {
	BaseURL    string        `yaml:"base_url"`
	Path       string        `yaml:"path"`
	APIKey     string        `yaml:"api_key"`
	From       string        `yaml:"from"`
	Timeout    time.Duration `yaml:"timeout"`
	RetryCount int           `yaml:"retry_count"`
}

// smsRequest 网关请求体
type smsRequest struct {
	To      string `json:"to"`
	From    string `json:"from,omitempty"`
	Message string `json:"message"`
}

// smsResponse 网关响应体
type smsResponse struct {
	MessageID string `json:"message_id"`
	Status    string `json:"status"`
	Error     string `json:"error"`
}

// HTTPSMSSender 通过 HTTP 网关发送短信
type HTTPSMSSender struct {
	httpClient *resty.Client
	cfg        SMSGatewayConfig
	logger     *zap.Logger
}

// NewHTTPSMSSender 创建短信发送器
func NewHTTPSMSSender(cfg SMSGatewayConfig, logger *zap.Logger) *HTTPSMSSender {
	if cfg.Path == "" {
		cfg.Path = "/messages"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}

	client := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(cfg.Timeout).
		SetRetryCount(cfg.RetryCount).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(5 * time.Second).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")
	if cfg.APIKey != "" {
		client.SetAuthToken(cfg.APIKey)
	}

	return &HTTPSMSSender{
		httpClient: client,
		cfg:        cfg,
		logger:     logger,
	}
}

func (s *HTTPSMSSender) Channel() Channel { return ChannelSMS }

// Send 发送短信；非 2xx 视为失败
func (s *HTTPSMSSender) Send(ctx context.Context, n Notification) error {
	sms, ok := n.(SMSNotification)
	if !ok {
		return fmt.Errorf("sms sender cannot send %s notification", n.Channel())
	}
	if sms.PhoneNumber == "" {
		return fmt.Errorf("sms phone number is required")
	}

	requestID := uuid.NewString()
	var result smsResponse
	resp, err := s.httpClient.R().
		SetContext(ctx).
		SetHeader("X-Request-ID", requestID).
		SetBody(smsRequest{
			To:      sms.PhoneNumber,
			From:    s.cfg.From,
			Message: sms.Body,
		}).
		SetResult(&result).
		SetError(&result).
		Post(s.cfg.Path)
	if err != nil {
		return fmt.Errorf("failed to call sms gateway: %w", err)
	}

	if resp.IsError() {
		s.logger.Error("SMS gateway returned error",
			zap.String("request_id", requestID),
			zap.Int("status_code", resp.StatusCode()),
			zap.String("error", result.Error),
		)
		return fmt.Errorf("sms gateway error: status %d: %s", resp.StatusCode(), result.Error)
	}

	s.logger.Debug("SMS sent",
		zap.String("request_id", requestID),
		zap.String("message_id", result.MessageID),
	)
	return nil
}
