package sender

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// SMTPConfig SMTP 中继配置
type SMTPConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	From     string `yaml:"from"`
}

// Addr host:port
func (c SMTPConfig) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// SendMailFunc 与 smtp.SendMail 签名一致，测试时替换
type SendMailFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// SMTPSender 邮件发送器
type SMTPSender struct {
	cfg      SMTPConfig
	auth     smtp.Auth
	sendMail SendMailFunc
	now      func() time.Time
	logger   *zap.Logger
}

// NewSMTPSender 创建邮件发送器；未配置用户名时不做认证
func NewSMTPSender(cfg SMTPConfig, logger *zap.Logger) *SMTPSender {
	var auth smtp.Auth
	if cfg.Username != "" {
		auth = smtp.PlainAuth("", cfg.Username, cfg.Password, cfg.Host)
	}
	return &SMTPSender{
		cfg:      cfg,
		auth:     auth,
		sendMail: smtp.SendMail,
		now:      time.Now,
		logger:   logger,
	}
}

// WithSendMail 替换底层发送函数
func (s *SMTPSender) WithSendMail(fn SendMailFunc) *SMTPSender {
	s.sendMail = fn
	return s
}

func (s *SMTPSender) Channel() Channel { return ChannelEmail }

// Send 发送邮件：收件人 = To + BCC
func (s *SMTPSender) Send(ctx context.Context, n Notification) error {
	email, ok := n.(EmailNotification)
	if !ok {
		return fmt.Errorf("smtp sender cannot send %s notification", n.Channel())
	}
	if email.To == "" {
		return fmt.Errorf("email recipient is required")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	recipients := append([]string{email.To}, email.BCC...)
	msg := s.buildMessage(email)

	if err := s.sendMail(s.cfg.Addr(), s.auth, s.cfg.From, recipients, msg); err != nil {
		return fmt.Errorf("failed to send email via %s: %w", s.cfg.Addr(), err)
	}

	s.logger.Debug("Email sent",
		zap.String("to", email.To),
		zap.Int("bcc_count", len(email.BCC)),
	)
	return nil
}

func (s *SMTPSender) buildMessage(email EmailNotification) []byte {
	var b bytes.Buffer
	fmt.Fprintf(&b, "From: %s\r\n", sanitizeHeader(s.cfg.From))
	fmt.Fprintf(&b, "To: %s\r\n", sanitizeHeader(email.To))
	fmt.Fprintf(&b, "Subject: %s\r\n", sanitizeHeader(email.Subject))
	fmt.Fprintf(&b, "Date: %s\r\n", s.now().Format(time.RFC1123Z))
	fmt.Fprintf(&b, "Message-ID: <%s@%s>\r\n", uuid.NewString(), s.cfg.Host)
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(strings.ReplaceAll(email.Body, "\n", "\r\n"))
	return b.Bytes()
}

// sanitizeHeader 去掉换行，防止头注入
func sanitizeHeader(v string) string {
	return strings.NewReplacer("\r", " ", "\n", " ").Replace(v)
}
