package sender

import (
	"context"
	"errors"
	"fmt"
)

// Channel 通知渠道
type Channel string

const (
	ChannelEmail Channel = "email"
	ChannelSMS   Channel = "sms"
)

// ErrNoSender 没有处理该渠道的发送器
var ErrNoSender = errors.New("no sender registered for channel")

// Notification 待发送的通知
type Notification interface {
	Channel() Channel
}

// EmailNotification 邮件通知；BCC 不出现在邮件头
type EmailNotification struct {
	To      string
	BCC     []string
	Subject string
	Body    string
}

func (EmailNotification) Channel() Channel { return ChannelEmail }

// SMSNotification 短信通知；PhoneNumber 只含数字
type SMSNotification struct {
	PhoneNumber string
	Subject     string
	Body        string
}

func (SMSNotification) Channel() Channel { return ChannelSMS }

// Sender 渠道发送器
type Sender interface {
	Channel() Channel
	Send(ctx context.Context, n Notification) error
}

// Dispatch 发给所有渠道匹配的发送器，汇总错误
func Dispatch(ctx context.Context, senders []Sender, n Notification) error {
	var errs []error
	matched := 0
	for _, s := range senders {
		if s.Channel() != n.Channel() {
			continue
		}
		matched++
		if err := s.Send(ctx, n); err != nil {
			errs = append(errs, err)
		}
	}
	if matched == 0 {
		return fmt.Errorf("%w: %s", ErrNoSender, n.Channel())
	}
	return errors.Join(errs...)
}
