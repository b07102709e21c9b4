package sender

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/smtp"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type stubSender struct {
	channel Channel
	err     error
	sent    []Notification
}

func (s *stubSender) Channel() Channel { return s.channel }

func (s *stubSender) Send(_ context.Context, n Notification) error {
	s.sent = append(s.sent, n)
	return s.err
}

func TestDispatch_RoutesByChannel(t *testing.T) {
	email := &stubSender{channel: ChannelEmail}
	sms := &stubSender{channel: ChannelSMS}

	err := Dispatch(context.Background(), []Sender{email, sms}, SMSNotification{PhoneNumber: "15551234567"})

	require.NoError(t, err)
	assert.Empty(t, email.sent)
	assert.Len(t, sms.sent, 1)
}

func TestDispatch_JoinsErrorsAndTriesAllSenders(t *testing.T) {
	first := &stubSender{channel: ChannelEmail, err: errors.New("relay down")}
	second := &stubSender{channel: ChannelEmail}

	err := Dispatch(context.Background(), []Sender{first, second}, EmailNotification{To: "lab@example.org"})

	assert.ErrorContains(t, err, "relay down")
	assert.Len(t, second.sent, 1)
}

func TestDispatch_NoSender(t *testing.T) {
	err := Dispatch(context.Background(), nil, EmailNotification{To: "lab@example.org"})
	assert.True(t, errors.Is(err, ErrNoSender))
}

func TestSMTPSender_Send(t *testing.T) {
	var gotAddr, gotFrom string
	var gotTo []string
	var gotMsg []byte

	s := NewSMTPSender(SMTPConfig{Host: "smtp.example.org", Port: 587, From: "alerts@example.org"}, zap.NewNop()).
		WithSendMail(func(addr string, _ smtp.Auth, from string, to []string, msg []byte) error {
			gotAddr, gotFrom, gotTo, gotMsg = addr, from, to, msg
			return nil
		})
	s.now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }

	err := s.Send(context.Background(), EmailNotification{
		To:      "lab@example.org",
		BCC:     []string{"qa@example.org"},
		Subject: "Alert: CRITICAL - FREEZER_TEMPERATURE",
		Body:    "line one\nline two",
	})
	require.NoError(t, err)

	assert.Equal(t, "smtp.example.org:587", gotAddr)
	assert.Equal(t, "alerts@example.org", gotFrom)
	assert.Equal(t, []string{"lab@example.org", "qa@example.org"}, gotTo)

	msg := string(gotMsg)
	assert.Contains(t, msg, "To: lab@example.org\r\n")
	assert.Contains(t, msg, "Subject: Alert: CRITICAL - FREEZER_TEMPERATURE\r\n")
	assert.Contains(t, msg, "line one\r\nline two")
	assert.NotContains(t, msg, "qa@example.org")
}

func TestSMTPSender_RejectsWrongNotification(t *testing.T) {
	s := NewSMTPSender(SMTPConfig{Host: "localhost", Port: 25}, zap.NewNop())

	err := s.Send(context.Background(), SMSNotification{PhoneNumber: "1"})
	assert.Error(t, err)

	err = s.Send(context.Background(), EmailNotification{})
	assert.ErrorContains(t, err, "recipient is required")
}

func TestSMTPSender_HeaderInjectionStripped(t *testing.T) {
	var gotMsg []byte
	s := NewSMTPSender(SMTPConfig{Host: "localhost", Port: 25}, zap.NewNop()).
		WithSendMail(func(_ string, _ smtp.Auth, _ string, _ []string, msg []byte) error {
			gotMsg = msg
			return nil
		})

	require.NoError(t, s.Send(context.Background(), EmailNotification{To: "a@example.org", Subject: "x\r\nBcc: evil@example.org"}))
	assert.False(t, strings.Contains(string(gotMsg), "\r\nBcc:"))
}

func TestSMTPSender_AddressHeadersStripped(t *testing.T) {
	var gotMsg []byte
	s := NewSMTPSender(SMTPConfig{Host: "localhost", Port: 25, From: "alerts@example.org\nReply-To: evil@example.org"}, zap.NewNop()).
		WithSendMail(func(_ string, _ smtp.Auth, _ string, _ []string, msg []byte) error {
			gotMsg = msg
			return nil
		})

	// 收件人来自可编辑的站点配置
	require.NoError(t, s.Send(context.Background(), EmailNotification{To: "lab@example.org\r\nBcc: evil@example.org", Subject: "x"}))

	headers := strings.SplitN(string(gotMsg), "\r\n\r\n", 2)[0]
	for _, line := range strings.Split(strings.ReplaceAll(headers, "\r\n", "\n"), "\n") {
		assert.False(t, strings.HasPrefix(line, "Bcc:"), line)
		assert.False(t, strings.HasPrefix(line, "Reply-To:"), line)
	}
	assert.Contains(t, headers, "To: lab@example.org  Bcc: evil@example.org\r\n")
	assert.Contains(t, headers, "From: alerts@example.org Reply-To: evil@example.org\r\n")
}

func TestHTTPSMSSender_Send(t *testing.T) {
	var got smsRequest
	var auth, requestID string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/sms", r.URL.Path)
		auth = r.Header.Get("Authorization")
		requestID = r.Header.Get("X-Request-ID")
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"message_id":"m-1","status":"queued"}`))
	}))
	defer srv.Close()

	s := NewHTTPSMSSender(SMSGatewayConfig{BaseURL: srv.URL, Path: "/api/sms", APIKey: "secret", From: "OpenELIS"}, zap.NewNop())

	err := s.Send(context.Background(), SMSNotification{PhoneNumber: "15551234567", Subject: "s", Body: "s\n\nbody"})
	require.NoError(t, err)

	assert.Equal(t, "15551234567", got.To)
	assert.Equal(t, "OpenELIS", got.From)
	assert.Equal(t, "s\n\nbody", got.Message)
	assert.Equal(t, "Bearer secret", auth)
	assert.NotEmpty(t, requestID)
}

func TestHTTPSMSSender_GatewayError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"invalid number"}`))
	}))
	defer srv.Close()

	s := NewHTTPSMSSender(SMSGatewayConfig{BaseURL: srv.URL}, zap.NewNop())

	err := s.Send(context.Background(), SMSNotification{PhoneNumber: "1"})
	assert.ErrorContains(t, err, "status 400")
	assert.ErrorContains(t, err, "invalid number")
}
