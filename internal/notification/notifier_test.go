package notification

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"openelis-alert/internal/models"
	"openelis-alert/internal/notification/sender"
	"openelis-alert/internal/repository"
	"openelis-alert/internal/siteconfig"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeSender struct {
	mu      sync.Mutex
	channel sender.Channel
	err     error
	panics  bool
	sent    []sender.Notification
}

func (s *fakeSender) Channel() sender.Channel { return s.channel }

func (s *fakeSender) Send(_ context.Context, n sender.Notification) error {
	if s.panics {
		panic("boom")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, n)
	return s.err
}

func (s *fakeSender) Sent() []sender.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]sender.Notification(nil), s.sent...)
}

type notifierFixture struct {
	configs  *repository.MemoryNotificationConfigRepo
	settings *siteconfig.Service
	email    *fakeSender
	sms      *fakeSender
}

func newNotifierFixture(t *testing.T) *notifierFixture {
	t.Helper()
	f := &notifierFixture{
		configs:  repository.NewMemoryNotificationConfigRepo(),
		settings: siteconfig.NewService(repository.NewMemorySiteInformationRepo(), zap.NewNop()),
		email:    &fakeSender{channel: sender.ChannelEmail},
		sms:      &fakeSender{channel: sender.ChannelSMS},
	}
	ctx := context.Background()
	require.NoError(t, f.settings.SetAlertNotificationEmail(ctx, "lab@example.org"))
	require.NoError(t, f.settings.SetAlertNotificationPhone(ctx, "+1 (555) 123-4567"))
	return f
}

func (f *notifierFixture) enable(t *testing.T, nature models.NotificationNature, method models.NotificationMethod, contacts string) {
	t.Helper()
	require.NoError(t, f.configs.Upsert(context.Background(), &models.NotificationConfigOption{
		Nature:             nature,
		Method:             method,
		Active:             true,
		AdditionalContacts: contacts,
	}))
}

func (f *notifierFixture) notifier(flags ChannelFlags) *AlertNotifier {
	return NewAlertNotifier(f.configs, f.settings, []sender.Sender{f.email, f.sms}, flags, zap.NewNop())
}

var allChannels = ChannelFlags{SMTPEnabled: true, SMPPSMSEnabled: true}

func freezerAlert() *models.Alert {
	return &models.Alert{
		ID:        1,
		AlertType: models.AlertTypeFreezerTemperature,
		Entity:    models.EntityKey{EntityType: "Freezer", EntityID: 100},
		Severity:  models.SeverityCritical,
		Status:    models.StatusOpen,
		Message:   "Temperature -15.5C above critical -18.0C",
		StartTime: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func created(a *models.Alert) models.AlertEvent {
	return models.AlertEvent{Kind: models.AlertCreated, Alert: a, OccurredAt: a.StartTime}
}

func TestNotifier_SendsEmailAndSMS(t *testing.T) {
	f := newNotifierFixture(t)
	f.enable(t, models.NatureFreezerTemperatureAlert, models.MethodEmail, "qa@example.org, ops@example.org")
	f.enable(t, models.NatureFreezerTemperatureAlert, models.MethodSMS, "")

	f.notifier(allChannels).Handle(context.Background(), created(freezerAlert()))

	require.Len(t, f.email.Sent(), 1)
	email := f.email.Sent()[0].(sender.EmailNotification)
	assert.Equal(t, "lab@example.org", email.To)
	assert.Equal(t, []string{"qa@example.org", "ops@example.org"}, email.BCC)
	assert.Equal(t, "Alert: CRITICAL - FREEZER_TEMPERATURE", email.Subject)
	assert.Contains(t, email.Body, "Entity: Freezer (ID: 100)")

	require.Len(t, f.sms.Sent(), 1)
	sms := f.sms.Sent()[0].(sender.SMSNotification)
	assert.Equal(t, "15551234567", sms.PhoneNumber)
	assert.Equal(t, email.Subject+"\n\n"+email.Body, sms.Body)
}

func TestNotifier_SkipsAlertTypesWithoutNature(t *testing.T) {
	f := newNotifierFixture(t)
	f.enable(t, models.NatureFreezerTemperatureAlert, models.MethodEmail, "")

	a := freezerAlert()
	a.AlertType = models.AlertTypeSampleTracking
	f.notifier(allChannels).Handle(context.Background(), created(a))

	a.AlertType = models.AlertTypeOther
	f.notifier(allChannels).Handle(context.Background(), created(a))

	assert.Empty(t, f.email.Sent())
	assert.Empty(t, f.sms.Sent())
}

func TestNotifier_SkipsWhenNoConfigOrInactive(t *testing.T) {
	f := newNotifierFixture(t)
	f.notifier(allChannels).Handle(context.Background(), created(freezerAlert()))
	assert.Empty(t, f.email.Sent())

	require.NoError(t, f.configs.Upsert(context.Background(), &models.NotificationConfigOption{
		Nature: models.NatureFreezerTemperatureAlert,
		Method: models.MethodEmail,
		Active: false,
	}))
	f.notifier(allChannels).Handle(context.Background(), created(freezerAlert()))
	assert.Empty(t, f.email.Sent())
}

func TestNotifier_RespectsSystemChannelFlags(t *testing.T) {
	f := newNotifierFixture(t)
	f.enable(t, models.NatureFreezerTemperatureAlert, models.MethodEmail, "")
	f.enable(t, models.NatureFreezerTemperatureAlert, models.MethodSMS, "")

	f.notifier(ChannelFlags{}).Handle(context.Background(), created(freezerAlert()))
	assert.Empty(t, f.email.Sent())
	assert.Empty(t, f.sms.Sent())

	f.notifier(ChannelFlags{OzekiActive: true}).Handle(context.Background(), created(freezerAlert()))
	assert.Empty(t, f.email.Sent())
	assert.Len(t, f.sms.Sent(), 1)
}

func TestNotifier_PhoneWithoutDigitsSkipsSMS(t *testing.T) {
	f := newNotifierFixture(t)
	f.enable(t, models.NatureFreezerTemperatureAlert, models.MethodSMS, "")
	require.NoError(t, f.settings.SetAlertNotificationPhone(context.Background(), "call the lab"))

	f.notifier(allChannels).Handle(context.Background(), created(freezerAlert()))

	assert.Empty(t, f.sms.Sent())
}

func TestNotifier_MissingEmailRecipientSkipsEmail(t *testing.T) {
	f := newNotifierFixture(t)
	f.enable(t, models.NatureEquipmentAlert, models.MethodEmail, "")
	require.NoError(t, f.settings.SetAlertNotificationEmail(context.Background(), ""))

	a := freezerAlert()
	a.AlertType = models.AlertTypeEquipmentFailure
	f.notifier(allChannels).Handle(context.Background(), created(a))

	assert.Empty(t, f.email.Sent())
}

func TestNotifier_EmailFailureDoesNotBlockSMS(t *testing.T) {
	f := newNotifierFixture(t)
	f.enable(t, models.NatureFreezerTemperatureAlert, models.MethodEmail, "")
	f.enable(t, models.NatureFreezerTemperatureAlert, models.MethodSMS, "")
	f.email.err = errors.New("relay refused")

	f.notifier(allChannels).Handle(context.Background(), created(freezerAlert()))

	assert.Len(t, f.email.Sent(), 1)
	assert.Len(t, f.sms.Sent(), 1)
}

func TestNotifier_EmailPanicDoesNotBlockSMS(t *testing.T) {
	f := newNotifierFixture(t)
	f.enable(t, models.NatureFreezerTemperatureAlert, models.MethodEmail, "")
	f.enable(t, models.NatureFreezerTemperatureAlert, models.MethodSMS, "")
	f.email.panics = true

	assert.NotPanics(t, func() {
		f.notifier(allChannels).Handle(context.Background(), created(freezerAlert()))
	})
	assert.Len(t, f.sms.Sent(), 1)
}

func TestNotifier_IgnoresLifecycleEvents(t *testing.T) {
	f := newNotifierFixture(t)
	f.enable(t, models.NatureFreezerTemperatureAlert, models.MethodEmail, "")

	a := freezerAlert()
	f.notifier(allChannels).Handle(context.Background(), models.AlertEvent{Kind: models.AlertAcknowledged, Alert: a})
	f.notifier(allChannels).Handle(context.Background(), models.AlertEvent{Kind: models.AlertResolved, Alert: a})

	assert.Empty(t, f.email.Sent())
}

func TestBuildMessage(t *testing.T) {
	a := freezerAlert()
	assert.Equal(t, "Alert: CRITICAL - FREEZER_TEMPERATURE", BuildSubject(a))
	assert.Equal(t,
		"Alert Type: FREEZER_TEMPERATURE\n"+
			"Severity: CRITICAL\n"+
			"Entity: Freezer (ID: 100)\n"+
			"Message: Temperature -15.5C above critical -18.0C\n"+
			"Time: 2026-03-01 12:00:00 UTC\n",
		BuildMessage(a))
}

func TestExtractDigits(t *testing.T) {
	assert.Equal(t, "15551234567", ExtractDigits("+1 (555) 123-4567"))
	assert.Equal(t, "", ExtractDigits("n/a"))
	assert.Equal(t, "0712345678", ExtractDigits("0712 345 678"))
}
