package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "localhost", cfg.Database.Host)
	assert.Equal(t, 5432, cfg.Database.Port)
	assert.Equal(t, 30*time.Minute, cfg.Dedup.Window)
	assert.Equal(t, 4, cfg.Dispatcher.Workers)
	assert.Equal(t, 256, cfg.Dispatcher.QueueSize)
	assert.Equal(t, 60*time.Second, cfg.SiteConfig.CacheTTL)
	assert.Equal(t, "alert:trigger:stream", cfg.Streams.AlertTrigger)
	assert.Equal(t, 5*time.Minute, cfg.Streams.ClaimMinIdle)
	assert.False(t, cfg.MQTT.Enabled)
	assert.False(t, cfg.Channels.EmailEnabled())
	assert.False(t, cfg.Channels.SMSEnabled())
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("DB_HOST", "db.lab")
	t.Setenv("DB_PORT", "6543")
	t.Setenv("REDIS_ADDR", "cache:6379")
	t.Setenv("SMTP_ENABLED", "true")
	t.Setenv("OZEKI_ACTIVE", "true")
	t.Setenv("SMS_GATEWAY_URL", "http://sms.lab")
	t.Setenv("DISPATCHER_WORKERS", "8")
	t.Setenv("ALERT_DEDUP_WINDOW", "10m")
	t.Setenv("ALERT_TRIGGER_STREAM", "lab:alerts")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "db.lab", cfg.Database.Host)
	assert.Equal(t, 6543, cfg.Database.Port)
	assert.Equal(t, "cache:6379", cfg.Redis.Addr)
	assert.True(t, cfg.Channels.EmailEnabled())
	assert.True(t, cfg.Channels.SMSEnabled())
	assert.Equal(t, 8, cfg.Dispatcher.Workers)
	assert.Equal(t, 10*time.Minute, cfg.Dedup.Window)
	assert.Equal(t, "lab:alerts", cfg.Streams.AlertTrigger)
}

func TestLoad_InvalidEnvKeepsDefault(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("DB_PORT", "not-a-port")
	t.Setenv("SMTP_ENABLED", "maybe")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 5432, cfg.Database.Port)
	assert.False(t, cfg.Channels.SMTPEnabled)
}

func TestLoad_YAMLFileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
database:
  host: yaml-db
  port: 5433
  database: lab
mqtt:
  enabled: true
  broker: tcp://broker:1883
  readings_topic: freezers/+/readings
dedup:
  window: 45m
channels:
  smtp_enabled: true
  smtp:
    host: mail.lab
    port: 587
    from: alerts@lab
site_config:
  cache_ttl: 2m
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	t.Setenv("CONFIG_FILE", path)
	t.Setenv("DB_HOST", "env-db")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "env-db", cfg.Database.Host)
	assert.Equal(t, 5433, cfg.Database.Port)
	assert.Equal(t, "lab", cfg.Database.Database)
	assert.True(t, cfg.MQTT.Enabled)
	assert.Equal(t, "tcp://broker:1883", cfg.MQTT.Broker)
	assert.Equal(t, "freezers/+/readings", cfg.MQTT.ReadingsTopic)
	assert.Equal(t, 45*time.Minute, cfg.Dedup.Window)
	assert.True(t, cfg.Channels.SMTPEnabled)
	assert.Equal(t, "mail.lab", cfg.Channels.SMTP.Host)
	assert.Equal(t, 587, cfg.Channels.SMTP.Port)
	assert.Equal(t, 2*time.Minute, cfg.SiteConfig.CacheTTL)
	// 文件未覆盖的字段保持默认值
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
}

func TestLoad_MissingFile(t *testing.T) {
	t.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "missing.yaml"))

	_, err := Load()
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	cfg.Channels.BMPSMSEnabled = true
	assert.Error(t, cfg.Validate(), "sms channel needs a gateway url")
	cfg.Channels.SMSGateway.BaseURL = "http://sms"
	assert.NoError(t, cfg.Validate())

	cfg.MQTT.Enabled = true
	cfg.MQTT.QoS = 3
	assert.Error(t, cfg.Validate())
	cfg.MQTT.QoS = 1
	cfg.MQTT.ReadingsTopic = ""
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Database.Host = ""
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Streams.Enabled = true
	cfg.Streams.ConsumerGroup = ""
	assert.Error(t, cfg.Validate())
}
