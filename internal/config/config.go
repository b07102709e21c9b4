package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"openelis-alert/common/config"
	"openelis-alert/internal/notification"
	"openelis-alert/internal/notification/sender"

	"gopkg.in/yaml.v3"
)

// Config 告警服务配置
// 加载顺序：默认值 → CONFIG_FILE 指定的 YAML → 环境变量
type Config struct {
	Database config.DatabaseConfig `yaml:"database"`
	Redis    config.RedisConfig    `yaml:"redis"`
	MQTT     MQTTConfig            `yaml:"mqtt"`

	Dedup struct {
		Window time.Duration `yaml:"window"`
	} `yaml:"dedup"`

	// 通知分发
	Dispatcher struct {
		Workers   int `yaml:"workers"`
		QueueSize int `yaml:"queue_size"`
	} `yaml:"dispatcher"`

	Channels struct {
		notification.ChannelFlags `yaml:",inline"`
		SMTP                      sender.SMTPConfig       `yaml:"smtp"`
		SMSGateway                sender.SMSGatewayConfig `yaml:"sms_gateway"`
	} `yaml:"channels"`

	Streams StreamsConfig `yaml:"streams"`

	SiteConfig struct {
		CacheTTL    time.Duration `yaml:"cache_ttl"`
		CachePrefix string        `yaml:"cache_prefix"`
	} `yaml:"site_config"`

	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
}

// MQTTConfig 冷库读数订阅
type MQTTConfig struct {
	config.MQTTConfig `yaml:",inline"`
	Enabled           bool   `yaml:"enabled"`
	ReadingsTopic     string `yaml:"readings_topic"`
}

// StreamsConfig 告警触发流
type StreamsConfig struct {
	Enabled       bool          `yaml:"enabled"`
	AlertTrigger  string        `yaml:"alert_trigger"`
	ConsumerGroup string        `yaml:"consumer_group"`
	ConsumerName  string        `yaml:"consumer_name"`
	BatchSize     int64         `yaml:"batch_size"`
	Block         time.Duration `yaml:"block"`
	// 其他消费者的 pending 消息闲置超过该时长后被转移重投；0 表示不转移
	ClaimMinIdle time.Duration `yaml:"claim_min_idle"`
}

// Load 加载配置，YAML 路径取自 CONFIG_FILE
func Load() (*Config, error) {
	return LoadFrom(os.Getenv("CONFIG_FILE"))
}

// LoadFrom 加载配置；path 为空时只用默认值和环境变量
func LoadFrom(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// Default 默认配置
func Default() *Config {
	cfg := &Config{}

	cfg.Database.Host = "localhost"
	cfg.Database.Port = 5432
	cfg.Database.User = "postgres"
	cfg.Database.Password = "postgres"
	cfg.Database.Database = "openelis"
	cfg.Database.SSLMode = "disable"
	cfg.Database.MaxConns = 25
	cfg.Database.MaxIdle = 5
	cfg.Database.ConnMaxLife = 5 * time.Minute

	cfg.Redis.Addr = "localhost:6379"

	cfg.MQTT.Broker = "tcp://localhost:1883"
	cfg.MQTT.ClientID = "openelis-alert"
	cfg.MQTT.QoS = 1
	cfg.MQTT.ReadingsTopic = "coldstorage/+/readings"

	cfg.Dedup.Window = 30 * time.Minute

	cfg.Dispatcher.Workers = 4
	cfg.Dispatcher.QueueSize = 256

	cfg.Channels.SMTP.Host = "localhost"
	cfg.Channels.SMTP.Port = 25
	cfg.Channels.SMTP.From = "openelis@localhost"
	cfg.Channels.SMSGateway.Timeout = 10 * time.Second
	cfg.Channels.SMSGateway.RetryCount = 2

	cfg.Streams.AlertTrigger = "alert:trigger:stream"
	cfg.Streams.ConsumerGroup = "openelis-alert-group"
	cfg.Streams.ConsumerName = "openelis-alert"
	cfg.Streams.BatchSize = 10
	cfg.Streams.Block = 2 * time.Second
	cfg.Streams.ClaimMinIdle = 5 * time.Minute

	cfg.SiteConfig.CacheTTL = 60 * time.Second
	cfg.SiteConfig.CachePrefix = "openelis:siteinfo:"

	cfg.Log.Level = "info"
	cfg.Log.Format = "json"

	return cfg
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.Database.Host = getEnv("DB_HOST", c.Database.Host)
	c.Database.Port = parseInt(os.Getenv("DB_PORT"), c.Database.Port)
	c.Database.User = getEnv("DB_USER", c.Database.User)
	c.Database.Password = getEnv("DB_PASSWORD", c.Database.Password)
	c.Database.Database = getEnv("DB_NAME", c.Database.Database)
	c.Database.SSLMode = getEnv("DB_SSLMODE", c.Database.SSLMode)

	c.Redis.Addr = getEnv("REDIS_ADDR", c.Redis.Addr)
	c.Redis.Password = getEnv("REDIS_PASSWORD", c.Redis.Password)
	c.Redis.DB = parseInt(os.Getenv("REDIS_DB"), c.Redis.DB)

	c.MQTT.Enabled = parseBool(os.Getenv("MQTT_ENABLED"), c.MQTT.Enabled)
	c.MQTT.Broker = getEnv("MQTT_BROKER", c.MQTT.Broker)
	c.MQTT.ClientID = getEnv("MQTT_CLIENT_ID", c.MQTT.ClientID)
	c.MQTT.Username = getEnv("MQTT_USERNAME", c.MQTT.Username)
	c.MQTT.Password = getEnv("MQTT_PASSWORD", c.MQTT.Password)
	c.MQTT.ReadingsTopic = getEnv("MQTT_READINGS_TOPIC", c.MQTT.ReadingsTopic)

	if v := os.Getenv("ALERT_DEDUP_WINDOW"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.Dedup.Window = d
		}
	}

	c.Dispatcher.Workers = parseInt(os.Getenv("DISPATCHER_WORKERS"), c.Dispatcher.Workers)
	c.Dispatcher.QueueSize = parseInt(os.Getenv("DISPATCHER_QUEUE_SIZE"), c.Dispatcher.QueueSize)

	c.Channels.SMTPEnabled = parseBool(os.Getenv("SMTP_ENABLED"), c.Channels.SMTPEnabled)
	c.Channels.BMPSMSEnabled = parseBool(os.Getenv("BMP_SMS_ENABLED"), c.Channels.BMPSMSEnabled)
	c.Channels.SMPPSMSEnabled = parseBool(os.Getenv("SMPP_SMS_ENABLED"), c.Channels.SMPPSMSEnabled)
	c.Channels.OzekiActive = parseBool(os.Getenv("OZEKI_ACTIVE"), c.Channels.OzekiActive)
	c.Channels.SMTP.Host = getEnv("SMTP_HOST", c.Channels.SMTP.Host)
	c.Channels.SMTP.Port = parseInt(os.Getenv("SMTP_PORT"), c.Channels.SMTP.Port)
	c.Channels.SMTP.Username = getEnv("SMTP_USERNAME", c.Channels.SMTP.Username)
	c.Channels.SMTP.Password = getEnv("SMTP_PASSWORD", c.Channels.SMTP.Password)
	c.Channels.SMTP.From = getEnv("SMTP_FROM", c.Channels.SMTP.From)
	c.Channels.SMSGateway.BaseURL = getEnv("SMS_GATEWAY_URL", c.Channels.SMSGateway.BaseURL)
	c.Channels.SMSGateway.APIKey = getEnv("SMS_GATEWAY_API_KEY", c.Channels.SMSGateway.APIKey)
	c.Channels.SMSGateway.From = getEnv("SMS_GATEWAY_FROM", c.Channels.SMSGateway.From)

	c.Streams.Enabled = parseBool(os.Getenv("ALERT_TRIGGER_ENABLED"), c.Streams.Enabled)
	c.Streams.AlertTrigger = getEnv("ALERT_TRIGGER_STREAM", c.Streams.AlertTrigger)
	c.Streams.ConsumerGroup = getEnv("CONSUMER_GROUP", c.Streams.ConsumerGroup)
	c.Streams.ConsumerName = getEnv("CONSUMER_NAME", c.Streams.ConsumerName)

	c.Log.Level = getEnv("LOG_LEVEL", c.Log.Level)
	c.Log.Format = getEnv("LOG_FORMAT", c.Log.Format)
}

// Validate 检查配置；MQTT / 短信网关只在启用时校验
func (c *Config) Validate() error {
	if err := c.Database.Validate(); err != nil {
		return err
	}
	if err := c.Redis.Validate(); err != nil {
		return err
	}
	if c.MQTT.Enabled {
		if err := c.MQTT.MQTTConfig.Validate(); err != nil {
			return err
		}
		if c.MQTT.ReadingsTopic == "" {
			return errors.New("mqtt readings topic is required")
		}
	}
	if c.Streams.Enabled && (c.Streams.AlertTrigger == "" || c.Streams.ConsumerGroup == "") {
		return errors.New("alert trigger stream and consumer group are required")
	}
	if c.Channels.SMSEnabled() && c.Channels.SMSGateway.BaseURL == "" {
		return errors.New("sms gateway url is required when an sms channel is enabled")
	}
	if c.Dispatcher.Workers < 0 || c.Dispatcher.QueueSize < 0 {
		return fmt.Errorf("invalid dispatcher settings: workers=%d queue_size=%d", c.Dispatcher.Workers, c.Dispatcher.QueueSize)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func parseInt(s string, defaultValue int) int {
	if s == "" {
		return defaultValue
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return defaultValue
	}
	return v
}

func parseBool(s string, defaultValue bool) bool {
	if s == "" {
		return defaultValue
	}
	v, err := strconv.ParseBool(s)
	if err != nil {
		return defaultValue
	}
	return v
}
