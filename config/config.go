package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// 支持的上游
const (
	ProviderBilibili = "bilibili"
	ProviderTwitch   = "twitch"
	ProviderMock     = "mock"
)

// healthPortAuto 表示健康检查端口取 Port+1
const healthPortAuto = -1

var ErrInvalidConfig = errors.New("配置无效")

type Config struct {
	Host              string        `yaml:"host"`
	Port              int           `yaml:"port"`
	HealthPort        int           `yaml:"health_port"`
	Provider          string        `yaml:"provider"`
	InitialTarget     string        `yaml:"watch"`
	LogLevel          string        `yaml:"log_level"`
	CookiePath        string        `yaml:"cookie_path"`
	DanmuURL          string        `yaml:"danmu_url"`
	ConnectTimeout    time.Duration `yaml:"connect_timeout"`
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`
	StatusInterval    time.Duration `yaml:"status_interval"`
	SendBuffer        int           `yaml:"send_buffer"`
	MockInterval      time.Duration `yaml:"mock_interval"`
	MQTT              MQTTConfig    `yaml:"mqtt"`
}

// MQTTConfig 广播事件的 MQTT 镜像，Broker 为空时关闭
type MQTTConfig struct {
	Broker   string `yaml:"broker"`
	Topic    string `yaml:"topic"`
	ClientID string `yaml:"client_id"`
}

func NewConfig() *Config {
	return &Config{
		Host:              "0.0.0.0",
		Port:              8080,
		HealthPort:        healthPortAuto,
		Provider:          ProviderBilibili,
		LogLevel:          "info",
		CookiePath:        "config/cookie.json",
		DanmuURL:          "wss://broadcastlv.chat.bilibili.com:443/sub",
		ConnectTimeout:    15 * time.Second,
		HeartbeatInterval: 30 * time.Second,
		StatusInterval:    time.Minute,
		SendBuffer:        256,
		MQTT: MQTTConfig{
			Topic:    "live-relay/events",
			ClientID: "live-relay",
		},
	}
}

// Load 依次应用默认值、YAML 文件（path 非空时）和环境变量
func Load(path string) (*Config, error) {
	cfg := NewConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("解析配置文件 %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	if cfg.HealthPort == healthPortAuto {
		cfg.HealthPort = cfg.Port + 1
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Addr 订阅者监听地址
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// HealthAddr 健康检查监听地址，关闭时返回空
func (c *Config) HealthAddr() string {
	if c.HealthPort == 0 {
		return ""
	}
	return fmt.Sprintf("%s:%d", c.Host, c.HealthPort)
}

func (c *Config) applyEnv() error {
	setString(&c.Host, "HOST")
	setString(&c.Provider, "UPSTREAM_PROVIDER")
	setString(&c.InitialTarget, "WATCH_TARGET")
	setString(&c.LogLevel, "LOG_LEVEL")
	setString(&c.CookiePath, "COOKIE_PATH")
	setString(&c.DanmuURL, "DANMU_URL")
	setString(&c.MQTT.Broker, "MQTT_BROKER")
	setString(&c.MQTT.Topic, "MQTT_TOPIC")
	setString(&c.MQTT.ClientID, "MQTT_CLIENT_ID")

	if err := setInt(&c.Port, "PORT"); err != nil {
		return err
	}
	if err := setInt(&c.HealthPort, "HEALTH_PORT"); err != nil {
		return err
	}
	if err := setDuration(&c.ConnectTimeout, "CONNECT_TIMEOUT"); err != nil {
		return err
	}
	if err := setDuration(&c.StatusInterval, "STATUS_INTERVAL"); err != nil {
		return err
	}
	return setDuration(&c.MockInterval, "MOCK_INTERVAL")
}

func (c *Config) validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("%w: port %d", ErrInvalidConfig, c.Port)
	}
	if c.HealthPort < 0 || c.HealthPort > 65535 {
		return fmt.Errorf("%w: health_port %d", ErrInvalidConfig, c.HealthPort)
	}
	if c.HealthPort == c.Port {
		return fmt.Errorf("%w: health_port 与 port 相同", ErrInvalidConfig)
	}

	switch c.Provider {
	case ProviderBilibili, ProviderTwitch, ProviderMock:
	default:
		return fmt.Errorf("%w: provider %q", ErrInvalidConfig, c.Provider)
	}

	if c.ConnectTimeout <= 0 {
		return fmt.Errorf("%w: connect_timeout 必须大于零", ErrInvalidConfig)
	}
	if c.HeartbeatInterval <= 0 {
		return fmt.Errorf("%w: heartbeat_interval 必须大于零", ErrInvalidConfig)
	}
	if c.SendBuffer <= 0 {
		return fmt.Errorf("%w: send_buffer 必须大于零", ErrInvalidConfig)
	}
	if c.StatusInterval < 0 || c.MockInterval < 0 {
		return fmt.Errorf("%w: 时间间隔不能为负", ErrInvalidConfig)
	}
	if c.MQTT.Broker != "" && c.MQTT.Topic == "" {
		return fmt.Errorf("%w: mqtt.topic 不能为空", ErrInvalidConfig)
	}

	return nil
}

func setString(dst *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) error {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("%w: %s=%q", ErrInvalidConfig, key, v)
	}
	*dst = n
	return nil
}

func setDuration(dst *time.Duration, key string) error {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("%w: %s=%q", ErrInvalidConfig, key, v)
	}
	*dst = d
	return nil
}
