package mirror

import (
	"errors"
	"sync"
	"time"

	"live-relay/config"
	"live-relay/utils"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/sirupsen/logrus"
)

const (
	connectTimeout = 10 * time.Second
	publishTimeout = 5 * time.Second
	pendingTokens  = 256
)

var ErrNoBroker = errors.New("未配置 MQTT broker")

// MQTTMirror 把每条广播发布到 MQTT 主题，QoS 0，不保留
type MQTTMirror struct {
	client mqtt.Client
	topic  string
	log    *logrus.Entry

	mu     sync.RWMutex
	closed bool
	tokens chan mqtt.Token
	done   chan struct{}
}

func NewMQTTMirror(cfg config.MQTTConfig) (*MQTTMirror, error) {
	if cfg.Broker == "" {
		return nil, ErrNoBroker
	}

	log := utils.Component("mqtt").WithField("broker", cfg.Broker)

	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	opts.SetCleanSession(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(5 * time.Second)
	opts.SetConnectTimeout(5 * time.Second)
	opts.SetAutoReconnect(true)
	opts.SetOnConnectHandler(func(c mqtt.Client) {
		log.Info("已连接 MQTT broker")
	})
	opts.SetConnectionLostHandler(func(c mqtt.Client, err error) {
		if err != nil {
			log.Warnf("MQTT 连接断开: %v", err)
		}
	})

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		log.Warn("连接 MQTT broker 超时，后台继续重试")
	} else if err := token.Error(); err != nil {
		return nil, err
	}

	return newMQTTMirror(client, cfg.Topic, log), nil
}

func newMQTTMirror(client mqtt.Client, topic string, log *logrus.Entry) *MQTTMirror {
	m := &MQTTMirror{
		client: client,
		topic:  topic,
		log:    log,
		tokens: make(chan mqtt.Token, pendingTokens),
		done:   make(chan struct{}),
	}
	go m.watch()
	return m
}

// Publish 异步发布，失败只记录日志
func (m *MQTTMirror) Publish(data []byte) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return
	}

	token := m.client.Publish(m.topic, 0, false, data)
	select {
	case m.tokens <- token:
	default:
		m.log.Debug("发布结果队列已满，跳过检查")
	}
}

func (m *MQTTMirror) watch() {
	defer close(m.done)
	for token := range m.tokens {
		if !token.WaitTimeout(publishTimeout) {
			m.log.Warn("MQTT 发布超时")
			continue
		}
		if err := token.Error(); err != nil {
			m.log.Warnf("MQTT 发布失败: %v", err)
		}
	}
}

func (m *MQTTMirror) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	close(m.tokens)
	m.mu.Unlock()

	<-m.done
	m.client.Disconnect(250)
	m.log.Info("MQTT 镜像已关闭")
}
