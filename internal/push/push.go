// Package push delivers notifications over MQTT. Each user has one topic,
// <prefix>/<userID>, carrying JSON-encoded models.Notification payloads.
package push

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/sirupsen/logrus"

	"github.com/ukydev/fleet-requests/internal/models"
)

const (
	DefaultTopicPrefix = "fleet/notifications"
	defaultQoS         = byte(1)
	defaultWait        = 5 * time.Second
)

var (
	ErrTimeout = errors.New("mqtt operation timed out")
	ErrClosed  = errors.New("listener closed")
)

// Broker is the part of mqtt.Client the package uses.
type Broker interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Subscribe(topic string, qos byte, callback mqtt.MessageHandler) mqtt.Token
	Unsubscribe(topics ...string) mqtt.Token
	Disconnect(quiesce uint)
}

// Config holds broker connection settings.
type Config struct {
	BrokerURL   string
	ClientID    string
	Username    string
	Password    string
	TopicPrefix string
	Timeout     time.Duration
}

// Dial connects to the broker described by cfg.
func Dial(cfg Config, log *logrus.Entry) (mqtt.Client, error) {
	if cfg.BrokerURL == "" {
		return nil, errors.New("mqtt broker url is required")
	}
	wait := cfg.Timeout
	if wait <= 0 {
		wait = defaultWait
	}

	opts := mqtt.NewClientOptions().
		AddBroker(cfg.BrokerURL).
		SetClientID(cfg.ClientID).
		SetUsername(cfg.Username).
		SetPassword(cfg.Password).
		SetCleanSession(true).
		SetAutoReconnect(true).
		SetOrderMatters(true).
		SetConnectTimeout(wait).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			log.WithError(err).Warn("mqtt connection lost")
		}).
		SetOnConnectHandler(func(mqtt.Client) {
			log.WithField("broker", cfg.BrokerURL).Info("mqtt connected")
		})

	client := mqtt.NewClient(opts)
	if err := await(client.Connect(), wait); err != nil {
		return nil, fmt.Errorf("connect %s: %w", cfg.BrokerURL, err)
	}
	return client, nil
}

func await(tok mqtt.Token, wait time.Duration) error {
	if !tok.WaitTimeout(wait) {
		return ErrTimeout
	}
	return tok.Error()
}

// Topic returns the notification topic of userID.
func Topic(prefix, userID string) string {
	if prefix == "" {
		prefix = DefaultTopicPrefix
	}
	return strings.TrimRight(prefix, "/") + "/" + userID
}

// Decode parses a notification payload. Unknown notification types are
// rejected.
func Decode(payload []byte) (models.Notification, error) {
	var n models.Notification
	if err := json.Unmarshal(payload, &n); err != nil {
		return models.Notification{}, fmt.Errorf("decode notification: %w", err)
	}
	if _, err := models.NotificationTypeDisplay(n.Type); err != nil {
		return models.Notification{}, err
	}
	return n, nil
}

// Handler receives decoded notifications.
type Handler func(models.Notification)

// Listener subscribes to per-user notification topics.
type Listener struct {
	broker Broker
	prefix string
	wait   time.Duration
	log    *logrus.Entry

	mu     sync.Mutex
	topics []string
	closed bool
}

// NewListener wraps a connected broker.
func NewListener(b Broker, prefix string, log *logrus.Entry) *Listener {
	return &Listener{broker: b, prefix: prefix, wait: defaultWait, log: log}
}

// Subscribe delivers every notification addressed to userID to h. Payloads
// that fail to decode are logged and dropped.
func (l *Listener) Subscribe(userID string, h Handler) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return ErrClosed
	}

	topic := Topic(l.prefix, userID)
	log := l.log.WithField("topic", topic)
	cb := func(_ mqtt.Client, msg mqtt.Message) {
		n, err := Decode(msg.Payload())
		if err != nil {
			log.WithError(err).Warn("dropping notification")
			return
		}
		h(n)
	}
	if err := await(l.broker.Subscribe(topic, defaultQoS, cb), l.wait); err != nil {
		return fmt.Errorf("subscribe %s: %w", topic, err)
	}
	l.topics = append(l.topics, topic)
	log.Debug("subscribed")
	return nil
}

// Close unsubscribes and disconnects. It is safe to call more than once.
func (l *Listener) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	l.closed = true

	var err error
	if len(l.topics) > 0 {
		err = await(l.broker.Unsubscribe(l.topics...), l.wait)
	}
	l.broker.Disconnect(250)
	return err
}

// Notifier publishes notifications to their recipient's topic.
type Notifier struct {
	broker Broker
	prefix string
	wait   time.Duration
}

// NewNotifier wraps a connected broker.
func NewNotifier(b Broker, prefix string) *Notifier {
	return &Notifier{broker: b, prefix: prefix, wait: defaultWait}
}

// Notify publishes n to its recipient.
func (p *Notifier) Notify(n models.Notification) error {
	if n.UserID == "" {
		return errors.New("notification has no recipient")
	}
	data, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("encode notification: %w", err)
	}
	return await(p.broker.Publish(Topic(p.prefix, n.UserID), defaultQoS, false, data), p.wait)
}
