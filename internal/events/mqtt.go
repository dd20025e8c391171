package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
)

// MQTTConfig selects the broker and topic prefix.
type MQTTConfig struct {
	Broker         string // tcp://host:1883
	ClientID       string
	Username       string
	Password       string
	TopicPrefix    string
	ConnectTimeout time.Duration
	PublishTimeout time.Duration
}

// MQTTPublisher publishes events as JSON to <prefix>/channels/<id>/events,
// QoS 0, not retained.
type MQTTPublisher struct {
	log    *zap.Logger
	cfg    MQTTConfig
	client mqtt.Client
}

// NewMQTTPublisher connects to the broker. The paho client reconnects on its own afterwards.
func NewMQTTPublisher(log *zap.Logger, cfg MQTTConfig) (*MQTTPublisher, error) {
	if cfg.Broker == "" {
		return nil, errors.New("mqtt: broker required")
	}
	if cfg.TopicPrefix == "" {
		cfg.TopicPrefix = "zmux-restream"
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 30 * time.Second
	}
	if cfg.PublishTimeout <= 0 {
		cfg.PublishTimeout = 5 * time.Second
	}
	log = log.Named("mqtt")

	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	opts.SetUsername(cfg.Username)
	opts.SetPassword(cfg.Password)
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetOnConnectHandler(func(mqtt.Client) {
		log.Info("connected", zap.String("broker", cfg.Broker))
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		log.Warn("connection lost", zap.String("broker", cfg.Broker), zap.Error(err))
	})

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(cfg.ConnectTimeout) {
		return nil, errors.New("mqtt: connection timeout")
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt: connect: %w", err)
	}

	return &MQTTPublisher{log: log, cfg: cfg, client: client}, nil
}

// Topic returns the topic events of channel id are published to.
func (p *MQTTPublisher) Topic(id string) string {
	return strings.TrimRight(p.cfg.TopicPrefix, "/") + "/channels/" + id + "/events"
}

// Publish sends ev and waits for the hand-off up to the publish timeout or ctx.
func (p *MQTTPublisher) Publish(ctx context.Context, ev Event) error {
	if !p.client.IsConnected() {
		return errors.New("mqtt: not connected")
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("mqtt: marshal event: %w", err)
	}

	token := p.client.Publish(p.Topic(ev.ChannelID), 0, false, payload)
	select {
	case <-token.Done():
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(p.cfg.PublishTimeout):
		return errors.New("mqtt: publish timeout")
	}
	return token.Error()
}

// Close disconnects, allowing 250ms for in-flight work.
func (p *MQTTPublisher) Close() {
	if p.client.IsConnected() {
		p.client.Disconnect(250)
	}
}
