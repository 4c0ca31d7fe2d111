package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"laser-repair/internal/config"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
)

const publishTimeout = 5 * time.Second

// mqttClient paho 客户端中用到的部分
type mqttClient interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Disconnect(quiesce uint)
}

// MQTTPublisher 发布到 <topic>/<event type>
type MQTTPublisher struct {
	client mqttClient
	topic  string
	qos    byte
	logger *zap.Logger
}

// NewMQTTPublisher 连接 broker
func NewMQTTPublisher(cfg *config.MQTTConfig, logger *zap.Logger) (*MQTTPublisher, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}
	opts.SetAutoReconnect(true)
	opts.SetCleanSession(true)
	opts.SetConnectTimeout(10 * time.Second)
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		logger.Warn("MQTT connection lost", zap.Error(err))
	})

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker: %w", token.Error())
	}

	logger.Info("MQTT publisher connected",
		zap.String("broker", cfg.Broker),
		zap.String("topic", cfg.Topic),
	)
	return newMQTTPublisher(client, cfg.Topic, cfg.QoS, logger), nil
}

func newMQTTPublisher(client mqttClient, topic string, qos byte, logger *zap.Logger) *MQTTPublisher {
	return &MQTTPublisher{client: client, topic: topic, qos: qos, logger: logger}
}

func (p *MQTTPublisher) Publish(ctx context.Context, ev Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	topic := p.topic + "/" + ev.Type
	token := p.client.Publish(topic, p.qos, false, payload)

	timer := time.NewTimer(publishTimeout)
	defer timer.Stop()
	select {
	case <-token.Done():
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return fmt.Errorf("publish to topic %s: timeout", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("failed to publish to topic %s: %w", topic, err)
	}

	p.logger.Debug("event published", zap.String("topic", topic), zap.Int("record_id", ev.RecordID))
	return nil
}

// Close 断开连接
func (p *MQTTPublisher) Close() {
	p.client.Disconnect(250)
}
