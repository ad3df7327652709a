package delivery

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"family-shield/internal/config"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
)

// Publisher the slice of an MQTT client PushSender needs
type Publisher interface {
	Publish(topic string, qos byte, retained bool, payload []byte) error
}

// MQTTClient paho client wrapper
type MQTTClient struct {
	client mqtt.Client
	config *config.MQTTConfig
	logger *zap.Logger
}

// NewMQTTClient connects to the broker
func NewMQTTClient(cfg *config.MQTTConfig, logger *zap.Logger) (*MQTTClient, error) {
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
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		logger.Warn("MQTT connection lost", zap.Error(err))
	})

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker: %w", token.Error())
	}

	return &MQTTClient{client: client, config: cfg, logger: logger}, nil
}

// Publish waits at most 10s for the broker acknowledgement
func (c *MQTTClient) Publish(topic string, qos byte, retained bool, payload []byte) error {
	token := c.client.Publish(topic, qos, retained, payload)
	if !token.WaitTimeout(10 * time.Second) {
		return fmt.Errorf("timed out publishing to topic %s", topic)
	}
	if token.Error() != nil {
		return fmt.Errorf("failed to publish to topic %s: %w", topic, token.Error())
	}
	return nil
}

// Disconnect 250ms quiesce
func (c *MQTTClient) Disconnect() {
	c.client.Disconnect(250)
}

func (c *MQTTClient) IsConnected() bool {
	return c.client.IsConnected()
}

// pushPayload body published on the guardian topic
type pushPayload struct {
	Title   string `json:"title"`
	Message string `json:"message"`
	SentAt  int64  `json:"sent_at"`
}

// PushSender publishes to {prefix}/{recipient}; recipient is the guardian id
type PushSender struct {
	publisher Publisher
	prefix    string
	qos       byte
	logger    *zap.Logger
}

func NewPushSender(publisher Publisher, topicPrefix string, qos byte, logger *zap.Logger) *PushSender {
	return &PushSender{
		publisher: publisher,
		prefix:    strings.TrimSuffix(topicPrefix, "/"),
		qos:       qos,
		logger:    logger,
	}
}

// Topic the topic a recipient's messages are published on
func (s *PushSender) Topic(recipient string) string {
	return s.prefix + "/" + recipient
}

func (s *PushSender) Send(ctx context.Context, msg Message) error {
	if err := validate(msg); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	payload, err := json.Marshal(pushPayload{
		Title:   msg.Subject,
		Message: msg.Body,
		SentAt:  time.Now().Unix(),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal push payload: %w", err)
	}
	topic := s.Topic(msg.To)
	if err := s.publisher.Publish(topic, s.qos, false, payload); err != nil {
		s.logger.Error("Push publish failed",
			zap.String("topic", topic),
			zap.Error(err),
		)
		return err
	}
	return nil
}
