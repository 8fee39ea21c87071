package mqtt

import (
	"fmt"

	"ambient-collector/internal/config"
	"ambient-collector/internal/consumer"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
)

// Dialer establishes paho sessions against the configured broker.
// Auto-reconnect is disabled: the connection manager owns the retry
// policy so backoff and shutdown stay deterministic.
type Dialer struct {
	cfg      *config.MQTTConfig
	clientID string
}

var _ consumer.Dialer = (*Dialer)(nil)

// NewDialer creates a broker dialer. The configured client id gets a
// random suffix so a restarted collector cannot steal a live session.
func NewDialer(cfg *config.MQTTConfig) *Dialer {
	return &Dialer{
		cfg:      cfg,
		clientID: fmt.Sprintf("%s-%s", cfg.ClientID, uuid.NewString()[:8]),
	}
}

// Dial connects to the broker and returns the live session.
func (d *Dialer) Dial(onMessage consumer.MessageHandler, onLost func(error)) (consumer.Session, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(d.cfg.Broker)
	opts.SetClientID(d.clientID)

	if d.cfg.Username != "" {
		opts.SetUsername(d.cfg.Username)
	}
	if d.cfg.Password != "" {
		opts.SetPassword(d.cfg.Password)
	}

	opts.SetAutoReconnect(false)
	opts.SetCleanSession(true)
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		onLost(err)
	})

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker: %w", token.Error())
	}

	return &session{client: client, onMessage: onMessage}, nil
}

// session wraps one connected paho client.
type session struct {
	client    mqtt.Client
	onMessage consumer.MessageHandler
}

// Subscribe registers the shared message callback for a topic pattern.
func (s *session) Subscribe(topic string, qos byte) error {
	token := s.client.Subscribe(topic, qos, func(_ mqtt.Client, msg mqtt.Message) {
		s.onMessage(msg.Topic(), msg.Payload())
	})
	if token.Wait() && token.Error() != nil {
		return fmt.Errorf("failed to subscribe to topic %s: %w", topic, token.Error())
	}
	return nil
}

// Disconnect closes the session, waiting quiesce milliseconds for
// in-flight work.
func (s *session) Disconnect(quiesce uint) {
	s.client.Disconnect(quiesce)
}
