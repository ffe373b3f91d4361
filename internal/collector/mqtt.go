package collector

// MQTT telemetry output

import (
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/tturner/farmreg/internal/logging"
)

// DefaultTopic is the ThingsBoard device telemetry topic.
const DefaultTopic = "v1/devices/me/telemetry"

// MQTTConfig describes the broker rows are published to.
type MQTTConfig struct {
	Broker   string // tcp://host:1883
	ClientID string
	Username string // ThingsBoard uses the device access token here
	Password string
	Topic    string
	QoS      byte
	Timeout  time.Duration
}

// Telemetry is the published payload: a millisecond timestamp and the
// averaged values. Signals with no successful sample are omitted.
type Telemetry struct {
	TS     int64              `json:"ts"`
	Values map[string]float64 `json:"values"`
}

// NewTelemetry builds the payload for row.
func NewTelemetry(row Row) Telemetry {
	values := make(map[string]float64, len(row.Values))
	for name, v := range row.Values {
		if v != nil {
			values[name] = *v
		}
	}
	return Telemetry{TS: row.Timestamp.UnixMilli(), Values: values}
}

type publishFunc func(topic string, qos byte, payload []byte) error

// MQTTSink publishes each row as one telemetry message.
type MQTTSink struct {
	cfg     MQTTConfig
	publish publishFunc
	close   func()
	logger  *logging.Logger
}

// DialMQTT connects to the broker. The client reconnects on its own after
// a lost connection; rows published while disconnected fail.
func DialMQTT(cfg MQTTConfig, logger *logging.Logger) (*MQTTSink, error) {
	if cfg.Topic == "" {
		cfg.Topic = DefaultTopic
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.ClientID == "" {
		cfg.ClientID = fmt.Sprintf("farmreg-%d", time.Now().UnixNano())
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	opts.SetUsername(cfg.Username)
	opts.SetPassword(cfg.Password)
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetConnectTimeout(cfg.Timeout)
	opts.SetWriteTimeout(cfg.Timeout)
	opts.SetMaxReconnectInterval(5 * time.Second)
	opts.SetKeepAlive(60 * time.Second)
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		logger.Error("MQTT connection to %s lost: %v", cfg.Broker, err)
	}
	opts.OnReconnecting = func(mqtt.Client, *mqtt.ClientOptions) {
		logger.Verbose("Reconnecting to MQTT broker %s", cfg.Broker)
	}

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(cfg.Timeout) {
		client.Disconnect(0)
		return nil, fmt.Errorf("connect to MQTT broker %s: timed out after %s", cfg.Broker, cfg.Timeout)
	}
	if err := token.Error(); err != nil {
		client.Disconnect(0)
		return nil, fmt.Errorf("connect to MQTT broker %s: %w", cfg.Broker, err)
	}
	logger.Verbose("Connected to MQTT broker %s as %s", cfg.Broker, cfg.ClientID)

	publish := func(topic string, qos byte, payload []byte) error {
		t := client.Publish(topic, qos, false, payload)
		if !t.WaitTimeout(cfg.Timeout) {
			return fmt.Errorf("publish to %s: timed out after %s", topic, cfg.Timeout)
		}
		return t.Error()
	}
	return newMQTTSink(cfg, publish, func() { client.Disconnect(250) }, logger), nil
}

func newMQTTSink(cfg MQTTConfig, publish publishFunc, closeFn func(), logger *logging.Logger) *MQTTSink {
	if cfg.Topic == "" {
		cfg.Topic = DefaultTopic
	}
	return &MQTTSink{cfg: cfg, publish: publish, close: closeFn, logger: logger}
}

// WriteRow publishes row's telemetry.
func (s *MQTTSink) WriteRow(row Row) error {
	payload, err := json.Marshal(NewTelemetry(row))
	if err != nil {
		return fmt.Errorf("marshal telemetry: %w", err)
	}
	if err := s.publish(s.cfg.Topic, s.cfg.QoS, payload); err != nil {
		return fmt.Errorf("publish telemetry: %w", err)
	}
	s.logger.Debug("Published %d byte(s) to %s", len(payload), s.cfg.Topic)
	return nil
}

// Close disconnects from the broker.
func (s *MQTTSink) Close() error {
	if s.close != nil {
		s.close()
	}
	return nil
}
