package transport

import (
	"fmt"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/pion/logging"

	"github.com/thesyncim/ppg/pkg/ppg"
)

// MQTTConfig configures the MQTT bridge.
type MQTTConfig struct {
	// SamplesTopic is subscribed for sensor frames. The segment matched by
	// the single-level wildcard names the device. Default: "ppg/+/samples"
	SamplesTopic string

	// EstimatesTopic is a format string taking the device name.
	// Default: "ppg/%s/bpm"
	EstimatesTopic string

	// QoS for both directions. Default: 0
	QoS byte

	// Timeout bounds subscribe and connect waits. Default: 5s
	Timeout time.Duration
}

// DefaultMQTTConfig returns the default topics.
func DefaultMQTTConfig() MQTTConfig {
	return MQTTConfig{
		SamplesTopic:   "ppg/+/samples",
		EstimatesTopic: "ppg/%s/bpm",
		Timeout:        5 * time.Second,
	}
}

// ConnectMQTT connects to broker with automatic reconnect.
func ConnectMQTT(broker, clientID string, timeout time.Duration) (mqtt.Client, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectTimeout(timeout)

	c := mqtt.NewClient(opts)
	token := c.Connect()
	if !token.WaitTimeout(timeout) {
		return nil, fmt.Errorf("connect to MQTT broker %s: timed out after %v", broker, timeout)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to MQTT broker %s: %w", broker, err)
	}
	return c, nil
}

// MQTTBridge feeds frames received on MQTT into sessions and publishes every
// estimate back to MQTT.
type MQTTBridge struct {
	client   mqtt.Client
	sessions *ppg.Sessions
	cfg      MQTTConfig
	log      logging.LeveledLogger
}

// NewMQTTBridge creates a bridge. It installs the estimate publisher on
// sessions, so sessions must be dedicated to the bridge.
func NewMQTTBridge(client mqtt.Client, sessions *ppg.Sessions, cfg MQTTConfig, log logging.LeveledLogger) *MQTTBridge {
	def := DefaultMQTTConfig()
	if cfg.SamplesTopic == "" {
		cfg.SamplesTopic = def.SamplesTopic
	}
	if cfg.EstimatesTopic == "" {
		cfg.EstimatesTopic = def.EstimatesTopic
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if log == nil {
		log = logging.NewDefaultLoggerFactory().NewLogger("transport")
	}

	b := &MQTTBridge{
		client:   client,
		sessions: sessions,
		cfg:      cfg,
		log:      log,
	}
	sessions.SetCallback(b.publish)
	return b
}

// Start subscribes to the samples topic.
func (b *MQTTBridge) Start() error {
	token := b.client.Subscribe(b.cfg.SamplesTopic, b.cfg.QoS, func(_ mqtt.Client, msg mqtt.Message) {
		b.handle(msg.Topic(), msg.Payload())
	})
	if !token.WaitTimeout(b.cfg.Timeout) {
		return fmt.Errorf("subscribe %s: timed out", b.cfg.SamplesTopic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("subscribe %s: %w", b.cfg.SamplesTopic, err)
	}
	b.log.Infof("MQTT bridge subscribed to %s", b.cfg.SamplesTopic)
	return nil
}

// Stop unsubscribes. Sessions stay open.
func (b *MQTTBridge) Stop() error {
	token := b.client.Unsubscribe(b.cfg.SamplesTopic)
	if !token.WaitTimeout(b.cfg.Timeout) {
		return fmt.Errorf("unsubscribe %s: timed out", b.cfg.SamplesTopic)
	}
	return token.Error()
}

func (b *MQTTBridge) handle(topic string, payload []byte) {
	device := deviceFromTopic(b.cfg.SamplesTopic, topic)
	if _, err := feedPayload(b.sessions, device, payload); err != nil {
		b.log.Warnf("dropping frames for %s: %v", device, err)
	}
}

// publish does not wait on the token: it runs on paho's delivery goroutine,
// where waiting can stall incoming messages.
func (b *MQTTBridge) publish(device string, est ppg.PublishedEstimate) {
	payload, err := NewEstimateMessage(device, est).Marshal()
	if err != nil {
		b.log.Errorf("marshal estimate: %v", err)
		return
	}
	b.client.Publish(fmt.Sprintf(b.cfg.EstimatesTopic, device), b.cfg.QoS, false, payload)
}

// deviceFromTopic returns the topic level matched by the first '+' in
// pattern, or the whole topic if the pattern has no wildcard.
func deviceFromTopic(pattern, topic string) string {
	pl := strings.Split(pattern, "/")
	tl := strings.Split(topic, "/")
	for i, level := range pl {
		if level == "+" && i < len(tl) {
			return tl[i]
		}
	}
	return topic
}
