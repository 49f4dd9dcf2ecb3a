package transport

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/pion/logging"

	"github.com/thesyncim/ppg/pkg/ppg"
)

// NATSConfig configures the NATS bridge.
type NATSConfig struct {
	// SamplesSubject is subscribed for sensor frames. The last token names the
	// device. Default: "ppg.samples.*"
	SamplesSubject string

	// EstimatesPrefix is followed by ".<device>" when publishing estimates.
	// Default: "ppg.bpm"
	EstimatesPrefix string
}

// DefaultNATSConfig returns the default subjects.
func DefaultNATSConfig() NATSConfig {
	return NATSConfig{
		SamplesSubject:  "ppg.samples.*",
		EstimatesPrefix: "ppg.bpm",
	}
}

// ConnectNATS connects with reconnects that never give up, so a broker
// restart does not end the bridge.
func ConnectNATS(url, name string) (*nats.Conn, error) {
	nc, err := nats.Connect(
		url,
		nats.Name(name),
		nats.Timeout(3*time.Second),
		nats.ReconnectWait(500*time.Millisecond),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS at %s: %w", url, err)
	}
	return nc, nil
}

// natsPublisher is the part of *nats.Conn used to publish estimates.
type natsPublisher interface {
	Publish(subj string, data []byte) error
}

// NATSBridge feeds frames received on NATS into sessions and publishes
// every estimate back to NATS.
type NATSBridge struct {
	conn     *nats.Conn
	pub      natsPublisher
	sessions *ppg.Sessions
	cfg      NATSConfig
	log      logging.LeveledLogger
	sub      *nats.Subscription
}

// NewNATSBridge creates a bridge. It installs the estimate publisher on
// sessions, so sessions must be dedicated to the bridge.
func NewNATSBridge(conn *nats.Conn, sessions *ppg.Sessions, cfg NATSConfig, log logging.LeveledLogger) *NATSBridge {
	b := newNATSBridge(conn, sessions, cfg, log)
	b.conn = conn
	return b
}

func newNATSBridge(pub natsPublisher, sessions *ppg.Sessions, cfg NATSConfig, log logging.LeveledLogger) *NATSBridge {
	def := DefaultNATSConfig()
	if cfg.SamplesSubject == "" {
		cfg.SamplesSubject = def.SamplesSubject
	}
	if cfg.EstimatesPrefix == "" {
		cfg.EstimatesPrefix = def.EstimatesPrefix
	}
	if log == nil {
		log = logging.NewDefaultLoggerFactory().NewLogger("transport")
	}

	b := &NATSBridge{
		pub:      pub,
		sessions: sessions,
		cfg:      cfg,
		log:      log,
	}
	sessions.SetCallback(b.publish)
	return b
}

// Start subscribes to the samples subject.
func (b *NATSBridge) Start() error {
	if b.conn == nil {
		return errors.New("NATS bridge has no connection")
	}
	sub, err := b.conn.Subscribe(b.cfg.SamplesSubject, func(msg *nats.Msg) {
		b.handle(msg.Subject, msg.Data)
	})
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", b.cfg.SamplesSubject, err)
	}
	b.sub = sub
	b.log.Infof("NATS bridge subscribed to %s", b.cfg.SamplesSubject)
	return nil
}

// Stop unsubscribes. Sessions stay open.
func (b *NATSBridge) Stop() error {
	if b.sub == nil {
		return nil
	}
	err := b.sub.Unsubscribe()
	b.sub = nil
	return err
}

// handle feeds one message. Subjects are "<prefix>.<device>".
func (b *NATSBridge) handle(subject string, data []byte) {
	device := subject
	if i := strings.LastIndexByte(subject, '.'); i >= 0 {
		device = subject[i+1:]
	}
	if _, err := feedPayload(b.sessions, device, data); err != nil {
		b.log.Warnf("dropping frames for %s: %v", device, err)
	}
}

// publish sends an estimate to "<EstimatesPrefix>.<device>". It runs inside
// the session callback and does not wait for the broker.
func (b *NATSBridge) publish(device string, est ppg.PublishedEstimate) {
	payload, err := NewEstimateMessage(device, est).Marshal()
	if err != nil {
		b.log.Errorf("marshal estimate: %v", err)
		return
	}
	subject := b.cfg.EstimatesPrefix + "." + device
	if err := b.pub.Publish(subject, payload); err != nil {
		b.log.Warnf("publish %s: %v", subject, err)
	}
}
