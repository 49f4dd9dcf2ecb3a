package transport

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/pion/logging"
	"github.com/segmentio/kafka-go"

	"github.com/thesyncim/ppg/pkg/ppg"
)

// KafkaConfig configures the Kafka bridge.
type KafkaConfig struct {
	Brokers []string

	// SamplesTopic carries sensor frames. The message key names the device.
	// Default: "ppg.samples"
	SamplesTopic string

	// EstimatesTopic receives EstimateMessage JSON keyed by device.
	// Default: "ppg.bpm"
	EstimatesTopic string

	// GroupID is the consumer group. Default: "ppg-estimator"
	GroupID string

	// WriteTimeout bounds each estimate write to the broker. Default: 5s
	WriteTimeout time.Duration
}

// DefaultKafkaConfig returns the default topics for a local broker.
func DefaultKafkaConfig() KafkaConfig {
	return KafkaConfig{
		Brokers:        []string{"127.0.0.1:9092"},
		SamplesTopic:   "ppg.samples",
		EstimatesTopic: "ppg.bpm",
		GroupID:        "ppg-estimator",
		WriteTimeout:   5 * time.Second,
	}
}

// DefaultKafkaDevice is used for sample messages without a key.
const DefaultKafkaDevice = "default"

type kafkaReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type kafkaWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaBridge consumes frames from Kafka into sessions and produces every
// estimate back to Kafka.
type KafkaBridge struct {
	reader   kafkaReader
	writer   kafkaWriter
	sessions *ppg.Sessions
	cfg      KafkaConfig
	log      logging.LeveledLogger
}

// NewKafkaBridge creates a bridge with its own reader and writer. It
// installs the estimate publisher on sessions, so sessions must be dedicated
// to the bridge.
func NewKafkaBridge(sessions *ppg.Sessions, cfg KafkaConfig, log logging.LeveledLogger) (*KafkaBridge, error) {
	cfg = cfg.withDefaults()
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafka bridge needs at least one broker")
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  cfg.Brokers,
		GroupID:  cfg.GroupID,
		Topic:    cfg.SamplesTopic,
		MinBytes: 1,
		MaxBytes: 10e6,
		MaxWait:  500 * time.Millisecond,
	})
	if log == nil {
		log = logging.NewDefaultLoggerFactory().NewLogger("transport")
	}
	return newKafkaBridge(reader, newKafkaWriter(cfg, log), sessions, cfg, log), nil
}

// newKafkaWriter returns an async writer so producing an estimate never
// stalls the consumer loop. Delivery errors are logged from the completion
// callback.
func newKafkaWriter(cfg KafkaConfig, log logging.LeveledLogger) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.EstimatesTopic,
		RequiredAcks: kafka.RequireOne,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 5 * time.Millisecond,
		WriteTimeout: cfg.WriteTimeout,
		Async:        true,
		Completion: func(msgs []kafka.Message, err error) {
			if err != nil {
				log.Warnf("produce %d estimates to %s: %v", len(msgs), cfg.EstimatesTopic, err)
			}
		},
	}
}

func newKafkaBridge(r kafkaReader, w kafkaWriter, sessions *ppg.Sessions, cfg KafkaConfig, log logging.LeveledLogger) *KafkaBridge {
	if log == nil {
		log = logging.NewDefaultLoggerFactory().NewLogger("transport")
	}
	b := &KafkaBridge{
		reader:   r,
		writer:   w,
		sessions: sessions,
		cfg:      cfg.withDefaults(),
		log:      log,
	}
	sessions.SetCallback(b.publish)
	return b
}

func (c KafkaConfig) withDefaults() KafkaConfig {
	def := DefaultKafkaConfig()
	if c.SamplesTopic == "" {
		c.SamplesTopic = def.SamplesTopic
	}
	if c.EstimatesTopic == "" {
		c.EstimatesTopic = def.EstimatesTopic
	}
	if c.GroupID == "" {
		c.GroupID = def.GroupID
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = def.WriteTimeout
	}
	return c
}

// Run consumes until ctx is cancelled or the reader fails. Offsets are
// committed after the message has been fed. Estimates are handed to the
// writer from the same goroutine; the writer batches them in the background.
func (b *KafkaBridge) Run(ctx context.Context) error {
	b.log.Infof("Kafka bridge consuming %s", b.cfg.SamplesTopic)
	for {
		msg, err := b.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("fetch from %s: %w", b.cfg.SamplesTopic, err)
		}

		device := string(msg.Key)
		if device == "" {
			device = DefaultKafkaDevice
		}
		if _, err := feedPayload(b.sessions, device, msg.Value); err != nil {
			b.log.Warnf("dropping frames for %s: %v", device, err)
		}

		if err := b.reader.CommitMessages(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("commit %s: %w", b.cfg.SamplesTopic, err)
		}
	}
}

// Close closes the reader and writer. Sessions stay open.
func (b *KafkaBridge) Close() error {
	return errors.Join(b.reader.Close(), b.writer.Close())
}

func (b *KafkaBridge) publish(device string, est ppg.PublishedEstimate) {
	payload, err := NewEstimateMessage(device, est).Marshal()
	if err != nil {
		b.log.Errorf("marshal estimate: %v", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), b.cfg.WriteTimeout)
	defer cancel()
	if err := b.writer.WriteMessages(ctx, kafka.Message{Key: []byte(device), Value: payload}); err != nil {
		b.log.Warnf("produce %s: %v", b.cfg.EstimatesTopic, err)
	}
}
