// Command ppg estimates heart rate from SmartSuit PPG frames.
//
// Usage:
//
//	ppg serial -p /dev/ttyUSB0
//	ppg nats -u nats://localhost:4222
//	ppg mqtt -b tcp://localhost:1883
//	ppg kafka -k localhost:9092
//	ppg replay recording.csv
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/integrii/flaggy"

	"github.com/thesyncim/ppg/pkg/ppg"
	"github.com/thesyncim/ppg/pkg/transport"
)

const (
	AppName = "ppg"
	AppDesc = "real-time heart rate from SmartSuit PPG frames"
)

type config struct {
	// serial
	port     string
	list     bool
	portOpts transport.PortOptions

	// brokers
	natsURL     string
	mqttBroker  string
	kafkaBroker string
	clientID    string
	idle        time.Duration

	// replay
	file string
	all  bool

	publishIntervalMs int64
}

func main() {
	cfg := config{
		natsURL:           "nats://127.0.0.1:4222",
		mqttBroker:        "tcp://127.0.0.1:1883",
		kafkaBroker:       "127.0.0.1:9092",
		clientID:          "ppg-estimator",
		idle:              30 * time.Second,
		publishIntervalMs: ppg.DefaultThrottleConfig().MinPublishIntervalMs,
	}

	parser := flaggy.NewParser(AppName)
	parser.Description = AppDesc

	serialCmd := flaggy.NewSubcommand("serial")
	serialCmd.Description = "read frames from a board on a serial port"
	serialCmd.String(&cfg.port, "p", "port", "serial port path")
	serialCmd.Bool(&cfg.list, "l", "list", "list serial ports and exit")
	serialCmd.Int(&cfg.portOpts.BaudRate, "r", "baud", "baud rate")
	serialCmd.Int(&cfg.portOpts.DataBits, "db", "data-bits", "data bits (5-8)")
	serialCmd.Int(&cfg.portOpts.StopBits, "sb", "stop-bits", "stop bits (1 or 2)")
	serialCmd.String(&cfg.portOpts.Parity, "pa", "parity", "parity (N, E, O)")
	parser.AttachSubcommand(serialCmd, 1)

	natsCmd := flaggy.NewSubcommand("nats")
	natsCmd.Description = "bridge frames and estimates over NATS"
	natsCmd.String(&cfg.natsURL, "u", "url", "NATS server URL")
	natsCmd.Duration(&cfg.idle, "i", "idle", "close device sessions idle for this long")
	parser.AttachSubcommand(natsCmd, 1)

	mqttCmd := flaggy.NewSubcommand("mqtt")
	mqttCmd.Description = "bridge frames and estimates over MQTT"
	mqttCmd.String(&cfg.mqttBroker, "b", "broker", "MQTT broker URL")
	mqttCmd.String(&cfg.clientID, "c", "client-id", "MQTT client id")
	mqttCmd.Duration(&cfg.idle, "i", "idle", "close device sessions idle for this long")
	parser.AttachSubcommand(mqttCmd, 1)

	kafkaCmd := flaggy.NewSubcommand("kafka")
	kafkaCmd.Description = "bridge frames and estimates over Kafka"
	kafkaCmd.String(&cfg.kafkaBroker, "k", "broker", "Kafka broker address")
	kafkaCmd.Duration(&cfg.idle, "i", "idle", "close device sessions idle for this long")
	parser.AttachSubcommand(kafkaCmd, 1)

	replayCmd := flaggy.NewSubcommand("replay")
	replayCmd.Description = "replay a recording export through the estimator"
	replayCmd.AddPositionalValue(&cfg.file, "file", 1, true, "recording file ('-' for stdin)")
	replayCmd.Bool(&cfg.all, "a", "all", "print every beat, not only published estimates")
	parser.AttachSubcommand(replayCmd, 1)

	parser.Int64(&cfg.publishIntervalMs, "pi", "publish-interval", "minimum sensor milliseconds between published estimates")

	chk(parser.Parse(), "failed to parse arguments")

	pipeline := ppg.DefaultConfig()
	pipeline.ThrottleConfig.MinPublishIntervalMs = cfg.publishIntervalMs

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	switch {
	case serialCmd.Used:
		chk(runSerial(ctx, cfg, pipeline), "serial")
	case natsCmd.Used:
		chk(runNATS(ctx, cfg, pipeline), "nats")
	case mqttCmd.Used:
		chk(runMQTT(ctx, cfg, pipeline), "mqtt")
	case kafkaCmd.Used:
		chk(runKafka(ctx, cfg, pipeline), "kafka")
	case replayCmd.Used:
		chk(runReplay(cfg, pipeline), "replay")
	default:
		parser.ShowHelpAndExit("a subcommand is required")
	}
}

func runSerial(ctx context.Context, cfg config, pipeline ppg.Config) error {
	if cfg.list {
		ports, err := transport.ListSerialPorts()
		if err != nil {
			return err
		}
		for _, p := range ports {
			fmt.Printf("- %s\n", p)
		}
		return nil
	}
	if cfg.port == "" {
		return errors.New("--port is required")
	}

	port, err := transport.OpenSerial(cfg.port, cfg.portOpts)
	if err != nil {
		return err
	}

	sessions := ppg.NewSessions(pipeline, nil)
	defer sessions.Close()
	sessions.SetCallback(printEstimate)

	device := filepath.Base(cfg.port)
	log.Printf("Reading %s as %s", cfg.port, device)

	err = transport.NewSerialSource(port, device, sessions).Run(ctx)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func runNATS(ctx context.Context, cfg config, pipeline ppg.Config) error {
	nc, err := transport.ConnectNATS(cfg.natsURL, AppName)
	if err != nil {
		return err
	}
	defer nc.Close()

	sessions := ppg.NewSessions(pipeline, nil)
	defer sessions.Close()

	bridge := transport.NewNATSBridge(nc, sessions, transport.DefaultNATSConfig(), nil)
	if err := bridge.Start(); err != nil {
		return err
	}
	defer bridge.Stop()

	sweepIdle(ctx, sessions, cfg.idle)
	return nil
}

func runMQTT(ctx context.Context, cfg config, pipeline ppg.Config) error {
	mqttCfg := transport.DefaultMQTTConfig()
	client, err := transport.ConnectMQTT(cfg.mqttBroker, cfg.clientID, mqttCfg.Timeout)
	if err != nil {
		return err
	}
	defer client.Disconnect(250)

	sessions := ppg.NewSessions(pipeline, nil)
	defer sessions.Close()

	bridge := transport.NewMQTTBridge(client, sessions, mqttCfg, nil)
	if err := bridge.Start(); err != nil {
		return err
	}
	defer bridge.Stop()

	sweepIdle(ctx, sessions, cfg.idle)
	return nil
}

func runKafka(ctx context.Context, cfg config, pipeline ppg.Config) error {
	sessions := ppg.NewSessions(pipeline, nil)
	defer sessions.Close()

	kafkaCfg := transport.DefaultKafkaConfig()
	kafkaCfg.Brokers = []string{cfg.kafkaBroker}
	bridge, err := transport.NewKafkaBridge(sessions, kafkaCfg, nil)
	if err != nil {
		return err
	}
	defer bridge.Close()

	go sweepIdle(ctx, sessions, cfg.idle)

	err = bridge.Run(ctx)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// minSweepPeriod keeps tiny --idle values from spinning the sweeper.
const minSweepPeriod = 100 * time.Millisecond

func sweepPeriod(idle time.Duration) time.Duration {
	return max(idle/2, minSweepPeriod)
}

// sweepIdle closes idle device sessions until ctx is done.
func sweepIdle(ctx context.Context, sessions *ppg.Sessions, idle time.Duration) {
	if idle <= 0 {
		<-ctx.Done()
		return
	}
	ticker := time.NewTicker(sweepPeriod(idle))
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, key := range sessions.CloseIdle(idle) {
				log.Printf("Closed idle session %s", key)
			}
		}
	}
}

func runReplay(cfg config, pipeline ppg.Config) error {
	in := os.Stdin
	if cfg.file != "-" {
		f, err := os.Open(cfg.file)
		if err != nil {
			return err
		}
		defer f.Close()
		in = f
	}

	session := ppg.NewSession(pipeline, nil)
	defer session.Close()

	var beats int
	err := ppg.ReadRecording(in, func(rec ppg.RawRecord) error {
		res, ok, err := session.Feed(rec)
		if err != nil || !ok {
			return err
		}
		if res.HasBeat {
			beats++
			if cfg.all {
				fmt.Printf("beat  t=%d interval=%dms instant=%.1f accepted=%t\n",
					res.Beat.TimestampMs, res.Beat.IntervalMs, res.InstantBPM, res.Accepted)
			}
		}
		if res.Published {
			fmt.Printf("bpm   t=%d %d\n", res.Estimate.PublishedAtMs, res.Estimate.RoundedBPM)
		}
		return nil
	})
	if err != nil {
		return err
	}

	snap := session.Snapshot()
	fmt.Printf("\nsamples=%d dropped=%d beats=%d", snap.Samples, snap.Dropped, beats)
	if est, ok := session.Latest(); ok {
		fmt.Printf(" final=%d", est.RoundedBPM)
	}
	fmt.Println()
	return nil
}

func printEstimate(device string, est ppg.PublishedEstimate) {
	log.Printf("%s: %d BPM (t=%d)", device, est.RoundedBPM, est.PublishedAtMs)
}

func chk(err error, wrap string) {
	if err != nil {
		log.Fatalln(wrap+": ", err)
	}
}
