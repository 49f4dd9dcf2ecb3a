package transport

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/pion/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.bug.st/serial"

	"github.com/thesyncim/ppg/pkg/ppg"
	"github.com/thesyncim/ppg/pkg/ppg/testutil"
)

func quietLogger() logging.LeveledLogger {
	f := logging.NewDefaultLoggerFactory()
	f.DefaultLogLevel = logging.LogLevelDisabled
	return f.NewLogger("transport")
}

// pulsePayload renders a 75 BPM pulse as newline-separated SmartSuit frames.
func pulsePayload(beats int) string {
	cfg := testutil.DefaultPulseConfig()
	cfg.Beats = beats
	return strings.Join(testutil.Frames(testutil.PulseTrace(cfg)), "\n") + "\n"
}

// recordingFeeder captures records per device.
type recordingFeeder struct {
	mu   sync.Mutex
	recs map[string][]ppg.RawRecord
	err  error
}

func (f *recordingFeeder) Feed(key string, rec ppg.RawRecord) (ppg.Result, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return ppg.Result{}, false, f.err
	}
	if f.recs == nil {
		f.recs = make(map[string][]ppg.RawRecord)
	}
	f.recs[key] = append(f.recs[key], rec)
	_, ok := ppg.Ingest(rec)
	return ppg.Result{}, ok, nil
}

func TestDecodePayload_MixedFormats(t *testing.T) {
	payload := []byte("1000;5;6\n\n{\"timestamp_ms\":1010,\"ir\":7}\r\n1020;8")

	var samples []ppg.SensorSample
	DecodePayload(payload, func(rec ppg.RawRecord) {
		s, ok := ppg.Ingest(rec)
		require.True(t, ok)
		samples = append(samples, s)
	})

	assert.Equal(t, []ppg.SensorSample{
		{TimestampMs: 1000, IR: 5},
		{TimestampMs: 1010, IR: 7},
		{TimestampMs: 1020, IR: 8},
	}, samples)
}

func TestFeedPayload_CountsAcceptedAndStopsOnError(t *testing.T) {
	f := &recordingFeeder{}
	n, err := feedPayload(f, "dev", []byte("1;1\nbad\n2;2\n"))
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Len(t, f.recs["dev"], 3)

	f = &recordingFeeder{err: ppg.ErrSessionClosed}
	_, err = feedPayload(f, "dev", []byte("1;1\n2;2\n"))
	assert.ErrorIs(t, err, ppg.ErrSessionClosed)
}

func TestEstimateMessage_JSON(t *testing.T) {
	data, err := NewEstimateMessage("suit-1", ppg.PublishedEstimate{RoundedBPM: 72, PublishedAtMs: 1500}).Marshal()
	require.NoError(t, err)
	assert.JSONEq(t, `{"device":"suit-1","bpm":72,"published_at_ms":1500}`, string(data))
}

func TestPortOptions_Normalize(t *testing.T) {
	tests := []struct {
		name    string
		in      PortOptions
		want    PortOptions
		wantErr string
	}{
		{"defaults", PortOptions{}, PortOptions{BaudRate: 115200, DataBits: 8, StopBits: 1, Parity: "N"}, ""},
		{"explicit", PortOptions{BaudRate: 9600, DataBits: 7, StopBits: 2, Parity: "even"}, PortOptions{BaudRate: 9600, DataBits: 7, StopBits: 2, Parity: "E"}, ""},
		{"odd", PortOptions{Parity: " o "}, PortOptions{BaudRate: 115200, DataBits: 8, StopBits: 1, Parity: "O"}, ""},
		{"bad data bits", PortOptions{DataBits: 9}, PortOptions{}, "data bits"},
		{"bad stop bits", PortOptions{StopBits: 3}, PortOptions{}, "stop bits"},
		{"bad parity", PortOptions{Parity: "mark"}, PortOptions{}, "parity"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.in.Normalize()
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPortOptions_SerialMode(t *testing.T) {
	mode, err := PortOptions{StopBits: 2, Parity: "O"}.SerialMode()
	require.NoError(t, err)
	assert.Equal(t, &serial.Mode{
		BaudRate: 115200,
		DataBits: 8,
		StopBits: serial.TwoStopBits,
		Parity:   serial.OddParity,
	}, mode)

	_, err = PortOptions{Parity: "?"}.SerialMode()
	assert.Error(t, err)
}

func TestSerialSource_FeedsSessions(t *testing.T) {
	sessions := ppg.NewSessions(ppg.DefaultConfig(), nil)
	port := io.NopCloser(strings.NewReader(pulsePayload(60)))

	src := NewSerialSource(port, "usb0", sessions)
	require.NoError(t, src.Run(context.Background()))

	est, ok := sessions.Get("usb0").Latest()
	require.True(t, ok)
	assert.Equal(t, 75, est.RoundedBPM)
}

func TestSerialSource_CancelClosesPort(t *testing.T) {
	r, w := io.Pipe()
	src := NewSerialSource(r, "usb0", ppg.NewSessions(ppg.DefaultConfig(), nil))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- src.Run(ctx) }()

	_, err := w.Write([]byte("1000;5\n"))
	require.NoError(t, err)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestSerialSource_ClosedSessionStops(t *testing.T) {
	f := &recordingFeeder{err: ppg.ErrSessionClosed}
	src := NewSerialSource(io.NopCloser(strings.NewReader("1;1\n2;2\n")), "usb0", f)
	assert.ErrorIs(t, src.Run(context.Background()), ppg.ErrSessionClosed)
}

// fakePublisher records NATS publishes.
type fakePublisher struct {
	mu   sync.Mutex
	msgs map[string][][]byte
	err  error
}

func (p *fakePublisher) Publish(subj string, data []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	if p.msgs == nil {
		p.msgs = make(map[string][][]byte)
	}
	p.msgs[subj] = append(p.msgs[subj], data)
	return nil
}

func TestNATSBridge_FeedsAndPublishes(t *testing.T) {
	pub := &fakePublisher{}
	sessions := ppg.NewSessions(ppg.DefaultConfig(), nil)
	b := newNATSBridge(pub, sessions, NATSConfig{}, quietLogger())

	b.handle("ppg.samples.suit-1", []byte(pulsePayload(60)))

	pub.mu.Lock()
	defer pub.mu.Unlock()
	msgs := pub.msgs["ppg.bpm.suit-1"]
	require.NotEmpty(t, msgs)

	var last EstimateMessage
	require.NoError(t, json.Unmarshal(msgs[len(msgs)-1], &last))
	assert.Equal(t, "suit-1", last.Device)
	assert.Equal(t, 75, last.BPM)
	assert.Equal(t, []string{"suit-1"}, sessions.Keys())
}

func TestNATSBridge_PublishErrorDoesNotStopFeeding(t *testing.T) {
	pub := &fakePublisher{err: errors.New("nats: connection closed")}
	sessions := ppg.NewSessions(ppg.DefaultConfig(), nil)
	b := newNATSBridge(pub, sessions, DefaultNATSConfig(), quietLogger())

	b.handle("ppg.samples.a", []byte(pulsePayload(20)))

	snap := sessions.Get("a").Snapshot()
	assert.True(t, snap.HasEstimate)
	assert.Equal(t, int64(20*80), snap.Samples)
}

func TestNATSBridge_StartWithoutConnection(t *testing.T) {
	b := newNATSBridge(&fakePublisher{}, ppg.NewSessions(ppg.DefaultConfig(), nil), NATSConfig{}, quietLogger())
	assert.Error(t, b.Start())
	assert.NoError(t, b.Stop())
}

// fakeToken is a completed MQTT token.
type fakeToken struct{ err error }

func (t fakeToken) Wait() bool { return true }
func (t fakeToken) WaitTimeout(time.Duration) bool { return true }
func (t fakeToken) Done() <-chan struct{} { ch := make(chan struct{}); close(ch); return ch }
func (t fakeToken) Error() error { return t.err }

// fakeMQTTClient implements the subset of mqtt.Client the bridge uses.
type fakeMQTTClient struct {
	mqtt.Client

	mu        sync.Mutex
	published map[string][][]byte
	handler   mqtt.MessageHandler
	subTopic  string
}

func (c *fakeMQTTClient) Publish(topic string, _ byte, _ bool, payload interface{}) mqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.published == nil {
		c.published = make(map[string][][]byte)
	}
	c.published[topic] = append(c.published[topic], payload.([]byte))
	return fakeToken{}
}

func (c *fakeMQTTClient) Subscribe(topic string, _ byte, cb mqtt.MessageHandler) mqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subTopic = topic
	c.handler = cb
	return fakeToken{}
}

func (c *fakeMQTTClient) Unsubscribe(...string) mqtt.Token {
	return fakeToken{}
}

// fakeMessage is an incoming MQTT message.
type fakeMessage struct {
	mqtt.Message
	topic   string
	payload []byte
}

func (m fakeMessage) Topic() string   { return m.topic }
func (m fakeMessage) Payload() []byte { return m.payload }

func TestMQTTBridge_FeedsAndPublishes(t *testing.T) {
	client := &fakeMQTTClient{}
	sessions := ppg.NewSessions(ppg.DefaultConfig(), nil)
	b := NewMQTTBridge(client, sessions, MQTTConfig{}, quietLogger())

	require.NoError(t, b.Start())
	assert.Equal(t, "ppg/+/samples", client.subTopic)

	client.handler(client, fakeMessage{topic: "ppg/suit-2/samples", payload: []byte(pulsePayload(60))})

	client.mu.Lock()
	msgs := client.published["ppg/suit-2/bpm"]
	client.mu.Unlock()
	require.NotEmpty(t, msgs)

	var last EstimateMessage
	require.NoError(t, json.Unmarshal(msgs[len(msgs)-1], &last))
	assert.Equal(t, EstimateMessage{Device: "suit-2", BPM: 75, PublishedAtMs: last.PublishedAtMs}, last)

	require.NoError(t, b.Stop())
}

func TestMQTTBridge_SubscribeError(t *testing.T) {
	client := &erroringMQTTClient{}
	b := NewMQTTBridge(client, ppg.NewSessions(ppg.DefaultConfig(), nil), DefaultMQTTConfig(), quietLogger())
	err := b.Start()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not authorized")
}

type erroringMQTTClient struct{ fakeMQTTClient }

func (c *erroringMQTTClient) Subscribe(string, byte, mqtt.MessageHandler) mqtt.Token {
	return fakeToken{err: errors.New("not authorized")}
}

func TestDeviceFromTopic(t *testing.T) {
	assert.Equal(t, "suit-1", deviceFromTopic("ppg/+/samples", "ppg/suit-1/samples"))
	assert.Equal(t, "x", deviceFromTopic("site/+/+/raw", "site/x/y/raw"))
	assert.Equal(t, "sensors/raw", deviceFromTopic("sensors/raw", "sensors/raw"))
}
