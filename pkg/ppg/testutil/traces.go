// Package testutil provides testing utilities for the ppg packages.
// It includes synthetic PPG waveform generators, SmartSuit frame builders and
// RTP packetization helpers.
//
// Note: This package is designed for external test usage. Tests inside the
// ppg package define their own trace helpers to avoid an import cycle.
package testutil

import (
	"fmt"
	"math"
	"math/rand"
	"strconv"
	"strings"

	"github.com/pion/rtp"

	"github.com/thesyncim/ppg/pkg/ppg"
)

// PulseConfig describes a synthetic PPG recording.
type PulseConfig struct {
	// StartMs is the timestamp of the first sample.
	StartMs int64

	// StepMs is the sample period. Default: 10 (100 Hz).
	StepMs int64

	// BPM is the simulated heart rate.
	BPM float64

	// Beats is the number of heartbeats generated.
	Beats int

	// Baseline is the DC level of the IR channel. Default: 60000.
	Baseline float64

	// Amplitude is the height of the systolic peak above baseline.
	// Default: 60000.
	Amplitude float64

	// NoiseAmplitude is the peak-to-peak uniform noise added to each sample.
	// Values above ~1000 may create spurious local maxima.
	NoiseAmplitude float64

	// Seed makes noise reproducible.
	Seed int64
}

// DefaultPulseConfig returns a clean 75 BPM recording of 60 beats at 100 Hz.
func DefaultPulseConfig() PulseConfig {
	return PulseConfig{
		StepMs:    10,
		BPM:       75,
		Beats:     60,
		Baseline:  60000,
		Amplitude: 60000,
	}
}

const (
	systolicOffsetMs = 150
	systolicSigmaMs  = 40
	dicroticOffsetMs = 420
	dicroticSigmaMs  = 60
	dicroticRatio    = 0.3
)

// PulseTrace generates an IR trace with one systolic peak and a smaller
// dicrotic wave per beat. Beat onsets are aligned to the sample grid so each
// systolic peak is a single sample, above the default detector threshold
// with the default amplitude.
func PulseTrace(cfg PulseConfig) []ppg.SensorSample {
	if cfg.StepMs <= 0 {
		cfg.StepMs = 10
	}
	if cfg.BPM <= 0 || cfg.Beats <= 0 {
		return nil
	}
	if cfg.Baseline == 0 {
		cfg.Baseline = 60000
	}
	if cfg.Amplitude == 0 {
		cfg.Amplitude = 60000
	}

	periodMs := 60000 / cfg.BPM
	onset := func(k int) int64 {
		steps := math.Round(float64(k) * periodMs / float64(cfg.StepMs))
		return int64(steps) * cfg.StepMs
	}

	durationMs := onset(cfg.Beats)
	samples := make([]ppg.SensorSample, 0, durationMs/cfg.StepMs)
	rng := rand.New(rand.NewSource(cfg.Seed))

	for t := int64(0); t < durationMs; t += cfg.StepMs {
		k := int(float64(t) / periodMs)
		v := cfg.Baseline
		for j := k - 1; j <= k+1; j++ {
			if j < 0 || j >= cfg.Beats {
				continue
			}
			dt := float64(t - onset(j))
			v += cfg.Amplitude * gaussian(dt-systolicOffsetMs, systolicSigmaMs)
			v += cfg.Amplitude * dicroticRatio * gaussian(dt-dicroticOffsetMs, dicroticSigmaMs)
		}
		if cfg.NoiseAmplitude > 0 {
			v += (rng.Float64() - 0.5) * cfg.NoiseAmplitude
		}
		if v < 0 {
			v = 0
		}
		samples = append(samples, ppg.SensorSample{
			TimestampMs: cfg.StartMs + t,
			IR:          uint32(math.Round(v)),
		})
	}
	return samples
}

func gaussian(x, sigma float64) float64 {
	return math.Exp(-(x * x) / (2 * sigma * sigma))
}

// ReferenceTrace is the eight-sample trace with beats at 200 ms and 800 ms
// used to check the detector and estimator end to end.
func ReferenceTrace() []ppg.SensorSample {
	return []ppg.SensorSample{
		{TimestampMs: 0, IR: 50000},
		{TimestampMs: 100, IR: 150000},
		{TimestampMs: 200, IR: 140000},
		{TimestampMs: 300, IR: 90000},
		{TimestampMs: 400, IR: 40000},
		{TimestampMs: 700, IR: 160000},
		{TimestampMs: 800, IR: 150000},
		{TimestampMs: 900, IR: 80000},
	}
}

// FrameOptions holds the auxiliary channels written into a SmartSuit frame.
type FrameOptions struct {
	Red         uint32
	Temperature float64
	Humidity    float64
	BPM         int
}

// SmartSuitFrame formats a sample as a full SmartSuit text frame. Motion
// channels are written as a device at rest.
func SmartSuitFrame(s ppg.SensorSample, opts FrameOptions) string {
	fields := []string{
		strconv.FormatInt(s.TimestampMs, 10),
		strconv.FormatUint(uint64(s.IR), 10),
		strconv.FormatUint(uint64(opts.Red), 10),
		strconv.FormatFloat(opts.Temperature, 'f', 2, 64),
		strconv.FormatFloat(opts.Humidity, 'f', 2, 64),
		"0.00", "0.00", "1.00", // accel_bmi270
		"0.00", "0.00", "0.00", // gyro_bmi270
		"0.00", "0.00", "1.00", // accel_mpu6050
		"0.00", "0.00", "0.00", // gyro_mpu6050
		strconv.Itoa(opts.BPM),
	}
	return strings.Join(fields, ppg.FieldSeparator)
}

// Frames formats every sample as a SmartSuit frame.
func Frames(samples []ppg.SensorSample) []string {
	frames := make([]string, len(samples))
	for i, s := range samples {
		frames[i] = SmartSuitFrame(s, FrameOptions{Red: s.IR * 9 / 10, Temperature: 36.6, Humidity: 40})
	}
	return frames
}

// RecordingCSV renders samples as a recording export: a header line followed
// by one row per sample, each prefixed with a wall-clock column.
func RecordingCSV(samples []ppg.SensorSample) string {
	var b strings.Builder
	b.WriteString(strings.Join(ppg.RecordingHeader, ppg.FieldSeparator))
	b.WriteByte('\n')
	for i, frame := range Frames(samples) {
		fmt.Fprintf(&b, "2025-01-01T00:00:%02d.000Z;%s\n", i%60, frame)
	}
	return b.String()
}

// RTPPackets packs frames into RTP packets, framesPerPacket frames each.
// The RTP timestamp is the sensor timestamp of the first frame in the packet.
func RTPPackets(ssrc uint32, payloadType uint8, samples []ppg.SensorSample, framesPerPacket int) [][]byte {
	if framesPerPacket <= 0 {
		framesPerPacket = 1
	}
	frames := Frames(samples)

	var packets [][]byte
	seq := uint16(1000)
	for start := 0; start < len(frames); start += framesPerPacket {
		end := min(start+framesPerPacket, len(frames))
		pkt := &rtp.Packet{
			Header: rtp.Header{
				Version:        2,
				PayloadType:    payloadType,
				SequenceNumber: seq,
				Timestamp:      uint32(samples[start].TimestampMs),
				SSRC:           ssrc,
			},
			Payload: []byte(strings.Join(frames[start:end], "\n")),
		}
		data, err := pkt.Marshal()
		if err != nil {
			panic(fmt.Sprintf("marshal RTP packet: %v", err))
		}
		packets = append(packets, data)
		seq++
	}
	return packets
}
