// Package ppg implements real-time heart-rate estimation from a
// photoplethysmogram (PPG) infrared intensity stream.
//
// Samples flow one way through a fixed pipeline:
//
//	Ingest -> Smoother                          (display trace)
//	Ingest -> PeakDetector -> Estimator -> DisplayThrottle  (BPM)
//
// Every stage is a small state machine fed one sample at a time. The
// Pipeline composes them; a Session owns one Pipeline per streaming session
// and serializes access to it.
package ppg

// SensorSample is one validated IR reading from the sensor.
type SensorSample struct {
	// TimestampMs is the sensor's own clock in milliseconds. It is expected
	// to be monotonically non-decreasing within a session.
	TimestampMs int64

	// IR is the raw infrared intensity in sensor units.
	IR uint32
}

// BeatEvent is emitted by the peak detector when a beat is confirmed.
type BeatEvent struct {
	// TimestampMs is the timestamp of the sample that confirmed the beat.
	// The true peak is the sample just before it.
	TimestampMs int64

	// IntervalMs is the time since the previous confirmed beat.
	// Zero when First is set.
	IntervalMs int64

	// First marks the first beat of a session (or after a timestamp
	// rollback). It has no prior beat, so its interval is undefined and it
	// does not produce a BPM value.
	First bool
}

// PublishedEstimate is the heart rate exposed to observers.
type PublishedEstimate struct {
	// RoundedBPM is the smoothed estimate rounded to the nearest integer.
	RoundedBPM int

	// PublishedAtMs is the sensor timestamp of the beat that produced it.
	PublishedAtMs int64
}

// SmoothedSample is a point of the display IR trace.
type SmoothedSample struct {
	TimestampMs int64
	Value       float64
}

// Point is a single entry of a rolling output series.
type Point struct {
	TimestampMs int64
	Value       float64
}
