package ppg

// DetectorConfig holds the peak detector parameters.
type DetectorConfig struct {
	// Threshold is the detection floor in raw sensor units. A peak must be
	// strictly above it.
	// Default: 100000
	Threshold uint32

	// MinIntervalMs is the refractory period. A candidate peak is accepted
	// only if strictly more than this many milliseconds have passed since
	// the last confirmed beat. 300 ms caps the detectable rate at 200 BPM.
	// Default: 300
	MinIntervalMs int64
}

// DefaultDetectorConfig returns the detector defaults tuned for the
// SmartSuit PPG sensor.
func DefaultDetectorConfig() DetectorConfig {
	return DetectorConfig{
		Threshold:     100000,
		MinIntervalMs: 300,
	}
}

// DetectorState is the state carried between samples by the peak detector.
// The zero value is the state at session start.
type DetectorState struct {
	// Previous and PreviousPrevious are the last two raw IR values.
	Previous         uint32
	PreviousPrevious uint32

	// LastBeatMs is the timestamp of the last confirmed beat. Only
	// meaningful when HasBeat is set.
	LastBeatMs int64
	HasBeat    bool
}

// Detect evaluates one raw sample against the two previous raw values.
//
// A candidate peak is the previous value when it is above the threshold and
// strictly greater than both its neighbours, so detection lags the true
// peak by one sample: a peak is confirmed once the signal starts to fall.
// The candidate becomes a beat only outside the refractory period. The raw
// history is shifted whether or not a beat is emitted.
//
// The first candidate of a session has no reference beat. It is accepted
// with First set and seeds the refractory reference.
func (c DetectorConfig) Detect(state DetectorState, sample SensorSample) (DetectorState, BeatEvent, bool) {
	prev := state.Previous
	prev2 := state.PreviousPrevious
	curr := sample.IR

	// Timestamp went backwards past the last beat (sensor reset). The old
	// reference would give a negative interval, so start over.
	if state.HasBeat && sample.TimestampMs < state.LastBeatMs {
		state.HasBeat = false
		state.LastBeatMs = 0
	}

	var (
		beat BeatEvent
		ok   bool
	)
	if prev > c.Threshold && prev > curr && prev > prev2 {
		switch {
		case !state.HasBeat:
			beat = BeatEvent{TimestampMs: sample.TimestampMs, First: true}
			ok = true
		case sample.TimestampMs-state.LastBeatMs > c.MinIntervalMs:
			beat = BeatEvent{
				TimestampMs: sample.TimestampMs,
				IntervalMs:  sample.TimestampMs - state.LastBeatMs,
			}
			ok = true
		}
		if ok {
			state.LastBeatMs = sample.TimestampMs
			state.HasBeat = true
		}
	}

	state.PreviousPrevious = prev
	state.Previous = curr
	return state, beat, ok
}

// PeakDetector wraps DetectorConfig.Detect with its own state for callers
// that do not thread state explicitly.
type PeakDetector struct {
	config DetectorConfig
	state  DetectorState
}

// NewPeakDetector creates a detector at session-start state. The zero
// config means DefaultDetectorConfig.
func NewPeakDetector(config DetectorConfig) *PeakDetector {
	if config == (DetectorConfig{}) {
		config = DefaultDetectorConfig()
	}
	return &PeakDetector{config: config}
}

// Config returns the effective configuration.
func (d *PeakDetector) Config() DetectorConfig {
	return d.config
}

// Process feeds one sample and returns a beat when one is confirmed.
func (d *PeakDetector) Process(sample SensorSample) (BeatEvent, bool) {
	var (
		beat BeatEvent
		ok   bool
	)
	d.state, beat, ok = d.config.Detect(d.state, sample)
	return beat, ok
}

// State returns a copy of the current detector state.
func (d *PeakDetector) State() DetectorState {
	return d.state
}

// Reset returns the detector to session-start state.
func (d *PeakDetector) Reset() {
	d.state = DetectorState{}
}
