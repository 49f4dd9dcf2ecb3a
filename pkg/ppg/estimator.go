package ppg

import "math"

// EstimatorConfig holds the BPM estimator parameters.
type EstimatorConfig struct {
	// WindowSize is the number of instantaneous BPM values averaged by the
	// circular window.
	// Default: 8
	WindowSize int

	// Alpha is the EMA smoothing factor applied to the window average.
	// Higher values track changes faster.
	// Default: 0.2
	Alpha float64

	// MinBPM and MaxBPM bound the physiologically valid range. Both bounds
	// are exclusive.
	// Default: 20 and 220
	MinBPM float64
	MaxBPM float64

	// ExcludeUnfilled averages only the slots written so far instead of
	// all slots. When false (the default) unfilled slots count as zero,
	// which biases the estimate low for the first WindowSize beats.
	ExcludeUnfilled bool
}

// DefaultEstimatorConfig returns the estimator defaults.
func DefaultEstimatorConfig() EstimatorConfig {
	return EstimatorConfig{
		WindowSize: 8,
		Alpha:      0.2,
		MinBPM:     20,
		MaxBPM:     220,
	}
}

// EstimatorState is the estimator's carried state: the circular window of
// instantaneous BPM values and the exponential moving average.
type EstimatorState struct {
	Window *Window
	EMA    float64
}

// Estimator converts beat intervals into a double-smoothed BPM estimate.
//
// Per-beat BPM is very sensitive to single-sample timing jitter. The window
// average absorbs short bursts of error and the EMA damps step changes.
type Estimator struct {
	config EstimatorConfig
	state  EstimatorState
}

// NewEstimator creates an estimator. A WindowSize below 1, an Alpha
// outside (0, 1] or an empty BPM range falls back to the default.
func NewEstimator(config EstimatorConfig) *Estimator {
	def := DefaultEstimatorConfig()
	if config.WindowSize < 1 {
		config.WindowSize = def.WindowSize
	}
	if config.Alpha <= 0 || config.Alpha > 1 {
		config.Alpha = def.Alpha
	}
	if config.MinBPM < 0 || config.MaxBPM <= config.MinBPM {
		config.MinBPM, config.MaxBPM = def.MinBPM, def.MaxBPM
	}
	return &Estimator{
		config: config,
		state:  EstimatorState{Window: NewWindow(config.WindowSize)},
	}
}

// InstantBPM converts a beat interval to beats per minute. It returns 0 for
// non-positive intervals.
func InstantBPM(intervalMs int64) float64 {
	if intervalMs <= 0 {
		return 0
	}
	return 60000.0 / float64(intervalMs)
}

// InRange reports whether bpm lies strictly inside the valid range.
func (c EstimatorConfig) InRange(bpm float64) bool {
	return bpm > c.MinBPM && bpm < c.MaxBPM
}

// Update folds a beat into the estimate.
//
// It returns the updated EMA and true, or false when the beat carries no
// usable interval (first beat) or its instantaneous BPM is outside the valid
// range. Rejected beats leave the window and the EMA untouched.
func (e *Estimator) Update(beat BeatEvent) (float64, bool) {
	if beat.First {
		return e.state.EMA, false
	}

	bpm := InstantBPM(beat.IntervalMs)
	if !e.config.InRange(bpm) {
		return e.state.EMA, false
	}

	e.state.Window.Add(bpm)

	var windowAvg float64
	if e.config.ExcludeUnfilled {
		windowAvg = e.state.Window.FilledMean()
	} else {
		windowAvg = e.state.Window.Mean()
	}

	e.state.EMA = e.config.Alpha*windowAvg + (1-e.config.Alpha)*e.state.EMA
	return e.state.EMA, true
}

// EMA returns the current smoothed estimate without updating.
func (e *Estimator) EMA() float64 {
	return e.state.EMA
}

// Rounded returns the publishable value, round(EMA).
func (e *Estimator) Rounded() int {
	return int(math.Round(e.state.EMA))
}

// State returns the estimator state. The window is shared, not copied.
func (e *Estimator) State() EstimatorState {
	return e.state
}

// Config returns the effective configuration.
func (e *Estimator) Config() EstimatorConfig {
	return e.config
}

// Reset clears the window and the EMA.
func (e *Estimator) Reset() {
	e.state.Window.Reset()
	e.state.EMA = 0
}
