package ppg

// Config configures the complete estimation pipeline.
type Config struct {
	// SmoothingWindow is the number of raw samples averaged for the display
	// trace.
	// Default: 3
	SmoothingWindow int

	// DetectorConfig configures beat detection.
	DetectorConfig DetectorConfig

	// EstimatorConfig configures the BPM window and EMA.
	EstimatorConfig EstimatorConfig

	// ThrottleConfig configures how often estimates are published.
	ThrottleConfig ThrottleConfig

	// SeriesCapacity bounds the rolling IR and BPM series kept by a Session.
	// Default: 300
	SeriesCapacity int
}

// DefaultConfig returns the default pipeline configuration.
func DefaultConfig() Config {
	return Config{
		SmoothingWindow: DefaultSmoothingWindow,
		DetectorConfig:  DefaultDetectorConfig(),
		EstimatorConfig: DefaultEstimatorConfig(),
		ThrottleConfig:  DefaultThrottleConfig(),
		SeriesCapacity:  DefaultSeriesCapacity,
	}
}

// Result is everything one sample produced on its way through the pipeline.
type Result struct {
	// Sample is the ingested sample.
	Sample SensorSample

	// Smoothed is the display trace point for the sample.
	Smoothed SmoothedSample

	// Beat is set when HasBeat is true.
	Beat    BeatEvent
	HasBeat bool

	// InstantBPM is the beat's instantaneous rate. It is set only when the
	// beat passed the range gate and was folded into the estimate.
	InstantBPM float64
	Accepted   bool

	// Estimate is set when Published is true.
	Estimate  PublishedEstimate
	Published bool
}

// Pipeline is the synchronous reducer that takes one sample to completion:
//   - Smoother for the display trace
//   - PeakDetector for beat confirmation on raw values
//   - Estimator for the windowed, EMA-smoothed BPM
//   - DisplayThrottle for publish rate limiting
//
// A Pipeline is not safe for concurrent use; see Session.
type Pipeline struct {
	config    Config
	smoother  *Smoother
	detector  *PeakDetector
	estimator *Estimator
	throttle  *DisplayThrottle
}

// NewPipeline creates a pipeline at session-start state.
func NewPipeline(config Config) *Pipeline {
	return &Pipeline{
		config:    config,
		smoother:  NewSmoother(config.SmoothingWindow),
		detector:  NewPeakDetector(config.DetectorConfig),
		estimator: NewEstimator(config.EstimatorConfig),
		throttle:  NewDisplayThrottle(config.ThrottleConfig),
	}
}

// Process runs one validated sample through every stage.
func (p *Pipeline) Process(sample SensorSample) Result {
	res := Result{
		Sample:   sample,
		Smoothed: p.smoother.Add(sample),
	}

	beat, ok := p.detector.Process(sample)
	if !ok {
		return res
	}
	res.Beat = beat
	res.HasBeat = true

	candidate, ok := p.estimator.Update(beat)
	if !ok {
		return res
	}
	res.InstantBPM = InstantBPM(beat.IntervalMs)
	res.Accepted = true

	// The beat's own timestamp drives the publish cadence.
	res.Estimate, res.Published = p.throttle.Offer(beat.TimestampMs, candidate)
	return res
}

// ProcessRecord ingests a raw record and processes it. It returns false when
// the record was malformed and dropped.
func (p *Pipeline) ProcessRecord(rec RawRecord) (Result, bool) {
	sample, ok := Ingest(rec)
	if !ok {
		return Result{}, false
	}
	return p.Process(sample), true
}

// EMA returns the current unrounded estimate.
func (p *Pipeline) EMA() float64 {
	return p.estimator.EMA()
}

// DetectorState returns a copy of the detector state.
func (p *Pipeline) DetectorState() DetectorState {
	return p.detector.State()
}

// EstimatorState returns the estimator state.
func (p *Pipeline) EstimatorState() EstimatorState {
	return p.estimator.State()
}

// Latest returns the last published estimate, if any.
func (p *Pipeline) Latest() (PublishedEstimate, bool) {
	return p.throttle.Last()
}

// Config returns the pipeline configuration.
func (p *Pipeline) Config() Config {
	return p.config
}

// Reset returns every stage to session-start state.
func (p *Pipeline) Reset() {
	p.smoother.Reset()
	p.detector.Reset()
	p.estimator.Reset()
	p.throttle.Reset()
}
