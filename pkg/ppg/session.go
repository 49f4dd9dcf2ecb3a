package ppg

import (
	"errors"
	"sync"
	"time"

	"github.com/thesyncim/ppg/pkg/ppg/internal"
)

// ErrSessionClosed is returned when feeding a session after Close.
var ErrSessionClosed = errors.New("ppg: session closed")

// PublishCallback is called with every published estimate. It runs on the
// goroutine that fed the sample, after the session lock is released, and
// must not block.
type PublishCallback func(est PublishedEstimate)

// Snapshot is a consistent copy of a session's outputs.
type Snapshot struct {
	// IR is the rolling smoothed IR trace, oldest first.
	IR []Point

	// BPM is the rolling published BPM history, oldest first.
	BPM []Point

	// Latest is the last published estimate; valid when HasEstimate is set.
	Latest      PublishedEstimate
	HasEstimate bool

	// Samples and Dropped count ingested and rejected records.
	Samples int64
	Dropped int64
}

// Session owns the pipeline state of one streaming session.
//
// Transports deliver samples from asynchronous callbacks, possibly from
// several goroutines. Session serializes them: each sample runs through the
// pipeline to completion under the session lock, and Reset and Close discard
// the pipeline state atomically with respect to an in-flight sample.
type Session struct {
	mu       sync.Mutex
	config   Config
	clock    internal.Clock
	pipeline *Pipeline
	irSeries *Series
	bpm      *Series

	samples      int64
	dropped      int64
	lastActivity time.Time
	closed       bool

	callback PublishCallback
}

// NewSession creates a session. If clock is nil, a MonotonicClock is used.
func NewSession(config Config, clock internal.Clock) *Session {
	if clock == nil {
		clock = internal.MonotonicClock{}
	}
	return &Session{
		config:       config,
		clock:        clock,
		pipeline:     NewPipeline(config),
		irSeries:     NewSeries(config.SeriesCapacity),
		bpm:          NewSeries(config.SeriesCapacity),
		lastActivity: clock.Now(),
	}
}

// SetCallback registers the publish observer. Pass nil to disable.
func (s *Session) SetCallback(cb PublishCallback) {
	s.mu.Lock()
	s.callback = cb
	s.mu.Unlock()
}

// Feed ingests and processes one raw record.
//
// Malformed records are dropped silently (ok is false, err is nil). The only
// error is ErrSessionClosed.
func (s *Session) Feed(rec RawRecord) (Result, bool, error) {
	sample, valid := Ingest(rec)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return Result{}, false, ErrSessionClosed
	}
	s.lastActivity = s.clock.Now()
	if !valid {
		s.dropped++
		s.mu.Unlock()
		return Result{}, false, nil
	}

	res := s.processLocked(sample)
	cb := s.callback
	s.mu.Unlock()

	if res.Published && cb != nil {
		cb(res.Estimate)
	}
	return res, true, nil
}

// FeedLine parses a SmartSuit text frame and feeds it.
func (s *Session) FeedLine(line string) (Result, bool, error) {
	return s.Feed(ParseRecord(line))
}

// FeedSample processes an already validated sample.
func (s *Session) FeedSample(sample SensorSample) (Result, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return Result{}, ErrSessionClosed
	}
	s.lastActivity = s.clock.Now()
	res := s.processLocked(sample)
	cb := s.callback
	s.mu.Unlock()

	if res.Published && cb != nil {
		cb(res.Estimate)
	}
	return res, nil
}

func (s *Session) processLocked(sample SensorSample) Result {
	s.samples++
	res := s.pipeline.Process(sample)

	s.irSeries.Append(Point{TimestampMs: res.Smoothed.TimestampMs, Value: res.Smoothed.Value})
	if res.Published {
		s.bpm.Append(Point{
			TimestampMs: res.Estimate.PublishedAtMs,
			Value:       float64(res.Estimate.RoundedBPM),
		})
	}
	return res
}

// Latest returns the last published estimate.
func (s *Session) Latest() (PublishedEstimate, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pipeline.Latest()
}

// Snapshot copies the session outputs.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	latest, ok := s.pipeline.Latest()
	return Snapshot{
		IR:          s.irSeries.Snapshot(),
		BPM:         s.bpm.Snapshot(),
		Latest:      latest,
		HasEstimate: ok,
		Samples:     s.samples,
		Dropped:     s.dropped,
	}
}

// LastActivity returns when the session last received a record.
func (s *Session) LastActivity() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActivity
}

// Reset discards all estimation state and outputs so the next sample starts
// a fresh session, for example after the sensor reconnects.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resetLocked()
}

func (s *Session) resetLocked() {
	s.pipeline.Reset()
	s.irSeries.Reset()
	s.bpm.Reset()
	s.samples = 0
	s.dropped = 0
}

// Close ends the session. State is discarded and later feeds fail with
// ErrSessionClosed. Close is idempotent.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.resetLocked()
	s.closed = true
	s.callback = nil
	return nil
}

// Closed reports whether Close has been called.
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
