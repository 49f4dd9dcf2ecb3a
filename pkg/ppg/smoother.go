package ppg

import "gonum.org/v1/gonum/stat"

// DefaultSmoothingWindow is the number of raw samples averaged for the
// displayed IR trace.
const DefaultSmoothingWindow = 3

// Smooth returns the arithmetic mean of newValue and the trailing
// windowSize-1 values of history. When fewer values are available (stream
// start) it averages over what exists instead of padding.
func Smooth(history []uint32, newValue uint32, windowSize int) float64 {
	if windowSize < 1 {
		windowSize = 1
	}
	if keep := windowSize - 1; len(history) > keep {
		history = history[len(history)-keep:]
	}

	sum := float64(newValue)
	for _, v := range history {
		sum += float64(v)
	}
	return sum / float64(len(history)+1)
}

// Smoother keeps the trailing window of raw IR values and produces the
// display trace. It only feeds display: beat detection runs on raw values.
type Smoother struct {
	values []float64 // ring of the last len(values) samples
	next   int
	count  int
}

// NewSmoother creates a smoother averaging over windowSize samples.
// A windowSize below 1 falls back to DefaultSmoothingWindow.
func NewSmoother(windowSize int) *Smoother {
	if windowSize < 1 {
		windowSize = DefaultSmoothingWindow
	}
	return &Smoother{values: make([]float64, windowSize)}
}

// Add pushes a raw sample and returns the smoothed point for it.
func (s *Smoother) Add(sample SensorSample) SmoothedSample {
	s.values[s.next] = float64(sample.IR)
	s.next = (s.next + 1) % len(s.values)
	if s.count < len(s.values) {
		s.count++
	}

	// Until the ring is full the live values sit in [0, count).
	return SmoothedSample{
		TimestampMs: sample.TimestampMs,
		Value:       stat.Mean(s.values[:s.count], nil),
	}
}

// WindowSize returns the configured window length.
func (s *Smoother) WindowSize() int {
	return len(s.values)
}

// Reset forgets all buffered samples.
func (s *Smoother) Reset() {
	for i := range s.values {
		s.values[i] = 0
	}
	s.next = 0
	s.count = 0
}
