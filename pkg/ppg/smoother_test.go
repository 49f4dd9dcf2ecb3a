package ppg

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSmooth_AveragesAvailableValuesAtStart(t *testing.T) {
	assert.InDelta(t, 10.0, Smooth(nil, 10, 3), 1e-9)
	assert.InDelta(t, 15.0, Smooth([]uint32{20}, 10, 3), 1e-9)
	assert.InDelta(t, 20.0, Smooth([]uint32{30, 20}, 10, 3), 1e-9)
}

func TestSmooth_UsesTrailingWindowOnly(t *testing.T) {
	history := []uint32{1000, 1000, 30, 20}

	// Only the last windowSize-1 history values count.
	assert.InDelta(t, 20.0, Smooth(history, 10, 3), 1e-9)
}

func TestSmooth_WindowOfOne(t *testing.T) {
	assert.InDelta(t, 7.0, Smooth([]uint32{1, 2, 3}, 7, 1), 1e-9)
	assert.InDelta(t, 7.0, Smooth([]uint32{1, 2, 3}, 7, 0), 1e-9)
}

func TestSmoother_MatchesPureFunction(t *testing.T) {
	s := NewSmoother(3)
	raw := []uint32{100, 200, 600, 300, 0, 900}

	var history []uint32
	for i, v := range raw {
		got := s.Add(SensorSample{TimestampMs: int64(i * 10), IR: v})
		assert.Equal(t, int64(i*10), got.TimestampMs)
		assert.InDelta(t, Smooth(history, v, 3), got.Value, 1e-9, "sample %d", i)
		history = append(history, v)
	}
}

func TestSmoother_Reset(t *testing.T) {
	s := NewSmoother(3)
	s.Add(SensorSample{IR: 900})
	s.Add(SensorSample{IR: 900})

	s.Reset()
	got := s.Add(SensorSample{IR: 30})
	assert.InDelta(t, 30.0, got.Value, 1e-9)
}

func TestSmoother_DefaultWindow(t *testing.T) {
	assert.Equal(t, DefaultSmoothingWindow, NewSmoother(0).WindowSize())
}
