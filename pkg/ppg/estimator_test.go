package ppg

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func beatEvery(intervalMs int64) BeatEvent {
	return BeatEvent{IntervalMs: intervalMs}
}

func TestEstimator_InitialState(t *testing.T) {
	e := NewEstimator(DefaultEstimatorConfig())

	assert.Equal(t, 0.0, e.EMA())
	assert.Equal(t, 8, e.State().Window.Cap())
	assert.Equal(t, make([]float64, 8), e.State().Window.Values(), "window is zero-seeded")
}

func TestEstimator_FirstBeatProducesNothing(t *testing.T) {
	e := NewEstimator(DefaultEstimatorConfig())

	_, ok := e.Update(BeatEvent{TimestampMs: 200, First: true})
	assert.False(t, ok)
	assert.Equal(t, 0, e.State().Window.Filled())
}

func TestEstimator_ZeroSeededStartupBias(t *testing.T) {
	e := NewEstimator(DefaultEstimatorConfig())

	// One 100 BPM beat: window average is 100/8, EMA is 0.2 of that.
	ema, ok := e.Update(beatEvery(600))
	require.True(t, ok)
	assert.InDelta(t, 2.5, ema, 1e-9)

	// Second beat: window average 25, EMA 0.2*25 + 0.8*2.5.
	ema, ok = e.Update(beatEvery(600))
	require.True(t, ok)
	assert.InDelta(t, 7.0, ema, 1e-9)
}

func TestEstimator_ExcludeUnfilled(t *testing.T) {
	cfg := DefaultEstimatorConfig()
	cfg.ExcludeUnfilled = true
	e := NewEstimator(cfg)

	ema, ok := e.Update(beatEvery(600))
	require.True(t, ok)
	assert.InDelta(t, 20.0, ema, 1e-9, "only the written slot is averaged")
}

func TestEstimator_ConstantRateConverges(t *testing.T) {
	e := NewEstimator(DefaultEstimatorConfig())

	// Five beats 600ms apart: every instantaneous value is 100.
	for i := 0; i < 5; i++ {
		_, ok := e.Update(beatEvery(600))
		require.True(t, ok)
	}
	assert.InDelta(t, 5*100.0/8, e.State().Window.Mean(), 1e-9)

	// Fill the window: average is exactly 100 from here on.
	for i := 0; i < 3; i++ {
		e.Update(beatEvery(600))
	}
	assert.InDelta(t, 100.0, e.State().Window.Mean(), 1e-9)

	for i := 0; i < 100; i++ {
		e.Update(beatEvery(600))
	}
	assert.InDelta(t, 100.0, e.EMA(), 1e-6)
	assert.Equal(t, 100, e.Rounded())
}

func TestEstimator_ConvergenceBoundedByAlpha(t *testing.T) {
	cfg := DefaultEstimatorConfig()
	e := NewEstimator(cfg)

	// Once the window holds only B, the EMA error shrinks by (1-alpha) per
	// beat and never overshoots.
	const bpm = 75.0
	interval := int64(60000 / bpm)
	for i := 0; i < cfg.WindowSize; i++ {
		e.Update(beatEvery(interval))
	}

	prevErr := math.Abs(bpm - e.EMA())
	for i := 0; i < 50; i++ {
		e.Update(beatEvery(interval))
		err := math.Abs(bpm - e.EMA())
		assert.InDelta(t, (1-cfg.Alpha)*prevErr, err, 1e-9)
		assert.LessOrEqual(t, e.EMA(), bpm+1e-9)
		prevErr = err
	}
}

func TestEstimator_OutOfRangeDiscarded(t *testing.T) {
	e := NewEstimator(DefaultEstimatorConfig())
	for i := 0; i < 3; i++ {
		e.Update(beatEvery(600))
	}
	before := e.EMA()
	values := e.State().Window.Values()
	cursor := e.State().Window.Cursor()

	// 120ms interval is 500 BPM.
	ema, ok := e.Update(beatEvery(120))
	assert.False(t, ok)
	assert.Equal(t, before, ema)
	assert.Equal(t, before, e.EMA(), "EMA unchanged")
	assert.Equal(t, values, e.State().Window.Values(), "window unchanged")
	assert.Equal(t, cursor, e.State().Window.Cursor())
}

func TestEstimator_RangeBoundsAreExclusive(t *testing.T) {
	cfg := DefaultEstimatorConfig()

	tests := []struct {
		name       string
		intervalMs int64
		accepted   bool
	}{
		{"exactly 20 BPM", 3000, false},
		{"just above 20 BPM", 2999, true},
		{"just below 220 BPM", 273, true},
		{"just above 220 BPM", 272, false},
		{"zero interval", 0, false},
		{"negative interval", -600, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := NewEstimator(cfg)
			_, ok := e.Update(beatEvery(tt.intervalMs))
			assert.Equal(t, tt.accepted, ok)
			if !ok {
				assert.Equal(t, 0, e.State().Window.Filled())
			}
		})
	}
}

func TestEstimator_WindowNeverHoldsOutOfRangeValues(t *testing.T) {
	cfg := DefaultEstimatorConfig()
	e := NewEstimator(cfg)

	for interval := int64(50); interval < 5000; interval += 37 {
		e.Update(beatEvery(interval))
		for _, v := range e.State().Window.Values() {
			if v != 0 {
				assert.True(t, cfg.InRange(v), "window holds %v", v)
			}
		}
	}
}

func TestEstimator_InvalidConfigFallsBack(t *testing.T) {
	e := NewEstimator(EstimatorConfig{MinBPM: 20, MaxBPM: 220})
	assert.Equal(t, 8, e.Config().WindowSize)
	assert.Equal(t, 0.2, e.Config().Alpha)
}

func TestEstimator_EmptyRangeFallsBack(t *testing.T) {
	for _, cfg := range []EstimatorConfig{
		{},
		{MinBPM: 120, MaxBPM: 60},
		{MinBPM: -10, MaxBPM: 200},
	} {
		e := NewEstimator(cfg)
		assert.Equal(t, 20.0, e.Config().MinBPM)
		assert.Equal(t, 220.0, e.Config().MaxBPM)
	}

	e := NewEstimator(EstimatorConfig{})
	e.Update(beatEvery(800))
	_, ok := e.Update(beatEvery(800))
	assert.True(t, ok, "75 BPM is accepted with the default range")
}

func TestEstimator_Reset(t *testing.T) {
	e := NewEstimator(DefaultEstimatorConfig())
	for i := 0; i < 10; i++ {
		e.Update(beatEvery(500))
	}
	require.NotZero(t, e.EMA())

	e.Reset()
	assert.Equal(t, 0.0, e.EMA())
	assert.Equal(t, 0, e.State().Window.Filled())
	assert.Equal(t, 0, e.State().Window.Cursor())
}

func TestInstantBPM(t *testing.T) {
	assert.InDelta(t, 100.0, InstantBPM(600), 1e-9)
	assert.InDelta(t, 60.0, InstantBPM(1000), 1e-9)
	assert.InDelta(t, 500.0, InstantBPM(120), 1e-9)
	assert.Equal(t, 0.0, InstantBPM(0))
}
