package ppg

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMaybePublish_StrictInterval(t *testing.T) {
	_, ok := MaybePublish(0, 1000, 72.4, 1000)
	assert.False(t, ok, "gap equal to the interval is not enough")

	est, ok := MaybePublish(0, 1001, 72.4, 1000)
	require.True(t, ok)
	assert.Equal(t, PublishedEstimate{RoundedBPM: 72, PublishedAtMs: 1001}, est)

	est, ok = MaybePublish(0, 1001, 72.5, 1000)
	require.True(t, ok)
	assert.Equal(t, 73, est.RoundedBPM)
}

func TestDisplayThrottle_FirstCandidateAlwaysPublishes(t *testing.T) {
	th := NewDisplayThrottle(DefaultThrottleConfig())

	_, ok := th.Last()
	assert.False(t, ok)

	est, ok := th.Offer(200, 3.4)
	require.True(t, ok, "first publish is not held back by the interval")
	assert.Equal(t, PublishedEstimate{RoundedBPM: 3, PublishedAtMs: 200}, est)
}

func TestDisplayThrottle_RegularInterval(t *testing.T) {
	th := NewDisplayThrottle(DefaultThrottleConfig())

	_, ok := th.Offer(0, 60)
	assert.True(t, ok, "t=0: first call publishes")

	_, ok = th.Offer(500, 61)
	assert.False(t, ok, "t=500: too soon")

	_, ok = th.Offer(1000, 62)
	assert.False(t, ok, "t=1000: exactly one interval is not enough")

	est, ok := th.Offer(1001, 63)
	assert.True(t, ok, "t=1001: interval elapsed")
	assert.Equal(t, 63, est.RoundedBPM)

	_, ok = th.Offer(1800, 64)
	assert.False(t, ok, "t=1800: too soon after last publish")

	last, ok := th.Last()
	require.True(t, ok)
	assert.Equal(t, PublishedEstimate{RoundedBPM: 63, PublishedAtMs: 1001}, last, "suppressed candidates do not overwrite")
}

func TestDisplayThrottle_PublishedGapsExceedInterval(t *testing.T) {
	cfg := DefaultThrottleConfig()
	th := NewDisplayThrottle(cfg)

	var published []int64
	now := int64(0)
	for i := 0; i < 500; i++ {
		// Irregular beat spacing between 300 and 1100ms.
		now += 300 + int64(i*97)%800
		if est, ok := th.Offer(now, 80); ok {
			published = append(published, est.PublishedAtMs)
		}
	}

	require.Greater(t, len(published), 10)
	for i := 1; i < len(published); i++ {
		assert.Greater(t, published[i]-published[i-1], cfg.MinPublishIntervalMs)
	}
}

func TestDisplayThrottle_ClockRollbackPublishes(t *testing.T) {
	th := NewDisplayThrottle(DefaultThrottleConfig())

	_, ok := th.Offer(50000, 70)
	require.True(t, ok)

	est, ok := th.Offer(100, 71)
	require.True(t, ok, "a timestamp before the last publish starts over")
	assert.Equal(t, int64(100), est.PublishedAtMs)

	_, ok = th.Offer(600, 72)
	assert.False(t, ok)
}

func TestDisplayThrottle_Reset(t *testing.T) {
	th := NewDisplayThrottle(DefaultThrottleConfig())
	th.Offer(0, 70)

	th.Reset()
	_, ok := th.Last()
	assert.False(t, ok)

	_, ok = th.Offer(10, 70)
	assert.True(t, ok)
}
