package ppg

import "math"

// ThrottleConfig configures the display throttle.
type ThrottleConfig struct {
	// MinPublishIntervalMs is the minimum gap, measured on the sensor
	// clock, between two published estimates. A candidate is published only
	// when strictly more than this has elapsed.
	// Default: 1000
	MinPublishIntervalMs int64
}

// DefaultThrottleConfig returns the throttle defaults.
func DefaultThrottleConfig() ThrottleConfig {
	return ThrottleConfig{
		MinPublishIntervalMs: 1000,
	}
}

// MaybePublish decides whether candidate is published at nowMs given the
// previous publish time. Times are sensor timestamps, so the outcome depends
// only on the trace and is reproducible on replay.
func MaybePublish(lastPublishedAtMs, nowMs int64, candidate float64, minPublishIntervalMs int64) (PublishedEstimate, bool) {
	if nowMs-lastPublishedAtMs <= minPublishIntervalMs {
		return PublishedEstimate{}, false
	}
	return PublishedEstimate{
		RoundedBPM:    int(math.Round(candidate)),
		PublishedAtMs: nowMs,
	}, true
}

// DisplayThrottle rate-limits how often the estimate is exposed, independent
// of the beat rate. It remembers the last published value; a slow observer
// just sees the latest one.
type DisplayThrottle struct {
	config    ThrottleConfig
	last      PublishedEstimate
	published bool
}

// NewDisplayThrottle creates a throttle.
func NewDisplayThrottle(config ThrottleConfig) *DisplayThrottle {
	return &DisplayThrottle{config: config}
}

// Offer submits a candidate estimate produced at nowMs.
//
// The first candidate of a session is always published. After that a
// candidate is published when more than MinPublishIntervalMs has passed
// since the last publish. A timestamp earlier than the last publish (sensor
// clock reset) is treated like the first candidate.
func (t *DisplayThrottle) Offer(nowMs int64, candidate float64) (PublishedEstimate, bool) {
	if t.published && nowMs >= t.last.PublishedAtMs {
		est, ok := MaybePublish(t.last.PublishedAtMs, nowMs, candidate, t.config.MinPublishIntervalMs)
		if !ok {
			return PublishedEstimate{}, false
		}
		t.last = est
		return est, true
	}

	t.last = PublishedEstimate{
		RoundedBPM:    int(math.Round(candidate)),
		PublishedAtMs: nowMs,
	}
	t.published = true
	return t.last, true
}

// Last returns the last published estimate and whether one exists.
func (t *DisplayThrottle) Last() (PublishedEstimate, bool) {
	return t.last, t.published
}

// Reset forgets the last publish.
func (t *DisplayThrottle) Reset() {
	t.last = PublishedEstimate{}
	t.published = false
}
