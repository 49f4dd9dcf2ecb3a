package ppg

import (
	"strconv"
	"testing"
)

// benchResult keeps the compiler from discarding benchmark results.
var benchResult Result

// pulseAt returns the pulseTrain value for timestamp ts.
func pulseAt(ts, stepMs, periodMs int64) SensorSample {
	v := uint32(pulseBaseline)
	switch ts % periodMs {
	case pulseOffsetMs:
		v = pulsePeak
	case pulseOffsetMs - stepMs, pulseOffsetMs + stepMs:
		v = pulseShoulder
	}
	return SensorSample{TimestampMs: ts, IR: v}
}

// BenchmarkPipeline_Process_ZeroAlloc measures the per-sample cost of the
// full pipeline in steady state. Target: 0 allocs/op.
func BenchmarkPipeline_Process_ZeroAlloc(b *testing.B) {
	b.ReportAllocs()

	p := NewPipeline(DefaultConfig())
	ts := int64(0)
	for i := 0; i < 10000; i++ {
		p.Process(pulseAt(ts, 10, 800))
		ts += 10
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		benchResult = p.Process(pulseAt(ts, 10, 800))
		ts += 10
	}
}

// BenchmarkSession_FeedSample measures the locked session path including
// the rolling series. Target: 0 allocs/op.
func BenchmarkSession_FeedSample(b *testing.B) {
	b.ReportAllocs()

	s := NewSession(DefaultConfig(), nil)
	ts := int64(0)
	for i := 0; i < 10000; i++ {
		s.FeedSample(pulseAt(ts, 10, 800))
		ts += 10
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		benchResult, _ = s.FeedSample(pulseAt(ts, 10, 800))
		ts += 10
	}
}

// BenchmarkSession_FeedLine includes frame parsing, which allocates for the
// field split. Lines wrap around after the prepared trace, which the
// detector sees as a timestamp rollback.
func BenchmarkSession_FeedLine(b *testing.B) {
	b.ReportAllocs()

	s := NewSession(DefaultConfig(), nil)
	lines := make([]string, 8000)
	for i := range lines {
		smp := pulseAt(int64(i)*10, 10, 800)
		lines[i] = strconv.FormatInt(smp.TimestampMs, 10) + ";" + strconv.FormatUint(uint64(smp.IR), 10)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		benchResult, _, _ = s.FeedLine(lines[i%len(lines)])
	}
}

func BenchmarkParseRecord(b *testing.B) {
	b.ReportAllocs()
	line := "123456;98765;87654;36.60;40.00;0.00;0.00;1.00;0.00;0.00;0.00;0.00;0.00;1.00;0.00;0.00;0.00;72"
	for i := 0; i < b.N; i++ {
		rec := ParseRecord(line)
		_, _ = Ingest(rec)
	}
}
