package ppg

import (
	"errors"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readAll(t *testing.T, data string) []SensorSample {
	t.Helper()
	var out []SensorSample
	err := ReadRecording(strings.NewReader(data), func(rec RawRecord) error {
		if s, ok := Ingest(rec); ok {
			out = append(out, s)
		}
		return nil
	})
	require.NoError(t, err)
	return out
}

func TestReadRecording_WithHeader(t *testing.T) {
	data := strings.Join(RecordingHeader, ";") + "\n" +
		"2025-03-01T10:00:00.000Z;1000;104512;98000;36.50;41.20;0;0;1;0;0;0;0;0;1;0;0;0;72\n" +
		"2025-03-01T10:00:00.010Z;1010;104800;98100;36.50;41.20;0;0;1;0;0;0;0;0;1;0;0;0;72\n"

	assert.Equal(t, []SensorSample{
		{TimestampMs: 1000, IR: 104512},
		{TimestampMs: 1010, IR: 104800},
	}, readAll(t, data))
}

func TestReadRecording_BareFrames(t *testing.T) {
	data := "1000;5\n\n1010;6;7;8\n"
	assert.Equal(t, []SensorSample{{1000, 5}, {1010, 6}}, readAll(t, data))
}

func TestReadRecording_TimeColumnWithoutHeader(t *testing.T) {
	data := "2025-03-01T10:00:00.000Z;1000;5\n2025-03-01T10:00:00.010Z;1010;6\n"
	assert.Equal(t, []SensorSample{{1000, 5}, {1010, 6}}, readAll(t, data))
}

func TestReadRecording_DamagedFirstRowDoesNotShiftColumns(t *testing.T) {
	// Bare frames whose first row lost its timestamp.
	data := ";5;7\n1010;6;7\n1020;8;7\n"
	assert.Equal(t, []SensorSample{{1010, 6}, {1020, 8}}, readAll(t, data))

	// Time-prefixed frames whose first row lost its IR value.
	data = "2025-03-01T10:00:00.000Z;1000;\n2025-03-01T10:00:00.010Z;1010;6\n"
	assert.Equal(t, []SensorSample{{1010, 6}}, readAll(t, data))
}

func TestReadRecording_FullFrameWidthSelectsLayout(t *testing.T) {
	bare := "1000;104512;98000;36.50;41.20;0;0;1;0;0;0;0;0;1;0;0;0;72\n"
	assert.Equal(t, []SensorSample{{1000, 104512}}, readAll(t, bare))

	prefixed := "garbled;1000;104512;98000;36.50;41.20;0;0;1;0;0;0;0;0;1;0;0;0;72\n"
	assert.Equal(t, []SensorSample{{1000, 104512}}, readAll(t, prefixed))
}

func TestReadRecording_ReorderedHeader(t *testing.T) {
	data := "ir;timestamp_ms\n5;1000\n6;1010\n"
	assert.Equal(t, []SensorSample{{1000, 5}, {1010, 6}}, readAll(t, data))
}

func TestReadRecording_MalformedRowsReachCallback(t *testing.T) {
	var recs []RawRecord
	err := ReadRecording(strings.NewReader("1000;5\n1010\n1020;x\n"), func(rec RawRecord) error {
		recs = append(recs, rec)
		return nil
	})
	require.NoError(t, err)
	require.Len(t, recs, 3)
	assert.Nil(t, recs[1].IR)

	_, ok := Ingest(recs[2])
	assert.False(t, ok)
}

func TestReadRecording_CallbackErrorStops(t *testing.T) {
	stop := errors.New("stop")
	var n int
	err := ReadRecording(strings.NewReader("1;1\n2;2\n3;3\n"), func(RawRecord) error {
		n++
		if n == 2 {
			return stop
		}
		return nil
	})
	assert.ErrorIs(t, err, stop)
	assert.Equal(t, 2, n)
}

func TestReadRecording_ReplayIsDeterministic(t *testing.T) {
	var b strings.Builder
	for _, s := range pulseTrain(0, 10, 750, 60) {
		b.WriteString(strconv.FormatInt(s.TimestampMs, 10) + ";" + strconv.FormatUint(uint64(s.IR), 10))
		b.WriteByte('\n')
	}
	data := b.String()

	run := func() []PublishedEstimate {
		p := NewPipeline(DefaultConfig())
		var out []PublishedEstimate
		require.NoError(t, ReadRecording(strings.NewReader(data), func(rec RawRecord) error {
			if res, ok := p.ProcessRecord(rec); ok && res.Published {
				out = append(out, res.Estimate)
			}
			return nil
		}))
		return out
	}

	first := run()
	require.NotEmpty(t, first)
	assert.Equal(t, first, run())
	assert.Equal(t, 80, first[len(first)-1].RoundedBPM)
}
