package ppg

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// Column layout of a SmartSuit text frame. Frames are ';'-separated and only
// the first two columns are consumed by the estimator.
const (
	FieldTimestamp = iota // timestamp_ms
	FieldIR               // ir_value
	FieldRed              // red_value
	FieldTemperature      // temperature_C
	FieldHumidity         // humidity_percent
)

// FieldSeparator separates columns in a SmartSuit frame.
const FieldSeparator = ";"

// JSON keys accepted by DecodeJSONRecord.
const (
	JSONKeyTimestamp = "timestamp_ms"
	JSONKeyIR        = "ir"
)

// RawRecord is a sensor frame as decoded by a transport, before validation.
// Values are kept as received: a string, a json.Number, a Go integer or
// float, or nil when the field was absent.
type RawRecord struct {
	Timestamp any
	IR        any
}

// ParseRecord splits a SmartSuit text frame into a RawRecord. Missing
// columns are left nil; Ingest rejects them.
func ParseRecord(line string) RawRecord {
	fields := strings.Split(strings.TrimSpace(line), FieldSeparator)

	var rec RawRecord
	if len(fields) > FieldTimestamp && fields[FieldTimestamp] != "" {
		rec.Timestamp = fields[FieldTimestamp]
	}
	if len(fields) > FieldIR && fields[FieldIR] != "" {
		rec.IR = fields[FieldIR]
	}
	return rec
}

// DecodeJSONRecord decodes a {"timestamp_ms": .., "ir": ..} frame. Invalid
// JSON yields an empty record, which Ingest drops.
func DecodeJSONRecord(data []byte) RawRecord {
	var fields map[string]any

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&fields); err != nil {
		return RawRecord{}
	}
	return RawRecord{
		Timestamp: fields[JSONKeyTimestamp],
		IR:        fields[JSONKeyIR],
	}
}

// Ingest validates a raw record and converts it into a SensorSample.
//
// It returns false, without side effects, when either field is absent,
// non-numeric, non-finite or fractional, or when the IR value is negative or
// does not fit in 32 bits. Malformed frames are dropped, never reported, so an
// isolated bad frame cannot abort the stream.
func Ingest(rec RawRecord) (SensorSample, bool) {
	ts, ok := toInt64(rec.Timestamp)
	if !ok {
		return SensorSample{}, false
	}
	ir, ok := toInt64(rec.IR)
	if !ok || ir < 0 || ir > math.MaxUint32 {
		return SensorSample{}, false
	}
	return SensorSample{TimestampMs: ts, IR: uint32(ir)}, true
}

// toInt64 converts a decoded field to an integer. Floats are accepted only
// when they are finite and integral.
func toInt64(v any) (int64, bool) {
	switch x := v.(type) {
	case nil:
		return 0, false
	case int:
		return int64(x), true
	case int32:
		return int64(x), true
	case int64:
		return x, true
	case uint16:
		return int64(x), true
	case uint32:
		return int64(x), true
	case uint64:
		if x > math.MaxInt64 {
			return 0, false
		}
		return int64(x), true
	case float32:
		return floatToInt64(float64(x))
	case float64:
		return floatToInt64(x)
	case json.Number:
		return parseInt64(string(x))
	case string:
		return parseInt64(x)
	default:
		return 0, false
	}
}

func parseInt64(s string) (int64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n, true
	}
	// Firmware sometimes prints integral readings as "123.0".
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return floatToInt64(f)
}

func floatToInt64(f float64) (int64, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
		return 0, false
	}
	if f < math.MinInt64 || f >= math.MaxInt64 {
		return 0, false
	}
	return int64(f), true
}
