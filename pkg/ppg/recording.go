package ppg

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
)

// RecordingHeader is the header line of a recording export. The first
// column is the wall-clock time at which the frame was recorded; the rest is
// the SmartSuit frame.
var RecordingHeader = []string{
	"Time",
	"timestamp_ms",
	"ir_value",
	"red_value",
	"temperature_C",
	"humidity_percent",
	"accel_bmi270_x",
	"accel_bmi270_y",
	"accel_bmi270_z",
	"gyro_bmi270_x",
	"gyro_bmi270_y",
	"gyro_bmi270_z",
	"accel_mpu6050_x",
	"accel_mpu6050_y",
	"accel_mpu6050_z",
	"gyro_mpu6050_x",
	"gyro_mpu6050_y",
	"gyro_mpu6050_z",
	"bpm",
}

// ReadRecording reads a ';'-separated recording and calls fn with every row
// in file order.
//
// The header is optional. When present, the timestamp_ms and ir_value
// columns are located by name; otherwise rows are treated as bare SmartSuit
// frames, optionally prefixed with a "Time" column. The layout is fixed by
// the first row that shows it unambiguously; rows before that are read as
// bare frames. fn errors stop the read and are returned as is.
func ReadRecording(r io.Reader, fn func(rec RawRecord) error) error {
	cr := csv.NewReader(r)
	cr.Comma = ';'
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	cr.ReuseRecord = true

	tsCol, irCol := -1, -1
	for line := 1; ; line++ {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read recording line %d: %w", line, err)
		}
		if len(row) == 0 || (len(row) == 1 && strings.TrimSpace(row[0]) == "") {
			continue
		}

		ts, ir := tsCol, irCol
		if tsCol < 0 {
			if hts, hir, ok := headerColumns(row); ok {
				tsCol, irCol = hts, hir
				continue
			}
			var decided bool
			ts, ir, decided = frameLayout(row)
			if decided {
				tsCol, irCol = ts, ir
			}
		}

		var rec RawRecord
		if ts < len(row) && row[ts] != "" {
			rec.Timestamp = row[ts]
		}
		if ir < len(row) && row[ir] != "" {
			rec.IR = row[ir]
		}
		if err := fn(rec); err != nil {
			return err
		}
	}
}

// headerColumns locates the timestamp and IR columns in a header row.
func headerColumns(row []string) (ts, ir int, ok bool) {
	ts, ir = -1, -1
	for i, name := range row {
		switch strings.TrimSpace(name) {
		case "timestamp_ms":
			ts = i
		case "ir_value", "ir":
			ir = i
		}
	}
	return ts, ir, ts >= 0 && ir >= 0
}

// frameLayout guesses the timestamp and IR columns of a headerless row.
// decided is false when the row is too damaged to tell a bare frame from
// one with a leading wall-clock column; the bare layout is returned then.
func frameLayout(row []string) (ts, ir int, decided bool) {
	switch len(row) {
	case len(RecordingHeader):
		return FieldTimestamp + 1, FieldIR + 1, true
	case len(RecordingHeader) - 1:
		return FieldTimestamp, FieldIR, true
	}

	numeric := func(i int) bool {
		if i >= len(row) {
			return false
		}
		_, ok := parseInt64(row[i])
		return ok
	}
	switch {
	case numeric(0) && numeric(1):
		return FieldTimestamp, FieldIR, true
	case strings.TrimSpace(row[0]) != "" && !numeric(0) && numeric(1) && numeric(2):
		return FieldTimestamp + 1, FieldIR + 1, true
	}
	return FieldTimestamp, FieldIR, false
}
