package interceptor

import (
	"bytes"
	"strings"

	"github.com/pion/interceptor"
)

// RTP codec parameters for PPG frame streams.
const (
	// MimeTypePPG identifies RTP streams whose payload is newline-separated
	// SmartSuit text frames.
	MimeTypePPG = "application/x-ppg"

	// ClockRate is the RTP timestamp rate. Frames carry their own millisecond
	// timestamps, so the RTP timestamp is the sender's millisecond clock.
	ClockRate = 1000

	// DefaultPayloadType is the dynamic payload type used when none is
	// negotiated explicitly.
	DefaultPayloadType = 118

	// frameSeparator splits frames inside one payload.
	frameSeparator = '\n'
)

// IsPPGStream reports whether the stream was negotiated as a PPG stream.
// The MIME type comparison is case-insensitive, as in SDP.
func IsPPGStream(info *interceptor.StreamInfo) bool {
	return info != nil && strings.EqualFold(info.MimeType, MimeTypePPG)
}

// MarshalFrames packs frames into one RTP payload.
func MarshalFrames(frames []string) []byte {
	return []byte(strings.Join(frames, string(frameSeparator)))
}

// forEachFrame calls fn for every non-empty frame in payload.
func forEachFrame(payload []byte, fn func(frame string)) {
	for len(payload) > 0 {
		var frame []byte
		if i := bytes.IndexByte(payload, frameSeparator); i >= 0 {
			frame, payload = payload[:i], payload[i+1:]
		} else {
			frame, payload = payload, nil
		}
		frame = bytes.TrimSpace(frame)
		if len(frame) > 0 {
			fn(string(frame))
		}
	}
}

// UnmarshalFrames splits an RTP payload into frames. Empty lines are skipped.
func UnmarshalFrames(payload []byte) []string {
	var frames []string
	forEachFrame(payload, func(frame string) {
		frames = append(frames, frame)
	})
	return frames
}
