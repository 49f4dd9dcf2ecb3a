// Package transport connects external sensor links to ppg sessions.
//
// Every transport delivers raw frames keyed by device and hands them to a
// Feeder, normally a *ppg.Sessions. Published estimates travel back as
// EstimateMessage JSON on brokers that support it.
package transport

import (
	"bytes"
	"encoding/json"

	"github.com/thesyncim/ppg/pkg/ppg"
)

// Feeder accepts raw records for a device. *ppg.Sessions implements it.
type Feeder interface {
	Feed(key string, rec ppg.RawRecord) (ppg.Result, bool, error)
}

// EstimateMessage is the wire form of a published estimate.
type EstimateMessage struct {
	Device        string `json:"device"`
	BPM           int    `json:"bpm"`
	PublishedAtMs int64  `json:"published_at_ms"`
}

// NewEstimateMessage wraps a published estimate for device.
func NewEstimateMessage(device string, est ppg.PublishedEstimate) EstimateMessage {
	return EstimateMessage{
		Device:        device,
		BPM:           est.RoundedBPM,
		PublishedAtMs: est.PublishedAtMs,
	}
}

// Marshal encodes the message as JSON.
func (m EstimateMessage) Marshal() ([]byte, error) {
	return json.Marshal(m)
}

// DecodePayload splits a broker payload into records. A payload is either
// newline-separated SmartSuit frames or newline-separated JSON objects with
// timestamp_ms and ir keys; the format is chosen per line.
func DecodePayload(data []byte, fn func(rec ppg.RawRecord)) {
	for len(data) > 0 {
		var line []byte
		if i := bytes.IndexByte(data, '\n'); i >= 0 {
			line, data = data[:i], data[i+1:]
		} else {
			line, data = data, nil
		}
		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}
		if line[0] == '{' {
			fn(ppg.DecodeJSONRecord(line))
		} else {
			fn(ppg.ParseRecord(string(line)))
		}
	}
}

// feedPayload feeds every record of a payload to f and returns how many were
// accepted. Feeding stops at the first error.
func feedPayload(f Feeder, key string, data []byte) (accepted int, err error) {
	DecodePayload(data, func(rec ppg.RawRecord) {
		if err != nil {
			return
		}
		var ok bool
		if _, ok, err = f.Feed(key, rec); ok {
			accepted++
		}
	})
	return accepted, err
}
