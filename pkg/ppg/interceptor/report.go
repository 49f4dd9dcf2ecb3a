package interceptor

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/pion/rtcp"
)

const (
	// ReportName is the four-character name of PPG report APP packets.
	ReportName = "PPGB"

	// ReportSubType distinguishes the BPM report from future PPG APP packets.
	ReportSubType uint8 = 1

	reportDataSize = 16
)

var errReportFormat = errors.New("not a PPG report")

// Report is a published heart-rate estimate for one media stream.
type Report struct {
	// SenderSSRC is the SSRC of the receiver sending the report.
	SenderSSRC uint32

	// MediaSSRC is the PPG stream the estimate was computed from.
	MediaSSRC uint32

	// BPM is the rounded published estimate.
	BPM uint32

	// PublishedAtMs is the sensor timestamp at which the estimate was
	// published.
	PublishedAtMs int64
}

// Packet returns the report as an RTCP APP packet.
//
// Data layout, big endian: media SSRC (4), BPM (4), published-at ms (8).
func (r Report) Packet() *rtcp.ApplicationDefined {
	data := make([]byte, reportDataSize)
	binary.BigEndian.PutUint32(data[0:4], r.MediaSSRC)
	binary.BigEndian.PutUint32(data[4:8], r.BPM)
	binary.BigEndian.PutUint64(data[8:16], uint64(r.PublishedAtMs))
	return &rtcp.ApplicationDefined{
		SubType: ReportSubType,
		SSRC:    r.SenderSSRC,
		Name:    ReportName,
		Data:    data,
	}
}

// Marshal returns the wire form of the report.
func (r Report) Marshal() ([]byte, error) {
	return r.Packet().Marshal()
}

// ReportFromPacket extracts a Report from a decoded RTCP packet.
func ReportFromPacket(pkt rtcp.Packet) (Report, error) {
	app, ok := pkt.(*rtcp.ApplicationDefined)
	if !ok {
		return Report{}, fmt.Errorf("%w: %T", errReportFormat, pkt)
	}
	if app.Name != ReportName || app.SubType != ReportSubType || len(app.Data) < reportDataSize {
		return Report{}, fmt.Errorf("%w: name=%q subtype=%d len=%d", errReportFormat, app.Name, app.SubType, len(app.Data))
	}
	return Report{
		SenderSSRC:    app.SSRC,
		MediaSSRC:     binary.BigEndian.Uint32(app.Data[0:4]),
		BPM:           binary.BigEndian.Uint32(app.Data[4:8]),
		PublishedAtMs: int64(binary.BigEndian.Uint64(app.Data[8:16])),
	}, nil
}

// ParseReport parses a report from raw RTCP bytes.
// Useful for senders and tests.
func ParseReport(data []byte) (Report, error) {
	pkt := &rtcp.ApplicationDefined{}
	if err := pkt.Unmarshal(data); err != nil {
		return Report{}, fmt.Errorf("unmarshal PPG report: %w", err)
	}
	return ReportFromPacket(pkt)
}
