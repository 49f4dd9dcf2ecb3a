package interceptor

import (
	"errors"
	"sync"
	"time"

	"github.com/pion/interceptor"
	"github.com/pion/logging"
	"github.com/pion/rtcp"

	"github.com/thesyncim/ppg/pkg/ppg"
)

const (
	// defaultStreamTimeout is how long an inactive PPG stream is kept.
	defaultStreamTimeout = 5 * time.Second

	// defaultReportInterval matches the display throttle interval.
	defaultReportInterval = time.Second
)

// PPGInterceptor is a Pion interceptor that estimates heart rate from PPG
// frames received over RTP. Each remote PPG stream gets its own ppg.Session,
// keyed by SSRC.
//
// Usage:
//
//	i := NewPPGInterceptor(ppg.DefaultConfig(), WithOnEstimate(func(ssrc uint32, est ppg.PublishedEstimate) {
//	    fmt.Println(ssrc, est.RoundedBPM)
//	}))
//	// Add to interceptor registry...
type PPGInterceptor struct {
	interceptor.NoOp

	config  ppg.Config
	streams sync.Map // SSRC (uint32) -> *streamState

	mu             sync.Mutex
	rtcpWriter     interceptor.RTCPWriter
	reportInterval time.Duration
	streamTimeout  time.Duration
	senderSSRC     uint32
	onEstimate     func(ssrc uint32, est ppg.PublishedEstimate)
	onReport       func(r Report)
	log            logging.LeveledLogger

	closed      chan struct{}
	closeOnce   sync.Once
	wg          sync.WaitGroup
	cleanupOnce sync.Once
	reportOnce  sync.Once
}

// InterceptorOption configures a PPGInterceptor.
type InterceptorOption func(*PPGInterceptor)

// WithReportInterval sets how often pending estimates are reported over
// RTCP. Default is 1 second.
func WithReportInterval(d time.Duration) InterceptorOption {
	return func(i *PPGInterceptor) {
		i.reportInterval = d
	}
}

// WithStreamTimeout sets how long a stream may stay silent before its
// session is closed. Default is 5 seconds.
func WithStreamTimeout(d time.Duration) InterceptorOption {
	return func(i *PPGInterceptor) {
		i.streamTimeout = d
	}
}

// WithSenderSSRC sets the SSRC placed in outgoing reports.
func WithSenderSSRC(ssrc uint32) InterceptorOption {
	return func(i *PPGInterceptor) {
		i.senderSSRC = ssrc
	}
}

// WithOnEstimate sets a callback invoked for every estimate published by any
// stream. It runs on the RTP reader goroutine and must not block.
func WithOnEstimate(fn func(ssrc uint32, est ppg.PublishedEstimate)) InterceptorOption {
	return func(i *PPGInterceptor) {
		i.onEstimate = fn
	}
}

// WithOnReport sets a callback invoked after each report is written.
func WithOnReport(fn func(r Report)) InterceptorOption {
	return func(i *PPGInterceptor) {
		i.onReport = fn
	}
}

// WithLogger sets the logger. Default is a pion default logger scoped to
// "ppg".
func WithLogger(log logging.LeveledLogger) InterceptorOption {
	return func(i *PPGInterceptor) {
		i.log = log
	}
}

// NewPPGInterceptor creates a heart-rate interceptor. config is applied to
// every per-stream session.
func NewPPGInterceptor(config ppg.Config, opts ...InterceptorOption) *PPGInterceptor {
	i := &PPGInterceptor{
		config:         config,
		reportInterval: defaultReportInterval,
		streamTimeout:  defaultStreamTimeout,
		closed:         make(chan struct{}),
	}
	for _, opt := range opts {
		opt(i)
	}
	if i.log == nil {
		i.log = logging.NewDefaultLoggerFactory().NewLogger("ppg")
	}
	return i
}

// Close stops the background loops and closes every session.
func (i *PPGInterceptor) Close() error {
	i.closeOnce.Do(func() {
		close(i.closed)
	})
	i.wg.Wait()

	var errs []error
	i.streams.Range(func(key, value any) bool {
		i.streams.Delete(key)
		errs = append(errs, value.(*streamState).session.Close())
		return true
	})
	return errors.Join(errs...)
}

// BindRTCPWriter captures the writer used for reports and starts the report
// loop.
func (i *PPGInterceptor) BindRTCPWriter(writer interceptor.RTCPWriter) interceptor.RTCPWriter {
	i.mu.Lock()
	i.rtcpWriter = writer
	i.mu.Unlock()

	i.reportOnce.Do(func() {
		i.wg.Add(1)
		go i.reportLoop()
	})

	return writer
}

// BindRemoteStream wraps the reader of every PPG stream so its packets feed
// the stream's session. Non-PPG streams are returned unchanged.
func (i *PPGInterceptor) BindRemoteStream(info *interceptor.StreamInfo, reader interceptor.RTPReader) interceptor.RTPReader {
	if !IsPPGStream(info) {
		return reader
	}

	i.cleanupOnce.Do(func() {
		i.wg.Add(1)
		go i.cleanupLoop()
	})

	ssrc := info.SSRC
	i.stream(ssrc, time.Now())
	i.log.Debugf("bound PPG stream ssrc=%d payloadType=%d", ssrc, info.PayloadType)

	return interceptor.RTPReaderFunc(func(b []byte, a interceptor.Attributes) (int, interceptor.Attributes, error) {
		n, a, err := reader.Read(b, a)
		if err == nil && n > 0 {
			i.processRTP(b[:n], ssrc)
		}
		return n, a, err
	})
}

// UnbindRemoteStream closes the session of a removed stream.
func (i *PPGInterceptor) UnbindRemoteStream(info *interceptor.StreamInfo) {
	if v, ok := i.streams.LoadAndDelete(info.SSRC); ok {
		_ = v.(*streamState).session.Close()
		i.log.Debugf("unbound PPG stream ssrc=%d", info.SSRC)
	}
}

// stream returns the state for ssrc, creating it if the stream is new or was
// reclaimed by the cleanup loop.
func (i *PPGInterceptor) stream(ssrc uint32, now time.Time) *streamState {
	if v, ok := i.streams.Load(ssrc); ok {
		return v.(*streamState)
	}

	session := ppg.NewSession(i.config, nil)
	state := newStreamState(ssrc, session, now)
	session.SetCallback(func(est ppg.PublishedEstimate) {
		state.onPublish(est)
		if i.onEstimate != nil {
			i.onEstimate(ssrc, est)
		}
	})

	if v, loaded := i.streams.LoadOrStore(ssrc, state); loaded {
		_ = session.Close()
		return v.(*streamState)
	}
	return state
}

// processRTP decodes one packet and feeds its frames to the stream session.
func (i *PPGInterceptor) processRTP(raw []byte, ssrc uint32) {
	pkt := getPacket()
	defer putPacket(pkt)

	if err := pkt.Unmarshal(raw); err != nil {
		i.log.Tracef("dropping invalid RTP packet on ssrc=%d: %v", ssrc, err)
		return
	}

	now := time.Now()
	state := i.stream(ssrc, now)
	state.UpdateLastPacket(now)

	forEachFrame(pkt.Payload, func(frame string) {
		// A concurrent Unbind closes the session; the remaining frames are
		// discarded.
		_, _, _ = state.session.FeedLine(frame)
	})
}

// Estimate returns the latest published estimate of a stream.
func (i *PPGInterceptor) Estimate(ssrc uint32) (ppg.PublishedEstimate, bool) {
	v, ok := i.streams.Load(ssrc)
	if !ok {
		return ppg.PublishedEstimate{}, false
	}
	return v.(*streamState).session.Latest()
}

// Snapshot returns the outputs of a stream's session.
func (i *PPGInterceptor) Snapshot(ssrc uint32) (ppg.Snapshot, bool) {
	v, ok := i.streams.Load(ssrc)
	if !ok {
		return ppg.Snapshot{}, false
	}
	return v.(*streamState).session.Snapshot(), true
}

// reportLoop sends pending reports every reportInterval.
func (i *PPGInterceptor) reportLoop() {
	defer i.wg.Done()

	ticker := time.NewTicker(i.reportInterval)
	defer ticker.Stop()

	for {
		select {
		case <-i.closed:
			return
		case <-ticker.C:
			i.sendReports()
		}
	}
}

// sendReports writes one APP packet per stream whose estimate changed since
// its last report.
func (i *PPGInterceptor) sendReports() {
	i.mu.Lock()
	writer := i.rtcpWriter
	i.mu.Unlock()

	if writer == nil {
		return
	}

	var reports []Report
	i.streams.Range(func(_, value any) bool {
		state := value.(*streamState)
		if est, ok := state.takePending(); ok {
			reports = append(reports, Report{
				SenderSSRC:    i.senderSSRC,
				MediaSSRC:     state.SSRC(),
				BPM:           uint32(max(est.RoundedBPM, 0)),
				PublishedAtMs: est.PublishedAtMs,
			})
		}
		return true
	})
	if len(reports) == 0 {
		return
	}

	pkts := make([]rtcp.Packet, 0, len(reports))
	for _, r := range reports {
		pkts = append(pkts, r.Packet())
	}
	if _, err := writer.Write(pkts, nil); err != nil {
		i.log.Warnf("failed to write PPG reports: %v", err)
		return
	}

	if i.onReport != nil {
		for _, r := range reports {
			i.onReport(r)
		}
	}
}

// cleanupLoop closes streams that stopped sending.
func (i *PPGInterceptor) cleanupLoop() {
	defer i.wg.Done()

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-i.closed:
			return
		case now := <-ticker.C:
			i.cleanupInactiveStreams(now)
		}
	}
}

// cleanupInactiveStreams closes streams without packets for longer than the
// stream timeout.
func (i *PPGInterceptor) cleanupInactiveStreams(now time.Time) {
	i.streams.Range(func(key, value any) bool {
		state := value.(*streamState)
		if now.Sub(state.LastPacket()) > i.streamTimeout {
			i.streams.Delete(key)
			_ = state.session.Close()
			i.log.Infof("closed inactive PPG stream ssrc=%d", state.SSRC())
		}
		return true
	})
}
