package interceptor

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/thesyncim/ppg/pkg/ppg"
)

// streamState is the per-SSRC state of the interceptor.
//
// lastPacketTime is written by the reader goroutine on every packet and read
// by the cleanup loop, so it is atomic. The reporting fields are guarded by mu.
type streamState struct {
	ssrc           uint32
	session        *ppg.Session
	lastPacketTime atomic.Value // time.Time

	mu      sync.Mutex
	latest  ppg.PublishedEstimate
	pending bool
}

func newStreamState(ssrc uint32, session *ppg.Session, now time.Time) *streamState {
	s := &streamState{
		ssrc:    ssrc,
		session: session,
	}
	s.lastPacketTime.Store(now)
	return s
}

// UpdateLastPacket records a packet arrival.
func (s *streamState) UpdateLastPacket(t time.Time) {
	s.lastPacketTime.Store(t)
}

// LastPacket returns the arrival time of the most recent packet.
func (s *streamState) LastPacket() time.Time {
	return s.lastPacketTime.Load().(time.Time)
}

// SSRC returns the stream's SSRC identifier.
func (s *streamState) SSRC() uint32 {
	return s.ssrc
}

// onPublish stores a newly published estimate for the next report.
func (s *streamState) onPublish(est ppg.PublishedEstimate) {
	s.mu.Lock()
	s.latest = est
	s.pending = true
	s.mu.Unlock()
}

// takePending returns the estimate waiting to be reported, if any, and marks
// it reported.
func (s *streamState) takePending() (ppg.PublishedEstimate, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.pending {
		return ppg.PublishedEstimate{}, false
	}
	s.pending = false
	return s.latest, true
}
