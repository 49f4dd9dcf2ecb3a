package interceptor

import (
	"sync"

	"github.com/pion/rtp"
)

// packetPool reuses rtp.Packet values across reads so the per-packet path
// does not allocate a packet struct.
var packetPool = sync.Pool{
	New: func() any {
		return &rtp.Packet{}
	},
}

func getPacket() *rtp.Packet {
	return packetPool.Get().(*rtp.Packet)
}

// putPacket clears the packet before returning it. The payload aliases the
// reader's buffer and must not outlive the read.
func putPacket(pkt *rtp.Packet) {
	*pkt = rtp.Packet{}
	packetPool.Put(pkt)
}
