// Package interceptor provides a Pion WebRTC interceptor that estimates heart
// rate from PPG sensor frames carried over RTP.
//
// A sender (a browser relaying a Web Bluetooth sensor, or a gateway next to
// the board) packs one or more SmartSuit text frames into each RTP payload,
// newline separated. The interceptor runs one ppg.Session per remote SSRC and
// periodically reports the latest published BPM back to the sender in an
// RTCP APP packet named "PPGB".
//
// # Quick Start
//
//	import (
//	    "github.com/pion/interceptor"
//	    "github.com/pion/webrtc/v4"
//	    ppgint "github.com/thesyncim/ppg/pkg/ppg/interceptor"
//	)
//
//	func setupPeerConnection() (*webrtc.PeerConnection, error) {
//	    m := &webrtc.MediaEngine{}
//	    if err := m.RegisterCodec(webrtc.RTPCodecParameters{
//	        RTPCodecCapability: webrtc.RTPCodecCapability{
//	            MimeType:  ppgint.MimeTypePPG,
//	            ClockRate: ppgint.ClockRate,
//	        },
//	        PayloadType: ppgint.DefaultPayloadType,
//	    }, webrtc.RTPCodecTypeVideo); err != nil {
//	        return nil, err
//	    }
//
//	    i := &interceptor.Registry{}
//	    factory, err := ppgint.NewPPGInterceptorFactory()
//	    if err != nil {
//	        return nil, err
//	    }
//	    i.Add(factory)
//
//	    api := webrtc.NewAPI(
//	        webrtc.WithMediaEngine(m),
//	        webrtc.WithInterceptorRegistry(i),
//	    )
//	    return api.NewPeerConnection(webrtc.Configuration{})
//	}
//
// # How It Works
//
// 1. BindRemoteStream creates a session for every stream negotiated with
// MimeTypePPG. Other streams pass through untouched.
//
// 2. Each RTP packet read from a PPG stream is split into frames, and every
// frame is fed to the stream's session. Malformed frames are dropped.
//
// 3. Once the RTCP writer is bound, a background loop sends a report for each
// stream whose published estimate changed since the last report.
//
// 4. Streams without packets for the stream timeout (5 seconds by default)
// are closed and forgotten.
package interceptor
