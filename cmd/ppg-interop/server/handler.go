package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/pion/interceptor"
	"github.com/pion/webrtc/v4"

	"github.com/thesyncim/ppg/pkg/ppg"
	ppginterceptor "github.com/thesyncim/ppg/pkg/ppg/interceptor"
	"github.com/thesyncim/ppg/pkg/transport"
)

// DataChannelLabel is the label of the channel the page forwards sensor
// notifications on. Estimates for the peer come back on the same channel.
const DataChannelLabel = "ppg"

// offerHandler answers WebRTC offers. Each peer connection gets its own
// session keyed "peer-<n>"; RTP PPG streams are estimated by the interceptor
// and keyed "ssrc-<ssrc>".
type offerHandler struct {
	config   ppg.Config
	hub      *Hub
	sessions *ppg.Sessions
	nextPeer atomic.Uint64

	mu       sync.Mutex
	channels map[string]*webrtc.DataChannel
	peers    map[string]*webrtc.PeerConnection
}

func newOfferHandler(config ppg.Config, hub *Hub) (*offerHandler, error) {
	if hub == nil {
		return nil, errors.New("hub must not be nil")
	}
	h := &offerHandler{
		config:   config,
		hub:      hub,
		sessions: ppg.NewSessions(config, nil),
		channels: make(map[string]*webrtc.DataChannel),
		peers:    make(map[string]*webrtc.PeerConnection),
	}
	h.sessions.SetCallback(h.publish)
	return h, nil
}

// publish returns the estimate to the peer that produced it and broadcasts
// it to WebSocket clients.
func (h *offerHandler) publish(key string, est ppg.PublishedEstimate) {
	msg, err := transport.NewEstimateMessage(key, est).Marshal()
	if err != nil {
		log.Printf("Failed to marshal estimate: %v", err)
		return
	}

	h.mu.Lock()
	dc := h.channels[key]
	h.mu.Unlock()
	if dc != nil {
		if err := dc.SendText(string(msg)); err != nil {
			log.Printf("Failed to send estimate to %s: %v", key, err)
		}
	}
	h.hub.Broadcast(msg)
}

func (h *offerHandler) publishStream(ssrc uint32, est ppg.PublishedEstimate) {
	msg, err := transport.NewEstimateMessage(fmt.Sprintf("ssrc-%d", ssrc), est).Marshal()
	if err != nil {
		log.Printf("Failed to marshal estimate: %v", err)
		return
	}
	h.hub.Broadcast(msg)
}

// newAPI builds the WebRTC API for one peer connection: a media engine that
// knows the PPG codec and an interceptor registry carrying the PPG
// interceptor.
func (h *offerHandler) newAPI() (*webrtc.API, error) {
	m := &webrtc.MediaEngine{}
	if err := m.RegisterCodec(webrtc.RTPCodecParameters{
		RTPCodecCapability: webrtc.RTPCodecCapability{
			MimeType:  ppginterceptor.MimeTypePPG,
			ClockRate: ppginterceptor.ClockRate,
		},
		PayloadType: ppginterceptor.DefaultPayloadType,
	}, webrtc.RTPCodecTypeVideo); err != nil {
		return nil, fmt.Errorf("register PPG codec: %w", err)
	}

	i := &interceptor.Registry{}

	ppgFactory, err := ppginterceptor.NewPPGInterceptorFactory(
		ppginterceptor.WithPipelineConfig(h.config),
		ppginterceptor.WithFactoryOnEstimate(h.publishStream),
	)
	if err != nil {
		return nil, fmt.Errorf("create PPG interceptor factory: %w", err)
	}
	i.Add(ppgFactory)

	if err := webrtc.ConfigureRTCPReports(i); err != nil {
		return nil, fmt.Errorf("configure RTCP reports: %w", err)
	}
	if err := webrtc.ConfigureStatsInterceptor(i); err != nil {
		return nil, fmt.Errorf("configure stats interceptor: %w", err)
	}

	return webrtc.NewAPI(
		webrtc.WithMediaEngine(m),
		webrtc.WithInterceptorRegistry(i),
	), nil
}

// ServeHTTP handles WebRTC offer requests from the browser.
func (h *offerHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var offer webrtc.SessionDescription
	if err := json.NewDecoder(r.Body).Decode(&offer); err != nil {
		log.Printf("Failed to decode offer: %v", err)
		http.Error(w, "Invalid offer", http.StatusBadRequest)
		return
	}

	api, err := h.newAPI()
	if err != nil {
		log.Printf("Failed to build WebRTC API: %v", err)
		http.Error(w, "Internal error", http.StatusInternalServerError)
		return
	}

	peerConnection, err := api.NewPeerConnection(webrtc.Configuration{
		ICEServers: []webrtc.ICEServer{}, // Local testing
	})
	if err != nil {
		log.Printf("Failed to create peer connection: %v", err)
		http.Error(w, "Internal error", http.StatusInternalServerError)
		return
	}

	key := fmt.Sprintf("peer-%d", h.nextPeer.Add(1))
	h.mu.Lock()
	h.peers[key] = peerConnection
	h.mu.Unlock()

	peerConnection.OnDataChannel(func(dc *webrtc.DataChannel) {
		if dc.Label() != DataChannelLabel {
			log.Printf("Ignoring data channel %q from %s", dc.Label(), key)
			return
		}
		log.Printf("Sensor channel open for %s", key)

		h.mu.Lock()
		h.channels[key] = dc
		h.mu.Unlock()

		session := h.sessions.Get(key)
		dc.OnMessage(func(msg webrtc.DataChannelMessage) {
			transport.DecodePayload(msg.Data, func(rec ppg.RawRecord) {
				if _, _, err := session.Feed(rec); err != nil && !errors.Is(err, ppg.ErrSessionClosed) {
					log.Printf("Feed %s: %v", key, err)
				}
			})
		})
		dc.OnClose(func() {
			log.Printf("Sensor channel closed for %s", key)
			h.release(key)
		})
	})

	// RTP PPG streams are estimated inside the interceptor; reading keeps
	// packets flowing through it.
	peerConnection.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		log.Printf("Received track: codec=%s, ssrc=%d", track.Codec().MimeType, track.SSRC())
		go func() {
			buf := make([]byte, 1500)
			for {
				if _, _, err := track.Read(buf); err != nil {
					log.Printf("Track read ended: %v", err)
					return
				}
			}
		}()
	})

	peerConnection.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		log.Printf("Connection state for %s: %s", key, state.String())
		if state == webrtc.PeerConnectionStateFailed || state == webrtc.PeerConnectionStateClosed {
			h.release(key)
			peerConnection.Close()
		}
	})

	if err := peerConnection.SetRemoteDescription(offer); err != nil {
		log.Printf("Failed to set remote description: %v", err)
		h.release(key)
		peerConnection.Close()
		http.Error(w, "Invalid offer", http.StatusBadRequest)
		return
	}

	answer, err := peerConnection.CreateAnswer(nil)
	if err != nil {
		log.Printf("Failed to create answer: %v", err)
		h.release(key)
		peerConnection.Close()
		http.Error(w, "Internal error", http.StatusInternalServerError)
		return
	}

	if err := peerConnection.SetLocalDescription(answer); err != nil {
		log.Printf("Failed to set local description: %v", err)
		h.release(key)
		peerConnection.Close()
		http.Error(w, "Internal error", http.StatusInternalServerError)
		return
	}

	<-webrtc.GatheringCompletePromise(peerConnection)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(peerConnection.LocalDescription())

	log.Printf("WebRTC answer sent for %s", key)
}

// release forgets a peer and closes its session. Safe to call repeatedly.
func (h *offerHandler) release(key string) {
	h.mu.Lock()
	delete(h.channels, key)
	delete(h.peers, key)
	h.mu.Unlock()
	h.sessions.Remove(key)
}

// Close closes every peer connection and session.
func (h *offerHandler) Close() error {
	h.mu.Lock()
	peers := make([]*webrtc.PeerConnection, 0, len(h.peers))
	for _, pc := range h.peers {
		peers = append(peers, pc)
	}
	h.peers = make(map[string]*webrtc.PeerConnection)
	h.channels = make(map[string]*webrtc.DataChannel)
	h.mu.Unlock()

	var errs []error
	for _, pc := range peers {
		errs = append(errs, pc.Close())
	}
	h.sessions.Close()
	return errors.Join(errs...)
}
