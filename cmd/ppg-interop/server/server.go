// Package server provides an importable HTTP server for the PPG interop page.
// E2E tests start and stop it programmatically without running main().
package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/thesyncim/ppg/pkg/ppg"
)

// Config configures the interop server.
type Config struct {
	// Addr is the listen address. ":0" picks a free port.
	Addr string

	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// Pipeline configures every session the server creates.
	Pipeline ppg.Config
}

// DefaultConfig listens on a free port with default pipeline settings.
func DefaultConfig() Config {
	return Config{
		Addr:         ":0",
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		Pipeline:     ppg.DefaultConfig(),
	}
}

// Server serves the browser page, the WebRTC offer endpoint and the
// estimate WebSocket.
type Server struct {
	httpServer *http.Server
	hub        *Hub
	offers     *offerHandler
	listener   net.Listener
	addr       string
	mu         sync.Mutex
	running    bool
}

// NewServer wires the routes. Nothing listens until Start.
func NewServer(cfg Config) (*Server, error) {
	if cfg.Pipeline == (ppg.Config{}) {
		cfg.Pipeline = ppg.DefaultConfig()
	}

	hub := NewHub()
	offers, err := newOfferHandler(cfg.Pipeline, hub)
	if err != nil {
		return nil, err
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(HTMLPage))
	})
	mux.Handle("/offer", offers)
	mux.Handle("/ws", hub)

	httpServer := &http.Server{
		Addr:         cfg.Addr,
		Handler:      mux,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	return &Server{
		httpServer: httpServer,
		hub:        hub,
		offers:     offers,
	}, nil
}

// Start listens and serves in the background. It returns the bound address;
// calling it again on a running server returns the same address.
func (s *Server) Start() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return s.addr, nil
	}

	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return "", fmt.Errorf("listen on %s: %w", s.httpServer.Addr, err)
	}

	s.listener = ln
	s.addr = ln.Addr().String()
	s.running = true

	go func() {
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("HTTP server stopped: %v", err)
		}
	}()

	return s.addr, nil
}

// Shutdown gracefully shuts down the server, closes WebSocket clients and
// every open peer connection.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil
	}

	s.running = false
	err := s.httpServer.Shutdown(ctx)
	s.hub.Close()
	return errors.Join(err, s.offers.Close())
}

// Addr returns the bound address, or "" before Start.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

// Hub returns the estimate broadcast hub.
func (s *Server) Hub() *Hub {
	return s.hub
}
