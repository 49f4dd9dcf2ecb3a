// PPG Interop Server
//
// This server receives SmartSuit PPG frames from a browser over a WebRTC data
// channel (Web Bluetooth or the page's synthetic pulse), estimates heart rate
// per peer and sends each published BPM back to the page and to /ws clients.
package main

import (
	"context"
	"fmt"
	"log"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/integrii/flaggy"

	"github.com/thesyncim/ppg/cmd/ppg-interop/server"
)

func main() {
	cfg := server.DefaultConfig()
	cfg.Addr = ":8080"

	flaggy.SetName("ppg-interop")
	flaggy.SetDescription("WebRTC interop server for PPG heart-rate estimation")
	flaggy.String(&cfg.Addr, "a", "addr", "listen address")
	flaggy.Int64(&cfg.Pipeline.ThrottleConfig.MinPublishIntervalMs, "p", "publish-interval", "minimum milliseconds between published estimates")
	flaggy.Parse()

	srv, err := server.NewServer(cfg)
	if err != nil {
		log.Fatalf("Failed to create server: %v", err)
	}

	addr, err := srv.Start()
	if err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}

	fmt.Printf(`
PPG Interop Server
==================
1. Open http://localhost%s in Chrome
2. Click "Connect my Smart Suit" (or "Synthetic Pulse")
3. Watch the BPM readout; estimates are also streamed on /ws

`, portOf(addr))
	log.Printf("Listening on %s", addr)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("Shutdown: %v", err)
	}
	log.Println("server stopped")
}

func portOf(addr string) string {
	if _, port, err := net.SplitHostPort(addr); err == nil {
		return ":" + port
	}
	return addr
}
