// Soak test runner for long-duration estimator testing.
//
// This tool streams synthetic PPG traces for several devices through a
// ppg.Sessions and monitors for memory leaks, stalled estimates, and
// estimates that drift away from the simulated heart rate over extended
// periods (up to 24 hours or more).
//
// Usage:
//
//	go run ./cmd/soak --duration 24h
//	go run ./cmd/soak --duration 1h --devices 16 --speed 50
//
// Exposes pprof endpoint at :6060 for live profiling:
//
//	curl http://localhost:6060/debug/pprof/heap > heap.pprof
//	go tool pprof heap.pprof
package main

import (
	"context"
	"fmt"
	"math"
	"net/http"
	_ "net/http/pprof" // Enable pprof endpoints
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/integrii/flaggy"

	"github.com/thesyncim/ppg/pkg/ppg"
	"github.com/thesyncim/ppg/pkg/ppg/testutil"
)

const (
	sampleStepMs     = 10 // 100 Hz, like the suit
	lapBeats         = 60
	maxHeapMB        = 100
	maxEstimateError = 2 // BPM
)

// SoakResult contains the results of a soak test run.
type SoakResult struct {
	Duration         time.Duration
	TotalSamples     int64
	TotalBeats       int64
	Published        int64
	PeakHeapMB       float64
	TotalGCCycles    uint32
	Laps             int
	SuspiciousEvents int
	Status           string
}

// device replays one synthetic trace in laps, shifting timestamps so the
// sensor clock keeps increasing.
type device struct {
	key   string
	bpm   float64
	trace []ppg.SensorSample
	lapMs int64
	pos   int
	lap   int64
	beats int64
}

func newDevice(i int) *device {
	cfg := testutil.DefaultPulseConfig()
	cfg.BPM = 60 + float64(i%8)*10
	cfg.Beats = lapBeats
	cfg.StepMs = sampleStepMs
	cfg.NoiseAmplitude = 500
	cfg.Seed = int64(i + 1)
	trace := testutil.PulseTrace(cfg)

	return &device{
		key:   fmt.Sprintf("soak-%02d", i),
		bpm:   cfg.BPM,
		trace: trace,
		lapMs: int64(len(trace)) * sampleStepMs,
	}
}

func (d *device) next() (ppg.SensorSample, bool) {
	s := d.trace[d.pos]
	s.TimestampMs += d.lap * d.lapMs
	d.pos++
	if d.pos == len(d.trace) {
		d.pos = 0
		d.lap++
		return s, true
	}
	return s, false
}

func main() {
	duration := 24 * time.Hour
	pprofPort := 6060
	devices := 4
	speed := 1
	statusInterval := 5 * time.Minute

	flaggy.SetName("soak")
	flaggy.SetDescription("PPG estimator soak test")
	flaggy.Duration(&duration, "d", "duration", "Test duration (e.g., 1h, 24h)")
	flaggy.Int(&pprofPort, "p", "pprof-port", "Port for pprof HTTP server")
	flaggy.Int(&devices, "n", "devices", "Number of simulated devices")
	flaggy.Int(&speed, "s", "speed", "Samples fed per device per 10ms tick")
	flaggy.Duration(&statusInterval, "i", "status-interval", "Interval between status lines")
	flaggy.Parse()

	if devices < 1 {
		devices = 1
	}
	if speed < 1 {
		speed = 1
	}

	fmt.Printf("PPG Soak Test Runner\n")
	fmt.Printf("====================\n")
	fmt.Printf("Duration: %v\n", duration)
	fmt.Printf("Devices:  %d\n", devices)
	fmt.Printf("Speed:    %dx\n", speed)
	fmt.Printf("Pprof:    http://localhost:%d/debug/pprof/\n", pprofPort)
	fmt.Printf("\n")

	go func() {
		addr := fmt.Sprintf(":%d", pprofPort)
		if err := http.ListenAndServe(addr, nil); err != nil {
			fmt.Printf("Warning: pprof server failed: %v\n", err)
		}
	}()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	result := runSoakTest(ctx, duration, devices, speed, statusInterval)

	printSummary(result)

	if result.Status == "PASS" {
		os.Exit(0)
	}
	os.Exit(1)
}

func runSoakTest(ctx context.Context, duration time.Duration, n, speed int, statusInterval time.Duration) SoakResult {
	sessions := ppg.NewSessions(ppg.DefaultConfig(), nil)
	defer sessions.Close()

	result := SoakResult{
		Status: "PASS",
	}

	latest := make(map[string]ppg.PublishedEstimate, n)
	sessions.SetCallback(func(key string, est ppg.PublishedEstimate) {
		latest[key] = est
		result.Published++
	})

	devs := make([]*device, n)
	for i := range devs {
		devs[i] = newDevice(i)
	}

	var memStats runtime.MemStats
	startTime := time.Now()
	lastStatusTime := startTime

	ticker := time.NewTicker(sampleStepMs * time.Millisecond)
	defer ticker.Stop()

	fmt.Printf("[%s] Starting soak test...\n", formatDuration(0))

	for {
		select {
		case <-ctx.Done():
			result.Duration = time.Since(startTime)
			checkEstimates(&result, devs, latest, result.Duration)
			return result

		case now := <-ticker.C:
			elapsed := now.Sub(startTime)

			if elapsed >= duration {
				result.Duration = elapsed
				checkEstimates(&result, devs, latest, elapsed)
				return result
			}

			for _, d := range devs {
				session := sessions.Get(d.key)
				for i := 0; i < speed; i++ {
					s, lapped := d.next()
					if lapped && d == devs[0] {
						result.Laps++
					}
					res, err := session.FeedSample(s)
					if err != nil {
						fmt.Printf("[%s] ERROR: %s: %v\n", formatDuration(elapsed), d.key, err)
						result.SuspiciousEvents++
						result.Status = "FAIL"
						continue
					}
					result.TotalSamples++
					if !res.HasBeat {
						continue
					}
					result.TotalBeats++
					d.beats++
					if res.Beat.First && d.beats > 1 {
						fmt.Printf("[%s] WARNING: %s restarted beat tracking at t=%d\n",
							formatDuration(elapsed), d.key, res.Beat.TimestampMs)
						result.SuspiciousEvents++
					}
				}
			}

			if now.Sub(lastStatusTime) >= statusInterval {
				lastStatusTime = now
				runtime.ReadMemStats(&memStats)

				heapMB := float64(memStats.HeapAlloc) / (1024 * 1024)
				if heapMB > result.PeakHeapMB {
					result.PeakHeapMB = heapMB
				}
				result.TotalGCCycles = memStats.NumGC

				fmt.Printf("[%s] Samples: %d, Beats: %d, Published: %d, %s=%d BPM, HeapAlloc: %.2f MB, NumGC: %d\n",
					formatDuration(elapsed),
					result.TotalSamples,
					result.TotalBeats,
					result.Published,
					devs[0].key,
					latest[devs[0].key].RoundedBPM,
					heapMB,
					memStats.NumGC)

				if heapMB > maxHeapMB {
					fmt.Printf("[%s] ERROR: Memory limit exceeded: %.2f MB\n", formatDuration(elapsed), heapMB)
					result.Status = "FAIL"
				}
			}
		}
	}
}

// checkEstimates compares every device's last estimate with its simulated
// rate once at least one full lap has been fed.
func checkEstimates(result *SoakResult, devs []*device, latest map[string]ppg.PublishedEstimate, elapsed time.Duration) {
	for _, d := range devs {
		if d.lap == 0 {
			continue
		}
		est, ok := latest[d.key]
		if !ok {
			fmt.Printf("[%s] ERROR: %s never published an estimate\n", formatDuration(elapsed), d.key)
			result.SuspiciousEvents++
			result.Status = "FAIL"
			continue
		}
		if math.Abs(float64(est.RoundedBPM)-d.bpm) > maxEstimateError {
			fmt.Printf("[%s] ERROR: %s estimate %d BPM, simulated %.0f BPM\n",
				formatDuration(elapsed), d.key, est.RoundedBPM, d.bpm)
			result.SuspiciousEvents++
			result.Status = "FAIL"
		}
	}
}

func printSummary(result SoakResult) {
	fmt.Printf("\n")
	fmt.Printf("Soak Test Complete\n")
	fmt.Printf("==================\n")
	fmt.Printf("Duration:          %v\n", result.Duration.Round(time.Second))
	fmt.Printf("Total samples:     %d\n", result.TotalSamples)
	fmt.Printf("Total beats:       %d\n", result.TotalBeats)
	fmt.Printf("Published:         %d\n", result.Published)
	fmt.Printf("Laps:              %d\n", result.Laps)
	fmt.Printf("Peak HeapAlloc:    %.2f MB\n", result.PeakHeapMB)
	fmt.Printf("Total GC cycles:   %d\n", result.TotalGCCycles)
	fmt.Printf("Suspicious events: %d\n", result.SuspiciousEvents)
	fmt.Printf("Status:            %s\n", result.Status)
	fmt.Printf("\n")

	fmt.Printf("Pass Criteria:\n")
	fmt.Printf("  - No panics:            %s\n", checkMark(true))
	fmt.Printf("  - Estimates published:  %s\n", checkMark(result.Published > 0))
	fmt.Printf("  - Peak memory < %d MB: %s\n", maxHeapMB, checkMark(result.PeakHeapMB < maxHeapMB))
	fmt.Printf("  - No anomalies:         %s\n", checkMark(result.SuspiciousEvents == 0))
}

func formatDuration(d time.Duration) string {
	h := d / time.Hour
	m := (d % time.Hour) / time.Minute
	s := (d % time.Minute) / time.Second
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

func checkMark(pass bool) string {
	if pass {
		return "PASS"
	}
	return "FAIL"
}
