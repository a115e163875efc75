// Command sim-server runs the race simulation behind the HTTP and
// WebSocket endpoints the viewer connects to. The race sits on the grid
// until a client posts /api/start.
//
// Usage:
//
//	go run ./cmd/tools/sim-server [flags]
//
// Flags:
//
//	-addr    Listen address (default: :8000)
//	-cars    Number of cars on the grid
//	-laps    Race distance in laps
//	-seed    Simulation seed, 0 picks one from the clock
//	-config  Tuning overrides JSON (default: built-in values)
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/Darshbir/toyota-gr-sim/internal/config"
	"github.com/Darshbir/toyota-gr-sim/internal/relay"
	"github.com/Darshbir/toyota-gr-sim/internal/sim"
	"github.com/Darshbir/toyota-gr-sim/internal/version"
)

func main() {
	addr := flag.String("addr", ":8000", "listen address")
	cars := flag.Int("cars", 20, "number of cars on the grid")
	laps := flag.Int("laps", 36, "race distance in laps")
	seed := flag.Int64("seed", 0, "simulation seed, 0 picks one from the clock")
	configPath := flag.String("config", "", "tuning overrides JSON (default: built-in values)")
	flag.Parse()

	tuning := config.EmptyTuningConfig()
	if *configPath != "" {
		var err error
		tuning, err = config.LoadTuningConfig(*configPath)
		if err != nil {
			log.Fatalf("load tuning config: %v", err)
		}
	}

	track, err := sim.BuildTrack(sim.DefaultWaypoints(), 800)
	if err != nil {
		log.Fatalf("build track: %v", err)
	}
	model := sim.New(track, sim.Config{
		CarCount:  *cars,
		TotalLaps: *laps,
		Seed:      *seed,
	})

	server, err := relay.NewServer(relay.Config{
		Addr:           *addr,
		Race:           model,
		BroadcastEvery: tuning.GetBroadcastInterval(),
	})
	if err != nil {
		log.Fatalf("create server: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Printf("[SimServer] shutting down")
		cancel()
	}()

	log.Printf("[SimServer] %s", version.String())
	log.Printf("[SimServer] %d cars, %d laps, track %.0fm, listening on %s", *cars, *laps, track.Length(), *addr)
	if err := server.Start(ctx); err != nil {
		log.Fatalf("server: %v", err)
	}
}
