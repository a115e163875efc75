// Command pitwall is the live race viewer. It connects to a race server's
// WebSocket stream, keeps the authoritative race state, and paints it in an
// interactive window or, with -headless, as periodic leaderboard logging.
//
// Usage:
//
//	go run ./cmd/pitwall [flags]
//
// Flags:
//
//	-server    Race server base URL (default: http://localhost:8000)
//	-headless  Run without a window, logging the leaderboard
//	-units     Speed units for display: kph, mph or mps
//	-config    Tuning overrides JSON (default: built-in values)
//	-record    Record the session into this SQLite file
//	-notes     Notes stored with the recorded session
//	-rain      Rain level sent with the start command (0..1)
//	-temp      Track temperature sent with the start command
//	-wind      Wind speed sent with the start command
//	-version   Print version and exit
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/Darshbir/toyota-gr-sim/internal/config"
	"github.com/Darshbir/toyota-gr-sim/internal/control"
	"github.com/Darshbir/toyota-gr-sim/internal/interp"
	"github.com/Darshbir/toyota-gr-sim/internal/race"
	"github.com/Darshbir/toyota-gr-sim/internal/record"
	"github.com/Darshbir/toyota-gr-sim/internal/render"
	"github.com/Darshbir/toyota-gr-sim/internal/trackgeom"
	"github.com/Darshbir/toyota-gr-sim/internal/transport"
	"github.com/Darshbir/toyota-gr-sim/internal/units"
	"github.com/Darshbir/toyota-gr-sim/internal/version"
	"github.com/Darshbir/toyota-gr-sim/internal/view"
	"github.com/Darshbir/toyota-gr-sim/internal/viewer"
)

func main() {
	server := flag.String("server", "http://localhost:8000", "race server base URL")
	headless := flag.Bool("headless", false, "run without a window, logging the leaderboard")
	speedUnit := flag.String("units", units.KPH, "speed units: kph, mph or mps")
	configPath := flag.String("config", "", "tuning overrides JSON (default: built-in values)")
	recordPath := flag.String("record", "", "record the session into this SQLite file")
	notes := flag.String("notes", "", "notes stored with the recorded session")
	rain := flag.Float64("rain", 0.15, "rain level sent with the start command (0..1)")
	temp := flag.Float64("temp", 22, "track temperature sent with the start command")
	wind := flag.Float64("wind", 3, "wind speed sent with the start command")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		return
	}

	tuning := config.EmptyTuningConfig()
	if *configPath != "" {
		var err error
		tuning, err = config.LoadTuningConfig(*configPath)
		if err != nil {
			log.Fatalf("load tuning config: %v", err)
		}
		log.Printf("[Pitwall] tuning overrides loaded from %s", *configPath)
	}

	base := strings.TrimRight(*server, "/")
	wsURL := websocketURL(base)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	channel := transport.NewChannel(transport.Config{
		URL:          wsURL,
		BackoffBase:  tuning.GetReconnectBaseDelay(),
		BackoffCap:   tuning.GetReconnectMaxDelay(),
		WriteTimeout: tuning.GetWriteTimeout(),
	})
	defer channel.Close()
	store := race.NewStore(race.Config{TrackURL: base + "/api/track"}, channel)
	camera := view.New(view.Config{
		ZoomMin:     tuning.GetZoomMin(),
		ZoomMax:     tuning.GetZoomMax(),
		ZoomDefault: tuning.GetZoomDefault(),
		PullFactor:  tuning.GetFollowPullFactor(),
	})
	engine := render.NewEngine(render.Config{
		Store:      store,
		Interp:     interp.New(interpSettings(tuning), nil),
		Camera:     camera,
		Connection: channel,
		Track:      trackSettings(tuning),
	})

	go func() {
		if err := channel.Run(ctx); err != nil && ctx.Err() == nil {
			log.Printf("[Pitwall] stream ended: %v", err)
		}
	}()

	sub, unsubscribe := channel.Subscribe()
	defer unsubscribe()
	go func() {
		for raw := range sub {
			store.Ingest(raw)
		}
	}()

	// The track payload normally arrives as the first stream message. If
	// it has not shown up shortly after connecting, fetch it over HTTP so
	// rendering does not sit on an empty scene behind a quiet stream.
	go func() {
		select {
		case <-ctx.Done():
			return
		case <-time.After(3 * time.Second):
		}
		if _, ok := store.Track(); ok {
			return
		}
		if _, err := store.EnsureTrack(ctx); err != nil {
			log.Printf("[Pitwall] %v", err)
		}
	}()

	if *recordPath != "" {
		db, err := record.Open(*recordPath)
		if err != nil {
			log.Fatalf("open recording database: %v", err)
		}
		defer db.Close()

		rec, err := record.NewRecorder(record.RecorderConfig{
			DB:        db,
			SourceURL: wsURL,
			Notes:     *notes,
		})
		if err != nil {
			log.Fatalf("create recording session: %v", err)
		}
		recSub, stopRec := channel.Subscribe()
		defer stopRec()
		go func() {
			if err := rec.Run(ctx, recSub); err != nil {
				log.Printf("[Pitwall] recording stopped: %v", err)
			}
		}()
	}

	startOpts := control.StartOptions{Rain: *rain, TrackTemp: *temp, Wind: *wind}
	if *headless {
		runHeadless(ctx, engine, *speedUnit)
		return
	}

	app := viewer.New(viewer.Config{
		Engine:       engine,
		Camera:       camera,
		Control:      control.NewClient(base, nil),
		StartOptions: startOpts,
		Title:        "Pitwall (" + base + ")",
		SpeedUnit:    *speedUnit,
	})
	if err := app.Run(); err != nil {
		log.Fatalf("viewer: %v", err)
	}
}

// runHeadless drives the frame loop without a window and prints the
// leaderboard through the console sink until interrupted.
func runHeadless(ctx context.Context, engine *render.Engine, speedUnit string) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	fan := render.NewFanOut()
	defer fan.Close()
	fan.Add("console", render.NewConsoleSink(os.Stdout, 60, speedUnit), 4)

	log.Printf("[Pitwall] headless mode, leaderboard every 3s")
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-sigCh:
			log.Printf("[Pitwall] shutting down")
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			engine.RefreshGeometry()
			fan.Publish(engine.BuildFrame())
		}
	}
}

func interpSettings(t *config.TuningConfig) interp.Config {
	return interp.Config{
		PositionBaseFactor:  t.GetPositionBaseFactor(),
		PositionScaleFactor: t.GetPositionScaleFactor(),
		PositionMaxFactor:   t.GetPositionMaxFactor(),
		HeadingBaseFactor:   t.GetHeadingBaseFactor(),
		HeadingScaleFactor:  t.GetHeadingScaleFactor(),
		HeadingMaxFactor:    t.GetHeadingMaxFactor(),
		MinMotionThreshold:  t.GetMinMotionThreshold(),
		TeleportDistance:    t.GetTeleportDistance(),
		VerticalOffset:      t.GetCarVerticalOffset(),
	}
}

func trackSettings(t *config.TuningConfig) trackgeom.Config {
	return trackgeom.Config{
		Width:              t.GetTrackWidth(),
		SampleCount:        t.GetSurfaceSamples(),
		BoundaryWidth:      t.GetBoundaryWidth(),
		BoundaryMultiplier: t.GetBoundaryMultiplier(),
		ElevationAmp1:      t.GetElevationAmp1(),
		ElevationFreq1:     t.GetElevationFreq1(),
		ElevationAmp2:      t.GetElevationAmp2(),
		ElevationFreq2:     t.GetElevationFreq2(),
		ClampTolerance:     t.GetClampTolerance(),
	}
}

// websocketURL swaps the HTTP scheme for the matching WebSocket one and
// appends the stream path.
func websocketURL(base string) string {
	switch {
	case strings.HasPrefix(base, "https://"):
		return "wss://" + strings.TrimPrefix(base, "https://") + "/ws"
	case strings.HasPrefix(base, "http://"):
		return "ws://" + strings.TrimPrefix(base, "http://") + "/ws"
	default:
		return base + "/ws"
	}
}
