// Command replay-server re-serves a recorded session over the live wire
// protocol, so any viewer can replay it without knowing the difference.
//
// Usage:
//
//	go run ./cmd/tools/replay-server -db race.db [flags]
//
// Flags:
//
//	-db       Session database recorded by pitwall -record (required)
//	-session  Session ID to replay (default: most recent)
//	-addr     Listen address (default: :8001)
//	-rate     Playback speed multiplier
//	-loop     Restart the session after the last frame
//	-list     List recorded sessions and exit
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Darshbir/toyota-gr-sim/internal/record"
	"github.com/Darshbir/toyota-gr-sim/internal/relay"
)

func main() {
	dbPath := flag.String("db", "", "session database recorded by pitwall -record (required)")
	sessionID := flag.String("session", "", "session ID to replay (default: most recent)")
	addr := flag.String("addr", ":8001", "listen address")
	rate := flag.Float64("rate", 1.0, "playback speed multiplier")
	loop := flag.Bool("loop", false, "restart the session after the last frame")
	list := flag.Bool("list", false, "list recorded sessions and exit")
	flag.Parse()

	if *dbPath == "" {
		log.Fatal("missing required -db flag")
	}
	db, err := record.Open(*dbPath)
	if err != nil {
		log.Fatalf("open session database: %v", err)
	}
	defer db.Close()

	if *list {
		listSessions(db)
		return
	}

	id := *sessionID
	if id == "" {
		id, err = db.LatestSessionID()
		if err != nil {
			log.Fatalf("pick session: %v", err)
		}
	}

	server, err := relay.NewReplayServer(relay.ReplayConfig{
		Addr:   *addr,
		Source: &sessionSource{db: db, sessionID: id},
		Rate:   *rate,
		Loop:   *loop,
	})
	if err != nil {
		log.Fatalf("create replay server: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	log.Printf("[Replay] session %s from %s", id, *dbPath)
	if err := server.Start(ctx); err != nil {
		log.Fatalf("server: %v", err)
	}
}

func listSessions(db *record.DB) {
	sessions, err := db.Sessions()
	if err != nil {
		log.Fatalf("list sessions: %v", err)
	}
	if len(sessions) == 0 {
		log.Printf("no recorded sessions")
		return
	}
	for _, s := range sessions {
		started := time.Unix(0, s.StartedUnixNanos).Format(time.RFC3339)
		log.Printf("%s  %s  %d snapshots  %s  %s", s.SessionID, started, s.SnapshotCount, s.SourceURL, s.Notes)
	}
}

// sessionSource adapts one recorded session to the replay server's
// source interface. Every Snapshots call opens a fresh cursor, so each
// client and each loop pass streams from the start.
type sessionSource struct {
	db        *record.DB
	sessionID string
}

func (s *sessionSource) Track() ([]byte, error) {
	return s.db.Track(s.sessionID)
}

func (s *sessionSource) Snapshots() (relay.FrameReader, error) {
	cursor, err := s.db.OpenSnapshots(s.sessionID)
	if err != nil {
		return nil, err
	}
	return &cursorReader{cursor: cursor}, nil
}

type cursorReader struct {
	cursor *record.SnapshotCursor
}

func (r *cursorReader) ReadFrame() (*relay.ReplayFrame, error) {
	rec, err := r.cursor.ReadSnapshot()
	if err != nil {
		return nil, err
	}
	return &relay.ReplayFrame{
		RecordedUnixNanos: rec.RecordedUnixNanos,
		Payload:           rec.Payload,
	}, nil
}

func (r *cursorReader) Close() error {
	return r.cursor.Close()
}
