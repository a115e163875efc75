// Command race-report turns a recorded session into an HTML dashboard
// and a track map image.
//
// Usage:
//
//	go run ./cmd/tools/race-report -db race.db [flags]
//
// Flags:
//
//	-db       Session database recorded by pitwall -record (required)
//	-session  Session ID to report on (default: most recent)
//	-out      Output directory (default: report)
//	-list     List recorded sessions and exit
package main

import (
	"flag"
	"io"
	"log"
	"time"

	"github.com/Darshbir/toyota-gr-sim/internal/race"
	"github.com/Darshbir/toyota-gr-sim/internal/record"
	"github.com/Darshbir/toyota-gr-sim/internal/report"
)

func main() {
	dbPath := flag.String("db", "", "session database recorded by pitwall -record (required)")
	sessionID := flag.String("session", "", "session ID to report on (default: most recent)")
	outDir := flag.String("out", "report", "output directory")
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

	data, err := loadSession(db, id)
	if err != nil {
		log.Fatalf("load session %s: %v", id, err)
	}
	log.Printf("[Report] session %s: %d snapshots", id, len(data.Snapshots))

	summary, err := report.Generate(data, *outDir)
	if err != nil {
		log.Fatalf("generate report: %v", err)
	}

	log.Printf("[Report] winner %s, fastest lap %.1fs by %s", summary.Winner, summary.FastestLap, summary.FastestBy)
	for _, car := range summary.Cars {
		log.Printf("[Report] P%-2d %-20s %2d laps  best %.1fs  %d stops  %s",
			car.FinishRank, car.Name, car.Laps, car.BestLap, car.PitStops, car.FinalTyre)
	}
	log.Printf("[Report] written to %s", *outDir)
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

// loadSession decodes the stored track and every snapshot into report
// input. Frames that fail to decode are skipped with a warning so one
// torn write does not sink the whole report.
func loadSession(db *record.DB, sessionID string) (report.Data, error) {
	data := report.Data{SessionID: sessionID}

	if trackMsg, err := db.Track(sessionID); err != nil {
		log.Printf("[Report] no track payload: %v", err)
	} else if msg, err := race.Decode(trackMsg); err != nil {
		log.Printf("[Report] stored track undecodable: %v", err)
	} else if msg.Kind == race.KindTrack {
		data.Track = msg.Track
	}

	cursor, err := db.OpenSnapshots(sessionID)
	if err != nil {
		return data, err
	}
	defer cursor.Close()

	for {
		rec, err := cursor.ReadSnapshot()
		if err == io.EOF {
			break
		}
		if err != nil {
			return data, err
		}
		msg, err := race.Decode(rec.Payload)
		if err != nil {
			log.Printf("[Report] skipping undecodable snapshot %d: %v", rec.Seq, err)
			continue
		}
		if msg.Kind == race.KindState {
			data.Snapshots = append(data.Snapshots, msg.State)
		}
	}
	return data, nil
}
