package record

import (
	"context"
	"errors"
	"log"
	"sync/atomic"

	"github.com/Darshbir/toyota-gr-sim/internal/race"
	"github.com/Darshbir/toyota-gr-sim/internal/timeutil"
)

// RecorderConfig holds recorder construction parameters.
type RecorderConfig struct {
	DB *DB

	// SourceURL labels where the stream came from, e.g. the ws endpoint.
	SourceURL string

	// Notes is free-form session annotation.
	Notes string

	// Clock defaults to the real clock. Capture timestamps come from it.
	Clock timeutil.Clock
}

// RecorderStats counts recorder activity since construction.
type RecorderStats struct {
	States  uint64
	Tracks  uint64
	Skipped uint64
}

// Recorder writes one stream's raw messages into a fresh session. It
// classifies each message only far enough to route it; the stored bytes
// are untouched. Record is meant for a single goroutine; Run drives it
// from one.
type Recorder struct {
	db        *DB
	clock     timeutil.Clock
	sessionID string

	seq     int64
	states  atomic.Uint64
	tracks  atomic.Uint64
	skipped atomic.Uint64
}

// NewRecorder creates a session and a recorder writing into it.
func NewRecorder(cfg RecorderConfig) (*Recorder, error) {
	if cfg.Clock == nil {
		cfg.Clock = timeutil.RealClock{}
	}
	sessionID, err := cfg.DB.CreateSession(cfg.SourceURL, cfg.Notes, cfg.Clock.Now().UnixNano())
	if err != nil {
		return nil, err
	}
	log.Printf("[Recorder] session %s recording from %s", sessionID, cfg.SourceURL)
	return &Recorder{
		db:        cfg.DB,
		clock:     cfg.Clock,
		sessionID: sessionID,
	}, nil
}

// SessionID returns the session this recorder writes into.
func (r *Recorder) SessionID() string {
	return r.sessionID
}

// Record routes one raw stream message into the session. Messages that
// decode as neither track nor state are counted and dropped.
func (r *Recorder) Record(raw []byte) error {
	msg, err := race.Decode(raw)
	if err != nil {
		r.skipped.Add(1)
		if !errors.Is(err, race.ErrUnknownMessage) {
			log.Printf("[Recorder] dropping undecodable message: %v", err)
		}
		return nil
	}

	switch msg.Kind {
	case race.KindTrack:
		if err := r.db.SaveTrack(r.sessionID, raw); err != nil {
			return err
		}
		r.tracks.Add(1)
	case race.KindState:
		seq := r.seq
		r.seq++
		if err := r.db.AppendSnapshot(r.sessionID, seq, msg.State.SimTime, r.clock.Now().UnixNano(), raw); err != nil {
			return err
		}
		r.states.Add(1)
	}
	return nil
}

// Run drains a stream subscription until ctx is cancelled or the channel
// closes. Storage errors end the run; a recording that cannot write is
// not worth continuing.
func (r *Recorder) Run(ctx context.Context, messages <-chan []byte) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case raw, ok := <-messages:
			if !ok {
				return nil
			}
			if err := r.Record(raw); err != nil {
				return err
			}
		}
	}
}

// Stats returns a copy of the recorder counters.
func (r *Recorder) Stats() RecorderStats {
	return RecorderStats{
		States:  r.states.Load(),
		Tracks:  r.tracks.Load(),
		Skipped: r.skipped.Load(),
	}
}
