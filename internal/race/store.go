package race

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/Darshbir/toyota-gr-sim/internal/httputil"
)

// Sender posts control messages back to the server. The transport channel
// implements this; tests substitute a mock.
type Sender interface {
	Send(v any) error
}

// ErrNoTrack is returned by EnsureTrack when no track geometry could be
// obtained from either the stream or the HTTP fallback. Rendering proceeds
// without a track surface in that case.
var ErrNoTrack = errors.New("no track geometry available")

// Config holds store construction parameters.
type Config struct {
	// TrackURL is the HTTP fallback endpoint for track geometry, used
	// once if no track payload arrives via the stream.
	TrackURL string

	// HTTPClient performs the fallback fetch. Defaults to the standard
	// client.
	HTTPClient httputil.HTTPClient

	// MaxEvents bounds the recent-events ring. Defaults to 64.
	MaxEvents int
}

// Stats counts store activity since construction.
type Stats struct {
	StatesIngested  uint64
	TracksIngested  uint64
	Dropped         uint64
	ResetsRequested uint64
}

// Store owns the latest authoritative snapshot. It is the single writer;
// readers receive the current snapshot pointer and must treat it as
// immutable. A disconnected transport leaves the snapshot frozen, not
// cleared.
type Store struct {
	cfg    Config
	sender Sender

	mu              sync.RWMutex
	snapshot        *Snapshot
	track           *TrackPayload
	trackFetchTried bool
	generation      uint64
	pendingReset    bool
	events          []Event
	laps            *lapClock
	stats           Stats
}

// NewStore creates a Store. sender may be nil if reset requests are not
// needed (replay viewing).
func NewStore(cfg Config, sender Sender) *Store {
	if cfg.MaxEvents <= 0 {
		cfg.MaxEvents = 64
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = httputil.NewStandardClient(nil)
	}
	return &Store{
		cfg:    cfg,
		sender: sender,
		laps:   newLapClock(),
	}
}

// Ingest accepts one raw stream message: either the one-time track payload
// or a recurring state payload. Unknown or malformed messages are dropped
// with best-effort logging and never affect the current snapshot.
func (s *Store) Ingest(raw []byte) {
	msg, err := Decode(raw)
	if err != nil {
		s.mu.Lock()
		s.stats.Dropped++
		s.mu.Unlock()
		log.Printf("[RaceStore] dropping message: %v", err)
		return
	}

	switch msg.Kind {
	case KindTrack:
		s.ingestTrack(msg.Track)
	case KindState:
		s.ingestState(msg.State)
	}
}

func (s *Store) ingestTrack(track *TrackPayload) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.track = track
	s.stats.TracksIngested++
	log.Printf("[RaceStore] track geometry received: %d points, %.1fm", len(track.Points), track.TotalLength)
}

func (s *Store) ingestState(next *Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev := s.snapshot

	// A backward race clock means the server rebuilt the race. All
	// derived and interpolated state keyed to the old race is invalid.
	resetDetected := prev != nil && next.SimTime < prev.SimTime
	if resetDetected {
		s.generation++
		s.events = nil
		s.laps.reset()
		log.Printf("[RaceStore] server reset detected (clock %.1fs -> %.1fs), generation %d",
			prev.SimTime, next.SimTime, s.generation)
		prev = nil
	}

	if !resetDetected {
		derived := detectEvents(prev, next, s.laps)
		s.appendEventsLocked(derived)
	} else {
		// Seed the lap clock from the fresh snapshot only.
		detectEvents(nil, next, s.laps)
	}
	s.appendEventsLocked(next.Events)

	// Replace wholesale. The previous snapshot stays valid for any
	// renderer still holding it.
	s.snapshot = next
	s.pendingReset = false
	s.stats.StatesIngested++
}

func (s *Store) appendEventsLocked(events []Event) {
	if len(events) == 0 {
		return
	}
	s.events = append(s.events, events...)
	if over := len(s.events) - s.cfg.MaxEvents; over > 0 {
		s.events = append([]Event(nil), s.events[over:]...)
	}
}

// CurrentSnapshot returns the latest snapshot, or the default empty race
// before the first message arrives. The returned snapshot must be treated
// as immutable.
func (s *Store) CurrentSnapshot() *Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.snapshot == nil {
		return EmptySnapshot()
	}
	return s.snapshot
}

// Track returns the static track payload, if one has been obtained.
func (s *Store) Track() (*TrackPayload, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.track, s.track != nil
}

// Generation increments whenever the race identity changes (server reset
// or a local reset request). Interpolator state keyed to an older
// generation must be discarded.
func (s *Store) Generation() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.generation
}

// EnsureTrack fetches track geometry over HTTP if none arrived via the
// stream. The fallback is attempted only once; a failure leaves the store
// in the "no track" state and returns ErrNoTrack.
func (s *Store) EnsureTrack(ctx context.Context) (*TrackPayload, error) {
	s.mu.Lock()
	if s.track != nil {
		track := s.track
		s.mu.Unlock()
		return track, nil
	}
	if s.trackFetchTried || s.cfg.TrackURL == "" {
		s.mu.Unlock()
		return nil, ErrNoTrack
	}
	s.trackFetchTried = true
	url := s.cfg.TrackURL
	client := s.cfg.HTTPClient
	s.mu.Unlock()

	var payload TrackPayload
	if err := httputil.GetJSON(ctx, client, url, &payload); err != nil {
		log.Printf("[RaceStore] track fallback fetch failed: %v", err)
		return nil, fmt.Errorf("%w: %v", ErrNoTrack, err)
	}
	if err := payload.Validate(); err != nil {
		log.Printf("[RaceStore] track fallback fetch returned invalid payload: %v", err)
		return nil, fmt.Errorf("%w: %v", ErrNoTrack, err)
	}

	s.mu.Lock()
	if s.track == nil {
		s.track = &payload
		s.stats.TracksIngested++
	}
	track := s.track
	s.mu.Unlock()
	log.Printf("[RaceStore] track geometry fetched via HTTP fallback: %d points", len(payload.Points))
	return track, nil
}

// RequestReset sends a reset request to the server and optimistically
// clears the started/finished flags and race clock locally so the viewer
// does not flash stale state while the authoritative reset is in flight.
// The optimistic snapshot is overwritten, never merged, by the next real
// snapshot. Calling RequestReset again before that snapshot arrives is a
// no-op.
func (s *Store) RequestReset() error {
	s.mu.Lock()
	if s.pendingReset {
		s.mu.Unlock()
		return nil
	}
	s.pendingReset = true
	s.stats.ResetsRequested++
	s.generation++

	if s.snapshot != nil {
		cleared := *s.snapshot
		cleared.RaceStarted = false
		cleared.RaceFinished = false
		cleared.SimTime = 0
		cleared.Events = nil
		s.snapshot = &cleared
	}
	s.events = nil
	s.laps.reset()
	sender := s.sender
	s.mu.Unlock()

	if sender == nil {
		return nil
	}
	if err := sender.Send(NewResetRequest()); err != nil {
		// The local clear stands; the next authoritative snapshot
		// reinstates the true state either way.
		return fmt.Errorf("send reset request: %w", err)
	}
	return nil
}

// RecentEvents returns up to limit of the most recent events, newest last.
func (s *Store) RecentEvents(limit int) []Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if limit <= 0 || limit > len(s.events) {
		limit = len(s.events)
	}
	out := make([]Event, limit)
	copy(out, s.events[len(s.events)-limit:])
	return out
}

// FastestLap returns the best derived lap time of the session.
func (s *Store) FastestLap() (car string, lapTime float64, ok bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.laps.bestCar == "" {
		return "", 0, false
	}
	return s.laps.bestCar, s.laps.bestLap, true
}

// Stats returns a copy of the store counters.
func (s *Store) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stats
}
