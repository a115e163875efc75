package relay

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/Darshbir/toyota-gr-sim/internal/httputil"
	"github.com/Darshbir/toyota-gr-sim/internal/race"
	"github.com/Darshbir/toyota-gr-sim/internal/timeutil"
)

// errReplayRestart signals that the client asked to start the session over.
var errReplayRestart = errors.New("replay restart requested")

// ReplayFrame is one stored broadcast with its capture timestamp.
type ReplayFrame struct {
	RecordedUnixNanos int64
	Payload           []byte
}

// FrameReader streams one pass over a recorded session.
type FrameReader interface {
	// ReadFrame returns the next frame, or io.EOF after the last one.
	ReadFrame() (*ReplayFrame, error)
	Close() error
}

// ReplaySource provides a recorded session's messages. Each Snapshots
// call opens a fresh pass from the start.
type ReplaySource interface {
	Track() ([]byte, error)
	Snapshots() (FrameReader, error)
}

// ReplayConfig holds replay server parameters.
type ReplayConfig struct {
	Addr   string
	Source ReplaySource

	// Clock paces playback; defaults to the real clock.
	Clock timeutil.Clock

	// Rate scales playback speed. 1.0 replays at the recorded pace,
	// 2.0 at double speed. Default 1.0.
	Rate float64

	// Loop restarts the session after the last frame instead of idling.
	Loop bool
}

func (c *ReplayConfig) applyDefaults() {
	if c.Clock == nil {
		c.Clock = timeutil.RealClock{}
	}
	if c.Rate <= 0 {
		c.Rate = 1.0
	}
}

// ReplayServer re-serves a recorded session over the live wire protocol.
// Every client gets its own pass from the start, paced by the recorded
// capture timestamps, so a viewer cannot tell it from a live server.
type ReplayServer struct {
	cfg      ReplayConfig
	server   *http.Server
	upgrader websocket.Upgrader

	trackMsg     []byte
	trackPayload race.TrackPayload

	clients    atomic.Int64
	framesSent atomic.Uint64
}

// NewReplayServer loads the session's track message and builds the server.
func NewReplayServer(cfg ReplayConfig) (*ReplayServer, error) {
	if cfg.Source == nil {
		return nil, errors.New("relay: replay source is required")
	}
	cfg.applyDefaults()

	trackMsg, err := cfg.Source.Track()
	if err != nil {
		return nil, err
	}
	decoded, err := race.Decode(trackMsg)
	if err != nil {
		return nil, err
	}
	if decoded.Kind != race.KindTrack {
		return nil, errors.New("relay: stored track message is not a track payload")
	}

	s := &ReplayServer{
		cfg:          cfg,
		trackMsg:     trackMsg,
		trackPayload: *decoded.Track,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
	s.server = &http.Server{Addr: cfg.Addr, Handler: s.routes()}
	return s, nil
}

func (s *ReplayServer) routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleRoot)
	mux.HandleFunc("/api/track", s.handleTrack)
	mux.HandleFunc("/api/start", s.handleControl)
	mux.HandleFunc("/api/reset", s.handleControl)
	mux.HandleFunc("/api/race-status", s.handleStatus)
	mux.HandleFunc("/ws", s.handleWS)
	return mux
}

// Handler exposes the route table, mainly for httptest servers.
func (s *ReplayServer) Handler() http.Handler { return s.server.Handler }

// Start runs the HTTP server until ctx is cancelled, then shuts it down.
// In-flight replay streams end when their connections are closed.
func (s *ReplayServer) Start(ctx context.Context) error {
	go func() {
		log.Printf("[Replay] listening on %s (rate %.1fx)", s.cfg.Addr, s.cfg.Rate)
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("[Replay] server failed: %v", err)
		}
	}()

	<-ctx.Done()
	log.Printf("[Replay] shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.server.Shutdown(shutdownCtx); err != nil {
		log.Printf("[Replay] shutdown error: %v", err)
		if err := s.server.Close(); err != nil {
			log.Printf("[Replay] force close error: %v", err)
		}
	}
	return nil
}

// FramesSent returns the total snapshots written across all clients.
func (s *ReplayServer) FramesSent() uint64 { return s.framesSent.Load() }

func (s *ReplayServer) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		httputil.NotFound(w, "no such endpoint")
		return
	}
	httputil.WriteJSONOK(w, map[string]string{
		"message":            "toyota-gr-sim replay server",
		"websocket_endpoint": "/ws",
		"track_endpoint":     "/api/track",
	})
}

func (s *ReplayServer) handleTrack(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	httputil.WriteJSONOK(w, s.trackPayload)
}

// handleControl accepts the live server's control posts so viewer
// shortcuts do not error against a replay, but playback is read-only.
func (s *ReplayServer) handleControl(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}
	httputil.WriteJSONOK(w, map[string]string{
		"message": "replaying a recorded session; control input is ignored",
	})
}

func (s *ReplayServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	httputil.WriteJSONOK(w, map[string]any{
		"replay":       true,
		"rate":         s.cfg.Rate,
		"clients":      s.clients.Load(),
		"frames_sent":  s.framesSent.Load(),
		"race_started": true,
	})
}

type replayClient struct {
	id      string
	conn    *websocket.Conn
	restart chan struct{}
}

func (s *ReplayServer) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[Replay] upgrade failed: %v", err)
		return
	}

	c := &replayClient{
		id:      uuid.NewString(),
		conn:    conn,
		restart: make(chan struct{}, 1),
	}
	n := s.clients.Add(1)
	log.Printf("[Replay] client %s connected (%d active)", c.id, n)

	go s.readPump(c)
	s.streamSession(c)

	conn.Close()
	log.Printf("[Replay] client %s disconnected (%d active)", c.id, s.clients.Add(-1))
}

// readPump consumes control messages until the connection drops. A reset
// request rewinds playback to the start of the session.
func (s *ReplayServer) readPump(c *replayClient) {
	defer c.conn.Close()
	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		var msg struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal(raw, &msg); err != nil {
			continue
		}
		if msg.Type == "reset" {
			select {
			case c.restart <- struct{}{}:
			default:
			}
			log.Printf("[Replay] client %s rewound", c.id)
		}
	}
}

// streamSession plays the session to one client, starting over on rewind
// requests and, when looping, after the last frame.
func (s *ReplayServer) streamSession(c *replayClient) {
	for {
		err := s.playOnce(c)
		switch {
		case errors.Is(err, errReplayRestart):
			continue
		case err != nil:
			return
		case s.cfg.Loop:
			continue
		default:
			return
		}
	}
}

// playOnce streams one full pass: the track message, then every snapshot
// paced by its recorded capture time.
func (s *ReplayServer) playOnce(c *replayClient) error {
	if err := s.writeFrame(c, s.trackMsg); err != nil {
		return err
	}

	reader, err := s.cfg.Source.Snapshots()
	if err != nil {
		log.Printf("[Replay] open session for %s failed: %v", c.id, err)
		return err
	}
	defer reader.Close()

	var (
		lastRecorded int64
		lastWall     time.Time
		first        = true
	)
	for {
		select {
		case <-c.restart:
			return errReplayRestart
		default:
		}

		frame, err := reader.ReadFrame()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			log.Printf("[Replay] read frame for %s failed: %v", c.id, err)
			return err
		}

		// Reproduce the recorded cadence: sleep off whatever portion of
		// the capture interval the write work has not already consumed.
		if !first {
			frameDelta := time.Duration(float64(frame.RecordedUnixNanos-lastRecorded) / s.cfg.Rate)
			wallDelta := s.cfg.Clock.Since(lastWall)
			if frameDelta > wallDelta {
				s.cfg.Clock.Sleep(frameDelta - wallDelta)
			}
		}
		first = false
		lastRecorded = frame.RecordedUnixNanos
		lastWall = s.cfg.Clock.Now()

		if err := s.writeFrame(c, frame.Payload); err != nil {
			return err
		}
		s.framesSent.Add(1)
	}
}

func (s *ReplayServer) writeFrame(c *replayClient, data []byte) error {
	if err := c.conn.SetWriteDeadline(s.cfg.Clock.Now().Add(clientWriteTimeout)); err != nil {
		return err
	}
	return c.conn.WriteMessage(websocket.TextMessage, data)
}
