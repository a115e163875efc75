// Package relay serves the race wire protocol: a WebSocket stream of
// track and state payloads backed by the synthetic race model, plus the
// HTTP control endpoints the control-plane client drives.
package relay

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/Darshbir/toyota-gr-sim/internal/httputil"
	"github.com/Darshbir/toyota-gr-sim/internal/race"
	"github.com/Darshbir/toyota-gr-sim/internal/sim"
	"github.com/Darshbir/toyota-gr-sim/internal/timeutil"
	"github.com/Darshbir/toyota-gr-sim/internal/version"
)

const clientWriteTimeout = 5 * time.Second

// Config holds the relay server parameters.
type Config struct {
	Addr string
	Race *sim.Race

	// Clock paces the broadcast loop; defaults to the real clock.
	Clock timeutil.Clock

	// BroadcastEvery is the state push cadence (default 100ms). Each
	// broadcast advances the model StepsPerBroadcast times, so sim time
	// runs faster than wall time.
	BroadcastEvery    time.Duration
	StepsPerBroadcast int

	// FinishPause is how long the final classification stays on screen
	// before the field returns to the grid (default 2s).
	FinishPause time.Duration

	// SendBuffer is the per-client outbound queue depth (default 16).
	SendBuffer int
}

func (c *Config) applyDefaults() {
	if c.Clock == nil {
		c.Clock = timeutil.RealClock{}
	}
	if c.BroadcastEvery <= 0 {
		c.BroadcastEvery = 100 * time.Millisecond
	}
	if c.StepsPerBroadcast <= 0 {
		c.StepsPerBroadcast = 3
	}
	if c.FinishPause <= 0 {
		c.FinishPause = 2 * time.Second
	}
	if c.SendBuffer <= 0 {
		c.SendBuffer = 16
	}
}

// Stats are cumulative relay counters.
type Stats struct {
	Broadcasts uint64
	Dropped    uint64
	Clients    int
}

// Server owns the race model and fans its state out to every connected
// viewer. All model access is serialized under one mutex; handlers and
// the broadcast loop never touch the model without it.
type Server struct {
	cfg      Config
	server   *http.Server
	upgrader websocket.Upgrader

	trackPayload race.TrackPayload
	trackMsg     []byte

	mu              sync.Mutex
	race            *sim.Race
	clients         map[*client]struct{}
	finishCountdown int

	broadcasts atomic.Uint64
	dropped    atomic.Uint64
}

type client struct {
	id   string
	conn *websocket.Conn
	send chan []byte
	once sync.Once
}

func (c *client) closeConn() {
	c.once.Do(func() { c.conn.Close() })
}

type trackEnvelope struct {
	Type string            `json:"type"`
	Data race.TrackPayload `json:"data"`
}

// NewServer creates a relay around the given race model.
func NewServer(cfg Config) (*Server, error) {
	if cfg.Race == nil {
		return nil, errors.New("relay: race model is required")
	}
	cfg.applyDefaults()

	track := cfg.Race.Track()
	payload := race.TrackPayload{
		Points:      track.Points(),
		TotalLength: track.Length(),
	}
	trackMsg, err := json.Marshal(trackEnvelope{Type: "track", Data: payload})
	if err != nil {
		return nil, err
	}

	s := &Server{
		cfg:          cfg,
		race:         cfg.Race,
		clients:      make(map[*client]struct{}),
		trackPayload: payload,
		trackMsg:     trackMsg,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
	s.server = &http.Server{Addr: cfg.Addr, Handler: s.routes()}
	return s, nil
}

func (s *Server) routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleRoot)
	mux.HandleFunc("/api/track", s.handleTrack)
	mux.HandleFunc("/api/start", s.handleStart)
	mux.HandleFunc("/api/reset", s.handleReset)
	mux.HandleFunc("/api/race-status", s.handleStatus)
	mux.HandleFunc("/debug/field-chart", s.handleFieldChart)
	mux.HandleFunc("/ws", s.handleWS)
	return mux
}

// Handler exposes the route table, mainly for httptest servers.
func (s *Server) Handler() http.Handler { return s.server.Handler }

// Start runs the HTTP server and the broadcast loop until ctx is
// cancelled, then shuts both down.
func (s *Server) Start(ctx context.Context) error {
	go func() {
		log.Printf("[Relay] listening on %s", s.cfg.Addr)
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("[Relay] server failed: %v", err)
		}
	}()
	go s.broadcastLoop(ctx)

	<-ctx.Done()
	log.Printf("[Relay] shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.server.Shutdown(shutdownCtx); err != nil {
		log.Printf("[Relay] shutdown error: %v", err)
		if err := s.server.Close(); err != nil {
			log.Printf("[Relay] force close error: %v", err)
		}
	}

	s.mu.Lock()
	for c := range s.clients {
		delete(s.clients, c)
		close(c.send)
	}
	s.mu.Unlock()
	return nil
}

func (s *Server) broadcastLoop(ctx context.Context) {
	ticker := s.cfg.Clock.NewTicker(s.cfg.BroadcastEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C():
			s.BroadcastOnce()
		}
	}
}

// BroadcastOnce advances the model and pushes one state payload to every
// client. With no clients connected the model holds still, like a demo
// rig that pauses when nobody is watching.
func (s *Server) BroadcastOnce() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.clients) == 0 {
		return
	}

	// Hold the final classification briefly, then return to the grid.
	if s.race.Finished() {
		if s.finishCountdown == 0 {
			s.finishCountdown = int(s.cfg.FinishPause/s.cfg.BroadcastEvery) + 1
			log.Printf("[Relay] race finished, new grid in %s", s.cfg.FinishPause)
		}
		s.finishCountdown--
		if s.finishCountdown <= 0 {
			s.race.Reset()
			s.finishCountdown = 0
		}
	} else {
		s.finishCountdown = 0
	}

	for i := 0; i < s.cfg.StepsPerBroadcast; i++ {
		s.race.Step()
	}

	data, err := json.Marshal(s.race.StatePayload())
	if err != nil {
		log.Printf("[Relay] marshal state: %v", err)
		return
	}
	for c := range s.clients {
		select {
		case c.send <- data:
		default:
			s.dropped.Add(1)
		}
	}

	if n := s.broadcasts.Add(1); n%100 == 0 {
		log.Printf("[Relay] broadcast #%d clients=%d dropped=%d",
			n, len(s.clients), s.dropped.Load())
	}
}

// ClientCount returns the number of connected stream clients.
func (s *Server) ClientCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

// Stats returns cumulative counters.
func (s *Server) Stats() Stats {
	return Stats{
		Broadcasts: s.broadcasts.Load(),
		Dropped:    s.dropped.Load(),
		Clients:    s.ClientCount(),
	}
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		httputil.NotFound(w, "no such endpoint")
		return
	}
	httputil.WriteJSONOK(w, map[string]string{
		"message":            "toyota-gr-sim race server",
		"version":            version.String(),
		"websocket_endpoint": "/ws",
		"track_endpoint":     "/api/track",
		"debug_chart":        "/debug/field-chart",
	})
}

func (s *Server) handleTrack(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	httputil.WriteJSONOK(w, s.trackPayload)
}

// startRequest carries the weather for a fresh race. Out-of-range values
// are clamped, not rejected.
type startRequest struct {
	Rain      float64 `json:"rain"`
	TrackTemp float64 `json:"track_temp"`
	Wind      float64 `json:"wind"`
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}
	req := startRequest{TrackTemp: 25.0}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		httputil.BadRequest(w, "invalid start request: "+err.Error())
		return
	}
	weather := race.Weather{
		Rain:      clamp(req.Rain, 0, 1),
		TrackTemp: clamp(req.TrackTemp, 15, 50),
		Wind:      clamp(req.Wind, 0, 20),
	}

	s.mu.Lock()
	s.race.Reset()
	s.race.SetWeather(weather)
	s.race.Start()
	s.finishCountdown = 0
	s.mu.Unlock()
	log.Printf("[Relay] race started (rain=%.2f temp=%.1f wind=%.1f)",
		weather.Rain, weather.TrackTemp, weather.Wind)

	httputil.WriteJSONOK(w, map[string]any{
		"message":      "Race started",
		"weather":      weather,
		"race_started": true,
	})
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}
	s.mu.Lock()
	s.race.Reset()
	s.finishCountdown = 0
	s.mu.Unlock()
	log.Printf("[Relay] race reset")

	httputil.WriteJSONOK(w, map[string]string{"message": "Simulation reset"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	s.mu.Lock()
	status := map[string]any{
		"race_started":  s.race.Started(),
		"race_finished": s.race.Finished(),
		"time":          s.race.SimTime(),
		"weather":       s.race.Weather(),
		"total_laps":    s.race.TotalLaps(),
	}
	s.mu.Unlock()
	httputil.WriteJSONOK(w, status)
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[Relay] upgrade failed: %v", err)
		return
	}

	c := &client{
		id:   uuid.NewString(),
		conn: conn,
		send: make(chan []byte, s.cfg.SendBuffer),
	}
	// The track payload must precede any state broadcast, so queue it
	// before the client becomes visible to the broadcast loop.
	c.send <- s.trackMsg

	s.mu.Lock()
	s.clients[c] = struct{}{}
	n := len(s.clients)
	s.mu.Unlock()
	log.Printf("[Relay] client %s connected (%d active)", c.id, n)

	go s.writePump(c)
	s.readPump(c)
}

// removeClient unregisters c; safe to call from both pumps.
func (s *Server) removeClient(c *client) {
	s.mu.Lock()
	if _, ok := s.clients[c]; ok {
		delete(s.clients, c)
		close(c.send)
		log.Printf("[Relay] client %s disconnected (%d active)", c.id, len(s.clients))
	}
	s.mu.Unlock()
	c.closeConn()
}

func (s *Server) writePump(c *client) {
	defer c.closeConn()
	for data := range c.send {
		if err := c.conn.SetWriteDeadline(s.cfg.Clock.Now().Add(clientWriteTimeout)); err != nil {
			s.removeClient(c)
			return
		}
		if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			log.Printf("[Relay] write to %s failed: %v", c.id, err)
			s.removeClient(c)
			return
		}
	}
}

// readPump consumes control messages until the connection drops. The only
// inbound message is {type:"reset"}.
func (s *Server) readPump(c *client) {
	defer s.removeClient(c)
	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		var msg struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal(raw, &msg); err != nil {
			log.Printf("[Relay] bad control message from %s: %v", c.id, err)
			continue
		}
		if msg.Type == "reset" {
			s.mu.Lock()
			s.race.Reset()
			s.finishCountdown = 0
			s.mu.Unlock()
			log.Printf("[Relay] client %s requested reset", c.id)
		}
	}
}
