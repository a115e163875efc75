// Package transport maintains the WebSocket stream from the race server:
// a single connection that reconnects forever with bounded backoff,
// fanning inbound messages out to subscribers and carrying control
// messages back upstream.
package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Darshbir/toyota-gr-sim/internal/monitoring"
	"github.com/Darshbir/toyota-gr-sim/internal/timeutil"
)

// ErrNotConnected is returned by Send while no connection is up. Control
// messages are not queued; the caller decides whether to retry.
var ErrNotConnected = errors.New("transport: not connected")

// Conn is the subset of a websocket connection the channel drives. Tests
// substitute an in-memory implementation.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

// Dialer opens one connection attempt.
type Dialer func(ctx context.Context, url string) (Conn, error)

// DefaultDialer dials with gorilla's default websocket dialer.
func DefaultDialer(ctx context.Context, url string) (Conn, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// Config holds channel construction parameters.
type Config struct {
	// URL is the websocket endpoint, e.g. ws://localhost:8000/ws.
	URL string

	// Dialer defaults to DefaultDialer.
	Dialer Dialer

	// Clock defaults to the real clock. Tests inject a mock to control
	// reconnect timing.
	Clock timeutil.Clock

	// BackoffBase and BackoffCap bound the reconnect delays.
	// Defaults: 1s and 30s.
	BackoffBase time.Duration
	BackoffCap  time.Duration

	// WriteTimeout bounds each outbound write. Default 5s.
	WriteTimeout time.Duration

	// SubscriberBuffer is the per-subscriber queue depth. A subscriber
	// that falls behind loses messages rather than stalling the read
	// loop. Default 64.
	SubscriberBuffer int
}

// Stats counts channel activity since construction.
type Stats struct {
	Connects    uint64
	Disconnects uint64
	Received    uint64
	Sent        uint64
	Dropped     uint64
}

// Channel is the reconnecting stream. Run drives it; all other methods
// are safe to call from any goroutine.
type Channel struct {
	cfg     Config
	clock   timeutil.Clock
	backoff Backoff

	mu        sync.RWMutex
	conn      Conn
	connected bool
	closed    bool
	lastErr   error
	subs      map[int]chan []byte
	nextSubID int

	closeCh chan struct{}

	writeMu sync.Mutex

	connects    atomic.Uint64
	disconnects atomic.Uint64
	received    atomic.Uint64
	sent        atomic.Uint64
	dropped     atomic.Uint64
}

// NewChannel creates a channel. Run must be called to start it.
func NewChannel(cfg Config) *Channel {
	if cfg.Dialer == nil {
		cfg.Dialer = DefaultDialer
	}
	if cfg.Clock == nil {
		cfg.Clock = timeutil.RealClock{}
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 5 * time.Second
	}
	if cfg.SubscriberBuffer <= 0 {
		cfg.SubscriberBuffer = 64
	}
	return &Channel{
		cfg:     cfg,
		clock:   cfg.Clock,
		backoff: Backoff{Base: cfg.BackoffBase, Cap: cfg.BackoffCap},
		subs:    make(map[int]chan []byte),
		closeCh: make(chan struct{}),
	}
}

// Run connects and reads until ctx is cancelled or the channel is
// closed. Dial failures back off with doubling delays; a successful
// connect resets the sequence. A dropped connection redials immediately.
// Run never gives up on its own: the user-visible contract is
// "eventually reconnects", surfaced through Connected rather than a
// terminal error.
func (c *Channel) Run(ctx context.Context) error {
	for {
		if ctx.Err() != nil || c.isClosed() {
			return nil
		}

		conn, err := c.cfg.Dialer(ctx, c.cfg.URL)
		if err != nil {
			if ctx.Err() != nil || c.isClosed() {
				return nil
			}
			c.noteDisconnected(err)
			delay := c.backoff.Next()
			monitoring.Logf("[Transport] connect %s failed: %v (retry in %s)", c.cfg.URL, err, delay)
			select {
			case <-ctx.Done():
				return nil
			case <-c.closeCh:
				return nil
			case <-c.clock.After(delay):
			}
			continue
		}

		c.backoff.Reset()
		c.setConn(conn)
		c.connects.Add(1)
		monitoring.Logf("[Transport] connected to %s", c.cfg.URL)

		err = c.readLoop(ctx, conn)
		c.clearConn()
		conn.Close()
		if ctx.Err() != nil || c.isClosed() {
			return nil
		}
		c.noteDisconnected(err)
		monitoring.Logf("[Transport] connection lost: %v", err)
	}
}

// readLoop pumps inbound messages until the connection breaks or ctx is
// cancelled. The watcher goroutine closes the connection on cancellation
// to unblock the read.
func (c *Channel) readLoop(ctx context.Context, conn Conn) error {
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		c.received.Add(1)
		c.fanOut(data)
	}
}

func (c *Channel) fanOut(data []byte) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, ch := range c.subs {
		select {
		case ch <- data:
		default:
			// Subscriber is slow; drop for it rather than stall the
			// read loop.
			c.dropped.Add(1)
		}
	}
}

// Subscribe registers an inbound message queue. The returned cancel
// removes the subscription and closes the queue.
func (c *Channel) Subscribe() (<-chan []byte, func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.nextSubID
	c.nextSubID++
	ch := make(chan []byte, c.cfg.SubscriberBuffer)
	c.subs[id] = ch

	cancel := func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if _, ok := c.subs[id]; ok {
			delete(c.subs, id)
			close(ch)
		}
	}
	return ch, cancel
}

// Send marshals v to JSON and writes it as one text frame. It fails fast
// with ErrNotConnected while the connection is down.
func (c *Channel) Send(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal outbound message: %w", err)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()
	if conn == nil {
		return ErrNotConnected
	}

	conn.SetWriteDeadline(c.clock.Now().Add(c.cfg.WriteTimeout))
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("write message: %w", err)
	}
	c.sent.Add(1)
	return nil
}

// Close permanently stops the channel: the live connection, if any, is
// torn down and Run returns instead of redialling. Safe to call more
// than once and without a running Run.
func (c *Channel) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	close(c.closeCh)
	conn := c.conn
	c.conn = nil
	c.connected = false
	c.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
	return nil
}

func (c *Channel) isClosed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.closed
}

// Connected reports whether a connection is currently up.
func (c *Channel) Connected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

// LastError returns the most recent dial or read error, nil while healthy.
func (c *Channel) LastError() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastErr
}

// Stats returns a copy of the channel counters.
func (c *Channel) Stats() Stats {
	return Stats{
		Connects:    c.connects.Load(),
		Disconnects: c.disconnects.Load(),
		Received:    c.received.Load(),
		Sent:        c.sent.Load(),
		Dropped:     c.dropped.Load(),
	}
}

func (c *Channel) setConn(conn Conn) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn = conn
	c.connected = true
	c.lastErr = nil
}

func (c *Channel) clearConn() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn = nil
	c.connected = false
}

func (c *Channel) noteDisconnected(err error) {
	c.mu.Lock()
	c.lastErr = err
	c.mu.Unlock()
	c.disconnects.Add(1)
}
