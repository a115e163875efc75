package render

import (
	"log"
	"sync"
	"sync/atomic"
)

// FanOut dispatches frames to sinks on their own goroutines. A sink that
// cannot keep up loses frames rather than stalling the render loop; only
// the latest state matters to a renderer.
type FanOut struct {
	mu      sync.Mutex
	workers []*sinkWorker
	closed  bool
	wg      sync.WaitGroup

	published atomic.Uint64
	dropped   atomic.Uint64
}

type sinkWorker struct {
	name string
	ch   chan *Frame
}

// NewFanOut creates an empty dispatcher.
func NewFanOut() *FanOut {
	return &FanOut{}
}

// Add registers a sink under a name used in drop logging. buffer is the
// sink's queue depth; values below 1 get a single slot.
func (f *FanOut) Add(name string, sink Sink, buffer int) {
	if buffer < 1 {
		buffer = 1
	}
	w := &sinkWorker{name: name, ch: make(chan *Frame, buffer)}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	f.workers = append(f.workers, w)
	f.wg.Add(1)
	go func() {
		defer f.wg.Done()
		for frame := range w.ch {
			sink.Consume(frame)
		}
	}()
}

// Publish offers the frame to every sink queue without blocking.
func (f *FanOut) Publish(frame *Frame) {
	f.published.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	for _, w := range f.workers {
		select {
		case w.ch <- frame:
		default:
			dropped := f.dropped.Add(1)
			if dropped%100 == 1 {
				log.Printf("[Render] sink %q is behind, dropping frame %d (total dropped %d)",
					w.name, frame.ID, dropped)
			}
		}
	}
}

// Close drains and stops all sink workers. Publish after Close is a no-op.
func (f *FanOut) Close() {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return
	}
	f.closed = true
	for _, w := range f.workers {
		close(w.ch)
	}
	f.mu.Unlock()
	f.wg.Wait()
}

// Published returns the number of frames offered to the dispatcher.
func (f *FanOut) Published() uint64 { return f.published.Load() }

// Dropped returns the number of per-sink frame drops.
func (f *FanOut) Dropped() uint64 { return f.dropped.Load() }
