package render

import (
	"fmt"
	"io"
	"sync"

	"github.com/Darshbir/toyota-gr-sim/internal/units"
)

// ConsoleSink prints a compact leaderboard every Nth frame. It backs the
// headless mode, where no window is opened and the race is followed from
// a terminal.
type ConsoleSink struct {
	w     io.Writer
	every uint64

	mu        sync.Mutex
	speedUnit string
}

// NewConsoleSink creates a console sink writing to w every `every`
// frames. speedUnit is one of the units package identifiers.
func NewConsoleSink(w io.Writer, every uint64, speedUnit string) *ConsoleSink {
	if every == 0 {
		every = 60
	}
	if !units.IsValid(speedUnit) {
		speedUnit = units.KPH
	}
	return &ConsoleSink{w: w, every: every, speedUnit: speedUnit}
}

// Consume implements Sink.
func (s *ConsoleSink) Consume(frame *Frame) {
	if frame.ID%s.every != 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	status := "live"
	if !frame.Connected {
		status = "disconnected"
	}
	fmt.Fprintf(s.w, "t=%7.1fs lap %d/%d [%s]\n", frame.SimTime, leaderLaps(frame), frame.TotalLaps, status)
	for _, car := range frame.Cars {
		marker := " "
		if car.Selected {
			marker = ">"
		}
		pit := ""
		if car.OnPit {
			pit = " PIT"
		}
		fmt.Fprintf(s.w, "%s P%-2d %-22s %-6s %6.1f %s%s\n",
			marker, car.Rank, car.Name, car.Tyre,
			units.ConvertSpeed(car.Speed, s.speedUnit), s.speedUnit, pit)
	}
	for _, ev := range frame.Events {
		fmt.Fprintf(s.w, "  * %s %s\n", ev.Type, ev.Car)
	}
}

func leaderLaps(frame *Frame) int {
	laps := 0
	for _, car := range frame.Cars {
		if car.Laps > laps {
			laps = car.Laps
		}
	}
	return laps
}
