package race

// lapClock tracks per-car lap start times so lap durations can be derived
// from consecutive snapshots. The server does not send lap times directly.
type lapClock struct {
	lapStart map[string]float64 // car name -> total_time at current lap start
	bestLap  float64
	bestCar  string
	seeded   bool
}

func newLapClock() *lapClock {
	return &lapClock{lapStart: make(map[string]float64)}
}

func (lc *lapClock) reset() {
	lc.lapStart = make(map[string]float64)
	lc.bestLap = 0
	lc.bestCar = ""
	lc.seeded = false
}

// detectEvents derives race events from two consecutive snapshots:
// overtakes (rank improved), pit entry/exit (on_pit edges) and lap
// completions, plus fastest-lap whenever a derived lap time beats the
// session best. prev may be nil for the first snapshot; only lap-clock
// seeding happens then.
func detectEvents(prev, next *Snapshot, lc *lapClock) []Event {
	if next == nil {
		return nil
	}
	if !lc.seeded {
		for i := range next.Cars {
			lc.lapStart[next.Cars[i].Name] = next.Cars[i].TotalTime
		}
		lc.seeded = true
	}
	if prev == nil {
		return nil
	}

	prevCars := make(map[string]*CarState, len(prev.Cars))
	for i := range prev.Cars {
		prevCars[prev.Cars[i].Name] = &prev.Cars[i]
	}

	// Rank holders in the new snapshot, for naming overtake targets.
	nextByRank := make(map[int]string, len(next.Cars))
	for i := range next.Cars {
		nextByRank[next.Cars[i].RacePosition] = next.Cars[i].Name
	}

	var events []Event
	for i := range next.Cars {
		car := &next.Cars[i]
		before, ok := prevCars[car.Name]
		if !ok {
			// First sighting of this car mid-race; nothing to compare.
			lc.lapStart[car.Name] = car.TotalTime
			continue
		}

		if car.RacePosition > 0 && before.RacePosition > 0 && car.RacePosition < before.RacePosition {
			ev := Event{
				Type:    EventOvertake,
				Car:     car.Name,
				Lap:     car.Laps,
				SimTime: next.SimTime,
			}
			if displaced, ok := nextByRank[car.RacePosition+1]; ok {
				ev.Target = displaced
			}
			events = append(events, ev)
		}

		if !before.OnPit && car.OnPit {
			events = append(events, Event{Type: EventPitIn, Car: car.Name, Lap: car.Laps, SimTime: next.SimTime})
		}
		if before.OnPit && !car.OnPit {
			events = append(events, Event{Type: EventPitOut, Car: car.Name, Lap: car.Laps, SimTime: next.SimTime})
		}

		if car.Laps > before.Laps {
			events = append(events, Event{Type: EventLapComplete, Car: car.Name, Lap: car.Laps, SimTime: next.SimTime})

			start, haveStart := lc.lapStart[car.Name]
			lapTime := car.TotalTime - start
			if haveStart && lapTime > 0 {
				if lc.bestLap == 0 || lapTime < lc.bestLap {
					lc.bestLap = lapTime
					lc.bestCar = car.Name
					events = append(events, Event{Type: EventFastestLap, Car: car.Name, Lap: car.Laps, SimTime: next.SimTime})
				}
			}
			lc.lapStart[car.Name] = car.TotalTime
		}
	}
	return events
}
