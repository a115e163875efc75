// Package race holds the authoritative race state pushed by the server and
// the small amount of state derived from it (events, fastest lap, reset
// tracking). Snapshots are immutable once published: ingestion replaces the
// snapshot reference wholesale, never mutates fields in place, so a render
// pass always observes a complete snapshot.
package race

import (
	"encoding/json"
	"fmt"
)

// Weather is the ambient condition block carried in every state payload.
type Weather struct {
	Rain      float64 `json:"rain"`       // 0..1
	TrackTemp float64 `json:"track_temp"` // celsius
	Wind      float64 `json:"wind"`       // m/s
}

// PitStop is one entry of a car's pit stop history.
type PitStop struct {
	Lap  int    `json:"lap"`
	Tyre string `json:"tyre"`
}

// CarState is one car's instantaneous truth as reported by the server.
// Positions are 2D world meters, angle is math convention (0 = +x axis,
// counter-clockwise positive), speed is km/h.
type CarState struct {
	Name         string  `json:"name"`
	Color        string  `json:"color"`
	RacePosition int     `json:"position"` // 1-based rank
	Laps         int     `json:"laps"`
	TyreWear     float64 `json:"wear"` // 0..1
	TyreCompound string  `json:"tyre"`
	Fuel         float64 `json:"fuel"`
	Speed        float64 `json:"speed"` // km/h
	X            float64 `json:"x"`
	Y            float64 `json:"y"`
	Angle        float64 `json:"angle"`
	TotalTime    float64 `json:"total_time"`
	OnPit        bool    `json:"on_pit"`

	RPM              float64   `json:"rpm"`
	Gear             int       `json:"gear"`
	Throttle         float64   `json:"throttle"`
	Brake            float64   `json:"brake"`
	TyreTemp         float64   `json:"tire_temp"`
	DRSActive        bool      `json:"drs_active"`
	ERSEnergy        float64   `json:"ers_energy"`
	Controller       string    `json:"controller_type"`
	Overtaking       bool      `json:"overtaking"`
	AeroDownforce    float64   `json:"aero_downforce"`
	PitstopHistory   []PitStop `json:"pitstop_history,omitempty"`
	PitstopCount     int       `json:"pitstop_count"`
	TimeInterval     float64   `json:"time_interval"`     // gap to leader, seconds
	DistanceInterval float64   `json:"distance_interval"` // gap to leader, meters

	// HasAngle records whether the payload carried an explicit angle.
	// Sources without one fall back to displacement-derived heading in
	// the interpolator.
	HasAngle bool `json:"-"`
}

// UnmarshalJSON decodes a car, noting whether the angle field was present.
func (c *CarState) UnmarshalJSON(data []byte) error {
	type alias CarState
	aux := struct {
		*alias
		Angle *float64 `json:"angle"`
	}{alias: (*alias)(c)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	if aux.Angle != nil {
		c.Angle = *aux.Angle
		c.HasAngle = true
	}
	return nil
}

// Event is a derived or server-reported race occurrence, surfaced to the
// display layers as a bounded recent-events feed.
type Event struct {
	Type    string  `json:"type"`
	Car     string  `json:"car"`
	Target  string  `json:"target,omitempty"` // car displaced by an overtake
	Lap     int     `json:"lap,omitempty"`
	SimTime float64 `json:"time"`
}

// Event types.
const (
	EventOvertake    = "overtake"
	EventPitIn       = "pit_in"
	EventPitOut      = "pit_out"
	EventLapComplete = "lap_complete"
	EventFastestLap  = "fastest_lap"
)

// UndercutEntry is a server-computed strategy note carried through to the
// display layers unmodified.
type UndercutEntry struct {
	Car        string  `json:"car"`
	Rival      string  `json:"rival"`
	Lap        int     `json:"lap"`
	TimeGained float64 `json:"time_gained"`
}

// Snapshot is one complete authoritative race-state push. The zero value
// is not useful; use EmptySnapshot before the first message arrives.
type Snapshot struct {
	SimTime          float64         `json:"time"`
	Cars             []CarState      `json:"cars"`
	Weather          Weather         `json:"weather"`
	TotalLaps        int             `json:"total_laps"`
	TyreDistribution map[string]int  `json:"tyre_distribution"`
	RaceStarted      bool            `json:"race_started"`
	RaceFinished     bool            `json:"race_finished"`
	Events           []Event         `json:"race_events,omitempty"`
	UndercutSummary  []UndercutEntry `json:"undercut_summary,omitempty"`
}

// EmptySnapshot returns the default "empty race" snapshot used before any
// server message has been ingested.
func EmptySnapshot() *Snapshot {
	return &Snapshot{
		Cars:             []CarState{},
		TyreDistribution: map[string]int{},
	}
}

// Validate checks the structural invariants a snapshot must satisfy before
// it may replace the current one. Messages failing validation are dropped.
func (s *Snapshot) Validate() error {
	seen := make(map[string]struct{}, len(s.Cars))
	for i := range s.Cars {
		name := s.Cars[i].Name
		if name == "" {
			return fmt.Errorf("car %d has empty name", i)
		}
		if _, dup := seen[name]; dup {
			return fmt.Errorf("duplicate car name %q", name)
		}
		seen[name] = struct{}{}
	}
	if s.SimTime < 0 {
		return fmt.Errorf("negative sim time %f", s.SimTime)
	}
	return nil
}

// CarByName returns the car with the given name, or nil.
func (s *Snapshot) CarByName(name string) *CarState {
	for i := range s.Cars {
		if s.Cars[i].Name == name {
			return &s.Cars[i]
		}
	}
	return nil
}

// Leader returns the car holding race position 1, or nil.
func (s *Snapshot) Leader() *CarState {
	for i := range s.Cars {
		if s.Cars[i].RacePosition == 1 {
			return &s.Cars[i]
		}
	}
	return nil
}

// TrackPayload is the one-time static track geometry delivered on connect
// (or fetched over HTTP when the stream joined too late to see it).
type TrackPayload struct {
	Points      [][]float64 `json:"points"` // [[x,y], ...]
	TotalLength float64     `json:"total_length"`
}

// Validate rejects track payloads that cannot form a closed centerline.
func (p *TrackPayload) Validate() error {
	if len(p.Points) < 3 {
		return fmt.Errorf("track payload has %d points, need at least 3", len(p.Points))
	}
	for i, pt := range p.Points {
		if len(pt) < 2 {
			return fmt.Errorf("track point %d has %d coordinates, need 2", i, len(pt))
		}
	}
	return nil
}
