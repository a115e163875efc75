package testutil

import (
	"encoding/json"
	"math"
	"testing"
)

func TestOvalCenterline(t *testing.T) {
	t.Parallel()

	points := OvalCenterline(16, 100, 60)
	if len(points) != 16 {
		t.Fatalf("got %d points, want 16", len(points))
	}

	// First point sits on the +x axis; loop is open (no duplicated point).
	if math.Abs(points[0][0]-100) > 1e-9 || math.Abs(points[0][1]) > 1e-9 {
		t.Errorf("first point = %v, want (100,0)", points[0])
	}
	last := points[len(points)-1]
	if math.Abs(last[0]-points[0][0]) < 1e-9 && math.Abs(last[1]-points[0][1]) < 1e-9 {
		t.Error("last point duplicates the first; centerline must be implicitly closed")
	}

	// Every point lies on the ellipse.
	for i, p := range points {
		r := (p[0]/100)*(p[0]/100) + (p[1]/60)*(p[1]/60)
		if math.Abs(r-1) > 1e-9 {
			t.Errorf("point %d off the ellipse: %v", i, p)
		}
	}
}

func TestTrackMessageJSON(t *testing.T) {
	t.Parallel()

	raw := TrackMessageJSON([][2]float64{{0, 0}, {10, 0}, {10, 5}}, 25.5)

	var msg struct {
		Type string `json:"type"`
		Data struct {
			Points      [][]float64 `json:"points"`
			TotalLength float64     `json:"total_length"`
		} `json:"data"`
	}
	if err := json.Unmarshal(raw, &msg); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if msg.Type != "track" {
		t.Errorf("type = %q, want track", msg.Type)
	}
	if len(msg.Data.Points) != 3 {
		t.Errorf("got %d points, want 3", len(msg.Data.Points))
	}
	if msg.Data.TotalLength != 25.5 {
		t.Errorf("total_length = %v, want 25.5", msg.Data.TotalLength)
	}
}

func TestStateMessageJSON(t *testing.T) {
	t.Parallel()

	raw := StateMessageJSON(12.5, true,
		CarFixture{Name: "Max Verstappen", X: 5, Y: -3, Angle: 1.2, Speed: 280},
		CarFixture{Name: "Lando Norris", X: 7, Y: -2, Angle: 1.1, Speed: 276},
	)

	var msg struct {
		Time        float64 `json:"time"`
		RaceStarted bool    `json:"race_started"`
		Cars        []struct {
			Name     string  `json:"name"`
			Position int     `json:"position"`
			X        float64 `json:"x"`
		} `json:"cars"`
	}
	if err := json.Unmarshal(raw, &msg); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if msg.Time != 12.5 || !msg.RaceStarted {
		t.Errorf("header = %+v, want time=12.5 race_started=true", msg)
	}
	if len(msg.Cars) != 2 {
		t.Fatalf("got %d cars, want 2", len(msg.Cars))
	}
	// Rank defaults to slice order when unset.
	if msg.Cars[0].Position != 1 || msg.Cars[1].Position != 2 {
		t.Errorf("positions = %d,%d, want 1,2", msg.Cars[0].Position, msg.Cars[1].Position)
	}
	if msg.Cars[1].Name != "Lando Norris" {
		t.Errorf("second car = %q", msg.Cars[1].Name)
	}
}
