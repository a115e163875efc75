package sim

import (
	"math"
	"math/rand"
	"sort"
	"time"

	"github.com/Darshbir/toyota-gr-sim/internal/race"
	"github.com/Darshbir/toyota-gr-sim/internal/units"
)

// Tyre compounds.
const (
	TyreSoft         = "SOFT"
	TyreMedium       = "MEDIUM"
	TyreHard         = "HARD"
	TyreIntermediate = "INTERMEDIATE"
	TyreWet          = "WET"
)

// compoundSpec holds the per-compound performance trade-off: stickier
// rubber is faster and wears quicker.
type compoundSpec struct {
	grip     float64
	wearRate float64
	heat     float64
}

var compounds = map[string]compoundSpec{
	TyreSoft:         {grip: 1.00, wearRate: 2.0, heat: 1.2},
	TyreMedium:       {grip: 0.95, wearRate: 1.0, heat: 1.0},
	TyreHard:         {grip: 0.90, wearRate: 0.5, heat: 0.8},
	TyreIntermediate: {grip: 0.82, wearRate: 1.1, heat: 0.85},
	TyreWet:          {grip: 0.78, wearRate: 1.2, heat: 0.9},
}

func compoundFor(tyre string) compoundSpec {
	if spec, ok := compounds[tyre]; ok {
		return spec
	}
	return compoundSpec{grip: 0.95, wearRate: 1.0, heat: 1.0}
}

var dryCompounds = []string{TyreSoft, TyreMedium, TyreHard}

const (
	pitStopSeconds   = 22.0
	corneringBudget  = 12.0 // grip-to-lateral-speed constant
	gridSpreadFactor = 0.6  // fraction of even spacing used on the grid
	maxUndercuts     = 5
)

var driverNames = []string{
	"Kenta Yamashiro", "Rafael Moreira", "Jonas Keller", "Takumi Sasaki",
	"Elias Vance", "Mateo Ibarra", "Oliver Hale", "Daichi Kobayakawa",
	"Luca Ferrand", "Noah Lindqvist", "Arjun Mehta", "Felipe Duarte",
	"Tomas Novak", "Ryo Katase", "Emil Sorensen", "Theo Marchetti",
	"Hugo Batista", "Sota Imamura", "Marco Ruiz", "Jack Whitfield",
}

var driverColors = []string{
	"#00D2BE", "#0600EF", "#DC0000", "#FF8700", "#DC0000",
	"#0600EF", "#00D2BE", "#006F62", "#FF8700", "#006F62",
	"#1E41FF", "#FF1800", "#00D4AB", "#E10600", "#00665E",
	"#FFB800", "#000000", "#FFFFFF", "#0090FF", "#FF6B00",
}

// Car is one entrant's live state. Distance grows without wrapping; the
// track wraps it when resolving world positions, and laps are counted off
// whole multiples of the circuit length.
type Car struct {
	Name       string
	Color      string
	Skill      float64 // 0.75..1.0
	Aggression float64 // 0.3..1.0

	Tyre     string
	Wear     float64 // 0..0.99
	Fuel     float64 // percent
	TyreTemp float64 // celsius

	Distance float64 // arc meters since the grid
	Speed    float64 // m/s
	Laps     int
	Rank     int

	// TotalTime accumulates penalty time only (pit stops, incidents);
	// it is the leaderboard tiebreak and the basis of reported gaps.
	TotalTime float64

	OnPit    bool
	PitTimer float64
	PitStops []race.PitStop

	BestLap float64

	lapStart    float64
	lapValid    bool // first crossing closes a partial lap
	braking     bool
	drs         bool
	timeGap     float64
	distanceGap float64
}

// Config holds the race parameters.
type Config struct {
	CarCount  int
	TotalLaps int
	TimeStep  float64 // seconds per Step call
	Seed      int64   // 0 seeds from the wall clock
	Weather   *race.Weather
}

func (c *Config) applyDefaults() {
	if c.CarCount <= 0 {
		c.CarCount = 20
	}
	// Names must stay unique or clients reject the payload.
	if c.CarCount > len(driverNames) {
		c.CarCount = len(driverNames)
	}
	if c.TotalLaps <= 0 {
		c.TotalLaps = 36
	}
	if c.TimeStep <= 0 {
		c.TimeStep = 0.5
	}
	if c.Seed == 0 {
		c.Seed = time.Now().UnixNano()
	}
	if c.Weather == nil {
		c.Weather = &race.Weather{Rain: 0.15, TrackTemp: 22.0, Wind: 3.0}
	}
}

// Race is the synthetic race. It is not safe for concurrent use; the
// relay serializes access.
type Race struct {
	cfg   Config
	track *Track
	rng   *rand.Rand

	cars     []*Car
	simTime  float64
	started  bool
	finished bool
	weather  race.Weather

	fastestLap float64
	fastestBy  string

	events     []race.Event // drained into the next state payload
	undercuts  []race.UndercutEntry
	prevRank   map[string]int
	lastPitLap map[string]int
}

// New creates a race on the given track with a fresh grid. The race does
// not advance until Start is called.
func New(track *Track, cfg Config) *Race {
	cfg.applyDefaults()
	r := &Race{
		cfg:     cfg,
		track:   track,
		rng:     rand.New(rand.NewSource(cfg.Seed)),
		weather: *cfg.Weather,
	}
	r.grid()
	return r
}

// grid builds the field spread along the first part of the lap.
func (r *Race) grid() {
	r.cars = make([]*Car, 0, r.cfg.CarCount)
	spacing := r.track.Length() / float64(r.cfg.CarCount) * gridSpreadFactor
	for i := 0; i < r.cfg.CarCount; i++ {
		c := &Car{
			Name:       driverNames[i%len(driverNames)],
			Color:      driverColors[i%len(driverColors)],
			Skill:      0.75 + r.rng.Float64()*0.25,
			Aggression: 0.3 + r.rng.Float64()*0.7,
			Tyre:       dryCompounds[r.rng.Intn(len(dryCompounds))],
			Fuel:       100.0,
			TyreTemp:   r.weather.TrackTemp + 10.0,
			Distance:   float64(i) * spacing,
		}
		r.cars = append(r.cars, c)
	}
	r.prevRank = make(map[string]int)
	r.lastPitLap = make(map[string]int)
}

// Start lets Step advance the field.
func (r *Race) Start() { r.started = true }

// Reset returns every car to the grid with fresh tyres and clears all
// race bookkeeping. Driver identities and skills are kept so clients see
// a stable roster across races.
func (r *Race) Reset() {
	r.simTime = 0
	r.started = false
	r.finished = false
	r.fastestLap = 0
	r.fastestBy = ""
	r.events = nil
	r.undercuts = nil
	r.prevRank = make(map[string]int)
	r.lastPitLap = make(map[string]int)

	spacing := r.track.Length() / float64(len(r.cars)) * gridSpreadFactor
	for i, c := range r.cars {
		c.Distance = float64(i) * spacing
		c.Speed = 0
		c.Laps = 0
		c.TotalTime = 0
		c.Wear = 0
		c.Fuel = 100.0
		c.OnPit = false
		c.PitTimer = 0
		c.PitStops = nil
		c.Tyre = dryCompounds[r.rng.Intn(len(dryCompounds))]
		c.TyreTemp = r.weather.TrackTemp + 10.0
		c.BestLap = 0
		c.lapStart = 0
		c.lapValid = false
		c.braking = false
		c.drs = false
	}
}

// SetWeather replaces the ambient conditions for the next race phase.
func (r *Race) SetWeather(w race.Weather) { r.weather = w }

func (r *Race) gripCoeff(c *Car) float64 {
	spec := compoundFor(c.Tyre)
	grip := spec.grip * (1 - 0.6*c.Wear)
	rain := r.weather.Rain
	switch c.Tyre {
	case TyreWet:
		grip *= 1 + 0.5*rain
	case TyreIntermediate:
		if rain > 0.3 {
			grip *= 1 + 0.3*rain
		} else {
			grip *= 1 - 0.5*rain
		}
	default:
		grip *= 1 - 0.9*rain
	}
	grip *= 0.8 + 0.4*c.Skill
	return math.Max(grip, 0.05)
}

func (r *Race) corneringSpeed(c *Car, curvature float64) float64 {
	curv := math.Max(curvature, 1e-6)
	v := math.Sqrt(r.gripCoeff(c) * corneringBudget / curv)
	return v * (1 - 0.001*c.Fuel)
}

func (r *Race) straightSpeed(c *Car) float64 {
	base := 80.0 + 20.0*c.Skill
	base *= 1 - 0.25*r.weather.Rain
	base *= 0.90 + 0.15*compoundFor(c.Tyre).grip
	base *= 0.95 + 0.1*r.gripCoeff(c)
	return base * (1 - 0.001*c.Fuel)
}

func (r *Race) errorProbability(c *Car) float64 {
	base := 0.0005 + 0.001*(1-c.Skill)
	p := base * (1 + 4*r.weather.Rain + 6*c.Wear + c.Aggression)
	return math.Min(p, 0.5)
}

// pitProbability ramps from 0 at 80% wear to certainty at full wear.
func pitProbability(c *Car) float64 {
	if c.Wear < 0.8 {
		return 0
	}
	return (c.Wear - 0.8) / 0.2
}

// tyreForWeather picks the compound fitted at a pit stop.
func (r *Race) tyreForWeather() string {
	switch rain := r.weather.Rain; {
	case rain > 0.6:
		return TyreWet
	case rain > 0.3:
		return TyreIntermediate
	default:
		return dryCompounds[r.rng.Intn(len(dryCompounds))]
	}
}

func (r *Race) pushEvent(eventType, car string, lap int) {
	r.events = append(r.events, race.Event{
		Type:    eventType,
		Car:     car,
		Lap:     lap,
		SimTime: r.simTime,
	})
}

// Step advances the race by one time step. Before Start, and after the
// final lap, it is a no-op.
func (r *Race) Step() {
	if !r.started || r.finished {
		return
	}
	dt := r.cfg.TimeStep
	length := r.track.Length()

	for _, c := range r.cars {
		if c.OnPit {
			c.PitTimer -= dt
			if c.PitTimer <= 0 {
				c.OnPit = false
				c.PitTimer = 0
				c.Tyre = r.tyreForWeather()
				c.Wear = 0
				c.TyreTemp = r.weather.TrackTemp + 10.0
				r.pushEvent(race.EventPitOut, c.Name, c.Laps)
			}
			continue
		}

		curv := r.track.CurvatureAt(c.Distance)
		curvAhead := r.track.CurvatureAt(c.Distance + c.Speed*2.0)
		target := math.Min(r.straightSpeed(c),
			math.Min(r.corneringSpeed(c, curv), r.corneringSpeed(c, curvAhead)))

		c.braking = c.Speed > target
		switch {
		case c.Speed > target+5.0:
			c.Speed -= 20.0 * dt
		case c.Speed > target:
			c.Speed -= 15.0 * dt
		case c.Speed < target:
			c.Speed += 6.0 * dt
		}
		c.Speed = math.Max(0, math.Min(c.Speed, target))

		if r.rng.Float64() < pitProbability(c)*dt {
			c.OnPit = true
			c.PitTimer = pitStopSeconds
			c.TotalTime += pitStopSeconds
			c.PitStops = append(c.PitStops, race.PitStop{Lap: c.Laps, Tyre: c.Tyre})
			r.lastPitLap[c.Name] = c.Laps
			r.pushEvent(race.EventPitIn, c.Name, c.Laps)
			continue
		}

		if r.rng.Float64() < r.errorProbability(c)*dt {
			switch roll := r.rng.Float64(); {
			case roll < 0.6:
				c.Speed *= 0.6
				c.TotalTime += 2.0
			case roll < 0.9:
				c.Speed = 0
				c.TotalTime += 6.0
			}
		}

		spec := compoundFor(c.Tyre)
		wearRate := 0.0005 * (1 + 0.8*(1-r.gripCoeff(c)))
		c.Wear = math.Min(c.Wear+wearRate*spec.wearRate*dt, 0.99)

		heatGen := 0.01 * c.Speed * (math.Abs(curv) * c.Speed) * spec.heat
		cooling := 0.05 * (c.TyreTemp - r.weather.TrackTemp)
		c.TyreTemp += (heatGen - cooling) * dt
		c.TyreTemp = math.Max(r.weather.TrackTemp, math.Min(c.TyreTemp, 150.0))

		c.Fuel = math.Max(0, c.Fuel-0.02*dt)

		before := c.Distance
		c.Distance += c.Speed * dt

		if math.Floor(c.Distance/length) > math.Floor(before/length) {
			c.Laps++
			crossTime := r.simTime + dt
			lapTime := crossTime - c.lapStart
			c.lapStart = crossTime
			r.pushEvent(race.EventLapComplete, c.Name, c.Laps)
			if c.lapValid {
				if c.BestLap == 0 || lapTime < c.BestLap {
					c.BestLap = lapTime
				}
				if r.fastestLap == 0 || lapTime < r.fastestLap {
					r.fastestLap = lapTime
					r.fastestBy = c.Name
					r.pushEvent(race.EventFastestLap, c.Name, c.Laps)
				}
			}
			c.lapValid = true
			if c.Laps >= r.cfg.TotalLaps {
				r.finished = true
			}
		}
	}
	r.simTime += dt
}

// leaderboard ranks the field and records overtakes against the previous
// ranking. Cars with more laps lead; within a lap, distance; penalty time
// breaks exact ties.
func (r *Race) leaderboard() []*Car {
	ranked := make([]*Car, len(r.cars))
	copy(ranked, r.cars)
	sort.SliceStable(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		if a.Laps != b.Laps {
			return a.Laps > b.Laps
		}
		if a.Distance != b.Distance {
			return a.Distance > b.Distance
		}
		return a.TotalTime < b.TotalTime
	})

	leaderLap := 0
	if len(ranked) > 0 {
		leaderLap = ranked[0].Laps
	}
	for i, c := range ranked {
		c.Rank = i + 1
		prev, seen := r.prevRank[c.Name]
		if seen && c.Rank < prev && i+1 < len(ranked) {
			displaced := ranked[i+1]
			r.events = append(r.events, race.Event{
				Type:    race.EventOvertake,
				Car:     c.Name,
				Target:  displaced.Name,
				Lap:     c.Laps,
				SimTime: r.simTime,
			})
			r.noteUndercut(c, displaced, leaderLap)
		}
		r.prevRank[c.Name] = c.Rank
	}
	return ranked
}

// noteUndercut records a strategy gain when a pass lands against a car
// that is stationary in the pits while the passer stopped recently.
func (r *Race) noteUndercut(passer, displaced *Car, leaderLap int) {
	if !displaced.OnPit {
		return
	}
	pitLap, stopped := r.lastPitLap[passer.Name]
	if !stopped || leaderLap-pitLap > 3 {
		return
	}
	gained := math.Max(0.5, pitStopSeconds-math.Abs(passer.TotalTime-displaced.TotalTime))
	r.undercuts = append(r.undercuts, race.UndercutEntry{
		Car:        passer.Name,
		Rival:      displaced.Name,
		Lap:        leaderLap,
		TimeGained: gained,
	})
	if len(r.undercuts) > maxUndercuts {
		r.undercuts = r.undercuts[len(r.undercuts)-maxUndercuts:]
	}
}

// StatePayload assembles the wire snapshot broadcast to clients. Events
// accumulated since the previous payload are drained into it.
func (r *Race) StatePayload() *race.Snapshot {
	ranked := r.leaderboard()

	if len(ranked) > 0 {
		leader := ranked[0]
		for i, c := range ranked {
			c.timeGap = c.TotalTime - leader.TotalTime
			c.distanceGap = c.Distance - leader.Distance
			c.drs = i > 0 && !c.OnPit &&
				ranked[i-1].Distance-c.Distance < c.Speed*1.0
		}
	}

	tyres := make(map[string]int, len(compounds))
	for _, c := range r.cars {
		tyres[c.Tyre]++
	}

	cars := make([]race.CarState, len(r.cars))
	for i, c := range r.cars {
		x, y := r.track.PosAt(c.Distance)
		throttle, brake := 0.8, 0.0
		if c.braking {
			throttle, brake = 0.0, 0.6
		}
		if c.OnPit {
			throttle, brake = 0.0, 0.0
		}
		cars[i] = race.CarState{
			Name:             c.Name,
			Color:            c.Color,
			RacePosition:     c.Rank,
			Laps:             c.Laps,
			TyreWear:         c.Wear,
			TyreCompound:     c.Tyre,
			Fuel:             c.Fuel,
			Speed:            units.MPSToKPH(c.Speed),
			X:                x,
			Y:                y,
			Angle:            r.track.HeadingAt(c.Distance),
			TotalTime:        c.TotalTime,
			OnPit:            c.OnPit,
			RPM:              4500 + 85*c.Speed,
			Gear:             gearFor(c.Speed),
			Throttle:         throttle,
			Brake:            brake,
			TyreTemp:         c.TyreTemp,
			DRSActive:        c.drs,
			ERSEnergy:        100 - 50*c.Wear,
			Controller:       "pure_pursuit",
			AeroDownforce:    0.35 * c.Speed * c.Speed,
			PitstopHistory:   c.PitStops,
			PitstopCount:     len(c.PitStops),
			TimeInterval:     c.timeGap,
			DistanceInterval: c.distanceGap,
		}
	}

	events := r.events
	r.events = nil

	var undercuts []race.UndercutEntry
	if len(r.undercuts) > 0 {
		undercuts = append(undercuts, r.undercuts...)
	}

	return &race.Snapshot{
		SimTime:          r.simTime,
		Cars:             cars,
		Weather:          r.weather,
		TotalLaps:        r.cfg.TotalLaps,
		TyreDistribution: tyres,
		RaceStarted:      r.started,
		RaceFinished:     r.finished,
		Events:           events,
		UndercutSummary:  undercuts,
	}
}

func gearFor(speed float64) int {
	gear := 1 + int(speed/14.0)
	if gear > 8 {
		gear = 8
	}
	return gear
}

// Started reports whether the race is underway.
func (r *Race) Started() bool { return r.started }

// Finished reports whether a car has completed the final lap.
func (r *Race) Finished() bool { return r.finished }

// SimTime returns the accumulated simulation time in seconds.
func (r *Race) SimTime() float64 { return r.simTime }

// TotalLaps returns the race distance.
func (r *Race) TotalLaps() int { return r.cfg.TotalLaps }

// Weather returns the current ambient conditions.
func (r *Race) Weather() race.Weather { return r.weather }

// Cars exposes the live field, primarily for tests and diagnostics.
func (r *Race) Cars() []*Car { return r.cars }

// Track returns the circuit the race runs on.
func (r *Race) Track() *Track { return r.track }

// FastestLap returns the best lap time seen so far and who set it; zero
// until a full lap has been completed.
func (r *Race) FastestLap() (float64, string) { return r.fastestLap, r.fastestBy }
