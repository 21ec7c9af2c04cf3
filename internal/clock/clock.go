// Package clock implements the simulation clock: the mapping from wall time
// to the simulated Julian Date that every position is computed at.
//
// The clock is an anchor (a wall time and the Julian Date it corresponds to)
// plus a speed multiplier. Between mutations the simulated date is a pure
// function of wall time, so callers can ask for the date at any future wall
// time when precomputing keyframes.
package clock

import (
	"math"
	"sync"
	"time"

	"github.com/star/orrery/internal/transform"
)

// MaxSpeed bounds the speed multiplier in either direction.
const MaxSpeed = 10000.0

// speedStep is the ratio between neighbouring rungs of the speed ladder.
const speedStep = 10.0

// State is a point-in-time view of the clock.
type State struct {
	AnchorWall time.Time `json:"anchor_wall"`
	AnchorJD   float64   `json:"anchor_jd"`
	Speed      float64   `json:"speed"`
	Paused     bool      `json:"paused"`
	Revision   uint64    `json:"revision"`
}

// JulianAt returns the simulated Julian Date at the given wall time.
func (s State) JulianAt(wall time.Time) float64 {
	if s.Paused {
		return s.AnchorJD
	}
	elapsed := wall.Sub(s.AnchorWall).Seconds()
	return s.AnchorJD + elapsed*s.Speed/86400
}

// Clock is safe for concurrent use.
type Clock struct {
	mu    sync.RWMutex
	state State
	now   func() time.Time
}

// New creates a clock anchored at the current wall time and Julian Date,
// running at the given speed.
func New(speed float64) *Clock {
	return newWithNow(speed, time.Now)
}

func newWithNow(speed float64, now func() time.Time) *Clock {
	wall := now()
	return &Clock{
		state: State{
			AnchorWall: wall,
			AnchorJD:   transform.DateToJulian(wall),
			Speed:      clampSpeed(speed),
		},
		now: now,
	}
}

// Snapshot returns the current state.
func (c *Clock) Snapshot() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// JulianAt returns the simulated Julian Date at the given wall time.
func (c *Clock) JulianAt(wall time.Time) float64 {
	return c.Snapshot().JulianAt(wall)
}

// Now returns the simulated Julian Date at the current wall time.
func (c *Clock) Now() float64 {
	return c.JulianAt(c.now())
}

// Revision increases on every mutation. Consumers holding precomputed
// positions compare revisions to detect that they are stale.
func (c *Clock) Revision() uint64 {
	return c.Snapshot().Revision
}

// Speed returns the current speed multiplier.
func (c *Clock) Speed() float64 {
	return c.Snapshot().Speed
}

// SetSpeed changes the speed multiplier, clamped to ±MaxSpeed.
func (c *Clock) SetSpeed(speed float64) State {
	return c.mutate(func(s *State) { s.Speed = clampSpeed(speed) })
}

// Faster moves one rung up the speed ladder
// -MaxSpeed, …, -10, -1, 1, 10, …, MaxSpeed: reverse speeds shrink towards
// -1 and -1 flips to 1. Speeds between -1 and 1, including a stopped clock,
// go straight to 1.
func (c *Clock) Faster() State {
	return c.mutate(func(s *State) { s.Speed = fasterSpeed(s.Speed) })
}

// Slower moves one rung down the speed ladder, mirroring Faster.
func (c *Clock) Slower() State {
	return c.mutate(func(s *State) { s.Speed = slowerSpeed(s.Speed) })
}

func fasterSpeed(v float64) float64 {
	switch {
	case v < -1:
		return roundHalfUp(v / speedStep)
	case v < 1:
		return 1
	}
	return roundHalfUp(math.Min(v*speedStep, MaxSpeed))
}

func slowerSpeed(v float64) float64 {
	switch {
	case v > 1:
		return roundHalfUp(v / speedStep)
	case v > -1:
		return -1
	}
	return roundHalfUp(math.Max(v*speedStep, -MaxSpeed))
}

// roundHalfUp rounds to the nearest integer with halves going towards +∞,
// so -2.5 becomes -2 and 2.5 becomes 3.
func roundHalfUp(v float64) float64 {
	return math.Floor(v + 0.5)
}

// Pause freezes the simulated date.
func (c *Clock) Pause() State {
	return c.mutate(func(s *State) { s.Paused = true })
}

// Resume continues from the date the clock was paused at.
func (c *Clock) Resume() State {
	return c.mutate(func(s *State) { s.Paused = false })
}

// Set jumps the simulated date to jd.
func (c *Clock) Set(jd float64) State {
	return c.mutate(func(s *State) { s.AnchorJD = jd })
}

// mutate re-anchors at the current wall time before applying f so that the
// simulated date is continuous across speed and pause changes.
func (c *Clock) mutate(f func(*State)) State {
	c.mu.Lock()
	defer c.mu.Unlock()

	wall := c.now()
	c.state.AnchorJD = c.state.JulianAt(wall)
	c.state.AnchorWall = wall
	f(&c.state)
	c.state.Revision++
	return c.state
}

func clampSpeed(v float64) float64 {
	if math.IsNaN(v) {
		return 1
	}
	return math.Max(-MaxSpeed, math.Min(MaxSpeed, v))
}
