// Package tunable holds the handful of motion parameters we adjust at
// the table with the hub buttons, without rebuilding or editing YAML.
// Values are fixed-point int64s so reads from the control loop are a
// single atomic load.
package tunable

import (
	"fmt"
	"sync/atomic"
)

// Tunable is one adjustable parameter.  Scale converts the stored
// integer to the float the motion code consumes (e.g. a scale of 0.01
// stores centidegrees).  Bumping past Max wraps to Min and vice versa,
// so a single button can reach every value.
type Tunable struct {
	Name     string
	Step     int
	Min, Max int
	Scale    float64

	value atomic.Int64
}

func (t *Tunable) Bump(direction int) {
	// Single writer (the button loop); the atomic is for the readers.
	v := int(t.value.Load()) + direction*t.Step
	if v > t.Max {
		v = t.Min
	} else if v < t.Min {
		v = t.Max
	}
	t.value.Store(int64(v))
	fmt.Printf("TUNABLE: %s = %v\n", t.Name, float64(v)*t.Scale)
}

func (t *Tunable) Get() int {
	return int(t.value.Load())
}

func (t *Tunable) GetFloat() float64 {
	return float64(t.value.Load()) * t.Scale
}

func (t *Tunable) Set(v int) {
	t.value.Store(int64(v))
}

// Set is the registry plus a cursor for the button UI: left/right move
// between tunables, up/down bump the selected one.
type Set struct {
	All      []*Tunable
	selected int
}

func (s *Set) Create(name string, value, step, min, max int, scale float64) *Tunable {
	t := &Tunable{
		Name:  name,
		Step:  step,
		Min:   min,
		Max:   max,
		Scale: scale,
	}
	t.value.Store(int64(value))
	s.All = append(s.All, t)
	return t
}

func (s *Set) SelectNext() {
	s.selected++
	if s.selected >= len(s.All) {
		s.selected = 0
	}
	cur := s.Current()
	fmt.Printf("TUNABLE: %s selected, value %v\n", cur.Name, cur.GetFloat())
}

func (s *Set) SelectPrev() {
	s.selected--
	if s.selected < 0 {
		s.selected = len(s.All) - 1
	}
	cur := s.Current()
	fmt.Printf("TUNABLE: %s selected, value %v\n", cur.Name, cur.GetFloat())
}

func (s *Set) Current() *Tunable {
	return s.All[s.selected]
}
