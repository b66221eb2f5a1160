package engine

import (
	"math"
	"sync/atomic"
)

// Param is a float64 written by the control side and sampled by the render
// goroutine once per quantum. Concurrent writers race; the last store wins.
type Param struct {
	bits atomic.Uint64
}

func newParam(v float64) *Param {
	p := &Param{}
	p.Set(v)
	return p
}

// Set stores v.
func (p *Param) Set(v float64) { p.bits.Store(math.Float64bits(v)) }

// Get loads the current value.
func (p *Param) Get() float64 { return math.Float64frombits(p.bits.Load()) }

// ramp moves from a previous value to a target linearly over one quantum so
// a gain change never jumps between two consecutive samples.
type ramp struct {
	current float64
	primed  bool
}

// step returns the start value and per-sample increment toward target over
// n samples, and records target as the new current value.
func (r *ramp) step(target float64, n int) (start, inc float64) {
	if !r.primed {
		r.current = target
		r.primed = true
	}
	start = r.current
	if n > 0 {
		inc = (target - start) / float64(n)
	}
	r.current = target
	return start, inc
}
