package engine

import (
	"sync"
	"time"
)

// ABStage is where the A/B repeat state machine stands.
type ABStage uint8

const (
	ABNone ABStage = iota
	// ABSet means point A is recorded.
	ABSet
	// ABActive loops between A and B.
	ABActive
)

func (s ABStage) String() string {
	switch s {
	case ABSet:
		return "a-set"
	case ABActive:
		return "active"
	default:
		return "none"
	}
}

// ABRegion is the loop the watcher enforces.
type ABRegion struct {
	A, B  time.Duration
	Stage ABStage
}

type abRepeat struct {
	mu          sync.Mutex
	region      ABRegion
	token       uint64
	unsubscribe func()
}

// ABRepeat returns the current region.
func (e *Engine) ABRepeat() ABRegion {
	e.ab.mu.Lock()
	defer e.ab.mu.Unlock()
	return e.ab.region
}

// MarkA records point A. It moves none to a-set and re-marks A while in
// a-set. An active loop must be cleared first; MarkA then reports false.
func (e *Engine) MarkA(pos time.Duration) bool {
	e.ab.mu.Lock()
	defer e.ab.mu.Unlock()
	if e.ab.region.Stage == ABActive {
		return false
	}
	e.ab.region = ABRegion{A: max(pos, 0), Stage: ABSet}
	return true
}

// SetABRepeat starts looping between a and b. It only acts from a-set and
// only when b > a; b is first clamped to the primary transport's duration
// when that is known. On success the primary transport's position updates
// seek back to a whenever they reach b.
func (e *Engine) SetABRepeat(a, b time.Duration) bool {
	a = max(a, 0)
	t := e.Primary()
	if t != nil {
		if d := t.Duration(); d > 0 && b > d {
			b = d
		}
	}

	e.ab.mu.Lock()
	if e.ab.region.Stage != ABSet || b <= a {
		e.ab.mu.Unlock()
		return false
	}
	e.ab.region = ABRegion{A: a, B: b, Stage: ABActive}
	e.ab.token++
	token := e.ab.token
	prev := e.ab.unsubscribe
	e.ab.unsubscribe = nil
	e.ab.mu.Unlock()

	if prev != nil {
		prev()
	}
	if t == nil {
		return true
	}

	unsub := t.Subscribe(func(pos time.Duration) { e.abWatch(t, token, pos) })
	e.ab.mu.Lock()
	if e.ab.token == token {
		e.ab.unsubscribe = unsub
		unsub = nil
	}
	e.ab.mu.Unlock()
	if unsub != nil {
		unsub()
	}
	return true
}

func (e *Engine) abWatch(t Transport, token uint64, pos time.Duration) {
	e.ab.mu.Lock()
	r := e.ab.region
	live := e.ab.token == token && r.Stage == ABActive
	e.ab.mu.Unlock()

	if !live || pos < r.B {
		return
	}
	if err := t.SeekTo(r.A); err != nil {
		e.log.WithError(err).WithField("point_a", r.A).Warn("a/b repeat seek failed")
	}
}

// ClearABRepeat removes the watcher and returns to none from any stage.
func (e *Engine) ClearABRepeat() {
	e.ab.mu.Lock()
	e.ab.region = ABRegion{}
	e.ab.token++
	unsub := e.ab.unsubscribe
	e.ab.unsubscribe = nil
	e.ab.mu.Unlock()

	if unsub != nil {
		unsub()
	}
}

// CycleABRepeat advances the state machine the way a single repeat button
// does: none marks A at pos, a-set tries to close the loop at pos, active
// clears. It returns the resulting stage.
func (e *Engine) CycleABRepeat(pos time.Duration) ABStage {
	switch e.ABRepeat().Stage {
	case ABNone:
		e.MarkA(pos)
	case ABSet:
		e.SetABRepeat(e.ABRepeat().A, pos)
	default:
		e.ClearABRepeat()
	}
	return e.ABRepeat().Stage
}
