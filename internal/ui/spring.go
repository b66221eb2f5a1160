package ui

import "github.com/charmbracelet/harmonica"

// springField eases a row of meter values toward their targets so EQ and
// volume changes glide instead of jumping.
type springField struct {
	spring harmonica.Spring
	pos    []float64
	vel    []float64
}

func newSpringField(n int, fps int, frequency, damping float64) springField {
	return springField{
		spring: harmonica.NewSpring(harmonica.FPS(fps), frequency, damping),
		pos:    make([]float64, n),
		vel:    make([]float64, n),
	}
}

// snap jumps meter i straight to v.
func (s *springField) snap(i int, v float64) {
	s.pos[i] = v
	s.vel[i] = 0
}

func (s *springField) step(i int, target float64) float64 {
	p, v := s.spring.Update(s.pos[i], s.vel[i], target)
	s.pos[i] = p
	s.vel[i] = v
	return p
}

func (s *springField) value(i int) float64 { return s.pos[i] }
