package visualizer

import (
	"github.com/lucasb-eyer/go-colorful"
)

// Layout is the surface's size in logical units and its device pixel ratio.
type Layout struct {
	Width, Height float64
	PixelRatio    float64
}

// Point is a position in logical units.
type Point struct{ X, Y float64 }

// Surface is a 2D drawing target. Coordinates are logical; the surface
// multiplies them by the scale set with SetScale.
type Surface interface {
	Layout() Layout
	// Resize reallocates the backing buffer in device pixels.
	Resize(width, height int)
	SetScale(ratio float64)

	Clear()
	FillRect(x, y, w, h float64, p Paint)
	FillCircle(cx, cy, radius float64, p Paint)
	StrokeLine(x1, y1, x2, y2, width float64, p Paint)
	StrokePath(pts []Point, width float64, p Paint)
}

// Presenter is implemented by surfaces that double buffer. Present is
// called after every completed frame.
type Presenter interface {
	Present()
}

// Paint is a solid color with alpha, or a linear gradient when Gradient is
// set.
type Paint struct {
	Color    colorful.Color
	Alpha    float64
	Gradient *Gradient
}

// Solid returns an opaque paint.
func Solid(c colorful.Color) Paint {
	return Paint{Color: c, Alpha: 1}
}

// At returns the paint's color and alpha at a logical position.
func (p Paint) At(x, y float64) (colorful.Color, float64) {
	if p.Gradient == nil {
		return p.Color, p.Alpha
	}
	return p.Gradient.At(x, y)
}

// Stop is one gradient color stop; Offset is in [0, 1].
type Stop struct {
	Offset float64
	Color  colorful.Color
	Alpha  float64
}

// Gradient interpolates its stops along the line (X0,Y0)-(X1,Y1). Points
// beyond either end take the end color.
type Gradient struct {
	X0, Y0, X1, Y1 float64
	Stops          []Stop
}

// At projects (x, y) onto the gradient line and interpolates.
func (g *Gradient) At(x, y float64) (colorful.Color, float64) {
	if len(g.Stops) == 0 {
		return colorful.Color{}, 0
	}
	dx, dy := g.X1-g.X0, g.Y1-g.Y0
	var t float64
	if den := dx*dx + dy*dy; den > 0 {
		t = ((x-g.X0)*dx + (y-g.Y0)*dy) / den
	}
	first, last := g.Stops[0], g.Stops[len(g.Stops)-1]
	if t <= first.Offset {
		return first.Color, first.Alpha
	}
	if t >= last.Offset {
		return last.Color, last.Alpha
	}
	for i := 1; i < len(g.Stops); i++ {
		b := g.Stops[i]
		if t > b.Offset {
			continue
		}
		a := g.Stops[i-1]
		span := b.Offset - a.Offset
		if span <= 0 {
			return b.Color, b.Alpha
		}
		f := (t - a.Offset) / span
		return a.Color.BlendRgb(b.Color, f), a.Alpha + (b.Alpha-a.Alpha)*f
	}
	return last.Color, last.Alpha
}
