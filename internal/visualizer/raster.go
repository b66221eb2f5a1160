package visualizer

import (
	"image"
	"image/color"
	"math"
	"sync"

	"github.com/lucasb-eyer/go-colorful"
	"golang.org/x/image/vector"
)

const circleSegments = 32

// RasterSurface draws into a double-buffered RGBA image with anti-aliased
// vector fills. It is safe for one drawing goroutine and any number of
// readers calling Snapshot.
type RasterSurface struct {
	mu     sync.Mutex
	layout Layout
	scale  float64
	back   *image.RGBA
	front  *image.RGBA
	z      *vector.Rasterizer
}

// NewRasterSurface returns a surface reporting layout l. The backing buffer
// is allocated on the renderer's first frame.
func NewRasterSurface(l Layout) *RasterSurface {
	return &RasterSurface{layout: l, scale: 1}
}

// SetLayout changes the reported size. The renderer picks it up on its next
// frame.
func (s *RasterSurface) SetLayout(l Layout) {
	s.mu.Lock()
	s.layout = l
	s.mu.Unlock()
}

func (s *RasterSurface) Layout() Layout {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.layout
}

func (s *RasterSurface) Resize(width, height int) {
	width, height = max(width, 0), max(height, 0)
	s.mu.Lock()
	defer s.mu.Unlock()
	r := image.Rect(0, 0, width, height)
	s.back = image.NewRGBA(r)
	s.front = image.NewRGBA(r)
	if s.z == nil {
		s.z = vector.NewRasterizer(width, height)
	} else {
		s.z.Reset(width, height)
	}
}

func (s *RasterSurface) SetScale(ratio float64) {
	if !(ratio > 0) {
		ratio = 1
	}
	s.mu.Lock()
	s.scale = ratio
	s.mu.Unlock()
}

// Bounds returns the backing buffer size in device pixels.
func (s *RasterSurface) Bounds() image.Rectangle {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.back == nil {
		return image.Rectangle{}
	}
	return s.back.Bounds()
}

func (s *RasterSurface) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.back != nil {
		clear(s.back.Pix)
	}
}

// Present publishes the back buffer to Snapshot readers.
func (s *RasterSurface) Present() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.back != nil {
		copy(s.front.Pix, s.back.Pix)
	}
}

// Snapshot returns a copy of the last presented frame, or nil before the
// first one.
func (s *RasterSurface) Snapshot() *image.RGBA {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.front == nil {
		return nil
	}
	out := image.NewRGBA(s.front.Rect)
	copy(out.Pix, s.front.Pix)
	return out
}

// FillRect fills a rectangle. Negative sizes extend left or up.
func (s *RasterSurface) FillRect(x, y, w, h float64, p Paint) {
	if w < 0 {
		x, w = x+w, -w
	}
	if h < 0 {
		y, h = y+h, -h
	}
	if w == 0 || h == 0 {
		return
	}
	s.fill(p, func(z *vector.Rasterizer, k float64) {
		moveTo(z, k, x, y)
		lineTo(z, k, x+w, y)
		lineTo(z, k, x+w, y+h)
		lineTo(z, k, x, y+h)
		z.ClosePath()
	})
}

func (s *RasterSurface) FillCircle(cx, cy, radius float64, p Paint) {
	if !(radius > 0) {
		return
	}
	s.fill(p, func(z *vector.Rasterizer, k float64) {
		moveTo(z, k, cx+radius, cy)
		for i := 1; i < circleSegments; i++ {
			sin, cos := math.Sincos(2 * math.Pi * float64(i) / circleSegments)
			lineTo(z, k, cx+cos*radius, cy+sin*radius)
		}
		z.ClosePath()
	})
}

func (s *RasterSurface) StrokeLine(x1, y1, x2, y2, width float64, p Paint) {
	s.StrokePath([]Point{{x1, y1}, {x2, y2}}, width, p)
}

// StrokePath strokes each segment as a quad with butt ends. Quads all wind
// the same way, so overlaps at joints do not cancel.
func (s *RasterSurface) StrokePath(pts []Point, width float64, p Paint) {
	if len(pts) < 2 || !(width > 0) {
		return
	}
	hw := width / 2
	s.fill(p, func(z *vector.Rasterizer, k float64) {
		for i := 1; i < len(pts); i++ {
			a, b := pts[i-1], pts[i]
			dx, dy := b.X-a.X, b.Y-a.Y
			l := math.Hypot(dx, dy)
			if l == 0 {
				continue
			}
			nx, ny := -dy/l*hw, dx/l*hw
			moveTo(z, k, a.X+nx, a.Y+ny)
			lineTo(z, k, b.X+nx, b.Y+ny)
			lineTo(z, k, b.X-nx, b.Y-ny)
			lineTo(z, k, a.X-nx, a.Y-ny)
			z.ClosePath()
		}
	})
}

func (s *RasterSurface) fill(p Paint, path func(z *vector.Rasterizer, k float64)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.back == nil {
		return
	}
	b := s.back.Bounds()
	if b.Empty() {
		return
	}
	s.z.Reset(b.Dx(), b.Dy())
	path(s.z, s.scale)

	var src image.Image
	if p.Gradient == nil {
		if !(p.Alpha > 0) {
			return
		}
		src = image.NewUniform(toNRGBA(p.Color, p.Alpha))
	} else {
		src = &gradientImage{g: p.Gradient, scale: s.scale}
	}
	s.z.Draw(s.back, b, src, image.Point{})
}

func moveTo(z *vector.Rasterizer, k, x, y float64) {
	z.MoveTo(float32(x*k), float32(y*k))
}

func lineTo(z *vector.Rasterizer, k, x, y float64) {
	z.LineTo(float32(x*k), float32(y*k))
}

func toNRGBA(c colorful.Color, alpha float64) color.NRGBA {
	r, g, b := c.Clamped().RGB255()
	return color.NRGBA{R: r, G: g, B: b, A: uint8(clamp01(alpha)*255 + 0.5)}
}

// gradientImage evaluates a Gradient per device pixel.
type gradientImage struct {
	g     *Gradient
	scale float64
}

func (gi *gradientImage) ColorModel() color.Model { return color.NRGBAModel }

func (gi *gradientImage) Bounds() image.Rectangle {
	return image.Rect(-1<<30, -1<<30, 1<<30, 1<<30)
}

func (gi *gradientImage) At(x, y int) color.Color {
	c, a := gi.g.At((float64(x)+0.5)/gi.scale, (float64(y)+0.5)/gi.scale)
	return toNRGBA(c, a)
}
