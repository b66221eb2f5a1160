package visualizer

import "math"

type styleFunc struct {
	draw       func(c *canvas, data []uint8)
	timeDomain bool
}

var dispatch = map[Style]styleFunc{
	StyleBars:      {draw: drawBars},
	StyleCircular:  {draw: drawCircular},
	StyleWaveform:  {draw: drawWaveform, timeDomain: true},
	StyleSpectrum:  {draw: drawSpectrum},
	StyleParticles: {draw: drawParticles},
	StyleRadial:    {draw: drawRadial},
	StyleMirror:    {draw: drawMirror},
}

func drawBars(c *canvas, data []uint8) {
	c.background()

	const count = 64
	bw := c.w / count
	fill := Paint{Gradient: &Gradient{
		X0: 0, Y0: c.h, X1: 0, Y1: 0,
		Stops: []Stop{
			{Offset: 0, Color: c.theme.Primary, Alpha: 1},
			{Offset: 0.5, Color: c.theme.Secondary, Alpha: 1},
			{Offset: 1, Color: c.theme.Accent, Alpha: 1},
		},
	}}
	for i := range count {
		bh := sample(data, i, count) * c.h * 0.8
		c.s.FillRect(float64(i)*bw+1, c.h-bh, bw-2, bh, fill)
	}
}

func drawCircular(c *canvas, data []uint8) {
	c.background()

	const count = 128
	cx, cy := c.w/2, c.h/2
	radius := minDim(c) * 0.3
	step := 2 * math.Pi / count
	for i := range count {
		length := sample(data, i, count) * radius * 0.8
		sin, cos := math.Sincos(float64(i) * step)
		c.s.StrokeLine(
			cx+cos*radius, cy+sin*radius,
			cx+cos*(radius+length), cy+sin*(radius+length),
			2, Solid(hsl(float64(i)/count*360, 70, 60)),
		)
	}
}

func drawWaveform(c *canvas, data []uint8) {
	c.background()

	slice := c.w / float64(len(data))
	pts := make([]Point, 0, len(data)+1)
	for i, b := range data {
		v := float64(b) / 128
		pts = append(pts, Point{X: float64(i) * slice, Y: v * c.h / 2})
	}
	pts = append(pts, Point{X: c.w, Y: c.h / 2})
	c.s.StrokePath(pts, 2, Solid(c.theme.Primary))
}

func drawSpectrum(c *canvas, data []uint8) {
	c.background()

	const count = 128
	bw := c.w / count
	for i := range count {
		v := sample(data, i, count)
		bh := v * c.h
		c.s.FillRect(float64(i)*bw, c.h-bh, bw-1, bh, Solid(hsl(200+v*60, 70+v*30, 60)))
	}
}

// drawParticles leaves the previous frame showing through a low-alpha wash,
// so particles trail.
func drawParticles(c *canvas, data []uint8) {
	c.s.FillRect(0, 0, c.w, c.h, Paint{Color: c.theme.Background, Alpha: 0.1})

	const count = 50
	for i := range count {
		v := sample(data, i, count)
		x := float64(i) / count * c.w
		y := c.h/2 + (c.rng.Float64()-0.5)*v*c.h
		c.s.FillCircle(x, y, 2+v*8, Paint{Color: hsl(float64(i)/count*360, 70, 60), Alpha: v})
	}
}

func drawRadial(c *canvas, data []uint8) {
	c.background()

	const count = 32
	cx, cy := c.w/2, c.h/2
	step := 2 * math.Pi / count
	for i := range count {
		length := sample(data, i, count) * minDim(c) * 0.4
		sin, cos := math.Sincos(float64(i) * step)
		x, y := cx+cos*length, cy+sin*length
		fade := Paint{Gradient: &Gradient{
			X0: cx, Y0: cy, X1: x, Y1: y,
			Stops: []Stop{
				{Offset: 0, Color: c.theme.Primary, Alpha: 1},
				{Offset: 1, Color: c.theme.Accent, Alpha: 0},
			},
		}}
		c.s.StrokeLine(cx, cy, x, y, 4, fade)
	}
}

func drawMirror(c *canvas, data []uint8) {
	c.background()

	const count = 64
	bw := c.w / (count * 2)
	cy := c.h / 2
	fill := Paint{Gradient: &Gradient{
		X0: 0, Y0: 0, X1: 0, Y1: c.h,
		Stops: []Stop{
			{Offset: 0, Color: c.theme.Accent, Alpha: 1},
			{Offset: 0.5, Color: c.theme.Primary, Alpha: 1},
			{Offset: 1, Color: c.theme.Accent, Alpha: 1},
		},
	}}
	for i := range count {
		bh := sample(data, i, count) * c.h * 0.4
		x := c.w/2 + float64(i-count/2)*bw
		c.s.FillRect(x, cy-bh, bw-2, bh, fill)
		c.s.FillRect(x, cy, bw-2, bh, fill)
	}
}
