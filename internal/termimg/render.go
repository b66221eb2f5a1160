// Package termimg turns RGBA images into terminal text: upper half blocks
// with foreground and background colors, or an ASCII brightness ramp when
// colors are off.
package termimg

import (
	"image"
	"strings"
)

// Renderer converts images to strings. It reuses its buffer and is not safe
// for concurrent use.
type Renderer struct {
	mode Mode
	sb   strings.Builder
}

// NewRenderer uses the terminal's detected color mode.
func NewRenderer() *Renderer {
	return &Renderer{mode: DetectMode()}
}

// NewRendererMode uses a fixed color mode.
func NewRendererMode(m Mode) *Renderer {
	return &Renderer{mode: m}
}

// Mode returns the renderer's color mode.
func (r *Renderer) Mode() Mode { return r.mode }

// Render scales img to cols x rows terminal cells by area averaging. In
// color modes every cell carries two pixel rows. Transparent pixels read as
// black.
func (r *Renderer) Render(img *image.RGBA, cols, rows int) string {
	if img == nil || cols <= 0 || rows <= 0 || img.Rect.Empty() {
		return ""
	}
	r.sb.Reset()
	r.sb.Grow(cols * rows * 24)
	if r.mode == ModeNone {
		r.renderASCII(img, cols, rows)
	} else {
		r.renderHalfBlock(img, cols, rows)
	}
	return r.sb.String()
}

func (r *Renderer) renderHalfBlock(img *image.RGBA, cols, rows int) {
	w, h := img.Rect.Dx(), img.Rect.Dy()
	pixelRows := rows * 2

	var lastFg, lastBg string
	for row := range rows {
		y0 := 2 * row * h / pixelRows
		y1 := (2*row + 1) * h / pixelRows
		y2 := (2*row + 2) * h / pixelRows
		for col := range cols {
			x0, x1 := col*w/cols, (col+1)*w/cols
			tr, tg, tb := average(img, x0, y0, x1, y1)
			br, bgr, bb := average(img, x0, y1, x1, y2)

			if fg := colorSeq(r.mode, false, tr, tg, tb); fg != lastFg {
				r.sb.WriteString(fg)
				lastFg = fg
			}
			if bg := colorSeq(r.mode, true, br, bgr, bb); bg != lastBg {
				r.sb.WriteString(bg)
				lastBg = bg
			}
			r.sb.WriteString("▀")
		}
		r.sb.WriteString(ansiReset)
		lastFg, lastBg = "", ""
		if row < rows-1 {
			r.sb.WriteByte('\n')
		}
	}
}

func (r *Renderer) renderASCII(img *image.RGBA, cols, rows int) {
	w, h := img.Rect.Dx(), img.Rect.Dy()
	for row := range rows {
		y0, y1 := row*h/rows, (row+1)*h/rows
		for col := range cols {
			pr, pg, pb := average(img, col*w/cols, y0, (col+1)*w/cols, y1)
			r.sb.WriteByte(brightnessChar(luminance(pr, pg, pb)))
		}
		if row < rows-1 {
			r.sb.WriteByte('\n')
		}
	}
}

// average returns the mean color of the block [x0,x1) x [y0,y1), relative
// to the image origin. Empty blocks sample the single pixel at (x0, y0).
func average(img *image.RGBA, x0, y0, x1, y1 int) (uint8, uint8, uint8) {
	w, h := img.Rect.Dx(), img.Rect.Dy()
	x0, y0 = min(x0, w-1), min(y0, h-1)
	x1, y1 = max(x1, x0+1), max(y1, y0+1)
	x1, y1 = min(x1, w), min(y1, h)

	var sr, sg, sb, n int
	for y := y0; y < y1; y++ {
		off := y*img.Stride + x0*4
		for x := x0; x < x1; x++ {
			// image.RGBA is premultiplied, so this composites over black.
			sr += int(img.Pix[off])
			sg += int(img.Pix[off+1])
			sb += int(img.Pix[off+2])
			off += 4
			n++
		}
	}
	if n == 0 {
		return 0, 0, 0
	}
	return uint8(sr / n), uint8(sg / n), uint8(sb / n)
}
