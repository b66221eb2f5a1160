package termimg

import (
	"fmt"
	"os"
	"runtime"
	"strings"
	"sync"

	"github.com/lucasb-eyer/go-colorful"
)

// ASCII brightness ramp from darkest to brightest.
const asciiRamp = " .:-=+*#%@"

const ansiReset = "\x1b[0m"

// Mode is the terminal's color capability.
type Mode uint8

const (
	ModeNone Mode = iota // NO_COLOR or dumb terminal
	ModeANSI16
	ModeANSI256
	ModeTrueColor
)

func (m Mode) String() string {
	switch m {
	case ModeANSI16:
		return "ansi16"
	case ModeANSI256:
		return "ansi256"
	case ModeTrueColor:
		return "truecolor"
	default:
		return "none"
	}
}

var (
	detectOnce sync.Once
	detected   Mode
)

// DetectMode inspects the environment once and caches the answer.
func DetectMode() Mode {
	detectOnce.Do(func() { detected = ModeFromEnv(os.LookupEnv) })
	return detected
}

// ModeFromEnv derives the color mode from NO_COLOR, COLORTERM and TERM.
func ModeFromEnv(lookup func(string) (string, bool)) Mode {
	if _, ok := lookup("NO_COLOR"); ok {
		return ModeNone
	}
	term, _ := lookup("TERM")
	ct, _ := lookup("COLORTERM")
	term, ct = strings.ToLower(term), strings.ToLower(ct)
	switch {
	case strings.Contains(ct, "truecolor"), strings.Contains(ct, "24bit"):
		return ModeTrueColor
	case strings.Contains(term, "256color"):
		return ModeANSI256
	case term == "dumb":
		return ModeNone
	case term == "" && runtime.GOOS == "windows":
		return ModeANSI16
	case term == "":
		return ModeNone
	default:
		return ModeANSI16
	}
}

var seqCache sync.Map

type seqKey struct {
	mode    Mode
	bg      bool
	r, g, b uint8
}

// colorSeq returns the escape that sets the foreground (or background) to
// the given color, or "" in ModeNone.
func colorSeq(mode Mode, bg bool, r, g, b uint8) string {
	key := seqKey{mode, bg, r, g, b}
	if seq, ok := seqCache.Load(key); ok {
		return seq.(string)
	}

	base := 38
	if bg {
		base = 48
	}
	var seq string
	switch mode {
	case ModeTrueColor:
		seq = fmt.Sprintf("\x1b[%d;2;%d;%d;%dm", base, r, g, b)
	case ModeANSI256:
		idx := 16 + 36*(int(r)*5/255) + 6*(int(g)*5/255) + int(b)*5/255
		seq = fmt.Sprintf("\x1b[%d;5;%dm", base, idx)
	case ModeANSI16:
		idx := nearestANSI16(r, g, b)
		code := base - 8 + idx // 30 or 40
		if idx >= 8 {
			code = base + 52 + idx - 8 // 90 or 100
		}
		seq = fmt.Sprintf("\x1b[%dm", code)
	}
	seqCache.Store(key, seq)
	return seq
}

// nearestANSI16 picks the palette entry closest in CIE Lab.
func nearestANSI16(r, g, b uint8) int {
	c := colorful.Color{R: float64(r) / 255, G: float64(g) / 255, B: float64(b) / 255}
	best, bestDist := 0, 1e9
	for i, p := range ansi16Palette {
		if d := c.DistanceLab(p); d < bestDist {
			best, bestDist = i, d
		}
	}
	return best
}

var ansi16Palette = func() [16]colorful.Color {
	rgb := [16][3]uint8{
		{0, 0, 0},
		{205, 49, 49},
		{13, 188, 121},
		{229, 229, 16},
		{36, 114, 200},
		{188, 63, 188},
		{17, 168, 205},
		{229, 229, 229},
		{102, 102, 102},
		{241, 76, 76},
		{35, 209, 139},
		{245, 245, 67},
		{59, 142, 234},
		{214, 112, 214},
		{41, 184, 219},
		{255, 255, 255},
	}
	var out [16]colorful.Color
	for i, c := range rgb {
		out[i] = colorful.Color{R: float64(c[0]) / 255, G: float64(c[1]) / 255, B: float64(c[2]) / 255}
	}
	return out
}()

// brightnessChar maps a 0-255 luminance to an ASCII character.
func brightnessChar(lum uint8) byte {
	return asciiRamp[int(lum)*(len(asciiRamp)-1)/255]
}

// luminance is perceived brightness (ITU-R BT.601).
func luminance(r, g, b uint8) uint8 {
	return uint8((299*int(r) + 587*int(g) + 114*int(b)) / 1000)
}
