package visualizer

import (
	"fmt"

	"github.com/lucasb-eyer/go-colorful"
)

// Default theme colors.
const (
	DefaultPrimary    = "#3b82f6"
	DefaultSecondary  = "#8b5cf6"
	DefaultAccent     = "#ec4899"
	DefaultBackground = "#1e293b"
)

// Theme holds the colors styles draw with.
type Theme struct {
	Primary    colorful.Color
	Secondary  colorful.Color
	Accent     colorful.Color
	Background colorful.Color
}

// DefaultTheme returns the blue, violet and pink theme on slate.
func DefaultTheme() Theme {
	return Theme{
		Primary:    mustHex(DefaultPrimary),
		Secondary:  mustHex(DefaultSecondary),
		Accent:     mustHex(DefaultAccent),
		Background: mustHex(DefaultBackground),
	}
}

// Hex returns the three theme colors as hex strings.
func (t Theme) Hex() (primary, secondary, accent string) {
	return t.Primary.Hex(), t.Secondary.Hex(), t.Accent.Hex()
}

func parseTheme(primary, secondary, accent string) (Theme, error) {
	var t Theme
	for _, c := range []struct {
		dst *colorful.Color
		s   string
	}{
		{&t.Primary, primary},
		{&t.Secondary, secondary},
		{&t.Accent, accent},
	} {
		v, err := colorful.Hex(c.s)
		if err != nil {
			return Theme{}, fmt.Errorf("%w: %q", ErrInvalidColor, c.s)
		}
		*c.dst = v
	}
	return t, nil
}

func mustHex(s string) colorful.Color {
	c, err := colorful.Hex(s)
	if err != nil {
		panic(err)
	}
	return c
}

// hsl takes hue in degrees and saturation and lightness in percent.
func hsl(hue, sat, light float64) colorful.Color {
	return colorful.Hsl(hue, clamp01(sat/100), clamp01(light/100)).Clamped()
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
