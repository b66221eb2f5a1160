package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/olivier-w/harmonia/internal/effects"
	"github.com/olivier-w/harmonia/internal/engine"
	"github.com/olivier-w/harmonia/internal/util"
)

var meterLevels = []rune("▁▂▃▄▅▆▇█")

const bandCellWidth = 5

// meterRune maps a gain in dB onto one of the eight block heights.
func meterRune(gain float64) rune {
	t := (gain - effects.MinBandGain) / (effects.MaxBandGain - effects.MinBandGain)
	i := int(t*float64(len(meterLevels)-1) + 0.5)
	i = max(0, min(i, len(meterLevels)-1))
	return meterLevels[i]
}

func bandLabel(freq float64) string {
	if freq >= 1000 {
		return fmt.Sprintf("%gk", freq/1000)
	}
	return fmt.Sprintf("%g", freq)
}

// renderEQ draws one meter per band with the frequency labels beneath.
// gains are the smoothed values, not the engine's.
func renderEQ(gains []float64, selected int) string {
	var bars, labels strings.Builder
	for i, g := range gains {
		cell := fmt.Sprintf("%-*s", bandCellWidth, "  "+string(meterRune(g)))
		label := fmt.Sprintf("%-*s", bandCellWidth, bandLabel(effects.BandFrequencies[i]))
		if i == selected {
			bars.WriteString(activeStyle.Render(cell))
			labels.WriteString(activeStyle.Render(label))
			continue
		}
		bars.WriteString(statusStyle.Render(cell))
		labels.WriteString(helpStyle.Render(label))
	}
	return bars.String() + "\n  " + labels.String()
}

func toggle(name string, on bool, detail string) string {
	if !on {
		return inactiveStyle.Render(name)
	}
	if detail != "" {
		name += " " + detail
	}
	return activeStyle.Render(name)
}

// renderEffects summarises the effect chain on one line.
func renderEffects(fx effects.State) string {
	parts := []string{
		toggle("reverb", fx.Reverb.Enabled, fmt.Sprintf("%.0f%% %.1fs", fx.Reverb.Mix*100, fx.Reverb.Decay)),
		toggle("delay", fx.Delay.Enabled, fmt.Sprintf("%.2fs", fx.Delay.Time)),
		toggle("comp", fx.Compressor.Enabled, fmt.Sprintf("%.0f:1", fx.Compressor.Ratio)),
		toggle("wide", fx.Stereo.Enabled, fmt.Sprintf("x%.1f", fx.Stereo.Width)),
		statusStyle.Render(fmt.Sprintf("%.2fx", fx.PlaybackRate)),
	}
	return strings.Join(parts, helpStyle.Render("  ·  "))
}

// renderAB shows the loop points, or nothing when A/B repeat is off.
func renderAB(r engine.ABRegion) string {
	switch r.Stage {
	case engine.ABSet:
		return activeStyle.Render("A " + util.FormatDuration(r.A) + " → ?")
	case engine.ABActive:
		return activeStyle.Render("A " + util.FormatDuration(r.A) + " → B " + util.FormatDuration(r.B))
	default:
		return ""
	}
}

func renderVolumePercent(vol float64) string {
	return fmt.Sprintf("vol %d%%", int(vol*100+0.5))
}

func ratio(elapsed, total time.Duration) float64 {
	if total <= 0 {
		return 0
	}
	return max(0, min(1, float64(elapsed)/float64(total)))
}
