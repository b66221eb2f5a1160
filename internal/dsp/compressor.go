// Package dsp contains the sample-level processors behind the audio graph
// nodes. Processors are not safe for concurrent use; the engine drives them
// from the single render goroutine.
package dsp

import (
	"math"

	"github.com/cwbudde/algo-dsp/dsp/effects/dynamics"
)

// Ranges accepted by the dynamics processor.
const (
	maxKneeDB    = 24.0
	maxRatio     = 100.0
	minAttackMs  = 0.1
	minReleaseMs = 1.0

	// linkFloor keeps the detector fed during digital silence so the
	// envelope still releases.
	linkFloor = 1e-9

	// makeupShare is the fraction of the full scale reduction given back
	// as makeup gain.
	makeupShare = 0.6
)

// Compressor is a stereo-linked soft-knee compressor. The detector runs on
// the louder of the two channels so the stereo image does not shift under
// gain reduction.
type Compressor struct {
	comp     *dynamics.Compressor
	makeupDB float64
	gain     float64 // last applied linear gain, makeup included
}

// NewCompressor returns a compressor with threshold -24 dB, knee 30 dB,
// ratio 12, attack 3 ms and release 250 ms.
func NewCompressor(sampleRate float64) (*Compressor, error) {
	comp, err := dynamics.NewCompressor(sampleRate)
	if err != nil {
		return nil, err
	}
	c := &Compressor{comp: comp, gain: 1}
	c.Configure(-24, 30, 12, 0.003, 0.25)
	return c, nil
}

// Configure updates all parameters at once. Attack and release are in
// seconds. Values outside what the detector supports are clamped; a knee
// wider than 24 dB is narrowed to 24 dB.
func (c *Compressor) Configure(threshold, knee, ratio, attack, release float64) {
	_ = c.comp.SetThreshold(threshold)
	_ = c.comp.SetKnee(clamp(knee, 0, maxKneeDB))
	_ = c.comp.SetRatio(clamp(ratio, 1, maxRatio))
	_ = c.comp.SetAttack(max(attack*1000, minAttackMs))
	_ = c.comp.SetRelease(max(release*1000, minReleaseMs))

	// makeup = (1/fullRangeGain)^0.6
	_ = c.comp.SetMakeupGain(0)
	full := c.comp.CalculateOutputLevel(1)
	c.makeupDB = 0
	if full > 0 {
		c.makeupDB = -makeupShare * 20 * math.Log10(full)
	}
	_ = c.comp.SetMakeupGain(c.makeupDB)
}

// Reduction reports the gain reduction applied to the last frame in dB,
// makeup excluded.
func (c *Compressor) Reduction() float64 {
	if c.gain <= 0 {
		return 0
	}
	return max(c.makeupDB-20*math.Log10(c.gain), 0)
}

// Process compresses one stereo frame.
func (c *Compressor) Process(l, r float64) (float64, float64) {
	peak := max(math.Abs(l), math.Abs(r), linkFloor)
	c.gain = c.comp.ProcessSample(peak) / peak
	return l * c.gain, r * c.gain
}

// Reset clears the detector.
func (c *Compressor) Reset() {
	c.comp.Reset()
	c.gain = 1
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}
	return min(max(v, lo), hi)
}
