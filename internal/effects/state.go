// Package effects holds the configuration records for every effect in the
// audio graph. The records carry no behavior beyond clamping; the engine
// reads them when it builds the graph and the setters write them.
package effects

import "math"

// NumBands is the number of equalizer bands.
const NumBands = 10

// BandFrequencies are the fixed centre frequencies of the equalizer, in Hz.
var BandFrequencies = [NumBands]float64{32, 64, 125, 250, 500, 1000, 2000, 4000, 8000, 16000}

// Equalizer gain limits in dB.
const (
	MinBandGain = -12.0
	MaxBandGain = 12.0
)

// FilterKind selects the biquad response used for an equalizer band.
type FilterKind uint8

const (
	LowShelf FilterKind = iota
	Peaking
	HighShelf
)

func (k FilterKind) String() string {
	switch k {
	case LowShelf:
		return "lowshelf"
	case HighShelf:
		return "highshelf"
	default:
		return "peaking"
	}
}

// BandKind returns the filter kind for band i. The lowest band is a low
// shelf, the highest a high shelf and everything in between is peaking.
func BandKind(i int) FilterKind {
	switch i {
	case 0:
		return LowShelf
	case NumBands - 1:
		return HighShelf
	default:
		return Peaking
	}
}

// EQ is the ordered list of band gains in dB.
type EQ [NumBands]float64

// Reverb configures the convolution reverb branch.
type Reverb struct {
	Enabled bool    `json:"enabled"`
	Mix     float64 `json:"mix"`
	Decay   float64 `json:"decay"` // seconds
}

// Delay configures the feedback delay branch.
type Delay struct {
	Enabled  bool    `json:"enabled"`
	Time     float64 `json:"time"` // seconds
	Feedback float64 `json:"feedback"`
	Mix      float64 `json:"mix"`
}

// Compressor configures the dynamics processor.
type Compressor struct {
	Enabled   bool    `json:"enabled"`
	Threshold float64 `json:"threshold"` // dB
	Knee      float64 `json:"knee"`      // dB
	Ratio     float64 `json:"ratio"`
	Attack    float64 `json:"attack"`  // seconds
	Release   float64 `json:"release"` // seconds
}

// Stereo configures the panner and stereo width.
type Stereo struct {
	Enabled bool    `json:"enabled"`
	Pan     float64 `json:"pan"`
	Width   float64 `json:"width"`
}

// State is the complete effect configuration.
type State struct {
	EQ           EQ         `json:"eq"`
	Reverb       Reverb     `json:"reverb"`
	Delay        Delay      `json:"delay"`
	Compressor   Compressor `json:"compressor"`
	Stereo       Stereo     `json:"stereo"`
	PlaybackRate float64    `json:"playbackRate"`
}

// Parameter limits.
const (
	MaxDelayTime    = 5.0
	MaxFeedback     = 0.95
	MinPlaybackRate = 0.5
	MaxPlaybackRate = 2.0
	MaxStereoWidth  = 4.0

	// DefaultWideWidth is the width used when stereo widening is switched
	// on from a neutral width.
	DefaultWideWidth = 1.5
)

// Defaults for each effect record.
var (
	DefaultReverb     = Reverb{Enabled: false, Mix: 0.3, Decay: 2.0}
	DefaultDelay      = Delay{Enabled: false, Time: 0.5, Feedback: 0.3, Mix: 0.3}
	DefaultCompressor = Compressor{Enabled: false, Threshold: -24, Knee: 30, Ratio: 12, Attack: 0.003, Release: 0.25}
	DefaultStereo     = Stereo{Enabled: false, Pan: 0, Width: 1.0}
)

// TransparentCompressor is written to the dynamics processor while the
// compressor is disabled. It stays in the signal path but no longer reduces
// gain.
var TransparentCompressor = Compressor{Threshold: 0, Knee: 0, Ratio: 1, Attack: 0.003, Release: 0.25}

// Default returns the initial effect state: flat EQ, every effect off and
// normal playback speed.
func Default() State {
	return State{
		Reverb:       DefaultReverb,
		Delay:        DefaultDelay,
		Compressor:   DefaultCompressor,
		Stereo:       DefaultStereo,
		PlaybackRate: 1,
	}
}

// ClampBandGain limits an equalizer gain to [MinBandGain, MaxBandGain].
// NaN maps to 0.
func ClampBandGain(g float64) float64 {
	if math.IsNaN(g) {
		return 0
	}
	return clamp(g, MinBandGain, MaxBandGain)
}

// ClampPlaybackRate limits r to [MinPlaybackRate, MaxPlaybackRate].
func ClampPlaybackRate(r float64) float64 {
	if math.IsNaN(r) {
		return 1
	}
	return clamp(r, MinPlaybackRate, MaxPlaybackRate)
}

// Clamped returns d with Time in [0, MaxDelayTime], Feedback in
// [0, MaxFeedback] and Mix in [0, 1].
func (d Delay) Clamped() Delay {
	d.Time = clampFinite(d.Time, 0, MaxDelayTime)
	d.Feedback = clampFinite(d.Feedback, 0, MaxFeedback)
	d.Mix = clampFinite(d.Mix, 0, 1)
	return d
}

// Clamped returns r with Mix in [0, 1]. Decay is left untouched so the
// engine can report an impulse failure for it.
func (r Reverb) Clamped() Reverb {
	r.Mix = clampFinite(r.Mix, 0, 1)
	return r
}

// Clamped returns c with every field inside the range a dynamics processor
// accepts.
func (c Compressor) Clamped() Compressor {
	c.Threshold = clampFinite(c.Threshold, -100, 0)
	c.Knee = clampFinite(c.Knee, 0, 40)
	c.Ratio = clampFinite(c.Ratio, 1, 20)
	c.Attack = clampFinite(c.Attack, 0, 1)
	c.Release = clampFinite(c.Release, 0, 1)
	return c
}

// Effective returns the settings the processor should run with. A disabled
// compressor yields TransparentCompressor.
func (c Compressor) Effective() Compressor {
	if !c.Enabled {
		return TransparentCompressor
	}
	return c.Clamped()
}

// Clamped returns s with Pan in [-1, 1] and Width in [0, MaxStereoWidth].
func (s Stereo) Clamped() Stereo {
	s.Pan = clampFinite(s.Pan, -1, 1)
	s.Width = clampFinite(s.Width, 0, MaxStereoWidth)
	return s
}

// Effective returns the pan and width the panner should apply.
func (s Stereo) Effective() (pan, width float64) {
	if !s.Enabled {
		return 0, 1
	}
	c := s.Clamped()
	return c.Pan, c.Width
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clampFinite(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}
	return clamp(v, lo, hi)
}
