package effects

import "strings"

var eqPresets = map[string]EQ{
	"flat":       {},
	"rock":       {5, 4, 3, 1, -1, -1, 0, 2, 3, 4},
	"pop":        {-1, 1, 3, 4, 3, 1, -1, -2, -2, -1},
	"jazz":       {4, 3, 2, 1, 0, 0, 1, 2, 3, 4},
	"classical":  {5, 4, 3, 2, -1, -2, -1, 2, 3, 4},
	"bass":       {8, 6, 4, 2, 0, -1, -2, -2, -1, 0},
	"treble":     {0, -1, -2, -2, -1, 0, 2, 4, 6, 8},
	"vocal":      {-2, -1, 0, 1, 3, 4, 4, 3, 1, 0},
	"electronic": {6, 5, 2, 0, -2, 2, 1, 2, 5, 6},
	"acoustic":   {5, 4, 3, 1, 0, 0, 1, 2, 3, 4},
}

var eqPresetOrder = []string{
	"flat", "rock", "pop", "jazz", "classical",
	"bass", "treble", "vocal", "electronic", "acoustic",
}

// EQPreset returns the band gains for name. Unknown names resolve to flat
// and ok is false.
func EQPreset(name string) (gains EQ, ok bool) {
	gains, ok = eqPresets[strings.ToLower(name)]
	return gains, ok
}

// EQPresetNames lists the equalizer presets in display order.
func EQPresetNames() []string {
	out := make([]string, len(eqPresetOrder))
	copy(out, eqPresetOrder)
	return out
}

// EffectPreset bundles the four effect records a preset writes.
type EffectPreset struct {
	Reverb     Reverb
	Delay      Delay
	Compressor Compressor
	Stereo     Stereo
}

func compressorOn() Compressor {
	c := DefaultCompressor
	c.Enabled = true
	return c
}

var effectPresets = map[string]EffectPreset{
	"none": {
		Reverb:     DefaultReverb,
		Delay:      DefaultDelay,
		Compressor: DefaultCompressor,
		Stereo:     DefaultStereo,
	},
	"hall": {
		Reverb:     Reverb{Enabled: true, Mix: 0.4, Decay: 3.0},
		Delay:      DefaultDelay,
		Compressor: compressorOn(),
		Stereo:     DefaultStereo,
	},
	"cathedral": {
		Reverb:     Reverb{Enabled: true, Mix: 0.6, Decay: 5.0},
		Delay:      DefaultDelay,
		Compressor: compressorOn(),
		Stereo:     DefaultStereo,
	},
	"echo": {
		Reverb:     DefaultReverb,
		Delay:      Delay{Enabled: true, Time: 0.5, Feedback: 0.4, Mix: 0.4},
		Compressor: DefaultCompressor,
		Stereo:     DefaultStereo,
	},
	"slapback": {
		Reverb:     DefaultReverb,
		Delay:      Delay{Enabled: true, Time: 0.12, Feedback: 0.2, Mix: 0.3},
		Compressor: compressorOn(),
		Stereo:     DefaultStereo,
	},
	"radio": {
		Reverb: DefaultReverb,
		Delay:  DefaultDelay,
		Compressor: Compressor{
			Enabled:   true,
			Threshold: -20,
			Knee:      DefaultCompressor.Knee,
			Ratio:     8,
			Attack:    DefaultCompressor.Attack,
			Release:   DefaultCompressor.Release,
		},
		Stereo: DefaultStereo,
	},
	"wide": {
		Reverb:     Reverb{Enabled: true, Mix: 0.2, Decay: 1.5},
		Delay:      DefaultDelay,
		Compressor: DefaultCompressor,
		Stereo:     Stereo{Enabled: true, Pan: 0, Width: 1.5},
	},
}

var effectPresetOrder = []string{"none", "hall", "cathedral", "echo", "slapback", "radio", "wide"}

// LookupEffectPreset returns the preset called name.
func LookupEffectPreset(name string) (EffectPreset, bool) {
	p, ok := effectPresets[strings.ToLower(name)]
	return p, ok
}

// EffectPresetNames lists the effect presets in display order.
func EffectPresetNames() []string {
	out := make([]string, len(effectPresetOrder))
	copy(out, effectPresetOrder)
	return out
}
