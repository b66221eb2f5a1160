package engine

import (
	"fmt"
	"math"

	"github.com/sirupsen/logrus"

	"github.com/olivier-w/harmonia/internal/dsp"
	"github.com/olivier-w/harmonia/internal/effects"
)

// Effects returns a copy of the current effect configuration.
func (e *Engine) Effects() effects.State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.fx
}

// SetEQBand sets band i to gainDB, clamped to [-12, 12]. An index outside
// the ten bands is ignored.
func (e *Engine) SetEQBand(i int, gainDB float64) {
	if i < 0 || i >= effects.NumBands {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.fx.EQ[i] = effects.ClampBandGain(gainDB)
	if e.g != nil {
		e.g.params.bands[i].Set(e.fx.EQ[i])
	}
}

// ApplyEQPreset loads a named EQ curve. Unknown names load the flat curve.
func (e *Engine) ApplyEQPreset(name string) {
	gains, ok := effects.EQPreset(name)
	if !ok {
		e.log.WithField("preset", name).Debug("unknown eq preset, using flat")
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.fx.EQ = gains
	e.pushLocked()
}

// EQBands returns the current band gains.
func (e *Engine) EQBands() effects.EQ {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.fx.EQ
}

// SetReverb configures the reverb branch. The impulse is regenerated only
// when the decay differs from the one last generated. An unusable decay
// leaves the reverb silent and returns ErrImpulseGeneration.
func (e *Engine) SetReverb(enabled bool, mix, decay float64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.fx.Reverb = effects.Reverb{Enabled: enabled, Mix: mix, Decay: decay}.Clamped()

	var err error
	switch {
	case !enabled:
	case e.g != nil:
		err = e.generateImpulseLocked(decay)
	default:
		if verr := dsp.ValidateDecay(decay); verr != nil {
			err = fmt.Errorf("%w: %w", ErrImpulseGeneration, verr)
		}
	}
	e.pushLocked()
	return err
}

// SetDelay configures the echo branch. Time is clamped to [0, 5] s and
// feedback to [0, 0.95]. Disabling only mutes the branch.
func (e *Engine) SetDelay(enabled bool, seconds, feedback, mix float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.fx.Delay = effects.Delay{Enabled: enabled, Time: seconds, Feedback: feedback, Mix: mix}.Clamped()
	e.pushLocked()
}

// SetCompressor configures the dynamics processor. It stays in the signal
// path when disabled, with transparent settings.
func (e *Engine) SetCompressor(c effects.Compressor) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.fx.Compressor = c.Clamped()
	e.pushLocked()
}

// SetStereo configures pan and width.
func (e *Engine) SetStereo(enabled bool, pan, width float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.fx.Stereo = effects.Stereo{Enabled: enabled, Pan: pan, Width: width}.Clamped()
	e.pushLocked()
}

// ApplyEffectPreset writes a named combination of reverb, delay, compressor
// and stereo settings. It reports false, changing nothing, for an unknown
// name.
func (e *Engine) ApplyEffectPreset(name string) bool {
	p, ok := effects.LookupEffectPreset(name)
	if !ok {
		return false
	}
	if err := e.SetReverb(p.Reverb.Enabled, p.Reverb.Mix, p.Reverb.Decay); err != nil {
		e.log.WithError(err).WithField("preset", name).Warn("preset reverb unavailable")
	}
	e.SetDelay(p.Delay.Enabled, p.Delay.Time, p.Delay.Feedback, p.Delay.Mix)
	e.SetCompressor(p.Compressor)
	e.SetStereo(p.Stereo.Enabled, p.Stereo.Pan, p.Stereo.Width)
	return true
}

// SetPlaybackRate clamps rate to [0.5, 2] and forwards it to the attached
// transports.
func (e *Engine) SetPlaybackRate(rate float64) {
	rate = effects.ClampPlaybackRate(rate)
	e.mu.Lock()
	e.fx.PlaybackRate = rate
	e.mu.Unlock()

	set := e.sources.Load()
	if set.primary != nil {
		set.primary.SetPlaybackRate(rate)
	}
	if set.secondary != nil {
		set.secondary.SetPlaybackRate(rate)
	}
}

// ImpulseGenerations counts successful impulse syntheses since New.
func (e *Engine) ImpulseGenerations() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.impulseGenerations
}

// ImpulseLength returns the per-channel length of the loaded impulse, or 0.
func (e *Engine) ImpulseLength() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.impulseLength
}

// generateImpulseLocked loads a new reverb impulse for decay unless the
// loaded one already matches. e.mu must be held and the graph built.
func (e *Engine) generateImpulseLocked(decay float64) error {
	if !e.impulseFailed && decay == e.impulseDecay {
		return nil
	}
	ir, err := dsp.ReverbImpulse(e.sampleRate, decay, e.rng)
	var kernel *dsp.Kernel
	if err == nil {
		kernel, err = dsp.NewKernel(ir, e.sampleRate, true)
	}
	if err != nil {
		e.impulseFailed = true
		e.impulseDecay = math.NaN()
		e.impulseLength = 0
		e.g.conv.SetKernel(nil)
		e.log.WithError(err).WithField("decay", decay).Warn("reverb impulse generation failed")
		return fmt.Errorf("%w: %w", ErrImpulseGeneration, err)
	}
	e.g.conv.SetKernel(kernel)
	e.impulseFailed = false
	e.impulseDecay = decay
	e.impulseLength = len(ir[0])
	e.impulseGenerations++
	e.log.WithFields(logrus.Fields{
		"decay":  decay,
		"length": e.impulseLength,
	}).Debug("reverb impulse generated")
	return nil
}

// pushLocked writes the effect record into the live parameters. It is a
// no-op while unbuilt; EnsureBuilt calls it once the graph exists.
func (e *Engine) pushLocked() {
	if e.g == nil {
		return
	}
	p := e.g.params
	for i, gain := range e.fx.EQ {
		p.bands[i].Set(effects.ClampBandGain(gain))
	}

	c := e.fx.Compressor.Effective()
	p.compressor.Store(&c)

	rv := e.fx.Reverb.Clamped()
	if rv.Enabled && !e.impulseFailed {
		p.reverbMix.Set(rv.Mix)
	} else {
		p.reverbMix.Set(0)
	}

	d := e.fx.Delay.Clamped()
	p.delayTime.Set(d.Time)
	p.feedback.Set(d.Feedback)
	if d.Enabled {
		p.delayMix.Set(d.Mix)
	} else {
		p.delayMix.Set(0)
	}

	pan, width := e.fx.Stereo.Effective()
	p.pan.Set(pan)
	p.width.Set(width)
}
