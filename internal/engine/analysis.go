package engine

import "github.com/olivier-w/harmonia/internal/dsp"

// Frame is one analysis snapshot normalized for drawing: frequency bins in
// [0, 1] and time-domain samples in [-1, 1].
type Frame struct {
	Frequency  []float64
	TimeDomain []float64
}

func (e *Engine) analyser() *dsp.Analyser {
	if g := e.live.Load(); g != nil {
		return g.analyser
	}
	return nil
}

// FrequencyData returns FFTSize/2 magnitude bytes, or nil when the graph is
// not built.
func (e *Engine) FrequencyData() []uint8 {
	a := e.analyser()
	if a == nil {
		return nil
	}
	return a.ByteFrequencyData(nil)
}

// TimeDomainData returns FFTSize waveform bytes centred on 128, or nil when
// the graph is not built.
func (e *Engine) TimeDomainData() []uint8 {
	a := e.analyser()
	if a == nil {
		return nil
	}
	return a.ByteTimeDomainData(nil)
}

// Frame returns both snapshots normalized. The zero Frame is returned when
// the graph is not built.
func (e *Engine) Frame() Frame {
	a := e.analyser()
	if a == nil {
		return Frame{}
	}
	freq := a.ByteFrequencyData(nil)
	wave := a.ByteTimeDomainData(nil)
	f := Frame{
		Frequency:  make([]float64, len(freq)),
		TimeDomain: make([]float64, len(wave)),
	}
	for i, v := range freq {
		f.Frequency[i] = float64(v) / 255
	}
	for i, v := range wave {
		f.TimeDomain[i] = float64(v)/128 - 1
	}
	return f
}

// ConfigureAnalysis sets the analyser FFT size and smoothing. The values are
// kept across rebuilds.
func (e *Engine) ConfigureAnalysis(fftSize int, smoothing float64) error {
	if err := dsp.ValidateFFTSize(fftSize); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.g != nil {
		if err := e.g.analyser.Configure(fftSize, smoothing); err != nil {
			return err
		}
		smoothing = e.g.analyser.Smoothing()
	} else if !(smoothing >= 0) {
		smoothing = 0
	} else if smoothing > 1 {
		smoothing = 1
	}
	e.fftSize = fftSize
	e.smoothing = smoothing
	return nil
}

// AnalysisConfig returns the configured FFT size and smoothing.
func (e *Engine) AnalysisConfig() (fftSize int, smoothing float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.fftSize, e.smoothing
}
