package dsp

import (
	"fmt"
	"math"
	"math/cmplx"
	"sync"

	"github.com/mjibson/go-dsp/fft"
	"github.com/mjibson/go-dsp/window"
)

// Analyser limits and defaults.
const (
	MinFFTSize     = 32
	MaxFFTSize     = 32768
	DefaultMinDB   = -100.0
	DefaultMaxDB   = -30.0
	analysisWindow = MaxFFTSize
)

// Analyser keeps a window of recent mono samples and turns it into byte
// spectra and waveforms. Frequency data is smoothed over successive calls
// with an exponential moving average, then mapped from [minDB, maxDB] to
// [0, 255].
type Analyser struct {
	ring *SampleRing

	mu        sync.Mutex
	fftSize   int
	smoothing float64
	minDB     float64
	maxDB     float64
	win       []float64
	smoothed  []float64
	scratch   []float32
	input     []float64
}

// NewAnalyser returns an analyser with the given FFT size and smoothing.
func NewAnalyser(fftSize int, smoothing float64) (*Analyser, error) {
	a := &Analyser{
		ring:  NewSampleRing(analysisWindow),
		minDB: DefaultMinDB,
		maxDB: DefaultMaxDB,
	}
	if err := a.Configure(fftSize, smoothing); err != nil {
		return nil, err
	}
	return a, nil
}

// Configure changes the FFT size and smoothing. fftSize must be a power of
// two in [MinFFTSize, MaxFFTSize]; smoothing is clamped to [0, 1].
func (a *Analyser) Configure(fftSize int, smoothing float64) error {
	if err := ValidateFFTSize(fftSize); err != nil {
		return err
	}
	if math.IsNaN(smoothing) || smoothing < 0 {
		smoothing = 0
	}
	if smoothing > 1 {
		smoothing = 1
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.fftSize != fftSize {
		a.fftSize = fftSize
		a.win = window.Blackman(fftSize)
		a.smoothed = make([]float64, fftSize/2)
		a.input = make([]float64, fftSize)
	}
	a.smoothing = smoothing
	return nil
}

// ValidateFFTSize reports whether n is a power of two in
// [MinFFTSize, MaxFFTSize].
func ValidateFFTSize(n int) error {
	if n < MinFFTSize || n > MaxFFTSize || n&(n-1) != 0 {
		return fmt.Errorf("fft size %d: must be a power of two in [%d, %d]", n, MinFFTSize, MaxFFTSize)
	}
	return nil
}

// FFTSize returns the current transform size.
func (a *Analyser) FFTSize() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.fftSize
}

// FrequencyBinCount is half the FFT size.
func (a *Analyser) FrequencyBinCount() int {
	return a.FFTSize() / 2
}

// Smoothing returns the averaging constant.
func (a *Analyser) Smoothing() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.smoothing
}

// Write feeds mono samples. It is called from the render goroutine.
func (a *Analyser) Write(samples []float32) {
	a.ring.Write(samples)
}

// Reset drops buffered samples and smoothing history.
func (a *Analyser) Reset() {
	a.ring.Clear()
	a.mu.Lock()
	clear(a.smoothed)
	a.mu.Unlock()
}

// ByteTimeDomainData returns the latest FFTSize samples mapped to bytes,
// 128 being silence.
func (a *Analyser) ByteTimeDomainData(dst []uint8) []uint8 {
	a.mu.Lock()
	defer a.mu.Unlock()

	n := a.fftSize
	a.scratch = a.ring.Latest(a.scratch, n)
	if cap(dst) < n {
		dst = make([]uint8, n)
	}
	dst = dst[:n]
	for i, s := range a.scratch {
		dst[i] = toByte(128 * (float64(s) + 1))
	}
	return dst
}

// FloatTimeDomainData returns the latest FFTSize samples unchanged.
func (a *Analyser) FloatTimeDomainData(dst []float32) []float32 {
	a.mu.Lock()
	n := a.fftSize
	a.mu.Unlock()
	return a.ring.Latest(dst, n)
}

// ByteFrequencyData computes a windowed spectrum of the latest FFTSize
// samples and returns FrequencyBinCount bytes.
func (a *Analyser) ByteFrequencyData(dst []uint8) []uint8 {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.updateSpectrum()
	bins := len(a.smoothed)
	if cap(dst) < bins {
		dst = make([]uint8, bins)
	}
	dst = dst[:bins]

	scale := 255 / (a.maxDB - a.minDB)
	for i, mag := range a.smoothed {
		db := silenceDB
		if mag > 0 {
			db = 20 * math.Log10(mag)
		}
		dst[i] = toByte((db - a.minDB) * scale)
	}
	return dst
}

func (a *Analyser) updateSpectrum() {
	n := a.fftSize
	a.scratch = a.ring.Latest(a.scratch, n)
	for i, s := range a.scratch {
		a.input[i] = float64(s) * a.win[i]
	}

	spec := fft.FFTReal(a.input)
	k := a.smoothing
	norm := 1 / float64(n)
	for i := range a.smoothed {
		mag := cmplx.Abs(spec[i]) * norm
		v := k*a.smoothed[i] + (1-k)*mag
		if math.IsNaN(v) || math.IsInf(v, 0) {
			v = 0
		}
		a.smoothed[i] = v
	}
}

func toByte(v float64) uint8 {
	if v <= 0 || math.IsNaN(v) {
		return 0
	}
	if v >= 255 {
		return 255
	}
	return uint8(v)
}
