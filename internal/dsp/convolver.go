package dsp

import (
	"errors"
	"fmt"
	"math"
	"sync/atomic"

	"github.com/cwbudde/algo-dsp/dsp/conv"
)

// Partition sizes of the convolver are powers of two between
// 2^convolverMinOrder and 2^convolverMaxOrder samples.
const (
	convolverMinOrder = 7
	convolverMaxOrder = 13
)

// ConvolverLatency is the delay the convolver adds to its branch, in
// samples. It equals one render quantum.
const ConvolverLatency = 1 << convolverMinOrder

const (
	gainCalibration           = 0.00125
	gainCalibrationSampleRate = 44100.0
	minPower                  = 0.000125
)

// ErrEmptyKernel is returned by NewKernel for an impulse without samples.
var ErrEmptyKernel = errors.New("empty impulse response")

// Kernel is a stereo impulse response prepared for streaming convolution.
// A kernel carries its own convolution state, so it serves one Convolver.
type Kernel struct {
	length int
	parts  [2]*conv.PartitionedConvolution
}

// NewKernel partitions a stereo impulse response. When normalize is set the
// response is scaled so that its loudness matches regardless of length,
// using the same power calibration as browser convolvers.
func NewKernel(ir [2][]float64, sampleRate float64, normalize bool) (*Kernel, error) {
	length := max(len(ir[0]), len(ir[1]))
	if len(ir[0]) == 0 || len(ir[1]) == 0 {
		return nil, ErrEmptyKernel
	}

	scale := 1.0
	if normalize {
		scale = normalizationScale(ir, sampleRate)
	}

	k := &Kernel{length: length}
	for ch := range ir {
		scaled := make([]float64, len(ir[ch]))
		for i, s := range ir[ch] {
			scaled[i] = s * scale
		}
		p, err := conv.NewPartitionedConvolution(scaled, convolverMinOrder, convolverMaxOrder)
		if err != nil {
			return nil, fmt.Errorf("partitioning channel %d: %w", ch, err)
		}
		k.parts[ch] = p
	}
	return k, nil
}

// Length returns the impulse length in samples.
func (k *Kernel) Length() int { return k.length }

func normalizationScale(ir [2][]float64, sampleRate float64) float64 {
	var power float64
	n := 0
	for _, ch := range ir {
		for _, s := range ch {
			power += s * s
		}
		n += len(ch)
	}
	if n == 0 {
		return 1
	}
	power = math.Sqrt(power / float64(n))
	if math.IsNaN(power) || math.IsInf(power, 0) || power < minPower {
		power = minPower
	}
	scale := gainCalibration / power
	if sampleRate > 0 {
		scale *= gainCalibrationSampleRate / sampleRate
	}
	return scale
}

// Convolver streams stereo audio through the current kernel. The kernel can
// be replaced from another goroutine with SetKernel; the render side picks
// it up at the next call to Process.
type Convolver struct {
	next atomic.Pointer[Kernel]
}

// NewConvolver returns a convolver with no kernel; it outputs silence until
// SetKernel is called.
func NewConvolver() *Convolver {
	return &Convolver{}
}

// SetKernel publishes a new impulse response.
func (c *Convolver) SetKernel(k *Kernel) {
	c.next.Store(k)
}

// Kernel returns the most recently published kernel.
func (c *Convolver) Kernel() *Kernel {
	return c.next.Load()
}

// Process convolves one block of stereo input into out. The slices must all
// have the same length. Output lags input by ConvolverLatency samples.
func (c *Convolver) Process(inL, inR, outL, outR []float64) {
	k := c.next.Load()
	if k == nil {
		clear(outL)
		clear(outR)
		return
	}
	if k.parts[0].ProcessBlock(inL, outL) != nil {
		clear(outL)
	}
	if k.parts[1].ProcessBlock(inR, outR) != nil {
		clear(outR)
	}
}
