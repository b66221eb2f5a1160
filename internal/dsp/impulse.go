package dsp

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
)

// MaxImpulseDecay bounds the synthesized reverb tail in seconds.
const MaxImpulseDecay = 20.0

// ErrInvalidDecay is returned for a decay that cannot produce an impulse.
var ErrInvalidDecay = errors.New("invalid reverb decay")

// ImpulseLength returns round(sampleRate*decay).
func ImpulseLength(sampleRate, decay float64) int {
	return int(math.Round(sampleRate * decay))
}

// ValidateDecay rejects decays outside (0, MaxImpulseDecay].
func ValidateDecay(decay float64) error {
	if math.IsNaN(decay) || math.IsInf(decay, 0) || decay <= 0 || decay > MaxImpulseDecay {
		return fmt.Errorf("%w: %v s", ErrInvalidDecay, decay)
	}
	return nil
}

// ReverbImpulse synthesizes a two channel impulse response. The first 10% of
// the buffer holds fast decaying early reflections; the remaining 90% holds
// the late tail, shaped by a polynomial decay and a gentle high frequency
// roll-off.
func ReverbImpulse(sampleRate, decay float64, rng *rand.Rand) ([2][]float64, error) {
	var out [2][]float64
	if err := ValidateDecay(decay); err != nil {
		return out, err
	}
	length := ImpulseLength(sampleRate, decay)
	if length < 1 {
		return out, fmt.Errorf("%w: %v s yields an empty buffer at %v Hz", ErrInvalidDecay, decay, sampleRate)
	}

	early := int(float64(length) * 0.1)
	earlyTau := sampleRate * 0.02
	for ch := range out {
		buf := make([]float64, length)
		for i := 0; i < early; i++ {
			buf[i] = noise(rng) * math.Exp(-float64(i)/earlyTau) * 0.5
		}
		for i := early; i < length; i++ {
			t := float64(i) / float64(length)
			buf[i] = noise(rng) * math.Pow(1-t, decay) * (1 - t*0.5)
		}
		out[ch] = buf
	}
	return out, nil
}

func noise(rng *rand.Rand) float64 {
	return rng.Float64()*2 - 1
}
