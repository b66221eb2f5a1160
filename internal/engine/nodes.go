package engine

import (
	"encoding/binary"
	"math"
	"sync/atomic"

	"github.com/cwbudde/algo-dsp/dsp/delay"
	"github.com/cwbudde/algo-dsp/dsp/filter/biquad"
	"github.com/cwbudde/algo-dsp/dsp/filter/design"

	"github.com/olivier-w/harmonia/internal/dsp"
	"github.com/olivier-w/harmonia/internal/effects"
)

// quantumFrames is the render block size. Parameters are sampled once per
// quantum.
const quantumFrames = 128

// block is one quantum of stereo audio.
type block [2][]float64

func newBlock() block {
	return block{make([]float64, quantumFrames), make([]float64, quantumFrames)}
}

func (b block) zero() {
	clear(b[0])
	clear(b[1])
}

type processor interface {
	process(in, out block)
}

// committer is implemented by deferred nodes.
type committer interface {
	commit(in block)
}

// sourceSet is what the source node mixes: the primary transport and, while
// a crossfade runs, the incoming one.
type sourceSet struct {
	primary   Transport
	secondary Transport
}

type sourceNode struct {
	sources *atomic.Pointer[sourceSet]
	raw     []byte
}

func newSourceNode(sources *atomic.Pointer[sourceSet]) *sourceNode {
	return &sourceNode{sources: sources, raw: make([]byte, quantumFrames*4)}
}

func (n *sourceNode) process(_, out block) {
	out.zero()
	set := n.sources.Load()
	if set == nil {
		return
	}
	n.mix(set.primary, out)
	n.mix(set.secondary, out)
}

func (n *sourceNode) mix(t Transport, out block) {
	if t == nil {
		return
	}
	got := 0
	for got < len(n.raw) {
		m, err := t.Read(n.raw[got:])
		got += m
		if m == 0 || err != nil {
			break
		}
	}
	frames := got / 4
	for i := 0; i < frames; i++ {
		l := int16(binary.LittleEndian.Uint16(n.raw[i*4:]))
		r := int16(binary.LittleEndian.Uint16(n.raw[i*4+2:]))
		out[0][i] += float64(l) / 32768
		out[1][i] += float64(r) / 32768
	}
}

type bandFilterNode struct {
	gain       *Param
	freq       float64
	kind       effects.FilterKind
	sampleRate float64
	applied    float64
	filters    [2]biquad.Section
}

func newBandFilterNode(band int, gain *Param, sampleRate float64) *bandFilterNode {
	return &bandFilterNode{
		gain:       gain,
		freq:       effects.BandFrequencies[band],
		kind:       effects.BandKind(band),
		sampleRate: sampleRate,
		applied:    math.NaN(),
	}
}

func (n *bandFilterNode) process(in, out block) {
	if g := n.gain.Get(); g != n.applied {
		// the filter state is kept so a gain change does not click
		c := bandCoefficients(n.kind, n.freq, g, n.sampleRate)
		n.filters[0].Coefficients = c
		n.filters[1].Coefficients = c
		n.applied = g
	}
	for ch := range out {
		n.filters[ch].ProcessBlockTo(out[ch], in[ch])
	}
}

// passThrough is the coefficient set of a wire.
var passThrough = biquad.Coefficients{B0: 1}

// bandCoefficients designs one EQ band. Shelves use Q = 1/sqrt(2), peaking
// bands Q = 1. A band the sample rate cannot represent passes through.
func bandCoefficients(kind effects.FilterKind, freq, gainDB, sampleRate float64) biquad.Coefficients {
	var c biquad.Coefficients
	switch kind {
	case effects.LowShelf:
		c = design.LowShelf(freq, gainDB, 1/math.Sqrt2, sampleRate)
	case effects.HighShelf:
		c = design.HighShelf(freq, gainDB, 1/math.Sqrt2, sampleRate)
	default:
		c = design.Peak(freq, gainDB, 1, sampleRate)
	}
	if c == (biquad.Coefficients{}) {
		return passThrough
	}
	return c
}

type dynamicsNode struct {
	settings *atomic.Pointer[effects.Compressor]
	applied  effects.Compressor
	comp     *dsp.Compressor
}

func (n *dynamicsNode) process(in, out block) {
	if s := n.settings.Load(); s != nil && *s != n.applied {
		n.comp.Configure(s.Threshold, s.Knee, s.Ratio, s.Attack, s.Release)
		n.applied = *s
	}
	for i := range in[0] {
		out[0][i], out[1][i] = n.comp.Process(in[0][i], in[1][i])
	}
}

// gainNode serves the dry/wet mix gains, the feedback gain and the output
// gain.
type gainNode struct {
	gain *Param
	r    ramp
}

func (n *gainNode) process(in, out block) {
	g, inc := n.r.step(n.gain.Get(), quantumFrames)
	for i := range in[0] {
		g += inc
		out[0][i] = in[0][i] * g
		out[1][i] = in[1][i] * g
	}
}

type convolverNode struct {
	conv *dsp.Convolver
}

func (n *convolverNode) process(in, out block) {
	n.conv.Process(in[0], in[1], out[0], out[1])
}

// delayNode emits from its lines during the quantum and records its summed
// input (dry feed plus feedback) when the quantum is committed. The
// effective delay is never shorter than one quantum.
type delayNode struct {
	seconds    *Param
	sampleRate float64
	maxDelay   float64
	lines      [2]*delay.Line
}

// delayHeadroom covers the interpolator's neighbours beyond the longest
// delay.
const delayHeadroom = 4

func newDelayNode(seconds *Param, sampleRate float64) (*delayNode, error) {
	maxDelay := math.Ceil(effects.MaxDelayTime*sampleRate) + quantumFrames
	n := &delayNode{seconds: seconds, sampleRate: sampleRate, maxDelay: maxDelay}
	for ch := range n.lines {
		line, err := delay.New(int(maxDelay) + delayHeadroom)
		if err != nil {
			return nil, err
		}
		n.lines[ch] = line
	}
	return n, nil
}

func (n *delayNode) delaySamples() float64 {
	d := n.seconds.Get() * n.sampleRate
	return min(max(d, quantumFrames+1), n.maxDelay)
}

func (n *delayNode) process(_, out block) {
	d := n.delaySamples()
	for ch, line := range n.lines {
		for i := range out[ch] {
			// nothing of this quantum is written yet, so sample i of the
			// block is d-i writes back
			out[ch][i] = line.ReadFractional(d - float64(i))
		}
	}
}

func (n *delayNode) commit(in block) {
	for ch, line := range n.lines {
		for _, x := range in[ch] {
			line.Write(x)
		}
	}
}

// pannerNode applies mid/side width and then equal-power panning.
type pannerNode struct {
	pan   *Param
	width *Param
	pr    ramp
	wr    ramp
}

func (n *pannerNode) process(in, out block) {
	pan, panInc := n.pr.step(n.pan.Get(), quantumFrames)
	width, widthInc := n.wr.step(n.width.Get(), quantumFrames)
	for i := range in[0] {
		pan += panInc
		width += widthInc
		l, r := widen(in[0][i], in[1][i], width)
		out[0][i], out[1][i] = equalPowerPan(l, r, pan)
	}
}

func widen(l, r, width float64) (float64, float64) {
	mid := (l + r) * 0.5
	side := (l - r) * 0.5 * width
	return mid + side, mid - side
}

// equalPowerPan pans a stereo pair: the side being panned away from is
// folded into the other side with a sine/cosine law.
func equalPowerPan(l, r, pan float64) (float64, float64) {
	if pan <= 0 {
		x := (pan + 1) * math.Pi / 2
		return l + r*math.Cos(x), r * math.Sin(x)
	}
	x := pan * math.Pi / 2
	return l * math.Cos(x), r + l*math.Sin(x)
}

type analysisNode struct {
	analyser *dsp.Analyser
	mono     []float32
}

func (n *analysisNode) process(in, out block) {
	if cap(n.mono) < len(in[0]) {
		n.mono = make([]float32, len(in[0]))
	}
	mono := n.mono[:len(in[0])]
	for i := range in[0] {
		out[0][i] = in[0][i]
		out[1][i] = in[1][i]
		mono[i] = float32((in[0][i] + in[1][i]) * 0.5)
	}
	n.analyser.Write(mono)
}
