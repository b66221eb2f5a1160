package engine

import (
	"fmt"
	"math"
	"sync/atomic"

	"github.com/olivier-w/harmonia/internal/dsp"
	"github.com/olivier-w/harmonia/internal/effects"
)

// graphParams are the live parameters the render goroutine samples.
type graphParams struct {
	bands      [effects.NumBands]*Param
	compressor atomic.Pointer[effects.Compressor]
	dry        *Param
	reverbMix  *Param
	delayTime  *Param
	feedback   *Param
	delayMix   *Param
	pan        *Param
	width      *Param
	output     *Param
}

func newGraphParams() *graphParams {
	p := &graphParams{
		dry:       newParam(1),
		reverbMix: newParam(0),
		delayTime: newParam(effects.DefaultDelay.Time),
		feedback:  newParam(effects.DefaultDelay.Feedback),
		delayMix:  newParam(0),
		pan:       newParam(0),
		width:     newParam(1),
		output:    newParam(1),
	}
	for i := range p.bands {
		p.bands[i] = newParam(0)
	}
	c := effects.TransparentCompressor
	p.compressor.Store(&c)
	return p
}

// graph is the node arena plus its topology and render buffers.
type graph struct {
	topo   topology
	procs  []processor
	outs   []block
	ins    []block
	silent block

	params   *graphParams
	conv     *dsp.Convolver
	analyser *dsp.Analyser

	// handles of the nodes the engine addresses directly
	source, compressor, dry, convolver, reverbMix NodeID
	delay, feedback, delayMix, panner, analysis   NodeID
	output                                        NodeID
	bands                                         [effects.NumBands]NodeID
}

// buildGraph wires Source -> EQ x10 -> Compressor -> {Dry, Convolver ->
// ReverbMix, DelayLine -> DelayMix} -> Panner -> Analysis -> Output, with
// DelayLine -> Feedback -> DelayLine closing the echo loop.
func buildGraph(sampleRate float64, sources *atomic.Pointer[sourceSet], analyser *dsp.Analyser) (*graph, error) {
	g := &graph{
		params:   newGraphParams(),
		conv:     dsp.NewConvolver(),
		analyser: analyser,
		silent:   newBlock(),
	}
	p := g.params

	add := func(kind NodeKind, name string, proc processor) NodeID {
		id := g.topo.add(kind, name)
		g.procs = append(g.procs, proc)
		g.outs = append(g.outs, newBlock())
		g.ins = append(g.ins, newBlock())
		return id
	}

	g.source = add(KindSource, "source", newSourceNode(sources))
	prev := g.source
	for i := range g.bands {
		name := "eq-" + effects.BandKind(i).String()
		g.bands[i] = add(KindBandFilter, name, newBandFilterNode(i, p.bands[i], sampleRate))
		g.topo.connect(prev, g.bands[i])
		prev = g.bands[i]
	}

	comp, err := dsp.NewCompressor(sampleRate)
	if err != nil {
		return nil, fmt.Errorf("compressor: %w", err)
	}
	g.compressor = add(KindDynamics, "compressor", &dynamicsNode{
		settings: &p.compressor,
		comp:     comp,
	})
	g.topo.connect(prev, g.compressor)

	g.dry = add(KindGain, "dry", &gainNode{gain: p.dry})
	g.convolver = add(KindConvolver, "convolver", &convolverNode{conv: g.conv})
	g.reverbMix = add(KindGain, "reverb-mix", &gainNode{gain: p.reverbMix})
	delayNode, err := newDelayNode(p.delayTime, sampleRate)
	if err != nil {
		return nil, fmt.Errorf("delay: %w", err)
	}
	g.delay = add(KindDelayLine, "delay", delayNode)
	g.feedback = add(KindFeedbackGain, "feedback", &gainNode{gain: p.feedback})
	g.delayMix = add(KindGain, "delay-mix", &gainNode{gain: p.delayMix})
	g.panner = add(KindStereoPanner, "panner", &pannerNode{pan: p.pan, width: p.width})
	g.analysis = add(KindAnalysis, "analysis", &analysisNode{analyser: analyser})
	g.output = add(KindOutput, "output", &gainNode{gain: p.output})

	g.topo.connect(g.compressor, g.dry)
	g.topo.connect(g.compressor, g.convolver)
	g.topo.connect(g.convolver, g.reverbMix)
	g.topo.connect(g.compressor, g.delay)
	g.topo.connect(g.delay, g.feedback)
	g.topo.connect(g.feedback, g.delay)
	g.topo.connect(g.delay, g.delayMix)
	g.topo.connect(g.dry, g.panner)
	g.topo.connect(g.reverbMix, g.panner)
	g.topo.connect(g.delayMix, g.panner)
	g.topo.connect(g.panner, g.analysis)
	g.topo.connect(g.analysis, g.output)

	if err := g.topo.sort(); err != nil {
		return nil, err
	}
	return g, nil
}

// gather returns the summed outputs feeding id.
func (g *graph) gather(id NodeID) block {
	inputs := g.topo.inputs[id]
	switch len(inputs) {
	case 0:
		return g.silent
	case 1:
		return g.outs[inputs[0]]
	}
	sum := g.ins[id]
	copy(sum[0], g.outs[inputs[0]][0])
	copy(sum[1], g.outs[inputs[0]][1])
	for _, from := range inputs[1:] {
		src := g.outs[from]
		for ch := range sum {
			for i, v := range src[ch] {
				sum[ch][i] += v
			}
		}
	}
	return sum
}

// renderQuantum runs every node once and writes the output node's block as
// interleaved float32 little-endian into dst, which must hold one quantum.
func (g *graph) renderQuantum(dst []byte) {
	for _, id := range g.topo.order {
		g.procs[id].process(g.gather(id), g.outs[id])
	}
	for id, proc := range g.procs {
		if c, ok := proc.(committer); ok {
			c.commit(g.gather(NodeID(id)))
		}
	}

	out := g.outs[g.output]
	for i := 0; i < quantumFrames; i++ {
		putFloat32(dst[i*frameSize:], out[0][i])
		putFloat32(dst[i*frameSize+4:], out[1][i])
	}
}

func putFloat32(b []byte, v float64) {
	if v > 1 {
		v = 1
	} else if v < -1 {
		v = -1
	} else if math.IsNaN(v) {
		v = 0
	}
	bits := math.Float32bits(float32(v))
	b[0] = byte(bits)
	b[1] = byte(bits >> 8)
	b[2] = byte(bits >> 16)
	b[3] = byte(bits >> 24)
}
