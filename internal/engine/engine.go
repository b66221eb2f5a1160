// Package engine owns the audio processing graph: a fixed chain of EQ,
// compression, reverb, delay, stereo imaging and analysis between a
// Transport and an output Device. Control methods write parameters that the
// render goroutine picks up at the next quantum.
package engine

import (
	"fmt"
	"math"
	"math/rand/v2"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"github.com/olivier-w/harmonia/internal/dsp"
	"github.com/olivier-w/harmonia/internal/effects"
	"github.com/olivier-w/harmonia/internal/logging"
)

// State is the lifecycle stage of the graph.
type State uint8

const (
	Unbuilt State = iota
	Built
	Closed
)

func (s State) String() string {
	switch s {
	case Built:
		return "built"
	case Closed:
		return "closed"
	default:
		return "unbuilt"
	}
}

// Default analysis settings before a quality level is chosen.
const (
	DefaultFFTSize   = 2048
	DefaultSmoothing = 0.8
)

// Option configures an Engine.
type Option func(*Engine)

// WithDeviceFactory sets how the output device is opened.
func WithDeviceFactory(f DeviceFactory) Option {
	return func(e *Engine) { e.newDevice = f }
}

// WithLogger sets the logger.
func WithLogger(log logrus.FieldLogger) Option {
	return func(e *Engine) { e.log = logging.OrDiscard(log) }
}

// WithEffects seeds the buffered effect state, typically from saved settings.
func WithEffects(fx effects.State) Option {
	return func(e *Engine) { e.fx = fx }
}

// WithSeed fixes the noise used for reverb impulses.
func WithSeed(a, b uint64) Option {
	return func(e *Engine) { e.rng = rand.New(rand.NewPCG(a, b)) }
}

// Engine is the audio graph and its control surface. The zero value is not
// usable; call New.
type Engine struct {
	log       logrus.FieldLogger
	newDevice DeviceFactory

	mu         sync.Mutex
	state      State
	fx         effects.State
	g          *graph
	dev        Device
	sampleRate float64
	fftSize    int
	smoothing  float64

	rng                *rand.Rand
	impulseDecay       float64
	impulseLength      int
	impulseGenerations int
	impulseFailed      bool
	capabilityLogged   bool

	sources atomic.Pointer[sourceSet]

	renderMu sync.Mutex
	quantum  []byte
	pending  []byte // unread tail of quantum
	live     atomic.Pointer[graph]

	ab    abRepeat
	xfade *crossfadeSession
}

// New returns an unbuilt engine. Without WithDeviceFactory it opens the
// system audio output through oto.
func New(opts ...Option) *Engine {
	e := &Engine{
		log:          logging.Discard(),
		newDevice:    NewOtoDevice,
		fx:           effects.Default(),
		fftSize:      DefaultFFTSize,
		smoothing:    DefaultSmoothing,
		impulseDecay: math.NaN(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.rng == nil {
		e.rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	e.sources.Store(&sourceSet{})
	return e
}

// State reports the lifecycle stage.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// SetDeviceFactory replaces the device factory for the next build. It is how
// a caller falls back to a headless device after ErrUnsupportedCapability.
func (e *Engine) SetDeviceFactory(f DeviceFactory) {
	e.mu.Lock()
	e.newDevice = f
	e.mu.Unlock()
}

// SampleRate returns the rate of the built graph, or 0 when unbuilt.
func (e *Engine) SampleRate() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sampleRate
}

// EnsureBuilt opens the device and wires the graph if that has not happened
// yet. It is a no-op on a built engine. After Close it builds a fresh graph
// from scratch.
func (e *Engine) EnsureBuilt() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state == Built {
		return nil
	}

	dev, err := e.newDevice()
	if err != nil {
		if !e.capabilityLogged {
			e.log.WithError(err).Warn("audio output unavailable")
			e.capabilityLogged = true
		}
		return fmt.Errorf("%w: %v", ErrUnsupportedCapability, err)
	}

	sr := float64(dev.SampleRate())
	analyser, err := dsp.NewAnalyser(e.fftSize, e.smoothing)
	if err != nil {
		dev.Close()
		return fmt.Errorf("configuring analyser: %w", err)
	}
	g, err := buildGraph(sr, &e.sources, analyser)
	if err != nil {
		dev.Close()
		return fmt.Errorf("building graph: %w", err)
	}

	e.g = g
	e.dev = dev
	e.sampleRate = sr
	e.impulseDecay = math.NaN()
	e.impulseFailed = false
	e.impulseLength = 0

	e.generateImpulseLocked(e.fx.Reverb.Decay)
	e.pushLocked()

	e.renderMu.Lock()
	e.pending = nil
	e.renderMu.Unlock()
	e.live.Store(g)

	if err := dev.Start(e); err != nil {
		e.live.Store(nil)
		e.g = nil
		e.dev = nil
		dev.Close()
		return fmt.Errorf("%w: starting device: %v", ErrUnsupportedCapability, err)
	}

	e.state = Built
	e.log.WithFields(logrus.Fields{
		"sample_rate": sr,
		"nodes":       len(g.topo.kinds),
	}).Info("audio graph built")
	return nil
}

// Close stops the device and discards the graph. Effect settings survive;
// the next EnsureBuilt starts over.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != Built {
		if e.state == Unbuilt {
			e.state = Closed
		}
		return nil
	}

	var err error
	if e.dev != nil {
		err = e.dev.Close()
	}
	e.live.Store(nil)
	e.renderMu.Lock()
	e.pending = nil
	e.renderMu.Unlock()

	e.g = nil
	e.dev = nil
	e.state = Closed
	e.log.Info("audio graph closed")
	return err
}

// Read renders interleaved float32 stereo into p. The device calls it from
// its own goroutine. Without a graph it produces silence.
func (e *Engine) Read(p []byte) (int, error) {
	e.renderMu.Lock()
	defer e.renderMu.Unlock()

	g := e.live.Load()
	if g == nil {
		clear(p)
		return len(p), nil
	}

	n := 0
	for n < len(p) {
		if len(e.pending) == 0 {
			if e.quantum == nil {
				e.quantum = make([]byte, quantumFrames*frameSize)
			}
			g.renderQuantum(e.quantum)
			e.pending = e.quantum
		}
		c := copy(p[n:], e.pending)
		n += c
		e.pending = e.pending[c:]
	}
	return n, nil
}

// Attach makes t the primary transport and applies the current playback
// rate to it. Any previous primary is detached but not closed.
func (e *Engine) Attach(t Transport) {
	e.mu.Lock()
	rate := e.fx.PlaybackRate
	e.mu.Unlock()

	if t != nil {
		t.SetPlaybackRate(rate)
	}
	e.ClearABRepeat()
	e.sources.Store(&sourceSet{primary: t})
}

// Primary returns the transport currently feeding the graph.
func (e *Engine) Primary() Transport {
	return e.sources.Load().primary
}
