package engine

import (
	"io"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"
)

// SampleRate is the rate the graph and every transport run at.
const SampleRate = 48000

const (
	channelCount   = 2
	bytesPerSample = 4 // float32
	frameSize      = channelCount * bytesPerSample
)

// Device is the audio output the engine renders into. Start begins pulling
// from r on the device's own goroutine.
type Device interface {
	SampleRate() int
	Start(r io.Reader) error
	Close() error
}

// DeviceFactory opens a Device. An error means no realtime output is
// available.
type DeviceFactory func() (Device, error)

var (
	globalOtoCtx *oto.Context
	otoOnce      sync.Once
	otoInitErr   error
)

func initOto() (*oto.Context, error) {
	otoOnce.Do(func() {
		op := &oto.NewContextOptions{
			SampleRate:   SampleRate,
			ChannelCount: channelCount,
			Format:       oto.FormatFloat32LE,
			BufferSize:   20 * time.Millisecond,
		}
		var ready chan struct{}
		globalOtoCtx, ready, otoInitErr = oto.NewContext(op)
		if otoInitErr == nil {
			<-ready
		}
	})
	return globalOtoCtx, otoInitErr
}

// otoDevice plays through the process-wide oto context. Closing the device
// closes its player; the context itself lives for the whole process because
// oto allows only one.
type otoDevice struct {
	ctx    *oto.Context
	player *oto.Player
	mu     sync.Mutex
}

// NewOtoDevice opens the system audio output.
func NewOtoDevice() (Device, error) {
	ctx, err := initOto()
	if err != nil {
		return nil, err
	}
	return &otoDevice{ctx: ctx}, nil
}

func (d *otoDevice) SampleRate() int { return SampleRate }

func (d *otoDevice) Start(r io.Reader) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.player = d.ctx.NewPlayer(r)
	d.player.SetBufferSize(quantumFrames * frameSize * 8)
	d.player.Play()
	return nil
}

func (d *otoDevice) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.player == nil {
		return nil
	}
	d.player.Pause()
	err := d.player.Close()
	d.player = nil
	return err
}

// clockDevice pulls audio at wall-clock pace and throws it away. It keeps
// positions advancing and the analyser fed when there is no sound card.
type clockDevice struct {
	rate   int
	tick   time.Duration
	stop   chan struct{}
	done   chan struct{}
	mu     sync.Mutex
	closed bool
}

// NewClockDevice returns a silent device that consumes audio in real time.
func NewClockDevice() (Device, error) {
	return &clockDevice{rate: SampleRate, tick: 10 * time.Millisecond}, nil
}

func (d *clockDevice) SampleRate() int { return d.rate }

func (d *clockDevice) Start(r io.Reader) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stop = make(chan struct{})
	d.done = make(chan struct{})
	go d.run(r, d.stop, d.done)
	return nil
}

func (d *clockDevice) run(r io.Reader, stop, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(d.tick)
	defer ticker.Stop()

	var buf []byte
	last := time.Now()
	var owed float64
	for {
		select {
		case <-stop:
			return
		case now := <-ticker.C:
			owed += now.Sub(last).Seconds() * float64(d.rate)
			last = now
			frames := int(owed)
			if frames == 0 {
				continue
			}
			owed -= float64(frames)
			if cap(buf) < frames*frameSize {
				buf = make([]byte, frames*frameSize)
			}
			if _, err := io.ReadFull(r, buf[:frames*frameSize]); err != nil {
				return
			}
		}
	}
}

func (d *clockDevice) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed || d.stop == nil {
		d.closed = true
		return nil
	}
	d.closed = true
	close(d.stop)
	<-d.done
	return nil
}
