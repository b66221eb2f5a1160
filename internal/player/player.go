// Package player decodes local audio files into the PCM stream the effects
// engine consumes, and keeps the transport state around it: position,
// seeking, volume, speed and position notifications.
package player

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/olivier-w/harmonia/internal/effects"
	"github.com/olivier-w/harmonia/internal/engine"
	"github.com/olivier-w/harmonia/internal/logging"
)

var (
	// ErrClosed is returned by operations on a closed player.
	ErrClosed = errors.New("player closed")

	// ErrUnsupportedFormat is returned for files no decoder handles.
	ErrUnsupportedFormat = errors.New("unsupported audio format")

	// ErrNotSeekable is returned when the source cannot reposition.
	ErrNotSeekable = errors.New("source is not seekable")
)

// DefaultVolume is the volume a new player starts at.
const DefaultVolume = 0.8

// notifyInterval is how often subscribers hear the position.
const notifyInterval = 100 * time.Millisecond

var _ engine.Transport = (*Player)(nil)

// countingReader tracks how many bytes of the resampled stream have been
// consumed, which is the playback position.
type countingReader struct {
	reader io.Reader
	pos    int64
	mu     sync.Mutex
}

func (cr *countingReader) Read(p []byte) (int, error) {
	n, err := cr.reader.Read(p)
	cr.mu.Lock()
	cr.pos += int64(n)
	cr.mu.Unlock()
	return n, err
}

func (cr *countingReader) Pos() int64 {
	cr.mu.Lock()
	defer cr.mu.Unlock()
	return cr.pos
}

func (cr *countingReader) SetPos(pos int64) {
	cr.mu.Lock()
	cr.pos = pos
	cr.mu.Unlock()
}

// Player is a file-backed transport. It starts paused; call Play.
type Player struct {
	log     logrus.FieldLogger
	file    io.Closer
	decoder io.ReadSeeker
	counter *countingReader
	speed   *rateReader

	bytesPerSec int64
	total       int64
	canSeek     bool

	mu       sync.Mutex
	volume   float64
	paused   bool
	finished bool
	closed   bool
	done     chan struct{}
	carry    []byte // partial frame held between reads

	subMu   sync.Mutex
	subs    map[int]func(time.Duration)
	nextSub int

	stopMon chan struct{}
	monDone chan struct{}
}

// Option configures a Player.
type Option func(*Player)

// WithLogger sets the logger.
func WithLogger(log logrus.FieldLogger) Option {
	return func(p *Player) { p.log = logging.OrDiscard(log) }
}

// WithVolume sets the starting volume.
func WithVolume(v float64) Option {
	return func(p *Player) { p.volume = clampVolume(v) }
}

// Open decodes path and returns a paused player for it.
func Open(path string, opts ...Option) (*Player, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	src, err := openSource(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	dec, err := newResampler(src)
	if err != nil {
		f.Close()
		return nil, err
	}

	p := newPlayer(dec, dec.Length(), f, opts...)
	p.log.WithFields(logrus.Fields{
		"path":        path,
		"duration":    p.Duration(),
		"source_rate": src.SampleRate(),
		"channels":    src.ChannelCount(),
	}).Info("track opened")
	return p, nil
}

func newPlayer(dec io.ReadSeeker, total int64, closer io.Closer, opts ...Option) *Player {
	counter := &countingReader{reader: dec}
	p := &Player{
		log:         logging.Discard(),
		file:        closer,
		decoder:     dec,
		counter:     counter,
		speed:       newRateReader(counter),
		bytesPerSec: outBytesPerSec,
		total:       total,
		canSeek:     true,
		volume:      DefaultVolume,
		paused:      true,
		done:        make(chan struct{}),
		subs:        make(map[int]func(time.Duration)),
		stopMon:     make(chan struct{}),
		monDone:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	go p.monitor(p.stopMon, p.monDone)
	return p
}

// monitor publishes the position while playing and closes done once the
// stream has run out.
func (p *Player) monitor(stop, finished chan struct{}) {
	defer close(finished)
	ticker := time.NewTicker(notifyInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			p.mu.Lock()
			active := !p.paused && !p.closed
			p.mu.Unlock()
			if active {
				p.notify(p.Position())
			}
		}
	}
}

func (p *Player) notify(pos time.Duration) {
	p.subMu.Lock()
	fns := make([]func(time.Duration), 0, len(p.subs))
	for _, fn := range p.subs {
		fns = append(fns, fn)
	}
	p.subMu.Unlock()
	for _, fn := range fns {
		fn(pos)
	}
}

// Subscribe registers fn for position updates, delivered about every
// 100 ms while playing and after every seek.
func (p *Player) Subscribe(fn func(time.Duration)) func() {
	p.subMu.Lock()
	defer p.subMu.Unlock()
	id := p.nextSub
	p.nextSub++
	p.subs[id] = fn
	return func() {
		p.subMu.Lock()
		delete(p.subs, id)
		p.subMu.Unlock()
	}
}

// Read fills buf with volume-scaled stereo s16le PCM. It never blocks on
// the transport state: paused, finished and closed players read silence.
func (p *Player) Read(buf []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.paused || p.finished || p.closed {
		clear(buf)
		return len(buf), nil
	}

	n := copy(buf, p.carry)
	p.carry = p.carry[n:]
	for n < len(buf) {
		m, err := p.speed.Read(buf[n:])
		n += m
		if err != nil {
			if err != io.EOF {
				p.log.WithError(err).Warn("decode error, ending track")
			}
			p.finishLocked()
			break
		}
		if m == 0 {
			break
		}
	}

	whole := n - n%outFrameSize
	if whole < n {
		p.carry = append(p.carry[:0], buf[whole:n]...)
	}
	applyVolume(buf[:whole], p.volume)
	clear(buf[whole:])
	return len(buf), nil
}

func (p *Player) finishLocked() {
	if p.finished {
		return
	}
	p.finished = true
	close(p.done)
}

func applyVolume(pcm []byte, volume float64) {
	if volume == 1 {
		return
	}
	for i := 0; i+1 < len(pcm); i += 2 {
		s := float64(int16(binary.LittleEndian.Uint16(pcm[i:])))
		binary.LittleEndian.PutUint16(pcm[i:], uint16(int16(s*volume)))
	}
}

// Done is closed when the track plays to its end. A seek after the end
// arms a fresh channel.
func (p *Player) Done() <-chan struct{} {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.done
}

// Play resumes playback.
func (p *Player) Play() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrClosed
	}
	p.paused = false
	return nil
}

// Pause stops playback at the current position.
func (p *Player) Pause() {
	p.mu.Lock()
	p.paused = true
	p.mu.Unlock()
}

// TogglePause switches between playing and paused.
func (p *Player) TogglePause() {
	p.mu.Lock()
	p.paused = !p.paused
	p.mu.Unlock()
}

// Paused reports whether playback is paused.
func (p *Player) Paused() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.paused
}

// Position returns the current playback position.
func (p *Player) Position() time.Duration {
	if p.bytesPerSec <= 0 {
		return 0
	}
	secs := float64(p.counter.Pos()) / float64(p.bytesPerSec)
	return time.Duration(secs * float64(time.Second))
}

// Duration returns the total track length.
func (p *Player) Duration() time.Duration {
	if p.bytesPerSec <= 0 {
		return 0
	}
	return time.Duration(float64(p.total) / float64(p.bytesPerSec) * float64(time.Second))
}

// clampSeekByteOffset converts pos to a byte offset inside [0, total]
// aligned down to a whole frame.
func clampSeekByteOffset(pos time.Duration, bytesPerSec, total, frameSize int64) int64 {
	off := int64(pos.Seconds() * float64(bytesPerSec))
	off = min(max(off, 0), total)
	if frameSize > 0 {
		off -= off % frameSize
	}
	return off
}

// SeekTo moves playback to pos, clamped to the track.
func (p *Player) SeekTo(pos time.Duration) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrClosed
	}
	if !p.canSeek {
		p.mu.Unlock()
		return ErrNotSeekable
	}

	off := clampSeekByteOffset(pos, p.bytesPerSec, p.total, outFrameSize)
	if _, err := p.decoder.Seek(off, io.SeekStart); err != nil {
		p.mu.Unlock()
		return fmt.Errorf("seeking to %v: %w", pos, err)
	}
	p.counter.SetPos(off)
	p.speed.reset()
	p.carry = p.carry[:0]
	if p.finished && off < p.total {
		p.finished = false
		p.done = make(chan struct{})
	}
	p.mu.Unlock()

	p.notify(p.Position())
	return nil
}

// Seek moves playback by delta from the current position.
func (p *Player) Seek(delta time.Duration) error {
	return p.SeekTo(p.Position() + delta)
}

// Volume returns the volume in [0, 1].
func (p *Player) Volume() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.volume
}

// SetVolume sets the volume, clamped to [0, 1].
func (p *Player) SetVolume(v float64) {
	p.mu.Lock()
	p.volume = clampVolume(v)
	p.mu.Unlock()
}

// AdjustVolume changes the volume by delta.
func (p *Player) AdjustVolume(delta float64) {
	p.mu.Lock()
	p.volume = clampVolume(p.volume + delta)
	p.mu.Unlock()
}

// SetPlaybackRate sets the speed, clamped to [0.5, 2].
func (p *Player) SetPlaybackRate(rate float64) {
	p.speed.setRate(effects.ClampPlaybackRate(rate))
}

// PlaybackRate returns the current speed.
func (p *Player) PlaybackRate() float64 {
	return p.speed.getRate()
}

// Close stops the monitor and releases the file. Done is closed too so
// waiters are released. It is safe to call more than once.
func (p *Player) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	if !p.finished {
		p.finished = true
		close(p.done)
	}
	p.mu.Unlock()

	close(p.stopMon)
	<-p.monDone
	if p.file != nil {
		return p.file.Close()
	}
	return nil
}

func clampVolume(v float64) float64 {
	if !(v >= 0) {
		return 0
	}
	return min(v, 1)
}
