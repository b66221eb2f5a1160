package player

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/olivier-w/harmonia/internal/engine"
)

const (
	outRate        = engine.SampleRate
	outChannels    = 2
	outFrameSize   = outChannels * 2
	outBytesPerSec = outRate * outFrameSize
)

// resampler presents any pcmSource as stereo s16le at the engine rate,
// upmixing mono and interpolating linearly between source frames.
type resampler struct {
	pending
	src         pcmSource
	passthrough bool
	srcRate     int64
	srcChannels int
	srcFrame    int

	totalSrc int64
	totalOut int64
	next     int64 // next output frame

	frames []int16 // buffered source frames as interleaved stereo
	base   int64   // absolute index of frames[0:2]
	chunk  []byte
	raw    []byte
}

func newResampler(src pcmSource) (*resampler, error) {
	rate := src.SampleRate()
	if rate <= 0 {
		return nil, fmt.Errorf("%w: sample rate %d", ErrUnsupportedFormat, rate)
	}
	ch := src.ChannelCount()
	if ch < 1 || ch > outChannels {
		return nil, fmt.Errorf("%w: %d channels", ErrUnsupportedFormat, ch)
	}

	r := &resampler{
		src:         src,
		passthrough: rate == outRate && ch == outChannels,
		srcRate:     int64(rate),
		srcChannels: ch,
		srcFrame:    ch * 2,
	}
	r.totalSrc = src.Length() / int64(r.srcFrame)
	r.totalOut = r.totalSrc * outRate / r.srcRate
	if r.totalSrc > 0 && r.totalOut == 0 {
		r.totalOut = 1
	}
	if r.passthrough {
		r.totalOut = src.Length() / outFrameSize
	}
	return r, nil
}

func (r *resampler) Length() int64     { return r.totalOut * outFrameSize }
func (r *resampler) SampleRate() int   { return outRate }
func (r *resampler) ChannelCount() int { return outChannels }

func (r *resampler) Read(p []byte) (int, error) {
	if r.passthrough {
		n, err := r.src.Read(p)
		r.pos += int64(n)
		return n, err
	}
	if n, ok := r.drain(p); ok {
		return n, nil
	}
	if r.next >= r.totalOut {
		return 0, io.EOF
	}

	want := (len(p) + outFrameSize - 1) / outFrameSize
	want = int(min(int64(max(want, 1)), r.totalOut-r.next))
	raw, err := r.generate(want)
	if len(raw) == 0 {
		if err == nil {
			err = io.EOF
		}
		return 0, err
	}
	return r.deliver(p, raw), nil
}

func (r *resampler) Seek(offset int64, whence int) (int64, error) {
	abs, err := resolveSeek(offset, whence, r.pos, r.Length())
	if err != nil {
		return r.pos, err
	}
	abs -= abs % outFrameSize

	if r.passthrough {
		got, err := r.src.Seek(abs, io.SeekStart)
		if err != nil {
			return r.pos, err
		}
		r.reset(got)
		return got, nil
	}

	out := abs / outFrameSize
	srcFrame := out * r.srcRate / outRate
	if _, err := r.src.Seek(srcFrame*int64(r.srcFrame), io.SeekStart); err != nil {
		return r.pos, err
	}
	r.reset(abs)
	r.next = out
	r.frames = r.frames[:0]
	r.base = srcFrame
	return abs, nil
}

func (r *resampler) generate(count int) ([]byte, error) {
	if cap(r.raw) < count*outFrameSize {
		r.raw = make([]byte, count*outFrameSize)
	}
	raw := r.raw[:count*outFrameSize]

	written := 0
	for written < count {
		num := r.next * r.srcRate
		i := num / outRate
		frac := num % outRate

		l0, r0, err := r.frameAt(i)
		if err != nil {
			return raw[:written*outFrameSize], err
		}
		l1, r1 := l0, r0
		if i+1 < r.totalSrc {
			if l1, r1, err = r.frameAt(i + 1); err != nil {
				l1, r1 = l0, r0
			}
		}

		off := written * outFrameSize
		binary.LittleEndian.PutUint16(raw[off:], uint16(lerp16(l0, l1, frac)))
		binary.LittleEndian.PutUint16(raw[off+2:], uint16(lerp16(r0, r1, frac)))
		written++
		r.next++
	}
	return raw, nil
}

// frameAt returns source frame i, reading ahead as needed. Frames before i-1
// are discarded; callers only move forward between seeks.
func (r *resampler) frameAt(i int64) (int16, int16, error) {
	if i >= r.totalSrc {
		return 0, 0, io.EOF
	}
	if i < r.base {
		return 0, 0, fmt.Errorf("frame %d already discarded", i)
	}
	if drop := i - 1 - r.base; drop > 0 {
		buffered := int64(len(r.frames) / 2)
		drop = min(drop, buffered)
		r.frames = append(r.frames[:0], r.frames[drop*2:]...)
		r.base += drop
	}
	for i >= r.base+int64(len(r.frames)/2) {
		if err := r.fill(); err != nil {
			return 0, 0, err
		}
	}
	k := (i - r.base) * 2
	return r.frames[k], r.frames[k+1], nil
}

func (r *resampler) fill() error {
	const chunkFrames = 2048
	if cap(r.chunk) < chunkFrames*r.srcFrame {
		r.chunk = make([]byte, chunkFrames*r.srcFrame)
	}
	buf := r.chunk[:chunkFrames*r.srcFrame]
	n, err := io.ReadFull(r.src, buf)
	count := n / r.srcFrame
	if count == 0 {
		if err == nil || err == io.ErrUnexpectedEOF {
			err = io.EOF
		}
		return err
	}

	for f := 0; f < count; f++ {
		b := buf[f*r.srcFrame:]
		left := int16(binary.LittleEndian.Uint16(b))
		right := left
		if r.srcChannels == 2 {
			right = int16(binary.LittleEndian.Uint16(b[2:]))
		}
		r.frames = append(r.frames, left, right)
	}
	return nil
}

// lerp16 interpolates from a toward b by frac/outRate, rounding to nearest.
func lerp16(a, b int16, frac int64) int16 {
	if frac == 0 || a == b {
		return a
	}
	d := int64(b) - int64(a)
	return int16(int64(a) + (d*frac+outRate/2)/outRate)
}
