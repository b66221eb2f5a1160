package player

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-audio/wav"
	"github.com/hajimehoshi/go-mp3"
	"github.com/jfreymuth/oggvorbis"
	"github.com/mewkiz/flac"
)

// pcmSource is a seekable stream of signed 16-bit little-endian PCM in its
// native rate and channel count. Offsets and Length are in output bytes.
type pcmSource interface {
	io.ReadSeeker
	Length() int64
	SampleRate() int
	ChannelCount() int
}

// openSource picks a decoder by file extension.
func openSource(f *os.File) (pcmSource, error) {
	switch ext := strings.ToLower(filepath.Ext(f.Name())); ext {
	case ".mp3":
		return newMP3Source(f)
	case ".wav":
		return newWAVSource(f)
	case ".flac":
		return newFLACSource(f)
	case ".ogg":
		return newOGGSource(f)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, ext)
	}
}

// resolveSeek turns a Seek request into an absolute offset clamped to
// [0, length].
func resolveSeek(offset int64, whence int, pos, length int64) (int64, error) {
	var abs int64
	switch whence {
	case io.SeekStart:
		abs = offset
	case io.SeekCurrent:
		abs = pos + offset
	case io.SeekEnd:
		abs = length + offset
	default:
		return pos, fmt.Errorf("invalid seek whence: %d", whence)
	}
	return min(max(abs, 0), length), nil
}

// putSample16 clamps v and stores it as s16le at b.
func putSample16(b []byte, v int) {
	v = min(max(v, -32768), 32767)
	binary.LittleEndian.PutUint16(b, uint16(int16(v)))
}

// pending holds converted bytes a caller's buffer could not take.
type pending struct {
	buf []byte
	pos int64
}

func (q *pending) drain(p []byte) (int, bool) {
	if len(q.buf) == 0 {
		return 0, false
	}
	n := copy(p, q.buf)
	q.buf = q.buf[n:]
	q.pos += int64(n)
	return n, true
}

func (q *pending) deliver(p, raw []byte) int {
	n := copy(p, raw)
	if n < len(raw) {
		q.buf = append(q.buf[:0], raw[n:]...)
	}
	q.pos += int64(n)
	return n
}

func (q *pending) reset(pos int64) {
	q.buf = q.buf[:0]
	q.pos = pos
}

type mp3Source struct {
	dec *mp3.Decoder
}

func newMP3Source(f *os.File) (*mp3Source, error) {
	dec, err := mp3.NewDecoder(f)
	if err != nil {
		return nil, fmt.Errorf("decoding MP3: %w", err)
	}
	return &mp3Source{dec: dec}, nil
}

func (s *mp3Source) Read(p []byte) (int, error)                { return s.dec.Read(p) }
func (s *mp3Source) Seek(off int64, whence int) (int64, error) { return s.dec.Seek(off, whence) }
func (s *mp3Source) Length() int64                             { return s.dec.Length() }
func (s *mp3Source) SampleRate() int                           { return s.dec.SampleRate() }
func (s *mp3Source) ChannelCount() int                         { return 2 }

type wavSource struct {
	pending
	file       *os.File
	length     int64
	dataStart  int64
	sampleRate int
	channels   int
	bitDepth   int
	srcFrame   int64
	scratch    []byte
}

func newWAVSource(f *os.File) (*wavSource, error) {
	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return nil, fmt.Errorf("decoding WAV: invalid file")
	}
	if err := dec.FwdToPCM(); err != nil {
		return nil, fmt.Errorf("decoding WAV: %w", err)
	}

	channels := int(dec.NumChans)
	bitDepth := int(dec.BitDepth)
	switch bitDepth {
	case 8, 16, 24, 32:
	default:
		return nil, fmt.Errorf("decoding WAV: unsupported bit depth %d", bitDepth)
	}
	srcFrame := int64(channels * bitDepth / 8)
	if srcFrame == 0 {
		return nil, fmt.Errorf("decoding WAV: no channels")
	}
	start, err := f.Seek(0, io.SeekCurrent)
	if err != nil {
		return nil, fmt.Errorf("locating WAV data: %w", err)
	}

	frames := dec.PCMLen() / srcFrame
	return &wavSource{
		file:       f,
		length:     frames * int64(channels) * 2,
		dataStart:  start,
		sampleRate: int(dec.SampleRate),
		channels:   channels,
		bitDepth:   bitDepth,
		srcFrame:   srcFrame,
	}, nil
}

func (s *wavSource) Read(p []byte) (int, error) {
	if n, ok := s.drain(p); ok {
		return n, nil
	}

	width := s.bitDepth / 8
	samples := max(len(p)/2, 1)
	if cap(s.scratch) < samples*width {
		s.scratch = make([]byte, samples*width)
	}
	src := s.scratch[:samples*width]
	n, err := io.ReadFull(s.file, src)
	got := n / width
	if got == 0 {
		if err == nil || err == io.ErrUnexpectedEOF {
			err = io.EOF
		}
		return 0, err
	}

	raw := make([]byte, got*2)
	for i := 0; i < got; i++ {
		b := src[i*width:]
		var v int
		switch s.bitDepth {
		case 8:
			v = (int(b[0]) - 128) << 8
		case 16:
			v = int(int16(binary.LittleEndian.Uint16(b)))
		case 24:
			x := int32(b[0]) | int32(b[1])<<8 | int32(b[2])<<16
			if x&0x800000 != 0 {
				x |= ^0xFFFFFF
			}
			v = int(x >> 8)
		case 32:
			v = int(int32(binary.LittleEndian.Uint32(b)) >> 16)
		}
		putSample16(raw[i*2:], v)
	}

	if err == io.ErrUnexpectedEOF {
		err = io.EOF
	}
	return s.deliver(p, raw), err
}

func (s *wavSource) Seek(offset int64, whence int) (int64, error) {
	abs, err := resolveSeek(offset, whence, s.pos, s.length)
	if err != nil {
		return s.pos, err
	}
	frame := abs / int64(s.channels*2)
	if _, err := s.file.Seek(s.dataStart+frame*s.srcFrame, io.SeekStart); err != nil {
		return s.pos, err
	}
	s.reset(abs)
	return abs, nil
}

func (s *wavSource) Length() int64     { return s.length }
func (s *wavSource) SampleRate() int   { return s.sampleRate }
func (s *wavSource) ChannelCount() int { return s.channels }

type flacSource struct {
	pending
	stream     *flac.Stream
	length     int64
	sampleRate int
	channels   int
	bps        int
}

func newFLACSource(f *os.File) (*flacSource, error) {
	stream, err := flac.NewSeek(f)
	if err != nil {
		return nil, fmt.Errorf("decoding FLAC: %w", err)
	}
	info := stream.Info
	channels := int(info.NChannels)
	return &flacSource{
		stream:     stream,
		length:     int64(info.NSamples) * int64(channels) * 2,
		sampleRate: int(info.SampleRate),
		channels:   channels,
		bps:        int(info.BitsPerSample),
	}, nil
}

func (s *flacSource) Read(p []byte) (int, error) {
	if n, ok := s.drain(p); ok {
		return n, nil
	}
	frame, err := s.stream.ParseNext()
	if err != nil {
		return 0, err
	}

	n := int(frame.Subframes[0].NSamples)
	raw := make([]byte, n*s.channels*2)
	for i := 0; i < n; i++ {
		for ch := 0; ch < s.channels; ch++ {
			v := int(frame.Subframes[ch].Samples[i])
			if s.bps > 16 {
				v >>= s.bps - 16
			} else if s.bps < 16 {
				v <<= 16 - s.bps
			}
			putSample16(raw[(i*s.channels+ch)*2:], v)
		}
	}
	return s.deliver(p, raw), nil
}

func (s *flacSource) Seek(offset int64, whence int) (int64, error) {
	abs, err := resolveSeek(offset, whence, s.pos, s.length)
	if err != nil {
		return s.pos, err
	}
	if _, err := s.stream.Seek(uint64(abs / int64(s.channels*2))); err != nil {
		return s.pos, err
	}
	s.reset(abs)
	return abs, nil
}

func (s *flacSource) Length() int64     { return s.length }
func (s *flacSource) SampleRate() int   { return s.sampleRate }
func (s *flacSource) ChannelCount() int { return s.channels }

type oggSource struct {
	pending
	reader     *oggvorbis.Reader
	length     int64
	sampleRate int
	channels   int
	floats     []float32
}

func newOGGSource(f *os.File) (*oggSource, error) {
	r, err := oggvorbis.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("decoding OGG: %w", err)
	}
	return &oggSource{
		reader:     r,
		length:     r.Length() * int64(r.Channels()) * 2,
		sampleRate: r.SampleRate(),
		channels:   r.Channels(),
	}, nil
}

func (s *oggSource) Read(p []byte) (int, error) {
	if n, ok := s.drain(p); ok {
		return n, nil
	}
	want := max(len(p)/2, s.channels)
	if cap(s.floats) < want {
		s.floats = make([]float32, want)
	}
	n, err := s.reader.Read(s.floats[:want])
	if n == 0 {
		if err == nil {
			err = io.EOF
		}
		return 0, err
	}

	raw := make([]byte, n*2)
	for i, v := range s.floats[:n] {
		putSample16(raw[i*2:], int(max(min(v, 1), -1)*32767))
	}
	return s.deliver(p, raw), err
}

func (s *oggSource) Seek(offset int64, whence int) (int64, error) {
	abs, err := resolveSeek(offset, whence, s.pos, s.length)
	if err != nil {
		return s.pos, err
	}
	if err := s.reader.SetPosition(abs / int64(s.channels*2)); err != nil {
		return s.pos, err
	}
	s.reset(abs)
	return abs, nil
}

func (s *oggSource) Length() int64     { return s.length }
func (s *oggSource) SampleRate() int   { return s.sampleRate }
func (s *oggSource) ChannelCount() int { return s.channels }
