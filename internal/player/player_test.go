package player

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"testing"
	"time"
)

type stubSeekDecoder struct {
	pos     int64
	length  int64
	seekErr error
}

func (d *stubSeekDecoder) Read([]byte) (int, error) { return 0, io.EOF }

func (d *stubSeekDecoder) Seek(offset int64, whence int) (int64, error) {
	if d.seekErr != nil {
		return d.pos, d.seekErr
	}
	abs, err := resolveSeek(offset, whence, d.pos, d.length)
	if err != nil {
		return d.pos, err
	}
	d.pos = abs
	return abs, nil
}

func newStubPlayer(data []byte) (*Player, *stubPCMSource) {
	src := &stubPCMSource{data: data, sampleRate: outRate, channels: outChannels}
	return newPlayer(src, src.Length(), nil), src
}

func TestClampSeekByteOffsetClampsAndAligns(t *testing.T) {
	got := clampSeekByteOffset(3900*time.Millisecond, 10, 10, 4)
	if got != 8 {
		t.Fatalf("expected clamped aligned seek offset 8, got %d", got)
	}

	got = clampSeekByteOffset(-1*time.Second, 10, 100, 4)
	if got != 0 {
		t.Fatalf("expected negative seek to clamp to 0, got %d", got)
	}
}

func TestNewPlayerStartsPaused(t *testing.T) {
	p, _ := newStubPlayer(pcm16(1000, 1000))
	defer p.Close()
	if !p.Paused() {
		t.Fatal("expected new player to start paused")
	}

	buf := []byte{9, 9, 9, 9}
	if n, err := p.Read(buf); n != 4 || err != nil {
		t.Fatalf("expected silent full read, got n=%d err=%v", n, err)
	}
	if !bytes.Equal(buf, make([]byte, 4)) {
		t.Fatalf("expected silence while paused, got %v", buf)
	}
	if p.Position() != 0 {
		t.Fatalf("expected paused read not to advance, got %v", p.Position())
	}
}

func TestReadAppliesVolume(t *testing.T) {
	p, _ := newStubPlayer(pcm16(10000, -10000, 20000, -20000))
	defer p.Close()
	p.SetVolume(0.5)
	if err := p.Play(); err != nil {
		t.Fatalf("Play: %v", err)
	}

	buf := make([]byte, 8)
	if _, err := p.Read(buf); err != nil {
		t.Fatalf("Read: %v", err)
	}
	if want := pcm16(5000, -5000, 10000, -10000); !bytes.Equal(buf, want) {
		t.Fatalf("expected scaled PCM %v, got %v", want, buf)
	}
}

func TestReadPadsAndSignalsEnd(t *testing.T) {
	p, _ := newStubPlayer(pcm16(100, 200))
	defer p.Close()
	p.SetVolume(1)
	p.Play()

	buf := make([]byte, 12)
	n, err := p.Read(buf)
	if n != len(buf) || err != nil {
		t.Fatalf("expected padded full read, got n=%d err=%v", n, err)
	}
	if want := append(pcm16(100, 200), make([]byte, 8)...); !bytes.Equal(buf, want) {
		t.Fatalf("expected track then silence, got %v", buf)
	}
	select {
	case <-p.Done():
	default:
		t.Fatal("expected done channel closed at end of track")
	}
}

func TestSeekToClampsAndAlignsToFrameBoundary(t *testing.T) {
	dec := &stubSeekDecoder{length: 41}
	counter := &countingReader{reader: dec}
	p := &Player{
		decoder:     dec,
		counter:     counter,
		speed:       newRateReader(counter),
		bytesPerSec: 10,
		total:       41,
		canSeek:     true,
		done:        make(chan struct{}),
		subs:        map[int]func(time.Duration){},
	}

	if err := p.SeekTo(3900 * time.Millisecond); err != nil {
		t.Fatalf("SeekTo returned error: %v", err)
	}
	if dec.pos != 36 {
		t.Fatalf("expected decoder seek position 36, got %d", dec.pos)
	}
	if got := counter.Pos(); got != 36 {
		t.Fatalf("expected counter position 36, got %d", got)
	}
}

func TestSeekToPropagatesDecoderError(t *testing.T) {
	dec := &stubSeekDecoder{length: 100, seekErr: errors.New("boom")}
	counter := &countingReader{reader: dec}
	p := &Player{
		decoder:     dec,
		counter:     counter,
		speed:       newRateReader(counter),
		bytesPerSec: 10,
		total:       100,
		canSeek:     true,
		subs:        map[int]func(time.Duration){},
	}
	if err := p.SeekTo(time.Second); err == nil {
		t.Fatal("expected seek error")
	}
	if counter.Pos() != 0 {
		t.Fatalf("expected counter untouched, got %d", counter.Pos())
	}
}

func TestSeekNotifiesSubscribersAndRearmsDone(t *testing.T) {
	p, _ := newStubPlayer(pcm16(1, 2, 3, 4))
	defer p.Close()
	p.Play()
	io.ReadFull(p, make([]byte, 16))
	p.Pause()
	first := p.Done()
	select {
	case <-first:
	default:
		t.Fatal("expected track finished")
	}

	var got []time.Duration
	unsub := p.Subscribe(func(pos time.Duration) { got = append(got, pos) })
	if err := p.SeekTo(0); err != nil {
		t.Fatalf("SeekTo: %v", err)
	}
	if len(got) != 1 || got[0] != 0 {
		t.Fatalf("expected one notification at 0, got %v", got)
	}
	if p.Done() == first {
		t.Fatal("expected a fresh done channel after seeking back")
	}

	unsub()
	p.SeekTo(0)
	if len(got) != 1 {
		t.Fatalf("expected no notification after unsubscribe, got %v", got)
	}
}

func TestCloseIsIdempotentAndStopsPlay(t *testing.T) {
	p, _ := newStubPlayer(pcm16(1, 2))
	if err := p.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if err := p.Play(); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
	if err := p.SeekTo(0); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed from SeekTo, got %v", err)
	}
}

func TestVolumeAndRateClamp(t *testing.T) {
	p, _ := newStubPlayer(nil)
	defer p.Close()

	p.SetVolume(3)
	if p.Volume() != 1 {
		t.Fatalf("expected volume clamped to 1, got %v", p.Volume())
	}
	p.AdjustVolume(-5)
	if p.Volume() != 0 {
		t.Fatalf("expected volume clamped to 0, got %v", p.Volume())
	}

	p.SetPlaybackRate(9)
	if p.PlaybackRate() != 2 {
		t.Fatalf("expected rate clamped to 2, got %v", p.PlaybackRate())
	}
}

func framesOf(values ...int16) []byte {
	var out []byte
	for _, v := range values {
		out = append(out, pcm16(v, v)...)
	}
	return out
}

func leftChannel(pcm []byte) []int16 {
	var out []int16
	for i := 0; i+outFrameSize <= len(pcm); i += outFrameSize {
		out = append(out, int16(binary.LittleEndian.Uint16(pcm[i:])))
	}
	return out
}

func TestRateReaderDoubleSpeedSkipsFrames(t *testing.T) {
	rr := newRateReader(bytes.NewReader(framesOf(0, 100, 200, 300, 400, 500)))
	rr.setRate(2)

	buf := make([]byte, 3*outFrameSize)
	n, err := rr.Read(buf)
	if err != nil || n != len(buf) {
		t.Fatalf("Read: n=%d err=%v", n, err)
	}
	if got := leftChannel(buf); got[0] != 0 || got[1] != 200 || got[2] != 400 {
		t.Fatalf("expected every other frame, got %v", got)
	}
}

func TestRateReaderHalfSpeedInterpolates(t *testing.T) {
	rr := newRateReader(bytes.NewReader(framesOf(0, 100, 200)))
	rr.setRate(0.5)

	buf := make([]byte, 4*outFrameSize)
	n, err := rr.Read(buf)
	if err != nil || n != len(buf) {
		t.Fatalf("Read: n=%d err=%v", n, err)
	}
	want := []int16{0, 50, 100, 150}
	got := leftChannel(buf)
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}
}

func TestRateReaderNormalSpeedPassesThrough(t *testing.T) {
	data := framesOf(7, 8, 9)
	rr := newRateReader(bytes.NewReader(data))
	out, err := io.ReadAll(rr)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if !bytes.Equal(out, data) {
		t.Fatalf("expected passthrough, got %v", out)
	}
}
