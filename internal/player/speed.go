package player

import (
	"encoding/binary"
	"io"
	"sync"
)

// rateReader changes playback speed by stepping through source frames at
// rate source frames per output frame, interpolating between neighbours.
// Pitch moves with speed.
type rateReader struct {
	source io.Reader

	mu   sync.Mutex
	rate float64

	phase  float64 // position between cur and next, in [0, 1)
	cur    [2]float64
	next   [2]float64
	primed bool
	eof    bool

	in    []byte // unread source bytes
	chunk []byte
}

func newRateReader(source io.Reader) *rateReader {
	return &rateReader{source: source, rate: 1}
}

func (rr *rateReader) setRate(rate float64) {
	rr.mu.Lock()
	rr.rate = rate
	rr.mu.Unlock()
}

func (rr *rateReader) getRate() float64 {
	rr.mu.Lock()
	defer rr.mu.Unlock()
	return rr.rate
}

// reset drops interpolation state after the source was repositioned.
func (rr *rateReader) reset() {
	rr.mu.Lock()
	defer rr.mu.Unlock()
	rr.phase = 0
	rr.primed = false
	rr.eof = false
	rr.in = rr.in[:0]
}

func (rr *rateReader) Read(p []byte) (int, error) {
	rr.mu.Lock()
	defer rr.mu.Unlock()

	if rr.rate == 1 && !rr.primed {
		return rr.source.Read(p)
	}

	frames := len(p) / outFrameSize
	if frames == 0 {
		return 0, nil
	}
	if !rr.primed {
		if !rr.pull(&rr.cur) {
			return 0, io.EOF
		}
		if !rr.pull(&rr.next) {
			rr.next = rr.cur
		}
		rr.primed = true
	}

	written := 0
	for written < frames {
		for rr.phase >= 1 {
			rr.phase--
			rr.cur = rr.next
			if !rr.pull(&rr.next) {
				rr.next = rr.cur
				if written == 0 {
					return 0, io.EOF
				}
				return written * outFrameSize, nil
			}
		}
		off := written * outFrameSize
		for ch := range 2 {
			v := rr.cur[ch] + (rr.next[ch]-rr.cur[ch])*rr.phase
			binary.LittleEndian.PutUint16(p[off+ch*2:], uint16(int16(v)))
		}
		written++
		rr.phase += rr.rate
	}
	return written * outFrameSize, nil
}

// pull loads the next source frame into f.
func (rr *rateReader) pull(f *[2]float64) bool {
	if len(rr.in) < outFrameSize {
		if rr.eof {
			return false
		}
		const chunkFrames = 512
		if rr.chunk == nil {
			rr.chunk = make([]byte, chunkFrames*outFrameSize)
		}
		keep := copy(rr.chunk, rr.in)
		n, err := io.ReadAtLeast(rr.source, rr.chunk[keep:], outFrameSize-keep)
		rr.in = rr.chunk[:keep+n]
		if err != nil {
			rr.eof = true
		}
		if len(rr.in) < outFrameSize {
			return false
		}
	}
	f[0] = float64(int16(binary.LittleEndian.Uint16(rr.in)))
	f[1] = float64(int16(binary.LittleEndian.Uint16(rr.in[2:])))
	rr.in = rr.in[outFrameSize:]
	return true
}
