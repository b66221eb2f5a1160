package dsp

import "sync"

// SampleRing is a thread-safe circular buffer of mono samples. The render
// goroutine writes into it and readers take snapshots of the most recent
// window.
type SampleRing struct {
	buf  []float32
	size int
	w    int // write position
	len  int // current fill level
	mu   sync.Mutex
}

// NewSampleRing creates a ring holding size samples.
func NewSampleRing(size int) *SampleRing {
	return &SampleRing{
		buf:  make([]float32, size),
		size: size,
	}
}

// Write appends samples, overwriting the oldest data when full.
func (rb *SampleRing) Write(p []float32) {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	for _, s := range p {
		rb.buf[rb.w] = s
		rb.w = (rb.w + 1) % rb.size
	}
	rb.len += len(p)
	if rb.len > rb.size {
		rb.len = rb.size
	}
}

// Latest copies the n most recent samples into dst, oldest first. When fewer
// than n samples have been written the front of dst is zero filled.
func (rb *SampleRing) Latest(dst []float32, n int) []float32 {
	if cap(dst) < n {
		dst = make([]float32, n)
	}
	dst = dst[:n]

	rb.mu.Lock()
	defer rb.mu.Unlock()

	avail := min(n, rb.len)
	pad := n - avail
	clear(dst[:pad])
	start := (rb.w - avail + rb.size) % rb.size
	for i := range avail {
		dst[pad+i] = rb.buf[(start+i)%rb.size]
	}
	return dst
}

// Len reports how many samples are buffered.
func (rb *SampleRing) Len() int {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	return rb.len
}

// Clear resets the buffer.
func (rb *SampleRing) Clear() {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	rb.w = 0
	rb.len = 0
}
